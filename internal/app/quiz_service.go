package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"askia-quiz-service/internal/countdown"
	"askia-quiz-service/internal/domain"
	"askia-quiz-service/internal/metrics"
	"askia-quiz-service/internal/reward"
)

// Deps are the collaborators every QuizService needs.
type Deps struct {
	Sessions  SessionRepository
	Users     UserStore
	Questions QuestionSource
	League    LeagueStore
}

// Option customizes a QuizService.
type Option func(*QuizService)

func WithClock(clock countdown.Clock) Option {
	return func(s *QuizService) { s.clock = clock }
}

func WithRandom(rnd Random) Option {
	return func(s *QuizService) { s.rnd = rnd }
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(s *QuizService) { s.log = log }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *QuizService) { s.metrics = m }
}

func WithSettings(settings Settings) Option {
	return func(s *QuizService) { s.settings = settings }
}

func WithRules(rules reward.Rules) Option {
	return func(s *QuizService) { s.rules = rules }
}

// QuizService contains the quiz session use cases.
type QuizService struct {
	sessions SessionRepository
	users    UserStore

	pool   *PoolLoader
	focus  *FocusTokens
	league *LeagueRecorder

	clock    countdown.Clock
	rnd      Random
	log      logrus.FieldLogger
	metrics  *metrics.Metrics
	settings Settings
	rules    reward.Rules
}

func NewQuizService(deps Deps, opts ...Option) *QuizService {
	s := &QuizService{
		sessions: deps.Sessions,
		users:    deps.Users,
		clock:    countdown.RealClock(),
		rnd:      NewRandom(time.Now().UnixNano()),
		log:      logrus.StandardLogger(),
		settings: DefaultSettings(),
		rules:    reward.DefaultRules(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.pool = NewPoolLoader(deps.Questions, s.rnd, s.metrics)
	s.focus = NewFocusTokens(deps.Users, s.settings.DailyFocusTokens, s.clock.Now)
	s.league = NewLeagueRecorder(deps.League, s.log, s.metrics)
	return s
}

// Start validates params, loads the player and the question pool, and arms the first
// question. Parameter errors, unknown players and already-played league weeks are returned
// before any session exists. A pool that fails to load returns the Failed session together
// with its *domain.LoadError.
func (s *QuizService) Start(ctx context.Context, playerID string, params SessionParams) (*Session, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	var progress domain.PlayerProgress
	if params.Mode != "guest" {
		p, err := s.users.Get(ctx, playerID)
		if err != nil {
			return nil, err
		}
		progress, err = s.focus.DailyReset(ctx, p)
		if err != nil {
			return nil, err
		}
	}

	cfg, err := params.Config(progress.DefaultGrade)
	if err != nil {
		return nil, err
	}
	if cfg.Mode == domain.ModeLeague && progress.Participated(cfg.WeekID) {
		s.metrics.SessionFinished(cfg.Mode, domain.LifecycleAlreadyParticipated)
		return nil, domain.ErrAlreadyParticipated
	}

	session := newSession(uuid.NewString(), playerID, cfg, sessionDeps{
		users:    s.users,
		focus:    s.focus,
		league:   s.league,
		rules:    s.rules,
		clock:    s.clock,
		rnd:      s.rnd,
		settings: s.settings,
		metrics:  s.metrics,
		onDone:   func(done *Session) { s.sessions.Delete(done.ID()) },
	}, s.log)

	questions, err := s.pool.Load(ctx, cfg)
	if err != nil {
		session.fail(err)
		return session, err
	}

	s.sessions.Add(session)
	session.begin(questions)
	s.metrics.SessionStarted(cfg.Mode)
	return session, nil
}

// Session looks up a live session.
func (s *QuizService) Session(sessionID string) (*Session, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

// SubmitAnswer answers the current question of a session.
func (s *QuizService) SubmitAnswer(ctx context.Context, sessionID string, answer domain.Answer) (Feedback, error) {
	session, err := s.Session(sessionID)
	if err != nil {
		return Feedback{}, err
	}
	return session.Submit(ctx, answer)
}

func (s *QuizService) Pause(_ context.Context, sessionID string) error {
	session, err := s.Session(sessionID)
	if err != nil {
		return err
	}
	return session.Pause()
}

func (s *QuizService) Resume(_ context.Context, sessionID string) error {
	session, err := s.Session(sessionID)
	if err != nil {
		return err
	}
	return session.Resume()
}

// UseFocusToken spends a token on the current question and returns the tokens left.
func (s *QuizService) UseFocusToken(ctx context.Context, sessionID string) (int, error) {
	session, err := s.Session(sessionID)
	if err != nil {
		return 0, err
	}
	return session.UseFocusToken(ctx)
}

// Quit abandons a session without flushing rewards.
func (s *QuizService) Quit(_ context.Context, sessionID string) error {
	session, err := s.Session(sessionID)
	if err != nil {
		return err
	}
	session.Quit()
	return nil
}

// Subscribe returns a channel that receives session events.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *QuizService) Subscribe(_ context.Context, sessionID string) (<-chan Event, func(), error) {
	session, err := s.Session(sessionID)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := session.subscribe()
	return ch, cancel, nil
}

// Profile is what a player supplies when registering.
type Profile struct {
	Username     string `json:"username" validate:"required"`
	School       string `json:"school" validate:"required"`
	City         string `json:"city" validate:"required"`
	DefaultGrade string `json:"defaultGrade" validate:"required"`
}

// Validate reports the first missing profile field as a *domain.ConfigError.
func (p Profile) Validate() error {
	err := validate.Struct(p)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &domain.ConfigError{Field: "profile", Reason: err.Error()}
	}
	return &domain.ConfigError{Field: verrs[0].Field(), Reason: "is required"}
}

// Register creates a level-one player record with a full daily token quota.
func (s *QuizService) Register(ctx context.Context, playerID string, profile Profile) (domain.PlayerProgress, error) {
	if playerID == "" {
		return domain.PlayerProgress{}, &domain.ConfigError{Field: "playerId", Reason: "is required"}
	}
	if err := profile.Validate(); err != nil {
		return domain.PlayerProgress{}, err
	}
	_, err := s.users.Get(ctx, playerID)
	switch {
	case err == nil:
		return domain.PlayerProgress{}, domain.ErrPlayerExists
	case !errors.Is(err, domain.ErrPlayerNotFound):
		return domain.PlayerProgress{}, err
	}

	progress := domain.NewPlayerProgress(playerID, profile.Username)
	progress.School = profile.School
	progress.City = profile.City
	progress.DefaultGrade = profile.DefaultGrade
	progress.FocusTokens = s.settings.DailyFocusTokens
	progress.LastPlayedDate = domain.Today(s.clock.Now())
	if err := s.users.Save(ctx, progress); err != nil {
		return domain.PlayerProgress{}, fmt.Errorf("register player: %w", err)
	}
	return progress, nil
}

// Progress returns the stored player record.
func (s *QuizService) Progress(ctx context.Context, playerID string) (domain.PlayerProgress, error) {
	return s.users.Get(ctx, playerID)
}

// ClaimGuestRewards credits a finished guest run to a registered player.
func (s *QuizService) ClaimGuestRewards(ctx context.Context, playerID string, xp, orbs int) (domain.PlayerProgress, error) {
	if xp < 0 || orbs < 0 {
		return domain.PlayerProgress{}, &domain.ConfigError{Field: "rewards", Reason: "must not be negative"}
	}
	progress, err := s.users.Get(ctx, playerID)
	if err != nil {
		return domain.PlayerProgress{}, err
	}
	progress.XP += xp
	progress.Orbs += orbs
	s.rules.LevelUp(&progress)
	if err := s.users.Save(ctx, progress); err != nil {
		return domain.PlayerProgress{}, fmt.Errorf("claim guest rewards: %w", err)
	}
	return progress, nil
}

// Standings ranks the schools of a league week, optionally for one city.
func (s *QuizService) Standings(ctx context.Context, weekID, city string) ([]domain.SchoolRank, error) {
	return s.league.Standings(ctx, weekID, city)
}

// TopScores lists the best players of a week, optionally for one school.
func (s *QuizService) TopScores(ctx context.Context, weekID, school string, limit int) ([]domain.IndividualScore, error) {
	if limit <= 0 {
		limit = HallOfFameSize
		if school != "" {
			limit = ChampionsPerSchool
		}
	}
	return s.league.TopScores(ctx, weekID, school, limit)
}
