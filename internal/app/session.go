package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"askia-quiz-service/internal/countdown"
	"askia-quiz-service/internal/domain"
	"askia-quiz-service/internal/metrics"
	"askia-quiz-service/internal/reward"
)

// EventType names what a session broadcast to its subscribers.
type EventType string

const (
	EventSnapshot  EventType = "snapshot"
	EventQuestion  EventType = "question"
	EventTick      EventType = "tick"
	EventFeedback  EventType = "feedback"
	EventPaused    EventType = "paused"
	EventResumed   EventType = "resumed"
	EventFocus     EventType = "focus"
	EventCompleted EventType = "completed"
	EventFailed    EventType = "failed"
	EventAbandoned EventType = "abandoned"
)

// Event is one session update.
type Event struct {
	Type      EventType             `json:"type"`
	SessionID string                `json:"sessionId"`
	Question  *domain.QuestionView  `json:"question,omitempty"`
	Remaining *int                  `json:"remaining,omitempty"`
	Feedback  *Feedback             `json:"feedback,omitempty"`
	Result    *domain.ResultSummary `json:"result,omitempty"`
	Session   *SessionView          `json:"session,omitempty"`
	Tokens    *int                  `json:"focusTokens,omitempty"`
	Error     string                `json:"error,omitempty"`
}

// Feedback is the outcome of one question.
type Feedback struct {
	Index         int    `json:"index"`
	Correct       bool   `json:"correct"`
	TimedOut      bool   `json:"timedOut"`
	CorrectAnswer string `json:"correctAnswer"`
	XPAwarded     int    `json:"xpAwarded"`
	Score         int    `json:"score"`
	Streak        int    `json:"streak"`
}

// SessionView is a point-in-time copy of a session for presentation.
type SessionView struct {
	ID             string                `json:"id"`
	Mode           domain.Mode           `json:"mode"`
	Kind           domain.QuestionKind   `json:"kind"`
	Lifecycle      domain.Lifecycle      `json:"lifecycle"`
	Index          int                   `json:"index"`
	Total          int                   `json:"total"`
	Score          int                   `json:"score"`
	Streak         int                   `json:"streak"`
	XPEarned       int                   `json:"xpEarned"`
	Remaining      int                   `json:"remaining"`
	TimerSuspended bool                  `json:"timerSuspended"`
	FocusUsed      bool                  `json:"focusUsed"`
	Question       *domain.QuestionView  `json:"question,omitempty"`
	Result         *domain.ResultSummary `json:"result,omitempty"`
	Error          string                `json:"error,omitempty"`
}

// Settings are the engine timings.
type Settings struct {
	TimePerQuestion  time.Duration
	DailyFocusTokens int
	FeedbackDelay    map[domain.QuestionKind]time.Duration
	// PersistTimeout bounds store calls made from timer callbacks.
	PersistTimeout time.Duration
}

func DefaultSettings() Settings {
	return Settings{
		TimePerQuestion:  15 * time.Second,
		DailyFocusTokens: 3,
		FeedbackDelay: map[domain.QuestionKind]time.Duration{
			domain.KindMultipleChoice:  2000 * time.Millisecond,
			domain.KindFillBlank:       2500 * time.Millisecond,
			domain.KindImageIdentify:   1500 * time.Millisecond,
			domain.KindSentenceBuilder: 2500 * time.Millisecond,
		},
		PersistTimeout: 5 * time.Second,
	}
}

func (s Settings) feedbackDelay(kind domain.QuestionKind) time.Duration {
	if d, ok := s.FeedbackDelay[kind]; ok {
		return d
	}
	return 2 * time.Second
}

type sessionDeps struct {
	users    UserStore
	focus    *FocusTokens
	league   *LeagueRecorder
	rules    reward.Rules
	clock    countdown.Clock
	rnd      Random
	settings Settings
	metrics  *metrics.Metrics
	// onDone runs once, under the session lock, when the session turns terminal.
	onDone func(*Session)
}

// Session is one play-through. Every state change happens under mu; timer and feedback
// callbacks carry the arm number of the question they belong to and are ignored once it
// has moved on.
type Session struct {
	id       string
	playerID string
	cfg      domain.SessionConfig
	deps     sessionDeps
	log      logrus.FieldLogger

	mu             sync.Mutex
	lifecycle      domain.Lifecycle
	questions      []domain.Question
	index          int
	score          int
	streak         int
	jackpotIndex   int
	incrementalXP  int
	arm            uint64
	timer          *countdown.Timer
	timerSuspended bool
	focusUsed      bool
	view           *domain.QuestionView
	advance        countdown.Stopper
	result         *domain.ResultSummary
	err            error
	subscribers    map[chan Event]struct{}
}

func newSession(id, playerID string, cfg domain.SessionConfig, deps sessionDeps, log logrus.FieldLogger) *Session {
	return &Session{
		id:           id,
		playerID:     playerID,
		cfg:          cfg,
		deps:         deps,
		log:          log.WithFields(logrus.Fields{"session_id": id, "player_id": playerID, "mode": cfg.Mode.String()}),
		lifecycle:    domain.LifecycleLoading,
		jackpotIndex: -1,
		subscribers:  make(map[chan Event]struct{}),
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) PlayerID() string { return s.playerID }

func (s *Session) Config() domain.SessionConfig { return s.cfg }

// Lifecycle returns the current state.
func (s *Session) Lifecycle() domain.Lifecycle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lifecycle
}

// Err is the error that moved the session to Failed, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Snapshot returns a copy of the session state.
func (s *Session) Snapshot() SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// begin arms the first question. questions must not be empty.
func (s *Session) begin(questions []domain.Question) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lifecycle != domain.LifecycleLoading {
		return
	}
	s.questions = questions
	s.index = 0
	s.streak = 0
	if s.cfg.Mode == domain.ModeStandard {
		s.jackpotIndex = s.deps.rnd.Intn(len(questions))
	}
	s.log.WithField("questions", len(questions)).Debug("session loaded")
	s.armLocked()
}

// fail moves a loading session to Failed.
func (s *Session) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failLocked(err)
}

// Submit evaluates an answer to the current question. A malformed answer is rejected
// without changing state.
func (s *Session) Submit(ctx context.Context, answer domain.Answer) (Feedback, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lifecycle != domain.LifecycleAwaitingAnswer {
		return Feedback{}, domain.ErrNotAwaitingAnswer
	}
	return s.submitLocked(ctx, answer, false)
}

// Pause suspends the timer of a standard session without spending a focus token.
func (s *Session) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg.Mode != domain.ModeStandard {
		return domain.ErrPauseUnavailable
	}
	if s.lifecycle != domain.LifecycleAwaitingAnswer || s.timer.Remaining() <= 0 {
		return domain.ErrNotAwaitingAnswer
	}
	s.timer.Pause()
	s.lifecycle = domain.LifecyclePaused
	s.broadcastLocked(Event{Type: EventPaused})
	return nil
}

// Resume continues from the frozen remaining value. A timer suspended by a focus token
// stays suspended.
func (s *Session) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg.Mode != domain.ModeStandard {
		return domain.ErrPauseUnavailable
	}
	if s.lifecycle != domain.LifecyclePaused {
		return domain.ErrNotPaused
	}
	s.lifecycle = domain.LifecycleAwaitingAnswer
	if !s.timerSuspended {
		s.timer.Resume()
	}
	remaining := s.timer.Remaining()
	s.broadcastLocked(Event{Type: EventResumed, Remaining: &remaining})
	return nil
}

// UseFocusToken spends one token and suspends the current question's timer.
func (s *Session) UseFocusToken(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg.Mode == domain.ModeGuest {
		return 0, domain.ErrFocusUnavailable
	}
	if s.lifecycle != domain.LifecycleAwaitingAnswer || s.timer.Remaining() <= 0 {
		return 0, domain.ErrNotAwaitingAnswer
	}
	if s.focusUsed {
		return 0, domain.ErrFocusAlreadyUsed
	}
	progress, err := s.deps.focus.Spend(ctx, s.playerID)
	if err != nil {
		return progress.FocusTokens, err
	}
	s.timer.Pause()
	s.timerSuspended = true
	s.focusUsed = true
	s.deps.metrics.FocusTokenSpent()

	tokens := progress.FocusTokens
	s.broadcastLocked(Event{Type: EventFocus, Tokens: &tokens})
	return tokens, nil
}

// Quit abandons the session. Pending feedback and rewards are dropped.
func (s *Session) Quit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lifecycle.Terminal() {
		return
	}
	s.stopLocked()
	s.lifecycle = domain.LifecycleAbandoned
	s.log.Debug("session abandoned")
	s.broadcastLocked(Event{Type: EventAbandoned})
	s.finishLocked()
}

func (s *Session) armLocked() {
	s.arm++
	arm := s.arm
	s.lifecycle = domain.LifecycleAwaitingAnswer
	s.timerSuspended = false
	s.focusUsed = false

	q := s.questions[s.index]
	limit := domain.TimeLimit(q, s.deps.settings.TimePerQuestion)
	view := domain.View(q, s.deps.rnd.Shuffle)
	view.Index = s.index
	view.Total = len(s.questions)
	view.TimeLimitSeconds = int((limit + time.Second - 1) / time.Second)
	view.Jackpot = s.index == s.jackpotIndex
	s.view = &view

	s.timer = countdown.New(s.deps.clock,
		func(remaining int) { s.onTick(arm, remaining) },
		func() { s.onExpire(arm) },
	)
	s.timer.Start(limit)

	s.broadcastLocked(Event{Type: EventQuestion, Question: &view})
}

func (s *Session) onTick(arm uint64, remaining int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if arm != s.arm || s.lifecycle != domain.LifecycleAwaitingAnswer {
		return
	}
	s.broadcastLocked(Event{Type: EventTick, Remaining: &remaining})
}

func (s *Session) onExpire(arm uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if arm != s.arm || s.lifecycle != domain.LifecycleAwaitingAnswer || s.timerSuspended {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.deps.settings.PersistTimeout)
	defer cancel()
	if _, err := s.submitLocked(ctx, nil, true); err != nil {
		s.log.WithError(err).Error("timeout submission failed")
	}
}

func (s *Session) submitLocked(ctx context.Context, answer domain.Answer, timedOut bool) (Feedback, error) {
	q := s.questions[s.index]
	correct := false
	if !timedOut {
		ok, err := domain.Evaluate(q, answer)
		if err != nil {
			return Feedback{}, err
		}
		correct = ok
	}

	remaining := s.timer.Remaining()
	s.timer.Cancel()
	s.lifecycle = domain.LifecycleTransitioning
	s.deps.metrics.Answer(q.Kind(), correct, timedOut)

	if correct {
		s.score++
	}
	var awarded int
	if s.cfg.Mode == domain.ModeStandard {
		if correct {
			s.streak++
		} else {
			s.streak = 0
		}
		rules := s.deps.rules
		award := rules.Answer(correct, rules.TimeBonus(remaining, s.timerSuspended), s.index == s.jackpotIndex, s.streak)
		awarded = award.Total()
		if err := s.persistAnswerLocked(ctx, awarded); err != nil {
			s.failLocked(err)
			return Feedback{}, err
		}
		s.incrementalXP += awarded
	}

	fb := Feedback{
		Index:         s.index,
		Correct:       correct,
		TimedOut:      timedOut,
		CorrectAnswer: domain.CorrectAnswerText(q),
		XPAwarded:     awarded,
		Score:         s.score,
		Streak:        s.streak,
	}
	s.broadcastLocked(Event{Type: EventFeedback, Feedback: &fb})

	arm := s.arm
	s.advance = s.deps.clock.AfterFunc(s.deps.settings.feedbackDelay(q.Kind()), func() { s.onAdvance(arm) })
	return fb, nil
}

// persistAnswerLocked folds one answer's XP and the streak into the freshly read record.
func (s *Session) persistAnswerLocked(ctx context.Context, xp int) error {
	progress, err := s.deps.users.Get(ctx, s.playerID)
	if err != nil {
		return fmt.Errorf("read progress: %w", err)
	}
	progress.XP += xp
	progress.CurrentStreak = s.streak
	if err := s.deps.users.Save(ctx, progress); err != nil {
		return fmt.Errorf("save progress: %w", err)
	}
	return nil
}

func (s *Session) onAdvance(arm uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if arm != s.arm || s.lifecycle != domain.LifecycleTransitioning {
		return
	}
	s.advance = nil
	s.index++
	if s.index < len(s.questions) {
		s.armLocked()
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.deps.settings.PersistTimeout)
	defer cancel()
	s.completeLocked(ctx)
}

func (s *Session) completeLocked(ctx context.Context) {
	rules := s.deps.rules
	outcome := reward.Outcome{
		Mode:          s.cfg.Mode,
		Key:           s.cfg.Key(),
		Score:         s.score,
		SessionSize:   len(s.questions),
		IncrementalXP: s.incrementalXP,
	}
	summary := domain.ResultSummary{Score: s.score, SessionSize: len(s.questions)}

	var rewards reward.Rewards
	switch s.cfg.Mode {
	case domain.ModeGuest:
		rewards, _ = rules.Compute(outcome, domain.PlayerProgress{})
	case domain.ModeStandard:
		progress, err := s.deps.users.Get(ctx, s.playerID)
		if err != nil {
			s.failLocked(fmt.Errorf("read progress: %w", err))
			return
		}
		var next domain.PlayerProgress
		rewards, next = rules.Compute(outcome, progress)
		if err := s.deps.users.Save(ctx, next); err != nil {
			s.failLocked(fmt.Errorf("save progress: %w", err))
			return
		}
	case domain.ModeLeague:
		progress, err := s.deps.users.Get(ctx, s.playerID)
		if err != nil {
			s.failLocked(fmt.Errorf("read progress: %w", err))
			return
		}
		if progress.Participated(s.cfg.WeekID) {
			s.stopLocked()
			s.lifecycle = domain.LifecycleAlreadyParticipated
			s.err = domain.ErrAlreadyParticipated
			s.broadcastLocked(Event{Type: EventFailed, Error: s.err.Error()})
			s.finishLocked()
			return
		}
		// participation is saved before the ledger is touched; a ledger failure releases it
		claimed := progress.Clone()
		claimed.MarkParticipated(s.cfg.WeekID)
		if err := s.deps.users.Save(ctx, claimed); err != nil {
			s.failLocked(fmt.Errorf("save participation: %w", err))
			return
		}
		delta, err := s.deps.league.RecordScore(ctx, s.cfg.WeekID, progress, s.score)
		if err != nil {
			if rbErr := s.deps.users.Save(ctx, progress); rbErr != nil {
				s.log.WithError(rbErr).Error("release league participation")
			}
			s.failLocked(err)
			return
		}
		var next domain.PlayerProgress
		rewards, next = rules.Compute(outcome, claimed)
		if err := s.deps.users.Save(ctx, next); err != nil {
			s.failLocked(fmt.Errorf("save progress: %w", err))
			return
		}
		summary.LeagueDelta = &delta
	}

	summary.XPEarned = rewards.XP
	summary.OrbsEarned = rewards.Orbs
	summary.NewLevel = rewards.NewLevel
	s.result = &summary
	s.lifecycle = domain.LifecycleCompleted
	s.view = nil
	s.log.WithFields(logrus.Fields{"score": s.score, "xp": rewards.XP, "orbs": rewards.Orbs}).Info("session completed")
	s.broadcastLocked(Event{Type: EventCompleted, Result: &summary})
	s.finishLocked()
}

func (s *Session) failLocked(err error) {
	if s.lifecycle.Terminal() {
		return
	}
	s.stopLocked()
	s.lifecycle = domain.LifecycleFailed
	s.err = err
	entry := s.log.WithError(err)
	if errors.Is(err, domain.ErrLoad) || errors.Is(err, domain.ErrLedgerInconsistency) {
		entry.Error("session failed")
	} else {
		entry.Warn("session failed")
	}
	s.broadcastLocked(Event{Type: EventFailed, Error: err.Error()})
	s.finishLocked()
}

// stopLocked releases the timer and any pending feedback advance.
func (s *Session) stopLocked() {
	if s.timer != nil {
		s.timer.Cancel()
	}
	if s.advance != nil {
		s.advance.Stop()
		s.advance = nil
	}
	s.arm++
}

func (s *Session) finishLocked() {
	s.deps.metrics.SessionFinished(s.cfg.Mode, s.lifecycle)
	if s.deps.onDone != nil {
		s.deps.onDone(s)
	}
}

// subscribe registers a buffered update channel, primed with the current snapshot.
func (s *Session) subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 16)

	s.mu.Lock()
	view := s.snapshotLocked()
	ch <- Event{Type: EventSnapshot, SessionID: s.id, Session: &view}
	s.subscribers[ch] = struct{}{}
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

// broadcastLocked never blocks: a full subscriber loses its oldest update.
func (s *Session) broadcastLocked(ev Event) {
	ev.SessionID = s.id
	for ch := range s.subscribers {
		select {
		case ch <- ev:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- ev
		}
	}
}

func (s *Session) snapshotLocked() SessionView {
	view := SessionView{
		ID:             s.id,
		Mode:           s.cfg.Mode,
		Kind:           s.cfg.Kind,
		Lifecycle:      s.lifecycle,
		Index:          s.index,
		Total:          len(s.questions),
		Score:          s.score,
		Streak:         s.streak,
		XPEarned:       s.incrementalXP,
		TimerSuspended: s.timerSuspended,
		FocusUsed:      s.focusUsed,
		Result:         s.result,
	}
	if s.timer != nil {
		view.Remaining = s.timer.Remaining()
	}
	if s.view != nil && !s.lifecycle.Terminal() {
		q := *s.view
		view.Question = &q
	}
	if s.err != nil {
		view.Error = s.err.Error()
	}
	return view
}
