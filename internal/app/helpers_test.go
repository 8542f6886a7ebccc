package app_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"askia-quiz-service/internal/app"
	"askia-quiz-service/internal/countdown"
	"askia-quiz-service/internal/domain"
	"askia-quiz-service/internal/infra/memory"
	"askia-quiz-service/internal/logger"
)

var testDay = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

type harness struct {
	clock    *countdown.ManualClock
	users    *countingUsers
	league   *memory.LeagueStore
	source   *countingSource
	sessions *memory.SessionStore
	service  *app.QuizService
}

func newHarness(t *testing.T, sets map[string][]domain.Question, players ...domain.PlayerProgress) *harness {
	t.Helper()
	h := &harness{
		clock:    countdown.NewManualClock(testDay),
		users:    &countingUsers{UserStore: memory.NewUserStore(players...)},
		league:   memory.NewLeagueStore(domain.SampleLeagueLedger()),
		source:   &countingSource{QuestionSource: memory.NewStaticSource(sets)},
		sessions: memory.NewSessionStore(),
	}
	h.service = app.NewQuizService(app.Deps{
		Sessions:  h.sessions,
		Users:     h.users,
		Questions: h.source,
		League:    h.league,
	},
		app.WithClock(h.clock),
		app.WithRandom(app.NewRandom(42)),
		app.WithLogger(logger.Discard()),
	)
	return h
}

func (h *harness) progress(t *testing.T, playerID string) domain.PlayerProgress {
	t.Helper()
	p, err := h.users.Get(context.Background(), playerID)
	if err != nil {
		t.Fatalf("get progress: %v", err)
	}
	return p
}

// answerAll answers every remaining question with answer, waiting out each feedback delay.
func (h *harness) answerAll(t *testing.T, session *app.Session, answer func(i int) domain.Answer) []app.Feedback {
	t.Helper()
	var out []app.Feedback
	for i := 0; session.Lifecycle() == domain.LifecycleAwaitingAnswer; i++ {
		fb, err := session.Submit(context.Background(), answer(i))
		if err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
		out = append(out, fb)
		h.clock.Advance(app.DefaultSettings().FeedbackDelay[session.Config().Kind])
	}
	return out
}

func player(id string) domain.PlayerProgress {
	p := domain.NewPlayerProgress(id, "hamza")
	p.School = "École Pilote"
	p.City = "Gao"
	p.DefaultGrade = "6"
	p.LastPlayedDate = domain.Today(testDay)
	return p
}

// choiceSet builds n multiple-choice questions whose correct option is always index 1.
func choiceSet(prefix string, n int) []domain.Question {
	qs := make([]domain.Question, 0, n)
	for i := 0; i < n; i++ {
		qs = append(qs, domain.MultipleChoice{
			Prompt:       fmt.Sprintf("%s %d", prefix, i),
			Options:      []string{"no", "yes", "maybe"},
			CorrectIndex: 1,
		})
	}
	return qs
}

func correctChoice(int) domain.Answer { return domain.ChoiceAnswer{Index: 1} }

func wrongChoice(int) domain.Answer { return domain.ChoiceAnswer{Index: 0} }

type countingSource struct {
	app.QuestionSource
	mu    sync.Mutex
	calls int
}

func (s *countingSource) FetchQuestions(ctx context.Context, path string) ([]domain.Question, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return s.QuestionSource.FetchQuestions(ctx, path)
}

func (s *countingSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type countingUsers struct {
	app.UserStore
	mu    sync.Mutex
	saves int
	fail  error
	// failFrom, when set, limits fail to the save with this ordinal and later ones.
	failFrom int
}

func (u *countingUsers) Save(ctx context.Context, p domain.PlayerProgress) error {
	u.mu.Lock()
	u.saves++
	fail := u.fail
	if u.failFrom > 0 && u.saves < u.failFrom {
		fail = nil
	}
	u.mu.Unlock()
	if fail != nil {
		return fail
	}
	return u.UserStore.Save(ctx, p)
}

func (u *countingUsers) failSaves(err error, from int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.fail = err
	u.failFrom = from
}

func (u *countingUsers) Saves() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.saves
}

func schoolParticipants(t *testing.T, h *harness, week, school string) int {
	t.Helper()
	ledger, err := h.league.Get(context.Background())
	if err != nil {
		t.Fatalf("read ledger: %v", err)
	}
	return ledger[week].Schools[school].Participants
}
