package app

import (
	"context"
	"math/rand"
	"sync"

	"askia-quiz-service/internal/domain"
)

// UserStore owns player progress. Get returns domain.ErrPlayerNotFound for unknown players.
type UserStore interface {
	Get(ctx context.Context, playerID string) (domain.PlayerProgress, error)
	Save(ctx context.Context, progress domain.PlayerProgress) error
}

// QuestionSource fetches raw content (static files, HTTP, Postgres, caches in front of them).
type QuestionSource interface {
	FetchTopicManifest(ctx context.Context, grade, subject string) (domain.TopicManifest, error)
	FetchQuestions(ctx context.Context, path string) ([]domain.Question, error)
}

// LeagueStore persists the whole league ledger.
type LeagueStore interface {
	Get(ctx context.Context) (domain.LeagueLedger, error)
	Save(ctx context.Context, ledger domain.LeagueLedger) error
}

// SchoolRanking is implemented by league stores that keep a ranked index of schools per
// week. A non-positive limit returns every school.
type SchoolRanking interface {
	TopSchools(ctx context.Context, weekID string, limit int64) ([]string, error)
}

// SessionRepository abstracts where live sessions are registered (in-memory, Redis, etc).
type SessionRepository interface {
	Add(session *Session)
	Get(sessionID string) (*Session, bool)
	Delete(sessionID string)
}

// Random is the randomness the engine needs; tests pass a fixed seed.
type Random interface {
	Intn(n int) int
	Shuffle(n int, swap func(i, j int))
}

type lockedRand struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewRandom returns a goroutine-safe Random seeded with seed.
func NewRandom(seed int64) Random {
	return &lockedRand{rnd: rand.New(rand.NewSource(seed))}
}

func (r *lockedRand) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rnd.Intn(n)
}

func (r *lockedRand) Shuffle(n int, swap func(i, j int)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rnd.Shuffle(n, swap)
}
