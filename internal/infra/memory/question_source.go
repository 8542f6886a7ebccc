package memory

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"askia-quiz-service/internal/app"
	"askia-quiz-service/internal/domain"
)

// StaticSource serves question sets and manifests from maps (useful for tests/demos).
type StaticSource struct {
	sets      map[string][]domain.Question
	manifests map[string]domain.TopicManifest
}

func NewStaticSource(sets map[string][]domain.Question) *StaticSource {
	return &StaticSource{sets: sets, manifests: make(map[string]domain.TopicManifest)}
}

// WithManifest registers the topic manifest of grade/subject.
func (s *StaticSource) WithManifest(grade, subject string, manifest domain.TopicManifest) *StaticSource {
	s.manifests[grade+"/"+subject] = manifest
	return s
}

func (s *StaticSource) FetchTopicManifest(_ context.Context, grade, subject string) (domain.TopicManifest, error) {
	if m, ok := s.manifests[grade+"/"+subject]; ok {
		return m, nil
	}
	return domain.TopicManifest{}, fmt.Errorf("manifest %s/%s: %w", grade, subject, domain.ErrContentNotFound)
}

func (s *StaticSource) FetchQuestions(_ context.Context, path string) ([]domain.Question, error) {
	if qs, ok := s.sets[path]; ok {
		return append([]domain.Question(nil), qs...), nil
	}
	return nil, fmt.Errorf("%s: %w", path, domain.ErrContentNotFound)
}

// QuestionCache caches question sets with TTL to avoid repeated source hits.
// Manifests pass through uncached.
type QuestionCache struct {
	source app.QuestionSource
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex

	mu    sync.RWMutex
	cache map[string]cachedSet
}

type cachedSet struct {
	questions []domain.Question
	expiresAt time.Time
}

func NewQuestionCache(source app.QuestionSource, ttl time.Duration) *QuestionCache {
	return &QuestionCache{
		source: source,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedSet),
	}
}

func (c *QuestionCache) FetchTopicManifest(ctx context.Context, grade, subject string) (domain.TopicManifest, error) {
	return c.source.FetchTopicManifest(ctx, grade, subject)
}

func (c *QuestionCache) FetchQuestions(ctx context.Context, path string) ([]domain.Question, error) {
	if qs, ok := c.lookup(path); ok {
		return qs, nil
	}

	result, err, _ := c.sf.Do(path, func() (interface{}, error) {
		if qs, ok := c.lookup(path); ok {
			return qs, nil
		}
		qs, err := c.source.FetchQuestions(ctx, path)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.cache[path] = cachedSet{questions: qs, expiresAt: c.clock().Add(c.ttlWithJitter())}
		c.mu.Unlock()
		return qs, nil
	})
	if err != nil {
		return nil, err
	}
	return append([]domain.Question(nil), result.([]domain.Question)...), nil
}

func (c *QuestionCache) lookup(path string) ([]domain.Question, bool) {
	now := c.clock()
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.cache[path]
	if !ok || !entry.expiresAt.After(now) {
		return nil, false
	}
	return append([]domain.Question(nil), entry.questions...), true
}

func (c *QuestionCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
