package redis

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"askia-quiz-service/internal/app"
	"askia-quiz-service/internal/domain"
)

// QuestionCache caches question sets in Redis and falls back to a source on cache miss.
// Sets are stored in their content-file form: SET questions:{path} {json}
type QuestionCache struct {
	client *redis.Client
	source app.QuestionSource
	ttl    time.Duration
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewQuestionCache(client *redis.Client, source app.QuestionSource, ttl time.Duration) *QuestionCache {
	return &QuestionCache{
		client: client,
		source: source,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *QuestionCache) FetchTopicManifest(ctx context.Context, grade, subject string) (domain.TopicManifest, error) {
	return c.source.FetchTopicManifest(ctx, grade, subject)
}

func (c *QuestionCache) FetchQuestions(ctx context.Context, path string) ([]domain.Question, error) {
	if qs, ok := c.cached(ctx, path); ok {
		return qs, nil
	}

	result, err, _ := c.sf.Do(path, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if qs, ok := c.cached(ctx, path); ok {
			return qs, nil
		}

		qs, err := c.source.FetchQuestions(ctx, path)
		if err != nil {
			return nil, err
		}
		if raw, err := domain.EncodeQuestions(qs); err == nil {
			_ = c.client.Set(ctx, c.key(path), raw, c.ttlWithJitter()).Err()
		}
		return qs, nil
	})
	if err != nil {
		return nil, err
	}
	return append([]domain.Question(nil), result.([]domain.Question)...), nil
}

// cached treats unreadable or undecodable entries as misses.
func (c *QuestionCache) cached(ctx context.Context, path string) ([]domain.Question, bool) {
	raw, err := c.client.Get(ctx, c.key(path)).Bytes()
	if err != nil {
		return nil, false
	}
	qs, err := domain.DecodeQuestions(raw)
	if err != nil {
		return nil, false
	}
	return qs, true
}

// Invalidate drops a cached set, e.g. after content is republished.
func (c *QuestionCache) Invalidate(ctx context.Context, path string) error {
	err := c.client.Del(ctx, c.key(path)).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}

func (c *QuestionCache) key(path string) string {
	return "questions:" + path
}

func (c *QuestionCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
