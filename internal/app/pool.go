package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"askia-quiz-service/internal/domain"
	"askia-quiz-service/internal/metrics"
)

// Content paths, relative to the content root.

func ManifestPath(grade string) string {
	return fmt.Sprintf("grade_%s/subjects.json", grade)
}

func TopicPath(grade, subject, topic string) string {
	return fmt.Sprintf("grade_%s/%s/%s.json", grade, subject, topic)
}

func DefaultPath(grade, subject string) string {
	return fmt.Sprintf("grade_%s/%s.json", grade, subject)
}

func LeaguePath(grade, weekID string) string {
	return fmt.Sprintf("league/grade_%s/%s.json", grade, weekID)
}

// KindPath is the dedicated per-subject file of image-identify and sentence-builder questions.
func KindPath(grade, subject string, kind domain.QuestionKind) string {
	return fmt.Sprintf("grade_%s/%s/%s.json", grade, subject, kind)
}

// PoolLoader assembles the shuffled question sequence of a session.
type PoolLoader struct {
	source  QuestionSource
	rnd     Random
	metrics *metrics.Metrics
}

func NewPoolLoader(source QuestionSource, rnd Random, m *metrics.Metrics) *PoolLoader {
	return &PoolLoader{source: source, rnd: rnd, metrics: m}
}

// Load fetches, filters, shuffles and truncates the pool for cfg. It never returns an empty
// slice without an error; every failure is a *domain.LoadError.
func (l *PoolLoader) Load(ctx context.Context, cfg domain.SessionConfig) (questions []domain.Question, err error) {
	start := time.Now()
	defer func() { l.metrics.PoolLoaded(start, err) }()

	pool, path, err := l.fetch(ctx, cfg)
	if err != nil {
		return nil, err
	}

	pool = filterKind(pool, cfg.Kind)
	if len(pool) == 0 {
		return nil, &domain.LoadError{Path: path, Reason: "no questions available"}
	}

	l.shuffle(pool)
	if cfg.Size > 0 && len(pool) > cfg.Size {
		pool = pool[:cfg.Size]
	}
	return pool, nil
}

func (l *PoolLoader) fetch(ctx context.Context, cfg domain.SessionConfig) ([]domain.Question, string, error) {
	switch {
	case cfg.Mode == domain.ModeLeague:
		path := LeaguePath(cfg.Grade, cfg.WeekID)
		qs, err := l.fetchPath(ctx, path)
		return qs, path, err
	case cfg.Kind == domain.KindImageIdentify || cfg.Kind == domain.KindSentenceBuilder:
		path := KindPath(cfg.Grade, cfg.Subject, cfg.Kind)
		qs, err := l.fetchPath(ctx, path)
		return qs, path, err
	case cfg.Topic == domain.TopicRandom:
		qs, err := l.fetchAllTopics(ctx, cfg.Grade, cfg.Subject)
		return qs, ManifestPath(cfg.Grade), err
	case cfg.Topic == domain.TopicDefault:
		path := DefaultPath(cfg.Grade, cfg.Subject)
		qs, err := l.fetchPath(ctx, path)
		return qs, path, err
	default:
		path := TopicPath(cfg.Grade, cfg.Subject, cfg.Topic)
		qs, err := l.fetchPath(ctx, path)
		return qs, path, err
	}
}

func (l *PoolLoader) fetchPath(ctx context.Context, path string) ([]domain.Question, error) {
	qs, err := l.source.FetchQuestions(ctx, path)
	if err != nil {
		return nil, asLoadError(path, err)
	}
	return qs, nil
}

// fetchAllTopics loads every topic of the subject manifest concurrently and concatenates
// the sets in topic-ID order.
func (l *PoolLoader) fetchAllTopics(ctx context.Context, grade, subject string) ([]domain.Question, error) {
	manifest, err := l.source.FetchTopicManifest(ctx, grade, subject)
	if err != nil {
		return nil, asLoadError(ManifestPath(grade), err)
	}
	topics := make([]string, 0, len(manifest.Topics))
	for id := range manifest.Topics {
		topics = append(topics, id)
	}
	if len(topics) == 0 {
		return nil, &domain.LoadError{Path: ManifestPath(grade), Reason: fmt.Sprintf("subject %q has no topics", subject)}
	}
	sort.Strings(topics)

	sets := make([][]domain.Question, len(topics))
	g, gctx := errgroup.WithContext(ctx)
	for i, topic := range topics {
		i, path := i, TopicPath(grade, subject, topic)
		g.Go(func() error {
			qs, err := l.fetchPath(gctx, path)
			if err != nil {
				return err
			}
			sets[i] = qs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []domain.Question
	for _, set := range sets {
		all = append(all, set...)
	}
	return all, nil
}

// shuffle is a Fisher-Yates pass driven by the injected Random.
func (l *PoolLoader) shuffle(qs []domain.Question) {
	for i := len(qs) - 1; i > 0; i-- {
		j := l.rnd.Intn(i + 1)
		qs[i], qs[j] = qs[j], qs[i]
	}
}

// filterKind keeps records of the session's kind. Shared topic files mix multiple-choice and
// fill-blank records.
func filterKind(qs []domain.Question, kind domain.QuestionKind) []domain.Question {
	out := qs[:0:0]
	for _, q := range qs {
		if q.Kind() == kind {
			out = append(out, q)
		}
	}
	return out
}

func asLoadError(path string, err error) error {
	var loadErr *domain.LoadError
	if errors.As(err, &loadErr) {
		return loadErr
	}
	reason := "fetch failed"
	switch {
	case errors.Is(err, domain.ErrContentNotFound):
		reason = "content not found"
	case errors.Is(err, domain.ErrInvalidQuestion):
		reason = "invalid content"
	}
	return &domain.LoadError{Path: path, Reason: reason, Err: err}
}
