package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"askia-quiz-service/internal/app"
	"askia-quiz-service/internal/domain"
)

// ContentSource serves content JSONB rows keyed by their content path.
type ContentSource struct {
	pool *pgxpool.Pool
}

func NewContentSource(pool *pgxpool.Pool) *ContentSource {
	return &ContentSource{pool: pool}
}

func (s *ContentSource) FetchTopicManifest(ctx context.Context, grade, subject string) (domain.TopicManifest, error) {
	raw, err := s.load(ctx, app.ManifestPath(grade))
	if err != nil {
		return domain.TopicManifest{}, err
	}
	var subjects map[string]domain.TopicManifest
	if err := json.Unmarshal(raw, &subjects); err != nil {
		return domain.TopicManifest{}, fmt.Errorf("unmarshal manifest: %w", err)
	}
	m, ok := subjects[subject]
	if !ok {
		return domain.TopicManifest{}, fmt.Errorf("subject %s: %w", subject, domain.ErrContentNotFound)
	}
	return m, nil
}

func (s *ContentSource) FetchQuestions(ctx context.Context, path string) ([]domain.Question, error) {
	raw, err := s.load(ctx, path)
	if err != nil {
		return nil, err
	}
	qs, err := domain.DecodeQuestions(raw)
	if err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", path, err)
	}
	return qs, nil
}

// Publish stores raw content JSON under path, replacing any previous version.
func (s *ContentSource) Publish(ctx context.Context, path string, data []byte) error {
	if !json.Valid(data) {
		return fmt.Errorf("publish %s: invalid json", path)
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO content (path, data) VALUES ($1, $2::jsonb)
		 ON CONFLICT (path) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`,
		path, string(data))
	if err != nil {
		return fmt.Errorf("publish %s: %w", path, err)
	}
	return nil
}

func (s *ContentSource) load(ctx context.Context, path string) ([]byte, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM content WHERE path=$1`, path).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", path, domain.ErrContentNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load content %s: %w", path, err)
	}
	return raw, nil
}
