// Package static reads question content laid out as JSON files, either from a
// filesystem tree or from a web server hosting the same tree.
package static

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"askia-quiz-service/internal/app"
	"askia-quiz-service/internal/domain"
)

// FSSource serves content from an fs.FS rooted at the content directory.
type FSSource struct {
	fsys fs.FS
}

func NewFSSource(fsys fs.FS) *FSSource {
	return &FSSource{fsys: fsys}
}

func (s *FSSource) FetchTopicManifest(_ context.Context, grade, subject string) (domain.TopicManifest, error) {
	data, err := s.read(app.ManifestPath(grade))
	if err != nil {
		return domain.TopicManifest{}, err
	}
	return pickSubject(data, grade, subject)
}

func (s *FSSource) FetchQuestions(_ context.Context, path string) ([]domain.Question, error) {
	data, err := s.read(path)
	if err != nil {
		return nil, err
	}
	return decode(path, data)
}

func (s *FSSource) read(path string) ([]byte, error) {
	data, err := fs.ReadFile(s.fsys, path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", path, domain.ErrContentNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

// HTTPSource fetches content from baseURL, e.g. https://cdn.example.org/data.
type HTTPSource struct {
	baseURL string
	client  *http.Client
}

// NewHTTPSource uses client, or a client with a 10s timeout when nil.
func NewHTTPSource(baseURL string, client *http.Client) *HTTPSource {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPSource{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func (s *HTTPSource) FetchTopicManifest(ctx context.Context, grade, subject string) (domain.TopicManifest, error) {
	data, err := s.get(ctx, app.ManifestPath(grade))
	if err != nil {
		return domain.TopicManifest{}, err
	}
	return pickSubject(data, grade, subject)
}

func (s *HTTPSource) FetchQuestions(ctx context.Context, path string) ([]domain.Question, error) {
	data, err := s.get(ctx, path)
	if err != nil {
		return nil, err
	}
	return decode(path, data)
}

func (s *HTTPSource) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/"+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%s: %w", path, domain.ErrContentNotFound)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("fetch %s: unexpected status %d", path, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

func decode(path string, data []byte) ([]domain.Question, error) {
	qs, err := domain.DecodeQuestions(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return qs, nil
}

// pickSubject extracts one subject from a grade's subjects.json.
func pickSubject(data []byte, grade, subject string) (domain.TopicManifest, error) {
	var subjects map[string]domain.TopicManifest
	if err := json.Unmarshal(data, &subjects); err != nil {
		return domain.TopicManifest{}, fmt.Errorf("decode %s: %w", app.ManifestPath(grade), err)
	}
	m, ok := subjects[subject]
	if !ok {
		return domain.TopicManifest{}, fmt.Errorf("subject %s in grade %s: %w", subject, grade, domain.ErrContentNotFound)
	}
	return m, nil
}
