package memory

import (
	"context"
	"sync"

	"askia-quiz-service/internal/domain"
)

// UserStore keeps player progress in a map. Records are cloned on the way in and out.
type UserStore struct {
	mu      sync.RWMutex
	players map[string]domain.PlayerProgress
}

func NewUserStore(players ...domain.PlayerProgress) *UserStore {
	s := &UserStore{players: make(map[string]domain.PlayerProgress)}
	for _, p := range players {
		s.players[p.PlayerID] = p.Clone()
	}
	return s
}

func (s *UserStore) Get(_ context.Context, playerID string) (domain.PlayerProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.players[playerID]
	if !ok {
		return domain.PlayerProgress{}, domain.ErrPlayerNotFound
	}
	return p.Clone(), nil
}

func (s *UserStore) Save(_ context.Context, progress domain.PlayerProgress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.players[progress.PlayerID] = progress.Clone()
	return nil
}
