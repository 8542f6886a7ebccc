package memory

import (
	"context"
	"sync"

	"askia-quiz-service/internal/domain"
)

// LeagueStore holds the league ledger in memory.
type LeagueStore struct {
	mu     sync.RWMutex
	ledger domain.LeagueLedger
}

func NewLeagueStore(ledger domain.LeagueLedger) *LeagueStore {
	if ledger == nil {
		ledger = domain.LeagueLedger{}
	}
	return &LeagueStore{ledger: ledger.Clone()}
}

func (s *LeagueStore) Get(_ context.Context) (domain.LeagueLedger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ledger.Clone(), nil
}

func (s *LeagueStore) Save(_ context.Context, ledger domain.LeagueLedger) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ledger = ledger.Clone()
	return nil
}
