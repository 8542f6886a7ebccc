package redis

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"askia-quiz-service/internal/app"
)

// SessionStore is a Redis-aware implementation of SessionRepository.
// Sessions own timers and subscribers, so the registry itself stays in process;
// Redis carries a liveness marker per session (quiz:session:{id} -> playerID) that
// other instances and operators can inspect.
type SessionStore struct {
	client    *redis.Client
	ttl       time.Duration
	opTimeout time.Duration
	mu        sync.RWMutex
	sessions  map[string]*app.Session
}

// markerTimeout bounds each liveness write. Delete is reached from a
// finishing session while it holds its own lock.
const markerTimeout = 500 * time.Millisecond

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{
		client:    client,
		ttl:       ttl,
		opTimeout: markerTimeout,
		sessions:  make(map[string]*app.Session),
	}
}

func (s *SessionStore) Add(session *app.Session) {
	s.mu.Lock()
	s.sessions[session.ID()] = session
	s.mu.Unlock()

	// best-effort liveness marker
	ctx, cancel := context.WithTimeout(context.Background(), s.opTimeout)
	defer cancel()
	_ = s.client.Set(ctx, s.key(session.ID()), session.PlayerID(), s.ttl).Err()
}

func (s *SessionStore) Get(sessionID string) (*app.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	return session, ok
}

func (s *SessionStore) Delete(sessionID string) {
	s.mu.Lock()
	_, ok := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.opTimeout)
	defer cancel()
	_ = s.client.Del(ctx, s.key(sessionID)).Err()
}

func (s *SessionStore) key(sessionID string) string {
	return "quiz:session:" + sessionID
}
