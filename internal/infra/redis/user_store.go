package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"askia-quiz-service/internal/domain"
)

// UserStore keeps one JSON document per player: SET player:{playerID} {json}
type UserStore struct {
	client *redis.Client
}

func NewUserStore(client *redis.Client) *UserStore {
	return &UserStore{client: client}
}

func (s *UserStore) Get(ctx context.Context, playerID string) (domain.PlayerProgress, error) {
	raw, err := s.client.Get(ctx, playerKey(playerID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.PlayerProgress{}, domain.ErrPlayerNotFound
	}
	if err != nil {
		return domain.PlayerProgress{}, fmt.Errorf("get player %s: %w", playerID, err)
	}
	var p domain.PlayerProgress
	if err := json.Unmarshal(raw, &p); err != nil {
		return domain.PlayerProgress{}, fmt.Errorf("decode player %s: %w", playerID, err)
	}
	return p, nil
}

func (s *UserStore) Save(ctx context.Context, progress domain.PlayerProgress) error {
	raw, err := json.Marshal(progress)
	if err != nil {
		return fmt.Errorf("encode player %s: %w", progress.PlayerID, err)
	}
	if err := s.client.Set(ctx, playerKey(progress.PlayerID), raw, 0).Err(); err != nil {
		return fmt.Errorf("save player %s: %w", progress.PlayerID, err)
	}
	return nil
}

func playerKey(playerID string) string {
	return "player:" + playerID
}
