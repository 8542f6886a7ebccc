package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"askia-quiz-service/internal/domain"
)

// LeagueStore keeps the ledger as one hash field per week and mirrors school averages
// into a sorted set per week for ranking:
//
//	HSET league:weeks {weekID} {json}
//	ZADD league:{weekID}:schools {average} {school}
type LeagueStore struct {
	client *redis.Client
}

func NewLeagueStore(client *redis.Client) *LeagueStore {
	return &LeagueStore{client: client}
}

const weeksKey = "league:weeks"

func (s *LeagueStore) Get(ctx context.Context) (domain.LeagueLedger, error) {
	fields, err := s.client.HGetAll(ctx, weeksKey).Result()
	if err != nil {
		return nil, fmt.Errorf("get league ledger: %w", err)
	}
	ledger := make(domain.LeagueLedger, len(fields))
	for weekID, raw := range fields {
		var week domain.LeagueWeek
		if err := json.Unmarshal([]byte(raw), &week); err != nil {
			return nil, fmt.Errorf("decode league week %s: %w", weekID, err)
		}
		ledger[weekID] = &week
	}
	return ledger, nil
}

// Save writes every week and refreshes its ranking set in one transaction.
func (s *LeagueStore) Save(ctx context.Context, ledger domain.LeagueLedger) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for weekID, week := range ledger {
			if week == nil {
				continue
			}
			raw, err := json.Marshal(week)
			if err != nil {
				return fmt.Errorf("encode league week %s: %w", weekID, err)
			}
			pipe.HSet(ctx, weeksKey, weekID, raw)
			queueRanking(ctx, pipe, weekID, week)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save league ledger: %w", err)
	}
	return nil
}

// Seed stores ledger weeks that are not present yet.
func (s *LeagueStore) Seed(ctx context.Context, ledger domain.LeagueLedger) error {
	for weekID, week := range ledger {
		raw, err := json.Marshal(week)
		if err != nil {
			return fmt.Errorf("encode league week %s: %w", weekID, err)
		}
		added, err := s.client.HSetNX(ctx, weeksKey, weekID, raw).Result()
		if err != nil {
			return fmt.Errorf("seed league week %s: %w", weekID, err)
		}
		if added {
			pipe := s.client.Pipeline()
			queueRanking(ctx, pipe, weekID, week)
			if _, err := pipe.Exec(ctx); err != nil {
				return fmt.Errorf("seed league ranking %s: %w", weekID, err)
			}
		}
	}
	return nil
}

// TopSchools returns up to limit school names of weekID, best average first and equal
// averages by name. A non-positive limit returns every school.
func (s *LeagueStore) TopSchools(ctx context.Context, weekID string, limit int64) ([]string, error) {
	ranked, err := s.client.ZRevRangeWithScores(ctx, rankingKey(weekID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("rank schools %s: %w", weekID, err)
	}
	// ZREVRANGE orders equal scores by descending member
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return fmt.Sprint(ranked[i].Member) < fmt.Sprint(ranked[j].Member)
	})
	if limit > 0 && int64(len(ranked)) > limit {
		ranked = ranked[:limit]
	}
	schools := make([]string, 0, len(ranked))
	for _, z := range ranked {
		schools = append(schools, fmt.Sprint(z.Member))
	}
	return schools, nil
}

func queueRanking(ctx context.Context, pipe redis.Pipeliner, weekID string, week *domain.LeagueWeek) {
	key := rankingKey(weekID)
	pipe.Del(ctx, key)
	members := make([]redis.Z, 0, len(week.Schools))
	for name, school := range week.Schools {
		members = append(members, redis.Z{Score: school.Average(), Member: name})
	}
	if len(members) > 0 {
		pipe.ZAdd(ctx, key, members...)
	}
}

func rankingKey(weekID string) string {
	return "league:" + weekID + ":schools"
}
