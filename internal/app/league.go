package app

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"askia-quiz-service/internal/domain"
	"askia-quiz-service/internal/metrics"
)

// HallOfFameSize and ChampionsPerSchool are the default leaderboard cut-offs.
const (
	HallOfFameSize     = 3
	ChampionsPerSchool = 5
)

// LeagueRecorder appends league results to the ledger. Callers check participation first;
// the recorder itself never deduplicates.
type LeagueRecorder struct {
	store   LeagueStore
	log     logrus.FieldLogger
	metrics *metrics.Metrics

	// serializes read-modify-write of the ledger within this process
	mu sync.Mutex
}

func NewLeagueRecorder(store LeagueStore, log logrus.FieldLogger, m *metrics.Metrics) *LeagueRecorder {
	return &LeagueRecorder{store: store, log: log, metrics: m}
}

// RecordScore adds the player's score to weekID and returns how the school average moved.
// An unknown week is a *domain.LedgerInconsistencyError and leaves the ledger untouched.
func (r *LeagueRecorder) RecordScore(ctx context.Context, weekID string, player domain.PlayerProgress, score int) (domain.LeagueDelta, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ledger, err := r.store.Get(ctx)
	if err != nil {
		return domain.LeagueDelta{}, fmt.Errorf("read league ledger: %w", err)
	}
	week, ok := ledger[weekID]
	if !ok || week == nil {
		r.log.WithField("week_id", weekID).Error("league week missing from ledger")
		return domain.LeagueDelta{}, &domain.LedgerInconsistencyError{WeekID: weekID}
	}
	if week.Schools == nil {
		week.Schools = make(map[string]domain.SchoolStanding)
	}

	week.IndividualScores = append(week.IndividualScores, domain.IndividualScore{
		Player: player.Username,
		School: player.School,
		Score:  score,
	})

	delta := domain.LeagueDelta{School: player.School}
	standing, exists := week.Schools[player.School]
	if exists {
		delta.OldAverage = roundAverage(standing.Average())
		standing.TotalScore += score
		standing.Participants++
	} else {
		standing = domain.SchoolStanding{City: player.City, TotalScore: score, Participants: 1}
	}
	week.Schools[player.School] = standing
	delta.NewAverage = roundAverage(standing.Average())

	if err := r.store.Save(ctx, ledger); err != nil {
		return domain.LeagueDelta{}, fmt.Errorf("save league ledger: %w", err)
	}
	r.metrics.LeagueScoreRecorded()
	return delta, nil
}

// Standings ranks schools of weekID by average score. A non-empty city restricts the
// table to that city.
func (r *LeagueRecorder) Standings(ctx context.Context, weekID, city string) ([]domain.SchoolRank, error) {
	week, err := r.week(ctx, weekID)
	if err != nil {
		return nil, err
	}
	if city == "" {
		if ranking, ok := r.store.(SchoolRanking); ok {
			if ranks, ok := r.indexedStandings(ctx, ranking, weekID, week); ok {
				return ranks, nil
			}
		}
	}

	ranks := make([]domain.SchoolRank, 0, len(week.Schools))
	for name, school := range week.Schools {
		if city != "" && school.City != city {
			continue
		}
		ranks = append(ranks, schoolRank(name, school))
	}
	sort.Slice(ranks, func(i, j int) bool {
		if ranks[i].Average != ranks[j].Average {
			return ranks[i].Average > ranks[j].Average
		}
		return ranks[i].School < ranks[j].School
	})
	for i := range ranks {
		ranks[i].Rank = i + 1
	}
	return ranks, nil
}

// indexedStandings orders the national table by the store's ranking index. It reports false
// when the index is unavailable or out of step with the ledger.
func (r *LeagueRecorder) indexedStandings(ctx context.Context, ranking SchoolRanking, weekID string, week *domain.LeagueWeek) ([]domain.SchoolRank, bool) {
	names, err := ranking.TopSchools(ctx, weekID, 0)
	if err != nil {
		r.log.WithError(err).WithField("week_id", weekID).Warn("school ranking unavailable")
		return nil, false
	}
	if len(names) != len(week.Schools) {
		return nil, false
	}
	ranks := make([]domain.SchoolRank, 0, len(names))
	for i, name := range names {
		school, ok := week.Schools[name]
		if !ok {
			return nil, false
		}
		rank := schoolRank(name, school)
		rank.Rank = i + 1
		ranks = append(ranks, rank)
	}
	return ranks, true
}

func schoolRank(name string, school domain.SchoolStanding) domain.SchoolRank {
	return domain.SchoolRank{
		School:       name,
		City:         school.City,
		Average:      roundAverage(school.Average()),
		Participants: school.Participants,
	}
}

// TopScores returns the best individual scores of weekID, optionally for one school.
// A non-positive limit returns every score.
func (r *LeagueRecorder) TopScores(ctx context.Context, weekID, school string, limit int) ([]domain.IndividualScore, error) {
	week, err := r.week(ctx, weekID)
	if err != nil {
		return nil, err
	}
	scores := make([]domain.IndividualScore, 0, len(week.IndividualScores))
	for _, s := range week.IndividualScores {
		if school == "" || s.School == school {
			scores = append(scores, s)
		}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].Score > scores[j].Score })
	if limit > 0 && len(scores) > limit {
		scores = scores[:limit]
	}
	return scores, nil
}

func (r *LeagueRecorder) week(ctx context.Context, weekID string) (*domain.LeagueWeek, error) {
	ledger, err := r.store.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("read league ledger: %w", err)
	}
	week, ok := ledger[weekID]
	if !ok || week == nil {
		return nil, &domain.LedgerInconsistencyError{WeekID: weekID}
	}
	return week, nil
}

func roundAverage(v float64) float64 {
	return math.Round(v*100) / 100
}
