package app_test

import (
	"context"
	"errors"
	"testing"

	"askia-quiz-service/internal/app"
	"askia-quiz-service/internal/domain"
	"askia-quiz-service/internal/infra/memory"
	"askia-quiz-service/internal/logger"
)

func TestRecordScoreInsertsNewSchool(t *testing.T) {
	ctx := context.Background()
	store := memory.NewLeagueStore(domain.SampleLeagueLedger())
	recorder := app.NewLeagueRecorder(store, logger.Discard(), nil)

	p := domain.NewPlayerProgress("p2", "Awa")
	p.School = "Lycée de Kayes"
	p.City = "Kayes"
	delta, err := recorder.RecordScore(ctx, "week_1", p, 7)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if delta.OldAverage != 0 || delta.NewAverage != 7 {
		t.Fatalf("expected new school at 7, got %+v", delta)
	}

	ledger, _ := store.Get(ctx)
	school := ledger["week_1"].Schools["Lycée de Kayes"]
	if school.City != "Kayes" || school.TotalScore != 7 || school.Participants != 1 {
		t.Fatalf("expected seeded school entry, got %+v", school)
	}
}

func TestRecordScoreUnknownWeekLeavesLedgerUntouched(t *testing.T) {
	ctx := context.Background()
	store := memory.NewLeagueStore(domain.SampleLeagueLedger())
	recorder := app.NewLeagueRecorder(store, logger.Discard(), nil)

	_, err := recorder.RecordScore(ctx, "week_404", domain.NewPlayerProgress("p1", "x"), 5)
	var ledgerErr *domain.LedgerInconsistencyError
	if !errors.As(err, &ledgerErr) || ledgerErr.WeekID != "week_404" {
		t.Fatalf("expected ledger inconsistency, got %v", err)
	}
	ledger, _ := store.Get(ctx)
	if len(ledger) != 1 || len(ledger["week_1"].IndividualScores) != 6 {
		t.Fatalf("ledger changed on failure")
	}
}

func TestStandingsRankByAverage(t *testing.T) {
	recorder := app.NewLeagueRecorder(memory.NewLeagueStore(domain.SampleLeagueLedger()), logger.Discard(), nil)

	ranks, err := recorder.Standings(context.Background(), "week_1", "")
	if err != nil {
		t.Fatalf("standings: %v", err)
	}
	// averages 8.75, 8.5, 8.33, 8.0, 7.92
	want := []string{"École Liberté", "École Pilote", "Le Flamboyant", "Lycée Askia", "Gao International School"}
	if len(ranks) != len(want) {
		t.Fatalf("expected %d schools, got %d", len(want), len(ranks))
	}
	for i, name := range want {
		if ranks[i].School != name || ranks[i].Rank != i+1 {
			t.Fatalf("rank %d: expected %s, got %+v", i+1, name, ranks[i])
		}
	}

	bamako, _ := recorder.Standings(context.Background(), "week_1", "Bamako")
	if len(bamako) != 2 || bamako[0].School != "Le Flamboyant" || bamako[0].Average != 8.33 {
		t.Fatalf("expected Bamako table led by Le Flamboyant at 8.33, got %+v", bamako)
	}
}

func TestTopScores(t *testing.T) {
	recorder := app.NewLeagueRecorder(memory.NewLeagueStore(domain.SampleLeagueLedger()), logger.Discard(), nil)
	ctx := context.Background()

	top, err := recorder.TopScores(ctx, "week_1", "", app.HallOfFameSize)
	if err != nil {
		t.Fatalf("top: %v", err)
	}
	if len(top) != 3 || top[0].Player != "Aïcha" || top[1].Player != "Moussa" || top[2].Player != "hamza" {
		t.Fatalf("unexpected hall of fame %+v", top)
	}

	champions, _ := recorder.TopScores(ctx, "week_1", "École Pilote", app.ChampionsPerSchool)
	if len(champions) != 2 || champions[0].Score != 9 {
		t.Fatalf("unexpected champions %+v", champions)
	}

	if _, err := recorder.TopScores(ctx, "week_9", "", 3); !errors.Is(err, domain.ErrLedgerInconsistency) {
		t.Fatalf("expected unknown week error, got %v", err)
	}
}

type rankedLeague struct {
	*memory.LeagueStore
	order []string
	err   error
}

func (l *rankedLeague) TopSchools(_ context.Context, _ string, _ int64) ([]string, error) {
	return l.order, l.err
}

func TestStandingsFollowStoreRanking(t *testing.T) {
	ctx := context.Background()
	// reverse of the average order, so only the index could produce it
	order := []string{"Gao International School", "Le Flamboyant", "Lycée Askia", "École Pilote", "École Liberté"}
	store := &rankedLeague{LeagueStore: memory.NewLeagueStore(domain.SampleLeagueLedger()), order: order}
	recorder := app.NewLeagueRecorder(store, logger.Discard(), nil)

	ranks, err := recorder.Standings(ctx, "week_1", "")
	if err != nil {
		t.Fatalf("standings: %v", err)
	}
	for i, name := range order {
		if ranks[i].School != name || ranks[i].Rank != i+1 {
			t.Fatalf("rank %d: expected %s, got %+v", i+1, name, ranks[i])
		}
	}
	if ranks[3].Average != 8.5 || ranks[3].Participants != 10 || ranks[3].City != "Gao" {
		t.Fatalf("ranked rows must carry ledger figures, got %+v", ranks[3])
	}

	regional, _ := recorder.Standings(ctx, "week_1", "Gao")
	if len(regional) != 2 || regional[0].School != "École Pilote" {
		t.Fatalf("city tables rank from the ledger, got %+v", regional)
	}
}

func TestStandingsIgnoreStaleRanking(t *testing.T) {
	ctx := context.Background()
	stale := &rankedLeague{LeagueStore: memory.NewLeagueStore(domain.SampleLeagueLedger()), order: []string{"École Pilote"}}
	failing := &rankedLeague{LeagueStore: memory.NewLeagueStore(domain.SampleLeagueLedger()), err: errors.New("connection refused")}

	for name, store := range map[string]*rankedLeague{"stale": stale, "failing": failing} {
		ranks, err := app.NewLeagueRecorder(store, logger.Discard(), nil).Standings(ctx, "week_1", "")
		if err != nil {
			t.Fatalf("%s: standings: %v", name, err)
		}
		if len(ranks) != 5 || ranks[0].School != "École Liberté" {
			t.Fatalf("%s: expected the ledger ranking, got %+v", name, ranks)
		}
	}
}
