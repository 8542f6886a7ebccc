package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"askia-quiz-service/internal/app"
	"askia-quiz-service/internal/domain"
	"askia-quiz-service/internal/infra/memory"
)

func TestFocusTokensSpendUntilDepleted(t *testing.T) {
	ctx := context.Background()
	p := player("p1")
	p.FocusTokens = 1
	users := memory.NewUserStore(p)
	tokens := app.NewFocusTokens(users, 3, func() time.Time { return testDay })

	left, err := tokens.Spend(ctx, "p1")
	if err != nil || left.FocusTokens != 0 {
		t.Fatalf("expected last token spent, got %d %v", left.FocusTokens, err)
	}
	if _, err := tokens.Spend(ctx, "p1"); !errors.Is(err, domain.ErrDepleted) {
		t.Fatalf("expected depleted, got %v", err)
	}
	if _, err := tokens.Spend(ctx, "nobody"); !errors.Is(err, domain.ErrPlayerNotFound) {
		t.Fatalf("expected unknown player, got %v", err)
	}
}

func TestDailyResetSkipsSameDay(t *testing.T) {
	ctx := context.Background()
	users := &countingUsers{UserStore: memory.NewUserStore()}
	now := testDay
	tokens := app.NewFocusTokens(users, 3, func() time.Time { return now })

	p := player("p1")
	p.FocusTokens = 0
	p.LastPlayedDate = "2025-03-09"

	p, err := tokens.DailyReset(ctx, p)
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if p.FocusTokens != 3 || users.Saves() != 1 {
		t.Fatalf("expected refill and one save, got %d tokens, %d saves", p.FocusTokens, users.Saves())
	}

	p.FocusTokens = 1
	p, _ = tokens.DailyReset(ctx, p)
	if p.FocusTokens != 1 || users.Saves() != 1 {
		t.Fatalf("same-day reset must be a no-op")
	}

	now = now.Add(24 * time.Hour)
	p, _ = tokens.DailyReset(ctx, p)
	if p.FocusTokens != 3 || p.LastPlayedDate != "2025-03-11" {
		t.Fatalf("expected next-day refill, got %+v", p)
	}
}
