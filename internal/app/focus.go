package app

import (
	"context"
	"fmt"
	"time"

	"askia-quiz-service/internal/domain"
)

// FocusTokens manages the daily focus-token quota stored on player progress.
type FocusTokens struct {
	users UserStore
	quota int
	now   func() time.Time
}

func NewFocusTokens(users UserStore, quota int, now func() time.Time) *FocusTokens {
	if now == nil {
		now = time.Now
	}
	return &FocusTokens{users: users, quota: quota, now: now}
}

// DailyReset refills the quota the first time the player shows up on a new calendar day.
// It saves only when the date changed, so repeated sessions on the same day are no-ops.
func (f *FocusTokens) DailyReset(ctx context.Context, progress domain.PlayerProgress) (domain.PlayerProgress, error) {
	today := domain.Today(f.now())
	if progress.LastPlayedDate == today {
		return progress, nil
	}
	progress.FocusTokens = f.quota
	progress.LastPlayedDate = today
	if err := f.users.Save(ctx, progress); err != nil {
		return progress, fmt.Errorf("daily focus reset: %w", err)
	}
	return progress, nil
}

// Spend consumes one token from the freshly read record and persists it.
func (f *FocusTokens) Spend(ctx context.Context, playerID string) (domain.PlayerProgress, error) {
	progress, err := f.users.Get(ctx, playerID)
	if err != nil {
		return domain.PlayerProgress{}, err
	}
	if progress.FocusTokens <= 0 {
		return progress, domain.ErrDepleted
	}
	progress.FocusTokens--
	if err := f.users.Save(ctx, progress); err != nil {
		return progress, fmt.Errorf("spend focus token: %w", err)
	}
	return progress, nil
}
