package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"askia-quiz-service/internal/app"
	"askia-quiz-service/internal/domain"
)

const algebraPath = "grade_6/maths/algebra.json"

func standardParams() app.SessionParams {
	return app.SessionParams{Mode: "standard", Grade: "6", Subject: "maths", Topic: "algebra"}
}

func TestStandardSessionAllCorrect(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, map[string][]domain.Question{algebraPath: choiceSet("q", 12)}, player("p1"))

	session, err := h.service.Start(ctx, "p1", standardParams())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if got := session.Snapshot().Total; got != 10 {
		t.Fatalf("expected pool truncated to 10, got %d", got)
	}

	feedback := h.answerAll(t, session, correctChoice)
	if session.Lifecycle() != domain.LifecycleCompleted {
		t.Fatalf("expected completed, got %s", session.Lifecycle())
	}

	var jackpots, streakBonuses int
	for _, fb := range feedback {
		xp := fb.XPAwarded - 10 - 15
		if fb.Streak%3 == 0 {
			xp -= fb.Streak * 5
			streakBonuses++
		}
		if xp == 50 {
			jackpots++
		} else if xp != 0 {
			t.Fatalf("unexpected award on question %d: %+v", fb.Index, fb)
		}
	}
	if jackpots != 1 || streakBonuses != 3 {
		t.Fatalf("expected one jackpot and three streak bonuses, got %d and %d", jackpots, streakBonuses)
	}

	result := session.Snapshot().Result
	if result == nil || result.Score != 10 || result.XPEarned != 390 {
		t.Fatalf("expected score 10 and 390 xp, got %+v", result)
	}
	if result.OrbsEarned != 20+50 {
		t.Fatalf("expected performance and first-completion orbs, got %d", result.OrbsEarned)
	}
	if result.NewLevel == nil || *result.NewLevel != 3 {
		t.Fatalf("expected level 3, got %+v", result.NewLevel)
	}

	p := h.progress(t, "p1")
	if p.Level != 3 || p.XP != 140 || p.XPToNextLevel != 225 {
		t.Fatalf("expected level 3 with 140/225, got %d with %d/%d", p.Level, p.XP, p.XPToNextLevel)
	}
	if len(p.CompletedQuizzes) != 1 || p.CurrentStreak != 10 {
		t.Fatalf("expected one completion and streak 10, got %+v", p)
	}

	again, err := h.service.Start(ctx, "p1", standardParams())
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	h.answerAll(t, again, correctChoice)
	if r := again.Snapshot().Result; r == nil || r.OrbsEarned != 20 {
		t.Fatalf("first-completion bonus must not repeat, got %+v", r)
	}
	if p := h.progress(t, "p1"); len(p.CompletedQuizzes) != 1 {
		t.Fatalf("expected completion list unchanged, got %v", p.CompletedQuizzes)
	}
}

func TestGuestSessionHasNoPersistence(t *testing.T) {
	h := newHarness(t, map[string][]domain.Question{algebraPath: choiceSet("q", 5)})

	session, err := h.service.Start(context.Background(), "", app.SessionParams{Mode: "guest", Grade: "6", Subject: "maths", Topic: "algebra"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	h.answerAll(t, session, func(i int) domain.Answer {
		if i < 3 {
			return correctChoice(i)
		}
		return wrongChoice(i)
	})

	result := session.Snapshot().Result
	if result == nil || result.XPEarned != 30 || result.OrbsEarned != 0 {
		t.Fatalf("expected 30 xp and no orbs, got %+v", result)
	}
	if h.users.Saves() != 0 {
		t.Fatalf("guest sessions must not touch the user store, saves=%d", h.users.Saves())
	}
	if err := session.Pause(); !errors.Is(err, domain.ErrPauseUnavailable) {
		t.Fatalf("expected pause unavailable, got %v", err)
	}
}

func TestLeagueAlreadyParticipatedNeverLoads(t *testing.T) {
	p := player("p1")
	p.MarkParticipated("week_1")
	h := newHarness(t, map[string][]domain.Question{"league/grade_6/week_1.json": choiceSet("l", 10)}, p)

	session, err := h.service.Start(context.Background(), "p1", app.SessionParams{Mode: "league", Week: "week_1"})
	if !errors.Is(err, domain.ErrAlreadyParticipated) || session != nil {
		t.Fatalf("expected already participated without a session, got %v %v", session, err)
	}
	if h.source.Calls() != 0 {
		t.Fatalf("question source must not be reached, calls=%d", h.source.Calls())
	}
}

func TestLeagueParticipationIsRecordedOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, map[string][]domain.Question{"league/grade_6/week_1.json": choiceSet("l", 10)}, player("p1"))

	session, err := h.service.Start(ctx, "p1", app.SessionParams{Mode: "league", Week: "week_1"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	h.answerAll(t, session, func(i int) domain.Answer {
		if i < 9 {
			return correctChoice(i)
		}
		return wrongChoice(i)
	})

	result := session.Snapshot().Result
	if result == nil || result.LeagueDelta == nil {
		t.Fatalf("expected league delta, got %+v", result)
	}
	if result.LeagueDelta.OldAverage != 8.5 || result.LeagueDelta.NewAverage != 8.55 {
		t.Fatalf("expected 8.5 -> 8.55, got %+v", result.LeagueDelta)
	}
	if result.XPEarned != 90 || result.OrbsEarned != 18 {
		t.Fatalf("expected flat league rewards, got %+v", result)
	}
	if !h.progress(t, "p1").Participated("week_1") {
		t.Fatalf("expected participation recorded")
	}

	if _, err := h.service.Start(ctx, "p1", app.SessionParams{Mode: "league", Week: "week_1"}); !errors.Is(err, domain.ErrAlreadyParticipated) {
		t.Fatalf("expected second attempt rejected, got %v", err)
	}
	ledger, _ := h.league.Get(ctx)
	if n := len(ledger["week_1"].IndividualScores); n != 7 {
		t.Fatalf("expected exactly one new score, got %d entries", n)
	}
}

func TestLeagueSaveFailureBeforeLedgerAllowsOneReplay(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, map[string][]domain.Question{"league/grade_6/week_1.json": choiceSet("l", 3)}, player("p1"))

	session, err := h.service.Start(ctx, "p1", app.SessionParams{Mode: "league", Week: "week_1"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	h.users.failSaves(errors.New("disk full"), 0)
	h.answerAll(t, session, correctChoice)

	if session.Lifecycle() != domain.LifecycleFailed {
		t.Fatalf("expected failed, got %s", session.Lifecycle())
	}
	if got := schoolParticipants(t, h, "week_1", "École Pilote"); got != 10 {
		t.Fatalf("ledger must be untouched after a failed save, participants=%d", got)
	}

	h.users.failSaves(nil, 0)
	replay, err := h.service.Start(ctx, "p1", app.SessionParams{Mode: "league", Week: "week_1"})
	if err != nil {
		t.Fatalf("replay start: %v", err)
	}
	h.answerAll(t, replay, correctChoice)
	if replay.Lifecycle() != domain.LifecycleCompleted {
		t.Fatalf("expected replay to complete, got %s (%v)", replay.Lifecycle(), replay.Err())
	}
	if got := schoolParticipants(t, h, "week_1", "École Pilote"); got != 11 {
		t.Fatalf("expected exactly one recorded entry, participants=%d", got)
	}
}

func TestLeagueSaveFailureAfterLedgerBlocksReplay(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, map[string][]domain.Question{"league/grade_6/week_1.json": choiceSet("l", 3)}, player("p1"))

	session, err := h.service.Start(ctx, "p1", app.SessionParams{Mode: "league", Week: "week_1"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	// the participation claim succeeds, the reward save after the ledger write fails
	h.users.failSaves(errors.New("disk full"), h.users.Saves()+2)
	h.answerAll(t, session, correctChoice)

	if session.Lifecycle() != domain.LifecycleFailed {
		t.Fatalf("expected failed, got %s", session.Lifecycle())
	}
	if got := schoolParticipants(t, h, "week_1", "École Pilote"); got != 11 {
		t.Fatalf("expected the score recorded once, participants=%d", got)
	}

	h.users.failSaves(nil, 0)
	if _, err := h.service.Start(ctx, "p1", app.SessionParams{Mode: "league", Week: "week_1"}); !errors.Is(err, domain.ErrAlreadyParticipated) {
		t.Fatalf("expected replay rejected, got %v", err)
	}
	if got := schoolParticipants(t, h, "week_1", "École Pilote"); got != 11 {
		t.Fatalf("replay must not record again, participants=%d", got)
	}
}

func TestLeagueUnknownWeekFailsExplicitly(t *testing.T) {
	h := newHarness(t, map[string][]domain.Question{"league/grade_6/week_9.json": choiceSet("l", 1)}, player("p1"))

	session, err := h.service.Start(context.Background(), "p1", app.SessionParams{Mode: "league", Week: "week_9"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	h.answerAll(t, session, correctChoice)

	if session.Lifecycle() != domain.LifecycleFailed || !errors.Is(session.Err(), domain.ErrLedgerInconsistency) {
		t.Fatalf("expected ledger inconsistency, got %s %v", session.Lifecycle(), session.Err())
	}
	if session.Snapshot().Result != nil {
		t.Fatalf("a failed league session has no result")
	}
	if h.progress(t, "p1").Participated("week_9") {
		t.Fatalf("participation must not be set when recording failed")
	}
}

func TestFocusTokenReplacesTimeBonus(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, map[string][]domain.Question{algebraPath: choiceSet("q", 2)}, player("p1"))

	session, err := h.service.Start(ctx, "p1", standardParams())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	h.clock.Advance(7 * time.Second)
	view := session.Snapshot()
	if view.Remaining != 8 {
		t.Fatalf("expected 8 seconds left, got %d", view.Remaining)
	}

	tokens, err := h.service.UseFocusToken(ctx, session.ID())
	if err != nil || tokens != 2 {
		t.Fatalf("expected 2 tokens left, got %d %v", tokens, err)
	}
	if _, err := h.service.UseFocusToken(ctx, session.ID()); !errors.Is(err, domain.ErrFocusAlreadyUsed) {
		t.Fatalf("expected one token per question, got %v", err)
	}

	h.clock.Advance(time.Minute)
	if session.Lifecycle() != domain.LifecycleAwaitingAnswer {
		t.Fatalf("suspended timer must not expire, got %s", session.Lifecycle())
	}

	fb, err := session.Submit(ctx, correctChoice(0))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	want := 10 + 5
	if view.Question.Jackpot {
		want += 50
	}
	if fb.XPAwarded != want {
		t.Fatalf("expected %d xp with focus bonus, got %d", want, fb.XPAwarded)
	}
	if p := h.progress(t, "p1"); p.FocusTokens != 2 {
		t.Fatalf("expected token persisted, got %d", p.FocusTokens)
	}
}

func TestResumeKeepsFocusSuspension(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, map[string][]domain.Question{algebraPath: choiceSet("q", 2)}, player("p1"))

	session, err := h.service.Start(ctx, "p1", standardParams())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	h.clock.Advance(3 * time.Second)
	if _, err := session.UseFocusToken(ctx); err != nil {
		t.Fatalf("focus: %v", err)
	}
	if err := session.Pause(); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if err := session.Resume(); err != nil {
		t.Fatalf("resume: %v", err)
	}

	h.clock.Advance(time.Minute)
	view := session.Snapshot()
	if view.Lifecycle != domain.LifecycleAwaitingAnswer || !view.TimerSuspended {
		t.Fatalf("expected a suspended timer after resume, got %s suspended=%v", view.Lifecycle, view.TimerSuspended)
	}
	if view.Remaining != 12 {
		t.Fatalf("expected 12 seconds frozen, got %d", view.Remaining)
	}
}

func TestFocusTokenDepleted(t *testing.T) {
	p := player("p1")
	p.FocusTokens = 0
	h := newHarness(t, map[string][]domain.Question{algebraPath: choiceSet("q", 2)}, p)

	session, err := h.service.Start(context.Background(), "p1", standardParams())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := session.UseFocusToken(context.Background()); !errors.Is(err, domain.ErrDepleted) {
		t.Fatalf("expected depleted, got %v", err)
	}
	if session.Snapshot().TimerSuspended {
		t.Fatalf("a rejected token must not suspend the timer")
	}
}

func TestDailyResetRefillsOncePerDay(t *testing.T) {
	ctx := context.Background()
	p := player("p1")
	p.FocusTokens = 0
	p.LastPlayedDate = "2025-03-09"
	h := newHarness(t, map[string][]domain.Question{algebraPath: choiceSet("q", 2)}, p)

	first, err := h.service.Start(ctx, "p1", standardParams())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := first.UseFocusToken(ctx); err != nil {
		t.Fatalf("focus: %v", err)
	}
	first.Quit()

	if _, err := h.service.Start(ctx, "p1", standardParams()); err != nil {
		t.Fatalf("restart: %v", err)
	}
	got := h.progress(t, "p1")
	if got.FocusTokens != 2 || got.LastPlayedDate != "2025-03-10" {
		t.Fatalf("expected a single reset today, got tokens=%d date=%s", got.FocusTokens, got.LastPlayedDate)
	}
}

func TestPauseFreezesTimer(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, map[string][]domain.Question{algebraPath: choiceSet("q", 2)}, player("p1"))

	session, err := h.service.Start(ctx, "p1", standardParams())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	h.clock.Advance(5 * time.Second)
	if err := h.service.Pause(ctx, session.ID()); err != nil {
		t.Fatalf("pause: %v", err)
	}
	h.clock.Advance(time.Minute)
	if view := session.Snapshot(); view.Lifecycle != domain.LifecyclePaused || view.Remaining != 10 {
		t.Fatalf("expected paused at 10, got %s at %d", view.Lifecycle, view.Remaining)
	}
	if _, err := session.Submit(ctx, correctChoice(0)); !errors.Is(err, domain.ErrNotAwaitingAnswer) {
		t.Fatalf("paused sessions reject answers, got %v", err)
	}

	if err := h.service.Resume(ctx, session.ID()); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if err := h.service.Resume(ctx, session.ID()); !errors.Is(err, domain.ErrNotPaused) {
		t.Fatalf("expected not paused, got %v", err)
	}
	h.clock.Advance(10 * time.Second)
	view := session.Snapshot()
	if view.Lifecycle != domain.LifecycleTransitioning || view.Streak != 0 {
		t.Fatalf("expected timeout after resuming, got %+v", view)
	}
	if p := h.progress(t, "p1"); p.FocusTokens != 3 {
		t.Fatalf("pausing must not spend tokens, got %d", p.FocusTokens)
	}
}

func TestTimeoutCountsAsIncorrect(t *testing.T) {
	h := newHarness(t, map[string][]domain.Question{algebraPath: choiceSet("q", 2)}, player("p1"))

	session, err := h.service.Start(context.Background(), "p1", standardParams())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	events, cancel, err := h.service.Subscribe(context.Background(), session.ID())
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()
	<-events // snapshot

	h.clock.Advance(15 * time.Second)

	var feedback *app.Feedback
	for len(events) > 0 {
		ev := <-events
		if ev.Type == app.EventFeedback {
			feedback = ev.Feedback
		}
	}
	if feedback == nil || !feedback.TimedOut || feedback.Correct || feedback.XPAwarded != 0 {
		t.Fatalf("expected a timeout feedback, got %+v", feedback)
	}

	h.clock.Advance(2 * time.Second)
	if view := session.Snapshot(); view.Index != 1 || view.Remaining != 15 {
		t.Fatalf("expected a fresh second question, got index %d remaining %d", view.Index, view.Remaining)
	}
}

func TestQuitDropsPendingRewards(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, map[string][]domain.Question{algebraPath: choiceSet("q", 1)}, player("p1"))

	session, err := h.service.Start(ctx, "p1", standardParams())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := session.Submit(ctx, correctChoice(0)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := h.service.Quit(ctx, session.ID()); err != nil {
		t.Fatalf("quit: %v", err)
	}
	h.clock.Advance(time.Minute)

	if session.Lifecycle() != domain.LifecycleAbandoned {
		t.Fatalf("expected abandoned, got %s", session.Lifecycle())
	}
	if h.clock.Pending() != 0 {
		t.Fatalf("quit must release timers, %d pending", h.clock.Pending())
	}
	if p := h.progress(t, "p1"); len(p.CompletedQuizzes) != 0 || p.Orbs != 0 {
		t.Fatalf("end-of-session rewards must not flush, got %+v", p)
	}
	if _, err := h.service.Session(session.ID()); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected session discarded, got %v", err)
	}
}

func TestStartRejectsBadParameters(t *testing.T) {
	h := newHarness(t, nil, player("p1"))
	cases := []struct {
		params app.SessionParams
		field  string
	}{
		{params: app.SessionParams{Mode: "standard", Grade: "6", Topic: "algebra"}, field: "subject"},
		{params: app.SessionParams{Mode: "league"}, field: "week"},
		{params: app.SessionParams{Mode: "arcade", Grade: "6", Subject: "maths", Topic: "x"}, field: "mode"},
		{params: app.SessionParams{Grade: "6", Subject: "maths", Topic: "x"}, field: "mode"},
	}
	for _, tc := range cases {
		_, err := h.service.Start(context.Background(), "p1", tc.params)
		var cfgErr *domain.ConfigError
		if !errors.As(err, &cfgErr) || cfgErr.Field != tc.field {
			t.Fatalf("%+v: expected config error on %s, got %v", tc.params, tc.field, err)
		}
	}
	if h.source.Calls() != 0 || h.sessions.Len() != 0 {
		t.Fatalf("invalid parameters must not load or register anything")
	}
}

func TestStartRequiresKnownPlayer(t *testing.T) {
	h := newHarness(t, map[string][]domain.Question{algebraPath: choiceSet("q", 2)})
	if _, err := h.service.Start(context.Background(), "ghost", standardParams()); !errors.Is(err, domain.ErrPlayerNotFound) {
		t.Fatalf("expected player not found, got %v", err)
	}
}

func TestStartFailsOnLoadError(t *testing.T) {
	h := newHarness(t, nil, player("p1"))

	session, err := h.service.Start(context.Background(), "p1", standardParams())
	if !errors.Is(err, domain.ErrLoad) || !errors.Is(err, domain.ErrContentNotFound) {
		t.Fatalf("expected load error wrapping not found, got %v", err)
	}
	if session == nil || session.Lifecycle() != domain.LifecycleFailed {
		t.Fatalf("expected failed session")
	}
	if h.sessions.Len() != 0 {
		t.Fatalf("failed sessions are not registered")
	}
}

func TestPersistenceFailureFailsSession(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, map[string][]domain.Question{algebraPath: choiceSet("q", 2)}, player("p1"))

	session, err := h.service.Start(ctx, "p1", standardParams())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	h.users.fail = errors.New("disk full")
	if _, err := session.Submit(ctx, correctChoice(0)); err == nil {
		t.Fatalf("expected save failure to surface")
	}
	if session.Lifecycle() != domain.LifecycleFailed {
		t.Fatalf("expected failed, got %s", session.Lifecycle())
	}
}

func TestSubmitRejectsMismatchedAnswer(t *testing.T) {
	h := newHarness(t, map[string][]domain.Question{algebraPath: choiceSet("q", 2)}, player("p1"))

	session, err := h.service.Start(context.Background(), "p1", standardParams())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := session.Submit(context.Background(), domain.TextAnswer{Text: "yes"}); !errors.Is(err, domain.ErrAnswerMismatch) {
		t.Fatalf("expected mismatch, got %v", err)
	}
	if _, err := session.Submit(context.Background(), domain.ChoiceAnswer{Index: 7}); !errors.Is(err, domain.ErrOptionNotFound) {
		t.Fatalf("expected option not found, got %v", err)
	}
	if session.Lifecycle() != domain.LifecycleAwaitingAnswer {
		t.Fatalf("rejected answers must not change state")
	}
}

func TestClaimGuestRewards(t *testing.T) {
	h := newHarness(t, nil, player("p1"))

	p, err := h.service.ClaimGuestRewards(context.Background(), "p1", 130, 14)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if p.Level != 2 || p.XP != 30 || p.Orbs != 14 {
		t.Fatalf("expected level 2 with 30 xp and 14 orbs, got %+v", p)
	}
	if _, err := h.service.ClaimGuestRewards(context.Background(), "p1", -1, 0); !errors.Is(err, domain.ErrConfig) {
		t.Fatalf("expected negative claim rejected, got %v", err)
	}
}

func TestRegisterThenStart(t *testing.T) {
	h := newHarness(t, map[string][]domain.Question{"grade_6/maths/algebra.json": choiceSet("q", 2)})
	ctx := context.Background()

	profile := app.Profile{Username: "awa", School: "Lycée Askia", City: "Bamako", DefaultGrade: "6"}
	p, err := h.service.Register(ctx, "new", profile)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if p.LastPlayedDate != domain.Today(testDay) || p.FocusTokens != 3 {
		t.Fatalf("unexpected fresh record %+v", p)
	}
	if _, err := h.service.Register(ctx, "new", profile); !errors.Is(err, domain.ErrPlayerExists) {
		t.Fatalf("expected ErrPlayerExists, got %v", err)
	}
	missingSchool := profile
	missingSchool.School = ""
	_, err = h.service.Register(ctx, "other", missingSchool)
	var cfgErr *domain.ConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Field != "school" {
		t.Fatalf("expected a config error on school, got %v", err)
	}
	if _, err := h.users.Get(ctx, "other"); !errors.Is(err, domain.ErrPlayerNotFound) {
		t.Fatalf("an invalid profile must not be stored, got %v", err)
	}

	session, err := h.service.Start(ctx, "new", app.SessionParams{Grade: "6", Subject: "maths", Topic: "algebra", Mode: "standard"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if session.Lifecycle() != domain.LifecycleAwaitingAnswer {
		t.Fatalf("expected an armed session, got %s", session.Lifecycle())
	}
	session.Quit()
}
