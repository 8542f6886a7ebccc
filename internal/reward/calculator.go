// Package reward turns session outcomes into XP, orbs and level progression.
// Every function here is pure: callers persist the returned progress.
package reward

import (
	"math"

	"askia-quiz-service/internal/domain"
)

// Rules holds the reward constants.
type Rules struct {
	BaseXPPerCorrect     int
	JackpotBonus         int
	StreakEvery          int
	StreakBonusPerAnswer int
	FocusTimeBonus       int
	FlatXPPerCorrect     int // guest and league sessions
	OrbThreshold         float64
	OrbScale             int
	FirstCompletionBonus int
	BaseXPToNextLevel    int
	LevelGrowth          float64
}

// DefaultRules returns the game's standard tuning.
func DefaultRules() Rules {
	return Rules{
		BaseXPPerCorrect:     10,
		JackpotBonus:         50,
		StreakEvery:          3,
		StreakBonusPerAnswer: 5,
		FocusTimeBonus:       5,
		FlatXPPerCorrect:     10,
		OrbThreshold:         0.7,
		OrbScale:             20,
		FirstCompletionBonus: 50,
		BaseXPToNextLevel:    100,
		LevelGrowth:          1.5,
	}
}

// TimeBonus is the XP for answering with time left. A focus-suspended timer earns the
// flat bonus; a negative remainder earns nothing.
func (r Rules) TimeBonus(remainingSeconds int, suspended bool) int {
	if suspended {
		return r.FocusTimeBonus
	}
	if remainingSeconds < 0 {
		return 0
	}
	return remainingSeconds
}

// StreakBonus returns the bonus earned when the streak reaches a multiple of StreakEvery.
func (r Rules) StreakBonus(streak int) int {
	if streak <= 0 || r.StreakEvery <= 0 || streak%r.StreakEvery != 0 {
		return 0
	}
	return streak * r.StreakBonusPerAnswer
}

// AnswerAward is the incremental XP breakdown of one standard-mode answer.
type AnswerAward struct {
	Base      int `json:"base"`
	TimeBonus int `json:"timeBonus"`
	Jackpot   int `json:"jackpot"`
	Streak    int `json:"streak"`
}

func (a AnswerAward) Total() int {
	return a.Base + a.TimeBonus + a.Jackpot + a.Streak
}

// Answer computes the XP of a standard-mode answer. streak is the count after this answer.
func (r Rules) Answer(correct bool, timeBonus int, jackpot bool, streak int) AnswerAward {
	if !correct {
		return AnswerAward{}
	}
	award := AnswerAward{
		Base:      r.BaseXPPerCorrect,
		TimeBonus: timeBonus,
		Streak:    r.StreakBonus(streak),
	}
	if jackpot {
		award.Jackpot = r.JackpotBonus
	}
	return award
}

// PerformanceOrbs awards floor(performance*scale) when performance reaches the threshold.
func (r Rules) PerformanceOrbs(score, size int) int {
	if size <= 0 {
		return 0
	}
	performance := float64(score) / float64(size)
	if performance < r.OrbThreshold {
		return 0
	}
	return int(math.Floor(performance * float64(r.OrbScale)))
}

// Outcome summarizes a finished session.
type Outcome struct {
	Mode        domain.Mode
	Key         domain.QuizKey
	Score       int
	SessionSize int
	// IncrementalXP is what standard mode already folded into progress answer by answer.
	IncrementalXP int
}

// Rewards is the result of Compute.
type Rewards struct {
	XP                   int
	Orbs                 int
	FirstCompletionBonus int
	NewLevel             *int
}

// Compute applies end-of-session rewards to a copy of progress and returns both.
// Standard sessions mark first completion; guest and league sessions earn flat XP.
func (r Rules) Compute(outcome Outcome, progress domain.PlayerProgress) (Rewards, domain.PlayerProgress) {
	next := progress.Clone()
	rewards := Rewards{Orbs: r.PerformanceOrbs(outcome.Score, outcome.SessionSize)}

	switch outcome.Mode {
	case domain.ModeStandard:
		rewards.XP = outcome.IncrementalXP
		if !next.HasCompleted(outcome.Key) {
			rewards.FirstCompletionBonus = r.FirstCompletionBonus
			next.MarkCompleted(outcome.Key)
		}
	case domain.ModeGuest, domain.ModeLeague:
		rewards.XP = outcome.Score * r.FlatXPPerCorrect
		next.XP += rewards.XP
	}
	rewards.Orbs += rewards.FirstCompletionBonus
	next.Orbs += rewards.Orbs

	before := next.Level
	r.LevelUp(&next)
	if next.Level != before {
		level := next.Level
		rewards.NewLevel = &level
	}
	return rewards, next
}

// LevelUp consumes XP thresholds until XP < XPToNextLevel.
func (r Rules) LevelUp(p *domain.PlayerProgress) {
	if p.XPToNextLevel <= 0 {
		p.XPToNextLevel = r.BaseXPToNextLevel
	}
	if p.Level <= 0 {
		p.Level = 1
	}
	for p.XP >= p.XPToNextLevel {
		p.XP -= p.XPToNextLevel
		p.Level++
		grown := int(math.Floor(float64(p.XPToNextLevel) * r.LevelGrowth))
		if grown <= p.XPToNextLevel {
			grown = p.XPToNextLevel + 1
		}
		p.XPToNextLevel = grown
	}
}
