package domain

import (
	"fmt"
	"time"
)

// Mode selects the rule set a play-through runs under.
type Mode int

const (
	ModeStandard Mode = iota + 1
	ModeGuest
	ModeLeague
)

func (m Mode) String() string {
	switch m {
	case ModeStandard:
		return "standard"
	case ModeGuest:
		return "guest"
	case ModeLeague:
		return "league"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// Lifecycle is the coarse state of a quiz session.
type Lifecycle int

const (
	LifecycleLoading Lifecycle = iota + 1
	LifecycleAwaitingAnswer
	LifecyclePaused
	LifecycleTransitioning
	LifecycleCompleted
	LifecycleFailed
	// LifecycleAlreadyParticipated is entered before loading for a league week the player already played.
	LifecycleAlreadyParticipated
	// LifecycleAbandoned marks a session the player quit; no rewards are flushed.
	LifecycleAbandoned
)

func (l Lifecycle) String() string {
	switch l {
	case LifecycleLoading:
		return "loading"
	case LifecycleAwaitingAnswer:
		return "awaiting_answer"
	case LifecyclePaused:
		return "paused"
	case LifecycleTransitioning:
		return "transitioning"
	case LifecycleCompleted:
		return "completed"
	case LifecycleFailed:
		return "failed"
	case LifecycleAlreadyParticipated:
		return "already_participated"
	case LifecycleAbandoned:
		return "abandoned"
	}
	return fmt.Sprintf("lifecycle(%d)", int(l))
}

func (l Lifecycle) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// Terminal reports whether no further engine activity can happen in this state.
func (l Lifecycle) Terminal() bool {
	switch l {
	case LifecycleCompleted, LifecycleFailed, LifecycleAlreadyParticipated, LifecycleAbandoned:
		return true
	}
	return false
}

const (
	TopicRandom  = "random"
	TopicDefault = "default"
)

// QuizKey identifies a (grade, subject, topic) combination for first-completion tracking.
type QuizKey struct {
	Grade   string
	Subject string
	Topic   string
}

// String is the persisted form of the key.
func (k QuizKey) String() string {
	return k.Grade + "-" + k.Subject + "-" + k.Topic
}

// SessionConfig is fixed once a session starts.
type SessionConfig struct {
	Mode    Mode
	Kind    QuestionKind
	Size    int
	WeekID  string
	Grade   string
	Subject string
	Topic   string
}

// Key returns the completion key of the configured quiz.
func (c SessionConfig) Key() QuizKey {
	return QuizKey{Grade: c.Grade, Subject: c.Subject, Topic: c.Topic}
}

// PlayerProgress is the persistent player record owned by the user store.
type PlayerProgress struct {
	PlayerID            string          `json:"playerId"`
	Username            string          `json:"username"`
	School              string          `json:"school"`
	City                string          `json:"city"`
	DefaultGrade        string          `json:"defaultGrade"`
	Level               int             `json:"level"`
	XP                  int             `json:"xp"`
	XPToNextLevel       int             `json:"xpToNextLevel"`
	Orbs                int             `json:"orbs"`
	FocusTokens         int             `json:"focusTokens"`
	CurrentStreak       int             `json:"currentStreak"`
	LastPlayedDate      string          `json:"lastPlayedDate"` // YYYY-MM-DD
	CompletedQuizzes    []string        `json:"completedQuizzes"`
	LeagueParticipation map[string]bool `json:"leagueParticipation"`
}

// NewPlayerProgress returns a fresh level-one record.
func NewPlayerProgress(playerID, username string) PlayerProgress {
	return PlayerProgress{
		PlayerID:            playerID,
		Username:            username,
		Level:               1,
		XPToNextLevel:       100,
		FocusTokens:         3,
		LeagueParticipation: make(map[string]bool),
	}
}

// HasCompleted reports whether the quiz was finished before.
func (p PlayerProgress) HasCompleted(key QuizKey) bool {
	id := key.String()
	for _, done := range p.CompletedQuizzes {
		if done == id {
			return true
		}
	}
	return false
}

// MarkCompleted records a first completion; repeated calls are no-ops.
func (p *PlayerProgress) MarkCompleted(key QuizKey) {
	if p.HasCompleted(key) {
		return
	}
	p.CompletedQuizzes = append(p.CompletedQuizzes, key.String())
}

func (p PlayerProgress) Participated(weekID string) bool {
	return p.LeagueParticipation[weekID]
}

func (p *PlayerProgress) MarkParticipated(weekID string) {
	if p.LeagueParticipation == nil {
		p.LeagueParticipation = make(map[string]bool)
	}
	p.LeagueParticipation[weekID] = true
}

// Clone returns a deep copy so stores never share slices or maps with callers.
func (p PlayerProgress) Clone() PlayerProgress {
	out := p
	out.CompletedQuizzes = append([]string(nil), p.CompletedQuizzes...)
	out.LeagueParticipation = make(map[string]bool, len(p.LeagueParticipation))
	for k, v := range p.LeagueParticipation {
		out.LeagueParticipation[k] = v
	}
	return out
}

// SchoolStanding aggregates one school's league results for a week.
type SchoolStanding struct {
	City         string `json:"city"`
	TotalScore   int    `json:"totalScore"`
	Participants int    `json:"participants"`
}

// Average is the mean score per participant, zero for an empty school.
func (s SchoolStanding) Average() float64 {
	if s.Participants == 0 {
		return 0
	}
	return float64(s.TotalScore) / float64(s.Participants)
}

// IndividualScore is one player's league result.
type IndividualScore struct {
	Player string `json:"player"`
	School string `json:"school"`
	Score  int    `json:"score"`
}

// LeagueWeek is the ledger of a single league week.
type LeagueWeek struct {
	Schools          map[string]SchoolStanding `json:"schools"`
	IndividualScores []IndividualScore         `json:"individualScores"`
}

// LeagueLedger maps a week ID to its ledger.
type LeagueLedger map[string]*LeagueWeek

// Clone deep-copies the ledger.
func (l LeagueLedger) Clone() LeagueLedger {
	out := make(LeagueLedger, len(l))
	for weekID, week := range l {
		if week == nil {
			continue
		}
		cp := &LeagueWeek{
			Schools:          make(map[string]SchoolStanding, len(week.Schools)),
			IndividualScores: append([]IndividualScore(nil), week.IndividualScores...),
		}
		for name, school := range week.Schools {
			cp.Schools[name] = school
		}
		out[weekID] = cp
	}
	return out
}

// LeagueDelta reports how a recorded score moved the player's school average.
type LeagueDelta struct {
	School     string  `json:"school"`
	OldAverage float64 `json:"oldAverage"`
	NewAverage float64 `json:"newAverage"`
}

// ResultSummary is what presentation receives when a session completes.
type ResultSummary struct {
	Score       int          `json:"score"`
	SessionSize int          `json:"sessionSize"`
	XPEarned    int          `json:"xpEarned"`
	OrbsEarned  int          `json:"orbsEarned"`
	NewLevel    *int         `json:"newLevel,omitempty"`
	LeagueDelta *LeagueDelta `json:"leagueDelta,omitempty"`
}

// SchoolRank is a row of a league standings table.
type SchoolRank struct {
	Rank         int     `json:"rank"`
	School       string  `json:"school"`
	City         string  `json:"city"`
	Average      float64 `json:"average"`
	Participants int     `json:"participants"`
}

// Today formats t as the calendar date used for daily resets.
func Today(t time.Time) string {
	return t.Format("2006-01-02")
}
