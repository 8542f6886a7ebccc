package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionNotFound is returned when a quiz session is unknown or already discarded.
	ErrSessionNotFound = errors.New("quiz session not found")
	// ErrPlayerNotFound means a non-guest session was requested without a stored player.
	ErrPlayerNotFound = errors.New("player not found")
	// ErrPlayerExists is returned when registering an ID that is already taken.
	ErrPlayerExists = errors.New("player already exists")
	// ErrContentNotFound is returned by question sources for a missing path.
	ErrContentNotFound = errors.New("content not found")
	// ErrInvalidQuestion marks a content record that violates the question invariants.
	ErrInvalidQuestion = errors.New("invalid question")
	// ErrOptionNotFound indicates a submitted option or image index is out of range.
	ErrOptionNotFound = errors.New("option not found")
	// ErrAnswerMismatch means the answer shape does not fit the question kind.
	ErrAnswerMismatch = errors.New("answer does not match question type")
	// ErrNotAwaitingAnswer is returned when an action arrives outside the state that accepts it.
	ErrNotAwaitingAnswer = errors.New("session is not awaiting an answer")
	// ErrNotPaused is returned by resume on a running session.
	ErrNotPaused = errors.New("session is not paused")
	// ErrPauseUnavailable: only standard sessions can be paused.
	ErrPauseUnavailable = errors.New("pause is not available in this mode")
	// ErrFocusUnavailable: guests cannot spend focus tokens.
	ErrFocusUnavailable = errors.New("focus tokens are not available in this mode")
	// ErrFocusAlreadyUsed: at most one token per question.
	ErrFocusAlreadyUsed = errors.New("focus token already used for this question")
	// ErrDepleted is returned when no focus token is left.
	ErrDepleted = errors.New("focus tokens depleted")
	// ErrAlreadyParticipated short-circuits a league session for a week already played.
	ErrAlreadyParticipated = errors.New("already participated in this league week")

	// ErrConfig matches every *ConfigError.
	ErrConfig = errors.New("invalid session configuration")
	// ErrLoad matches every *LoadError.
	ErrLoad = errors.New("question pool could not be loaded")
	// ErrLedgerInconsistency matches every *LedgerInconsistencyError.
	ErrLedgerInconsistency = errors.New("league ledger inconsistency")
)

// ConfigError reports a missing or invalid session parameter.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid session parameter %q: %s", e.Field, e.Reason)
}

func (e *ConfigError) Is(target error) bool { return target == ErrConfig }

// LoadError reports a question source failure or an empty pool.
type LoadError struct {
	Path   string
	Reason string
	Err    error
}

func (e *LoadError) Error() string {
	msg := "load questions"
	if e.Path != "" {
		msg += " " + e.Path
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *LoadError) Is(target error) bool { return target == ErrLoad }

func (e *LoadError) Unwrap() error { return e.Err }

// LedgerInconsistencyError is returned when recording against a week missing from the ledger.
type LedgerInconsistencyError struct {
	WeekID string
}

func (e *LedgerInconsistencyError) Error() string {
	return fmt.Sprintf("league week %q not found in ledger", e.WeekID)
}

func (e *LedgerInconsistencyError) Is(target error) bool { return target == ErrLedgerInconsistency }
