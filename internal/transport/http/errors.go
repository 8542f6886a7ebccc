package http

import (
	"errors"
	"net/http"

	"askia-quiz-service/internal/domain"
)

// errorCode is the stable machine-readable name sent to clients.
func errorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrConfig):
		return "config"
	case errors.Is(err, domain.ErrLoad):
		return "load"
	case errors.Is(err, domain.ErrDepleted):
		return "depleted"
	case errors.Is(err, domain.ErrAlreadyParticipated):
		return "already_participated"
	case errors.Is(err, domain.ErrLedgerInconsistency):
		return "ledger_inconsistency"
	case errors.Is(err, domain.ErrPlayerExists):
		return "player_exists"
	case errors.Is(err, domain.ErrPlayerNotFound):
		return "player_not_found"
	case errors.Is(err, domain.ErrSessionNotFound):
		return "session_not_found"
	case errors.Is(err, domain.ErrAnswerMismatch), errors.Is(err, domain.ErrOptionNotFound):
		return "bad_answer"
	case errors.Is(err, domain.ErrNotAwaitingAnswer), errors.Is(err, domain.ErrNotPaused),
		errors.Is(err, domain.ErrPauseUnavailable), errors.Is(err, domain.ErrFocusUnavailable),
		errors.Is(err, domain.ErrFocusAlreadyUsed):
		return "not_allowed"
	}
	return "internal"
}

func statusFor(err error) int {
	switch errorCode(err) {
	case "config", "bad_answer":
		return http.StatusBadRequest
	case "player_not_found", "session_not_found", "ledger_inconsistency":
		return http.StatusNotFound
	case "already_participated", "not_allowed", "depleted", "player_exists":
		return http.StatusConflict
	case "load":
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
