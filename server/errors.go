package server

import (
	"errors"
	"net/http"

	"github.com/susuprotocol/rosca/engine"
	"github.com/susuprotocol/rosca/ledger"
)

type errorResponse struct {
	Error string `json:"error"`
}

// statusForError maps engine sentinel errors onto HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, engine.ErrCircleNotFound),
		errors.Is(err, engine.ErrMemberNotFound),
		errors.Is(err, engine.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, engine.ErrAlreadyJoined),
		errors.Is(err, engine.ErrAlreadyVoted),
		errors.Is(err, engine.ErrAlreadyDissolved),
		errors.Is(err, engine.ErrAlreadyInitialized),
		errors.Is(err, engine.ErrMemberAlreadyExists),
		errors.Is(err, engine.ErrPayoutAlreadyReceived),
		errors.Is(err, engine.ErrInsuranceAlreadyUsed):
		return http.StatusConflict
	case errors.Is(err, engine.ErrMaxMembersReached),
		errors.Is(err, engine.ErrNotMember),
		errors.Is(err, engine.ErrMemberEjected),
		errors.Is(err, engine.ErrNotDissolved),
		errors.Is(err, engine.ErrInvalidFeeConfig),
		errors.Is(err, engine.ErrPenaltyExceedsContribution),
		errors.Is(err, engine.ErrEmergencyWithdrawalLocked),
		errors.Is(err, engine.ErrCircleNotFinalized),
		errors.Is(err, engine.ErrCycleNotComplete),
		errors.Is(err, engine.ErrInvalidCircleState),
		errors.Is(err, engine.ErrInsufficientBalance),
		errors.Is(err, engine.ErrInsuranceInsufficient),
		errors.Is(err, engine.ErrNoActiveProposal),
		errors.Is(err, engine.ErrNotInitialized),
		errors.Is(err, ledger.ErrInsufficientFunds):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
