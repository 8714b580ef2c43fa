package engine

import "errors"

// Sentinel errors returned by engine operations. Every operation aborts with
// exactly one of these (possibly wrapped) before any state is persisted, so a
// failed call never leaves a partial mutation behind. Callers should branch
// with errors.Is.
var (
	ErrCircleNotFound             = errors.New("circle not found")
	ErrUnauthorized               = errors.New("unauthorized")
	ErrAlreadyJoined              = errors.New("member has already joined")
	ErrMaxMembersReached          = errors.New("member limit reached")
	ErrAlreadyVoted               = errors.New("member has already voted")
	ErrNotMember                  = errors.New("caller is not a member")
	ErrMemberNotFound             = errors.New("member not found")
	ErrMemberAlreadyExists        = errors.New("member already exists")
	ErrMemberEjected              = errors.New("member is ejected")
	ErrAlreadyDissolved           = errors.New("circle is dissolved")
	ErrNotDissolved               = errors.New("circle is not dissolved")
	ErrInvalidFeeConfig           = errors.New("invalid fee configuration")
	ErrPenaltyExceedsContribution = errors.New("penalty exceeds contributions paid")
	ErrEmergencyWithdrawalLocked  = errors.New("emergency withdrawal not yet available")
	ErrCircleNotFinalized         = errors.New("circle is not finalized")
	ErrCycleNotComplete           = errors.New("cycle is not complete")
	ErrPayoutAlreadyReceived      = errors.New("payout already received this cycle")
	ErrInvalidCircleState         = errors.New("invalid circle state")
	ErrInsufficientBalance        = errors.New("insufficient custodied balance")
	ErrInsuranceAlreadyUsed       = errors.New("insurance already used this cycle")
	ErrInsuranceInsufficient      = errors.New("insurance balance below contribution")
	ErrNoActiveProposal           = errors.New("no active proposal")
	ErrNotInitialized             = errors.New("protocol not initialized")
	ErrAlreadyInitialized         = errors.New("protocol already initialized")
)
