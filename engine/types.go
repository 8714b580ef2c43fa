package engine

import "time"

const (
	// MaxBasisPoints is the denominator for all bps fee math; 10000 bps = 100%.
	MaxBasisPoints = 10_000

	// MaxMembers caps the roster size of a single circle.
	MaxMembers = 50

	// EmergencyWithdrawalDelay is how long the protocol admin must be inactive
	// before users can unilaterally reclaim custodied deposits.
	EmergencyWithdrawalDelay = 7 * 24 * time.Hour
)

// Address identifies a principal (member, admin, treasury). It is opaque to the
// engine; the authorization oracle decides what a valid proof for it looks like.
type Address string

// Proof is a caller-supplied authorization proof for an actor. The engine never
// inspects the signature itself; it hands the proof to the configured Verifier.
type Proof struct {
	Actor     Address
	Signature []byte
}

// MemberStatus tracks a member's slot state within a circle.
type MemberStatus uint8

const (
	MemberActive MemberStatus = iota
	MemberAwaitingReplacement
	MemberEjected
)

func (s MemberStatus) String() string {
	switch s {
	case MemberActive:
		return "active"
	case MemberAwaitingReplacement:
		return "awaiting_replacement"
	case MemberEjected:
		return "ejected"
	default:
		return "unknown"
	}
}

// Circle is one rotating savings group. The parallel slices Members,
// HasReceivedPayout, ContributionsPaid and Statuses are always the same length
// and aligned by index; every mutating operation maintains that alignment.
type Circle struct {
	ID           uint64  `json:"id"`
	Admin        Address `json:"admin"`
	Contribution int64   `json:"contribution"`

	Members           []Address      `json:"members"`
	Statuses          []MemberStatus `json:"statuses"`
	HasReceivedPayout []bool         `json:"has_received_payout"`
	ContributionsPaid []int64        `json:"contributions_paid"`

	IsRandomQueue bool      `json:"is_random_queue"`
	PayoutQueue   []Address `json:"payout_queue"`

	CycleNumber            uint32 `json:"cycle_number"`
	CurrentPayoutIndex     uint32 `json:"current_payout_index"`
	TotalVolumeDistributed int64  `json:"total_volume_distributed"`

	// TokenBalance is the amount the circle custodies on behalf of its
	// members. It is debited before any outbound transfer and must never go
	// negative.
	TokenBalance int64 `json:"token_balance"`

	// Late-fee schedule. NextDeadline advances by CycleDuration on every
	// contribution, late or not. A zero CycleDuration disables late fees.
	LateFeeBps    uint32        `json:"late_fee_bps"`
	CycleDuration time.Duration `json:"cycle_duration"`
	NextDeadline  time.Time     `json:"next_deadline"`

	// Insurance fund. The surcharge accumulates in InsuranceBalance and may
	// cover one defaulted contribution per cycle.
	InsuranceFeeBps  uint32 `json:"insurance_fee_bps"`
	InsuranceBalance int64  `json:"insurance_balance"`
	InsuranceUsed    bool   `json:"insurance_used"`

	IsDissolved      bool      `json:"is_dissolved"`
	DissolutionVotes []Address `json:"dissolution_votes"`

	// Late-fee governance. A nil ProposedLateFeeBps means no open proposal.
	ProposedLateFeeBps *uint32   `json:"proposed_late_fee_bps,omitempty"`
	ProposalVotes      []Address `json:"proposal_votes,omitempty"`
}

// CircleOptions carries the optional extended parameters of CreateCircle.
type CircleOptions struct {
	LateFeeBps      uint32
	InsuranceFeeBps uint32
	CycleDuration   time.Duration
}

// Finalized reports whether the payout queue has been committed.
func (c *Circle) Finalized() bool {
	return len(c.PayoutQueue) > 0
}

// memberIndex returns the roster position of addr, or -1.
func (c *Circle) memberIndex(addr Address) int {
	for i, m := range c.Members {
		if m == addr {
			return i
		}
	}
	return -1
}

// Protocol is the state shared across all circles: the protocol admin, the
// payout fee, and the deposit custody ledger behind the emergency-withdrawal
// safety valve.
type Protocol struct {
	Admin          Address           `json:"admin"`
	FeeBasisPoints uint32            `json:"fee_basis_points"`
	Treasury       Address           `json:"treasury,omitempty"`
	Balances       map[Address]int64 `json:"balances"`
	LastActive     time.Time         `json:"last_active"`
}

// CycleInfo is the snapshot returned by GetCycleInfo.
type CycleInfo struct {
	CycleNumber            uint32 `json:"cycle_number"`
	CurrentPayoutIndex     uint32 `json:"current_payout_index"`
	TotalVolumeDistributed int64  `json:"total_volume_distributed"`
}
