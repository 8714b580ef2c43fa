package engine

// Event topics published by the engine.
const (
	TopicCircleCreated     = "circle.created"
	TopicMemberJoined      = "circle.member_joined"
	TopicCircleFinalized   = "circle.finalized"
	TopicCycleCompleted    = "cycle.completed"
	TopicGroupRollover     = "group.rollover"
	TopicMemberKicked      = "member.kicked"
	TopicMemberEjected     = "member.ejected"
	TopicCircleDissolved   = "circle.dissolved"
	TopicInsuranceCoverage = "insurance.coverage_used"
)

type CircleCreatedEvent struct {
	CircleID     uint64  `json:"circle_id"`
	Admin        Address `json:"admin"`
	Contribution int64   `json:"contribution"`
}

type MemberJoinedEvent struct {
	CircleID uint64  `json:"circle_id"`
	Member   Address `json:"member"`
}

type CircleFinalizedEvent struct {
	CircleID    uint64    `json:"circle_id"`
	PayoutQueue []Address `json:"payout_queue"`
}

type CycleCompletedEvent struct {
	CircleID               uint64 `json:"circle_id"`
	TotalVolumeDistributed int64  `json:"total_volume_distributed"`
}

type GroupRolloverEvent struct {
	CircleID       uint64 `json:"circle_id"`
	NewCycleNumber uint32 `json:"new_cycle_number"`
}

type KickedEvent struct {
	CircleID uint64  `json:"circle_id"`
	Member   Address `json:"member"`
	Refund   int64   `json:"refund"`
	Penalty  int64   `json:"penalty"`
}

type EjectedEvent struct {
	CircleID uint64  `json:"circle_id"`
	Member   Address `json:"member"`
}

type CircleDissolvedEvent struct {
	CircleID uint64 `json:"circle_id"`
	Votes    int    `json:"votes"`
	Members  int    `json:"members"`
}

type InsuranceCoverageEvent struct {
	CircleID uint64  `json:"circle_id"`
	Member   Address `json:"member"`
	Amount   int64   `json:"amount"`
}
