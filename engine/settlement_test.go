package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/susuprotocol/rosca/engine"
	"github.com/susuprotocol/rosca/engine/enginetest"
)

func TestPayoutCycleAndRollover(t *testing.T) {
	h := enginetest.New(t)
	ctx := context.Background()
	admin, members, id := setupCircle(t, h, 3, false, engine.CircleOptions{})
	require.NoError(t, h.Engine.FinalizeCircle(ctx, enginetest.Proof(admin), id))

	queueBefore, err := h.Engine.GetPayoutQueue(ctx, id)
	require.NoError(t, err)

	for i, m := range members {
		require.NoError(t, h.Engine.ProcessPayout(ctx, enginetest.Proof(admin), id, m))
		info, err := h.Engine.GetCycleInfo(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, uint32(i+1), info.CurrentPayoutIndex)
		assert.Equal(t, int64(i+1)*contribution, info.TotalVolumeDistributed)
	}

	info, err := h.Engine.GetCycleInfo(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, engine.CycleInfo{CycleNumber: 1, CurrentPayoutIndex: 3, TotalVolumeDistributed: 300}, info)

	// Exactly the final payout emits CycleCompleted.
	completed := h.Events.ByTopic(engine.TopicCycleCompleted)
	require.Len(t, completed, 1)
	assert.Equal(t, engine.CycleCompletedEvent{CircleID: id, TotalVolumeDistributed: 300}, completed[0].Payload)

	require.NoError(t, h.Engine.RolloverGroup(ctx, enginetest.Proof(admin), id))

	info, err = h.Engine.GetCycleInfo(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, engine.CycleInfo{CycleNumber: 2, CurrentPayoutIndex: 0, TotalVolumeDistributed: 0}, info)

	status, err := h.Engine.GetPayoutStatus(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []bool{false, false, false}, status)

	queueAfter, err := h.Engine.GetPayoutQueue(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, queueBefore, queueAfter, "rollover preserves the payout order")

	rollovers := h.Events.ByTopic(engine.TopicGroupRollover)
	require.Len(t, rollovers, 1)
	assert.Equal(t, engine.GroupRolloverEvent{CircleID: id, NewCycleNumber: 2}, rollovers[0].Payload)
}

func TestProcessPayoutRejectsDoublePay(t *testing.T) {
	h := enginetest.New(t)
	ctx := context.Background()
	admin, members, id := setupCircle(t, h, 3, false, engine.CircleOptions{})
	require.NoError(t, h.Engine.FinalizeCircle(ctx, enginetest.Proof(admin), id))

	require.NoError(t, h.Engine.ProcessPayout(ctx, enginetest.Proof(admin), id, members[0]))
	err := h.Engine.ProcessPayout(ctx, enginetest.Proof(admin), id, members[0])
	require.ErrorIs(t, err, engine.ErrPayoutAlreadyReceived)
}

func TestProcessPayoutErrors(t *testing.T) {
	h := enginetest.New(t)
	ctx := context.Background()
	admin, members, id := setupCircle(t, h, 2, false, engine.CircleOptions{})

	// Not finalized yet.
	err := h.Engine.ProcessPayout(ctx, enginetest.Proof(admin), id, members[0])
	require.ErrorIs(t, err, engine.ErrCircleNotFinalized)

	require.NoError(t, h.Engine.FinalizeCircle(ctx, enginetest.Proof(admin), id))

	err = h.Engine.ProcessPayout(ctx, enginetest.Proof(members[0]), id, members[0])
	require.ErrorIs(t, err, engine.ErrUnauthorized)

	err = h.Engine.ProcessPayout(ctx, enginetest.Proof(admin), id, "stranger")
	require.ErrorIs(t, err, engine.ErrNotMember)
}

func TestInsolvencyGuard(t *testing.T) {
	h := enginetest.New(t)
	ctx := context.Background()
	admin, members, id := setupCircle(t, h, 2, false, engine.CircleOptions{})
	require.NoError(t, h.Engine.FinalizeCircle(ctx, enginetest.Proof(admin), id))

	// Cycle 1 consumes the joining contributions.
	for _, m := range members {
		require.NoError(t, h.Engine.ProcessPayout(ctx, enginetest.Proof(admin), id, m))
	}
	require.NoError(t, h.Engine.RolloverGroup(ctx, enginetest.Proof(admin), id))

	// Nothing contributed for cycle 2: the payout must be refused, not
	// allowed to drive the reserve negative.
	err := h.Engine.ProcessPayout(ctx, enginetest.Proof(admin), id, members[0])
	require.ErrorIs(t, err, engine.ErrInsufficientBalance)

	// One contribution funds exactly one payout.
	require.NoError(t, h.Engine.Contribute(ctx, enginetest.Proof(members[0]), id))
	require.NoError(t, h.Engine.ProcessPayout(ctx, enginetest.Proof(admin), id, members[0]))

	c, err := h.Engine.GetCircle(ctx, id)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, c.TokenBalance, int64(0), "custodied balance never goes negative")
}

func TestRolloverRequiresCompleteCycle(t *testing.T) {
	h := enginetest.New(t)
	ctx := context.Background()
	admin, members, id := setupCircle(t, h, 2, false, engine.CircleOptions{})
	require.NoError(t, h.Engine.FinalizeCircle(ctx, enginetest.Proof(admin), id))

	err := h.Engine.RolloverGroup(ctx, enginetest.Proof(admin), id)
	require.ErrorIs(t, err, engine.ErrCycleNotComplete)

	require.NoError(t, h.Engine.ProcessPayout(ctx, enginetest.Proof(admin), id, members[0]))
	err = h.Engine.RolloverGroup(ctx, enginetest.Proof(admin), id)
	require.ErrorIs(t, err, engine.ErrCycleNotComplete)
}

func TestEjectedSlotDoesNotBlockCycle(t *testing.T) {
	h := enginetest.New(t)
	ctx := context.Background()
	admin, members, id := setupCircle(t, h, 3, false, engine.CircleOptions{})
	require.NoError(t, h.Engine.FinalizeCircle(ctx, enginetest.Proof(admin), id))
	require.NoError(t, h.Engine.EjectMember(ctx, enginetest.Proof(admin), id, members[2]))

	require.NoError(t, h.Engine.ProcessPayout(ctx, enginetest.Proof(admin), id, members[0]))
	require.NoError(t, h.Engine.ProcessPayout(ctx, enginetest.Proof(admin), id, members[1]))

	// The ejected slot counts as settled; the cycle completes and rolls over.
	require.Len(t, h.Events.ByTopic(engine.TopicCycleCompleted), 1)
	require.NoError(t, h.Engine.RolloverGroup(ctx, enginetest.Proof(admin), id))
}

func TestProtocolFeeSplitOnPayout(t *testing.T) {
	h := enginetest.New(t)
	ctx := context.Background()
	admin, members, id := setupCircle(t, h, 2, false, engine.CircleOptions{})
	require.NoError(t, h.Engine.FinalizeCircle(ctx, enginetest.Proof(admin), id))
	require.NoError(t, h.Engine.SetProtocolFee(ctx, enginetest.Proof(admin), 250, "treasury"))

	before := h.Ledger.Balance(members[0])
	require.NoError(t, h.Engine.ProcessPayout(ctx, enginetest.Proof(admin), id, members[0]))

	// 2.5% of 100 = 2 to the treasury, 98 to the recipient.
	assert.Equal(t, before+98, h.Ledger.Balance(members[0]))
	assert.Equal(t, int64(2), h.Ledger.Balance("treasury"))
}

func TestPayoutWithFeeButNoTreasuryFails(t *testing.T) {
	h := enginetest.New(t)
	ctx := context.Background()
	admin, members, id := setupCircle(t, h, 2, false, engine.CircleOptions{})
	require.NoError(t, h.Engine.FinalizeCircle(ctx, enginetest.Proof(admin), id))
	require.NoError(t, h.Engine.SetProtocolFee(ctx, enginetest.Proof(admin), 250, ""))

	err := h.Engine.ProcessPayout(ctx, enginetest.Proof(admin), id, members[0])
	require.ErrorIs(t, err, engine.ErrInvalidFeeConfig)

	// The failed call left no partial mutation behind.
	status, err := h.Engine.GetPayoutStatus(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []bool{false, false}, status)
}

func TestContributeLateFee(t *testing.T) {
	h := enginetest.New(t)
	ctx := context.Background()
	_, members, id := setupCircle(t, h, 2, false, engine.CircleOptions{
		LateFeeBps:    500, // 5%
		CycleDuration: 24 * time.Hour,
	})

	// On time: no penalty, deadline advances.
	require.NoError(t, h.Engine.Contribute(ctx, enginetest.Proof(members[0]), id))
	c, err := h.Engine.GetCircle(ctx, id)
	require.NoError(t, err)
	onTimeBalance := c.TokenBalance
	assert.Equal(t, 3*contribution, onTimeBalance)

	// Two deadlines in the future now; jump past both.
	h.Clock.Advance(3 * 24 * time.Hour)
	require.NoError(t, h.Engine.Contribute(ctx, enginetest.Proof(members[1]), id))

	c, err = h.Engine.GetCircle(ctx, id)
	require.NoError(t, err)
	// Late contribution adds contribution + 5% penalty to the reserve.
	assert.Equal(t, onTimeBalance+contribution+5, c.TokenBalance)
	// The penalty is not credited to the member's refundable ledger.
	assert.Equal(t, 2*contribution, c.ContributionsPaid[1])
}

func TestContributeDeadlineAlwaysAdvances(t *testing.T) {
	h := enginetest.New(t)
	ctx := context.Background()
	_, members, id := setupCircle(t, h, 1, false, engine.CircleOptions{
		LateFeeBps:    500,
		CycleDuration: 24 * time.Hour,
	})

	c, err := h.Engine.GetCircle(ctx, id)
	require.NoError(t, err)
	first := c.NextDeadline

	require.NoError(t, h.Engine.Contribute(ctx, enginetest.Proof(members[0]), id))
	c, err = h.Engine.GetCircle(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, first.Add(24*time.Hour), c.NextDeadline)

	h.Clock.Advance(5 * 24 * time.Hour)
	require.NoError(t, h.Engine.Contribute(ctx, enginetest.Proof(members[0]), id))
	c, err = h.Engine.GetCircle(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, first.Add(48*time.Hour), c.NextDeadline, "deadline advances by one duration regardless of lateness")
}

func TestInsuranceFund(t *testing.T) {
	h := enginetest.New(t)
	ctx := context.Background()
	admin, members, id := setupCircle(t, h, 2, false, engine.CircleOptions{
		InsuranceFeeBps: 1000, // 10%
	})

	// Ten contributions accumulate one full covered contribution.
	for i := 0; i < 10; i++ {
		require.NoError(t, h.Engine.Contribute(ctx, enginetest.Proof(members[0]), id))
	}
	c, err := h.Engine.GetCircle(ctx, id)
	require.NoError(t, err)
	require.Equal(t, contribution, c.InsuranceBalance)

	balanceBefore := c.TokenBalance
	require.NoError(t, h.Engine.TriggerInsuranceCoverage(ctx, enginetest.Proof(admin), id, members[1]))

	c, err = h.Engine.GetCircle(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(0), c.InsuranceBalance)
	assert.Equal(t, balanceBefore+contribution, c.TokenBalance)
	assert.Equal(t, 2*contribution, c.ContributionsPaid[1], "defaulter is marked as contributed")

	// Once per cycle only.
	err = h.Engine.TriggerInsuranceCoverage(ctx, enginetest.Proof(admin), id, members[1])
	require.ErrorIs(t, err, engine.ErrInsuranceAlreadyUsed)
}

func TestInsuranceCoverageRequiresFunds(t *testing.T) {
	h := enginetest.New(t)
	ctx := context.Background()
	admin, members, id := setupCircle(t, h, 2, false, engine.CircleOptions{InsuranceFeeBps: 1000})

	err := h.Engine.TriggerInsuranceCoverage(ctx, enginetest.Proof(admin), id, members[0])
	require.ErrorIs(t, err, engine.ErrInsuranceInsufficient)
}

func TestInsuranceFlagResetsOnRollover(t *testing.T) {
	h := enginetest.New(t)
	ctx := context.Background()
	admin, members, id := setupCircle(t, h, 2, false, engine.CircleOptions{InsuranceFeeBps: 1000})
	require.NoError(t, h.Engine.FinalizeCircle(ctx, enginetest.Proof(admin), id))

	for i := 0; i < 10; i++ {
		require.NoError(t, h.Engine.Contribute(ctx, enginetest.Proof(members[0]), id))
	}
	require.NoError(t, h.Engine.TriggerInsuranceCoverage(ctx, enginetest.Proof(admin), id, members[1]))

	for _, m := range members {
		require.NoError(t, h.Engine.ProcessPayout(ctx, enginetest.Proof(admin), id, m))
	}
	require.NoError(t, h.Engine.RolloverGroup(ctx, enginetest.Proof(admin), id))

	c, err := h.Engine.GetCircle(ctx, id)
	require.NoError(t, err)
	assert.False(t, c.InsuranceUsed)
}

func TestContributeNonMember(t *testing.T) {
	h := enginetest.New(t)
	ctx := context.Background()
	_, _, id := setupCircle(t, h, 2, false, engine.CircleOptions{})

	h.Fund("stranger", 1000)
	err := h.Engine.Contribute(ctx, enginetest.Proof("stranger"), id)
	require.ErrorIs(t, err, engine.ErrNotMember)
}
