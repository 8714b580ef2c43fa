package engine

import (
	"context"
	"fmt"
)

// Contribute collects a member's per-cycle contribution into circle custody.
// Past the deadline the late-fee penalty is added and kept in the circle's
// own reserve; the insurance surcharge, if configured, accumulates in the
// insurance fund. The deadline advances by one cycle duration after every
// contribution, late or not.
func (e *Engine) Contribute(ctx context.Context, proof Proof, circleID uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.verify(ctx, proof, proof.Actor); err != nil {
		return err
	}

	c, err := e.circle(ctx, circleID)
	if err != nil {
		return err
	}
	if c.IsDissolved {
		return ErrAlreadyDissolved
	}
	idx := c.memberIndex(proof.Actor)
	if idx < 0 {
		return ErrNotMember
	}
	if c.Statuses[idx] == MemberEjected {
		return ErrMemberEjected
	}

	late := int64(0)
	if c.CycleDuration > 0 && e.cfg.Clock.Now().After(c.NextDeadline) {
		late = c.lateFee()
	}
	insurance := c.insuranceSurcharge()
	total := c.Contribution + late + insurance

	if err := e.cfg.Ledger.Transfer(ctx, proof.Actor, Custody, total); err != nil {
		return fmt.Errorf("failed to collect contribution: %w", err)
	}

	// The base amount and the late penalty both stay in the circle reserve;
	// only the surcharge is earmarked for insurance.
	c.ContributionsPaid[idx] += c.Contribution
	c.TokenBalance += c.Contribution + late
	c.InsuranceBalance += insurance
	if c.CycleDuration > 0 {
		c.NextDeadline = c.NextDeadline.Add(c.CycleDuration)
	}

	if err := e.cfg.Store.PutCircle(ctx, c); err != nil {
		return fmt.Errorf("failed to persist circle: %w", err)
	}

	e.log.Info("contribution collected",
		"circle_id", circleID, "member", proof.Actor,
		"amount", c.Contribution, "late_fee", late, "insurance", insurance)
	return nil
}

// ProcessPayout disburses one cycle payout to recipient. State is mutated and
// persisted before any transfer: the payout flag flips, the cycle counters
// advance and the custodied balance is debited first, so a transfer that
// re-enters the engine sees the payout as already made.
func (e *Engine) ProcessPayout(ctx context.Context, proof Proof, circleID uint64, recipient Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, err := e.circleAdmin(ctx, proof, circleID)
	if err != nil {
		return err
	}
	if c.IsDissolved {
		return ErrAlreadyDissolved
	}
	if !c.Finalized() {
		return ErrCircleNotFinalized
	}
	idx := c.memberIndex(recipient)
	if idx < 0 {
		return ErrNotMember
	}
	if c.Statuses[idx] == MemberEjected {
		return ErrMemberEjected
	}
	if c.HasReceivedPayout[idx] {
		return ErrPayoutAlreadyReceived
	}

	p, err := e.protocol(ctx)
	if err != nil {
		return err
	}

	gross := c.Contribution
	net, fee := SplitFee(gross, p.FeeBasisPoints)
	if fee > 0 && p.Treasury == "" {
		return ErrInvalidFeeConfig
	}
	if c.TokenBalance < gross {
		return ErrInsufficientBalance
	}

	c.HasReceivedPayout[idx] = true
	c.CurrentPayoutIndex++
	c.TotalVolumeDistributed += gross
	c.TokenBalance -= gross

	if err := e.cfg.Store.PutCircle(ctx, c); err != nil {
		return fmt.Errorf("failed to persist circle: %w", err)
	}

	if c.cycleComplete() {
		e.cfg.Events.Publish(ctx, TopicCycleCompleted, CycleCompletedEvent{
			CircleID:               circleID,
			TotalVolumeDistributed: c.TotalVolumeDistributed,
		})
	}

	if err := e.cfg.Ledger.Transfer(ctx, Custody, recipient, net); err != nil {
		return fmt.Errorf("failed to transfer payout: %w", err)
	}
	if fee > 0 {
		if err := e.cfg.Ledger.Transfer(ctx, Custody, p.Treasury, fee); err != nil {
			return fmt.Errorf("failed to transfer protocol fee: %w", err)
		}
	}

	e.log.Info("payout processed",
		"circle_id", circleID, "recipient", recipient,
		"gross", gross, "net", net, "fee", fee, "payout_index", c.CurrentPayoutIndex)
	return nil
}

// RolloverGroup starts the next cycle once every payable member has been paid.
// The payout queue is preserved; the flags are rebuilt as a fresh slice and
// the per-cycle insurance flag resets.
func (e *Engine) RolloverGroup(ctx context.Context, proof Proof, circleID uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, err := e.circleAdmin(ctx, proof, circleID)
	if err != nil {
		return err
	}
	if c.IsDissolved {
		return ErrAlreadyDissolved
	}
	if !c.cycleComplete() {
		return ErrCycleNotComplete
	}

	c.CycleNumber++
	c.CurrentPayoutIndex = 0
	c.TotalVolumeDistributed = 0
	c.HasReceivedPayout = make([]bool, len(c.Members))
	c.InsuranceUsed = false

	if err := e.cfg.Store.PutCircle(ctx, c); err != nil {
		return fmt.Errorf("failed to persist circle: %w", err)
	}

	e.cfg.Events.Publish(ctx, TopicGroupRollover, GroupRolloverEvent{
		CircleID:       circleID,
		NewCycleNumber: c.CycleNumber,
	})
	e.log.Info("group rollover", "circle_id", circleID, "cycle_number", c.CycleNumber)
	return nil
}

// TriggerInsuranceCoverage covers one defaulting member's contribution from
// the insurance fund, at most once per cycle. The amount moves from the
// insurance fund into the circle reserve; no external transfer happens.
func (e *Engine) TriggerInsuranceCoverage(ctx context.Context, proof Proof, circleID uint64, member Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, err := e.circleAdmin(ctx, proof, circleID)
	if err != nil {
		return err
	}
	if c.IsDissolved {
		return ErrAlreadyDissolved
	}
	idx := c.memberIndex(member)
	if idx < 0 {
		return ErrMemberNotFound
	}
	if c.InsuranceUsed {
		return ErrInsuranceAlreadyUsed
	}
	if c.InsuranceBalance < c.Contribution {
		return ErrInsuranceInsufficient
	}

	c.InsuranceBalance -= c.Contribution
	c.TokenBalance += c.Contribution
	c.ContributionsPaid[idx] += c.Contribution
	c.InsuranceUsed = true

	if err := e.cfg.Store.PutCircle(ctx, c); err != nil {
		return fmt.Errorf("failed to persist circle: %w", err)
	}

	e.cfg.Events.Publish(ctx, TopicInsuranceCoverage, InsuranceCoverageEvent{
		CircleID: circleID,
		Member:   member,
		Amount:   c.Contribution,
	})
	e.log.Info("insurance coverage used", "circle_id", circleID, "member", member, "amount", c.Contribution)
	return nil
}

// cycleComplete reports whether every payable member has received this
// cycle's payout. Ejected slots are skipped: they cannot be paid, so they do
// not block completion.
func (c *Circle) cycleComplete() bool {
	for i, paid := range c.HasReceivedPayout {
		if !paid && c.Statuses[i] != MemberEjected {
			return false
		}
	}
	return len(c.Members) > 0
}
