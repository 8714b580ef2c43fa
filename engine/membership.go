package engine

import (
	"context"
	"fmt"
	"slices"
)

// JoinCircle admits the caller into an open circle. Joining collects the
// member's first contribution into circle custody, so a fresh member starts
// with ContributionsPaid equal to the circle's base contribution.
func (e *Engine) JoinCircle(ctx context.Context, proof Proof, circleID uint64) error {
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
	if c.Finalized() {
		// The payout queue is a committed permutation of the roster; the
		// roster cannot grow under it.
		return fmt.Errorf("%w: circle already finalized", ErrInvalidCircleState)
	}
	if c.memberIndex(proof.Actor) >= 0 {
		return ErrAlreadyJoined
	}
	if len(c.Members) >= MaxMembers {
		return ErrMaxMembersReached
	}

	if err := e.cfg.Ledger.Transfer(ctx, proof.Actor, Custody, c.Contribution); err != nil {
		return fmt.Errorf("failed to collect joining contribution: %w", err)
	}

	c.Members = append(c.Members, proof.Actor)
	c.Statuses = append(c.Statuses, MemberActive)
	c.HasReceivedPayout = append(c.HasReceivedPayout, false)
	c.ContributionsPaid = append(c.ContributionsPaid, c.Contribution)
	c.TokenBalance += c.Contribution

	if err := e.cfg.Store.PutCircle(ctx, c); err != nil {
		return fmt.Errorf("failed to persist circle: %w", err)
	}

	e.cfg.Events.Publish(ctx, TopicMemberJoined, MemberJoinedEvent{CircleID: circleID, Member: proof.Actor})
	e.log.Info("member joined", "circle_id", circleID, "member", proof.Actor, "members", len(c.Members))
	return nil
}

// KickMember removes a member from the roster, refunding their contributions
// minus penalty and routing the penalty to the protocol treasury. The member's
// slot is removed from every parallel slice and from the payout queue, so the
// queue remains a permutation of the roster.
func (e *Engine) KickMember(ctx context.Context, proof Proof, circleID uint64, member Address, penalty int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, err := e.circleAdmin(ctx, proof, circleID)
	if err != nil {
		return err
	}
	idx := c.memberIndex(member)
	if idx < 0 {
		return ErrMemberNotFound
	}
	if penalty < 0 {
		return fmt.Errorf("%w: penalty must not be negative", ErrInvalidCircleState)
	}

	contributed := c.ContributionsPaid[idx]
	if penalty > contributed {
		return ErrPenaltyExceedsContribution
	}
	refund := contributed - penalty

	// The treasury only matters when a penalty is actually routed; a
	// zero-penalty kick must work even before the protocol is initialized.
	var treasury Address
	if penalty > 0 {
		p, err := e.protocol(ctx)
		if err != nil {
			return err
		}
		treasury = p.Treasury
	}
	payPenalty := penalty > 0 && treasury != ""

	outbound := refund
	if payPenalty {
		outbound += penalty
	}
	if c.TokenBalance < outbound {
		return ErrInsufficientBalance
	}

	// If the member was already paid this cycle, unwind the cycle counters so
	// the distributed total keeps matching the remaining payout flags.
	if c.HasReceivedPayout[idx] {
		c.CurrentPayoutIndex--
		c.TotalVolumeDistributed -= c.Contribution
	}

	c.Members = slices.Delete(c.Members, idx, idx+1)
	c.Statuses = slices.Delete(c.Statuses, idx, idx+1)
	c.HasReceivedPayout = slices.Delete(c.HasReceivedPayout, idx, idx+1)
	c.ContributionsPaid = slices.Delete(c.ContributionsPaid, idx, idx+1)
	c.TokenBalance -= outbound
	removeAddress(&c.PayoutQueue, member)
	removeAddress(&c.DissolutionVotes, member)
	removeAddress(&c.ProposalVotes, member)

	// A shrinking roster can push outstanding dissolution votes over the
	// strict-majority line.
	dissolved := e.evaluateDissolution(c)

	if err := e.cfg.Store.PutCircle(ctx, c); err != nil {
		return fmt.Errorf("failed to persist circle: %w", err)
	}
	e.publishDissolved(ctx, c, dissolved)

	if refund > 0 {
		if err := e.cfg.Ledger.Transfer(ctx, Custody, member, refund); err != nil {
			return fmt.Errorf("failed to refund kicked member: %w", err)
		}
	}
	if payPenalty {
		if err := e.cfg.Ledger.Transfer(ctx, Custody, treasury, penalty); err != nil {
			return fmt.Errorf("failed to route penalty to treasury: %w", err)
		}
	}

	e.cfg.Events.Publish(ctx, TopicMemberKicked, KickedEvent{
		CircleID: circleID,
		Member:   member,
		Refund:   refund,
		Penalty:  penalty,
	})
	e.log.Info("member kicked", "circle_id", circleID, "member", member, "refund", refund, "penalty", penalty)
	return nil
}

// SwapMember replaces oldMember with newMember in place: same queue position,
// same accumulated contribution ledger. Both parties must authorize.
func (e *Engine) SwapMember(ctx context.Context, oldProof, newProof Proof, circleID uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.verify(ctx, oldProof, oldProof.Actor); err != nil {
		return err
	}
	if err := e.verify(ctx, newProof, newProof.Actor); err != nil {
		return err
	}

	c, err := e.circle(ctx, circleID)
	if err != nil {
		return err
	}
	if err := e.applySwap(c, oldProof.Actor, newProof.Actor); err != nil {
		return err
	}

	if err := e.cfg.Store.PutCircle(ctx, c); err != nil {
		return fmt.Errorf("failed to persist circle: %w", err)
	}
	e.log.Info("member swapped", "circle_id", circleID, "old", oldProof.Actor, "new", newProof.Actor)
	return nil
}

// SwapMemberByAdmin performs the same in-place replacement under circle-admin
// authority alone, and counts as admin activity for the emergency-withdrawal
// clock.
func (e *Engine) SwapMemberByAdmin(ctx context.Context, proof Proof, circleID uint64, oldMember, newMember Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, err := e.circleAdmin(ctx, proof, circleID)
	if err != nil {
		return err
	}
	if err := e.applySwap(c, oldMember, newMember); err != nil {
		return err
	}

	if err := e.cfg.Store.PutCircle(ctx, c); err != nil {
		return fmt.Errorf("failed to persist circle: %w", err)
	}

	if p, err := e.protocol(ctx); err == nil && p.Admin == proof.Actor {
		e.touchLastActive(p)
		if err := e.cfg.Store.PutProtocol(ctx, p); err != nil {
			return fmt.Errorf("failed to persist protocol state: %w", err)
		}
	}

	e.log.Info("member swapped by admin", "circle_id", circleID, "old", oldMember, "new", newMember)
	return nil
}

// EjectMember marks a member Ejected without removing their slot. An ejected
// member can no longer contribute or be paid, but queue-position bookkeeping
// stays intact for the rest of the roster.
func (e *Engine) EjectMember(ctx context.Context, proof Proof, circleID uint64, member Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, err := e.circleAdmin(ctx, proof, circleID)
	if err != nil {
		return err
	}
	idx := c.memberIndex(member)
	if idx < 0 {
		return ErrMemberNotFound
	}
	if c.Statuses[idx] == MemberEjected {
		return ErrMemberEjected
	}

	c.Statuses[idx] = MemberEjected

	if err := e.cfg.Store.PutCircle(ctx, c); err != nil {
		return fmt.Errorf("failed to persist circle: %w", err)
	}

	e.cfg.Events.Publish(ctx, TopicMemberEjected, EjectedEvent{CircleID: circleID, Member: member})
	e.log.Info("member ejected", "circle_id", circleID, "member", member)
	return nil
}

func (e *Engine) applySwap(c *Circle, oldMember, newMember Address) error {
	idx := c.memberIndex(oldMember)
	if idx < 0 {
		return ErrMemberNotFound
	}
	if oldMember != newMember && c.memberIndex(newMember) >= 0 {
		return ErrMemberAlreadyExists
	}

	c.Members[idx] = newMember
	replaceAddress(c.PayoutQueue, oldMember, newMember)
	replaceAddress(c.DissolutionVotes, oldMember, newMember)
	replaceAddress(c.ProposalVotes, oldMember, newMember)
	return nil
}

func removeAddress(addrs *[]Address, target Address) {
	if i := slices.Index(*addrs, target); i >= 0 {
		*addrs = slices.Delete(*addrs, i, i+1)
	}
}

func replaceAddress(addrs []Address, from, to Address) {
	for i, a := range addrs {
		if a == from {
			addrs[i] = to
		}
	}
}
