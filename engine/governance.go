package engine

import (
	"context"
	"fmt"
	"slices"
)

// ProposeDissolution records the caller's dissolution vote. Unlike
// VoteDissolve it tolerates repeats, so a member can "re-propose" without
// failing. The quorum is evaluated immediately.
func (e *Engine) ProposeDissolution(ctx context.Context, proof Proof, circleID uint64) error {
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
	if c.memberIndex(proof.Actor) < 0 {
		return ErrNotMember
	}

	if !slices.Contains(c.DissolutionVotes, proof.Actor) {
		c.DissolutionVotes = append(c.DissolutionVotes, proof.Actor)
	}
	dissolved := e.evaluateDissolution(c)

	if err := e.cfg.Store.PutCircle(ctx, c); err != nil {
		return fmt.Errorf("failed to persist circle: %w", err)
	}
	e.publishDissolved(ctx, c, dissolved)
	return nil
}

// VoteDissolve casts one dissolution vote. Each member votes at most once;
// the strict-majority quorum (votes*2 > member count) is re-evaluated on
// every vote, and dissolution is monotonic once reached.
func (e *Engine) VoteDissolve(ctx context.Context, proof Proof, circleID uint64) error {
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
	if c.memberIndex(proof.Actor) < 0 {
		return ErrNotMember
	}
	if slices.Contains(c.DissolutionVotes, proof.Actor) {
		return ErrAlreadyVoted
	}

	c.DissolutionVotes = append(c.DissolutionVotes, proof.Actor)
	dissolved := e.evaluateDissolution(c)

	if err := e.cfg.Store.PutCircle(ctx, c); err != nil {
		return fmt.Errorf("failed to persist circle: %w", err)
	}
	e.publishDissolved(ctx, c, dissolved)

	e.log.Info("dissolution vote cast",
		"circle_id", circleID, "member", proof.Actor,
		"votes", len(c.DissolutionVotes), "members", len(c.Members), "dissolved", c.IsDissolved)
	return nil
}

// ProposePenaltyChange opens (or replaces) a late-fee change proposal. The
// vote set resets and the proposer's own vote is cast automatically.
func (e *Engine) ProposePenaltyChange(ctx context.Context, proof Proof, circleID uint64, newLateFeeBps uint32) error {
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
	if c.memberIndex(proof.Actor) < 0 {
		return ErrNotMember
	}
	if newLateFeeBps > MaxBasisPoints {
		return ErrInvalidFeeConfig
	}

	bps := newLateFeeBps
	c.ProposedLateFeeBps = &bps
	c.ProposalVotes = []Address{proof.Actor}
	e.applyPenaltyProposalIfPassed(c)

	if err := e.cfg.Store.PutCircle(ctx, c); err != nil {
		return fmt.Errorf("failed to persist circle: %w", err)
	}

	e.log.Info("penalty change proposed", "circle_id", circleID, "member", proof.Actor, "late_fee_bps", newLateFeeBps)
	return nil
}

// VotePenaltyChange adds a vote to the open late-fee proposal. On strict
// majority the proposed value takes effect and the proposal is cleared.
func (e *Engine) VotePenaltyChange(ctx context.Context, proof Proof, circleID uint64) error {
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
	if c.memberIndex(proof.Actor) < 0 {
		return ErrNotMember
	}
	if c.ProposedLateFeeBps == nil {
		return ErrNoActiveProposal
	}
	if slices.Contains(c.ProposalVotes, proof.Actor) {
		return ErrAlreadyVoted
	}

	c.ProposalVotes = append(c.ProposalVotes, proof.Actor)
	applied := e.applyPenaltyProposalIfPassed(c)

	if err := e.cfg.Store.PutCircle(ctx, c); err != nil {
		return fmt.Errorf("failed to persist circle: %w", err)
	}

	e.log.Info("penalty change vote cast",
		"circle_id", circleID, "member", proof.Actor, "applied", applied)
	return nil
}

// evaluateDissolution flips IsDissolved when votes reach a strict majority of
// the current roster. Returns true only when the flip happens in this call.
func (e *Engine) evaluateDissolution(c *Circle) bool {
	if c.IsDissolved {
		return false
	}
	if len(c.DissolutionVotes)*2 > len(c.Members) {
		c.IsDissolved = true
		return true
	}
	return false
}

func (e *Engine) publishDissolved(ctx context.Context, c *Circle, dissolved bool) {
	if !dissolved {
		return
	}
	e.cfg.Events.Publish(ctx, TopicCircleDissolved, CircleDissolvedEvent{
		CircleID: c.ID,
		Votes:    len(c.DissolutionVotes),
		Members:  len(c.Members),
	})
	e.log.Info("circle dissolved", "circle_id", c.ID, "votes", len(c.DissolutionVotes), "members", len(c.Members))
}

func (e *Engine) applyPenaltyProposalIfPassed(c *Circle) bool {
	if c.ProposedLateFeeBps == nil {
		return false
	}
	if len(c.ProposalVotes)*2 <= len(c.Members) {
		return false
	}
	c.LateFeeBps = *c.ProposedLateFeeBps
	c.ProposedLateFeeBps = nil
	c.ProposalVotes = nil
	return true
}
