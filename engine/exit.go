package engine

import (
	"context"
	"fmt"
)

// WithdrawProRata returns a member's net unreturned contributions after
// dissolution: everything they paid in, minus one contribution if they
// already received this cycle's payout. The ledger entry is zeroed before the
// transfer, which makes a second call return 0 rather than an error.
func (e *Engine) WithdrawProRata(ctx context.Context, proof Proof, circleID uint64) (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.verify(ctx, proof, proof.Actor); err != nil {
		return 0, err
	}

	c, err := e.circle(ctx, circleID)
	if err != nil {
		return 0, err
	}
	if !c.IsDissolved {
		return 0, ErrNotDissolved
	}
	idx := c.memberIndex(proof.Actor)
	if idx < 0 {
		return 0, ErrNotMember
	}

	contributed := c.ContributionsPaid[idx]
	received := int64(0)
	if c.HasReceivedPayout[idx] {
		received = c.Contribution
	}
	refundable := contributed - received
	if refundable <= 0 {
		return 0, nil
	}
	if c.TokenBalance < refundable {
		// The reserve can run short of the sum of ledger entries only if
		// payouts already consumed it; cap the refund at what is custodied.
		refundable = c.TokenBalance
	}
	if refundable <= 0 {
		return 0, nil
	}

	c.ContributionsPaid[idx] = 0
	c.TokenBalance -= refundable

	if err := e.cfg.Store.PutCircle(ctx, c); err != nil {
		return 0, fmt.Errorf("failed to persist circle: %w", err)
	}

	if err := e.cfg.Ledger.Transfer(ctx, Custody, proof.Actor, refundable); err != nil {
		return 0, fmt.Errorf("failed to transfer pro-rata refund: %w", err)
	}

	e.log.Info("pro-rata withdrawal", "circle_id", circleID, "member", proof.Actor, "amount", refundable)
	return refundable, nil
}
