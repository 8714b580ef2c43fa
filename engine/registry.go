package engine

import (
	"context"
	"fmt"
)

// CreateCircle allocates the next circle ID and writes an empty circle record
// with the caller as admin. The contribution is the fixed per-cycle amount
// every member owes and must be positive.
func (e *Engine) CreateCircle(ctx context.Context, proof Proof, contribution int64, isRandomQueue bool, opts CircleOptions) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.verify(ctx, proof, proof.Actor); err != nil {
		return 0, err
	}
	if contribution <= 0 {
		return 0, fmt.Errorf("%w: contribution must be positive", ErrInvalidCircleState)
	}
	if opts.LateFeeBps > MaxBasisPoints || opts.InsuranceFeeBps > MaxBasisPoints {
		return 0, ErrInvalidFeeConfig
	}

	id, err := e.cfg.Store.NextCircleID(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate circle id: %w", err)
	}

	c := &Circle{
		ID:              id,
		Admin:           proof.Actor,
		Contribution:    contribution,
		IsRandomQueue:   isRandomQueue,
		CycleNumber:     1,
		LateFeeBps:      opts.LateFeeBps,
		InsuranceFeeBps: opts.InsuranceFeeBps,
		CycleDuration:   opts.CycleDuration,
	}
	if opts.CycleDuration > 0 {
		c.NextDeadline = e.cfg.Clock.Now().UTC().Add(opts.CycleDuration)
	}

	if err := e.cfg.Store.PutCircle(ctx, c); err != nil {
		return 0, fmt.Errorf("failed to persist circle: %w", err)
	}

	e.cfg.Events.Publish(ctx, TopicCircleCreated, CircleCreatedEvent{
		CircleID:     id,
		Admin:        proof.Actor,
		Contribution: contribution,
	})
	e.log.Info("circle created", "circle_id", id, "admin", proof.Actor, "contribution", contribution, "random_queue", isRandomQueue)
	return id, nil
}

// GetCircle returns the full circle record.
func (e *Engine) GetCircle(ctx context.Context, id uint64) (*Circle, error) {
	return e.circle(ctx, id)
}

// GetPayoutQueue returns the finalized payout order; empty before
// finalization.
func (e *Engine) GetPayoutQueue(ctx context.Context, id uint64) ([]Address, error) {
	c, err := e.circle(ctx, id)
	if err != nil {
		return nil, err
	}
	return c.PayoutQueue, nil
}

// GetCycleInfo returns the current cycle number, payouts made this cycle and
// gross volume distributed this cycle.
func (e *Engine) GetCycleInfo(ctx context.Context, id uint64) (CycleInfo, error) {
	c, err := e.circle(ctx, id)
	if err != nil {
		return CycleInfo{}, err
	}
	return CycleInfo{
		CycleNumber:            c.CycleNumber,
		CurrentPayoutIndex:     c.CurrentPayoutIndex,
		TotalVolumeDistributed: c.TotalVolumeDistributed,
	}, nil
}

// GetPayoutStatus returns the per-member payout flags for the current cycle.
func (e *Engine) GetPayoutStatus(ctx context.Context, id uint64) ([]bool, error) {
	c, err := e.circle(ctx, id)
	if err != nil {
		return nil, err
	}
	return c.HasReceivedPayout, nil
}
