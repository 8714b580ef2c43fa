package engine

import (
	"context"
	"fmt"
	"slices"
)

// FinalizeCircle commits the payout order. For randomized circles the order
// comes from the injected Shuffler; otherwise join order is preserved. The
// queue is committed exactly once: calling again on a finalized circle is a
// no-op, not an error.
func (e *Engine) FinalizeCircle(ctx context.Context, proof Proof, circleID uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, err := e.circleAdmin(ctx, proof, circleID)
	if err != nil {
		return err
	}
	if c.IsDissolved {
		return ErrAlreadyDissolved
	}
	if c.Finalized() {
		return nil
	}
	if len(c.Members) == 0 {
		return fmt.Errorf("%w: cannot finalize an empty circle", ErrInvalidCircleState)
	}

	queue := slices.Clone(c.Members)
	if c.IsRandomQueue {
		e.cfg.Shuffler.Shuffle(len(queue), func(i, j int) {
			queue[i], queue[j] = queue[j], queue[i]
		})
	}
	c.PayoutQueue = queue

	if err := e.cfg.Store.PutCircle(ctx, c); err != nil {
		return fmt.Errorf("failed to persist circle: %w", err)
	}

	e.cfg.Events.Publish(ctx, TopicCircleFinalized, CircleFinalizedEvent{CircleID: circleID, PayoutQueue: queue})
	e.log.Info("circle finalized", "circle_id", circleID, "members", len(queue), "random_queue", c.IsRandomQueue)
	return nil
}
