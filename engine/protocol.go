package engine

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Initialize creates the protocol record with admin as controller. It runs
// exactly once; a second call fails with ErrAlreadyInitialized.
func (e *Engine) Initialize(ctx context.Context, proof Proof) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.verify(ctx, proof, proof.Actor); err != nil {
		return err
	}

	_, err := e.cfg.Store.GetProtocol(ctx)
	switch {
	case err == nil:
		return ErrAlreadyInitialized
	case !errors.Is(err, ErrNotFound):
		return fmt.Errorf("failed to load protocol state: %w", err)
	}

	p := &Protocol{
		Admin:    proof.Actor,
		Balances: make(map[Address]int64),
	}
	e.touchLastActive(p)

	if err := e.cfg.Store.PutProtocol(ctx, p); err != nil {
		return fmt.Errorf("failed to persist protocol state: %w", err)
	}

	e.log.Info("protocol initialized", "admin", proof.Actor)
	return nil
}

// SetProtocolFee sets the payout fee taken by the protocol and the treasury
// that receives it. Admin only; fees above 100% are rejected.
func (e *Engine) SetProtocolFee(ctx context.Context, proof Proof, feeBasisPoints uint32, treasury Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, err := e.protocolAdmin(ctx, proof)
	if err != nil {
		return err
	}
	if feeBasisPoints > MaxBasisPoints {
		return ErrInvalidFeeConfig
	}

	p.FeeBasisPoints = feeBasisPoints
	p.Treasury = treasury
	e.touchLastActive(p)

	if err := e.cfg.Store.PutProtocol(ctx, p); err != nil {
		return fmt.Errorf("failed to persist protocol state: %w", err)
	}

	e.log.Info("protocol fee updated", "fee_bps", feeBasisPoints, "treasury", treasury)
	return nil
}

// AdminAction is a liveness heartbeat: any admin-authorized call resets the
// emergency-withdrawal clock.
func (e *Engine) AdminAction(ctx context.Context, proof Proof) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, err := e.protocolAdmin(ctx, proof)
	if err != nil {
		return err
	}

	e.touchLastActive(p)
	if err := e.cfg.Store.PutProtocol(ctx, p); err != nil {
		return fmt.Errorf("failed to persist protocol state: %w", err)
	}
	return nil
}

// Deposit pulls amount from the caller into protocol custody and credits
// their balance. Funds are pulled before the credit is recorded, so a balance
// entry always reflects money that actually arrived.
func (e *Engine) Deposit(ctx context.Context, proof Proof, amount int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.verify(ctx, proof, proof.Actor); err != nil {
		return err
	}
	if amount <= 0 {
		return fmt.Errorf("%w: deposit amount must be positive", ErrInvalidCircleState)
	}

	p, err := e.protocol(ctx)
	if err != nil {
		return err
	}

	if err := e.cfg.Ledger.Transfer(ctx, proof.Actor, Custody, amount); err != nil {
		return fmt.Errorf("failed to collect deposit: %w", err)
	}

	p.Balances[proof.Actor] += amount
	if err := e.cfg.Store.PutProtocol(ctx, p); err != nil {
		return fmt.Errorf("failed to persist protocol state: %w", err)
	}

	e.log.Info("deposit received", "user", proof.Actor, "amount", amount)
	return nil
}

// EmergencyWithdraw lets a user reclaim their custodied deposit unilaterally
// once the protocol admin has been inactive for EmergencyWithdrawalDelay.
// The balance entry is cleared before the outbound transfer. Returns the
// amount withdrawn.
func (e *Engine) EmergencyWithdraw(ctx context.Context, proof Proof) (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.verify(ctx, proof, proof.Actor); err != nil {
		return 0, err
	}

	p, err := e.protocol(ctx)
	if err != nil {
		return 0, err
	}

	unlockAt := p.LastActive.Add(EmergencyWithdrawalDelay)
	if !e.cfg.Clock.Now().After(unlockAt) {
		return 0, ErrEmergencyWithdrawalLocked
	}

	amount := p.Balances[proof.Actor]
	delete(p.Balances, proof.Actor)
	if err := e.cfg.Store.PutProtocol(ctx, p); err != nil {
		return 0, fmt.Errorf("failed to persist protocol state: %w", err)
	}

	if amount > 0 {
		if err := e.cfg.Ledger.Transfer(ctx, Custody, proof.Actor, amount); err != nil {
			return 0, fmt.Errorf("failed to return deposit: %w", err)
		}
	}

	e.log.Info("emergency withdrawal", "user", proof.Actor, "amount", amount)
	return amount, nil
}

// FeeBasisPoints returns the current protocol payout fee.
func (e *Engine) FeeBasisPoints(ctx context.Context) (uint32, error) {
	p, err := e.protocol(ctx)
	if err != nil {
		return 0, err
	}
	return p.FeeBasisPoints, nil
}

// TreasuryAddress returns the configured treasury, or "" if unset.
func (e *Engine) TreasuryAddress(ctx context.Context) (Address, error) {
	p, err := e.protocol(ctx)
	if err != nil {
		return "", err
	}
	return p.Treasury, nil
}

// UserBalance returns the custodied deposit balance of user.
func (e *Engine) UserBalance(ctx context.Context, user Address) (int64, error) {
	p, err := e.protocol(ctx)
	if err != nil {
		return 0, err
	}
	return p.Balances[user], nil
}

// LastActiveTimestamp returns the admin liveness timestamp gating emergency
// withdrawal.
func (e *Engine) LastActiveTimestamp(ctx context.Context) (time.Time, error) {
	p, err := e.protocol(ctx)
	if err != nil {
		return time.Time{}, err
	}
	return p.LastActive, nil
}

// protocolAdmin loads the protocol record and checks proof against its admin.
func (e *Engine) protocolAdmin(ctx context.Context, proof Proof) (*Protocol, error) {
	p, err := e.protocol(ctx)
	if err != nil {
		return nil, err
	}
	if proof.Actor != p.Admin {
		return nil, ErrUnauthorized
	}
	if err := e.verify(ctx, proof, p.Admin); err != nil {
		return nil, err
	}
	return p, nil
}
