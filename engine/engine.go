// Package engine implements the circle lifecycle and settlement state machine
// of the ROSCA protocol: circle creation, membership, payout-queue
// finalization, cycle-by-cycle payout settlement, fee and insurance
// accounting, governance and dissolution.
//
// Every public operation follows checks-effects-interactions: it verifies the
// caller's proof, re-reads current persisted state, validates every
// precondition, persists the mutated records, and only then performs value
// transfers and publishes events. An error anywhere before the persist leaves
// the store untouched, so a failed call never exposes a partial mutation.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/susuprotocol/rosca/events"
)

// Store is the persistence boundary. Implementations must make each Put
// visible atomically; the engine never writes more than one circle record and
// one protocol record per operation, protocol record last.
type Store interface {
	NextCircleID(ctx context.Context) (uint64, error)
	GetCircle(ctx context.Context, id uint64) (*Circle, error)
	PutCircle(ctx context.Context, c *Circle) error
	GetProtocol(ctx context.Context) (*Protocol, error)
	PutProtocol(ctx context.Context, p *Protocol) error
}

// ErrNotFound is returned by Store implementations for missing records; the
// engine maps it onto the operation-specific sentinel.
var ErrNotFound = errors.New("record not found")

// Ledger is the external value-transfer primitive. The engine invokes it only
// after all of its own state is committed, so a transfer that re-enters the
// engine observes post-mutation state.
type Ledger interface {
	Transfer(ctx context.Context, from, to Address, amount int64) error
}

// Verifier is the authorization oracle: it checks that proof authenticates
// principal. Every state-mutating operation calls it before touching anything.
type Verifier interface {
	Verify(ctx context.Context, proof Proof, principal Address) error
}

// Shuffler supplies the fair random permutation used for randomized payout
// queues. The engine never generates randomness itself.
type Shuffler interface {
	Shuffle(n int, swap func(i, j int))
}

// Custody is the address the engine transfers custodied funds from and to.
// The ledger implementation decides what it corresponds to (the contract
// account, an omnibus wallet, ...).
const Custody Address = "custody"

type Config struct {
	Logger   *slog.Logger
	Store    Store
	Ledger   Ledger
	Auth     Verifier
	Events   events.Sink
	Shuffler Shuffler
	Clock    clockwork.Clock
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Store == nil {
		return errors.New("store is required")
	}
	if cfg.Ledger == nil {
		return errors.New("ledger is required")
	}
	if cfg.Auth == nil {
		return errors.New("auth verifier is required")
	}
	if cfg.Shuffler == nil {
		cfg.Shuffler = CryptoShuffler{}
	}
	if cfg.Events == nil {
		cfg.Events = events.NopSink{}
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return nil
}

// Engine executes settlement operations against a Store. Public operations are
// serialized by a mutex: the hosting environment is expected to submit calls
// in an arbitrary order, and each one must run as a single atomic unit.
type Engine struct {
	log *slog.Logger
	cfg Config
	mu  sync.Mutex
}

func New(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		log: cfg.Logger,
		cfg: cfg,
	}, nil
}

// verify authenticates proof for principal, mapping any oracle failure to
// ErrUnauthorized.
func (e *Engine) verify(ctx context.Context, proof Proof, principal Address) error {
	if err := e.cfg.Auth.Verify(ctx, proof, principal); err != nil {
		return fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	return nil
}

// circle loads a circle record, translating a store miss to ErrCircleNotFound.
func (e *Engine) circle(ctx context.Context, id uint64) (*Circle, error) {
	c, err := e.cfg.Store.GetCircle(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrCircleNotFound
		}
		return nil, fmt.Errorf("failed to load circle %d: %w", id, err)
	}
	return c, nil
}

// circleAdmin loads a circle and checks that proof authenticates its admin.
func (e *Engine) circleAdmin(ctx context.Context, proof Proof, id uint64) (*Circle, error) {
	c, err := e.circle(ctx, id)
	if err != nil {
		return nil, err
	}
	if proof.Actor != c.Admin {
		return nil, ErrUnauthorized
	}
	if err := e.verify(ctx, proof, c.Admin); err != nil {
		return nil, err
	}
	return c, nil
}

// protocol loads the protocol record, translating a store miss to
// ErrNotInitialized.
func (e *Engine) protocol(ctx context.Context) (*Protocol, error) {
	p, err := e.cfg.Store.GetProtocol(ctx)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotInitialized
		}
		return nil, fmt.Errorf("failed to load protocol state: %w", err)
	}
	return p, nil
}

// touchLastActive stamps admin liveness for the emergency-withdrawal gate.
func (e *Engine) touchLastActive(p *Protocol) {
	p.LastActive = e.cfg.Clock.Now().UTC()
}
