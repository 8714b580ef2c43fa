// Package enginetest provides fixtures shared by the engine and server test
// suites: an engine wired to in-memory collaborators, a fake clock, and a
// deterministic shuffler.
package enginetest

import (
	"log/slog"
	"os"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/susuprotocol/rosca/auth"
	"github.com/susuprotocol/rosca/engine"
	"github.com/susuprotocol/rosca/events"
	"github.com/susuprotocol/rosca/ledger"
	"github.com/susuprotocol/rosca/store/memstore"
)

// ReverseShuffler is a deterministic Shuffler: it reverses the slice. Handy
// because the result is a visibly different permutation of the input.
type ReverseShuffler struct{}

func (ReverseShuffler) Shuffle(n int, swap func(i, j int)) {
	for i, j := 0, n-1; i < j; i, j = i+1, j-1 {
		swap(i, j)
	}
}

// Harness is an engine wired to in-memory collaborators.
type Harness struct {
	Engine *engine.Engine
	Store  *memstore.Store
	Ledger *ledger.Memory
	Events *events.Recorder
	Clock  *clockwork.FakeClock
}

// New builds a harness with a static auth verifier and the reverse shuffler.
func New(t testing.TB) *Harness {
	t.Helper()

	h := &Harness{
		Store:  memstore.New(),
		Ledger: ledger.NewMemory(),
		Events: events.NewRecorder(),
		Clock:  clockwork.NewFakeClock(),
	}

	eng, err := engine.New(engine.Config{
		Logger:   NewLogger(),
		Store:    h.Store,
		Ledger:   h.Ledger,
		Auth:     auth.Static{},
		Events:   h.Events,
		Shuffler: ReverseShuffler{},
		Clock:    h.Clock,
	})
	require.NoError(t, err)
	h.Engine = eng
	return h
}

// Proof returns a proof the static verifier accepts for actor.
func Proof(actor engine.Address) engine.Proof {
	return engine.Proof{Actor: actor}
}

// Fund mints amount to account on the in-memory asset ledger.
func (h *Harness) Fund(account engine.Address, amount int64) {
	h.Ledger.Mint(account, amount)
}

// NewLogger returns a logger that stays quiet unless DEBUG is set.
func NewLogger() *slog.Logger {
	var level slog.Level
	switch os.Getenv("DEBUG") {
	case "2":
		level = slog.LevelDebug
	case "1":
		level = slog.LevelInfo
	default:
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
