package pgstore_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/susuprotocol/rosca/engine"
	"github.com/susuprotocol/rosca/engine/enginetest"
	"github.com/susuprotocol/rosca/store/pgstore"
)

func newTestStore(t *testing.T) *pgstore.Store {
	t.Helper()

	if os.Getenv("ROSCA_TEST_POSTGRES") == "" {
		t.Skip("set ROSCA_TEST_POSTGRES=1 to run postgres integration tests")
	}

	ctx := t.Context()
	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("rosca"),
		tcpostgres.WithUsername("rosca"),
		tcpostgres.WithPassword("rosca"),
		tcpostgres.BasicWaitStrategies(),
		tcpostgres.WithSQLDriver("pgx"),
	)
	require.NoError(t, err, "failed to start postgres container")
	t.Cleanup(func() {
		terminateCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = container.Terminate(terminateCtx)
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	require.NoError(t, pgstore.Migrate(connStr))

	store, err := pgstore.New(ctx, pgstore.Config{
		Logger:  enginetest.NewLogger(),
		ConnStr: connStr,
	})
	require.NoError(t, err)
	t.Cleanup(store.Close)

	return store
}

func TestPGStore(t *testing.T) {
	store := newTestStore(t)
	ctx := t.Context()

	t.Run("circle ids are monotonic", func(t *testing.T) {
		a, err := store.NextCircleID(ctx)
		require.NoError(t, err)
		b, err := store.NextCircleID(ctx)
		require.NoError(t, err)
		require.Greater(t, b, a)
	})

	t.Run("missing circle", func(t *testing.T) {
		_, err := store.GetCircle(ctx, 424242)
		require.ErrorIs(t, err, engine.ErrNotFound)
	})

	t.Run("circle round trip", func(t *testing.T) {
		id, err := store.NextCircleID(ctx)
		require.NoError(t, err)

		proposed := uint32(150)
		c := &engine.Circle{
			ID:                 id,
			Admin:              "admin",
			Contribution:       100,
			Members:            []engine.Address{"alice", "bob"},
			Statuses:           []engine.MemberStatus{engine.MemberActive, engine.MemberEjected},
			HasReceivedPayout:  []bool{true, false},
			ContributionsPaid:  []int64{300, 100},
			PayoutQueue:        []engine.Address{"bob", "alice"},
			CycleNumber:        2,
			CurrentPayoutIndex: 1,
			TokenBalance:       100,
			LateFeeBps:         500,
			CycleDuration:      24 * time.Hour,
			NextDeadline:       time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
			InsuranceFeeBps:    1000,
			InsuranceBalance:   30,
			DissolutionVotes:   []engine.Address{"alice"},
			ProposedLateFeeBps: &proposed,
			ProposalVotes:      []engine.Address{"alice"},
		}
		require.NoError(t, store.PutCircle(ctx, c))

		got, err := store.GetCircle(ctx, id)
		require.NoError(t, err)
		require.Equal(t, c, got)
	})

	t.Run("circle upsert overwrites", func(t *testing.T) {
		id, err := store.NextCircleID(ctx)
		require.NoError(t, err)

		c := &engine.Circle{ID: id, Admin: "admin", Contribution: 100}
		require.NoError(t, store.PutCircle(ctx, c))

		c.IsDissolved = true
		c.TokenBalance = 250
		require.NoError(t, store.PutCircle(ctx, c))

		got, err := store.GetCircle(ctx, id)
		require.NoError(t, err)
		require.True(t, got.IsDissolved)
		require.EqualValues(t, 250, got.TokenBalance)
	})

	t.Run("protocol round trip", func(t *testing.T) {
		_, err := store.GetProtocol(ctx)
		require.ErrorIs(t, err, engine.ErrNotFound)

		p := &engine.Protocol{
			Admin:          "admin",
			FeeBasisPoints: 250,
			Treasury:       "treasury",
			Balances:       map[engine.Address]int64{"alice": 500},
			LastActive:     time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC),
		}
		require.NoError(t, store.PutProtocol(ctx, p))

		got, err := store.GetProtocol(ctx)
		require.NoError(t, err)
		require.Equal(t, p, got)

		p.FeeBasisPoints = 300
		require.NoError(t, store.PutProtocol(ctx, p))
		got, err = store.GetProtocol(ctx)
		require.NoError(t, err)
		require.EqualValues(t, 300, got.FeeBasisPoints)
	})
}
