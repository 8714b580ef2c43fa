// Package pgstore is the PostgreSQL-backed Store. Records are persisted as
// JSONB documents alongside a few indexed scalar columns; schema changes run
// through embedded goose migrations.
package pgstore

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx driver with database/sql for goose
	"github.com/pressly/goose/v3"

	"github.com/susuprotocol/rosca/engine"
	"github.com/susuprotocol/rosca/pkg/retry"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

type Config struct {
	Logger  *slog.Logger
	ConnStr string
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.ConnStr == "" {
		return errors.New("connection string is required")
	}
	return nil
}

type Store struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func New(ctx context.Context, cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	pool, err := pgxpool.New(ctx, cfg.ConnStr)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	// The database may still be coming up when the daemon starts.
	if err := retry.Do(ctx, retry.DefaultConfig(), func() error {
		return pool.Ping(ctx)
	}); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	return &Store{log: cfg.Logger, pool: pool}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

// Migrate applies all pending migrations.
func Migrate(connStr string) error {
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// MigrationStatus prints migration status to stdout.
func MigrationStatus(connStr string) error {
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := goose.Status(db, "migrations"); err != nil {
		return fmt.Errorf("failed to get migration status: %w", err)
	}
	return nil
}

func (s *Store) NextCircleID(ctx context.Context) (uint64, error) {
	var id uint64
	if err := s.pool.QueryRow(ctx, `SELECT nextval('circle_id_seq')`).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to allocate circle id: %w", err)
	}
	return id, nil
}

func (s *Store) GetCircle(ctx context.Context, id uint64) (*engine.Circle, error) {
	var record []byte
	err := s.pool.QueryRow(ctx, `SELECT record FROM circles WHERE id = $1`, int64(id)).Scan(&record)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, engine.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query circle %d: %w", id, err)
	}

	var c engine.Circle
	if err := json.Unmarshal(record, &c); err != nil {
		return nil, fmt.Errorf("failed to decode circle %d: %w", id, err)
	}
	return &c, nil
}

func (s *Store) PutCircle(ctx context.Context, c *engine.Circle) error {
	record, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode circle %d: %w", c.ID, err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO circles (id, admin, is_dissolved, record, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (id) DO UPDATE
		SET admin = EXCLUDED.admin,
		    is_dissolved = EXCLUDED.is_dissolved,
		    record = EXCLUDED.record,
		    updated_at = now()
	`, int64(c.ID), string(c.Admin), c.IsDissolved, record)
	if err != nil {
		return fmt.Errorf("failed to upsert circle %d: %w", c.ID, err)
	}
	return nil
}

func (s *Store) GetProtocol(ctx context.Context) (*engine.Protocol, error) {
	var record []byte
	err := s.pool.QueryRow(ctx, `SELECT record FROM protocol WHERE id = 1`).Scan(&record)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, engine.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query protocol record: %w", err)
	}

	var p engine.Protocol
	if err := json.Unmarshal(record, &p); err != nil {
		return nil, fmt.Errorf("failed to decode protocol record: %w", err)
	}
	if p.Balances == nil {
		p.Balances = make(map[engine.Address]int64)
	}
	return &p, nil
}

func (s *Store) PutProtocol(ctx context.Context, p *engine.Protocol) error {
	record, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode protocol record: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO protocol (id, record, updated_at)
		VALUES (1, $1, now())
		ON CONFLICT (id) DO UPDATE
		SET record = EXCLUDED.record, updated_at = now()
	`, record)
	if err != nil {
		return fmt.Errorf("failed to upsert protocol record: %w", err)
	}
	return nil
}
