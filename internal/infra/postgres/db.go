// Package postgres is the PostgreSQL store backend built on pgx.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/sacha-rebbouh/optim-financials/internal/config"
	"github.com/sacha-rebbouh/optim-financials/internal/store"
)

// Querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

var (
	_ Querier     = (*pgxpool.Pool)(nil)
	_ Querier     = (pgx.Tx)(nil)
	_ store.Store = (*Store)(nil)
)

// Store implements store.Store against PostgreSQL.
type Store struct {
	querier Querier
	pool    *pgxpool.Pool
	log     zerolog.Logger
}

// Open applies pending migrations and connects a pool.
func Open(ctx context.Context, cfg config.StoreConfig, log zerolog.Logger) (*Store, error) {
	if err := RunMigrations(cfg.PostgresURL, cfg.PostgresMigrationsPath); err != nil {
		return nil, err
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.PostgresURL)
	if err != nil {
		return nil, fmt.Errorf("Open: parsing connection string: %w", err)
	}
	poolConfig.MaxConns = cfg.PostgresMaxConns
	poolConfig.MinConns = cfg.PostgresMinConns

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("Open: creating pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("Open: ping: %w", err)
	}

	log.Info().Msg("connected to PostgreSQL")
	return &Store{querier: pool, pool: pool, log: log}, nil
}

// NewWithQuerier builds a store on an existing querier (pool, tx or mock).
func NewWithQuerier(q Querier, log zerolog.Logger) *Store {
	return &Store{querier: q, log: log}
}

func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}
