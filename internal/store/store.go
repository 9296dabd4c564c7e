// Package store is the Postgres persistence layer. It owns the schema
// (pgvector for embeddings, GIN-indexed text arrays for CPV codes) and
// exposes record-oriented operations plus the transaction scopes the
// ingestion worker and matching engine require: per-release commits during
// ingestion, one commit per profile during matching.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx database/sql driver
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrInvariant marks writes that would violate a persistence invariant,
// such as clearing a non-null Tier-2 verdict. Fatal at run level.
var ErrInvariant = errors.New("invariant violation")

// Store wraps the Postgres connection pool.
type Store struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// New opens and pings the database.
func New(ctx context.Context, databaseURL string, logger *zap.Logger) (*Store, error) {
	db, err := sqlx.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: db, logger: logger.Named("store")}, nil
}

// Close releases the pool.
func (s *Store) Close() error { return s.db.Close() }

// WithTx runs fn inside a transaction, committing on nil and rolling back
// on error or panic.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.logger.Warn("rollback failed", zap.Error(rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
