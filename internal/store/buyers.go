package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"tendermatch/internal/model"
	"tendermatch/internal/ocds"
)

// UpsertBuyer inserts or refreshes a buyer by slug and returns its id.
// Buyers are created on first sight and never deleted.
func (s *Store) UpsertBuyer(ctx context.Context, q sqlx.ExtContext, patch ocds.BuyerPatch) (uuid.UUID, error) {
	var id uuid.UUID
	row := q.QueryRowxContext(ctx, `
		INSERT INTO buyer (canonical_name, slug, identifiers)
		VALUES ($1, $2, $3)
		ON CONFLICT (slug) DO UPDATE SET canonical_name = EXCLUDED.canonical_name
		RETURNING id`,
		patch.CanonicalName, patch.Slug, patch.Identifiers)
	if err := row.Scan(&id); err != nil {
		return uuid.Nil, fmt.Errorf("upsert buyer %q: %w", patch.Slug, err)
	}
	return id, nil
}

// GetBuyer fetches a buyer by id.
func (s *Store) GetBuyer(ctx context.Context, id uuid.UUID) (*model.Buyer, error) {
	var row struct {
		ID            uuid.UUID     `db:"id"`
		CanonicalName string        `db:"canonical_name"`
		Slug          string        `db:"slug"`
		Identifiers   model.JSONMap `db:"identifiers"`
		CreatedAt     time.Time     `db:"created_at"`
	}
	err := sqlx.GetContext(ctx, s.db, &row,
		`SELECT id, canonical_name, slug, identifiers, created_at FROM buyer WHERE id = $1`, id)
	if err != nil {
		return nil, wrapNotFound(err, "buyer")
	}
	return &model.Buyer{
		ID:            row.ID,
		CanonicalName: row.CanonicalName,
		Slug:          row.Slug,
		Identifiers:   row.Identifiers,
		CreatedAt:     row.CreatedAt,
	}, nil
}
