package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"tendermatch/internal/model"
)

// BeginRun opens an ingestion-log row in RUNNING state.
func (s *Store) BeginRun(ctx context.Context, source string) (uuid.UUID, error) {
	id := uuid.New()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ingestion_log (id, source, status) VALUES ($1, $2, $3)`,
		id, source, model.RunRunning)
	if err != nil {
		return uuid.Nil, fmt.Errorf("begin ingestion run: %w", err)
	}
	return id, nil
}

// CompleteRun finalises an ingestion-log row. The log is append-only:
// rows are finalised once and never rewritten.
func (s *Store) CompleteRun(ctx context.Context, id uuid.UUID, status string, items int, errDetails string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE ingestion_log
		SET status = $2, items_processed = $3, error_details = $4, completed_at = now()
		WHERE id = $1`,
		id, status, items, nullString(errDetails))
	if err != nil {
		return fmt.Errorf("complete ingestion run %s: %w", id, err)
	}
	return nil
}

// LastSuccess returns the completion time of the most recent successful
// run for a source, or nil when the source has never succeeded.
func (s *Store) LastSuccess(ctx context.Context, source string) (*time.Time, error) {
	var completed *time.Time
	err := sqlx.GetContext(ctx, s.db, &completed, `
		SELECT completed_at FROM ingestion_log
		WHERE source = $1 AND status = $2
		ORDER BY completed_at DESC
		LIMIT 1`, source, model.RunSuccess)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("last successful run for %s: %w", source, err)
	}
	return completed, nil
}
