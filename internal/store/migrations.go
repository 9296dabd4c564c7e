package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Migration adds one column to an existing table. Statements run only when
// the table exists and the column does not, so fresh databases created by
// InitSchema skip straight through.
type Migration struct {
	Table  string
	Column string
	Def    string
}

// pendingMigrations upgrades databases created before newer columns
// existed. Append-only: entries are never removed once shipped.
var pendingMigrations = []Migration{
	// Translated-summary embedding for cross-language matching.
	{"notice", "provider_summary_embedding", "vector(1536)"},
	// Auto-tagged activity codes (added with the enrichment service).
	{"notice", "inferred_ukcat_codes", "TEXT[]"},
	// Contract period columns (added for the renewal radar).
	{"notice", "contract_period_start", "TIMESTAMPTZ"},
	{"notice", "contract_period_end", "TIMESTAMPTZ"},
	// Per-profile exclusion keywords (added with the keyword gate).
	{"service_profile", "exclusion_keywords", "TEXT[]"},
	// Theme sub-score (added with the UKCAT theme scorer).
	{"notice_match", "score_theme", "NUMERIC(5,4)"},
	// Tier-2 review columns.
	{"notice_match", "deep_verdict", "VARCHAR(20)"},
	{"notice_match", "deep_rationale", "TEXT"},
}

// RunMigrations applies the pending column migrations.
func (s *Store) RunMigrations(ctx context.Context) error {
	applied := 0
	skipped := 0

	for _, m := range pendingMigrations {
		exists, err := s.tableExists(ctx, m.Table)
		if err != nil {
			return fmt.Errorf("check table %s: %w", m.Table, err)
		}
		if !exists {
			skipped++
			continue
		}
		hasColumn, err := s.columnExists(ctx, m.Table, m.Column)
		if err != nil {
			return fmt.Errorf("check column %s.%s: %w", m.Table, m.Column, err)
		}
		if hasColumn {
			skipped++
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", m.Table, m.Column, m.Def)
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate %s.%s: %w", m.Table, m.Column, err)
		}
		s.logger.Info("migration applied",
			zap.String("table", m.Table), zap.String("column", m.Column))
		applied++
	}

	s.logger.Info("migrations complete", zap.Int("applied", applied), zap.Int("skipped", skipped))
	return nil
}

func (s *Store) tableExists(ctx context.Context, table string) (bool, error) {
	var exists bool
	err := s.db.QueryRowxContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = current_schema() AND table_name = $1
		)`, table).Scan(&exists)
	return exists, err
}

func (s *Store) columnExists(ctx context.Context, table, column string) (bool, error) {
	var exists bool
	err := s.db.QueryRowxContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.columns
			WHERE table_schema = current_schema() AND table_name = $1 AND column_name = $2
		)`, table, column).Scan(&exists)
	return exists, err
}
