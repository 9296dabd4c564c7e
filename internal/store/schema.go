package store

import (
	"context"
	"fmt"
)

// schemaStatements create the full schema. Idempotent: every statement
// uses IF NOT EXISTS. The vector extension must be installable by the
// connecting role.
var schemaStatements = []string{
	`CREATE EXTENSION IF NOT EXISTS vector`,

	`CREATE TABLE IF NOT EXISTS buyer (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		canonical_name TEXT NOT NULL,
		slug TEXT NOT NULL,
		identifiers JSONB,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS buyer_slug_key ON buyer (slug)`,

	`CREATE TABLE IF NOT EXISTS notice (
		ocid TEXT PRIMARY KEY,
		release_id TEXT,
		title TEXT NOT NULL,
		description TEXT,
		buyer_id UUID REFERENCES buyer (id),
		publication_date TIMESTAMPTZ NOT NULL,
		deadline_date TIMESTAMPTZ,
		value_amount NUMERIC(18,2),
		value_currency VARCHAR(3) DEFAULT 'GBP',
		procurement_method VARCHAR(50),
		notice_type VARCHAR(50),
		raw_release JSONB NOT NULL,
		source_url TEXT,
		cpv_codes TEXT[],
		inferred_ukcat_codes TEXT[],
		contract_period_start TIMESTAMPTZ,
		contract_period_end TIMESTAMPTZ,
		embedding vector(1536),
		provider_summary_embedding vector(1536),
		is_archived BOOLEAN DEFAULT FALSE,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS notice_cpv_codes_gin ON notice USING GIN (cpv_codes)`,
	`CREATE INDEX IF NOT EXISTS notice_buyer_id_idx ON notice (buyer_id)`,

	`CREATE TABLE IF NOT EXISTS service_profile (
		org_id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		charity_number VARCHAR(20) UNIQUE,
		name TEXT NOT NULL,
		latest_income BIGINT,
		mission TEXT,
		vision TEXT,
		programs_services TEXT,
		target_population TEXT,
		ukcat_codes TEXT[],
		beneficiary_groups TEXT[],
		inferred_cpv_codes TEXT[],
		service_regions JSONB,
		min_contract_value BIGINT,
		max_contract_value BIGINT,
		exclusion_keywords TEXT[],
		profile_embedding vector(1536),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS notice_match (
		org_id UUID NOT NULL REFERENCES service_profile (org_id),
		notice_id TEXT NOT NULL REFERENCES notice (ocid),
		score NUMERIC(5,4),
		score_semantic NUMERIC(5,4),
		score_domain NUMERIC(5,4),
		score_geo NUMERIC(5,4),
		score_theme NUMERIC(5,4),
		verdict VARCHAR(20),
		viability_warning TEXT,
		risk_flags JSONB,
		checklist JSONB,
		recommendation_reasons TEXT[],
		is_tracked BOOLEAN DEFAULT FALSE,
		deep_verdict VARCHAR(20),
		deep_rationale TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (org_id, notice_id)
	)`,

	`CREATE TABLE IF NOT EXISTS alert (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		org_id UUID REFERENCES service_profile (org_id),
		notice_id TEXT REFERENCES notice (ocid),
		alert_type VARCHAR(50),
		severity VARCHAR(20),
		message TEXT,
		details JSONB,
		is_read BOOLEAN DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS alert_org_unread_idx ON alert (org_id, is_read)`,

	`CREATE TABLE IF NOT EXISTS ingestion_log (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		source VARCHAR(50) NOT NULL,
		started_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		completed_at TIMESTAMPTZ,
		status VARCHAR(20),
		items_processed INTEGER DEFAULT 0,
		error_details TEXT
	)`,
}

// InitSchema creates the schema if missing.
func (s *Store) InitSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	s.logger.Info("schema initialised")
	return nil
}
