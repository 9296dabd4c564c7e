package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	pgvector "github.com/pgvector/pgvector-go"

	"tendermatch/internal/model"
)

const profileColumns = `org_id, charity_number, name, latest_income,
	mission, vision, programs_services, target_population, ukcat_codes,
	beneficiary_groups, inferred_cpv_codes, service_regions,
	min_contract_value, max_contract_value, exclusion_keywords,
	profile_embedding, updated_at`

type profileRow struct {
	OrgID             uuid.UUID        `db:"org_id"`
	CharityNumber     sql.NullString   `db:"charity_number"`
	Name              string           `db:"name"`
	LatestIncome      sql.NullInt64    `db:"latest_income"`
	Mission           sql.NullString   `db:"mission"`
	Vision            sql.NullString   `db:"vision"`
	ProgramsServices  sql.NullString   `db:"programs_services"`
	TargetPopulation  sql.NullString   `db:"target_population"`
	UKCATCodes        pq.StringArray   `db:"ukcat_codes"`
	BeneficiaryGroups pq.StringArray   `db:"beneficiary_groups"`
	InferredCPVCodes  pq.StringArray   `db:"inferred_cpv_codes"`
	ServiceRegions    model.RegionList `db:"service_regions"`
	MinContractValue  sql.NullInt64    `db:"min_contract_value"`
	MaxContractValue  sql.NullInt64    `db:"max_contract_value"`
	ExclusionKeywords pq.StringArray   `db:"exclusion_keywords"`
	ProfileEmbedding  *pgvector.Vector `db:"profile_embedding"`
	UpdatedAt         time.Time        `db:"updated_at"`
}

func (r *profileRow) toModel() *model.ServiceProfile {
	p := &model.ServiceProfile{
		OrgID:             r.OrgID,
		CharityNumber:     r.CharityNumber.String,
		Name:              r.Name,
		LatestIncome:      r.LatestIncome.Int64,
		Mission:           r.Mission.String,
		Vision:            r.Vision.String,
		ProgramsServices:  r.ProgramsServices.String,
		TargetPopulation:  r.TargetPopulation.String,
		UKCATThemes:       r.UKCATCodes,
		BeneficiaryGroups: r.BeneficiaryGroups,
		InferredCPVCodes:  r.InferredCPVCodes,
		ServiceRegions:    r.ServiceRegions,
		MinContractValue:  r.MinContractValue.Int64,
		MaxContractValue:  r.MaxContractValue.Int64,
		ExclusionKeywords: r.ExclusionKeywords,
		UpdatedAt:         r.UpdatedAt,
	}
	if r.ProfileEmbedding != nil {
		p.ProfileEmbedding = r.ProfileEmbedding.Slice()
	}
	return p
}

// GetProfile fetches one service profile.
func (s *Store) GetProfile(ctx context.Context, orgID uuid.UUID) (*model.ServiceProfile, error) {
	var row profileRow
	err := sqlx.GetContext(ctx, s.db, &row,
		`SELECT `+profileColumns+` FROM service_profile WHERE org_id = $1`, orgID)
	if err != nil {
		return nil, wrapNotFound(err, "profile "+orgID.String())
	}
	return row.toModel(), nil
}

// ListProfiles returns all service profiles.
func (s *Store) ListProfiles(ctx context.Context) ([]model.ServiceProfile, error) {
	rows := []profileRow{}
	err := sqlx.SelectContext(ctx, s.db, &rows,
		`SELECT `+profileColumns+` FROM service_profile ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	out := make([]model.ServiceProfile, 0, len(rows))
	for i := range rows {
		out = append(out, *rows[i].toModel())
	}
	return out, nil
}

// ProfileCPVCodes returns each active profile's inferred CPV list.
// Feeds the interest mesh.
func (s *Store) ProfileCPVCodes(ctx context.Context) ([][]string, error) {
	var lists []pq.StringArray
	err := sqlx.SelectContext(ctx, s.db, &lists,
		`SELECT COALESCE(inferred_cpv_codes, '{}') FROM service_profile`)
	if err != nil {
		return nil, fmt.Errorf("profile cpv codes: %w", err)
	}
	out := make([][]string, 0, len(lists))
	for _, list := range lists {
		out = append(out, []string(list))
	}
	return out, nil
}

// UpsertProfile creates or replaces a service profile by org id. Callers
// must invalidate the interest mesh afterwards.
func (s *Store) UpsertProfile(ctx context.Context, p *model.ServiceProfile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if p.OrgID == uuid.Nil {
		p.OrgID = uuid.New()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO service_profile (
			org_id, charity_number, name, latest_income, mission, vision,
			programs_services, target_population, ukcat_codes,
			beneficiary_groups, inferred_cpv_codes, service_regions,
			min_contract_value, max_contract_value, exclusion_keywords,
			profile_embedding, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,now())
		ON CONFLICT (org_id) DO UPDATE SET
			charity_number = EXCLUDED.charity_number,
			name = EXCLUDED.name,
			latest_income = EXCLUDED.latest_income,
			mission = EXCLUDED.mission,
			vision = EXCLUDED.vision,
			programs_services = EXCLUDED.programs_services,
			target_population = EXCLUDED.target_population,
			ukcat_codes = EXCLUDED.ukcat_codes,
			beneficiary_groups = EXCLUDED.beneficiary_groups,
			inferred_cpv_codes = EXCLUDED.inferred_cpv_codes,
			service_regions = EXCLUDED.service_regions,
			min_contract_value = EXCLUDED.min_contract_value,
			max_contract_value = EXCLUDED.max_contract_value,
			exclusion_keywords = EXCLUDED.exclusion_keywords,
			profile_embedding = EXCLUDED.profile_embedding,
			updated_at = now()`,
		p.OrgID, nullString(p.CharityNumber), p.Name, p.LatestIncome,
		nullString(p.Mission), nullString(p.Vision),
		nullString(p.ProgramsServices), nullString(p.TargetPopulation),
		textArray(p.UKCATThemes), textArray(p.BeneficiaryGroups),
		textArray(p.InferredCPVCodes), p.ServiceRegions,
		p.MinContractValue, p.MaxContractValue,
		textArray(p.ExclusionKeywords), vectorColumn(p.ProfileEmbedding))
	if err != nil {
		return fmt.Errorf("upsert profile %s: %w", p.OrgID, err)
	}
	return nil
}
