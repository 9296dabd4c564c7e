package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"tendermatch/internal/model"
)

const matchColumns = `org_id, notice_id, score, score_semantic,
	score_domain, score_geo, score_theme, verdict, viability_warning,
	risk_flags, checklist, recommendation_reasons, is_tracked,
	deep_verdict, deep_rationale, created_at`

type matchRow struct {
	OrgID                 uuid.UUID           `db:"org_id"`
	NoticeID              string              `db:"notice_id"`
	Score                 sql.NullFloat64     `db:"score"`
	ScoreSemantic         sql.NullFloat64     `db:"score_semantic"`
	ScoreDomain           sql.NullFloat64     `db:"score_domain"`
	ScoreGeo              sql.NullFloat64     `db:"score_geo"`
	ScoreTheme            sql.NullFloat64     `db:"score_theme"`
	Verdict               sql.NullString      `db:"verdict"`
	ViabilityWarning      sql.NullString      `db:"viability_warning"`
	RiskFlags             model.JSONMap       `db:"risk_flags"`
	Checklist             model.ChecklistJSON `db:"checklist"`
	RecommendationReasons pq.StringArray      `db:"recommendation_reasons"`
	IsTracked             sql.NullBool        `db:"is_tracked"`
	DeepVerdict           sql.NullString      `db:"deep_verdict"`
	DeepRationale         sql.NullString      `db:"deep_rationale"`
	CreatedAt             time.Time           `db:"created_at"`
}

func (r *matchRow) toModel() *model.NoticeMatch {
	return &model.NoticeMatch{
		OrgID:                 r.OrgID,
		OCID:                  r.NoticeID,
		Score:                 r.Score.Float64,
		ScoreSemantic:         r.ScoreSemantic.Float64,
		ScoreDomain:           r.ScoreDomain.Float64,
		ScoreGeo:              r.ScoreGeo.Float64,
		ScoreTheme:            r.ScoreTheme.Float64,
		Verdict:               model.Verdict(r.Verdict.String),
		ViabilityWarning:      r.ViabilityWarning.String,
		RiskFlags:             r.RiskFlags,
		Checklist:             r.Checklist,
		RecommendationReasons: r.RecommendationReasons,
		IsTracked:             r.IsTracked.Bool,
		DeepVerdict:           model.DeepVerdict(r.DeepVerdict.String),
		DeepRationale:         r.DeepRationale.String,
		CreatedAt:             r.CreatedAt,
	}
}

// MatchesForOrg returns the profile's current match map keyed by OCID.
func (s *Store) MatchesForOrg(ctx context.Context, orgID uuid.UUID) (map[string]*model.NoticeMatch, error) {
	rows := []matchRow{}
	err := sqlx.SelectContext(ctx, s.db, &rows,
		`SELECT `+matchColumns+` FROM notice_match WHERE org_id = $1`, orgID)
	if err != nil {
		return nil, fmt.Errorf("matches for %s: %w", orgID, err)
	}
	out := make(map[string]*model.NoticeMatch, len(rows))
	for i := range rows {
		m := rows[i].toModel()
		out[m.OCID] = m
	}
	return out, nil
}

// SaveMatches atomically replaces a profile's mechanical match state:
// every computed match is upserted with only its mechanical fields, and
// existing rows absent from the new set are deleted unless Tier-2 has
// reviewed them. Tier-2 columns are never written here.
func (s *Store) SaveMatches(ctx context.Context, orgID uuid.UUID, matches []*model.NoticeMatch) error {
	return s.WithTx(ctx, func(tx *sqlx.Tx) error {
		keep := make([]string, 0, len(matches))
		for _, m := range matches {
			keep = append(keep, m.OCID)
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO notice_match (
					org_id, notice_id, score, score_semantic, score_domain,
					score_geo, score_theme, verdict, viability_warning,
					risk_flags, checklist, recommendation_reasons
				) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
				ON CONFLICT (org_id, notice_id) DO UPDATE SET
					score = EXCLUDED.score,
					score_semantic = EXCLUDED.score_semantic,
					score_domain = EXCLUDED.score_domain,
					score_geo = EXCLUDED.score_geo,
					score_theme = EXCLUDED.score_theme,
					verdict = EXCLUDED.verdict,
					viability_warning = EXCLUDED.viability_warning,
					risk_flags = EXCLUDED.risk_flags,
					checklist = EXCLUDED.checklist,
					recommendation_reasons = EXCLUDED.recommendation_reasons`,
				orgID, m.OCID, m.Score, m.ScoreSemantic, m.ScoreDomain,
				m.ScoreGeo, m.ScoreTheme, string(m.Verdict),
				nullString(m.ViabilityWarning), m.RiskFlags,
				model.ChecklistJSON(m.Checklist),
				textArray(m.RecommendationReasons)); err != nil {
				return fmt.Errorf("upsert match %s/%s: %w", orgID, m.OCID, err)
			}
		}

		// Rows that fell out of the funnel are curated knowledge once
		// Tier-2 has spoken; only unreviewed rows are deletable.
		res, err := tx.ExecContext(ctx, `
			DELETE FROM notice_match
			WHERE org_id = $1
			  AND deep_verdict IS NULL
			  AND NOT (notice_id = ANY($2))`,
			orgID, pq.StringArray(keep))
		if err != nil {
			return fmt.Errorf("prune matches for %s: %w", orgID, err)
		}
		if n, err := res.RowsAffected(); err == nil && n > 0 {
			s.logger.Debug("pruned stale matches", zap.String("org", orgID.String()), zap.Int64("rows", n))
		}
		return nil
	})
}

// MatchesForNotice lists every profile's match on one notice, inside the
// caller's transaction.
func (s *Store) MatchesForNotice(ctx context.Context, q sqlx.QueryerContext, ocid string) ([]model.NoticeMatch, error) {
	rows := []matchRow{}
	err := sqlx.SelectContext(ctx, q, &rows,
		`SELECT `+matchColumns+` FROM notice_match WHERE notice_id = $1`, ocid)
	if err != nil {
		return nil, fmt.Errorf("matches for notice %s: %w", ocid, err)
	}
	out := make([]model.NoticeMatch, 0, len(rows))
	for i := range rows {
		out = append(out, *rows[i].toModel())
	}
	return out, nil
}

// UpdateMatchAfterChange rewrites a match's verdict and reasons inside the
// caller's transaction. Used by the alert service when a material change
// demotes a match.
func (s *Store) UpdateMatchAfterChange(ctx context.Context, q sqlx.ExtContext, orgID uuid.UUID, ocid string, verdict model.Verdict, reasons []string) error {
	_, err := q.ExecContext(ctx, `
		UPDATE notice_match
		SET verdict = $3, recommendation_reasons = $4
		WHERE org_id = $1 AND notice_id = $2`,
		orgID, ocid, string(verdict), textArray(reasons))
	if err != nil {
		return fmt.Errorf("update match %s/%s: %w", orgID, ocid, err)
	}
	return nil
}

// TopMatches returns the profile's k highest-scoring matches.
func (s *Store) TopMatches(ctx context.Context, orgID uuid.UUID, k int) ([]model.NoticeMatch, error) {
	rows := []matchRow{}
	err := sqlx.SelectContext(ctx, s.db, &rows, `
		SELECT `+matchColumns+` FROM notice_match
		WHERE org_id = $1
		ORDER BY score DESC
		LIMIT $2`, orgID, k)
	if err != nil {
		return nil, fmt.Errorf("top matches for %s: %w", orgID, err)
	}
	out := make([]model.NoticeMatch, 0, len(rows))
	for i := range rows {
		out = append(out, *rows[i].toModel())
	}
	return out, nil
}

// DeepReview is one Tier-2 result for a match.
type DeepReview struct {
	Verdict   model.DeepVerdict
	Rationale string
}

// SetDeepReviews writes Tier-2 verdicts and rationales for a profile in
// one transaction, touching no other columns. Attempting to clear an
// existing verdict is an invariant violation.
func (s *Store) SetDeepReviews(ctx context.Context, orgID uuid.UUID, reviews map[string]DeepReview) error {
	return s.WithTx(ctx, func(tx *sqlx.Tx) error {
		for ocid, review := range reviews {
			if review.Verdict != model.DeepPass && review.Verdict != model.DeepFail {
				return fmt.Errorf("%w: deep verdict %q for %s", ErrInvariant, review.Verdict, ocid)
			}
			if _, err := tx.ExecContext(ctx, `
				UPDATE notice_match
				SET deep_verdict = $3, deep_rationale = $4
				WHERE org_id = $1 AND notice_id = $2`,
				orgID, ocid, string(review.Verdict), review.Rationale); err != nil {
				return fmt.Errorf("set deep review %s/%s: %w", orgID, ocid, err)
			}
		}
		return nil
	})
}

// ToggleTracking flips a match's tracked flag, creating a shell REVIEW
// match when the org tracks a notice the engine has not scored.
func (s *Store) ToggleTracking(ctx context.Context, orgID uuid.UUID, ocid string) (bool, error) {
	var tracked bool
	err := s.WithTx(ctx, func(tx *sqlx.Tx) error {
		row := tx.QueryRowxContext(ctx, `
			INSERT INTO notice_match (org_id, notice_id, verdict, is_tracked)
			VALUES ($1, $2, $3, TRUE)
			ON CONFLICT (org_id, notice_id)
				DO UPDATE SET is_tracked = NOT COALESCE(notice_match.is_tracked, FALSE)
			RETURNING is_tracked`,
			orgID, ocid, string(model.VerdictReview))
		return row.Scan(&tracked)
	})
	if err != nil {
		return false, fmt.Errorf("toggle tracking %s/%s: %w", orgID, ocid, err)
	}
	return tracked, nil
}

// Feed returns the ranked match list for a profile: tracked first, then by
// score descending.
func (s *Store) Feed(ctx context.Context, orgID uuid.UUID, limit int) ([]model.NoticeMatch, error) {
	rows := []matchRow{}
	err := sqlx.SelectContext(ctx, s.db, &rows, `
		SELECT `+matchColumns+` FROM notice_match
		WHERE org_id = $1
		ORDER BY is_tracked DESC, score DESC
		LIMIT $2`, orgID, limit)
	if err != nil {
		return nil, fmt.Errorf("feed for %s: %w", orgID, err)
	}
	out := make([]model.NoticeMatch, 0, len(rows))
	for i := range rows {
		out = append(out, *rows[i].toModel())
	}
	return out, nil
}
