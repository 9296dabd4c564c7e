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
	"github.com/shopspring/decimal"

	"tendermatch/internal/model"
)

const noticeColumns = `ocid, release_id, title, description, buyer_id,
	publication_date, deadline_date, value_amount, value_currency,
	procurement_method, notice_type, raw_release, source_url, cpv_codes,
	inferred_ukcat_codes, contract_period_start, contract_period_end,
	embedding, provider_summary_embedding, is_archived, updated_at`

type noticeRow struct {
	OCID              string              `db:"ocid"`
	ReleaseID         sql.NullString      `db:"release_id"`
	Title             string              `db:"title"`
	Description       sql.NullString      `db:"description"`
	BuyerID           *uuid.UUID          `db:"buyer_id"`
	PublicationDate   time.Time           `db:"publication_date"`
	DeadlineDate      *time.Time          `db:"deadline_date"`
	ValueAmount       decimal.NullDecimal `db:"value_amount"`
	ValueCurrency     sql.NullString      `db:"value_currency"`
	ProcurementMethod sql.NullString      `db:"procurement_method"`
	NoticeType        sql.NullString      `db:"notice_type"`
	RawRelease        model.JSONMap       `db:"raw_release"`
	SourceURL         sql.NullString      `db:"source_url"`
	CPVCodes          pq.StringArray      `db:"cpv_codes"`
	InferredUKCAT     pq.StringArray      `db:"inferred_ukcat_codes"`
	ContractStart     *time.Time          `db:"contract_period_start"`
	ContractEnd       *time.Time          `db:"contract_period_end"`
	Embedding         *pgvector.Vector    `db:"embedding"`
	SummaryEmbedding  *pgvector.Vector    `db:"provider_summary_embedding"`
	IsArchived        sql.NullBool        `db:"is_archived"`
	UpdatedAt         time.Time           `db:"updated_at"`
}

func (r *noticeRow) toModel() *model.Notice {
	n := &model.Notice{
		OCID:              r.OCID,
		ReleaseID:         r.ReleaseID.String,
		Title:             r.Title,
		Description:       r.Description.String,
		BuyerID:           r.BuyerID,
		PublicationDate:   r.PublicationDate,
		DeadlineDate:      r.DeadlineDate,
		ValueCurrency:     r.ValueCurrency.String,
		ProcurementMethod: r.ProcurementMethod.String,
		NoticeType:        r.NoticeType.String,
		RawRelease:        r.RawRelease,
		SourceURL:         r.SourceURL.String,
		CPVCodes:          r.CPVCodes,
		InferredUKCAT:     r.InferredUKCAT,
		ContractStart:     r.ContractStart,
		ContractEnd:       r.ContractEnd,
		IsArchived:        r.IsArchived.Bool,
		UpdatedAt:         r.UpdatedAt,
	}
	if r.ValueAmount.Valid {
		d := r.ValueAmount.Decimal
		n.ValueAmount = &d
	}
	if r.Embedding != nil {
		n.Embedding = r.Embedding.Slice()
	}
	if r.SummaryEmbedding != nil {
		n.SummaryEmbedding = r.SummaryEmbedding.Slice()
	}
	return n
}

func vectorColumn(v []float32) any {
	if len(v) == 0 {
		return nil
	}
	vec := pgvector.NewVector(v)
	return vec
}

// GetNotice fetches one notice by OCID via q (pool or transaction).
func (s *Store) GetNotice(ctx context.Context, q sqlx.QueryerContext, ocid string) (*model.Notice, error) {
	var row noticeRow
	err := sqlx.GetContext(ctx, q, &row,
		`SELECT `+noticeColumns+` FROM notice WHERE ocid = $1`, ocid)
	if err != nil {
		return nil, wrapNotFound(err, "notice "+ocid)
	}
	return row.toModel(), nil
}

// DB exposes the pool as a queryer for read paths.
func (s *Store) DB() sqlx.QueryerContext { return s.db }

// Ext exposes the pool for writes that need no surrounding transaction.
func (s *Store) Ext() sqlx.ExtContext { return s.db }

// UpsertNotice inserts a notice or, on OCID conflict, refreshes only the
// mutable columns. Enrichment outputs (embeddings, inferred codes) and the
// archive flag are owned elsewhere and left untouched on update.
func (s *Store) UpsertNotice(ctx context.Context, q sqlx.ExtContext, n *model.Notice) error {
	var value any
	if n.ValueAmount != nil {
		value = *n.ValueAmount
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO notice (
			ocid, release_id, title, description, buyer_id, publication_date,
			deadline_date, value_amount, value_currency, procurement_method,
			notice_type, raw_release, source_url, cpv_codes,
			contract_period_start, contract_period_end, embedding,
			provider_summary_embedding, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,now())
		ON CONFLICT (ocid) DO UPDATE SET
			release_id = EXCLUDED.release_id,
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			buyer_id = EXCLUDED.buyer_id,
			publication_date = EXCLUDED.publication_date,
			deadline_date = EXCLUDED.deadline_date,
			value_amount = EXCLUDED.value_amount,
			value_currency = EXCLUDED.value_currency,
			procurement_method = EXCLUDED.procurement_method,
			notice_type = EXCLUDED.notice_type,
			raw_release = EXCLUDED.raw_release,
			source_url = EXCLUDED.source_url,
			cpv_codes = EXCLUDED.cpv_codes,
			contract_period_start = EXCLUDED.contract_period_start,
			contract_period_end = EXCLUDED.contract_period_end,
			updated_at = now()`,
		n.OCID, nullString(n.ReleaseID), n.Title, nullString(n.Description),
		n.BuyerID, n.PublicationDate, n.DeadlineDate, value,
		nullString(n.ValueCurrency), nullString(n.ProcurementMethod),
		nullString(n.NoticeType), n.RawRelease, nullString(n.SourceURL),
		textArray(n.CPVCodes), n.ContractStart, n.ContractEnd,
		vectorColumn(n.Embedding), vectorColumn(n.SummaryEmbedding))
	if err != nil {
		return fmt.Errorf("upsert notice %s: %w", n.OCID, err)
	}
	return nil
}

// SetNoticeEnrichment writes enrichment outputs. A nil embedding or nil
// code list leaves the respective column untouched.
func (s *Store) SetNoticeEnrichment(ctx context.Context, q sqlx.ExtContext, ocid string, embedding []float32, codes []string) error {
	if embedding != nil {
		if _, err := q.ExecContext(ctx,
			`UPDATE notice SET embedding = $2, updated_at = now() WHERE ocid = $1`,
			ocid, vectorColumn(embedding)); err != nil {
			return fmt.Errorf("set embedding %s: %w", ocid, err)
		}
	}
	if codes != nil {
		if _, err := q.ExecContext(ctx,
			`UPDATE notice SET inferred_ukcat_codes = $2, updated_at = now() WHERE ocid = $1`,
			ocid, pq.StringArray(codes)); err != nil {
			return fmt.Errorf("set ukcat codes %s: %w", ocid, err)
		}
	}
	return nil
}

// ListCandidateNotices returns the matching funnel's candidate pool:
// unarchived notices whose tender declares a services procurement
// category.
func (s *Store) ListCandidateNotices(ctx context.Context) ([]model.Notice, error) {
	rows := []noticeRow{}
	err := sqlx.SelectContext(ctx, s.db, &rows, `
		SELECT `+noticeColumns+` FROM notice
		WHERE COALESCE(is_archived, FALSE) = FALSE
		  AND LOWER(COALESCE(raw_release->'tender'->>'mainProcurementCategory', '')) = 'services'
		ORDER BY publication_date DESC`)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	return toNotices(rows), nil
}

// ListStaleNotices returns unarchived notices missing embeddings or
// activity codes, oldest first, capped at limit.
func (s *Store) ListStaleNotices(ctx context.Context, limit int) ([]model.Notice, error) {
	rows := []noticeRow{}
	err := sqlx.SelectContext(ctx, s.db, &rows, `
		SELECT `+noticeColumns+` FROM notice
		WHERE COALESCE(is_archived, FALSE) = FALSE
		  AND (embedding IS NULL OR inferred_ukcat_codes IS NULL)
		ORDER BY updated_at ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale notices: %w", err)
	}
	return toNotices(rows), nil
}

// HistoricalNotices returns up to limit historical notices for a buyer,
// newest first, filtered to those sharing a 4-character CPV prefix with
// the given prefixes (notices without CPV codes always qualify).
func (s *Store) HistoricalNotices(ctx context.Context, buyerID uuid.UUID, cpvPrefixes []string, limit int) ([]model.Notice, error) {
	rows := []noticeRow{}
	err := sqlx.SelectContext(ctx, s.db, &rows, `
		SELECT `+noticeColumns+` FROM notice
		WHERE buyer_id = $1
		  AND notice_type = $2
		  AND (
			cpv_codes IS NULL
			OR cardinality($3::text[]) = 0
			OR EXISTS (
				SELECT 1 FROM unnest(cpv_codes) AS c WHERE LEFT(c, 4) = ANY($3)
			)
		  )
		ORDER BY publication_date DESC
		LIMIT $4`,
		buyerID, model.NoticeTypeHistorical, pq.StringArray(cpvPrefixes), limit)
	if err != nil {
		return nil, fmt.Errorf("historical notices for %s: %w", buyerID, err)
	}
	return toNotices(rows), nil
}

// NoticesByOCIDs fetches a set of notices keyed by OCID.
func (s *Store) NoticesByOCIDs(ctx context.Context, ocids []string) (map[string]*model.Notice, error) {
	if len(ocids) == 0 {
		return map[string]*model.Notice{}, nil
	}
	rows := []noticeRow{}
	err := sqlx.SelectContext(ctx, s.db, &rows,
		`SELECT `+noticeColumns+` FROM notice WHERE ocid = ANY($1)`, pq.StringArray(ocids))
	if err != nil {
		return nil, fmt.Errorf("notices by ocid: %w", err)
	}
	out := make(map[string]*model.Notice, len(rows))
	for i := range rows {
		n := rows[i].toModel()
		out[n.OCID] = n
	}
	return out, nil
}

// ListEndingAwards returns contract-award notices whose contract period
// ends inside (from, to].
func (s *Store) ListEndingAwards(ctx context.Context, from, to time.Time) ([]model.Notice, error) {
	rows := []noticeRow{}
	err := sqlx.SelectContext(ctx, s.db, &rows, `
		SELECT `+noticeColumns+` FROM notice
		WHERE notice_type = $1
		  AND contract_period_end > $2
		  AND contract_period_end <= $3
		ORDER BY contract_period_end ASC`,
		model.NoticeTypeAward, from, to)
	if err != nil {
		return nil, fmt.Errorf("list ending awards: %w", err)
	}
	return toNotices(rows), nil
}

func toNotices(rows []noticeRow) []model.Notice {
	out := make([]model.Notice, 0, len(rows))
	for i := range rows {
		out = append(out, *rows[i].toModel())
	}
	return out
}
