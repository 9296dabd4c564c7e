package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"tendermatch/internal/model"
)

// InsertAlert persists an alert inside the caller's transaction.
func (s *Store) InsertAlert(ctx context.Context, q sqlx.ExtContext, a *model.Alert) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO alert (id, org_id, notice_id, alert_type, severity, message, details)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ID, a.OrgID, a.OCID, a.Type, a.Severity, a.Message, a.Details)
	if err != nil {
		return fmt.Errorf("insert alert %s: %w", a.Type, err)
	}
	return nil
}

type alertRow struct {
	ID        uuid.UUID      `db:"id"`
	OrgID     uuid.UUID      `db:"org_id"`
	NoticeID  sql.NullString `db:"notice_id"`
	AlertType sql.NullString `db:"alert_type"`
	Severity  sql.NullString `db:"severity"`
	Message   sql.NullString `db:"message"`
	Details   model.JSONMap  `db:"details"`
	IsRead    sql.NullBool   `db:"is_read"`
	CreatedAt time.Time      `db:"created_at"`
}

func (r *alertRow) toModel() model.Alert {
	return model.Alert{
		ID:        r.ID,
		OrgID:     r.OrgID,
		OCID:      r.NoticeID.String,
		Type:      r.AlertType.String,
		Severity:  r.Severity.String,
		Message:   r.Message.String,
		Details:   r.Details,
		IsRead:    r.IsRead.Bool,
		CreatedAt: r.CreatedAt,
	}
}

// UnreadAlerts returns a profile's unread alerts, newest first.
func (s *Store) UnreadAlerts(ctx context.Context, orgID uuid.UUID) ([]model.Alert, error) {
	rows := []alertRow{}
	err := sqlx.SelectContext(ctx, s.db, &rows, `
		SELECT id, org_id, notice_id, alert_type, severity, message, details, is_read, created_at
		FROM alert
		WHERE org_id = $1 AND is_read = FALSE
		ORDER BY created_at DESC`, orgID)
	if err != nil {
		return nil, fmt.Errorf("unread alerts for %s: %w", orgID, err)
	}
	out := make([]model.Alert, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toModel())
	}
	return out, nil
}

// AlertsSince returns a profile's alerts created at or after since,
// newest first. Feeds the daily digest.
func (s *Store) AlertsSince(ctx context.Context, orgID uuid.UUID, since time.Time) ([]model.Alert, error) {
	rows := []alertRow{}
	err := sqlx.SelectContext(ctx, s.db, &rows, `
		SELECT id, org_id, notice_id, alert_type, severity, message, details, is_read, created_at
		FROM alert
		WHERE org_id = $1 AND created_at >= $2
		ORDER BY created_at DESC`, orgID, since)
	if err != nil {
		return nil, fmt.Errorf("alerts since for %s: %w", orgID, err)
	}
	out := make([]model.Alert, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toModel())
	}
	return out, nil
}

// MarkAlertRead flags one alert as read.
func (s *Store) MarkAlertRead(ctx context.Context, alertID uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `UPDATE alert SET is_read = TRUE WHERE id = $1`, alertID)
	if err != nil {
		return fmt.Errorf("mark alert read %s: %w", alertID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("alert %s: %w", alertID, ErrNotFound)
	}
	return nil
}

// HasRenewalAlert reports whether a renewal alert already exists for the
// (org, notice) pair, to keep the renewal scan idempotent.
func (s *Store) HasRenewalAlert(ctx context.Context, orgID uuid.UUID, ocid string) (bool, error) {
	var exists bool
	err := sqlx.GetContext(ctx, s.db, &exists, `
		SELECT EXISTS (
			SELECT 1 FROM alert
			WHERE org_id = $1 AND notice_id = $2 AND alert_type = $3
		)`, orgID, ocid, model.AlertRenewal)
	if err != nil {
		return false, fmt.Errorf("check renewal alert %s/%s: %w", orgID, ocid, err)
	}
	return exists, nil
}
