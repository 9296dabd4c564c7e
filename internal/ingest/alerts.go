package ingest

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"tendermatch/internal/metrics"
	"tendermatch/internal/model"
)

// AlertStore is the persistence surface the alert service needs. All
// methods run inside the caller's transaction where one is supplied.
type AlertStore interface {
	MatchesForNotice(ctx context.Context, q sqlx.QueryerContext, ocid string) ([]model.NoticeMatch, error)
	UpdateMatchAfterChange(ctx context.Context, q sqlx.ExtContext, orgID uuid.UUID, ocid string, verdict model.Verdict, reasons []string) error
	InsertAlert(ctx context.Context, q sqlx.ExtContext, a *model.Alert) error
	ListEndingAwards(ctx context.Context, from, to time.Time) ([]model.Notice, error)
	ListProfiles(ctx context.Context) ([]model.ServiceProfile, error)
	HasRenewalAlert(ctx context.Context, orgID uuid.UUID, ocid string) (bool, error)
}

// AlertService turns change sets into persisted alerts and match
// demotions, and runs the renewal expiry scan.
type AlertService struct {
	store  AlertStore
	logger *zap.Logger
}

// NewAlertService builds the alert service.
func NewAlertService(store AlertStore, logger *zap.Logger) *AlertService {
	return &AlertService{store: store, logger: logger.Named("alerts")}
}

// Process fans a notice's change set out to every match on that notice:
// one MATERIAL_CHANGE alert per change key, a human-readable reason
// appended to the match, and a GO→REVIEW demotion when the value moved.
// Runs inside the caller's transaction so alerting commits with the
// revision that caused it.
func (a *AlertService) Process(ctx context.Context, tx *sqlx.Tx, ocid string, changes ChangeSet) error {
	if len(changes) == 0 {
		return nil
	}
	matches, err := a.store.MatchesForNotice(ctx, tx, ocid)
	if err != nil {
		return err
	}

	for i := range matches {
		match := &matches[i]
		reasons := append([]string{}, match.RecommendationReasons...)

		for _, key := range sortedKeys(changes) {
			change := changes[key]
			msg := changeMessage(key, change)
			if msg == "" {
				continue
			}
			reasons = append(reasons, msg)
			if err := a.store.InsertAlert(ctx, tx, &model.Alert{
				OrgID:    match.OrgID,
				OCID:     ocid,
				Type:     model.AlertMaterialChange,
				Severity: model.SeverityWarning,
				Message:  msg,
				Details:  model.JSONMap{key: change},
			}); err != nil {
				return err
			}
			metrics.AlertsCreated.WithLabelValues(model.AlertMaterialChange).Inc()
		}

		verdict := match.Verdict
		if _, valueChanged := changes[ChangeValue]; valueChanged && verdict == model.VerdictGo {
			verdict = model.VerdictReview
		}
		if err := a.store.UpdateMatchAfterChange(ctx, tx, match.OrgID, ocid, verdict, reasons); err != nil {
			return err
		}
	}

	a.logger.Info("material change processed",
		zap.String("ocid", ocid),
		zap.Int("changes", len(changes)),
		zap.Int("matches", len(matches)))
	return nil
}

func changeMessage(key string, change Change) string {
	switch key {
	case ChangeDeadline:
		return fmt.Sprintf("ALERT: Deadline changed from %s to %s.",
			truncateDate(change.Old), truncateDate(change.New))
	case ChangeValue:
		newVal, _ := change.New.(float64)
		return fmt.Sprintf("ALERT: Value changed by %.2f%% (Now £%.0f).", change.DiffPct, newVal)
	case ChangeType:
		return fmt.Sprintf("ALERT: Notice type changed to %v.", change.New)
	}
	return ""
}

func truncateDate(v any) string {
	s, _ := v.(string)
	if len(s) > 10 {
		return s[:10]
	}
	return s
}

func sortedKeys(changes ChangeSet) []string {
	keys := make([]string, 0, len(changes))
	for k := range changes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ScanRenewals creates RENEWAL alerts for contract awards whose contract
// period ends within horizonMonths, once per (profile, notice) pair.
func (a *AlertService) ScanRenewals(ctx context.Context, q sqlx.ExtContext, now time.Time, horizonMonths int) (int, error) {
	if horizonMonths <= 0 {
		horizonMonths = 12
	}
	horizon := now.AddDate(0, horizonMonths, 0)

	ending, err := a.store.ListEndingAwards(ctx, now, horizon)
	if err != nil {
		return 0, err
	}
	profiles, err := a.store.ListProfiles(ctx)
	if err != nil {
		return 0, err
	}
	a.logger.Info("renewal scan",
		zap.Int("ending_contracts", len(ending)),
		zap.Int("profiles", len(profiles)))

	created := 0
	for i := range ending {
		notice := &ending[i]
		if notice.ContractEnd == nil {
			continue
		}
		daysLeft := int(notice.ContractEnd.Sub(now).Hours() / 24)

		for j := range profiles {
			profile := &profiles[j]
			exists, err := a.store.HasRenewalAlert(ctx, profile.OrgID, notice.OCID)
			if err != nil {
				return created, err
			}
			if exists {
				continue
			}
			if err := a.store.InsertAlert(ctx, q, &model.Alert{
				OrgID:    profile.OrgID,
				OCID:     notice.OCID,
				Type:     model.AlertRenewal,
				Severity: model.SeverityInfo,
				Message: fmt.Sprintf("Renewal Alert: Contract for '%s' ends in ~%d months.",
					notice.Title, daysLeft/30),
				Details: model.JSONMap{
					"end_date":       notice.ContractEnd.Format(time.RFC3339),
					"days_to_expiry": daysLeft,
				},
			}); err != nil {
				return created, err
			}
			metrics.AlertsCreated.WithLabelValues(model.AlertRenewal).Inc()
			created++
		}
	}
	return created, nil
}
