package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tendermatch/internal/model"
)

type fakeAlertStore struct {
	matches       []model.NoticeMatch
	alerts        []model.Alert
	updates       map[string]struct {
		verdict model.Verdict
		reasons []string
	}
	endingAwards  []model.Notice
	profiles      []model.ServiceProfile
	renewalExists map[string]bool
}

func newFakeAlertStore() *fakeAlertStore {
	return &fakeAlertStore{
		updates: map[string]struct {
			verdict model.Verdict
			reasons []string
		}{},
		renewalExists: map[string]bool{},
	}
}

func (f *fakeAlertStore) MatchesForNotice(ctx context.Context, q sqlx.QueryerContext, ocid string) ([]model.NoticeMatch, error) {
	return f.matches, nil
}

func (f *fakeAlertStore) UpdateMatchAfterChange(ctx context.Context, q sqlx.ExtContext, orgID uuid.UUID, ocid string, verdict model.Verdict, reasons []string) error {
	f.updates[orgID.String()] = struct {
		verdict model.Verdict
		reasons []string
	}{verdict, reasons}
	return nil
}

func (f *fakeAlertStore) InsertAlert(ctx context.Context, q sqlx.ExtContext, a *model.Alert) error {
	f.alerts = append(f.alerts, *a)
	return nil
}

func (f *fakeAlertStore) ListEndingAwards(ctx context.Context, from, to time.Time) ([]model.Notice, error) {
	return f.endingAwards, nil
}

func (f *fakeAlertStore) ListProfiles(ctx context.Context) ([]model.ServiceProfile, error) {
	return f.profiles, nil
}

func (f *fakeAlertStore) HasRenewalAlert(ctx context.Context, orgID uuid.UUID, ocid string) (bool, error) {
	return f.renewalExists[orgID.String()+"/"+ocid], nil
}

// Scenario: a 15% value lift on a GO match raises one MATERIAL_CHANGE
// alert, appends a reason, and demotes the verdict to REVIEW.
func TestProcessValueChangeDemotesGo(t *testing.T) {
	orgID := uuid.New()
	store := newFakeAlertStore()
	store.matches = []model.NoticeMatch{{
		OrgID:                 orgID,
		OCID:                  "ocds-1",
		Verdict:               model.VerdictGo,
		RecommendationReasons: []string{"existing reason"},
	}}
	svc := NewAlertService(store, zap.NewNop())

	changes := ChangeSet{ChangeValue: {Old: 100000.0, New: 115000.0, DiffPct: 15.0}}
	require.NoError(t, svc.Process(context.Background(), nil, "ocds-1", changes))

	require.Len(t, store.alerts, 1)
	assert.Equal(t, model.AlertMaterialChange, store.alerts[0].Type)
	assert.Equal(t, model.SeverityWarning, store.alerts[0].Severity)
	assert.Equal(t, orgID, store.alerts[0].OrgID)

	update := store.updates[orgID.String()]
	assert.Equal(t, model.VerdictReview, update.verdict)
	require.Len(t, update.reasons, 2)
	assert.Equal(t, "existing reason", update.reasons[0])
	assert.Contains(t, update.reasons[1], "Value changed")
}

func TestProcessNonValueChangeKeepsVerdict(t *testing.T) {
	orgID := uuid.New()
	store := newFakeAlertStore()
	store.matches = []model.NoticeMatch{{OrgID: orgID, OCID: "ocds-1", Verdict: model.VerdictGo}}
	svc := NewAlertService(store, zap.NewNop())

	changes := ChangeSet{ChangeDeadline: {Old: "2025-03-01T12:00:00Z", New: "2025-04-01T12:00:00Z"}}
	require.NoError(t, svc.Process(context.Background(), nil, "ocds-1", changes))

	assert.Equal(t, model.VerdictGo, store.updates[orgID.String()].verdict)
	require.Len(t, store.alerts, 1)
}

func TestProcessOneAlertPerChangePerMatch(t *testing.T) {
	store := newFakeAlertStore()
	store.matches = []model.NoticeMatch{
		{OrgID: uuid.New(), OCID: "ocds-1", Verdict: model.VerdictReview},
		{OrgID: uuid.New(), OCID: "ocds-1", Verdict: model.VerdictReview},
	}
	svc := NewAlertService(store, zap.NewNop())

	changes := ChangeSet{
		ChangeValue: {Old: 100000.0, New: 130000.0, DiffPct: 30.0},
		ChangeType:  {Old: "tender", New: "contractAward"},
	}
	require.NoError(t, svc.Process(context.Background(), nil, "ocds-1", changes))
	assert.Len(t, store.alerts, 4) // 2 matches x 2 change keys
}

func TestProcessEmptyChangeSetIsNoop(t *testing.T) {
	store := newFakeAlertStore()
	svc := NewAlertService(store, zap.NewNop())
	require.NoError(t, svc.Process(context.Background(), nil, "ocds-1", ChangeSet{}))
	assert.Empty(t, store.alerts)
}

func TestScanRenewals(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	endDate := now.AddDate(0, 6, 0)
	org1, org2 := uuid.New(), uuid.New()

	store := newFakeAlertStore()
	store.endingAwards = []model.Notice{{
		OCID:        "ocds-award-1",
		Title:       "Community transport",
		NoticeType:  model.NoticeTypeAward,
		ContractEnd: &endDate,
	}}
	store.profiles = []model.ServiceProfile{{OrgID: org1}, {OrgID: org2}}
	// org2 was already alerted on a previous scan.
	store.renewalExists[org2.String()+"/ocds-award-1"] = true

	svc := NewAlertService(store, zap.NewNop())
	created, err := svc.ScanRenewals(context.Background(), nil, now, 12)
	require.NoError(t, err)

	assert.Equal(t, 1, created)
	require.Len(t, store.alerts, 1)
	assert.Equal(t, model.AlertRenewal, store.alerts[0].Type)
	assert.Equal(t, org1, store.alerts[0].OrgID)
	assert.Contains(t, store.alerts[0].Message, "Community transport")
}
