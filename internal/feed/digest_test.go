package feed

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tendermatch/internal/model"
)

type fakeDigestStore struct {
	alerts  []model.Alert
	profile *model.ServiceProfile
}

func (f *fakeDigestStore) Feed(ctx context.Context, orgID uuid.UUID, limit int) ([]model.NoticeMatch, error) {
	return nil, nil
}

func (f *fakeDigestStore) UnreadAlerts(ctx context.Context, orgID uuid.UUID) ([]model.Alert, error) {
	return nil, nil
}

func (f *fakeDigestStore) ToggleTracking(ctx context.Context, orgID uuid.UUID, ocid string) (bool, error) {
	return false, nil
}

func (f *fakeDigestStore) MarkAlertRead(ctx context.Context, alertID uuid.UUID) error {
	return nil
}

func (f *fakeDigestStore) AlertsSince(ctx context.Context, orgID uuid.UUID, since time.Time) ([]model.Alert, error) {
	return f.alerts, nil
}

func (f *fakeDigestStore) GetProfile(ctx context.Context, orgID uuid.UUID) (*model.ServiceProfile, error) {
	return f.profile, nil
}

func TestDailyDigestEmpty(t *testing.T) {
	svc := New(&fakeDigestStore{}, zap.NewNop())
	digest, err := svc.DailyDigest(context.Background(), uuid.New(), time.Now())
	require.NoError(t, err)
	assert.Contains(t, digest, "No new updates")
}

func TestDailyDigestGroupsByType(t *testing.T) {
	now := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	store := &fakeDigestStore{
		profile: &model.ServiceProfile{Name: "Camden Housing Support"},
		alerts: []model.Alert{
			{Type: model.AlertMaterialChange, OCID: "ocds-1", Message: "ALERT: Value changed by 15.00% (Now £115000)."},
			{Type: model.AlertRenewal, OCID: "ocds-2", Message: "Renewal Alert: Contract for 'Transport' ends in ~6 months."},
		},
	}
	svc := New(store, zap.NewNop())

	digest, err := svc.DailyDigest(context.Background(), uuid.New(), now)
	require.NoError(t, err)

	assert.Contains(t, digest, "# Daily Opportunity Digest for Camden Housing Support")
	assert.Contains(t, digest, "Date: 2025-06-01")
	assert.Contains(t, digest, "Material Changes to Tracked Notices")
	assert.Contains(t, digest, "Upcoming Renewals / Re-tenders")
	assert.Contains(t, digest, "ocds-1")
	assert.Contains(t, digest, "ocds-2")
	assert.NotContains(t, digest, "New High-Score Matches")
}
