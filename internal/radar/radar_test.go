package radar

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

var testNow = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

type fakeStore struct {
	history []model.Notice
	err     error
}

func (f *fakeStore) HistoricalNotices(ctx context.Context, buyerID uuid.UUID, cpvPrefixes []string, limit int) ([]model.Notice, error) {
	return f.history, f.err
}

func testRadar(store Store) *Service {
	return NewAt(store, func() time.Time { return testNow }, zap.NewNop())
}

func historicalNotice(ocid string, published time.Time, suppliers ...string) model.Notice {
	supplierObjs := make([]any, 0, len(suppliers))
	for _, s := range suppliers {
		supplierObjs = append(supplierObjs, map[string]any{"name": s})
	}
	return model.Notice{
		OCID:            ocid,
		Title:           "Historic " + ocid,
		NoticeType:      model.NoticeTypeHistorical,
		PublicationDate: published,
		RawRelease: model.JSONMap{
			"awards": []any{map[string]any{"suppliers": supplierObjs}},
		},
	}
}

func liveNotice(buyer *uuid.UUID) *model.Notice {
	return &model.Notice{
		OCID:            "ocds-live-1",
		Title:           "Live tender",
		BuyerID:         buyer,
		PublicationDate: testNow,
		CPVCodes:        []string{"85311000"},
	}
}

func TestEnrichNoBuyer(t *testing.T) {
	result := testRadar(&fakeStore{}).Enrich(context.Background(), liveNotice(nil))
	assert.False(t, result.BuyerSeenBefore)
	assert.Contains(t, result.RadarSummary, "New buyer")
	assert.Empty(t, result.UniqueSuppliers)
}

func TestEnrichNewBuyer(t *testing.T) {
	buyer := uuid.New()
	result := testRadar(&fakeStore{}).Enrich(context.Background(), liveNotice(&buyer))
	assert.False(t, result.BuyerSeenBefore)
	assert.Contains(t, result.RadarSummary, "First-mover")
}

func TestEnrichIncumbentAndCycle(t *testing.T) {
	buyer := uuid.New()
	// Two historical awards, ~2.2 and ~5.1 years before now: the most
	// recent snaps to a 2-year cycle and names the incumbent.
	store := &fakeStore{history: []model.Notice{
		historicalNotice("h1", testNow.AddDate(0, 0, -803), "Incumbent Ltd", "Rival CIC"),
		historicalNotice("h2", testNow.AddDate(0, 0, -1862), "Old Supplier"),
	}}
	result := testRadar(store).Enrich(context.Background(), liveNotice(&buyer))

	require.True(t, result.BuyerSeenBefore)
	assert.Equal(t, 2, result.HistoricalContractCount)
	assert.Equal(t, "Incumbent Ltd", result.Incumbent)
	assert.Equal(t, 2, result.EstimatedCycleYears)
	assert.Equal(t, []string{"Incumbent Ltd", "Rival CIC", "Old Supplier"}, result.UniqueSuppliers)
	assert.Contains(t, result.RadarSummary, "Incumbent Ltd")
	assert.Contains(t, result.RadarSummary, "Rival CIC")
	assert.Contains(t, result.RadarSummary, "2 historical contract(s)")
}

func TestEnrichSupplierCap(t *testing.T) {
	buyer := uuid.New()
	store := &fakeStore{history: []model.Notice{
		historicalNotice("h1", testNow.AddDate(-1, 0, 0), "A", "B", "C", "D", "E", "F", "G"),
	}}
	result := testRadar(store).Enrich(context.Background(), liveNotice(&buyer))
	assert.Len(t, result.UniqueSuppliers, 5)
}

func TestEnrichNeverFails(t *testing.T) {
	buyer := uuid.New()
	store := &fakeStore{err: context.DeadlineExceeded}
	result := testRadar(store).Enrich(context.Background(), liveNotice(&buyer))
	assert.False(t, result.BuyerSeenBefore)
	assert.NotEmpty(t, result.RadarSummary)
}

func TestEstimateCycle(t *testing.T) {
	year := 365.25 * 24 * time.Hour
	cases := []struct {
		years float64
		want  int
	}{
		{1.0, 1},
		{2.2, 2},
		{3.5, 3},
		{4.8, 5},
		{9.0, 3}, // outside every snap window: industry default
		{0.1, 3}, // too recent to snap to any cycle
	}
	for _, tc := range cases {
		got := estimateCycle(time.Duration(tc.years * float64(year)))
		if got != tc.want {
			t.Fatalf("estimateCycle(%.1fy)=%d, want %d", tc.years, got, tc.want)
		}
	}
}
