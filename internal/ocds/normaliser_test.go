package ocds

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tendermatch/internal/model"
)

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func testNormaliser() *Normaliser {
	return NewNormaliserAt(func() time.Time { return fixedNow })
}

func sampleRelease() Release {
	return Release{
		"ocid": "ocds-b5fd17-123",
		"id":   "rel-1",
		"date": "2025-05-01T09:30:00Z",
		"tag":  []any{"tender"},
		"buyer": map[string]any{
			"name":       "  London   Borough of   Camden ",
			"identifier": map[string]any{"scheme": "GB-LAE", "id": "CMD"},
		},
		"tender": map[string]any{
			"title":             "Homelessness Prevention Service",
			"description":       "Floating support for rough sleepers.",
			"procurementMethod": "open",
			"tenderPeriod":      map[string]any{"endDate": "2025-07-01T12:00:00Z"},
			"value":             map[string]any{"amount": 250000.0, "currency": "GBP"},
			"items": []any{
				map[string]any{"classification": map[string]any{"id": "85311000"}},
				map[string]any{"classification": map[string]any{"id": "85311000"}},
			},
			"classification":            map[string]any{"id": "85300000"},
			"additionalClassifications": []any{map[string]any{"id": "98000000"}},
			"contractPeriod": map[string]any{
				"startDate": "2025-09-01T00:00:00Z",
				"endDate":   "2028-08-31T00:00:00Z",
			},
			"documents": []any{map[string]any{"url": "https://example.org/doc"}},
		},
	}
}

func TestNormalise(t *testing.T) {
	buyer, notice, err := testNormaliser().Normalise(sampleRelease())
	require.NoError(t, err)

	// Buyer name canonicalisation and slugging.
	assert.Equal(t, "London Borough of Camden", buyer.CanonicalName)
	assert.Equal(t, "london-borough-of-camden", buyer.Slug)
	assert.Equal(t, "GB-LAE", buyer.Identifiers["scheme"])

	assert.Equal(t, "ocds-b5fd17-123", notice.OCID)
	assert.Equal(t, "rel-1", notice.ReleaseID)
	assert.Equal(t, "Homelessness Prevention Service", notice.Title)
	assert.Equal(t, "tender", notice.NoticeType)
	assert.Equal(t, "open", notice.ProcurementMethod)
	assert.Equal(t, "https://example.org/doc", notice.SourceURL)

	require.NotNil(t, notice.DeadlineDate)
	assert.Equal(t, time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC), *notice.DeadlineDate)

	require.NotNil(t, notice.ValueAmount)
	assert.Equal(t, "250000", notice.ValueAmount.String())
	assert.Equal(t, "GBP", notice.ValueCurrency)

	// CPV union, deduplicated, first occurrence order.
	assert.Equal(t, []string{"85311000", "85300000", "98000000"}, notice.CPVCodes)

	require.NotNil(t, notice.ContractStart)
	require.NotNil(t, notice.ContractEnd)
}

func TestNormaliseDefaults(t *testing.T) {
	rel := Release{"ocid": "ocds-x-1"}
	buyer, notice, err := testNormaliser().Normalise(rel)
	require.NoError(t, err)

	assert.Equal(t, "Unknown Buyer", buyer.CanonicalName)
	assert.Equal(t, "unknown-buyer", buyer.Slug)
	assert.Equal(t, "Untitled Notice", notice.Title)
	assert.Equal(t, model.NoticeTypeContract, notice.NoticeType)
	assert.Equal(t, "GBP", notice.ValueCurrency)
	// Missing release date falls back to now (UTC).
	assert.Equal(t, fixedNow, notice.PublicationDate)
	assert.Nil(t, notice.DeadlineDate)
	assert.Nil(t, notice.ValueAmount)
}

func TestNormaliseMissingOCID(t *testing.T) {
	_, _, err := testNormaliser().Normalise(Release{"tender": map[string]any{"title": "x"}})
	require.ErrorIs(t, err, model.ErrValidation)
}

func TestNormaliseNegativeValue(t *testing.T) {
	rel := sampleRelease()
	rel["tender"].(map[string]any)["value"] = map[string]any{"amount": -5.0}
	_, _, err := testNormaliser().Normalise(rel)
	require.ErrorIs(t, err, model.ErrValidation)
}

func TestNormaliseInvalidDeadline(t *testing.T) {
	rel := sampleRelease()
	rel["tender"].(map[string]any)["tenderPeriod"] = map[string]any{"endDate": "not-a-date"}
	_, notice, err := testNormaliser().Normalise(rel)
	require.NoError(t, err)
	assert.Nil(t, notice.DeadlineDate)
}

func TestNormaliseContractPeriodFromAward(t *testing.T) {
	rel := sampleRelease()
	delete(rel["tender"].(map[string]any), "contractPeriod")
	rel["awards"] = []any{map[string]any{
		"contractPeriod": map[string]any{"startDate": "2024-01-01T00:00:00Z"},
	}}
	_, notice, err := testNormaliser().Normalise(rel)
	require.NoError(t, err)
	require.NotNil(t, notice.ContractStart)
	assert.Equal(t, 2024, notice.ContractStart.Year())
}

func TestNormaliseSerialiseRoundTrip(t *testing.T) {
	_, original, err := testNormaliser().Normalise(sampleRelease())
	require.NoError(t, err)

	_, recovered, err := testNormaliser().Normalise(Serialise(original))
	require.NoError(t, err)

	assert.Equal(t, original.OCID, recovered.OCID)
	assert.Equal(t, original.Title, recovered.Title)
	assert.Equal(t, original.Description, recovered.Description)
	assert.Equal(t, original.NoticeType, recovered.NoticeType)
	assert.Equal(t, original.CPVCodes, recovered.CPVCodes)
	assert.Equal(t, original.ProcurementMethod, recovered.ProcurementMethod)
	assert.Equal(t, original.SourceURL, recovered.SourceURL)
	assert.True(t, original.PublicationDate.Equal(recovered.PublicationDate))
	assert.True(t, original.DeadlineDate.Equal(*recovered.DeadlineDate))
	assert.True(t, original.ValueAmount.Equal(*recovered.ValueAmount))
	assert.True(t, original.ContractStart.Equal(*recovered.ContractStart))
	assert.True(t, original.ContractEnd.Equal(*recovered.ContractEnd))
}
