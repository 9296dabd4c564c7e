package match

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tendermatch/internal/model"
	"tendermatch/internal/radar"
)

type fakeStore struct {
	profile    *model.ServiceProfile
	candidates []model.Notice
	existing   map[string]*model.NoticeMatch
	saved      []*model.NoticeMatch
	savedOrg   uuid.UUID
}

func (f *fakeStore) GetProfile(ctx context.Context, orgID uuid.UUID) (*model.ServiceProfile, error) {
	return f.profile, nil
}

func (f *fakeStore) ListProfiles(ctx context.Context) ([]model.ServiceProfile, error) {
	return []model.ServiceProfile{*f.profile}, nil
}

func (f *fakeStore) ListCandidateNotices(ctx context.Context) ([]model.Notice, error) {
	return f.candidates, nil
}

func (f *fakeStore) MatchesForOrg(ctx context.Context, orgID uuid.UUID) (map[string]*model.NoticeMatch, error) {
	if f.existing == nil {
		return map[string]*model.NoticeMatch{}, nil
	}
	return f.existing, nil
}

func (f *fakeStore) SaveMatches(ctx context.Context, orgID uuid.UUID, matches []*model.NoticeMatch) error {
	f.savedOrg = orgID
	f.saved = matches
	return nil
}

type fakeRadar struct {
	result radar.Result
}

func (f *fakeRadar) Enrich(ctx context.Context, notice *model.Notice) radar.Result {
	return f.result
}

func testEngine(store Store) *Engine {
	return New(store, &fakeRadar{}, zap.NewNop())
}

func localProfile() *model.ServiceProfile {
	return &model.ServiceProfile{
		OrgID:            uuid.New(),
		Name:             "Camden Housing Support",
		LatestIncome:     250_000,
		ServiceRegions:   model.RegionList{"London"},
		InferredCPVCodes: []string{"85311100"},
	}
}

func serviceNotice(ocid string, value float64, regions []string, cpv []string) *model.Notice {
	regionObjs := make([]any, 0, len(regions))
	for _, r := range regions {
		regionObjs = append(regionObjs, map[string]any{"region": r})
	}
	tender := map[string]any{"mainProcurementCategory": "services"}
	if len(regionObjs) > 0 {
		tender["items"] = []any{map[string]any{"deliveryAddresses": regionObjs}}
	}
	n := &model.Notice{
		OCID:            ocid,
		Title:           "Supported housing framework",
		Description:     "Delivery of floating support services.",
		PublicationDate: time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
		CPVCodes:        cpv,
		RawRelease:      model.JSONMap{"tender": tender},
	}
	if value > 0 {
		d := decimal.NewFromFloat(value)
		n.ValueAmount = &d
	}
	return n
}

func addLot(n *model.Notice, title string, value float64) {
	tender := n.RawRelease["tender"].(map[string]any)
	lots, _ := tender["lots"].([]any)
	tender["lots"] = append(lots, map[string]any{
		"title": title,
		"value": map[string]any{"amount": value},
	})
}

func evaluateOne(t *testing.T, profile *model.ServiceProfile, notice *model.Notice, existing *model.NoticeMatch) (*model.NoticeMatch, bool) {
	t.Helper()
	engine := testEngine(&fakeStore{profile: profile})
	return engine.evaluate(context.Background(), profile, notice, existing)
}

// Scenario: local small charity against a £2m national framework with no
// lots. The value gate rejects without writing a row.
func TestValueGateRejectsOversizedNotice(t *testing.T) {
	profile := localProfile()
	notice := serviceNotice("ocds-1", 2_000_000, []string{"London", "West Midlands"}, []string{"85311000"})

	_, ok := evaluateOne(t, profile, notice, nil)
	assert.False(t, ok)
}

// Scenario: the same framework with a £90k lot passes at lot level.
func TestValueGatePassesWithSuitableLot(t *testing.T) {
	profile := localProfile()
	notice := serviceNotice("ocds-1", 2_000_000, []string{"London", "West Midlands"}, []string{"85311000"})
	addLot(notice, "Lot 1: Camden", 90_000)

	match, ok := evaluateOne(t, profile, notice, nil)
	require.True(t, ok)

	assert.Equal(t, 1.0, match.ScoreGeo)
	assert.Equal(t, 1.0, match.ScoreDomain) // 8531 prefix intersects
	assert.Contains(t, []model.Verdict{model.VerdictGo, model.VerdictReview}, match.Verdict)
	assert.NotEmpty(t, match.ViabilityWarning)

	foundLotReason := false
	for _, reason := range match.RecommendationReasons {
		if reason == "Contains 1 suitable lot(s) based on scale." {
			foundLotReason = true
		}
	}
	assert.True(t, foundLotReason, "expected suitable-lot reason, got %v", match.RecommendationReasons)
}

// Value exactly at 40% of income is not rejected (strict >).
func TestValueGateBoundaryExactlyAtCap(t *testing.T) {
	profile := localProfile() // income 250k, cap 100k
	notice := serviceNotice("ocds-1", 100_000, []string{"London"}, nil)

	match, ok := evaluateOne(t, profile, notice, nil)
	require.True(t, ok)
	assert.Empty(t, match.ViabilityWarning)
}

func TestSuitabilityGate(t *testing.T) {
	profile := localProfile()

	// Declared suitability admitting neither SME nor VCSE rejects.
	notice := serviceNotice("ocds-1", 50_000, []string{"London"}, nil)
	notice.RawRelease["tender"].(map[string]any)["suitability"] = map[string]any{"sme": false, "vcse": false}
	_, ok := evaluateOne(t, profile, notice, nil)
	assert.False(t, ok)

	// VCSE-suitable passes with the explicit reason.
	notice = serviceNotice("ocds-2", 50_000, []string{"London"}, nil)
	notice.RawRelease["tender"].(map[string]any)["suitability"] = map[string]any{"vcse": true}
	match, ok := evaluateOne(t, profile, notice, nil)
	require.True(t, ok)
	assert.Contains(t, match.RecommendationReasons, "Explicitly marked as suitable for VCSEs/Charities.")
	assert.Equal(t, true, match.RiskFlags["is_vcse"])

	// Lot-level suitability rescues a silent tender block.
	notice = serviceNotice("ocds-3", 50_000, []string{"London"}, nil)
	tender := notice.RawRelease["tender"].(map[string]any)
	tender["lots"] = []any{map[string]any{
		"title":       "Lot 1",
		"suitability": map[string]any{"sme": true},
	}}
	match, ok = evaluateOne(t, profile, notice, nil)
	require.True(t, ok)
	assert.Equal(t, true, match.RiskFlags["is_sme"])
}

func TestGeoGate(t *testing.T) {
	// Local with overlap: 1.0.
	profile := localProfile()
	match, ok := evaluateOne(t, profile, serviceNotice("o1", 0, []string{"London"}, nil), nil)
	require.True(t, ok)
	assert.Equal(t, 1.0, match.ScoreGeo)

	// Local, notice declares no regions: 0.5, pass not reject.
	match, ok = evaluateOne(t, profile, serviceNotice("o2", 0, nil, nil), nil)
	require.True(t, ok)
	assert.Equal(t, 0.5, match.ScoreGeo)

	// Local, declared regions, no overlap: reject.
	_, ok = evaluateOne(t, profile, serviceNotice("o3", 0, []string{"Scotland"}, nil), nil)
	assert.False(t, ok)

	// National by income: mismatch passes at 0.25.
	national := localProfile()
	national.LatestIncome = 12_000_000
	match, ok = evaluateOne(t, national, serviceNotice("o4", 0, []string{"Scotland"}, nil), nil)
	require.True(t, ok)
	assert.Equal(t, 0.25, match.ScoreGeo)

	// National by region declaration, notice silent: 1.0.
	nationwide := localProfile()
	nationwide.ServiceRegions = model.RegionList{"United Kingdom"}
	match, ok = evaluateOne(t, nationwide, serviceNotice("o5", 0, nil, nil), nil)
	require.True(t, ok)
	assert.Equal(t, 1.0, match.ScoreGeo)
}

func TestCPVGate(t *testing.T) {
	profile := localProfile() // 8531 prefix

	// Disjoint prefixes reject.
	_, ok := evaluateOne(t, profile, serviceNotice("o1", 0, []string{"London"}, []string{"72000000"}), nil)
	assert.False(t, ok)

	// Either side empty scores the 0.5 neutral.
	match, ok := evaluateOne(t, profile, serviceNotice("o2", 0, []string{"London"}, nil), nil)
	require.True(t, ok)
	assert.Equal(t, 0.5, match.ScoreDomain)
}

func TestExclusionKeywords(t *testing.T) {
	profile := localProfile()
	profile.ExclusionKeywords = []string{"demolition"}

	notice := serviceNotice("o1", 0, []string{"London"}, nil)
	notice.Description = "Includes DEMOLITION of existing structures."
	_, ok := evaluateOne(t, profile, notice, nil)
	assert.False(t, ok)
}

func TestTUPEForcesReview(t *testing.T) {
	profile := localProfile()
	profile.UKCATThemes = []string{"housing"}

	notice := serviceNotice("o1", 0, []string{"London"}, []string{"85311000"})
	notice.Description = "Staff will transfer under TUPE regulations."
	notice.InferredUKCAT = []string{"HO101"}
	// Force a high mechanical score via embeddings.
	vec := make([]float32, model.EmbeddingDim)
	vec[0] = 1
	profile.ProfileEmbedding = vec
	notice.Embedding = vec

	match, ok := evaluateOne(t, profile, notice, nil)
	require.True(t, ok)
	assert.Greater(t, match.Score, 0.65)
	assert.Equal(t, model.VerdictReview, match.Verdict)
	assert.Contains(t, match.RiskFlags, "TUPE")
}

func TestScoreComposition(t *testing.T) {
	profile := localProfile()
	profile.UKCATThemes = []string{"housing", "mental health"}
	vec := make([]float32, model.EmbeddingDim)
	vec[0] = 1
	profile.ProfileEmbedding = vec

	notice := serviceNotice("o1", 0, []string{"London"}, []string{"85311000"})
	notice.Embedding = vec                       // semantic 1.0
	notice.InferredUKCAT = []string{"HO101"}     // matches housing only: theme 0.5
	match, ok := evaluateOne(t, profile, notice, nil)
	require.True(t, ok)

	assert.InDelta(t, 1.0, match.ScoreSemantic, 1e-9)
	assert.InDelta(t, 0.5, match.ScoreTheme, 1e-9)
	assert.InDelta(t, 1.0, match.ScoreDomain, 1e-9)
	assert.InDelta(t, 1.0, match.ScoreGeo, 1e-9)
	// 0.40*1 + 0.30*0.5 + 0.20*1 + 0.10*1 = 0.85
	assert.InDelta(t, 0.85, match.Score, 1e-9)
	assert.Equal(t, model.VerdictGo, match.Verdict)
}

func TestSummaryEmbeddingPreferred(t *testing.T) {
	profile := localProfile()
	vec := make([]float32, model.EmbeddingDim)
	vec[0] = 1
	orthogonal := make([]float32, model.EmbeddingDim)
	orthogonal[1] = 1
	profile.ProfileEmbedding = vec

	notice := serviceNotice("o1", 0, []string{"London"}, nil)
	notice.Embedding = vec
	notice.SummaryEmbedding = orthogonal
	match, ok := evaluateOne(t, profile, notice, nil)
	require.True(t, ok)
	assert.InDelta(t, 0.0, match.ScoreSemantic, 1e-9)
}

// Tier-2 stickiness: existing PASS forces GO and carries the rationale
// bit-identical; FAIL forces NO-GO.
func TestDeepVerdictSticky(t *testing.T) {
	profile := localProfile()
	notice := serviceNotice("o1", 0, []string{"London"}, nil)

	existing := &model.NoticeMatch{
		OrgID:         profile.OrgID,
		OCID:          notice.OCID,
		DeepVerdict:   model.DeepPass,
		DeepRationale: "Strong delivery track record in this sector.",
		IsTracked:     true,
	}
	match, ok := evaluateOne(t, profile, notice, existing)
	require.True(t, ok)
	assert.Equal(t, model.VerdictGo, match.Verdict)
	assert.Equal(t, model.DeepPass, match.DeepVerdict)
	assert.Equal(t, "Strong delivery track record in this sector.", match.DeepRationale)
	assert.True(t, match.IsTracked)
	assert.Contains(t, match.RecommendationReasons,
		"Deep review PASS: strategic fit confirmed by analyst review.")

	existing.DeepVerdict = model.DeepFail
	match, ok = evaluateOne(t, profile, notice, existing)
	require.True(t, ok)
	assert.Equal(t, model.VerdictNoGo, match.Verdict)
}

func TestMobilizationAndChecklist(t *testing.T) {
	profile := localProfile()
	notice := serviceNotice("o1", 0, []string{"London"}, nil)
	deadline := notice.PublicationDate.AddDate(0, 0, 10)
	notice.DeadlineDate = &deadline
	notice.Description = "Adult social care and cyber resilience services with safeguarding duties."

	match, ok := evaluateOne(t, profile, notice, nil)
	require.True(t, ok)
	assert.Contains(t, match.RiskFlags, "Mobilization")
	assert.Contains(t, match.RiskFlags, "Safeguarding")

	items := map[string]string{}
	for _, item := range match.Checklist {
		items[item.Item] = item.Status
	}
	assert.Equal(t, "Required", items["Enhanced DBS"])
	assert.Equal(t, "Check", items["Cyber Essentials"])
}

func TestRadarAnnotation(t *testing.T) {
	profile := localProfile()
	notice := serviceNotice("o1", 0, []string{"London"}, nil)

	engine := New(&fakeStore{profile: profile}, &fakeRadar{result: radar.Result{
		BuyerSeenBefore:         true,
		HistoricalContractCount: 3,
		Incumbent:               "Incumbent Ltd",
		EstimatedCycleYears:     2,
	}}, zap.NewNop())

	match, ok := engine.evaluate(context.Background(), profile, notice, nil)
	require.True(t, ok)
	assert.Contains(t, match.RiskFlags, "renewal_radar")

	found := false
	for _, reason := range match.RecommendationReasons {
		if reason == "Renewal Radar: buyer seen before; incumbent Incumbent Ltd, est. 2-year cycle." {
			found = true
		}
	}
	assert.True(t, found, "expected radar reason, got %v", match.RecommendationReasons)
}

func TestRecalculateWritesMatchSet(t *testing.T) {
	profile := localProfile()
	store := &fakeStore{
		profile: profile,
		candidates: []model.Notice{
			*serviceNotice("keep-1", 0, []string{"London"}, []string{"85311000"}),
			*serviceNotice("reject-1", 0, []string{"Scotland"}, nil), // geo reject
		},
		existing: map[string]*model.NoticeMatch{
			"keep-1": {
				OrgID:         profile.OrgID,
				OCID:          "keep-1",
				DeepVerdict:   model.DeepPass,
				DeepRationale: "rationale",
			},
		},
	}
	engine := testEngine(store)

	require.NoError(t, engine.Recalculate(context.Background(), profile.OrgID))
	require.Len(t, store.saved, 1)
	assert.Equal(t, profile.OrgID, store.savedOrg)

	saved := store.saved[0]
	assert.Equal(t, "keep-1", saved.OCID)
	// Invariant: scores stay in range and verdicts in the enum.
	assert.GreaterOrEqual(t, saved.Score, 0.0)
	assert.LessOrEqual(t, saved.Score, 1.0)
	assert.Contains(t, []model.Verdict{model.VerdictGo, model.VerdictReview, model.VerdictNoGo}, saved.Verdict)
	// Tier-2 fields ride through recalculation untouched.
	assert.Equal(t, model.DeepPass, saved.DeepVerdict)
	assert.Equal(t, "rationale", saved.DeepRationale)
}

func TestRecalculateIdempotentForDeepFields(t *testing.T) {
	profile := localProfile()
	store := &fakeStore{
		profile:    profile,
		candidates: []model.Notice{*serviceNotice("n1", 0, []string{"London"}, nil)},
	}
	engine := testEngine(store)

	require.NoError(t, engine.Recalculate(context.Background(), profile.OrgID))
	first := *store.saved[0]

	// Second run with the first run's output as the existing state.
	store.existing = map[string]*model.NoticeMatch{"n1": &first}
	require.NoError(t, engine.Recalculate(context.Background(), profile.OrgID))
	second := *store.saved[0]

	assert.Equal(t, first.DeepVerdict, second.DeepVerdict)
	assert.Equal(t, first.DeepRationale, second.DeepRationale)
	assert.Equal(t, first.Score, second.Score)
	assert.Equal(t, first.Verdict, second.Verdict)
}
