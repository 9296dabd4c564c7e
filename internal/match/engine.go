// Package match implements the matching funnel: for each (profile,
// notice) pair, hard gates (suitability, value, geography, sector overlap,
// exclusion keywords) discard unsuitable candidates, soft scoring ranks
// the survivors, and a sticky Tier-2 verdict can override the mechanical
// recommendation. One profile's matches commit as a single unit.
package match

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tendermatch/internal/embedding"
	"tendermatch/internal/mesh"
	"tendermatch/internal/metrics"
	"tendermatch/internal/model"
	"tendermatch/internal/ocds"
	"tendermatch/internal/radar"
)

// Score composition weights.
const (
	weightSemantic = 0.40
	weightTheme    = 0.30
	weightDomain   = 0.20
	weightGeo      = 0.10
)

// goThreshold is the total score above which the mechanical verdict is GO.
const goThreshold = 0.65

// nationalIncome is the income above which a charity is treated as a
// national operator regardless of its declared regions.
const nationalIncome = 5_000_000

// valueGateFraction caps a viable contract at this fraction of income.
const valueGateFraction = 0.4

// neutralScore is used where one side of a comparison is silent.
const neutralScore = 0.5

// Store is the persistence surface the engine needs. SaveMatches must
// apply the whole set atomically: mechanical upserts plus deletion of
// dropped rows that carry no Tier-2 verdict.
type Store interface {
	GetProfile(ctx context.Context, orgID uuid.UUID) (*model.ServiceProfile, error)
	ListProfiles(ctx context.Context) ([]model.ServiceProfile, error)
	ListCandidateNotices(ctx context.Context) ([]model.Notice, error)
	MatchesForOrg(ctx context.Context, orgID uuid.UUID) (map[string]*model.NoticeMatch, error)
	SaveMatches(ctx context.Context, orgID uuid.UUID, matches []*model.NoticeMatch) error
}

// RadarEnricher attaches historical buyer intelligence to a candidate.
type RadarEnricher interface {
	Enrich(ctx context.Context, notice *model.Notice) radar.Result
}

// Engine runs the funnel.
type Engine struct {
	store  Store
	radar  RadarEnricher
	logger *zap.Logger
}

// New builds a matching engine.
func New(store Store, radarSvc RadarEnricher, logger *zap.Logger) *Engine {
	return &Engine{store: store, radar: radarSvc, logger: logger.Named("match")}
}

// Recalculate rebuilds the match set for one profile from a snapshot of
// the candidate pool and the existing match map. The result commits as
// one unit; Tier-2 verdicts on existing rows are honoured and preserved.
func (e *Engine) Recalculate(ctx context.Context, orgID uuid.UUID) error {
	timer := prometheus.NewTimer(metrics.RecalcDuration)
	defer timer.ObserveDuration()

	profile, err := e.store.GetProfile(ctx, orgID)
	if err != nil {
		return err
	}
	candidates, err := e.store.ListCandidateNotices(ctx)
	if err != nil {
		return err
	}
	existing, err := e.store.MatchesForOrg(ctx, orgID)
	if err != nil {
		return err
	}

	var matches []*model.NoticeMatch
	for i := range candidates {
		notice := &candidates[i]
		if ctx.Err() != nil {
			return ctx.Err()
		}
		match, ok := e.evaluate(ctx, profile, notice, existing[notice.OCID])
		if ok {
			matches = append(matches, match)
		}
	}

	if err := e.store.SaveMatches(ctx, orgID, matches); err != nil {
		return err
	}
	metrics.MatchesWritten.Add(float64(len(matches)))
	e.logger.Info("profile recalculated",
		zap.String("org", orgID.String()),
		zap.Int("candidates", len(candidates)),
		zap.Int("matches", len(matches)))
	return nil
}

// evaluate runs stages 2-7 of the funnel for one candidate. A false
// second return means a hard gate discarded the notice: no row is
// written.
func (e *Engine) evaluate(ctx context.Context, profile *model.ServiceProfile, notice *model.Notice, existing *model.NoticeMatch) (*model.NoticeMatch, bool) {
	rel := ocds.ReleaseFromMap(notice.RawRelease)
	tender := rel.Tender()
	lots := rel.Lots()

	var reasons []string
	riskFlags := model.JSONMap{}
	var checklist []model.ChecklistItem

	// Stage 2: VCSE/SME gate. A declared suitability object must admit
	// small or voluntary-sector suppliers; silence passes neutrally.
	sme, vcse, declared := aggregateSuitability(tender, lots)
	if declared && !sme && !vcse {
		return nil, false
	}
	switch {
	case vcse:
		reasons = append(reasons, "Explicitly marked as suitable for VCSEs/Charities.")
	case sme:
		reasons = append(reasons, "Marked as suitable for SMEs.")
	default:
		reasons = append(reasons, "Supplier suitability not declared by the buyer.")
	}
	riskFlags["is_vcse"] = vcse
	riskFlags["is_sme"] = sme

	// Stage 3: value gate. Contracts above 40% of income are only viable
	// through a lot of workable scale.
	viabilityWarning := ""
	if profile.LatestIncome > 0 && notice.ValueAmount != nil && notice.ValueAmount.IsPositive() {
		valueCap := decimal.NewFromInt(profile.LatestIncome).Mul(decimal.NewFromFloat(valueGateFraction))
		if notice.ValueAmount.GreaterThan(valueCap) {
			suitable := suitableLots(lots, valueCap)
			if len(suitable) == 0 {
				return nil, false
			}
			reasons = append(reasons, fmt.Sprintf("Contains %d suitable lot(s) based on scale.", len(suitable)))
			viabilityWarning = "High Risk: Total contract value exceeds 40% of annual income; bid at lot level."
		}
	}

	// Stage 4: geography.
	scoreGeo, geoPass := geoScore(profile, rel)
	if !geoPass {
		return nil, false
	}

	// Stage 5: CPV sector overlap.
	scoreDomain, domainPass := domainScore(profile.InferredCPVCodes, notice.CPVCodes)
	if !domainPass {
		return nil, false
	}

	// Stage 6: exclusion keywords.
	text := strings.ToLower(notice.Title + " " + notice.Description)
	for _, keyword := range profile.ExclusionKeywords {
		kw := strings.ToLower(strings.TrimSpace(keyword))
		if kw != "" && strings.Contains(text, kw) {
			return nil, false
		}
	}

	// Stage 7: scoring.
	scoreSemantic := semanticScore(profile, notice)
	scoreTheme := themeScore(profile.UKCATThemes, notice.InferredUKCAT)
	total := weightSemantic*scoreSemantic + weightTheme*scoreTheme +
		weightDomain*scoreDomain + weightGeo*scoreGeo

	// Risk scan and checklist.
	if strings.Contains(text, "tupe") {
		riskFlags["TUPE"] = "High Risk: Staff transfer likely."
	}
	if strings.Contains(text, "safeguarding") {
		riskFlags["Safeguarding"] = "Review Required: Safeguarding standards apply."
	}
	if notice.DeadlineDate != nil {
		days := int(notice.DeadlineDate.Sub(notice.PublicationDate).Hours() / 24)
		if days < 20 {
			riskFlags["Mobilization"] = fmt.Sprintf("Short bidding window (%d days).", days)
		}
	}
	if strings.Contains(text, "social care") {
		checklist = append(checklist, model.ChecklistItem{Item: "Enhanced DBS", Status: "Required"})
	}
	if strings.Contains(text, "cyber") {
		checklist = append(checklist, model.ChecklistItem{Item: "Cyber Essentials", Status: "Check"})
	}

	// Renewal radar.
	if intel := e.radar.Enrich(ctx, notice); intel.BuyerSeenBefore {
		riskFlags["renewal_radar"] = intel
		if intel.Incumbent != "" {
			reasons = append(reasons, fmt.Sprintf(
				"Renewal Radar: buyer seen before; incumbent %s, est. %d-year cycle.",
				intel.Incumbent, intel.EstimatedCycleYears))
		} else {
			reasons = append(reasons, fmt.Sprintf(
				"Renewal Radar: buyer seen before; %d historical contract(s) in this sector.",
				intel.HistoricalContractCount))
		}
	}

	// Verdict: mechanical threshold, TUPE demotion, then the sticky
	// Tier-2 override from the existing row.
	verdict := model.VerdictReview
	if total > goThreshold {
		verdict = model.VerdictGo
	}
	if _, tupe := riskFlags["TUPE"]; tupe {
		verdict = model.VerdictReview
	}

	match := &model.NoticeMatch{
		OrgID:                 profile.OrgID,
		OCID:                  notice.OCID,
		Score:                 clamp01(total),
		ScoreSemantic:         scoreSemantic,
		ScoreDomain:           scoreDomain,
		ScoreGeo:              scoreGeo,
		ScoreTheme:            scoreTheme,
		Verdict:               verdict,
		ViabilityWarning:      viabilityWarning,
		RiskFlags:             riskFlags,
		Checklist:             checklist,
		RecommendationReasons: reasons,
	}

	if existing != nil {
		// Tier-2 columns are curated knowledge: carried forward verbatim
		// and never recomputed here.
		match.DeepVerdict = existing.DeepVerdict
		match.DeepRationale = existing.DeepRationale
		match.IsTracked = existing.IsTracked
		switch existing.DeepVerdict {
		case model.DeepPass:
			match.Verdict = model.VerdictGo
			match.RecommendationReasons = append(match.RecommendationReasons,
				"Deep review PASS: strategic fit confirmed by analyst review.")
		case model.DeepFail:
			match.Verdict = model.VerdictNoGo
		}
	}

	return match, true
}

// aggregateSuitability folds tender- and lot-level suitability together.
func aggregateSuitability(tender ocds.Object, lots []ocds.Object) (sme, vcse, declared bool) {
	sme, vcse, declared = ocds.Suitability(tender)
	for _, lot := range lots {
		lotSME, lotVCSE, lotDeclared := ocds.Suitability(lot)
		sme = sme || lotSME
		vcse = vcse || lotVCSE
		declared = declared || lotDeclared
	}
	return sme, vcse, declared
}

// suitableLots returns the titles of lots whose value fits under the cap.
// Lots without a value cannot be sized and do not qualify.
func suitableLots(lots []ocds.Object, valueCap decimal.Decimal) []string {
	var suitable []string
	for _, lot := range lots {
		raw, ok := ocds.LotValue(lot)
		if !ok {
			continue
		}
		if decimal.NewFromFloat(raw).LessThanOrEqual(valueCap) {
			title := lot.Str("title")
			if title == "" {
				title = "Lot " + lot.Str("id")
			}
			suitable = append(suitable, title)
		}
	}
	return suitable
}

// geoScore applies the geography gate. National profiles always pass;
// local profiles pass on overlap or when the notice declares no regions.
func geoScore(profile *model.ServiceProfile, rel ocds.Release) (float64, bool) {
	noticeRegions := lowered(ocds.NoticeRegions(rel))
	profileRegions := lowered(profile.ServiceRegions)
	overlap := intersects(noticeRegions, profileRegions)

	if isNational(profile, profileRegions) {
		if overlap || len(noticeRegions) == 0 {
			return 1, true
		}
		return 0.25, true
	}

	switch {
	case overlap:
		return 1, true
	case len(noticeRegions) == 0:
		return neutralScore, true
	default:
		return 0, false
	}
}

// isNational classifies a profile as a national operator: income above
// the threshold or a nationwide region declaration.
func isNational(profile *model.ServiceProfile, loweredRegions []string) bool {
	if profile.LatestIncome > nationalIncome {
		return true
	}
	for _, region := range loweredRegions {
		switch region {
		case "national", "united kingdom", "uk":
			return true
		}
	}
	return false
}

// domainScore applies the CPV gate: when both sides declare codes their
// 4-character prefixes must intersect; a silent side scores neutral.
func domainScore(profileCodes, noticeCodes []string) (float64, bool) {
	if len(profileCodes) == 0 || len(noticeCodes) == 0 {
		return neutralScore, true
	}
	prefixes := map[string]bool{}
	for _, code := range profileCodes {
		if len(code) >= mesh.PrefixLen {
			prefixes[code[:mesh.PrefixLen]] = true
		}
	}
	for _, code := range noticeCodes {
		if len(code) >= mesh.PrefixLen && prefixes[code[:mesh.PrefixLen]] {
			return 1, true
		}
	}
	return 0, false
}

// semanticScore is the clamped cosine similarity between the profile
// embedding and the notice's summary embedding (preferred) or raw
// description embedding. Absent vectors score zero.
func semanticScore(profile *model.ServiceProfile, notice *model.Notice) float64 {
	if len(profile.ProfileEmbedding) == 0 {
		return 0
	}
	target := notice.SummaryEmbedding
	if len(target) == 0 {
		target = notice.Embedding
	}
	if len(target) == 0 {
		return 0
	}
	sim := embedding.Cosine(profile.ProfileEmbedding, target)
	if sim < 0 {
		return 0
	}
	return sim
}

func lowered(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

func intersects(a, b []string) bool {
	set := map[string]bool{}
	for _, v := range a {
		set[v] = true
	}
	for _, v := range b {
		if set[v] {
			return true
		}
	}
	return false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
