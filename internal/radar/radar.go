// Package radar joins a live notice against prior awards from the same
// buyer and sector to surface competitive intelligence: the presumed
// incumbent, an estimated re-tender cycle, and the competitor field.
// Pure read; enrichment never fails a match run.
package radar

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tendermatch/internal/mesh"
	"tendermatch/internal/model"
	"tendermatch/internal/ocds"
)

// historyCap bounds the historical lookback per notice.
const historyCap = 10

// maxSuppliers bounds the reported competitor field.
const maxSuppliers = 5

// Store is the read surface the radar needs.
type Store interface {
	HistoricalNotices(ctx context.Context, buyerID uuid.UUID, cpvPrefixes []string, limit int) ([]model.Notice, error)
}

// Result is the historical intelligence attached to one live notice.
type Result struct {
	BuyerSeenBefore         bool     `json:"buyer_seen_before"`
	HistoricalContractCount int      `json:"historical_contract_count"`
	Incumbent               string   `json:"incumbent,omitempty"`
	LastAwardedDate         string   `json:"last_awarded_date,omitempty"`
	EstimatedCycleYears     int      `json:"estimated_cycle_years,omitempty"`
	UniqueSuppliers         []string `json:"unique_suppliers,omitempty"`
	RadarSummary            string   `json:"radar_summary"`
}

// Service is the renewal radar.
type Service struct {
	store  Store
	now    func() time.Time
	logger *zap.Logger
}

// New builds the radar service.
func New(store Store, logger *zap.Logger) *Service {
	return &Service{store: store, now: func() time.Time { return time.Now().UTC() }, logger: logger.Named("radar")}
}

// NewAt builds the radar with a fixed clock, for tests.
func NewAt(store Store, now func() time.Time, logger *zap.Logger) *Service {
	return &Service{store: store, now: now, logger: logger.Named("radar")}
}

// Enrich computes historical intelligence for a live notice. It never
// returns an error: lookups that fail produce a diagnostic summary and
// otherwise empty fields.
func (s *Service) Enrich(ctx context.Context, notice *model.Notice) Result {
	var result Result

	if notice.BuyerID == nil {
		result.RadarSummary = "New buyer - no buyer reference, historical lookup not possible."
		return result
	}

	prefixes := cpvPrefixes(notice.CPVCodes)
	history, err := s.store.HistoricalNotices(ctx, *notice.BuyerID, prefixes, historyCap)
	if err != nil {
		s.logger.Warn("historical lookup failed", zap.String("ocid", notice.OCID), zap.Error(err))
		result.RadarSummary = "Historical lookup unavailable."
		return result
	}
	if len(history) == 0 {
		result.RadarSummary = "New buyer - no prior history in this sector. First-mover advantage possible."
		return result
	}

	result.BuyerSeenBefore = true
	result.HistoricalContractCount = len(history)

	// Suppliers in history order (newest first); the first named supplier
	// is the presumed incumbent.
	var suppliers []string
	seen := map[string]bool{}
	var lastAward *time.Time
	for i := range history {
		row := &history[i]
		rel := ocds.ReleaseFromMap(row.RawRelease)
		for _, award := range rel.Awards() {
			for _, supplier := range award.Objects("suppliers") {
				name := supplier.Str("name")
				if name != "" && !seen[name] {
					seen[name] = true
					suppliers = append(suppliers, name)
				}
			}
		}
		if lastAward == nil || row.PublicationDate.After(*lastAward) {
			t := row.PublicationDate
			lastAward = &t
		}
	}
	if len(suppliers) > maxSuppliers {
		suppliers = suppliers[:maxSuppliers]
	}
	result.UniqueSuppliers = suppliers
	if len(suppliers) > 0 {
		result.Incumbent = suppliers[0]
	}

	if lastAward != nil {
		result.LastAwardedDate = lastAward.Format(time.RFC3339)
		result.EstimatedCycleYears = estimateCycle(s.now().Sub(*lastAward))
	}

	result.RadarSummary = summarise(result, lastAward)
	return result
}

// cpvPrefixes maps codes to their 4-character sector prefixes.
func cpvPrefixes(codes []string) []string {
	var prefixes []string
	seen := map[string]bool{}
	for _, code := range codes {
		if len(code) < mesh.PrefixLen {
			continue
		}
		p := code[:mesh.PrefixLen]
		if !seen[p] {
			seen[p] = true
			prefixes = append(prefixes, p)
		}
	}
	return prefixes
}

// estimateCycle snaps the years since the most recent award to the
// nearest common procurement cycle (1, 2, 3 or 5 years) within ±0.75,
// defaulting to 3.
func estimateCycle(sinceAward time.Duration) int {
	years := sinceAward.Hours() / 24 / 365.25
	for _, cycle := range []int{1, 2, 3, 5} {
		if math.Abs(years-float64(cycle)) < 0.75 {
			return cycle
		}
	}
	return 3
}

// summarise renders the human-readable radar summary.
func summarise(r Result, lastAward *time.Time) string {
	var lines []string
	if r.Incumbent != "" {
		lines = append(lines, fmt.Sprintf("Incumbent: %s", r.Incumbent))
	} else {
		lines = append(lines, "No clear incumbent identified in history.")
	}
	if lastAward != nil {
		lines = append(lines, fmt.Sprintf("Last awarded: %s (est. %d-year cycle)",
			lastAward.Format("Jan 2006"), r.EstimatedCycleYears))
	}
	if len(r.UniqueSuppliers) > 1 {
		competitors := r.UniqueSuppliers[1:]
		if len(competitors) > 3 {
			competitors = competitors[:3]
		}
		lines = append(lines, "Other competitors seen: "+strings.Join(competitors, ", "))
	}
	lines = append(lines, fmt.Sprintf("%d historical contract(s) found for this buyer in this sector.",
		r.HistoricalContractCount))
	return strings.Join(lines, "\n")
}
