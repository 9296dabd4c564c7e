package model

import (
	"time"

	"github.com/google/uuid"
)

// Verdict is the funnel's mechanical recommendation for a match.
type Verdict string

const (
	VerdictGo     Verdict = "GO"
	VerdictReview Verdict = "REVIEW"
	VerdictNoGo   Verdict = "NO_GO"
)

// DeepVerdict is the Tier-2 (LLM) override verdict. Once written it is
// sticky: funnel re-runs must not clear or overwrite it.
type DeepVerdict string

const (
	DeepPass DeepVerdict = "PASS"
	DeepFail DeepVerdict = "FAIL"
)

// ChecklistItem is one bid-readiness checklist entry on a match.
type ChecklistItem struct {
	Item   string `json:"item"`
	Status string `json:"status"`
}

// NoticeMatch is the engine's output for one (profile, notice) pair.
// Composite key (OrgID, OCID). Mechanical fields are recomputed on every
// funnel run; DeepVerdict/DeepRationale belong to the Tier-2 reviewer and
// survive recalculation. Rows without a deep verdict are deletable when the
// notice falls out of the funnel; rows with one are preserved.
type NoticeMatch struct {
	OrgID uuid.UUID
	OCID  string

	Score         float64
	ScoreSemantic float64
	ScoreDomain   float64
	ScoreGeo      float64
	ScoreTheme    float64

	Verdict               Verdict
	ViabilityWarning      string
	RiskFlags             JSONMap
	Checklist             []ChecklistItem
	RecommendationReasons []string

	IsTracked     bool
	DeepVerdict   DeepVerdict // empty until Tier-2 writes it
	DeepRationale string

	CreatedAt time.Time
}

// HasDeepVerdict reports whether Tier-2 has reviewed this match.
func (m *NoticeMatch) HasDeepVerdict() bool {
	return m.DeepVerdict == DeepPass || m.DeepVerdict == DeepFail
}

// Alert types.
const (
	AlertNewMatch       = "NEW_MATCH"
	AlertMaterialChange = "MATERIAL_CHANGE"
	AlertRenewal        = "RENEWAL"
)

// Alert severities.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Alert is a structured notification surfaced on the opportunity feed.
type Alert struct {
	ID        uuid.UUID
	OrgID     uuid.UUID
	OCID      string
	Type      string
	Severity  string
	Message   string
	Details   JSONMap
	IsRead    bool
	CreatedAt time.Time
}

// Ingestion run states.
const (
	RunRunning = "RUNNING"
	RunSuccess = "SUCCESS"
	RunFailed  = "FAILED"
)

// IngestionLog is the append-only per-run record for one source pull.
type IngestionLog struct {
	ID             uuid.UUID
	Source         string
	StartedAt      time.Time
	CompletedAt    *time.Time
	Status         string
	ItemsProcessed int
	ErrorDetails   string
}
