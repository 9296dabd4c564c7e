// Package ingest drives the pull from OCDS sources: paginated fetch,
// normalisation, buyer/notice upsert, material-change detection, alerting
// and mesh-gated enrichment, committed per release.
package ingest

import (
	"time"

	"github.com/shopspring/decimal"

	"tendermatch/internal/model"
)

// Change keys in a ChangeSet.
const (
	ChangeDeadline = "deadline"
	ChangeValue    = "value"
	ChangeType     = "type"
)

// Change records one material field change between notice revisions.
type Change struct {
	Old     any     `json:"old"`
	New     any     `json:"new"`
	DiffPct float64 `json:"diff_pct,omitempty"` // value changes only, percent
}

// ChangeSet maps change keys to their details. Empty means no material
// change.
type ChangeSet map[string]Change

// Detector diffs an incoming notice revision against the stored state.
// ValueThreshold is the fractional value swing considered material.
type Detector struct {
	ValueThreshold float64
}

// NewDetector builds a detector; threshold <= 0 falls back to 10%.
func NewDetector(valueThreshold float64) *Detector {
	if valueThreshold <= 0 {
		valueThreshold = 0.10
	}
	return &Detector{ValueThreshold: valueThreshold}
}

// Diff compares the stored notice with an incoming revision and returns
// the material changes: any deadline mismatch on a non-null pair, a value
// swing beyond the threshold (old value non-zero), and a notice-type
// change. Diffing a notice against itself yields an empty set.
func (d *Detector) Diff(old, incoming *model.Notice) ChangeSet {
	changes := ChangeSet{}
	if old == nil || incoming == nil {
		return changes
	}

	if old.DeadlineDate != nil && incoming.DeadlineDate != nil &&
		!old.DeadlineDate.Equal(*incoming.DeadlineDate) {
		changes[ChangeDeadline] = Change{
			Old: old.DeadlineDate.Format(time.RFC3339),
			New: incoming.DeadlineDate.Format(time.RFC3339),
		}
	}

	if old.ValueAmount != nil && incoming.ValueAmount != nil && !old.ValueAmount.IsZero() {
		diff := incoming.ValueAmount.Sub(*old.ValueAmount).Abs().Div(old.ValueAmount.Abs())
		if diff.GreaterThan(decimal.NewFromFloat(d.ValueThreshold)) {
			pct, _ := diff.Mul(decimal.NewFromInt(100)).Round(2).Float64()
			oldVal, _ := old.ValueAmount.Float64()
			newVal, _ := incoming.ValueAmount.Float64()
			changes[ChangeValue] = Change{Old: oldVal, New: newVal, DiffPct: pct}
		}
	}

	if incoming.NoticeType != "" && old.NoticeType != incoming.NoticeType {
		changes[ChangeType] = Change{Old: old.NoticeType, New: incoming.NoticeType}
	}

	return changes
}
