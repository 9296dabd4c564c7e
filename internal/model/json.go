package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrValidation marks records that fail model invariants. Callers skip the
// offending item and record a diagnostic rather than aborting the run.
var ErrValidation = errors.New("validation failed")

// JSONMap is a schema-flexible JSON object. Raw OCDS releases, risk flags,
// buyer identifier bags and alert details are stored as-is; consumers read
// pinned paths through typed accessors with defaults.
type JSONMap map[string]any

// Value implements driver.Valuer for JSONB columns.
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner for JSONB columns.
func (m *JSONMap) Scan(src any) error {
	if src == nil {
		*m = nil
		return nil
	}
	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("jsonmap: cannot scan %T", src)
	}
	return json.Unmarshal(data, m)
}

// RegionList is a profile's service-region set. The upstream data stores it
// either as a bare JSON array or as an object with a "regions" key; both
// shapes normalise to a flat list here.
type RegionList []string

// UnmarshalJSON accepts ["london"] and {"regions": ["london"]} alike.
func (r *RegionList) UnmarshalJSON(data []byte) error {
	var flat []string
	if err := json.Unmarshal(data, &flat); err == nil {
		*r = flat
		return nil
	}
	var wrapped struct {
		Regions []string `json:"regions"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return fmt.Errorf("regionlist: %w", err)
	}
	*r = wrapped.Regions
	return nil
}

// Value stores the list as a bare JSON array.
func (r RegionList) Value() (driver.Value, error) {
	if r == nil {
		return nil, nil
	}
	return json.Marshal([]string(r))
}

// Scan implements sql.Scanner for the JSONB column.
func (r *RegionList) Scan(src any) error {
	if src == nil {
		*r = nil
		return nil
	}
	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("regionlist: cannot scan %T", src)
	}
	return r.UnmarshalJSON(data)
}

// ChecklistJSON wraps a checklist for JSONB storage.
type ChecklistJSON []ChecklistItem

// Value implements driver.Valuer.
func (c ChecklistJSON) Value() (driver.Value, error) {
	if c == nil {
		return nil, nil
	}
	return json.Marshal([]ChecklistItem(c))
}

// Scan implements sql.Scanner.
func (c *ChecklistJSON) Scan(src any) error {
	if src == nil {
		*c = nil
		return nil
	}
	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("checklist: cannot scan %T", src)
	}
	return json.Unmarshal(data, c)
}
