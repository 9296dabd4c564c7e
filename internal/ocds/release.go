// Package ocds reads Open Contracting Data Standard release packages:
// typed accessors over the schema-flexible release JSON, the normaliser
// that maps releases to canonical buyer/notice records, and the paginated
// source client.
package ocds

import "tendermatch/internal/model"

// Object is a schema-flexible JSON object with typed accessors. Missing or
// mistyped paths return zero values; ingestion never trusts the shape of a
// release beyond the pinned paths it needs.
type Object map[string]any

// Obj returns the object at key, or an empty Object.
func (o Object) Obj(key string) Object {
	switch v := o[key].(type) {
	case map[string]any:
		return Object(v)
	case Object:
		return v
	case model.JSONMap:
		return Object(v)
	}
	return Object{}
}

// Objects returns the list of objects at key.
func (o Object) Objects(key string) []Object {
	raw, ok := o[key].([]any)
	if !ok {
		return nil
	}
	out := make([]Object, 0, len(raw))
	for _, item := range raw {
		if m, ok := item.(map[string]any); ok {
			out = append(out, Object(m))
		}
	}
	return out
}

// Str returns the string at key, or "".
func (o Object) Str(key string) string {
	s, _ := o[key].(string)
	return s
}

// Strings returns the list of strings at key.
func (o Object) Strings(key string) []string {
	raw, ok := o[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// Float returns the number at key.
func (o Object) Float(key string) (float64, bool) {
	switch v := o[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// Bool returns the boolean at key.
func (o Object) Bool(key string) bool {
	b, _ := o[key].(bool)
	return b
}

// Release is one OCDS release.
type Release Object

func (r Release) obj() Object { return Object(r) }

// OCID returns the contracting process identifier.
func (r Release) OCID() string { return r.obj().Str("ocid") }

// Tender returns the tender block.
func (r Release) Tender() Object { return r.obj().Obj("tender") }

// Awards returns the awards list.
func (r Release) Awards() []Object { return r.obj().Objects("awards") }

// Tags returns the release tag list.
func (r Release) Tags() []string { return r.obj().Strings("tag") }

// BuyerBlock returns the buyer block.
func (r Release) BuyerBlock() Object { return r.obj().Obj("buyer") }

// Parties returns the parties list.
func (r Release) Parties() []Object { return r.obj().Objects("parties") }

// Lots returns the tender's lots.
func (r Release) Lots() []Object { return r.Tender().Objects("lots") }

// Map returns the release as a storable JSON map.
func (r Release) Map() model.JSONMap { return model.JSONMap(r) }

// ReleaseFromMap views a stored raw release as a Release.
func ReleaseFromMap(m model.JSONMap) Release { return Release(m) }

// LotValue returns a lot's value, preferring amountGross over amount.
func LotValue(lot Object) (float64, bool) {
	value := lot.Obj("value")
	if v, ok := value.Float("amountGross"); ok {
		return v, true
	}
	return value.Float("amount")
}

// Suitability reports the sme/vcse suitability booleans of a tender or lot
// block, and whether the block declares a suitability object at all.
func Suitability(block Object) (sme, vcse, declared bool) {
	raw, present := block["suitability"]
	if !present {
		return false, false, false
	}
	s, ok := raw.(map[string]any)
	if !ok {
		return false, false, false
	}
	obj := Object(s)
	return obj.Bool("sme"), obj.Bool("vcse"), true
}

// NoticeRegions collects the delivery regions a release declares:
// tender.items[].deliveryAddresses[].region, falling back to the buyer
// party's address region. May be empty.
func NoticeRegions(r Release) []string {
	var regions []string
	seen := map[string]bool{}
	add := func(region string) {
		if region != "" && !seen[region] {
			seen[region] = true
			regions = append(regions, region)
		}
	}

	for _, item := range r.Tender().Objects("items") {
		for _, addr := range item.Objects("deliveryAddresses") {
			add(addr.Str("region"))
		}
	}
	if len(regions) > 0 {
		return regions
	}

	for _, party := range r.Parties() {
		for _, role := range party.Strings("roles") {
			if role == "buyer" {
				add(party.Obj("address").Str("region"))
			}
		}
	}
	return regions
}
