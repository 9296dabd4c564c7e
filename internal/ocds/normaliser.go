package ocds

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"tendermatch/internal/model"
)

// BuyerPatch is the normalised buyer upsert payload. Slug is the upsert key.
type BuyerPatch struct {
	CanonicalName string
	Slug          string
	Identifiers   model.JSONMap
}

// Normaliser maps raw OCDS releases to canonical records. Pure apart from
// the injected clock (used only when a release omits its date).
type Normaliser struct {
	now func() time.Time
}

// NewNormaliser returns a Normaliser using the wall clock.
func NewNormaliser() *Normaliser {
	return &Normaliser{now: func() time.Time { return time.Now().UTC() }}
}

// NewNormaliserAt returns a Normaliser with a fixed clock.
func NewNormaliserAt(now func() time.Time) *Normaliser {
	return &Normaliser{now: now}
}

// Normalise maps one release to a buyer patch and a notice. The notice's
// BuyerID is left unset; the ingestion worker resolves it after the buyer
// upsert. Releases without an OCID or with a negative value fail
// validation and are skipped by callers.
func (n *Normaliser) Normalise(rel Release) (BuyerPatch, *model.Notice, error) {
	ocid := rel.OCID()
	if ocid == "" {
		return BuyerPatch{}, nil, fmt.Errorf("release: %w: missing ocid", model.ErrValidation)
	}

	tender := rel.Tender()

	buyer := normaliseBuyer(rel.BuyerBlock())

	pubDate := parseTime(Object(rel).Str("date"))
	if pubDate == nil {
		t := n.now()
		pubDate = &t
	}

	var deadline *time.Time
	if end := tender.Obj("tenderPeriod").Str("endDate"); end != "" {
		deadline = parseTime(end)
	}

	var amount *decimal.Decimal
	currency := "GBP"
	value := tender.Obj("value")
	if raw, ok := value.Float("amount"); ok {
		d := decimal.NewFromFloat(raw)
		amount = &d
	}
	if c := value.Str("currency"); c != "" {
		currency = c
	}

	title := tender.Str("title")
	if title == "" {
		title = "Untitled Notice"
	}

	noticeType := model.NoticeTypeContract
	if tags := rel.Tags(); len(tags) > 0 {
		noticeType = tags[0]
	}

	start, end := contractPeriod(rel)

	notice := &model.Notice{
		OCID:              ocid,
		ReleaseID:         Object(rel).Str("id"),
		Title:             title,
		Description:       tender.Str("description"),
		PublicationDate:   *pubDate,
		DeadlineDate:      deadline,
		ValueAmount:       amount,
		ValueCurrency:     currency,
		ProcurementMethod: tender.Str("procurementMethod"),
		NoticeType:        noticeType,
		RawRelease:        rel.Map(),
		SourceURL:         sourceURL(tender),
		CPVCodes:          cpvCodes(tender),
		ContractStart:     start,
		ContractEnd:       end,
		UpdatedAt:         n.now(),
	}

	if err := notice.Validate(); err != nil {
		return BuyerPatch{}, nil, err
	}
	return buyer, notice, nil
}

// normaliseBuyer canonicalises the buyer name (collapsing whitespace runs)
// and derives the slug used as the upsert key.
func normaliseBuyer(buyer Object) BuyerPatch {
	name := buyer.Str("name")
	if strings.TrimSpace(name) == "" {
		name = "Unknown Buyer"
	}
	canonical := strings.Join(strings.Fields(name), " ")
	slug := strings.ReplaceAll(strings.ToLower(canonical), " ", "-")

	var identifiers model.JSONMap
	if id := buyer.Obj("identifier"); len(id) > 0 {
		identifiers = model.JSONMap(id)
	}
	return BuyerPatch{CanonicalName: canonical, Slug: slug, Identifiers: identifiers}
}

// cpvCodes unions classification ids from items, the top-level tender
// classification and additionalClassifications, de-duplicated preserving
// first occurrence.
func cpvCodes(tender Object) []string {
	var codes []string
	seen := map[string]bool{}
	add := func(code string) {
		if code != "" && !seen[code] {
			seen[code] = true
			codes = append(codes, code)
		}
	}

	for _, item := range tender.Objects("items") {
		add(item.Obj("classification").Str("id"))
	}
	add(tender.Obj("classification").Str("id"))
	for _, ac := range tender.Objects("additionalClassifications") {
		add(ac.Str("id"))
	}
	return codes
}

// contractPeriod takes tender.contractPeriod, else the first award's.
func contractPeriod(rel Release) (*time.Time, *time.Time) {
	period := rel.Tender().Obj("contractPeriod")
	if len(period) == 0 {
		if awards := rel.Awards(); len(awards) > 0 {
			period = awards[0].Obj("contractPeriod")
		}
	}
	return parseTime(period.Str("startDate")), parseTime(period.Str("endDate"))
}

func sourceURL(tender Object) string {
	if docs := tender.Objects("documents"); len(docs) > 0 {
		return docs[0].Str("url")
	}
	return ""
}

// parseTime parses an ISO-8601 timestamp with explicit zone. Invalid or
// empty input yields nil.
func parseTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	utc := t.UTC()
	return &utc
}

// Serialise rebuilds a minimal release from a notice's canonical fields.
// Used to verify that normalisation round-trips.
func Serialise(n *model.Notice) Release {
	tender := map[string]any{
		"title":       n.Title,
		"description": n.Description,
	}
	if n.DeadlineDate != nil {
		tender["tenderPeriod"] = map[string]any{"endDate": n.DeadlineDate.Format(time.RFC3339)}
	}
	if n.ValueAmount != nil {
		amt, _ := n.ValueAmount.Float64()
		tender["value"] = map[string]any{"amount": amt, "currency": n.ValueCurrency}
	}
	if n.ProcurementMethod != "" {
		tender["procurementMethod"] = n.ProcurementMethod
	}
	if len(n.CPVCodes) > 0 {
		items := make([]any, 0, len(n.CPVCodes))
		for _, code := range n.CPVCodes {
			items = append(items, map[string]any{"classification": map[string]any{"id": code}})
		}
		tender["items"] = items
	}
	if n.ContractStart != nil || n.ContractEnd != nil {
		period := map[string]any{}
		if n.ContractStart != nil {
			period["startDate"] = n.ContractStart.Format(time.RFC3339)
		}
		if n.ContractEnd != nil {
			period["endDate"] = n.ContractEnd.Format(time.RFC3339)
		}
		tender["contractPeriod"] = period
	}
	if n.SourceURL != "" {
		tender["documents"] = []any{map[string]any{"url": n.SourceURL}}
	}

	return Release{
		"ocid":   n.OCID,
		"id":     n.ReleaseID,
		"date":   n.PublicationDate.Format(time.RFC3339),
		"tag":    []any{n.NoticeType},
		"tender": tender,
	}
}
