// Package model defines the canonical records shared across the ingestion,
// matching and alerting services: buyers, notices, service profiles,
// notice matches, alerts and ingestion logs. The relational store owns all
// of these; in-memory values are transient views.
package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EmbeddingDim is the dimensionality of every stored embedding.
// All vectors are either empty (not yet enriched) or exactly this length.
const EmbeddingDim = 1536

// Notice types observed in OCDS release tags.
const (
	NoticeTypeContract   = "contractNotice"
	NoticeTypeAward      = "contractAward"
	NoticeTypeHistorical = "historical"
)

// Buyer is a canonical contracting authority. Created on first sight,
// upserted by slug, never deleted.
type Buyer struct {
	ID            uuid.UUID
	CanonicalName string
	Slug          string
	Identifiers   JSONMap
	CreatedAt     time.Time
}

// Notice is a normalised procurement notice keyed by OCID.
type Notice struct {
	OCID              string
	ReleaseID         string
	Title             string
	Description       string
	BuyerID           *uuid.UUID
	PublicationDate   time.Time
	DeadlineDate      *time.Time
	ValueAmount       *decimal.Decimal
	ValueCurrency     string
	ProcurementMethod string
	NoticeType        string
	RawRelease        JSONMap
	SourceURL         string
	CPVCodes          []string
	InferredUKCAT     []string
	ContractStart     *time.Time
	ContractEnd       *time.Time

	// Embedding is built from the description; SummaryEmbedding from a
	// provider-translated summary when one exists. Either may be empty.
	Embedding        []float32
	SummaryEmbedding []float32

	IsArchived bool
	UpdatedAt  time.Time
}

// Validate enforces the notice invariants: OCID and title non-empty,
// publication timestamp present, value non-negative, embeddings empty or
// exactly EmbeddingDim floats.
func (n *Notice) Validate() error {
	if n.OCID == "" {
		return fmt.Errorf("notice: %w: missing ocid", ErrValidation)
	}
	if n.Title == "" {
		return fmt.Errorf("notice %s: %w: empty title", n.OCID, ErrValidation)
	}
	if n.PublicationDate.IsZero() {
		return fmt.Errorf("notice %s: %w: missing publication date", n.OCID, ErrValidation)
	}
	if n.ValueAmount != nil && n.ValueAmount.IsNegative() {
		return fmt.Errorf("notice %s: %w: negative value %s", n.OCID, ErrValidation, n.ValueAmount)
	}
	for _, v := range [][]float32{n.Embedding, n.SummaryEmbedding} {
		if len(v) != 0 && len(v) != EmbeddingDim {
			return fmt.Errorf("notice %s: %w: embedding length %d", n.OCID, ErrValidation, len(v))
		}
	}
	return nil
}

// ServiceProfile describes one charity's delivery capability and appetite.
type ServiceProfile struct {
	OrgID            uuid.UUID
	CharityNumber    string
	Name             string
	LatestIncome     int64 // whole currency units
	Mission          string
	Vision           string
	ProgramsServices string
	TargetPopulation string

	UKCATThemes       []string
	BeneficiaryGroups []string
	InferredCPVCodes  []string

	ServiceRegions    RegionList
	MinContractValue  int64
	MaxContractValue  int64
	ExclusionKeywords []string

	ProfileEmbedding []float32
	UpdatedAt        time.Time
}

// Validate enforces the profile embedding invariant.
func (p *ServiceProfile) Validate() error {
	if len(p.ProfileEmbedding) != 0 && len(p.ProfileEmbedding) != EmbeddingDim {
		return fmt.Errorf("profile %s: %w: embedding length %d", p.OrgID, ErrValidation, len(p.ProfileEmbedding))
	}
	return nil
}
