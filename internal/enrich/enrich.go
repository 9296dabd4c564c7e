// Package enrich produces the expensive AI-derived fields of a notice:
// the description embedding and the inferred UKCAT activity codes.
// Enrichment is lazy — steps whose outputs already exist are skipped
// unless forced — and per-notice failures never abort a batch.
package enrich

import (
	"context"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"tendermatch/internal/embedding"
	"tendermatch/internal/model"
	"tendermatch/internal/ukcat"
)

// Store is the persistence surface enrichment needs.
type Store interface {
	SetNoticeEnrichment(ctx context.Context, q sqlx.ExtContext, ocid string, embedding []float32, codes []string) error
	ListStaleNotices(ctx context.Context, limit int) ([]model.Notice, error)
}

// Queryer executes enrichment writes on the pool or a transaction.
type Queryer = sqlx.ExtContext

// Service computes and persists notice enrichment.
type Service struct {
	store    Store
	embedder embedding.Client
	tagger   *ukcat.Tagger
	logger   *zap.Logger
}

// New builds the enrichment service.
func New(store Store, embedder embedding.Client, tagger *ukcat.Tagger, logger *zap.Logger) *Service {
	return &Service{store: store, embedder: embedder, tagger: tagger, logger: logger.Named("enrich")}
}

// Result holds computed enrichment outputs. Nil fields mean "unchanged".
type Result struct {
	Embedding []float32
	UKCAT     []string
}

// Changed reports whether anything needs persisting.
func (r Result) Changed() bool { return r.Embedding != nil || r.UKCAT != nil }

// Compute derives the missing enrichment outputs for a notice without
// persisting them. With force, existing outputs are recomputed.
func (s *Service) Compute(ctx context.Context, n *model.Notice, force bool) (Result, error) {
	var out Result

	if force || len(n.Embedding) == 0 {
		if n.Description != "" {
			vec, err := s.embedder.Embed(ctx, n.Description)
			if err != nil {
				return Result{}, err
			}
			if len(vec) > 0 {
				out.Embedding = vec
			}
		}
	}

	if force || len(n.InferredUKCAT) == 0 {
		if tags := s.tagger.Tag(n.Title + " " + n.Description); len(tags) > 0 {
			out.UKCAT = tags
		}
	}

	return out, nil
}

// Enrich computes and persists enrichment for one notice via q,
// writing only when something changed.
func (s *Service) Enrich(ctx context.Context, q Queryer, n *model.Notice, force bool) error {
	result, err := s.Compute(ctx, n, force)
	if err != nil {
		return err
	}
	if !result.Changed() {
		return nil
	}
	if err := s.store.SetNoticeEnrichment(ctx, q, n.OCID, result.Embedding, result.UKCAT); err != nil {
		return err
	}
	if result.Embedding != nil {
		n.Embedding = result.Embedding
	}
	if result.UKCAT != nil {
		n.InferredUKCAT = result.UKCAT
	}
	s.logger.Debug("notice enriched",
		zap.String("ocid", n.OCID),
		zap.Bool("embedding", result.Embedding != nil),
		zap.Int("ukcat_codes", len(result.UKCAT)))
	return nil
}

// EnrichStale sweeps notices missing embeddings or tags, bounded by limit.
// Per-notice failures are logged and skipped.
func (s *Service) EnrichStale(ctx context.Context, q Queryer, limit int) (int, error) {
	stale, err := s.store.ListStaleNotices(ctx, limit)
	if err != nil {
		return 0, err
	}
	s.logger.Info("stale notices found", zap.Int("count", len(stale)))

	enriched := 0
	for i := range stale {
		if ctx.Err() != nil {
			return enriched, ctx.Err()
		}
		if err := s.Enrich(ctx, q, &stale[i], false); err != nil {
			s.logger.Warn("enrichment failed", zap.String("ocid", stale[i].OCID), zap.Error(err))
			continue
		}
		enriched++
	}
	return enriched, nil
}
