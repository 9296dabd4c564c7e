package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"tendermatch/internal/enrich"
	"tendermatch/internal/mesh"
	"tendermatch/internal/metrics"
	"tendermatch/internal/model"
	"tendermatch/internal/ocds"
	"tendermatch/internal/store"
)

// errLimitReached stops the page walk once the item limit is hit.
var errLimitReached = errors.New("item limit reached")

// Options tune one ingestion run.
type Options struct {
	// Limit caps processed releases; 0 means unlimited.
	Limit int
	// Since overrides the watermark; zero means "resume from the last
	// successful run, else the source epoch".
	Since time.Time
}

// Stats summarises one run.
type Stats struct {
	Processed int
	Failed    int
	Skipped   int
}

// Worker pulls releases from one OCDS source into the store: normalise,
// upsert buyer and notice, diff against the previously stored revision,
// raise alerts, and enrich mesh-matched notices. Each release commits in
// its own transaction so a poison release only rolls back itself.
type Worker struct {
	client     *ocds.Client
	store      *store.Store
	normaliser *ocds.Normaliser
	detector   *Detector
	alerts     *AlertService
	enricher   *enrich.Service
	mesh       *mesh.Mesh
	epoch      time.Time
	logger     *zap.Logger
}

// NewWorker wires an ingestion worker for one source.
func NewWorker(
	client *ocds.Client,
	st *store.Store,
	detector *Detector,
	alerts *AlertService,
	enricher *enrich.Service,
	interestMesh *mesh.Mesh,
	epoch time.Time,
	logger *zap.Logger,
) *Worker {
	return &Worker{
		client:     client,
		store:      st,
		normaliser: ocds.NewNormaliser(),
		detector:   detector,
		alerts:     alerts,
		enricher:   enricher,
		mesh:       interestMesh,
		epoch:      epoch,
		logger:     logger.Named("ingest").With(zap.String("source", client.Name())),
	}
}

// Run executes one ingestion pass. The run is logged in the ingestion
// log: RUNNING at start, then SUCCESS with the processed count, or FAILED
// with error details when the fetch itself dies. Per-release failures are
// isolated and counted.
func (w *Worker) Run(ctx context.Context, opts Options) (Stats, error) {
	runID, err := w.store.BeginRun(ctx, w.client.Name())
	if err != nil {
		return Stats{}, err
	}

	watermark := opts.Since
	if watermark.IsZero() {
		last, err := w.store.LastSuccess(ctx, w.client.Name())
		if err != nil {
			return Stats{}, err
		}
		if last != nil {
			watermark = *last
		} else {
			watermark = w.epoch
		}
	}
	w.logger.Info("ingestion starting", zap.Time("watermark", watermark))

	var stats Stats
	fetchErr := w.client.FetchReleases(ctx, watermark, func(rel ocds.Release) error {
		if opts.Limit > 0 && stats.Processed >= opts.Limit {
			return errLimitReached
		}
		w.handleRelease(ctx, rel, false, &stats)
		return ctx.Err()
	})
	if errors.Is(fetchErr, errLimitReached) {
		w.logger.Info("limit reached, stopping", zap.Int("limit", opts.Limit))
		fetchErr = nil
	}

	if fetchErr != nil {
		_ = w.store.CompleteRun(ctx, runID, model.RunFailed, stats.Processed, fetchErr.Error())
		return stats, fmt.Errorf("ingestion run failed: %w", fetchErr)
	}

	if err := w.store.CompleteRun(ctx, runID, model.RunSuccess, stats.Processed, ""); err != nil {
		return stats, err
	}
	w.logger.Info("ingestion complete",
		zap.Int("processed", stats.Processed),
		zap.Int("failed", stats.Failed),
		zap.Int("skipped", stats.Skipped))
	return stats, nil
}

// Backfill pulls a keyword-filtered historical window. Releases outside
// the interest mesh are dropped before upsert; kept notices are stored
// with the historical type so the renewal radar can see them.
func (w *Worker) Backfill(ctx context.Context, keyword string, from, to time.Time, limit int) (Stats, error) {
	runID, err := w.store.BeginRun(ctx, w.client.Name()+"-backfill")
	if err != nil {
		return Stats{}, err
	}
	w.logger.Info("backfill starting",
		zap.String("keyword", keyword), zap.Time("from", from), zap.Time("to", to))

	var stats Stats
	fetchErr := w.client.FetchKeyword(ctx, keyword, from, to, func(rel ocds.Release) error {
		if limit > 0 && stats.Processed >= limit {
			return errLimitReached
		}
		w.handleRelease(ctx, rel, true, &stats)
		return ctx.Err()
	})
	if errors.Is(fetchErr, errLimitReached) {
		fetchErr = nil
	}
	if fetchErr != nil {
		_ = w.store.CompleteRun(ctx, runID, model.RunFailed, stats.Processed, fetchErr.Error())
		return stats, fmt.Errorf("backfill failed: %w", fetchErr)
	}
	if err := w.store.CompleteRun(ctx, runID, model.RunSuccess, stats.Processed, ""); err != nil {
		return stats, err
	}
	return stats, nil
}

// handleRelease processes one release, folding the outcome into stats.
// Failures roll back only their own transaction.
func (w *Worker) handleRelease(ctx context.Context, rel ocds.Release, historical bool, stats *Stats) {
	source := w.client.Name()
	switch err := w.processRelease(ctx, rel, historical); {
	case err == nil:
		stats.Processed++
		metrics.ReleasesProcessed.WithLabelValues(source, "processed").Inc()
	case errors.Is(err, model.ErrValidation):
		stats.Skipped++
		metrics.ReleasesProcessed.WithLabelValues(source, "skipped").Inc()
		w.logger.Warn("release skipped", zap.String("ocid", rel.OCID()), zap.Error(err))
	case errors.Is(err, errMeshMiss):
		stats.Skipped++
		metrics.ReleasesProcessed.WithLabelValues(source, "skipped").Inc()
	case ctx.Err() != nil:
		// Cancellation surfaces through the fetch loop.
	default:
		stats.Failed++
		metrics.ReleasesProcessed.WithLabelValues(source, "failed").Inc()
		w.logger.Warn("release failed", zap.String("ocid", rel.OCID()), zap.Error(err))
	}
}

// errMeshMiss marks backfill releases outside the interest mesh.
var errMeshMiss = errors.New("outside interest mesh")

// processRelease normalises and persists one release in a single
// transaction: buyer upsert, change diff against the stored revision,
// notice upsert limited to mutable columns, alerting, and mesh-gated
// enrichment.
func (w *Worker) processRelease(ctx context.Context, rel ocds.Release, historical bool) error {
	buyerPatch, notice, err := w.normaliser.Normalise(rel)
	if err != nil {
		return err
	}
	if historical {
		notice.NoticeType = model.NoticeTypeHistorical
	}

	meshMatch, err := w.mesh.Matches(ctx, notice.CPVCodes)
	if err != nil {
		return err
	}
	if historical && !meshMatch {
		return errMeshMiss
	}

	return w.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		buyerID, err := w.store.UpsertBuyer(ctx, tx, buyerPatch)
		if err != nil {
			return err
		}
		notice.BuyerID = &buyerID

		prior, err := w.store.GetNotice(ctx, tx, notice.OCID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}

		// Diff runs against the previously stored state so alert order
		// follows observed arrival order even for out-of-order revisions.
		var changes ChangeSet
		if prior != nil {
			changes = w.detector.Diff(prior, notice)
		}

		if err := w.store.UpsertNotice(ctx, tx, notice); err != nil {
			return err
		}
		if len(changes) > 0 {
			if err := w.alerts.Process(ctx, tx, notice.OCID, changes); err != nil {
				return err
			}
		}

		if meshMatch {
			// Carry the prior revision's enrichment outputs so existing
			// embeddings and tags are not recomputed.
			if prior != nil {
				notice.Embedding = prior.Embedding
				notice.InferredUKCAT = prior.InferredUKCAT
			}
			if err := w.enricher.Enrich(ctx, tx, notice, false); err != nil {
				// Enrichment is lazy; a provider outage must not lose the
				// notice itself.
				w.logger.Warn("enrichment failed", zap.String("ocid", notice.OCID), zap.Error(err))
			}
		}
		return nil
	})
}
