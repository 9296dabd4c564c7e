// Package metrics registers the Prometheus instruments shared by the
// ingestion, matching and review services. Collectors register on the
// default registry; binaries that want an exposition endpoint mount
// promhttp.Handler themselves.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ReleasesProcessed counts ingested releases by source and outcome
	// (processed, failed, skipped).
	ReleasesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tendermatch_releases_total",
		Help: "Releases handled by the ingestion worker.",
	}, []string{"source", "outcome"})

	// RecalcDuration observes per-profile funnel runtime.
	RecalcDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tendermatch_recalc_duration_seconds",
		Help:    "Duration of one profile's match recalculation.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	})

	// MatchesWritten counts matches persisted per recalculation.
	MatchesWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tendermatch_matches_written_total",
		Help: "Notice matches written by the funnel.",
	})

	// Tier2Reviews counts Tier-2 verdicts persisted, by verdict.
	Tier2Reviews = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tendermatch_tier2_reviews_total",
		Help: "Tier-2 verdicts written.",
	}, []string{"verdict"})

	// ProviderRequests counts outbound provider calls by provider and
	// outcome (ok, error).
	ProviderRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tendermatch_provider_requests_total",
		Help: "Outbound embedding/LLM/OCDS provider requests.",
	}, []string{"provider", "outcome"})

	// AlertsCreated counts persisted alerts by type.
	AlertsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tendermatch_alerts_total",
		Help: "Alerts created.",
	}, []string{"type"})
)
