package main

import (
	"context"
	"fmt"

	"tendermatch/internal/config"
	"tendermatch/internal/embedding"
	"tendermatch/internal/enrich"
	"tendermatch/internal/feed"
	"tendermatch/internal/ingest"
	"tendermatch/internal/match"
	"tendermatch/internal/mesh"
	"tendermatch/internal/ocds"
	"tendermatch/internal/radar"
	"tendermatch/internal/review"
	"tendermatch/internal/store"
	"tendermatch/internal/ukcat"
)

// app wires the services behind every command.
type app struct {
	store    *store.Store
	mesh     *mesh.Mesh
	enricher *enrich.Service
	alerts   *ingest.AlertService
	engine   *match.Engine
	reviewer *review.Reviewer
	feed     *feed.Service
}

// newApp connects the database and builds the service graph.
func newApp(ctx context.Context) (*app, error) {
	st, err := store.New(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return nil, err
	}

	tagger, err := ukcat.New(logger)
	if err != nil {
		st.Close()
		return nil, err
	}

	embedder := embedding.NewOpenAIClient(cfg.Embedding, logger)
	interestMesh := mesh.New(st, logger)
	enricher := enrich.New(st, embedder, tagger, logger)
	alerts := ingest.NewAlertService(st, logger)
	radarSvc := radar.New(st, logger)
	engine := match.New(st, radarSvc, logger)
	reviewer := review.New(st, cfg.LLM, logger)
	feedSvc := feed.New(st, logger)

	return &app{
		store:    st,
		mesh:     interestMesh,
		enricher: enricher,
		alerts:   alerts,
		engine:   engine,
		reviewer: reviewer,
		feed:     feedSvc,
	}, nil
}

// worker builds the ingestion worker for a named source (empty name means
// the first configured source).
func (a *app) worker(name string) (*ingest.Worker, error) {
	var src *config.SourceConfig
	for i := range cfg.Sources {
		if name == "" || cfg.Sources[i].Name == name {
			src = &cfg.Sources[i]
			break
		}
	}
	if src == nil {
		return nil, fmt.Errorf("unknown source %q", name)
	}

	client := ocds.NewClient(src.Name, src.BaseURL, src.Timeout, cfg.Ingestion.MaxAttempts, logger)
	detector := ingest.NewDetector(cfg.Ingestion.ValueChangeThreshold)
	return ingest.NewWorker(client, a.store, detector, a.alerts, a.enricher, a.mesh, src.SourceEpoch(), logger), nil
}

func (a *app) Close() {
	if a.store != nil {
		a.store.Close()
	}
}
