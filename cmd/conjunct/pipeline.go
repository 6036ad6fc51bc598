package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/amsteele/satellite-conjunction-risk/internal/api"
	"github.com/amsteele/satellite-conjunction-risk/internal/config"
	"github.com/amsteele/satellite-conjunction-risk/internal/conjunction"
	"github.com/amsteele/satellite-conjunction-risk/internal/manifest"
	"github.com/amsteele/satellite-conjunction-risk/internal/propagation"
	"github.com/amsteele/satellite-conjunction-risk/internal/records"
	"github.com/amsteele/satellite-conjunction-risk/internal/tle"
	"github.com/amsteele/satellite-conjunction-risk/internal/transform"
)

// pipeline carries the state shared by the subcommands of one invocation.
type pipeline struct {
	cfg         *config.Config
	paths       config.Paths
	runID       string
	catalogPath string
	catalog     *tle.Catalog // nil unless this invocation loaded one
	tracker     *api.Tracker
	logger      *slog.Logger
}

func newPipeline(cfg *config.Config, runID string, tracker *api.Tracker, logger *slog.Logger) (*pipeline, error) {
	paths, err := cfg.Paths()
	if err != nil {
		return nil, err
	}
	return &pipeline{
		cfg:         cfg,
		paths:       paths,
		runID:       runID,
		catalogPath: localCatalogPath(cfg),
		tracker:     tracker,
		logger:      logger,
	}, nil
}

// localCatalogPath is where the catalog of a run can be read back: the saved
// copy of a fetched catalog, or the source itself.
func localCatalogPath(cfg *config.Config) string {
	if tle.IsURL(cfg.Catalog.Source) && cfg.Catalog.SavePath != "" {
		return cfg.Catalog.SavePath
	}
	return cfg.Catalog.Source
}

// run executes the whole pipeline: catalog, propagation, trajectories,
// detection, aggregation and manifest.
func (p *pipeline) run(ctx context.Context) error {
	p.tracker.SetPhase(api.PhaseLoading)
	cat, err := tle.Load(ctx, p.cfg.Catalog.Source, p.cfg.Catalog.SavePath, p.logger, p.cfg.Catalog.ExtraURLs...)
	if err != nil {
		return fmt.Errorf("loading catalog: %w", err)
	}
	p.catalog = cat

	entries := tle.Sample(cat.Entries, p.cfg.Catalog.SampleN, p.cfg.Catalog.SampleSeed)
	if len(entries) < len(cat.Entries) {
		p.logger.Info("catalog sampled", "objects", len(entries), "catalog_objects", len(cat.Entries), "seed", p.cfg.Catalog.SampleSeed)
	}

	start, err := p.cfg.StartTime(time.Now())
	if err != nil {
		return err
	}
	times := propagation.TimeGrid(start, p.cfg.Propagation.Hours, p.cfg.Propagation.StepMinutes)
	frame, err := transform.ParseFrame(p.cfg.Propagation.Frame)
	if err != nil {
		return err
	}

	p.tracker.SetPhase(api.PhasePropagating)
	prop := propagation.NewPropagator(propagation.PropConfig{
		Workers: p.cfg.Propagation.Workers,
		Frame:   frame,
	}, p.logger)
	samples, err := prop.Run(ctx, entries, times)
	if err != nil {
		return err
	}

	if err := records.WriteTrajectories(ctx, p.paths.Trajectories, samples); err != nil {
		return err
	}
	p.logger.Info("trajectories written", "path", p.paths.Trajectories, "rows", len(samples))

	return p.detectSamples(ctx, samples)
}

// detect runs detection and aggregation over an existing trajectory file.
func (p *pipeline) detect(ctx context.Context) error {
	p.tracker.SetPhase(api.PhaseLoading)
	samples, err := records.ReadTrajectories(ctx, p.paths.Trajectories)
	if err != nil {
		return err
	}
	p.logger.Info("trajectories read", "path", p.paths.Trajectories, "rows", len(samples))
	return p.detectSamples(ctx, samples)
}

func (p *pipeline) detectSamples(ctx context.Context, samples []conjunction.Sample) error {
	store, err := records.NewChunkStore(p.paths.Events)
	if err != nil {
		return err
	}
	if n, err := store.Remove(ctx); err != nil {
		return fmt.Errorf("removing stale event chunks: %w", err)
	} else if n > 0 {
		p.logger.Warn("removed event chunks of a previous run", "chunks", n, "events_path", p.paths.Events)
	}

	engine, err := conjunction.NewEngine(p.cfg.Engine(), store, p.logger)
	if err != nil {
		return err
	}
	p.tracker.Attach(engine.Progress)
	p.tracker.SetPhase(api.PhaseDetecting)

	res, err := engine.Run(ctx, samples)
	if err != nil {
		if errors.Is(err, context.Canceled) && res != nil {
			m := p.manifest(manifest.StatusCancelled)
			m.Events = res.Events
			if werr := p.writeManifest(m); werr != nil {
				return errors.Join(err, werr)
			}
		}
		return err
	}

	sum, err := p.aggregate(ctx)
	if err != nil {
		return err
	}

	m := p.manifest(string(sum.Status))
	m.SummaryPath = p.summaryPath(sum)
	m.Pairs = len(sum.Pairs)
	m.Events = sum.Events
	return p.writeManifest(m)
}

// aggregate reduces the event chunks to the pair summary file. Chunks are
// removed afterwards unless output.keep_chunks is set.
func (p *pipeline) aggregate(ctx context.Context) (*conjunction.Summary, error) {
	p.tracker.SetPhase(api.PhaseAggregating)

	store, err := records.NewChunkStore(p.paths.Events)
	if err != nil {
		return nil, err
	}
	sum, err := conjunction.Aggregate(ctx, store, p.logger)
	if err != nil {
		return nil, err
	}

	if sum.NoEvents() {
		p.logger.Info("no events found; pair summary not created", "events_path", p.paths.Events)
	} else {
		if err := records.WriteSummary(ctx, p.paths.Summary, sum.Pairs); err != nil {
			return nil, err
		}
		closest := sum.Pairs[0]
		attrs := []any{
			"path", p.paths.Summary,
			"pairs", len(sum.Pairs),
			"closest_a", closest.ObjectA,
			"closest_b", closest.ObjectB,
			"closest_km", closest.MinDistanceKm,
		}
		if p.catalog != nil {
			attrs = append(attrs, "name_a", p.catalog.Name(closest.ObjectA), "name_b", p.catalog.Name(closest.ObjectB))
		}
		p.logger.Info("pair summary written", attrs...)
	}

	if !p.cfg.Output.KeepChunks {
		n, err := store.Remove(ctx)
		if err != nil {
			return nil, fmt.Errorf("removing event chunks: %w", err)
		}
		p.logger.Debug("event chunks removed", "chunks", n)
	}
	return sum, nil
}

func (p *pipeline) summaryPath(sum *conjunction.Summary) string {
	if sum.NoEvents() {
		return ""
	}
	return p.paths.Summary
}

func (p *pipeline) manifest(status string) *manifest.Manifest {
	d := p.cfg.Detection
	return &manifest.Manifest{
		RunID:        p.runID,
		Status:       status,
		TrajPath:     p.paths.Trajectories,
		EventsPath:   p.paths.Events,
		CatalogPath:  p.catalogPath,
		Hours:        p.cfg.Propagation.Hours,
		StepMinutes:  p.cfg.Propagation.StepMinutes,
		ThresholdKm:  d.ThresholdKm,
		AltBinKm:     d.AltBinKm,
		LEOBoundKm:   d.LEOBoundKm,
		FlushEvery:   d.FlushEvery,
		RequireValid: d.RequireValidPropagation,
	}
}

func (p *pipeline) writeManifest(m *manifest.Manifest) error {
	if err := manifest.Write(p.paths.Manifest, m); err != nil {
		return err
	}
	p.logger.Info("run manifest written", "path", p.paths.Manifest, "status", m.Status)
	return nil
}
