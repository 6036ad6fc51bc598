// Command conjunct propagates a TLE catalog, detects close approaches between
// the resulting trajectories and summarizes them per object pair.
//
// Usage:
//
//	conjunct [-config file] run
//	conjunct [-config file] detect -traj trajectories.csv
//	conjunct [-config file] aggregate -events events.csv
//	conjunct [-config file] config
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/amsteele/satellite-conjunction-risk/internal/api"
	"github.com/amsteele/satellite-conjunction-risk/internal/config"
	"github.com/amsteele/satellite-conjunction-risk/internal/logging"
	"github.com/amsteele/satellite-conjunction-risk/internal/manifest"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func usage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "usage: conjunct [-config file] <run|detect|aggregate|config> [flags]\n")
	fs.PrintDefaults()
}

func run(args []string) int {
	fs := flag.NewFlagSet("conjunct", flag.ContinueOnError)
	configPath := fs.String("config", "", "YAML configuration file (optional)")
	fs.Usage = func() { usage(fs) }
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		usage(fs)
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	cmd, cmdArgs := fs.Arg(0), fs.Args()[1:]
	if cmd == "config" {
		if err := cfg.WriteYAML(os.Stdout); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		return 0
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "invalid configuration:", err)
		return 1
	}
	logger, err := logging.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runID := manifest.NewRunID()
	logger = logger.With("run_id", runID)
	tracker := api.NewTracker(runID, time.Now().UTC())

	if cfg.Status.Addr != "" {
		srv := api.NewServer(cfg.Status.Addr, logger, tracker, cfg.Stream(), cfg.Status.Token)
		go func() {
			logger.Info("starting status server", "addr", cfg.Status.Addr, "auth_enabled", cfg.Status.Token != "")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("status server listen error", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("status server shutdown error", "error", err)
			}
		}()
	}

	p, err := newPipeline(cfg, runID, tracker, logger)
	if err != nil {
		logger.Error("resolving output paths", "error", err)
		return 1
	}

	switch cmd {
	case "run":
		err = p.run(ctx)
	case "detect":
		err = detectCmd(ctx, p, cmdArgs)
	case "aggregate":
		err = aggregateCmd(ctx, p, cmdArgs)
	default:
		usage(fs)
		return 2
	}

	switch {
	case err == nil:
		tracker.SetPhase(api.PhaseDone)
		return 0
	case errors.Is(err, context.Canceled):
		tracker.SetPhase(api.PhaseCancelled)
		logger.Warn("run cancelled", "error", err)
		return 130
	case errors.Is(err, flag.ErrHelp):
		return 0
	default:
		tracker.Fail(err)
		logger.Error("run failed", "command", cmd, "error", err)
		return 1
	}
}

func detectCmd(ctx context.Context, p *pipeline, args []string) error {
	fs := flag.NewFlagSet("detect", flag.ContinueOnError)
	traj := fs.String("traj", p.paths.Trajectories, "trajectory file to read")
	events := fs.String("events", p.paths.Events, "base path of the event chunks to write")
	catalog := fs.String("catalog", p.catalogPath, "catalog the trajectories were propagated from, recorded in the manifest")
	if err := fs.Parse(args); err != nil {
		return err
	}
	p.paths.Trajectories = *traj
	p.paths.Events = *events
	p.catalogPath = *catalog
	return p.detect(ctx)
}

func aggregateCmd(ctx context.Context, p *pipeline, args []string) error {
	fs := flag.NewFlagSet("aggregate", flag.ContinueOnError)
	events := fs.String("events", p.paths.Events, "base path of the event chunks to read")
	summary := fs.String("summary", p.paths.Summary, "pair summary file to write")
	if err := fs.Parse(args); err != nil {
		return err
	}
	p.paths.Events = *events
	p.paths.Summary = *summary

	sum, err := p.aggregate(ctx)
	if err != nil {
		return err
	}
	p.logger.Info("aggregation finished", "status", string(sum.Status), "pairs", len(sum.Pairs), "summary_path", p.summaryPath(sum))
	return nil
}
