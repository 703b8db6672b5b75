package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gorm.io/gorm/logger"

	"github.com/thebtf/clusterscan/internal/api"
	"github.com/thebtf/clusterscan/internal/config"
	gormdb "github.com/thebtf/clusterscan/internal/db/gorm"
	"github.com/thebtf/clusterscan/internal/events"
	"github.com/thebtf/clusterscan/internal/figure"
	"github.com/thebtf/clusterscan/internal/grid"
	"github.com/thebtf/clusterscan/internal/ledger"
	"github.com/thebtf/clusterscan/internal/scanner"
	"github.com/thebtf/clusterscan/internal/sink"
	"github.com/thebtf/clusterscan/internal/watcher"
	"github.com/thebtf/clusterscan/pkg/clustering"
)

func scanCommand(a *app) *cobra.Command {
	cfg := a.cfg
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan an RA/Dec range patch by patch, resuming where the last run stopped",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runScan(cmd.Context())
		},
	}

	f := cmd.Flags()
	f.Float64Var(&cfg.RAMin, "ra-min", cfg.RAMin, "Lower RA bound in degrees")
	f.Float64Var(&cfg.RAMax, "ra-max", cfg.RAMax, "Upper RA bound in degrees (exclusive)")
	f.Float64Var(&cfg.DecMin, "dec-min", cfg.DecMin, "Lower Dec bound in degrees")
	f.Float64Var(&cfg.DecMax, "dec-max", cfg.DecMax, "Upper Dec bound in degrees (exclusive)")
	f.Float64Var(&cfg.PatchSizeDeg, "patch-size", cfg.PatchSizeDeg, "Patch edge length in degrees")
	f.Float64Var(&cfg.Eps, "eps", cfg.Eps, "DBSCAN neighbourhood radius")
	f.IntVar(&cfg.MinSamples, "min-samples", cfg.MinSamples, "DBSCAN minimum neighbourhood size")
	f.IntVar(&cfg.MinObservations, "min-observations", cfg.MinObservations, "Skip patches with fewer stars")
	f.IntVar(&cfg.RowLimit, "row-limit", cfg.RowLimit, "TOP n rows per patch query (0 = unlimited)")
	f.StringVar(&cfg.Shape, "shape", cfg.Shape, "Query region shape: CIRCLE or BOX")
	f.StringVar(&cfg.TAPURL, "tap-url", cfg.TAPURL, "TAP sync endpoint")
	f.StringVar(&cfg.Ledger, "ledger", cfg.Ledger, "Progress ledger backend: file or sqlite")
	f.StringVar(&cfg.ProgressFile, "progress-file", cfg.ProgressFile, "Progress file for the file ledger")
	f.StringVar(&cfg.ResultsFile, "results-file", cfg.ResultsFile, "CSV results file")
	f.StringVar(&cfg.DBDriver, "db-driver", cfg.DBDriver, "Result store driver: sqlite or postgres")
	f.StringVar(&cfg.DBDSN, "db-dsn", cfg.DBDSN, "SQLite path or Postgres DSN")
	f.BoolVar(&cfg.Figures, "figures", cfg.Figures, "Render a PNG per detection")
	f.StringVar(&cfg.FiguresDir, "figures-dir", cfg.FiguresDir, "Directory for detection figures")
	f.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "Serve metrics and the live detection feed on this address while scanning")
	f.IntVar(&cfg.HTTPTimeoutSec, "http-timeout", cfg.HTTPTimeoutSec, "Per-query timeout in seconds (0 = none)")
	f.BoolVar(&a.dryRun, "dry-run", false, "Fetch and cluster without writing progress or results")

	return cmd
}

// openStore opens the result database named by the configuration.
func (a *app) openStore() (*gormdb.Store, error) {
	level := logger.Silent
	if a.cfg.Debug {
		level = logger.Info
	}
	sc := gormdb.Config{
		Driver:   a.cfg.DBDriver,
		MaxConns: a.cfg.MaxConns,
		LogLevel: level,
	}
	if a.cfg.DBDriver == config.DriverPostgres {
		sc.DSN = a.cfg.DBDSN
	} else {
		sc.Path = a.cfg.DBDSN
	}
	return gormdb.NewStore(sc)
}

// outputs is everything a scan persists to, closed in reverse order of opening.
type outputs struct {
	ledger  ledger.Ledger
	sink    sink.Sink
	runs    *gormdb.RunStore
	store   *gormdb.Store
	guarded []string
}

func (o *outputs) Close() {
	if o.sink != nil {
		_ = o.sink.Close()
	}
	if o.ledger != nil {
		_ = o.ledger.Close()
	}
	if o.store != nil {
		_ = o.store.Close()
	}
}

// openOutputs opens the ledger, the result store and the detection sinks.
// feed, when non-nil, is added as a sink.
func (a *app) openOutputs(ctx context.Context, runID string, feed *events.Broadcaster) (out *outputs, err error) {
	cfg := a.cfg
	out = &outputs{}
	defer func() {
		if err != nil {
			out.Close()
		}
	}()

	if a.dryRun {
		out.ledger = ledger.NewMemory()
		out.sink = sink.NewMulti(sink.Discard{}, feedSink(feed))
		return out, nil
	}

	out.store, err = a.openStore()
	if err != nil {
		return out, fmt.Errorf("open result store: %w", err)
	}
	out.runs = gormdb.NewRunStore(out.store)

	switch cfg.Ledger {
	case config.LedgerSQLite:
		progress, err := gormdb.OpenProgressStore(ctx, out.store, runID)
		if err != nil {
			return out, fmt.Errorf("open ledger: %w", err)
		}
		out.ledger = progress
		if cfg.DBDriver != config.DriverPostgres {
			out.guarded = append(out.guarded, cfg.DBDSN)
		}
	default:
		progress, err := ledger.OpenFile(cfg.ProgressFile)
		if err != nil {
			return out, fmt.Errorf("open ledger: %w", err)
		}
		out.ledger = progress
		out.guarded = append(out.guarded, cfg.ProgressFile)
	}

	results, err := sink.OpenCSV(cfg.ResultsFile)
	if err != nil {
		return out, err
	}
	out.guarded = append(out.guarded, cfg.ResultsFile)

	sinks := []sink.Sink{results, gormdb.NewDetectionStore(out.store), feedSink(feed)}
	if cfg.Figures {
		renderer, err := figure.NewRenderer(cfg.FiguresDir)
		if err != nil {
			_ = results.Close()
			return out, err
		}
		sinks = append(sinks, renderer)
	}
	out.sink = sink.NewMulti(sinks...)
	return out, nil
}

// feedSink avoids handing NewMulti a typed nil.
func feedSink(feed *events.Broadcaster) sink.Sink {
	if feed == nil {
		return nil
	}
	return feed
}

func (a *app) runScan(ctx context.Context) error {
	cfg := a.cfg
	if err := cfg.Validate(); err != nil {
		return err
	}

	client, err := a.gaiaClient()
	if err != nil {
		return err
	}

	var feed *events.Broadcaster
	if cfg.MetricsAddr != "" {
		feed = events.NewBroadcaster()
	}

	runID := uuid.NewString()
	out, err := a.openOutputs(ctx, runID, feed)
	if err != nil {
		return err
	}
	defer out.Close()

	if out.runs != nil {
		err := out.runs.Start(ctx, &gormdb.ScanRun{
			ID:              runID,
			RAMin:           cfg.RAMin,
			RAMax:           cfg.RAMax,
			DecMin:          cfg.DecMin,
			DecMax:          cfg.DecMax,
			PatchSize:       cfg.PatchSizeDeg,
			Eps:             cfg.Eps,
			MinSamples:      cfg.MinSamples,
			MinObservations: cfg.MinObservations,
		})
		if err != nil {
			return err
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := scanner.NewMetrics(registry)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	sc, err := scanner.New(scanner.Config{
		RA:              grid.Range{Min: cfg.RAMin, Max: cfg.RAMax},
		Dec:             grid.Range{Min: cfg.DecMin, Max: cfg.DecMax},
		PatchSize:       cfg.PatchSizeDeg,
		MinObservations: cfg.MinObservations,
		RunID:           runID,
	}, scanner.Deps{
		Source:    client,
		Ledger:    out.ledger,
		Clusterer: clustering.NewDBSCAN(cfg.Eps, cfg.MinSamples),
		Sink:      out.sink,
		Metrics:   metrics,
	})
	if err != nil {
		return err
	}

	scanCtx, stopWatch, err := watcher.WatchContext(ctx, out.guarded...)
	if err != nil {
		return fmt.Errorf("watch state files: %w", err)
	}
	defer func() { _ = stopWatch() }()

	if cfg.MetricsAddr != "" {
		srv := api.New(api.Deps{Registry: registry, Events: feed})
		go func() {
			if err := srv.ListenAndServe(scanCtx, cfg.MetricsAddr); err != nil {
				log.Warn().Err(err).Msg("Metrics server stopped")
			}
		}()
	}

	log.Info().
		Str("run", runID).
		Str("ledger", cfg.Ledger).
		Str("results", cfg.ResultsFile).
		Bool("figures", cfg.Figures).
		Bool("dry_run", a.dryRun).
		Msg("Starting scan")

	sum, runErr := sc.Run(scanCtx)

	status := gormdb.RunCompleted
	switch {
	case runErr == nil:
	case errors.Is(runErr, context.Canceled):
		status = gormdb.RunCanceled
		if cause := context.Cause(scanCtx); errors.Is(cause, watcher.ErrStateFileRemoved) {
			runErr = cause
		}
	default:
		status = gormdb.RunFailed
	}

	if out.runs != nil {
		totals := gormdb.RunTotals{
			Visited:    sum.Visited,
			Scored:     sum.Scored,
			Sparse:     sum.SkippedSparse,
			Resumed:    sum.SkippedDone,
			Detections: sum.Detections,
		}
		if err := out.runs.Finish(context.WithoutCancel(ctx), runID, status, totals, runErr); err != nil {
			log.Warn().Err(err).Msg("Failed to record run result")
		}
	}

	log.Info().
		Str("run", runID).
		Str("status", status).
		Int("visited", sum.Visited).
		Int("resumed", sum.SkippedDone).
		Int("sparse", sum.SkippedSparse).
		Int("scored", sum.Scored).
		Int("detections", sum.Detections).
		Int("committed", out.ledger.Len()).
		Msg("Scan ended")

	return runErr
}
