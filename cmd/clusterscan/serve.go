package main

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/thebtf/clusterscan/internal/api"
	"github.com/thebtf/clusterscan/internal/catalog"
	"github.com/thebtf/clusterscan/internal/config"
	gormdb "github.com/thebtf/clusterscan/internal/db/gorm"
	"github.com/thebtf/clusterscan/internal/ledger"
)

const defaultServeAddr = "127.0.0.1:8080"

// progressView reads progress from wherever scans commit it.
func (a *app) progressView(store *gormdb.Store) ledger.Lister {
	if a.cfg.Ledger == config.LedgerSQLite {
		return gormdb.NewProgressView(store)
	}
	return ledger.NewFileView(a.cfg.ProgressFile)
}

func serveCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve detections, progress and runs over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			addr := a.cfg.ServeAddr
			if addr == "" {
				addr = defaultServeAddr
			}

			store, err := a.openStore()
			if err != nil {
				return fmt.Errorf("open result store: %w", err)
			}
			defer func() { _ = store.Close() }()

			reg, err := catalog.Load(a.cfg.CatalogPath)
			if err != nil {
				return err
			}

			registry := prometheus.NewRegistry()
			registry.MustRegister(collectors.NewGoCollector())

			srv := api.New(api.Deps{
				Store:    store,
				Progress: a.progressView(store),
				Catalog:  reg,
				Registry: registry,
			})
			log.Info().
				Str("addr", addr).
				Str("driver", store.Driver()).
				Str("ledger", a.cfg.Ledger).
				Msg("Serving results")
			return srv.ListenAndServe(cmd.Context(), addr)
		},
	}

	f := cmd.Flags()
	f.StringVar(&a.cfg.ServeAddr, "addr", a.cfg.ServeAddr, "Listen address (default "+defaultServeAddr+")")
	f.StringVar(&a.cfg.Ledger, "ledger", a.cfg.Ledger, "Progress ledger backend to report: file or sqlite")
	f.StringVar(&a.cfg.ProgressFile, "progress-file", a.cfg.ProgressFile, "Progress file for the file ledger")
	f.StringVar(&a.cfg.DBDriver, "db-driver", a.cfg.DBDriver, "Result store driver: sqlite or postgres")
	f.StringVar(&a.cfg.DBDSN, "db-dsn", a.cfg.DBDSN, "SQLite path or Postgres DSN")
	f.StringVar(&a.cfg.CatalogPath, "catalog", a.cfg.CatalogPath, "YAML file of extra catalog objects")
	return cmd
}
