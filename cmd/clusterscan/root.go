package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/thebtf/clusterscan/internal/config"
	"github.com/thebtf/clusterscan/internal/gaia"
)

// app carries the loaded configuration and shared flags to every subcommand.
type app struct {
	cfg    *config.Config
	dryRun bool
}

// loadConfig reads settings.json and the environment. Command flags are
// bound on top of the result, so they take precedence.
func loadConfig() *config.Config {
	if err := config.EnsureAll(); err != nil {
		log.Warn().Err(err).Msg("Failed to ensure data directory")
	}
	cfg, err := config.Load()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load config, using defaults")
		cfg = config.Default()
	}
	return cfg
}

func rootCommand() *cobra.Command {
	a := &app{cfg: loadConfig()}

	rootCmd := &cobra.Command{
		Use:           "clusterscan",
		Short:         "Scan the sky for co-moving star clusters in Gaia data",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().BoolVarP(&a.cfg.Debug, "debug", "d", a.cfg.Debug, "Enable debug logging")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if a.cfg.Debug {
			zerolog.SetGlobalLevel(zerolog.DebugLevel)
		}
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.DateTime})
		return nil
	}

	rootCmd.AddCommand(
		scanCommand(a),
		probeCommand(a),
		catalogCommand(a),
		serveCommand(a),
		convertCommand(),
	)
	return rootCmd
}

// gaiaClient builds an archive client from the configuration.
func (a *app) gaiaClient() (*gaia.Client, error) {
	return gaia.NewClient(gaia.Config{
		URL:      a.cfg.TAPURL,
		Shape:    a.cfg.Shape,
		RowLimit: a.cfg.RowLimit,
		Timeout:  time.Duration(a.cfg.HTTPTimeoutSec) * time.Second,
	})
}
