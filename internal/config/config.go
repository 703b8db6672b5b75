// Package config provides configuration management for clusterscan.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/goccy/go-json"
)

const (
	// DefaultTAPURL is the synchronous TAP endpoint of the Gaia archive.
	DefaultTAPURL = "https://gea.esac.esa.int/tap-server/tap/sync"

	// DefaultPatchSizeDeg is the patch edge length (600 arcmin).
	DefaultPatchSizeDeg = 10.0

	// DefaultMinObservations is the star count below which a patch is not clustered.
	DefaultMinObservations = 10

	LedgerFile   = "file"
	LedgerSQLite = "sqlite"

	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	dataDirName = ".clusterscan"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid config")

// Config holds every tunable of a scan. JSON keys match the settings.json file.
type Config struct {
	TAPURL          string  `json:"CLUSTERSCAN_TAP_URL"`
	Shape           string  `json:"CLUSTERSCAN_SHAPE"`
	Ledger          string  `json:"CLUSTERSCAN_LEDGER"`
	DBDriver        string  `json:"CLUSTERSCAN_DB_DRIVER"`
	DBDSN           string  `json:"CLUSTERSCAN_DB_DSN"`
	ProgressFile    string  `json:"CLUSTERSCAN_PROGRESS_FILE"`
	ResultsFile     string  `json:"CLUSTERSCAN_RESULTS_FILE"`
	FiguresDir      string  `json:"CLUSTERSCAN_FIGURES_DIR"`
	CatalogPath     string  `json:"CLUSTERSCAN_CATALOG"`
	MetricsAddr     string  `json:"CLUSTERSCAN_METRICS_ADDR"`
	ServeAddr       string  `json:"CLUSTERSCAN_SERVE_ADDR"`
	Eps             float64 `json:"CLUSTERSCAN_EPS"`
	PatchSizeDeg    float64 `json:"CLUSTERSCAN_PATCH_SIZE_DEG"`
	RAMin           float64 `json:"CLUSTERSCAN_RA_MIN"`
	RAMax           float64 `json:"CLUSTERSCAN_RA_MAX"`
	DecMin          float64 `json:"CLUSTERSCAN_DEC_MIN"`
	DecMax          float64 `json:"CLUSTERSCAN_DEC_MAX"`
	MinSamples      int     `json:"CLUSTERSCAN_MIN_SAMPLES"`
	MinObservations int     `json:"CLUSTERSCAN_MIN_OBSERVATIONS"`
	RowLimit        int     `json:"CLUSTERSCAN_ROW_LIMIT"`
	HTTPTimeoutSec  int     `json:"CLUSTERSCAN_HTTP_TIMEOUT_SEC"`
	MaxConns        int     `json:"CLUSTERSCAN_MAX_CONNS"`
	Figures         bool    `json:"CLUSTERSCAN_FIGURES"`
	Debug           bool    `json:"CLUSTERSCAN_DEBUG"`
}

var (
	globalConfig *Config
	configOnce   sync.Once
)

// DataDir returns the data directory, ~/.clusterscan unless
// CLUSTERSCAN_DATA_DIR is set.
func DataDir() string {
	if dir := os.Getenv("CLUSTERSCAN_DATA_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, dataDirName)
}

// SettingsPath returns the settings file path.
func SettingsPath() string {
	return filepath.Join(DataDir(), "settings.json")
}

// DBPath returns the default SQLite database path.
func DBPath() string {
	return filepath.Join(DataDir(), "clusterscan.db")
}

// Default returns the default configuration.
func Default() *Config {
	dir := DataDir()
	return &Config{
		TAPURL:          DefaultTAPURL,
		Shape:           "CIRCLE",
		Ledger:          LedgerFile,
		DBDriver:        DriverSQLite,
		DBDSN:           DBPath(),
		ProgressFile:    filepath.Join(dir, "scanning_progress.txt"),
		ResultsFile:     filepath.Join(dir, "clusters_found.csv"),
		FiguresDir:      filepath.Join(dir, "cluster_figures"),
		Eps:             0.5,
		MinSamples:      5,
		MinObservations: DefaultMinObservations,
		PatchSizeDeg:    DefaultPatchSizeDeg,
		RAMin:           0,
		RAMax:           360,
		DecMin:          -90,
		DecMax:          90,
		HTTPTimeoutSec:  0,
		MaxConns:        1,
		Figures:         true,
	}
}

// Load reads settings.json over the defaults and applies environment
// overrides. A missing or malformed settings file yields the defaults.
func Load() (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(SettingsPath())
	switch {
	case err == nil:
		parsed := Default()
		if jsonErr := json.Unmarshal(data, parsed); jsonErr == nil {
			cfg = parsed
		}
	case !os.IsNotExist(err):
		return nil, fmt.Errorf("read settings: %w", err)
	}

	applyEnv(cfg)
	return cfg, nil
}

// Get returns the process-wide configuration, loading it on first use.
func Get() *Config {
	configOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			cfg = Default()
		}
		globalConfig = cfg
	})
	return globalConfig
}

// applyEnv overrides individual settings from the environment. Each variable
// uses the same name as its settings.json key; unparsable values are ignored.
func applyEnv(cfg *Config) {
	envString("CLUSTERSCAN_TAP_URL", &cfg.TAPURL)
	envString("CLUSTERSCAN_SHAPE", &cfg.Shape)
	envString("CLUSTERSCAN_DB_DSN", &cfg.DBDSN)
	envString("CLUSTERSCAN_PROGRESS_FILE", &cfg.ProgressFile)
	envString("CLUSTERSCAN_RESULTS_FILE", &cfg.ResultsFile)
	envString("CLUSTERSCAN_FIGURES_DIR", &cfg.FiguresDir)
	envString("CLUSTERSCAN_CATALOG", &cfg.CatalogPath)
	envString("CLUSTERSCAN_METRICS_ADDR", &cfg.MetricsAddr)
	envString("CLUSTERSCAN_SERVE_ADDR", &cfg.ServeAddr)
	if envString("CLUSTERSCAN_LEDGER", &cfg.Ledger) {
		cfg.Ledger = strings.ToLower(cfg.Ledger)
	}
	if envString("CLUSTERSCAN_DB_DRIVER", &cfg.DBDriver) {
		cfg.DBDriver = strings.ToLower(cfg.DBDriver)
	}

	envFloat("CLUSTERSCAN_EPS", &cfg.Eps, positive)
	envFloat("CLUSTERSCAN_PATCH_SIZE_DEG", &cfg.PatchSizeDeg, positive)
	envFloat("CLUSTERSCAN_RA_MIN", &cfg.RAMin, nil)
	envFloat("CLUSTERSCAN_RA_MAX", &cfg.RAMax, nil)
	envFloat("CLUSTERSCAN_DEC_MIN", &cfg.DecMin, nil)
	envFloat("CLUSTERSCAN_DEC_MAX", &cfg.DecMax, nil)

	envInt("CLUSTERSCAN_MIN_SAMPLES", &cfg.MinSamples, 1)
	envInt("CLUSTERSCAN_MIN_OBSERVATIONS", &cfg.MinObservations, 1)
	envInt("CLUSTERSCAN_ROW_LIMIT", &cfg.RowLimit, 0)
	envInt("CLUSTERSCAN_HTTP_TIMEOUT_SEC", &cfg.HTTPTimeoutSec, 0)
	envInt("CLUSTERSCAN_MAX_CONNS", &cfg.MaxConns, 1)

	envBool("CLUSTERSCAN_FIGURES", &cfg.Figures)
	envBool("CLUSTERSCAN_DEBUG", &cfg.Debug)
}

func positive(f float64) bool { return f > 0 }

func envString(key string, dst *string) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return false
	}
	*dst = v
	return true
}

func envFloat(key string, dst *float64, ok func(float64) bool) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || (ok != nil && !ok(f)) {
		return
	}
	*dst = f
}

func envInt(key string, dst *int, floor int) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < floor {
		return
	}
	*dst = n
}

func envBool(key string, dst *bool) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
		*dst = b
	}
}

// Validate checks the configuration for values a scan cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Eps <= 0 {
		errs = append(errs, fmt.Errorf("eps %g must be positive", c.Eps))
	}
	if c.MinSamples < 1 {
		errs = append(errs, fmt.Errorf("min samples %d must be at least 1", c.MinSamples))
	}
	if c.MinObservations < 1 {
		errs = append(errs, fmt.Errorf("min observations %d must be at least 1", c.MinObservations))
	}
	if c.PatchSizeDeg <= 0 {
		errs = append(errs, fmt.Errorf("patch size %g must be positive", c.PatchSizeDeg))
	}
	if c.RAMin < 0 || c.RAMax > 360 || c.RAMax < c.RAMin {
		errs = append(errs, fmt.Errorf("ra range [%g, %g) outside [0, 360)", c.RAMin, c.RAMax))
	}
	if c.DecMin < -90 || c.DecMax > 90 || c.DecMax < c.DecMin {
		errs = append(errs, fmt.Errorf("dec range [%g, %g) outside [-90, 90]", c.DecMin, c.DecMax))
	}
	switch strings.ToUpper(c.Shape) {
	case "CIRCLE", "BOX":
	default:
		errs = append(errs, fmt.Errorf("shape %q must be CIRCLE or BOX", c.Shape))
	}
	switch c.Ledger {
	case LedgerFile, LedgerSQLite:
	default:
		errs = append(errs, fmt.Errorf("ledger %q must be %q or %q", c.Ledger, LedgerFile, LedgerSQLite))
	}
	switch c.DBDriver {
	case DriverSQLite, DriverPostgres:
	default:
		errs = append(errs, fmt.Errorf("db driver %q must be %q or %q", c.DBDriver, DriverSQLite, DriverPostgres))
	}
	if c.RowLimit < 0 {
		errs = append(errs, fmt.Errorf("row limit %d must not be negative", c.RowLimit))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// EnsureDataDir creates the data directory if needed.
func EnsureDataDir() error {
	return os.MkdirAll(DataDir(), 0750)
}

// EnsureSettings writes a default settings.json if none exists.
func EnsureSettings() error {
	path := SettingsPath()
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	data, err := json.MarshalIndent(Default(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

// EnsureAll creates the data directory and default settings.
func EnsureAll() error {
	if err := EnsureDataDir(); err != nil {
		return err
	}
	return EnsureSettings()
}
