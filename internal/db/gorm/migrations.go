package gorm

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// runMigrations runs all database migrations using gormigrate.
func runMigrations(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		// Migration 001: progress set and detections
		{
			ID: "001_core_tables",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&ProgressEntry{}); err != nil {
					return err
				}
				return tx.AutoMigrate(&Detection{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("progress_entries", "detections")
			},
		},

		// Migration 002: scan runs
		{
			ID: "002_scan_runs",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&ScanRun{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("scan_runs")
			},
		},

		// Migration 003: positional lookups on detections
		{
			ID: "003_detections_position",
			Migrate: func(tx *gorm.DB) error {
				return tx.Exec("CREATE INDEX IF NOT EXISTS idx_detections_position ON detections(ra, dec)").Error
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Exec("DROP INDEX IF EXISTS idx_detections_position").Error
			},
		},
	})

	return m.Migrate()
}
