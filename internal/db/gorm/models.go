package gorm

import (
	"database/sql"
	"time"

	"gorm.io/gorm"

	"github.com/thebtf/clusterscan/pkg/models"
)

// Run statuses.
const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
	RunCanceled  = "canceled"
)

// ScanRun records one invocation of a scan campaign.
type ScanRun struct {
	ID              string  `gorm:"primaryKey;type:text"`
	RAMin           float64 `gorm:"type:real;not null"`
	RAMax           float64 `gorm:"type:real;not null"`
	DecMin          float64 `gorm:"type:real;not null"`
	DecMax          float64 `gorm:"type:real;not null"`
	PatchSize       float64 `gorm:"type:real;not null"`
	Eps             float64 `gorm:"type:real;not null"`
	MinSamples      int     `gorm:"not null"`
	MinObservations int     `gorm:"not null"`
	Status          string  `gorm:"type:text;check:status IN ('running', 'completed', 'failed', 'canceled');default:'running';index"`
	Visited         int     `gorm:"default:0"`
	Scored          int     `gorm:"default:0"`
	Sparse          int     `gorm:"default:0"`
	Resumed         int     `gorm:"default:0"`
	Detections      int     `gorm:"default:0"`
	Error           sql.NullString
	StartedAt       time.Time `gorm:"not null;index:idx_runs_started,sort:desc"`
	FinishedAt      sql.NullTime
}

func (ScanRun) TableName() string { return "scan_runs" }

// BeforeCreate hook to ensure the start time is set.
func (r *ScanRun) BeforeCreate(tx *gorm.DB) error {
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now().UTC()
	}
	if r.Status == "" {
		r.Status = RunRunning
	}
	return nil
}

// Detection is a scored patch as stored in the database.
type Detection struct {
	ID          int64     `gorm:"primaryKey;autoIncrement"`
	PatchID     string    `gorm:"type:text;index;not null"`
	RA          float64   `gorm:"type:real;not null"`
	Dec         float64   `gorm:"type:real;not null"`
	Probability float64   `gorm:"type:real;check:probability >= 0 AND probability <= 1;index:idx_detections_probability,sort:desc;not null"`
	Clustered   int       `gorm:"not null"`
	Total       int       `gorm:"not null"`
	Clusters    int       `gorm:"not null"`
	RunID       string    `gorm:"type:text;index"`
	CreatedAt   time.Time `gorm:"not null"`
}

func (Detection) TableName() string { return "detections" }

func detectionFromModel(d models.Detection) Detection {
	created := d.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	return Detection{
		PatchID:     d.PatchID(),
		RA:          d.RA,
		Dec:         d.Dec,
		Probability: d.Score,
		Clustered:   d.Clustered,
		Total:       d.Total,
		Clusters:    d.Clusters,
		RunID:       d.RunID,
		CreatedAt:   created,
	}
}

func (d Detection) toModel() models.Detection {
	return models.Detection{
		RA:        d.RA,
		Dec:       d.Dec,
		Score:     d.Probability,
		Clustered: d.Clustered,
		Total:     d.Total,
		Clusters:  d.Clusters,
		RunID:     d.RunID,
		CreatedAt: d.CreatedAt,
	}
}

// ProgressEntry marks a patch as done. PatchID is unique, so the table is a set.
type ProgressEntry struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	PatchID   string    `gorm:"type:text;uniqueIndex;not null"`
	RunID     string    `gorm:"type:text;index"`
	CreatedAt time.Time `gorm:"not null"`
}

func (ProgressEntry) TableName() string { return "progress_entries" }
