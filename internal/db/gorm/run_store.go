package gorm

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// ErrRunNotFound is returned when a run id is unknown.
var ErrRunNotFound = errors.New("scan run not found")

// RunStore tracks scan runs.
type RunStore struct {
	db *gorm.DB
}

// NewRunStore creates a run store on top of store.
func NewRunStore(store *Store) *RunStore {
	return &RunStore{db: store.DB}
}

// Start inserts a new run in the running state.
func (s *RunStore) Start(ctx context.Context, run *ScanRun) error {
	if run.ID == "" {
		return fmt.Errorf("start run: empty id")
	}
	if err := s.db.WithContext(ctx).Create(run).Error; err != nil {
		return fmt.Errorf("start run %s: %w", run.ID, err)
	}
	return nil
}

// RunTotals are the counters recorded when a run ends.
type RunTotals struct {
	Visited    int
	Scored     int
	Sparse     int
	Resumed    int
	Detections int
}

// Finish marks a run as ended with status and its final counters.
func (s *RunStore) Finish(ctx context.Context, id, status string, totals RunTotals, runErr error) error {
	updates := map[string]any{
		"status":      status,
		"visited":     totals.Visited,
		"scored":      totals.Scored,
		"sparse":      totals.Sparse,
		"resumed":     totals.Resumed,
		"detections":  totals.Detections,
		"finished_at": sql.NullTime{Time: time.Now().UTC(), Valid: true},
	}
	if runErr != nil {
		updates["error"] = sql.NullString{String: runErr.Error(), Valid: true}
	}

	res := s.db.WithContext(ctx).Model(&ScanRun{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("finish run %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("finish run %s: %w", id, ErrRunNotFound)
	}
	return nil
}

// Get returns a run by id.
func (s *RunStore) Get(ctx context.Context, id string) (*ScanRun, error) {
	var run ScanRun
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	return &run, nil
}

// Recent returns the latest runs, newest first.
func (s *RunStore) Recent(ctx context.Context, limit int) ([]ScanRun, error) {
	if limit <= 0 {
		limit = 20
	}
	var runs []ScanRun
	if err := s.db.WithContext(ctx).Order("started_at DESC").Limit(limit).Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("recent runs: %w", err)
	}
	return runs, nil
}
