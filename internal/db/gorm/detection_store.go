package gorm

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/thebtf/clusterscan/pkg/models"
)

// DetectionStore persists scored patches.
type DetectionStore struct {
	db *gorm.DB
}

// NewDetectionStore creates a detection store on top of store.
func NewDetectionStore(store *Store) *DetectionStore {
	return &DetectionStore{db: store.DB}
}

// Write stores one detection. The per-star data is not kept in the database.
func (s *DetectionStore) Write(ctx context.Context, d models.Detection, _ models.PatchData) error {
	row := detectionFromModel(d)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("insert detection %s: %w", row.PatchID, err)
	}
	return nil
}

// Close is a no-op; the owning Store closes the connection.
func (s *DetectionStore) Close() error { return nil }

// ListParams filters and pages detections.
type ListParams struct {
	RunID    string
	MinScore float64
	Limit    int
	Offset   int
}

// List returns detections ordered by score, best first.
func (s *DetectionStore) List(ctx context.Context, p ListParams) ([]models.Detection, error) {
	q := s.db.WithContext(ctx).Model(&Detection{})
	if p.RunID != "" {
		q = q.Where("run_id = ?", p.RunID)
	}
	if p.MinScore > 0 {
		q = q.Where("probability >= ?", p.MinScore)
	}
	if p.Limit > 0 {
		q = q.Limit(p.Limit)
	}
	if p.Offset > 0 {
		q = q.Offset(p.Offset)
	}

	var rows []Detection
	if err := q.Order("probability DESC").Order("id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list detections: %w", err)
	}

	out := make([]models.Detection, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

// ByPatch returns every detection recorded for a patch id.
func (s *DetectionStore) ByPatch(ctx context.Context, patchID string) ([]models.Detection, error) {
	var rows []Detection
	err := s.db.WithContext(ctx).
		Where("patch_id = ?", patchID).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("detections for %s: %w", patchID, err)
	}

	out := make([]models.Detection, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

// Count returns the number of stored detections.
func (s *DetectionStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&Detection{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count detections: %w", err)
	}
	return n, nil
}
