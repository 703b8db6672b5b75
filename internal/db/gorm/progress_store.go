package gorm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/thebtf/clusterscan/internal/ledger"
)

// ProgressStore is a ledger.Ledger backed by the progress_entries table.
// Committed ids are cached in memory so Has never touches the database.
type ProgressStore struct {
	db    *gorm.DB
	runID string

	mu   sync.RWMutex
	done map[string]struct{}
}

var _ ledger.Ledger = (*ProgressStore)(nil)

// OpenProgressStore loads every committed patch id. New commits are tagged with runID.
func OpenProgressStore(ctx context.Context, store *Store, runID string) (*ProgressStore, error) {
	var ids []string
	if err := store.DB.WithContext(ctx).Model(&ProgressEntry{}).Pluck("patch_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("load progress: %w", err)
	}

	done := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		done[id] = struct{}{}
	}
	return &ProgressStore{db: store.DB, runID: runID, done: done}, nil
}

// Has reports whether id has been committed.
func (s *ProgressStore) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.done[id]
	return ok
}

// Commit inserts id. Re-committing an id is a no-op.
func (s *ProgressStore) Commit(id string) error {
	if err := ledger.ValidateID(id); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.done[id]; ok {
		return nil
	}

	entry := ProgressEntry{PatchID: id, RunID: s.runID, CreatedAt: time.Now().UTC()}
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "patch_id"}},
		DoNothing: true,
	}).Create(&entry).Error
	if err != nil {
		return fmt.Errorf("commit %s: %w", id, err)
	}
	s.done[id] = struct{}{}
	return nil
}

// Len returns the number of committed ids.
func (s *ProgressStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.done)
}

// Close is a no-op; the owning Store closes the connection.
func (s *ProgressStore) Close() error { return nil }

// ProgressEntries lists committed entries, most recent first.
func ProgressEntries(ctx context.Context, store *Store, limit, offset int) ([]ProgressEntry, error) {
	q := store.DB.WithContext(ctx).Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	var rows []ProgressEntry
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list progress: %w", err)
	}
	return rows, nil
}

// CountProgress returns the number of committed patches.
func CountProgress(ctx context.Context, store *Store) (int64, error) {
	var n int64
	if err := store.DB.WithContext(ctx).Model(&ProgressEntry{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count progress: %w", err)
	}
	return n, nil
}

// ProgressView is a read-only ledger.Lister over the progress_entries table.
type ProgressView struct {
	store *Store
}

var _ ledger.Lister = (*ProgressView)(nil)

// NewProgressView returns a view over store's committed patches.
func NewProgressView(store *Store) *ProgressView {
	return &ProgressView{store: store}
}

func (v *ProgressView) Entries(ctx context.Context, limit, offset int) ([]ledger.Entry, error) {
	rows, err := ProgressEntries(ctx, v.store, limit, offset)
	if err != nil {
		return nil, err
	}
	out := make([]ledger.Entry, 0, len(rows))
	for _, r := range rows {
		out = append(out, ledger.Entry{PatchID: r.PatchID, RunID: r.RunID, CreatedAt: r.CreatedAt})
	}
	return out, nil
}

func (v *ProgressView) Count(ctx context.Context) (int64, error) {
	return CountProgress(ctx, v.store)
}
