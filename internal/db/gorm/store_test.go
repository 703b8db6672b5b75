package gorm

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm/logger"

	"github.com/thebtf/clusterscan/internal/ledger"
	"github.com/thebtf/clusterscan/pkg/models"
)

type StoreSuite struct {
	suite.Suite
	dir   string
	store *Store
}

func (s *StoreSuite) SetupTest() {
	s.dir = s.T().TempDir()
	s.store = s.open()
}

func (s *StoreSuite) TearDownTest() {
	if s.store != nil {
		_ = s.store.Close()
	}
}

func (s *StoreSuite) open() *Store {
	store, err := NewStore(Config{
		Path:     filepath.Join(s.dir, "scan.db"),
		MaxConns: 4,
		LogLevel: logger.Silent,
	})
	s.Require().NoError(err)
	return store
}

func (s *StoreSuite) reopen() {
	s.Require().NoError(s.store.Close())
	s.store = s.open()
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreSuite))
}

func (s *StoreSuite) TestNewStore_TablesAndWAL() {
	for _, table := range []string{"progress_entries", "detections", "scan_runs"} {
		s.True(s.store.DB.Migrator().HasTable(table), table)
	}

	var journalMode string
	s.Require().NoError(s.store.DB.Raw("PRAGMA journal_mode").Scan(&journalMode).Error)
	s.Equal("wal", journalMode)
	s.Equal(DriverSQLite, s.store.Driver())
	s.NoError(s.store.Ping())
}

func (s *StoreSuite) TestNewStore_MigrationsAreRepeatable() {
	s.reopen()
	s.True(s.store.DB.Migrator().HasTable("detections"))
}

func (s *StoreSuite) TestProgressStore_CommitAndResume() {
	ctx := context.Background()
	p, err := OpenProgressStore(ctx, s.store, "run-1")
	s.Require().NoError(err)

	s.False(p.Has("0.0000_0.0000"))
	s.Require().NoError(p.Commit("0.0000_0.0000"))
	s.Require().NoError(p.Commit("0.0000_0.0000"))
	s.Require().NoError(p.Commit("10.0000_-5.0000"))
	s.True(p.Has("0.0000_0.0000"))
	s.Equal(2, p.Len())

	s.reopen()
	p, err = OpenProgressStore(ctx, s.store, "run-2")
	s.Require().NoError(err)
	s.Equal(2, p.Len())
	s.True(p.Has("10.0000_-5.0000"))

	// Another process may have committed the same id behind our cache.
	other, err := OpenProgressStore(ctx, s.store, "run-3")
	s.Require().NoError(err)
	s.Require().NoError(p.Commit("20.0000_0.0000"))
	s.NoError(other.Commit("20.0000_0.0000"))

	entries, err := ProgressEntries(ctx, s.store, 0, 0)
	s.Require().NoError(err)
	s.Len(entries, 3)
	s.Equal("20.0000_0.0000", entries[0].PatchID)
	s.Equal("run-2", entries[0].RunID)
}

func (s *StoreSuite) TestProgressView() {
	ctx := context.Background()
	p, err := OpenProgressStore(ctx, s.store, "run-1")
	s.Require().NoError(err)
	s.Require().NoError(p.Commit("0.0000_0.0000"))
	s.Require().NoError(p.Commit("10.0000_0.0000"))

	view := NewProgressView(s.store)
	n, err := view.Count(ctx)
	s.Require().NoError(err)
	s.EqualValues(2, n)

	entries, err := view.Entries(ctx, 1, 0)
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal("10.0000_0.0000", entries[0].PatchID)
	s.Equal("run-1", entries[0].RunID)
	s.False(entries[0].CreatedAt.IsZero())
}

func (s *StoreSuite) TestProgressStore_RejectsInvalidID() {
	p, err := OpenProgressStore(context.Background(), s.store, "")
	s.Require().NoError(err)

	s.ErrorIs(p.Commit(""), ledger.ErrInvalidID)
	s.ErrorIs(p.Commit("a\nb"), ledger.ErrInvalidID)
	s.Equal(0, p.Len())
}

func (s *StoreSuite) TestDetectionStore_WriteAndList() {
	ctx := context.Background()
	d := NewDetectionStore(s.store)

	detections := []models.Detection{
		{RA: 0, Dec: 0, Score: 0.25, Clustered: 3, Total: 12, Clusters: 1, RunID: "a"},
		{RA: 10, Dec: -5, Score: 10.0 / 12.0, Clustered: 10, Total: 12, Clusters: 1, RunID: "a"},
		{RA: 20, Dec: 5, Score: 0, Clustered: 0, Total: 40, Clusters: 0, RunID: "b"},
	}
	for _, det := range detections {
		s.Require().NoError(d.Write(ctx, det, models.PatchData{}))
	}

	n, err := d.Count(ctx)
	s.Require().NoError(err)
	s.EqualValues(3, n)

	all, err := d.List(ctx, ListParams{})
	s.Require().NoError(err)
	s.Require().Len(all, 3)
	s.InDelta(10.0/12.0, all[0].Score, 1e-12)
	s.Equal("10.0000_-5.0000", all[0].PatchID())
	s.Equal(0.0, all[2].Score)

	tests := []struct {
		name   string
		params ListParams
		want   int
	}{
		{"by run", ListParams{RunID: "a"}, 2},
		{"min score", ListParams{MinScore: 0.5}, 1},
		{"limit", ListParams{Limit: 2}, 2},
		{"offset", ListParams{Offset: 2}, 1},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			got, err := d.List(ctx, tt.params)
			s.Require().NoError(err)
			s.Len(got, tt.want)
		})
	}

	byPatch, err := d.ByPatch(ctx, "20.0000_5.0000")
	s.Require().NoError(err)
	s.Require().Len(byPatch, 1)
	s.Equal(40, byPatch[0].Total)
}

func (s *StoreSuite) TestRunStore_Lifecycle() {
	ctx := context.Background()
	runs := NewRunStore(s.store)

	run := &ScanRun{ID: "run-1", RAMax: 360, DecMin: -90, DecMax: 90, PatchSize: 10, Eps: 0.5, MinSamples: 5, MinObservations: 10}
	s.Require().NoError(runs.Start(ctx, run))
	s.False(run.StartedAt.IsZero())

	got, err := runs.Get(ctx, "run-1")
	s.Require().NoError(err)
	s.Equal(RunRunning, got.Status)
	s.False(got.FinishedAt.Valid)

	s.Require().NoError(runs.Finish(ctx, "run-1", RunFailed, RunTotals{Visited: 4, Scored: 2, Sparse: 1, Resumed: 1}, errors.New("boom")))
	got, err = runs.Get(ctx, "run-1")
	s.Require().NoError(err)
	s.Equal(RunFailed, got.Status)
	s.Equal(4, got.Visited)
	s.Equal(2, got.Scored)
	s.True(got.FinishedAt.Valid)
	s.Equal("boom", got.Error.String)

	s.Require().NoError(runs.Start(ctx, &ScanRun{ID: "run-2", StartedAt: time.Now().UTC().Add(time.Hour)}))
	recent, err := runs.Recent(ctx, 0)
	s.Require().NoError(err)
	s.Require().Len(recent, 2)
	s.Equal("run-2", recent[0].ID)
}

func (s *StoreSuite) TestRunStore_NotFound() {
	runs := NewRunStore(s.store)
	_, err := runs.Get(context.Background(), "missing")
	s.ErrorIs(err, ErrRunNotFound)
	s.ErrorIs(runs.Finish(context.Background(), "missing", RunCompleted, RunTotals{}, nil), ErrRunNotFound)
	s.Error(runs.Start(context.Background(), &ScanRun{}))
}

func TestNewStore_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"unknown driver", Config{Driver: "oracle"}},
		{"empty sqlite path", Config{Driver: DriverSQLite}},
		{"empty postgres dsn", Config{Driver: DriverPostgres}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := NewStore(tt.cfg)
			require.Error(t, err)
			assert.Nil(t, store)
		})
	}
}
