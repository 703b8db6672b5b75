package scanner

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/thebtf/clusterscan/internal/grid"
	"github.com/thebtf/clusterscan/internal/ledger"
	"github.com/thebtf/clusterscan/pkg/clustering"
	"github.com/thebtf/clusterscan/pkg/models"
)

// fakeSource serves canned observations per patch id and records every fetch.
type fakeSource struct {
	byID    map[string][]models.Observation
	errs    map[string]error
	calls   []string
	onFetch func()
}

func newFakeSource() *fakeSource {
	return &fakeSource{byID: map[string][]models.Observation{}, errs: map[string]error{}}
}

func (f *fakeSource) Fetch(_ context.Context, patch models.Patch) ([]models.Observation, error) {
	id := patch.ID()
	f.calls = append(f.calls, id)
	if f.onFetch != nil {
		f.onFetch()
	}
	if err := f.errs[id]; err != nil {
		return nil, err
	}
	return f.byID[id], nil
}

type written struct {
	det  models.Detection
	data models.PatchData
}

type fakeSink struct {
	writes []written
	err    error
}

func (f *fakeSink) Write(_ context.Context, d models.Detection, data models.PatchData) error {
	if f.err != nil {
		return f.err
	}
	f.writes = append(f.writes, written{det: d, data: data})
	return nil
}

func (f *fakeSink) Close() error { return nil }

// clusteredPatch is ten co-moving stars plus two kinematic outliers.
func clusteredPatch() []models.Observation {
	obs := make([]models.Observation, 0, 12)
	for i := 0; i < 10; i++ {
		obs = append(obs, models.Observation{
			SourceID: int64(i + 1),
			PMRA:     1 + float64(i)*0.01,
			PMDec:    2,
			Parallax: 0.5,
			GMag:     15,
			BPRP:     1,
		})
	}
	return append(obs,
		models.Observation{SourceID: 11, PMRA: 20, PMDec: -20, Parallax: 3, GMag: 18, BPRP: 2},
		models.Observation{SourceID: 12, PMRA: -30, PMDec: 25, Parallax: 1, GMag: 19, BPRP: 2},
	)
}

// scatteredPatch is n stars far apart from each other.
func scatteredPatch(n int) []models.Observation {
	obs := make([]models.Observation, 0, n)
	for i := 0; i < n; i++ {
		obs = append(obs, models.Observation{SourceID: int64(i + 1), PMRA: float64(i) * 5, PMDec: 0, Parallax: 1})
	}
	return obs
}

type ScannerSuite struct {
	suite.Suite
	source *fakeSource
	ledger *ledger.Memory
	sink   *fakeSink
	cfg    Config
}

func (s *ScannerSuite) SetupTest() {
	s.source = newFakeSource()
	s.ledger = ledger.NewMemory()
	s.sink = &fakeSink{}
	s.cfg = Config{
		RA:        grid.Range{Min: 0, Max: 10},
		Dec:       grid.Range{Min: 0, Max: 10},
		PatchSize: 10,
		RunID:     "run-1",
	}
}

func TestScannerSuite(t *testing.T) {
	suite.Run(t, new(ScannerSuite))
}

func (s *ScannerSuite) newScanner(metrics *Metrics) *Scanner {
	sc, err := New(s.cfg, Deps{
		Source:    s.source,
		Ledger:    s.ledger,
		Clusterer: clustering.NewDBSCAN(clustering.DefaultEps, clustering.DefaultMinSamples),
		Sink:      s.sink,
		Metrics:   metrics,
	})
	s.Require().NoError(err)
	return sc
}

func (s *ScannerSuite) TestRun_DetectionIsWrittenThenCommitted() {
	s.source.byID["0.0000_0.0000"] = clusteredPatch()

	sum, err := s.newScanner(nil).Run(context.Background())
	s.Require().NoError(err)
	s.Equal(Summary{Visited: 1, Scored: 1, Detections: 1}, sum)

	s.True(s.ledger.Has("0.0000_0.0000"))
	s.Require().Len(s.sink.writes, 1)

	w := s.sink.writes[0]
	s.InDelta(10.0/12.0, w.det.Score, 1e-12)
	s.Equal(10, w.det.Clustered)
	s.Equal(12, w.det.Total)
	s.Equal(1, w.det.Clusters)
	s.Equal("run-1", w.det.RunID)
	s.False(w.det.CreatedAt.IsZero())
	s.Len(w.data.Labels, 12)
	s.Equal(models.NoiseLabel, w.data.Labels[10])
	s.Equal(5.0, w.data.Patch.HalfWidth)
}

func (s *ScannerSuite) TestRun_SparsePatchIsRetried() {
	s.source.byID["0.0000_0.0000"] = clusteredPatch()[:5]
	sc := s.newScanner(nil)

	first, err := sc.Run(context.Background())
	s.Require().NoError(err)
	second, err := sc.Run(context.Background())
	s.Require().NoError(err)

	s.Equal(Summary{Visited: 1, SkippedSparse: 1}, first)
	s.Equal(first, second)
	s.Equal(0, s.ledger.Len())
	s.Empty(s.sink.writes)
	s.Equal([]string{"0.0000_0.0000", "0.0000_0.0000"}, s.source.calls)
}

func (s *ScannerSuite) TestRun_MinObservationsBoundary() {
	s.source.byID["0.0000_0.0000"] = scatteredPatch(9)
	sum, err := s.newScanner(nil).Run(context.Background())
	s.Require().NoError(err)
	s.Equal(1, sum.SkippedSparse)

	s.source.byID["0.0000_0.0000"] = scatteredPatch(10)
	sum, err = s.newScanner(nil).Run(context.Background())
	s.Require().NoError(err)
	s.Equal(1, sum.Scored)
}

func (s *ScannerSuite) TestRun_NoClustersIsCommittedWithoutDetection() {
	s.source.byID["0.0000_0.0000"] = scatteredPatch(20)

	sum, err := s.newScanner(nil).Run(context.Background())
	s.Require().NoError(err)
	s.Equal(Summary{Visited: 1, Scored: 1}, sum)
	s.True(s.ledger.Has("0.0000_0.0000"))
	s.Empty(s.sink.writes)
}

func (s *ScannerSuite) TestRun_ResumeNeverRefetches() {
	s.cfg.RA = grid.Range{Min: 0, Max: 30}
	s.source.byID["10.0000_0.0000"] = clusteredPatch()
	s.source.byID["20.0000_0.0000"] = scatteredPatch(15)
	s.Require().NoError(s.ledger.Commit("0.0000_0.0000"))

	sc := s.newScanner(nil)
	sum, err := sc.Run(context.Background())
	s.Require().NoError(err)
	s.Equal(Summary{Visited: 3, SkippedDone: 1, Scored: 2, Detections: 1}, sum)
	s.Equal([]string{"10.0000_0.0000", "20.0000_0.0000"}, s.source.calls)

	s.source.calls = nil
	sum, err = sc.Run(context.Background())
	s.Require().NoError(err)
	s.Equal(Summary{Visited: 3, SkippedDone: 3}, sum)
	s.Empty(s.source.calls)
	s.Len(s.sink.writes, 1)
}

func (s *ScannerSuite) TestRun_FetchErrorIsFatal() {
	s.cfg.RA = grid.Range{Min: 0, Max: 20}
	boom := errors.New("archive unavailable")
	s.source.errs["0.0000_0.0000"] = boom
	s.source.byID["10.0000_0.0000"] = clusteredPatch()

	sum, err := s.newScanner(nil).Run(context.Background())
	s.Require().ErrorIs(err, boom)
	s.Contains(err.Error(), "0.0000_0.0000")
	s.Equal(Summary{}, sum)
	s.Equal([]string{"0.0000_0.0000"}, s.source.calls)
	s.Equal(0, s.ledger.Len())
}

func (s *ScannerSuite) TestRun_SinkErrorLeavesPatchUncommitted() {
	boom := errors.New("disk full")
	s.sink.err = boom
	s.source.byID["0.0000_0.0000"] = clusteredPatch()

	_, err := s.newScanner(nil).Run(context.Background())
	s.Require().ErrorIs(err, boom)
	s.False(s.ledger.Has("0.0000_0.0000"))
}

func (s *ScannerSuite) TestRun_CanceledBeforeStart() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sum, err := s.newScanner(nil).Run(ctx)
	s.ErrorIs(err, context.Canceled)
	s.Equal(Summary{}, sum)
	s.Empty(s.source.calls)
}

func (s *ScannerSuite) TestRun_CancelFinishesInFlightPatch() {
	s.cfg.RA = grid.Range{Min: 0, Max: 20}
	s.source.byID["0.0000_0.0000"] = clusteredPatch()
	s.source.byID["10.0000_0.0000"] = clusteredPatch()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.source.onFetch = cancel

	sum, err := s.newScanner(nil).Run(ctx)
	s.ErrorIs(err, context.Canceled)
	s.Equal(Summary{Visited: 1, Scored: 1, Detections: 1}, sum)
	s.True(s.ledger.Has("0.0000_0.0000"))
	s.False(s.ledger.Has("10.0000_0.0000"))
	s.Equal([]string{"0.0000_0.0000"}, s.source.calls)
}

func (s *ScannerSuite) TestRun_RecordsMetrics() {
	s.cfg.RA = grid.Range{Min: 0, Max: 30}
	s.source.byID["0.0000_0.0000"] = clusteredPatch()
	s.source.byID["10.0000_0.0000"] = scatteredPatch(3)
	s.source.byID["20.0000_0.0000"] = scatteredPatch(12)

	m, err := NewMetrics(prometheus.NewRegistry())
	s.Require().NoError(err)

	_, err = s.newScanner(m).Run(context.Background())
	s.Require().NoError(err)

	s.Equal(float64(2), testutil.ToFloat64(m.patchesTotal.WithLabelValues(outcomeScored)))
	s.Equal(float64(1), testutil.ToFloat64(m.patchesTotal.WithLabelValues(outcomeSparse)))
	s.Equal(float64(1), testutil.ToFloat64(m.detectionsTotal))
	s.Equal(float64(2), testutil.ToFloat64(m.ledgerSize))
}

func TestNew_Validation(t *testing.T) {
	src := newFakeSource()
	mem := ledger.NewMemory()
	db := clustering.NewDBSCAN(0, 0)
	snk := &fakeSink{}
	good := Config{RA: grid.Range{Max: 10}, Dec: grid.Range{Max: 10}, PatchSize: 10}

	tests := []struct {
		name    string
		cfg     Config
		deps    Deps
		wantErr error
	}{
		{"no source", good, Deps{Ledger: mem, Clusterer: db, Sink: snk}, ErrMissingDependency},
		{"no ledger", good, Deps{Source: src, Clusterer: db, Sink: snk}, ErrMissingDependency},
		{"no clusterer", good, Deps{Source: src, Ledger: mem, Sink: snk}, ErrMissingDependency},
		{"no sink", good, Deps{Source: src, Ledger: mem, Clusterer: db}, ErrMissingDependency},
		{"bad step", Config{RA: good.RA, Dec: good.Dec}, Deps{Source: src, Ledger: mem, Clusterer: db, Sink: snk}, grid.ErrInvalidRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg, tt.deps)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	sc, err := New(good, Deps{Source: src, Ledger: mem, Clusterer: db, Sink: snk})
	require.NoError(t, err)
	assert.Equal(t, DefaultMinObservations, sc.cfg.MinObservations)
}
