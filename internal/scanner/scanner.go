// Package scanner walks the sky grid patch by patch, clusters each patch's
// observations and records detections and progress.
//
// The scan is strictly sequential. For every patch the detection, if any, is
// written before the patch id is committed to the ledger, so a crash can
// repeat a detection but never lose one.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thebtf/clusterscan/internal/grid"
	"github.com/thebtf/clusterscan/internal/ledger"
	"github.com/thebtf/clusterscan/internal/sink"
	"github.com/thebtf/clusterscan/pkg/clustering"
	"github.com/thebtf/clusterscan/pkg/models"
)

// DefaultMinObservations is the smallest patch that is clustered at all.
const DefaultMinObservations = 10

// defaultProgressEvery is how many visited patches pass between progress logs.
const defaultProgressEvery = 100

// ErrMissingDependency is returned by New when a collaborator is nil.
var ErrMissingDependency = errors.New("missing scanner dependency")

// Source fetches the observations inside a patch.
type Source interface {
	Fetch(ctx context.Context, patch models.Patch) ([]models.Observation, error)
}

// Config describes one scan campaign.
type Config struct {
	RA              grid.Range
	Dec             grid.Range
	PatchSize       float64
	MinObservations int
	RunID           string
	ProgressEvery   int
}

// Deps are the collaborators a Scanner drives.
type Deps struct {
	Source    Source
	Ledger    ledger.Ledger
	Clusterer clustering.Clusterer
	Sink      sink.Sink
	Metrics   *Metrics
}

// Summary counts what a Run did. Visited = SkippedDone + SkippedSparse + Scored.
type Summary struct {
	Visited       int `json:"visited"`
	SkippedDone   int `json:"skipped_done"`
	SkippedSparse int `json:"skipped_sparse"`
	Scored        int `json:"scored"`
	Detections    int `json:"detections"`
}

// Scanner runs a scan campaign.
type Scanner struct {
	cfg     Config
	source  Source
	ledger  ledger.Ledger
	cluster clustering.Clusterer
	sink    sink.Sink
	metrics *Metrics
	now     func() time.Time
}

// New validates cfg and wires the scanner. A zero MinObservations means the default.
func New(cfg Config, deps Deps) (*Scanner, error) {
	switch {
	case deps.Source == nil:
		return nil, fmt.Errorf("%w: source", ErrMissingDependency)
	case deps.Ledger == nil:
		return nil, fmt.Errorf("%w: ledger", ErrMissingDependency)
	case deps.Clusterer == nil:
		return nil, fmt.Errorf("%w: clusterer", ErrMissingDependency)
	case deps.Sink == nil:
		return nil, fmt.Errorf("%w: sink", ErrMissingDependency)
	}
	if cfg.MinObservations <= 0 {
		cfg.MinObservations = DefaultMinObservations
	}
	if cfg.ProgressEvery <= 0 {
		cfg.ProgressEvery = defaultProgressEvery
	}
	if _, err := grid.Patches(cfg.RA, cfg.Dec, cfg.PatchSize); err != nil {
		return nil, err
	}

	return &Scanner{
		cfg:     cfg,
		source:  deps.Source,
		ledger:  deps.Ledger,
		cluster: deps.Clusterer,
		sink:    deps.Sink,
		metrics: deps.Metrics,
		now:     time.Now,
	}, nil
}

// Run scans every patch of the grid in order. Cancellation is honoured
// between patches; a patch already started runs to completion or fails.
// The returned Summary is valid even when err is non-nil.
func (s *Scanner) Run(ctx context.Context) (Summary, error) {
	var sum Summary

	patches, err := grid.Patches(s.cfg.RA, s.cfg.Dec, s.cfg.PatchSize)
	if err != nil {
		return sum, err
	}
	s.metrics.setLedgerSize(s.ledger.Len())

	log.Info().
		Int("patches", len(patches)).
		Int("done", s.ledger.Len()).
		Float64("patch_size", s.cfg.PatchSize).
		Str("run", s.cfg.RunID).
		Msg("Scan started")

	for _, patch := range patches {
		if err := ctx.Err(); err != nil {
			log.Warn().Err(err).Int("visited", sum.Visited).Msg("Scan interrupted")
			return sum, err
		}

		state, det, err := s.scanPatch(ctx, patch)
		if err != nil {
			s.metrics.recordPatch(outcomeFailed)
			return sum, err
		}

		sum.Visited++
		switch state {
		case models.PatchAlreadyDone:
			sum.SkippedDone++
		case models.PatchSkippedSparse:
			sum.SkippedSparse++
		case models.PatchScored:
			sum.Scored++
			if det {
				sum.Detections++
			}
		}

		if sum.Visited%s.cfg.ProgressEvery == 0 {
			log.Info().
				Int("visited", sum.Visited).
				Int("total", len(patches)).
				Int("scored", sum.Scored).
				Int("detections", sum.Detections).
				Msg("Scan progress")
		}
	}

	log.Info().
		Int("visited", sum.Visited).
		Int("resumed", sum.SkippedDone).
		Int("sparse", sum.SkippedSparse).
		Int("scored", sum.Scored).
		Int("detections", sum.Detections).
		Msg("Scan finished")
	return sum, nil
}

// scanPatch processes one patch and reports the state it ended in.
func (s *Scanner) scanPatch(ctx context.Context, patch models.Patch) (models.PatchState, bool, error) {
	id := patch.ID()
	if s.ledger.Has(id) {
		s.metrics.recordPatch(outcomeResumed)
		return models.PatchAlreadyDone, false, nil
	}

	start := s.now()
	obs, err := s.source.Fetch(ctx, patch)
	if err != nil {
		return models.PatchPending, false, fmt.Errorf("fetch patch %s: %w", id, err)
	}
	s.metrics.recordFetch(s.now().Sub(start).Seconds(), len(obs))

	if len(obs) < s.cfg.MinObservations {
		log.Debug().Str("patch", id).Int("stars", len(obs)).Msg("Patch too sparse, skipping")
		s.metrics.recordPatch(outcomeSparse)
		return models.PatchSkippedSparse, false, nil
	}

	res := s.cluster.Cluster(obs)
	if len(res.Labels) != len(obs) {
		return models.PatchFetched, false, fmt.Errorf("cluster patch %s: %d labels for %d observations", id, len(res.Labels), len(obs))
	}
	s.metrics.recordScore(res.Score, res.Clustered > 0)

	detected := res.Clustered > 0
	if detected {
		d := models.Detection{
			RA:        patch.RA,
			Dec:       patch.Dec,
			Score:     res.Score,
			Clustered: res.Clustered,
			Total:     res.Total,
			Clusters:  res.Clusters,
			RunID:     s.cfg.RunID,
			CreatedAt: s.now().UTC(),
		}
		data := models.PatchData{Patch: patch, Observations: obs, Labels: res.Labels}
		if err := s.sink.Write(ctx, d, data); err != nil {
			return models.PatchFetched, false, fmt.Errorf("write detection %s: %w", id, err)
		}
		log.Info().
			Str("patch", id).
			Float64("ra", patch.RA).
			Float64("dec", patch.Dec).
			Int("stars", res.Total).
			Int("clusters", res.Clusters).
			Float64("score", res.Score).
			Msg("Detection")
	} else {
		log.Debug().Str("patch", id).Int("stars", res.Total).Msg("Patch scored, no clusters")
	}

	if err := s.ledger.Commit(id); err != nil {
		return models.PatchScored, detected, fmt.Errorf("commit patch %s: %w", id, err)
	}
	s.metrics.recordPatch(outcomeScored)
	s.metrics.setLedgerSize(s.ledger.Len())
	return models.PatchScored, detected, nil
}
