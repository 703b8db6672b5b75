// Package sink persists detections.
//
// A scanner writes each detection to exactly one Sink before it commits the
// patch to its ledger. Several destinations are combined with Multi.
package sink

import (
	"context"
	"errors"
	"fmt"

	"github.com/thebtf/clusterscan/pkg/models"
)

// Sink stores detections. Write must be durable when it returns nil.
type Sink interface {
	Write(ctx context.Context, d models.Detection, data models.PatchData) error
	Close() error
}

// Multi writes to every sink in order and stops at the first failure.
type Multi []Sink

var _ Sink = Multi(nil)

// NewMulti drops nil entries.
func NewMulti(sinks ...Sink) Multi {
	out := make(Multi, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (m Multi) Write(ctx context.Context, d models.Detection, data models.PatchData) error {
	for i, s := range m {
		if err := s.Write(ctx, d, data); err != nil {
			return fmt.Errorf("sink %d: %w", i, err)
		}
	}
	return nil
}

// Close closes every sink and joins their errors.
func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard accepts and drops every detection.
type Discard struct{}

func (Discard) Write(context.Context, models.Detection, models.PatchData) error { return nil }
func (Discard) Close() error                                                    { return nil }
