package sink

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/thebtf/clusterscan/pkg/models"
	"github.com/thebtf/clusterscan/pkg/units"
)

// CSV appends "ra,dec,probability" lines to a results file. The file has no
// header, so it can be concatenated across runs.
type CSV struct {
	mu   sync.Mutex
	path string
	f    *os.File
}

// OpenCSV opens path for appending, creating it and its directory as needed.
func OpenCSV(path string) (*CSV, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create results dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open results file: %w", err)
	}
	return &CSV{path: path, f: f}, nil
}

// FormatRecord renders one results line without the trailing newline.
func FormatRecord(d models.Detection) string {
	return units.FormatDecimal(d.RA) + "," + units.FormatDecimal(d.Dec) + "," + units.FormatDecimal(d.Score)
}

// Write appends the detection and syncs the file.
func (c *CSV) Write(_ context.Context, d models.Detection, _ models.PatchData) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.f == nil {
		return fmt.Errorf("write results: %w", os.ErrClosed)
	}
	if _, err := c.f.WriteString(FormatRecord(d) + "\n"); err != nil {
		return fmt.Errorf("write results: %w", err)
	}
	if err := c.f.Sync(); err != nil {
		return fmt.Errorf("sync results: %w", err)
	}
	log.Debug().Str("file", c.path).Str("patch", d.PatchID()).Msg("Detection appended")
	return nil
}

// Path returns the results file path.
func (c *CSV) Path() string {
	return c.path
}

func (c *CSV) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.f == nil {
		return nil
	}
	err := c.f.Close()
	c.f = nil
	return err
}
