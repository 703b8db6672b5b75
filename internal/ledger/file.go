package ledger

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
)

// File is a ledger backed by a newline-delimited, append-only text file.
type File struct {
	f    *os.File
	done map[string]struct{}
	path string
	mu   sync.RWMutex
}

var _ Ledger = (*File)(nil)

// OpenFile opens or creates the ledger at path and loads every committed id.
// A final line without a trailing newline is treated as an interrupted
// append and cut from the file.
func OpenFile(path string) (*File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("create ledger dir: %w", err)
	}

	data, err := os.ReadFile(path) // #nosec G304 -- path comes from configuration
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read ledger: %w", err)
	}

	l := &File{
		path: path,
		done: make(map[string]struct{}),
	}

	if len(data) > 0 && data[len(data)-1] != '\n' {
		cut := bytes.LastIndexByte(data, '\n')
		log.Warn().
			Str("path", path).
			Str("fragment", string(data[cut+1:])).
			Msg("Dropping incomplete final ledger line")
		data = data[:cut+1]
		if err := os.Truncate(path, int64(len(data))); err != nil {
			return nil, fmt.Errorf("truncate torn ledger line: %w", err)
		}
	}
	for _, line := range bytes.Split(data, []byte{'\n'}) {
		id := string(bytes.TrimSpace(line))
		if id != "" {
			l.done[id] = struct{}{}
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640) // #nosec G304 -- path comes from configuration
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	l.f = f

	log.Debug().Str("path", path).Int("entries", len(l.done)).Msg("Progress ledger loaded")
	return l, nil
}

// Has reports whether id was committed.
func (l *File) Has(id string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.done[id]
	return ok
}

// Commit appends id and fsyncs before marking it done in memory.
func (l *File) Commit(id string) error {
	if err := ValidateID(id); err != nil {
		return fmt.Errorf("commit %q: %w", id, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.done[id]; ok {
		return nil
	}

	if _, err := l.f.WriteString(id + "\n"); err != nil {
		return fmt.Errorf("append ledger: %w", err)
	}
	if err := l.f.Sync(); err != nil {
		return fmt.Errorf("sync ledger: %w", err)
	}

	l.done[id] = struct{}{}
	return nil
}

// Len returns the number of committed ids.
func (l *File) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.done)
}

// Path returns the backing file path.
func (l *File) Path() string {
	return l.path
}

// Close closes the backing file.
func (l *File) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.Close()
}
