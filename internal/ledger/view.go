package ledger

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"
)

// Entry is one committed patch id. RunID and CreatedAt are only known to
// backends that record them.
type Entry struct {
	PatchID   string
	RunID     string
	CreatedAt time.Time
}

// Lister pages through committed ids, most recent first.
type Lister interface {
	Entries(ctx context.Context, limit, offset int) ([]Entry, error)
	Count(ctx context.Context) (int64, error)
}

// FileView is a read-only Lister over a progress file. The file is re-read on
// every call, so a view follows a scan that is still appending to it.
type FileView struct {
	path string
}

var _ Lister = (*FileView)(nil)

// NewFileView returns a view of the progress file at path. The file need not exist yet.
func NewFileView(path string) *FileView {
	return &FileView{path: path}
}

// Entries returns up to limit ids after skipping offset, newest first.
// A limit of zero or less means no limit.
func (v *FileView) Entries(_ context.Context, limit, offset int) ([]Entry, error) {
	ids, err := v.ids()
	if err != nil {
		return nil, err
	}
	if offset < 0 {
		offset = 0
	}

	out := []Entry{}
	for i := len(ids) - 1 - offset; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, Entry{PatchID: ids[i]})
	}
	return out, nil
}

// Count returns the number of distinct committed ids.
func (v *FileView) Count(_ context.Context) (int64, error) {
	ids, err := v.ids()
	if err != nil {
		return 0, err
	}
	return int64(len(ids)), nil
}

// ids reads the file in commit order. Duplicates keep their first position and
// an unterminated final line is skipped, the same way OpenFile loads it.
func (v *FileView) ids() ([]string, error) {
	data, err := os.ReadFile(v.path) // #nosec G304 -- path comes from configuration
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	if len(data) > 0 && data[len(data)-1] != '\n' {
		data = data[:bytes.LastIndexByte(data, '\n')+1]
	}

	seen := make(map[string]struct{})
	var ids []string
	for _, line := range bytes.Split(data, []byte{'\n'}) {
		id := string(bytes.TrimSpace(line))
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}
