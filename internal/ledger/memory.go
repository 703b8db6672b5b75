package ledger

import "sync"

// Memory is a non-durable ledger for dry runs and one-off probes.
type Memory struct {
	done map[string]struct{}
	mu   sync.RWMutex
}

var _ Ledger = (*Memory)(nil)

// NewMemory returns an empty in-memory ledger seeded with ids.
func NewMemory(ids ...string) *Memory {
	m := &Memory{done: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		m.done[id] = struct{}{}
	}
	return m
}

func (m *Memory) Has(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.done[id]
	return ok
}

func (m *Memory) Commit(id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	m.mu.Lock()
	m.done[id] = struct{}{}
	m.mu.Unlock()
	return nil
}

func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.done)
}

func (m *Memory) Close() error { return nil }
