package sequence

import (
	"context"
	"sync"
)

// Memory is a process-local sequencer. Counters start at 1 and are never
// reset, so numbers stay monotonic across delete-all.
type Memory struct {
	mu   sync.Mutex
	next map[string]int64
}

// NewMemory creates an empty in-memory sequencer.
func NewMemory() *Memory {
	return &Memory{next: make(map[string]int64)}
}

// Next returns the next number for deviceID.
func (m *Memory) Next(_ context.Context, deviceID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.next[deviceID]++
	return m.next[deviceID], nil
}
