package store

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/i474232898/umbrella-rain-service/internal/reading"
)

// MemoryStore is a concurrency-safe in-memory event log.
type MemoryStore struct {
	mu sync.RWMutex

	// key: device id, value: events in insertion order
	data map[string][]reading.Event
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string][]reading.Event),
	}
}

// Insert appends ev and assigns it an ID.
func (s *MemoryStore) Insert(_ context.Context, ev *reading.Event) error {
	ev.ID = uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[ev.DeviceID] = append(s.data[ev.DeviceID], *ev)
	return nil
}

// FindByDevice returns up to limit events for deviceID, newest timestamp
// first. Events sharing a timestamp come back newest insert first.
func (s *MemoryStore) FindByDevice(_ context.Context, deviceID string, limit int) ([]reading.Event, error) {
	s.mu.RLock()
	history := s.data[deviceID]
	result := make([]reading.Event, len(history))
	for i, ev := range history {
		result[len(history)-1-i] = ev
	}
	s.mu.RUnlock()

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Timestamp.After(result[j].Timestamp)
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// DeleteAll drops every event and returns how many were removed.
func (s *MemoryStore) DeleteAll(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, history := range s.data {
		n += int64(len(history))
	}
	s.data = make(map[string][]reading.Event)
	return n, nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(_ context.Context) error {
	return nil
}
