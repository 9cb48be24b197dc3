package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps sessions in process memory. Nothing survives a
// restart and nothing is shared between instances; it exists for local
// development and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry

	stopJanitor chan struct{}
	stopOnce    sync.Once
}

type memoryEntry struct {
	data      Data
	expiresAt time.Time
}

// NewMemoryStore creates an in-memory store and starts a background
// janitor that evicts expired entries.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		entries:     make(map[string]memoryEntry),
		stopJanitor: make(chan struct{}),
	}

	go s.janitorLoop()

	return s
}

func (s *MemoryStore) Get(_ context.Context, id string) (Data, bool, error) {
	s.mu.RLock()
	entry, ok := s.entries[id]
	s.mu.RUnlock()

	if !ok || time.Now().After(entry.expiresAt) {
		return Data{}, false, nil
	}
	return entry.data, true, nil
}

func (s *MemoryStore) Set(_ context.Context, id string, d Data, ttl time.Duration) error {
	s.mu.Lock()
	s.entries[id] = memoryEntry{data: d, expiresAt: time.Now().Add(ttl)}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.entries, id)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) List(_ context.Context) ([]Record, error) {
	now := time.Now()

	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]Record, 0, len(s.entries))
	for id, entry := range s.entries {
		if now.After(entry.expiresAt) {
			continue
		}
		records = append(records, Record{ID: id, Data: entry.data})
	}
	return records, nil
}

// Close stops the janitor goroutine.
func (s *MemoryStore) Close() {
	s.stopOnce.Do(func() { close(s.stopJanitor) })
}

func (s *MemoryStore) janitorLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.evictExpired()
		case <-s.stopJanitor:
			return
		}
	}
}

func (s *MemoryStore) evictExpired() {
	now := time.Now()

	s.mu.Lock()
	for id, entry := range s.entries {
		if now.After(entry.expiresAt) {
			delete(s.entries, id)
		}
	}
	s.mu.Unlock()
}
