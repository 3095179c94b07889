package repository

import (
	"context"
	"sync"
	"time"

	"github.com/okian/botpulse/pkg/metrics"
)

// MemoryStore keeps entries in a map. It is used when no cache path is set.
type MemoryStore struct {
	settings
	mu      sync.RWMutex
	entries map[string]Entry
	closed  bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{settings: defaultSettings(), entries: make(map[string]Entry)}
	for _, opt := range opts {
		opt(&s.settings)
	}
	return s
}

// Get returns the entry for key.
func (s *MemoryStore) Get(_ context.Context, key string) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return Entry{}, ErrClosed
	}
	e, ok := s.entries[key]
	if !ok {
		return Entry{}, ErrNotFound
	}
	e.Payload = append([]byte(nil), e.Payload...)
	return e, nil
}

// Put stores a copy of payload.
func (s *MemoryStore) Put(_ context.Context, key string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.entries[key] = Entry{Key: key, Payload: append([]byte(nil), payload...), FetchedAt: s.now()}
	metrics.UpdateCacheEntries(len(s.entries))
	return nil
}

// Purge removes entries fetched before olderThan.
func (s *MemoryStore) Purge(_ context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	n := 0
	for k, e := range s.entries {
		if e.FetchedAt.Before(olderThan) {
			delete(s.entries, k)
			n++
		}
	}
	metrics.UpdateCacheEntries(len(s.entries))
	return n, nil
}

// Count returns the number of entries.
func (s *MemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrClosed
	}
	return len(s.entries), nil
}

// Close drops all entries.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.entries = nil
	return nil
}
