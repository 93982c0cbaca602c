// Package cache stores task outputs keyed by execution fingerprint so
// identical work is reused across runs instead of re-executed.
package cache

import (
	"context"
	"sync"

	"github.com/shankarkarande/farmvibes-ai/pkg/models"
)

// Store is the cache backend consumed by the scheduler. Implementations
// must be safe for concurrent callers; a Get racing a Put for the same
// fingerprint observes either absence or the complete artifact set,
// never a partial entry.
type Store interface {
	Get(ctx context.Context, fingerprint string) (models.ArtifactSet, bool, error)
	Put(ctx context.Context, fingerprint string, outputs models.ArtifactSet) error
}

// MemoryStore is a process-local Store for embedded use and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]models.ArtifactSet
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]models.ArtifactSet)}
}

func (s *MemoryStore) Get(_ context.Context, fingerprint string) (models.ArtifactSet, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	outputs, ok := s.entries[fingerprint]
	if !ok {
		return nil, false, nil
	}
	return outputs, true, nil
}

func (s *MemoryStore) Put(_ context.Context, fingerprint string, outputs models.ArtifactSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[fingerprint] = outputs
	return nil
}

// Len reports the number of cached entries.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
