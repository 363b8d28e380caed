package memory

import (
	"context"
	"sync"
)

// SeenStore is the in-memory seen-set. Append-only for the lifetime of
// the process; a restart forgets everything and records announce again.
type SeenStore struct {
	mu   sync.RWMutex
	seen map[string]struct{}
}

// NewSeenStore creates an empty seen-set.
func NewSeenStore() *SeenStore {
	return &SeenStore{
		seen: make(map[string]struct{}),
	}
}

func seenKey(childKey, recordID string) string {
	return childKey + "\x00" + recordID
}

// Contains reports whether the record was already seen for the child.
func (s *SeenStore) Contains(ctx context.Context, childKey, recordID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.seen[seenKey(childKey, recordID)]
	return ok, nil
}

// Add marks the record as seen for the child.
func (s *SeenStore) Add(ctx context.Context, childKey, recordID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen[seenKey(childKey, recordID)] = struct{}{}
	return nil
}

// Len returns the number of seen pairs.
func (s *SeenStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.seen)
}
