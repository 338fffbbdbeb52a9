package audit

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore implements Store using in-memory slices per scope.
// Intended for tests and ephemeral deployments.
type MemoryStore struct {
	mu     sync.RWMutex
	chains map[string][]*Entry
}

// NewMemoryStore creates an empty in-memory chain store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{chains: make(map[string][]*Entry)}
}

// AppendEntry implements Store.
func (s *MemoryStore) AppendEntry(ctx context.Context, entry *Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	chain := s.chains[entry.ScopeID]
	for _, existing := range chain {
		if existing.SequenceNo == entry.SequenceNo {
			return fmt.Errorf("scope %s sequence %d already written", entry.ScopeID, entry.SequenceNo)
		}
	}

	copied := *entry
	s.chains[entry.ScopeID] = append(chain, &copied)
	return nil
}

// Entries implements Store.
func (s *MemoryStore) Entries(ctx context.Context, scopeID string) ([]*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	chain := s.chains[scopeID]
	entries := make([]*Entry, 0, len(chain))
	for _, e := range chain {
		copied := *e
		entries = append(entries, &copied)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].SequenceNo < entries[j].SequenceNo
	})
	return entries, nil
}

// Head implements Store.
func (s *MemoryStore) Head(ctx context.Context, scopeID string) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	chain := s.chains[scopeID]
	if len(chain) == 0 {
		return nil, nil
	}

	head := chain[0]
	for _, e := range chain[1:] {
		if e.SequenceNo > head.SequenceNo {
			head = e
		}
	}
	copied := *head
	return &copied, nil
}

// Scopes implements Store.
func (s *MemoryStore) Scopes(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	scopes := make([]string, 0, len(s.chains))
	for scopeID := range s.chains {
		scopes = append(scopes, scopeID)
	}
	sort.Strings(scopes)
	return scopes, nil
}

// Tamper overwrites a stored entry in place. It exists only so integrity
// tests can simulate mutation of the underlying storage.
func (s *MemoryStore) Tamper(scopeID string, sequenceNo uint64, mutate func(*Entry)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.chains[scopeID] {
		if e.SequenceNo == sequenceNo {
			mutate(e)
			return true
		}
	}
	return false
}

// Remove deletes a stored entry. Like Tamper, it exists for integrity
// tests only.
func (s *MemoryStore) Remove(scopeID string, sequenceNo uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	chain := s.chains[scopeID]
	for i, e := range chain {
		if e.SequenceNo == sequenceNo {
			s.chains[scopeID] = append(chain[:i:i], chain[i+1:]...)
			return true
		}
	}
	return false
}

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }
