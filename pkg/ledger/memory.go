package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore implements Store using in-memory maps. All data is lost when
// the process exits. MemoryStore is thread-safe; a single mutex serializes
// budget mutations, which makes IncrementIfUnder trivially atomic.
type MemoryStore struct {
	mu sync.RWMutex

	// budgets maps "scope\x00period" to counters.
	budgets map[string]*BudgetCounter

	// costs maps "scope\x00period" to entries in insertion order.
	costs map[string][]*CostEntry

	// costIDs tracks written entry IDs to enforce append-only inserts.
	costIDs map[string]struct{}

	toggles map[string]*ToggleRow

	recommendations map[string]*RecommendationRow

	// recsByScope keeps creation order per scope.
	recsByScope map[string][]string

	closed bool
}

// NewMemoryStore creates an empty in-memory ledger store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		budgets:         make(map[string]*BudgetCounter),
		costs:           make(map[string][]*CostEntry),
		costIDs:         make(map[string]struct{}),
		toggles:         make(map[string]*ToggleRow),
		recommendations: make(map[string]*RecommendationRow),
		recsByScope:     make(map[string][]string),
	}
}

func budgetKey(scopeID, periodKey string) string {
	return scopeID + "\x00" + periodKey
}

// IncrementIfUnder implements Store.
func (s *MemoryStore) IncrementIfUnder(ctx context.Context, scopeID, periodKey string, amount float64, policy BudgetPolicy) (bool, *BudgetCounter, error) {
	if err := ctx.Err(); err != nil {
		return false, nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, nil, &StorageError{Op: "increment", Err: fmt.Errorf("store closed")}
	}

	key := budgetKey(scopeID, periodKey)
	counter, ok := s.budgets[key]
	if !ok {
		// Implicit creation on first write in a new period.
		counter = &BudgetCounter{
			ScopeID:       scopeID,
			PeriodKey:     periodKey,
			LimitAmount:   policy.LimitAmount,
			WarnThreshold: policy.WarnThreshold,
		}
		s.budgets[key] = counter
	}

	if counter.Exhausted() {
		snapshot := *counter
		return false, &snapshot, nil
	}

	counter.SpentAmount += amount
	counter.UpdatedAt = time.Now().UTC()

	snapshot := *counter
	return true, &snapshot, nil
}

// GetBudget implements Store.
func (s *MemoryStore) GetBudget(ctx context.Context, scopeID, periodKey string, policy BudgetPolicy) (*BudgetCounter, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if counter, ok := s.budgets[budgetKey(scopeID, periodKey)]; ok {
		snapshot := *counter
		return &snapshot, nil
	}

	return &BudgetCounter{
		ScopeID:       scopeID,
		PeriodKey:     periodKey,
		LimitAmount:   policy.LimitAmount,
		WarnThreshold: policy.WarnThreshold,
	}, nil
}

// AppendCost implements Store.
func (s *MemoryStore) AppendCost(ctx context.Context, entry *CostEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.costIDs[entry.ID]; exists {
		return fmt.Errorf("cost entry %s already written (append-only)", entry.ID)
	}

	copied := *entry
	key := budgetKey(entry.ScopeID, entry.PeriodKey)
	s.costs[key] = append(s.costs[key], &copied)
	s.costIDs[entry.ID] = struct{}{}
	return nil
}

// CostEntries implements Store.
func (s *MemoryStore) CostEntries(ctx context.Context, scopeID, periodKey string) ([]*CostEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.costs[budgetKey(scopeID, periodKey)]
	entries := make([]*CostEntry, 0, len(stored))
	for _, e := range stored {
		copied := *e
		entries = append(entries, &copied)
	}
	return entries, nil
}

// SaveToggle implements Store.
func (s *MemoryStore) SaveToggle(ctx context.Context, row *ToggleRow) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *row
	s.toggles[row.Name] = &copied
	return nil
}

// ListToggles implements Store.
func (s *MemoryStore) ListToggles(ctx context.Context) ([]*ToggleRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := make([]*ToggleRow, 0, len(s.toggles))
	for _, row := range s.toggles {
		copied := *row
		rows = append(rows, &copied)
	}
	return rows, nil
}

// SaveRecommendation implements Store.
func (s *MemoryStore) SaveRecommendation(ctx context.Context, row *RecommendationRow) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.recommendations[row.ID]; ok {
		if terminalStatus(existing.Status) {
			return fmt.Errorf("recommendation %s is %s: %w", row.ID, existing.Status, ErrTerminalRow)
		}
	} else {
		s.recsByScope[row.ScopeID] = append(s.recsByScope[row.ScopeID], row.ID)
	}

	copied := *row
	s.recommendations[row.ID] = &copied
	return nil
}

// GetRecommendation implements Store.
func (s *MemoryStore) GetRecommendation(ctx context.Context, id string) (*RecommendationRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.recommendations[id]
	if !ok {
		return nil, fmt.Errorf("recommendation %s: %w", id, ErrNotFound)
	}
	copied := *row
	return &copied, nil
}

// ListRecommendations implements Store.
func (s *MemoryStore) ListRecommendations(ctx context.Context, scopeID string) ([]*RecommendationRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.recsByScope[scopeID]
	rows := make([]*RecommendationRow, 0, len(ids))
	for _, id := range ids {
		if row, ok := s.recommendations[id]; ok {
			copied := *row
			rows = append(rows, &copied)
		}
	}
	return rows, nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
