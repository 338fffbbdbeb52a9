package ledger

import (
	"context"
	"errors"
	"fmt"
)

// Common store errors that can be checked with errors.Is().
var (
	// ErrStorageUnavailable indicates the backend could not serve the
	// request. Callers may retry with backoff.
	ErrStorageUnavailable = errors.New("ledger storage unavailable")

	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("ledger row not found")

	// ErrTerminalRow indicates an attempt to update a row that has
	// reached a terminal, immutable state.
	ErrTerminalRow = errors.New("row is terminal and immutable")
)

// StorageError wraps a backend failure so callers can distinguish
// infrastructure faults from domain rejections.
type StorageError struct {
	// Op is the store operation that failed.
	Op string

	// Err is the underlying backend error.
	Err error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return fmt.Sprintf("ledger %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *StorageError) Unwrap() error { return e.Err }

// Is implements error matching for errors.Is().
func (e *StorageError) Is(target error) bool {
	return target == ErrStorageUnavailable
}

// Store is the ledger storage contract. Implementations must be safe for
// concurrent use.
//
// IncrementIfUnder is the linearization point for all budget decisions:
// it must atomically reject when the counter has already reached its
// limit, and otherwise apply the increment, with respect to all other
// concurrent calls for the same (scope, period).
type Store interface {
	// IncrementIfUnder atomically increments the budget counter for
	// (scopeID, periodKey) by amount unless the counter has already
	// reached its limit. A counter that does not exist yet is created
	// with zero spend under the given policy.
	//
	// Returns applied=false (and the unmodified counter) when the
	// counter was already exhausted. A single increment may overshoot
	// the limit; the next call then sees an exhausted counter.
	IncrementIfUnder(ctx context.Context, scopeID, periodKey string, amount float64, policy BudgetPolicy) (applied bool, counter *BudgetCounter, err error)

	// GetBudget returns the budget counter for (scopeID, periodKey).
	// A period with no recorded spend yet is reported as a zero counter
	// under the given policy, not as an error.
	GetBudget(ctx context.Context, scopeID, periodKey string, policy BudgetPolicy) (*BudgetCounter, error)

	// AppendCost inserts a cost entry. Entries are append-only; an
	// entry ID can never be written twice.
	AppendCost(ctx context.Context, entry *CostEntry) error

	// CostEntries returns all cost entries for (scopeID, periodKey) in
	// insertion order.
	CostEntries(ctx context.Context, scopeID, periodKey string) ([]*CostEntry, error)

	// SaveToggle inserts or updates a toggle row.
	SaveToggle(ctx context.Context, row *ToggleRow) error

	// ListToggles returns all persisted toggle rows.
	ListToggles(ctx context.Context) ([]*ToggleRow, error)

	// SaveRecommendation inserts or updates a recommendation row.
	// Updating a row already in a terminal status fails with
	// ErrTerminalRow.
	SaveRecommendation(ctx context.Context, row *RecommendationRow) error

	// GetRecommendation returns the recommendation row by ID, or
	// ErrNotFound.
	GetRecommendation(ctx context.Context, id string) (*RecommendationRow, error)

	// ListRecommendations returns all recommendation rows for a scope
	// in creation order.
	ListRecommendations(ctx context.Context, scopeID string) ([]*RecommendationRow, error)

	// Close releases backend resources. The store must not be used
	// after Close.
	Close() error
}

// terminalStatus reports whether a recommendation status string is
// terminal. Kept here so both backends enforce the same immutability rule.
func terminalStatus(status string) bool {
	switch status {
	case "APPROVED", "REJECTED", "EXPIRED":
		return true
	}
	return false
}
