package costs

import (
	"errors"
	"fmt"
	"strings"
)

// Common cost tracking errors that can be checked with errors.Is().
var (
	// ErrUnknownBackend is returned when the pricing table has no
	// entry for a backend.
	ErrUnknownBackend = errors.New("backend not present in pricing table")

	// ErrBudgetExceeded is returned when a scope's period budget is
	// exhausted.
	ErrBudgetExceeded = errors.New("budget exceeded")

	// ErrStorageUnavailable is returned when ledger writes failed
	// after bounded retries. The usage is not yet accounted; the
	// caller owns eventual reconciliation.
	ErrStorageUnavailable = errors.New("cost storage unavailable")
)

// UnknownBackendError is returned when a backend has no pricing entry.
// Pricing lookups fail loudly so an unpriced backend is never treated
// as free.
type UnknownBackendError struct {
	// Backend is the unpriced backend.
	Backend string

	// KnownBackends lists the backends the table does price.
	KnownBackends []string
}

// Error implements the error interface.
func (e *UnknownBackendError) Error() string {
	if len(e.KnownBackends) == 0 {
		return fmt.Sprintf("backend %q not present in pricing table", e.Backend)
	}
	return fmt.Sprintf("backend %q not present in pricing table (priced backends: %s)",
		e.Backend, strings.Join(e.KnownBackends, ", "))
}

// Is implements error matching for errors.Is().
func (e *UnknownBackendError) Is(target error) bool {
	return target == ErrUnknownBackend
}

// BudgetExceededError is returned when recording would spend against an
// exhausted period budget.
type BudgetExceededError struct {
	// ScopeID is the scope whose budget is exhausted.
	ScopeID string

	// PeriodKey is the exhausted budget period.
	PeriodKey string

	// LimitAmount is the period's spend cap.
	LimitAmount float64

	// SpentAmount is the spend already recorded.
	SpentAmount float64

	// RequestedAmount is the amount that was rejected.
	RequestedAmount float64
}

// Error implements the error interface.
func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("daily budget exceeded for scope %q (period %s): spent %.4f of %.4f, rejected %.4f",
		e.ScopeID, e.PeriodKey, e.SpentAmount, e.LimitAmount, e.RequestedAmount)
}

// Is implements error matching for errors.Is().
func (e *BudgetExceededError) Is(target error) bool {
	return target == ErrBudgetExceeded
}

// UnaccountedUsageError is returned when cost was incurred but the
// ledger write could not be completed after bounded retries. The core
// never fabricates a cost entry it could not persist; the caller must
// reconcile the reported usage later.
type UnaccountedUsageError struct {
	// ScopeID and OperationID identify the unaccounted usage.
	ScopeID     string
	OperationID string

	// CostAmount is the computed cost that was not persisted.
	CostAmount float64

	// Err is the final storage error.
	Err error
}

// Error implements the error interface.
func (e *UnaccountedUsageError) Error() string {
	return fmt.Sprintf("usage for scope %q operation %q (%.4f) not yet accounted: %v",
		e.ScopeID, e.OperationID, e.CostAmount, e.Err)
}

// Unwrap returns the underlying error.
func (e *UnaccountedUsageError) Unwrap() error { return e.Err }

// Is implements error matching for errors.Is().
func (e *UnaccountedUsageError) Is(target error) bool {
	return target == ErrStorageUnavailable
}
