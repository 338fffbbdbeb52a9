package routing

import (
	"errors"
	"fmt"
	"strings"

	"mercator-hq/saturn/pkg/costs"
)

// Common routing errors that can be checked with errors.Is().
var (
	// ErrUnknownOperation is returned when no route exists for the
	// requested operation, neither scope-specific nor global default.
	ErrUnknownOperation = errors.New("operation not in routing table")

	// ErrToggleDisabled is returned when the toggle gating an operation
	// reads disabled. The router fails closed.
	ErrToggleDisabled = errors.New("gating toggle disabled")

	// ErrRouteLookupTimeout is returned when the table/budget lookups
	// exceed the routing deadline. The router fails closed.
	ErrRouteLookupTimeout = errors.New("route lookup timed out")
)

// UnknownOperationError is returned when the requested operation has no
// route. Callers must not silently default to a possibly expensive
// backend.
type UnknownOperationError struct {
	// ScopeID is the requesting scope.
	ScopeID string

	// OperationID is the unrouted operation.
	OperationID string

	// KnownOperations lists the operations routable for the scope.
	KnownOperations []string
}

// Error implements the error interface.
func (e *UnknownOperationError) Error() string {
	if len(e.KnownOperations) == 0 {
		return fmt.Sprintf("operation %q has no route for scope %q", e.OperationID, e.ScopeID)
	}
	return fmt.Sprintf("operation %q has no route for scope %q (known operations: %s)",
		e.OperationID, e.ScopeID, strings.Join(e.KnownOperations, ", "))
}

// Is implements error matching for errors.Is().
func (e *UnknownOperationError) Is(target error) bool {
	return target == ErrUnknownOperation
}

// ToggleDisabledError is returned when the feature toggle gating an
// operation is off (or unknown, which reads as off).
type ToggleDisabledError struct {
	// Toggle is the gating toggle name.
	Toggle string

	// OperationID is the operation that was denied.
	OperationID string
}

// Error implements the error interface.
func (e *ToggleDisabledError) Error() string {
	return fmt.Sprintf("operation %q denied: toggle %q is disabled", e.OperationID, e.Toggle)
}

// Is implements error matching for errors.Is().
func (e *ToggleDisabledError) Is(target error) bool {
	return target == ErrToggleDisabled
}

// BudgetExceededError is returned when no configured backend's
// estimated cost fits the scope's remaining budget. It matches
// costs.ErrBudgetExceeded so callers check a single sentinel for both
// routing-time and record-time budget rejections.
type BudgetExceededError struct {
	// ScopeID is the scope whose budget is exhausted.
	ScopeID string

	// OperationID is the operation that could not be routed.
	OperationID string

	// PeriodKey is the budget period consulted.
	PeriodKey string

	// Remaining is the budget left in the period.
	Remaining float64

	// AttemptedBackends lists the backends whose estimates were
	// rejected, in configured order.
	AttemptedBackends []string
}

// Error implements the error interface.
func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("no backend fits remaining daily budget %.4f for scope %q operation %q (attempted: %s)",
		e.Remaining, e.ScopeID, e.OperationID, strings.Join(e.AttemptedBackends, ", "))
}

// Is implements error matching for errors.Is().
func (e *BudgetExceededError) Is(target error) bool {
	return target == costs.ErrBudgetExceeded
}
