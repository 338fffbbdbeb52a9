package approval

import (
	"errors"
	"fmt"
)

// Common approval errors that can be checked with errors.Is().
var (
	// ErrNotAuthorized is returned when a role other than the
	// configured human approver attempts a decision.
	ErrNotAuthorized = errors.New("role not authorized to decide")

	// ErrAlreadyDecided is returned when deciding a recommendation
	// that is no longer PENDING.
	ErrAlreadyDecided = errors.New("recommendation already decided")

	// ErrNotFound is returned for unknown recommendation IDs.
	ErrNotFound = errors.New("recommendation not found")

	// ErrInvalidDecision is returned for decisions other than
	// APPROVED or REJECTED.
	ErrInvalidDecision = errors.New("invalid decision")
)

// NotAuthorizedError is returned when a decision is attempted by a role
// other than the configured approver.
type NotAuthorizedError struct {
	// ActorRole is the role that attempted the decision.
	ActorRole string

	// RequiredRole is the configured human-approver role.
	RequiredRole string
}

// Error implements the error interface.
func (e *NotAuthorizedError) Error() string {
	return fmt.Sprintf("role %q may not decide recommendations (requires role %q)",
		e.ActorRole, e.RequiredRole)
}

// Is implements error matching for errors.Is().
func (e *NotAuthorizedError) Is(target error) bool {
	return target == ErrNotAuthorized
}

// AlreadyDecidedError is returned when the recommendation has left
// PENDING, including by lazy expiry.
type AlreadyDecidedError struct {
	// ID is the recommendation.
	ID string

	// Status is its terminal state.
	Status Status
}

// Error implements the error interface.
func (e *AlreadyDecidedError) Error() string {
	return fmt.Sprintf("recommendation %s is already %s", e.ID, e.Status)
}

// Is implements error matching for errors.Is().
func (e *AlreadyDecidedError) Is(target error) bool {
	return target == ErrAlreadyDecided
}
