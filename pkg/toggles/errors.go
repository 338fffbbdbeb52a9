package toggles

import (
	"errors"
	"fmt"
)

// Common toggle errors that can be checked with errors.Is().
var (
	// ErrToggleLocked is returned when a non-approver role attempts to
	// flip a locked toggle.
	ErrToggleLocked = errors.New("toggle is locked")

	// ErrUnknownToggle is returned when the named toggle is not
	// registered.
	ErrUnknownToggle = errors.New("unknown toggle")
)

// LockedError is returned when a locked toggle mutation is attempted by
// a role other than the designated human approver.
type LockedError struct {
	// Name is the locked toggle.
	Name string

	// ActorRole is the role that attempted the mutation.
	ActorRole string

	// RequiredRole is the only role allowed to flip the toggle.
	RequiredRole string
}

// Error implements the error interface.
func (e *LockedError) Error() string {
	return fmt.Sprintf("toggle %q is locked: role %q may not change it (requires role %q)",
		e.Name, e.ActorRole, e.RequiredRole)
}

// Is implements error matching for errors.Is().
func (e *LockedError) Is(target error) bool {
	return target == ErrToggleLocked
}

// UnknownToggleError is returned for operations on unregistered toggles.
type UnknownToggleError struct {
	// Name is the unregistered toggle.
	Name string
}

// Error implements the error interface.
func (e *UnknownToggleError) Error() string {
	return fmt.Sprintf("toggle %q is not registered", e.Name)
}

// Is implements error matching for errors.Is().
func (e *UnknownToggleError) Is(target error) bool {
	return target == ErrUnknownToggle
}
