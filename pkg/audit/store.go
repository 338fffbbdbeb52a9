package audit

import (
	"context"
	"fmt"
)

// Store persists chain entries. Implementations must be safe for
// concurrent use, but they are not required to serialize appends per
// scope; the Chain does that.
type Store interface {
	// AppendEntry inserts a chain entry. Inserting a (scope, sequence)
	// pair twice must fail.
	AppendEntry(ctx context.Context, entry *Entry) error

	// Entries returns all entries for a scope ordered by sequence
	// number ascending.
	Entries(ctx context.Context, scopeID string) ([]*Entry, error)

	// Head returns the newest entry for a scope, or nil when the
	// scope's chain is empty.
	Head(ctx context.Context, scopeID string) (*Entry, error)

	// Scopes returns the IDs of all scopes with at least one entry.
	Scopes(ctx context.Context) ([]string, error)

	// Close releases store resources.
	Close() error
}

// StoreError wraps a backend failure.
type StoreError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	return fmt.Sprintf("audit store %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *StoreError) Unwrap() error { return e.Err }

// Is implements error matching for errors.Is().
func (e *StoreError) Is(target error) bool {
	return target == ErrStorageUnavailable
}
