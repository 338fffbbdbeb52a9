package audit

import (
	"errors"
	"fmt"
	"time"
)

// Entry is one link in a scope's audit chain. Entries are immutable once
// written.
type Entry struct {
	// ScopeID is the isolation boundary this entry belongs to.
	ScopeID string

	// SequenceNo is the position in the scope's chain, starting at 0
	// with no gaps.
	SequenceNo uint64

	// Kind describes the recorded event (e.g., "cost.recorded",
	// "approval.decided", "toggle.changed").
	Kind string

	// Payload is the serialized event body.
	Payload []byte

	// PayloadHash is the hex-encoded SHA-256 hash of Payload.
	PayloadHash string

	// PrevEntryHash is the EntryHash of the previous entry, or the
	// scope's genesis hash for sequence 0.
	PrevEntryHash string

	// EntryHash is the hex-encoded SHA-256 hash covering
	// (PrevEntryHash, PayloadHash, SequenceNo, ScopeID).
	EntryHash string

	// OccurredAt is when the entry was appended.
	OccurredAt time.Time
}

// Report is the result of verifying one scope's chain.
type Report struct {
	// ScopeID is the verified scope.
	ScopeID string

	// Valid is true when every stored entry hash matches its
	// recomputation in sequence order.
	Valid bool

	// BrokenAtSequence is the first sequence number where the chain
	// diverged. -1 when the chain is valid.
	BrokenAtSequence int64

	// Reason describes the divergence (hash mismatch, broken link,
	// sequence gap). Empty when valid.
	Reason string

	// Length is the number of entries verified.
	Length int

	// HeadHash is the entry hash of the newest entry, or the genesis
	// hash for an empty chain.
	HeadHash string
}

// Common audit errors that can be checked with errors.Is().
var (
	// ErrChainVerificationFailed indicates a scope's chain no longer
	// recomputes. This is fatal to trust in the scope's history.
	ErrChainVerificationFailed = errors.New("audit chain verification failed")

	// ErrStorageUnavailable indicates the chain store could not serve
	// the request.
	ErrStorageUnavailable = errors.New("audit storage unavailable")
)

// VerificationError carries the failing report for operator surfacing.
type VerificationError struct {
	Report *Report
}

// Error implements the error interface.
func (e *VerificationError) Error() string {
	return fmt.Sprintf("audit chain for scope %q broken at sequence %d: %s",
		e.Report.ScopeID, e.Report.BrokenAtSequence, e.Report.Reason)
}

// Is implements error matching for errors.Is().
func (e *VerificationError) Is(target error) bool {
	return target == ErrChainVerificationFailed
}
