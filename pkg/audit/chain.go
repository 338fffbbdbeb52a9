package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Chain appends and verifies tamper-evident audit entries.
//
// Appends are serialized per scope: the chain holds a per-scope mutex
// across the head read and the entry insert so sequence numbers never
// interleave. Different scopes append concurrently without contention.
type Chain struct {
	store  Store
	logger *slog.Logger
	clock  func() time.Time

	// scopeLocks serializes appends within one scope.
	mu         sync.Mutex
	scopeLocks map[string]*sync.Mutex
}

// ChainOption configures a Chain.
type ChainOption func(*Chain)

// WithClock overrides the chain's time source. Used in tests.
func WithClock(clock func() time.Time) ChainOption {
	return func(c *Chain) { c.clock = clock }
}

// NewChain creates an audit chain over the given store.
func NewChain(store Store, opts ...ChainOption) *Chain {
	c := &Chain{
		store:      store,
		logger:     slog.Default().With("component", "audit.chain"),
		clock:      func() time.Time { return time.Now().UTC() },
		scopeLocks: make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Chain) scopeLock(scopeID string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()

	lock, ok := c.scopeLocks[scopeID]
	if !ok {
		lock = &sync.Mutex{}
		c.scopeLocks[scopeID] = lock
	}
	return lock
}

// Append writes the next entry in the scope's chain and returns it.
// The payload is hashed, linked to the previous entry hash (or the
// scope's genesis hash for an empty chain), and persisted.
func (c *Chain) Append(ctx context.Context, scopeID, kind string, payload []byte) (*Entry, error) {
	lock := c.scopeLock(scopeID)
	lock.Lock()
	defer lock.Unlock()

	head, err := c.store.Head(ctx, scopeID)
	if err != nil {
		return nil, err
	}

	prevHash := GenesisHash(scopeID)
	var sequenceNo uint64
	if head != nil {
		prevHash = head.EntryHash
		sequenceNo = head.SequenceNo + 1
	}

	payloadHash := HashPayload(payload)
	entry := &Entry{
		ScopeID:       scopeID,
		SequenceNo:    sequenceNo,
		Kind:          kind,
		Payload:       payload,
		PayloadHash:   payloadHash,
		PrevEntryHash: prevHash,
		EntryHash:     ComputeEntryHash(prevHash, payloadHash, sequenceNo, scopeID),
		OccurredAt:    c.clock(),
	}

	if err := c.store.AppendEntry(ctx, entry); err != nil {
		return nil, err
	}

	c.logger.Debug("audit entry appended",
		"scope_id", scopeID,
		"sequence_no", sequenceNo,
		"kind", kind,
	)

	return entry, nil
}

// Verify replays all entries for a scope in sequence order, recomputing
// every hash. It returns a report with the first broken sequence number
// on divergence. An empty chain is valid.
func (c *Chain) Verify(ctx context.Context, scopeID string) (*Report, error) {
	entries, err := c.store.Entries(ctx, scopeID)
	if err != nil {
		return nil, err
	}

	report := &Report{
		ScopeID:          scopeID,
		Valid:            true,
		BrokenAtSequence: -1,
		Length:           len(entries),
		HeadHash:         GenesisHash(scopeID),
	}

	prevHash := GenesisHash(scopeID)
	var expectedSeq uint64

	for _, entry := range entries {
		if entry.SequenceNo != expectedSeq {
			report.Valid = false
			report.BrokenAtSequence = int64(expectedSeq)
			report.Reason = "sequence gap: a chain entry is missing"
			return report, nil
		}

		if entry.PrevEntryHash != prevHash {
			report.Valid = false
			report.BrokenAtSequence = int64(entry.SequenceNo)
			report.Reason = "previous-hash link does not match preceding entry"
			return report, nil
		}

		if HashPayload(entry.Payload) != entry.PayloadHash {
			report.Valid = false
			report.BrokenAtSequence = int64(entry.SequenceNo)
			report.Reason = "payload hash does not match stored payload"
			return report, nil
		}

		recomputed := ComputeEntryHash(entry.PrevEntryHash, entry.PayloadHash, entry.SequenceNo, entry.ScopeID)
		if recomputed != entry.EntryHash {
			report.Valid = false
			report.BrokenAtSequence = int64(entry.SequenceNo)
			report.Reason = "entry hash does not recompute"
			return report, nil
		}

		prevHash = entry.EntryHash
		expectedSeq++
	}

	report.HeadHash = prevHash
	return report, nil
}

// VerifyAll verifies every scope with recorded entries and returns the
// per-scope reports keyed by scope ID.
func (c *Chain) VerifyAll(ctx context.Context) (map[string]*Report, error) {
	scopes, err := c.store.Scopes(ctx)
	if err != nil {
		return nil, err
	}

	reports := make(map[string]*Report, len(scopes))
	for _, scopeID := range scopes {
		report, err := c.Verify(ctx, scopeID)
		if err != nil {
			return nil, err
		}
		reports[scopeID] = report
	}
	return reports, nil
}

// Entries returns the scope's chain in sequence order.
func (c *Chain) Entries(ctx context.Context, scopeID string) ([]*Entry, error) {
	return c.store.Entries(ctx, scopeID)
}

// Head returns the newest entry for a scope, or nil for an empty chain.
func (c *Chain) Head(ctx context.Context, scopeID string) (*Entry, error) {
	return c.store.Head(ctx, scopeID)
}
