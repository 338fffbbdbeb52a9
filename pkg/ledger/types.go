package ledger

import "time"

// CostEntry is the immutable record of one completed operation's spend.
// Entries are append-only: once written they are never mutated or deleted.
// SequenceNo links the entry to its audit chain position so that the cost
// ledger and the tamper-evident chain can be cross-checked.
type CostEntry struct {
	// ID is a unique identifier for this entry (UUID).
	ID string

	// ScopeID is the isolation boundary this entry belongs to.
	ScopeID string

	// OperationID identifies the operation type that incurred the cost.
	OperationID string

	// Backend is the model backend that served the operation.
	Backend string

	// InputUnits is the number of input units consumed (e.g., tokens).
	InputUnits int64

	// OutputUnits is the number of output units produced.
	OutputUnits int64

	// CostAmount is the computed cost in the ledger currency (USD).
	CostAmount float64

	// Succeeded records whether the operation itself succeeded.
	// Failed operations still cost money and are still recorded.
	Succeeded bool

	// PeriodKey is the budget period this entry was charged against.
	PeriodKey string

	// SequenceNo is the audit chain sequence number this entry was
	// recorded under.
	SequenceNo uint64

	// OccurredAt is when the usage was recorded.
	OccurredAt time.Time
}

// BudgetCounter tracks cumulative spend for one (scope, period) pair.
// SpentAmount is monotonically non-decreasing within a period and is only
// ever updated together with a corresponding CostEntry.
type BudgetCounter struct {
	// ScopeID is the isolation boundary this counter belongs to.
	ScopeID string

	// PeriodKey identifies the budget period (e.g., "2026-08-24" for a
	// UTC calendar day).
	PeriodKey string

	// SpentAmount is the cumulative spend recorded in this period.
	SpentAmount float64

	// LimitAmount is the spend cap for this period.
	LimitAmount float64

	// WarnThreshold is the fraction of LimitAmount at which warning
	// notifications fire (e.g., 0.8 for 80%).
	WarnThreshold float64

	// UpdatedAt is when the counter was last incremented.
	UpdatedAt time.Time
}

// Remaining returns the budget left in this period, never negative.
func (c *BudgetCounter) Remaining() float64 {
	remaining := c.LimitAmount - c.SpentAmount
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Exhausted reports whether the counter has reached or passed its limit.
func (c *BudgetCounter) Exhausted() bool {
	return c.LimitAmount > 0 && c.SpentAmount >= c.LimitAmount
}

// BudgetPolicy is the configured spend policy applied when a counter is
// implicitly created on first write in a new period.
type BudgetPolicy struct {
	// LimitAmount is the per-period spend cap. Zero means unlimited.
	LimitAmount float64

	// WarnThreshold is the warning fraction of the limit (0 disables).
	WarnThreshold float64
}

// ToggleRow is the persisted form of a feature toggle.
type ToggleRow struct {
	Name         string
	Enabled      bool
	Locked       bool
	ControlledBy string
	UpdatedAt    time.Time
}

// RecommendationRow is the persisted form of a proposed change awaiting
// (or past) human decision. Terminal rows are never updated again.
type RecommendationRow struct {
	ID              string
	ScopeID         string
	ProposedChange  []byte // serialized change payload
	EstimatedImpact float64
	Status          string
	ProposedBy      string
	DecidedBy       string
	DecidedAt       time.Time // zero when undecided
	ExpiresAt       time.Time
	CreatedAt       time.Time
}
