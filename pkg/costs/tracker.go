package costs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/google/uuid"

	"mercator-hq/saturn/pkg/audit"
	"mercator-hq/saturn/pkg/ledger"
	"mercator-hq/saturn/pkg/notify"
)

// UsageReport is the caller-supplied record of one completed operation.
type UsageReport struct {
	// ScopeID is the isolation boundary the usage belongs to.
	ScopeID string

	// OperationID identifies the operation type.
	OperationID string

	// Backend is the model backend that served the operation.
	Backend string

	// InputUnits and OutputUnits are the actual usage metrics reported
	// by the provider client.
	InputUnits  int64
	OutputUnits int64

	// Succeeded records whether the operation itself succeeded. Failed
	// operations still cost money and are still recorded.
	Succeeded bool
}

// BudgetStatus is the result of a pure budget read.
type BudgetStatus struct {
	// Allowed is true when the queried amount fits the remaining
	// budget for the period.
	Allowed bool

	// Remaining is the budget left in the period. Meaningless when
	// Unlimited.
	Remaining float64

	// Warn is true when the queried amount would cross the configured
	// warning threshold.
	Warn bool

	// Unlimited is true when the scope has no spend cap configured.
	Unlimited bool

	// SpentAmount and LimitAmount mirror the underlying counter.
	SpentAmount float64
	LimitAmount float64

	// PeriodKey is the period the status describes.
	PeriodKey string

	// Reason explains a rejection in user-facing terms. Empty when
	// allowed.
	Reason string
}

// TrackerConfig configures the cost tracker.
type TrackerConfig struct {
	// DefaultPolicy applies to scopes with no explicit budget policy.
	DefaultPolicy ledger.BudgetPolicy

	// ScopePolicies maps scope IDs to their budget policies.
	ScopePolicies map[string]ledger.BudgetPolicy

	// StorageRetries bounds retry attempts on ledger failures.
	// Default: 4
	StorageRetries uint
}

// Tracker computes operation cost and maintains per-scope budget
// counters. It is the only writer of budget state.
type Tracker struct {
	store    ledger.Store
	chain    *audit.Chain
	pricing  *Pricing
	config   TrackerConfig
	notifier notify.Notifier
	logger   *slog.Logger
	clock    func() time.Time
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithTrackerClock overrides the tracker's time source. Used in tests.
func WithTrackerClock(clock func() time.Time) TrackerOption {
	return func(t *Tracker) { t.clock = clock }
}

// NewTracker creates a cost tracker.
func NewTracker(store ledger.Store, chain *audit.Chain, pricing *Pricing, cfg TrackerConfig, notifier notify.Notifier, opts ...TrackerOption) *Tracker {
	if cfg.StorageRetries == 0 {
		cfg.StorageRetries = 4
	}
	if notifier == nil {
		notifier = notify.NopNotifier{}
	}

	t := &Tracker{
		store:    store,
		chain:    chain,
		pricing:  pricing,
		config:   cfg,
		notifier: notifier,
		logger:   slog.Default().With("component", "costs.tracker"),
		clock:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Policy returns the budget policy for a scope.
func (t *Tracker) Policy(scopeID string) ledger.BudgetPolicy {
	if policy, ok := t.config.ScopePolicies[scopeID]; ok {
		return policy
	}
	return t.config.DefaultPolicy
}

// RecordUsage computes the cost of the reported usage, atomically
// increments the scope's budget counter, and appends the cost entry to
// the audit chain and the cost ledger.
//
// The budget increment is the linearization point: a call that observes
// an exhausted counter is rejected with BudgetExceededError before any
// entry is written. Once the increment has been applied the record is
// completed even if the caller's context is cancelled; ledger failures
// after that point are retried with backoff and finally surfaced as
// UnaccountedUsageError for the caller to reconcile.
func (t *Tracker) RecordUsage(ctx context.Context, report UsageReport) (*ledger.CostEntry, error) {
	cost, err := t.pricing.Estimate(report.Backend, report.InputUnits, report.OutputUnits)
	if err != nil {
		return nil, err
	}

	policy := t.Policy(report.ScopeID)
	periodKey := PeriodKey(t.clock())

	var applied bool
	var counter *ledger.BudgetCounter
	err = t.withRetry(ctx, "budget increment", func(mctx context.Context) error {
		var attemptErr error
		applied, counter, attemptErr = t.store.IncrementIfUnder(mctx, report.ScopeID, periodKey, cost, policy)
		return attemptErr
	})
	if err != nil {
		return nil, &UnaccountedUsageError{
			ScopeID:     report.ScopeID,
			OperationID: report.OperationID,
			CostAmount:  cost,
			Err:         err,
		}
	}

	if !applied {
		rejection := &BudgetExceededError{
			ScopeID:         report.ScopeID,
			PeriodKey:       periodKey,
			LimitAmount:     counter.LimitAmount,
			SpentAmount:     counter.SpentAmount,
			RequestedAmount: cost,
		}

		t.notifier.Notify(notify.Event{
			Kind:    notify.KindBudgetExceeded,
			ScopeID: report.ScopeID,
			Summary: "Period budget exhausted, usage recording rejected",
			Fields: map[string]string{
				"period":    periodKey,
				"operation": report.OperationID,
				"spent":     fmt.Sprintf("%.4f", counter.SpentAmount),
				"limit":     fmt.Sprintf("%.4f", counter.LimitAmount),
				"rejected":  fmt.Sprintf("%.4f", cost),
			},
		})

		return nil, rejection
	}

	entry := &ledger.CostEntry{
		ID:          uuid.New().String(),
		ScopeID:     report.ScopeID,
		OperationID: report.OperationID,
		Backend:     report.Backend,
		InputUnits:  report.InputUnits,
		OutputUnits: report.OutputUnits,
		CostAmount:  cost,
		Succeeded:   report.Succeeded,
		PeriodKey:   periodKey,
		OccurredAt:  t.clock(),
	}

	// The counter is already incremented: finish the record even if the
	// caller goes away. Partial failures below are retried as a whole.
	detached := context.WithoutCancel(ctx)

	err = t.withRetry(detached, "audit append", func(mctx context.Context) error {
		payload, marshalErr := json.Marshal(entry)
		if marshalErr != nil {
			return retry.Unrecoverable(marshalErr)
		}
		auditEntry, appendErr := t.chain.Append(mctx, report.ScopeID, "cost.recorded", payload)
		if appendErr != nil {
			return appendErr
		}
		entry.SequenceNo = auditEntry.SequenceNo
		return nil
	})
	if err == nil {
		err = t.withRetry(detached, "cost append", func(mctx context.Context) error {
			return t.store.AppendCost(mctx, entry)
		})
	}
	if err != nil {
		// Spend is recorded high rather than silently low: the counter
		// keeps the increment and the gap is surfaced for reconciliation.
		t.logger.Error("cost entry not persisted after retries",
			"scope_id", report.ScopeID,
			"operation_id", report.OperationID,
			"cost", cost,
			"error", err,
		)
		return nil, &UnaccountedUsageError{
			ScopeID:     report.ScopeID,
			OperationID: report.OperationID,
			CostAmount:  cost,
			Err:         err,
		}
	}

	t.maybeWarn(report, counter, cost, periodKey)

	t.logger.Debug("usage recorded",
		"scope_id", report.ScopeID,
		"operation_id", report.OperationID,
		"backend", report.Backend,
		"cost", cost,
		"spent", counter.SpentAmount,
	)

	return entry, nil
}

// CheckBudget is a pure read answering whether an estimated amount fits
// the remaining budget for (scope, period). It reserves nothing: two
// racing callers can both be allowed, so a single overshoot past the
// limit is possible and tolerated. The exhausted counter then rejects
// every later call until period rollover.
func (t *Tracker) CheckBudget(ctx context.Context, scopeID, periodKey string, amount float64) (*BudgetStatus, error) {
	policy := t.Policy(scopeID)

	counter, err := t.store.GetBudget(ctx, scopeID, periodKey, policy)
	if err != nil {
		return nil, err
	}

	status := &BudgetStatus{
		SpentAmount: counter.SpentAmount,
		LimitAmount: counter.LimitAmount,
		PeriodKey:   periodKey,
	}

	if counter.LimitAmount <= 0 {
		status.Allowed = true
		status.Unlimited = true
		return status, nil
	}

	status.Remaining = counter.Remaining()

	if counter.Exhausted() {
		status.Reason = "daily budget exhausted"
		return status, nil
	}
	if amount > status.Remaining {
		status.Reason = "estimated cost exceeds remaining daily budget"
		return status, nil
	}

	status.Allowed = true
	if counter.WarnThreshold > 0 &&
		(counter.SpentAmount+amount) >= counter.WarnThreshold*counter.LimitAmount {
		status.Warn = true
	}
	return status, nil
}

// Entries returns the cost entries recorded for (scope, period).
func (t *Tracker) Entries(ctx context.Context, scopeID, periodKey string) ([]*ledger.CostEntry, error) {
	return t.store.CostEntries(ctx, scopeID, periodKey)
}

// maybeWarn fires a warning notification when this increment crossed the
// scope's warning threshold.
func (t *Tracker) maybeWarn(report UsageReport, counter *ledger.BudgetCounter, cost float64, periodKey string) {
	if counter.WarnThreshold <= 0 || counter.LimitAmount <= 0 {
		return
	}

	threshold := counter.WarnThreshold * counter.LimitAmount
	before := counter.SpentAmount - cost
	if before >= threshold || counter.SpentAmount < threshold {
		return
	}

	t.notifier.Notify(notify.Event{
		Kind:    notify.KindBudgetWarning,
		ScopeID: report.ScopeID,
		Summary: "Budget warning threshold crossed",
		Fields: map[string]string{
			"period": periodKey,
			"spent":  fmt.Sprintf("%.4f", counter.SpentAmount),
			"limit":  fmt.Sprintf("%.4f", counter.LimitAmount),
		},
	})
}

// withRetry runs fn with bounded exponential backoff, for ledger and
// chain writes that may fail transiently.
func (t *Tracker) withRetry(ctx context.Context, op string, fn func(context.Context) error) error {
	r := retry.New(
		retry.Context(ctx),
		retry.Attempts(t.config.StorageRetries),
	)

	err := r.Do(func() error {
		return fn(ctx)
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
