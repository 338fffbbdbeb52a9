package audit

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/robfig/cron/v3"

	"mercator-hq/saturn/pkg/notify"
)

// Scheduler runs chain verification on a cron schedule and raises a
// notification event for every scope whose chain fails to recompute.
// Verification is read-only; a broken chain is surfaced, never repaired.
type Scheduler struct {
	chain    *Chain
	schedule string
	notifier notify.Notifier
	cron     *cron.Cron
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
}

// NewScheduler creates a verification scheduler.
//
// Common cron expressions:
//   - "0 * * * *"  - hourly
//   - "0 3 * * *"  - daily at 3 AM
//
// An empty schedule disables the scheduler.
func NewScheduler(chain *Chain, schedule string, notifier notify.Notifier) *Scheduler {
	if notifier == nil {
		notifier = notify.NopNotifier{}
	}
	return &Scheduler{
		chain:    chain,
		schedule: schedule,
		notifier: notifier,
		cron:     cron.New(),
		logger:   slog.Default().With("component", "audit.scheduler"),
	}
}

// Start begins scheduled verification. It validates the cron expression
// and returns immediately; verification runs in the cron goroutine.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running")
	}
	if s.schedule == "" {
		s.logger.Info("verification schedule not configured, skipping scheduler")
		return nil
	}

	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", s.schedule, err)
	}

	_, err := s.cron.AddFunc(s.schedule, func() {
		s.runVerification(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule verification: %w", err)
	}

	s.cron.Start()
	s.running = true

	s.logger.Info("chain verification scheduler started", "schedule", s.schedule)
	return nil
}

// Stop halts scheduled verification and waits for an in-flight run.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.running = false

	s.logger.Info("chain verification scheduler stopped")
}

// RunOnce verifies all scopes immediately, raising alerts for failures.
// Used by the CLI and exposed for tests.
func (s *Scheduler) RunOnce(ctx context.Context) (map[string]*Report, error) {
	reports, err := s.chain.VerifyAll(ctx)
	if err != nil {
		return nil, err
	}

	for scopeID, report := range reports {
		if report.Valid {
			continue
		}

		s.logger.Error("audit chain integrity failure",
			"scope_id", scopeID,
			"broken_at_sequence", report.BrokenAtSequence,
			"reason", report.Reason,
		)

		s.notifier.Notify(notify.Event{
			Kind:    notify.KindChainAlert,
			ScopeID: scopeID,
			Summary: "Audit chain integrity compromised",
			Fields: map[string]string{
				"broken_at_sequence": strconv.FormatInt(report.BrokenAtSequence, 10),
				"reason":             report.Reason,
				"chain_length":       strconv.Itoa(report.Length),
			},
		})
	}

	return reports, nil
}

func (s *Scheduler) runVerification(ctx context.Context) {
	reports, err := s.RunOnce(ctx)
	if err != nil {
		s.logger.Error("scheduled chain verification failed", "error", err)
		return
	}

	valid := 0
	for _, report := range reports {
		if report.Valid {
			valid++
		}
	}
	s.logger.Info("scheduled chain verification complete",
		"scopes", len(reports),
		"valid", valid,
	)
}
