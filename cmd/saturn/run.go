package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/saturn/pkg/approval"
	"mercator-hq/saturn/pkg/audit"
	"mercator-hq/saturn/pkg/config"
	"mercator-hq/saturn/pkg/costs"
	"mercator-hq/saturn/pkg/governance"
	"mercator-hq/saturn/pkg/ledger"
	"mercator-hq/saturn/pkg/notify"
	"mercator-hq/saturn/pkg/routing"
	"mercator-hq/saturn/pkg/telemetry/logging"
	"mercator-hq/saturn/pkg/telemetry/metrics"
	"mercator-hq/saturn/pkg/toggles"
)

var runFlags struct {
	logLevel string
	dryRun   bool
	watch    bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the Saturn governance service",
	Long: `Start the governance service with the specified configuration.

The service seeds the routing table, pricing table, budgets, and
feature toggles from configuration, restores persisted toggle state,
and then runs the scheduled audit chain verification, the metrics
endpoint, and (with --watch) configuration hot reload.

Examples:
  # Start with default config
  saturn run

  # Start with custom config
  saturn run --config /etc/saturn/config.yaml

  # Reload pricing and routes on config file changes
  saturn run --watch

  # Validate config and wiring without starting
  saturn run --dry-run`,
	RunE: runService,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config and wiring without starting")
	runCmd.Flags().BoolVar(&runFlags.watch, "watch", false, "reload pricing and routes on config file changes")
}

func runService(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return err
	}

	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}

	if _, err := logging.Install(logging.Config{
		Level:      cfg.Telemetry.Logging.Level,
		Format:     cfg.Telemetry.Logging.Format,
		RedactKeys: cfg.Telemetry.Logging.RedactKeys,
	}); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var collector *metrics.Collector
	if cfg.Telemetry.Metrics.Enabled {
		collector = metrics.NewCollector(cfg.Telemetry.Metrics.Namespace)
	}

	// Notification sink: best-effort webhook delivery, or a no-op when
	// disabled. Nothing in the core waits on it.
	var notifier notify.Notifier = notify.NopNotifier{}
	var dispatcher *notify.Dispatcher
	if cfg.Notifications.Enabled {
		sink, err := notify.NewWebhookSink(notify.WebhookSinkConfig{
			URL:     cfg.Notifications.WebhookURL,
			Timeout: cfg.Notifications.Timeout,
		})
		if err != nil {
			return fmt.Errorf("configure webhook sink: %w", err)
		}
		dispatcherCfg := notify.DispatcherConfig{
			QueueSize:   cfg.Notifications.QueueSize,
			Workers:     cfg.Notifications.Workers,
			SendTimeout: cfg.Notifications.Timeout,
		}
		if collector != nil {
			dispatcherCfg.OnDeliveryFailure = collector.RecordNotificationFailure
		}
		dispatcher = notify.NewDispatcher(sink, dispatcherCfg)
		defer dispatcher.Close()
		notifier = dispatcher
	}

	// The observer counts every event into the metrics before the
	// dispatcher sees it.
	if collector != nil {
		notifier = metrics.NewObserver(collector, notifier)
	}

	ledgerStore, err := openLedgerStore(cfg)
	if err != nil {
		return fmt.Errorf("open ledger store: %w", err)
	}
	defer ledgerStore.Close()

	auditStore, err := openAuditStore(cfg)
	if err != nil {
		return fmt.Errorf("open audit store: %w", err)
	}
	defer auditStore.Close()

	chain := audit.NewChain(auditStore)

	registry := toggles.NewRegistry(cfg.Approval.ApproverRole, ledgerStore, chain, notifier)
	for _, entry := range cfg.Toggles {
		registry.Seed(toggles.Toggle{
			Name:         entry.Name,
			Enabled:      entry.Enabled,
			Locked:       entry.Locked,
			ControlledBy: entry.ControlledBy,
		})
	}
	if err := registry.Restore(ctx); err != nil {
		return err
	}

	pricing := costs.NewPricing(pricingTable(cfg))

	tracker := costs.NewTracker(ledgerStore, chain, pricing, costs.TrackerConfig{
		ScopePolicies: budgetPolicies(cfg),
	}, notifier)

	approvalCriticality, err := routing.ParseCriticality(cfg.Routing.ApprovalCriticality)
	if err != nil {
		return err
	}
	router := routing.NewRouter(pricing, tracker, registry, routing.RouterConfig{
		CacheTTL:              cfg.Routing.CacheTTL,
		CacheMaxEntries:       cfg.Routing.CacheMaxEntries,
		LookupTimeout:         cfg.Routing.LookupTimeout,
		ApprovalCostThreshold: cfg.Routing.ApprovalCostThreshold,
		ApprovalCriticality:   approvalCriticality,
	})
	defer router.Close()

	if err := seedRoutes(router.Table(), cfg); err != nil {
		return err
	}

	gate := approval.NewGate(ledgerStore, chain, approval.GateConfig{
		ApproverRole:      cfg.Approval.ApproverRole,
		RecommendationTTL: cfg.Approval.RecommendationTTL,
	}, notifier,
		approval.WithRouteApplier(router.Table()),
		approval.WithToggleChecker(registry),
	)

	// Provider clients are wired by the embedding application; the
	// standalone service holds the core with the mock so the full
	// wiring is validated at startup.
	core := governance.NewCore(router, governance.NewMockProvider(), tracker, gate, registry, chain)

	if runFlags.dryRun {
		fmt.Println("✓ Configuration valid, wiring complete")
		return nil
	}

	slog.Info("governance core ready", "toggles", len(core.Toggles().List()))

	printBanner(cfg)

	var scheduler *audit.Scheduler
	if cfg.Audit.VerifyEnabled {
		scheduler = audit.NewScheduler(chain, cfg.Audit.VerifySchedule, notifier)
		if err := scheduler.Start(ctx); err != nil {
			return fmt.Errorf("start verification scheduler: %w", err)
		}
		defer scheduler.Stop()
	}

	var metricsServer *metrics.Server
	if collector != nil {
		collector.ObserveRouter(cfg.Telemetry.Metrics.Namespace, func() metrics.RouterSnapshot {
			snap := router.Stats()
			return metrics.RouterSnapshot{
				TotalRequests:      snap.TotalRequests,
				CacheHits:          snap.CacheHits,
				FallbackCount:      snap.FallbackCount,
				ApprovalFlagged:    snap.ApprovalFlaggedCount,
				Errors:             snap.Errors,
				RequestsPerBackend: snap.RequestsPerBackend,
			}
		})
		metricsServer = metrics.NewServer(cfg.Telemetry.Metrics.ListenAddress, collector)
		metricsServer.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsServer.Shutdown(shutdownCtx)
		}()
	}

	if runFlags.watch {
		watcher := config.NewWatcher(cfgFile, cfg)
		if err := watcher.Start(ctx); err != nil {
			return err
		}
		defer watcher.Stop()

		go func() {
			for newCfg := range watcher.Subscribe() {
				pricing.Reload(pricingTable(newCfg))
				if err := seedRoutes(router.Table(), newCfg); err != nil {
					slog.Error("route reseed rejected", "error", err)
				}
			}
		}()
	}

	slog.Info("saturn governance service started",
		"scopes", len(cfg.Scopes),
		"routes", len(cfg.Routes),
		"backends", len(cfg.Pricing),
	)

	<-ctx.Done()
	slog.Info("shutting down")
	return nil
}

func openLedgerStore(cfg *config.Config) (ledger.Store, error) {
	switch cfg.Ledger.Backend {
	case "memory":
		return ledger.NewMemoryStore(), nil
	default:
		return ledger.NewSQLiteStoreWithConfig(ledger.SQLiteStoreConfig{
			Path:        cfg.Ledger.SQLitePath,
			BusyTimeout: cfg.Ledger.BusyTimeout,
		})
	}
}

// pricingTable converts the configured pricing section.
func pricingTable(cfg *config.Config) map[string]costs.BackendPricing {
	table := make(map[string]costs.BackendPricing, len(cfg.Pricing))
	for backend, pricing := range cfg.Pricing {
		table[backend] = costs.BackendPricing{
			InputPricePerUnit:  pricing.InputPricePerUnit,
			OutputPricePerUnit: pricing.OutputPricePerUnit,
		}
	}
	return table
}

// budgetPolicies converts the configured per-scope budget section.
func budgetPolicies(cfg *config.Config) map[string]ledger.BudgetPolicy {
	policies := make(map[string]ledger.BudgetPolicy, len(cfg.Scopes))
	for scopeID, scope := range cfg.Scopes {
		policies[scopeID] = ledger.BudgetPolicy{
			LimitAmount:   scope.Budget.DailyLimit,
			WarnThreshold: scope.Budget.WarnThreshold,
		}
	}
	return policies
}

// seedRoutes installs the configured routing table rows.
func seedRoutes(table *routing.Table, cfg *config.Config) error {
	for _, entry := range cfg.Routes {
		criticality, err := routing.ParseCriticality(entry.Criticality)
		if err != nil {
			return fmt.Errorf("route %s/%s: %w", entry.Scope, entry.Operation, err)
		}
		route := routing.RouteConfig{
			OperationID:      entry.Operation,
			PrimaryBackend:   entry.Primary,
			FallbackBackends: entry.Fallbacks,
			CostCriticality:  criticality,
			GatingToggle:     entry.GatingToggle,
		}
		if entry.Scope == "" {
			table.SeedDefault(route)
		} else {
			table.Seed(entry.Scope, route)
		}
	}
	return nil
}

func printBanner(cfg *config.Config) {
	fmt.Println("Mercator Saturn " + Version)
	fmt.Printf("  ledger:  %s\n", cfg.Ledger.Backend)
	fmt.Printf("  audit:   %s (verify: %v)\n", cfg.Audit.Backend, cfg.Audit.VerifyEnabled)
	if cfg.Telemetry.Metrics.Enabled {
		fmt.Printf("  metrics: %s\n", cfg.Telemetry.Metrics.ListenAddress)
	}
	if os.Getenv("SATURN_NOTIFICATIONS_WEBHOOK_URL") != "" || cfg.Notifications.Enabled {
		fmt.Println("  notify:  webhook enabled")
	}
}
