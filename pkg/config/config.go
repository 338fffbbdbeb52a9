package config

import "time"

// Config is the root configuration structure for Mercator Saturn.
// It contains all configuration sections for scopes, routing, pricing,
// toggles, approvals, storage, notifications, and telemetry.
type Config struct {
	// Scopes contains per-scope governance configuration. Keys are
	// scope IDs (tenant or account identifiers).
	Scopes map[string]ScopeConfig `yaml:"scopes"`

	// Routes seeds the routing table. Entries with an empty scope are
	// global defaults used by scopes without a specific row.
	Routes []RouteEntry `yaml:"routes"`

	// Pricing is the backend pricing table. Keys are backend names.
	// Lookups for backends missing from this table fail loudly.
	Pricing map[string]BackendPricing `yaml:"pricing"`

	// Toggles seeds the feature toggle registry. Built-in safety
	// toggles stay locked regardless of what is configured here.
	Toggles []ToggleEntry `yaml:"toggles"`

	// Approval contains approval workflow configuration.
	Approval ApprovalConfig `yaml:"approval" envPrefix:"SATURN_APPROVAL_"`

	// Routing contains operation router configuration.
	Routing RoutingConfig `yaml:"routing" envPrefix:"SATURN_ROUTING_"`

	// Ledger contains ledger store configuration (budgets, costs,
	// toggles, recommendations).
	Ledger LedgerConfig `yaml:"ledger" envPrefix:"SATURN_LEDGER_"`

	// Audit contains audit chain storage and verification configuration.
	Audit AuditConfig `yaml:"audit" envPrefix:"SATURN_AUDIT_"`

	// Notifications contains webhook notification configuration.
	Notifications NotificationsConfig `yaml:"notifications" envPrefix:"SATURN_NOTIFICATIONS_"`

	// Telemetry contains logging and metrics configuration.
	Telemetry TelemetryConfig `yaml:"telemetry" envPrefix:"SATURN_TELEMETRY_"`
}

// ScopeConfig contains per-scope governance settings.
type ScopeConfig struct {
	// Budget is the scope's spend policy. A zero or missing daily
	// limit means unlimited spend.
	Budget BudgetConfig `yaml:"budget"`
}

// BudgetConfig is one scope's spend policy.
type BudgetConfig struct {
	// DailyLimit is the maximum spend per UTC calendar day.
	// 0 = unlimited.
	DailyLimit float64 `yaml:"daily_limit"`

	// WarnThreshold is the fraction of the daily limit at which a
	// budget warning notification fires (e.g. 0.8 = 80%).
	// Default: 0.8
	WarnThreshold float64 `yaml:"warn_threshold"`
}

// RouteEntry seeds one routing table row.
type RouteEntry struct {
	// Scope is the scope the route belongs to. Empty means global
	// default.
	Scope string `yaml:"scope"`

	// Operation is the operation ID the route covers.
	Operation string `yaml:"operation"`

	// Primary is the backend tried first.
	Primary string `yaml:"primary"`

	// Fallbacks is the ordered fallback backend list.
	Fallbacks []string `yaml:"fallbacks"`

	// Criticality classifies the route: LOW, MEDIUM, or HIGH.
	// Default: MEDIUM
	Criticality string `yaml:"criticality"`

	// GatingToggle names the feature toggle consulted before routing
	// this operation. Empty means the built-in
	// "autonomous-execution-allowed" toggle.
	GatingToggle string `yaml:"gating_toggle"`
}

// BackendPricing is the per-unit pricing for one backend.
type BackendPricing struct {
	// InputPricePerUnit is the price per input unit (e.g. per token).
	InputPricePerUnit float64 `yaml:"input_price_per_unit"`

	// OutputPricePerUnit is the price per output unit.
	OutputPricePerUnit float64 `yaml:"output_price_per_unit"`
}

// ToggleEntry seeds one feature toggle.
type ToggleEntry struct {
	// Name identifies the toggle.
	Name string `yaml:"name"`

	// Enabled is the seed switch position.
	Enabled bool `yaml:"enabled"`

	// Locked restricts mutation to the human-approver role.
	Locked bool `yaml:"locked"`

	// ControlledBy is the role that owns this toggle.
	ControlledBy string `yaml:"controlled_by"`
}

// ApprovalConfig contains approval workflow configuration.
type ApprovalConfig struct {
	// ApproverRole is the only role allowed to decide recommendations
	// and flip locked toggles.
	// Default: "human-approver"
	ApproverRole string `yaml:"approver_role" env:"APPROVER_ROLE"`

	// RecommendationTTL is how long a proposed recommendation stays
	// decidable before lazy expiry.
	// Default: 72h
	RecommendationTTL time.Duration `yaml:"recommendation_ttl" env:"RECOMMENDATION_TTL"`
}

// RoutingConfig contains operation router configuration.
type RoutingConfig struct {
	// CacheTTL is how long routing decisions stay cached.
	// Default: 5m
	CacheTTL time.Duration `yaml:"cache_ttl" env:"CACHE_TTL"`

	// CacheMaxEntries bounds the decision cache (0 = unlimited).
	// Default: 10000
	CacheMaxEntries int `yaml:"cache_max_entries" env:"CACHE_MAX_ENTRIES"`

	// LookupTimeout bounds table and budget lookups; on expiry the
	// router fails closed.
	// Default: 2s
	LookupTimeout time.Duration `yaml:"lookup_timeout" env:"LOOKUP_TIMEOUT"`

	// ApprovalCostThreshold flags decisions whose estimated cost
	// reaches it (0 = never flag on cost).
	ApprovalCostThreshold float64 `yaml:"approval_cost_threshold" env:"APPROVAL_COST_THRESHOLD"`

	// ApprovalCriticality flags decisions whose route criticality
	// reaches it.
	// Default: "HIGH"
	ApprovalCriticality string `yaml:"approval_criticality" env:"APPROVAL_CRITICALITY"`
}

// LedgerConfig contains ledger store configuration.
type LedgerConfig struct {
	// Backend selects the store implementation: "memory" or "sqlite".
	// Default: "sqlite"
	Backend string `yaml:"backend" env:"BACKEND"`

	// SQLitePath is the SQLite database file path.
	// Default: "data/ledger.db"
	SQLitePath string `yaml:"sqlite_path" env:"SQLITE_PATH"`

	// BusyTimeout is the SQLite busy timeout.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout" env:"BUSY_TIMEOUT"`
}

// AuditConfig contains audit chain configuration.
type AuditConfig struct {
	// Backend selects the chain store: "memory" or "sqlite".
	// Default: "sqlite"
	Backend string `yaml:"backend" env:"BACKEND"`

	// SQLitePath is the SQLite database file path.
	// Default: "data/audit.db"
	SQLitePath string `yaml:"sqlite_path" env:"SQLITE_PATH"`

	// VerifyEnabled controls the scheduled background verification of
	// every scope's chain.
	// Default: true
	VerifyEnabled bool `yaml:"verify_enabled" env:"VERIFY_ENABLED"`

	// VerifySchedule is the cron expression for scheduled verification.
	// Default: "0 3 * * *" (03:00 daily)
	VerifySchedule string `yaml:"verify_schedule" env:"VERIFY_SCHEDULE"`
}

// NotificationsConfig contains webhook notification configuration.
// Delivery is best-effort; nothing in the core waits on it.
type NotificationsConfig struct {
	// Enabled controls webhook delivery. When false, events are
	// dropped silently.
	// Default: false
	Enabled bool `yaml:"enabled" env:"ENABLED"`

	// WebhookURL is the Discord-compatible webhook endpoint.
	WebhookURL string `yaml:"webhook_url" env:"WEBHOOK_URL"`

	// Timeout bounds a single webhook delivery attempt.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`

	// QueueSize bounds the async dispatch queue; events beyond it are
	// dropped and counted.
	// Default: 256
	QueueSize int `yaml:"queue_size" env:"QUEUE_SIZE"`

	// Workers is the number of dispatch workers.
	// Default: 2
	Workers int `yaml:"workers" env:"WORKERS"`
}

// TelemetryConfig contains observability configuration.
type TelemetryConfig struct {
	// Logging contains structured logging configuration.
	Logging LoggingConfig `yaml:"logging" envPrefix:"LOGGING_"`

	// Metrics contains Prometheus metrics configuration.
	Metrics MetricsConfig `yaml:"metrics" envPrefix:"METRICS_"`
}

// LoggingConfig contains structured logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	// Default: "info"
	Level string `yaml:"level" env:"LEVEL"`

	// Format selects the output encoding: "json" or "text".
	// Default: "json"
	Format string `yaml:"format" env:"FORMAT"`

	// RedactKeys lists field names whose values are redacted in log
	// output (tokens, webhook URLs, and similar secrets).
	RedactKeys []string `yaml:"redact_keys"`
}

// MetricsConfig contains Prometheus metrics configuration.
type MetricsConfig struct {
	// Enabled controls the metrics endpoint.
	// Default: true
	Enabled bool `yaml:"enabled" env:"ENABLED"`

	// ListenAddress is the address the metrics HTTP server binds.
	// Default: "127.0.0.1:9099"
	ListenAddress string `yaml:"listen_address" env:"LISTEN_ADDRESS"`

	// Namespace is the Prometheus metric namespace.
	// Default: "saturn"
	Namespace string `yaml:"namespace" env:"NAMESPACE"`
}
