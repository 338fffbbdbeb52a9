package config

import "time"

// Default values for configuration fields.
const (
	// Budget defaults
	DefaultWarnThreshold = 0.8

	// Route defaults
	DefaultCriticality = "MEDIUM"

	// Approval defaults
	DefaultApproverRole      = "human-approver"
	DefaultRecommendationTTL = 72 * time.Hour

	// Routing defaults
	DefaultCacheTTL            = 5 * time.Minute
	DefaultCacheMaxEntries     = 10000
	DefaultLookupTimeout       = 2 * time.Second
	DefaultApprovalCriticality = "HIGH"

	// Ledger defaults
	DefaultLedgerBackend    = "sqlite"
	DefaultLedgerSQLitePath = "data/ledger.db"
	DefaultLedgerBusyWait   = 5 * time.Second

	// Audit defaults
	DefaultAuditBackend        = "sqlite"
	DefaultAuditSQLitePath     = "data/audit.db"
	DefaultAuditVerifyEnabled  = true
	DefaultAuditVerifySchedule = "0 3 * * *"

	// Notification defaults
	DefaultNotifyTimeout   = 10 * time.Second
	DefaultNotifyQueueSize = 256
	DefaultNotifyWorkers   = 2

	// Telemetry defaults
	DefaultLogLevel             = "info"
	DefaultLogFormat            = "json"
	DefaultMetricsEnabled       = true
	DefaultMetricsListenAddress = "127.0.0.1:9099"
	DefaultMetricsNamespace     = "saturn"
)

// ApplyDefaults fills in default values for any unset configuration
// fields. It is called automatically by LoadConfig.
func ApplyDefaults(cfg *Config) {
	for scopeID, scope := range cfg.Scopes {
		if scope.Budget.WarnThreshold == 0 {
			scope.Budget.WarnThreshold = DefaultWarnThreshold
			cfg.Scopes[scopeID] = scope
		}
	}

	for i := range cfg.Routes {
		if cfg.Routes[i].Criticality == "" {
			cfg.Routes[i].Criticality = DefaultCriticality
		}
	}

	if cfg.Approval.ApproverRole == "" {
		cfg.Approval.ApproverRole = DefaultApproverRole
	}
	if cfg.Approval.RecommendationTTL <= 0 {
		cfg.Approval.RecommendationTTL = DefaultRecommendationTTL
	}

	if cfg.Routing.CacheTTL <= 0 {
		cfg.Routing.CacheTTL = DefaultCacheTTL
	}
	if cfg.Routing.CacheMaxEntries == 0 {
		cfg.Routing.CacheMaxEntries = DefaultCacheMaxEntries
	}
	if cfg.Routing.LookupTimeout <= 0 {
		cfg.Routing.LookupTimeout = DefaultLookupTimeout
	}
	if cfg.Routing.ApprovalCriticality == "" {
		cfg.Routing.ApprovalCriticality = DefaultApprovalCriticality
	}

	if cfg.Ledger.Backend == "" {
		cfg.Ledger.Backend = DefaultLedgerBackend
	}
	if cfg.Ledger.SQLitePath == "" {
		cfg.Ledger.SQLitePath = DefaultLedgerSQLitePath
	}
	if cfg.Ledger.BusyTimeout <= 0 {
		cfg.Ledger.BusyTimeout = DefaultLedgerBusyWait
	}

	if cfg.Audit.Backend == "" {
		cfg.Audit.Backend = DefaultAuditBackend
	}
	if cfg.Audit.SQLitePath == "" {
		cfg.Audit.SQLitePath = DefaultAuditSQLitePath
	}
	if cfg.Audit.VerifySchedule == "" {
		cfg.Audit.VerifySchedule = DefaultAuditVerifySchedule
	}

	if cfg.Notifications.Timeout <= 0 {
		cfg.Notifications.Timeout = DefaultNotifyTimeout
	}
	if cfg.Notifications.QueueSize <= 0 {
		cfg.Notifications.QueueSize = DefaultNotifyQueueSize
	}
	if cfg.Notifications.Workers <= 0 {
		cfg.Notifications.Workers = DefaultNotifyWorkers
	}

	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLogLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLogFormat
	}
	if cfg.Telemetry.Metrics.ListenAddress == "" {
		cfg.Telemetry.Metrics.ListenAddress = DefaultMetricsListenAddress
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultMetricsNamespace
	}
}

// NewDefaultConfig returns a configuration populated entirely with
// default values. Useful for tests and for generating a starter file.
func NewDefaultConfig() *Config {
	cfg := &Config{
		Audit: AuditConfig{VerifyEnabled: DefaultAuditVerifyEnabled},
		Telemetry: TelemetryConfig{
			Metrics: MetricsConfig{Enabled: DefaultMetricsEnabled},
		},
	}
	ApplyDefaults(cfg)
	return cfg
}
