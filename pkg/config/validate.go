package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field
	// (e.g., "ledger.backend").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a
// configuration. It implements the error interface and provides access
// to all field errors.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:", len(e.Errors)))
	for _, fieldErr := range e.Errors {
		sb.WriteString("\n  - ")
		sb.WriteString(fieldErr.Error())
	}
	return sb.String()
}

// Validate checks the configuration for invalid or inconsistent values.
// All errors are collected and returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	add := func(field, format string, args ...any) {
		errs = append(errs, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	for scopeID, scope := range cfg.Scopes {
		field := fmt.Sprintf("scopes.%s.budget", scopeID)
		if scope.Budget.DailyLimit < 0 {
			add(field+".daily_limit", "must not be negative, got %v", scope.Budget.DailyLimit)
		}
		if scope.Budget.WarnThreshold < 0 || scope.Budget.WarnThreshold > 1 {
			add(field+".warn_threshold", "must be between 0 and 1, got %v", scope.Budget.WarnThreshold)
		}
	}

	seenRoutes := make(map[string]int)
	for i, route := range cfg.Routes {
		field := fmt.Sprintf("routes[%d]", i)
		if route.Operation == "" {
			add(field+".operation", "is required")
		}
		if route.Primary == "" {
			add(field+".primary", "is required")
		}
		if route.Criticality != "" && !validCriticality(route.Criticality) {
			add(field+".criticality", "must be LOW, MEDIUM, or HIGH, got %q", route.Criticality)
		}
		for _, backend := range append([]string{route.Primary}, route.Fallbacks...) {
			if backend == "" {
				continue
			}
			if _, ok := cfg.Pricing[backend]; !ok {
				add(field, "backend %q has no pricing entry", backend)
			}
		}
		key := route.Scope + "/" + route.Operation
		if prev, ok := seenRoutes[key]; ok {
			add(field, "duplicates routes[%d] for scope %q operation %q", prev, route.Scope, route.Operation)
		} else {
			seenRoutes[key] = i
		}
	}

	for backend, pricing := range cfg.Pricing {
		field := fmt.Sprintf("pricing.%s", backend)
		if pricing.InputPricePerUnit < 0 {
			add(field+".input_price_per_unit", "must not be negative")
		}
		if pricing.OutputPricePerUnit < 0 {
			add(field+".output_price_per_unit", "must not be negative")
		}
	}

	seenToggles := make(map[string]int)
	for i, toggle := range cfg.Toggles {
		field := fmt.Sprintf("toggles[%d]", i)
		if toggle.Name == "" {
			add(field+".name", "is required")
		}
		if prev, ok := seenToggles[toggle.Name]; ok {
			add(field, "duplicates toggles[%d] (%q)", prev, toggle.Name)
		} else {
			seenToggles[toggle.Name] = i
		}
	}

	if cfg.Approval.ApproverRole == "" {
		add("approval.approver_role", "is required")
	}
	if cfg.Approval.RecommendationTTL <= 0 {
		add("approval.recommendation_ttl", "must be positive")
	}

	if cfg.Routing.LookupTimeout <= 0 {
		add("routing.lookup_timeout", "must be positive")
	}
	if cfg.Routing.ApprovalCostThreshold < 0 {
		add("routing.approval_cost_threshold", "must not be negative")
	}
	if cfg.Routing.ApprovalCriticality != "" && !validCriticality(cfg.Routing.ApprovalCriticality) {
		add("routing.approval_criticality", "must be LOW, MEDIUM, or HIGH, got %q", cfg.Routing.ApprovalCriticality)
	}

	if !validStoreBackend(cfg.Ledger.Backend) {
		add("ledger.backend", "must be \"memory\" or \"sqlite\", got %q", cfg.Ledger.Backend)
	}
	if cfg.Ledger.Backend == "sqlite" && cfg.Ledger.SQLitePath == "" {
		add("ledger.sqlite_path", "is required for the sqlite backend")
	}

	if !validStoreBackend(cfg.Audit.Backend) {
		add("audit.backend", "must be \"memory\" or \"sqlite\", got %q", cfg.Audit.Backend)
	}
	if cfg.Audit.Backend == "sqlite" && cfg.Audit.SQLitePath == "" {
		add("audit.sqlite_path", "is required for the sqlite backend")
	}
	if cfg.Audit.VerifyEnabled {
		if _, err := cron.ParseStandard(cfg.Audit.VerifySchedule); err != nil {
			add("audit.verify_schedule", "invalid cron expression %q: %v", cfg.Audit.VerifySchedule, err)
		}
	}

	if cfg.Notifications.Enabled {
		if cfg.Notifications.WebhookURL == "" {
			add("notifications.webhook_url", "is required when notifications are enabled")
		} else if u, err := url.Parse(cfg.Notifications.WebhookURL); err != nil || u.Scheme == "" || u.Host == "" {
			add("notifications.webhook_url", "must be a valid absolute URL, got %q", cfg.Notifications.WebhookURL)
		}
	}

	switch cfg.Telemetry.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		add("telemetry.logging.level", "must be debug, info, warn, or error, got %q", cfg.Telemetry.Logging.Level)
	}
	switch cfg.Telemetry.Logging.Format {
	case "json", "text":
	default:
		add("telemetry.logging.format", "must be json or text, got %q", cfg.Telemetry.Logging.Format)
	}

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

func validCriticality(s string) bool {
	switch s {
	case "LOW", "MEDIUM", "HIGH":
		return true
	}
	return false
}

func validStoreBackend(s string) bool {
	return s == "memory" || s == "sqlite"
}
