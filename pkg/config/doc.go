// Package config defines the root YAML configuration for Saturn:
// scopes and their budgets, the routing table seed, the pricing table,
// feature toggles, the approval workflow, storage backends, webhook
// notifications, and telemetry.
//
// Loading order is file, then defaults, then environment overrides
// (SATURN_* variables), then validation. The Watcher re-loads the file
// on change and broadcasts the new configuration to subscribers so the
// pricing table and routing seed can be refreshed without a restart.
package config
