// Package metrics exposes Prometheus metrics for routing decisions,
// spend, approval transitions, and audit chain health, served over a
// dedicated HTTP listener.
package metrics
