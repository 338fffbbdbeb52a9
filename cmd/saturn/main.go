// Mercator Saturn is an operation governance core for paid AI-model
// provider calls.
//
// It routes operations to model backends under per-scope budgets,
// requires human sign-off for margin-affecting routing changes, and
// writes every decision and dollar spent to a tamper-evident audit
// chain.
//
// Usage:
//
//	# Start with default configuration
//	saturn run
//
//	# Start with custom configuration file
//	saturn run --config /path/to/config.yaml
//
//	# Validate a configuration file
//	saturn validate --config config.yaml
//
//	# Verify a scope's audit chain
//	saturn verify --scope tenant-a
//
//	# Show version information
//	saturn version
package main

func main() {
	Execute()
}
