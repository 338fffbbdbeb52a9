package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "saturn",
	Short: "Mercator Saturn - operation governance core for AI-model spend",
	Long: `Mercator Saturn governs calls to paid AI-model providers: it routes
operations to backends under per-scope daily budgets, requires human
sign-off for margin-affecting routing changes, and records every
decision and dollar spent in a tamper-evident audit chain.

Components:
  - Operation router with budget-aware fallback and decision caching
  - Cost tracker with atomic per-scope budget counters
  - Approval workflow (PENDING -> APPROVED/REJECTED/EXPIRED)
  - Locked feature toggles enforced at a single mutation point
  - Per-scope SHA-256 hash chains with scheduled verification`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
