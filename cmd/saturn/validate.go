package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"mercator-hq/saturn/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	Long: `Load and validate the configuration file without starting the service.

All validation errors are collected and reported together, with the
dotted field path of each offending value.

Examples:
  # Validate the default config file
  saturn validate

  # Validate a specific file
  saturn validate --config /etc/saturn/config.yaml`,
	RunE: validateConfig,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func validateConfig(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		var verr config.ValidationError
		if errors.As(err, &verr) {
			fmt.Printf("✗ %s is invalid\n", cfgFile)
			for _, fieldErr := range verr.Errors {
				fmt.Printf("  - %s\n", fieldErr.Error())
			}
			return fmt.Errorf("%d validation error(s)", len(verr.Errors))
		}
		return err
	}

	fmt.Printf("✓ %s is valid\n", cfgFile)
	fmt.Printf("  scopes:   %d\n", len(cfg.Scopes))
	fmt.Printf("  routes:   %d\n", len(cfg.Routes))
	fmt.Printf("  backends: %d\n", len(cfg.Pricing))
	fmt.Printf("  toggles:  %d\n", len(cfg.Toggles))
	return nil
}
