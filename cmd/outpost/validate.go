package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"verity-health/outpost/pkg/cli"
	"verity-health/outpost/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Load and validate a configuration file without starting the node.

Reports every validation problem at once rather than stopping at the
first.

Examples:
  outpost validate
  outpost validate --config /etc/outpost/config.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	_, err := config.LoadConfig(cfgFile)
	if err == nil {
		fmt.Printf("✓ %s is valid\n", cfgFile)
		return nil
	}

	var validationErr config.ValidationError
	if errors.As(err, &validationErr) {
		fmt.Printf("✗ %s has %d problem(s):\n", cfgFile, len(validationErr.Errors))
		for _, fieldErr := range validationErr.Errors {
			fmt.Printf("  - %s: %s\n", fieldErr.Field, fieldErr.Message)
		}
		return cli.NewConfigError(cfgFile, "validation failed")
	}
	return cli.NewConfigError(cfgFile, err.Error())
}
