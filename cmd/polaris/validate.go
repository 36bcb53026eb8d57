package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"polaris-ai/polaris/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	Long: `Validate the configuration file without starting the gateway.

Exits non-zero and prints every validation error when the configuration
is invalid.

Examples:
  # Validate the default config
  polaris validate

  # Validate a specific file
  polaris validate --config /etc/polaris/config.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
		if err != nil {
			return err
		}

		fmt.Printf("✓ Configuration valid\n")
		if verbose {
			fmt.Printf("  listen address:  %s\n", cfg.Server.ListenAddress)
			fmt.Printf("  providers db:    %s\n", cfg.Catalog.ProvidersDBPath)
			fmt.Printf("  metrics db:      %s\n", cfg.Metrics.DBPath)
			fmt.Printf("  cache backend:   %s\n", cfg.Cache.Backend)
			fmt.Printf("  egress strategy: %s (%d endpoints)\n", cfg.Egress.Strategy, len(cfg.Egress.Endpoints))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
