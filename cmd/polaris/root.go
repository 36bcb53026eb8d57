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
	Use:   "polaris",
	Short: "Polaris - multi-tenant LLM routing gateway",
	Long: `Polaris is a multi-tenant routing gateway for LLM traffic.

It exposes an OpenAI-compatible API and routes each request for a logical
model to the best physical provider, providing:
  - Health-aware provider selection with weighted scoring
  - Session affinity with sliding expiry
  - Strict in-order failover across candidates
  - Egress proxy rotation for outbound requests
  - Durable per-minute outcome metrics and Prometheus exposition`,
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
