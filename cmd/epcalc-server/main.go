package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	version = "dev" // set by build flags
)

var rootCmd = &cobra.Command{
	Use:     "epcalc-server",
	Short:   "Error-exponent and error-probability compute service",
	Long:    `epcalc-server computes information-theoretic error exponents, error probabilities, optimal rho, mutual information, cutoff rate, and critical rate for a range of modulation schemes, over an HTTP API.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: none, defaults + env only)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(adminKeyCmd)
}

// Subcommands are defined in serve.go and adminkey.go.

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
