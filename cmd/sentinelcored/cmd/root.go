// Package cmd provides the CLI commands for sentinelcored.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sentinelcore/sentinelcore/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "sentinelcored",
	Short: "SentinelCore - embeddable reactor-driven HTTP and MCP engine",
	Long: `sentinelcored runs the SentinelCore reactor: a single-threaded
event loop serving HTTP/1.1 (keep-alive, chunked transfer, SSE) and an
optional JSON-RPC 2.0 / MCP endpoint, with pluggable authentication,
proxy-aware header normalization, and negotiated response compression.`,
}

// Execute runs the root command, exiting non-zero on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./sentinelcore.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
