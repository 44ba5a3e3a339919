// Package cmd provides the CLI commands for Farm Gate.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/farm-gate/farmgate/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "farm-gate",
	Short: "Farm Gate - authorization gateway for agent tool calls",
	Long: `Farm Gate is an authorization layer between LLM agents and their tools.

Every tool call is checked against workspace, shell, and network policy,
scanned for prompt injection, and written to an append-only audit log.
Sensitive operations are held for human approval before they execute.

Quick start:
  1. Create a config file: farm-gate.yaml
  2. Seed the stock organizations: farm-gate seed
  3. Run: farm-gate start

Configuration:
  Config is loaded from farm-gate.yaml in the current directory,
  $HOME/.farm-gate/, or /etc/farm-gate/.

  Environment variables can override config values with the FARM_GATE_ prefix.
  Example: FARM_GATE_SERVER_HTTP_ADDR=:9090

Commands:
  start       Start the gateway
  seed        Seed the stock organizations into storage
  hash-key    Generate an Argon2id hash for an admin API key
  version     Print version information`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./farm-gate.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
