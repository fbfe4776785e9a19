package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var (
	flagGlobalConfig  string
	flagProjectConfig string
	flagDB            string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "hivegrid",
		Short: "Run dependency-ordered task plans with bounded concurrency",
		Long: `Hivegrid levels a plan's dependency graph into execution groups, then runs
each group with per-resource slot limits, progressive retries, and circuit
breakers. Runs are recorded so past results stay queryable.`,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&flagGlobalConfig, "global-config", "", "Global config path (default ~/.hivegrid/config.json)")
	rootCmd.PersistentFlags().StringVar(&flagProjectConfig, "config", "", "Project config path (default .hivegrid/config.json)")
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "Run history database path (default ~/.hivegrid/history.db)")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(planCmd())
	rootCmd.AddCommand(historyCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// configPaths resolves the global and project config file locations, flag
// overrides first.
func configPaths() (globalPath, projectPath string, err error) {
	globalPath = flagGlobalConfig
	if globalPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", "", fmt.Errorf("getting home directory: %w", err)
		}
		globalPath = filepath.Join(home, ".hivegrid", "config.json")
	}

	projectPath = flagProjectConfig
	if projectPath == "" {
		projectPath = filepath.Join(".hivegrid", "config.json")
	}

	return globalPath, projectPath, nil
}

// historyPath resolves the run history database location.
func historyPath() (string, error) {
	if flagDB != "" {
		return flagDB, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, ".hivegrid", "history.db"), nil
}

// shortID trims run IDs for table output.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
