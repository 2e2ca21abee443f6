// Root command for the zentity CLI.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/zentity-io/zentity/pkg/zentity"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// Global flag values.
var (
	flagConfigDir string
	flagDataDir   string
)

var rootCmd = &cobra.Command{
	Use:     "zentity",
	Short:   "Zentity is a database IO layer",
	Version: zentity.Version,
	Long: `Zentity manages entities over a pluggable storage driver: loads
register instances in a per-session identity map, mutations are
tracked against snapshots, and commits apply all pending changes in
dependency order inside one transaction.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfigDir, "config-dir", "", "configuration directory (default: .zentity)")
	rootCmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "data directory (default: .zentity-db)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(tablesCmd)
	rootCmd.AddCommand(demoCmd)
}

// resolveConfigDir returns the config directory: flag > env > default.
func resolveConfigDir() string {
	if flagConfigDir != "" {
		return flagConfigDir
	}
	if v := os.Getenv("ZENTITY_CONFIG_DIR"); v != "" {
		return v
	}
	return ".zentity"
}

// resolveDataDir returns the data directory: flag > config > default.
func resolveDataDir(configured string) string {
	if flagDataDir != "" {
		return flagDataDir
	}
	if configured != "" {
		return configured
	}
	return ".zentity-db"
}
