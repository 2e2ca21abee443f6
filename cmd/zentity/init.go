// Init command for the zentity CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize zentity configuration and storage",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		configDir := resolveConfigDir()
		if err := ensureConfigDir(configDir); err != nil {
			fmt.Fprintln(os.Stderr, "init:", err)
			os.Exit(exitSysError)
		}
		if err := ensureDefaultConfigFile(configDir); err != nil {
			fmt.Fprintln(os.Stderr, "init:", err)
			os.Exit(exitSysError)
		}

		cfg, err := loadConfig(configDir)
		if err != nil {
			fmt.Fprintln(os.Stderr, "init:", err)
			os.Exit(exitUserError)
		}

		// Opening the backend creates the data directory.
		drv, err := openDriver(cfg)
		if err != nil {
			fmt.Fprintln(os.Stderr, "init:", err)
			os.Exit(exitSysError)
		}
		defer drv.Close()

		fmt.Println("Zentity initialized successfully")
		fmt.Println("  config:", configDir)
		fmt.Println("  data:  ", cfg.DataDir)
		return nil
	},
}
