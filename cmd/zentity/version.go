// Version command for the zentity CLI.
package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zentity-io/zentity/pkg/zentity"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the zentity version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("zentity", zentity.Version)
	},
}
