// Tables command: prints the DDL for the demo schema.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zentity-io/zentity/internal/sqlite"
)

var tablesCmd = &cobra.Command{
	Use:   "tables",
	Short: "Print the CREATE TABLE statements for the demo schema",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		schema, err := demoSchema()
		if err != nil {
			fmt.Fprintln(os.Stderr, "tables:", err)
			os.Exit(exitSysError)
		}
		for _, desc := range schema.Types() {
			ddl, err := sqlite.CreateTableSQL(schema, desc)
			if err != nil {
				fmt.Fprintln(os.Stderr, "tables:", err)
				os.Exit(exitSysError)
			}
			fmt.Printf("%s;\n\n", ddl)
		}
		return nil
	},
}
