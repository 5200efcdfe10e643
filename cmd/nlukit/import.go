package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// newImportCommand creates the 'import' subcommand.
func newImportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Import training samples from a CSV file",
		Long: `Import training samples from a CSV file.

Every row needs text and language columns. Any other column whose header
matches a stored entity name is treated as that entity's value for the
sample. Rows whose intent is "none" and rows whose text is already stored
are skipped, so re-running an import is safe.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", args[0], err)
			}
			defer f.Close()

			report, err := a.importer.ImportCSV(cmd.Context(), f)
			if err != nil {
				return err
			}

			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			return encoder.Encode(report)
		},
	}
}
