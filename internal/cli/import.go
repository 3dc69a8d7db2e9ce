package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/trebuchet-org/treb-state/internal/cli/render"
	"github.com/trebuchet-org/treb-state/internal/usecase"
)

// NewImportCmd creates the import command
func NewImportCmd() *cobra.Command {
	var (
		overwrite bool
		dryRun    bool
	)

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import records from an export blob",
		Long: `Import records from a JSON or YAML export. Existing records are kept unless
--overwrite is set.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := getApp(cmd)
			if err != nil {
				return err
			}

			result, err := app.ImportState.Run(cmd.Context(), usecase.ImportStateParams{
				InputPath: args[0],
				Overwrite: overwrite,
				DryRun:    dryRun,
			})
			if err != nil {
				return err
			}
			if app.Config.JSON {
				return render.PrintJSON(cmd.OutOrStdout(), result)
			}

			msg := fmt.Sprintf("%d records on %d networks", result.Records, len(result.Chains))
			if result.Backend != "" {
				msg += " exported from " + result.Backend
			}
			if result.Imported {
				fmt.Fprintln(cmd.OutOrStdout(), render.FormatSuccess("Imported "+msg))
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "Would import "+msg)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace existing records")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Decode the file without writing")
	return cmd
}
