package cli

import (
	"errors"

	"github.com/spf13/cobra"
	"github.com/trebuchet-org/treb-state/internal/cli/render"
)

// errIntegrity makes validate exit non-zero after printing the report
var errIntegrity = errors.New("integrity check failed")

// NewValidateCmd creates the validate command
func NewValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the integrity of the stored records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := getApp(cmd)
			if err != nil {
				return err
			}

			report, err := app.ValidateState.Run(cmd.Context())
			if err != nil {
				return err
			}
			if app.Config.JSON {
				err = render.PrintJSON(cmd.OutOrStdout(), report)
			} else {
				err = render.NewStatusRenderer(cmd.OutOrStdout()).RenderReport(report)
			}
			if err != nil {
				return err
			}
			if !report.IsValid {
				return errIntegrity
			}
			return nil
		},
	}
}
