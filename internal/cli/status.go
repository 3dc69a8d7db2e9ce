package cli

import (
	"github.com/spf13/cobra"
	"github.com/trebuchet-org/treb-state/internal/cli/render"
)

// NewStatusCmd creates the status command
func NewStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show backend health and store metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := getApp(cmd)
			if err != nil {
				return err
			}

			status := app.StoreStatus.Run(cmd.Context())
			if app.Config.JSON {
				return render.PrintJSON(cmd.OutOrStdout(), status)
			}
			return render.NewStatusRenderer(cmd.OutOrStdout()).RenderStatus(status)
		},
	}
}
