package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/trebuchet-org/treb-state/internal/cli/render"
	"github.com/trebuchet-org/treb-state/internal/usecase"
)

// NewDeleteCmd creates the delete command
func NewDeleteCmd() *cobra.Command {
	var (
		network string
		force   bool
	)

	cmd := &cobra.Command{
		Use:     "delete <contract>",
		Aliases: []string{"rm"},
		Short:   "Delete the record of a contract",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := getApp(cmd)
			if err != nil {
				return err
			}
			chainID, err := resolveChain(app.Config, network)
			if err != nil {
				return err
			}

			result, err := app.DeleteContract.Run(cmd.Context(), usecase.DeleteContractParams{
				ChainID:      chainID,
				ContractName: args[0],
				Force:        force,
			})
			if err != nil {
				return err
			}
			if app.Config.JSON {
				return render.PrintJSON(cmd.OutOrStdout(), result)
			}

			switch {
			case result.Cancelled:
				fmt.Fprintln(cmd.OutOrStdout(), "Delete cancelled")
			case result.Deleted:
				fmt.Fprintln(cmd.OutOrStdout(), render.FormatSuccess("Deleted "+args[0]))
			default:
				fmt.Fprintln(cmd.OutOrStdout(), render.FormatWarning(args[0]+" was already gone"))
			}
			return nil
		},
	}

	addNetworkFlag(cmd, &network)
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Skip confirmation")
	return cmd
}
