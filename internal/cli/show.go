package cli

import (
	"github.com/spf13/cobra"
	"github.com/trebuchet-org/treb-state/internal/cli/render"
)

// NewShowCmd creates the show command
func NewShowCmd() *cobra.Command {
	var network string

	cmd := &cobra.Command{
		Use:   "show [contract]",
		Short: "Show the stored record of a contract",
		Long: `Show the stored deployment record of a contract on one network.

Without a contract name an interactive picker lists every contract on the
network.

Examples:
  treb-state show Token --network mainnet
  treb-state show --network 56`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := getApp(cmd)
			if err != nil {
				return err
			}
			chainID, err := resolveChain(app.Config, network)
			if err != nil {
				return err
			}

			var name string
			if len(args) == 1 {
				name = args[0]
			} else {
				records, err := app.Store.GetAllContracts(cmd.Context(), chainID)
				if err != nil {
					return err
				}
				picked, err := app.Selector.SelectRecord(records, "Select a contract")
				if err != nil {
					return err
				}
				name = picked.ContractName
			}

			rec, err := app.ShowContract.Run(cmd.Context(), chainID, name)
			if err != nil {
				return err
			}
			if app.Config.JSON {
				return render.PrintJSON(cmd.OutOrStdout(), rec)
			}
			return render.NewRecordRenderer(cmd.OutOrStdout()).RenderRecord(rec)
		},
	}

	addNetworkFlag(cmd, &network)
	return cmd
}
