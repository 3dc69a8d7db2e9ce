package cli

import (
	"github.com/spf13/cobra"
	"github.com/trebuchet-org/treb-state/internal/cli/render"
	"github.com/trebuchet-org/treb-state/internal/domain"
	"github.com/trebuchet-org/treb-state/internal/usecase"
)

// NewListCmd creates the list command
func NewListCmd() *cobra.Command {
	var (
		network  string
		contract string
		sortBy   string
		desc     bool
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List stored contract records",
		Long: `List stored contract records across all networks or one network.

Examples:
  treb-state list
  treb-state list --network bsc --sort timestamp --desc
  treb-state list --contract Token`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := getApp(cmd)
			if err != nil {
				return err
			}

			params := usecase.ListContractsParams{
				ContractName: contract,
				SortBy:       sortBy,
			}
			if network != "" {
				chainID, err := resolveChain(app.Config, network)
				if err != nil {
					return err
				}
				params.ChainID = domain.ForChain(chainID)
			}
			if desc {
				params.SortOrder = domain.SortDesc
			}

			result, err := app.ListContracts.Run(cmd.Context(), params)
			if err != nil {
				return err
			}
			if app.Config.JSON {
				return render.PrintJSON(cmd.OutOrStdout(), result.Contracts)
			}
			return render.NewRecordsRenderer(cmd.OutOrStdout()).RenderList(result)
		},
	}

	addNetworkFlag(cmd, &network)
	cmd.Flags().StringVar(&contract, "contract", "", "Only show this contract name")
	cmd.Flags().StringVar(&sortBy, "sort", "", "Sort by timestamp, contractName or chainId")
	cmd.Flags().BoolVar(&desc, "desc", false, "Sort in descending order")
	return cmd
}
