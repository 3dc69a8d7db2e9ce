package cli

import (
	"github.com/spf13/cobra"
	"github.com/trebuchet-org/treb-state/internal/cli/render"
	"github.com/trebuchet-org/treb-state/internal/usecase"
)

// NewPlanCmd creates the plan command
func NewPlanCmd() *cobra.Command {
	var (
		network string
		hash    string
	)

	cmd := &cobra.Command{
		Use:   "plan <contract>",
		Short: "Decide whether a contract needs a deploy, an upgrade or nothing",
		Long: `Compare the bytecode hash of a local build with the stored record.

  deploy   no record, or the code changed and the contract has no proxy
  upgrade  the code changed behind a proxy
  skip     the stored bytecode hash matches

Examples:
  treb-state plan Token -n mainnet --hash 0x...`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := getApp(cmd)
			if err != nil {
				return err
			}
			chainID, err := resolveChain(app.Config, network)
			if err != nil {
				return err
			}

			plan, err := app.PlanDeployment.Run(cmd.Context(), usecase.PlanDeploymentParams{
				ChainID:             chainID,
				ContractName:        args[0],
				FactoryByteCodeHash: hash,
			})
			if err != nil {
				return err
			}
			if app.Config.JSON {
				return render.PrintJSON(cmd.OutOrStdout(), plan)
			}
			return render.NewRecordRenderer(cmd.OutOrStdout()).RenderPlan(args[0], plan)
		},
	}

	addNetworkFlag(cmd, &network)
	cmd.Flags().StringVar(&hash, "hash", "", "Bytecode hash of the local build")
	_ = cmd.MarkFlagRequired("hash")
	return cmd
}
