package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/trebuchet-org/treb-state/internal/cli/render"
	"github.com/trebuchet-org/treb-state/internal/domain/models"
	"github.com/trebuchet-org/treb-state/internal/usecase"
)

// NewRecordCmd creates the record command
func NewRecordCmd() *cobra.Command {
	var (
		network  string
		params   usecase.RecordDeploymentParams
		argsJSON string
	)

	cmd := &cobra.Command{
		Use:   "record <contract>",
		Short: "Record a deployment",
		Long: `Record the outcome of a deployment, replacing any previous record of the
contract on the network.

Deployment args are a JSON array. Integers beyond 64 bits are written as
{"$bigint": "<digits>"}.

Examples:
  treb-state record Token -n mainnet --address 0x... --hash 0x...
  treb-state record Vault -n bsc --address 0x<impl> --proxy 0x<proxy> --hash 0x... --args '["owner", 18]'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := getApp(cmd)
			if err != nil {
				return err
			}
			if params.ChainID, err = resolveChain(app.Config, network); err != nil {
				return err
			}
			params.ContractName = args[0]
			if argsJSON != "" {
				var deploymentArgs models.Args
				if err := json.Unmarshal([]byte(argsJSON), &deploymentArgs); err != nil {
					return fmt.Errorf("invalid --args: %w", err)
				}
				params.DeploymentArgs = deploymentArgs
			}

			result, err := app.RecordDeployment.Run(cmd.Context(), params)
			if err != nil {
				return err
			}
			if app.Config.JSON {
				return render.PrintJSON(cmd.OutOrStdout(), result.Record)
			}

			verb := "Updated"
			if result.Created() {
				verb = "Recorded"
			}
			fmt.Fprintln(cmd.OutOrStdout(), render.FormatSuccess(fmt.Sprintf("%s %s at %s",
				verb, params.ContractName, render.Checksum(result.Record.PublicAddress()))))
			return nil
		},
	}

	addNetworkFlag(cmd, &network)
	cmd.Flags().StringVar(&params.Address, "address", "", "Deployed address (implementation address for proxies)")
	cmd.Flags().StringVar(&params.FactoryByteCodeHash, "hash", "", "Bytecode hash of the deployed code")
	cmd.Flags().StringVar(&params.ImplementationHash, "impl-hash", "", "Bytecode hash of the implementation")
	cmd.Flags().StringVar(&params.ProxyAddress, "proxy", "", "Proxy address for upgradeable deployments")
	cmd.Flags().StringVar(&argsJSON, "args", "", "Deployment args as a JSON array")
	_ = cmd.MarkFlagRequired("address")
	_ = cmd.MarkFlagRequired("hash")
	return cmd
}
