package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/trebuchet-org/treb-state/internal/cli/render"
	"github.com/trebuchet-org/treb-state/internal/domain"
	"github.com/trebuchet-org/treb-state/internal/usecase"
)

// NewExportCmd creates the export command
func NewExportCmd() *cobra.Command {
	var (
		format     string
		networks   []string
		noMetadata bool
		compact    bool
		output     string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export stored records as JSON or YAML",
		Long: `Export stored records into a portable blob that any backend can import.

Examples:
  treb-state export > state.json
  treb-state export --format yaml --network mainnet --network bsc -o state.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := getApp(cmd)
			if err != nil {
				return err
			}

			opts := domain.ExportOptions{
				Format:          format,
				IncludeMetadata: !noMetadata,
				PrettyPrint:     !compact,
			}
			for _, network := range networks {
				chainID, err := resolveChain(app.Config, network)
				if err != nil {
					return err
				}
				opts.ChainIDs = append(opts.ChainIDs, chainID)
			}

			data, err := app.ExportState.Run(cmd.Context(), usecase.ExportStateParams{
				Options:    opts,
				OutputPath: output,
			})
			if err != nil {
				return err
			}
			if output == "" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if !app.Config.JSON {
				fmt.Fprintln(cmd.ErrOrStderr(), render.FormatSuccess("Exported to "+output))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", domain.ExportFormatJSON, "Output format (json, yaml)")
	cmd.Flags().StringArrayVarP(&networks, "network", "n", nil, "Only export these networks (repeatable)")
	cmd.Flags().BoolVar(&noMetadata, "no-metadata", false, "Omit the export metadata block")
	cmd.Flags().BoolVar(&compact, "compact", false, "Do not indent JSON output")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to this file instead of stdout")
	return cmd
}
