package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/trebuchet-org/treb-state/internal/cli/render"
)

// NewMigrateCmd creates the migrate command group
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Move records between backends",
		Long: `Move records from the migration source to the migration target.

Enable migration mode in treb-state.toml first:

  [migration]
  enabled = true
  source = "legacy"
  target = "file"

While active, writes go to both backends and reads prefer the target. Run the
bulk copy with "migrate run", then settle with "migrate complete" or
"migrate rollback".`,
	}

	cmd.AddCommand(newMigrateRunCmd(), newMigrateCompleteCmd(), newMigrateRollbackCmd(), newMigrateStatusCmd())
	return cmd
}

func newMigrateRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Copy every source record into the target",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := getApp(cmd)
			if err != nil {
				return err
			}

			progress, err := app.RunMigration.Migrate(cmd.Context())
			if err != nil {
				return err
			}
			if app.Config.JSON {
				return render.PrintJSON(cmd.OutOrStdout(), progress)
			}
			fmt.Fprintln(cmd.OutOrStdout(), render.FormatSuccess(fmt.Sprintf(
				"Migrated %d/%d records (run %s)", progress.Processed, progress.Total, progress.ID)))
			return nil
		},
	}
}

func newMigrateCompleteCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "complete",
		Short: "Route all operations to the target",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := getApp(cmd)
			if err != nil {
				return err
			}
			done, err := app.RunMigration.Complete(cmd.Context(), force)
			return reportDecision(cmd, done, err, "Migration completed, the target is now authoritative")
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Skip confirmation")
	return cmd
}

func newMigrateRollbackCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "rollback",
		Short: "Route all operations back to the source",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := getApp(cmd)
			if err != nil {
				return err
			}
			done, err := app.RunMigration.Rollback(cmd.Context(), force)
			return reportDecision(cmd, done, err, "Migration rolled back, the source is authoritative")
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Skip confirmation")
	return cmd
}

func reportDecision(cmd *cobra.Command, done bool, err error, message string) error {
	if err != nil {
		return err
	}
	if !done {
		fmt.Fprintln(cmd.OutOrStdout(), "Cancelled")
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), render.FormatSuccess(message))
	return nil
}

func newMigrateStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show migration state, progress and write warnings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := getApp(cmd)
			if err != nil {
				return err
			}

			view, err := app.RunMigration.Status(cmd.Context())
			if err != nil {
				return err
			}
			if app.Config.JSON {
				return render.PrintJSON(cmd.OutOrStdout(), view)
			}
			return render.NewStatusRenderer(cmd.OutOrStdout()).RenderMigration(view)
		},
	}
}
