package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/trebuchet-org/treb-state/internal/app"
	"github.com/trebuchet-org/treb-state/internal/config"
)

// contextKey is the type for context keys
type contextKey string

const (
	// appKey is the context key for the app instance
	appKey contextKey = "app"
)

// session owns the app built for one command invocation
type session struct {
	cleanup func()
	cancel  context.CancelFunc
}

func (s *session) close() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.cleanup != nil {
		s.cleanup()
	}
}

// Execute runs the CLI and releases the stores afterwards
func Execute(ctx context.Context) error {
	sess := &session{}
	defer sess.close()
	return newRootCmd(sess).ExecuteContext(ctx)
}

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	return newRootCmd(&session{})
}

func newRootCmd(sess *session) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "treb-state",
		Short: "Deployment state store for smart contracts",
		Long: `treb-state records where every contract is deployed on every network and
decides whether a contract needs a fresh deploy, an upgrade or nothing at all.

Records live in a legacy key-value database or in per-network JSON files, and
a migration mode moves them from one backend to another with dual writes.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Skip for help/version commands
			if cmd.Name() == "version" || cmd.Name() == "help" || cmd.Name() == "completion" {
				return nil
			}

			projectRoot, err := config.FindProjectRoot()
			if err != nil {
				return err
			}

			v, err := config.SetupViper(projectRoot, cmd)
			if err != nil {
				return err
			}

			appInstance, cleanup, err := app.InitApp(v)
			if err != nil {
				return fmt.Errorf("failed to initialize app: %w", err)
			}
			sess.cleanup = cleanup

			ctx := context.WithValue(cmd.Context(), appKey, appInstance)
			if appInstance.Config.Timeout > 0 {
				ctx, sess.cancel = context.WithTimeout(ctx, appInstance.Config.Timeout)
			}
			cmd.SetContext(ctx)
			return nil
		},
	}

	// Global flags
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().Bool("non-interactive", false, "Disable interactive prompts")
	rootCmd.PersistentFlags().Bool("json", false, "Output in JSON format")
	rootCmd.PersistentFlags().String("backend", "", "State backend (legacy, file, file-hierarchical)")
	rootCmd.PersistentFlags().String("base-path", "", "Directory holding the state files")
	rootCmd.PersistentFlags().Duration("timeout", 0, "Abort after this long (e.g. 30s)")

	rootCmd.AddGroup(&cobra.Group{
		ID:    "main",
		Title: "Main Commands",
	})
	rootCmd.AddGroup(&cobra.Group{
		ID:    "management",
		Title: "Management Commands",
	})

	for _, cmd := range []*cobra.Command{
		NewShowCmd(),
		NewListCmd(),
		NewPlanCmd(),
		NewRecordCmd(),
		NewDeleteCmd(),
	} {
		cmd.GroupID = "main"
		rootCmd.AddCommand(cmd)
	}

	for _, cmd := range []*cobra.Command{
		NewExportCmd(),
		NewImportCmd(),
		NewValidateCmd(),
		NewMigrateCmd(),
		NewStatusCmd(),
	} {
		cmd.GroupID = "management"
		rootCmd.AddCommand(cmd)
	}

	rootCmd.AddCommand(NewVersionCmd())
	return rootCmd
}

// getApp retrieves the app instance from the command context
func getApp(cmd *cobra.Command) (*app.App, error) {
	appInstance := cmd.Context().Value(appKey)
	if appInstance == nil {
		return nil, fmt.Errorf("app not initialized")
	}

	app, ok := appInstance.(*app.App)
	if !ok {
		return nil, fmt.Errorf("invalid app instance")
	}

	return app, nil
}
