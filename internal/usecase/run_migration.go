package usecase

import (
	"context"
	"fmt"

	"github.com/trebuchet-org/treb-state/internal/domain"
	"github.com/trebuchet-org/treb-state/internal/domain/config"
)

// MigrationView is the operator-facing state of a migration
type MigrationView struct {
	Backend  string
	State    MigrationState
	Progress MigrationProgress
	Warnings []ValidationWarning
}

// RunMigration drives a migrating store: bulk copy, then complete or roll back
type RunMigration struct {
	cfg      *config.RuntimeConfig
	store    StateStore
	prompter ConfirmPrompter
	sink     ProgressSink
}

// NewRunMigration creates a new RunMigration use case
func NewRunMigration(cfg *config.RuntimeConfig, store StateStore, prompter ConfirmPrompter, sink ProgressSink) *RunMigration {
	return &RunMigration{cfg: cfg, store: store, prompter: prompter, sink: sink}
}

func (uc *RunMigration) migrating() (MigratingStore, error) {
	ms, ok := uc.store.(MigratingStore)
	if !ok {
		return nil, domain.NewError(domain.KindValidationFailed,
			"migration is not enabled, set migration.enabled in treb-state.toml", nil,
			map[string]any{"backend": uc.store.BackendType()})
	}
	return ms, nil
}

// Migrate runs the bulk copy from source to target
func (uc *RunMigration) Migrate(ctx context.Context) (*MigrationProgress, error) {
	ms, err := uc.migrating()
	if err != nil {
		return nil, err
	}

	uc.sink.Info(fmt.Sprintf("Migrating %s", ms.BackendType()))
	progress, err := ms.Migrate(ctx)
	if err != nil {
		uc.sink.Error(err.Error())
		return progress, err
	}
	return progress, nil
}

// Complete switches all traffic to the target after confirmation
func (uc *RunMigration) Complete(ctx context.Context, force bool) (bool, error) {
	ms, err := uc.migrating()
	if err != nil {
		return false, err
	}
	if !uc.confirm(force, "Complete migration and route all operations to the target") {
		return false, nil
	}
	return true, ms.CompleteMigration(ctx)
}

// Rollback switches all traffic back to the source after confirmation
func (uc *RunMigration) Rollback(ctx context.Context, force bool) (bool, error) {
	ms, err := uc.migrating()
	if err != nil {
		return false, err
	}
	if !uc.confirm(force, "Roll back migration and route all operations to the source") {
		return false, nil
	}
	return true, ms.RollbackMigration(ctx)
}

// Status returns the current migration view
func (uc *RunMigration) Status(_ context.Context) (*MigrationView, error) {
	ms, err := uc.migrating()
	if err != nil {
		return nil, err
	}
	return &MigrationView{
		Backend:  ms.BackendType(),
		State:    ms.State(),
		Progress: ms.Progress(),
		Warnings: ms.ValidationWarnings(),
	}, nil
}

// confirm asks unless forced; non-interactive runs proceed
func (uc *RunMigration) confirm(force bool, label string) bool {
	if force || uc.cfg.NonInteractive {
		return true
	}
	return uc.prompter.Confirm(label)
}
