package migration

import (
	"context"
	"fmt"

	"github.com/samber/lo"
	"github.com/trebuchet-org/treb-state/internal/domain"
	"github.com/trebuchet-org/treb-state/internal/domain/models"
	"github.com/trebuchet-org/treb-state/internal/usecase"
)

const defaultBatchSize = 50

// Migrate copies every source record into the target in batches and checks
// the target's integrity afterwards. Target records written since the export
// was taken are newer and are kept.
func (c *Coordinator) Migrate(ctx context.Context) (*usecase.MigrationProgress, error) {
	c.mu.Lock()
	if c.state != usecase.MigrationActive {
		state := c.state
		c.mu.Unlock()
		return nil, domain.NewError(domain.KindMigrationFailed, "migration is no longer active", nil, map[string]any{"state": state})
	}
	if c.running {
		id := c.progress.ID
		c.mu.Unlock()
		return nil, domain.NewError(domain.KindMigrationFailed, "a migration run is already in progress", nil, map[string]any{"id": id})
	}
	c.running = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}()

	p := usecase.MigrationProgress{
		ID:        c.newID(),
		Phase:     usecase.PhaseExporting,
		StartedAt: c.now().UnixMilli(),
	}
	c.setProgress(ctx, p, false)
	c.log.Info("starting bulk migration", "id", p.ID)

	blob, err := c.source.ExportAll(ctx, domain.ExportOptions{Format: domain.ExportFormatJSON})
	if err != nil {
		return c.fail(ctx, p, fmt.Errorf("export from source: %w", err))
	}
	env, err := domain.DecodeExport(blob, domain.DecodeOptions{})
	if err != nil {
		return c.fail(ctx, p, fmt.Errorf("decode source export: %w", err))
	}

	p.Phase = usecase.PhaseImporting
	p.Total = len(env.Contracts)
	c.setProgress(ctx, p, false)

	size := c.opts.BatchSize
	if size <= 0 {
		size = defaultBatchSize
	}
	skipped := 0
	for _, batch := range lo.Chunk(env.Contracts, size) {
		if err := ctx.Err(); err != nil {
			return c.fail(ctx, p, err)
		}
		n, err := c.importBatch(ctx, batch)
		if err != nil {
			return c.fail(ctx, p, err)
		}
		skipped += n
		p.Processed += len(batch)
		c.setProgress(ctx, p, false)
	}

	p.Phase = usecase.PhaseValidating
	c.setProgress(ctx, p, false)
	report, err := c.target.ValidateIntegrity(ctx)
	if err != nil {
		return c.fail(ctx, p, fmt.Errorf("validate target: %w", err))
	}
	if !report.IsValid {
		p.Errors = append(p.Errors, report.Errors...)
		return c.fail(ctx, p, fmt.Errorf("target integrity check reported %d errors", len(report.Errors)))
	}

	p.Phase = usecase.PhaseDone
	p.FinishedAt = c.now().UnixMilli()
	c.setProgress(ctx, p, true)
	c.log.Info("bulk migration finished", "id", p.ID, "records", p.Total, "keptNewer", skipped, "warnings", len(report.Warnings))
	return &p, nil
}

// importBatch imports one batch with overwrite while holding its keys. It
// returns how many records were left out because the target is newer.
func (c *Coordinator) importBatch(ctx context.Context, batch []*models.ContractRecord) (int, error) {
	release, err := c.lockAll(ctx, batch)
	if err != nil {
		return 0, err
	}
	defer release()

	fresh := make([]*models.ContractRecord, 0, len(batch))
	for _, rec := range batch {
		current, err := c.target.GetContract(ctx, rec.ChainID, rec.ContractName)
		if err != nil {
			return 0, fmt.Errorf("read target %s: %w", domain.GenerateKey(rec.ChainID, rec.ContractName), err)
		}
		if current != nil && current.Timestamp > rec.Timestamp {
			continue
		}
		fresh = append(fresh, rec)
	}
	if len(fresh) == 0 {
		return len(batch), nil
	}

	data, err := domain.EncodeExport(c.source.BackendType(), fresh, domain.ExportOptions{Format: domain.ExportFormatJSON}, c.now())
	if err != nil {
		return 0, err
	}
	if err := c.target.ImportAll(ctx, data, true); err != nil {
		return 0, fmt.Errorf("import into target: %w", err)
	}
	return len(batch) - len(fresh), nil
}

func (c *Coordinator) fail(ctx context.Context, p usecase.MigrationProgress, err error) (*usecase.MigrationProgress, error) {
	phase := p.Phase
	p.Phase = usecase.PhaseFailed
	p.FinishedAt = c.now().UnixMilli()
	p.Errors = append(p.Errors, err.Error())
	c.setProgress(ctx, p, true)
	c.log.Error("bulk migration failed", "id", p.ID, "phase", phase, "error", err)
	return &p, domain.NewError(domain.KindMigrationFailed, "bulk migration failed", err, map[string]any{
		"id":     p.ID,
		"phase":  phase,
		"errors": p.Errors,
	})
}

// setProgress publishes p and, when persist is set, saves it with the state
func (c *Coordinator) setProgress(ctx context.Context, p usecase.MigrationProgress, persist bool) {
	p.Errors = append([]string(nil), p.Errors...)
	c.mu.Lock()
	c.progress = p
	c.mu.Unlock()

	if c.opts.OnProgress != nil {
		c.opts.OnProgress(p)
	}
	if !persist {
		return
	}
	if err := c.saveStatus(ctx, c.State(), p); err != nil {
		c.log.Warn("failed to persist migration progress", "id", p.ID, "error", err)
	}
}

// Progress returns the last published progress
func (c *Coordinator) Progress() usecase.MigrationProgress {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p := c.progress
	p.Errors = append([]string(nil), c.progress.Errors...)
	return p
}

// CompleteMigration promotes the target. From now on only the target is used.
func (c *Coordinator) CompleteMigration(ctx context.Context) error {
	return c.decide(ctx, usecase.MigrationCompleted)
}

// RollbackMigration abandons the target. From now on only the source is used.
func (c *Coordinator) RollbackMigration(ctx context.Context) error {
	return c.decide(ctx, usecase.MigrationRolledBack)
}

func (c *Coordinator) decide(ctx context.Context, next usecase.MigrationState) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != usecase.MigrationActive {
		return domain.NewError(domain.KindValidationFailed, fmt.Sprintf("migration is already %s", c.state), nil, map[string]any{
			"state":     c.state,
			"requested": next,
		})
	}
	if c.running {
		return domain.NewError(domain.KindValidationFailed, "a migration run is in progress", nil, map[string]any{"id": c.progress.ID})
	}
	if next == usecase.MigrationCompleted && c.progress.Phase != usecase.PhaseDone {
		c.log.Warn("completing migration without a successful bulk run", "phase", c.progress.Phase)
	}

	if err := c.saveStatus(ctx, next, c.progress); err != nil {
		return domain.NewError(domain.KindWriteFailed, "failed to persist migration state", err, map[string]any{"state": next})
	}
	c.state = next
	c.log.Info("migration decided", "state", next)
	return nil
}

func (c *Coordinator) saveStatus(ctx context.Context, state usecase.MigrationState, p usecase.MigrationProgress) error {
	if c.status == nil {
		return nil
	}
	return c.status.Save(ctx, &usecase.MigrationStatus{
		Source:    c.source.BackendType(),
		Target:    c.target.BackendType(),
		State:     state,
		Progress:  p,
		UpdatedAt: c.now().UTC(),
	})
}
