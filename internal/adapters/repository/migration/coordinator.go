package migration

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/lo"
	"github.com/trebuchet-org/treb-state/internal/adapters/keylock"
	"github.com/trebuchet-org/treb-state/internal/adapters/metrics"
	"github.com/trebuchet-org/treb-state/internal/domain"
	"github.com/trebuchet-org/treb-state/internal/domain/config"
	"github.com/trebuchet-org/treb-state/internal/domain/models"
	"github.com/trebuchet-org/treb-state/internal/usecase"
)

// BackendType is the metrics label of the coordinator itself
const BackendType = "migration"

// Options controls the dual-write policy
type Options struct {
	DualWrite       bool
	FallbackOnError bool
	ValidateWrites  bool
	LockTimeout     time.Duration
	BatchSize       int

	// OnProgress is called after every phase change and imported batch
	OnProgress func(usecase.MigrationProgress)
}

// OptionsFromConfig maps migration settings to coordinator options
func OptionsFromConfig(cfg config.MigrationConfig) Options {
	return Options{
		DualWrite:       cfg.DualWrite,
		FallbackOnError: cfg.FallbackOnError,
		ValidateWrites:  cfg.ValidateWrites,
		LockTimeout:     cfg.LockTimeout,
		BatchSize:       cfg.BatchSize,
	}
}

// Coordinator wraps a source and a target store behind the StateStore contract.
// While active, reads prefer the target and fall back to the source, and
// writes go to the target and optionally the source. Operations on the same
// key are serialized in arrival order.
type Coordinator struct {
	source usecase.StateStore
	target usecase.StateStore
	status usecase.MigrationStatusStore
	opts   Options
	locks  *keylock.Locker

	mu       sync.RWMutex
	state    usecase.MigrationState
	progress usecase.MigrationProgress
	running  bool
	warnings []usecase.ValidationWarning

	metrics *metrics.Recorder
	log     *slog.Logger
	now     func() time.Time
	newID   func() string
}

// NewCoordinator creates an active coordinator. status may be nil, in which
// case the migration state is not persisted.
func NewCoordinator(source, target usecase.StateStore, status usecase.MigrationStatusStore, opts Options, reg prometheus.Registerer, log *slog.Logger) *Coordinator {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Coordinator{
		source:   source,
		target:   target,
		status:   status,
		opts:     opts,
		locks:    keylock.New(opts.LockTimeout),
		state:    usecase.MigrationActive,
		progress: usecase.MigrationProgress{Phase: usecase.PhaseIdle},
		metrics:  metrics.NewRecorder(BackendType, reg),
		log:      log.With("component", "migration", "source", source.BackendType(), "target", target.BackendType()),
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Source returns the authoritative legacy store
func (c *Coordinator) Source() usecase.StateStore { return c.source }

// Target returns the store being migrated to
func (c *Coordinator) Target() usecase.StateStore { return c.target }

// Initialize initializes both children and restores a persisted state
func (c *Coordinator) Initialize(ctx context.Context) error {
	var result *multierror.Error
	if err := c.target.Initialize(ctx); err != nil {
		result = multierror.Append(result, fmt.Errorf("target %s: %w", c.target.BackendType(), err))
	}
	if err := c.source.Initialize(ctx); err != nil {
		result = multierror.Append(result, fmt.Errorf("source %s: %w", c.source.BackendType(), err))
	}
	if err := result.ErrorOrNil(); err != nil {
		return domain.NewError(domain.KindBackendUnavailable, "failed to initialize migrating store", err, nil)
	}

	if c.status == nil {
		return nil
	}
	saved, err := c.status.Load(ctx)
	if err != nil {
		return domain.NewError(domain.KindBackendUnavailable, "failed to load migration status", err, nil)
	}
	if saved == nil {
		return nil
	}
	if saved.Source != c.source.BackendType() || saved.Target != c.target.BackendType() {
		c.log.Warn("ignoring migration status for other backends", "savedSource", saved.Source, "savedTarget", saved.Target)
		return nil
	}

	c.mu.Lock()
	c.state = saved.State
	c.progress = saved.Progress
	c.mu.Unlock()
	c.log.Debug("restored migration status", "state", saved.State, "phase", saved.Progress.Phase)
	return nil
}

// Close closes both children
func (c *Coordinator) Close() error {
	var result *multierror.Error
	if err := c.target.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := c.source.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

// State returns the current lifecycle state
func (c *Coordinator) State() usecase.MigrationState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Coordinator) dualWrite() bool {
	return c.State() == usecase.MigrationActive && c.opts.DualWrite
}

// single returns the only store in use once the migration is decided
func (c *Coordinator) single() (usecase.StateStore, bool) {
	switch c.State() {
	case usecase.MigrationCompleted:
		return c.target, true
	case usecase.MigrationRolledBack:
		return c.source, true
	default:
		return nil, false
	}
}

// GetContract reads the target first and falls back to the source. A record
// only found in the source is copied into the target while dual-writing.
func (c *Coordinator) GetContract(ctx context.Context, chainID uint64, contractName string) (rec *models.ContractRecord, err error) {
	defer c.metrics.Track(metrics.OpRead, time.Now(), &err)

	if store, ok := c.single(); ok {
		return store.GetContract(ctx, chainID, contractName)
	}

	key := domain.GenerateKey(chainID, contractName)
	release, err := c.locks.Lock(ctx, key)
	if err != nil {
		return nil, err
	}
	defer release()

	rec, targetErr := c.target.GetContract(ctx, chainID, contractName)
	if targetErr == nil && rec != nil {
		return rec, nil
	}
	if targetErr != nil {
		c.log.Warn("target read failed, falling back to source", "key", key, "error", targetErr)
	}

	found, sourceErr := c.source.GetContract(ctx, chainID, contractName)
	if sourceErr != nil {
		if targetErr != nil {
			return nil, bothFailed(domain.KindBackendUnavailable, "read failed on both backends", key, targetErr, sourceErr)
		}
		return nil, sourceErr
	}
	if found != nil && targetErr == nil && c.dualWrite() {
		if err := c.repair(ctx, found); err != nil {
			c.log.Warn("read repair failed", "key", key, "error", err)
		} else {
			c.log.Debug("repaired target from source", "key", key)
		}
	}
	return found, nil
}

// repair copies a source record into the target through the import path so
// the copy keeps the source timestamp. Callers hold the key's lock.
func (c *Coordinator) repair(ctx context.Context, rec *models.ContractRecord) error {
	data, err := domain.EncodeExport(c.source.BackendType(), []*models.ContractRecord{rec}, domain.ExportOptions{Format: domain.ExportFormatJSON}, c.now())
	if err != nil {
		return err
	}
	return c.target.ImportAll(ctx, data, false)
}

// PutContract writes the target and, while dual-writing, the source. The write
// succeeds if the target accepted it, or if only the source did and fallback
// is allowed. On success rec carries the stored timestamp.
func (c *Coordinator) PutContract(ctx context.Context, chainID uint64, rec *models.ContractRecord) (err error) {
	defer c.metrics.Track(metrics.OpWrite, time.Now(), &err)

	if store, ok := c.single(); ok {
		return store.PutContract(ctx, chainID, rec)
	}
	if err := domain.BindChain(chainID, rec); err != nil {
		return err
	}

	key := domain.GenerateKey(chainID, rec.ContractName)
	release, err := c.locks.Lock(ctx, key)
	if err != nil {
		return err
	}
	defer release()

	targetRec := rec.Clone()
	targetErr := c.target.PutContract(ctx, chainID, targetRec)

	var sourceRec *models.ContractRecord
	var sourceErr error
	tried := c.dualWrite() || (targetErr != nil && c.opts.FallbackOnError)
	if tried {
		sourceRec = rec.Clone()
		sourceErr = c.source.PutContract(ctx, chainID, sourceRec)
	}

	switch {
	case targetErr == nil:
		if sourceErr != nil {
			c.log.Warn("source write failed", "key", key, "error", sourceErr)
		}
		*rec = *targetRec
		if c.opts.ValidateWrites {
			c.validateWrite(ctx, chainID, targetRec)
		}
		return nil
	case tried && sourceErr == nil && c.opts.FallbackOnError:
		c.log.Warn("target write failed, kept source write", "key", key, "error", targetErr)
		*rec = *sourceRec
		return nil
	case !tried:
		return domain.NewError(domain.KindWriteFailed, "target write failed", targetErr, map[string]any{
			"key":         key,
			"targetError": targetErr.Error(),
		})
	case sourceErr == nil:
		return domain.NewError(domain.KindWriteFailed, "target write failed and fallback is disabled", targetErr, map[string]any{
			"key":         key,
			"targetError": targetErr.Error(),
		})
	default:
		return bothFailed(domain.KindWriteFailed, "write failed on both backends", key, targetErr, sourceErr)
	}
}

// validateWrite re-reads a key from the target and records a warning for
// every key field that differs from what was written
func (c *Coordinator) validateWrite(ctx context.Context, chainID uint64, written *models.ContractRecord) {
	key := domain.GenerateKey(chainID, written.ContractName)
	readBack, err := c.target.GetContract(ctx, chainID, written.ContractName)

	var found []usecase.ValidationWarning
	warn := func(field, want, got string) {
		found = append(found, usecase.ValidationWarning{
			Key:       key,
			Field:     field,
			Written:   want,
			ReadBack:  got,
			Timestamp: c.now().UnixMilli(),
		})
	}
	switch {
	case err != nil:
		warn("read", "", err.Error())
	case readBack == nil:
		warn("presence", key, "")
	default:
		if readBack.Address != written.Address {
			warn("address", written.Address, readBack.Address)
		}
		if readBack.FactoryByteCodeHash != written.FactoryByteCodeHash {
			warn("factoryByteCodeHash", written.FactoryByteCodeHash, readBack.FactoryByteCodeHash)
		}
	}
	if len(found) == 0 {
		return
	}

	c.mu.Lock()
	c.warnings = append(c.warnings, found...)
	c.mu.Unlock()
	for _, w := range found {
		c.log.Warn("write validation mismatch", "key", w.Key, "field", w.Field, "written", w.Written, "readBack", w.ReadBack)
	}
}

// ValidationWarnings returns the mismatches recorded so far
func (c *Coordinator) ValidationWarnings() []usecase.ValidationWarning {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]usecase.ValidationWarning(nil), c.warnings...)
}

// readBoth runs fn on both children. A single failure is logged and the other
// result is used; two failures are returned together.
func readBoth[T any](c *Coordinator, op string, fn func(usecase.StateStore) (T, error)) (fromTarget, fromSource T, err error) {
	fromTarget, targetErr := fn(c.target)
	fromSource, sourceErr := fn(c.source)
	switch {
	case targetErr != nil && sourceErr != nil:
		return fromTarget, fromSource, bothFailed(domain.KindBackendUnavailable, op+" failed on both backends", "", targetErr, sourceErr)
	case targetErr != nil:
		c.log.Warn(op+" failed on target, using source only", "error", targetErr)
	case sourceErr != nil:
		c.log.Warn(op+" failed on source, using target only", "error", sourceErr)
	}
	return fromTarget, fromSource, nil
}

// mergeRecords unions two record sets, the first winning for a shared key
func mergeRecords(preferred, other []*models.ContractRecord) []*models.ContractRecord {
	byKey := make(map[string]*models.ContractRecord, len(preferred)+len(other))
	for _, rec := range other {
		byKey[domain.GenerateKey(rec.ChainID, rec.ContractName)] = rec
	}
	for _, rec := range preferred {
		byKey[domain.GenerateKey(rec.ChainID, rec.ContractName)] = rec
	}
	out := lo.Values(byKey)
	domain.SortByKey(out)
	return out
}

// GetAllContracts merges both children while active, the target winning
func (c *Coordinator) GetAllContracts(ctx context.Context, chainID uint64) (records []*models.ContractRecord, err error) {
	defer c.metrics.Track(metrics.OpRead, time.Now(), &err)

	if store, ok := c.single(); ok {
		return store.GetAllContracts(ctx, chainID)
	}
	fromTarget, fromSource, err := readBoth(c, "list", func(s usecase.StateStore) ([]*models.ContractRecord, error) {
		return s.GetAllContracts(ctx, chainID)
	})
	if err != nil {
		return nil, err
	}
	return mergeRecords(fromTarget, fromSource), nil
}

// QueryContracts merges both children while active, the target winning
func (c *Coordinator) QueryContracts(ctx context.Context, opts domain.QueryOptions) (records []*models.ContractRecord, err error) {
	defer c.metrics.Track(metrics.OpQuery, time.Now(), &err)

	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if store, ok := c.single(); ok {
		return store.QueryContracts(ctx, opts)
	}
	fromTarget, fromSource, err := readBoth(c, "query", func(s usecase.StateStore) ([]*models.ContractRecord, error) {
		return s.QueryContracts(ctx, opts)
	})
	if err != nil {
		return nil, err
	}
	return domain.ApplyQuery(mergeRecords(fromTarget, fromSource), opts), nil
}

// HasContract reports whether GetContract would find the record
func (c *Coordinator) HasContract(ctx context.Context, chainID uint64, contractName string) (bool, error) {
	rec, err := c.GetContract(ctx, chainID, contractName)
	if err != nil {
		return false, err
	}
	return rec != nil, nil
}

// DeleteContract removes the record from both children while active. Any
// failure is returned since the other child would keep serving the record.
func (c *Coordinator) DeleteContract(ctx context.Context, chainID uint64, contractName string) (deleted bool, err error) {
	defer c.metrics.Track(metrics.OpWrite, time.Now(), &err)

	if store, ok := c.single(); ok {
		return store.DeleteContract(ctx, chainID, contractName)
	}

	key := domain.GenerateKey(chainID, contractName)
	release, err := c.locks.Lock(ctx, key)
	if err != nil {
		return false, err
	}
	defer release()

	fromTarget, targetErr := c.target.DeleteContract(ctx, chainID, contractName)
	fromSource, sourceErr := c.source.DeleteContract(ctx, chainID, contractName)
	switch {
	case targetErr != nil && sourceErr != nil:
		return false, bothFailed(domain.KindWriteFailed, "delete failed on both backends", key, targetErr, sourceErr)
	case targetErr != nil:
		return false, domain.NewError(domain.KindWriteFailed, "delete failed on target", targetErr, map[string]any{
			"key":           key,
			"targetError":   targetErr.Error(),
			"sourceDeleted": fromSource,
		})
	case sourceErr != nil:
		return false, domain.NewError(domain.KindWriteFailed, "delete failed on source", sourceErr, map[string]any{
			"key":           key,
			"sourceError":   sourceErr.Error(),
			"targetDeleted": fromTarget,
		})
	}
	return fromTarget || fromSource, nil
}

// ExportAll exports the merged view while active
func (c *Coordinator) ExportAll(ctx context.Context, opts domain.ExportOptions) (data []byte, err error) {
	defer c.metrics.Track(metrics.OpQuery, time.Now(), &err)

	if store, ok := c.single(); ok {
		return store.ExportAll(ctx, opts)
	}
	raw := domain.ExportOptions{Format: domain.ExportFormatJSON, ChainIDs: opts.ChainIDs}
	fromTarget, fromSource, err := readBoth(c, "export", func(s usecase.StateStore) ([]*models.ContractRecord, error) {
		blob, err := s.ExportAll(ctx, raw)
		if err != nil {
			return nil, err
		}
		env, err := domain.DecodeExport(blob, domain.DecodeOptions{})
		if err != nil {
			return nil, err
		}
		return env.Contracts, nil
	})
	if err != nil {
		return nil, err
	}
	return domain.EncodeExport(c.BackendType(), mergeRecords(fromTarget, fromSource), opts, c.now())
}

// ImportAll follows the write policy of PutContract for the whole blob, with
// every key in it locked for the duration
func (c *Coordinator) ImportAll(ctx context.Context, data []byte, overwrite bool) (err error) {
	defer c.metrics.Track(metrics.OpWrite, time.Now(), &err)

	if store, ok := c.single(); ok {
		return store.ImportAll(ctx, data, overwrite)
	}
	env, err := domain.DecodeExport(data, domain.DecodeOptions{})
	if err != nil {
		return err
	}
	release, err := c.lockAll(ctx, env.Contracts)
	if err != nil {
		return err
	}
	defer release()

	targetErr := c.target.ImportAll(ctx, data, overwrite)
	var sourceErr error
	tried := c.dualWrite() || (targetErr != nil && c.opts.FallbackOnError)
	if tried {
		sourceErr = c.source.ImportAll(ctx, data, overwrite)
	}
	switch {
	case targetErr == nil:
		if sourceErr != nil {
			c.log.Warn("source import failed", "error", sourceErr)
		}
		return nil
	case tried && sourceErr == nil && c.opts.FallbackOnError:
		c.log.Warn("target import failed, kept source import", "error", targetErr)
		return nil
	case sourceErr == nil:
		return domain.NewError(domain.KindWriteFailed, "target import failed", targetErr, map[string]any{
			"targetError": targetErr.Error(),
		})
	default:
		return bothFailed(domain.KindWriteFailed, "import failed on both backends", "", targetErr, sourceErr)
	}
}

// lockAll takes the locks of every record's key in sorted order
func (c *Coordinator) lockAll(ctx context.Context, records []*models.ContractRecord) (func(), error) {
	keys := lo.Uniq(lo.Map(records, func(rec *models.ContractRecord, _ int) string {
		return domain.GenerateKey(rec.ChainID, rec.ContractName)
	}))
	sort.Strings(keys)

	releases := make([]func(), 0, len(keys))
	releaseAll := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}
	for _, key := range keys {
		release, err := c.locks.Lock(ctx, key)
		if err != nil {
			releaseAll()
			return nil, err
		}
		releases = append(releases, release)
	}
	return releaseAll, nil
}

// ValidateIntegrity checks both children while active
func (c *Coordinator) ValidateIntegrity(ctx context.Context) (*domain.IntegrityReport, error) {
	if store, ok := c.single(); ok {
		return store.ValidateIntegrity(ctx)
	}
	report := domain.NewIntegrityReport(c.now())
	for _, child := range []struct {
		role  string
		store usecase.StateStore
	}{{"target", c.target}, {"source", c.source}} {
		prefix := fmt.Sprintf("%s (%s): ", child.role, child.store.BackendType())
		r, err := child.store.ValidateIntegrity(ctx)
		if err != nil {
			report.AddError("%s%v", prefix, err)
			continue
		}
		report.Merge(prefix, r)
	}
	return report, nil
}

// Metrics reports the coordinator's own end-to-end latencies
func (c *Coordinator) Metrics() domain.StoreMetrics {
	return c.metrics.Snapshot()
}

// BackendType names both children
func (c *Coordinator) BackendType() string {
	return fmt.Sprintf("%s(%s->%s)", BackendType, c.source.BackendType(), c.target.BackendType())
}

// IsHealthy is true while either child is healthy
func (c *Coordinator) IsHealthy(ctx context.Context) bool {
	if store, ok := c.single(); ok {
		return store.IsHealthy(ctx)
	}
	return c.target.IsHealthy(ctx) || c.source.IsHealthy(ctx)
}

func bothFailed(kind domain.ErrorKind, message, key string, targetErr, sourceErr error) error {
	merr := multierror.Append(nil, fmt.Errorf("target: %w", targetErr), fmt.Errorf("source: %w", sourceErr))
	details := map[string]any{
		"targetError": targetErr.Error(),
		"sourceError": sourceErr.Error(),
	}
	if key != "" {
		details["key"] = key
	}
	return domain.NewError(kind, message, merr, details)
}

var _ usecase.MigratingStore = (*Coordinator)(nil)
