package repository

import (
	"context"
	"log/slog"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/trebuchet-org/treb-state/internal/adapters/fs"
	"github.com/trebuchet-org/treb-state/internal/adapters/repository/files"
	"github.com/trebuchet-org/treb-state/internal/adapters/repository/legacy"
	"github.com/trebuchet-org/treb-state/internal/adapters/repository/migration"
	"github.com/trebuchet-org/treb-state/internal/domain"
	"github.com/trebuchet-org/treb-state/internal/domain/config"
	"github.com/trebuchet-org/treb-state/internal/usecase"
)

// Factory builds initialized stores from a backend selector. Each backend is
// instantiated once per factory, so the legacy database handle and each
// network file have a single owner in the process.
type Factory struct {
	cfg    *config.RuntimeConfig
	writer *fs.AtomicWriter
	status usecase.MigrationStatusStore
	reg    prometheus.Registerer
	log    *slog.Logger

	// OnProgress is passed to migrating stores
	OnProgress func(usecase.MigrationProgress)

	mu     sync.Mutex
	stores map[config.Backend]usecase.StateStore
	order  []config.Backend
}

// NewFactory creates a store factory
func NewFactory(cfg *config.RuntimeConfig, writer *fs.AtomicWriter, status usecase.MigrationStatusStore, reg prometheus.Registerer, log *slog.Logger) *Factory {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Factory{
		cfg:    cfg,
		writer: writer,
		status: status,
		reg:    reg,
		log:    log,
		stores: make(map[config.Backend]usecase.StateStore),
	}
}

func (f *Factory) build(backend config.Backend) (usecase.StateStore, error) {
	switch backend {
	case config.BackendLegacy:
		return legacy.NewStore(f.cfg, f.reg, f.log), nil
	case config.BackendFile:
		return files.NewFileStore(f.cfg, f.writer, f.reg, f.log), nil
	case config.BackendFileHierarchical:
		return files.NewUnifiedStore(f.cfg, f.writer, f.reg, f.log), nil
	default:
		return nil, domain.NewError(domain.KindValidationFailed, "unknown backend", nil, map[string]any{
			"backend": string(backend),
			"valid":   config.Backends(),
		})
	}
}

// instance returns the backend's store, constructing it on first use
func (f *Factory) instance(backend config.Backend) (usecase.StateStore, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if store, ok := f.stores[backend]; ok {
		return store, nil
	}
	store, err := f.build(backend)
	if err != nil {
		return nil, err
	}
	f.stores[backend] = store
	f.order = append(f.order, backend)
	return store, nil
}

// Create returns the initialized store for one backend
func (f *Factory) Create(ctx context.Context, backend config.Backend) (usecase.StateStore, error) {
	store, err := f.instance(backend)
	if err != nil {
		return nil, err
	}
	if err := store.Initialize(ctx); err != nil {
		return nil, err
	}
	f.log.Debug("created state store", "backend", backend)
	return store, nil
}

// CreateMigrating wraps source and target in an initialized coordinator
func (f *Factory) CreateMigrating(ctx context.Context, source, target config.Backend) (*migration.Coordinator, error) {
	if source == target {
		return nil, domain.NewError(domain.KindValidationFailed, "migration source and target must differ", nil, map[string]any{
			"source": string(source),
			"target": string(target),
		})
	}
	src, err := f.instance(source)
	if err != nil {
		return nil, err
	}
	dst, err := f.instance(target)
	if err != nil {
		return nil, err
	}

	opts := migration.OptionsFromConfig(f.cfg.Migration)
	opts.OnProgress = f.OnProgress
	c := migration.NewCoordinator(src, dst, f.status, opts, f.reg, f.log)
	if err := c.Initialize(ctx); err != nil {
		return nil, err
	}
	f.log.Debug("created migrating state store", "source", source, "target", target, "state", c.State())
	return c, nil
}

// Close closes every store the factory created, newest first
func (f *Factory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result *multierror.Error
	for i := len(f.order) - 1; i >= 0; i-- {
		if err := f.stores[f.order[i]].Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	f.stores = make(map[config.Backend]usecase.StateStore)
	f.order = nil
	return result.ErrorOrNil()
}

// ProvideStateStore returns the store the configuration selects: the
// coordinator when a migration is enabled, the plain backend otherwise.
func ProvideStateStore(f *Factory, cfg *config.RuntimeConfig) (usecase.StateStore, func(), error) {
	ctx := context.Background()
	var (
		store usecase.StateStore
		err   error
	)
	if cfg.Migration.Enabled {
		store, err = f.CreateMigrating(ctx, cfg.Migration.Source, cfg.Migration.Target)
	} else {
		store, err = f.Create(ctx, cfg.Storage.Backend)
	}
	if err != nil {
		_ = f.Close()
		return nil, nil, err
	}
	cleanup := func() {
		if err := f.Close(); err != nil {
			f.log.Warn("failed to close state stores", "error", err)
		}
	}
	return store, cleanup, nil
}
