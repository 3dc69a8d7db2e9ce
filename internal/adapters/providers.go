package adapters

import (
	"log/slog"

	"github.com/google/wire"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"github.com/trebuchet-org/treb-state/internal/adapters/fs"
	"github.com/trebuchet-org/treb-state/internal/adapters/interactive"
	"github.com/trebuchet-org/treb-state/internal/adapters/progress"
	"github.com/trebuchet-org/treb-state/internal/adapters/repository"
	"github.com/trebuchet-org/treb-state/internal/domain/config"
	"github.com/trebuchet-org/treb-state/internal/usecase"
)

// ProvideFs provides the OS filesystem
func ProvideFs() afero.Fs {
	return afero.NewOsFs()
}

// ProvideRegistry provides a process-local metrics registry
func ProvideRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

// ProvideProgressSink chooses a spinner for humans and silence for machines
func ProvideProgressSink(cfg *config.RuntimeConfig) usecase.ProgressSink {
	if cfg.JSON || cfg.NonInteractive {
		return usecase.NopProgress{}
	}
	return progress.NewSpinnerSink()
}

// ProvideFactory builds the store factory with migration progress forwarded to sink
func ProvideFactory(
	cfg *config.RuntimeConfig,
	writer *fs.AtomicWriter,
	status usecase.MigrationStatusStore,
	reg prometheus.Registerer,
	log *slog.Logger,
	sink usecase.ProgressSink,
) *repository.Factory {
	f := repository.NewFactory(cfg, writer, status, reg, log)
	f.OnProgress = progress.ForwardMigration(sink)
	return f
}

// FSSet provides filesystem-based implementations
var FSSet = wire.NewSet(
	ProvideFs,
	fs.NewAtomicWriterFromConfig,
	wire.Bind(new(usecase.FileWriter), new(*fs.AtomicWriter)),
	wire.Bind(new(usecase.FileReader), new(*fs.AtomicWriter)),

	fs.NewMigrationStatusStoreAdapter,
	wire.Bind(new(usecase.MigrationStatusStore), new(*fs.MigrationStatusStoreAdapter)),
)

// StoreSet provides the configured state store
var StoreSet = wire.NewSet(
	ProvideRegistry,
	wire.Bind(new(prometheus.Registerer), new(*prometheus.Registry)),
	ProvideFactory,
	repository.ProvideStateStore,
)

// InteractiveSet provides interactive implementations
var InteractiveSet = wire.NewSet(
	ProvideProgressSink,
	interactive.NewPrompterAdapter,
	wire.Bind(new(usecase.ConfirmPrompter), new(*interactive.PrompterAdapter)),
	wire.Bind(new(usecase.RecordSelector), new(*interactive.PrompterAdapter)),
)

// AllAdapters includes all adapter sets
var AllAdapters = wire.NewSet(
	FSSet,
	StoreSet,
	InteractiveSet,
)
