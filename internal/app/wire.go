//go:build wireinject
// +build wireinject

package app

import (
	"github.com/google/wire"
	"github.com/spf13/viper"
	"github.com/trebuchet-org/treb-state/internal/adapters"
	"github.com/trebuchet-org/treb-state/internal/config"
	"github.com/trebuchet-org/treb-state/internal/logging"
	"github.com/trebuchet-org/treb-state/internal/usecase"
)

// InitApp creates a fully wired App instance. The cleanup closes the stores.
func InitApp(v *viper.Viper) (*App, func(), error) {
	wire.Build(
		// Configuration
		config.Provider,
		logging.LoggingSet,

		// Adapters
		adapters.AllAdapters,

		// Use cases
		usecase.NewShowContract,
		usecase.NewListContracts,
		usecase.NewRecordDeployment,
		usecase.NewDeleteContract,
		usecase.NewPlanDeployment,
		usecase.NewExportState,
		usecase.NewImportState,
		usecase.NewValidateState,
		usecase.NewRunMigration,
		usecase.NewStoreStatus,

		// App
		NewApp,
	)
	return nil, nil, nil
}
