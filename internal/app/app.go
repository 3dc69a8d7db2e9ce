package app

import (
	"github.com/trebuchet-org/treb-state/internal/domain/config"
	"github.com/trebuchet-org/treb-state/internal/usecase"
)

// App is the main application container that holds all use cases
type App struct {
	// Configuration
	Config *config.RuntimeConfig

	// Shared dependencies
	Store    usecase.StateStore
	Selector usecase.RecordSelector

	// Use cases
	ShowContract     *usecase.ShowContract
	ListContracts    *usecase.ListContracts
	RecordDeployment *usecase.RecordDeployment
	DeleteContract   *usecase.DeleteContract
	PlanDeployment   *usecase.PlanDeployment
	ExportState      *usecase.ExportState
	ImportState      *usecase.ImportState
	ValidateState    *usecase.ValidateState
	RunMigration     *usecase.RunMigration
	StoreStatus      *usecase.StoreStatus
}

// NewApp creates a new application instance with all use cases
func NewApp(
	cfg *config.RuntimeConfig,
	store usecase.StateStore,
	selector usecase.RecordSelector,
	showContract *usecase.ShowContract,
	listContracts *usecase.ListContracts,
	recordDeployment *usecase.RecordDeployment,
	deleteContract *usecase.DeleteContract,
	planDeployment *usecase.PlanDeployment,
	exportState *usecase.ExportState,
	importState *usecase.ImportState,
	validateState *usecase.ValidateState,
	runMigration *usecase.RunMigration,
	storeStatus *usecase.StoreStatus,
) *App {
	return &App{
		Config:           cfg,
		Store:            store,
		Selector:         selector,
		ShowContract:     showContract,
		ListContracts:    listContracts,
		RecordDeployment: recordDeployment,
		DeleteContract:   deleteContract,
		PlanDeployment:   planDeployment,
		ExportState:      exportState,
		ImportState:      importState,
		ValidateState:    validateState,
		RunMigration:     runMigration,
		StoreStatus:      storeStatus,
	}
}
