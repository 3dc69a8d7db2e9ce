package usecase

import (
	"context"

	"github.com/trebuchet-org/treb-state/internal/domain"
)

// StoreStatusResult summarizes the active store
type StoreStatusResult struct {
	Backend   string
	Healthy   bool
	Metrics   domain.StoreMetrics
	Migration *MigrationView
}

// StoreStatus reports health and metrics of the configured store
type StoreStatus struct {
	store StateStore
}

// NewStoreStatus creates a new StoreStatus use case
func NewStoreStatus(store StateStore) *StoreStatus {
	return &StoreStatus{store: store}
}

// Run collects the status
func (uc *StoreStatus) Run(ctx context.Context) *StoreStatusResult {
	result := &StoreStatusResult{
		Backend: uc.store.BackendType(),
		Healthy: uc.store.IsHealthy(ctx),
		Metrics: uc.store.Metrics(),
	}
	if ms, ok := uc.store.(MigratingStore); ok {
		result.Migration = &MigrationView{
			Backend:  ms.BackendType(),
			State:    ms.State(),
			Progress: ms.Progress(),
			Warnings: ms.ValidationWarnings(),
		}
	}
	return result
}
