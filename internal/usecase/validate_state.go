package usecase

import (
	"context"

	"github.com/trebuchet-org/treb-state/internal/domain"
)

// ValidateState runs the store's integrity check
type ValidateState struct {
	store StateStore
	sink  ProgressSink
}

// NewValidateState creates a new ValidateState use case
func NewValidateState(store StateStore, sink ProgressSink) *ValidateState {
	return &ValidateState{store: store, sink: sink}
}

// Run returns the integrity report; an invalid report is not an error
func (uc *ValidateState) Run(ctx context.Context) (*domain.IntegrityReport, error) {
	uc.sink.OnProgress(ctx, ProgressEvent{
		Stage:   "validating",
		Message: "Validating " + uc.store.BackendType(),
		Spinner: true,
	})
	defer uc.sink.OnProgress(ctx, ProgressEvent{Stage: "complete"})

	return uc.store.ValidateIntegrity(ctx)
}
