package usecase

import (
	"context"

	"github.com/trebuchet-org/treb-state/internal/domain"
)

// ImportStateParams configures an import
type ImportStateParams struct {
	InputPath string
	Overwrite bool
	// DryRun decodes the blob without writing
	DryRun bool
}

// ImportStateResult summarizes an import
type ImportStateResult struct {
	Records  int
	Chains   []uint64
	Backend  string
	Imported bool
}

// ImportState loads an exported blob into the store
type ImportState struct {
	store  StateStore
	reader FileReader
	sink   ProgressSink
}

// NewImportState creates a new ImportState use case
func NewImportState(store StateStore, reader FileReader, sink ProgressSink) *ImportState {
	return &ImportState{store: store, reader: reader, sink: sink}
}

// Run reads and decodes the blob, then imports it unless DryRun is set
func (uc *ImportState) Run(ctx context.Context, params ImportStateParams) (*ImportStateResult, error) {
	data, err := uc.reader.ReadFile(params.InputPath)
	if err != nil {
		return nil, domain.NewError(domain.KindBackendUnavailable, "failed to read import file", err,
			map[string]any{"path": params.InputPath})
	}

	envelope, err := domain.DecodeExport(data, domain.DecodeOptions{})
	if err != nil {
		return nil, err
	}

	result := &ImportStateResult{
		Records: len(envelope.Contracts),
		Backend: envelope.Backend,
	}
	seen := make(map[uint64]bool)
	for _, rec := range envelope.Contracts {
		if !seen[rec.ChainID] {
			seen[rec.ChainID] = true
			result.Chains = append(result.Chains, rec.ChainID)
		}
	}
	if params.DryRun {
		return result, nil
	}

	uc.sink.OnProgress(ctx, ProgressEvent{
		Stage:   "importing",
		Message: "Importing into " + uc.store.BackendType(),
		Total:   result.Records,
		Spinner: true,
	})
	defer uc.sink.OnProgress(ctx, ProgressEvent{Stage: "complete"})

	if err := uc.store.ImportAll(ctx, data, params.Overwrite); err != nil {
		return nil, err
	}
	result.Imported = true
	return result, nil
}
