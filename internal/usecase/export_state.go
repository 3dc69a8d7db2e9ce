package usecase

import (
	"context"

	"github.com/trebuchet-org/treb-state/internal/domain"
)

// FileWriter writes output files atomically
type FileWriter interface {
	WriteFile(path string, data []byte) error
}

// FileReader reads input files
type FileReader interface {
	ReadFile(path string) ([]byte, error)
}

// ExportStateParams configures an export
type ExportStateParams struct {
	Options domain.ExportOptions
	// OutputPath receives the blob; empty returns it to the caller only
	OutputPath string
}

// ExportState serializes the store into a portable blob
type ExportState struct {
	store  StateStore
	writer FileWriter
	sink   ProgressSink
}

// NewExportState creates a new ExportState use case
func NewExportState(store StateStore, writer FileWriter, sink ProgressSink) *ExportState {
	return &ExportState{store: store, writer: writer, sink: sink}
}

// Run exports the store and optionally writes the blob to OutputPath
func (uc *ExportState) Run(ctx context.Context, params ExportStateParams) ([]byte, error) {
	uc.sink.OnProgress(ctx, ProgressEvent{
		Stage:   "exporting",
		Message: "Exporting from " + uc.store.BackendType(),
		Spinner: true,
	})
	defer uc.sink.OnProgress(ctx, ProgressEvent{Stage: "complete"})

	data, err := uc.store.ExportAll(ctx, params.Options)
	if err != nil {
		return nil, err
	}
	if params.OutputPath != "" {
		if err := uc.writer.WriteFile(params.OutputPath, data); err != nil {
			return nil, domain.NewError(domain.KindWriteFailed, "failed to write export", err,
				map[string]any{"path": params.OutputPath})
		}
	}
	return data, nil
}
