package usecase

import (
	"context"

	"github.com/sahilm/fuzzy"
	"github.com/trebuchet-org/treb-state/internal/domain"
	"github.com/trebuchet-org/treb-state/internal/domain/models"
)

// maxSuggestions bounds the "did you mean" list on a miss
const maxSuggestions = 3

// ShowContract looks up a single contract record
type ShowContract struct {
	store StateStore
	sink  ProgressSink
}

// NewShowContract creates a new ShowContract use case
func NewShowContract(store StateStore, sink ProgressSink) *ShowContract {
	return &ShowContract{store: store, sink: sink}
}

// Run returns the record or a domain.NoRecordErr carrying close names
func (uc *ShowContract) Run(ctx context.Context, chainID uint64, name string) (*models.ContractRecord, error) {
	uc.sink.OnProgress(ctx, ProgressEvent{
		Stage:   "loading",
		Message: "Loading contract record",
		Spinner: true,
	})
	defer uc.sink.OnProgress(ctx, ProgressEvent{Stage: "complete"})

	rec, err := uc.store.GetContract(ctx, chainID, name)
	if err != nil {
		return nil, err
	}
	if rec != nil {
		return rec, nil
	}

	records, err := uc.store.GetAllContracts(ctx, chainID)
	if err != nil {
		return nil, err
	}
	return nil, domain.NoRecordErr{
		ChainID:     chainID,
		Name:        name,
		Suggestions: suggestNames(name, records),
	}
}

func suggestNames(name string, records []*models.ContractRecord) []string {
	names := make([]string, len(records))
	for i, rec := range records {
		names[i] = rec.ContractName
	}

	var suggestions []string
	for _, match := range fuzzy.Find(name, names) {
		suggestions = append(suggestions, match.Str)
		if len(suggestions) == maxSuggestions {
			break
		}
	}
	return suggestions
}
