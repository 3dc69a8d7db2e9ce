package usecase

import (
	"context"

	"github.com/trebuchet-org/treb-state/internal/domain"
	"github.com/trebuchet-org/treb-state/internal/domain/models"
)

// ListContractsParams contains filters for listing records
type ListContractsParams struct {
	ChainID      *uint64
	ContractName string
	NetworkName  string
	SortBy       string
	SortOrder    string
}

// ListContractsResult contains the matching records and a summary
type ListContractsResult struct {
	Contracts []*models.ContractRecord
	Summary   ContractSummary
}

// ContractSummary counts the listed records
type ContractSummary struct {
	Total   int
	Proxies int
	ByChain map[uint64]int
}

// ListContracts is the use case for listing contract records
type ListContracts struct {
	store StateStore
	sink  ProgressSink
}

// NewListContracts creates a new ListContracts use case
func NewListContracts(store StateStore, sink ProgressSink) *ListContracts {
	return &ListContracts{store: store, sink: sink}
}

// Run executes the list use case
func (uc *ListContracts) Run(ctx context.Context, params ListContractsParams) (*ListContractsResult, error) {
	uc.sink.OnProgress(ctx, ProgressEvent{
		Stage:   "loading",
		Message: "Loading contract records",
		Spinner: true,
	})
	defer uc.sink.OnProgress(ctx, ProgressEvent{Stage: "complete"})

	sortBy := params.SortBy
	if sortBy == "" {
		sortBy = domain.SortByChainID
	}
	records, err := uc.store.QueryContracts(ctx, domain.QueryOptions{
		ChainID:      params.ChainID,
		ContractName: params.ContractName,
		NetworkName:  params.NetworkName,
		SortBy:       sortBy,
		SortOrder:    params.SortOrder,
	})
	if err != nil {
		return nil, err
	}

	result := &ListContractsResult{
		Contracts: records,
		Summary:   ContractSummary{ByChain: make(map[uint64]int)},
	}
	for _, rec := range records {
		result.Summary.Total++
		result.Summary.ByChain[rec.ChainID]++
		if rec.IsProxy() {
			result.Summary.Proxies++
		}
	}
	return result, nil
}
