package usecase

import (
	"context"

	"github.com/trebuchet-org/treb-state/internal/domain"
	"github.com/trebuchet-org/treb-state/internal/domain/config"
	"github.com/trebuchet-org/treb-state/internal/domain/models"
)

// RecordDeploymentParams describes a deployment to persist
type RecordDeploymentParams struct {
	ChainID             uint64
	ContractName        string
	Address             string
	FactoryByteCodeHash string
	ImplementationHash  string
	ProxyAddress        string
	DeploymentArgs      models.Args
}

// RecordDeploymentResult reports what was written
type RecordDeploymentResult struct {
	Record   *models.ContractRecord
	Previous *models.ContractRecord
}

// Created reports whether the record did not exist before
func (r *RecordDeploymentResult) Created() bool {
	return r.Previous == nil
}

// RecordDeployment stores the outcome of a deployment
type RecordDeployment struct {
	cfg   *config.RuntimeConfig
	store StateStore
	sink  ProgressSink
}

// NewRecordDeployment creates a new RecordDeployment use case
func NewRecordDeployment(cfg *config.RuntimeConfig, store StateStore, sink ProgressSink) *RecordDeployment {
	return &RecordDeployment{cfg: cfg, store: store, sink: sink}
}

// Run validates and writes the record, filling the network name from config
func (uc *RecordDeployment) Run(ctx context.Context, params RecordDeploymentParams) (*RecordDeploymentResult, error) {
	rec := &models.ContractRecord{
		ContractName:        params.ContractName,
		ChainID:             params.ChainID,
		NetworkName:         uc.cfg.NetworkName(params.ChainID),
		Address:             params.Address,
		FactoryByteCodeHash: params.FactoryByteCodeHash,
		ImplementationHash:  params.ImplementationHash,
		ProxyAddress:        params.ProxyAddress,
		DeploymentArgs:      params.DeploymentArgs,
	}
	if err := domain.IsValidRecord(rec); err != nil {
		return nil, err
	}

	previous, err := uc.store.GetContract(ctx, rec.ChainID, rec.ContractName)
	if err != nil {
		return nil, err
	}

	uc.sink.OnProgress(ctx, ProgressEvent{
		Stage:   "writing",
		Message: "Recording " + rec.ContractName,
		Spinner: true,
	})
	defer uc.sink.OnProgress(ctx, ProgressEvent{Stage: "complete"})

	if err := uc.store.PutContract(ctx, rec.ChainID, rec); err != nil {
		return nil, err
	}
	return &RecordDeploymentResult{Record: rec, Previous: previous}, nil
}
