package usecase

import (
	"context"
	"fmt"

	"github.com/trebuchet-org/treb-state/internal/domain"
	"github.com/trebuchet-org/treb-state/internal/domain/config"
)

// DeleteContractParams selects the record to remove
type DeleteContractParams struct {
	ChainID      uint64
	ContractName string
	Force        bool
}

// DeleteContractResult reports the outcome of a delete
type DeleteContractResult struct {
	Deleted   bool
	Cancelled bool
}

// DeleteContract removes a contract record after confirmation
type DeleteContract struct {
	cfg      *config.RuntimeConfig
	store    StateStore
	prompter ConfirmPrompter
}

// NewDeleteContract creates a new DeleteContract use case
func NewDeleteContract(cfg *config.RuntimeConfig, store StateStore, prompter ConfirmPrompter) *DeleteContract {
	return &DeleteContract{cfg: cfg, store: store, prompter: prompter}
}

// Run deletes the record. Without Force it asks for confirmation, which is
// refused in non-interactive mode.
func (uc *DeleteContract) Run(ctx context.Context, params DeleteContractParams) (*DeleteContractResult, error) {
	exists, err := uc.store.HasContract(ctx, params.ChainID, params.ContractName)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, domain.NoRecordErr{ChainID: params.ChainID, Name: params.ContractName}
	}

	if !params.Force {
		if uc.cfg.NonInteractive {
			return nil, fmt.Errorf("refusing to delete %s without --force in non-interactive mode",
				domain.GenerateKey(params.ChainID, params.ContractName))
		}
		label := fmt.Sprintf("Delete %s on chain %d", params.ContractName, params.ChainID)
		if !uc.prompter.Confirm(label) {
			return &DeleteContractResult{Cancelled: true}, nil
		}
	}

	deleted, err := uc.store.DeleteContract(ctx, params.ChainID, params.ContractName)
	if err != nil {
		return nil, err
	}
	return &DeleteContractResult{Deleted: deleted}, nil
}
