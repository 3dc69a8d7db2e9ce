package usecase

import (
	"context"
	"strings"

	"github.com/trebuchet-org/treb-state/internal/domain"
	"github.com/trebuchet-org/treb-state/internal/domain/models"
)

// DeploymentAction is what a deploy run should do for one contract
type DeploymentAction string

const (
	ActionDeploy  DeploymentAction = "deploy"
	ActionUpgrade DeploymentAction = "upgrade"
	ActionSkip    DeploymentAction = "skip"
)

// PlanDeploymentParams describes the contract about to be deployed
type PlanDeploymentParams struct {
	ChainID             uint64
	ContractName        string
	FactoryByteCodeHash string
}

// DeploymentPlan is the decision for one contract
type DeploymentPlan struct {
	Action   DeploymentAction
	Reason   string
	Existing *models.ContractRecord
}

// PlanDeployment decides between a fresh deploy, an in-place upgrade and no
// change by comparing the stored bytecode fingerprint with the local one
type PlanDeployment struct {
	store StateStore
}

// NewPlanDeployment creates a new PlanDeployment use case
func NewPlanDeployment(store StateStore) *PlanDeployment {
	return &PlanDeployment{store: store}
}

// Run computes the plan
func (uc *PlanDeployment) Run(ctx context.Context, params PlanDeploymentParams) (*DeploymentPlan, error) {
	if params.FactoryByteCodeHash == "" {
		return nil, domain.NewError(domain.KindValidationFailed, "bytecode hash is required", nil,
			map[string]any{"key": domain.GenerateKey(params.ChainID, params.ContractName)})
	}

	existing, err := uc.store.GetContract(ctx, params.ChainID, params.ContractName)
	if err != nil {
		return nil, err
	}
	return Plan(existing, params.FactoryByteCodeHash), nil
}

// Plan is the pure decision behind PlanDeployment
func Plan(existing *models.ContractRecord, bytecodeHash string) *DeploymentPlan {
	switch {
	case existing == nil:
		return &DeploymentPlan{Action: ActionDeploy, Reason: "not deployed"}
	case strings.EqualFold(existing.FactoryByteCodeHash, bytecodeHash):
		return &DeploymentPlan{Action: ActionSkip, Reason: "bytecode unchanged", Existing: existing}
	case existing.IsProxy():
		return &DeploymentPlan{Action: ActionUpgrade, Reason: "bytecode changed behind proxy " + existing.ProxyAddress, Existing: existing}
	default:
		return &DeploymentPlan{Action: ActionDeploy, Reason: "bytecode changed and contract is not upgradeable", Existing: existing}
	}
}
