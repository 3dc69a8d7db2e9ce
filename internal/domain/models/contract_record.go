package models

import (
	"math/big"
	"strings"
)

// ContractRecord is the persisted deployment fact for one contract on one network
type ContractRecord struct {
	ContractName        string `json:"contractName"`
	ChainID             uint64 `json:"chainId"`
	NetworkName         string `json:"networkName"`
	Address             string `json:"address"` // implementation address when ProxyAddress is set
	FactoryByteCodeHash string `json:"factoryByteCodeHash"`
	ImplementationHash  string `json:"implementationHash,omitempty"`
	ProxyAddress        string `json:"proxyAddress,omitempty"`
	DeploymentArgs      Args   `json:"deploymentArgs,omitempty"`
	Timestamp           int64  `json:"timestamp"` // epoch millis of the last write
}

// Args holds constructor or initializer arguments. Elements are nil, bool,
// string, int64, float64, *big.Int, []any or map[string]any.
type Args []any

// IsProxy reports whether the record describes an upgradeable deployment
func (r *ContractRecord) IsProxy() bool {
	return r.ProxyAddress != ""
}

// PublicAddress returns the address users interact with: the proxy when there is one
func (r *ContractRecord) PublicAddress() string {
	if r.IsProxy() {
		return r.ProxyAddress
	}
	return r.Address
}

// Clone returns a deep copy of the record
func (r *ContractRecord) Clone() *ContractRecord {
	if r == nil {
		return nil
	}
	clone := *r
	if r.DeploymentArgs != nil {
		clone.DeploymentArgs = cloneValue([]any(r.DeploymentArgs)).([]any)
	}
	return &clone
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case *big.Int:
		if val == nil {
			return val
		}
		return new(big.Int).Set(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	case Args:
		return cloneValue([]any(val))
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = cloneValue(item)
		}
		return out
	default:
		return val
	}
}

// ProtocolName derives the protocol identifier for module contracts,
// e.g. "LayerZeroModule" -> "layerzero". Returns "" for non-module names.
func ProtocolName(contractName string) string {
	if !strings.Contains(contractName, "Module") {
		return ""
	}
	name := strings.TrimSuffix(contractName, "Module")
	name = strings.ReplaceAll(name, "Module", "")
	return strings.ToLower(name)
}
