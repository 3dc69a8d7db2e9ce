package models

import (
	"time"
)

const (
	// FlatSchemaVersion tags per-network files written by the flat file store
	FlatSchemaVersion = "1.0.0"
	// UnifiedSchemaVersion tags files written by the hierarchical file store
	UnifiedSchemaVersion = "2.0.0"
)

// Category groups records inside a unified snapshot
type Category string

const (
	CategoryCore           Category = "core"
	CategoryProtocol       Category = "protocol"
	CategoryInfrastructure Category = "infrastructure"
)

// Categories lists the categories in lookup order
var Categories = []Category{CategoryCore, CategoryProtocol, CategoryInfrastructure}

// HashInfo is the per-contract hash bookkeeping kept next to the records
type HashInfo struct {
	FactoryByteCodeHash string `json:"factoryByteCodeHash"`
	ImplementationHash  string `json:"implementationHash,omitempty"`
}

// Snapshot is the flat on-disk representation of all records for one network
type Snapshot struct {
	SchemaVersion     string                     `json:"schemaVersion"`
	Network           string                     `json:"network"`
	ChainID           uint64                     `json:"chainId"`
	CreatedAt         time.Time                  `json:"createdAt"`
	LastUpdated       time.Time                  `json:"lastUpdated"`
	ProtocolsDeployed []string                   `json:"protocolsDeployed"`
	Contracts         map[string]*ContractRecord `json:"contracts"`
	Hashes            map[string]HashInfo        `json:"hashes,omitempty"`
}

// NewSnapshot creates an empty flat snapshot
func NewSnapshot(chainID uint64, network string, now time.Time) *Snapshot {
	return &Snapshot{
		SchemaVersion:     FlatSchemaVersion,
		Network:           network,
		ChainID:           chainID,
		CreatedAt:         now,
		LastUpdated:       now,
		ProtocolsDeployed: []string{},
		Contracts:         make(map[string]*ContractRecord),
		Hashes:            make(map[string]HashInfo),
	}
}

// LegacyAlias is a rename pointer: it carries no record, only where the record lives now
type LegacyAlias struct {
	CurrentName     string   `json:"currentName"`
	CurrentCategory Category `json:"currentCategory"`
}

// UnifiedSnapshot is the hierarchical on-disk representation for one network
type UnifiedSnapshot struct {
	SchemaVersion     string                                  `json:"schemaVersion"`
	Network           string                                  `json:"network"`
	ChainID           uint64                                  `json:"chainId"`
	CreatedAt         time.Time                               `json:"createdAt"`
	LastUpdated       time.Time                               `json:"lastUpdated"`
	ProtocolsDeployed []string                                `json:"protocolsDeployed"`
	Contracts         map[Category]map[string]*ContractRecord `json:"contracts"`
	Legacy            map[string]LegacyAlias                  `json:"legacy"`
	Hashes            map[string]HashInfo                     `json:"hashes,omitempty"`
	MigratedFrom      string                                  `json:"migratedFrom,omitempty"`
}

// NewUnifiedSnapshot creates an empty hierarchical snapshot
func NewUnifiedSnapshot(chainID uint64, network string, now time.Time) *UnifiedSnapshot {
	s := &UnifiedSnapshot{
		SchemaVersion:     UnifiedSchemaVersion,
		Network:           network,
		ChainID:           chainID,
		CreatedAt:         now,
		LastUpdated:       now,
		ProtocolsDeployed: []string{},
		Contracts:         make(map[Category]map[string]*ContractRecord),
		Legacy:            make(map[string]LegacyAlias),
		Hashes:            make(map[string]HashInfo),
	}
	for _, c := range Categories {
		s.Contracts[c] = make(map[string]*ContractRecord)
	}
	return s
}
