package config

import (
	"time"
)

// RuntimeConfig represents the complete runtime configuration
// This is injected into use cases and contains all resolved settings
type RuntimeConfig struct {
	// Core settings
	ProjectRoot string
	DataDir     string

	// Execution settings
	Debug          bool
	NonInteractive bool
	JSON           bool // Output in JSON format
	Timeout        time.Duration

	// Storage settings
	Storage   StorageConfig
	Migration MigrationConfig

	// Networks maps chain IDs to the names used for per-network files
	Networks map[uint64]string

	// Config source tracking
	ConfigFile string
}

// NetworkName returns the configured name for a chain, or "" when unmapped
func (c *RuntimeConfig) NetworkName(chainID uint64) string {
	return c.Networks[chainID]
}
