package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
)

// NetworksFileName overrides and extends the built-in network names
const NetworksFileName = "networks.toml"

// DefaultNetworks returns the built-in chain ID to network name mapping
func DefaultNetworks() map[uint64]string {
	return map[uint64]string{
		1:        "mainnet",
		10:       "optimism",
		56:       "bsc",
		97:       "bsc-testnet",
		137:      "polygon",
		8453:     "base",
		42161:    "arbitrum",
		43114:    "avalanche",
		84532:    "base-sepolia",
		421614:   "arbitrum-sepolia",
		11155111: "sepolia",
		31337:    "anvil",
	}
}

type networksFile struct {
	Networks map[string]string `toml:"networks"`
}

// LoadNetworks merges networks.toml from the project root over the defaults
func LoadNetworks(projectRoot string) (map[uint64]string, error) {
	networks := DefaultNetworks()

	path := filepath.Join(projectRoot, NetworksFileName)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return networks, nil
	}

	var raw networksFile
	if _, err := toml.DecodeFile(path, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", NetworksFileName, err)
	}
	for key, name := range raw.Networks {
		chainID, err := strconv.ParseUint(key, 10, 64)
		if err != nil || chainID == 0 {
			return nil, fmt.Errorf("%s: invalid chain id %q", NetworksFileName, key)
		}
		if name == "" {
			return nil, fmt.Errorf("%s: empty name for chain %d", NetworksFileName, chainID)
		}
		networks[chainID] = name
	}
	return networks, nil
}

// ChainIDByName finds the chain a network name maps to
func ChainIDByName(networks map[uint64]string, name string) (uint64, bool) {
	for chainID, n := range networks {
		if n == name {
			return chainID, true
		}
	}
	return 0, false
}
