package cli

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/trebuchet-org/treb-state/internal/config"
	domainconfig "github.com/trebuchet-org/treb-state/internal/domain/config"
)

// addNetworkFlag registers -n/--network on cmd
func addNetworkFlag(cmd *cobra.Command, network *string) {
	cmd.Flags().StringVarP(network, "network", "n", "", "Network name or chain ID (e.g. mainnet, 56)")
}

// resolveChain maps a network name or numeric chain ID to a chain ID
func resolveChain(cfg *domainconfig.RuntimeConfig, network string) (uint64, error) {
	if network == "" {
		return 0, fmt.Errorf("network is required, use --network")
	}
	if chainID, err := strconv.ParseUint(network, 10, 64); err == nil && chainID > 0 {
		return chainID, nil
	}
	if chainID, ok := config.ChainIDByName(cfg.Networks, network); ok {
		return chainID, nil
	}

	names := lo.Values(cfg.Networks)
	sort.Strings(names)
	return 0, fmt.Errorf("unknown network %q (known: %s)", network, strings.Join(names, ", "))
}
