package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadNetworks(t *testing.T) {
	t.Run("defaults without file", func(t *testing.T) {
		networks, err := LoadNetworks(t.TempDir())
		require.NoError(t, err)
		assert.Equal(t, DefaultNetworks(), networks)
	})

	t.Run("file overrides and extends", func(t *testing.T) {
		root := t.TempDir()
		writeFile(t, filepath.Join(root, NetworksFileName), `
[networks]
"56" = "bnb"
"4242" = "devnet"
`)
		networks, err := LoadNetworks(root)
		require.NoError(t, err)
		assert.Equal(t, "bnb", networks[56])
		assert.Equal(t, "devnet", networks[4242])
		assert.Equal(t, "mainnet", networks[1])

		id, ok := ChainIDByName(networks, "devnet")
		assert.True(t, ok)
		assert.Equal(t, uint64(4242), id)
		_, ok = ChainIDByName(networks, "bsc")
		assert.False(t, ok)
	})

	for name, content := range map[string]string{
		"non numeric id": "[networks]\nmainnet = \"x\"",
		"zero id":        "[networks]\n\"0\" = \"x\"",
		"empty name":     "[networks]\n\"5\" = \"\"",
		"bad toml":       "[networks",
	} {
		t.Run(name, func(t *testing.T) {
			root := t.TempDir()
			writeFile(t, filepath.Join(root, NetworksFileName), content)
			_, err := LoadNetworks(root)
			assert.Error(t, err)
		})
	}
}
