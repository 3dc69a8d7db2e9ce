package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trebuchet-org/treb-state/internal/domain"
	domainconfig "github.com/trebuchet-org/treb-state/internal/domain/config"
	"github.com/trebuchet-org/treb-state/internal/domain/models"
	"github.com/trebuchet-org/treb-state/internal/usecase"
)

const (
	tokenAddr = "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed"
	proxyAddr = "0xfb6916095ca1df60bb79ce92ce3ea74c37c5d359"
	hashOne   = "0x1111111111111111111111111111111111111111111111111111111111111111"
	hashTwo   = "0x2222222222222222222222222222222222222222222222222222222222222222"
)

// newProject creates an empty project and makes it the working directory
func newProject(t *testing.T) string {
	t.Helper()
	color.NoColor = true
	root, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(root, "treb-state.toml"), nil, 0644))
	t.Chdir(root)
	return root
}

// run executes one CLI invocation the way Execute does
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	sess := &session{}
	defer sess.close()

	var out bytes.Buffer
	cmd := newRootCmd(sess)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--non-interactive"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := run(t, args...)
	require.NoError(t, err, out)
	return out
}

func TestRootCmd_Commands(t *testing.T) {
	root := NewRootCmd()
	names := make(map[string]string)
	for _, cmd := range root.Commands() {
		names[cmd.Name()] = cmd.GroupID
	}
	for _, name := range []string{"show", "list", "plan", "record", "delete"} {
		assert.Equal(t, "main", names[name], name)
	}
	for _, name := range []string{"export", "import", "validate", "migrate", "status"} {
		assert.Equal(t, "management", names[name], name)
	}
	assert.Contains(t, names, "version")

	migrate, _, err := root.Find([]string{"migrate", "run"})
	require.NoError(t, err)
	assert.Equal(t, "run", migrate.Name())
}

func TestVersionCmd(t *testing.T) {
	t.Chdir(t.TempDir())
	out := mustRun(t, "version")
	assert.Contains(t, out, "treb-state version dev")
}

func TestResolveChain(t *testing.T) {
	cfg := &domainconfig.RuntimeConfig{Networks: map[uint64]string{1: "mainnet", 56: "bsc"}}

	id, err := resolveChain(cfg, "bsc")
	require.NoError(t, err)
	assert.Equal(t, uint64(56), id)

	id, err = resolveChain(cfg, "4242")
	require.NoError(t, err)
	assert.Equal(t, uint64(4242), id)

	_, err = resolveChain(cfg, "")
	assert.ErrorContains(t, err, "--network")

	_, err = resolveChain(cfg, "goerli")
	assert.ErrorContains(t, err, "known: bsc, mainnet")
}

func TestCLI_RecordLifecycle(t *testing.T) {
	root := newProject(t)

	out := mustRun(t, "record", "Token", "-n", "mainnet", "--address", tokenAddr, "--hash", hashOne,
		"--args", `["Token", 18, {"$bigint": "123456789012345678901234567890"}]`)
	assert.Contains(t, out, "Recorded Token at 0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")
	assert.FileExists(t, filepath.Join(root, "deployments", "mainnet.json"))

	out = mustRun(t, "record", "Token", "-n", "mainnet", "--address", tokenAddr, "--hash", hashOne)
	assert.Contains(t, out, "Updated Token")

	mustRun(t, "record", "Vault", "-n", "56", "--address", tokenAddr, "--proxy", proxyAddr, "--hash", hashOne)

	t.Run("show", func(t *testing.T) {
		out := mustRun(t, "--json", "show", "Vault", "-n", "bsc")
		var rec models.ContractRecord
		require.NoError(t, json.Unmarshal([]byte(out), &rec))
		assert.Equal(t, "bsc", rec.NetworkName)
		assert.Equal(t, proxyAddr, rec.ProxyAddress)

		out = mustRun(t, "show", "Vault", "-n", "bsc")
		assert.Contains(t, out, "Contract: Vault")
		assert.Contains(t, out, "0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359")

		_, err := run(t, "show", "Tokn", "-n", "mainnet")
		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.ErrorContains(t, err, "did you mean: Token")
	})

	t.Run("list", func(t *testing.T) {
		out := mustRun(t, "--json", "list")
		var records []*models.ContractRecord
		require.NoError(t, json.Unmarshal([]byte(out), &records))
		require.Len(t, records, 2)
		assert.Equal(t, uint64(1), records[0].ChainID)
		assert.Equal(t, uint64(56), records[1].ChainID)

		out = mustRun(t, "list", "-n", "bsc")
		assert.Contains(t, out, "Vault")
		assert.NotContains(t, out, "Token")
	})

	t.Run("plan", func(t *testing.T) {
		assert.Contains(t, mustRun(t, "plan", "Token", "-n", "mainnet", "--hash", hashOne), "Skip")
		assert.Contains(t, mustRun(t, "plan", "Token", "-n", "mainnet", "--hash", hashTwo), "Deploy")
		assert.Contains(t, mustRun(t, "plan", "Vault", "-n", "bsc", "--hash", hashTwo), "Upgrade")
		assert.Contains(t, mustRun(t, "plan", "Governor", "-n", "bsc", "--hash", hashTwo), "not deployed")
	})

	t.Run("validate and status", func(t *testing.T) {
		assert.Contains(t, mustRun(t, "validate"), "2 contracts checked, no errors")

		out := mustRun(t, "--json", "status")
		var status usecase.StoreStatusResult
		require.NoError(t, json.Unmarshal([]byte(out), &status))
		assert.Equal(t, "file", status.Backend)
		assert.True(t, status.Healthy)
	})

	t.Run("export and import", func(t *testing.T) {
		exportPath := filepath.Join(root, "backup", "state.yaml")
		mustRun(t, "export", "--format", "yaml", "-n", "mainnet", "-o", exportPath)
		assert.FileExists(t, exportPath)

		out := mustRun(t, "--backend", "legacy", "import", exportPath)
		assert.Contains(t, out, "Imported 1 records on 1 networks exported from file")

		out = mustRun(t, "--backend", "legacy", "--json", "list")
		var records []*models.ContractRecord
		require.NoError(t, json.Unmarshal([]byte(out), &records))
		require.Len(t, records, 1)
		assert.Equal(t, "Token", records[0].ContractName)
		assert.Len(t, records[0].DeploymentArgs, 0, "second record call replaced the args")
	})

	t.Run("delete", func(t *testing.T) {
		_, err := run(t, "delete", "Vault", "-n", "bsc")
		assert.ErrorContains(t, err, "--force")

		assert.Contains(t, mustRun(t, "delete", "Vault", "-n", "bsc", "--force"), "Deleted Vault")
		_, err = run(t, "delete", "Vault", "-n", "bsc", "--force")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestCLI_Migration(t *testing.T) {
	root := newProject(t)

	mustRun(t, "--backend", "legacy", "record", "Token", "-n", "mainnet", "--address", tokenAddr, "--hash", hashOne)
	mustRun(t, "--backend", "legacy", "record", "Vault", "-n", "bsc", "--address", tokenAddr, "--proxy", proxyAddr, "--hash", hashOne)

	_, err := run(t, "migrate", "run")
	assert.ErrorIs(t, err, domain.ErrValidationFailed, "migration is off")

	require.NoError(t, os.WriteFile(filepath.Join(root, "treb-state.toml"), []byte(`
[migration]
enabled = true
source = "legacy"
target = "file"
`), 0644))

	out := mustRun(t, "migrate", "run")
	assert.Contains(t, out, "Migrated 2/2 records")
	assert.FileExists(t, filepath.Join(root, "deployments", "mainnet.json"))
	assert.FileExists(t, filepath.Join(root, "deployments", "bsc.json"))

	out = mustRun(t, "--json", "migrate", "status")
	var view usecase.MigrationView
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	assert.Equal(t, usecase.MigrationActive, view.State)
	assert.Equal(t, usecase.PhaseDone, view.Progress.Phase)

	// dual write lands in both backends
	mustRun(t, "record", "Governor", "-n", "mainnet", "--address", tokenAddr, "--hash", hashTwo)
	flat, err := os.ReadFile(filepath.Join(root, "deployments", "mainnet.json"))
	require.NoError(t, err)
	assert.Contains(t, string(flat), "Governor")

	assert.Contains(t, mustRun(t, "migrate", "complete"), "Migration completed")
	assert.FileExists(t, filepath.Join(root, "deployments", "migration", "status.json"))

	out = mustRun(t, "--json", "migrate", "status")
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	assert.Equal(t, usecase.MigrationCompleted, view.State)

	_, err = run(t, "migrate", "rollback")
	assert.ErrorIs(t, err, domain.ErrValidationFailed, "decision already taken")

	out = mustRun(t, "--json", "list")
	var records []*models.ContractRecord
	require.NoError(t, json.Unmarshal([]byte(out), &records))
	assert.Len(t, records, 3)
}
