package render

import (
	"bytes"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trebuchet-org/treb-state/internal/domain"
	"github.com/trebuchet-org/treb-state/internal/domain/models"
	"github.com/trebuchet-org/treb-state/internal/usecase"
)

var testTime = time.UnixMilli(0)

func init() {
	color.NoColor = true
}

func TestChecksum(t *testing.T) {
	assert.Equal(t, "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
		Checksum("0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed"))
	assert.Equal(t, "not-an-address", Checksum("not-an-address"))
}

func TestTitleAndTimestamp(t *testing.T) {
	assert.Equal(t, "Rolled-Back", Title("rolled-back"))
	assert.Equal(t, "-", FormatTimestamp(0))
	assert.Equal(t, "1970-01-01 00:00:01 UTC", FormatTimestamp(1000))
	assert.Equal(t, "mainnet (1)", NetworkLabel("mainnet", 1))
	assert.Equal(t, "chain 4242", NetworkLabel("", 4242))
}

func TestRecordRenderer(t *testing.T) {
	var out bytes.Buffer
	rec := &models.ContractRecord{
		ContractName:        "Vault",
		ChainID:             1,
		NetworkName:         "mainnet",
		Address:             "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed",
		ProxyAddress:        "0xfb6916095ca1df60bb79ce92ce3ea74c37c5d359",
		FactoryByteCodeHash: "0x11",
		DeploymentArgs:      models.Args{"owner", int64(7)},
		Timestamp:           1000,
	}
	require.NoError(t, NewRecordRenderer(&out).RenderRecord(rec))

	s := out.String()
	assert.Contains(t, s, "Contract: Vault")
	assert.Contains(t, s, "mainnet (1)")
	assert.Contains(t, s, "0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359")
	assert.Contains(t, s, "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")
	assert.Contains(t, s, `["owner",7]`)
}

func TestRenderPlan(t *testing.T) {
	var out bytes.Buffer
	plan := &usecase.DeploymentPlan{Action: usecase.ActionUpgrade, Reason: "bytecode changed",
		Existing: &models.ContractRecord{Address: "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed", FactoryByteCodeHash: "0x22"}}
	require.NoError(t, NewRecordRenderer(&out).RenderPlan("Vault", plan))
	assert.Contains(t, out.String(), "Vault: Upgrade (bytecode changed)")
	assert.Contains(t, out.String(), "0x22")
}

func TestRecordsRenderer(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, NewRecordsRenderer(&out).RenderList(&usecase.ListContractsResult{}))
		assert.Equal(t, "No contracts found\n", out.String())
	})

	t.Run("grouped by network", func(t *testing.T) {
		var out bytes.Buffer
		result := &usecase.ListContractsResult{
			Contracts: []*models.ContractRecord{
				{ContractName: "Token", ChainID: 1, NetworkName: "mainnet"},
				{ContractName: "Vault", ChainID: 1, NetworkName: "mainnet", ProxyAddress: "0xfb6916095ca1df60bb79ce92ce3ea74c37c5d359"},
				{ContractName: "Token", ChainID: 56, NetworkName: "bsc"},
			},
			Summary: usecase.ContractSummary{Total: 3, Proxies: 1},
		}
		require.NoError(t, NewRecordsRenderer(&out).RenderList(result))

		s := out.String()
		assert.Contains(t, s, "mainnet (1)")
		assert.Contains(t, s, "bsc (56)")
		assert.Less(t, bytes.Index(out.Bytes(), []byte("mainnet (1)")), bytes.Index(out.Bytes(), []byte("bsc (56)")))
		assert.Contains(t, s, "Total: 3 contracts (1 proxies) on 2 networks")
	})
}

func TestStatusRenderer(t *testing.T) {
	t.Run("report", func(t *testing.T) {
		report := domain.NewIntegrityReport(testTime)
		report.ContractCount = 2
		report.AddError("chain 1: Broken: address is empty")
		report.AddWarning("chain 1: Token: implementation hash differs")

		var out bytes.Buffer
		require.NoError(t, NewStatusRenderer(&out).RenderReport(report))
		assert.Contains(t, out.String(), "2 contracts checked, 1 errors")
		assert.Contains(t, out.String(), "Broken: address is empty")
		assert.Contains(t, out.String(), "implementation hash differs")
	})

	t.Run("status with migration", func(t *testing.T) {
		rate := 0.5
		var out bytes.Buffer
		require.NoError(t, NewStatusRenderer(&out).RenderStatus(&usecase.StoreStatusResult{
			Backend: "migration(legacy->file)",
			Healthy: true,
			Metrics: domain.StoreMetrics{CacheHitRate: &rate},
			Migration: &usecase.MigrationView{
				Backend:  "migration(legacy->file)",
				State:    usecase.MigrationRolledBack,
				Progress: usecase.MigrationProgress{Phase: usecase.PhaseImporting, Total: 4, Processed: 1},
				Warnings: []usecase.ValidationWarning{{Key: "1:Token", Field: "address", Written: "0x1", ReadBack: "0x2"}},
			},
		}))

		s := out.String()
		assert.Contains(t, s, "healthy")
		assert.Contains(t, s, "50.00%")
		assert.Contains(t, s, "Rolled-Back")
		assert.Contains(t, s, "1/4 (25%)")
		assert.Contains(t, s, "1 write validation warnings")
		assert.Contains(t, s, "1:Token")
	})
}
