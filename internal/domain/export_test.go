package domain

import (
	"encoding/json"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trebuchet-org/treb-state/internal/domain/models"
)

func exportFixture() []*models.ContractRecord {
	a := validRecord()
	a.ContractName = "Token"
	a.ChainID = 56
	a.DeploymentArgs = models.Args{"owner", new(big.Int).Exp(big.NewInt(10), big.NewInt(30), nil), 18}

	b := validRecord()
	b.ContractName = "BridgeModule"
	b.ChainID = 1
	b.NetworkName = "mainnet"

	c := validRecord()
	c.ContractName = "Governance"
	c.ChainID = 56
	return []*models.ContractRecord{a, b, c}
}

func TestEncodeExport_JSON(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	data, err := EncodeExport("file", exportFixture(), ExportOptions{Format: ExportFormatJSON, IncludeMetadata: true}, now)
	require.NoError(t, err)

	var env ExportEnvelope
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, ExportVersion, env.Version)
	assert.Equal(t, "file", env.Backend)
	require.NotNil(t, env.Metadata)
	assert.Equal(t, 3, env.Metadata.ContractCount)
	assert.Equal(t, []uint64{1, 56}, env.Metadata.ChainIDs)

	// Sorted by chain then name
	names := []string{env.Contracts[0].ContractName, env.Contracts[1].ContractName, env.Contracts[2].ContractName}
	assert.Equal(t, []string{"BridgeModule", "Governance", "Token"}, names)
}

func TestEncodeExport_ChainFilter(t *testing.T) {
	data, err := EncodeExport("legacy", exportFixture(), ExportOptions{ChainIDs: []uint64{1}}, time.Now())
	require.NoError(t, err)

	env, err := DecodeExport(data, DecodeOptions{})
	require.NoError(t, err)
	require.Len(t, env.Contracts, 1)
	assert.Equal(t, "BridgeModule", env.Contracts[0].ContractName)
	assert.Nil(t, env.Metadata)
}

func TestExport_RoundTrip(t *testing.T) {
	for _, format := range []string{ExportFormatJSON, ExportFormatYAML} {
		t.Run(format, func(t *testing.T) {
			records := exportFixture()
			data, err := EncodeExport("file", records, ExportOptions{Format: format, PrettyPrint: true}, time.Now())
			require.NoError(t, err)

			env, err := DecodeExport(data, DecodeOptions{})
			require.NoError(t, err)
			require.Len(t, env.Contracts, 3)

			byKey := map[string]*models.ContractRecord{}
			for _, rec := range env.Contracts {
				byKey[GenerateKey(rec.ChainID, rec.ContractName)] = rec
			}
			for _, rec := range records {
				got := byKey[GenerateKey(rec.ChainID, rec.ContractName)]
				require.NotNil(t, got)
				assert.True(t, CompareRecords(rec, got), "record %s", rec.ContractName)
			}
		})
	}
}

func TestEncodeExport_EmptyAndUnknownFormat(t *testing.T) {
	data, err := EncodeExport("file", nil, ExportOptions{}, time.Now())
	require.NoError(t, err)
	assert.Contains(t, string(data), `"contracts":[]`)

	_, err = EncodeExport("file", nil, ExportOptions{Format: "xml"}, time.Now())
	assert.ErrorIs(t, err, ErrValidationFailed)
}

func TestDecodeExport_Errors(t *testing.T) {
	_, err := DecodeExport([]byte("  "), DecodeOptions{})
	assert.ErrorIs(t, err, ErrSerialization)

	_, err = DecodeExport([]byte(`{"contracts":[{"contractName":""}]}`), DecodeOptions{})
	assert.ErrorIs(t, err, ErrSerialization)
}

func TestApplyQuery(t *testing.T) {
	records := exportFixture()
	records[0].Timestamp = 300
	records[1].Timestamp = 100
	records[2].Timestamp = 200

	got := ApplyQuery(records, QueryOptions{ChainID: ForChain(56)})
	assert.Len(t, got, 2)

	got = ApplyQuery(records, QueryOptions{ContractName: "Governance"})
	require.Len(t, got, 1)
	assert.Equal(t, uint64(56), got[0].ChainID)

	got = ApplyQuery(records, QueryOptions{NetworkName: "mainnet"})
	require.Len(t, got, 1)

	got = ApplyQuery(records, QueryOptions{SortBy: SortByTimestamp})
	assert.Equal(t, []int64{100, 200, 300}, []int64{got[0].Timestamp, got[1].Timestamp, got[2].Timestamp})

	got = ApplyQuery(records, QueryOptions{SortBy: SortByContractName, SortOrder: SortDesc})
	assert.Equal(t, "Token", got[0].ContractName)
	assert.Equal(t, "BridgeModule", got[2].ContractName)

	got = ApplyQuery(records, QueryOptions{SortBy: SortByChainID})
	assert.Equal(t, uint64(1), got[0].ChainID)
	// Stable: equal chain ids keep input order
	assert.Equal(t, "Token", got[1].ContractName)
	assert.Equal(t, "Governance", got[2].ContractName)
}

func TestQueryOptions_Validate(t *testing.T) {
	assert.NoError(t, QueryOptions{SortBy: SortByTimestamp, SortOrder: SortDesc}.Validate())
	assert.ErrorIs(t, QueryOptions{SortBy: "address"}.Validate(), ErrValidationFailed)
	assert.ErrorIs(t, QueryOptions{SortOrder: "up"}.Validate(), ErrValidationFailed)
}

func TestIntegrityReport(t *testing.T) {
	r := NewIntegrityReport(time.Now())
	assert.True(t, r.IsValid)

	r.AddWarning("minor")
	assert.True(t, r.IsValid)

	other := NewIntegrityReport(time.Now())
	other.AddError("broken %s", "1-Token")
	other.ContractCount = 2

	r.Merge("target: ", other)
	assert.False(t, r.IsValid)
	assert.Equal(t, []string{"target: broken 1-Token"}, r.Errors)
	assert.Equal(t, 2, r.ContractCount)
}
