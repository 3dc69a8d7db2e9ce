package legacy

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trebuchet-org/treb-state/internal/domain"
	"github.com/trebuchet-org/treb-state/internal/domain/config"
	"github.com/trebuchet-org/treb-state/internal/domain/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	cfg := &config.RuntimeConfig{
		Storage: config.StorageConfig{
			BasePath: t.TempDir(),
			Legacy:   config.LegacyConfig{InMemory: true},
		},
	}
	s := NewStore(cfg, nil, nil)
	require.NoError(t, s.Initialize(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func record(chainID uint64, name, address string) *models.ContractRecord {
	return &models.ContractRecord{
		ContractName:        name,
		ChainID:             chainID,
		NetworkName:         "bsc",
		Address:             address,
		FactoryByteCodeHash: "0x1111111111111111111111111111111111111111111111111111111111111111",
	}
}

const (
	addrA = "0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
	addrB = "0xBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB"
)

func TestStore_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := record(56, "Token", addrA)
	rec.ProxyAddress = addrB
	rec.DeploymentArgs = models.Args{"Token", "TKN", new(big.Int).Exp(big.NewInt(10), big.NewInt(27), nil)}
	require.NoError(t, s.PutContract(ctx, 56, rec))
	assert.NotZero(t, rec.Timestamp)

	got, err := s.GetContract(ctx, 56, "Token")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, domain.CompareRecords(rec, got))
}

func TestStore_MissIsNotError(t *testing.T) {
	s := newTestStore(t)

	got, err := s.GetContract(context.Background(), 1, "Nothing")
	require.NoError(t, err)
	assert.Nil(t, got)

	found, err := s.HasContract(context.Background(), 1, "Nothing")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStore_Overwrite(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	s.now = func() time.Time { return time.UnixMilli(1000) }

	require.NoError(t, s.PutContract(ctx, 56, record(56, "Token", addrA)))

	s.now = func() time.Time { return time.UnixMilli(2000) }
	second := record(56, "Token", addrB)
	second.FactoryByteCodeHash = "0x2222"
	require.NoError(t, s.PutContract(ctx, 56, second))

	got, err := s.GetContract(ctx, 56, "Token")
	require.NoError(t, err)
	assert.Equal(t, addrB, got.Address)
	assert.Equal(t, int64(2000), got.Timestamp)

	all, err := s.GetAllContracts(ctx, 56)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestStore_TimestampNeverDecreases(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.now = func() time.Time { return time.UnixMilli(5000) }
	require.NoError(t, s.PutContract(ctx, 1, record(1, "Token", addrA)))

	// Clock goes backwards
	s.now = func() time.Time { return time.UnixMilli(3000) }
	rec := record(1, "Token", addrB)
	require.NoError(t, s.PutContract(ctx, 1, rec))
	assert.Equal(t, int64(5000), rec.Timestamp)
}

func TestStore_PutValidation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.PutContract(ctx, 1, record(1, "Token", "not-an-address"))
	assert.ErrorIs(t, err, domain.ErrValidationFailed)

	err = s.PutContract(ctx, 2, record(1, "Token", addrA))
	assert.ErrorIs(t, err, domain.ErrValidationFailed)

	found, err := s.HasContract(ctx, 1, "Token")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStore_ScanByChainPrefix(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.PutContract(ctx, 1, record(1, "Token", addrA)))
	require.NoError(t, s.PutContract(ctx, 1, record(1, "Governance", addrA)))
	require.NoError(t, s.PutContract(ctx, 10, record(10, "Token", addrA)))
	require.NoError(t, s.PutContract(ctx, 100, record(100, "Token", addrA)))

	all, err := s.GetAllContracts(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, all, 2, "chain 10 and 100 must not match the 1- prefix")

	empty, err := s.GetAllContracts(ctx, 5)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestStore_Query(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i, name := range []string{"Token", "BridgeModule", "Timelock"} {
		s.now = func() time.Time { return time.UnixMilli(int64(1000 * (3 - i))) }
		require.NoError(t, s.PutContract(ctx, 56, record(56, name, addrA)))
	}
	require.NoError(t, s.PutContract(ctx, 1, record(1, "Token", addrA)))

	got, err := s.QueryContracts(ctx, domain.QueryOptions{ContractName: "Token"})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = s.QueryContracts(ctx, domain.QueryOptions{ChainID: domain.ForChain(56), SortBy: domain.SortByTimestamp})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "Timelock", got[0].ContractName)
	assert.Equal(t, "Token", got[2].ContractName)

	_, err = s.QueryContracts(ctx, domain.QueryOptions{SortBy: "bogus"})
	assert.ErrorIs(t, err, domain.ErrValidationFailed)
}

func TestStore_Delete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	deleted, err := s.DeleteContract(ctx, 1, "Token")
	require.NoError(t, err)
	assert.False(t, deleted)

	require.NoError(t, s.PutContract(ctx, 1, record(1, "Token", addrA)))
	deleted, err = s.DeleteContract(ctx, 1, "Token")
	require.NoError(t, err)
	assert.True(t, deleted)

	got, err := s.GetContract(ctx, 1, "Token")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStore_ExportImport(t *testing.T) {
	src := newTestStore(t)
	dst := newTestStore(t)
	ctx := context.Background()

	withArgs := record(56, "Token", addrA)
	withArgs.DeploymentArgs = models.Args{new(big.Int).Lsh(big.NewInt(1), 200)}
	require.NoError(t, src.PutContract(ctx, 56, withArgs))
	require.NoError(t, src.PutContract(ctx, 1, record(1, "Governance", addrB)))

	blob, err := src.ExportAll(ctx, domain.ExportOptions{Format: domain.ExportFormatJSON})
	require.NoError(t, err)
	require.NoError(t, dst.ImportAll(ctx, blob, true))

	got, err := dst.GetContract(ctx, 56, "Token")
	require.NoError(t, err)
	assert.True(t, domain.CompareRecords(withArgs, got))

	t.Run("without overwrite keeps existing", func(t *testing.T) {
		changed := record(1, "Governance", addrA)
		require.NoError(t, src.PutContract(ctx, 1, changed))
		blob, err := src.ExportAll(ctx, domain.ExportOptions{})
		require.NoError(t, err)

		require.NoError(t, dst.ImportAll(ctx, blob, false))
		got, err := dst.GetContract(ctx, 1, "Governance")
		require.NoError(t, err)
		assert.Equal(t, addrB, got.Address)

		require.NoError(t, dst.ImportAll(ctx, blob, true))
		got, err = dst.GetContract(ctx, 1, "Governance")
		require.NoError(t, err)
		assert.Equal(t, addrA, got.Address)
	})

	t.Run("rejects malformed blob", func(t *testing.T) {
		assert.ErrorIs(t, dst.ImportAll(ctx, []byte("{broken"), true), domain.ErrSerialization)
	})
}

func TestStore_LegacyBigIntHeuristic(t *testing.T) {
	cfg := &config.RuntimeConfig{
		Storage: config.StorageConfig{
			Legacy: config.LegacyConfig{InMemory: true, BigIntHeuristic: true},
		},
	}
	s := NewStore(cfg, nil, nil)
	ctx := context.Background()
	require.NoError(t, s.Initialize(ctx))
	defer s.Close()

	raw := `{"contractName":"Token","chainId":1,"networkName":"mainnet","address":"` + addrA +
		`","factoryByteCodeHash":"0x11","deploymentArgs":["1000000000000000000000000","short"],"timestamp":1}`
	require.NoError(t, s.db.Put([]byte("1-Token"), []byte(raw), nil))

	got, err := s.GetContract(ctx, 1, "Token")
	require.NoError(t, err)
	assert.Equal(t, "1000000000000000000000000", got.DeploymentArgs[0].(*big.Int).String())
	assert.Equal(t, "short", got.DeploymentArgs[1])
}

func TestStore_ValidateIntegrity(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.PutContract(ctx, 1, record(1, "Token", addrA)))
	inconsistent := record(1, "Proxy", addrA)
	inconsistent.ImplementationHash = "0x9999"
	require.NoError(t, s.PutContract(ctx, 1, inconsistent))

	report, err := s.ValidateIntegrity(ctx)
	require.NoError(t, err)
	assert.True(t, report.IsValid)
	assert.Equal(t, 2, report.ContractCount)
	assert.Len(t, report.Warnings, 1)

	require.NoError(t, s.db.Put([]byte("garbage"), []byte("x"), nil))
	require.NoError(t, s.db.Put([]byte("1-Broken"), []byte("{"), nil))
	data, err := domain.EncodeRecord(record(1, "Other", addrA))
	require.NoError(t, err)
	require.NoError(t, s.db.Put([]byte("2-Other"), data, nil))

	report, err = s.ValidateIntegrity(ctx)
	require.NoError(t, err)
	assert.False(t, report.IsValid)
	assert.Len(t, report.Errors, 3)
}

func TestStore_CorruptValueIsSerializationError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.db.Put([]byte("1-Token"), []byte("{"), nil))

	_, err := s.GetContract(ctx, 1, "Token")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSerialization)

	var se *domain.StateError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "1-Token", se.Details["key"])
}

func TestStore_Lifecycle(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.RuntimeConfig{Storage: config.StorageConfig{BasePath: dir}}
	ctx := context.Background()

	s := NewStore(cfg, nil, nil)
	assert.False(t, s.IsHealthy(ctx))

	_, err := s.GetContract(ctx, 1, "Token")
	assert.ErrorIs(t, err, domain.ErrBackendUnavailable)

	require.NoError(t, s.Initialize(ctx))
	require.NoError(t, s.Initialize(ctx), "initialize is idempotent")
	assert.True(t, s.IsHealthy(ctx))
	require.NoError(t, s.PutContract(ctx, 1, record(1, "Token", addrA)))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.False(t, s.IsHealthy(ctx))

	// Data survives a reopen
	reopened := NewStore(cfg, nil, nil)
	require.NoError(t, reopened.Initialize(ctx))
	defer reopened.Close()
	got, err := reopened.GetContract(ctx, 1, "Token")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, addrA, got.Address)
	assert.Equal(t, "legacy", reopened.BackendType())
}

func TestStore_Metrics(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.PutContract(ctx, 1, record(1, "Token", addrA)))
	_, err := s.GetContract(ctx, 1, "Token")
	require.NoError(t, err)
	_ = s.PutContract(ctx, 1, record(1, "", addrA))

	m := s.Metrics()
	assert.Nil(t, m.CacheHitRate)
	assert.InDelta(t, 1.0/3.0, m.ErrorRate, 1e-9)
}
