package files

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trebuchet-org/treb-state/internal/adapters/fs"
	"github.com/trebuchet-org/treb-state/internal/domain"
	"github.com/trebuchet-org/treb-state/internal/domain/config"
	"github.com/trebuchet-org/treb-state/internal/domain/models"
)

const (
	addrA = "0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
	addrB = "0xBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB"
	hash1 = "0x1111111111111111111111111111111111111111111111111111111111111111"
	hash2 = "0x2222222222222222222222222222222222222222222222222222222222222222"
)

func testConfig() *config.RuntimeConfig {
	storage := config.DefaultStorageConfig("/state")
	return &config.RuntimeConfig{
		Storage:  storage,
		Networks: map[uint64]string{1: "mainnet", 56: "bsc"},
	}
}

// countingFs counts writes and can be told to fail renames
type countingFs struct {
	afero.Fs
	mu         sync.Mutex
	opens      int
	failRename bool
}

func (f *countingFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	f.mu.Lock()
	f.opens++
	f.mu.Unlock()
	return f.Fs.OpenFile(name, flag, perm)
}

func (f *countingFs) Rename(oldname, newname string) error {
	f.mu.Lock()
	fail := f.failRename
	f.mu.Unlock()
	if fail {
		return errors.New("rename refused")
	}
	return f.Fs.Rename(oldname, newname)
}

func (f *countingFs) setFailRename(v bool) {
	f.mu.Lock()
	f.failRename = v
	f.mu.Unlock()
}

func (f *countingFs) writes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens
}

func fixedNow() time.Time {
	return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
}

func newTestStore(t *testing.T, cfg *config.RuntimeConfig) (*Store, *countingFs) {
	t.Helper()
	mem := &countingFs{Fs: afero.NewMemMapFs()}
	writer := fs.NewAtomicWriterFromConfig(mem, cfg, nil)
	s := NewFileStore(cfg, writer, nil, nil)
	require.NoError(t, s.Initialize(context.Background()))
	return s, mem
}

func record(chainID uint64, name, address, hash string) *models.ContractRecord {
	return &models.ContractRecord{
		ContractName:        name,
		ChainID:             chainID,
		Address:             address,
		FactoryByteCodeHash: hash,
	}
}

func readSnapshot(t *testing.T, fsys afero.Fs, path string) *models.Snapshot {
	t.Helper()
	data, err := afero.ReadFile(fsys, path)
	require.NoError(t, err)
	var snap models.Snapshot
	require.NoError(t, json.Unmarshal(data, &snap))
	return &snap
}

func TestFileStore_RoundTrip(t *testing.T) {
	s, _ := newTestStore(t, testConfig())
	ctx := context.Background()

	rec := record(56, "Token", addrA, hash1)
	rec.ProxyAddress = addrB
	rec.DeploymentArgs = models.Args{"Token", new(big.Int).Exp(big.NewInt(10), big.NewInt(30), nil), map[string]any{"decimals": int64(18)}}
	require.NoError(t, s.PutContract(ctx, 56, rec))
	assert.Equal(t, "bsc", rec.NetworkName)

	got, err := s.GetContract(ctx, 56, "Token")
	require.NoError(t, err)
	assert.True(t, domain.CompareRecords(rec, got))

	// Bypass the cache and read back from disk
	fresh := NewFileStore(s.cfg, s.writer, nil, nil)
	require.NoError(t, fresh.Initialize(ctx))
	got, err = fresh.GetContract(ctx, 56, "Token")
	require.NoError(t, err)
	assert.True(t, domain.CompareRecords(rec, got))
}

func TestFileStore_EndToEnd(t *testing.T) {
	s, mem := newTestStore(t, testConfig())
	ctx := context.Background()

	s.now = func() time.Time { return time.UnixMilli(1000) }
	require.NoError(t, s.PutContract(ctx, 56, record(56, "Token", addrA, hash1)))

	s.now = func() time.Time { return time.UnixMilli(2000) }
	require.NoError(t, s.PutContract(ctx, 56, record(56, "Token", addrB, hash2)))

	got, err := s.GetContract(ctx, 56, "Token")
	require.NoError(t, err)
	assert.Equal(t, addrB, got.Address)
	assert.Equal(t, hash2, got.FactoryByteCodeHash)
	assert.Equal(t, int64(2000), got.Timestamp)

	all, err := s.GetAllContracts(ctx, 56)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "Token", all[0].ContractName)

	snap := readSnapshot(t, mem, "/state/bsc.json")
	assert.Equal(t, models.FlatSchemaVersion, snap.SchemaVersion)
	assert.Equal(t, uint64(56), snap.ChainID)
	assert.Equal(t, hash2, snap.Hashes["Token"].FactoryByteCodeHash)
}

func TestFileStore_MissIsNotError(t *testing.T) {
	s, _ := newTestStore(t, testConfig())
	ctx := context.Background()

	got, err := s.GetContract(ctx, 1, "Token")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, s.PutContract(ctx, 1, record(1, "Token", addrA, hash1)))
	got, err = s.GetContract(ctx, 1, "Other")
	require.NoError(t, err)
	assert.Nil(t, got)

	all, err := s.GetAllContracts(ctx, 999)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestFileStore_UnmappedNetworkFallback(t *testing.T) {
	s, mem := newTestStore(t, testConfig())
	require.NoError(t, s.PutContract(context.Background(), 4242, record(4242, "Token", addrA, hash1)))

	exists, err := afero.Exists(mem, "/state/chain4242.json")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, "/state/chain4242.json", s.Path(4242))
}

func TestFileStore_ValidateOnWriteDoesNoIO(t *testing.T) {
	s, mem := newTestStore(t, testConfig())
	before := mem.writes()

	err := s.PutContract(context.Background(), 1, record(1, "Token", "bogus", hash1))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrValidationFailed)
	assert.Equal(t, before, mem.writes())

	exists, err := afero.Exists(mem, "/state/mainnet.json")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestFileStore_FailedPersistReverts(t *testing.T) {
	s, mem := newTestStore(t, testConfig())
	ctx := context.Background()

	require.NoError(t, s.PutContract(ctx, 1, record(1, "Token", addrA, hash1)))

	mem.setFailRename(true)
	err := s.PutContract(ctx, 1, record(1, "Token", addrB, hash2))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrWriteFailed)

	got, err := s.GetContract(ctx, 1, "Token")
	require.NoError(t, err)
	assert.Equal(t, addrA, got.Address, "in-memory snapshot is reverted")

	snap := readSnapshot(t, mem, "/state/mainnet.json")
	assert.Equal(t, addrA, snap.Contracts["Token"].Address)

	err = s.PutContract(ctx, 1, record(1, "Governance", addrB, hash2))
	require.Error(t, err)
	mem.setFailRename(false)

	got, err = s.GetContract(ctx, 1, "Governance")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestFileStore_Delete(t *testing.T) {
	s, mem := newTestStore(t, testConfig())
	ctx := context.Background()

	deleted, err := s.DeleteContract(ctx, 1, "Token")
	require.NoError(t, err)
	assert.False(t, deleted)

	require.NoError(t, s.PutContract(ctx, 1, record(1, "Token", addrA, hash1)))
	require.NoError(t, s.PutContract(ctx, 1, record(1, "BridgeModule", addrA, hash1)))
	// Prime the cache
	_, err = s.GetContract(ctx, 1, "Token")
	require.NoError(t, err)

	before := mem.writes()
	deleted, err = s.DeleteContract(ctx, 1, "Missing")
	require.NoError(t, err)
	assert.False(t, deleted)
	assert.Equal(t, before, mem.writes(), "no persist when nothing was removed")

	deleted, err = s.DeleteContract(ctx, 1, "Token")
	require.NoError(t, err)
	assert.True(t, deleted)

	got, err := s.GetContract(ctx, 1, "Token")
	require.NoError(t, err)
	assert.Nil(t, got, "cache entry is evicted")

	snap := readSnapshot(t, mem, "/state/mainnet.json")
	assert.NotContains(t, snap.Contracts, "Token")
	assert.NotContains(t, snap.Hashes, "Token")
	assert.Equal(t, []string{"bridge"}, snap.ProtocolsDeployed)
}

func TestFileStore_Query(t *testing.T) {
	s, _ := newTestStore(t, testConfig())
	ctx := context.Background()

	for i, name := range []string{"Token", "LayerZeroModule", "Timelock"} {
		s.now = func() time.Time { return time.UnixMilli(int64(100 * (i + 1))) }
		require.NoError(t, s.PutContract(ctx, 56, record(56, name, addrA, hash1)))
	}
	require.NoError(t, s.PutContract(ctx, 1, record(1, "Token", addrB, hash1)))

	// A new instance has to discover networks from disk
	fresh := NewFileStore(s.cfg, s.writer, nil, nil)
	require.NoError(t, fresh.Initialize(ctx))

	got, err := fresh.QueryContracts(ctx, domain.QueryOptions{ContractName: "Token"})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = fresh.QueryContracts(ctx, domain.QueryOptions{ChainID: domain.ForChain(56), SortBy: domain.SortByTimestamp, SortOrder: domain.SortDesc})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"Timelock", "LayerZeroModule", "Token"}, []string{got[0].ContractName, got[1].ContractName, got[2].ContractName})

	got, err = fresh.QueryContracts(ctx, domain.QueryOptions{NetworkName: "mainnet"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, addrB, got[0].Address)
}

func TestFileStore_ProtocolsDeployed(t *testing.T) {
	s, mem := newTestStore(t, testConfig())
	ctx := context.Background()

	for _, name := range []string{"WormholeModule", "LayerZeroModule", "Token", "WormholeModule"} {
		require.NoError(t, s.PutContract(ctx, 1, record(1, name, addrA, hash1)))
	}
	snap := readSnapshot(t, mem, "/state/mainnet.json")
	assert.Equal(t, []string{"layerzero", "wormhole"}, snap.ProtocolsDeployed)
}

func TestFileStore_ExportImport(t *testing.T) {
	src, _ := newTestStore(t, testConfig())
	dst, _ := newTestStore(t, testConfig())
	ctx := context.Background()

	require.NoError(t, src.PutContract(ctx, 1, record(1, "Token", addrA, hash1)))
	require.NoError(t, src.PutContract(ctx, 56, record(56, "Token", addrB, hash2)))

	blob, err := src.ExportAll(ctx, domain.ExportOptions{Format: domain.ExportFormatYAML, IncludeMetadata: true})
	require.NoError(t, err)
	require.NoError(t, dst.ImportAll(ctx, blob, true))

	all, err := dst.QueryContracts(ctx, domain.QueryOptions{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	t.Run("chain filter", func(t *testing.T) {
		blob, err := src.ExportAll(ctx, domain.ExportOptions{ChainIDs: []uint64{56}})
		require.NoError(t, err)
		env, err := domain.DecodeExport(blob, domain.DecodeOptions{})
		require.NoError(t, err)
		require.Len(t, env.Contracts, 1)
		assert.Equal(t, uint64(56), env.Contracts[0].ChainID)
	})

	t.Run("without overwrite keeps existing", func(t *testing.T) {
		other, _ := newTestStore(t, testConfig())
		require.NoError(t, other.PutContract(ctx, 1, record(1, "Token", addrB, hash2)))

		require.NoError(t, other.ImportAll(ctx, blob, false))
		got, err := other.GetContract(ctx, 1, "Token")
		require.NoError(t, err)
		assert.Equal(t, addrB, got.Address)

		got, err = other.GetContract(ctx, 56, "Token")
		require.NoError(t, err)
		require.NotNil(t, got)
	})
}

func TestFileStore_ValidateIntegrity(t *testing.T) {
	cfg := testConfig()
	cfg.Storage.ValidateOnWrite = false
	s, mem := newTestStore(t, cfg)
	ctx := context.Background()

	require.NoError(t, s.PutContract(ctx, 1, record(1, "Token", addrA, hash1)))
	mismatch := record(1, "Governance", addrA, hash1)
	mismatch.ImplementationHash = hash2
	require.NoError(t, s.PutContract(ctx, 1, mismatch))

	report, err := s.ValidateIntegrity(ctx)
	require.NoError(t, err)
	assert.True(t, report.IsValid)
	assert.Equal(t, 2, report.ContractCount)
	assert.Len(t, report.Warnings, 1)

	require.NoError(t, s.PutContract(ctx, 1, record(1, "Broken", "nope", hash1)))
	require.NoError(t, afero.WriteFile(mem, "/state/corrupt.json", []byte("{"), 0644))

	fresh := NewFileStore(cfg, s.writer, nil, nil)
	require.NoError(t, fresh.Initialize(ctx))
	report, err = fresh.ValidateIntegrity(ctx)
	require.NoError(t, err)
	assert.False(t, report.IsValid)
	assert.Len(t, report.Errors, 2)
	assert.Equal(t, 2, report.ContractCount)
}

func TestFileStore_Metrics(t *testing.T) {
	s, _ := newTestStore(t, testConfig())
	ctx := context.Background()

	require.NoError(t, s.PutContract(ctx, 1, record(1, "Token", addrA, hash1)))
	// Put populates the cache, so both reads hit
	_, err := s.GetContract(ctx, 1, "Token")
	require.NoError(t, err)
	_, err = s.GetContract(ctx, 1, "Missing")
	require.NoError(t, err)

	m := s.Metrics()
	require.NotNil(t, m.CacheHitRate)
	assert.InDelta(t, 0.5, *m.CacheHitRate, 1e-9)
	assert.Equal(t, "file", s.BackendType())

	cfg := testConfig()
	cfg.Storage.Cache.Enabled = false
	uncached, _ := newTestStore(t, cfg)
	assert.Nil(t, uncached.Metrics().CacheHitRate)
}

func TestFileStore_CacheDisabledStillCorrect(t *testing.T) {
	cfg := testConfig()
	cfg.Storage.Cache.Enabled = false
	s, _ := newTestStore(t, cfg)
	ctx := context.Background()

	require.NoError(t, s.PutContract(ctx, 1, record(1, "Token", addrA, hash1)))
	require.NoError(t, s.PutContract(ctx, 1, record(1, "Token", addrB, hash1)))
	got, err := s.GetContract(ctx, 1, "Token")
	require.NoError(t, err)
	assert.Equal(t, addrB, got.Address)
}

func TestFileStore_Lifecycle(t *testing.T) {
	cfg := testConfig()
	mem := afero.NewMemMapFs()
	s := NewFileStore(cfg, fs.NewAtomicWriterFromConfig(mem, cfg, nil), nil, nil)
	ctx := context.Background()

	assert.False(t, s.IsHealthy(ctx))
	_, err := s.GetContract(ctx, 1, "Token")
	assert.ErrorIs(t, err, domain.ErrBackendUnavailable)

	require.NoError(t, s.Initialize(ctx))
	assert.True(t, s.IsHealthy(ctx))
	require.NoError(t, s.Close())
	assert.False(t, s.IsHealthy(ctx))
}

func TestFileStore_ChainMismatch(t *testing.T) {
	s, _ := newTestStore(t, testConfig())
	err := s.PutContract(context.Background(), 56, record(1, "Token", addrA, hash1))
	assert.ErrorIs(t, err, domain.ErrValidationFailed)
}

func TestFileStore_CacheNotStaleAfterConcurrentWrite(t *testing.T) {
	s, _ := newTestStore(t, testConfig())
	ctx := context.Background()

	require.NoError(t, s.PutContract(ctx, 1, record(1, "Token", addrA, hash1)))
	s.cache.Invalidate(domain.GenerateKey(1, "Token"))

	// A writer slips in between the reader's snapshot read and its return
	s.afterRead = func() {
		s.afterRead = nil
		require.NoError(t, s.PutContract(ctx, 1, record(1, "Token", addrB, hash1)))
	}
	got, err := s.GetContract(ctx, 1, "Token")
	require.NoError(t, err)
	assert.Equal(t, addrA, got.Address)

	got, err = s.GetContract(ctx, 1, "Token")
	require.NoError(t, err)
	assert.Equal(t, addrB, got.Address, "the later write must not be shadowed by the earlier read")
}

func TestFileStore_SnapshotNamedDifferentlyFromHeader(t *testing.T) {
	s, mem := newTestStore(t, testConfig())
	ctx := context.Background()

	snap := models.NewSnapshot(10, "optimism", fixedNow())
	rec := record(10, "Token", addrA, hash1)
	rec.NetworkName = "optimism"
	rec.Timestamp = fixedNow().UnixMilli()
	snap.Contracts["Token"] = rec
	snap.Hashes["Token"] = models.HashInfo{FactoryByteCodeHash: hash1}
	data, err := json.Marshal(snap)
	require.NoError(t, err)
	require.NoError(t, afero.WriteFile(mem, "/state/optimism-old.json", data, 0644))

	got, err := s.QueryContracts(ctx, domain.QueryOptions{})
	require.NoError(t, err)
	require.Len(t, got, 1, "a file is found under whatever name it has on disk")
	assert.Equal(t, "Token", got[0].ContractName)

	found, err := s.GetContract(ctx, 10, "Token")
	require.NoError(t, err)
	require.NotNil(t, found)

	require.NoError(t, s.PutContract(ctx, 10, record(10, "Timelock", addrB, hash1)))
	assert.Len(t, readSnapshot(t, mem, "/state/optimism-old.json").Contracts, 2)
	for _, path := range []string{"/state/optimism.json", "/state/chain10.json"} {
		exists, err := afero.Exists(mem, path)
		require.NoError(t, err)
		assert.False(t, exists, path)
	}

	report, err := s.ValidateIntegrity(ctx)
	require.NoError(t, err)
	assert.True(t, report.IsValid)
	require.Len(t, report.Warnings, 1)
	assert.Contains(t, report.Warnings[0], "optimism-old")
}
