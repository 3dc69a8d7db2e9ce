package legacy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
	"github.com/trebuchet-org/treb-state/internal/adapters/metrics"
	"github.com/trebuchet-org/treb-state/internal/domain"
	"github.com/trebuchet-org/treb-state/internal/domain/config"
	"github.com/trebuchet-org/treb-state/internal/domain/models"
	"github.com/trebuchet-org/treb-state/internal/usecase"
)

// BackendType is reported by the legacy store
const BackendType = "legacy"

// healthKey is probed by IsHealthy; it is never written
var healthKey = []byte("\x00health")

// Store keeps contract records in an embedded LevelDB keyed by
// "<chainId>-<contractName>". The handle is owned by the store: Initialize
// opens it and Close releases it.
type Store struct {
	path     string
	inMemory bool
	decode   domain.DecodeOptions

	mu sync.RWMutex
	db *leveldb.DB

	metrics *metrics.Recorder
	log     *slog.Logger
	now     func() time.Time
}

// NewStore creates a legacy store from configuration. Nothing is opened
// until Initialize.
func NewStore(cfg *config.RuntimeConfig, reg prometheus.Registerer, log *slog.Logger) *Store {
	path := cfg.Storage.Legacy.Path
	if path == "" {
		path = filepath.Join(cfg.Storage.BasePath, "legacy")
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Store{
		path:     path,
		inMemory: cfg.Storage.Legacy.InMemory,
		decode:   domain.DecodeOptions{LegacyBigIntStrings: cfg.Storage.Legacy.BigIntHeuristic},
		metrics:  metrics.NewRecorder(BackendType, reg),
		log:      log.With("component", "legacy-store"),
		now:      time.Now,
	}
}

// Initialize opens the database. Calling it on an open store is a no-op.
func (s *Store) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return nil
	}

	var (
		db  *leveldb.DB
		err error
	)
	if s.inMemory {
		db, err = leveldb.Open(storage.NewMemStorage(), nil)
	} else {
		db, err = leveldb.OpenFile(s.path, nil)
	}
	if err != nil {
		return domain.NewError(domain.KindBackendUnavailable, "failed to open legacy store", err, map[string]any{"path": s.path})
	}
	s.db = db
	s.log.Debug("opened legacy store", "path", s.path, "inMemory", s.inMemory)
	return nil
}

// Close releases the database handle
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	if err != nil {
		return domain.NewError(domain.KindBackendUnavailable, "failed to close legacy store", err, map[string]any{"path": s.path})
	}
	return nil
}

func (s *Store) handle() (*leveldb.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, domain.NewError(domain.KindBackendUnavailable, "legacy store is not initialized", nil, map[string]any{"path": s.path})
	}
	return s.db, nil
}

// GetContract returns nil when the key is missing
func (s *Store) GetContract(ctx context.Context, chainID uint64, contractName string) (rec *models.ContractRecord, err error) {
	defer s.metrics.Track(metrics.OpRead, time.Now(), &err)

	db, err := s.handle()
	if err != nil {
		return nil, err
	}
	return s.get(db, domain.GenerateKey(chainID, contractName))
}

func (s *Store) get(db *leveldb.DB, key string) (*models.ContractRecord, error) {
	data, err := db.Get([]byte(key), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, nil
		}
		return nil, domain.NewError(domain.KindBackendUnavailable, "failed to read legacy store", err, map[string]any{"key": key})
	}
	rec, err := domain.DecodeRecord(data, s.decode)
	if err != nil {
		return nil, withKey(err, key)
	}
	return rec, nil
}

// PutContract overwrites the record and refreshes its timestamp
func (s *Store) PutContract(ctx context.Context, chainID uint64, rec *models.ContractRecord) (err error) {
	defer s.metrics.Track(metrics.OpWrite, time.Now(), &err)

	if err := domain.BindChain(chainID, rec); err != nil {
		return err
	}
	// Records are read back through the strict decoder, so invalid ones are never written
	if err := domain.IsValidRecord(rec); err != nil {
		return err
	}

	db, err := s.handle()
	if err != nil {
		return err
	}

	key := domain.GenerateKey(chainID, rec.ContractName)
	var previous int64
	if prev, err := s.get(db, key); err == nil && prev != nil {
		previous = prev.Timestamp
	}
	domain.RefreshTimestamp(rec, previous, s.now())

	data, err := domain.EncodeRecord(rec)
	if err != nil {
		return err
	}
	if err := db.Put([]byte(key), data, nil); err != nil {
		return domain.NewError(domain.KindWriteFailed, "failed to write legacy store", err, map[string]any{"key": key})
	}
	return nil
}

// GetAllContracts scans every key with the chain prefix
func (s *Store) GetAllContracts(ctx context.Context, chainID uint64) (records []*models.ContractRecord, err error) {
	defer s.metrics.Track(metrics.OpRead, time.Now(), &err)

	db, err := s.handle()
	if err != nil {
		return nil, err
	}
	records, err = s.scan(ctx, db, []byte(domain.KeyPrefix(chainID)))
	if err != nil {
		return nil, err
	}
	return records, nil
}

// scan decodes every record under prefix. A nil prefix walks the whole keyspace.
func (s *Store) scan(ctx context.Context, db *leveldb.DB, prefix []byte) ([]*models.ContractRecord, error) {
	records := []*models.ContractRecord{}
	err := s.iterate(ctx, db, prefix, func(key string, value []byte) error {
		rec, err := domain.DecodeRecord(value, s.decode)
		if err != nil {
			return withKey(err, key)
		}
		records = append(records, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (s *Store) iterate(ctx context.Context, db *leveldb.DB, prefix []byte, fn func(key string, value []byte) error) error {
	var slice *util.Range
	if prefix != nil {
		slice = util.BytesPrefix(prefix)
	}
	iter := db.NewIterator(slice, nil)
	defer iter.Release()

	for iter.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		key := string(iter.Key())
		if key == string(healthKey) {
			continue
		}
		// The iterator reuses its buffers
		value := append([]byte(nil), iter.Value()...)
		if err := fn(key, value); err != nil {
			return err
		}
	}
	if err := iter.Error(); err != nil {
		return domain.NewError(domain.KindBackendUnavailable, "failed to iterate legacy store", err, map[string]any{"prefix": string(prefix)})
	}
	return nil
}

// QueryContracts filters and sorts records across one or all chains
func (s *Store) QueryContracts(ctx context.Context, opts domain.QueryOptions) (records []*models.ContractRecord, err error) {
	defer s.metrics.Track(metrics.OpQuery, time.Now(), &err)

	if err := opts.Validate(); err != nil {
		return nil, err
	}
	db, err := s.handle()
	if err != nil {
		return nil, err
	}

	var prefix []byte
	if opts.ChainID != nil {
		prefix = []byte(domain.KeyPrefix(*opts.ChainID))
	}
	all, err := s.scan(ctx, db, prefix)
	if err != nil {
		return nil, err
	}
	return domain.ApplyQuery(all, opts), nil
}

// HasContract reports whether the key exists
func (s *Store) HasContract(ctx context.Context, chainID uint64, contractName string) (found bool, err error) {
	defer s.metrics.Track(metrics.OpRead, time.Now(), &err)

	db, err := s.handle()
	if err != nil {
		return false, err
	}
	key := domain.GenerateKey(chainID, contractName)
	found, err = db.Has([]byte(key), nil)
	if err != nil {
		return false, domain.NewError(domain.KindBackendUnavailable, "failed to read legacy store", err, map[string]any{"key": key})
	}
	return found, nil
}

// DeleteContract removes the key and reports whether it existed
func (s *Store) DeleteContract(ctx context.Context, chainID uint64, contractName string) (deleted bool, err error) {
	defer s.metrics.Track(metrics.OpWrite, time.Now(), &err)

	db, err := s.handle()
	if err != nil {
		return false, err
	}
	key := []byte(domain.GenerateKey(chainID, contractName))
	found, err := db.Has(key, nil)
	if err != nil {
		return false, domain.NewError(domain.KindBackendUnavailable, "failed to read legacy store", err, map[string]any{"key": string(key)})
	}
	if !found {
		return false, nil
	}
	if err := db.Delete(key, nil); err != nil {
		return false, domain.NewError(domain.KindWriteFailed, "failed to delete from legacy store", err, map[string]any{"key": string(key)})
	}
	return true, nil
}

// ExportAll serializes every record (optionally limited to some chains)
func (s *Store) ExportAll(ctx context.Context, opts domain.ExportOptions) (data []byte, err error) {
	defer s.metrics.Track(metrics.OpQuery, time.Now(), &err)

	db, err := s.handle()
	if err != nil {
		return nil, err
	}
	records, err := s.scan(ctx, db, nil)
	if err != nil {
		return nil, err
	}
	return domain.EncodeExport(BackendType, records, opts, s.now())
}

// ImportAll writes every record of an export blob in one batch. Without
// overwrite existing keys are kept. Imported timestamps are preserved but
// never move a key's timestamp backwards.
func (s *Store) ImportAll(ctx context.Context, data []byte, overwrite bool) (err error) {
	defer s.metrics.Track(metrics.OpWrite, time.Now(), &err)

	env, err := domain.DecodeExport(data, s.decode)
	if err != nil {
		return err
	}
	db, err := s.handle()
	if err != nil {
		return err
	}

	batch := new(leveldb.Batch)
	skipped := 0
	for _, rec := range env.Contracts {
		if err := ctx.Err(); err != nil {
			return err
		}
		key := domain.GenerateKey(rec.ChainID, rec.ContractName)
		prev, err := s.get(db, key)
		if err != nil && !errors.Is(err, domain.ErrSerialization) {
			return err
		}
		if prev != nil {
			if !overwrite {
				skipped++
				continue
			}
			if prev.Timestamp > rec.Timestamp {
				rec.Timestamp = prev.Timestamp
			}
		}
		encoded, err := domain.EncodeRecord(rec)
		if err != nil {
			return err
		}
		batch.Put([]byte(key), encoded)
	}

	if err := db.Write(batch, nil); err != nil {
		return domain.NewError(domain.KindWriteFailed, "failed to import into legacy store", err, map[string]any{
			"records": batch.Len(),
		})
	}
	s.log.Info("imported records", "written", batch.Len(), "skipped", skipped)
	return nil
}

// ValidateIntegrity decodes every stored value and checks it against its key
func (s *Store) ValidateIntegrity(ctx context.Context) (*domain.IntegrityReport, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}
	report := domain.NewIntegrityReport(s.now())

	err = s.iterate(ctx, db, nil, func(key string, value []byte) error {
		chainID, name, err := domain.ParseKey(key)
		if err != nil {
			report.AddError("malformed key %q", key)
			return nil
		}
		rec, err := domain.DecodeRecord(value, s.decode)
		if err != nil {
			report.AddError("%s: %v", key, err)
			return nil
		}
		if rec.ChainID != chainID || rec.ContractName != name {
			report.AddError("%s: record is stored under the wrong key (%s)", key, domain.GenerateKey(rec.ChainID, rec.ContractName))
			return nil
		}
		if !domain.HashConsistent(rec) {
			report.AddWarning("%s: implementationHash differs from factoryByteCodeHash", key)
		}
		report.ContractCount++
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

// Metrics returns latency and error rates. The legacy store has no cache.
func (s *Store) Metrics() domain.StoreMetrics {
	return s.metrics.Snapshot()
}

func (s *Store) BackendType() string {
	return BackendType
}

// IsHealthy probes the database with a read
func (s *Store) IsHealthy(ctx context.Context) bool {
	db, err := s.handle()
	if err != nil {
		return false
	}
	_, err = db.Has(healthKey, nil)
	return err == nil
}

// withKey attaches the record key to a decode error
func withKey(err error, key string) error {
	var se *domain.StateError
	if errors.As(err, &se) {
		details := map[string]any{"key": key}
		for k, v := range se.Details {
			if k != "key" {
				details[k] = v
			}
		}
		return domain.NewError(se.Kind, se.Message, se.Err, details)
	}
	return fmt.Errorf("%s: %w", key, err)
}

var _ usecase.StateStore = (*Store)(nil)
