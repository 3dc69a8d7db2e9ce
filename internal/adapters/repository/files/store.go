package files

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"github.com/trebuchet-org/treb-state/internal/adapters/cache"
	"github.com/trebuchet-org/treb-state/internal/adapters/fs"
	"github.com/trebuchet-org/treb-state/internal/adapters/metrics"
	"github.com/trebuchet-org/treb-state/internal/domain"
	"github.com/trebuchet-org/treb-state/internal/domain/config"
	"github.com/trebuchet-org/treb-state/internal/domain/models"
	"github.com/trebuchet-org/treb-state/internal/usecase"
)

// Store keeps one snapshot file per network. Each snapshot is loaded in full
// on first use, mutated in memory and persisted whole through the atomic
// writer. The mutex guards the snapshot map only; concurrent writers to the
// same key race and the last write wins.
type Store struct {
	cfg    *config.RuntimeConfig
	layout layout
	writer *fs.AtomicWriter
	cache  *cache.RecordCache

	validateOnWrite bool

	mu   sync.RWMutex
	docs map[uint64]document
	// discovered maps a chain to the network its snapshot file is named after
	discovered  map[uint64]string
	initialized bool

	// load hook for layouts that can fall back to another format
	fallback func(chainID uint64, network string) (document, error)

	// afterRead runs once GetContract has released the lock
	afterRead func()

	metrics *metrics.Recorder
	log     *slog.Logger
	now     func() time.Time
}

// NewFileStore creates the flat per-network JSON store
func NewFileStore(cfg *config.RuntimeConfig, writer *fs.AtomicWriter, reg prometheus.Registerer, log *slog.Logger) *Store {
	return newStore(cfg, flatLayout{base: cfg.Storage.BasePath}, writer, reg, log)
}

func newStore(cfg *config.RuntimeConfig, l layout, writer *fs.AtomicWriter, reg prometheus.Registerer, log *slog.Logger) *Store {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Store{
		cfg:             cfg,
		layout:          l,
		writer:          writer,
		cache:           cache.NewFromConfig(cfg.Storage.Cache),
		validateOnWrite: cfg.Storage.ValidateOnWrite,
		docs:            make(map[uint64]document),
		discovered:      make(map[uint64]string),
		metrics:         metrics.NewRecorder(l.backendType(), reg),
		log:             log.With("component", l.backendType()+"-store"),
		now:             time.Now,
	}
}

func (s *Store) fs() afero.Fs {
	return s.writer.Fs()
}

// Initialize makes sure the base directory exists
func (s *Store) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fs().MkdirAll(s.cfg.Storage.BasePath, 0755); err != nil {
		return domain.NewError(domain.KindBackendUnavailable, "failed to create state directory", err, map[string]any{
			"path": s.cfg.Storage.BasePath,
		})
	}
	s.initialized = true
	return nil
}

// Close drops in-memory state. Every mutation is already on disk.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = make(map[uint64]document)
	s.discovered = make(map[uint64]string)
	s.cache.Clear()
	s.initialized = false
	return nil
}

// networkFor names the file a chain's snapshot is read from and written to.
// A file found on disk keeps its name even when its header disagrees.
func (s *Store) networkFor(chainID uint64) string {
	if name, ok := s.discovered[chainID]; ok {
		return name
	}
	if doc, ok := s.docs[chainID]; ok {
		return doc.network()
	}
	return NetworkName(s.cfg, chainID)
}

// Path returns the snapshot file a chain's records are written to
func (s *Store) Path(chainID uint64) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.layout.path(s.networkFor(chainID))
}

// docLocked returns the loaded snapshot for a chain, reading it from disk on
// first use. It returns nil when no file exists. Callers hold s.mu.
func (s *Store) docLocked(chainID uint64) (document, error) {
	if doc, ok := s.docs[chainID]; ok {
		return doc, nil
	}
	network := s.networkFor(chainID)
	doc, err := s.readDocument(s.layout.path(network))
	if err != nil {
		return nil, err
	}
	if doc == nil && s.fallback != nil {
		if doc, err = s.fallback(chainID, network); err != nil {
			return nil, err
		}
	}
	if doc == nil {
		return nil, nil
	}
	if doc.chainID() != chainID {
		return nil, domain.NewError(domain.KindSerialization, "snapshot belongs to another chain", nil, map[string]any{
			"path":        s.layout.path(network),
			"chainId":     chainID,
			"fileChainId": doc.chainID(),
			"fileNetwork": doc.network(),
		})
	}
	s.docs[chainID] = doc
	s.discovered[chainID] = network
	return doc, nil
}

// readDocument loads a file in this store's layout; nil when it does not exist
func (s *Store) readDocument(path string) (document, error) {
	data, err := afero.ReadFile(s.fs(), path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, domain.NewError(domain.KindBackendUnavailable, "failed to read snapshot", err, map[string]any{"path": path})
	}
	doc, err := s.layout.decode(data)
	if err != nil {
		return nil, serializationError(path, err)
	}
	return doc, nil
}

// readDoc returns the loaded document, taking the write lock only to load
func (s *Store) readDoc(chainID uint64) (document, error) {
	s.mu.RLock()
	doc, ok := s.docs[chainID]
	s.mu.RUnlock()
	if ok {
		return doc, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.docLocked(chainID)
}

func (s *Store) checkInitialized() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.initialized {
		return domain.NewError(domain.KindBackendUnavailable, s.layout.backendType()+" store is not initialized", nil, map[string]any{
			"path": s.cfg.Storage.BasePath,
		})
	}
	return nil
}

// GetContract returns nil when the record does not exist
func (s *Store) GetContract(ctx context.Context, chainID uint64, contractName string) (rec *models.ContractRecord, err error) {
	defer s.metrics.Track(metrics.OpRead, time.Now(), &err)

	if err := s.checkInitialized(); err != nil {
		return nil, err
	}
	key := domain.GenerateKey(chainID, contractName)
	if cached, ok := s.cache.Get(key); ok {
		return cached, nil
	}

	doc, err := s.readDoc(chainID)
	if err != nil || doc == nil {
		return nil, err
	}

	// Resolve and fill the cache under one read lock: a writer's cache entry
	// always lands after this one, and a snapshot reverted by a failed persist
	// is never read.
	s.mu.RLock()
	if current, ok := s.docs[chainID]; ok {
		doc = current
	}
	found, aliased, ok := doc.resolve(contractName)
	if ok {
		found = found.Clone()
		// Alias hits are not cached so a later write to the target is always seen
		if !aliased {
			s.cache.Put(key, found)
		}
	}
	s.mu.RUnlock()
	if s.afterRead != nil {
		s.afterRead()
	}
	if !ok {
		return nil, nil
	}
	return found, nil
}

// PutContract validates, stamps and persists one record
func (s *Store) PutContract(ctx context.Context, chainID uint64, rec *models.ContractRecord) (err error) {
	defer s.metrics.Track(metrics.OpWrite, time.Now(), &err)

	if err := domain.BindChain(chainID, rec); err != nil {
		return err
	}
	if s.validateOnWrite {
		if err := domain.IsValidRecord(rec); err != nil {
			return err
		}
	}
	if err := s.checkInitialized(); err != nil {
		return err
	}

	key := domain.GenerateKey(chainID, rec.ContractName)
	return s.mutate(chainID, key, func(doc document) (bool, error) {
		var previous int64
		if prev, ok := doc.get(rec.ContractName); ok {
			previous = prev.Timestamp
		}
		domain.RefreshTimestamp(rec, previous, s.now())
		if rec.NetworkName == "" {
			rec.NetworkName = doc.network()
		}
		doc.put(rec.Clone())
		return true, nil
	}, func() {
		s.cache.Put(key, rec)
	})
}

// mutate applies fn to a chain's snapshot and persists it when fn reports a
// change. A failed persist restores the previous in-memory snapshot.
func (s *Store) mutate(chainID uint64, key string, fn func(doc document) (bool, error), onSuccess func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.docLocked(chainID)
	if err != nil {
		return err
	}
	created := doc == nil
	var prior document
	if created {
		doc = s.layout.newDocument(chainID, s.networkFor(chainID), s.now())
	} else {
		prior = doc.clone()
	}

	changed, err := fn(doc)
	if err != nil || !changed {
		if prior != nil {
			s.docs[chainID] = prior
		}
		return err
	}
	doc.touch(s.now())

	if err := s.persistLocked(doc); err != nil {
		if prior != nil {
			s.docs[chainID] = prior
		} else {
			delete(s.docs, chainID)
		}
		s.cache.Invalidate(key)
		return domain.NewError(domain.KindWriteFailed, "failed to persist snapshot", err, map[string]any{
			"key":  key,
			"path": s.layout.path(s.networkFor(chainID)),
		})
	}
	s.docs[chainID] = doc
	if onSuccess != nil {
		onSuccess()
	}
	return nil
}

func (s *Store) persistLocked(doc document) error {
	data, err := encodeDocument(doc)
	if err != nil {
		return err
	}
	return s.writer.WriteFile(s.layout.path(s.networkFor(doc.chainID())), data)
}

// GetAllContracts returns every record of one network
func (s *Store) GetAllContracts(ctx context.Context, chainID uint64) (records []*models.ContractRecord, err error) {
	defer s.metrics.Track(metrics.OpRead, time.Now(), &err)

	if err := s.checkInitialized(); err != nil {
		return nil, err
	}
	doc, err := s.readDoc(chainID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return []*models.ContractRecord{}, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneAll(doc.all()), nil
}

// discoverLocked loads every snapshot file on disk. Files that fail to load
// are returned as errors and skipped. Callers hold s.mu.
func (s *Store) discoverLocked(ctx context.Context) error {
	var result *multierror.Error
	seen := map[uint64]bool{}
	for _, pattern := range s.layout.patterns() {
		matches, err := afero.Glob(s.fs(), pattern)
		if err != nil {
			return domain.NewError(domain.KindBackendUnavailable, "failed to list snapshots", err, map[string]any{"pattern": pattern})
		}
		sort.Strings(matches)
		for _, path := range matches {
			if err := ctx.Err(); err != nil {
				return err
			}
			data, err := afero.ReadFile(s.fs(), path)
			if err != nil {
				result = multierror.Append(result, domain.NewError(domain.KindBackendUnavailable, "failed to read snapshot", err, map[string]any{"path": path}))
				continue
			}
			h, err := decodeHeader(data)
			if err != nil {
				result = multierror.Append(result, serializationError(path, err))
				continue
			}
			// The first pattern is the native format and wins over fallbacks
			if seen[h.ChainID] {
				continue
			}
			seen[h.ChainID] = true
			if _, ok := s.docs[h.ChainID]; ok {
				continue
			}
			network, ok := s.layout.networkOf(path)
			if !ok {
				continue
			}
			s.discovered[h.ChainID] = network
			if _, err := s.docLocked(h.ChainID); err != nil {
				result = multierror.Append(result, err)
			}
		}
	}
	return result.ErrorOrNil()
}

// loadedRecords returns clones of every record in every loaded snapshot
func (s *Store) loadedRecords() []*models.ContractRecord {
	var out []*models.ContractRecord
	for _, doc := range s.docs {
		out = append(out, cloneAll(doc.all())...)
	}
	domain.SortByKey(out)
	return out
}

// QueryContracts loads the requested network (or all of them) and filters
func (s *Store) QueryContracts(ctx context.Context, opts domain.QueryOptions) (records []*models.ContractRecord, err error) {
	defer s.metrics.Track(metrics.OpQuery, time.Now(), &err)

	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if err := s.checkInitialized(); err != nil {
		return nil, err
	}

	if opts.ChainID != nil {
		doc, err := s.readDoc(*opts.ChainID)
		if err != nil {
			return nil, err
		}
		if doc == nil {
			return []*models.ContractRecord{}, nil
		}
		s.mu.RLock()
		all := cloneAll(doc.all())
		s.mu.RUnlock()
		return domain.ApplyQuery(all, opts), nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.discoverLocked(ctx); err != nil {
		return nil, err
	}
	return domain.ApplyQuery(s.loadedRecords(), opts), nil
}

// HasContract reports whether GetContract would find the record
func (s *Store) HasContract(ctx context.Context, chainID uint64, contractName string) (bool, error) {
	rec, err := s.GetContract(ctx, chainID, contractName)
	if err != nil {
		return false, err
	}
	return rec != nil, nil
}

// DeleteContract removes a record and its hash bookkeeping. The snapshot is
// only persisted when something was removed.
func (s *Store) DeleteContract(ctx context.Context, chainID uint64, contractName string) (deleted bool, err error) {
	defer s.metrics.Track(metrics.OpWrite, time.Now(), &err)

	if err := s.checkInitialized(); err != nil {
		return false, err
	}
	key := domain.GenerateKey(chainID, contractName)
	err = s.mutate(chainID, key, func(doc document) (bool, error) {
		return doc.remove(contractName), nil
	}, func() {
		deleted = true
		s.cache.Invalidate(key)
	})
	if err != nil {
		return false, err
	}
	return deleted, nil
}

// ExportAll serializes every record on disk
func (s *Store) ExportAll(ctx context.Context, opts domain.ExportOptions) (data []byte, err error) {
	defer s.metrics.Track(metrics.OpQuery, time.Now(), &err)

	if err := s.checkInitialized(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	if err := s.discoverLocked(ctx); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	records := s.loadedRecords()
	s.mu.Unlock()

	return domain.EncodeExport(s.layout.backendType(), records, opts, s.now())
}

// ImportAll writes an export blob network by network, each network in one
// atomic persist. Without overwrite existing records are kept. Imported
// timestamps are preserved but never move a key backwards.
func (s *Store) ImportAll(ctx context.Context, data []byte, overwrite bool) (err error) {
	defer s.metrics.Track(metrics.OpWrite, time.Now(), &err)

	if err := s.checkInitialized(); err != nil {
		return err
	}
	env, err := domain.DecodeExport(data, domain.DecodeOptions{})
	if err != nil {
		return err
	}

	byChain := map[uint64][]*models.ContractRecord{}
	for _, rec := range env.Contracts {
		byChain[rec.ChainID] = append(byChain[rec.ChainID], rec)
	}
	chains := make([]uint64, 0, len(byChain))
	for chainID := range byChain {
		chains = append(chains, chainID)
	}
	sort.Slice(chains, func(i, j int) bool { return chains[i] < chains[j] })

	written, skipped := 0, 0
	for _, chainID := range chains {
		if err := ctx.Err(); err != nil {
			return err
		}
		records := byChain[chainID]
		err := s.mutate(chainID, domain.KeyPrefix(chainID)+"*", func(doc document) (bool, error) {
			changed := false
			for _, rec := range records {
				prev, exists := doc.get(rec.ContractName)
				if exists && !overwrite {
					skipped++
					continue
				}
				if exists && prev.Timestamp > rec.Timestamp {
					rec.Timestamp = prev.Timestamp
				}
				if rec.NetworkName == "" {
					rec.NetworkName = doc.network()
				}
				doc.put(rec.Clone())
				written++
				changed = true
			}
			return changed, nil
		}, nil)
		if err != nil {
			return err
		}
		for _, rec := range records {
			s.cache.Invalidate(domain.GenerateKey(chainID, rec.ContractName))
		}
	}
	s.log.Info("imported records", "written", written, "skipped", skipped, "networks", len(chains))
	return nil
}

// ValidateIntegrity checks every snapshot on disk
func (s *Store) ValidateIntegrity(ctx context.Context) (*domain.IntegrityReport, error) {
	if err := s.checkInitialized(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	report := domain.NewIntegrityReport(s.now())
	if err := s.discoverLocked(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		var merr *multierror.Error
		if errors.As(err, &merr) {
			for _, e := range merr.Errors {
				report.AddError("%v", e)
			}
		} else {
			report.AddError("%v", err)
		}
	}

	chains := make([]uint64, 0, len(s.docs))
	for chainID := range s.docs {
		chains = append(chains, chainID)
	}
	sort.Slice(chains, func(i, j int) bool { return chains[i] < chains[j] })
	for _, chainID := range chains {
		doc := s.docs[chainID]
		if network := s.networkFor(chainID); doc.network() != network {
			report.AddWarning("%s: snapshot names network %q but is stored as %q", s.layout.path(network), doc.network(), network)
		}
		doc.check(report)
	}
	return report, nil
}

// Metrics includes the cache hit rate when caching is enabled
func (s *Store) Metrics() domain.StoreMetrics {
	m := s.metrics.Snapshot()
	if s.cache != nil {
		rate := s.cache.HitRate()
		m.CacheHitRate = &rate
	}
	return m
}

// CacheStats exposes the cache counters
func (s *Store) CacheStats() cache.Stats {
	return s.cache.Stats()
}

func (s *Store) BackendType() string {
	return s.layout.backendType()
}

// IsHealthy reports whether the base directory is reachable
func (s *Store) IsHealthy(ctx context.Context) bool {
	if s.checkInitialized() != nil {
		return false
	}
	info, err := s.fs().Stat(s.cfg.Storage.BasePath)
	return err == nil && info.IsDir()
}

func cloneAll(records []*models.ContractRecord) []*models.ContractRecord {
	out := make([]*models.ContractRecord, len(records))
	for i, rec := range records {
		out[i] = rec.Clone()
	}
	return out
}

var _ usecase.StateStore = (*Store)(nil)
