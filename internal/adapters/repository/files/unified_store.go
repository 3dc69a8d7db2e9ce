package files

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"github.com/trebuchet-org/treb-state/internal/adapters/fs"
	"github.com/trebuchet-org/treb-state/internal/adapters/metrics"
	"github.com/trebuchet-org/treb-state/internal/domain"
	"github.com/trebuchet-org/treb-state/internal/domain/config"
	"github.com/trebuchet-org/treb-state/internal/usecase"
)

// UnifiedStore is the hierarchical variant of the file store: records are
// grouped by category and renamed contracts stay reachable through aliases.
type UnifiedStore struct {
	*Store
	layout      unifiedLayout
	autoMigrate bool
}

// NewUnifiedStore creates the hierarchical store. When a network only has a
// flat file it is converted on read, and persisted in the new shape only if
// auto-migrate is enabled.
func NewUnifiedStore(cfg *config.RuntimeConfig, writer *fs.AtomicWriter, reg prometheus.Registerer, log *slog.Logger) *UnifiedStore {
	l := unifiedLayout{base: cfg.Storage.BasePath}
	u := &UnifiedStore{
		Store:       newStore(cfg, l, writer, reg, log),
		layout:      l,
		autoMigrate: cfg.Storage.AutoMigrate,
	}
	u.Store.fallback = u.convertFromFlat
	return u
}

// convertFromFlat runs with the store lock held
func (u *UnifiedStore) convertFromFlat(chainID uint64, network string) (document, error) {
	flatPath := u.layout.flatPath(network)
	data, err := afero.ReadFile(u.fs(), flatPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, domain.NewError(domain.KindBackendUnavailable, "failed to read flat snapshot", err, map[string]any{"path": flatPath})
	}
	flat, err := decodeFlat(data)
	if err != nil {
		return nil, serializationError(flatPath, err)
	}

	doc := convertFlat(flat, u.now())
	target := u.layout.path(network)
	if !u.autoMigrate {
		u.log.Info("converted flat snapshot in memory", "network", network, "from", flatPath, "persisted", false)
		return doc, nil
	}

	encoded, err := encodeDocument(doc)
	if err == nil {
		err = u.writer.WriteFile(target, encoded)
	}
	if err != nil {
		// The read still succeeds from the converted copy
		u.log.Warn("failed to persist converted snapshot", "network", network, "path", target, "error", err)
		return doc, nil
	}
	u.log.Info("migrated flat snapshot to hierarchical format", "network", network, "from", flatPath, "to", target, "records", len(doc.all()))
	return doc, nil
}

// SetLegacyAlias makes oldName resolve to the existing record currentName
func (u *UnifiedStore) SetLegacyAlias(ctx context.Context, chainID uint64, oldName, currentName string) (err error) {
	defer u.metrics.Track(metrics.OpWrite, time.Now(), &err)

	if err := u.checkInitialized(); err != nil {
		return err
	}
	key := domain.GenerateKey(chainID, oldName)
	return u.mutate(chainID, key, func(doc document) (bool, error) {
		ud, ok := doc.(*unifiedDoc)
		if !ok {
			return false, domain.NewError(domain.KindValidationFailed, "aliases need a hierarchical snapshot", nil, map[string]any{"key": key})
		}
		if err := ud.setAlias(oldName, currentName); err != nil {
			return false, err
		}
		return true, nil
	}, func() {
		u.cache.Invalidate(key)
	})
}

var _ usecase.StateStore = (*UnifiedStore)(nil)
