package files

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/trebuchet-org/treb-state/internal/domain"
	"github.com/trebuchet-org/treb-state/internal/domain/config"
	"github.com/trebuchet-org/treb-state/internal/domain/models"
)

const (
	flatSuffix    = ".json"
	unifiedDir    = "unified"
	unifiedSuffix = ".unified.json"
)

// NetworkName maps a chain to the name its snapshot file is called after
func NetworkName(cfg *config.RuntimeConfig, chainID uint64) string {
	if name := cfg.NetworkName(chainID); name != "" {
		return name
	}
	return fmt.Sprintf("chain%d", chainID)
}

// layout describes one on-disk snapshot format
type layout interface {
	backendType() string
	path(network string) string
	// patterns are globs matching every file this layout can load
	patterns() []string
	// networkOf recovers the network name from a file matched by patterns
	networkOf(path string) (string, bool)
	newDocument(chainID uint64, network string, now time.Time) document
	decode(data []byte) (document, error)
}

// fileHeader is the part of any snapshot file needed for discovery
type fileHeader struct {
	SchemaVersion string `json:"schemaVersion"`
	Network       string `json:"network"`
	ChainID       uint64 `json:"chainId"`
}

func decodeHeader(data []byte) (fileHeader, error) {
	var h fileHeader
	if err := json.Unmarshal(data, &h); err != nil {
		return h, err
	}
	if h.ChainID == 0 {
		return h, fmt.Errorf("snapshot has no chainId")
	}
	return h, nil
}

func encodeDocument(doc document) ([]byte, error) {
	data, err := json.MarshalIndent(doc.value(), "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

type flatLayout struct {
	base string
}

func (l flatLayout) backendType() string { return string(config.BackendFile) }

func (l flatLayout) path(network string) string {
	return filepath.Join(l.base, network+flatSuffix)
}

func (l flatLayout) patterns() []string {
	return []string{filepath.Join(l.base, "*"+flatSuffix)}
}

func (l flatLayout) networkOf(path string) (string, bool) {
	return trimName(filepath.Base(path), flatSuffix)
}

func trimName(name, suffix string) (string, bool) {
	network := strings.TrimSuffix(name, suffix)
	if network == name || network == "" {
		return "", false
	}
	return network, true
}

func (l flatLayout) newDocument(chainID uint64, network string, now time.Time) document {
	return newFlatDoc(models.NewSnapshot(chainID, network, now.UTC()))
}

func (l flatLayout) decode(data []byte) (document, error) {
	snap, err := decodeFlat(data)
	if err != nil {
		return nil, err
	}
	return newFlatDoc(snap), nil
}

func decodeFlat(data []byte) (*models.Snapshot, error) {
	var snap models.Snapshot
	if err := json.Unmarshal(bytes.TrimSpace(data), &snap); err != nil {
		return nil, err
	}
	if strings.HasPrefix(snap.SchemaVersion, "2.") {
		return nil, fmt.Errorf("file has hierarchical schemaVersion %s", snap.SchemaVersion)
	}
	if snap.ChainID == 0 {
		return nil, fmt.Errorf("snapshot has no chainId")
	}
	return &snap, nil
}

type unifiedLayout struct {
	base string
}

func (l unifiedLayout) backendType() string { return string(config.BackendFileHierarchical) }

func (l unifiedLayout) path(network string) string {
	return filepath.Join(l.base, unifiedDir, network+unifiedSuffix)
}

// patterns include flat files, which are converted on load
func (l unifiedLayout) patterns() []string {
	return []string{
		filepath.Join(l.base, unifiedDir, "*"+unifiedSuffix),
		filepath.Join(l.base, "*"+flatSuffix),
	}
}

func (l unifiedLayout) networkOf(path string) (string, bool) {
	name := filepath.Base(path)
	if network, ok := trimName(name, unifiedSuffix); ok {
		return network, true
	}
	return trimName(name, flatSuffix)
}

func (l unifiedLayout) flatPath(network string) string {
	return flatLayout{base: l.base}.path(network)
}

func (l unifiedLayout) newDocument(chainID uint64, network string, now time.Time) document {
	return newUnifiedDoc(models.NewUnifiedSnapshot(chainID, network, now.UTC()))
}

func (l unifiedLayout) decode(data []byte) (document, error) {
	var snap models.UnifiedSnapshot
	if err := json.Unmarshal(bytes.TrimSpace(data), &snap); err != nil {
		return nil, err
	}
	if !strings.HasPrefix(snap.SchemaVersion, "2.") {
		return nil, fmt.Errorf("file has schemaVersion %q, want %s", snap.SchemaVersion, models.UnifiedSchemaVersion)
	}
	if snap.ChainID == 0 {
		return nil, fmt.Errorf("snapshot has no chainId")
	}
	return newUnifiedDoc(&snap), nil
}

func serializationError(path string, err error) error {
	return domain.NewError(domain.KindSerialization, "failed to decode snapshot", err, map[string]any{"path": path})
}
