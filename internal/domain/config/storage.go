package config

import (
	"fmt"
	"time"
)

// Backend selects a concrete state store
type Backend string

const (
	BackendLegacy           Backend = "legacy"
	BackendFile             Backend = "file"
	BackendFileHierarchical Backend = "file-hierarchical"
)

// Backends lists every supported backend
func Backends() []Backend {
	return []Backend{BackendLegacy, BackendFile, BackendFileHierarchical}
}

// ParseBackend validates a backend selector
func ParseBackend(s string) (Backend, error) {
	for _, b := range Backends() {
		if string(b) == s {
			return b, nil
		}
	}
	return "", fmt.Errorf("unknown backend %q (valid: legacy, file, file-hierarchical)", s)
}

// StorageConfig configures the concrete stores
type StorageConfig struct {
	Backend  Backend
	BasePath string

	Cache CacheConfig

	AtomicWrites    bool
	Backups         BackupConfig
	ValidateOnWrite bool

	// AutoMigrate persists flat files converted on read by the hierarchical store
	AutoMigrate bool

	Legacy LegacyConfig
}

// CacheConfig configures the record cache in front of the file stores
type CacheConfig struct {
	Enabled bool
	Size    int
	TTL     time.Duration
}

// BackupConfig configures pre-write backups of snapshot files
type BackupConfig struct {
	Enabled   bool
	Retention int
}

// LegacyConfig configures the embedded KV store
type LegacyConfig struct {
	Path string
	// InMemory opens the KV store without touching disk
	InMemory bool
	// BigIntHeuristic revives long all-digit strings as big integers on read
	BigIntHeuristic bool
}

// MigrationConfig configures the dual-write coordinator
type MigrationConfig struct {
	Enabled         bool
	Source          Backend
	Target          Backend
	DualWrite       bool
	FallbackOnError bool
	ValidateWrites  bool
	LockTimeout     time.Duration
	BatchSize       int
	StatusPath      string
}

// DefaultStorageConfig returns the defaults used when nothing is configured
func DefaultStorageConfig(basePath string) StorageConfig {
	return StorageConfig{
		Backend:  BackendFile,
		BasePath: basePath,
		Cache: CacheConfig{
			Enabled: true,
			Size:    100,
			TTL:     5 * time.Minute,
		},
		AtomicWrites: true,
		Backups: BackupConfig{
			Enabled:   false,
			Retention: 5,
		},
		ValidateOnWrite: true,
	}
}

// DefaultMigrationConfig returns migration defaults
func DefaultMigrationConfig() MigrationConfig {
	return MigrationConfig{
		Source:          BackendLegacy,
		Target:          BackendFile,
		DualWrite:       true,
		FallbackOnError: true,
		ValidateWrites:  true,
		LockTimeout:     30 * time.Second,
		BatchSize:       50,
	}
}
