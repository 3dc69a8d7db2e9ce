package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/trebuchet-org/treb-state/internal/domain/config"
)

const (
	// ConfigFileName is looked up in the project root
	ConfigFileName = "treb-state.toml"
	// EnvPrefix prefixes every environment override, e.g. TREB_STATE_BACKEND
	EnvPrefix = "TREB_STATE"
	// DataDirName holds tool-local state such as the legacy database
	DataDirName = ".treb-state"
)

// flagKeys maps global flags to the config keys they override
var flagKeys = map[string]string{
	"debug":           "debug",
	"non-interactive": "non_interactive",
	"json":            "json",
	"timeout":         "timeout",
	"backend":         "backend",
	"base-path":       "base_path",
}

// Provider creates RuntimeConfig for Wire dependency injection
func Provider(v *viper.Viper) (*config.RuntimeConfig, error) {
	projectRoot := v.GetString("project_root")
	if projectRoot == "" {
		var err error
		projectRoot, err = FindProjectRoot()
		if err != nil {
			return nil, fmt.Errorf("failed to find project root: %w", err)
		}
	}

	backend, err := config.ParseBackend(v.GetString("backend"))
	if err != nil {
		return nil, err
	}

	cfg := &config.RuntimeConfig{
		ProjectRoot:    projectRoot,
		DataDir:        resolvePath(projectRoot, v.GetString("data_dir")),
		Debug:          v.GetBool("debug"),
		NonInteractive: v.GetBool("non_interactive"),
		JSON:           v.GetBool("json"),
		Timeout:        v.GetDuration("timeout"),
		ConfigFile:     v.ConfigFileUsed(),
	}

	cfg.Storage = config.StorageConfig{
		Backend:  backend,
		BasePath: resolvePath(projectRoot, v.GetString("base_path")),
		Cache: config.CacheConfig{
			Enabled: v.GetBool("cache.enabled"),
			Size:    v.GetInt("cache.size"),
			TTL:     v.GetDuration("cache.ttl"),
		},
		AtomicWrites: v.GetBool("atomic_writes"),
		Backups: config.BackupConfig{
			Enabled:   v.GetBool("backups.enabled"),
			Retention: v.GetInt("backups.retention"),
		},
		ValidateOnWrite: v.GetBool("validate_on_write"),
		AutoMigrate:     v.GetBool("hierarchical.auto_migrate"),
		Legacy: config.LegacyConfig{
			Path:            resolvePath(cfg.DataDir, v.GetString("legacy.path")),
			BigIntHeuristic: v.GetBool("legacy.bigint_heuristic"),
		},
	}

	if cfg.Migration, err = migrationConfig(v, projectRoot); err != nil {
		return nil, err
	}

	if cfg.Networks, err = LoadNetworks(projectRoot); err != nil {
		return nil, err
	}
	return cfg, nil
}

func migrationConfig(v *viper.Viper, projectRoot string) (config.MigrationConfig, error) {
	m := config.MigrationConfig{
		Enabled:         v.GetBool("migration.enabled"),
		DualWrite:       v.GetBool("migration.dual_write"),
		FallbackOnError: v.GetBool("migration.fallback_on_error"),
		ValidateWrites:  v.GetBool("migration.validate_writes"),
		LockTimeout:     v.GetDuration("migration.lock_timeout"),
		BatchSize:       v.GetInt("migration.batch_size"),
	}
	if p := v.GetString("migration.status_path"); p != "" {
		m.StatusPath = resolvePath(projectRoot, p)
	}

	var err error
	if m.Source, err = config.ParseBackend(v.GetString("migration.source")); err != nil {
		return m, fmt.Errorf("migration.source: %w", err)
	}
	if m.Target, err = config.ParseBackend(v.GetString("migration.target")); err != nil {
		return m, fmt.Errorf("migration.target: %w", err)
	}
	if m.BatchSize <= 0 {
		return m, fmt.Errorf("migration.batch_size must be positive, got %d", m.BatchSize)
	}
	return m, nil
}

// resolvePath anchors relative paths at base; "" stays ""
func resolvePath(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

// FindProjectRoot walks up from the current directory to the first directory
// holding treb-state.toml or a .treb-state directory. Without either, the
// current directory is the project root.
func FindProjectRoot() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}

	dir := cwd
	for {
		for _, marker := range []string{ConfigFileName, DataDirName} {
			if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
				return dir, nil
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return cwd, nil
		}
		dir = parent
	}
}

// SetupViper creates and configures a viper instance. Values resolve from
// flags, then TREB_STATE_* environment variables (including .env files), then
// treb-state.toml, then defaults.
func SetupViper(projectRoot string, cmd *cobra.Command) (*viper.Viper, error) {
	if err := LoadEnvFiles(projectRoot); err != nil {
		return nil, err
	}

	v := viper.New()

	v.SetConfigName(strings.TrimSuffix(ConfigFileName, ".toml"))
	v.SetConfigType("toml")
	v.AddConfigPath(projectRoot)

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	setDefaults(v, projectRoot)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read %s: %w", ConfigFileName, err)
		}
	}

	if cmd != nil {
		var bindErr error
		cmd.Flags().VisitAll(func(f *pflag.Flag) {
			key, ok := flagKeys[f.Name]
			if !ok || bindErr != nil {
				return
			}
			bindErr = v.BindPFlag(key, f)
		})
		if bindErr != nil {
			return nil, bindErr
		}
	}
	return v, nil
}

func setDefaults(v *viper.Viper, projectRoot string) {
	storage := config.DefaultStorageConfig("deployments")
	migration := config.DefaultMigrationConfig()

	v.SetDefault("project_root", projectRoot)
	v.SetDefault("data_dir", DataDirName)
	v.SetDefault("timeout", 5*time.Minute)
	v.SetDefault("debug", false)
	v.SetDefault("non_interactive", false)
	v.SetDefault("json", false)

	v.SetDefault("backend", string(storage.Backend))
	v.SetDefault("base_path", storage.BasePath)
	v.SetDefault("cache.enabled", storage.Cache.Enabled)
	v.SetDefault("cache.size", storage.Cache.Size)
	v.SetDefault("cache.ttl", storage.Cache.TTL)
	v.SetDefault("atomic_writes", storage.AtomicWrites)
	v.SetDefault("backups.enabled", storage.Backups.Enabled)
	v.SetDefault("backups.retention", storage.Backups.Retention)
	v.SetDefault("validate_on_write", storage.ValidateOnWrite)
	v.SetDefault("hierarchical.auto_migrate", storage.AutoMigrate)
	v.SetDefault("legacy.path", "legacy")
	v.SetDefault("legacy.bigint_heuristic", storage.Legacy.BigIntHeuristic)

	v.SetDefault("migration.enabled", migration.Enabled)
	v.SetDefault("migration.source", string(migration.Source))
	v.SetDefault("migration.target", string(migration.Target))
	v.SetDefault("migration.dual_write", migration.DualWrite)
	v.SetDefault("migration.fallback_on_error", migration.FallbackOnError)
	v.SetDefault("migration.validate_writes", migration.ValidateWrites)
	v.SetDefault("migration.lock_timeout", migration.LockTimeout)
	v.SetDefault("migration.batch_size", migration.BatchSize)
	v.SetDefault("migration.status_path", "")
}
