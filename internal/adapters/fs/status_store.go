package fs

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/trebuchet-org/treb-state/internal/domain/config"
	"github.com/trebuchet-org/treb-state/internal/usecase"
)

// MigrationStatusStoreAdapter implements MigrationStatusStore on a JSON file
type MigrationStatusStoreAdapter struct {
	statusPath string
	writer     *AtomicWriter
}

// NewMigrationStatusStoreAdapter creates a new MigrationStatusStoreAdapter
func NewMigrationStatusStoreAdapter(cfg *config.RuntimeConfig, writer *AtomicWriter) *MigrationStatusStoreAdapter {
	path := cfg.Migration.StatusPath
	if path == "" {
		path = filepath.Join(cfg.Storage.BasePath, "migration", "status.json")
	}
	return &MigrationStatusStoreAdapter{
		statusPath: path,
		writer:     writer,
	}
}

// Path returns the location of the status file
func (s *MigrationStatusStoreAdapter) Path() string {
	return s.statusPath
}

// Load reads the migration status from disk
func (s *MigrationStatusStoreAdapter) Load(_ context.Context) (*usecase.MigrationStatus, error) {
	data, err := afero.ReadFile(s.writer.Fs(), s.statusPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read migration status file: %w", err)
	}

	var status usecase.MigrationStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("failed to parse migration status file: %w", err)
	}
	return &status, nil
}

// Save atomically replaces the migration status file
func (s *MigrationStatusStoreAdapter) Save(_ context.Context, status *usecase.MigrationStatus) error {
	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal migration status: %w", err)
	}

	if err := s.writer.WriteFile(s.statusPath, data); err != nil {
		return fmt.Errorf("failed to write migration status file: %w", err)
	}
	return nil
}

// Delete removes the migration status file
func (s *MigrationStatusStoreAdapter) Delete(_ context.Context) error {
	err := s.writer.Fs().Remove(s.statusPath)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete migration status file: %w", err)
	}
	return nil
}

var _ usecase.MigrationStatusStore = (*MigrationStatusStoreAdapter)(nil)
