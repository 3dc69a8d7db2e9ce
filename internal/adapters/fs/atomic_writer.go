package fs

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/afero"
	"github.com/trebuchet-org/treb-state/internal/domain/config"
)

const (
	tmpSuffix    = ".tmp"
	backupInfix  = ".backup."
	backupLayout = "20060102T150405.000000000Z"
)

// AtomicWriter replaces files with write-to-temp-then-rename, optionally
// keeping timestamped backups of the previous content.
type AtomicWriter struct {
	fs        afero.Fs
	atomic    bool
	backups   bool
	retention int
	now       func() time.Time
	log       *slog.Logger

	// beforeRename runs between writing the temp file and renaming it
	beforeRename func(tmpPath string) error
}

// AtomicWriterOptions configures an AtomicWriter
type AtomicWriterOptions struct {
	Atomic    bool
	Backups   bool
	Retention int
}

// NewAtomicWriter creates a writer on the given filesystem
func NewAtomicWriter(fs afero.Fs, opts AtomicWriterOptions, log *slog.Logger) *AtomicWriter {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &AtomicWriter{
		fs:        fs,
		atomic:    opts.Atomic,
		backups:   opts.Backups,
		retention: opts.Retention,
		now:       time.Now,
		log:       log.With("component", "atomic-writer"),
	}
}

// NewAtomicWriterFromConfig creates a writer from storage configuration
func NewAtomicWriterFromConfig(fs afero.Fs, cfg *config.RuntimeConfig, log *slog.Logger) *AtomicWriter {
	return NewAtomicWriter(fs, AtomicWriterOptions{
		Atomic:    cfg.Storage.AtomicWrites,
		Backups:   cfg.Storage.Backups.Enabled,
		Retention: cfg.Storage.Backups.Retention,
	}, log)
}

// Fs returns the filesystem the writer operates on
func (w *AtomicWriter) Fs() afero.Fs {
	return w.fs
}

// ReadFile reads path from the writer's filesystem
func (w *AtomicWriter) ReadFile(path string) ([]byte, error) {
	return afero.ReadFile(w.fs, path)
}

// WriteFile atomically replaces path with data
func (w *AtomicWriter) WriteFile(path string, data []byte) error {
	if err := w.fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}

	backupPath, err := w.backup(path)
	if err != nil {
		return err
	}

	if !w.atomic {
		if err := afero.WriteFile(w.fs, path, data, 0644); err != nil {
			w.restore(path, backupPath)
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		w.prune(path)
		return nil
	}

	tmpPath := path + tmpSuffix
	if err := w.replace(tmpPath, path, data); err != nil {
		if rmErr := w.fs.Remove(tmpPath); rmErr != nil && !os.IsNotExist(rmErr) {
			w.log.Warn("failed to remove temp file", "path", tmpPath, "error", rmErr)
		}
		w.restore(path, backupPath)
		return err
	}

	w.prune(path)
	return nil
}

func (w *AtomicWriter) replace(tmpPath, path string, data []byte) error {
	f, err := w.fs.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create temp file %s: %w", tmpPath, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("failed to write temp file %s: %w", tmpPath, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("failed to sync temp file %s: %w", tmpPath, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close temp file %s: %w", tmpPath, err)
	}

	if w.beforeRename != nil {
		if err := w.beforeRename(tmpPath); err != nil {
			return err
		}
	}

	// Atomic rename
	if err := w.fs.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename %s to %s: %w", tmpPath, path, err)
	}
	return nil
}

// backup copies the current file aside when backups are enabled
func (w *AtomicWriter) backup(path string) (string, error) {
	if !w.backups {
		return "", nil
	}
	data, err := afero.ReadFile(w.fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read %s for backup: %w", path, err)
	}

	backupPath := path + backupInfix + w.now().UTC().Format(backupLayout)
	if err := afero.WriteFile(w.fs, backupPath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write backup %s: %w", backupPath, err)
	}
	return backupPath, nil
}

// restore puts the backup content back over path after a failed write
func (w *AtomicWriter) restore(path, backupPath string) {
	if backupPath == "" {
		return
	}
	data, err := afero.ReadFile(w.fs, backupPath)
	if err != nil {
		w.log.Error("failed to read backup for restore", "backup", backupPath, "error", err)
		return
	}
	if err := afero.WriteFile(w.fs, path, data, 0644); err != nil {
		w.log.Error("failed to restore backup", "path", path, "backup", backupPath, "error", err)
		return
	}
	w.log.Warn("restored backup after failed write", "path", path, "backup", backupPath)
}

// Backups lists the backups of path, oldest first
func (w *AtomicWriter) Backups(path string) ([]string, error) {
	dir := filepath.Dir(path)
	prefix := filepath.Base(path) + backupInfix

	entries, err := afero.ReadDir(w.fs, dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var backups []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || len(name) <= len(prefix) || name[:len(prefix)] != prefix {
			continue
		}
		backups = append(backups, filepath.Join(dir, name))
	}
	// The timestamp layout sorts lexically
	sort.Strings(backups)
	return backups, nil
}

// prune removes the oldest backups beyond the retention count
func (w *AtomicWriter) prune(path string) {
	if !w.backups || w.retention <= 0 {
		return
	}
	backups, err := w.Backups(path)
	if err != nil {
		w.log.Warn("failed to list backups", "path", path, "error", err)
		return
	}
	for len(backups) > w.retention {
		if err := w.fs.Remove(backups[0]); err != nil && !os.IsNotExist(err) {
			w.log.Warn("failed to prune backup", "backup", backups[0], "error", err)
		}
		backups = backups[1:]
	}
}
