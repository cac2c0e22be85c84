// Package store implements the content-addressable layer mapping bottle
// SHA-256 keys to extracted directory trees.
//
// An entry is extracted exactly once: admission takes a per-key lock,
// extracts into a temp directory, and atomically renames it into place, so
// an entry directory is either fully populated or absent. Reference counts
// live in the database, never here.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/blackwell-systems/zerobrew/internal/lockfile"
)

// Store is the on-disk content-addressable store.
type Store struct {
	dir   string
	locks *lockfile.Registry
}

// New creates a Store rooted at dir using locks for single-writer admission.
func New(dir string, locks *lockfile.Registry) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	return &Store{dir: dir, locks: locks}, nil
}

// EntryPath returns the directory an admitted key extracts to.
func (s *Store) EntryPath(key string) string {
	return filepath.Join(s.dir, key)
}

// Has reports whether the key is admitted.
func (s *Store) Has(key string) bool {
	info, err := os.Stat(s.EntryPath(key))
	return err == nil && info.IsDir()
}

// Admit extracts the blob at blobPath under key. Admission is idempotent:
// an existing entry returns immediately with nil stats. Concurrent admitters
// of the same key serialize on the per-key lock and only one extracts.
func (s *Store) Admit(key, blobPath string) (string, *ExtractStats, error) {
	entryPath := s.EntryPath(key)

	// Fast path without the lock.
	if s.Has(key) {
		return entryPath, nil, nil
	}

	lock, err := s.locks.Acquire("store:" + key)
	if err != nil {
		return "", nil, err
	}
	defer lock.Release()

	// Another admitter may have finished while we waited.
	if s.Has(key) {
		return entryPath, nil, nil
	}

	tmpDir := filepath.Join(s.dir, fmt.Sprintf(".%s.tmp.%d", key, os.Getpid()))
	// A leftover temp directory means a previous extraction was interrupted.
	if _, err := os.Stat(tmpDir); err == nil {
		_ = os.RemoveAll(tmpDir)
	}
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return "", nil, fmt.Errorf("failed to create temp directory: %w", err)
	}

	stats, err := extractTarball(blobPath, tmpDir)
	if err != nil {
		_ = os.RemoveAll(tmpDir)
		return "", nil, fmt.Errorf("failed to extract %s: %w", key, err)
	}

	if err := os.Rename(tmpDir, entryPath); err != nil {
		_ = os.RemoveAll(tmpDir)
		return "", nil, fmt.Errorf("failed to commit store entry: %w", err)
	}

	log.Debug().Str("key", key).Int("files", stats.Files).
		Int64("bytes", stats.UncompressedSize).Msg("admitted store entry")
	return entryPath, stats, nil
}

// Remove deletes the entry for key. Callers must have confirmed the
// refcount is zero; the per-key lock excludes concurrent admitters.
func (s *Store) Remove(key string) error {
	if !s.Has(key) {
		return nil
	}

	lock, err := s.locks.Acquire("store:" + key)
	if err != nil {
		return err
	}
	defer lock.Release()

	if err := os.RemoveAll(s.EntryPath(key)); err != nil {
		return fmt.Errorf("failed to remove store entry %s: %w", key, err)
	}
	return nil
}

// List returns all admitted keys, skipping in-progress temp directories.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read store directory: %w", err)
	}

	var keys []string
	for _, entry := range entries {
		if entry.IsDir() && !strings.HasPrefix(entry.Name(), ".") {
			keys = append(keys, entry.Name())
		}
	}
	return keys, nil
}

// CleanupTemp removes interrupted-extraction temp directories older than
// the grace period. Returns the number removed.
func (s *Store) CleanupTemp(grace time.Duration) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read store directory: %w", err)
	}

	count := 0
	cutoff := time.Now().Add(-grace)
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() || !strings.HasPrefix(name, ".") || !strings.Contains(name, ".tmp.") {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if os.RemoveAll(filepath.Join(s.dir, name)) == nil {
			count++
		}
	}
	return count, nil
}
