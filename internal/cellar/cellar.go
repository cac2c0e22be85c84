// Package cellar materializes store entries into mutable per-version kegs.
//
// Materialization is the hot path of a warm install: a copy-on-write clone
// of the store entry, a relocation pass rewriting embedded paths, and a
// receipt that makes the whole step idempotent.
package cellar

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/blackwell-systems/zerobrew/internal/zerrors"
)

// Cellar manages kegs under a cellar directory for one prefix.
type Cellar struct {
	dir    string
	prefix string
	reloc  Relocator
}

// Option configures a Cellar.
type Option func(*Cellar)

// WithRelocator swaps the platform relocator (tests use NoopRelocator).
func WithRelocator(r Relocator) Option {
	return func(c *Cellar) { c.reloc = r }
}

// New creates a Cellar materializing into dir for the given prefix.
// Without WithRelocator the platform relocator is constructed lazily at
// first use, so a missing patcher only fails installs that need it.
func New(dir, prefix string, opts ...Option) (*Cellar, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cellar directory: %w", err)
	}
	c := &Cellar{dir: dir, prefix: prefix}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Dir returns the cellar directory.
func (c *Cellar) Dir() string { return c.dir }

// KegPath returns the keg directory for (name, version).
func (c *Cellar) KegPath(name, version string) string {
	return filepath.Join(c.dir, name, version)
}

// Materialize builds cellar/<name>/<version> from the store entry at
// storePath. A keg whose receipt already names this prefix is returned
// untouched. Any failure removes the half-built keg and surfaces
// MaterializeError; the store entry is never modified.
func (c *Cellar) Materialize(name, version, storePath, storeKey string) (string, error) {
	kegPath := c.KegPath(name, version)

	if receipt, ok := readReceipt(kegPath); ok && receipt.RelocatedFor == c.prefix {
		return kegPath, nil
	}
	// A keg without a matching receipt is a leftover from an interrupted
	// materialization (or one for another prefix); rebuild it.
	if _, err := os.Stat(kegPath); err == nil {
		if err := os.RemoveAll(kegPath); err != nil {
			return "", c.fail(name, version, kegPath, err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(kegPath), 0o755); err != nil {
		return "", c.fail(name, version, kegPath, err)
	}

	// Bottles nest content as <name>/<version>/...; materialize that inner
	// tree when present so the keg holds bin/, lib/, ... directly.
	src := storePath
	if nested := filepath.Join(storePath, name, version); dirExists(nested) {
		src = nested
	}

	strategy, err := copyTree(src, kegPath)
	if err != nil {
		return "", c.fail(name, version, kegPath, err)
	}
	log.Debug().Str("keg", name+"/"+version).Str("strategy", strategy).Msg("materialized keg")

	reloc, err := c.relocator()
	if err != nil {
		return "", c.fail(name, version, kegPath, err)
	}
	if err := relocateTree(kegPath, c.dir, c.prefix, reloc); err != nil {
		return "", c.fail(name, version, kegPath, err)
	}

	receipt := &Receipt{
		StoreKey:        storeKey,
		RelocatedFor:    c.prefix,
		PatcherVersions: reloc.Versions(),
	}
	if err := writeReceipt(kegPath, receipt); err != nil {
		return "", c.fail(name, version, kegPath, err)
	}

	return kegPath, nil
}

// RemoveKeg deletes the keg directory, pruning the now-empty formula
// directory when this was its last version.
func (c *Cellar) RemoveKeg(name, version string) error {
	kegPath := c.KegPath(name, version)
	if err := os.RemoveAll(kegPath); err != nil {
		return fmt.Errorf("failed to remove keg %s/%s: %w", name, version, err)
	}
	// Ignore failure: the formula dir may hold other versions.
	_ = os.Remove(filepath.Join(c.dir, name))
	return nil
}

// Versions lists the materialized versions of name.
func (c *Cellar) Versions(name string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(c.dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var versions []string
	for _, entry := range entries {
		if entry.IsDir() {
			versions = append(versions, entry.Name())
		}
	}
	return versions, nil
}

func (c *Cellar) relocator() (Relocator, error) {
	if c.reloc != nil {
		return c.reloc, nil
	}
	reloc, err := newPlatformRelocator(c.dir, c.prefix)
	if err != nil {
		return nil, err
	}
	c.reloc = reloc
	return reloc, nil
}

func (c *Cellar) fail(name, version, kegPath string, err error) error {
	_ = os.RemoveAll(kegPath)
	return &zerrors.MaterializeError{Name: name, Version: version, Err: err}
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
