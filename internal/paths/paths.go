// Package paths derives every on-disk location used by zerobrew from a
// single configurable root. It performs no I/O beyond directory creation.
package paths

import (
	"os"
	"path/filepath"
)

// EnvRoot overrides the default root directory.
const EnvRoot = "ZEROBREW_ROOT"

// DefaultRoot is used when ZEROBREW_ROOT is unset.
const DefaultRoot = "/opt/zerobrew"

// Paths resolves the fixed layout under a root. The zero value is not
// usable; construct with New.
type Paths struct {
	root string
}

// New returns a Paths rooted at root. An empty root falls back to
// ZEROBREW_ROOT, then to DefaultRoot.
func New(root string) Paths {
	if root == "" {
		root = os.Getenv(EnvRoot)
	}
	if root == "" {
		root = DefaultRoot
	}
	return Paths{root: root}
}

// Root returns the configured root directory.
func (p Paths) Root() string { return p.root }

// StoreDir holds one extracted bottle per SHA-256 key.
func (p Paths) StoreDir() string { return filepath.Join(p.root, "store") }

// PrefixDir is the shared prefix whose bin/, lib/, etc. are symlink farms.
func (p Paths) PrefixDir() string { return filepath.Join(p.root, "prefix") }

// CellarDir holds materialized kegs, one directory per (name, version).
// It lives under the prefix so bottles' hardcoded rpaths resolve.
func (p Paths) CellarDir() string { return filepath.Join(p.PrefixDir(), "Cellar") }

// BinDir is the prefix bin symlink farm.
func (p Paths) BinDir() string { return filepath.Join(p.PrefixDir(), "bin") }

// OptDir holds the stable "current version" pointers, one per formula.
func (p Paths) OptDir() string { return filepath.Join(p.PrefixDir(), "opt") }

// CacheDir holds verified bottle blobs named <sha256>.tar.<ext>.
func (p Paths) CacheDir() string { return filepath.Join(p.root, "cache") }

// HTTPCacheDir holds cached API responses with their validators.
func (p Paths) HTTPCacheDir() string { return filepath.Join(p.root, "cache", "api") }

// DBPath is the sqlite bookkeeping database.
func (p Paths) DBPath() string { return filepath.Join(p.root, "db", "zerobrew.db") }

// LocksDir holds the advisory lock files.
func (p Paths) LocksDir() string { return filepath.Join(p.root, "locks") }

// TapsDir holds per-tap cached formula JSON, laid out as
// taps/<user>/<repo>/<formula>.json.
func (p Paths) TapsDir() string { return filepath.Join(p.root, "taps") }

// Ensure creates every directory in the layout. It is idempotent.
func (p Paths) Ensure() error {
	dirs := []string{
		p.StoreDir(),
		p.CellarDir(),
		p.BinDir(),
		p.OptDir(),
		p.CacheDir(),
		p.HTTPCacheDir(),
		filepath.Dir(p.DBPath()),
		p.LocksDir(),
		p.TapsDir(),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}
