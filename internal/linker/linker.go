// Package linker populates the shared prefix with symlinks into the cellar.
//
// All prefix mutation happens under the single "link:prefix" lock; readers
// are lock-free and tolerate momentarily missing links.
package linker

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/blackwell-systems/zerobrew/internal/lockfile"
	"github.com/blackwell-systems/zerobrew/internal/zerrors"
)

// linkedSubdirs are the keg subdirectories farmed into the prefix.
var linkedSubdirs = []string{"bin", "sbin", "lib", "include", "share", "etc"}

// LinkedFile records one symlink created in the prefix.
type LinkedFile struct {
	// LinkPath is the symlink inside the prefix.
	LinkPath string
	// TargetPath is the file inside the cellar it resolves to.
	TargetPath string
}

// Options tune conflict handling.
type Options struct {
	// Overwrite replaces links owned by other kegs instead of failing.
	Overwrite bool
}

// Linker creates and removes prefix symlinks.
type Linker struct {
	prefix string
	locks  *lockfile.Registry
}

// New creates a Linker for prefix.
func New(prefix string, locks *lockfile.Registry) (*Linker, error) {
	if err := os.MkdirAll(prefix, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create prefix: %w", err)
	}
	return &Linker{prefix: prefix, locks: locks}, nil
}

// LinkKeg walks the keg and creates a relative symlink in the prefix for
// every file under the linked subdirectories, plus the stable opt pointer
// prefix/opt/<name> -> keg. On conflict without Overwrite the keg's links
// created so far are rolled back and LinkConflictError is returned.
func (l *Linker) LinkKeg(name, kegPath string, opts Options) ([]LinkedFile, error) {
	lock, err := l.locks.Acquire("link:prefix")
	if err != nil {
		return nil, err
	}
	defer lock.Release()

	var created []LinkedFile
	rollback := func() {
		for _, f := range created {
			_ = os.Remove(f.LinkPath)
		}
	}

	for _, subdir := range linkedSubdirs {
		srcDir := filepath.Join(kegPath, subdir)
		if _, err := os.Stat(srcDir); os.IsNotExist(err) {
			continue
		}

		err := filepath.Walk(srcDir, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() {
				return nil
			}
			rel, err := filepath.Rel(srcDir, path)
			if err != nil {
				return err
			}
			linkPath := filepath.Join(l.prefix, subdir, rel)
			if err := l.createLink(linkPath, path, opts); err != nil {
				return err
			}
			created = append(created, LinkedFile{LinkPath: linkPath, TargetPath: path})
			return nil
		})
		if err != nil {
			rollback()
			return nil, err
		}
	}

	optLink := filepath.Join(l.prefix, "opt", name)
	if err := l.createLink(optLink, kegPath, Options{Overwrite: true}); err != nil {
		rollback()
		return nil, err
	}
	created = append(created, LinkedFile{LinkPath: optLink, TargetPath: kegPath})

	log.Debug().Str("keg", name).Int("links", len(created)).Msg("linked keg")
	return created, nil
}

// createLink makes a relative symlink at linkPath pointing to target.
func (l *Linker) createLink(linkPath, target string, opts Options) error {
	if err := os.MkdirAll(filepath.Dir(linkPath), 0o755); err != nil {
		return err
	}

	relTarget, err := filepath.Rel(filepath.Dir(linkPath), target)
	if err != nil {
		return err
	}

	if info, err := os.Lstat(linkPath); err == nil {
		existing := describeExisting(linkPath, info)
		if info.Mode()&os.ModeSymlink != 0 {
			if current, err := os.Readlink(linkPath); err == nil && current == relTarget {
				return nil
			}
		}
		if !opts.Overwrite {
			return &zerrors.LinkConflictError{Path: linkPath, Existing: existing}
		}
		if err := os.Remove(linkPath); err != nil {
			return fmt.Errorf("failed to remove conflicting link: %w", err)
		}
	}

	return os.Symlink(relTarget, linkPath)
}

func describeExisting(path string, info os.FileInfo) string {
	switch {
	case info.Mode()&os.ModeSymlink != 0:
		if target, err := os.Readlink(path); err == nil {
			return fmt.Sprintf("symlink to %s", target)
		}
		return "symlink"
	case info.IsDir():
		return "directory"
	default:
		return "file"
	}
}

// UnlinkFiles removes the given links, pruning directories left empty. It
// does not touch cellar content. Links that no longer point at the
// recorded target are left alone.
func (l *Linker) UnlinkFiles(files []LinkedFile) error {
	lock, err := l.locks.Acquire("link:prefix")
	if err != nil {
		return err
	}
	defer lock.Release()

	for _, f := range files {
		info, err := os.Lstat(f.LinkPath)
		if err != nil {
			continue
		}
		if info.Mode()&os.ModeSymlink == 0 {
			continue
		}
		current, err := os.Readlink(f.LinkPath)
		if err != nil {
			continue
		}
		resolved := current
		if !filepath.IsAbs(resolved) {
			resolved = filepath.Join(filepath.Dir(f.LinkPath), current)
		}
		if filepath.Clean(resolved) != filepath.Clean(f.TargetPath) {
			// Another keg overwrote this link; it is no longer ours.
			continue
		}
		if err := os.Remove(f.LinkPath); err != nil {
			return fmt.Errorf("failed to remove link %s: %w", f.LinkPath, err)
		}
		pruneEmptyDirs(filepath.Dir(f.LinkPath), l.prefix)
	}
	return nil
}

// pruneEmptyDirs removes empty directories up to (but excluding) stop.
func pruneEmptyDirs(dir, stop string) {
	for dir != stop && len(dir) > len(stop) {
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}
