package cellar

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Placeholders embedded in bottle files, replaced with the real layout at
// materialization time.
const (
	PlaceholderCellar = "@@HOMEBREW_CELLAR@@"
	PlaceholderPrefix = "@@HOMEBREW_PREFIX@@"
)

// Relocator patches platform binaries so they run from the target prefix.
// The materializer is platform-agnostic; implementations carry all
// install_name_tool / patchelf knowledge.
type Relocator interface {
	// NeedsPatch reports whether the binary at path actually requires a
	// rewrite. It runs before any mutation: a hardlinked file is only
	// broken off from the store copy once this returns true, so
	// marker-free binaries stay shared.
	NeedsPatch(path string) (bool, error)
	// PatchBinary rewrites embedded paths in the binary at path. The file
	// is already private to the keg (hardlinks broken).
	PatchBinary(path string) error
	// Versions reports the external tool versions for the keg receipt.
	Versions() map[string]string
}

// NoopRelocator leaves binaries untouched. Used when a platform needs no
// patching and by tests.
type NoopRelocator struct{}

func (NoopRelocator) NeedsPatch(string) (bool, error) { return false, nil }
func (NoopRelocator) PatchBinary(string) error        { return nil }
func (NoopRelocator) Versions() map[string]string     { return nil }

// relocateTree walks the keg substituting placeholders in text files and
// symlink targets and handing platform binaries to the relocator. Patching
// is parallelized across files.
func relocateTree(kegPath, cellarDir, prefixDir string, reloc Relocator) error {
	g := new(errgroup.Group)
	g.SetLimit(runtime.GOMAXPROCS(0))

	walkErr := filepath.Walk(kegPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		switch {
		case info.IsDir():
			return nil
		case info.Mode()&os.ModeSymlink != 0:
			return relocateSymlink(path, cellarDir, prefixDir)
		case info.Mode().IsRegular():
			info := info
			path := path
			g.Go(func() error {
				return relocateFile(path, info, cellarDir, prefixDir, reloc)
			})
			return nil
		default:
			return nil
		}
	})

	groupErr := g.Wait()
	if walkErr != nil {
		return walkErr
	}
	return groupErr
}

func relocateSymlink(path, cellarDir, prefixDir string) error {
	target, err := os.Readlink(path)
	if err != nil {
		return err
	}
	replaced := substitute(target, cellarDir, prefixDir)
	if replaced == target {
		return nil
	}
	if err := os.Remove(path); err != nil {
		return err
	}
	return os.Symlink(replaced, path)
}

func relocateFile(path string, info os.FileInfo, cellarDir, prefixDir string, reloc Relocator) error {
	head, err := readHead(path, 8192)
	if err != nil {
		return err
	}

	if isPlatformBinary(head) {
		needs, err := reloc.NeedsPatch(path)
		if err != nil {
			return err
		}
		if !needs {
			return nil
		}
		if err := prepareForRewrite(path, info); err != nil {
			return err
		}
		return reloc.PatchBinary(path)
	}

	// Binary-looking data without a known magic is left alone; only texty
	// files get placeholder substitution.
	if bytes.IndexByte(head, 0) >= 0 {
		return nil
	}
	return substituteInFile(path, info, cellarDir, prefixDir)
}

// isPlatformBinary recognizes ELF and Mach-O images (including fat
// binaries) by magic.
func isPlatformBinary(head []byte) bool {
	if len(head) < 4 {
		return false
	}
	switch {
	case bytes.HasPrefix(head, []byte{0x7f, 'E', 'L', 'F'}):
		return true
	case bytes.HasPrefix(head, []byte{0xcf, 0xfa, 0xed, 0xfe}): // Mach-O 64 LE
		return true
	case bytes.HasPrefix(head, []byte{0xfe, 0xed, 0xfa, 0xcf}): // Mach-O 64 BE
		return true
	case bytes.HasPrefix(head, []byte{0xca, 0xfe, 0xba, 0xbe}): // fat binary
		return true
	}
	return false
}

func readHead(path string, n int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, n)
	read, err := f.Read(buf)
	if err != nil && read == 0 {
		return nil, err
	}
	return buf[:read], nil
}

// prepareForRewrite breaks a hardlink so the rewrite cannot corrupt the
// shared store copy.
func prepareForRewrite(path string, info os.FileInfo) error {
	if nlink(info) > 1 {
		return breakHardlink(path, info)
	}
	return nil
}

func substitute(s, cellarDir, prefixDir string) string {
	out := strings.ReplaceAll(s, PlaceholderCellar, cellarDir)
	return strings.ReplaceAll(out, PlaceholderPrefix, prefixDir)
}

// substituteInFile rewrites placeholders in a text file, preserving the
// mode. Writing through a temp file + rename breaks any hardlink and keeps
// the result deterministic regardless of patch parallelism.
func substituteInFile(path string, info os.FileInfo, cellarDir, prefixDir string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if !bytes.Contains(data, []byte(PlaceholderCellar)) && !bytes.Contains(data, []byte(PlaceholderPrefix)) {
		return nil
	}

	replaced := bytes.ReplaceAll(data, []byte(PlaceholderCellar), []byte(cellarDir))
	replaced = bytes.ReplaceAll(replaced, []byte(PlaceholderPrefix), []byte(prefixDir))

	tmp := path + ".rewrite"
	if err := os.WriteFile(tmp, replaced, info.Mode().Perm()); err != nil {
		return fmt.Errorf("failed to write substituted file: %w", err)
	}
	return os.Rename(tmp, path)
}
