//go:build linux

package cellar

import (
	"bytes"
	"debug/elf"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/blackwell-systems/zerobrew/internal/platform"
	"github.com/blackwell-systems/zerobrew/internal/zerrors"
)

// homebrewMarkers are the strings whose presence means an ELF file needs
// patching at all. Checking them first elides the vast majority of
// patchelf invocations.
var homebrewMarkers = [][]byte{
	[]byte("@@HOMEBREW"),
	[]byte("/home/linuxbrew"),
}

// elfRelocator patches ELF binaries with patchelf: RPATH/RUNPATH
// placeholder substitution for every file, plus the PT_INTERP rewrite for
// executables (shared libraries have no interpreter).
type elfRelocator struct {
	patchelf  string
	version   string
	cellarDir string
	prefixDir string
	linker    string
}

// NewRelocator returns the ELF relocator for this host. Fails with
// PatcherMissingError when patchelf is not installed.
func NewRelocator(plat platform.Platform, cellarDir, prefixDir string) (Relocator, error) {
	path, err := exec.LookPath("patchelf")
	if err != nil {
		return nil, &zerrors.PatcherMissingError{Tool: "patchelf"}
	}

	version := "unknown"
	if out, err := exec.Command(path, "--version").Output(); err == nil {
		version = strings.TrimSpace(string(out))
	}

	return &elfRelocator{
		patchelf:  path,
		version:   version,
		cellarDir: cellarDir,
		prefixDir: prefixDir,
		linker:    plat.DynamicLinker(),
	}, nil
}

func (r *elfRelocator) Versions() map[string]string {
	return map[string]string{"patchelf": r.version}
}

// NeedsPatch scans for a Homebrew marker. Files without one need nothing,
// stay byte-identical to the store copy, and keep their hardlink.
func (r *elfRelocator) NeedsPatch(path string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}
	return hasMarker(data), nil
}

func (r *elfRelocator) PatchBinary(path string) error {
	hasInterp, err := elfHasInterp(path)
	if err != nil {
		return fmt.Errorf("failed to inspect ELF %s: %w", path, err)
	}

	if err := r.patchRunpath(path); err != nil {
		return err
	}
	if hasInterp {
		if err := r.run(path, "--set-interpreter", r.linker); err != nil {
			return err
		}
	}
	return nil
}

func (r *elfRelocator) patchRunpath(path string) error {
	out, err := exec.Command(r.patchelf, "--print-rpath", path).Output()
	if err != nil {
		// Static or unusual ELF files have no dynamic section; nothing to
		// rewrite there.
		log.Debug().Str("file", path).Msg("no rpath to patch")
		return nil
	}

	rpath := strings.TrimSpace(string(out))
	if rpath == "" {
		return nil
	}

	replaced := substitute(rpath, r.cellarDir, r.prefixDir)
	replaced = strings.ReplaceAll(replaced, "/home/linuxbrew/.linuxbrew/Cellar", r.cellarDir)
	replaced = strings.ReplaceAll(replaced, "/home/linuxbrew/.linuxbrew", r.prefixDir)
	if replaced == rpath {
		return nil
	}
	return r.run(path, "--set-rpath", replaced)
}

func (r *elfRelocator) run(path string, args ...string) error {
	cmd := exec.Command(r.patchelf, append(args, path)...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("patchelf %s failed for %s: %w (output: %s)",
			args[0], path, err, strings.TrimSpace(string(out)))
	}
	return nil
}

func hasMarker(data []byte) bool {
	for _, marker := range homebrewMarkers {
		if bytes.Contains(data, marker) {
			return true
		}
	}
	return false
}

// elfHasInterp reports whether the file carries a PT_INTERP header, the
// mark of a dynamically linked executable.
func elfHasInterp(path string) (bool, error) {
	f, err := elf.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	for _, prog := range f.Progs {
		if prog.Type == elf.PT_INTERP {
			return true, nil
		}
	}
	return false, nil
}
