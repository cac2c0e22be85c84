//go:build linux

package cellar

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/blackwell-systems/zerobrew/internal/platform"
)

func TestHasMarker(t *testing.T) {
	if !hasMarker([]byte("prefix @@HOMEBREW_PREFIX@@ suffix")) {
		t.Error("placeholder marker not detected")
	}
	if !hasMarker([]byte("rpath=/home/linuxbrew/.linuxbrew/lib")) {
		t.Error("linuxbrew path marker not detected")
	}
	if hasMarker([]byte("an ordinary binary with no markers")) {
		t.Error("false positive marker detection")
	}
}

func TestElfHasInterp_OnSystemBinaries(t *testing.T) {
	// /bin/sh is a dynamically linked executable on any mainstream distro.
	ok, err := elfHasInterp("/bin/sh")
	if err != nil {
		t.Skipf("cannot inspect /bin/sh: %v", err)
	}
	if !ok {
		t.Error("/bin/sh should carry PT_INTERP")
	}
}

func TestNeedsPatch_OnlyForMarkedBinaries(t *testing.T) {
	if _, err := exec.LookPath("patchelf"); err != nil {
		t.Skip("patchelf not installed")
	}

	plat := platform.Platform{OS: "linux", Arch: "amd64"}
	reloc, err := NewRelocator(plat, "/cellar", "/prefix")
	if err != nil {
		t.Fatalf("NewRelocator() failed: %v", err)
	}

	dir := t.TempDir()

	plain := filepath.Join(dir, "plain")
	plainContent := append([]byte{0x7f, 'E', 'L', 'F'}, []byte("not really an elf, no markers")...)
	if err := os.WriteFile(plain, plainContent, 0o755); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	marked := filepath.Join(dir, "marked")
	markedContent := append([]byte{0x7f, 'E', 'L', 'F'}, []byte("rpath @@HOMEBREW_PREFIX@@/lib")...)
	if err := os.WriteFile(marked, markedContent, 0o755); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	needs, err := reloc.NeedsPatch(plain)
	if err != nil {
		t.Fatalf("NeedsPatch(plain) failed: %v", err)
	}
	if needs {
		t.Error("marker-free file reported as needing a patch")
	}
	// The file itself is untouched by the check.
	after, err := os.ReadFile(plain)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(after) != string(plainContent) {
		t.Error("marker-free file modified by NeedsPatch")
	}

	needs, err = reloc.NeedsPatch(marked)
	if err != nil {
		t.Fatalf("NeedsPatch(marked) failed: %v", err)
	}
	if !needs {
		t.Error("marked file not reported as needing a patch")
	}
}
