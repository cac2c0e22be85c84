package linker

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/blackwell-systems/zerobrew/internal/lockfile"
	"github.com/blackwell-systems/zerobrew/internal/zerrors"
)

func newTestLinker(t *testing.T) (*Linker, string) {
	t.Helper()
	root := t.TempDir()
	locks, err := lockfile.NewRegistry(filepath.Join(root, "locks"))
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	prefix := filepath.Join(root, "prefix")
	l, err := New(prefix, locks)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return l, root
}

// buildKeg creates a keg with bin/<binName> and share/man/man1/<binName>.1.
func buildKeg(t *testing.T, root, name, version, binName string) string {
	t.Helper()
	kegPath := filepath.Join(root, "prefix", "Cellar", name, version)
	if err := os.MkdirAll(filepath.Join(kegPath, "bin"), 0o755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(kegPath, "bin", binName), []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	manDir := filepath.Join(kegPath, "share", "man", "man1")
	if err := os.MkdirAll(manDir, 0o755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(manDir, binName+".1"), []byte("manual"), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	return kegPath
}

func TestLinkKeg_CreatesRelativeSymlinks(t *testing.T) {
	l, root := newTestLinker(t)
	kegPath := buildKeg(t, root, "jq", "1.7.1", "jq")

	files, err := l.LinkKeg("jq", kegPath, Options{})
	if err != nil {
		t.Fatalf("LinkKeg() failed: %v", err)
	}

	// bin link, man link, and the opt pointer.
	if len(files) != 3 {
		t.Errorf("created %d links; want 3", len(files))
	}

	binLink := filepath.Join(root, "prefix", "bin", "jq")
	target, err := os.Readlink(binLink)
	if err != nil {
		t.Fatalf("bin link missing: %v", err)
	}
	if filepath.IsAbs(target) {
		t.Errorf("link target %q should be relative", target)
	}
	resolved, err := filepath.EvalSymlinks(binLink)
	if err != nil {
		t.Fatalf("link does not resolve: %v", err)
	}
	wantTarget, _ := filepath.EvalSymlinks(filepath.Join(kegPath, "bin", "jq"))
	if resolved != wantTarget {
		t.Errorf("link resolves to %q; want %q", resolved, wantTarget)
	}
}

func TestLinkKeg_CreatesOptPointer(t *testing.T) {
	l, root := newTestLinker(t)
	kegPath := buildKeg(t, root, "jq", "1.7.1", "jq")

	if _, err := l.LinkKeg("jq", kegPath, Options{}); err != nil {
		t.Fatalf("LinkKeg() failed: %v", err)
	}

	optLink := filepath.Join(root, "prefix", "opt", "jq")
	resolved, err := filepath.EvalSymlinks(optLink)
	if err != nil {
		t.Fatalf("opt pointer missing: %v", err)
	}
	wantKeg, _ := filepath.EvalSymlinks(kegPath)
	if resolved != wantKeg {
		t.Errorf("opt pointer resolves to %q; want %q", resolved, wantKeg)
	}
}

func TestLinkKeg_ConflictFailsWithoutOverwrite(t *testing.T) {
	l, root := newTestLinker(t)
	keg1 := buildKeg(t, root, "first", "1.0.0", "foo")
	keg2 := buildKeg(t, root, "second", "2.0.0", "foo")

	if _, err := l.LinkKeg("first", keg1, Options{}); err != nil {
		t.Fatalf("LinkKeg(first) failed: %v", err)
	}

	_, err := l.LinkKeg("second", keg2, Options{})
	if err == nil {
		t.Fatal("LinkKeg(second) should conflict on bin/foo")
	}
	var conflict *zerrors.LinkConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("error = %v; want LinkConflictError", err)
	}

	// First keg's link must be untouched.
	resolved, err := filepath.EvalSymlinks(filepath.Join(root, "prefix", "bin", "foo"))
	if err != nil {
		t.Fatalf("first keg's link damaged: %v", err)
	}
	wantTarget, _ := filepath.EvalSymlinks(filepath.Join(keg1, "bin", "foo"))
	if resolved != wantTarget {
		t.Errorf("bin/foo resolves to %q; want first keg's %q", resolved, wantTarget)
	}
}

func TestLinkKeg_OverwriteReplacesConflictingLink(t *testing.T) {
	l, root := newTestLinker(t)
	keg1 := buildKeg(t, root, "first", "1.0.0", "foo")
	keg2 := buildKeg(t, root, "second", "2.0.0", "foo")

	if _, err := l.LinkKeg("first", keg1, Options{}); err != nil {
		t.Fatalf("LinkKeg(first) failed: %v", err)
	}
	if _, err := l.LinkKeg("second", keg2, Options{Overwrite: true}); err != nil {
		t.Fatalf("LinkKeg(second, overwrite) failed: %v", err)
	}

	resolved, err := filepath.EvalSymlinks(filepath.Join(root, "prefix", "bin", "foo"))
	if err != nil {
		t.Fatalf("bin/foo missing: %v", err)
	}
	wantTarget, _ := filepath.EvalSymlinks(filepath.Join(keg2, "bin", "foo"))
	if resolved != wantTarget {
		t.Errorf("bin/foo resolves to %q; want second keg's %q", resolved, wantTarget)
	}
}

func TestLinkKeg_IsIdempotent(t *testing.T) {
	l, root := newTestLinker(t)
	kegPath := buildKeg(t, root, "jq", "1.7.1", "jq")

	if _, err := l.LinkKeg("jq", kegPath, Options{}); err != nil {
		t.Fatalf("first LinkKeg() failed: %v", err)
	}
	if _, err := l.LinkKeg("jq", kegPath, Options{}); err != nil {
		t.Fatalf("second LinkKeg() failed: %v", err)
	}
}

func TestUnlinkFiles_RemovesLinksAndPrunesDirs(t *testing.T) {
	l, root := newTestLinker(t)
	kegPath := buildKeg(t, root, "jq", "1.7.1", "jq")

	files, err := l.LinkKeg("jq", kegPath, Options{})
	if err != nil {
		t.Fatalf("LinkKeg() failed: %v", err)
	}
	if err := l.UnlinkFiles(files); err != nil {
		t.Fatalf("UnlinkFiles() failed: %v", err)
	}

	if _, err := os.Lstat(filepath.Join(root, "prefix", "bin", "jq")); err == nil {
		t.Error("bin link still present after unlink")
	}
	if _, err := os.Lstat(filepath.Join(root, "prefix", "share", "man", "man1")); err == nil {
		t.Error("empty man dir should have been pruned")
	}
	if _, err := os.Stat(filepath.Join(kegPath, "bin", "jq")); err != nil {
		t.Errorf("unlink must not touch cellar content: %v", err)
	}
}

func TestUnlinkFiles_LeavesForeignLinksAlone(t *testing.T) {
	l, root := newTestLinker(t)
	keg1 := buildKeg(t, root, "first", "1.0.0", "foo")
	keg2 := buildKeg(t, root, "second", "2.0.0", "foo")

	files1, err := l.LinkKeg("first", keg1, Options{})
	if err != nil {
		t.Fatalf("LinkKeg(first) failed: %v", err)
	}
	if _, err := l.LinkKeg("second", keg2, Options{Overwrite: true}); err != nil {
		t.Fatalf("LinkKeg(second) failed: %v", err)
	}

	// Unlinking the first keg must not remove the link now owned by the
	// second keg.
	if err := l.UnlinkFiles(files1); err != nil {
		t.Fatalf("UnlinkFiles() failed: %v", err)
	}
	resolved, err := filepath.EvalSymlinks(filepath.Join(root, "prefix", "bin", "foo"))
	if err != nil {
		t.Fatalf("second keg's link was removed: %v", err)
	}
	wantTarget, _ := filepath.EvalSymlinks(filepath.Join(keg2, "bin", "foo"))
	if resolved != wantTarget {
		t.Errorf("bin/foo resolves to %q; want second keg's %q", resolved, wantTarget)
	}
}
