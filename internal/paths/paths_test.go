package paths

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNew_DefaultRoot(t *testing.T) {
	t.Setenv(EnvRoot, "")
	p := New("")
	if p.Root() != DefaultRoot {
		t.Errorf("Root() = %q; want %q", p.Root(), DefaultRoot)
	}
}

func TestNew_EnvOverride(t *testing.T) {
	t.Setenv(EnvRoot, "/tmp/zb-env")
	p := New("")
	if p.Root() != "/tmp/zb-env" {
		t.Errorf("Root() = %q; want /tmp/zb-env", p.Root())
	}
}

func TestNew_ExplicitRootWinsOverEnv(t *testing.T) {
	t.Setenv(EnvRoot, "/tmp/zb-env")
	p := New("/tmp/zb-explicit")
	if p.Root() != "/tmp/zb-explicit" {
		t.Errorf("Root() = %q; want /tmp/zb-explicit", p.Root())
	}
}

func TestLayout_AllUnderRoot(t *testing.T) {
	p := New("/tmp/zb-root")
	for name, dir := range map[string]string{
		"store":  p.StoreDir(),
		"cellar": p.CellarDir(),
		"prefix": p.PrefixDir(),
		"bin":    p.BinDir(),
		"opt":    p.OptDir(),
		"cache":  p.CacheDir(),
		"db":     p.DBPath(),
		"locks":  p.LocksDir(),
		"taps":   p.TapsDir(),
	} {
		if !strings.HasPrefix(dir, "/tmp/zb-root"+string(filepath.Separator)) {
			t.Errorf("%s dir %q not under root", name, dir)
		}
	}
}

func TestCellarLivesUnderPrefix(t *testing.T) {
	p := New("/tmp/zb-root")
	if !strings.HasPrefix(p.CellarDir(), p.PrefixDir()) {
		t.Errorf("CellarDir %q should be under PrefixDir %q", p.CellarDir(), p.PrefixDir())
	}
}

func TestEnsure_IsIdempotent(t *testing.T) {
	p := New(t.TempDir())

	if err := p.Ensure(); err != nil {
		t.Fatalf("Ensure() failed: %v", err)
	}
	if err := p.Ensure(); err != nil {
		t.Fatalf("second Ensure() failed: %v", err)
	}

	for _, dir := range []string{p.StoreDir(), p.CellarDir(), p.BinDir(), p.OptDir(), p.CacheDir(), p.LocksDir(), p.TapsDir()} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Errorf("expected %q to exist: %v", dir, err)
			continue
		}
		if !info.IsDir() {
			t.Errorf("%q is not a directory", dir)
		}
	}
}
