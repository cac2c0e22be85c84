//go:build darwin

package cellar

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/blackwell-systems/zerobrew/internal/platform"
	"github.com/blackwell-systems/zerobrew/internal/zerrors"
)

// machoRelocator patches Mach-O images with install_name_tool, strips the
// quarantine and provenance attributes the patched file would otherwise
// inherit, and ad-hoc re-signs (a modified binary's signature is invalid).
type machoRelocator struct {
	installNameTool string
	codesign        string
	xattr           string
	cellarDir       string
	prefixDir       string
}

// NewRelocator returns the Mach-O relocator. install_name_tool and codesign
// ship with macOS; their absence is still surfaced as PatcherMissingError
// rather than producing broken binaries.
func NewRelocator(plat platform.Platform, cellarDir, prefixDir string) (Relocator, error) {
	installNameTool, err := exec.LookPath("install_name_tool")
	if err != nil {
		return nil, &zerrors.PatcherMissingError{Tool: "install_name_tool"}
	}
	codesign, err := exec.LookPath("codesign")
	if err != nil {
		return nil, &zerrors.PatcherMissingError{Tool: "codesign"}
	}
	xattr, _ := exec.LookPath("xattr")

	return &machoRelocator{
		installNameTool: installNameTool,
		codesign:        codesign,
		xattr:           xattr,
		cellarDir:       cellarDir,
		prefixDir:       prefixDir,
	}, nil
}

func (r *machoRelocator) Versions() map[string]string {
	return map[string]string{"install_name_tool": "xcode"}
}

// NeedsPatch inspects the load commands read-only. Images with no
// placeholder in their id or dependencies need nothing, so their hardlink
// to the store copy stays intact.
func (r *machoRelocator) NeedsPatch(path string) (bool, error) {
	out, err := exec.Command("otool", "-L", path).Output()
	if err != nil {
		// Not a loadable image (e.g. an object file); leave it alone.
		return false, nil
	}
	return strings.Contains(string(out), "@@HOMEBREW"), nil
}

func (r *machoRelocator) PatchBinary(path string) error {
	changed, err := r.rewriteLoadCommands(path)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	r.stripAttributes(path)

	// Ad-hoc re-sign; the rewrite invalidated any existing signature.
	cmd := exec.Command(r.codesign, "--force", "--sign", "-", path)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("codesign failed for %s: %w (output: %s)", path, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// rewriteLoadCommands rewrites the image id and every load command whose
// path contains a placeholder. Reports whether anything changed.
func (r *machoRelocator) rewriteLoadCommands(path string) (bool, error) {
	out, err := exec.Command("otool", "-L", path).Output()
	if err != nil {
		// Not a loadable image (e.g. an object file); leave it alone.
		return false, nil
	}

	changed := false
	lines := strings.Split(string(out), "\n")
	for i, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || !strings.Contains(line, "@@HOMEBREW") {
			continue
		}
		dep := line
		if idx := strings.Index(dep, " ("); idx >= 0 {
			dep = dep[:idx]
		}
		replaced := substitute(dep, r.cellarDir, r.prefixDir)
		if replaced == dep {
			continue
		}

		var cmd *exec.Cmd
		if i == 1 && strings.HasSuffix(path, ".dylib") {
			// First entry of a dylib listing is its install name.
			cmd = exec.Command(r.installNameTool, "-id", replaced, path)
		} else {
			cmd = exec.Command(r.installNameTool, "-change", dep, replaced, path)
		}
		if out, err := cmd.CombinedOutput(); err != nil {
			return changed, fmt.Errorf("install_name_tool failed for %s: %w (output: %s)",
				path, err, strings.TrimSpace(string(out)))
		}
		changed = true
	}
	return changed, nil
}

func (r *machoRelocator) stripAttributes(path string) {
	if r.xattr == "" {
		return
	}
	for _, attr := range []string{"com.apple.quarantine", "com.apple.provenance"} {
		_ = exec.Command(r.xattr, "-d", attr, path).Run()
	}
}
