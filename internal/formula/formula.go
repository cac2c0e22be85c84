// Package formula models upstream formula metadata and selects the bottle
// to install for a platform.
package formula

import (
	"encoding/json"
	"fmt"

	"github.com/blackwell-systems/zerobrew/internal/platform"
)

// Formula is the subset of the upstream formula JSON the install engine
// consumes.
type Formula struct {
	Name              string        `json:"name"`
	Desc              string        `json:"desc"`
	Homepage          string        `json:"homepage"`
	License           string        `json:"license"`
	Versions          Versions      `json:"versions"`
	Dependencies      []string      `json:"dependencies"`
	BuildDependencies []string      `json:"build_dependencies"`
	UsesFromMacOS     macOSDeps     `json:"uses_from_macos"`
	KegOnly           bool          `json:"keg_only"`
	KegOnlyReason     *KegOnlyShape `json:"keg_only_reason"`
	Bottle            Bottle        `json:"bottle"`
}

// Versions holds the stable version string, which may carry a "_N" rebuild
// suffix in derived contexts but never in the raw API payload.
type Versions struct {
	Stable string `json:"stable"`
}

// KegOnlyShape explains why a formula must not be linked into the prefix.
type KegOnlyShape struct {
	Reason      string `json:"reason"`
	Explanation string `json:"explanation"`
}

// Bottle is the per-platform bottle manifest.
type Bottle struct {
	Stable BottleSpec `json:"stable"`
}

// BottleSpec maps platform tags to bottle files.
type BottleSpec struct {
	Rebuild int                   `json:"rebuild"`
	Files   map[string]BottleFile `json:"files"`
}

// BottleFile is one downloadable bottle.
type BottleFile struct {
	URL    string `json:"url"`
	Sha256 string `json:"sha256"`
}

// macOSDeps handles the mixed-shape uses_from_macos array: plain strings are
// runtime dependencies; objects like {"flex": "build"} are build- or
// test-time only and irrelevant when installing prebuilt bottles.
type macOSDeps []string

func (d *macOSDeps) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	deps := make([]string, 0, len(raw))
	for _, item := range raw {
		var name string
		if err := json.Unmarshal(item, &name); err == nil {
			deps = append(deps, name)
			continue
		}
		var phased map[string]json.RawMessage
		if err := json.Unmarshal(item, &phased); err != nil {
			return fmt.Errorf("uses_from_macos entry is neither string nor object: %s", item)
		}
	}
	*d = deps
	return nil
}

// EffectiveVersion returns the version including the rebuild suffix.
// Bottles with rebuild > 0 lay out their internal paths as
// "<version>_<rebuild>".
func (f *Formula) EffectiveVersion() string {
	if f.Bottle.Stable.Rebuild > 0 {
		return fmt.Sprintf("%s_%d", f.Versions.Stable, f.Bottle.Stable.Rebuild)
	}
	return f.Versions.Stable
}

// RuntimeDependencies returns the dependency names to install before this
// formula. On Linux the uses_from_macos packages are real dependencies
// because the system does not provide them.
func (f *Formula) RuntimeDependencies(p platform.Platform) []string {
	deps := make([]string, 0, len(f.Dependencies)+len(f.UsesFromMacOS))
	deps = append(deps, f.Dependencies...)
	if p.OS == "linux" {
		for _, dep := range f.UsesFromMacOS {
			if !contains(deps, dep) {
				deps = append(deps, dep)
			}
		}
	}
	return deps
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Parse decodes formula JSON, reporting schema violations as errors.
func Parse(name string, data []byte) (*Formula, error) {
	var f Formula
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	if f.Name == "" {
		f.Name = name
	}
	if f.Versions.Stable == "" {
		return nil, fmt.Errorf("formula %q has no stable version", name)
	}
	return &f, nil
}
