//go:build darwin || linux

package cellar

import (
	"github.com/blackwell-systems/zerobrew/internal/platform"
)

// newPlatformRelocator builds the relocator for the running host.
func newPlatformRelocator(cellarDir, prefixDir string) (Relocator, error) {
	return NewRelocator(platform.Detect(), cellarDir, prefixDir)
}
