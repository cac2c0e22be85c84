// Package platform detects the running OS, architecture, and (on macOS) the
// OS version tier used to rank bottle tags.
package platform

import (
	"fmt"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
)

// Platform describes the host for bottle selection.
type Platform struct {
	// OS is "darwin" or "linux".
	OS string
	// Arch is "arm64" or "amd64" (Go spelling; bottle tags use x86_64).
	Arch string
	// MacOSMajor is the macOS major version (e.g. 14 for Sonoma); zero on
	// Linux or when detection fails.
	MacOSMajor int
}

// macOS version tiers in descending order, newest first. Bottle tags for
// x86_64 use the bare tier name; arm64 tags carry an "arm64_" prefix.
var macOSTiers = []struct {
	major int
	name  string
}{
	{26, "tahoe"},
	{15, "sequoia"},
	{14, "sonoma"},
	{13, "ventura"},
	{12, "monterey"},
	{11, "big_sur"},
}

// Detect inspects the running host.
func Detect() Platform {
	p := Platform{OS: runtime.GOOS, Arch: runtime.GOARCH}
	if p.OS == "darwin" {
		p.MacOSMajor = detectMacOSMajor()
	}
	return p
}

func detectMacOSMajor() int {
	out, err := exec.Command("sw_vers", "-productVersion").Output()
	if err != nil {
		return 0
	}
	version := strings.TrimSpace(string(out))
	major, _, _ := strings.Cut(version, ".")
	n, err := strconv.Atoi(major)
	if err != nil {
		return 0
	}
	return n
}

// PreferredTags returns the bottle tags for this platform in descending
// preference order: the exact tier first, then older tiers of the same
// architecture. Linux platforms have exactly one tag.
func (p Platform) PreferredTags() []string {
	switch p.OS {
	case "linux":
		if p.Arch == "arm64" {
			return []string{"arm64_linux"}
		}
		return []string{"x86_64_linux"}
	case "darwin":
		var tags []string
		for _, tier := range macOSTiers {
			if p.MacOSMajor != 0 && tier.major > p.MacOSMajor {
				continue
			}
			if p.Arch == "arm64" {
				tags = append(tags, "arm64_"+tier.name)
			} else {
				tags = append(tags, tier.name)
			}
		}
		return tags
	}
	return nil
}

// CompatibleTag reports whether tag could run on this platform at all, used
// as the last-resort fallback after the preferred tags and "all".
func (p Platform) CompatibleTag(tag string) bool {
	switch p.OS {
	case "linux":
		if p.Arch == "arm64" {
			return tag == "arm64_linux"
		}
		return tag == "x86_64_linux"
	case "darwin":
		if strings.Contains(tag, "linux") {
			return false
		}
		if p.Arch == "arm64" {
			return strings.HasPrefix(tag, "arm64_")
		}
		return !strings.HasPrefix(tag, "arm64_")
	}
	return false
}

// String renders the platform for log lines, e.g. "darwin/arm64 (sonoma)".
func (p Platform) String() string {
	if p.OS == "darwin" {
		for _, tier := range macOSTiers {
			if tier.major == p.MacOSMajor {
				return fmt.Sprintf("%s/%s (%s)", p.OS, p.Arch, tier.name)
			}
		}
	}
	return fmt.Sprintf("%s/%s", p.OS, p.Arch)
}

// DynamicLinker returns the system ELF interpreter path for Linux
// relocation. Empty on other platforms.
func (p Platform) DynamicLinker() string {
	if p.OS != "linux" {
		return ""
	}
	if p.Arch == "arm64" {
		return "/lib/ld-linux-aarch64.so.1"
	}
	return "/lib64/ld-linux-x86-64.so.2"
}
