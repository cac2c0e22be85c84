package platform

import (
	"reflect"
	"testing"
)

func TestPreferredTags_LinuxArm64(t *testing.T) {
	p := Platform{OS: "linux", Arch: "arm64"}
	got := p.PreferredTags()
	want := []string{"arm64_linux"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("PreferredTags() = %v; want %v", got, want)
	}
}

func TestPreferredTags_LinuxAmd64(t *testing.T) {
	p := Platform{OS: "linux", Arch: "amd64"}
	got := p.PreferredTags()
	want := []string{"x86_64_linux"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("PreferredTags() = %v; want %v", got, want)
	}
}

func TestPreferredTags_DarwinArm64Sonoma(t *testing.T) {
	p := Platform{OS: "darwin", Arch: "arm64", MacOSMajor: 14}
	got := p.PreferredTags()
	want := []string{"arm64_sonoma", "arm64_ventura", "arm64_monterey", "arm64_big_sur"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("PreferredTags() = %v; want %v", got, want)
	}
}

func TestPreferredTags_DarwinArm64UnknownVersionListsAllTiers(t *testing.T) {
	p := Platform{OS: "darwin", Arch: "arm64"}
	got := p.PreferredTags()
	if len(got) == 0 || got[0] != "arm64_tahoe" {
		t.Errorf("PreferredTags() = %v; want newest tier first when version is unknown", got)
	}
}

func TestPreferredTags_DarwinAmd64UsesBareTierNames(t *testing.T) {
	p := Platform{OS: "darwin", Arch: "amd64", MacOSMajor: 14}
	got := p.PreferredTags()
	want := []string{"sonoma", "ventura", "monterey", "big_sur"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("PreferredTags() = %v; want %v", got, want)
	}
}

func TestCompatibleTag(t *testing.T) {
	tests := []struct {
		name string
		p    Platform
		tag  string
		want bool
	}{
		{"linux arm64 accepts arm64_linux", Platform{OS: "linux", Arch: "arm64"}, "arm64_linux", true},
		{"linux arm64 rejects x86_64_linux", Platform{OS: "linux", Arch: "arm64"}, "x86_64_linux", false},
		{"linux amd64 accepts x86_64_linux", Platform{OS: "linux", Arch: "amd64"}, "x86_64_linux", true},
		{"darwin arm64 accepts any arm64 macOS tag", Platform{OS: "darwin", Arch: "arm64"}, "arm64_ventura", true},
		{"darwin arm64 rejects linux tags", Platform{OS: "darwin", Arch: "arm64"}, "arm64_linux", false},
		{"darwin amd64 rejects arm64 tags", Platform{OS: "darwin", Arch: "amd64"}, "arm64_sonoma", false},
		{"darwin amd64 accepts bare tier", Platform{OS: "darwin", Arch: "amd64"}, "ventura", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.p.CompatibleTag(tt.tag); got != tt.want {
				t.Errorf("CompatibleTag(%q) = %v; want %v", tt.tag, got, tt.want)
			}
		})
	}
}

func TestDynamicLinker(t *testing.T) {
	if got := (Platform{OS: "linux", Arch: "arm64"}).DynamicLinker(); got != "/lib/ld-linux-aarch64.so.1" {
		t.Errorf("DynamicLinker() = %q", got)
	}
	if got := (Platform{OS: "linux", Arch: "amd64"}).DynamicLinker(); got != "/lib64/ld-linux-x86-64.so.2" {
		t.Errorf("DynamicLinker() = %q", got)
	}
	if got := (Platform{OS: "darwin", Arch: "arm64"}).DynamicLinker(); got != "" {
		t.Errorf("DynamicLinker() on darwin = %q; want empty", got)
	}
}
