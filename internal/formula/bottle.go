package formula

import (
	"sort"

	"github.com/blackwell-systems/zerobrew/internal/platform"
	"github.com/blackwell-systems/zerobrew/internal/zerrors"
)

// SelectedBottle identifies the bottle chosen for the running platform. The
// Sha256 doubles as the content-addressable store key.
type SelectedBottle struct {
	Tag     string
	URL     string
	Sha256  string
	Rebuild int
}

// SelectBottle picks the best compatible bottle for p.
//
// Selection order: the platform's preferred tags (exact tier first, older
// tiers after), then the universal "all" tag, then any remaining tag that
// could run on this platform. No match yields NoCompatibleBottleError.
func SelectBottle(f *Formula, p platform.Platform) (SelectedBottle, error) {
	files := f.Bottle.Stable.Files

	for _, tag := range p.PreferredTags() {
		if file, ok := files[tag]; ok {
			return selected(tag, file, f), nil
		}
	}

	if file, ok := files["all"]; ok {
		return selected("all", file, f), nil
	}

	// Deterministic fallback scan over the remaining tags.
	tags := make([]string, 0, len(files))
	for tag := range files {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	for _, tag := range tags {
		if p.CompatibleTag(tag) {
			return selected(tag, files[tag], f), nil
		}
	}

	return SelectedBottle{}, &zerrors.NoCompatibleBottleError{Name: f.Name, Available: tags}
}

func selected(tag string, file BottleFile, f *Formula) SelectedBottle {
	return SelectedBottle{
		Tag:     tag,
		URL:     file.URL,
		Sha256:  file.Sha256,
		Rebuild: f.Bottle.Stable.Rebuild,
	}
}
