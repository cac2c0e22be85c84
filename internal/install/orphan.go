package install

import (
	"context"

	"github.com/rs/zerolog/log"
)

// FindOrphans returns dependency-installed kegs no explicit keg needs.
//
// The dependency closure of every explicit keg is recomputed from fetched
// formulas. When the formula of any explicit keg cannot be fetched, no keg
// is reported as an orphan (never remove on incomplete information).
func (in *Installer) FindOrphans(ctx context.Context) ([]string, error) {
	installed, err := in.db.ListKegs()
	if err != nil {
		return nil, err
	}

	var explicit, dependencies []string
	for _, keg := range installed {
		if keg.Explicit {
			explicit = append(explicit, keg.Name)
		} else {
			dependencies = append(dependencies, keg.Name)
		}
	}
	if len(dependencies) == 0 {
		return nil, nil
	}

	required := make(map[string]bool, len(installed))
	for _, name := range explicit {
		required[name] = true
		deps, err := in.dependencyClosure(ctx, name)
		if err != nil {
			// Report no orphans at all so nothing gets removed on bad
			// information.
			log.Warn().Str("formula", name).Err(err).Msg("could not resolve dependencies; skipping autoremove for safety")
			return nil, nil
		}
		for _, dep := range deps {
			required[dep] = true
		}
	}

	var orphans []string
	for _, name := range dependencies {
		if !required[name] {
			orphans = append(orphans, name)
		}
	}
	return orphans, nil
}

// dependencyClosure fetches name's formula graph and returns every
// transitive runtime dependency name.
func (in *Installer) dependencyClosure(ctx context.Context, name string) ([]string, error) {
	seen := map[string]bool{name: true}
	queue := []string{name}
	var closure []string

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		f, err := in.catalog.Formula(ctx, current)
		if err != nil {
			if current == name {
				return nil, err
			}
			// Unfetchable transitive dependency: ignore, its own deps
			// cannot be installed either.
			continue
		}
		for _, dep := range f.RuntimeDependencies(in.plat) {
			if !seen[dep] {
				seen[dep] = true
				queue = append(queue, dep)
				closure = append(closure, dep)
			}
		}
	}
	return closure, nil
}

// Autoremove uninstalls every orphaned dependency.
func (in *Installer) Autoremove(ctx context.Context) (*Report, error) {
	orphans, err := in.FindOrphans(ctx)
	if err != nil {
		return nil, err
	}

	report := newReport()
	for _, name := range orphans {
		if err := in.uninstallOne(name); err != nil {
			report.Failed[name] = err
			continue
		}
		report.Removed = append(report.Removed, name)
	}
	return report, nil
}
