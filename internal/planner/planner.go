// Package planner turns a user request into a deterministic, topologically
// ordered set of packages to install.
//
// Formula metadata is fetched with bounded streaming concurrency:
// completions are consumed as they arrive and newly discovered dependencies
// are queued immediately, which keeps deep dependency trees from serializing
// on batch boundaries.
package planner

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/blackwell-systems/zerobrew/internal/catalog"
	"github.com/blackwell-systems/zerobrew/internal/formula"
	"github.com/blackwell-systems/zerobrew/internal/platform"
	"github.com/blackwell-systems/zerobrew/internal/zerrors"
)

// maxConcurrentFetches bounds in-flight formula metadata requests.
const maxConcurrentFetches = 12

// PlannedPackage is one entry of an install plan, in install order.
type PlannedPackage struct {
	Name    string
	Version string
	Bottle  formula.SelectedBottle
	KegOnly bool
	// Explicit marks packages the user named, as opposed to transitive
	// dependencies pulled in by resolution.
	Explicit bool
}

// InstalledChecker answers whether a keg is already present at a version.
// The database implements it; tests use a map.
type InstalledChecker interface {
	InstalledVersion(name string) (string, bool, error)
}

// Options tune plan filtering.
type Options struct {
	// Force replans packages that are already installed and current.
	Force bool
	// Pinned names are excluded when they appear as requested upgrades, but
	// still install as missing transitive dependencies.
	Pinned map[string]bool
}

// Planner resolves requests against the catalog.
type Planner struct {
	catalog   *catalog.Client
	plat      platform.Platform
	installed InstalledChecker
}

// New creates a Planner.
func New(c *catalog.Client, plat platform.Platform, installed InstalledChecker) *Planner {
	return &Planner{catalog: c, plat: plat, installed: installed}
}

// Plan resolves requests into an ordered package list, leaves first.
func (p *Planner) Plan(ctx context.Context, requests []string, opts Options) ([]PlannedPackage, error) {
	closure, err := p.fetchClosure(ctx, requests)
	if err != nil {
		return nil, err
	}

	ordered, err := resolveOrder(closure, p.plat)
	if err != nil {
		return nil, err
	}

	requested := make(map[string]bool, len(requests))
	for _, name := range requests {
		requested[name] = true
	}

	var plan []PlannedPackage
	for _, name := range ordered {
		f := closure[name]

		sel, err := formula.SelectBottle(f, p.plat)
		if err != nil {
			var noBottle *zerrors.NoCompatibleBottleError
			if errors.As(err, &noBottle) && !requested[name] {
				// Dependencies without a compatible bottle are skipped; a
				// requested package without one fails the whole plan.
				log.Warn().Str("formula", name).Msg("skipping dependency with no compatible bottle")
				continue
			}
			return nil, err
		}

		version := f.EffectiveVersion()

		if installed, ok, err := p.installedVersion(name); err != nil {
			return nil, err
		} else if ok {
			if installed == version && !opts.Force {
				continue
			}
			if opts.Pinned[name] && requested[name] && !opts.Force {
				log.Debug().Str("formula", name).Msg("skipping pinned keg")
				continue
			}
		}

		plan = append(plan, PlannedPackage{
			Name:     name,
			Version:  version,
			Bottle:   sel,
			KegOnly:  f.KegOnly,
			Explicit: requested[name],
		})
	}

	return plan, nil
}

func (p *Planner) installedVersion(name string) (string, bool, error) {
	if p.installed == nil {
		return "", false, nil
	}
	return p.installed.InstalledVersion(name)
}

// fetchClosure fetches the requested formulas and their transitive runtime
// dependencies. Missing dependencies are skipped with a warning; a missing
// requested formula fails the plan.
func (p *Planner) fetchClosure(ctx context.Context, requests []string) (map[string]*formula.Formula, error) {
	type fetchResult struct {
		name string
		f    *formula.Formula
		err  error
	}

	requested := make(map[string]bool, len(requests))
	pending := make([]string, 0, len(requests))
	queued := make(map[string]bool, len(requests))
	for _, name := range requests {
		requested[name] = true
		if !queued[name] {
			queued[name] = true
			pending = append(pending, name)
		}
	}

	closure := make(map[string]*formula.Formula)
	results := make(chan fetchResult)
	inFlight := 0

	launch := func(name string) {
		inFlight++
		go func() {
			f, err := p.catalog.Formula(ctx, name)
			results <- fetchResult{name: name, f: f, err: err}
		}()
	}

	for {
		for inFlight < maxConcurrentFetches && len(pending) > 0 {
			name := pending[0]
			pending = pending[1:]
			launch(name)
		}
		if inFlight == 0 {
			break
		}

		res := <-results
		inFlight--

		if res.err != nil {
			var notFound *zerrors.NotFoundError
			if errors.As(res.err, &notFound) && !requested[res.name] {
				// Dependencies without a formula (some uses_from_macos
				// names) are skipped rather than failing the plan.
				log.Warn().Str("formula", res.name).Msg("skipping dependency with no formula")
				continue
			}
			// Drain remaining workers before returning so none leak.
			for inFlight > 0 {
				<-results
				inFlight--
			}
			return nil, res.err
		}

		closure[res.name] = res.f
		for _, dep := range res.f.RuntimeDependencies(p.plat) {
			if !queued[dep] {
				queued[dep] = true
				pending = append(pending, dep)
			}
		}
	}

	return closure, nil
}
