package install

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/blackwell-systems/zerobrew/internal/formula"
	"github.com/blackwell-systems/zerobrew/internal/zerrors"
)

// outdatedCheckConcurrency bounds parallel formula fetches during the
// outdated scan.
const outdatedCheckConcurrency = 12

// OutdatedPackage names an installed keg with a newer upstream version.
// A new rebuild of the same version counts as newer.
type OutdatedPackage struct {
	Name             string
	InstalledVersion string
	AvailableVersion string
}

// Outdated compares every installed keg against the catalog.
func (in *Installer) Outdated(ctx context.Context) ([]OutdatedPackage, error) {
	installed, err := in.db.ListKegs()
	if err != nil {
		return nil, err
	}
	if len(installed) == 0 {
		return nil, nil
	}

	var mu sync.Mutex
	var outdated []OutdatedPackage

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(outdatedCheckConcurrency)
	for _, keg := range installed {
		keg := keg
		g.Go(func() error {
			f, err := in.catalog.Formula(ctx, keg.Name)
			if err != nil {
				var notFound *zerrors.NotFoundError
				if errors.As(err, &notFound) {
					// Formula no longer published; nothing to upgrade to.
					return nil
				}
				log.Warn().Str("formula", keg.Name).Err(err).Msg("outdated check failed")
				return nil
			}

			available := f.EffectiveVersion()
			if formula.ParseVersion(keg.Version).OlderThan(formula.ParseVersion(available)) {
				mu.Lock()
				outdated = append(outdated, OutdatedPackage{
					Name:             keg.Name,
					InstalledVersion: keg.Version,
					AvailableVersion: available,
				})
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(outdated, func(i, j int) bool { return outdated[i].Name < outdated[j].Name })
	return outdated, nil
}

// UpgradeOptions tune an upgrade run.
type UpgradeOptions struct {
	// Force upgrades pinned kegs too.
	Force bool
	// Overwrite and NoLink behave as in Options.
	Overwrite bool
	NoLink    bool
}

// Upgrade moves the named kegs (or every outdated keg when names is empty)
// to their latest versions. Pinned kegs are skipped unless forced.
func (in *Installer) Upgrade(ctx context.Context, names []string, opts UpgradeOptions) (*Report, error) {
	report := newReport()

	targets := names
	if len(targets) == 0 {
		outdated, err := in.Outdated(ctx)
		if err != nil {
			return nil, err
		}
		for _, pkg := range outdated {
			targets = append(targets, pkg.Name)
		}
	}

	for _, name := range targets {
		upgraded, err := in.upgradeOne(ctx, name, opts)
		if err != nil {
			report.Failed[name] = err
			continue
		}
		if upgraded {
			report.Upgraded = append(report.Upgraded, name)
		}
	}

	return report, nil
}

// upgradeOne returns false when the keg is already current or pinned.
func (in *Installer) upgradeOne(ctx context.Context, name string, opts UpgradeOptions) (bool, error) {
	keg, err := in.db.GetKeg(name)
	if err != nil {
		return false, err
	}
	if keg == nil {
		return false, notInstalled(name)
	}
	if keg.Pinned && !opts.Force {
		log.Debug().Str("formula", name).Msg("skipping pinned keg")
		return false, nil
	}

	f, err := in.catalog.Formula(ctx, name)
	if err != nil {
		return false, err
	}
	newVersion := f.EffectiveVersion()
	if !formula.ParseVersion(keg.Version).OlderThan(formula.ParseVersion(newVersion)) {
		return false, nil
	}

	oldVersion := keg.Version

	// Unlink the old keg so the new one can claim its link paths, then
	// install the new version; the keg row is replaced in place.
	if err := in.Unlink(name); err != nil {
		return false, err
	}

	installReport, err := in.Install(ctx, []string{name}, Options{
		Overwrite: opts.Overwrite,
		NoLink:    opts.NoLink,
	})
	if err != nil {
		in.relinkBestEffort(name)
		return false, err
	}
	if failErr, ok := installReport.Failed[name]; ok {
		in.relinkBestEffort(name)
		return false, failErr
	}

	// The old keg directory is no longer referenced by anything.
	if err := in.cellar.RemoveKeg(name, oldVersion); err != nil {
		log.Warn().Str("formula", name).Err(err).Msg("failed to remove old keg")
	}
	return true, nil
}

// relinkBestEffort restores the old keg's links after a failed upgrade.
func (in *Installer) relinkBestEffort(name string) {
	if err := in.Link(name, true); err != nil {
		log.Warn().Str("formula", name).Err(err).Msg("failed to restore links after upgrade failure")
	}
}
