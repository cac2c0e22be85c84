package install

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/blackwell-systems/zerobrew/internal/db"
	"github.com/blackwell-systems/zerobrew/internal/fetch"
	"github.com/blackwell-systems/zerobrew/internal/linker"
	"github.com/blackwell-systems/zerobrew/internal/planner"
	"github.com/blackwell-systems/zerobrew/internal/zerrors"
)

// maxAdmitRetries re-downloads a blob whose tarball fails to extract; the
// hash matched, so the corruption came from the source.
const maxAdmitRetries = 3

// Options tune a single install run.
type Options struct {
	// Force reinstalls packages already at the requested version.
	Force bool
	// Overwrite replaces conflicting prefix links owned by other kegs.
	Overwrite bool
	// NoLink installs kegs without populating the prefix.
	NoLink bool
}

// Report summarizes an engine operation for the CLI.
type Report struct {
	Installed []string
	Upgraded  []string
	Removed   []string
	// Failed maps package name to the error that stopped it.
	Failed map[string]error
}

func newReport() *Report {
	return &Report{Failed: make(map[string]error)}
}

// Err returns an error when any package failed.
func (r *Report) Err() error {
	for _, err := range r.Failed {
		return err
	}
	return nil
}

func notInstalled(name string) error {
	return &zerrors.NotInstalledError{Name: name}
}

// processed carries one package through download → admit → materialize →
// link, before the ordered database commit.
type processed struct {
	pkg   planner.PlannedPackage
	files []db.LinkedFile
}

// Install resolves the requests and installs the resulting plan. Per-
// package failures are reported without aborting siblings; the database
// records only fully installed kegs, committed in topological order.
func (in *Installer) Install(ctx context.Context, names []string, opts Options) (*Report, error) {
	pinned, err := in.pinnedSet()
	if err != nil {
		return nil, err
	}

	plan, err := in.planner.Plan(ctx, names, planner.Options{Force: opts.Force, Pinned: pinned})
	if err != nil {
		return nil, err
	}

	return in.executePlan(ctx, plan, opts)
}

func (in *Installer) executePlan(ctx context.Context, plan []planner.PlannedPackage, opts Options) (*Report, error) {
	report := newReport()
	if len(plan) == 0 {
		return report, nil
	}

	index := make(map[string]int, len(plan))
	tasks := make([]fetch.Task, 0, len(plan))
	for i, pkg := range plan {
		index[pkg.Name] = i
		tasks = append(tasks, fetch.Task{
			Name:   pkg.Name,
			URL:    pkg.Bottle.URL,
			Sha256: pkg.Bottle.Sha256,
		})
	}

	// Downloads stream in completion order; each completed package flows
	// straight through admission, materialization, and linking.
	completed := make([]*processed, len(plan))
	for res := range in.dl.Fetch(ctx, tasks) {
		pkg := plan[index[res.Task.Name]]
		if res.Err != nil {
			report.Failed[pkg.Name] = res.Err
			continue
		}

		done, err := in.processPackage(ctx, pkg, res.Path, opts)
		if err != nil {
			report.Failed[pkg.Name] = err
			continue
		}
		completed[index[pkg.Name]] = done
	}

	// Commit in topological order under the database write lock so a
	// package row never lands before its dependencies'.
	lock, err := in.locks.Acquire("db:write")
	if err != nil {
		return report, err
	}
	defer lock.Release()

	for _, done := range completed {
		if done == nil {
			continue
		}
		keg := &db.Keg{
			Name:        done.pkg.Name,
			Version:     done.pkg.Version,
			StoreKey:    done.pkg.Bottle.Sha256,
			InstalledAt: time.Now().UTC(),
			Explicit:    done.pkg.Explicit,
		}
		if err := in.db.InstallKeg(keg, done.files); err != nil {
			report.Failed[done.pkg.Name] = err
			continue
		}
		report.Installed = append(report.Installed, done.pkg.Name)
	}

	return report, nil
}

// processPackage runs one package through admission, materialization, and
// linking.
func (in *Installer) processPackage(ctx context.Context, pkg planner.PlannedPackage, blobPath string, opts Options) (*processed, error) {
	entryPath, err := in.admitWithRetry(ctx, pkg, blobPath)
	if err != nil {
		return nil, err
	}

	kegPath, err := in.cellar.Materialize(pkg.Name, pkg.Version, entryPath, pkg.Bottle.Sha256)
	if err != nil {
		return nil, err
	}

	var files []db.LinkedFile
	if !opts.NoLink && !pkg.KegOnly {
		linked, err := in.linker.LinkKeg(pkg.Name, kegPath, linker.Options{Overwrite: opts.Overwrite})
		if err != nil {
			return nil, err
		}
		for _, f := range linked {
			files = append(files, db.LinkedFile{LinkPath: f.LinkPath, TargetPath: f.TargetPath})
		}
	}

	return &processed{pkg: pkg, files: files}, nil
}

// admitWithRetry extracts the blob into the store, re-downloading when the
// tarball turns out corrupt despite the matching hash.
func (in *Installer) admitWithRetry(ctx context.Context, pkg planner.PlannedPackage, blobPath string) (string, error) {
	var lastErr error
	for attempt := 0; attempt < maxAdmitRetries; attempt++ {
		entryPath, _, err := in.store.Admit(pkg.Bottle.Sha256, blobPath)
		if err == nil {
			return entryPath, nil
		}
		lastErr = err

		var materialize *zerrors.MaterializeError
		var lockTimeout *zerrors.LockTimeoutError
		if errors.As(err, &materialize) || errors.As(err, &lockTimeout) {
			return "", err
		}

		// The blob hashed correctly but would not extract; drop it and
		// fetch fresh bytes.
		in.dl.Cache().Remove(pkg.Bottle.Sha256)
		if attempt+1 == maxAdmitRetries {
			break
		}
		log.Warn().Str("formula", pkg.Name).Int("attempt", attempt+2).
			Msg("corrupted download; retrying")

		newPath, err := in.dl.FetchOne(ctx, fetch.Task{
			Name:   pkg.Name,
			URL:    pkg.Bottle.URL,
			Sha256: pkg.Bottle.Sha256,
		})
		if err != nil {
			return "", err
		}
		blobPath = newPath
	}
	return "", lastErr
}

func (in *Installer) pinnedSet() (map[string]bool, error) {
	kegs, err := in.db.ListPinned()
	if err != nil {
		return nil, err
	}
	pinned := make(map[string]bool, len(kegs))
	for _, keg := range kegs {
		pinned[keg.Name] = true
	}
	return pinned, nil
}

// Link populates the prefix for an installed keg outside an install run.
func (in *Installer) Link(name string, overwrite bool) error {
	keg, err := in.db.GetKeg(name)
	if err != nil {
		return err
	}
	if keg == nil {
		return notInstalled(name)
	}

	kegPath := in.cellar.KegPath(keg.Name, keg.Version)
	linked, err := in.linker.LinkKeg(keg.Name, kegPath, linker.Options{Overwrite: overwrite})
	if err != nil {
		return err
	}

	files := make([]db.LinkedFile, len(linked))
	for i, f := range linked {
		files[i] = db.LinkedFile{LinkPath: f.LinkPath, TargetPath: f.TargetPath}
	}
	return in.db.ReplaceLinkedFiles(keg.Name, keg.Version, files)
}

// Unlink removes an installed keg's prefix links, leaving the keg intact.
func (in *Installer) Unlink(name string) error {
	keg, err := in.db.GetKeg(name)
	if err != nil {
		return err
	}
	if keg == nil {
		return notInstalled(name)
	}

	recorded, err := in.db.LinkedFiles(name)
	if err != nil {
		return err
	}
	files := make([]linker.LinkedFile, len(recorded))
	for i, f := range recorded {
		files[i] = linker.LinkedFile{LinkPath: f.LinkPath, TargetPath: f.TargetPath}
	}
	if err := in.linker.UnlinkFiles(files); err != nil {
		return err
	}
	return in.db.ReplaceLinkedFiles(keg.Name, keg.Version, nil)
}
