// Package install wires the planner, downloader, store, materializer,
// linker, and database into the install engine the CLI drives.
package install

import (
	"fmt"
	"net/http"

	"github.com/blackwell-systems/zerobrew/internal/catalog"
	"github.com/blackwell-systems/zerobrew/internal/cellar"
	"github.com/blackwell-systems/zerobrew/internal/db"
	"github.com/blackwell-systems/zerobrew/internal/fetch"
	"github.com/blackwell-systems/zerobrew/internal/linker"
	"github.com/blackwell-systems/zerobrew/internal/lockfile"
	"github.com/blackwell-systems/zerobrew/internal/paths"
	"github.com/blackwell-systems/zerobrew/internal/planner"
	"github.com/blackwell-systems/zerobrew/internal/platform"
	"github.com/blackwell-systems/zerobrew/internal/store"
)

// Installer owns every component of the install pipeline. Construct with
// New and Close when done.
type Installer struct {
	paths   paths.Paths
	plat    platform.Platform
	catalog *catalog.Client
	planner *planner.Planner
	dl      *fetch.Downloader
	store   *store.Store
	cellar  *cellar.Cellar
	linker  *linker.Linker
	db      *db.DB
	locks   *lockfile.Registry
}

// Config tunes engine construction. The zero value gives production
// defaults; tests override the base URL, client, and relocator.
type Config struct {
	// BaseURL overrides the formula API endpoint.
	BaseURL string
	// HTTPClient overrides the client used for both metadata and bottles.
	HTTPClient *http.Client
	// Concurrency bounds parallel downloads (0 = default).
	Concurrency int
	// Relocator overrides the platform relocator.
	Relocator cellar.Relocator
	// DownloaderOptions are appended after the config-derived ones.
	DownloaderOptions []fetch.DownloaderOption
}

// New builds an Installer rooted at p.
func New(p paths.Paths, cfg Config) (*Installer, error) {
	if err := p.Ensure(); err != nil {
		return nil, fmt.Errorf("failed to prepare root: %w", err)
	}

	locks, err := lockfile.NewRegistry(p.LocksDir())
	if err != nil {
		return nil, err
	}

	var catalogOpts []catalog.Option
	if cfg.BaseURL != "" {
		catalogOpts = append(catalogOpts, catalog.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		catalogOpts = append(catalogOpts, catalog.WithHTTPClient(cfg.HTTPClient))
	}
	cat, err := catalog.New(p, catalogOpts...)
	if err != nil {
		return nil, err
	}

	database, err := db.Open(p.DBPath())
	if err != nil {
		cat.Close()
		return nil, err
	}

	blobCache, err := fetch.NewBlobCache(p.CacheDir())
	if err != nil {
		cat.Close()
		database.Close()
		return nil, err
	}

	var dlOpts []fetch.DownloaderOption
	if cfg.Concurrency > 0 {
		dlOpts = append(dlOpts, fetch.WithConcurrency(cfg.Concurrency))
	}
	if cfg.HTTPClient != nil {
		dlOpts = append(dlOpts, fetch.WithClient(cfg.HTTPClient))
	}
	dlOpts = append(dlOpts, cfg.DownloaderOptions...)

	contentStore, err := store.New(p.StoreDir(), locks)
	if err != nil {
		cat.Close()
		database.Close()
		return nil, err
	}

	var cellarOpts []cellar.Option
	if cfg.Relocator != nil {
		cellarOpts = append(cellarOpts, cellar.WithRelocator(cfg.Relocator))
	}
	kegCellar, err := cellar.New(p.CellarDir(), p.PrefixDir(), cellarOpts...)
	if err != nil {
		cat.Close()
		database.Close()
		return nil, err
	}

	prefixLinker, err := linker.New(p.PrefixDir(), locks)
	if err != nil {
		cat.Close()
		database.Close()
		return nil, err
	}

	plat := platform.Detect()

	return &Installer{
		paths:   p,
		plat:    plat,
		catalog: cat,
		planner: planner.New(cat, plat, database),
		dl:      fetch.NewDownloader(blobCache, dlOpts...),
		store:   contentStore,
		cellar:  kegCellar,
		linker:  prefixLinker,
		db:      database,
		locks:   locks,
	}, nil
}

// Close releases the catalog watcher and the database.
func (in *Installer) Close() error {
	in.catalog.Close()
	return in.db.Close()
}

// Paths exposes the engine's layout to the CLI.
func (in *Installer) Paths() paths.Paths { return in.paths }

// IsInstalled reports whether name has an installed keg.
func (in *Installer) IsInstalled(name string) bool {
	keg, err := in.db.GetKeg(name)
	return err == nil && keg != nil
}

// GetInstalled returns the installed keg for name, nil when absent.
func (in *Installer) GetInstalled(name string) (*db.Keg, error) {
	return in.db.GetKeg(name)
}

// ListInstalled returns every installed keg.
func (in *Installer) ListInstalled() ([]*db.Keg, error) {
	return in.db.ListKegs()
}

// Pin excludes name from upgrade planning.
func (in *Installer) Pin(name string) error {
	return in.setPin(name, true)
}

// Unpin re-enables upgrades for name.
func (in *Installer) Unpin(name string) error {
	return in.setPin(name, false)
}

func (in *Installer) setPin(name string, pinned bool) error {
	changed, err := in.db.SetPinned(name, pinned)
	if err != nil {
		return err
	}
	if !changed {
		return notInstalled(name)
	}
	return nil
}

// AddTap registers a tap in the database.
func (in *Installer) AddTap(name, url string) error {
	return in.db.AddTap(name, url)
}

// RemoveTap drops a tap registration.
func (in *Installer) RemoveTap(name string) (bool, error) {
	return in.db.RemoveTap(name)
}

// ListTaps returns the registered taps.
func (in *Installer) ListTaps() ([]db.Tap, error) {
	return in.db.ListTaps()
}
