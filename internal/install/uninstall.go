package install

import (
	"github.com/blackwell-systems/zerobrew/internal/linker"
)

// Uninstall removes kegs by name: prefix links first, then the database
// row (which drops the store reference), then the cellar directory. The
// store entry survives for warm reinstalls until gc runs.
func (in *Installer) Uninstall(names []string) (*Report, error) {
	report := newReport()

	for _, name := range names {
		if err := in.uninstallOne(name); err != nil {
			report.Failed[name] = err
			continue
		}
		report.Removed = append(report.Removed, name)
	}

	return report, nil
}

func (in *Installer) uninstallOne(name string) error {
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

	lock, err := in.locks.Acquire("db:write")
	if err != nil {
		return err
	}
	err = in.db.RemoveKeg(name)
	lock.Release()
	if err != nil {
		return err
	}

	return in.cellar.RemoveKeg(keg.Name, keg.Version)
}
