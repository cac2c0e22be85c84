package db

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/blackwell-systems/zerobrew/internal/zerrors"
)

const kegColumns = "name, version, store_key, installed_at, explicit, pinned, options"

func scanKeg(scanner interface{ Scan(...any) error }) (*Keg, error) {
	var keg Keg
	var installedAt string
	var options string
	if err := scanner.Scan(&keg.Name, &keg.Version, &keg.StoreKey, &installedAt, &keg.Explicit, &keg.Pinned, &options); err != nil {
		return nil, err
	}
	ts, err := time.Parse(time.RFC3339, installedAt)
	if err != nil {
		return nil, err
	}
	keg.InstalledAt = ts
	if err := json.Unmarshal([]byte(options), &keg.Options); err != nil {
		return nil, err
	}
	return &keg, nil
}

// GetKeg returns the installed keg for name, or nil when not installed.
func (d *DB) GetKeg(name string) (*Keg, error) {
	row := d.db.QueryRow("SELECT "+kegColumns+" FROM installed_kegs WHERE name = ?", name)
	keg, err := scanKeg(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &zerrors.DatabaseError{Op: "get keg", Err: err}
	}
	return keg, nil
}

// InstalledVersion implements planner.InstalledChecker.
func (d *DB) InstalledVersion(name string) (string, bool, error) {
	keg, err := d.GetKeg(name)
	if err != nil {
		return "", false, err
	}
	if keg == nil {
		return "", false, nil
	}
	return keg.Version, true, nil
}

// ListKegs returns all installed kegs ordered by name.
func (d *DB) ListKegs() ([]*Keg, error) {
	return d.listKegsWhere("1=1")
}

// ListPinned returns pinned kegs.
func (d *DB) ListPinned() ([]*Keg, error) {
	return d.listKegsWhere("pinned = 1")
}

// ListDependencies returns kegs installed only as dependencies.
func (d *DB) ListDependencies() ([]*Keg, error) {
	return d.listKegsWhere("explicit = 0")
}

func (d *DB) listKegsWhere(where string) ([]*Keg, error) {
	rows, err := d.db.Query("SELECT " + kegColumns + " FROM installed_kegs WHERE " + where + " ORDER BY name")
	if err != nil {
		return nil, &zerrors.DatabaseError{Op: "list kegs", Err: err}
	}
	defer rows.Close()

	var kegs []*Keg
	for rows.Next() {
		keg, err := scanKeg(rows)
		if err != nil {
			return nil, &zerrors.DatabaseError{Op: "scan keg", Err: err}
		}
		kegs = append(kegs, keg)
	}
	if err := rows.Err(); err != nil {
		return nil, &zerrors.DatabaseError{Op: "list kegs", Err: err}
	}
	return kegs, nil
}

// InstallKeg records a keg and its linked files in one transaction,
// adjusting store refcounts. Replacing an existing keg transfers the
// reference from the old store key to the new one.
func (d *DB) InstallKeg(keg *Keg, files []LinkedFile) error {
	tx, err := d.db.Begin()
	if err != nil {
		return &zerrors.DatabaseError{Op: "begin install", Err: err}
	}
	defer tx.Rollback()

	var oldStoreKey string
	var oldVersion string
	err = tx.QueryRow("SELECT store_key, version FROM installed_kegs WHERE name = ?", keg.Name).
		Scan(&oldStoreKey, &oldVersion)
	replacing := err == nil
	if err != nil && err != sql.ErrNoRows {
		return &zerrors.DatabaseError{Op: "install keg", Err: err}
	}

	options := keg.Options
	if options == nil {
		options = map[string]string{}
	}
	optionsJSON, err := json.Marshal(options)
	if err != nil {
		return &zerrors.DatabaseError{Op: "install keg", Err: err}
	}

	_, err = tx.Exec(`
		INSERT OR REPLACE INTO installed_kegs
		(name, version, store_key, installed_at, explicit, pinned, options)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		keg.Name, keg.Version, keg.StoreKey,
		keg.InstalledAt.UTC().Format(time.RFC3339),
		keg.Explicit, keg.Pinned, string(optionsJSON),
	)
	if err != nil {
		return &zerrors.DatabaseError{Op: "install keg", Err: err}
	}

	if replacing {
		if _, err := tx.Exec("DELETE FROM keg_files WHERE name = ? AND version = ?", keg.Name, oldVersion); err != nil {
			return &zerrors.DatabaseError{Op: "install keg", Err: err}
		}
		if oldStoreKey != keg.StoreKey {
			if err := decrementRef(tx, oldStoreKey); err != nil {
				return err
			}
			if err := incrementRef(tx, keg.StoreKey); err != nil {
				return err
			}
		}
	} else {
		if err := incrementRef(tx, keg.StoreKey); err != nil {
			return err
		}
	}

	for _, f := range files {
		_, err := tx.Exec(`
			INSERT OR REPLACE INTO keg_files (name, version, link_path, target_path)
			VALUES (?, ?, ?, ?)`,
			keg.Name, keg.Version, f.LinkPath, f.TargetPath,
		)
		if err != nil {
			return &zerrors.DatabaseError{Op: "record linked file", Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &zerrors.DatabaseError{Op: "commit install", Err: err}
	}
	return nil
}

// RemoveKeg deletes the keg row, its linked-file records, and one store
// reference, all in one transaction.
func (d *DB) RemoveKeg(name string) error {
	tx, err := d.db.Begin()
	if err != nil {
		return &zerrors.DatabaseError{Op: "begin uninstall", Err: err}
	}
	defer tx.Rollback()

	var storeKey, version string
	err = tx.QueryRow("SELECT store_key, version FROM installed_kegs WHERE name = ?", name).
		Scan(&storeKey, &version)
	if err == sql.ErrNoRows {
		return &zerrors.NotInstalledError{Name: name}
	}
	if err != nil {
		return &zerrors.DatabaseError{Op: "uninstall keg", Err: err}
	}

	if _, err := tx.Exec("DELETE FROM installed_kegs WHERE name = ?", name); err != nil {
		return &zerrors.DatabaseError{Op: "uninstall keg", Err: err}
	}
	if _, err := tx.Exec("DELETE FROM keg_files WHERE name = ? AND version = ?", name, version); err != nil {
		return &zerrors.DatabaseError{Op: "uninstall keg", Err: err}
	}
	if err := decrementRef(tx, storeKey); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return &zerrors.DatabaseError{Op: "commit uninstall", Err: err}
	}
	return nil
}

func incrementRef(tx *sql.Tx, storeKey string) error {
	_, err := tx.Exec(`
		INSERT INTO store_refs (store_key, ref_count) VALUES (?, 1)
		ON CONFLICT(store_key) DO UPDATE SET ref_count = ref_count + 1`,
		storeKey,
	)
	if err != nil {
		return &zerrors.DatabaseError{Op: "increment refcount", Err: err}
	}
	return nil
}

func decrementRef(tx *sql.Tx, storeKey string) error {
	_, err := tx.Exec(`
		UPDATE store_refs SET ref_count = ref_count - 1
		WHERE store_key = ? AND ref_count > 0`,
		storeKey,
	)
	if err != nil {
		return &zerrors.DatabaseError{Op: "decrement refcount", Err: err}
	}
	return nil
}

// StoreRefCount returns the reference count for storeKey (zero when the
// key is unknown).
func (d *DB) StoreRefCount(storeKey string) (int, error) {
	var count int
	err := d.db.QueryRow("SELECT ref_count FROM store_refs WHERE store_key = ?", storeKey).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, &zerrors.DatabaseError{Op: "refcount", Err: err}
	}
	return count, nil
}

// UnreferencedStoreKeys returns store keys whose refcount reached zero,
// the GC candidates.
func (d *DB) UnreferencedStoreKeys() ([]string, error) {
	rows, err := d.db.Query("SELECT store_key FROM store_refs WHERE ref_count = 0 ORDER BY store_key")
	if err != nil {
		return nil, &zerrors.DatabaseError{Op: "unreferenced keys", Err: err}
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, &zerrors.DatabaseError{Op: "unreferenced keys", Err: err}
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// ForgetStoreKey removes the refcount row after GC deleted the entry.
func (d *DB) ForgetStoreKey(storeKey string) error {
	_, err := d.db.Exec("DELETE FROM store_refs WHERE store_key = ? AND ref_count = 0", storeKey)
	if err != nil {
		return &zerrors.DatabaseError{Op: "forget store key", Err: err}
	}
	return nil
}

// LinkedFiles returns the recorded prefix links for name.
func (d *DB) LinkedFiles(name string) ([]LinkedFile, error) {
	rows, err := d.db.Query(
		"SELECT link_path, target_path FROM keg_files WHERE name = ? ORDER BY link_path", name)
	if err != nil {
		return nil, &zerrors.DatabaseError{Op: "linked files", Err: err}
	}
	defer rows.Close()

	var files []LinkedFile
	for rows.Next() {
		var f LinkedFile
		if err := rows.Scan(&f.LinkPath, &f.TargetPath); err != nil {
			return nil, &zerrors.DatabaseError{Op: "linked files", Err: err}
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// ReplaceLinkedFiles rewrites the keg_files rows for (name, version), used
// by explicit link/unlink operations outside an install.
func (d *DB) ReplaceLinkedFiles(name, version string, files []LinkedFile) error {
	tx, err := d.db.Begin()
	if err != nil {
		return &zerrors.DatabaseError{Op: "begin relink", Err: err}
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM keg_files WHERE name = ?", name); err != nil {
		return &zerrors.DatabaseError{Op: "relink", Err: err}
	}
	for _, f := range files {
		_, err := tx.Exec(`
			INSERT INTO keg_files (name, version, link_path, target_path)
			VALUES (?, ?, ?, ?)`,
			name, version, f.LinkPath, f.TargetPath,
		)
		if err != nil {
			return &zerrors.DatabaseError{Op: "relink", Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &zerrors.DatabaseError{Op: "commit relink", Err: err}
	}
	return nil
}

// LinkPathOwner returns which keg owns a prefix link path, for conflict
// diagnostics. Empty when unowned.
func (d *DB) LinkPathOwner(linkPath string) (string, error) {
	var name string
	err := d.db.QueryRow("SELECT name FROM keg_files WHERE link_path = ?", linkPath).Scan(&name)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", &zerrors.DatabaseError{Op: "link owner", Err: err}
	}
	return name, nil
}

// SetPinned toggles the pin flag. Reports whether a row changed.
func (d *DB) SetPinned(name string, pinned bool) (bool, error) {
	res, err := d.db.Exec("UPDATE installed_kegs SET pinned = ? WHERE name = ?", pinned, name)
	if err != nil {
		return false, &zerrors.DatabaseError{Op: "pin", Err: err}
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// SetExplicit toggles the explicit flag. Reports whether a row changed.
func (d *DB) SetExplicit(name string, explicit bool) (bool, error) {
	res, err := d.db.Exec("UPDATE installed_kegs SET explicit = ? WHERE name = ?", explicit, name)
	if err != nil {
		return false, &zerrors.DatabaseError{Op: "mark explicit", Err: err}
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// AddTap registers a tap.
func (d *DB) AddTap(name, url string) error {
	_, err := d.db.Exec(`
		INSERT OR REPLACE INTO taps (name, url, updated_at) VALUES (?, ?, ?)`,
		name, url, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return &zerrors.DatabaseError{Op: "add tap", Err: err}
	}
	return nil
}

// RemoveTap deletes a tap registration. Reports whether it existed.
func (d *DB) RemoveTap(name string) (bool, error) {
	res, err := d.db.Exec("DELETE FROM taps WHERE name = ?", name)
	if err != nil {
		return false, &zerrors.DatabaseError{Op: "remove tap", Err: err}
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ListTaps returns registered taps ordered by name.
func (d *DB) ListTaps() ([]Tap, error) {
	rows, err := d.db.Query("SELECT name, url, updated_at FROM taps ORDER BY name")
	if err != nil {
		return nil, &zerrors.DatabaseError{Op: "list taps", Err: err}
	}
	defer rows.Close()

	var taps []Tap
	for rows.Next() {
		var tap Tap
		var updatedAt string
		if err := rows.Scan(&tap.Name, &tap.URL, &updatedAt); err != nil {
			return nil, &zerrors.DatabaseError{Op: "list taps", Err: err}
		}
		tap.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		taps = append(taps, tap)
	}
	return taps, rows.Err()
}
