package install

import (
	"os"
	"time"

	"github.com/rs/zerolog/log"
)

// debrisGrace shields very recent temp files and partial downloads, which
// may belong to a concurrent install.
const debrisGrace = time.Hour

// GC removes store entries whose refcount reached zero. The refcount is
// re-read under the per-key store lock before each removal.
func (in *Installer) GC() ([]string, error) {
	keys, err := in.db.UnreferencedStoreKeys()
	if err != nil {
		return nil, err
	}

	var removed []string
	for _, key := range keys {
		// Re-check under the store lock: an install may have claimed the
		// key since the scan.
		lock, err := in.locks.Acquire("store:" + key)
		if err != nil {
			return removed, err
		}
		count, err := in.db.StoreRefCount(key)
		if err == nil && count == 0 {
			err = os.RemoveAll(in.store.EntryPath(key))
		}
		lock.Release()
		if err != nil {
			return removed, err
		}
		if count > 0 {
			continue
		}
		if err := in.db.ForgetStoreKey(key); err != nil {
			return removed, err
		}
		removed = append(removed, key)
	}
	return removed, nil
}

// CleanupResult reports what Cleanup reclaimed.
type CleanupResult struct {
	StoreEntriesRemoved int
	BlobsRemoved        int
	BytesFreed          int64
	PartialsRemoved     int
	TempDirsRemoved     int
	StaleLocksRemoved   int
	HTTPEntriesRemoved  int
}

// Cleanup garbage-collects the store, prunes blobs not referenced by any
// installed keg and older than pruneDays, and clears partial downloads,
// interrupted extractions, stale locks, and aged HTTP cache entries.
func (in *Installer) Cleanup(pruneDays int) (*CleanupResult, error) {
	result := &CleanupResult{}

	removed, err := in.GC()
	if err != nil {
		return result, err
	}
	result.StoreEntriesRemoved = len(removed)

	installed, err := in.db.ListKegs()
	if err != nil {
		return result, err
	}
	inUse := make(map[string]bool, len(installed))
	for _, keg := range installed {
		inUse[keg.StoreKey] = true
	}

	if pruneDays > 0 {
		maxAge := time.Duration(pruneDays) * 24 * time.Hour
		blobs, freed, err := in.dl.Cache().RemoveOlderThan(maxAge, inUse)
		if err != nil {
			return result, err
		}
		result.BlobsRemoved = len(blobs)
		result.BytesFreed += freed

		httpRemoved, httpFreed, err := in.catalog.CleanupCache(maxAge)
		if err != nil {
			log.Warn().Err(err).Msg("http cache cleanup failed")
		} else {
			result.HTTPEntriesRemoved = httpRemoved
			result.BytesFreed += httpFreed
		}
	}

	partials, partialBytes, err := in.dl.Cache().CleanupPartials(debrisGrace)
	if err != nil {
		return result, err
	}
	result.PartialsRemoved = partials
	result.BytesFreed += partialBytes

	tempDirs, err := in.store.CleanupTemp(debrisGrace)
	if err != nil {
		return result, err
	}
	result.TempDirsRemoved = tempDirs

	staleLocks, err := in.locks.CleanupStale()
	if err != nil {
		return result, err
	}
	result.StaleLocksRemoved = staleLocks

	return result, nil
}
