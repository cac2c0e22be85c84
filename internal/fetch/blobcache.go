package fetch

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// knownExtensions lists the bottle tarball compressions in preference
// order when probing for an existing blob.
var knownExtensions = []string{"gz", "xz", "zst"}

// BlobCache holds verified bottle tarballs named <sha256>.tar.<ext>.
// A file with the final name always hashes to its stem; in-progress
// downloads carry a .partial suffix and are renamed into place.
type BlobCache struct {
	dir string
}

// NewBlobCache creates the cache directory if needed.
func NewBlobCache(dir string) (*BlobCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create blob cache directory: %w", err)
	}
	return &BlobCache{dir: dir}, nil
}

// Path returns the final blob path for sha256 with the given extension.
func (c *BlobCache) Path(sha256Hex, ext string) string {
	return filepath.Join(c.dir, sha256Hex+".tar."+ext)
}

// partialPath is the in-progress download path for sha256.
func (c *BlobCache) partialPath(sha256Hex string) string {
	return filepath.Join(c.dir, sha256Hex+".partial")
}

// Find locates an existing blob for sha256, any extension.
func (c *BlobCache) Find(sha256Hex string) (string, bool) {
	for _, ext := range knownExtensions {
		path := c.Path(sha256Hex, ext)
		if _, err := os.Stat(path); err == nil {
			return path, true
		}
	}
	return "", false
}

// Verify re-hashes the blob at path and reports whether it matches want.
func Verify(path, want string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return false, err
	}
	return hex.EncodeToString(h.Sum(nil)) == strings.ToLower(want), nil
}

// Remove deletes the blob for sha256 if present. Used when extraction
// discovers a corrupted tarball that nonetheless hashed correctly.
func (c *BlobCache) Remove(sha256Hex string) bool {
	if path, ok := c.Find(sha256Hex); ok {
		return os.Remove(path) == nil
	}
	return false
}

// List returns (sha256, mtime) for every cached blob.
func (c *BlobCache) List() ([]BlobInfo, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, err
	}
	var blobs []BlobInfo
	for _, entry := range entries {
		name := entry.Name()
		idx := strings.Index(name, ".tar.")
		if entry.IsDir() || idx < 0 {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		blobs = append(blobs, BlobInfo{
			Sha256:  name[:idx],
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	return blobs, nil
}

// BlobInfo describes one cached blob.
type BlobInfo struct {
	Sha256  string
	Size    int64
	ModTime time.Time
}

// RemoveOlderThan prunes blobs last touched before the cutoff, skipping any
// whose sha256 is in keep. Returns removed keys and bytes freed.
func (c *BlobCache) RemoveOlderThan(maxAge time.Duration, keep map[string]bool) ([]string, int64, error) {
	blobs, err := c.List()
	if err != nil {
		return nil, 0, err
	}
	cutoff := time.Now().Add(-maxAge)

	var removed []string
	var freed int64
	for _, blob := range blobs {
		if keep[blob.Sha256] || blob.ModTime.After(cutoff) {
			continue
		}
		if c.Remove(blob.Sha256) {
			removed = append(removed, blob.Sha256)
			freed += blob.Size
		}
	}
	return removed, freed, nil
}

// CleanupPartials removes stale .partial files older than the grace period.
func (c *BlobCache) CleanupPartials(grace time.Duration) (int, int64, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return 0, 0, err
	}

	count := 0
	var freed int64
	cutoff := time.Now().Add(-grace)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".partial") {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if os.Remove(filepath.Join(c.dir, entry.Name())) == nil {
			count++
			freed += info.Size()
		}
	}
	return count, freed, nil
}
