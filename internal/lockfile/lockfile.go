// Package lockfile provides per-key advisory file locks backed by flock.
//
// Lock files live in a single directory and are named by a URL-safe hash of
// the key, so keys like "store:<sha256>" and "link:prefix" never collide
// with filesystem-unsafe characters. All acquisitions in a process route
// through one Registry, which serializes same-key acquisitions in-process;
// the flock itself guards against other processes. The OS releases the flock
// when the descriptor closes, including on crash.
package lockfile

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/blackwell-systems/zerobrew/internal/zerrors"
)

// retryInterval is how often a timed acquisition polls a contended flock.
const retryInterval = 25 * time.Millisecond

// Registry hands out per-key locks. A single Registry per process keeps
// acquisitions reentrant-safe: two goroutines asking for the same key queue
// on an in-process mutex instead of deadlocking on the flock.
type Registry struct {
	dir string

	mu    sync.Mutex
	inUse map[string]*sync.Mutex
}

// NewRegistry creates a registry storing lock files under dir.
func NewRegistry(dir string) (*Registry, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create locks directory: %w", err)
	}
	return &Registry{dir: dir, inUse: make(map[string]*sync.Mutex)}, nil
}

// Lock is a held advisory lock. Release it exactly once.
type Lock struct {
	key  string
	file *os.File
	gate *sync.Mutex
}

// keyPath hashes the key into a URL-safe lock file name.
func (r *Registry) keyPath(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(r.dir, hex.EncodeToString(sum[:16])+".lock")
}

func (r *Registry) gateFor(key string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	gate, ok := r.inUse[key]
	if !ok {
		gate = &sync.Mutex{}
		r.inUse[key] = gate
	}
	return gate
}

// Acquire blocks until the exclusive lock for key is held.
func (r *Registry) Acquire(key string) (*Lock, error) {
	return r.acquire(key, 0)
}

// AcquireTimeout is Acquire with a deadline. It fails with LockTimeoutError
// when the lock stays contended past the timeout.
func (r *Registry) AcquireTimeout(key string, timeout time.Duration) (*Lock, error) {
	return r.acquire(key, timeout)
}

func (r *Registry) acquire(key string, timeout time.Duration) (*Lock, error) {
	gate := r.gateFor(key)
	if timeout > 0 {
		if !lockWithTimeout(gate, timeout) {
			return nil, &zerrors.LockTimeoutError{Key: key}
		}
	} else {
		gate.Lock()
	}

	file, err := os.OpenFile(r.keyPath(key), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		gate.Unlock()
		return nil, fmt.Errorf("failed to create lock file for %q: %w", key, err)
	}

	if timeout > 0 {
		deadline := time.Now().Add(timeout)
		for {
			err = unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB)
			if err == nil {
				break
			}
			if err != unix.EWOULDBLOCK {
				file.Close()
				gate.Unlock()
				return nil, fmt.Errorf("failed to acquire lock for %q: %w", key, err)
			}
			if time.Now().After(deadline) {
				file.Close()
				gate.Unlock()
				return nil, &zerrors.LockTimeoutError{Key: key}
			}
			time.Sleep(retryInterval)
		}
	} else {
		if err := unix.Flock(int(file.Fd()), unix.LOCK_EX); err != nil {
			file.Close()
			gate.Unlock()
			return nil, fmt.Errorf("failed to acquire lock for %q: %w", key, err)
		}
	}

	return &Lock{key: key, file: file, gate: gate}, nil
}

// Release drops the flock and the in-process gate.
func (l *Lock) Release() error {
	if l.file == nil {
		return nil
	}
	err := unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	closeErr := l.file.Close()
	l.file = nil
	l.gate.Unlock()
	if err != nil {
		return fmt.Errorf("failed to release lock for %q: %w", l.key, err)
	}
	return closeErr
}

// lockWithTimeout tries to take mu within d without busy-waiting forever.
func lockWithTimeout(mu *sync.Mutex, d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		mu.Lock()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(d):
		// The goroutine will eventually take the mutex; hand it straight
		// back so the map entry is never left locked by a ghost holder.
		go func() {
			<-done
			mu.Unlock()
		}()
		return false
	}
}

// CleanupStale removes lock files that no live process holds. Returns the
// number of files removed.
func (r *Registry) CleanupStale() (int, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read locks directory: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lock" {
			continue
		}
		path := filepath.Join(r.dir, entry.Name())
		file, err := os.OpenFile(path, os.O_RDWR, 0o644)
		if err != nil {
			continue
		}
		// A lock we can take with LOCK_NB has no holder.
		if unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB) == nil {
			if os.Remove(path) == nil {
				removed++
			}
			_ = unix.Flock(int(file.Fd()), unix.LOCK_UN)
		}
		file.Close()
	}
	return removed, nil
}
