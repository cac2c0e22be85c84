package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"

	"github.com/blackwell-systems/zerobrew/internal/formula"
	"github.com/blackwell-systems/zerobrew/internal/zerrors"
)

// tapCache serves formulas from per-tap cached JSON directories laid out as
// <taps>/<user>/<repo>/<formula>.json. Parsed formulas are memoized; an
// fsnotify watcher on the taps tree drops memoized entries whose backing
// file changes, so a tap refresh takes effect without restarting.
type tapCache struct {
	dir     string
	watcher *fsnotify.Watcher

	mu   sync.Mutex
	memo map[string]*formula.Formula // keyed by user/repo/pkg
}

func newTapCache(dir string) (*tapCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create taps directory: %w", err)
	}

	t := &tapCache{dir: dir, memo: make(map[string]*formula.Formula)}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		// Memoization still works, it just never invalidates; refreshing a
		// tap then requires a new process.
		log.Warn().Err(err).Msg("tap cache watcher unavailable")
		return t, nil
	}
	t.watcher = watcher
	if err := watcher.Add(dir); err != nil {
		log.Warn().Err(err).Str("dir", dir).Msg("failed to watch taps directory")
	}
	go t.watch()

	return t, nil
}

func (t *tapCache) watch() {
	for {
		select {
		case event, ok := <-t.watcher.Events:
			if !ok {
				return
			}
			t.invalidate(event.Name)
			// New tap directories need their own watches.
			if event.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = t.watcher.Add(event.Name)
				}
			}
		case err, ok := <-t.watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("tap watcher error")
		}
	}
}

// invalidate drops the memo entry backed by path.
func (t *tapCache) invalidate(path string) {
	rel, err := filepath.Rel(t.dir, path)
	if err != nil {
		return
	}
	key := strings.TrimSuffix(filepath.ToSlash(rel), ".json")

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.memo[key]; ok {
		delete(t.memo, key)
		log.Debug().Str("formula", key).Msg("invalidated tap formula cache")
	}
}

// formula loads user/repo/pkg from the tap's cached formula dir.
func (t *tapCache) formula(user, repo, pkg string) (*formula.Formula, error) {
	key := user + "/" + repo + "/" + pkg

	t.mu.Lock()
	if f, ok := t.memo[key]; ok {
		t.mu.Unlock()
		return f, nil
	}
	t.mu.Unlock()

	path := filepath.Join(t.dir, user, repo, pkg+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &zerrors.NotFoundError{Name: key}
		}
		return nil, fmt.Errorf("failed to read tap formula %q: %w", key, err)
	}

	f, err := formula.Parse(pkg, data)
	if err != nil {
		return nil, &zerrors.MalformedFormulaError{Name: key, Err: err}
	}

	t.mu.Lock()
	t.memo[key] = f
	t.mu.Unlock()

	// Watch the tap's repo directory so later edits invalidate the memo.
	if t.watcher != nil {
		_ = t.watcher.Add(filepath.Dir(path))
	}

	return f, nil
}

func (t *tapCache) close() error {
	if t.watcher == nil {
		return nil
	}
	return t.watcher.Close()
}
