// Package fetch downloads bottle tarballs into a SHA-256-keyed blob cache.
//
// Each task opens up to a few racing connections to the same URL, staggered
// so a healthy first connection wins without wasting identical bytes down
// parallel pipes. Bytes stream to a .partial file and are hashed
// incrementally; only a verified blob is renamed into its final name.
package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/blackwell-systems/zerobrew/internal/zerrors"
)

const (
	// DefaultConcurrency bounds simultaneous downloads across all tasks.
	DefaultConcurrency = 48
	// defaultRaces is the number of racing connections per task.
	defaultRaces = 3
	// defaultStagger delays each additional racing connection.
	defaultStagger = 200 * time.Millisecond
	// defaultAttempts covers transport errors and hash mismatches.
	defaultAttempts = 3
)

// Task is one download request. Sha256 is the expected digest of the bytes
// as served; it doubles as the cache key and the store key.
type Task struct {
	Name   string
	URL    string
	Sha256 string
}

// Result reports one finished task. Results arrive in completion order, not
// submission order.
type Result struct {
	Task Task
	// Path is the verified blob location on success.
	Path string
	Err  error
	// CacheHit is true when no network I/O happened.
	CacheHit bool
}

// Downloader fetches bottles into a BlobCache.
type Downloader struct {
	cache       *BlobCache
	client      *http.Client
	concurrency int64
	races       int
	stagger     time.Duration
	attempts    int
}

// DownloaderOption tunes a Downloader.
type DownloaderOption func(*Downloader)

// WithConcurrency bounds global parallelism.
func WithConcurrency(n int) DownloaderOption {
	return func(d *Downloader) { d.concurrency = int64(n) }
}

// WithRaces sets racing connections per task.
func WithRaces(n int) DownloaderOption {
	return func(d *Downloader) { d.races = n }
}

// WithStagger sets the delay between racing connections.
func WithStagger(delay time.Duration) DownloaderOption {
	return func(d *Downloader) { d.stagger = delay }
}

// WithAttempts sets the retry budget per task.
func WithAttempts(n int) DownloaderOption {
	return func(d *Downloader) { d.attempts = n }
}

// WithClient swaps the http.Client.
func WithClient(c *http.Client) DownloaderOption {
	return func(d *Downloader) { d.client = c }
}

// NewDownloader creates a Downloader writing into cache.
func NewDownloader(cache *BlobCache, opts ...DownloaderOption) *Downloader {
	d := &Downloader{
		cache: cache,
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConnsPerHost:   20,
				ResponseHeaderTimeout: 30 * time.Second,
				IdleConnTimeout:       90 * time.Second,
			},
		},
		concurrency: DefaultConcurrency,
		races:       defaultRaces,
		stagger:     defaultStagger,
		attempts:    defaultAttempts,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Cache exposes the underlying blob cache.
func (d *Downloader) Cache() *BlobCache { return d.cache }

// Fetch downloads tasks concurrently and streams results as they complete.
// The channel closes once every task has reported. Per-task failures do not
// abort siblings; cancel ctx to stop everything.
func (d *Downloader) Fetch(ctx context.Context, tasks []Task) <-chan Result {
	results := make(chan Result)
	sem := semaphore.NewWeighted(d.concurrency)

	go func() {
		defer close(results)
		done := make(chan Result)
		for _, task := range tasks {
			task := task
			go func() {
				if err := sem.Acquire(ctx, 1); err != nil {
					done <- Result{Task: task, Err: err}
					return
				}
				defer sem.Release(1)
				path, hit, err := d.fetchOne(ctx, task)
				done <- Result{Task: task, Path: path, Err: err, CacheHit: hit}
			}()
		}
		for range tasks {
			results <- <-done
		}
	}()

	return results
}

// FetchOne downloads a single task, returning the verified blob path.
func (d *Downloader) FetchOne(ctx context.Context, task Task) (string, error) {
	path, _, err := d.fetchOne(ctx, task)
	return path, err
}

func (d *Downloader) fetchOne(ctx context.Context, task Task) (path string, cacheHit bool, err error) {
	// Cache hit short-circuit: an existing blob that hashes correctly needs
	// no network I/O at all.
	if existing, ok := d.cache.Find(task.Sha256); ok {
		match, verr := Verify(existing, task.Sha256)
		if verr == nil && match {
			return existing, true, nil
		}
		log.Warn().Str("blob", existing).Msg("cached blob failed verification; re-downloading")
		_ = os.Remove(existing)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(
		backoff.NewExponentialBackOff(), uint64(d.attempts-1)), ctx)

	err = backoff.Retry(func() error {
		attemptPath, attemptErr := d.attempt(ctx, task)
		if attemptErr != nil {
			var quota *zerrors.QuotaExceededError
			if errors.As(attemptErr, &quota) {
				return backoff.Permanent(attemptErr)
			}
			return attemptErr
		}
		path = attemptPath
		return nil
	}, policy)
	return path, false, err
}

// attempt performs one full download: race connections, stream, hash,
// verify, and atomically publish.
func (d *Downloader) attempt(ctx context.Context, task Task) (string, error) {
	resp, err := d.race(ctx, task.URL)
	if err != nil {
		return "", &zerrors.NetworkError{Op: "download " + task.Name, Err: err}
	}
	defer resp.Body.Close()

	partial := d.cache.partialPath(task.Sha256)
	file, err := os.Create(partial)
	if err != nil {
		return "", fmt.Errorf("failed to create partial file: %w", err)
	}

	hasher := sha256.New()
	_, err = io.Copy(io.MultiWriter(file, hasher), resp.Body)
	if err != nil {
		file.Close()
		os.Remove(partial)
		if errors.Is(err, syscall.ENOSPC) {
			return "", &zerrors.QuotaExceededError{Path: partial, Err: err}
		}
		return "", &zerrors.NetworkError{Op: "download " + task.Name, Err: err}
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(partial)
		return "", fmt.Errorf("failed to sync blob: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(partial)
		return "", fmt.Errorf("failed to close blob: %w", err)
	}

	actual := hex.EncodeToString(hasher.Sum(nil))
	if actual != strings.ToLower(task.Sha256) {
		os.Remove(partial)
		return "", &zerrors.HashMismatchError{Name: task.Name, Expected: task.Sha256, Actual: actual}
	}

	final := d.cache.Path(task.Sha256, extensionFor(task.URL))
	if err := os.Rename(partial, final); err != nil {
		// A racing process may have published the same verified blob.
		if _, statErr := os.Stat(final); statErr == nil {
			os.Remove(partial)
			return final, nil
		}
		os.Remove(partial)
		return "", fmt.Errorf("failed to publish blob: %w", err)
	}
	return final, nil
}

// race opens up to d.races staggered connections to url and returns the
// first response whose body is ready. The losers are cancelled individually
// so the winner's body read is unaffected.
func (d *Downloader) race(ctx context.Context, url string) (*http.Response, error) {
	type outcome struct {
		index int
		resp  *http.Response
		err   error
	}
	outcomes := make(chan outcome, d.races)

	var cancels []context.CancelFunc
	launch := func() {
		index := len(cancels)
		connCtx, connCancel := context.WithCancel(ctx)
		cancels = append(cancels, connCancel)
		go func() {
			req, err := http.NewRequestWithContext(connCtx, http.MethodGet, url, nil)
			if err != nil {
				outcomes <- outcome{index: index, err: err}
				return
			}
			req.Header.Set("User-Agent", userAgent)
			resp, err := d.client.Do(req)
			if err != nil {
				outcomes <- outcome{index: index, err: err}
				return
			}
			if resp.StatusCode != http.StatusOK {
				resp.Body.Close()
				outcomes <- outcome{index: index, err: fmt.Errorf("HTTP %d", resp.StatusCode)}
				return
			}
			outcomes <- outcome{index: index, resp: resp}
		}()
	}

	launch()
	ticker := time.NewTicker(d.stagger)
	defer ticker.Stop()

	var lastErr error
	finished := 0
	for {
		select {
		case <-ctx.Done():
			for _, cancel := range cancels {
				cancel()
			}
			return nil, ctx.Err()
		case <-ticker.C:
			if len(cancels) < d.races {
				launch()
			}
		case out := <-outcomes:
			finished++
			if out.resp != nil {
				for i, cancel := range cancels {
					if i != out.index {
						cancel()
					}
				}
				// Drain the cancelled racers in the background; any body
				// that slipped through before cancellation gets closed.
				remaining := len(cancels) - finished
				go func() {
					for i := 0; i < remaining; i++ {
						if o := <-outcomes; o.resp != nil {
							o.resp.Body.Close()
						}
					}
				}()
				return out.resp, nil
			}
			lastErr = out.err
			if finished == len(cancels) {
				if len(cancels) == d.races {
					return nil, lastErr
				}
				// All launched racers failed; start the next immediately.
				launch()
			}
		}
	}
}

const userAgent = "zerobrew/0.1"

// extensionFor guesses the tarball compression from the URL; ghcr blob URLs
// carry no extension and default to gz.
func extensionFor(url string) string {
	switch {
	case strings.HasSuffix(url, ".tar.xz"):
		return "xz"
	case strings.HasSuffix(url, ".tar.zst"):
		return "zst"
	default:
		return "gz"
	}
}
