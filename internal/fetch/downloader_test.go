package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/blackwell-systems/zerobrew/internal/zerrors"
)

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func newTestDownloader(t *testing.T, opts ...DownloaderOption) *Downloader {
	t.Helper()
	cache, err := NewBlobCache(t.TempDir())
	if err != nil {
		t.Fatalf("NewBlobCache() failed: %v", err)
	}
	base := []DownloaderOption{
		WithRaces(1),
		WithStagger(10 * time.Millisecond),
	}
	return NewDownloader(cache, append(base, opts...)...)
}

func TestFetchOne_DownloadsAndVerifies(t *testing.T) {
	body := []byte("bottle bytes")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(body)
	}))
	defer server.Close()

	d := newTestDownloader(t)
	path, err := d.FetchOne(context.Background(), Task{
		Name:   "foo",
		URL:    server.URL + "/foo.tar.gz",
		Sha256: sha256Hex(body),
	})
	if err != nil {
		t.Fatalf("FetchOne() failed: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read blob: %v", err)
	}
	if string(got) != string(body) {
		t.Errorf("blob content = %q; want %q", got, body)
	}
	if !strings.HasSuffix(path, sha256Hex(body)+".tar.gz") {
		t.Errorf("blob path %q not keyed by sha256", path)
	}
}

func TestFetchOne_CacheHitSkipsNetwork(t *testing.T) {
	body := []byte("cached bottle")
	sha := sha256Hex(body)

	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.Write(body)
	}))
	defer server.Close()

	d := newTestDownloader(t)

	// Seed the cache directly.
	if err := os.WriteFile(d.Cache().Path(sha, "gz"), body, 0o644); err != nil {
		t.Fatalf("failed to seed cache: %v", err)
	}

	path, err := d.FetchOne(context.Background(), Task{Name: "foo", URL: server.URL, Sha256: sha})
	if err != nil {
		t.Fatalf("FetchOne() failed: %v", err)
	}
	if path != d.Cache().Path(sha, "gz") {
		t.Errorf("path = %q; want cached blob path", path)
	}
	if got := atomic.LoadInt32(&requests); got != 0 {
		t.Errorf("server saw %d requests; want 0 on cache hit", got)
	}
}

func TestFetchOne_CorruptCacheEntryIsRedownloaded(t *testing.T) {
	body := []byte("good bottle")
	sha := sha256Hex(body)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(body)
	}))
	defer server.Close()

	d := newTestDownloader(t)
	if err := os.WriteFile(d.Cache().Path(sha, "gz"), []byte("corrupted"), 0o644); err != nil {
		t.Fatalf("failed to seed corrupt cache: %v", err)
	}

	path, err := d.FetchOne(context.Background(), Task{Name: "foo", URL: server.URL + "/foo.tar.gz", Sha256: sha})
	if err != nil {
		t.Fatalf("FetchOne() failed: %v", err)
	}
	ok, err := Verify(path, sha)
	if err != nil || !ok {
		t.Errorf("re-downloaded blob failed verification: ok=%v err=%v", ok, err)
	}
}

func TestFetchOne_HashMismatchRetriesThenFails(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.Write([]byte("not the declared bytes"))
	}))
	defer server.Close()

	d := newTestDownloader(t, WithAttempts(3))
	declared := strings.Repeat("ab", 32)

	_, err := d.FetchOne(context.Background(), Task{Name: "foo", URL: server.URL + "/foo.tar.gz", Sha256: declared})
	if err == nil {
		t.Fatal("FetchOne() should fail on persistent hash mismatch")
	}
	var mismatch *zerrors.HashMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("error = %v; want HashMismatchError", err)
	}
	if got := atomic.LoadInt32(&requests); got != 3 {
		t.Errorf("server saw %d requests; want 3 attempts", got)
	}

	// No partial file may remain in the cache.
	entries, err := os.ReadDir(d.Cache().dir)
	if err != nil {
		t.Fatalf("failed to read cache dir: %v", err)
	}
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".partial") {
			t.Errorf("stale partial file left behind: %s", entry.Name())
		}
	}
}

func TestFetch_StreamsCompletionsForAllTasks(t *testing.T) {
	bodies := map[string][]byte{
		"/a": []byte("bottle a"),
		"/b": []byte("bottle b"),
		"/c": []byte("bottle c"),
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/b" {
			time.Sleep(30 * time.Millisecond)
		}
		w.Write(bodies[r.URL.Path])
	}))
	defer server.Close()

	d := newTestDownloader(t)

	var tasks []Task
	for path, body := range bodies {
		tasks = append(tasks, Task{Name: path, URL: server.URL + path, Sha256: sha256Hex(body)})
	}

	seen := 0
	for res := range d.Fetch(context.Background(), tasks) {
		if res.Err != nil {
			t.Errorf("task %s failed: %v", res.Task.Name, res.Err)
		}
		seen++
	}
	if seen != len(tasks) {
		t.Errorf("received %d results; want %d", seen, len(tasks))
	}
}

func TestFetch_OneFailureDoesNotAbortSiblings(t *testing.T) {
	good := []byte("good bottle")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/bad" {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		w.Write(good)
	}))
	defer server.Close()

	d := newTestDownloader(t, WithAttempts(1))
	tasks := []Task{
		{Name: "good", URL: server.URL + "/good", Sha256: sha256Hex(good)},
		{Name: "bad", URL: server.URL + "/bad", Sha256: strings.Repeat("00", 32)},
	}

	var okCount, errCount int
	for res := range d.Fetch(context.Background(), tasks) {
		if res.Err != nil {
			errCount++
		} else {
			okCount++
		}
	}
	if okCount != 1 || errCount != 1 {
		t.Errorf("okCount=%d errCount=%d; want 1 and 1", okCount, errCount)
	}
}

func TestRace_SecondConnectionWinsWhenFirstStalls(t *testing.T) {
	body := []byte("raced bottle")
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&requests, 1)
		if n == 1 {
			// First connection stalls well past the stagger delay.
			time.Sleep(500 * time.Millisecond)
		}
		w.Write(body)
	}))
	defer server.Close()

	cache, err := NewBlobCache(t.TempDir())
	if err != nil {
		t.Fatalf("NewBlobCache() failed: %v", err)
	}
	d := NewDownloader(cache, WithRaces(2), WithStagger(20*time.Millisecond))

	start := time.Now()
	_, err = d.FetchOne(context.Background(), Task{Name: "foo", URL: server.URL + "/foo.tar.gz", Sha256: sha256Hex(body)})
	if err != nil {
		t.Fatalf("FetchOne() failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 400*time.Millisecond {
		t.Errorf("download took %v; the second racing connection should have won sooner", elapsed)
	}
	if got := atomic.LoadInt32(&requests); got < 2 {
		t.Errorf("server saw %d requests; want the race to open a second connection", got)
	}
}

func TestBlobCache_ExtensionFromURL(t *testing.T) {
	if got := extensionFor("https://x/foo.tar.xz"); got != "xz" {
		t.Errorf("extensionFor(xz) = %q", got)
	}
	if got := extensionFor("https://x/foo.tar.zst"); got != "zst" {
		t.Errorf("extensionFor(zst) = %q", got)
	}
	if got := extensionFor("https://ghcr.io/v2/blobs/sha256:abc"); got != "gz" {
		t.Errorf("extensionFor(no ext) = %q; want gz default", got)
	}
}

func TestBlobCache_CleanupPartials(t *testing.T) {
	cache, err := NewBlobCache(t.TempDir())
	if err != nil {
		t.Fatalf("NewBlobCache() failed: %v", err)
	}

	stale := filepath.Join(cache.dir, "deadbeef.partial")
	if err := os.WriteFile(stale, []byte("half a bottle"), 0o644); err != nil {
		t.Fatalf("failed to write partial: %v", err)
	}
	old := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatalf("failed to age partial: %v", err)
	}

	fresh := filepath.Join(cache.dir, "cafebabe.partial")
	if err := os.WriteFile(fresh, []byte("downloading"), 0o644); err != nil {
		t.Fatalf("failed to write partial: %v", err)
	}

	count, _, err := cache.CleanupPartials(time.Hour)
	if err != nil {
		t.Fatalf("CleanupPartials() failed: %v", err)
	}
	if count != 1 {
		t.Errorf("removed %d partials; want 1 (only the stale one)", count)
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Errorf("fresh partial should survive: %v", err)
	}
}
