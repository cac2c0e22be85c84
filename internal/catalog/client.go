// Package catalog fetches formula metadata from the upstream API with
// on-disk HTTP caching and in-memory coalescing of concurrent requests.
//
// Names of the shape "user/repo/pkg" resolve against the tap's cached
// formula directory before the central API.
package catalog

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/blackwell-systems/zerobrew/internal/formula"
	"github.com/blackwell-systems/zerobrew/internal/paths"
	"github.com/blackwell-systems/zerobrew/internal/zerrors"
)

// DefaultBaseURL is the central formula API.
const DefaultBaseURL = "https://formulae.brew.sh/api/formula"

const userAgent = "zerobrew/0.1"

// Client fetches and caches formula metadata.
type Client struct {
	baseURL string
	http    *http.Client
	cache   *httpCache
	taps    *tapCache
	group   singleflight.Group
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at a different API root (tests use this).
func WithBaseURL(url string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(url, "/")
	}
}

// WithHTTPClient swaps the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// New creates a catalog client rooted at p. The HTTP cache lives under
// p.HTTPCacheDir(); tap formulas are read from p.TapsDir().
func New(p paths.Paths, opts ...Option) (*Client, error) {
	cache, err := newHTTPCache(p.HTTPCacheDir())
	if err != nil {
		return nil, err
	}
	taps, err := newTapCache(p.TapsDir())
	if err != nil {
		return nil, err
	}

	c := &Client{
		baseURL: DefaultBaseURL,
		http: &http.Client{
			Timeout: 60 * time.Second,
		},
		cache: cache,
		taps:  taps,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Close releases the tap watcher.
func (c *Client) Close() error {
	return c.taps.close()
}

// Formula fetches one formula by name. Concurrent callers asking for the
// same name share a single fetch.
func (c *Client) Formula(ctx context.Context, name string) (*formula.Formula, error) {
	v, err, _ := c.group.Do(name, func() (interface{}, error) {
		return c.fetchFormula(ctx, name)
	})
	if err != nil {
		return nil, err
	}
	return v.(*formula.Formula), nil
}

func (c *Client) fetchFormula(ctx context.Context, name string) (*formula.Formula, error) {
	// Tap references short-circuit to the tap's cached formula JSON.
	if user, repo, pkg, ok := splitTapRef(name); ok {
		return c.taps.formula(user, repo, pkg)
	}

	url := fmt.Sprintf("%s/%s.json", c.baseURL, name)
	body, err := c.getCached(ctx, url, name)
	if err != nil {
		return nil, err
	}

	f, err := formula.Parse(name, body)
	if err != nil {
		return nil, &zerrors.MalformedFormulaError{Name: name, Err: err}
	}
	return f, nil
}

// getCached performs a conditional GET against the disk cache. A 304 serves
// the cached body without transferring it again.
func (c *Client) getCached(ctx context.Context, url, name string) ([]byte, error) {
	cached, haveCached := c.cache.get(url)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &zerrors.NetworkError{Op: "fetch " + name, Err: err}
	}
	req.Header.Set("User-Agent", userAgent)
	if haveCached {
		if cached.ETag != "" {
			req.Header.Set("If-None-Match", cached.ETag)
		}
		if cached.LastModified != "" {
			req.Header.Set("If-Modified-Since", cached.LastModified)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &zerrors.NetworkError{Op: "fetch " + name, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified && haveCached:
		c.cache.touch(url, cached)
		return cached.Body, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, &zerrors.NotFoundError{Name: name}
	case resp.StatusCode != http.StatusOK:
		return nil, &zerrors.NetworkError{Op: "fetch " + name, Err: fmt.Errorf("HTTP %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &zerrors.NetworkError{Op: "fetch " + name, Err: err}
	}

	entry := &cacheEntry{
		ETag:         resp.Header.Get("Etag"),
		LastModified: resp.Header.Get("Last-Modified"),
		FetchedAt:    time.Now(),
		Body:         body,
	}
	if err := c.cache.put(url, entry); err != nil {
		log.Warn().Err(err).Str("url", url).Msg("failed to cache API response")
	}

	return body, nil
}

// Index fetches the entire formula index. Install, upgrade and the
// outdated check do not use it; they fetch formulas individually.
func (c *Client) Index(ctx context.Context) ([]formula.Formula, error) {
	url := c.baseURL + ".json"
	body, err := c.getCached(ctx, url, "formula index")
	if err != nil {
		return nil, err
	}
	formulas, err := parseIndex(body)
	if err != nil {
		return nil, &zerrors.MalformedFormulaError{Name: "formula index", Err: err}
	}
	return formulas, nil
}

// CleanupCache removes HTTP cache entries older than maxAge.
func (c *Client) CleanupCache(maxAge time.Duration) (int, int64, error) {
	return c.cache.removeOlderThan(maxAge)
}

// splitTapRef recognizes "user/repo/pkg" names.
func splitTapRef(name string) (user, repo, pkg string, ok bool) {
	parts := strings.Split(name, "/")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", "", false
	}
	return parts[0], parts[1], parts[2], true
}
