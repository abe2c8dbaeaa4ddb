package mirror

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/BadgerOps/mirrorrank/internal/safety"
	"github.com/hashicorp/go-retryablehttp"
)

// DefaultStatusURL is the Arch Linux mirror status feed.
const DefaultStatusURL = "https://archlinux.org/mirrors/status/json/"

const (
	defaultCacheTTL     = 1 * time.Hour
	defaultFetchTimeout = 30 * time.Second
	defaultRetryMax     = 3
	userAgent           = "mirrorrank/1.0"
)

const maxStatusResponseBytes int64 = 16 * 1024 * 1024

// DiscoveryOptions tunes how the status feed is fetched. Zero values select
// defaults; a negative RetryMax disables retries.
type DiscoveryOptions struct {
	StatusURL string
	Timeout   time.Duration
	RetryMax  int
	CacheTTL  time.Duration
}

type cacheEntry struct {
	data      interface{}
	fetchedAt time.Time
}

// Discovery fetches the mirror status feed and speed-tests mirrors, with an
// in-memory cache to avoid redundant upstream requests.
type Discovery struct {
	client    *retryablehttp.Client
	probe     *http.Client
	logger    *slog.Logger
	cache     map[string]cacheEntry
	mu        sync.RWMutex
	cacheTTL  time.Duration
	statusURL string
}

// NewDiscovery creates a new Discovery service.
func NewDiscovery(logger *slog.Logger, opts DiscoveryOptions) *Discovery {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.StatusURL == "" {
		opts.StatusURL = DefaultStatusURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultFetchTimeout
	}
	if opts.RetryMax < 0 {
		opts.RetryMax = 0
	} else if opts.RetryMax == 0 {
		opts.RetryMax = defaultRetryMax
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = defaultCacheTTL
	}

	client := &retryablehttp.Client{
		HTTPClient:   safety.NewHTTPClient(opts.Timeout),
		Logger:       logger,
		RetryWaitMin: 100 * time.Millisecond,
		RetryWaitMax: 1500 * time.Millisecond,
		RetryMax:     opts.RetryMax,
		CheckRetry:   retryablehttp.DefaultRetryPolicy,
		Backoff:      retryablehttp.DefaultBackoff,
	}

	return &Discovery{
		client:    client,
		probe:     safety.NewHTTPClient(speedTestTimeout),
		logger:    logger,
		cache:     make(map[string]cacheEntry),
		cacheTTL:  opts.CacheTTL,
		statusURL: opts.StatusURL,
	}
}

// StatusURL returns the feed URL this Discovery reads.
func (d *Discovery) StatusURL() string {
	return d.statusURL
}

// Status fetches and parses the mirror status feed. Results are cached.
func (d *Discovery) Status(ctx context.Context) (*Status, error) {
	key := "status:" + d.statusURL

	if cached, ok := d.getCache(key); ok {
		d.logger.Debug("using cached mirror status", "url", d.statusURL)
		return cached.(*Status), nil
	}

	data, err := d.fetch(ctx, d.statusURL)
	if err != nil {
		return nil, fmt.Errorf("fetching mirror status: %w", err)
	}

	st, err := ParseStatus(data)
	if err != nil {
		return nil, fmt.Errorf("parsing mirror status: %w", err)
	}

	d.logger.Info("fetched mirror status", "url", d.statusURL, "mirrors", len(st.URLs), "last_check", st.LastCheck)
	d.setCache(key, st)
	return st, nil
}

// fetch performs an HTTP GET request with the given context and returns the response body.
// Transient failures are retried by the underlying client.
func (d *Discovery) fetch(ctx context.Context, url string) ([]byte, error) {
	if _, err := safety.ValidateHTTPURL(url); err != nil {
		return nil, fmt.Errorf("invalid fetch URL: %w", err)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d for %s", resp.StatusCode, url)
	}

	body, err := safety.ReadAllWithLimit(resp.Body, maxStatusResponseBytes)
	if err != nil {
		if errors.Is(err, safety.ErrBodyTooLarge) {
			return nil, fmt.Errorf("response exceeded %d bytes for %s: %w", maxStatusResponseBytes, url, err)
		}
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	return body, nil
}

// getCache retrieves a cached value if it exists and has not expired.
func (d *Discovery) getCache(key string) (interface{}, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	entry, ok := d.cache[key]
	if !ok {
		return nil, false
	}

	if time.Since(entry.fetchedAt) > d.cacheTTL {
		return nil, false
	}

	return entry.data, true
}

// setCache stores a value in the cache with the current timestamp.
func (d *Discovery) setCache(key string, data interface{}) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.cache[key] = cacheEntry{
		data:      data,
		fetchedAt: time.Now(),
	}
}
