package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/stacksync/pkg/buildinfo"
	"github.com/matzehuels/stacksync/pkg/cache"
	sserrors "github.com/matzehuels/stacksync/pkg/errors"
	"github.com/matzehuels/stacksync/pkg/httputil"
	"github.com/matzehuels/stacksync/pkg/observability"
)

const (
	// DefaultEndpoint is the public npm registry.
	DefaultEndpoint = "https://registry.npmjs.org"

	// DefaultTimeout bounds a single packument request.
	DefaultTimeout = 5 * time.Second

	// abbreviatedAccept requests the install-oriented packument, which is much
	// smaller than the full document and still carries peer and deprecation data.
	abbreviatedAccept = "application/vnd.npm.install-v1+json; q=1.0, application/json; q=0.8"

	// DefaultAttempts is how many times a transient failure is tried.
	DefaultAttempts = 3
	// DefaultRetryDelay is the wait before the first retry; it doubles after.
	DefaultRetryDelay = 100 * time.Millisecond

	// DefaultCacheTTL bounds how long a cached document is kept for revalidation.
	DefaultCacheTTL = 7 * 24 * time.Hour
)

var (
	// ErrNotFound is returned when the registry has no document for a package.
	ErrNotFound = errors.New("package not found")

	// ErrNetwork is returned for transport failures and unexpected statuses.
	ErrNetwork = errors.New("network error")
)

// Client fetches packuments from an npm-compatible registry.
type Client struct {
	http     *http.Client
	endpoint string
	timeout  time.Duration
	cache    cache.Cache
	ttl      time.Duration
	attempts int
	backoff  time.Duration
	headers  map[string]string
	logger   *log.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-request timeout. Zero keeps the default.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithCache enables ETag revalidation backed by the given cache.
func WithCache(cc cache.Cache) Option {
	return func(c *Client) { c.cache = cc }
}

// WithCacheTTL sets how long cached documents are kept. Zero keeps the default.
func WithCacheTTL(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.ttl = d
		}
	}
}

// WithRetry sets how often transient failures (transport errors, 429 and
// 5xx) are tried and the initial backoff. attempts <= 1 disables retries.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(c *Client) {
		c.attempts = max(attempts, 1)
		c.backoff = backoff
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithHeaders adds default headers to every request (e.g. Authorization).
func WithHeaders(h map[string]string) Option {
	return func(c *Client) { c.headers = h }
}

// WithLogger sets the logger used for cache diagnostics.
func WithLogger(l *log.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a Client for endpoint. An empty endpoint selects
// [DefaultEndpoint].
func NewClient(endpoint string, opts ...Option) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	c := &Client{
		http:     &http.Client{},
		endpoint: strings.TrimSuffix(endpoint, "/"),
		timeout:  DefaultTimeout,
		ttl:      DefaultCacheTTL,
		attempts: DefaultAttempts,
		backoff:  DefaultRetryDelay,
		cache:    cache.NewNullCache(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = log.Default()
	}
	return c
}

// Endpoint returns the registry base URL without a trailing slash.
func (c *Client) Endpoint() string { return c.endpoint }

// PackagePath returns the URL path segment for name. Scoped names keep their
// "@" and encode the separating slash, as the npm registry expects.
func PackagePath(name string) string {
	if scope, pkg, ok := strings.Cut(name, "/"); ok && strings.HasPrefix(scope, "@") {
		return scope + "%2f" + url.PathEscape(pkg)
	}
	return url.PathEscape(name)
}

type cachedBody struct {
	ETag string          `json:"etag"`
	Body json.RawMessage `json:"body"`
}

// Packument fetches the registry document for name. Each call is bounded by
// the client timeout; a timed-out request yields an error coded TIMEOUT.
func (c *Client) Packument(ctx context.Context, name string) (*Packument, error) {
	if err := sserrors.ValidatePackageName(name); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	key := cache.PackumentKey(c.endpoint, name)
	var stored *cachedBody
	if data, hit, err := c.cache.Get(ctx, key); err == nil && hit {
		var cb cachedBody
		if json.Unmarshal(data, &cb) == nil && cb.ETag != "" {
			stored = &cb
			observability.Cache().OnCacheHit(ctx, "packument")
		}
	} else {
		observability.Cache().OnCacheMiss(ctx, "packument")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/"+PackagePath(name), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", abbreviatedAccept)
	req.Header.Set("User-Agent", buildinfo.UserAgent())
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	if stored != nil {
		req.Header.Set("If-None-Match", stored.ETag)
	}

	var (
		body []byte
		etag string
	)
	err = httputil.Retry(ctx, c.attempts, c.backoff, func() error {
		var err error
		body, etag, err = c.do(ctx, req)
		return err
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && sserrors.GetCode(err) == "" {
			err = sserrors.Wrap(sserrors.ErrCodeTimeout, err, "registry request timed out after %s", c.timeout)
		}
		return nil, err
	}
	if body == nil {
		if stored == nil {
			return nil, fmt.Errorf("%w: 304 without cached body", ErrNetwork)
		}
		body = stored.Body
	} else if etag != "" {
		c.store(ctx, key, cachedBody{ETag: etag, Body: body})
	}

	var doc Packument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decode packument %s: %w", name, err)
	}
	return &doc, nil
}

// do performs req. A nil body with nil error means 304 Not Modified.
func (c *Client) do(ctx context.Context, req *http.Request) ([]byte, string, error) {
	host, path := req.URL.Host, req.URL.Path
	hooks := observability.HTTP()
	hooks.OnRequest(ctx, req.Method, host, path)
	start := time.Now()

	resp, err := c.http.Do(req)
	if err != nil {
		hooks.OnError(ctx, req.Method, host, path, err)
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, "", sserrors.Wrap(sserrors.ErrCodeTimeout, err, "registry request timed out after %s", c.timeout)
		}
		return nil, "", &httputil.RetryableError{Err: fmt.Errorf("%w: %v", ErrNetwork, err)}
	}
	defer resp.Body.Close()
	hooks.OnResponse(ctx, req.Method, host, path, resp.StatusCode, time.Since(start))

	switch {
	case resp.StatusCode == http.StatusNotModified:
		return nil, "", nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, "", ErrNotFound
	case httputil.RetryableStatus(resp.StatusCode):
		return nil, "", &httputil.RetryableError{Err: fmt.Errorf("%w: status %d", ErrNetwork, resp.StatusCode)}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, "", fmt.Errorf("%w: status %d", ErrNetwork, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, "", sserrors.Wrap(sserrors.ErrCodeTimeout, err, "registry response timed out after %s", c.timeout)
		}
		return nil, "", fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	return data, resp.Header.Get("ETag"), nil
}

func (c *Client) store(ctx context.Context, key string, cb cachedBody) {
	data, err := json.Marshal(cb)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Debug("cache write failed", "key", key, "err", err)
		return
	}
	observability.Cache().OnCacheSet(ctx, "packument", len(data))
}
