// Package fetch performs the plain HTTP GETs behind the structured and html
// retrieval tiers.
package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/lexsearch/internal/cache"
	"github.com/ppiankov/lexsearch/internal/logging"
	"github.com/ppiankov/lexsearch/internal/util"
	"github.com/ppiankov/lexsearch/internal/worker"
)

const maxRedirects = 3

// ErrDisallowed is returned when robots.txt forbids the URL.
var ErrDisallowed = errors.New("disallowed by robots.txt")

// StatusError reports a non-2xx response.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status: %d %s", e.Code, e.Status)
}

// Options configures a Fetcher. Zero values disable the optional parts.
type Options struct {
	Timeout   time.Duration
	UserAgent string
	MaxBytes  int64
	Proxy     func(*http.Request) (*url.URL, error)
	Limiter   *worker.Limiter
	Robots    *util.RobotsChecker
	Cache     cache.Cache
	CacheTTL  time.Duration
	Logger    *zap.SugaredLogger
}

// Fetcher issues rate-limited GET requests
type Fetcher struct {
	httpClient *http.Client
	userAgent  string
	maxBytes   int64
	limiter    *worker.Limiter
	robots     *util.RobotsChecker
	cache      cache.Cache
	cacheTTL   time.Duration
	log        *zap.SugaredLogger
}

// Result is one fetched response body with its metadata.
type Result struct {
	Body        []byte    `json:"body"`
	StatusCode  int       `json:"status_code"`
	ContentType string    `json:"content_type"`
	FinalURL    string    `json:"final_url"`
	FetchedAt   time.Time `json:"fetched_at"`
	FromCache   bool      `json:"-"`
}

// New creates a Fetcher. Redirect chains longer than three hops fail.
func New(opts Options) *Fetcher {
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = 10 << 20
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if opts.Proxy != nil {
		transport.Proxy = opts.Proxy
	}

	return &Fetcher{
		httpClient: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		},
		userAgent: opts.UserAgent,
		maxBytes:  opts.MaxBytes,
		limiter:   opts.Limiter,
		robots:    opts.Robots,
		cache:     opts.Cache,
		cacheTTL:  opts.CacheTTL,
		log:       logging.OrNop(opts.Logger),
	}
}

// Client returns the underlying HTTP client so that collaborators such as the
// robots.txt checker share its transport.
func (f *Fetcher) Client() *http.Client {
	return f.httpClient
}

// WithRobots returns a copy of f that consults robots before every request.
// The copy shares the client, limiter and cache.
func (f *Fetcher) WithRobots(robots *util.RobotsChecker) *Fetcher {
	clone := *f
	clone.robots = robots
	return &clone
}

// WithCache returns a copy of f that shares its client and limiter but
// stores 2xx responses in c.
func (f *Fetcher) WithCache(c cache.Cache) *Fetcher {
	clone := *f
	clone.cache = c
	return &clone
}

type freshKey struct{}

// Fresh marks ctx so that Get skips cached responses. The fresh response
// still replaces the cached one.
func Fresh(ctx context.Context) context.Context {
	return context.WithValue(ctx, freshKey{}, true)
}

// IsFresh reports whether ctx was marked by Fresh.
func IsFresh(ctx context.Context) bool {
	fresh, _ := ctx.Value(freshKey{}).(bool)
	return fresh
}

// Get fetches rawURL. Cached 2xx responses are returned without touching the
// network unless ctx was marked by Fresh.
func (f *Fetcher) Get(ctx context.Context, rawURL string) (*Result, error) {
	key := cache.Key("http", rawURL)
	if !IsFresh(ctx) {
		if cached, ok := f.fromCache(key); ok {
			return cached, nil
		}
	}

	var crawlDelay time.Duration
	if f.robots != nil {
		allowed, delay, err := f.robots.CanFetch(ctx, rawURL)
		if err != nil {
			f.log.Debugw("robots.txt unavailable", "url", rawURL, "error", err)
		}
		if !allowed {
			return nil, fmt.Errorf("%s: %w", rawURL, ErrDisallowed)
		}
		crawlDelay = delay
	}

	if f.limiter != nil {
		if err := f.limiter.Wait(ctx, rawURL, crawlDelay); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "ko-KR,ko;q=0.9,en;q=0.8")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Code: resp.StatusCode, Status: resp.Status}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	result := &Result{
		Body:        body,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		FinalURL:    resp.Request.URL.String(),
		FetchedAt:   time.Now().UTC(),
	}
	f.toCache(key, result)

	return result, nil
}

func (f *Fetcher) fromCache(key string) (*Result, bool) {
	if f.cache == nil {
		return nil, false
	}
	data, ok := f.cache.Get(key)
	if !ok {
		return nil, false
	}
	var result Result
	if err := json.Unmarshal(data, &result); err != nil {
		_ = f.cache.Delete(key)
		return nil, false
	}
	result.FromCache = true
	return &result, true
}

func (f *Fetcher) toCache(key string, result *Result) {
	if f.cache == nil {
		return
	}
	data, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := f.cache.Set(key, data, f.cacheTTL); err != nil {
		f.log.Warnw("cache write failed", "url", result.FinalURL, "error", err)
	}
}
