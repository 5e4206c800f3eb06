package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ppiankov/lexsearch/internal/cache"
	"github.com/ppiankov/lexsearch/internal/util"
	"github.com/ppiankov/lexsearch/internal/worker"
)

func TestGet_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); ua != "test-agent" {
			t.Errorf("expected User-Agent test-agent, got %q", ua)
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = fmt.Fprint(w, "<html><body>OK</body></html>")
	}))
	defer server.Close()

	fetcher := New(Options{Timeout: 5 * time.Second, UserAgent: "test-agent", Limiter: worker.NewLimiter(0, 1)})
	result, err := fetcher.Get(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if string(result.Body) != "<html><body>OK</body></html>" {
		t.Errorf("unexpected body: %s", result.Body)
	}
	if result.ContentType != "text/html" {
		t.Errorf("expected text/html, got %s", result.ContentType)
	}
}

func TestGet_UnexpectedStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	fetcher := New(Options{Timeout: 5 * time.Second})
	_, err := fetcher.Get(context.Background(), server.URL)
	if err == nil {
		t.Fatal("expected error for 404, got nil")
	}

	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.Code != http.StatusNotFound {
		t.Fatalf("expected StatusError 404, got %v", err)
	}
	if got := err.Error(); got != "unexpected status: 404 404 Not Found" {
		t.Errorf("unexpected error: %s", got)
	}
}

func TestGet_FollowsRedirects(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new", http.StatusFound)
	})
	mux.HandleFunc("/new", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, "moved")
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	result, err := New(Options{Timeout: 5 * time.Second}).Get(context.Background(), server.URL+"/old")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.HasSuffix(result.FinalURL, "/new") {
		t.Errorf("expected final URL to end with /new, got %s", result.FinalURL)
	}
}

func TestGet_RedirectLoop(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, r.URL.Path+"x", http.StatusFound)
	}))
	defer server.Close()

	_, err := New(Options{Timeout: 5 * time.Second}).Get(context.Background(), server.URL+"/a")
	if err == nil || !strings.Contains(err.Error(), "stopped after 3 redirects") {
		t.Errorf("expected redirect cap error, got %v", err)
	}
}

func TestGet_BodyLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, strings.Repeat("a", 100))
	}))
	defer server.Close()

	result, err := New(Options{MaxBytes: 10}).Get(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(result.Body) != 10 {
		t.Errorf("expected body truncated to 10 bytes, got %d", len(result.Body))
	}
}

func TestGet_CacheHit(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = fmt.Fprint(w, "<xml/>")
	}))
	defer server.Close()

	fetcher := New(Options{Cache: cache.NewMemoryCache(time.Minute, time.Minute)})

	first, err := fetcher.Get(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("first Get failed: %v", err)
	}
	second, err := fetcher.Get(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("second Get failed: %v", err)
	}

	if hits.Load() != 1 {
		t.Errorf("expected 1 request, got %d", hits.Load())
	}
	if first.FromCache || !second.FromCache {
		t.Errorf("expected only the second result from cache, got %v %v", first.FromCache, second.FromCache)
	}
	if string(second.Body) != "<xml/>" {
		t.Errorf("unexpected cached body: %s", second.Body)
	}
}

func TestGet_FreshBypassesCache(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprintf(w, "<v>%d</v>", hits.Add(1))
	}))
	defer server.Close()

	fetcher := New(Options{Cache: cache.NewMemoryCache(time.Minute, time.Minute)})
	ctx := context.Background()

	if _, err := fetcher.Get(ctx, server.URL); err != nil {
		t.Fatalf("first Get failed: %v", err)
	}
	fresh, err := fetcher.Get(Fresh(ctx), server.URL)
	if err != nil {
		t.Fatalf("fresh Get failed: %v", err)
	}
	if fresh.FromCache || string(fresh.Body) != "<v>2</v>" {
		t.Errorf("expected a network response, got %s (cached=%v)", fresh.Body, fresh.FromCache)
	}

	// The fresh response replaces the cached one.
	cached, err := fetcher.Get(ctx, server.URL)
	if err != nil {
		t.Fatalf("third Get failed: %v", err)
	}
	if !cached.FromCache || string(cached.Body) != "<v>2</v>" {
		t.Errorf("expected cached fresh body, got %s (cached=%v)", cached.Body, cached.FromCache)
	}
	if hits.Load() != 2 {
		t.Errorf("expected 2 requests, got %d", hits.Load())
	}
}

func TestWithCache_LeavesOriginalUncached(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = fmt.Fprint(w, "<xml/>")
	}))
	defer server.Close()

	api := New(Options{})
	pages := api.WithCache(cache.NewMemoryCache(time.Minute, time.Minute))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := api.Get(ctx, server.URL); err != nil {
			t.Fatalf("api Get failed: %v", err)
		}
		if _, err := pages.Get(ctx, server.URL); err != nil {
			t.Fatalf("pages Get failed: %v", err)
		}
	}

	// Two uncached API requests plus one cached page request.
	if hits.Load() != 3 {
		t.Errorf("expected 3 requests, got %d", hits.Load())
	}
}

func TestGet_ErrorsAreNotCached(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	fetcher := New(Options{Cache: cache.NewMemoryCache(time.Minute, time.Minute)})
	_, _ = fetcher.Get(context.Background(), server.URL)
	_, _ = fetcher.Get(context.Background(), server.URL)

	if hits.Load() != 2 {
		t.Errorf("expected 2 requests, got %d", hits.Load())
	}
}

func TestGet_RobotsDisallow(t *testing.T) {
	var pageHits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			_, _ = fmt.Fprint(w, "User-agent: *\nDisallow: /LSW/\n")
			return
		}
		pageHits.Add(1)
		_, _ = fmt.Fprint(w, "page")
	}))
	defer server.Close()

	base := New(Options{UserAgent: "lexsearch/0.1"})
	fetcher := base.WithRobots(util.NewRobotsChecker("lexsearch/0.1", base.Client(), time.Second))

	_, err := fetcher.Get(context.Background(), server.URL+"/LSW/precInfoP.do?precSeq=1")
	if !errors.Is(err, ErrDisallowed) {
		t.Errorf("expected ErrDisallowed, got %v", err)
	}
	if pageHits.Load() != 0 {
		t.Errorf("expected no page request, got %d", pageHits.Load())
	}

	// The copy without robots is unaffected.
	if _, err := base.Get(context.Background(), server.URL+"/LSW/precInfoP.do?precSeq=1"); err != nil {
		t.Errorf("expected base fetcher to ignore robots, got %v", err)
	}
}

func TestGet_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, "late")
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := New(Options{Limiter: worker.NewLimiter(1, 1)}).Get(ctx, server.URL); err == nil {
		t.Error("expected error for cancelled context")
	}
}
