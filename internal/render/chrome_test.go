package render

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"
)

func TestNewChrome_Defaults(t *testing.T) {
	c := NewChrome(Options{SettleDelay: -time.Second})
	if c.opts.PageLoadTimeout != 30*time.Second {
		t.Errorf("expected default page load timeout, got %v", c.opts.PageLoadTimeout)
	}
	if c.opts.ContentTimeout != 10*time.Second {
		t.Errorf("expected default content timeout, got %v", c.opts.ContentTimeout)
	}
	if c.opts.SettleDelay != 0 {
		t.Errorf("expected negative settle delay clamped, got %v", c.opts.SettleDelay)
	}
}

func TestSleep_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleep(ctx, time.Minute); err == nil {
		t.Error("expected error for cancelled context")
	}
	if err := sleep(context.Background(), 0); err != nil {
		t.Errorf("expected zero sleep to succeed, got %v", err)
	}
}

// TestRender_Chrome needs a local Chrome; set LEXSEARCH_CHROME_TEST=1 to run it.
func TestRender_Chrome(t *testing.T) {
	if os.Getenv("LEXSEARCH_CHROME_TEST") == "" {
		t.Skip("set LEXSEARCH_CHROME_TEST=1 to run against a local Chrome")
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, `<html><body><div id="app"></div>
<script>setTimeout(function(){document.getElementById("app").innerHTML="<h1>대법원 2021다252977</h1>"}, 100)</script>
</body></html>`)
	}))
	defer server.Close()

	c := NewChrome(Options{
		ChromePath:      os.Getenv("LEXSEARCH_CHROME_PATH"),
		PageLoadTimeout: 20 * time.Second,
		ContentTimeout:  5 * time.Second,
	})
	snap, err := c.Render(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if !strings.Contains(snap.HTML, "2021다252977") {
		t.Errorf("expected script-inserted content, got %s", snap.HTML)
	}
	if snap.TimedOut {
		t.Error("expected content before the deadline")
	}
}
