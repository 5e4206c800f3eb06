// Package render loads pages in headless Chrome for sources that only
// produce their content client-side.
package render

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/ppiankov/lexsearch/internal/logging"
)

const pollInterval = 250 * time.Millisecond

// Options configures the renderer. Zero durations fall back to defaults.
type Options struct {
	ChromePath      string
	UserAgent       string
	PageLoadTimeout time.Duration
	SettleDelay     time.Duration
	ContentTimeout  time.Duration
	Logger          *zap.SugaredLogger
}

// Snapshot is the DOM of a rendered page.
type Snapshot struct {
	URL      string
	FinalURL string
	HTML     string
	// TimedOut is set when the content deadline passed with an empty body.
	TimedOut bool
}

// Chrome renders pages, starting a fresh browser per call.
type Chrome struct {
	opts Options
	log  *zap.SugaredLogger
}

// NewChrome creates a renderer
func NewChrome(opts Options) *Chrome {
	if opts.PageLoadTimeout <= 0 {
		opts.PageLoadTimeout = 30 * time.Second
	}
	if opts.ContentTimeout <= 0 {
		opts.ContentTimeout = 10 * time.Second
	}
	if opts.SettleDelay < 0 {
		opts.SettleDelay = 0
	}
	return &Chrome{opts: opts, log: logging.OrNop(opts.Logger)}
}

// Render loads rawURL, waits for scripts to settle and returns the DOM.
// Callers bound concurrency; every call owns one Chrome process.
func (c *Chrome) Render(ctx context.Context, rawURL string) (*Snapshot, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.DisableGPU,
		chromedp.NoSandbox,
	)
	if c.opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(c.opts.UserAgent))
	}
	if c.opts.ChromePath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(c.opts.ChromePath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx, chromedp.WithLogf(c.log.Debugf))
	defer cancelBrowser()

	// An empty Run starts the browser so that startup failures are not
	// mistaken for page-load timeouts.
	if err := chromedp.Run(browserCtx); err != nil {
		return nil, fmt.Errorf("start browser: %w", err)
	}

	loadCtx, cancelLoad := context.WithTimeout(browserCtx, c.opts.PageLoadTimeout)
	err := chromedp.Run(loadCtx, chromedp.Navigate(rawURL))
	cancelLoad()
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", rawURL, err)
	}

	if err := sleep(ctx, c.opts.SettleDelay); err != nil {
		return nil, err
	}

	timedOut, err := c.waitForContent(browserCtx)
	if err != nil {
		return nil, err
	}
	if timedOut {
		c.log.Debugw("content deadline passed, using current DOM", "url", rawURL)
	}

	snap := &Snapshot{URL: rawURL, TimedOut: timedOut}
	if err := chromedp.Run(browserCtx,
		chromedp.Location(&snap.FinalURL),
		chromedp.OuterHTML("html", &snap.HTML, chromedp.ByQuery),
	); err != nil {
		return nil, fmt.Errorf("read DOM of %s: %w", rawURL, err)
	}

	return snap, nil
}

// waitForContent polls the body text until it is non-empty. The deadline is
// soft: when it passes, rendering continues with whatever is there.
func (c *Chrome) waitForContent(ctx context.Context) (bool, error) {
	deadline := time.Now().Add(c.opts.ContentTimeout)
	for {
		var text string
		if err := chromedp.Run(ctx, chromedp.Evaluate(`document.body ? document.body.innerText : ""`, &text)); err != nil {
			return false, fmt.Errorf("read body text: %w", err)
		}
		if strings.TrimSpace(text) != "" {
			return false, nil
		}
		if time.Now().After(deadline) {
			return true, nil
		}
		if err := sleep(ctx, pollInterval); err != nil {
			return false, err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
