package retrieve

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/lexsearch/internal/fetch"
	"github.com/ppiankov/lexsearch/internal/logging"
	"github.com/ppiankov/lexsearch/internal/model"
)

// retrySleepFunc is replaced in tests.
var retrySleepFunc = func(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Retrying repeats a whole FetchDocument call with exponential backoff when
// it fails. Every attempt walks the full tier chain again. One attempt means
// no retry.
type Retrying struct {
	next     DocumentFetcher
	attempts int
	backoff  time.Duration
	log      *zap.SugaredLogger
}

// NewRetrying wraps next. attempts below 1 become 1.
func NewRetrying(next DocumentFetcher, attempts int, backoff time.Duration, logger *zap.SugaredLogger) *Retrying {
	if attempts < 1 {
		attempts = 1
	}
	return &Retrying{next: next, attempts: attempts, backoff: backoff, log: logging.OrNop(logger)}
}

// FetchDocument returns the first successful result or the last failure.
// Attempts after the first bypass cached responses.
func (r *Retrying) FetchDocument(ctx context.Context, ref model.Ref) model.RetrievalResult {
	delay := r.backoff
	for attempt := 1; ; attempt++ {
		attemptCtx := ctx
		if attempt > 1 {
			attemptCtx = fetch.Fresh(ctx)
		}
		res := r.next.FetchDocument(attemptCtx, ref)
		if !res.Failed || attempt >= r.attempts {
			if res.Failed && attempt > 1 {
				res.Diagnostic = fmt.Sprintf("%s (after %d attempts)", res.Diagnostic, attempt)
			}
			return res
		}

		r.log.Debugw("retrying document", "ref", ref.String(), "attempt", attempt, "delay", delay)
		if err := retrySleepFunc(ctx, delay); err != nil {
			return res
		}
		delay *= 2
	}
}
