package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// holders tracks the number of concurrent callers and its peak.
type holders struct {
	current atomic.Int32
	peak    atomic.Int32
}

func (h *holders) enter() {
	n := h.current.Add(1)
	for {
		peak := h.peak.Load()
		if n <= peak || h.peak.CompareAndSwap(peak, n) {
			return
		}
	}
}

func (h *holders) leave() { h.current.Add(-1) }

func TestGate_BoundsConcurrency(t *testing.T) {
	gate := NewGate(2)
	var h holders

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = gate.Do(context.Background(), func(ctx context.Context) error {
				h.enter()
				defer h.leave()
				time.Sleep(5 * time.Millisecond)
				return nil
			})
		}()
	}
	wg.Wait()

	if peak := h.peak.Load(); peak > 2 || peak < 1 {
		t.Errorf("expected 1 or 2 concurrent holders, got %d", peak)
	}
}

func TestGate_DefaultSize(t *testing.T) {
	gate := NewGate(0)
	var h holders

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = gate.Do(context.Background(), func(ctx context.Context) error {
				h.enter()
				defer h.leave()
				time.Sleep(2 * time.Millisecond)
				return nil
			})
		}()
	}
	wg.Wait()

	if peak := h.peak.Load(); peak != 1 {
		t.Errorf("expected a single holder at a time, got %d", peak)
	}
}

func TestGate_PropagatesError(t *testing.T) {
	gate := NewGate(1)
	want := errors.New("render failed")

	err := gate.Do(context.Background(), func(ctx context.Context) error { return want })
	if !errors.Is(err, want) {
		t.Errorf("expected %v, got %v", want, err)
	}
}

func TestGate_ContextCancelledWhileWaiting(t *testing.T) {
	gate := NewGate(1)
	hold := make(chan struct{})
	started := make(chan struct{})

	go func() {
		_ = gate.Do(context.Background(), func(ctx context.Context) error {
			close(started)
			<-hold
			return nil
		})
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	called := false
	err := gate.Do(ctx, func(ctx context.Context) error {
		called = true
		return nil
	})
	close(hold)

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
	if called {
		t.Error("fn must not run when the slot was never acquired")
	}
}
