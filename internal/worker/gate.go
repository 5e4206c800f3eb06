package worker

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Gate bounds how many expensive operations (headless renders) run at once,
// independently of how many item jobs are in flight.
type Gate struct {
	sem *semaphore.Weighted
}

// NewGate creates a gate admitting at most size concurrent holders.
// Non-positive sizes become 1.
func NewGate(size int) *Gate {
	if size <= 0 {
		size = 1
	}
	return &Gate{sem: semaphore.NewWeighted(int64(size))}
}

// Do runs fn once a slot is free. It returns ctx.Err() if the context ends
// while waiting.
func (g *Gate) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer g.sem.Release(1)

	return fn(ctx)
}
