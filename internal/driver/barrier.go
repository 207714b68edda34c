package driver

import (
	"context"
	"sync"
)

// barrier is a reusable rendezvous point for n workers. Each Await blocks
// until all n workers have arrived, then every waiter is released at once and
// the barrier resets for the next cycle. Releasing everyone together is what
// produces the synchronized stampede of the wave arrival shape.
type barrier struct {
	n int

	mu    sync.Mutex
	count int
	gen   chan struct{}
}

func newBarrier(n int) *barrier {
	return &barrier{n: n, gen: make(chan struct{})}
}

// Await blocks until every worker has arrived or ctx is cancelled.
func (b *barrier) Await(ctx context.Context) error {
	b.mu.Lock()
	gen := b.gen
	b.count++
	if b.count == b.n {
		b.count = 0
		b.gen = make(chan struct{})
		close(gen)
		b.mu.Unlock()
		return nil
	}
	b.mu.Unlock()

	select {
	case <-gen:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
