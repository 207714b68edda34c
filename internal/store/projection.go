package store

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/fairyhunter13/checkout-consistency-simulator/internal/model"
)

// Projector copies order statuses into the read projection on an interval,
// delaying roughly half the rows by a random sub-maxLag amount. The lag is
// the point: workers that read the projection right after a write observe the
// staleness the compensating strategies are measured on.
type Projector struct {
	st       *Store
	interval time.Duration
	maxLag   time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

// NewProjector builds a Projector over st with the given refresh interval and
// maximum injected lag per row.
func NewProjector(st *Store, interval, maxLag time.Duration, seed int64) *Projector {
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	return &Projector{
		st:       st,
		interval: interval,
		maxLag:   maxLag,
		rng:      rand.New(rand.NewSource(seed)),
	}
}

// Run loops until ctx is cancelled, then performs one final sweep so drained
// runs settle the projection before KPI scans.
func (p *Projector) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			p.sweep(nil)
			return nil
		case <-ticker.C:
			p.sweep(ctx)
		}
	}
}

// sweep copies every order into the projection. A nil ctx sweeps without lag.
func (p *Projector) sweep(ctx context.Context) {
	orders := p.st.OrdersSnapshot()
	for id, o := range orders {
		if ctx != nil && p.maxLag > 0 && p.chance(0.5) {
			lag := time.Duration(p.randFloat() * float64(p.maxLag))
			t := time.NewTimer(lag)
			select {
			case <-ctx.Done():
				t.Stop()
			case <-t.C:
			}
		}
		if cur, ok := p.st.ProjectionRead(id); ok && cur.Status == o.Status {
			continue
		}
		p.st.ProjectOrder(id, o.Status, time.Now().UTC())
	}
}

func (p *Projector) chance(prob float64) bool {
	return p.randFloat() < prob
}

func (p *Projector) randFloat() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rng.Float64()
}

// Project immediately mirrors one order into the projection. Used by tests
// and by the final sweep; the live path always goes through Run.
func (p *Projector) Project(orderID string, status model.OrderStatus) {
	p.st.ProjectOrder(orderID, status, time.Now().UTC())
}
