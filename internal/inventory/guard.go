// Package inventory implements the "decrement stock if available" guard in
// its competing realizations: an exclusive per-SKU hold, a compare-and-set
// conditional write, and a naive read-then-write used as the worst case.
package inventory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/fairyhunter13/checkout-consistency-simulator/internal/model"
	"github.com/fairyhunter13/checkout-consistency-simulator/internal/store"
)

// Reservation is the result of one tryReserve call.
type Reservation struct {
	SKU       string
	Qty       int64
	Granted   bool
	Remaining int64
}

// Guard is the stock reservation contract shared by all realizations.
type Guard interface {
	// TryReserve attempts to decrement qty units of sku. A denied
	// reservation (stock exhausted) is returned with Granted=false and a
	// nil error; contention failures return a taxonomy error.
	TryReserve(ctx context.Context, sku string, qty int64) (Reservation, error)
	// Release returns previously reserved units.
	Release(sku string, qty int64) error
}

// LockingGuard serializes reservations per SKU through an exclusive hold with
// a bounded wait. Reservations against one SKU are totally ordered; the
// guard never overgrants.
type LockingGuard struct {
	st      *store.Store
	timeout time.Duration

	mu    sync.Mutex
	locks map[string]chan struct{}
}

// NewLockingGuard builds a LockingGuard over st with the given acquisition
// timeout.
func NewLockingGuard(st *store.Store, timeout time.Duration) *LockingGuard {
	return &LockingGuard{st: st, timeout: timeout, locks: make(map[string]chan struct{})}
}

func (g *LockingGuard) lockFor(sku string) chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	l, ok := g.locks[sku]
	if !ok {
		l = make(chan struct{}, 1)
		g.locks[sku] = l
	}
	return l
}

// Hold acquires the exclusive holds for all given SKUs in sorted order and
// returns a release function. The sorted order prevents deadlock between
// workers holding overlapping carts. Expiry of the wait budget yields
// ErrContentionTimeout.
func (g *LockingGuard) Hold(ctx context.Context, skus []string) (func(), error) {
	uniq := make([]string, 0, len(skus))
	seen := make(map[string]struct{}, len(skus))
	for _, sku := range skus {
		if _, ok := seen[sku]; ok {
			continue
		}
		seen[sku] = struct{}{}
		uniq = append(uniq, sku)
	}
	sort.Strings(uniq)

	timer := time.NewTimer(g.timeout)
	defer timer.Stop()

	held := make([]chan struct{}, 0, len(uniq))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			<-held[i]
		}
	}
	for _, sku := range uniq {
		l := g.lockFor(sku)
		select {
		case l <- struct{}{}:
			held = append(held, l)
		case <-timer.C:
			release()
			return nil, fmt.Errorf("lock %s after %v: %w", sku, g.timeout, model.ErrContentionTimeout)
		case <-ctx.Done():
			release()
			return nil, fmt.Errorf("lock %s: %w", sku, ctx.Err())
		}
	}
	return release, nil
}

// TryReserve holds the SKU's lock for the duration of the check-and-decrement.
func (g *LockingGuard) TryReserve(ctx context.Context, sku string, qty int64) (Reservation, error) {
	release, err := g.Hold(ctx, []string{sku})
	if err != nil {
		return Reservation{SKU: sku, Qty: qty}, err
	}
	defer release()
	remaining, ok := g.st.DecrementChecked(sku, qty)
	return Reservation{SKU: sku, Qty: qty, Granted: ok, Remaining: remaining}, nil
}

// Release returns qty units of sku.
func (g *LockingGuard) Release(sku string, qty int64) error {
	if _, ok := g.st.Release(sku, qty); !ok {
		return fmt.Errorf("release unknown sku %s: %w", sku, model.ErrDriverFault)
	}
	return nil
}

// CASGuard reserves through a versioned conditional write: read the counter,
// then apply the decrement only if the version is unchanged. Conflicts are
// retried up to the configured budget; exhaustion yields ErrConflictExhausted.
type CASGuard struct {
	st       *store.Store
	retryMax int
}

// NewCASGuard builds a CASGuard over st with the given retry budget.
func NewCASGuard(st *store.Store, retryMax int) *CASGuard {
	if retryMax < 0 {
		retryMax = 0
	}
	return &CASGuard{st: st, retryMax: retryMax}
}

// TryReserve applies a compare-and-set decrement with bounded retries.
func (g *CASGuard) TryReserve(ctx context.Context, sku string, qty int64) (Reservation, error) {
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return Reservation{SKU: sku, Qty: qty}, err
		}
		available, version, ok := g.st.StockView(sku)
		if !ok {
			return Reservation{SKU: sku, Qty: qty}, fmt.Errorf("unknown sku %s: %w", sku, model.ErrDriverFault)
		}
		if available < qty {
			return Reservation{SKU: sku, Qty: qty, Remaining: available}, nil
		}
		remaining, outcome := g.st.CompareAndDecrement(sku, qty, version)
		switch outcome {
		case store.CASApplied:
			return Reservation{SKU: sku, Qty: qty, Granted: true, Remaining: remaining}, nil
		case store.CASInsufficient:
			return Reservation{SKU: sku, Qty: qty, Remaining: remaining}, nil
		case store.CASConflict:
			if attempt >= g.retryMax {
				return Reservation{SKU: sku, Qty: qty, Remaining: remaining},
					fmt.Errorf("sku %s after %d retries: %w", sku, g.retryMax, model.ErrConflictExhausted)
			}
		default:
			return Reservation{SKU: sku, Qty: qty}, fmt.Errorf("sku %s: %w", sku, model.ErrDriverFault)
		}
	}
}

// Release returns qty units of sku.
func (g *CASGuard) Release(sku string, qty int64) error {
	if _, ok := g.st.Release(sku, qty); !ok {
		return fmt.Errorf("release unknown sku %s: %w", sku, model.ErrDriverFault)
	}
	return nil
}

// NaiveGuard checks availability and writes the decrement as two separate
// operations with nothing in between. Two workers reading the same counter
// both pass the check and both decrement; the counter goes negative. This is
// the measured failure mode, kept deliberately.
type NaiveGuard struct {
	st *store.Store
}

// NewNaiveGuard builds a NaiveGuard over st.
func NewNaiveGuard(st *store.Store) *NaiveGuard {
	return &NaiveGuard{st: st}
}

// TryReserve performs the unguarded read-then-write decrement.
func (g *NaiveGuard) TryReserve(ctx context.Context, sku string, qty int64) (Reservation, error) {
	available, _, ok := g.st.StockView(sku)
	if !ok {
		return Reservation{SKU: sku, Qty: qty}, fmt.Errorf("unknown sku %s: %w", sku, model.ErrDriverFault)
	}
	if available < qty {
		return Reservation{SKU: sku, Qty: qty, Remaining: available}, nil
	}
	remaining, _ := g.st.DecrementBlind(sku, qty)
	return Reservation{SKU: sku, Qty: qty, Granted: true, Remaining: remaining}, nil
}

// Release returns qty units of sku.
func (g *NaiveGuard) Release(sku string, qty int64) error {
	if _, ok := g.st.Release(sku, qty); !ok {
		return fmt.Errorf("release unknown sku %s: %w", sku, model.ErrDriverFault)
	}
	return nil
}
