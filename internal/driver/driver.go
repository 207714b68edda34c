// Package driver generates the checkout workload: a pool of workers placing
// synthetic orders against the configured strategy, shaped either as a steady
// stream or as synchronized waves.
package driver

import (
	"context"
	"fmt"
	"math/rand"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/fairyhunter13/checkout-consistency-simulator/internal/checkout"
	"github.com/fairyhunter13/checkout-consistency-simulator/internal/config"
	"github.com/fairyhunter13/checkout-consistency-simulator/internal/model"
	"github.com/fairyhunter13/checkout-consistency-simulator/internal/obs"
)

// Sink receives the outcome record of every finished attempt.
type Sink interface {
	Record(rec model.OutcomeRecord)
}

// Driver runs the workload for one benchmark run.
type Driver struct {
	cfg   config.Config
	runID string
	wf    *checkout.Workflow
	sink  Sink
	skus  []string

	seq    atomic.Uint64
	budget atomic.Int64
}

// New builds a Driver for the given run.
func New(cfg config.Config, runID string, wf *checkout.Workflow, sink Sink) *Driver {
	d := &Driver{cfg: cfg, runID: runID, wf: wf, sink: sink, skus: cfg.SKUs()}
	if cfg.OrdersPerUser > 0 {
		d.budget.Store(int64(cfg.Customers) * int64(cfg.OrdersPerUser))
	} else {
		d.budget.Store(-1)
	}
	return d
}

// Attempts returns the number of attempts started so far.
func (d *Driver) Attempts() uint64 { return d.seq.Load() }

// Run drives the workload until the attempt budget is spent or ctx is
// cancelled. Workers finish their in-flight attempt before exiting, so every
// started attempt reaches a terminal state and is recorded.
func (d *Driver) Run(ctx context.Context) error {
	obs.Logger.Info("workload starting",
		"run_id", d.runID,
		"backend", d.cfg.Backend,
		"arrival", d.cfg.Arrival,
		"concurrency", d.cfg.Concurrency,
	)
	switch d.cfg.Arrival {
	case config.ArrivalWaves:
		return d.runWaves(ctx)
	default:
		return d.runSteady(ctx)
	}
}

// runSteady keeps every worker looping back-to-back on fresh attempts.
func (d *Driver) runSteady(ctx context.Context) error {
	g := new(errgroup.Group)
	for w := 0; w < d.cfg.Concurrency; w++ {
		rng := rand.New(rand.NewSource(d.cfg.Seed + int64(w)))
		g.Go(func() error {
			for {
				if ctx.Err() != nil {
					return nil
				}
				if !d.claim() {
					return nil
				}
				d.attempt(ctx, rng)
			}
		})
	}
	return g.Wait()
}

// runWaves releases the whole pool at once, one attempt per worker per wave.
// The synchronized start maximizes contention on the hot SKUs.
func (d *Driver) runWaves(ctx context.Context) error {
	// Exhausting the attempt budget mid-wave must release everyone still
	// parked at the barrier, or the remaining workers rendezvous forever
	// with peers that already left.
	waveCtx, stopWaves := context.WithCancel(ctx)
	defer stopWaves()

	bar := newBarrier(d.cfg.Concurrency)
	g := new(errgroup.Group)
	for w := 0; w < d.cfg.Concurrency; w++ {
		rng := rand.New(rand.NewSource(d.cfg.Seed + int64(w)))
		g.Go(func() error {
			for wave := 0; wave < d.cfg.Waves; wave++ {
				if err := bar.Await(waveCtx); err != nil {
					return nil
				}
				if !d.claim() {
					stopWaves()
					return nil
				}
				d.attempt(ctx, rng)
			}
			return nil
		})
	}
	return g.Wait()
}

// claim takes one attempt from the budget. A negative budget means unlimited.
func (d *Driver) claim() bool {
	for {
		cur := d.budget.Load()
		if cur < 0 {
			return true
		}
		if cur == 0 {
			return false
		}
		if d.budget.CompareAndSwap(cur, cur-1) {
			return true
		}
	}
}

func (d *Driver) attempt(ctx context.Context, rng *rand.Rand) {
	att := &model.Attempt{
		ID:         d.seq.Add(1),
		RunID:      d.runID,
		OrderID:    uuid.NewString(),
		CustomerID: fmt.Sprintf("cust-%04d", rng.Intn(d.cfg.Customers)),
		Lines:      d.cart(rng),
	}
	rec := d.wf.Run(ctx, att)
	d.sink.Record(rec)
}

var (
	primaryPrice = decimal.RequireFromString("499.00")
	extraPrice   = decimal.RequireFromString("19.00")
)

// cart builds one synthetic order: a single unit of a hot SKU, plus up to two
// accessory lines on other SKUs.
func (d *Driver) cart(rng *rand.Rand) []model.Line {
	skus := d.skus
	primary := skus[rng.Intn(len(skus))]
	lines := []model.Line{{SKU: primary, Qty: 1, UnitPrice: primaryPrice}}
	for i, extras := 0, rng.Intn(3); i < extras; i++ {
		sku := skus[rng.Intn(len(skus))]
		if sku == primary {
			continue
		}
		lines = append(lines, model.Line{SKU: sku, Qty: 1, UnitPrice: extraPrice})
	}
	return lines
}

// RunWindow returns the context deadline wrapper for duration-bound runs. An
// attempt-budget run gets no deadline.
func (d *Driver) RunWindow(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.cfg.OrdersPerUser > 0 || d.cfg.Duration <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d.cfg.Duration)
}
