// Package backend implements the interchangeable checkout protocols the
// engine is benchmarked against: a strictly serializable transactional
// variant and two decrement-first variants that compensate on failure.
package backend

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fairyhunter13/checkout-consistency-simulator/internal/config"
	"github.com/fairyhunter13/checkout-consistency-simulator/internal/inventory"
	"github.com/fairyhunter13/checkout-consistency-simulator/internal/model"
	"github.com/fairyhunter13/checkout-consistency-simulator/internal/store"
)

// Tx is one in-flight checkout attempt against a strategy. The workflow
// drives it through reserve → charge → commit, or rolls it back; exactly one
// of Commit/Rollback terminates a Tx whose Reserve and Charge succeeded.
type Tx interface {
	Reserve(ctx context.Context) error
	Charge(ctx context.Context) error
	Commit(ctx context.Context) error
	// Rollback undoes the attempt after cause. The returned result tells
	// the recorder whether the undo was an atomic rollback, an explicit
	// compensation, or a failed compensation.
	Rollback(ctx context.Context, cause error) (model.Result, error)
	// StaleRead reports whether this attempt's post-terminal projection
	// read disagreed with the primary record.
	StaleRead() bool
}

// Strategy opens checkout attempts against one backend variant.
type Strategy interface {
	Name() string
	Begin(ctx context.Context, att *model.Attempt) (Tx, error)
}

// New builds the configured strategy over the run's store.
func New(cfg config.Config, st *store.Store) (Strategy, error) {
	switch cfg.Backend {
	case config.BackendTransactional:
		return NewTransactional(st, inventory.NewLockingGuard(st, cfg.LockTimeout)), nil
	case config.BackendCompensating:
		return NewCompensating(config.BackendCompensating, st, inventory.NewCASGuard(st, cfg.RetryMax)), nil
	case config.BackendQuorum:
		return NewCompensating(config.BackendQuorum, st, inventory.NewNaiveGuard(st)), nil
	default:
		return nil, fmt.Errorf("unknown backend %q: %w", cfg.Backend, model.ErrDriverFault)
	}
}

// UsesProjection reports whether the named backend maintains the lagging
// read projection.
func UsesProjection(name string) bool {
	return name != config.BackendTransactional
}

func newOrder(att *model.Attempt, now func() time.Time) model.Order {
	total := decimal.Zero
	for _, l := range att.Lines {
		total = total.Add(l.UnitPrice.Mul(decimal.NewFromInt(l.Qty)))
	}
	return model.Order{
		OrderID:    att.OrderID,
		CustomerID: att.CustomerID,
		Lines:      att.Lines,
		Total:      total,
		Status:     model.OrderPending,
		CreatedAt:  now(),
	}
}
