// Package checkout drives a single attempt through the backend protocol:
// reserve, charge, then commit or undo, with failures injected at the charge
// step. The workflow maps every error to a terminal outcome record; nothing
// escapes as a panic or an unclassified error.
package checkout

import (
	"context"
	"errors"
	"time"

	"github.com/fairyhunter13/checkout-consistency-simulator/internal/backend"
	"github.com/fairyhunter13/checkout-consistency-simulator/internal/inject"
	"github.com/fairyhunter13/checkout-consistency-simulator/internal/model"
	"github.com/fairyhunter13/checkout-consistency-simulator/internal/obs"
)

// Workflow executes checkout attempts against one strategy.
type Workflow struct {
	scenario string
	strategy backend.Strategy
	injector *inject.Injector
	now      func() time.Time
}

// New builds a Workflow.
func New(scenario string, strategy backend.Strategy, injector *inject.Injector) *Workflow {
	return &Workflow{
		scenario: scenario,
		strategy: strategy,
		injector: injector,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run executes one attempt to its terminal state and returns its outcome
// record. The context bounds blocking waits inside the attempt, but an
// attempt that got past its reservation always finishes its undo path even
// when the run is shutting down.
func (w *Workflow) Run(ctx context.Context, att *model.Attempt) model.OutcomeRecord {
	start := w.now()
	decision := w.injector.Decide(att.ID)
	att.CompensationFails = decision.CompensationFails

	result, staleRead, cause := w.execute(ctx, att, decision)

	rec := model.OutcomeRecord{
		AttemptID:  att.ID,
		RunID:      att.RunID,
		Scenario:   w.scenario,
		Backend:    w.strategy.Name(),
		SKU:        primarySKU(att),
		CustomerID: att.CustomerID,
		Result:     result,
		StaleRead:  staleRead,
		LatencyMS:  float64(w.now().Sub(start)) / float64(time.Millisecond),
		Timestamp:  start.Format(time.RFC3339Nano),
	}
	if cause != nil {
		rec.ErrorKind = model.ErrorKind(cause)
	}
	if result == model.ResultException {
		obs.Logger.Warn("attempt ended in exception",
			"attempt_id", att.ID, "order_id", att.OrderID, "error", cause)
	}
	return rec
}

func (w *Workflow) execute(ctx context.Context, att *model.Attempt, decision inject.Decision) (model.Result, bool, error) {
	tx, err := w.strategy.Begin(ctx, att)
	if err != nil {
		return model.ResultException, false, err
	}

	if err := tx.Reserve(ctx); err != nil {
		return classifyReserve(err), tx.StaleRead(), err
	}

	if err := tx.Charge(ctx); err != nil {
		result, undoErr := tx.Rollback(ctx, err)
		if undoErr != nil {
			return result, tx.StaleRead(), undoErr
		}
		return result, tx.StaleRead(), err
	}

	if decision.Declined {
		// A late decline surfaces only after the gateway delay, with stock
		// already taken; an immediate one is known right away. Either way
		// the authorized payment exists and has to be undone.
		if decision.Late {
			wait(ctx, w.injector.LateDelay())
		}
		cause := model.ErrPaymentDeclined
		result, undoErr := tx.Rollback(ctx, cause)
		if undoErr != nil {
			return result, tx.StaleRead(), undoErr
		}
		return result, tx.StaleRead(), cause
	}

	if err := tx.Commit(ctx); err != nil {
		return model.ResultException, tx.StaleRead(), err
	}
	return model.ResultOK, tx.StaleRead(), nil
}

// classifyReserve maps reservation errors to outcomes: exhausted stock is its
// own bucket, a lock wait that expired is an exception, a spent retry budget
// is a plain failure.
func classifyReserve(err error) model.Result {
	switch {
	case errors.Is(err, model.ErrOutOfStock):
		return model.ResultOutOfStock
	case errors.Is(err, model.ErrContentionTimeout):
		return model.ResultException
	case errors.Is(err, model.ErrConflictExhausted):
		return model.ResultFailed
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return model.ResultException
	default:
		return model.ResultFailed
	}
}

// primarySKU is the first cart line's SKU, the one the per-attempt record is
// keyed on downstream.
func primarySKU(att *model.Attempt) string {
	if len(att.Lines) == 0 {
		return ""
	}
	return att.Lines[0].SKU
}

func wait(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
