package backend

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fairyhunter13/checkout-consistency-simulator/internal/inventory"
	"github.com/fairyhunter13/checkout-consistency-simulator/internal/model"
	"github.com/fairyhunter13/checkout-consistency-simulator/internal/store"
)

// Compensating is the decrement-first family: stock is taken line by line
// with no cross-line hold, and failures after the decrement are undone by an
// explicit compensation step. The reservation guard decides the flavor — CAS
// for the optimistic variant, naive read-then-write for the worst case.
type Compensating struct {
	name  string
	st    *store.Store
	guard inventory.Guard
	now   func() time.Time
}

// NewCompensating builds a decrement-first strategy named name over the given
// guard.
func NewCompensating(name string, st *store.Store, guard inventory.Guard) *Compensating {
	return &Compensating{name: name, st: st, guard: guard, now: func() time.Time { return time.Now().UTC() }}
}

// Name returns the configured strategy name.
func (s *Compensating) Name() string { return s.name }

// Begin inserts the pending order row and opens a Tx.
func (s *Compensating) Begin(_ context.Context, att *model.Attempt) (Tx, error) {
	order := newOrder(att, s.now)
	s.st.PutOrder(order)
	return &compTx{strategy: s, att: att, order: order}, nil
}

type compTx struct {
	strategy *Compensating
	att      *model.Attempt
	order    model.Order

	reserved  []model.Line
	staleRead bool
}

// Reserve takes stock one line at a time. A denied or failed line releases
// the lines already granted before returning, so a lost race on one SKU does
// not strand units on the others.
func (t *compTx) Reserve(ctx context.Context) error {
	st := t.strategy.st
	for _, l := range t.att.Lines {
		res, err := t.strategy.guard.TryReserve(ctx, l.SKU, l.Qty)
		if err != nil {
			t.releaseReserved()
			st.SetOrderStatus(t.order.OrderID, model.OrderFailed)
			return err
		}
		if !res.Granted {
			t.releaseReserved()
			st.SetOrderStatus(t.order.OrderID, model.OrderCancelled)
			return fmt.Errorf("sku %s: %w", l.SKU, model.ErrOutOfStock)
		}
		t.reserved = append(t.reserved, l)
	}
	st.SetOrderStatus(t.order.OrderID, model.OrderReserved)
	return nil
}

// Charge records the authorized payment. Stock is already decremented; a
// decline from here on has something to undo.
func (t *compTx) Charge(context.Context) error {
	t.strategy.st.PutPayment(model.Payment{
		PaymentID: uuid.NewString(),
		OrderID:   t.order.OrderID,
		Status:    model.PaymentAuthorized,
		Amount:    t.order.Total,
	})
	return nil
}

// Commit captures the payment and marks the order paid, then checks whether
// the projection has caught up with this attempt's own write.
func (t *compTx) Commit(context.Context) error {
	st := t.strategy.st
	st.SetPaymentStatus(t.order.OrderID, model.PaymentCaptured)
	st.SetOrderStatus(t.order.OrderID, model.OrderPaid)
	t.checkProjection(model.OrderPaid)
	return nil
}

// Rollback compensates: release the reserved stock, fail the payment, cancel
// the order. When the injected compensation failure fires, the release is
// skipped and the payment stays in its captured-equivalent authorized state,
// producing the orphan the scans look for.
func (t *compTx) Rollback(_ context.Context, cause error) (model.Result, error) {
	st := t.strategy.st
	if t.att.CompensationFails && len(t.reserved) > 0 {
		st.SetOrderStatus(t.order.OrderID, model.OrderFailed)
		t.checkProjection(model.OrderFailed)
		return model.ResultFailed,
			fmt.Errorf("order %s: %w", t.order.OrderID, model.ErrCompensationFailure)
	}
	t.releaseReserved()
	st.SetPaymentStatus(t.order.OrderID, model.PaymentFailed)
	st.SetOrderStatus(t.order.OrderID, model.OrderCancelled)
	t.checkProjection(model.OrderCancelled)
	if cause != nil && model.ErrorKind(cause) == "driver_fault" {
		return model.ResultException, nil
	}
	return model.ResultCompensated, nil
}

// StaleRead reports the outcome of the post-terminal projection check.
func (t *compTx) StaleRead() bool { return t.staleRead }

// releaseReserved returns every granted line exactly once.
func (t *compTx) releaseReserved() {
	for _, r := range t.reserved {
		_ = t.strategy.guard.Release(r.SKU, r.Qty)
	}
	t.reserved = nil
}

// checkProjection performs this attempt's read-your-own-write probe: after
// the terminal status lands on the primary, does the projection agree?
func (t *compTx) checkProjection(want model.OrderStatus) {
	rec, ok := t.strategy.st.ProjectionRead(t.order.OrderID)
	if !ok || rec.Status != want {
		t.staleRead = true
	}
}
