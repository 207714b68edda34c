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

// Transactional executes each attempt under exclusive holds on every SKU in
// the cart, kept from the reservation through commit or rollback. Within
// those holds the attempt is serializable: stock is never observably
// negative and no payment row survives a rollback.
type Transactional struct {
	st    *store.Store
	guard *inventory.LockingGuard
	now   func() time.Time
}

// NewTransactional builds the serializable strategy.
func NewTransactional(st *store.Store, guard *inventory.LockingGuard) *Transactional {
	return &Transactional{st: st, guard: guard, now: func() time.Time { return time.Now().UTC() }}
}

// Name returns the configured strategy name.
func (s *Transactional) Name() string { return "transactional" }

// Begin inserts the pending order row and opens a Tx.
func (s *Transactional) Begin(_ context.Context, att *model.Attempt) (Tx, error) {
	order := newOrder(att, s.now)
	s.st.PutOrder(order)
	return &txnTx{strategy: s, att: att, order: order}, nil
}

type txnTx struct {
	strategy *Transactional
	att      *model.Attempt
	order    model.Order

	release  func()
	reserved []model.Line
	done     bool
}

// Reserve takes the exclusive holds and applies every line's
// check-and-decrement. Partial grants are restored before the holds drop, so
// no other worker ever observes a half-reserved cart.
func (t *txnTx) Reserve(ctx context.Context) error {
	skus := make([]string, len(t.att.Lines))
	for i, l := range t.att.Lines {
		skus[i] = l.SKU
	}
	release, err := t.strategy.guard.Hold(ctx, skus)
	if err != nil {
		t.strategy.st.DeleteOrder(t.order.OrderID)
		t.done = true
		return err
	}
	t.release = release

	st := t.strategy.st
	for _, l := range t.att.Lines {
		if _, ok := st.DecrementChecked(l.SKU, l.Qty); !ok {
			for _, r := range t.reserved {
				st.Release(r.SKU, r.Qty)
			}
			t.reserved = nil
			st.SetOrderStatus(t.order.OrderID, model.OrderCancelled)
			t.finish()
			return fmt.Errorf("sku %s: %w", l.SKU, model.ErrOutOfStock)
		}
		t.reserved = append(t.reserved, l)
	}
	st.SetOrderStatus(t.order.OrderID, model.OrderReserved)
	return nil
}

// Charge records the authorized payment, still under the holds.
func (t *txnTx) Charge(context.Context) error {
	t.strategy.st.PutPayment(model.Payment{
		PaymentID: uuid.NewString(),
		OrderID:   t.order.OrderID,
		Status:    model.PaymentAuthorized,
		Amount:    t.order.Total,
	})
	return nil
}

// Commit captures the payment and marks the order paid in the same exclusive
// section, then drops the holds.
func (t *txnTx) Commit(context.Context) error {
	st := t.strategy.st
	st.SetPaymentStatus(t.order.OrderID, model.PaymentCaptured)
	st.SetOrderStatus(t.order.OrderID, model.OrderPaid)
	t.finish()
	return nil
}

// Rollback undoes the reservation, the payment and the order row as one unit
// before the holds drop, mirroring a storage-level transaction abort.
func (t *txnTx) Rollback(_ context.Context, cause error) (model.Result, error) {
	st := t.strategy.st
	for _, r := range t.reserved {
		st.Release(r.SKU, r.Qty)
	}
	t.reserved = nil
	st.DeletePayment(t.order.OrderID)
	st.DeleteOrder(t.order.OrderID)
	t.finish()
	if cause != nil && model.ErrorKind(cause) == "driver_fault" {
		return model.ResultException, nil
	}
	return model.ResultRolledBack, nil
}

// StaleRead is always false: the transactional variant has no projection.
func (t *txnTx) StaleRead() bool { return false }

func (t *txnTx) finish() {
	if t.done {
		return
	}
	t.done = true
	if t.release != nil {
		t.release()
		t.release = nil
	}
}
