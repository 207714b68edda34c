// Package store holds the shared mutable state of one benchmark run: stock
// counters, order and payment tables, and the lagging read projection. One
// Store is created per run and injected into the backend strategy, so
// concurrent runs never interfere.
package store

import (
	"sync"
	"time"

	"github.com/fairyhunter13/checkout-consistency-simulator/internal/model"
)

// CASOutcome reports why a conditional decrement did or did not apply.
type CASOutcome int

const (
	CASApplied CASOutcome = iota
	CASConflict
	CASInsufficient
	CASUnknownSKU
)

type stockState struct {
	initial   int64
	available int64
	version   uint64
}

// Store is the per-run arena. Each exported method is a single atomic
// operation, mirroring the per-statement atomicity of a real storage engine;
// races between operations are the strategies' business.
type Store struct {
	mu         sync.RWMutex
	stock      map[string]*stockState
	orders     map[string]*model.Order
	payments   map[string]*model.Payment // keyed by order id, at most one each
	projection map[string]*model.ProjectionRecord
}

// New seeds a Store with the given SKUs at initialStock each.
func New(skus []string, initialStock int64) *Store {
	s := &Store{
		stock:      make(map[string]*stockState, len(skus)),
		orders:     make(map[string]*model.Order),
		payments:   make(map[string]*model.Payment),
		projection: make(map[string]*model.ProjectionRecord),
	}
	for _, sku := range skus {
		s.stock[sku] = &stockState{initial: initialStock, available: initialStock}
	}
	return s
}

// StockView returns the current available quantity and version of a SKU.
func (s *Store) StockView(sku string) (available int64, version uint64, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.stock[sku]
	if !ok {
		return 0, 0, false
	}
	return st.available, st.version, true
}

// CompareAndDecrement subtracts qty only if the version is still the one the
// caller read and enough stock remains. Any applied write bumps the version.
func (s *Store) CompareAndDecrement(sku string, qty int64, version uint64) (remaining int64, outcome CASOutcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stock[sku]
	if !ok {
		return 0, CASUnknownSKU
	}
	if st.version != version {
		return st.available, CASConflict
	}
	if st.available < qty {
		return st.available, CASInsufficient
	}
	st.available -= qty
	st.version++
	return st.available, CASApplied
}

// DecrementChecked subtracts qty only if enough stock remains. This is the
// linearizable check-and-decrement used under an exclusive hold.
func (s *Store) DecrementChecked(sku string, qty int64) (remaining int64, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, found := s.stock[sku]
	if !found || st.available < qty {
		if st != nil {
			return st.available, false
		}
		return 0, false
	}
	st.available -= qty
	st.version++
	return st.available, true
}

// DecrementBlind subtracts qty unconditionally. Stock may go negative; the
// naive read-then-write strategy depends on exactly that being observable.
func (s *Store) DecrementBlind(sku string, qty int64) (remaining int64, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, found := s.stock[sku]
	if !found {
		return 0, false
	}
	st.available -= qty
	st.version++
	return st.available, true
}

// Release returns qty units of a SKU, used by rollback and compensation.
func (s *Store) Release(sku string, qty int64) (remaining int64, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, found := s.stock[sku]
	if !found {
		return 0, false
	}
	st.available += qty
	st.version++
	return st.available, true
}

// PutOrder inserts or replaces an order row.
func (s *Store) PutOrder(o model.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := o
	s.orders[o.OrderID] = &cp
}

// SetOrderStatus updates an order's terminal status.
func (s *Store) SetOrderStatus(orderID string, status model.OrderStatus) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return false
	}
	o.Status = status
	return true
}

// DeleteOrder removes an order row, used by the transactional rollback which
// undoes the whole attempt as one unit.
func (s *Store) DeleteOrder(orderID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.orders, orderID)
}

// GetOrder returns a copy of the order row.
func (s *Store) GetOrder(orderID string) (model.Order, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[orderID]
	if !ok {
		return model.Order{}, false
	}
	return *o, true
}

// PutPayment inserts the payment row for an order.
func (s *Store) PutPayment(p model.Payment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := p
	s.payments[p.OrderID] = &cp
}

// SetPaymentStatus updates the payment attached to an order.
func (s *Store) SetPaymentStatus(orderID string, status model.PaymentStatus) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[orderID]
	if !ok {
		return false
	}
	p.Status = status
	return true
}

// DeletePayment removes the payment row of an order.
func (s *Store) DeletePayment(orderID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.payments, orderID)
}

// ProjectOrder upserts the projection row of an order.
func (s *Store) ProjectOrder(orderID string, status model.OrderStatus, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projection[orderID] = &model.ProjectionRecord{OrderID: orderID, Status: status, LastUpdate: at}
}

// ProjectionRead returns the projection row of an order, if any.
func (s *Store) ProjectionRead(orderID string) (model.ProjectionRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.projection[orderID]
	if !ok {
		return model.ProjectionRecord{}, false
	}
	return *r, true
}

// OrdersSnapshot returns copies of all order rows.
func (s *Store) OrdersSnapshot() map[string]model.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]model.Order, len(s.orders))
	for id, o := range s.orders {
		out[id] = *o
	}
	return out
}

// PaymentsSnapshot returns copies of all payment rows.
func (s *Store) PaymentsSnapshot() []model.Payment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Payment, 0, len(s.payments))
	for _, p := range s.payments {
		out = append(out, *p)
	}
	return out
}

// StockReport returns the end-of-run view of every SKU counter.
func (s *Store) StockReport() []model.StockEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.StockEntry, 0, len(s.stock))
	for sku, st := range s.stock {
		out = append(out, model.StockEntry{SKU: sku, Initial: st.initial, Available: st.available, Version: st.version})
	}
	return out
}
