// Package model defines domain types shared by the checkout engine.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the lifecycle status of an Order.
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderReserved  OrderStatus = "reserved"
	OrderPaid      OrderStatus = "paid"
	OrderFailed    OrderStatus = "failed"
	OrderCancelled OrderStatus = "cancelled"
)

// PaymentStatus is the lifecycle status of a Payment.
type PaymentStatus string

const (
	PaymentAuthorized PaymentStatus = "authorized"
	PaymentCaptured   PaymentStatus = "captured"
	PaymentFailed     PaymentStatus = "failed"
	PaymentRefunded   PaymentStatus = "refunded"
)

// Result classifies the terminal outcome of one checkout attempt.
type Result string

const (
	ResultOK          Result = "ok"
	ResultOutOfStock  Result = "out_of_stock"
	ResultFailed      Result = "failed"
	ResultException   Result = "exception"
	ResultRolledBack  Result = "rolled_back"
	ResultCompensated Result = "compensated"
)

// Line is a single order line item.
type Line struct {
	SKU       string          `json:"sku"`
	Qty       int64           `json:"qty"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// Order is one checkout attempt's order row.
type Order struct {
	OrderID    string          `json:"order_id"`
	CustomerID string          `json:"customer_id"`
	Lines      []Line          `json:"lines"`
	Total      decimal.Decimal `json:"total"`
	Status     OrderStatus     `json:"status"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Payment is the at-most-one payment row attached to an order.
type Payment struct {
	PaymentID string          `json:"payment_id"`
	OrderID   string          `json:"order_id"`
	Status    PaymentStatus   `json:"status"`
	Amount    decimal.Decimal `json:"amount"`
}

// ProjectionRecord is the read-optimized, asynchronously updated view of an
// order. It may lag the primary order table; that lag is a measured
// phenomenon, not a defect.
type ProjectionRecord struct {
	OrderID    string      `json:"order_id"`
	Status     OrderStatus `json:"status"`
	LastUpdate time.Time   `json:"last_update"`
}

// Attempt carries the immutable inputs of one checkout attempt through the
// workflow and the backend strategy.
type Attempt struct {
	ID         uint64
	RunID      string
	OrderID    string
	CustomerID string
	Lines      []Line

	// CompensationFails is set by the failure injector; when true the
	// compensating stock release of this attempt is made to fail.
	CompensationFails bool
}

// OutcomeRecord is the per-attempt output record, one line per attempt.
type OutcomeRecord struct {
	AttemptID  uint64  `json:"attempt_id"`
	RunID      string  `json:"run_id"`
	Scenario   string  `json:"scenario"`
	Backend    string  `json:"backend"`
	SKU        string  `json:"sku"`
	CustomerID string  `json:"customer_id"`
	Result     Result  `json:"result"`
	StaleRead  bool    `json:"stale_read"`
	ErrorKind  string  `json:"error,omitempty"`
	LatencyMS  float64 `json:"latency_ms"`
	Timestamp  string  `json:"timestamp"`
}

// RunRecord is the per-run summary row consumed by downstream aggregation.
type RunRecord struct {
	RunID         string  `json:"run_id"`
	Scenario      string  `json:"scenario"`
	DB            string  `json:"db"`
	SKU           string  `json:"sku"`
	Customers     int     `json:"customers"`
	InitialStock  int64   `json:"initial_stock"`
	OrdersPerUser int     `json:"orders_per_user"`
	Concurrency   int     `json:"concurrency"`
	FailureRate   float64 `json:"failure_rate"`
	StartedAt     string  `json:"started_at"`
	EndedAt       string  `json:"ended_at"`
	DurationS     float64 `json:"duration_s"`
	OK            int64   `json:"ok"`
	Failed        int64   `json:"failed"`
	OutOfStock    int64   `json:"out_of_stock"`
	Total         int64   `json:"total"`
	TPS           float64 `json:"tps"`

	// Extended fields for richer analysis.
	Waves          int   `json:"waves,omitempty"`
	WaveSize       int   `json:"wave_size,omitempty"`
	Compensations  int64 `json:"compensations,omitempty"`
	ExceptionCount int64 `json:"exception_count,omitempty"`
	RolledBack     int64 `json:"rolled_back,omitempty"`
	StaleReads     int64 `json:"stale_reads,omitempty"`
}

// StockEntry is a point-in-time view of one SKU's stock counter.
type StockEntry struct {
	SKU       string `json:"sku"`
	Initial   int64  `json:"initial"`
	Available int64  `json:"available"`
	Version   uint64 `json:"version"`
}

// Oversold reports whether this SKU sold more units than it ever had.
// Available may exceed Initial after a double release, which is equally a
// consistency violation.
func (e StockEntry) Oversold() bool {
	return e.Available < 0 || e.Available > e.Initial
}
