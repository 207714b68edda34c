package metrics

import (
	"fmt"
	"time"

	"github.com/fairyhunter13/checkout-consistency-simulator/internal/config"
	"github.com/fairyhunter13/checkout-consistency-simulator/internal/model"
	"github.com/fairyhunter13/checkout-consistency-simulator/internal/store"
)

// Counts is the live tally of attempt outcomes.
type Counts struct {
	OK          int64
	OutOfStock  int64
	Failed      int64
	Exceptions  int64
	RolledBack  int64
	Compensated int64
	Total       int64

	StaleReads           int64
	CompensationFailures int64
}

// Add folds one outcome record into the tally.
func (c *Counts) Add(rec model.OutcomeRecord) {
	c.Total++
	switch rec.Result {
	case model.ResultOK:
		c.OK++
	case model.ResultOutOfStock:
		c.OutOfStock++
	case model.ResultFailed:
		c.Failed++
	case model.ResultException:
		c.Exceptions++
	case model.ResultRolledBack:
		c.RolledBack++
	case model.ResultCompensated:
		c.Compensated++
	}
	if rec.StaleRead {
		c.StaleReads++
	}
	if rec.ErrorKind == "compensation_failure" {
		c.CompensationFailures++
	}
}

// Merge adds other into c.
func (c *Counts) Merge(other Counts) {
	c.OK += other.OK
	c.OutOfStock += other.OutOfStock
	c.Failed += other.Failed
	c.Exceptions += other.Exceptions
	c.RolledBack += other.RolledBack
	c.Compensated += other.Compensated
	c.Total += other.Total
	c.StaleReads += other.StaleReads
	c.CompensationFailures += other.CompensationFailures
}

// ConsistencyReport is the end-of-run invariant scan over the primary store.
type ConsistencyReport struct {
	Oversold []model.StockEntry `json:"oversold"`
	Orphans  []model.Payment    `json:"orphans"`

	TotalSKUs     int `json:"total_skus"`
	TotalPayments int `json:"total_payments"`
}

// ScanConsistency inspects the final store state for the two violations the
// benchmark exists to measure: SKUs that sold more units than they had, and
// money-moving payments whose order never reached paid.
func ScanConsistency(st *store.Store) ConsistencyReport {
	var rep ConsistencyReport
	for _, e := range st.StockReport() {
		rep.TotalSKUs++
		if e.Oversold() {
			rep.Oversold = append(rep.Oversold, e)
		}
	}
	orders := st.OrdersSnapshot()
	for _, p := range st.PaymentsSnapshot() {
		rep.TotalPayments++
		if p.Status != model.PaymentAuthorized && p.Status != model.PaymentCaptured {
			continue
		}
		if o, ok := orders[p.OrderID]; !ok || o.Status != model.OrderPaid {
			rep.Orphans = append(rep.Orphans, p)
		}
	}
	return rep
}

// KPIReport is the derived run-level scoreboard.
type KPIReport struct {
	RunID    string `json:"run_id"`
	Scenario string `json:"scenario"`
	Backend  string `json:"backend"`

	OversoldSKUs   int     `json:"oversold_skus"`
	OversoldUnits  int64   `json:"oversold_units"`
	OversellRate   float64 `json:"oversell_rate"`
	OrphanPayments int     `json:"orphan_payments"`
	OrphanRate     float64 `json:"orphan_payment_rate"`

	StaleReads    int64   `json:"stale_reads"`
	StaleReadRate float64 `json:"stale_read_rate"`
	AbortRate     float64 `json:"abort_rate"`

	CompensationFailures int64 `json:"compensation_failures"`
}

// BuildKPIReport derives the scoreboard from the tally and the final scan.
// Deriving from the same inputs twice yields the same report; the scan reads
// a settled store, so the computation is idempotent.
func BuildKPIReport(runID string, cfg config.Config, counts Counts, scan ConsistencyReport) KPIReport {
	rep := KPIReport{
		RunID:                runID,
		Scenario:             cfg.Scenario,
		Backend:              cfg.Backend,
		OversoldSKUs:         len(scan.Oversold),
		OrphanPayments:       len(scan.Orphans),
		StaleReads:           counts.StaleReads,
		CompensationFailures: counts.CompensationFailures,
	}
	for _, e := range scan.Oversold {
		if e.Available < 0 {
			rep.OversoldUnits += -e.Available
		}
	}
	if scan.TotalSKUs > 0 {
		rep.OversellRate = float64(len(scan.Oversold)) / float64(scan.TotalSKUs)
	}
	if scan.TotalPayments > 0 {
		rep.OrphanRate = float64(len(scan.Orphans)) / float64(scan.TotalPayments)
	}
	if counts.Total > 0 {
		// Aborts are attempts the backend threw away: rollbacks and
		// exceptions. Compensations and give-ups are separate phenomena and
		// stay in their own counters.
		aborts := counts.RolledBack + counts.Exceptions
		rep.AbortRate = float64(aborts) / float64(counts.Total)
		rep.StaleReadRate = float64(counts.StaleReads) / float64(counts.Total)
	}
	return rep
}

// BuildRunRecord assembles the per-run summary row. Failed is derived as
// total minus successes minus out-of-stock, which folds every abort flavor
// into one bucket and keeps ok+failed+out_of_stock equal to total.
func BuildRunRecord(runID string, cfg config.Config, started, ended time.Time, counts Counts) model.RunRecord {
	durationS := ended.Sub(started).Seconds()
	rec := model.RunRecord{
		RunID:         runID,
		Scenario:      cfg.Scenario,
		DB:            cfg.Backend,
		SKU:           skuLabel(cfg),
		Customers:     cfg.Customers,
		InitialStock:  cfg.InitialStock,
		OrdersPerUser: cfg.OrdersPerUser,
		Concurrency:   cfg.Concurrency,
		FailureRate:   cfg.FailProb,
		StartedAt:     started.Format(time.RFC3339Nano),
		EndedAt:       ended.Format(time.RFC3339Nano),
		DurationS:     durationS,
		OK:            counts.OK,
		OutOfStock:    counts.OutOfStock,
		Failed:        counts.Total - counts.OK - counts.OutOfStock,
		Total:         counts.Total,

		Compensations:  counts.Compensated,
		ExceptionCount: counts.Exceptions,
		RolledBack:     counts.RolledBack,
		StaleReads:     counts.StaleReads,
	}
	if cfg.Arrival == config.ArrivalWaves {
		rec.Waves = cfg.Waves
		rec.WaveSize = cfg.Concurrency
	}
	if durationS > 0 {
		rec.TPS = float64(counts.Total) / durationS
	}
	return rec
}

func skuLabel(cfg config.Config) string {
	if cfg.HotSKUs == 1 {
		return "SKU-000"
	}
	return fmt.Sprintf("SKU-000..SKU-%03d", cfg.HotSKUs-1)
}
