package metrics

import (
	"testing"
	"time"

	"github.com/fairyhunter13/checkout-consistency-simulator/internal/config"
	"github.com/fairyhunter13/checkout-consistency-simulator/internal/model"
	"github.com/fairyhunter13/checkout-consistency-simulator/internal/store"
)

func sampleCounts() Counts {
	var c Counts
	outcomes := []model.OutcomeRecord{
		{Result: model.ResultOK},
		{Result: model.ResultOK},
		{Result: model.ResultOutOfStock},
		{Result: model.ResultFailed, ErrorKind: "conflict_exhausted"},
		{Result: model.ResultFailed, ErrorKind: "compensation_failure"},
		{Result: model.ResultException, ErrorKind: "contention_timeout"},
		{Result: model.ResultRolledBack, ErrorKind: "payment_declined"},
		{Result: model.ResultCompensated, ErrorKind: "payment_declined", StaleRead: true},
	}
	for _, rec := range outcomes {
		c.Add(rec)
	}
	return c
}

func TestCounts_Add(t *testing.T) {
	c := sampleCounts()
	if c.Total != 8 {
		t.Fatalf("total = %d, want 8", c.Total)
	}
	if c.OK != 2 || c.OutOfStock != 1 || c.Failed != 2 {
		t.Fatalf("ok/oos/failed = %d/%d/%d, want 2/1/2", c.OK, c.OutOfStock, c.Failed)
	}
	if c.Exceptions != 1 || c.RolledBack != 1 || c.Compensated != 1 {
		t.Fatalf("exc/rb/comp = %d/%d/%d, want 1/1/1", c.Exceptions, c.RolledBack, c.Compensated)
	}
	if c.StaleReads != 1 || c.CompensationFailures != 1 {
		t.Fatalf("stale/compfail = %d/%d, want 1/1", c.StaleReads, c.CompensationFailures)
	}
}

func TestCounts_Merge(t *testing.T) {
	a := sampleCounts()
	b := sampleCounts()
	a.Merge(b)
	if a.Total != 16 || a.OK != 4 || a.StaleReads != 2 {
		t.Fatalf("merged = %+v", a)
	}
}

func TestScanConsistency_CleanStore(t *testing.T) {
	st := store.New([]string{"SKU-000"}, 10)
	st.PutOrder(model.Order{OrderID: "o1", Status: model.OrderPaid})
	st.PutPayment(model.Payment{PaymentID: "p1", OrderID: "o1", Status: model.PaymentCaptured})

	rep := ScanConsistency(st)
	if len(rep.Oversold) != 0 {
		t.Fatalf("oversold = %+v, want none", rep.Oversold)
	}
	if len(rep.Orphans) != 0 {
		t.Fatalf("orphans = %+v, want none", rep.Orphans)
	}
}

func TestScanConsistency_FindsViolations(t *testing.T) {
	st := store.New([]string{"SKU-000", "SKU-001"}, 2)
	st.DecrementBlind("SKU-000", 3) // negative

	// Captured payment against a cancelled order: an orphan.
	st.PutOrder(model.Order{OrderID: "o1", Status: model.OrderCancelled})
	st.PutPayment(model.Payment{PaymentID: "p1", OrderID: "o1", Status: model.PaymentCaptured})
	// Authorized payment with no order row at all: also an orphan.
	st.PutPayment(model.Payment{PaymentID: "p2", OrderID: "o-gone", Status: model.PaymentAuthorized})
	// Failed payment is settled, not an orphan.
	st.PutOrder(model.Order{OrderID: "o2", Status: model.OrderCancelled})
	st.PutPayment(model.Payment{PaymentID: "p3", OrderID: "o2", Status: model.PaymentFailed})

	rep := ScanConsistency(st)
	if len(rep.Oversold) != 1 || rep.Oversold[0].SKU != "SKU-000" {
		t.Fatalf("oversold = %+v, want SKU-000 only", rep.Oversold)
	}
	if len(rep.Orphans) != 2 {
		t.Fatalf("orphans = %+v, want p1 and p2", rep.Orphans)
	}
}

func TestScanConsistency_Idempotent(t *testing.T) {
	st := store.New([]string{"SKU-000"}, 2)
	st.DecrementBlind("SKU-000", 5)

	first := ScanConsistency(st)
	second := ScanConsistency(st)
	if len(first.Oversold) != len(second.Oversold) || len(first.Orphans) != len(second.Orphans) {
		t.Fatalf("scan not idempotent: %+v vs %+v", first, second)
	}
}

func TestBuildKPIReport(t *testing.T) {
	st := store.New([]string{"SKU-000"}, 2)
	st.DecrementBlind("SKU-000", 5) // available -3
	st.PutPayment(model.Payment{PaymentID: "p1", OrderID: "o-gone", Status: model.PaymentCaptured})

	cfg := config.Config{Scenario: "burst", Backend: config.BackendQuorum}
	counts := sampleCounts()
	scan := ScanConsistency(st)

	rep := BuildKPIReport("run-1", cfg, counts, scan)
	if rep.OversoldSKUs != 1 || rep.OversoldUnits != 3 {
		t.Fatalf("oversold skus/units = %d/%d, want 1/3", rep.OversoldSKUs, rep.OversoldUnits)
	}
	if rep.OversellRate != 1.0 {
		t.Fatalf("oversell rate = %v, want 1.0 (the only SKU oversold)", rep.OversellRate)
	}
	if rep.OrphanPayments != 1 || rep.OrphanRate != 1.0 {
		t.Fatalf("orphans = %d rate = %v, want 1/1.0", rep.OrphanPayments, rep.OrphanRate)
	}
	// Only the rollback and the exception count as aborts; the compensated
	// and failed outcomes have their own counters.
	if rep.AbortRate != 2.0/8.0 {
		t.Fatalf("abort rate = %v, want 0.25", rep.AbortRate)
	}
	if rep.StaleReadRate != 1.0/8.0 {
		t.Fatalf("stale read rate = %v, want 0.125", rep.StaleReadRate)
	}
	if rep.CompensationFailures != 1 {
		t.Fatalf("compensation failures = %d, want 1", rep.CompensationFailures)
	}

	// Same inputs, same report.
	again := BuildKPIReport("run-1", cfg, counts, scan)
	if rep != again {
		t.Fatalf("report not idempotent: %+v vs %+v", rep, again)
	}
}

func TestBuildKPIReport_AbortRateCountsOnlyRollbacksAndExceptions(t *testing.T) {
	st := store.New([]string{"SKU-000"}, 10)
	cfg := config.Config{Scenario: "rollback", Backend: config.BackendCompensating}
	scan := ScanConsistency(st)

	var c Counts
	for i := 0; i < 6; i++ {
		c.Add(model.OutcomeRecord{Result: model.ResultCompensated})
	}
	for i := 0; i < 2; i++ {
		c.Add(model.OutcomeRecord{Result: model.ResultFailed})
	}
	if rate := BuildKPIReport("run-1", cfg, c, scan).AbortRate; rate != 0 {
		t.Fatalf("abort rate = %v, compensations and give-ups must not count", rate)
	}

	c.Add(model.OutcomeRecord{Result: model.ResultRolledBack})
	c.Add(model.OutcomeRecord{Result: model.ResultException})
	if rate := BuildKPIReport("run-1", cfg, c, scan).AbortRate; rate != 2.0/10.0 {
		t.Fatalf("abort rate = %v, want 0.2", rate)
	}
}

func TestBuildRunRecord_InvariantHolds(t *testing.T) {
	cfg := config.Config{
		Scenario:     "rollback",
		Backend:      config.BackendCompensating,
		Arrival:      config.ArrivalWaves,
		Waves:        5,
		Concurrency:  100,
		Customers:    1000,
		InitialStock: 50,
		HotSKUs:      2,
		FailProb:     0.1,
	}
	counts := sampleCounts()
	started := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	ended := started.Add(4 * time.Second)

	rec := BuildRunRecord("run-1", cfg, started, ended, counts)
	if rec.OK+rec.Failed+rec.OutOfStock != rec.Total {
		t.Fatalf("ok+failed+out_of_stock = %d, want total %d",
			rec.OK+rec.Failed+rec.OutOfStock, rec.Total)
	}
	if rec.Failed != 5 {
		t.Fatalf("failed bucket = %d, want every abort flavor folded in", rec.Failed)
	}
	if rec.TPS != float64(counts.Total)/4.0 {
		t.Fatalf("tps = %v, want %v", rec.TPS, float64(counts.Total)/4.0)
	}
	if rec.DB != config.BackendCompensating {
		t.Fatalf("db = %q, want backend name", rec.DB)
	}
	if rec.Waves != 5 || rec.WaveSize != 100 {
		t.Fatalf("waves/wave_size = %d/%d, want 5/100", rec.Waves, rec.WaveSize)
	}
	if rec.SKU != "SKU-000..SKU-001" {
		t.Fatalf("sku label = %q", rec.SKU)
	}
	if rec.DurationS != 4 {
		t.Fatalf("duration = %v, want 4s", rec.DurationS)
	}
}
