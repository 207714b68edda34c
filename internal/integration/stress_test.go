package integration

import (
	"testing"
	"time"

	"github.com/fairyhunter13/checkout-consistency-simulator/internal/config"
)

func TestStress_TransactionalHighContention(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping stress test in short mode")
	}
	cfg := baseConfig(config.BackendTransactional)
	cfg.Concurrency = 64
	cfg.Customers = 50
	cfg.OrdersPerUser = 20
	cfg.HotSKUs = 1
	cfg.InitialStock = 50
	cfg.LockTimeout = 10 * time.Second

	counts, scan, _ := runEngine(t, cfg)
	assertRunInvariant(t, cfg, counts)

	// One hot SKU, single-line carts: successes are bounded by the stock.
	if counts.OK > cfg.InitialStock {
		t.Fatalf("ok = %d exceeds initial stock %d", counts.OK, cfg.InitialStock)
	}
	if counts.OK != cfg.InitialStock {
		t.Fatalf("ok = %d, want the stock fully sold", counts.OK)
	}
	if len(scan.Oversold) != 0 || len(scan.Orphans) != 0 {
		t.Fatalf("violations under exclusive holds: oversold=%v orphans=%v",
			scan.Oversold, scan.Orphans)
	}
	if counts.Exceptions != 0 {
		t.Fatalf("contention timeouts with a generous lock budget: %d", counts.Exceptions)
	}
}

func TestStress_CompensatingHighContention(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping stress test in short mode")
	}
	cfg := baseConfig(config.BackendCompensating)
	cfg.Concurrency = 64
	cfg.Customers = 50
	cfg.OrdersPerUser = 20
	cfg.HotSKUs = 2
	cfg.InitialStock = 100
	cfg.LateFailProb = 0.3
	cfg.LateFailDelay = time.Millisecond
	cfg.RetryMax = 1000

	counts, scan, st := runEngine(t, cfg)
	assertRunInvariant(t, cfg, counts)

	if len(scan.Orphans) != 0 {
		t.Fatalf("working compensation left orphans: %+v", scan.Orphans)
	}
	sold := soldUnits(st)
	for _, e := range st.StockReport() {
		if e.Available+sold[e.SKU] != e.Initial {
			t.Fatalf("sku %s: available %d + sold %d != initial %d",
				e.SKU, e.Available, sold[e.SKU], e.Initial)
		}
	}
}
