package results

import (
	"path/filepath"
	"testing"

	"github.com/fairyhunter13/checkout-consistency-simulator/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "results.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_OutcomeInsert(t *testing.T) {
	s := openTestStore(t)
	rec := model.OutcomeRecord{
		AttemptID:  7,
		RunID:      "run-1",
		Scenario:   "rollback",
		Backend:    "compensating",
		SKU:        "SKU-003",
		CustomerID: "cust-0042",
		Result:     model.ResultCompensated,
		StaleRead:  true,
		ErrorKind:  "payment_declined",
		LatencyMS:  1.25,
		Timestamp:  "2026-08-01T12:00:00Z",
	}
	if err := s.WriteOutcome(rec); err != nil {
		t.Fatalf("WriteOutcome: %v", err)
	}

	var n int64
	if err := s.db.Table("outcomes").Where("run_id = ?", "run-1").Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("outcome rows = %d, want 1", n)
	}
}

func TestStore_RunRoundtrip(t *testing.T) {
	s := openTestStore(t)
	rec := model.RunRecord{
		RunID:          "run-2",
		Scenario:       "burst",
		DB:             "quorum",
		SKU:            "SKU-000..SKU-049",
		Customers:      1000,
		InitialStock:   50,
		OrdersPerUser:  3,
		Concurrency:    100,
		FailureRate:    0.1,
		StartedAt:      "2026-08-01T12:00:00Z",
		EndedAt:        "2026-08-01T12:00:30Z",
		DurationS:      30,
		OK:             900,
		Failed:         80,
		OutOfStock:     20,
		Total:          1000,
		TPS:            33.3,
		Compensations:  40,
		ExceptionCount: 5,
		RolledBack:     0,
		StaleReads:     12,
	}
	if err := s.SaveRun(rec); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	back, err := s.RunByID("run-2")
	if err != nil {
		t.Fatalf("RunByID: %v", err)
	}
	if back != rec {
		t.Fatalf("roundtrip mismatch:\n got %+v\nwant %+v", back, rec)
	}

	if _, err := s.RunByID("missing"); err == nil {
		t.Fatal("expected error for missing run")
	}
}

func TestStore_DuplicateRunRejected(t *testing.T) {
	s := openTestStore(t)
	rec := model.RunRecord{RunID: "run-3"}
	if err := s.SaveRun(rec); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	if err := s.SaveRun(rec); err == nil {
		t.Fatal("duplicate run id should violate the unique index")
	}
}
