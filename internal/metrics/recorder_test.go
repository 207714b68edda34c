package metrics

import (
	"bufio"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fairyhunter13/checkout-consistency-simulator/internal/model"
)

type captureSink struct {
	mu   sync.Mutex
	recs []model.OutcomeRecord
	err  error
}

func (s *captureSink) WriteOutcome(rec model.OutcomeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.recs = append(s.recs, rec)
	return nil
}

func (s *captureSink) Close() error { return nil }

func (s *captureSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.recs)
}

func TestRecorder_DrainsEverythingToSinks(t *testing.T) {
	sink := &captureSink{}
	rec := NewRecorder(sink)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec.Start(ctx)

	const n = 200
	for i := 0; i < n; i++ {
		rec.Record(model.OutcomeRecord{AttemptID: uint64(i + 1), Result: model.ResultOK})
	}

	drainCtx, cancelDrain := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelDrain()
	if !rec.DrainUntil(drainCtx) {
		t.Fatal("drain timed out")
	}
	if sink.count() != n {
		t.Fatalf("sink received %d records, want %d", sink.count(), n)
	}

	tally := rec.Tally()
	if tally.Total != n || tally.OK != n {
		t.Fatalf("tally = %+v, want %d ok", tally, n)
	}
}

func TestRecorder_InterleavedBurstsKeepOrder(t *testing.T) {
	sink := &captureSink{}
	rec := NewRecorder(sink)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec.Start(ctx)

	// Alternate bursts with full drains so the broker's backlog handoff
	// runs many times within one test.
	next := uint64(1)
	for burst := 0; burst < 10; burst++ {
		for i := 0; i < 25; i++ {
			rec.Record(model.OutcomeRecord{AttemptID: next, Result: model.ResultOK})
			next++
		}
		drainCtx, cancelDrain := context.WithTimeout(context.Background(), 5*time.Second)
		ok := rec.DrainUntil(drainCtx)
		cancelDrain()
		if !ok {
			t.Fatalf("drain of burst %d timed out", burst)
		}
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.recs) != 250 {
		t.Fatalf("sink received %d records, want 250", len(sink.recs))
	}
	for i, r := range sink.recs {
		if r.AttemptID != uint64(i+1) {
			t.Fatalf("record %d has attempt id %d, submission order lost", i, r.AttemptID)
		}
	}
}

func TestRecorder_CloseIntakeDropsLateRecords(t *testing.T) {
	sink := &captureSink{}
	rec := NewRecorder(sink)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec.Start(ctx)

	rec.Record(model.OutcomeRecord{AttemptID: 1, Result: model.ResultOK})
	rec.CloseIntake()
	rec.Record(model.OutcomeRecord{AttemptID: 2, Result: model.ResultOK})

	drainCtx, cancelDrain := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelDrain()
	if !rec.DrainUntil(drainCtx) {
		t.Fatal("drain timed out")
	}
	if sink.count() != 1 {
		t.Fatalf("sink received %d records, want 1", sink.count())
	}
	if rec.Tally().Total != 1 {
		t.Fatalf("tally total = %d, want 1", rec.Tally().Total)
	}
}

func TestRecorder_SinkErrorDoesNotStall(t *testing.T) {
	bad := &captureSink{err: errors.New("disk full")}
	good := &captureSink{}
	rec := NewRecorder(bad, good)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec.Start(ctx)

	rec.Record(model.OutcomeRecord{AttemptID: 1, Result: model.ResultOK})

	drainCtx, cancelDrain := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelDrain()
	if !rec.DrainUntil(drainCtx) {
		t.Fatal("drain stalled on a failing sink")
	}
	if good.count() != 1 {
		t.Fatalf("healthy sink received %d records, want 1", good.count())
	}
}

func TestJSONLSink_WritesOneObjectPerLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "outcomes.jsonl")
	sink, err := NewJSONLSink(path)
	if err != nil {
		t.Fatalf("NewJSONLSink: %v", err)
	}

	recs := []model.OutcomeRecord{
		{AttemptID: 1, RunID: "r1", Result: model.ResultOK},
		{AttemptID: 2, RunID: "r1", Result: model.ResultOutOfStock, ErrorKind: "out_of_stock"},
	}
	for _, r := range recs {
		if err := sink.WriteOutcome(r); err != nil {
			t.Fatalf("WriteOutcome: %v", err)
		}
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if len(lines) != len(recs) {
		t.Fatalf("file has %d lines, want %d", len(lines), len(recs))
	}
	var back model.OutcomeRecord
	if err := json.UnmarshalFromString(lines[1], &back); err != nil {
		t.Fatalf("unmarshal line: %v", err)
	}
	if back.AttemptID != 2 || back.Result != model.ResultOutOfStock {
		t.Fatalf("roundtrip = %+v", back)
	}
	if strings.Contains(lines[0], `"error"`) {
		t.Fatal("ok outcome should omit the error field")
	}
}

func TestAppendRunRecord_Accumulates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.jsonl")
	for i := 0; i < 3; i++ {
		rec := model.RunRecord{RunID: "r" + string(rune('1'+i)), Total: int64(i)}
		if err := AppendRunRecord(path, rec); err != nil {
			t.Fatalf("AppendRunRecord: %v", err)
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("results file has %d rows, want 3", len(lines))
	}
}

func TestWriteKPIReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kpi.json")
	rep := KPIReport{RunID: "r1", Backend: "quorum", OversoldSKUs: 2, OversoldUnits: 7}
	if err := WriteKPIReport(path, rep); err != nil {
		t.Fatalf("WriteKPIReport: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var back KPIReport
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back != rep {
		t.Fatalf("roundtrip = %+v, want %+v", back, rep)
	}
}
