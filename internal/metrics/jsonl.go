package metrics

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	jsoniter "github.com/json-iterator/go"

	"github.com/fairyhunter13/checkout-consistency-simulator/internal/model"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// JSONLSink appends outcome records to a JSON-lines file, one object per
// attempt, the format the downstream analysis tooling ingests.
type JSONLSink struct {
	mu sync.Mutex
	f  *os.File
	w  *bufio.Writer
}

// NewJSONLSink creates (or truncates) path and its parent directories.
func NewJSONLSink(path string) (*JSONLSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create outcome file: %w", err)
	}
	return &JSONLSink{f: f, w: bufio.NewWriter(f)}, nil
}

// WriteOutcome appends one record.
func (s *JSONLSink) WriteOutcome(rec model.OutcomeRecord) error {
	buf, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal outcome: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write(buf); err != nil {
		return err
	}
	return s.w.WriteByte('\n')
}

// Close flushes and closes the file.
func (s *JSONLSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.w.Flush(); err != nil {
		s.f.Close()
		return err
	}
	return s.f.Close()
}

// AppendRunRecord appends the run summary row to the shared results file,
// creating it on first use. Successive runs accumulate rows.
func AppendRunRecord(path string, rec model.RunRecord) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open results file: %w", err)
	}
	defer f.Close()
	buf, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal run record: %w", err)
	}
	if _, err := f.Write(append(buf, '\n')); err != nil {
		return err
	}
	return nil
}

// WriteKPIReport writes the run's scoreboard as a standalone JSON document.
func WriteKPIReport(path string, rep KPIReport) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	buf, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal kpi report: %w", err)
	}
	return os.WriteFile(path, append(buf, '\n'), 0o644)
}
