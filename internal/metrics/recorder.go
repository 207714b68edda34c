// Package metrics collects per-attempt outcome records, fans them out to the
// configured sinks, and derives the run-level consistency KPIs.
package metrics

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fairyhunter13/checkout-consistency-simulator/internal/model"
	"github.com/fairyhunter13/checkout-consistency-simulator/internal/obs"
)

// Sink persists outcome records. Sinks are driven by the recorder's broker
// goroutine, never by workload workers, so a slow sink stalls the backlog
// instead of the benchmark's own latencies.
type Sink interface {
	WriteOutcome(rec model.OutcomeRecord) error
	Close() error
}

// Recorder buffers outcome records behind the workload and drains them to the
// sinks in the background while keeping a live tally.
type Recorder struct {
	mu           sync.Mutex
	backlog      []model.OutcomeRecord
	notify       chan struct{}
	sinks        []Sink
	shuttingDown atomic.Bool

	recorded atomic.Uint64
	written  atomic.Uint64

	tallyMu sync.Mutex
	tally   Counts
}

// NewRecorder creates a Recorder writing to the given sinks.
func NewRecorder(sinks ...Sink) *Recorder {
	return &Recorder{
		notify: make(chan struct{}, 1),
		sinks:  sinks,
	}
}

// Start runs the broker loop until ctx is cancelled.
func (r *Recorder) Start(ctx context.Context) {
	go r.broker(ctx)
}

func (r *Recorder) broker(ctx context.Context) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		r.flushOnce()
		select {
		case <-ctx.Done():
			r.flushOnce()
			return
		case <-r.notify:
		case <-ticker.C:
		}
	}
}

func (r *Recorder) flushOnce() {
	r.mu.Lock()
	batch := r.backlog
	r.backlog = nil
	r.mu.Unlock()

	for _, rec := range batch {
		for _, s := range r.sinks {
			if err := s.WriteOutcome(rec); err != nil {
				obs.Logger.Error("outcome write failed", "attempt_id", rec.AttemptID, "error", err)
			}
		}
		r.written.Add(1)
	}
}

// Record accepts one outcome record. Records arriving after intake closed are
// dropped; the driver drains before the recorder shuts down, so in practice
// this only guards programming errors.
func (r *Recorder) Record(rec model.OutcomeRecord) {
	if r.shuttingDown.Load() {
		obs.Logger.Warn("outcome dropped after intake close", "attempt_id", rec.AttemptID)
		return
	}
	r.recorded.Add(1)

	r.tallyMu.Lock()
	r.tally.Add(rec)
	r.tallyMu.Unlock()

	r.mu.Lock()
	r.backlog = append(r.backlog, rec)
	r.mu.Unlock()
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

// Tally returns a copy of the live counts.
func (r *Recorder) Tally() Counts {
	r.tallyMu.Lock()
	defer r.tallyMu.Unlock()
	return r.tally
}

// CloseIntake disallows future records.
func (r *Recorder) CloseIntake() { r.shuttingDown.Store(true) }

// DrainUntil blocks until every recorded outcome has reached the sinks or ctx
// expires.
func (r *Recorder) DrainUntil(ctx context.Context) bool {
	for {
		r.mu.Lock()
		backlog := len(r.backlog)
		r.mu.Unlock()
		if backlog == 0 && r.recorded.Load() == r.written.Load() {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(50 * time.Millisecond):
		}
	}
}

// CloseSinks closes every sink, returning the first error.
func (r *Recorder) CloseSinks() error {
	var first error
	for _, s := range r.sinks {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
