// Package inject decides, per checkout attempt, whether an injected failure
// occurs. Decisions are pure functions of (seed, attempt id) so a run is
// reproducible regardless of how the scheduler interleaves workers.
package inject

import (
	"math/rand"
	"time"
)

// Decision is the injected fate of one attempt. Declined means the payment
// fails at the charge step; Late means the decline surfaces only after the
// configured gateway delay, with stock already decremented. CompensationFails
// makes the compensating release itself fail, which is the distinct,
// never-swallowed failure mode behind permanently orphaned payments.
type Decision struct {
	Declined          bool
	Late              bool
	CompensationFails bool
}

// Injector draws failure decisions from configured probabilities.
type Injector struct {
	seed          int64
	failProb      float64
	lateFailProb  float64
	compFailProb  float64
	lateFailDelay time.Duration
}

// Options configures an Injector.
type Options struct {
	Seed          int64
	FailProb      float64
	LateFailProb  float64
	CompFailProb  float64
	LateFailDelay time.Duration
}

// New builds an Injector.
func New(opts Options) *Injector {
	return &Injector{
		seed:          opts.Seed,
		failProb:      opts.FailProb,
		lateFailProb:  opts.LateFailProb,
		compFailProb:  opts.CompFailProb,
		lateFailDelay: opts.LateFailDelay,
	}
}

// mix spreads the attempt id over the seed space (splitmix64 finalizer) so
// consecutive attempt ids do not draw correlated streams.
func mix(seed int64, attempt uint64) int64 {
	z := uint64(seed) + attempt*0x9E3779B97F4A7C15
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	return int64(z ^ (z >> 31))
}

// Decide draws the fate of the given attempt. The base probability declines
// immediately at the charge step; the late probability declines after
// LateFailDelay. Both are evaluated at the same logical point for every
// backend so the comparison stays apples-to-apples.
func (i *Injector) Decide(attempt uint64) Decision {
	rng := rand.New(rand.NewSource(mix(i.seed, attempt)))
	d := Decision{}
	if rng.Float64() < i.failProb {
		d.Declined = true
	} else if rng.Float64() < i.lateFailProb {
		d.Declined = true
		d.Late = true
	}
	if d.Declined && rng.Float64() < i.compFailProb {
		d.CompensationFails = true
	}
	return d
}

// LateDelay returns the configured gateway latency applied before a late
// decline surfaces.
func (i *Injector) LateDelay() time.Duration {
	return i.lateFailDelay
}
