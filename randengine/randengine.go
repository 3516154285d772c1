// Package randengine wraps golang.org/x/exp/rand behind a mutex-guarded
// Engine, adapted near-verbatim from the teacher's utils/randengine package:
// entity/junction/junction.go and entity/aoi/aoi.go each keep one
// randengine.Engine seeded from their own entity ID so sampling stays
// reproducible per-entity regardless of dispatch order. citysim-go's
// intersection.Manager resolves equal-priority ties with a deterministic
// sort key (since, then TurnID) rather than a coin flip, since spec.md §8's
// Determinism property is cheaper to guarantee that way; Engine is kept
// here as the seeded-sampling primitive for scenario-generation tooling
// (scenario.GenerateBackgroundBusDemand uses it) that needs reproducible
// randomness without touching the engine's own arbitration determinism.
package randengine

import (
	"flag"
	"log"
	"sync"

	"golang.org/x/exp/rand"
)

var seedOffset = flag.Uint64("rand.seed_offset", 0, "seed offset applied to every Engine's seed")

// Engine is a thread-safe wrapper around a seeded rand.Rand. The embedded
// *rand.Rand is safe to call directly from single-threaded callers (e.g.
// sim.Sim's own dispatch loop, which never calls an Engine concurrently
// with itself); the *Safe methods exist for callers shared across
// goroutines, matching the teacher's own split between unsynchronized and
// mutex-guarded accessors.
type Engine struct {
	*rand.Rand
	mtx sync.Mutex
}

// New creates an Engine seeded from seed plus the process-wide seed_offset
// flag, so a deterministic replay can shift every engine's sequence in
// lockstep without touching call sites.
func New(seed uint64) *Engine {
	return &Engine{Rand: rand.New(rand.NewSource(seed + *seedOffset))}
}

// DiscreteDistribution samples an index in [0, len(weight)) with
// probability proportional to weight[i]. Not safe for concurrent use.
func (e *Engine) DiscreteDistribution(weight []float64) int32 {
	var total float64
	for _, w := range weight {
		total += w
	}
	random := total * e.Float64()
	var sum float64
	for i, w := range weight {
		sum += w
		if sum > random {
			return int32(i)
		}
	}
	log.Panicf("randengine: DiscreteDistribution: sum=%f random=%f", sum, random)
	return -1
}

// PTrue reports true with probability p. Not safe for concurrent use.
func (e *Engine) PTrue(p float64) bool {
	return e.Float64() < p
}

// PTrueSafe is the concurrency-safe form of PTrue.
func (e *Engine) PTrueSafe(p float64) bool {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	return e.Float64() < p
}

// IntnSafe is the concurrency-safe form of Intn.
func (e *Engine) IntnSafe(n int) int {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	return e.Intn(n)
}

// Float64Safe is the concurrency-safe form of Float64.
func (e *Engine) Float64Safe() float64 {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	return e.Float64()
}

// ExpFloat64Safe is the concurrency-safe form of ExpFloat64, for Poisson
// inter-arrival sampling.
func (e *Engine) ExpFloat64Safe() float64 {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	return e.ExpFloat64()
}
