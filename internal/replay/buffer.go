// Package replay implements a fixed-capacity transition store: a uniform
// variant and a prioritized variant sharing one ring-buffer core.
package replay

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/lox/chessrl/internal/chesserr"
	"github.com/lox/chessrl/internal/experience"
)

// Sample is one drawn transition together with its buffer index (needed to
// report back priorities) and importance weight (1.0 for the uniform
// variant).
type Sample struct {
	Index      int
	Transition experience.Transition
	Weight     float64
}

// Buffer is the public replay-buffer contract.
type Buffer interface {
	Add(t experience.Transition)
	Sample(k int, rng *rand.Rand) ([]Sample, error)
	UpdatePriorities(indices []int, tdErrors []float64) error
	Size() int
	Capacity() int
	Clear()
}

// ring is the shared fixed-capacity storage core used by both variants.
type ring struct {
	data     []experience.Transition
	capacity int
	size     int
	writeAt  int
}

func newRing(capacity int) ring {
	return ring{data: make([]experience.Transition, capacity), capacity: capacity}
}

func (r *ring) add(t experience.Transition) int {
	idx := r.writeAt
	r.data[idx] = t
	r.writeAt = (r.writeAt + 1) % r.capacity
	if r.size < r.capacity {
		r.size++
	}
	return idx
}

func (r *ring) Size() int     { return r.size }
func (r *ring) Capacity() int { return r.capacity }

// samplePermutation draws k distinct indices uniformly from [0, size)
// without replacement via a partial Fisher-Yates shuffle.
func samplePermutation(size, k int, rng *rand.Rand) []int {
	perm := make([]int, size)
	for i := range perm {
		perm[i] = i
	}
	for i := 0; i < k; i++ {
		j := i + rng.Intn(size-i)
		perm[i], perm[j] = perm[j], perm[i]
	}
	return perm[:k]
}

func validateSampleSize(k, size int) error {
	if k < 0 {
		return chesserr.New(chesserr.ReplayError, "sample size cannot be negative")
	}
	if k > size {
		return chesserr.New(chesserr.ReplayError, fmt.Sprintf("sample size %d exceeds buffer size %d", k, size))
	}
	return nil
}

// --- Uniform variant -------------------------------------------------------

// Uniform is a fixed-capacity FIFO buffer with uniform sampling (weight=1).
type Uniform struct {
	ring
}

var _ Buffer = (*Uniform)(nil)

// NewUniform constructs a Uniform buffer of the given capacity.
func NewUniform(capacity int) *Uniform {
	return &Uniform{ring: newRing(capacity)}
}

func (b *Uniform) Add(t experience.Transition) { b.ring.add(t) }

func (b *Uniform) Sample(k int, rng *rand.Rand) ([]Sample, error) {
	if err := validateSampleSize(k, b.size); err != nil {
		return nil, err
	}
	if k == 0 {
		return nil, nil
	}
	idxs := samplePermutation(b.size, k, rng)
	out := make([]Sample, k)
	for i, idx := range idxs {
		out[i] = Sample{Index: idx, Transition: b.data[idx], Weight: 1.0}
	}
	return out, nil
}

// UpdatePriorities is a no-op for the uniform variant: it has no priorities
// to update, but still enforces the length-match contract shared with the
// prioritized variant.
func (b *Uniform) UpdatePriorities(indices []int, tdErrors []float64) error {
	if len(indices) != len(tdErrors) {
		return chesserr.New(chesserr.ReplayError, "indices and td-errors length mismatch")
	}
	return nil
}

func (b *Uniform) Clear() {
	b.ring = newRing(b.capacity)
}

// --- Prioritized variant ---------------------------------------------------

const priorityEpsilon = 1e-3

// Prioritized is a fixed-capacity buffer with priority-proportional sampling
// and importance-sampling weights.
type Prioritized struct {
	ring
	priorities  []float64
	alpha       float64
	beta        float64
	maxPriority float64
}

var _ Buffer = (*Prioritized)(nil)

// NewPrioritized constructs a Prioritized buffer. alpha controls how sharply
// sampling favors high-priority transitions (0 = uniform); betaStart is the
// initial importance-sampling correction exponent, annealed toward 1 via
// SetBeta as training progresses.
func NewPrioritized(capacity int, alpha, betaStart float64) *Prioritized {
	return &Prioritized{
		ring:        newRing(capacity),
		priorities:  make([]float64, capacity),
		alpha:       alpha,
		beta:        betaStart,
		maxPriority: 1.0,
	}
}

// SetBeta updates the importance-sampling exponent (annealed toward 1.0 over
// the course of training by the caller).
func (b *Prioritized) SetBeta(beta float64) {
	if beta > 1.0 {
		beta = 1.0
	}
	b.beta = beta
}

func (b *Prioritized) Beta() float64 { return b.beta }

// Add inserts t with the current maximum priority, so fresh transitions are
// favored in sampling before their TD error is known.
func (b *Prioritized) Add(t experience.Transition) {
	idx := b.ring.add(t)
	b.priorities[idx] = b.maxPriority
}

func (b *Prioritized) Sample(k int, rng *rand.Rand) ([]Sample, error) {
	if err := validateSampleSize(k, b.size); err != nil {
		return nil, err
	}
	if k == 0 {
		return nil, nil
	}

	weights := make([]float64, b.size)
	total := 0.0
	for i := 0; i < b.size; i++ {
		w := math.Pow(b.priorities[i], b.alpha)
		weights[i] = w
		total += w
	}

	// Sampling without replacement: draw proportional to weight from a
	// shrinking working set so no index repeats within one call.
	remainingIdx := make([]int, b.size)
	for i := range remainingIdx {
		remainingIdx[i] = i
	}
	remainingWeight := make([]float64, b.size)
	copy(remainingWeight, weights)
	remainingTotal := total

	out := make([]Sample, 0, k)
	maxWeight := 0.0
	isWeights := make([]float64, 0, k)

	for len(out) < k {
		r := rng.Float64() * remainingTotal
		acc := 0.0
		chosen := len(remainingIdx) - 1
		for i, w := range remainingWeight {
			acc += w
			if r <= acc {
				chosen = i
				break
			}
		}
		idx := remainingIdx[chosen]
		p := weights[idx] / total // P(i) over the full population
		isWeight := math.Pow(float64(b.size)*p, -b.beta)
		if isWeight > maxWeight {
			maxWeight = isWeight
		}
		out = append(out, Sample{Index: idx, Transition: b.data[idx]})
		isWeights = append(isWeights, isWeight)

		remainingTotal -= remainingWeight[chosen]
		last := len(remainingIdx) - 1
		remainingIdx[chosen] = remainingIdx[last]
		remainingWeight[chosen] = remainingWeight[last]
		remainingIdx = remainingIdx[:last]
		remainingWeight = remainingWeight[:last]
	}

	if maxWeight == 0 {
		maxWeight = 1
	}
	for i := range out {
		out[i].Weight = isWeights[i] / maxWeight
	}
	return out, nil
}

func (b *Prioritized) UpdatePriorities(indices []int, tdErrors []float64) error {
	if len(indices) != len(tdErrors) {
		return chesserr.New(chesserr.ReplayError, "indices and td-errors length mismatch")
	}
	for i, idx := range indices {
		if idx < 0 || idx >= b.size {
			return chesserr.New(chesserr.ReplayError, fmt.Sprintf("priority update index %d out of range [0,%d)", idx, b.size))
		}
		p := math.Abs(tdErrors[i]) + priorityEpsilon
		b.priorities[idx] = p
		if p > b.maxPriority {
			b.maxPriority = p
		}
	}
	return nil
}

func (b *Prioritized) Clear() {
	capacity := b.capacity
	alpha, beta := b.alpha, b.beta
	b.ring = newRing(capacity)
	b.priorities = make([]float64, capacity)
	b.alpha = alpha
	b.beta = beta
	b.maxPriority = 1.0
}
