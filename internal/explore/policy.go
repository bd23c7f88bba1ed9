// Package explore implements two exploration policies over legal actions:
// epsilon-greedy and Boltzmann action selection, each with a decay schedule.
package explore

import (
	"math"
	"math/rand"

	"github.com/lox/chessrl/internal/codec"
)

// Policy is the exploration-strategy contract.
type Policy interface {
	SelectAction(q [codec.ActionSpaceSize]float64, mask [codec.ActionSpaceSize]bool, rng *rand.Rand) int
	Update()
	CurrentRate() float64
}

func legalIndices(mask [codec.ActionSpaceSize]bool) []int {
	out := make([]int, 0, 32)
	for i, ok := range mask {
		if ok {
			out = append(out, i)
		}
	}
	return out
}

// argmaxLegal returns the legal action with highest Q value, breaking ties
// by smallest action index for determinism under a fixed seed.
func argmaxLegal(q [codec.ActionSpaceSize]float64, legal []int) int {
	best := legal[0]
	bestQ := q[best]
	for _, a := range legal[1:] {
		if q[a] > bestQ {
			best = a
			bestQ = q[a]
		}
	}
	return best
}

// EpsilonGreedy selects a uniformly random legal action with probability
// epsilon, else the legal argmax. Epsilon decays multiplicatively toward a
// floor after every Update call (one call per completed episode).
type EpsilonGreedy struct {
	Epsilon      float64
	EpsilonMin   float64
	EpsilonDecay float64
}

var _ Policy = (*EpsilonGreedy)(nil)

// NewEpsilonGreedy constructs a schedule starting at start, decaying
// multiplicatively by decay (per Update call) down to a floor of min.
func NewEpsilonGreedy(start, min, decay float64) *EpsilonGreedy {
	return &EpsilonGreedy{Epsilon: start, EpsilonMin: min, EpsilonDecay: decay}
}

func (e *EpsilonGreedy) SelectAction(q [codec.ActionSpaceSize]float64, mask [codec.ActionSpaceSize]bool, rng *rand.Rand) int {
	legal := legalIndices(mask)
	if len(legal) == 0 {
		return -1
	}
	if rng.Float64() < e.Epsilon {
		return legal[rng.Intn(len(legal))]
	}
	return argmaxLegal(q, legal)
}

func (e *EpsilonGreedy) Update() {
	e.Epsilon *= e.EpsilonDecay
	if e.Epsilon < e.EpsilonMin {
		e.Epsilon = e.EpsilonMin
	}
}

func (e *EpsilonGreedy) CurrentRate() float64 { return e.Epsilon }

// Boltzmann samples from softmax(Q/tau) restricted to legal actions.
// Temperature decays multiplicatively toward a floor after every Update.
type Boltzmann struct {
	Temperature      float64
	TemperatureMin   float64
	TemperatureDecay float64
}

var _ Policy = (*Boltzmann)(nil)

// NewBoltzmann constructs a temperature schedule; tau must stay > 0, enforced
// by clamping to TemperatureMin.
func NewBoltzmann(start, min, decay float64) *Boltzmann {
	if min <= 0 {
		min = 1e-3
	}
	return &Boltzmann{Temperature: start, TemperatureMin: min, TemperatureDecay: decay}
}

func (b *Boltzmann) SelectAction(q [codec.ActionSpaceSize]float64, mask [codec.ActionSpaceSize]bool, rng *rand.Rand) int {
	legal := legalIndices(mask)
	if len(legal) == 0 {
		return -1
	}
	tau := b.Temperature
	if tau <= 0 {
		tau = b.TemperatureMin
	}

	maxQ := q[legal[0]]
	for _, a := range legal[1:] {
		if q[a] > maxQ {
			maxQ = q[a]
		}
	}

	weights := make([]float64, len(legal))
	total := 0.0
	for i, a := range legal {
		w := math.Exp((q[a] - maxQ) / tau)
		weights[i] = w
		total += w
	}

	r := rng.Float64() * total
	acc := 0.0
	for i, w := range weights {
		acc += w
		if r <= acc {
			return legal[i]
		}
	}
	return legal[len(legal)-1]
}

func (b *Boltzmann) Update() {
	b.Temperature *= b.TemperatureDecay
	if b.Temperature < b.TemperatureMin {
		b.Temperature = b.TemperatureMin
	}
}

func (b *Boltzmann) CurrentRate() float64 { return b.Temperature }
