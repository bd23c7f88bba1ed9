package explore_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lox/chessrl/internal/codec"
	"github.com/lox/chessrl/internal/explore"
)

func maskOf(actions ...int) [codec.ActionSpaceSize]bool {
	var mask [codec.ActionSpaceSize]bool
	for _, a := range actions {
		mask[a] = true
	}
	return mask
}

func TestEpsilonGreedyZeroEpsilonIsGreedy(t *testing.T) {
	p := explore.NewEpsilonGreedy(0, 0, 1)
	var q [codec.ActionSpaceSize]float64
	q[3] = 1
	q[7] = 5
	q[9] = 2

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 10; i++ {
		require.Equal(t, 7, p.SelectAction(q, maskOf(3, 7, 9), rng))
	}
}

func TestEpsilonGreedyBreaksTiesBySmallestIndex(t *testing.T) {
	p := explore.NewEpsilonGreedy(0, 0, 1)
	var q [codec.ActionSpaceSize]float64
	q[3] = 5
	q[7] = 5

	rng := rand.New(rand.NewSource(1))
	require.Equal(t, 3, p.SelectAction(q, maskOf(3, 7), rng))
}

func TestEpsilonGreedyIgnoresIllegalActions(t *testing.T) {
	p := explore.NewEpsilonGreedy(1.0, 1.0, 1) // always explore
	var q [codec.ActionSpaceSize]float64
	q[100] = 1000 // illegal, must never be picked
	mask := maskOf(1, 2)

	rng := rand.New(rand.NewSource(2))
	for i := 0; i < 20; i++ {
		a := p.SelectAction(q, mask, rng)
		require.Contains(t, []int{1, 2}, a)
	}
}

func TestEpsilonGreedyDecaysToFloor(t *testing.T) {
	p := explore.NewEpsilonGreedy(0.5, 0.1, 0.5)
	p.Update()
	require.Equal(t, 0.25, p.CurrentRate())
	p.Update()
	require.Equal(t, 0.125, p.CurrentRate())
	p.Update()
	require.Equal(t, 0.1, p.CurrentRate())
	p.Update()
	require.Equal(t, 0.1, p.CurrentRate())
}

func TestEpsilonGreedyEmptyMaskReturnsNegative(t *testing.T) {
	p := explore.NewEpsilonGreedy(0.2, 0.01, 0.99)
	var q [codec.ActionSpaceSize]float64
	var mask [codec.ActionSpaceSize]bool
	require.Equal(t, -1, p.SelectAction(q, mask, rand.New(rand.NewSource(3))))
}

func TestBoltzmannSamplesOnlyLegalActions(t *testing.T) {
	p := explore.NewBoltzmann(1.0, 0.1, 0.99)
	var q [codec.ActionSpaceSize]float64
	q[5] = 2
	q[11] = 1
	mask := maskOf(5, 11)

	rng := rand.New(rand.NewSource(4))
	counts := map[int]int{}
	for i := 0; i < 200; i++ {
		counts[p.SelectAction(q, mask, rng)]++
	}
	require.Len(t, counts, 2)
	// Higher-Q action should dominate at temperature 1.
	require.Greater(t, counts[5], counts[11])
}

func TestBoltzmannTemperatureDecaysToFloor(t *testing.T) {
	p := explore.NewBoltzmann(1.0, 0.5, 0.5)
	p.Update()
	require.Equal(t, 0.5, p.CurrentRate())
	p.Update()
	require.Equal(t, 0.5, p.CurrentRate())
}
