package replay_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lox/chessrl/internal/chesserr"
	"github.com/lox/chessrl/internal/experience"
	"github.com/lox/chessrl/internal/replay"
)

func mkTransition(reward float64) experience.Transition {
	return experience.Transition{Reward: reward}
}

func TestUniformEvictsOldest(t *testing.T) {
	buf := replay.NewUniform(3)
	for i := 0; i < 5; i++ {
		buf.Add(mkTransition(float64(i)))
	}
	require.Equal(t, 3, buf.Size())
	require.Equal(t, 3, buf.Capacity())

	rng := rand.New(rand.NewSource(1))
	samples, err := buf.Sample(3, rng)
	require.NoError(t, err)
	require.Len(t, samples, 3)
	rewards := map[float64]bool{}
	for _, s := range samples {
		rewards[s.Transition.Reward] = true
	}
	require.True(t, rewards[2] && rewards[3] && rewards[4])
}

func TestSampleKZeroIsNoop(t *testing.T) {
	buf := replay.NewUniform(10)
	buf.Add(mkTransition(1))
	rng := rand.New(rand.NewSource(1))
	out, err := buf.Sample(0, rng)
	require.NoError(t, err)
	require.Empty(t, out)
}

func TestSampleExceedsSizeErrors(t *testing.T) {
	buf := replay.NewUniform(10)
	buf.Add(mkTransition(1))
	rng := rand.New(rand.NewSource(1))
	_, err := buf.Sample(2, rng)
	require.Error(t, err)
	require.True(t, chesserr.As(err, chesserr.ReplayError))
}

func TestSampleKEqualsSizeIsPermutation(t *testing.T) {
	buf := replay.NewUniform(10)
	for i := 0; i < 10; i++ {
		buf.Add(mkTransition(float64(i)))
	}
	rng := rand.New(rand.NewSource(42))
	out, err := buf.Sample(10, rng)
	require.NoError(t, err)
	seen := map[int]bool{}
	for _, s := range out {
		require.False(t, seen[s.Index])
		seen[s.Index] = true
	}
	require.Len(t, seen, 10)
}

func TestPrioritizedSamplingNoDuplicates(t *testing.T) {
	buf := replay.NewPrioritized(50, 0.6, 0.4)
	for i := 0; i < 50; i++ {
		buf.Add(mkTransition(float64(i)))
	}
	rng := rand.New(rand.NewSource(7))
	out, err := buf.Sample(20, rng)
	require.NoError(t, err)
	seen := map[int]bool{}
	for _, s := range out {
		require.False(t, seen[s.Index])
		seen[s.Index] = true
		require.Greater(t, s.Weight, 0.0)
	}
}

func TestPrioritizedUpdatePriorities(t *testing.T) {
	buf := replay.NewPrioritized(10, 0.6, 0.4)
	for i := 0; i < 10; i++ {
		buf.Add(mkTransition(float64(i)))
	}
	err := buf.UpdatePriorities([]int{0, 1}, []float64{5.0})
	require.Error(t, err)
	require.True(t, chesserr.As(err, chesserr.ReplayError))

	err = buf.UpdatePriorities([]int{0, 1}, []float64{5.0, 0.0})
	require.NoError(t, err)
}
