package selfplay_test

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lox/chessrl/internal/agent"
	"github.com/lox/chessrl/internal/engine"
	"github.com/lox/chessrl/internal/engine/native"
	"github.com/lox/chessrl/internal/replay"
	"github.com/lox/chessrl/internal/selfplay"
)

// randomAgent picks a uniformly random legal move; used to keep self-play
// tests fast and deterministic without a real learner.
type randomAgent struct{}

func (randomAgent) Name() string { return "random" }
func (randomAgent) SelectAction(pos engine.Position, legal []engine.Move, rng *rand.Rand) (engine.Move, error) {
	return legal[rng.Intn(len(legal))], nil
}

var _ agent.Agent = randomAgent{}

func TestRunProducesTransitionsForEachGame(t *testing.T) {
	a := native.New()
	buf := replay.NewUniform(10000)
	sink := selfplay.NewBufferSink(buf)

	cfg := selfplay.Config{
		Workers:       4,
		GamesPerCycle: 8,
		MaxPlies:      20,
		WinReward:     1,
		LossReward:    -1,
		DrawReward:    0,
	}
	results, skipped, err := selfplay.Run(context.Background(), a, randomAgent{}, sink, cfg, 42)
	require.NoError(t, err)
	require.Zero(t, skipped)
	require.Len(t, results, 8)

	total := 0
	for _, r := range results {
		total += len(r.Transitions)
		require.LessOrEqual(t, r.Plies, 20)
	}
	require.Greater(t, total, 0)
	require.Equal(t, total, buf.Size())
}

func TestRunIsDeterministicUnderFixedSeed(t *testing.T) {
	a := native.New()
	cfg := selfplay.Config{Workers: 2, GamesPerCycle: 4, MaxPlies: 15, WinReward: 1, LossReward: -1}

	buf1 := replay.NewUniform(10000)
	r1, _, err := selfplay.Run(context.Background(), a, randomAgent{}, selfplay.NewBufferSink(buf1), cfg, 7)
	require.NoError(t, err)

	buf2 := replay.NewUniform(10000)
	r2, _, err := selfplay.Run(context.Background(), a, randomAgent{}, selfplay.NewBufferSink(buf2), cfg, 7)
	require.NoError(t, err)

	require.Equal(t, len(r1), len(r2))
	for i := range r1 {
		require.Equal(t, r1[i].Plies, r2[i].Plies)
		require.Equal(t, r1[i].Outcome, r2[i].Outcome)
	}
}

func TestStepLimitAppliesPenaltyNotDrawReward(t *testing.T) {
	a := native.New()
	buf := replay.NewUniform(1000)
	sink := selfplay.NewBufferSink(buf)

	cfg := selfplay.Config{
		Workers:          1,
		GamesPerCycle:    1,
		MaxPlies:         1,
		WinReward:        1,
		LossReward:       -1,
		DrawReward:       0,
		StepLimitPenalty: -0.5,
	}
	results, skipped, err := selfplay.Run(context.Background(), a, randomAgent{}, sink, cfg, 42)
	require.NoError(t, err)
	require.Zero(t, skipped)
	require.Len(t, results, 1)
	require.True(t, results[0].StepLimited)
	require.LessOrEqual(t, results[0].Plies, 1)

	last := results[0].Transitions[len(results[0].Transitions)-1]
	require.True(t, last.Done)
	require.Equal(t, -0.5, last.Reward)
}

func TestStepPenaltyAppliesToEveryTransition(t *testing.T) {
	a := native.New()
	buf := replay.NewUniform(1000)
	sink := selfplay.NewBufferSink(buf)

	cfg := selfplay.Config{
		Workers:       1,
		GamesPerCycle: 1,
		MaxPlies:      10,
		StepPenalty:   -0.001,
	}
	results, skipped, err := selfplay.Run(context.Background(), a, randomAgent{}, sink, cfg, 1)
	require.NoError(t, err)
	require.Zero(t, skipped)
	require.Len(t, results, 1)
	for _, tr := range results[0].Transitions[:len(results[0].Transitions)-1] {
		require.Equal(t, -0.001, tr.Reward)
	}
}

func TestRunWithOpponentAlternatesColors(t *testing.T) {
	a := native.New()
	buf := replay.NewUniform(10000)
	sink := selfplay.NewBufferSink(buf)

	cfg := selfplay.Config{
		Workers:       2,
		GamesPerCycle: 6,
		MaxPlies:      10,
		Opponent:      randomAgent{},
	}
	results, skipped, err := selfplay.Run(context.Background(), a, randomAgent{}, sink, cfg, 5)
	require.NoError(t, err)
	require.Zero(t, skipped)
	require.Len(t, results, 6)
}

func TestRunZeroGamesIsNoop(t *testing.T) {
	a := native.New()
	buf := replay.NewUniform(10)
	results, skipped, err := selfplay.Run(context.Background(), a, randomAgent{}, selfplay.NewBufferSink(buf), selfplay.Config{}, 1)
	require.NoError(t, err)
	require.Zero(t, skipped)
	require.Empty(t, results)
}

// stallAgent sleeps on every move, forcing any nonzero game timeout to fire.
type stallAgent struct{ delay time.Duration }

func (s stallAgent) Name() string { return "stall" }
func (s stallAgent) SelectAction(pos engine.Position, legal []engine.Move, rng *rand.Rand) (engine.Move, error) {
	time.Sleep(s.delay)
	return legal[rng.Intn(len(legal))], nil
}

func TestGameTimeoutSkipsGameAfterRetries(t *testing.T) {
	a := native.New()
	buf := replay.NewUniform(1000)
	sink := selfplay.NewBufferSink(buf)

	cfg := selfplay.Config{
		Workers:       1,
		GamesPerCycle: 2,
		MaxPlies:      50,
		GameTimeout:   time.Millisecond,
		RetryBudget:   1,
	}
	results, skipped, err := selfplay.Run(context.Background(), a, stallAgent{delay: 20 * time.Millisecond}, sink, cfg, 9)
	require.NoError(t, err)
	require.Empty(t, results)
	require.Equal(t, 2, skipped)
	require.Zero(t, buf.Size(), "timed-out games must not leak partial transitions")
}
