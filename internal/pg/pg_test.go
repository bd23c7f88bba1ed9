package pg_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lox/chessrl/internal/codec"
	"github.com/lox/chessrl/internal/engine/native"
	"github.com/lox/chessrl/internal/network"
	"github.com/lox/chessrl/internal/pg"
)

func TestLearnerSelectActionRespectsMask(t *testing.T) {
	policyNet := network.NewMLP([]int{codec.FeatureSize, 16, codec.ActionSpaceSize}, 0.01, 1)
	learner := pg.New(policyNet, nil, pg.Config{Gamma: 0.99})

	a := native.New()
	start := a.InitialState()
	legal := a.LegalMoves(start)
	rng := rand.New(rand.NewSource(3))

	mv, err := learner.SelectAction(start, legal, rng)
	require.NoError(t, err)

	found := false
	for _, m := range legal {
		if m == mv {
			found = true
		}
	}
	require.True(t, found)
}

func TestLearnEmptyEpisodeIsNoop(t *testing.T) {
	policyNet := network.NewMLP([]int{codec.FeatureSize, 16, codec.ActionSpaceSize}, 0.01, 1)
	learner := pg.New(policyNet, nil, pg.Config{Gamma: 0.99})

	result, err := learner.Learn(nil)
	require.NoError(t, err)
	require.Equal(t, 0.0, result.Loss)
}

func TestLearnWithBaselineRuns(t *testing.T) {
	policyNet := network.NewMLP([]int{codec.FeatureSize, 16, codec.ActionSpaceSize}, 0.01, 1)
	valueNet := network.NewMLP([]int{codec.FeatureSize, 16, 1}, 0.01, 2)
	learner := pg.New(policyNet, valueNet, pg.Config{Gamma: 0.95, UseBaseline: true})

	a := native.New()
	start := a.InitialState()
	legal := a.LegalMoves(start)
	next, err := a.ApplyMove(start, legal[0])
	require.NoError(t, err)

	steps := []pg.Step{
		{
			Features:    codec.EncodeState(start),
			LegalMask:   codec.LegalMask(legal),
			ActionIndex: codec.EncodeMove(legal[0]),
			Reward:      0.1,
		},
		{
			Features:    codec.EncodeState(next),
			LegalMask:   codec.LegalMask(a.LegalMoves(next)),
			ActionIndex: codec.EncodeMove(a.LegalMoves(next)[0]),
			Reward:      1.0,
		},
	}

	result, err := learner.Learn(steps)
	require.NoError(t, err)
	require.GreaterOrEqual(t, result.GradNorm, 0.0)
}
