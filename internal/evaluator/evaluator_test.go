package evaluator_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lox/chessrl/internal/agent"
	"github.com/lox/chessrl/internal/engine"
	"github.com/lox/chessrl/internal/engine/native"
	"github.com/lox/chessrl/internal/evaluator"
)

func TestEvaluateAlternatesColorsAndSumsToGames(t *testing.T) {
	a := native.New()
	candidate := agent.NewHeuristic(a)
	opponent := agent.NewMinimax(a, 1)
	rng := rand.New(rand.NewSource(1))

	res, err := evaluator.Evaluate(a, candidate, opponent, evaluator.Config{Games: 6, MaxPlies: 10}, rng)
	require.NoError(t, err)
	require.Equal(t, 6, res.Games)
	require.Equal(t, res.Games, res.Wins+res.Draws+res.Losses)
	require.Equal(t, 3, res.WinsAsWhite+res.DrawsAsWhite+res.LossesAsWhite)
	require.Equal(t, 3, res.WinsAsBlack+res.DrawsAsBlack+res.LossesAsBlack)
	require.Len(t, res.GameLengths, 6)
}

func TestEvaluateOddGamesGivesExtraWhiteGameToCandidate(t *testing.T) {
	a := native.New()
	candidate := agent.NewHeuristic(a)
	opponent := agent.NewHeuristic(a)
	rng := rand.New(rand.NewSource(2))

	res, err := evaluator.Evaluate(a, candidate, opponent, evaluator.Config{Games: 5, MaxPlies: 4}, rng)
	require.NoError(t, err)
	require.Equal(t, 3, res.WinsAsWhite+res.DrawsAsWhite+res.LossesAsWhite)
	require.Equal(t, 2, res.WinsAsBlack+res.DrawsAsBlack+res.LossesAsBlack)
}

func TestEvaluateZeroGamesIsNoop(t *testing.T) {
	a := native.New()
	candidate := agent.NewHeuristic(a)
	opponent := agent.NewHeuristic(a)
	rng := rand.New(rand.NewSource(3))

	res, err := evaluator.Evaluate(a, candidate, opponent, evaluator.Config{Games: 0}, rng)
	require.NoError(t, err)
	require.Equal(t, 0, res.Games)
}

func TestWinRateAndCIConsistentAgainstRandomOpponent(t *testing.T) {
	a := native.New()
	winner := agent.NewMinimax(a, 2)
	loser := randomAgent{}
	rng := rand.New(rand.NewSource(4))

	res, err := evaluator.Evaluate(a, winner, loser, evaluator.Config{Games: 4, MaxPlies: 60}, rng)
	require.NoError(t, err)
	require.GreaterOrEqual(t, res.WinRate, 0.0)
	require.LessOrEqual(t, res.ConfidenceInterval.Lower, res.WinRate)
	require.GreaterOrEqual(t, res.ConfidenceInterval.Upper, res.WinRate)
	require.GreaterOrEqual(t, res.PValue, 0.0)
	require.LessOrEqual(t, res.PValue, 1.0)
}

type randomAgent struct{}

func (randomAgent) Name() string { return "random" }
func (randomAgent) SelectAction(pos engine.Position, legal []engine.Move, rng *rand.Rand) (engine.Move, error) {
	return legal[rng.Intn(len(legal))], nil
}
