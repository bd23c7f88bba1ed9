package agent_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lox/chessrl/internal/agent"
	"github.com/lox/chessrl/internal/engine"
	"github.com/lox/chessrl/internal/engine/native"
)

func TestHeuristicPrefersCapture(t *testing.T) {
	a := native.New()
	// White pawn can capture a black knight on d5 by exd5.
	pos, err := a.FromFEN("rnbqkbnr/ppp1pppp/8/3n4/4P3/8/PPPP1PPP/RNBQKBNR w KQkq - 1 3")
	require.NoError(t, err)

	h := agent.NewHeuristic(a)
	legal := a.LegalMoves(pos)
	rng := rand.New(rand.NewSource(1))

	mv, err := h.SelectAction(pos, legal, rng)
	require.NoError(t, err)
	require.Equal(t, engine.Square{Rank: 3, File: 4}, mv.From)
	require.Equal(t, engine.Square{Rank: 4, File: 3}, mv.To)
}

func TestMinimaxFindsMateInOne(t *testing.T) {
	a := native.New()
	// Black to move: Ra2-a1 is a back-rank mate, White king boxed in by its
	// own pawns on g2/h2.
	pos, err := a.FromFEN("6k1/8/8/8/8/8/r5PP/7K b - - 0 1")
	require.NoError(t, err)

	m := agent.NewMinimax(a, 2)
	legal := a.LegalMoves(pos)
	rng := rand.New(rand.NewSource(1))

	mv, err := m.SelectAction(pos, legal, rng)
	require.NoError(t, err)

	next, err := a.ApplyMove(pos, mv)
	require.NoError(t, err)
	require.True(t, a.IsTerminal(next))
	outcome, _ := a.Outcome(next)
	require.Equal(t, engine.BlackWins, outcome)
}

func TestHeuristicErrorsWithNoLegalMoves(t *testing.T) {
	a := native.New()
	h := agent.NewHeuristic(a)
	_, err := h.SelectAction(a.InitialState(), nil, rand.New(rand.NewSource(1)))
	require.Error(t, err)
}
