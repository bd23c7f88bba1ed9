// Package engine_test holds the cross-adapter parity battery: the native
// and reference adapters must agree on legal-move sets and terminal
// outcomes even though they share no move-generation code.
package engine_test

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lox/chessrl/internal/engine"
	"github.com/lox/chessrl/internal/engine/native"
	"github.com/lox/chessrl/internal/engine/reference"
)

func algebraicSet(moves []engine.Move) []string {
	out := make([]string, len(moves))
	for i, m := range moves {
		out[i] = m.Algebraic()
	}
	sort.Strings(out)
	return out
}

func TestAdapterParityLegalMoves(t *testing.T) {
	fens := []string{
		engine.InitialFEN,
		"r1bqkbnr/pppp1ppp/2n5/2b5/2B1P3/5N2/PPPP1PPP/RNBQK2R w KQkq - 4 3",
		"rnb1kbnr/pppp1ppp/8/4p3/6Pq/5P2/PPPPP2P/RNBQKBNR w KQkq - 1 3",
	}

	n := native.New()
	r := reference.New()

	for _, fen := range fens {
		np, err := n.FromFEN(fen)
		require.NoError(t, err)
		rp, err := r.FromFEN(fen)
		require.NoError(t, err)

		nMoves := algebraicSet(n.LegalMoves(np))
		rMoves := algebraicSet(r.LegalMoves(rp))
		require.Equal(t, nMoves, rMoves, "fen=%s", fen)
	}
}

func TestAdapterParityOutcomes(t *testing.T) {
	cases := []struct {
		fen    string
		reason engine.Reason
	}{
		{"rnb1kbnr/pppp1ppp/8/4p3/6Pq/5P2/PPPPP2P/RNBQKBNR w KQkq - 1 3", engine.Checkmate},
		{"7k/5Q2/6K1/8/8/8/8/8 b - - 0 1", engine.Stalemate},
	}

	n := native.New()
	r := reference.New()

	for _, c := range cases {
		np, err := n.FromFEN(c.fen)
		require.NoError(t, err)
		rp, err := r.FromFEN(c.fen)
		require.NoError(t, err)

		require.True(t, n.IsTerminal(np))
		require.True(t, r.IsTerminal(rp))

		nOutcome, nReason := n.Outcome(np)
		rOutcome, rReason := r.Outcome(rp)
		require.Equal(t, nOutcome, rOutcome, "fen=%s", c.fen)
		require.Equal(t, c.reason, nReason)
		require.Equal(t, c.reason, rReason)
	}
}

func TestAdapterParityPerft(t *testing.T) {
	n := native.New()
	r := reference.New()
	np := n.InitialState()
	rp := r.InitialState()
	for depth := 1; depth <= 3; depth++ {
		require.Equal(t, n.Perft(np, depth), r.Perft(rp, depth), "depth=%d", depth)
	}
}
