package codec_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lox/chessrl/internal/chesserr"
	"github.com/lox/chessrl/internal/codec"
	"github.com/lox/chessrl/internal/engine"
	"github.com/lox/chessrl/internal/engine/native"
)

func TestEncodeMoveFormula(t *testing.T) {
	e2e4 := engine.Move{From: engine.Square{Rank: 1, File: 4}, To: engine.Square{Rank: 3, File: 4}}
	require.Equal(t, 796, codec.EncodeMove(e2e4))
}

func TestLegalMaskStartingPosition(t *testing.T) {
	a := native.New()
	start := a.InitialState()
	legal := a.LegalMoves(start)
	mask := codec.LegalMask(legal)
	require.Equal(t, 20, codec.CountSet(mask))

	e2e4 := engine.Move{From: engine.Square{Rank: 1, File: 4}, To: engine.Square{Rank: 3, File: 4}}
	require.True(t, mask[e2e4.ActionIndex()])
	require.False(t, mask[56])
}

func TestDecodeActionPrefersQueenPromotion(t *testing.T) {
	from := engine.Square{Rank: 6, File: 0}
	to := engine.Square{Rank: 7, File: 0}
	legal := []engine.Move{
		{From: from, To: to, Promotion: engine.PromotionKnight},
		{From: from, To: to, Promotion: engine.PromotionQueen},
		{From: from, To: to, Promotion: engine.PromotionRook},
	}
	idx := codec.EncodeMove(engine.Move{From: from, To: to})
	m, ok, err := codec.DecodeAction(idx, legal)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, engine.PromotionQueen, m.Promotion)
}

func TestDecodeActionIllegalIndex(t *testing.T) {
	_, ok, err := codec.DecodeAction(10, nil)
	require.NoError(t, err)
	require.False(t, ok)

	_, _, err = codec.DecodeAction(4096, nil)
	require.Error(t, err)
	require.True(t, chesserr.As(err, chesserr.CodecError))

	_, ok, err = codec.DecodeAction(4095, nil)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEncodeStateIsPure(t *testing.T) {
	a := native.New()
	start := a.InitialState()
	f1 := codec.EncodeState(start)
	f2 := codec.EncodeState(start)
	require.Equal(t, f1, f2)
	require.Equal(t, 1.0, f1[768]) // white to move
}
