// Package codec encodes a chess position into a fixed-width feature vector,
// encodes/decodes moves against a dense action space, and builds legality
// bitmasks. Encode/decode helpers are pure and allocation-light, with
// explicit error returns for malformed input.
package codec

import (
	"fmt"

	"github.com/lox/chessrl/internal/chesserr"
	"github.com/lox/chessrl/internal/engine"
)

// FeatureSize is the fixed width of an encoded position.
const FeatureSize = 839

// ActionSpaceSize is the dense action-index range [0, ActionSpaceSize).
const ActionSpaceSize = 4096

var pieceOrder = [12]engine.Piece{
	{Kind: engine.Pawn, Color: engine.White},
	{Kind: engine.Knight, Color: engine.White},
	{Kind: engine.Bishop, Color: engine.White},
	{Kind: engine.Rook, Color: engine.White},
	{Kind: engine.Queen, Color: engine.White},
	{Kind: engine.King, Color: engine.White},
	{Kind: engine.Pawn, Color: engine.Black},
	{Kind: engine.Knight, Color: engine.Black},
	{Kind: engine.Bishop, Color: engine.Black},
	{Kind: engine.Rook, Color: engine.Black},
	{Kind: engine.Queen, Color: engine.Black},
	{Kind: engine.King, Color: engine.Black},
}

// EncodeState deterministically encodes p into a fixed-width feature vector.
// It never errors: halfmove/fullmove counters are clamped rather than
// rejected.
func EncodeState(p engine.Position) [FeatureSize]float64 {
	var out [FeatureSize]float64

	for sq := 0; sq < 64; sq++ {
		pc := p.PieceAt(engine.SquareFromIndex(sq))
		if pc.IsEmpty() {
			continue
		}
		for planeIdx, want := range pieceOrder {
			if pc.Kind == want.Kind && pc.Color == want.Color {
				out[planeIdx*64+sq] = 1
				break
			}
		}
	}

	if p.SideToMove() == engine.White {
		out[768] = 1
	}

	rights := p.Castling()
	if rights.WhiteKingside {
		out[769] = 1
	}
	if rights.WhiteQueenside {
		out[770] = 1
	}
	if rights.BlackKingside {
		out[771] = 1
	}
	if rights.BlackQueenside {
		out[772] = 1
	}

	if ep, ok := p.EnPassant(); ok {
		out[773+ep.Index()] = 1
	}

	half := p.HalfmoveClock()
	if half < 0 {
		half = 0
	}
	if half > 100 {
		half = 100
	}
	out[837] = float64(half) / 100.0

	full := p.FullmoveNumber()
	if full < 1 {
		full = 1
	}
	if full > 200 {
		full = 200
	}
	out[838] = float64(full) / 200.0

	return out
}

// EncodeMove returns the dense action-space index for m. Promotion piece
// does not affect the index (multiple promotions collapse onto one slot).
func EncodeMove(m engine.Move) int {
	return m.ActionIndex()
}

// DecodeAction maps an action index back to the legal move in legal whose
// (from, to) pair matches it. When several legal moves share the index
// (under-promotions), the queen-promotion variant is preferred. Returns
// false if index is illegal — i.e. not realized by any move in legal — and
// a CodecError if index itself is out of range.
func DecodeAction(index int, legal []engine.Move) (engine.Move, bool, error) {
	if index < 0 || index >= ActionSpaceSize {
		return engine.Move{}, false, chesserr.New(chesserr.CodecError, fmt.Sprintf("action index %d out of [0,%d)", index, ActionSpaceSize))
	}

	var best engine.Move
	found := false
	for _, m := range legal {
		if m.ActionIndex() != index {
			continue
		}
		if !found {
			best = m
			found = true
			continue
		}
		if m.Promotion == engine.PromotionQueen {
			best = m
		}
	}
	return best, found, nil
}

// LegalMask returns a 4096-bit legality mask with one bit set per unique
// action index realized by legal (promotions collapse by construction).
func LegalMask(legal []engine.Move) [ActionSpaceSize]bool {
	var mask [ActionSpaceSize]bool
	for _, m := range legal {
		mask[m.ActionIndex()] = true
	}
	return mask
}

// CountSet returns the number of true bits in mask.
func CountSet(mask [ActionSpaceSize]bool) int {
	n := 0
	for _, b := range mask {
		if b {
			n++
		}
	}
	return n
}
