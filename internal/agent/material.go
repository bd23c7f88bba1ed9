package agent

import "github.com/lox/chessrl/internal/engine"

// pieceValue gives centipawn-scale material values, the same ordering of
// magnitudes classic evaluation functions use (pawn=1 through queen=9,
// king excluded from material scoring).
var pieceValue = map[engine.PieceKind]int{
	engine.Pawn:   100,
	engine.Knight: 320,
	engine.Bishop: 330,
	engine.Rook:   500,
	engine.Queen:  900,
	engine.King:   0,
}

// MaterialScore returns the position's material balance from White's
// perspective: positive favors White. Exported for the self-play driver's
// early-adjudication resign threshold.
func MaterialScore(pos engine.Position) int { return materialScore(pos) }

// materialScore returns the position's material balance from White's
// perspective: positive favors White.
func materialScore(pos engine.Position) int {
	total := 0
	for sq := 0; sq < 64; sq++ {
		pc := pos.PieceAt(engine.SquareFromIndex(sq))
		if pc.IsEmpty() {
			continue
		}
		v := pieceValue[pc.Kind]
		if pc.Color == engine.White {
			total += v
		} else {
			total -= v
		}
	}
	return total
}

// mobilityScore adds a small bonus per legal move available to the side to
// move, from White's perspective, as a cheap proxy for positional activity.
func mobilityScore(pos engine.Position, legalForSideToMove int) int {
	if pos.SideToMove() == engine.White {
		return legalForSideToMove
	}
	return -legalForSideToMove
}
