package native

import "github.com/lox/chessrl/internal/engine"

var knightOffsets = [8][2]int8{
	{1, 2}, {2, 1}, {2, -1}, {1, -2}, {-1, -2}, {-2, -1}, {-2, 1}, {-1, 2},
}

var kingOffsets = [8][2]int8{
	{1, 0}, {1, 1}, {0, 1}, {-1, 1}, {-1, 0}, {-1, -1}, {0, -1}, {1, -1},
}

var bishopDirs = [4][2]int8{{1, 1}, {1, -1}, {-1, 1}, {-1, -1}}
var rookDirs = [4][2]int8{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}

// attacksSquare reports whether side attacks sq on the given board.
func attacksSquare(p *position, sq engine.Square, side engine.Color) bool {
	// Pawns: a pawn of `side` attacks diagonally forward.
	dir := int8(1)
	if side == engine.Black {
		dir = -1
	}
	for _, df := range [2]int8{-1, 1} {
		from := engine.Square{Rank: sq.Rank - dir, File: sq.File - df}
		if from.Valid() {
			pc := p.PieceAt(from)
			if pc.Kind == engine.Pawn && pc.Color == side {
				return true
			}
		}
	}
	for _, o := range knightOffsets {
		from := engine.Square{Rank: sq.Rank + o[0], File: sq.File + o[1]}
		if from.Valid() {
			pc := p.PieceAt(from)
			if pc.Kind == engine.Knight && pc.Color == side {
				return true
			}
		}
	}
	for _, o := range kingOffsets {
		from := engine.Square{Rank: sq.Rank + o[0], File: sq.File + o[1]}
		if from.Valid() {
			pc := p.PieceAt(from)
			if pc.Kind == engine.King && pc.Color == side {
				return true
			}
		}
	}
	for _, d := range bishopDirs {
		if slidingAttacks(p, sq, d, side, engine.Bishop, engine.Queen) {
			return true
		}
	}
	for _, d := range rookDirs {
		if slidingAttacks(p, sq, d, side, engine.Rook, engine.Queen) {
			return true
		}
	}
	return false
}

func slidingAttacks(p *position, sq engine.Square, dir [2]int8, side engine.Color, kinds ...engine.PieceKind) bool {
	cur := engine.Square{Rank: sq.Rank + dir[0], File: sq.File + dir[1]}
	for cur.Valid() {
		pc := p.PieceAt(cur)
		if !pc.IsEmpty() {
			if pc.Color == side {
				for _, k := range kinds {
					if pc.Kind == k {
						return true
					}
				}
			}
			return false
		}
		cur = engine.Square{Rank: cur.Rank + dir[0], File: cur.File + dir[1]}
	}
	return false
}

func kingSquare(p *position, c engine.Color) engine.Square {
	for i := 0; i < 64; i++ {
		pc := p.board[i]
		if pc.Kind == engine.King && pc.Color == c {
			return engine.SquareFromIndex(i)
		}
	}
	return engine.Square{Rank: -1, File: -1}
}

func inCheck(p *position, c engine.Color) bool {
	return attacksSquare(p, kingSquare(p, c), c.Opposite())
}

// pseudoLegalMoves generates all moves for the side to move that obey piece
// movement rules and occupancy, without checking whether the mover's own
// king ends up in check.
func pseudoLegalMoves(p *position) []engine.Move {
	var moves []engine.Move
	side := p.side
	for i := 0; i < 64; i++ {
		pc := p.board[i]
		if pc.IsEmpty() || pc.Color != side {
			continue
		}
		from := engine.SquareFromIndex(i)
		switch pc.Kind {
		case engine.Pawn:
			moves = append(moves, pawnMoves(p, from, side)...)
		case engine.Knight:
			moves = append(moves, stepMoves(p, from, side, knightOffsets[:])...)
		case engine.King:
			moves = append(moves, stepMoves(p, from, side, kingOffsets[:])...)
			moves = append(moves, castlingMoves(p, from, side)...)
		case engine.Bishop:
			moves = append(moves, slideMoves(p, from, side, bishopDirs[:])...)
		case engine.Rook:
			moves = append(moves, slideMoves(p, from, side, rookDirs[:])...)
		case engine.Queen:
			moves = append(moves, slideMoves(p, from, side, bishopDirs[:])...)
			moves = append(moves, slideMoves(p, from, side, rookDirs[:])...)
		}
	}
	return moves
}

func stepMoves(p *position, from engine.Square, side engine.Color, offsets [][2]int8) []engine.Move {
	var moves []engine.Move
	for _, o := range offsets {
		to := engine.Square{Rank: from.Rank + o[0], File: from.File + o[1]}
		if !to.Valid() {
			continue
		}
		target := p.PieceAt(to)
		if target.IsEmpty() || target.Color != side {
			moves = append(moves, engine.Move{From: from, To: to})
		}
	}
	return moves
}

func slideMoves(p *position, from engine.Square, side engine.Color, dirs [][2]int8) []engine.Move {
	var moves []engine.Move
	for _, d := range dirs {
		to := engine.Square{Rank: from.Rank + d[0], File: from.File + d[1]}
		for to.Valid() {
			target := p.PieceAt(to)
			if target.IsEmpty() {
				moves = append(moves, engine.Move{From: from, To: to})
				to = engine.Square{Rank: to.Rank + d[0], File: to.File + d[1]}
				continue
			}
			if target.Color != side {
				moves = append(moves, engine.Move{From: from, To: to})
			}
			break
		}
	}
	return moves
}

var promotionOrder = []engine.Promotion{
	engine.PromotionQueen, engine.PromotionRook, engine.PromotionBishop, engine.PromotionKnight,
}

func pawnMoves(p *position, from engine.Square, side engine.Color) []engine.Move {
	var moves []engine.Move
	dir := int8(1)
	startRank := int8(1)
	promoteRank := int8(7)
	if side == engine.Black {
		dir = -1
		startRank = 6
		promoteRank = 0
	}

	addForward := func(to engine.Square) {
		if to.Rank == promoteRank {
			for _, promo := range promotionOrder {
				moves = append(moves, engine.Move{From: from, To: to, Promotion: promo})
			}
			return
		}
		moves = append(moves, engine.Move{From: from, To: to})
	}

	one := engine.Square{Rank: from.Rank + dir, File: from.File}
	if one.Valid() && p.PieceAt(one).IsEmpty() {
		addForward(one)
		if from.Rank == startRank {
			two := engine.Square{Rank: from.Rank + 2*dir, File: from.File}
			if p.PieceAt(two).IsEmpty() {
				moves = append(moves, engine.Move{From: from, To: two})
			}
		}
	}

	for _, df := range [2]int8{-1, 1} {
		to := engine.Square{Rank: from.Rank + dir, File: from.File + df}
		if !to.Valid() {
			continue
		}
		target := p.PieceAt(to)
		if !target.IsEmpty() && target.Color != side {
			addForward(to)
			continue
		}
		if p.hasEP && p.enPassant == to {
			moves = append(moves, engine.Move{From: from, To: to})
		}
	}

	return moves
}

func castlingMoves(p *position, from engine.Square, side engine.Color) []engine.Move {
	var moves []engine.Move
	if inCheck(p, side) {
		return moves
	}
	rank := int8(0)
	if side == engine.Black {
		rank = 7
	}
	if from != (engine.Square{Rank: rank, File: 4}) {
		return moves
	}
	opponent := side.Opposite()

	canCastle := func(kingside bool) bool {
		if kingside {
			if side == engine.White && !p.castling.WhiteKingside {
				return false
			}
			if side == engine.Black && !p.castling.BlackKingside {
				return false
			}
			for _, f := range [2]int8{5, 6} {
				sq := engine.Square{Rank: rank, File: f}
				if !p.PieceAt(sq).IsEmpty() {
					return false
				}
				if attacksSquare(p, sq, opponent) {
					return false
				}
			}
			rookSq := engine.Square{Rank: rank, File: 7}
			rook := p.PieceAt(rookSq)
			return rook.Kind == engine.Rook && rook.Color == side
		}
		if side == engine.White && !p.castling.WhiteQueenside {
			return false
		}
		if side == engine.Black && !p.castling.BlackQueenside {
			return false
		}
		for _, f := range [3]int8{1, 2, 3} {
			sq := engine.Square{Rank: rank, File: f}
			if !p.PieceAt(sq).IsEmpty() {
				return false
			}
		}
		for _, f := range [2]int8{2, 3} {
			sq := engine.Square{Rank: rank, File: f}
			if attacksSquare(p, sq, opponent) {
				return false
			}
		}
		rookSq := engine.Square{Rank: rank, File: 0}
		rook := p.PieceAt(rookSq)
		return rook.Kind == engine.Rook && rook.Color == side
	}

	if canCastle(true) {
		moves = append(moves, engine.Move{From: from, To: engine.Square{Rank: rank, File: 6}})
	}
	if canCastle(false) {
		moves = append(moves, engine.Move{From: from, To: engine.Square{Rank: rank, File: 2}})
	}
	return moves
}

// isCastlingMove reports whether m is a king move of two files, identifying
// a castle so ApplyMove can also relocate the rook.
func isCastlingMove(p *position, m engine.Move) bool {
	pc := p.PieceAt(m.From)
	if pc.Kind != engine.King {
		return false
	}
	diff := int(m.To.File) - int(m.From.File)
	return diff == 2 || diff == -2
}

func isEnPassantCapture(p *position, m engine.Move) bool {
	pc := p.PieceAt(m.From)
	if pc.Kind != engine.Pawn {
		return false
	}
	if m.From.File == m.To.File {
		return false
	}
	return p.PieceAt(m.To).IsEmpty()
}

// legalMoves filters pseudo-legal moves to those that do not leave the
// mover's own king in check, and orders the result deterministically by
// (from index, to index, promotion) for reproducible iteration order.
func legalMoves(p *position) []engine.Move {
	pseudo := pseudoLegalMoves(p)
	side := p.side
	legal := make([]engine.Move, 0, len(pseudo))
	for _, m := range pseudo {
		next := applyMoveUnchecked(p, m)
		if !inCheck(next, side) {
			legal = append(legal, m)
		}
	}
	sortMoves(legal)
	return legal
}

func sortMoves(moves []engine.Move) {
	for i := 1; i < len(moves); i++ {
		for j := i; j > 0 && lessMove(moves[j], moves[j-1]); j-- {
			moves[j], moves[j-1] = moves[j-1], moves[j]
		}
	}
}

func lessMove(a, b engine.Move) bool {
	if a.From.Index() != b.From.Index() {
		return a.From.Index() < b.From.Index()
	}
	if a.To.Index() != b.To.Index() {
		return a.To.Index() < b.To.Index()
	}
	return a.Promotion < b.Promotion
}
