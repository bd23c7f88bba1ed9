package reference

import "github.com/lox/chessrl/internal/engine"

// Offsets are expressed directly in the padded 10-wide board's linear index
// space, the classic mailbox-offset technique: adding one of these to a
// piece's 120-index either lands on a legal neighbouring square or on a
// sentinel/off-board cell, with no rank/file bounds arithmetic needed.
var knightDelta = []int{-21, -19, -12, -8, 8, 12, 19, 21}
var kingDelta = []int{-11, -10, -9, -1, 1, 9, 10, 11}
var bishopDelta = []int{-11, -9, 9, 11}
var rookDelta = []int{-10, -1, 1, 10}

func abs(c cell) cell {
	if c < 0 {
		return -c
	}
	return c
}

func sameColor(a, b cell) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}

func colorOf(c cell) engine.Color {
	if c < 0 {
		return engine.Black
	}
	return engine.White
}

func attacksSquare(p *position, rank, file int, side engine.Color) bool {
	target := idx120(rank, file)
	dir := cell(1)
	if side == engine.Black {
		dir = -1
	}
	for _, df := range []int{-1, 1} {
		from := idx120(rank-int(dir), file+df)
		if onBoard(p.cells[from]) {
			c := p.cells[from]
			if abs(c) == 1 && colorOf(c) == side {
				return true
			}
		}
	}
	for _, d := range knightDelta {
		from := target + d
		if from < 0 || from >= boardSize || !onBoard(p.cells[from]) {
			continue
		}
		c := p.cells[from]
		if abs(c) == 2 && colorOf(c) == side {
			return true
		}
	}
	for _, d := range kingDelta {
		from := target + d
		if from < 0 || from >= boardSize || !onBoard(p.cells[from]) {
			continue
		}
		c := p.cells[from]
		if abs(c) == 6 && colorOf(c) == side {
			return true
		}
	}
	for _, d := range bishopDelta {
		if rayAttacks(p, target, d, side, 3, 5) {
			return true
		}
	}
	for _, d := range rookDelta {
		if rayAttacks(p, target, d, side, 4, 5) {
			return true
		}
	}
	return false
}

func rayAttacks(p *position, from, delta int, side engine.Color, kinds ...cell) bool {
	cur := from + delta
	for cur >= 0 && cur < boardSize && onBoard(p.cells[cur]) {
		c := p.cells[cur]
		if c != cEmpty {
			if colorOf(c) == side {
				for _, k := range kinds {
					if abs(c) == k {
						return true
					}
				}
			}
			return false
		}
		cur += delta
	}
	return false
}

func kingIndex(p *position, c engine.Color) int {
	want := cWK
	if c == engine.Black {
		want = cBK
	}
	for i, v := range p.cells {
		if v == want {
			return i
		}
	}
	return -1
}

func inCheck(p *position, c engine.Color) bool {
	ki := kingIndex(p, c)
	r, f := rankFile(ki)
	return attacksSquare(p, r, f, c.Opposite())
}

func pseudoLegalMoves(p *position) []engine.Move {
	var moves []engine.Move
	side := p.side
	for i, c := range p.cells {
		if !onBoard(c) || c == cEmpty || colorOf(c) != side {
			continue
		}
		r, f := rankFile(i)
		from := engine.Square{Rank: int8(r), File: int8(f)}
		switch abs(c) {
		case 1:
			moves = append(moves, pawnMoves(p, from, side)...)
		case 2:
			moves = append(moves, stepMoves(p, i, from, side, knightDelta)...)
		case 3:
			moves = append(moves, slideMoves(p, i, from, side, bishopDelta)...)
		case 4:
			moves = append(moves, slideMoves(p, i, from, side, rookDelta)...)
		case 5:
			moves = append(moves, slideMoves(p, i, from, side, bishopDelta)...)
			moves = append(moves, slideMoves(p, i, from, side, rookDelta)...)
		case 6:
			moves = append(moves, stepMoves(p, i, from, side, kingDelta)...)
			moves = append(moves, castlingMoves(p, from, side)...)
		}
	}
	return moves
}

func stepMoves(p *position, idx int, from engine.Square, side engine.Color, deltas []int) []engine.Move {
	var moves []engine.Move
	for _, d := range deltas {
		to := idx + d
		if to < 0 || to >= boardSize || !onBoard(p.cells[to]) {
			continue
		}
		target := p.cells[to]
		if target == cEmpty || !sameColor(target, toCellSide(side)) {
			r, f := rankFile(to)
			moves = append(moves, engine.Move{From: from, To: engine.Square{Rank: int8(r), File: int8(f)}})
		}
	}
	return moves
}

func toCellSide(c engine.Color) cell {
	if c == engine.Black {
		return -1
	}
	return 1
}

func slideMoves(p *position, idx int, from engine.Square, side engine.Color, deltas []int) []engine.Move {
	var moves []engine.Move
	for _, d := range deltas {
		to := idx + d
		for to >= 0 && to < boardSize && onBoard(p.cells[to]) {
			target := p.cells[to]
			r, f := rankFile(to)
			sq := engine.Square{Rank: int8(r), File: int8(f)}
			if target == cEmpty {
				moves = append(moves, engine.Move{From: from, To: sq})
				to += d
				continue
			}
			if !sameColor(target, toCellSide(side)) {
				moves = append(moves, engine.Move{From: from, To: sq})
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

	add := func(to engine.Square) {
		if to.Rank == promoteRank {
			for _, promo := range promotionOrder {
				moves = append(moves, engine.Move{From: from, To: to, Promotion: promo})
			}
			return
		}
		moves = append(moves, engine.Move{From: from, To: to})
	}

	oneR, oneF := int(from.Rank+dir), int(from.File)
	if oneR >= 0 && oneR < 8 && p.at(oneR, oneF) == cEmpty {
		add(engine.Square{Rank: int8(oneR), File: int8(oneF)})
		if from.Rank == startRank {
			twoR := int(from.Rank + 2*dir)
			if p.at(twoR, oneF) == cEmpty {
				moves = append(moves, engine.Move{From: from, To: engine.Square{Rank: int8(twoR), File: int8(oneF)}})
			}
		}
	}

	for _, df := range [2]int8{-1, 1} {
		to := engine.Square{Rank: from.Rank + dir, File: from.File + df}
		if !to.Valid() {
			continue
		}
		target := p.at(int(to.Rank), int(to.File))
		if target != cEmpty && !sameColor(target, toCellSide(side)) {
			add(to)
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

	kingRook := cWR
	if side == engine.Black {
		kingRook = cBR
	}

	kingsideOK := func() bool {
		if side == engine.White && !p.castling.WhiteKingside {
			return false
		}
		if side == engine.Black && !p.castling.BlackKingside {
			return false
		}
		for _, f := range []int{5, 6} {
			if p.at(int(rank), f) != cEmpty {
				return false
			}
			if attacksSquare(p, int(rank), f, opponent) {
				return false
			}
		}
		return p.at(int(rank), 7) == kingRook
	}
	queensideOK := func() bool {
		if side == engine.White && !p.castling.WhiteQueenside {
			return false
		}
		if side == engine.Black && !p.castling.BlackQueenside {
			return false
		}
		for _, f := range []int{1, 2, 3} {
			if p.at(int(rank), f) != cEmpty {
				return false
			}
		}
		for _, f := range []int{2, 3} {
			if attacksSquare(p, int(rank), f, opponent) {
				return false
			}
		}
		return p.at(int(rank), 0) == kingRook
	}

	if kingsideOK() {
		moves = append(moves, engine.Move{From: from, To: engine.Square{Rank: rank, File: 6}})
	}
	if queensideOK() {
		moves = append(moves, engine.Move{From: from, To: engine.Square{Rank: rank, File: 2}})
	}
	return moves
}

func isCastlingMove(p *position, m engine.Move) bool {
	c := p.at(int(m.From.Rank), int(m.From.File))
	if abs(c) != 6 {
		return false
	}
	diff := int(m.To.File) - int(m.From.File)
	return diff == 2 || diff == -2
}

func isEnPassantCapture(p *position, m engine.Move) bool {
	c := p.at(int(m.From.Rank), int(m.From.File))
	if abs(c) != 1 {
		return false
	}
	if m.From.File == m.To.File {
		return false
	}
	return p.at(int(m.To.Rank), int(m.To.File)) == cEmpty
}

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
