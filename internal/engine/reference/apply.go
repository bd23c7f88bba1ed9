package reference

import "github.com/lox/chessrl/internal/engine"

func applyMoveUnchecked(p *position, m engine.Move) *position {
	next := *p
	next.cells = p.cells

	fromIdx := idx120(int(m.From.Rank), int(m.From.File))
	toIdx := idx120(int(m.To.Rank), int(m.To.File))
	mover := p.cells[fromIdx]

	enPassantCapture := isEnPassantCapture(p, m)
	castling := isCastlingMove(p, m)
	capturedEmpty := p.cells[toIdx] == cEmpty

	next.cells[fromIdx] = cEmpty
	placed := mover
	if m.Promotion != engine.PromotionNone {
		v := cell(0)
		switch m.Promotion {
		case engine.PromotionKnight:
			v = 2
		case engine.PromotionBishop:
			v = 3
		case engine.PromotionRook:
			v = 4
		case engine.PromotionQueen:
			v = 5
		}
		if mover < 0 {
			v = -v
		}
		placed = v
	}
	next.cells[toIdx] = placed

	if enPassantCapture {
		capIdx := idx120(int(m.From.Rank), int(m.To.File))
		next.cells[capIdx] = cEmpty
	}

	if castling {
		rank := int(m.From.Rank)
		if m.To.File == 6 {
			rookFrom := idx120(rank, 7)
			rookTo := idx120(rank, 5)
			next.cells[rookTo] = next.cells[rookFrom]
			next.cells[rookFrom] = cEmpty
		} else {
			rookFrom := idx120(rank, 0)
			rookTo := idx120(rank, 3)
			next.cells[rookTo] = next.cells[rookFrom]
			next.cells[rookFrom] = cEmpty
		}
	}

	next.castling = p.castling
	clearCastlingRights(&next.castling, m.From, mover)
	clearCastlingRights(&next.castling, m.To, p.cells[toIdx])

	next.hasEP = false
	if abs(mover) == 1 {
		diff := int(m.To.Rank) - int(m.From.Rank)
		if diff == 2 || diff == -2 {
			next.enPassant = engine.Square{Rank: (m.From.Rank + m.To.Rank) / 2, File: m.From.File}
			next.hasEP = true
		}
	}

	if abs(mover) == 1 || !capturedEmpty || enPassantCapture {
		next.halfmove = 0
	} else {
		next.halfmove = p.halfmove + 1
	}

	next.side = p.side.Opposite()
	if p.side == engine.Black {
		next.fullmove = p.fullmove + 1
	} else {
		next.fullmove = p.fullmove
	}

	hist := make([]string, len(p.history), len(p.history)+1)
	copy(hist, p.history)
	next.history = append(hist, next.repetitionKey())

	return &next
}

func clearCastlingRights(rights *engine.CastlingRights, sq engine.Square, before cell) {
	if before == cWK {
		rights.WhiteKingside = false
		rights.WhiteQueenside = false
	}
	if before == cBK {
		rights.BlackKingside = false
		rights.BlackQueenside = false
	}
	switch sq {
	case engine.Square{Rank: 0, File: 0}:
		rights.WhiteQueenside = false
	case engine.Square{Rank: 0, File: 7}:
		rights.WhiteKingside = false
	case engine.Square{Rank: 7, File: 0}:
		rights.BlackQueenside = false
	case engine.Square{Rank: 7, File: 7}:
		rights.BlackKingside = false
	}
}
