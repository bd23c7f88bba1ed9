package native

import "github.com/lox/chessrl/internal/engine"

// applyMoveUnchecked performs the mechanical board transform for m without
// validating legality. Used internally both by legalMoves (to test for
// self-check) and by Adapter.ApplyMove.
func applyMoveUnchecked(p *position, m engine.Move) *position {
	next := *p
	next.board = p.board
	mover := p.PieceAt(m.From)

	enPassantCapture := isEnPassantCapture(p, m)
	castling := isCastlingMove(p, m)

	next.board[m.From.Index()] = engine.Piece{}
	placed := mover
	if m.Promotion != engine.PromotionNone {
		placed = engine.Piece{Kind: m.Promotion.PieceKind(), Color: mover.Color}
	}
	next.board[m.To.Index()] = placed

	if enPassantCapture {
		capturedSq := engine.Square{Rank: m.From.Rank, File: m.To.File}
		next.board[capturedSq.Index()] = engine.Piece{}
	}

	if castling {
		rank := m.From.Rank
		if m.To.File == 6 {
			rookFrom := engine.Square{Rank: rank, File: 7}
			rookTo := engine.Square{Rank: rank, File: 5}
			next.board[rookTo.Index()] = next.board[rookFrom.Index()]
			next.board[rookFrom.Index()] = engine.Piece{}
		} else {
			rookFrom := engine.Square{Rank: rank, File: 0}
			rookTo := engine.Square{Rank: rank, File: 3}
			next.board[rookTo.Index()] = next.board[rookFrom.Index()]
			next.board[rookFrom.Index()] = engine.Piece{}
		}
	}

	next.castling = p.castling
	clearCastlingRights(&next.castling, m.From, mover)
	clearCastlingRights(&next.castling, m.To, p.PieceAt(m.To))

	next.hasEP = false
	if mover.Kind == engine.Pawn {
		diff := int(m.To.Rank) - int(m.From.Rank)
		if diff == 2 || diff == -2 {
			next.enPassant = engine.Square{Rank: (m.From.Rank + m.To.Rank) / 2, File: m.From.File}
			next.hasEP = true
		}
	}

	if mover.Kind == engine.Pawn || !p.PieceAt(m.To).IsEmpty() || enPassantCapture {
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

	hist := make([]string, len(p.repetitionHistory), len(p.repetitionHistory)+1)
	copy(hist, p.repetitionHistory)
	next.repetitionHistory = append(hist, next.repetitionKey())

	return &next
}

func clearCastlingRights(rights *engine.CastlingRights, sq engine.Square, pc engine.Piece) {
	switch {
	case pc.Kind == engine.King && pc.Color == engine.White:
		rights.WhiteKingside = false
		rights.WhiteQueenside = false
	case pc.Kind == engine.King && pc.Color == engine.Black:
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
