// Package engine defines the chess rules-engine contract consumed by the rest
// of the training core. Concrete move generators live in sibling packages
// (native, reference); nothing outside this package knows which one is in
// use — everything is expressed against the Adapter and Position interfaces.
package engine

import "fmt"

// Color identifies the side to move or the owner of a piece.
type Color uint8

const (
	White Color = iota
	Black
)

func (c Color) String() string {
	if c == White {
		return "w"
	}
	return "b"
}

// Opposite returns the other color.
func (c Color) Opposite() Color {
	if c == White {
		return Black
	}
	return White
}

// PieceKind enumerates the six chess piece types, plus None for empty squares.
type PieceKind uint8

const (
	None PieceKind = iota
	Pawn
	Knight
	Bishop
	Rook
	Queen
	King
)

// Piece is a (kind, color) pair occupying a square.
type Piece struct {
	Kind  PieceKind
	Color Color
}

// IsEmpty reports whether the square holds no piece.
func (p Piece) IsEmpty() bool { return p.Kind == None }

// Square is a (rank, file) pair, both in 0..7. Rank 0 is White's first rank,
// matching the feature-plane indexing in the codec.
type Square struct {
	Rank int8
	File int8
}

// Index returns rank*8+file, the row-major square index used throughout the
// codec and action space.
func (s Square) Index() int { return int(s.Rank)*8 + int(s.File) }

// SquareFromIndex is the inverse of Index.
func SquareFromIndex(i int) Square {
	return Square{Rank: int8(i / 8), File: int8(i % 8)}
}

// Valid reports whether both coordinates are within the board.
func (s Square) Valid() bool {
	return s.Rank >= 0 && s.Rank < 8 && s.File >= 0 && s.File < 8
}

// Algebraic renders the square as e.g. "e4".
func (s Square) Algebraic() string {
	return fmt.Sprintf("%c%c", 'a'+byte(s.File), '1'+byte(s.Rank))
}

// Promotion enumerates the pieces a pawn may promote to; PromotionNone marks
// a non-promoting move.
type Promotion uint8

const (
	PromotionNone Promotion = iota
	PromotionKnight
	PromotionBishop
	PromotionRook
	PromotionQueen
)

func (p Promotion) letter() byte {
	switch p {
	case PromotionKnight:
		return 'n'
	case PromotionBishop:
		return 'b'
	case PromotionRook:
		return 'r'
	case PromotionQueen:
		return 'q'
	default:
		return 0
	}
}

func (p Promotion) PieceKind() PieceKind {
	switch p {
	case PromotionKnight:
		return Knight
	case PromotionBishop:
		return Bishop
	case PromotionRook:
		return Rook
	case PromotionQueen:
		return Queen
	default:
		return None
	}
}

// Move is an immutable (from, to, promotion) tuple. Algebraic rendering is 4
// characters, or 5 when a promotion is present.
type Move struct {
	From      Square
	To        Square
	Promotion Promotion
}

// Algebraic renders the move as e.g. "e2e4" or "a7a8q".
func (m Move) Algebraic() string {
	s := m.From.Algebraic() + m.To.Algebraic()
	if l := m.Promotion.letter(); l != 0 {
		s += string(l)
	}
	return s
}

// ActionIndex returns the dense [0,4096) action-space index for the move's
// (from, to) pair. Promotions collapse onto the same index as their
// non-promoting (or queen-promoting) counterpart.
func (m Move) ActionIndex() int {
	return m.From.Index()*64 + m.To.Index()
}

// CastlingRights tracks which castles remain available.
type CastlingRights struct {
	WhiteKingside  bool
	WhiteQueenside bool
	BlackKingside  bool
	BlackQueenside bool
}

// Outcome classifies how (or whether) a game has ended.
type Outcome uint8

const (
	Ongoing Outcome = iota
	WhiteWins
	BlackWins
	Draw
)

// Reason explains why a terminal Outcome was reached.
type Reason uint8

const (
	ReasonNone Reason = iota
	Checkmate
	Stalemate
	InsufficientMaterial
	FiftyMoveRule
	ThreefoldRepetition
)

func (r Reason) String() string {
	switch r {
	case Checkmate:
		return "checkmate"
	case Stalemate:
		return "stalemate"
	case InsufficientMaterial:
		return "insufficient_material"
	case FiftyMoveRule:
		return "fifty_move"
	case ThreefoldRepetition:
		return "threefold_repetition"
	default:
		return "ongoing"
	}
}

// Position is an immutable chess position. Adapters hand these out; nothing
// ever mutates one in place — ApplyMove returns a new value.
type Position interface {
	SideToMove() Color
	PieceAt(sq Square) Piece
	Castling() CastlingRights
	EnPassant() (Square, bool)
	HalfmoveClock() int
	FullmoveNumber() int
	FEN() string
}

// Adapter is the pluggable rules-engine contract. Two independent
// implementations (native, reference) satisfy it so a parity test battery
// can hold them to the same legal-move and outcome semantics.
type Adapter interface {
	InitialState() Position
	FromFEN(fen string) (Position, error)
	LegalMoves(p Position) []Move
	ApplyMove(p Position, m Move) (Position, error)
	IsTerminal(p Position) bool
	Outcome(p Position) (Outcome, Reason)
	Perft(p Position, depth int) uint64
}

// InitialFEN is the canonical starting position.
const InitialFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"
