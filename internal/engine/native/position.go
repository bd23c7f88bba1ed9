// Package native implements a mailbox (plain 8x8 array) chess move generator
// and FEN codec: the "native" engine.Adapter, a from-scratch
// dependency-free implementation with no bitboard or magic-number attack
// tables.
package native

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/lox/chessrl/internal/chesserr"
	"github.com/lox/chessrl/internal/engine"
)

// position is the concrete, immutable Position implementation. Values are
// never mutated after construction; every transform (ApplyMove) returns a
// fresh position.
type position struct {
	board     [64]engine.Piece
	side      engine.Color
	castling  engine.CastlingRights
	enPassant engine.Square
	hasEP     bool
	halfmove  int
	fullmove  int

	// repetitionHistory holds the Zobrist-free FEN board/side/castling/ep key
	// (everything but the move counters) of every ancestor position,
	// including this one. It is not part of FEN and exists purely so
	// ApplyMove chains within one engine adapter can detect threefold
	// repetition; positions built directly from FromFEN start with a fresh
	// one-entry history.
	repetitionHistory []string
}

var _ engine.Position = (*position)(nil)

func (p *position) SideToMove() engine.Color { return p.side }
func (p *position) PieceAt(sq engine.Square) engine.Piece {
	if !sq.Valid() {
		return engine.Piece{}
	}
	return p.board[sq.Index()]
}
func (p *position) Castling() engine.CastlingRights { return p.castling }
func (p *position) EnPassant() (engine.Square, bool) {
	return p.enPassant, p.hasEP
}
func (p *position) HalfmoveClock() int  { return p.halfmove }
func (p *position) FullmoveNumber() int { return p.fullmove }

// repetitionKey is the reduced position signature used for threefold
// detection: piece placement, side to move, castling rights, en-passant
// target. The move counters are deliberately excluded.
func (p *position) repetitionKey() string {
	var b strings.Builder
	for i := 0; i < 64; i++ {
		pc := p.board[i]
		if pc.IsEmpty() {
			continue
		}
		fmt.Fprintf(&b, "%d%d%d;", i, pc.Kind, pc.Color)
	}
	b.WriteString(p.side.String())
	fmt.Fprintf(&b, "%v", p.castling)
	if p.hasEP {
		b.WriteString(p.enPassant.Algebraic())
	}
	return b.String()
}

func (p *position) repetitionCount() int {
	key := p.repetitionKey()
	n := 0
	for _, k := range p.repetitionHistory {
		if k == key {
			n++
		}
	}
	return n
}

var pieceLetters = map[engine.PieceKind]byte{
	engine.Pawn:   'p',
	engine.Knight: 'n',
	engine.Bishop: 'b',
	engine.Rook:   'r',
	engine.Queen:  'q',
	engine.King:   'k',
}

// FEN renders the position in Forsyth-Edwards Notation.
func (p *position) FEN() string {
	var ranks [8]string
	for r := 7; r >= 0; r-- {
		var sb strings.Builder
		empty := 0
		for f := 0; f < 8; f++ {
			pc := p.board[engine.Square{Rank: int8(r), File: int8(f)}.Index()]
			if pc.IsEmpty() {
				empty++
				continue
			}
			if empty > 0 {
				fmt.Fprintf(&sb, "%d", empty)
				empty = 0
			}
			letter := pieceLetters[pc.Kind]
			if pc.Color == engine.White {
				letter = letter - 'a' + 'A'
			}
			sb.WriteByte(letter)
		}
		if empty > 0 {
			fmt.Fprintf(&sb, "%d", empty)
		}
		ranks[7-r] = sb.String()
	}
	placement := strings.Join(ranks[:], "/")

	castling := ""
	if p.castling.WhiteKingside {
		castling += "K"
	}
	if p.castling.WhiteQueenside {
		castling += "Q"
	}
	if p.castling.BlackKingside {
		castling += "k"
	}
	if p.castling.BlackQueenside {
		castling += "q"
	}
	if castling == "" {
		castling = "-"
	}

	ep := "-"
	if p.hasEP {
		ep = p.enPassant.Algebraic()
	}

	side := "w"
	if p.side == engine.Black {
		side = "b"
	}

	return fmt.Sprintf("%s %s %s %s %d %d", placement, side, castling, ep, p.halfmove, p.fullmove)
}

// FromFEN parses a FEN string into a Position, returning a CodecError-free
// nil Position and a typed EngineError on malformed input.
func FromFEN(fen string) (*position, error) {
	fields := strings.Fields(strings.TrimSpace(fen))
	if len(fields) != 6 {
		return nil, chesserr.New(chesserr.EngineError, fmt.Sprintf("FEN must have 6 fields, got %d", len(fields)))
	}

	pos := &position{}
	ranks := strings.Split(fields[0], "/")
	if len(ranks) != 8 {
		return nil, chesserr.New(chesserr.EngineError, "FEN placement must have 8 ranks")
	}
	for i, rankStr := range ranks {
		rank := 7 - i
		file := 0
		for _, ch := range rankStr {
			if file > 8 {
				return nil, chesserr.New(chesserr.EngineError, "FEN rank overflows 8 files")
			}
			if ch >= '1' && ch <= '8' {
				file += int(ch - '0')
				continue
			}
			kind, color, ok := pieceFromLetter(byte(ch))
			if !ok {
				return nil, chesserr.New(chesserr.EngineError, fmt.Sprintf("invalid piece letter %q", ch))
			}
			if file >= 8 {
				return nil, chesserr.New(chesserr.EngineError, "FEN rank overflows 8 files")
			}
			pos.board[engine.Square{Rank: int8(rank), File: int8(file)}.Index()] = engine.Piece{Kind: kind, Color: color}
			file++
		}
		if file != 8 {
			return nil, chesserr.New(chesserr.EngineError, "FEN rank must cover exactly 8 files")
		}
	}

	switch fields[1] {
	case "w":
		pos.side = engine.White
	case "b":
		pos.side = engine.Black
	default:
		return nil, chesserr.New(chesserr.EngineError, "side to move must be w or b")
	}

	if fields[2] != "-" {
		for _, ch := range fields[2] {
			switch ch {
			case 'K':
				pos.castling.WhiteKingside = true
			case 'Q':
				pos.castling.WhiteQueenside = true
			case 'k':
				pos.castling.BlackKingside = true
			case 'q':
				pos.castling.BlackQueenside = true
			default:
				return nil, chesserr.New(chesserr.EngineError, fmt.Sprintf("invalid castling letter %q", ch))
			}
		}
	}

	if fields[3] != "-" {
		sq, err := squareFromAlgebraic(fields[3])
		if err != nil {
			return nil, chesserr.Wrap(chesserr.EngineError, "invalid en-passant square", err)
		}
		pos.enPassant = sq
		pos.hasEP = true
	}

	half, err := strconv.Atoi(fields[4])
	if err != nil || half < 0 {
		return nil, chesserr.New(chesserr.EngineError, "invalid halfmove clock")
	}
	pos.halfmove = half

	full, err := strconv.Atoi(fields[5])
	if err != nil || full < 1 {
		return nil, chesserr.New(chesserr.EngineError, "invalid fullmove number")
	}
	pos.fullmove = full

	if !hasKing(pos, engine.White) || !hasKing(pos, engine.Black) {
		return nil, chesserr.New(chesserr.EngineError, "position must have exactly one king per side")
	}

	pos.repetitionHistory = []string{pos.repetitionKey()}
	return pos, nil
}

func hasKing(p *position, c engine.Color) bool {
	n := 0
	for _, pc := range p.board {
		if pc.Kind == engine.King && pc.Color == c {
			n++
		}
	}
	return n == 1
}

func pieceFromLetter(ch byte) (engine.PieceKind, engine.Color, bool) {
	color := engine.White
	lower := ch
	if ch >= 'a' && ch <= 'z' {
		color = engine.Black
	} else {
		lower = ch - 'A' + 'a'
	}
	for kind, letter := range pieceLetters {
		if letter == lower {
			return kind, color, true
		}
	}
	return engine.None, engine.White, false
}

func squareFromAlgebraic(s string) (engine.Square, error) {
	if len(s) != 2 {
		return engine.Square{}, fmt.Errorf("square %q must be 2 characters", s)
	}
	file := int8(s[0] - 'a')
	rank := int8(s[1] - '1')
	sq := engine.Square{Rank: rank, File: file}
	if !sq.Valid() {
		return engine.Square{}, fmt.Errorf("square %q out of range", s)
	}
	return sq, nil
}
