// Package reference implements a second, independently-coded engine.Adapter
// used to build a cross-adapter parity test battery: it must agree with the
// native adapter on legal-move sets and outcomes without sharing any
// move-generation code with it. Where native uses a flat 8x8
// array with manual bounds checks, reference uses the classic 10x12 padded
// mailbox (sentinel border squares) so off-board detection is a single
// sentinel comparison instead of range checks — a different technique, not
// a renamed copy.
package reference

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/lox/chessrl/internal/chesserr"
	"github.com/lox/chessrl/internal/engine"
)

const (
	boardWidth = 10
	boardSize  = 120
)

// cell holds either cOff (off board), 0 (empty), or an encoded piece.
type cell int8

// cOff marks the padded border squares; it must not collide with any piece
// encoding (1..6 and -1..-6).
const cOff cell = 99

const (
	cEmpty cell = 0
	cWP    cell = 1
	cWN    cell = 2
	cWB    cell = 3
	cWR    cell = 4
	cWQ    cell = 5
	cWK    cell = 6
	cBP    cell = -1
	cBN    cell = -2
	cBB    cell = -3
	cBR    cell = -4
	cBQ    cell = -5
	cBK    cell = -6
)

func idx120(rank, file int) int { return (rank+2)*boardWidth + (file + 1) }

func rankFile(i int) (int, int) { return i/boardWidth - 2, i%boardWidth - 1 }

func fromCell(c cell) engine.Piece {
	if c == cEmpty {
		return engine.Piece{}
	}
	color := engine.White
	v := c
	if c < 0 {
		color = engine.Black
		v = -c
	}
	kinds := map[cell]engine.PieceKind{1: engine.Pawn, 2: engine.Knight, 3: engine.Bishop, 4: engine.Rook, 5: engine.Queen, 6: engine.King}
	return engine.Piece{Kind: kinds[v], Color: color}
}

// position is the 10x12 padded-mailbox implementation of engine.Position.
type position struct {
	cells     [boardSize]cell
	side      engine.Color
	castling  engine.CastlingRights
	enPassant engine.Square
	hasEP     bool
	halfmove  int
	fullmove  int
	history   []string
}

var _ engine.Position = (*position)(nil)

func newEmptyBoard() [boardSize]cell {
	var b [boardSize]cell
	for i := range b {
		b[i] = cOff
	}
	for r := 0; r < 8; r++ {
		for f := 0; f < 8; f++ {
			b[idx120(r, f)] = cEmpty
		}
	}
	return b
}

func onBoard(c cell) bool { return c != cOff }

func (p *position) at(rank, file int) cell {
	if rank < 0 || rank > 7 || file < 0 || file > 7 {
		return cOff
	}
	return p.cells[idx120(rank, file)]
}

func (p *position) SideToMove() engine.Color { return p.side }

func (p *position) PieceAt(sq engine.Square) engine.Piece {
	return fromCell(p.at(int(sq.Rank), int(sq.File)))
}

func (p *position) Castling() engine.CastlingRights  { return p.castling }
func (p *position) EnPassant() (engine.Square, bool) { return p.enPassant, p.hasEP }
func (p *position) HalfmoveClock() int               { return p.halfmove }
func (p *position) FullmoveNumber() int              { return p.fullmove }

func (p *position) repetitionKey() string {
	var b strings.Builder
	for r := 0; r < 8; r++ {
		for f := 0; f < 8; f++ {
			c := p.at(r, f)
			if c != cEmpty {
				fmt.Fprintf(&b, "%d,%d:%d;", r, f, c)
			}
		}
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
	for _, k := range p.history {
		if k == key {
			n++
		}
	}
	return n
}

var letterForCell = map[cell]byte{1: 'p', 2: 'n', 3: 'b', 4: 'r', 5: 'q', 6: 'k'}

func (p *position) FEN() string {
	var ranks [8]string
	for r := 7; r >= 0; r-- {
		var sb strings.Builder
		empty := 0
		for f := 0; f < 8; f++ {
			c := p.at(r, f)
			if c == cEmpty {
				empty++
				continue
			}
			if empty > 0 {
				fmt.Fprintf(&sb, "%d", empty)
				empty = 0
			}
			v := c
			letter := letterForCell[v]
			if v < 0 {
				letter = letterForCell[-v]
			}
			if c > 0 {
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

// FromFEN parses FEN into the padded-mailbox representation.
func FromFEN(fen string) (*position, error) {
	fields := strings.Fields(strings.TrimSpace(fen))
	if len(fields) != 6 {
		return nil, chesserr.New(chesserr.EngineError, fmt.Sprintf("FEN must have 6 fields, got %d", len(fields)))
	}

	p := &position{cells: newEmptyBoard()}
	ranks := strings.Split(fields[0], "/")
	if len(ranks) != 8 {
		return nil, chesserr.New(chesserr.EngineError, "FEN placement must have 8 ranks")
	}
	letterToCell := map[byte]cell{'p': 1, 'n': 2, 'b': 3, 'r': 4, 'q': 5, 'k': 6}
	for i, rankStr := range ranks {
		rank := 7 - i
		file := 0
		for _, ch := range rankStr {
			if ch >= '1' && ch <= '8' {
				file += int(ch - '0')
				continue
			}
			lower := byte(ch)
			color := engine.White
			if ch >= 'a' && ch <= 'z' {
				color = engine.Black
			} else {
				lower = byte(ch) - 'A' + 'a'
			}
			v, ok := letterToCell[lower]
			if !ok {
				return nil, chesserr.New(chesserr.EngineError, fmt.Sprintf("invalid piece letter %q", ch))
			}
			if file >= 8 {
				return nil, chesserr.New(chesserr.EngineError, "FEN rank overflows 8 files")
			}
			if color == engine.Black {
				v = -v
			}
			p.cells[idx120(rank, file)] = v
			file++
		}
		if file != 8 {
			return nil, chesserr.New(chesserr.EngineError, "FEN rank must cover exactly 8 files")
		}
	}

	switch fields[1] {
	case "w":
		p.side = engine.White
	case "b":
		p.side = engine.Black
	default:
		return nil, chesserr.New(chesserr.EngineError, "side to move must be w or b")
	}

	if fields[2] != "-" {
		for _, ch := range fields[2] {
			switch ch {
			case 'K':
				p.castling.WhiteKingside = true
			case 'Q':
				p.castling.WhiteQueenside = true
			case 'k':
				p.castling.BlackKingside = true
			case 'q':
				p.castling.BlackQueenside = true
			default:
				return nil, chesserr.New(chesserr.EngineError, fmt.Sprintf("invalid castling letter %q", ch))
			}
		}
	}

	if fields[3] != "-" {
		if len(fields[3]) != 2 {
			return nil, chesserr.New(chesserr.EngineError, "invalid en-passant square")
		}
		file := int8(fields[3][0] - 'a')
		rank := int8(fields[3][1] - '1')
		sq := engine.Square{Rank: rank, File: file}
		if !sq.Valid() {
			return nil, chesserr.New(chesserr.EngineError, "invalid en-passant square")
		}
		p.enPassant = sq
		p.hasEP = true
	}

	half, err := strconv.Atoi(fields[4])
	if err != nil || half < 0 {
		return nil, chesserr.New(chesserr.EngineError, "invalid halfmove clock")
	}
	p.halfmove = half

	full, err := strconv.Atoi(fields[5])
	if err != nil || full < 1 {
		return nil, chesserr.New(chesserr.EngineError, "invalid fullmove number")
	}
	p.fullmove = full

	whiteKings, blackKings := 0, 0
	for r := 0; r < 8; r++ {
		for f := 0; f < 8; f++ {
			c := p.at(r, f)
			if c == cWK {
				whiteKings++
			} else if c == cBK {
				blackKings++
			}
		}
	}
	if whiteKings != 1 || blackKings != 1 {
		return nil, chesserr.New(chesserr.EngineError, "position must have exactly one king per side")
	}

	p.history = []string{p.repetitionKey()}
	return p, nil
}
