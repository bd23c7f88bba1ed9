package native

import (
	"fmt"

	"github.com/lox/chessrl/internal/chesserr"
	"github.com/lox/chessrl/internal/engine"
)

// Adapter is the native, dependency-free engine.Adapter implementation.
type Adapter struct{}

var _ engine.Adapter = Adapter{}

// New constructs a native Adapter. Stateless; safe for concurrent use by any
// number of self-play workers since every Position is immutable.
func New() Adapter { return Adapter{} }

func (Adapter) InitialState() engine.Position {
	p, err := FromFEN(engine.InitialFEN)
	if err != nil {
		panic(fmt.Sprintf("native: initial FEN must parse: %v", err))
	}
	return p
}

func (Adapter) FromFEN(fen string) (engine.Position, error) {
	p, err := FromFEN(fen)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func asPosition(p engine.Position) (*position, error) {
	pos, ok := p.(*position)
	if !ok {
		return nil, chesserr.New(chesserr.EngineError, "position was not produced by the native adapter")
	}
	return pos, nil
}

func (Adapter) LegalMoves(p engine.Position) []engine.Move {
	pos, err := asPosition(p)
	if err != nil {
		return nil
	}
	return legalMoves(pos)
}

func (Adapter) ApplyMove(p engine.Position, m engine.Move) (engine.Position, error) {
	pos, err := asPosition(p)
	if err != nil {
		return nil, err
	}
	legal := legalMoves(pos)
	found := false
	for _, lm := range legal {
		if lm == m {
			found = true
			break
		}
	}
	if !found {
		return nil, chesserr.New(chesserr.EngineError, fmt.Sprintf("move %s is not legal in position %s", m.Algebraic(), pos.FEN()))
	}
	return applyMoveUnchecked(pos, m), nil
}

func (a Adapter) IsTerminal(p engine.Position) bool {
	outcome, _ := a.Outcome(p)
	return outcome != engine.Ongoing
}

func (Adapter) Outcome(p engine.Position) (engine.Outcome, engine.Reason) {
	pos, err := asPosition(p)
	if err != nil {
		return engine.Ongoing, engine.ReasonNone
	}

	legal := legalMoves(pos)
	if len(legal) == 0 {
		if inCheck(pos, pos.side) {
			if pos.side == engine.White {
				return engine.BlackWins, engine.Checkmate
			}
			return engine.WhiteWins, engine.Checkmate
		}
		return engine.Draw, engine.Stalemate
	}

	if insufficientMaterial(pos) {
		return engine.Draw, engine.InsufficientMaterial
	}
	if pos.halfmove >= 100 {
		return engine.Draw, engine.FiftyMoveRule
	}
	if pos.repetitionCount() >= 3 {
		return engine.Draw, engine.ThreefoldRepetition
	}
	return engine.Ongoing, engine.ReasonNone
}

func insufficientMaterial(p *position) bool {
	var minorsByColor [2]int
	var bishopSquareParityByColor [2]map[bool]bool
	bishopSquareParityByColor[0] = map[bool]bool{}
	bishopSquareParityByColor[1] = map[bool]bool{}

	for i, pc := range p.board {
		if pc.IsEmpty() || pc.Kind == engine.King {
			continue
		}
		switch pc.Kind {
		case engine.Pawn, engine.Rook, engine.Queen:
			return false
		case engine.Knight:
			minorsByColor[pc.Color]++
		case engine.Bishop:
			minorsByColor[pc.Color]++
			sq := engine.SquareFromIndex(i)
			parity := (int(sq.Rank)+int(sq.File))%2 == 0
			bishopSquareParityByColor[pc.Color][parity] = true
		}
	}

	if minorsByColor[engine.White] == 0 && minorsByColor[engine.Black] == 0 {
		return true // K vs K
	}
	if minorsByColor[engine.White]+minorsByColor[engine.Black] == 1 {
		return true // K+minor vs K
	}
	// K+B vs K+B with same-colored bishops.
	if minorsByColor[engine.White] == 1 && minorsByColor[engine.Black] == 1 &&
		len(bishopSquareParityByColor[engine.White]) == 1 && len(bishopSquareParityByColor[engine.Black]) == 1 {
		for parity := range bishopSquareParityByColor[engine.White] {
			if bishopSquareParityByColor[engine.Black][parity] {
				return true
			}
		}
	}
	return false
}

// Perft counts reachable leaf positions at the given depth.
func (a Adapter) Perft(p engine.Position, depth int) uint64 {
	pos, err := asPosition(p)
	if err != nil {
		return 0
	}
	return perft(pos, depth)
}

func perft(p *position, depth int) uint64 {
	if depth == 0 {
		return 1
	}
	moves := legalMoves(p)
	if depth == 1 {
		return uint64(len(moves))
	}
	var total uint64
	for _, m := range moves {
		next := applyMoveUnchecked(p, m)
		total += perft(next, depth-1)
	}
	return total
}
