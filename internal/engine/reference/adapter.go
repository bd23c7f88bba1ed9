package reference

import (
	"fmt"

	"github.com/lox/chessrl/internal/chesserr"
	"github.com/lox/chessrl/internal/engine"
)

// Adapter is the second, independently-coded engine.Adapter implementation
// (padded 10x12 mailbox) used to build the parity test battery against the
// native adapter.
type Adapter struct{}

var _ engine.Adapter = Adapter{}

func New() Adapter { return Adapter{} }

func (Adapter) InitialState() engine.Position {
	p, err := FromFEN(engine.InitialFEN)
	if err != nil {
		panic(fmt.Sprintf("reference: initial FEN must parse: %v", err))
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
		return nil, chesserr.New(chesserr.EngineError, "position was not produced by the reference adapter")
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
	found := false
	for _, lm := range legalMoves(pos) {
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
	var minors [2]int
	var bishopParity [2]map[bool]bool
	bishopParity[0] = map[bool]bool{}
	bishopParity[1] = map[bool]bool{}

	for i, c := range p.cells {
		if !onBoard(c) || c == cEmpty {
			continue
		}
		v := abs(c)
		if v == 6 {
			continue
		}
		if v == 1 || v == 4 || v == 5 {
			return false
		}
		col := colorOf(c)
		minors[col]++
		if v == 3 {
			r, f := rankFile(i)
			bishopParity[col][(r+f)%2 == 0] = true
		}
	}

	if minors[engine.White] == 0 && minors[engine.Black] == 0 {
		return true
	}
	if minors[engine.White]+minors[engine.Black] == 1 {
		return true
	}
	if minors[engine.White] == 1 && minors[engine.Black] == 1 &&
		len(bishopParity[engine.White]) == 1 && len(bishopParity[engine.Black]) == 1 {
		for parity := range bishopParity[engine.White] {
			if bishopParity[engine.Black][parity] {
				return true
			}
		}
	}
	return false
}

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
		total += perft(applyMoveUnchecked(p, m), depth-1)
	}
	return total
}
