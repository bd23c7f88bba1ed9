package agent

import (
	"math/rand"

	"github.com/lox/chessrl/internal/chesserr"
	"github.com/lox/chessrl/internal/engine"
)

const (
	mateScore     = 1_000_000
	infinityScore = 2_000_000
)

// Minimax is a fixed-depth alpha-beta searcher over a material-only
// evaluation. Depth is measured in plies; mate is scored so that a forced
// mate in fewer plies is always preferred over one further away.
type Minimax struct {
	Adapter engine.Adapter
	Depth   int
}

var _ Agent = (*Minimax)(nil)

func NewMinimax(adapter engine.Adapter, depth int) *Minimax {
	if depth < 1 {
		depth = 1
	}
	return &Minimax{Adapter: adapter, Depth: depth}
}

func (m *Minimax) Name() string { return "minimax" }

// ScoredMove pairs a legal move with its negamax score from the side to
// move's perspective (higher is better for the mover).
type ScoredMove struct {
	Move  engine.Move
	Score int
}

// Evaluate scores every legal move by one ply of ApplyMove followed by a
// Depth-1 negamax search, without picking a winner. Used by the teacher
// distillation collector to build a softmax policy over move quality, and
// the value estimate of pos itself (best score, normalized to [-1,1]).
func (m *Minimax) Evaluate(pos engine.Position, legal []engine.Move) []ScoredMove {
	out := make([]ScoredMove, 0, len(legal))
	for _, mv := range legal {
		next, err := m.Adapter.ApplyMove(pos, mv)
		if err != nil {
			continue
		}
		score := -m.negamax(next, m.Depth-1, 1, -infinityScore, infinityScore)
		out = append(out, ScoredMove{Move: mv, Score: score})
	}
	return out
}

// NormalizedValue squashes a negamax score (mate-scale included) into
// [-1, 1] via a clamped linear ratio so mate scores clamp to ±1 rather
// than dominating the scale.
func NormalizedValue(score int) float64 {
	const pawnScale = 600.0 // centipawns at which the value saturates toward 1
	v := float64(score) / pawnScale
	if v > 1 {
		v = 1
	}
	if v < -1 {
		v = -1
	}
	return v
}

func (m *Minimax) SelectAction(pos engine.Position, legal []engine.Move, rng *rand.Rand) (engine.Move, error) {
	if len(legal) == 0 {
		return engine.Move{}, chesserr.New(chesserr.EngineError, "no legal moves available to select from")
	}

	best := make([]engine.Move, 0, 4)
	bestScore := -infinityScore - 1
	for _, mv := range legal {
		next, err := m.Adapter.ApplyMove(pos, mv)
		if err != nil {
			return engine.Move{}, err
		}
		score := -m.negamax(next, m.Depth-1, 1, -infinityScore, infinityScore)
		if score > bestScore {
			bestScore = score
			best = best[:0]
			best = append(best, mv)
		} else if score == bestScore {
			best = append(best, mv)
		}
	}
	return best[rng.Intn(len(best))], nil
}

// negamax returns the score of pos from the perspective of the side to move
// at pos, after searching depth further plies with alpha-beta pruning. ply is
// the distance from the root, used to discount mate scores so a forced mate
// in fewer plies always outscores one further away.
func (m *Minimax) negamax(pos engine.Position, depth, ply, alpha, beta int) int {
	if m.Adapter.IsTerminal(pos) {
		outcome, _ := m.Adapter.Outcome(pos)
		return terminalScore(outcome, pos.SideToMove(), ply)
	}
	if depth <= 0 {
		return evaluate(pos)
	}

	legal := m.Adapter.LegalMoves(pos)
	best := -infinityScore
	for _, mv := range legal {
		next, err := m.Adapter.ApplyMove(pos, mv)
		if err != nil {
			continue
		}
		score := -m.negamax(next, depth-1, ply+1, -beta, -alpha)
		if score > best {
			best = score
		}
		if best > alpha {
			alpha = best
		}
		if alpha >= beta {
			break
		}
	}
	return best
}

// evaluate scores a non-terminal position from the side-to-move's
// perspective.
func evaluate(pos engine.Position) int {
	score := materialScore(pos)
	if pos.SideToMove() == engine.Black {
		return -score
	}
	return score
}

// terminalScore scores a terminal position from the perspective of
// sideToMove, so a checkmate against sideToMove is the worst possible score.
// The mate score is discounted by ply so a shallower forced mate always
// outscores, in absolute value, one found further from the root.
func terminalScore(outcome engine.Outcome, sideToMove engine.Color, ply int) int {
	discounted := mateScore - ply
	switch outcome {
	case engine.WhiteWins:
		if sideToMove == engine.White {
			return discounted
		}
		return -discounted
	case engine.BlackWins:
		if sideToMove == engine.Black {
			return discounted
		}
		return -discounted
	default:
		return 0
	}
}
