package agent

import (
	"math/rand"

	"github.com/lox/chessrl/internal/chesserr"
	"github.com/lox/chessrl/internal/engine"
)

// Heuristic is a fixed-strength opponent that picks, among its legal moves,
// the one whose resulting position scores best by material plus mobility
// for the side that just moved. Ties are broken uniformly at random so
// games against it are not perfectly repeatable move-for-move, only
// reproducible given a fixed rng.
type Heuristic struct {
	Adapter engine.Adapter
}

var _ Agent = (*Heuristic)(nil)

func NewHeuristic(adapter engine.Adapter) *Heuristic {
	return &Heuristic{Adapter: adapter}
}

func (h *Heuristic) Name() string { return "heuristic" }

func (h *Heuristic) SelectAction(pos engine.Position, legal []engine.Move, rng *rand.Rand) (engine.Move, error) {
	if len(legal) == 0 {
		return engine.Move{}, chesserr.New(chesserr.EngineError, "no legal moves available to select from")
	}
	mover := pos.SideToMove()

	best := make([]engine.Move, 0, 4)
	var bestScore int
	first := true
	for _, m := range legal {
		next, err := h.Adapter.ApplyMove(pos, m)
		if err != nil {
			return engine.Move{}, err
		}
		score := materialScore(next)
		nextLegal := h.Adapter.LegalMoves(next)
		score += mobilityScore(next, len(nextLegal))
		if mover == engine.Black {
			score = -score
		}
		if first || score > bestScore {
			bestScore = score
			best = best[:0]
			best = append(best, m)
			first = false
		} else if score == bestScore {
			best = append(best, m)
		}
	}
	return best[rng.Intn(len(best))], nil
}
