// Package agent defines the common move-selection contract implemented by
// every player in the system — learned (DQN, policy-gradient) and fixed
// (heuristic, minimax) alike — so self-play, evaluation, and teacher
// distillation can all drive an opponent through one interface.
package agent

import (
	"math/rand"

	"github.com/lox/chessrl/internal/engine"
)

// Agent selects a move given the current position and its legal moves.
// Implementations that want deterministic behavior under a fixed seed
// should consult rng rather than a package-level source.
type Agent interface {
	SelectAction(pos engine.Position, legal []engine.Move, rng *rand.Rand) (engine.Move, error)
	Name() string
}
