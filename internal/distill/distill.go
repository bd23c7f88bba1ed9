// Package distill is the offline teacher-distillation collector: it plays
// self-play games driven entirely by a minimax teacher and emits NDJSON
// supervised records of (position, teacher policy, teacher value) that can
// seed a learner during warmup instead of (or alongside) self-play
// transitions.
package distill

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/lox/chessrl/internal/agent"
	"github.com/lox/chessrl/internal/chesserr"
	"github.com/lox/chessrl/internal/codec"
	"github.com/lox/chessrl/internal/engine"
)

// Config controls one Collect run.
type Config struct {
	Games                 int
	TopK                  int
	Temperature           float64
	MaxPliesPerGame       int // 0 means no cap
	MaxRepeatsPerPosition int // 0 defaults to 1
}

func (c Config) withDefaults() Config {
	if c.TopK <= 0 {
		c.TopK = 5
	}
	if c.Temperature <= 0 {
		c.Temperature = 1.0
	}
	if c.MaxRepeatsPerPosition <= 0 {
		c.MaxRepeatsPerPosition = 1
	}
	return c
}

// Record is one NDJSON line: a supervised (state, teacher policy, teacher
// value) sample plus provenance (game/ply) for reproducible dataset
// auditing.
type Record struct {
	FEN           string          `json:"fen"`
	Side          string          `json:"side"`
	BestAction    int             `json:"best_action"`
	TopK          []int           `json:"top_k"`
	TeacherPolicy map[int]float64 `json:"teacher_policy"`
	Value         float64         `json:"value"`
	ValidActions  []int           `json:"valid_actions"`
	Move          string          `json:"move"`
	GameID        string          `json:"game_id"`
	Ply           int             `json:"ply"`
	Timestamp     time.Time       `json:"ts"`
}

// Collect plays cfg.Games games, at each ply querying teacher for a scored
// move list, building a softmax-over-top-K policy at cfg.Temperature, and
// sampling the move actually played from that policy (not always the
// argmax, so the dataset captures the teacher's full policy shape rather
// than one greedy line). Positions are deduplicated by FEN, capping at
// cfg.MaxRepeatsPerPosition records per distinct position across the whole
// run.
func Collect(adapter engine.Adapter, teacher *agent.Minimax, cfg Config, rng *rand.Rand, now func() time.Time) ([]Record, error) {
	cfg = cfg.withDefaults()
	if now == nil {
		now = time.Now
	}
	seen := make(map[string]int)
	var records []Record

	for g := 0; g < cfg.Games; g++ {
		gameID := fmt.Sprintf("game-%06d", g)
		pos := adapter.InitialState()

		for ply := 0; cfg.MaxPliesPerGame <= 0 || ply < cfg.MaxPliesPerGame; ply++ {
			if adapter.IsTerminal(pos) {
				break
			}
			legal := adapter.LegalMoves(pos)
			if len(legal) == 0 {
				break
			}

			scored := teacher.Evaluate(pos, legal)
			if len(scored) == 0 {
				break
			}
			sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })

			k := cfg.TopK
			if k > len(scored) {
				k = len(scored)
			}
			top := scored[:k]
			policy := softmax(top, cfg.Temperature)

			fen := pos.FEN()
			if seen[fen] < cfg.MaxRepeatsPerPosition {
				side := "w"
				if pos.SideToMove() == engine.Black {
					side = "b"
				}
				topK := make([]int, k)
				policyByAction := make(map[int]float64, k)
				for i, sm := range top {
					idx := codec.EncodeMove(sm.Move)
					topK[i] = idx
					policyByAction[idx] = round6(policy[i])
				}
				valid := uniqueActionIndices(legal)

				records = append(records, Record{
					FEN:           fen,
					Side:          side,
					BestAction:    codec.EncodeMove(top[0].Move),
					TopK:          topK,
					TeacherPolicy: policyByAction,
					Value:         round6(agent.NormalizedValue(top[0].Score)),
					ValidActions:  valid,
					Move:          top[0].Move.Algebraic(),
					GameID:        gameID,
					Ply:           ply,
					Timestamp:     now(),
				})
				seen[fen]++
			}

			chosen := sampleIndex(policy, rng)
			next, err := adapter.ApplyMove(pos, top[chosen].Move)
			if err != nil {
				return nil, chesserr.Wrap(chesserr.EngineError, "apply teacher-selected move during distillation", err)
			}
			pos = next
		}
	}
	return records, nil
}

// softmax computes softmax(score/temperature) over scored moves. Scores are
// centipawns, so they are scaled to pawn units first; otherwise any sub-1.0
// temperature collapses the policy to an argmax one-hot.
func softmax(scored []agent.ScoredMove, temperature float64) []float64 {
	const pawnUnit = 100.0
	maxScore := scored[0].Score
	for _, s := range scored[1:] {
		if s.Score > maxScore {
			maxScore = s.Score
		}
	}
	weights := make([]float64, len(scored))
	total := 0.0
	for i, s := range scored {
		w := math.Exp(float64(s.Score-maxScore) / pawnUnit / temperature)
		weights[i] = w
		total += w
	}
	for i := range weights {
		weights[i] /= total
	}
	return weights
}

func sampleIndex(weights []float64, rng *rand.Rand) int {
	r := rng.Float64()
	acc := 0.0
	for i, w := range weights {
		acc += w
		if r <= acc {
			return i
		}
	}
	return len(weights) - 1
}

func uniqueActionIndices(legal []engine.Move) []int {
	seen := make(map[int]bool, len(legal))
	out := make([]int, 0, len(legal))
	for _, m := range legal {
		idx := codec.EncodeMove(m)
		if !seen[idx] {
			seen[idx] = true
			out = append(out, idx)
		}
	}
	sort.Ints(out)
	return out
}

// round6 rounds x to 6 significant digits, matching the NDJSON dataset
// format's fixed precision.
func round6(x float64) float64 {
	if x == 0 || math.IsNaN(x) || math.IsInf(x, 0) {
		return x
	}
	mag := math.Floor(math.Log10(math.Abs(x))) + 1
	power := 6 - mag
	scale := math.Pow(10, power)
	return math.Round(x*scale) / scale
}

// WriteNDJSON streams records to w, one JSON object per line, in the order
// given.
func WriteNDJSON(w io.Writer, records []Record) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encode teacher distillation record: %w", err)
		}
	}
	return bw.Flush()
}
