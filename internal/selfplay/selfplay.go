// Package selfplay drives self-play episodes across a bounded worker pool:
// each worker plays complete games against a read-only network snapshot,
// emitting transitions into a shared replay buffer. Each worker derives its
// own *rand.Rand from a seed drawn off the run's master RNG, so a whole
// cycle is reproducible end to end under a fixed top-level seed.
package selfplay

import (
	"context"
	"math/rand"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/lox/chessrl/internal/agent"
	"github.com/lox/chessrl/internal/chesserr"
	"github.com/lox/chessrl/internal/codec"
	"github.com/lox/chessrl/internal/engine"
	"github.com/lox/chessrl/internal/experience"
)

// Config controls one Run call.
type Config struct {
	Workers       int
	GamesPerCycle int
	MaxPlies      int // per-game step cap; 0 means no cap

	// GameTimeout is the per-game wall-clock budget; 0 disables it. A timed
	// out game discards its partial transitions and is retried up to
	// RetryBudget times before being skipped.
	GameTimeout time.Duration
	RetryBudget int

	// Logger reports per-game timeouts and skips. The zero value discards
	// everything, so callers without a logging setup need not provide one.
	Logger zerolog.Logger

	// Opponent, if set, plays the side learner isn't playing in a given
	// game instead of learner facing itself; games alternate which color
	// learner takes so both color perspectives are represented evenly.
	Opponent agent.Agent

	WinReward         float64
	LossReward        float64
	DrawReward        float64
	StepPenalty       float64 // applied to every transition, both sides
	StepLimitPenalty  float64 // replaces the terminal reward when the step cap fires
	InvalidMoveReward float64 // defense-in-depth only; unreachable under the masked-action contract

	// Early adjudication declares a forced result only when BOTH the
	// material-imbalance and no-progress conditions hold, and the
	// adjudicated reward equals a natural win/loss, never a distinct
	// penalty.
	EnableEarlyAdjudication bool
	ResignMaterialThreshold int // centipawns; |material balance| must reach this
	NoProgressPlies         int // halfmove clock must reach this
}

// GameResult summarizes one completed episode, independent of who played
// which side.
type GameResult struct {
	Transitions []experience.Transition
	Plies       int
	Outcome     engine.Outcome
	StepLimited bool
	Adjudicated bool
}

// Sink receives transitions as games complete; self-play workers call it
// concurrently, so implementations must be safe for concurrent use (a
// replay buffer guarded by its own mutex, or a channel writer).
type Sink interface {
	AddTransition(experience.Transition)
}

// Run plays cfg.GamesPerCycle games across cfg.Workers goroutines. When
// cfg.Opponent is nil, learner plays both sides (pure self-play); otherwise
// games alternate learner between White and Black against cfg.Opponent.
// Each game's RNG is seeded off a deterministic split of masterSeed so the
// whole cycle is reproducible. A game that exceeds cfg.GameTimeout discards
// its partial transitions and is retried on a fresh seed up to
// cfg.RetryBudget times; past that it is skipped and counted in skipped.
// Run returns once every game has completed or been skipped, a fatal error
// has occurred, or ctx is canceled.
func Run(ctx context.Context, adapter engine.Adapter, learner agent.Agent, sink Sink, cfg Config, masterSeed int64) (results []GameResult, skipped int, err error) {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.GamesPerCycle <= 0 {
		return nil, 0, nil
	}

	attempts := cfg.RetryBudget + 1
	masterRNG := rand.New(rand.NewSource(masterSeed))
	gameSeeds := make([][]int64, cfg.GamesPerCycle)
	for i := range gameSeeds {
		gameSeeds[i] = make([]int64, attempts)
		for j := range gameSeeds[i] {
			gameSeeds[i][j] = masterRNG.Int63()
		}
	}

	all := make([]GameResult, cfg.GamesPerCycle)
	completed := make([]bool, cfg.GamesPerCycle)
	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, cfg.Workers)

	for i := 0; i < cfg.GamesPerCycle; i++ {
		idx := i
		sem <- struct{}{}
		g.Go(func() error {
			defer func() { <-sem }()
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			white, black := learner, learner
			if cfg.Opponent != nil {
				if idx%2 == 0 {
					white, black = learner, cfg.Opponent
				} else {
					white, black = cfg.Opponent, learner
				}
			}
			for attempt := 0; attempt < attempts; attempt++ {
				rng := rand.New(rand.NewSource(gameSeeds[idx][attempt]))
				result, err := playGame(adapter, white, black, sink, cfg, rng)
				if err == nil {
					all[idx] = result
					completed[idx] = true
					return nil
				}
				if !chesserr.As(err, chesserr.WorkerError) {
					return err
				}
				cfg.Logger.Debug().Int("game", idx).Int("attempt", attempt+1).Msg("self-play game timed out")
			}
			// Retry budget exhausted; the game is skipped, not fatal.
			cfg.Logger.Warn().Int("game", idx).Int("attempts", attempts).Msg("self-play game skipped after exhausting retries")
			return nil
		})
	}

	// Worker errors surfacing here are fatal (engine/codec/learner faults or
	// cancellation); timeouts were already retried and downgraded to skips.
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	results = make([]GameResult, 0, cfg.GamesPerCycle)
	for i, ok := range completed {
		if ok {
			results = append(results, all[i])
		} else {
			skipped++
		}
	}
	return results, skipped, nil
}

// playGame runs one complete game, emitting its transitions into sink only
// after it finishes, so a timed-out game leaves nothing behind.
func playGame(adapter engine.Adapter, white, black agent.Agent, sink Sink, cfg Config, rng *rand.Rand) (GameResult, error) {
	var deadline time.Time
	if cfg.GameTimeout > 0 {
		deadline = time.Now().Add(cfg.GameTimeout)
	}

	pos := adapter.InitialState()
	var transitions []experience.Transition
	plies := 0
	stepLimited := false
	adjudicated := false
	var adjudicatedOutcome engine.Outcome

	for {
		if !deadline.IsZero() && time.Now().After(deadline) {
			return GameResult{}, chesserr.New(chesserr.WorkerError, "self-play game exceeded its wall-clock budget")
		}
		if adapter.IsTerminal(pos) {
			break
		}
		legal := adapter.LegalMoves(pos)
		if len(legal) == 0 {
			break
		}
		mover := white
		if pos.SideToMove() == engine.Black {
			mover = black
		}
		mv, err := mover.SelectAction(pos, legal, rng)
		if err != nil {
			return GameResult{}, err
		}

		features := codec.EncodeState(pos)
		next, err := adapter.ApplyMove(pos, mv)
		if err != nil {
			return GameResult{}, err
		}
		plies++

		terminal := adapter.IsTerminal(next)
		capped := cfg.MaxPlies > 0 && plies >= cfg.MaxPlies

		if !terminal {
			if adjOutcome, ok := earlyAdjudicationOutcome(cfg, next); ok {
				adjudicated = true
				adjudicatedOutcome = adjOutcome
			} else if capped {
				stepLimited = true
			}
		}
		done := terminal || adjudicated || capped

		var nextLegal []engine.Move
		if !done {
			nextLegal = adapter.LegalMoves(next)
		}

		tr := experience.Transition{
			FeaturesBefore: features,
			ActionIndex:    codec.EncodeMove(mv),
			Reward:         cfg.StepPenalty,
			FeaturesAfter:  codec.EncodeState(next),
			Done:           done,
			LegalMask:      codec.LegalMask(legal),
		}
		if !done {
			tr.NextLegalMask = codec.LegalMask(nextLegal)
		}
		transitions = append(transitions, tr)
		pos = next
		if done {
			break
		}
	}

	var outcome engine.Outcome
	if adjudicated {
		outcome = adjudicatedOutcome
	} else {
		outcome, _ = adapter.Outcome(pos)
	}

	applyTerminalReward(transitions, outcome, stepLimited, cfg)
	for _, tr := range transitions {
		sink.AddTransition(tr)
	}

	return GameResult{Transitions: transitions, Plies: plies, Outcome: outcome, StepLimited: stepLimited, Adjudicated: adjudicated}, nil
}

// earlyAdjudicationOutcome reports a forced result when both the material
// imbalance and no-progress conditions configured under
// EnableEarlyAdjudication are met in pos. Legitimate chess endings are
// handled by the normal terminal path and never reach here.
func earlyAdjudicationOutcome(cfg Config, pos engine.Position) (engine.Outcome, bool) {
	if !cfg.EnableEarlyAdjudication {
		return engine.Ongoing, false
	}
	if pos.HalfmoveClock() < cfg.NoProgressPlies {
		return engine.Ongoing, false
	}
	material := agent.MaterialScore(pos)
	if material >= cfg.ResignMaterialThreshold {
		return engine.WhiteWins, true
	}
	if -material >= cfg.ResignMaterialThreshold {
		return engine.BlackWins, true
	}
	return engine.Ongoing, false
}

// applyTerminalReward assigns the terminal credit to the move that ended
// the game, from the mover's own perspective (ply 0 = White's move, so the
// mover of the final ply is White when len(transitions) is odd). A game
// that hit the step cap without a natural or adjudicated result gets
// StepLimitPenalty instead of a win/draw/loss credit, replacing (not
// adding to) that transition's step penalty.
func applyTerminalReward(transitions []experience.Transition, outcome engine.Outcome, stepLimited bool, cfg Config) {
	if len(transitions) == 0 {
		return
	}
	last := len(transitions) - 1
	if stepLimited && outcome == engine.Ongoing {
		transitions[last].Reward = cfg.StepLimitPenalty
		return
	}

	lastMoverWasWhite := last%2 == 0
	var reward float64
	switch outcome {
	case engine.WhiteWins:
		if lastMoverWasWhite {
			reward = cfg.WinReward
		} else {
			reward = cfg.LossReward
		}
	case engine.BlackWins:
		if lastMoverWasWhite {
			reward = cfg.LossReward
		} else {
			reward = cfg.WinReward
		}
	default:
		reward = cfg.DrawReward
	}
	transitions[last].Reward += reward
}
