// Package pipeline implements the training cycle state machine: collect
// self-play episodes, drain them through batched learner updates, sync the
// opponent snapshot, evaluate against fixed baselines on a cadence,
// checkpoint, and report to the training validator. This is the single
// owner context described by the concurrency model — the replay buffer,
// both networks, and the checkpoint store are mutated only here; workers
// spawned during COLLECT hold read-only snapshots.
package pipeline

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/lox/chessrl/internal/agent"
	"github.com/lox/chessrl/internal/checkpoint"
	"github.com/lox/chessrl/internal/chesserr"
	"github.com/lox/chessrl/internal/dqn"
	"github.com/lox/chessrl/internal/engine"
	"github.com/lox/chessrl/internal/evaluator"
	"github.com/lox/chessrl/internal/explore"
	"github.com/lox/chessrl/internal/network"
	"github.com/lox/chessrl/internal/replay"
	"github.com/lox/chessrl/internal/selfplay"
	"github.com/lox/chessrl/internal/trainctx"
	"github.com/lox/chessrl/internal/validator"
)

// Config controls the cycle loop and every phase's cadence.
type Config struct {
	GamesPerCycle                 int
	MaxCycles                     int
	MaxConcurrentGames            int
	MaxStepsPerGame               int
	BatchesPerCycle               int
	BatchSize                     int
	EvaluationGames               int
	EvaluationFrequencyCycles     int
	CheckpointFrequencyCycles     int
	OpponentUpdateFrequencyCycles int
	Patience                      int
	MinDelta                      float64

	// GameTimeout bounds each self-play game's wall clock (0 disables);
	// WorkerRetryBudget is how many times a timed-out game is retried before
	// the cycle proceeds with a reduced game count.
	GameTimeout       time.Duration
	WorkerRetryBudget int

	WinReward, LossReward, DrawReward float64
	StepPenalty, StepLimitPenalty     float64
	InvalidMoveReward                 float64
	EnableEarlyAdjudication           bool
	ResignMaterialThreshold           int
	NoProgressPlies                   int
}

func (c Config) withDefaults() Config {
	if c.GamesPerCycle <= 0 {
		c.GamesPerCycle = 20
	}
	if c.MaxCycles <= 0 {
		c.MaxCycles = 200
	}
	if c.MaxConcurrentGames <= 0 {
		c.MaxConcurrentGames = 4
	}
	if c.MaxStepsPerGame <= 0 {
		c.MaxStepsPerGame = 120
	}
	if c.BatchesPerCycle < 0 {
		c.BatchesPerCycle = 0 // zero is meaningful: collect and evaluate without learning
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 64
	}
	if c.EvaluationGames <= 0 {
		c.EvaluationGames = 50
	}
	if c.EvaluationFrequencyCycles <= 0 {
		c.EvaluationFrequencyCycles = 5
	}
	if c.CheckpointFrequencyCycles <= 0 {
		c.CheckpointFrequencyCycles = 10
	}
	if c.Patience <= 0 {
		c.Patience = 20
	}
	if c.MinDelta <= 0 {
		c.MinDelta = 0.005
	}
	if c.WorkerRetryBudget < 0 {
		c.WorkerRetryBudget = 0
	}
	return c
}

// CycleRecord is the per-cycle aggregate reported by RunCycle.
type CycleRecord struct {
	Cycle               int
	GamesPlayed         int
	Wins, Draws, Losses int
	AvgEpisodeLength    float64
	AvgReward           float64
	BatchUpdateCount    int
	AvgLoss             float64
	GradNorm            float64
	AvgPolicyEntropy    float64
	MeanQ               float64
	BufferSize          int
	Duration            time.Duration
	Epsilon             float64
	StepLimitRate       float64
	UniqueActions       int

	Evaluations  []evaluator.Result
	Checkpointed bool
	IsBest       bool
	Warnings     []string
	Issues       []validator.Issue
}

// Pipeline owns the replay buffer, the online and target networks, and the
// checkpoint store. Agents (the opponent snapshot, evaluation baselines)
// are borrowed read-only.
type Pipeline struct {
	adapter engine.Adapter
	online  network.Trainable
	target  network.Trainable
	learner *dqn.Learner
	buffer  replay.Buffer

	opponentNet network.Trainable
	opponent    agent.Agent

	baselines []agent.Agent

	checkpointDir string
	validator     *validator.Validator

	cfg   Config
	tc    *trainctx.TrainingContext
	rng   *rand.Rand
	cycle int

	bestMetric      float64
	hasBest         bool
	cyclesSinceBest int
}

// New constructs a Pipeline. online/target must share architecture (per
// the DQN learner's contract). opponentNet, if non-nil, backs a greedy
// agent periodically synced from online and paired against the learner
// during self-play; pass nil for pure self-play (the learner plays both
// sides). baselines are the fixed opponents played during EVALUATE. tc
// supplies the run's RNG, logger, and error counters; the pipeline derives
// its own component logger from it.
func New(
	adapter engine.Adapter,
	online, target network.Trainable,
	buf replay.Buffer,
	policy explore.Policy,
	dqnCfg dqn.Config,
	opponentNet network.Trainable,
	baselines []agent.Agent,
	checkpointDir string,
	val *validator.Validator,
	cfg Config,
	tc *trainctx.TrainingContext,
) *Pipeline {
	p := &Pipeline{
		adapter:       adapter,
		online:        online,
		target:        target,
		learner:       dqn.New(online, target, dqnCfg, policy),
		buffer:        buf,
		opponentNet:   opponentNet,
		baselines:     baselines,
		checkpointDir: checkpointDir,
		validator:     val,
		cfg:           cfg.withDefaults(),
		tc:            tc.Component("pipeline"),
		rng:           tc.RNG,
	}
	if opponentNet != nil {
		p.opponent = dqn.New(opponentNet, opponentNet, dqn.Config{TargetUpdateFrequency: 1 << 30}, explore.NewEpsilonGreedy(0, 0, 1))
	}
	return p
}

// Learner exposes the underlying DQN learner (e.g. for direct evaluation
// or QValues introspection).
func (p *Pipeline) Learner() *dqn.Learner { return p.learner }

// Cycle reports the number of cycles completed so far.
func (p *Pipeline) Cycle() int { return p.cycle }

// ShouldStop reports whether the pipeline has reached a termination
// condition: max cycles, or no best-metric improvement of at least
// MinDelta for Patience consecutive cycles.
func (p *Pipeline) ShouldStop() bool {
	return p.cycle >= p.cfg.MaxCycles || p.cyclesSinceBest >= p.cfg.Patience
}

// RunCycle executes one COLLECT -> TRAIN -> (EVALUATE) -> (CHECKPOINT)
// cycle and returns its aggregate record.
func (p *Pipeline) RunCycle(ctx context.Context) (CycleRecord, error) {
	start := time.Now()
	p.cycle++
	p.tc.Errors.Reset()
	rec := CycleRecord{Cycle: p.cycle}

	if err := p.collect(ctx, &rec); err != nil {
		return rec, err
	}
	if err := p.train(&rec); err != nil {
		return rec, err
	}
	p.syncOpponent()
	p.evaluate(&rec)
	p.checkpointPhase(&rec)

	rec.BufferSize = p.buffer.Size()
	rec.Duration = time.Since(start)
	rec.Epsilon = p.learner.ExplorationRate()

	_, issues := p.validator.Observe(validator.CycleMetrics{
		GradNorm:      rec.GradNorm,
		Entropy:       rec.AvgPolicyEntropy,
		MeanQ:         rec.MeanQ,
		Epsilon:       rec.Epsilon,
		AvgReward:     rec.AvgReward,
		MeanPlies:     rec.AvgEpisodeLength,
		DrawRate:      divide(float64(rec.Draws), float64(rec.GamesPlayed)),
		StepLimitRate: rec.StepLimitRate,
		UniqueActions: rec.UniqueActions,
		Timestamp:     start,
	})
	rec.Issues = issues
	for _, issue := range issues {
		p.tc.Logger.Warn().
			Str("kind", string(issue.Kind)).
			Str("severity", string(issue.Severity)).
			Int("count", issue.Count).
			Msg(issue.Message)
	}

	p.tc.Logger.Info().
		Int("cycle", rec.Cycle).
		Int("games", rec.GamesPlayed).
		Int("updates", rec.BatchUpdateCount).
		Float64("avg_reward", rec.AvgReward).
		Float64("avg_loss", rec.AvgLoss).
		Int("buffer_size", rec.BufferSize).
		Dur("duration", rec.Duration).
		Msg("cycle complete")
	return rec, nil
}

func divide(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}

// collect runs GamesPerCycle self-play games, using the opponent snapshot
// (if configured) for paired self-play, and folds results into rec.
func (p *Pipeline) collect(ctx context.Context, rec *CycleRecord) error {
	cfg := selfplay.Config{
		Workers:                 p.cfg.MaxConcurrentGames,
		GamesPerCycle:           p.cfg.GamesPerCycle,
		MaxPlies:                p.cfg.MaxStepsPerGame,
		GameTimeout:             p.cfg.GameTimeout,
		RetryBudget:             p.cfg.WorkerRetryBudget,
		Logger:                  p.tc.Component("selfplay").Logger,
		Opponent:                p.opponent,
		WinReward:               p.cfg.WinReward,
		LossReward:              p.cfg.LossReward,
		DrawReward:              p.cfg.DrawReward,
		StepPenalty:             p.cfg.StepPenalty,
		StepLimitPenalty:        p.cfg.StepLimitPenalty,
		InvalidMoveReward:       p.cfg.InvalidMoveReward,
		EnableEarlyAdjudication: p.cfg.EnableEarlyAdjudication,
		ResignMaterialThreshold: p.cfg.ResignMaterialThreshold,
		NoProgressPlies:         p.cfg.NoProgressPlies,
	}
	results, skipped, err := selfplay.Run(ctx, p.adapter, p.learner, selfplay.NewBufferSink(p.buffer), cfg, p.rng.Int63())
	if err != nil {
		return err
	}
	if skipped > 0 {
		for i := 0; i < skipped; i++ {
			p.tc.Errors.Record(chesserr.WorkerError)
		}
		p.tc.Logger.Warn().Int("skipped", skipped).Msg("self-play games skipped after exhausting timeout retries")
		rec.Warnings = append(rec.Warnings, fmt.Sprintf("%d self-play games skipped after exhausting timeout retries", skipped))
	}

	rec.GamesPlayed = len(results)
	uniqueActions := make(map[int]bool)
	totalPlies := 0
	var totalReward float64
	stepLimited := 0
	for _, r := range results {
		totalPlies += r.Plies
		switch r.Outcome {
		case engine.WhiteWins:
			rec.Wins++
		case engine.BlackWins:
			rec.Losses++
		default:
			rec.Draws++
		}
		if r.StepLimited {
			stepLimited++
		}
		if len(r.Transitions) > 0 {
			totalReward += r.Transitions[len(r.Transitions)-1].Reward
		}
		for _, tr := range r.Transitions {
			uniqueActions[tr.ActionIndex] = true
		}
		p.learner.UpdateExploration()
	}
	if rec.GamesPlayed > 0 {
		rec.AvgEpisodeLength = float64(totalPlies) / float64(rec.GamesPlayed)
		rec.AvgReward = totalReward / float64(rec.GamesPlayed)
		rec.StepLimitRate = float64(stepLimited) / float64(rec.GamesPlayed)
	}
	rec.UniqueActions = len(uniqueActions)
	return nil
}

// train drains BatchesPerCycle learner updates, stopping early (a
// documented no-op, not an error) once the buffer can no longer fill a
// batch.
func (p *Pipeline) train(rec *CycleRecord) error {
	var totalLoss, totalGrad, totalEntropy, totalMeanQ float64
	for i := 0; i < p.cfg.BatchesPerCycle; i++ {
		if p.buffer.Size() < p.cfg.BatchSize {
			break
		}
		res, err := p.learner.Learn(p.buffer, p.cfg.BatchSize, p.rng)
		if err != nil {
			return err
		}
		totalLoss += res.Loss
		totalGrad += res.GradNorm
		totalEntropy += res.PolicyEntropy
		totalMeanQ += res.MeanQ
		rec.BatchUpdateCount++
		if res.TargetSynced {
			p.tc.Logger.Info().Int("update_count", res.UpdateCount).Msg("target network synchronized")
		}
	}
	if rec.BatchUpdateCount > 0 {
		rec.AvgLoss = totalLoss / float64(rec.BatchUpdateCount)
		rec.GradNorm = totalGrad / float64(rec.BatchUpdateCount)
		rec.AvgPolicyEntropy = totalEntropy / float64(rec.BatchUpdateCount)
		rec.MeanQ = totalMeanQ / float64(rec.BatchUpdateCount)
	}
	return nil
}

// syncOpponent copies online's weights into the opponent snapshot every
// OpponentUpdateFrequencyCycles cycles.
func (p *Pipeline) syncOpponent() {
	if p.opponentNet == nil || p.cfg.OpponentUpdateFrequencyCycles <= 0 {
		return
	}
	if p.cycle%p.cfg.OpponentUpdateFrequencyCycles != 0 {
		return
	}
	if err := p.online.CopyWeightsTo(p.opponentNet); err != nil {
		p.tc.Errors.RecordError(err)
		p.tc.Logger.Warn().Err(err).Msg("opponent snapshot sync failed")
		return
	}
	p.tc.Logger.Debug().Int("cycle", p.cycle).Msg("opponent snapshot synchronized")
}

// evaluate plays EvaluationGames against every configured baseline on the
// EvaluationFrequencyCycles cadence.
func (p *Pipeline) evaluate(rec *CycleRecord) {
	if len(p.baselines) == 0 || p.cfg.EvaluationFrequencyCycles <= 0 {
		return
	}
	if p.cycle%p.cfg.EvaluationFrequencyCycles != 0 {
		return
	}
	for _, baseline := range p.baselines {
		res, err := evaluator.Evaluate(p.adapter, p.learner, baseline, evaluator.Config{
			Games:    p.cfg.EvaluationGames,
			MaxPlies: p.cfg.MaxStepsPerGame,
		}, p.rng)
		if err != nil {
			p.tc.Errors.RecordError(err)
			p.tc.Logger.Warn().Err(err).Str("baseline", baseline.Name()).Msg("evaluation failed")
			rec.Warnings = append(rec.Warnings, fmt.Sprintf("evaluation against %s failed: %v", baseline.Name(), err))
			continue
		}
		p.tc.Logger.Info().
			Str("baseline", baseline.Name()).
			Float64("win_rate", res.WinRate).
			Int("wins", res.Wins).Int("draws", res.Draws).Int("losses", res.Losses).
			Msg("evaluation complete")
		rec.Evaluations = append(rec.Evaluations, res)
	}
}

// primaryMetric is the evaluation win rate (averaged across baselines) when
// this cycle evaluated, falling back to the cycle's average reward
// otherwise.
func primaryMetric(rec CycleRecord) float64 {
	if len(rec.Evaluations) == 0 {
		return rec.AvgReward
	}
	sum := 0.0
	for _, e := range rec.Evaluations {
		sum += e.WinRate
	}
	return sum / float64(len(rec.Evaluations))
}

// checkpointPhase saves a numbered checkpoint on the configured cadence and
// updates best.* whenever the primary metric strictly improves on the
// running best, independent of that cadence. A save failure is retried
// once; on repeated failure a warning is recorded and best-state is not
// advanced.
func (p *Pipeline) checkpointPhase(rec *CycleRecord) {
	metric := primaryMetric(*rec)
	improved := !p.hasBest || metric > p.bestMetric

	if !p.hasBest || metric-p.bestMetric >= p.cfg.MinDelta {
		p.cyclesSinceBest = 0
	} else {
		p.cyclesSinceBest++
	}

	meta := checkpoint.Metadata{
		Cycle:       p.cycle,
		CreatedAt:   time.Now(),
		MeanReward:  rec.AvgReward,
		WinRate:     metric,
		Performance: metric,
		Description: fmt.Sprintf("cycle %d regular checkpoint", p.cycle),
	}

	onCadence := p.cfg.CheckpointFrequencyCycles > 0 && p.cycle%p.cfg.CheckpointFrequencyCycles == 0
	if onCadence {
		name := fmt.Sprintf("cycle-%06d", p.cycle)
		if err := saveWithRetry(p.checkpointDir, name, p.online, meta); err != nil {
			p.tc.Errors.RecordError(err)
			p.tc.Logger.Warn().Err(err).Str("name", name).Msg("checkpoint save failed")
			rec.Warnings = append(rec.Warnings, fmt.Sprintf("checkpoint save failed: %v", err))
		} else {
			p.tc.Logger.Info().Str("name", name).Float64("metric", metric).Msg("checkpoint saved")
			rec.Checkpointed = true
		}
	}

	if improved {
		bestMeta := meta
		bestMeta.IsBest = true
		bestMeta.Description = fmt.Sprintf("cycle %d best (metric %.4f)", p.cycle, metric)
		if err := saveWithRetry(p.checkpointDir, "best", p.online, bestMeta); err != nil {
			p.tc.Errors.RecordError(err)
			p.tc.Logger.Warn().Err(err).Msg("best checkpoint save failed; best metric not advanced")
			rec.Warnings = append(rec.Warnings, fmt.Sprintf("best checkpoint save failed: %v", err))
			return
		}
		p.tc.Logger.Info().Int("cycle", p.cycle).Float64("metric", metric).Msg("new best checkpoint")
		rec.IsBest = true
		p.bestMetric = metric
		p.hasBest = true
	}
}

func saveWithRetry(dir, name string, net network.Trainable, meta checkpoint.Metadata) error {
	err := checkpoint.Save(dir, name, net, meta)
	if err == nil {
		return nil
	}
	if !chesserr.As(err, chesserr.CheckpointError) {
		return err
	}
	return checkpoint.Save(dir, name, net, meta)
}

// Run drives cycles until ShouldStop or ctx is canceled, returning every
// cycle's record in order.
func Run(ctx context.Context, p *Pipeline) ([]CycleRecord, error) {
	var records []CycleRecord
	for !p.ShouldStop() {
		select {
		case <-ctx.Done():
			return records, ctx.Err()
		default:
		}
		rec, err := p.RunCycle(ctx)
		records = append(records, rec)
		if err != nil {
			return records, err
		}
	}
	return records, nil
}
