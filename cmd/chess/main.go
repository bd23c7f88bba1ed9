// Command chess is the CLI surface over the training core: train runs the
// full self-play/learn/evaluate/checkpoint cycle, evaluate scores a
// checkpoint against a baseline, collect-teacher emits a minimax-distilled
// NDJSON dataset, perft checks move-generator conformance, and
// diversity-report summarizes action-space coverage, either by replaying a
// checkpoint's greedy policy or from a training run's cycle log.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/lox/chessrl/internal/agent"
	"github.com/lox/chessrl/internal/checkpoint"
	"github.com/lox/chessrl/internal/chesserr"
	"github.com/lox/chessrl/internal/codec"
	"github.com/lox/chessrl/internal/distill"
	"github.com/lox/chessrl/internal/dqn"
	"github.com/lox/chessrl/internal/engine"
	"github.com/lox/chessrl/internal/engine/native"
	"github.com/lox/chessrl/internal/engine/reference"
	"github.com/lox/chessrl/internal/evaluator"
	"github.com/lox/chessrl/internal/explore"
	"github.com/lox/chessrl/internal/network"
	"github.com/lox/chessrl/internal/pipeline"
	"github.com/lox/chessrl/internal/replay"
	"github.com/lox/chessrl/internal/trainctx"
	"github.com/lox/chessrl/internal/validator"
)

var cli struct {
	Debug bool `help:"enable debug logging"`

	Train           TrainCmd           `cmd:"" help:"run the self-play training pipeline"`
	Evaluate        EvaluateCmd        `cmd:"" help:"evaluate a checkpoint against a baseline opponent"`
	CollectTeacher  CollectTeacherCmd  `cmd:"collect-teacher" help:"distill a minimax teacher into an NDJSON policy dataset"`
	Perft           PerftCmd           `cmd:"" help:"run a move-generator perft conformance check"`
	DiversityReport DiversityReportCmd `cmd:"diversity-report" help:"summarize action-space coverage from a checkpoint or a training run's cycle log"`
}

// trainingProfiles are the named, immutable training-cycle presets: the
// default values TrainCmd's flags fall back to before any explicit CLI flag
// overrides them field-by-field. fast-debug is tuned for a quick local
// smoke run, long-train for an unattended production run, eval-only for
// scoring an existing checkpoint with no learning.
var trainingProfiles = map[string]kong.Vars{
	"fast-debug": {
		"games_per_cycle": "2", "max_cycles": "3", "max_concurrent_games": "2",
		"max_steps_per_game": "20", "batches_per_cycle": "1", "batch_size": "8",
		"evaluation_games": "2", "evaluation_frequency_cycles": "1",
		"checkpoint_frequency_cycles": "1",
	},
	"long-train": {
		"games_per_cycle": "20", "max_cycles": "200", "max_concurrent_games": "4",
		"max_steps_per_game": "120", "batches_per_cycle": "1", "batch_size": "64",
		"evaluation_games": "50", "evaluation_frequency_cycles": "5",
		"checkpoint_frequency_cycles": "10",
	},
	"eval-only": {
		"games_per_cycle": "1", "max_cycles": "1", "max_concurrent_games": "1",
		"max_steps_per_game": "120", "batches_per_cycle": "0", "batch_size": "64",
		"evaluation_games": "100", "evaluation_frequency_cycles": "1",
		"checkpoint_frequency_cycles": "1",
	},
}

// profileFlag pre-scans args for --profile=<name> (or --profile <name>)
// without fully parsing them, so the chosen profile's Vars can seed kong's
// flag defaults before kong.Parse runs. Unrecognized or absent profiles fall
// back to long-train, kong's normal validation path, or an explicit flag
// value supplied by the user, which always wins over a Vars-sourced default.
func profileFlag(args []string) string {
	for i, a := range args {
		switch {
		case a == "--profile" && i+1 < len(args):
			return args[i+1]
		case strings.HasPrefix(a, "--profile="):
			return strings.TrimPrefix(a, "--profile=")
		}
	}
	return "long-train"
}

func main() {
	vars := trainingProfiles[profileFlag(os.Args[1:])]
	if vars == nil {
		vars = trainingProfiles["long-train"]
	}

	parser, err := kong.New(&cli,
		kong.Name("chess"),
		kong.Description("chess self-play RL training core"),
		kong.UsageOnError(),
		vars,
	)
	if err != nil {
		panic(err)
	}

	// Unknown flags are warned about and dropped; any other parse failure
	// exits 1 with usage, the configuration-error exit code.
	args := os.Args[1:]
	var ctx *kong.Context
	for {
		ctx, err = parser.Parse(args)
		if err == nil {
			break
		}
		if flag, ok := unknownFlag(err); ok {
			trimmed := dropFlag(args, flag)
			if len(trimmed) < len(args) {
				fmt.Fprintf(os.Stderr, "warning: ignoring unknown flag %s\n", flag)
				args = trimmed
				continue
			}
		}
		parser.FatalIfErrorf(err)
	}

	setupLogger(cli.Debug)

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var runErr error
	switch ctx.Command() {
	case "train":
		runErr = cli.Train.Run(runCtx)
	case "evaluate":
		runErr = cli.Evaluate.Run(runCtx)
	case "collect-teacher":
		runErr = cli.CollectTeacher.Run(runCtx)
	case "perft":
		runErr = cli.Perft.Run(runCtx)
	case "diversity-report":
		runErr = cli.DiversityReport.Run(runCtx)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", ctx.Command())
		os.Exit(chesserr.ConfigurationInvalid.ExitCode())
	}

	os.Exit(exitCode(runErr))
}

// unknownFlag extracts the flag name from kong's "unknown flag --x" parse
// error, reporting false for any other failure.
func unknownFlag(err error) (string, bool) {
	msg := err.Error()
	const marker = "unknown flag "
	i := strings.Index(msg, marker)
	if i < 0 {
		return "", false
	}
	flag := msg[i+len(marker):]
	if j := strings.IndexAny(flag, " ,;"); j >= 0 {
		flag = flag[:j]
	}
	if !strings.HasPrefix(flag, "-") {
		return "", false
	}
	return flag, true
}

// dropFlag removes flag (and, for the separated "--flag value" form, its
// value) from args.
func dropFlag(args []string, flag string) []string {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		a := args[i]
		if a == flag {
			if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
				i++
			}
			continue
		}
		if strings.HasPrefix(a, flag+"=") {
			continue
		}
		out = append(out, a)
	}
	return out
}

func setupLogger(debug bool) {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level)
}

// exitCode maps a Run error to the process exit code per the error
// taxonomy's propagation policy: 0 success, 1 configuration error, 2
// runtime error, 3 cancelled.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	if errors.Is(err, context.Canceled) {
		return 3
	}
	var ce *chesserr.Error
	if errors.As(err, &ce) {
		log.Error().Str("kind", string(ce.Kind)).Err(err).Msg("command failed")
		return ce.Kind.ExitCode()
	}
	log.Error().Err(err).Msg("command failed")
	return 2
}

func newAdapter(name string) (engine.Adapter, error) {
	switch name {
	case "", "native":
		return native.New(), nil
	case "reference":
		return reference.New(), nil
	default:
		return nil, chesserr.New(chesserr.ConfigurationInvalid, fmt.Sprintf("unknown engine %q (want native or reference)", name))
	}
}

func newBaselines(adapter engine.Adapter, spec string) ([]agent.Agent, error) {
	if spec == "" {
		spec = "heuristic"
	}
	var out []agent.Agent
	for _, name := range splitComma(spec) {
		switch {
		case name == "heuristic":
			out = append(out, agent.NewHeuristic(adapter))
		case len(name) > len("minimax:") && name[:len("minimax:")] == "minimax:":
			depth, err := parseDepth(name[len("minimax:"):])
			if err != nil {
				return nil, chesserr.Wrap(chesserr.ConfigurationInvalid, "invalid minimax baseline depth", err)
			}
			out = append(out, agent.NewMinimax(adapter, depth))
		default:
			return nil, chesserr.New(chesserr.ConfigurationInvalid, fmt.Sprintf("unknown baseline %q", name))
		}
	}
	return out, nil
}

func splitComma(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}

func parseDepth(s string) (int, error) {
	depth := 0
	if s == "" {
		return 0, fmt.Errorf("empty depth")
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("non-numeric depth %q", s)
		}
		depth = depth*10 + int(r-'0')
	}
	if depth <= 0 {
		return 0, fmt.Errorf("depth must be positive")
	}
	return depth, nil
}

func newNetworkPair(hiddenLayers []int, learningRate float64, seed int64) (*network.MLP, *network.MLP) {
	widths := append([]int{codec.FeatureSize}, hiddenLayers...)
	widths = append(widths, codec.ActionSpaceSize)
	online := network.NewMLP(widths, learningRate, seed)
	target := network.NewMLP(widths, learningRate, seed)
	_ = online.CopyWeightsTo(target)
	return online, target
}

func newPolicy(kind string, start, min, decay float64) (explore.Policy, error) {
	switch kind {
	case "", "epsilon_greedy":
		return explore.NewEpsilonGreedy(start, min, decay), nil
	case "boltzmann":
		return explore.NewBoltzmann(start, min, decay), nil
	default:
		return nil, chesserr.New(chesserr.ConfigurationInvalid, fmt.Sprintf("unknown exploration policy %q", kind))
	}
}

func newReplayBuffer(kind string, capacity int) (replay.Buffer, error) {
	switch kind {
	case "", "uniform":
		return replay.NewUniform(capacity), nil
	case "prioritized":
		return replay.NewPrioritized(capacity, 0.6, 0.4), nil
	default:
		return nil, chesserr.New(chesserr.ConfigurationInvalid, fmt.Sprintf("unknown replay type %q", kind))
	}
}

// TrainCmd runs the full training pipeline, logging one NDJSON record per
// cycle to <checkpoint-dir>/<run-name>/log.ndjson alongside the checkpoint
// files themselves.
type TrainCmd struct {
	RunName string `help:"run name; defaults to a generated id" default:""`
	Engine  string `help:"engine adapter (native|reference)" enum:"native,reference" default:"native"`
	Profile string `help:"named training profile (fast-debug|long-train|eval-only) supplying this command's defaults" enum:"fast-debug,long-train,eval-only" default:"long-train"`

	GamesPerCycle                 int     `help:"self-play games collected per cycle" default:"${games_per_cycle}"`
	MaxCycles                     int     `help:"maximum number of training cycles" default:"${max_cycles}"`
	MaxConcurrentGames            int     `help:"self-play worker pool size" default:"${max_concurrent_games}"`
	MaxStepsPerGame               int     `help:"per-game ply cap" default:"${max_steps_per_game}"`
	BatchesPerCycle               int     `help:"learner updates per cycle" default:"${batches_per_cycle}"`
	BatchSize                     int     `help:"transitions per learner update" default:"${batch_size}"`
	EvaluationGames               int     `help:"games per baseline during evaluation" default:"${evaluation_games}"`
	EvaluationFrequencyCycles     int     `help:"cycles between evaluation phases" default:"${evaluation_frequency_cycles}"`
	CheckpointFrequencyCycles     int     `help:"cycles between regular checkpoint saves" default:"${checkpoint_frequency_cycles}"`
	OpponentUpdateFrequencyCycles int     `help:"cycles between opponent-snapshot syncs (0 disables paired self-play)" default:"0"`
	Patience                      int     `help:"cycles without improvement before early stop" default:"20"`
	MinDelta                      float64 `help:"minimum best-metric improvement counted against patience" default:"0.005"`

	HiddenLayers []int   `help:"hidden layer widths" default:"512,256,128"`
	LearningRate float64 `help:"network learning rate" default:"0.001"`
	Seed         int64   `help:"master RNG seed" default:"1"`

	Gamma                 float64 `help:"discount factor" default:"0.99"`
	TargetUpdateFrequency int     `help:"learner updates between target-network syncs" default:"100"`
	ReplayType            string  `help:"replay buffer type (uniform|prioritized)" enum:"uniform,prioritized" default:"uniform"`
	ReplayCapacity        int     `help:"replay buffer capacity" default:"50000"`
	DoubleDQN             bool    `help:"enable double-DQN target computation"`

	Exploration  string  `help:"exploration policy (epsilon_greedy|boltzmann)" enum:"epsilon_greedy,boltzmann" default:"epsilon_greedy"`
	EpsilonStart float64 `help:"exploration rate/temperature start" default:"0.2"`
	EpsilonMin   float64 `help:"exploration rate/temperature floor" default:"0.01"`
	EpsilonDecay float64 `help:"multiplicative decay applied each game" default:"0.995"`

	WinReward        float64 `help:"terminal reward for the winner" default:"1.0"`
	LossReward       float64 `help:"terminal reward for the loser" default:"-1.0"`
	DrawReward       float64 `help:"terminal reward for a draw" default:"0.0"`
	StepPenalty      float64 `help:"per-ply reward applied to every transition" default:"-0.001"`
	StepLimitPenalty float64 `help:"reward substituted when the ply cap fires on a non-terminal position" default:"-0.5"`

	GameTimeout       time.Duration `help:"per-game wall-clock budget for self-play workers (0 disables)" default:"0"`
	WorkerRetryBudget int           `help:"retries for a timed-out self-play game before it is skipped" default:"2"`

	EnableEarlyAdjudication bool `help:"enable material/no-progress forced adjudication"`
	ResignMaterialThreshold int  `help:"centipawn imbalance required for early adjudication" default:"900"`
	NoProgressPlies         int  `help:"halfmove-clock value required for early adjudication" default:"80"`

	Baselines     string `help:"comma-separated evaluation baselines (heuristic, minimax:<depth>)" default:"heuristic,minimax:3"`
	CheckpointDir string `help:"checkpoint root directory" default:"checkpoints"`
}

func (cmd *TrainCmd) Run(ctx context.Context) error {
	runName := cmd.RunName
	if runName == "" {
		runName = uuid.NewString()
	}
	dir := fmt.Sprintf("%s/%s", cmd.CheckpointDir, runName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return chesserr.Wrap(chesserr.ConfigurationInvalid, "create checkpoint directory", err)
	}

	adapter, err := newAdapter(cmd.Engine)
	if err != nil {
		return err
	}
	baselines, err := newBaselines(adapter, cmd.Baselines)
	if err != nil {
		return err
	}
	policy, err := newPolicy(cmd.Exploration, cmd.EpsilonStart, cmd.EpsilonMin, cmd.EpsilonDecay)
	if err != nil {
		return err
	}
	buf, err := newReplayBuffer(cmd.ReplayType, cmd.ReplayCapacity)
	if err != nil {
		return err
	}

	online, target := newNetworkPair(cmd.HiddenLayers, cmd.LearningRate, cmd.Seed)

	var opponentNet *network.MLP
	if cmd.OpponentUpdateFrequencyCycles > 0 {
		widths := append([]int{codec.FeatureSize}, cmd.HiddenLayers...)
		widths = append(widths, codec.ActionSpaceSize)
		opponentNet = network.NewMLP(widths, cmd.LearningRate, cmd.Seed)
		_ = online.CopyWeightsTo(opponentNet)
	}

	val := validator.New(validator.Config{})

	pcfg := pipeline.Config{
		GamesPerCycle:                 cmd.GamesPerCycle,
		MaxCycles:                     cmd.MaxCycles,
		MaxConcurrentGames:            cmd.MaxConcurrentGames,
		MaxStepsPerGame:               cmd.MaxStepsPerGame,
		BatchesPerCycle:               cmd.BatchesPerCycle,
		BatchSize:                     cmd.BatchSize,
		EvaluationGames:               cmd.EvaluationGames,
		EvaluationFrequencyCycles:     cmd.EvaluationFrequencyCycles,
		CheckpointFrequencyCycles:     cmd.CheckpointFrequencyCycles,
		OpponentUpdateFrequencyCycles: cmd.OpponentUpdateFrequencyCycles,
		Patience:                      cmd.Patience,
		MinDelta:                      cmd.MinDelta,
		GameTimeout:                   cmd.GameTimeout,
		WorkerRetryBudget:             cmd.WorkerRetryBudget,
		WinReward:                     cmd.WinReward,
		LossReward:                    cmd.LossReward,
		DrawReward:                    cmd.DrawReward,
		StepPenalty:                   cmd.StepPenalty,
		StepLimitPenalty:              cmd.StepLimitPenalty,
		EnableEarlyAdjudication:       cmd.EnableEarlyAdjudication,
		ResignMaterialThreshold:       cmd.ResignMaterialThreshold,
		NoProgressPlies:               cmd.NoProgressPlies,
	}

	var opponentTrainable network.Trainable
	if opponentNet != nil {
		opponentTrainable = opponentNet
	}
	dqnCfg := dqn.Config{Gamma: cmd.Gamma, DoubleDQN: cmd.DoubleDQN, TargetUpdateFrequency: cmd.TargetUpdateFrequency}
	tc := trainctx.New(cmd.Seed, log.Logger)
	p := pipeline.New(adapter, online, target, buf, policy, dqnCfg, opponentTrainable, baselines, dir, val, pcfg, tc)

	logPath := fmt.Sprintf("%s/log.ndjson", dir)
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return chesserr.Wrap(chesserr.CheckpointError, "open cycle log", err)
	}
	defer logFile.Close()

	log.Info().Str("run_name", runName).Str("dir", dir).Int("max_cycles", pcfg.MaxCycles).Msg("starting training run")

	for !p.ShouldStop() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		// Per-cycle progress is logged by the pipeline's own component
		// logger; this loop only persists the NDJSON record.
		rec, err := p.RunCycle(ctx)
		if encErr := json.NewEncoder(logFile).Encode(rec); encErr != nil {
			log.Warn().Err(encErr).Msg("failed to append cycle record to log.ndjson")
		}
		if err != nil {
			return err
		}
	}

	log.Info().Int("cycles", p.Cycle()).Msg("training complete")
	return nil
}

// EvaluateCmd loads a checkpoint and plays it against a baseline opponent,
// reporting the win/draw/loss rates, confidence interval, and significance
// test computed by the evaluator.
type EvaluateCmd struct {
	Engine        string `help:"engine adapter (native|reference)" enum:"native,reference" default:"native"`
	CheckpointDir string `help:"directory containing the checkpoint" required:""`
	Checkpoint    string `help:"checkpoint name (defaults to best)" default:"best"`
	HiddenLayers  []int  `help:"hidden layer widths, must match the checkpoint's architecture" default:"512,256,128"`
	Games         int    `help:"number of games to play" default:"200"`
	MaxPlies      int    `help:"per-game ply cap" default:"200"`
	Opponent      string `help:"opponent baseline (heuristic or minimax:<depth>)" default:"heuristic"`
	Seed          int64  `help:"RNG seed" default:"1"`
}

func (cmd *EvaluateCmd) Run(ctx context.Context) error {
	adapter, err := newAdapter(cmd.Engine)
	if err != nil {
		return err
	}
	widths := append([]int{codec.FeatureSize}, cmd.HiddenLayers...)
	widths = append(widths, codec.ActionSpaceSize)
	net := network.NewMLP(widths, 0, cmd.Seed)
	meta, err := checkpoint.Load(cmd.CheckpointDir, cmd.Checkpoint, net)
	if err != nil {
		return err
	}

	candidate := dqn.New(net, net, dqn.Config{TargetUpdateFrequency: 1 << 30}, explore.NewEpsilonGreedy(0, 0, 1))

	opponents, err := newBaselines(adapter, cmd.Opponent)
	if err != nil {
		return err
	}
	if len(opponents) == 0 {
		return chesserr.New(chesserr.ConfigurationInvalid, "no opponent configured")
	}

	rng := newRNG(cmd.Seed)
	for _, opp := range opponents {
		res, err := evaluator.Evaluate(adapter, candidate, opp, evaluator.Config{Games: cmd.Games, MaxPlies: cmd.MaxPlies}, rng)
		if err != nil {
			return err
		}
		log.Info().
			Str("opponent", opp.Name()).
			Int("checkpoint_cycle", meta.Cycle).
			Int("wins", res.Wins).Int("draws", res.Draws).Int("losses", res.Losses).
			Float64("win_rate", res.WinRate).
			Float64("ci_low", res.ConfidenceInterval.Lower).Float64("ci_high", res.ConfidenceInterval.Upper).
			Float64("p_value", res.PValue).
			Str("effect", string(res.EffectLabel)).
			Msg("evaluation result")
	}
	return nil
}

// CollectTeacherCmd distills a minimax teacher into an NDJSON dataset.
type CollectTeacherCmd struct {
	Engine                string  `help:"engine adapter (native|reference)" enum:"native,reference" default:"native"`
	Out                   string  `help:"output NDJSON path" required:""`
	Games                 int     `help:"self-play games to generate" default:"100"`
	Depth                 int     `help:"minimax search depth" default:"3"`
	TopK                  int     `help:"top-K moves retained in teacher_policy" default:"5"`
	Temperature           float64 `help:"softmax temperature over move scores" default:"0.5"`
	MaxPliesPerGame       int     `help:"per-game ply cap" default:"200"`
	MaxRepeatsPerPosition int     `help:"maximum times a FEN may be emitted" default:"3"`
	Seed                  int64   `help:"RNG seed" default:"1"`
}

func (cmd *CollectTeacherCmd) Run(ctx context.Context) error {
	adapter, err := newAdapter(cmd.Engine)
	if err != nil {
		return err
	}
	teacher := agent.NewMinimax(adapter, cmd.Depth)
	rng := newRNG(cmd.Seed)

	records, err := distill.Collect(adapter, teacher, distill.Config{
		Games:                 cmd.Games,
		TopK:                  cmd.TopK,
		Temperature:           cmd.Temperature,
		MaxPliesPerGame:       cmd.MaxPliesPerGame,
		MaxRepeatsPerPosition: cmd.MaxRepeatsPerPosition,
	}, rng, time.Now)
	if err != nil {
		return err
	}

	f, err := os.Create(cmd.Out)
	if err != nil {
		return chesserr.Wrap(chesserr.CheckpointError, "create teacher dataset file", err)
	}
	defer f.Close()
	if err := distill.WriteNDJSON(f, records); err != nil {
		return err
	}
	log.Info().Int("records", len(records)).Str("path", cmd.Out).Msg("teacher dataset written")
	return nil
}

// PerftCmd runs a move-generator conformance check against a FEN, comparing
// the native and reference adapters when both are requested.
type PerftCmd struct {
	FEN    string `help:"starting FEN; defaults to the initial position" default:""`
	Depth  int    `help:"perft depth" default:"4"`
	Engine string `help:"engine adapter to run (native|reference|both)" enum:"native,reference,both" default:"both"`
}

func (cmd *PerftCmd) Run(ctx context.Context) error {
	run := func(name string, adapter engine.Adapter) (uint64, error) {
		pos := adapter.InitialState()
		if cmd.FEN != "" {
			var err error
			pos, err = adapter.FromFEN(cmd.FEN)
			if err != nil {
				return 0, chesserr.Wrap(chesserr.EngineError, fmt.Sprintf("parse FEN for %s adapter", name), err)
			}
		}
		return adapter.Perft(pos, cmd.Depth), nil
	}

	switch cmd.Engine {
	case "native":
		n, err := run("native", native.New())
		if err != nil {
			return err
		}
		log.Info().Uint64("nodes", n).Int("depth", cmd.Depth).Msg("perft (native)")
	case "reference":
		n, err := run("reference", reference.New())
		if err != nil {
			return err
		}
		log.Info().Uint64("nodes", n).Int("depth", cmd.Depth).Msg("perft (reference)")
	default:
		a, err := run("native", native.New())
		if err != nil {
			return err
		}
		b, err := run("reference", reference.New())
		if err != nil {
			return err
		}
		log.Info().Uint64("native", a).Uint64("reference", b).Bool("match", a == b).Int("depth", cmd.Depth).Msg("perft parity")
		if a != b {
			return chesserr.New(chesserr.EngineError, fmt.Sprintf("perft mismatch at depth %d: native=%d reference=%d", cmd.Depth, a, b))
		}
	}
	return nil
}

// DiversityReportCmd reports action-space coverage: with --log it summarizes
// per-cycle unique-action counts from a training run's log.ndjson; otherwise
// it replays a checkpoint's greedy policy across a batch of self-play games
// and counts how many of the 4096 dense action-space slots were exercised.
// Either way it is the offline complement to the validator's
// LOW_MOVE_DIVERSITY check computed over a single cycle's window.
type DiversityReportCmd struct {
	Engine        string `help:"engine adapter (native|reference)" enum:"native,reference" default:"native"`
	Log           string `help:"path to a training run's log.ndjson; summarizes per-cycle unique-action counts instead of replaying a checkpoint"`
	CheckpointDir string `help:"directory containing the checkpoint"`
	Checkpoint    string `help:"checkpoint name" default:"best"`
	HiddenLayers  []int  `help:"hidden layer widths, must match the checkpoint's architecture" default:"512,256,128"`
	Games         int    `help:"number of games to sample" default:"50"`
	MaxPlies      int    `help:"per-game ply cap" default:"200"`
	Seed          int64  `help:"RNG seed" default:"1"`
}

func (cmd *DiversityReportCmd) Run(ctx context.Context) error {
	if cmd.Log != "" {
		return cmd.reportFromLog()
	}
	if cmd.CheckpointDir == "" {
		return chesserr.New(chesserr.ConfigurationInvalid, "either --log or --checkpoint-dir is required")
	}
	adapter, err := newAdapter(cmd.Engine)
	if err != nil {
		return err
	}
	widths := append([]int{codec.FeatureSize}, cmd.HiddenLayers...)
	widths = append(widths, codec.ActionSpaceSize)
	net := network.NewMLP(widths, 0, cmd.Seed)
	if _, err := checkpoint.Load(cmd.CheckpointDir, cmd.Checkpoint, net); err != nil {
		return err
	}
	learner := dqn.New(net, net, dqn.Config{TargetUpdateFrequency: 1 << 30}, explore.NewEpsilonGreedy(0, 0, 1))

	rng := newRNG(cmd.Seed)
	unique := make(map[int]bool)
	totalPlies := 0
	for i := 0; i < cmd.Games; i++ {
		pos := adapter.InitialState()
		for ply := 0; cmd.MaxPlies <= 0 || ply < cmd.MaxPlies; ply++ {
			if adapter.IsTerminal(pos) {
				break
			}
			legal := adapter.LegalMoves(pos)
			if len(legal) == 0 {
				break
			}
			mv, err := learner.SelectAction(pos, legal, rng)
			if err != nil {
				return err
			}
			unique[codec.EncodeMove(mv)] = true
			next, err := adapter.ApplyMove(pos, mv)
			if err != nil {
				return err
			}
			pos = next
			totalPlies++
		}
	}

	coverage := float64(len(unique)) / float64(codec.ActionSpaceSize)
	log.Info().
		Int("unique_actions", len(unique)).
		Int("action_space_size", codec.ActionSpaceSize).
		Float64("coverage", coverage).
		Int("games", cmd.Games).
		Float64("avg_plies", float64(totalPlies)/float64(max(cmd.Games, 1))).
		Msg("diversity report")
	return nil
}

// reportFromLog summarizes the per-cycle unique-action counts already
// recorded in a training run's log.ndjson.
func (cmd *DiversityReportCmd) reportFromLog() error {
	f, err := os.Open(cmd.Log)
	if err != nil {
		return chesserr.Wrap(chesserr.ConfigurationInvalid, "open cycle log", err)
	}
	defer f.Close()

	type cycleLine struct {
		Cycle         int `json:"Cycle"`
		UniqueActions int `json:"UniqueActions"`
	}

	dec := json.NewDecoder(f)
	cycles := 0
	minUnique, maxUnique, totalUnique := 0, 0, 0
	for {
		var line cycleLine
		if err := dec.Decode(&line); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return chesserr.Wrap(chesserr.ConfigurationInvalid, "decode cycle log record", err)
		}
		if cycles == 0 || line.UniqueActions < minUnique {
			minUnique = line.UniqueActions
		}
		if line.UniqueActions > maxUnique {
			maxUnique = line.UniqueActions
		}
		totalUnique += line.UniqueActions
		cycles++
		log.Debug().Int("cycle", line.Cycle).Int("unique_actions", line.UniqueActions).Msg("cycle diversity")
	}
	if cycles == 0 {
		return chesserr.New(chesserr.ConfigurationInvalid, "cycle log contains no records")
	}
	log.Info().
		Int("cycles", cycles).
		Int("min_unique_actions", minUnique).
		Int("max_unique_actions", maxUnique).
		Float64("avg_unique_actions", float64(totalUnique)/float64(cycles)).
		Msg("diversity report")
	return nil
}

func newRNG(seed int64) *rand.Rand { return rand.New(rand.NewSource(seed)) }
