// Package pg implements the optional REINFORCE-style policy-gradient
// learner: discounted episode returns, an optional value-network baseline,
// and a softmax-policy update restricted to legal actions at each step.
package pg

import (
	"math"
	"math/rand"

	"github.com/lox/chessrl/internal/agent"
	"github.com/lox/chessrl/internal/chesserr"
	"github.com/lox/chessrl/internal/codec"
	"github.com/lox/chessrl/internal/engine"
	"github.com/lox/chessrl/internal/network"
)

// Step is one recorded decision within an episode; a complete episode's
// steps are passed to Learner.Learn once the episode ends.
type Step struct {
	Features    [codec.FeatureSize]float64
	LegalMask   [codec.ActionSpaceSize]bool
	ActionIndex int
	Reward      float64
}

// Config controls the learner's discounting and baseline use.
type Config struct {
	Gamma       float64
	UseBaseline bool
}

// StepResult carries diagnostics from one Learn call.
type StepResult struct {
	Loss          float64
	GradNorm      float64
	PolicyEntropy float64
}

// Learner is a REINFORCE policy-gradient learner over a softmax policy
// network, with an optional value-network baseline to reduce variance.
type Learner struct {
	policyNet network.Trainable
	valueNet  network.Trainable // nil when Config.UseBaseline is false
	cfg       Config
}

var _ agent.Agent = (*Learner)(nil)

// New constructs a Learner. valueNet may be nil only when cfg.UseBaseline
// is false.
func New(policyNet, valueNet network.Trainable, cfg Config) *Learner {
	return &Learner{policyNet: policyNet, valueNet: valueNet, cfg: cfg}
}

func (l *Learner) Name() string { return "policy_gradient" }

// logitsToProbs applies softmax restricted to legal actions, zeroing
// probability mass on illegal ones.
func logitsToProbs(logits []float64, mask [codec.ActionSpaceSize]bool) []float64 {
	maxLogit := math.Inf(-1)
	for i, ok := range mask {
		if ok && logits[i] > maxLogit {
			maxLogit = logits[i]
		}
	}
	probs := make([]float64, len(logits))
	sum := 0.0
	for i, ok := range mask {
		if !ok {
			continue
		}
		p := math.Exp(logits[i] - maxLogit)
		probs[i] = p
		sum += p
	}
	if sum > 0 {
		for i, ok := range mask {
			if ok {
				probs[i] /= sum
			}
		}
	}
	return probs
}

func (l *Learner) SelectAction(pos engine.Position, legal []engine.Move, rng *rand.Rand) (engine.Move, error) {
	if len(legal) == 0 {
		return engine.Move{}, chesserr.New(chesserr.LearnerError, "no legal moves available to select from")
	}
	features := codec.EncodeState(pos)
	mask := codec.LegalMask(legal)

	out, err := l.policyNet.Forward([][]float64{features[:]})
	if err != nil {
		return engine.Move{}, err
	}
	probs := logitsToProbs(out[0], mask)

	r := rng.Float64()
	acc := 0.0
	chosen := -1
	for i, p := range probs {
		if p <= 0 {
			continue
		}
		acc += p
		if r <= acc {
			chosen = i
			break
		}
	}
	if chosen < 0 {
		// fall back to the last legal action on float rounding edge cases
		for i, ok := range mask {
			if ok {
				chosen = i
			}
		}
	}
	mv, ok, err := codec.DecodeAction(chosen, legal)
	if err != nil {
		return engine.Move{}, err
	}
	if !ok {
		return engine.Move{}, chesserr.New(chesserr.LearnerError, "sampled action has no matching legal move")
	}
	return mv, nil
}

// discountedReturns computes G_t = sum_{k>=0} gamma^k * r_{t+k} for every
// step in the episode, oldest-first.
func discountedReturns(steps []Step, gamma float64) []float64 {
	returns := make([]float64, len(steps))
	running := 0.0
	for i := len(steps) - 1; i >= 0; i-- {
		running = steps[i].Reward + gamma*running
		returns[i] = running
	}
	return returns
}

// Learn runs one REINFORCE update over a complete episode's steps.
func (l *Learner) Learn(steps []Step) (StepResult, error) {
	if len(steps) == 0 {
		return StepResult{}, nil
	}
	returns := discountedReturns(steps, l.cfg.Gamma)

	batch := make([][]float64, len(steps))
	for i, s := range steps {
		batch[i] = append([]float64(nil), s.Features[:]...)
	}

	advantages := make([]float64, len(steps))
	var baselineTargets [][]float64
	if l.cfg.UseBaseline && l.valueNet != nil {
		values, err := l.valueNet.Forward(batch)
		if err != nil {
			return StepResult{}, err
		}
		baselineTargets = make([][]float64, len(steps))
		for i := range steps {
			advantages[i] = returns[i] - values[i][0]
			baselineTargets[i] = []float64{returns[i]}
		}
	} else {
		for i := range steps {
			advantages[i] = returns[i]
		}
	}

	out, err := l.policyNet.Forward(batch)
	if err != nil {
		return StepResult{}, err
	}

	targets := make([][]float64, len(steps))
	entropySum := 0.0
	for i, s := range steps {
		probs := logitsToProbs(out[i], s.LegalMask)
		entropySum += distributionEntropy(probs)

		target := append([]float64(nil), out[i]...)
		// Policy-gradient target: push the chosen action's logit in the
		// direction of its advantage-weighted log-probability gradient,
		// approximated here as a one-step supervised nudge.
		grad := advantages[i] * (1 - probs[s.ActionIndex])
		target[s.ActionIndex] += grad
		targets[i] = target
	}
	entropySum /= float64(len(steps))

	loss, gradNorm, err := l.policyNet.TrainBatch(batch, targets)
	if err != nil {
		return StepResult{}, err
	}

	if l.cfg.UseBaseline && l.valueNet != nil {
		if _, _, err := l.valueNet.TrainBatch(batch, baselineTargets); err != nil {
			return StepResult{}, err
		}
	}

	return StepResult{Loss: loss, GradNorm: gradNorm, PolicyEntropy: entropySum}, nil
}

func distributionEntropy(probs []float64) float64 {
	h := 0.0
	for _, p := range probs {
		if p > 0 {
			h -= p * math.Log(p)
		}
	}
	return h
}
