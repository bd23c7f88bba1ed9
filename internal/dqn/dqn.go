// Package dqn implements the value-based learner: masked bootstrap targets
// over a replay batch, periodic target-network synchronization, and the
// diagnostics (gradient norm, policy entropy) the training validator
// consumes.
package dqn

import (
	"math"
	"math/rand"

	"github.com/lox/chessrl/internal/agent"
	"github.com/lox/chessrl/internal/chesserr"
	"github.com/lox/chessrl/internal/codec"
	"github.com/lox/chessrl/internal/engine"
	"github.com/lox/chessrl/internal/experience"
	"github.com/lox/chessrl/internal/explore"
	"github.com/lox/chessrl/internal/network"
	"github.com/lox/chessrl/internal/replay"
)

// Config controls one Learner's update rule.
type Config struct {
	Gamma                 float64
	DoubleDQN             bool
	TargetUpdateFrequency int // in learn-step counts
}

// StepResult carries the diagnostics from one Learn call. UpdateCount is
// the learner's monotonic update counter after this step, recorded so sync
// events can be logged against it.
type StepResult struct {
	Loss          float64
	GradNorm      float64
	MeanQ         float64
	PolicyEntropy float64
	TargetSynced  bool
	UpdateCount   int
}

// Learner is the DQN value-based learner: an online network trained toward
// targets bootstrapped from a periodically-synced target network.
type Learner struct {
	online Trainable
	target Trainable
	cfg    Config
	policy explore.Policy

	stepCount int
}

// Trainable is a narrowing alias so dqn depends only on the method set it
// actually needs from network.Trainable.
type Trainable = network.Trainable

// New constructs a Learner. online and target must have identical
// architecture (TargetUpdateFrequency assumes CopyWeightsTo succeeds
// between them).
func New(online, target Trainable, cfg Config, policy explore.Policy) *Learner {
	if cfg.TargetUpdateFrequency <= 0 {
		cfg.TargetUpdateFrequency = 1000
	}
	return &Learner{online: online, target: target, cfg: cfg, policy: policy}
}

var _ agent.Agent = (*Learner)(nil)

// SelectAction runs the exploration policy over the online network's
// Q-values, restricted to legal actions.
func (l *Learner) SelectAction(pos engine.Position, legal []engine.Move, rng *rand.Rand) (engine.Move, error) {
	if len(legal) == 0 {
		return engine.Move{}, chesserr.New(chesserr.LearnerError, "no legal moves available to select from")
	}
	features := codec.EncodeState(pos)
	mask := codec.LegalMask(legal)

	q, err := l.qValues(l.online, features)
	if err != nil {
		return engine.Move{}, err
	}
	actionIdx := l.policy.SelectAction(q, mask, rng)
	if actionIdx < 0 {
		return engine.Move{}, chesserr.New(chesserr.LearnerError, "no legal action available for selection")
	}
	mv, ok, err := codec.DecodeAction(actionIdx, legal)
	if err != nil {
		return engine.Move{}, err
	}
	if !ok {
		return engine.Move{}, chesserr.New(chesserr.LearnerError, "exploration policy selected an action with no matching legal move")
	}
	return mv, nil
}

func (l *Learner) Name() string { return "dqn" }

// QValues exposes the online network's Q-values for a position.
func (l *Learner) QValues(pos engine.Position) ([codec.ActionSpaceSize]float64, error) {
	return l.qValues(l.online, codec.EncodeState(pos))
}

// UpdateExploration advances the exploration schedule by one episode.
func (l *Learner) UpdateExploration() { l.policy.Update() }

// ExplorationRate reports the policy's current epsilon or temperature.
func (l *Learner) ExplorationRate() float64 { return l.policy.CurrentRate() }

func (l *Learner) qValues(net Trainable, features [codec.FeatureSize]float64) ([codec.ActionSpaceSize]float64, error) {
	out, err := net.Forward([][]float64{features[:]})
	if err != nil {
		return [codec.ActionSpaceSize]float64{}, err
	}
	if len(out) != 1 || len(out[0]) != codec.ActionSpaceSize {
		return [codec.ActionSpaceSize]float64{}, chesserr.New(chesserr.LearnerError, "network output width does not match the action space")
	}
	var q [codec.ActionSpaceSize]float64
	copy(q[:], out[0])
	return q, nil
}

// Learn draws a batch from buf, computes masked bootstrap targets, and runs
// one training step on the online network. Per-sample importance weights
// (1.0 for the uniform buffer) scale each sample's TD correction. A buffer
// still holding fewer than batchSize transitions is quiescence, not an
// error: Learn returns a zero-valued result and touches nothing.
func (l *Learner) Learn(buf replay.Buffer, batchSize int, rng *rand.Rand) (StepResult, error) {
	if batchSize <= 0 || buf.Size() < batchSize {
		return StepResult{}, nil
	}
	samples, err := buf.Sample(batchSize, rng)
	if err != nil {
		return StepResult{}, err
	}
	if len(samples) == 0 {
		return StepResult{}, nil
	}

	batch := make([][]float64, len(samples))
	targets := make([][]float64, len(samples))
	tdErrors := make([]float64, len(samples))
	indices := make([]int, len(samples))

	onlineOut, err := l.online.Forward(featureRows(samples))
	if err != nil {
		return StepResult{}, err
	}
	var nextOnline, nextTarget [][]float64
	nextFeatures := nextFeatureRows(samples)
	if len(nextFeatures) > 0 {
		nextTarget, err = l.target.Forward(nextFeatures)
		if err != nil {
			return StepResult{}, err
		}
		if l.cfg.DoubleDQN {
			nextOnline, err = l.online.Forward(nextFeatures)
			if err != nil {
				return StepResult{}, err
			}
		}
	}

	meanQ := 0.0
	entropySum := 0.0
	nextIdx := 0
	for i, s := range samples {
		t := s.Transition
		batch[i] = append([]float64(nil), t.FeaturesBefore[:]...)
		indices[i] = s.Index

		targetRow := append([]float64(nil), onlineOut[i]...)
		currentQ := onlineOut[i][t.ActionIndex]
		meanQ += currentQ

		entropySum += rowEntropy(onlineOut[i], t.LegalMask)

		var bootstrap float64
		if !t.Done {
			bootstrap = l.bootstrapValue(t, nextTarget[nextIdx], nextOnline, nextIdx)
			nextIdx++
		}
		tdTarget := t.Reward
		if !t.Done {
			tdTarget += l.cfg.Gamma * bootstrap
		}
		tdErrors[i] = tdTarget - currentQ
		targetRow[t.ActionIndex] = currentQ + s.Weight*(tdTarget-currentQ)
		targets[i] = targetRow
	}
	meanQ /= float64(len(samples))
	entropySum /= float64(len(samples))

	loss, gradNorm, err := l.online.TrainBatch(batch, targets)
	if err != nil {
		return StepResult{}, err
	}

	if err := buf.UpdatePriorities(indices, tdErrors); err != nil {
		return StepResult{}, err
	}

	l.stepCount++
	synced := false
	if l.stepCount%l.cfg.TargetUpdateFrequency == 0 {
		if err := l.online.CopyWeightsTo(l.target); err != nil {
			return StepResult{}, err
		}
		synced = true
	}

	return StepResult{
		Loss:          loss,
		GradNorm:      gradNorm,
		MeanQ:         meanQ,
		PolicyEntropy: entropySum,
		TargetSynced:  synced,
		UpdateCount:   l.stepCount,
	}, nil
}

// bootstrapValue computes max_a' Q_target(s', a') restricted to legal next
// actions, or (double DQN) Q_target(s', argmax_a' Q_online(s', a')).
func (l *Learner) bootstrapValue(t experience.Transition, targetRow []float64, onlineNext [][]float64, nextIdx int) float64 {
	if l.cfg.DoubleDQN && onlineNext != nil {
		bestAction := -1
		bestOnline := math.Inf(-1)
		for a, legal := range t.NextLegalMask {
			if !legal {
				continue
			}
			if onlineNext[nextIdx][a] > bestOnline {
				bestOnline = onlineNext[nextIdx][a]
				bestAction = a
			}
		}
		if bestAction < 0 {
			return 0
		}
		return targetRow[bestAction]
	}

	best := math.Inf(-1)
	found := false
	for a, legal := range t.NextLegalMask {
		if !legal {
			continue
		}
		found = true
		if targetRow[a] > best {
			best = targetRow[a]
		}
	}
	if !found {
		return 0
	}
	return best
}

// rowEntropy computes H(softmax(q)) in nats, restricted to the actions
// marked legal in mask. Falls back to the full row
// if mask has no legal actions set (shouldn't occur for a recorded
// transition, since it was produced from a non-empty legal-move list).
func rowEntropy(q []float64, mask [codec.ActionSpaceSize]bool) float64 {
	maxQ := math.Inf(-1)
	any := false
	for a, v := range q {
		if mask[a] {
			any = true
			if v > maxQ {
				maxQ = v
			}
		}
	}
	if !any {
		maxQ = q[0]
		for _, v := range q[1:] {
			if v > maxQ {
				maxQ = v
			}
		}
	}
	sum := 0.0
	exps := make([]float64, len(q))
	for i, v := range q {
		if any && !mask[i] {
			continue
		}
		e := math.Exp(v - maxQ)
		exps[i] = e
		sum += e
	}
	entropy := 0.0
	for i, e := range exps {
		if any && !mask[i] {
			continue
		}
		p := e / sum
		if p > 0 {
			entropy -= p * math.Log(p)
		}
	}
	return entropy
}

func featureRows(samples []replay.Sample) [][]float64 {
	rows := make([][]float64, len(samples))
	for i, s := range samples {
		rows[i] = append([]float64(nil), s.Transition.FeaturesBefore[:]...)
	}
	return rows
}

func nextFeatureRows(samples []replay.Sample) [][]float64 {
	rows := make([][]float64, 0, len(samples))
	for _, s := range samples {
		if s.Transition.Done {
			continue
		}
		rows = append(rows, append([]float64(nil), s.Transition.FeaturesAfter[:]...))
	}
	return rows
}
