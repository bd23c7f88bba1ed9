package dqn_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lox/chessrl/internal/codec"
	"github.com/lox/chessrl/internal/dqn"
	"github.com/lox/chessrl/internal/engine/native"
	"github.com/lox/chessrl/internal/experience"
	"github.com/lox/chessrl/internal/explore"
	"github.com/lox/chessrl/internal/network"
	"github.com/lox/chessrl/internal/replay"
)

func widths() []int { return []int{codec.FeatureSize, 32, codec.ActionSpaceSize} }

func TestLearnerSelectActionRespectsMask(t *testing.T) {
	online := network.NewMLP(widths(), 0.01, 1)
	target := network.NewMLP(widths(), 0.01, 1)
	policy := explore.NewEpsilonGreedy(0.0, 0.0, 1.0) // pure greedy
	learner := dqn.New(online, target, dqn.Config{Gamma: 0.99, TargetUpdateFrequency: 10}, policy)

	a := native.New()
	start := a.InitialState()
	legal := a.LegalMoves(start)
	rng := rand.New(rand.NewSource(1))

	mv, err := learner.SelectAction(start, legal, rng)
	require.NoError(t, err)

	found := false
	for _, m := range legal {
		if m == mv {
			found = true
		}
	}
	require.True(t, found)
}

func TestLearnerLearnStepProducesDiagnostics(t *testing.T) {
	online := network.NewMLP(widths(), 0.01, 1)
	target := network.NewMLP(widths(), 0.01, 1)
	policy := explore.NewEpsilonGreedy(0.1, 0.01, 0.99)
	learner := dqn.New(online, target, dqn.Config{Gamma: 0.99, TargetUpdateFrequency: 2}, policy)

	buf := replay.NewUniform(100)
	a := native.New()
	start := a.InitialState()
	legal := a.LegalMoves(start)
	next, err := a.ApplyMove(start, legal[0])
	require.NoError(t, err)
	nextLegal := a.LegalMoves(next)

	tr := experience.Transition{
		FeaturesBefore: codec.EncodeState(start),
		ActionIndex:    codec.EncodeMove(legal[0]),
		Reward:         0,
		FeaturesAfter:  codec.EncodeState(next),
		Done:           false,
		LegalMask:      codec.LegalMask(legal),
		NextLegalMask:  codec.LegalMask(nextLegal),
	}
	for i := 0; i < 10; i++ {
		buf.Add(tr)
	}

	rng := rand.New(rand.NewSource(1))
	result, err := learner.Learn(buf, 4, rng)
	require.NoError(t, err)
	require.GreaterOrEqual(t, result.GradNorm, 0.0)

	result2, err := learner.Learn(buf, 4, rng)
	require.NoError(t, err)
	require.True(t, result2.TargetSynced)
}

func TestLearnerLearnEmptyBufferIsNoop(t *testing.T) {
	online := network.NewMLP(widths(), 0.01, 1)
	target := network.NewMLP(widths(), 0.01, 1)
	policy := explore.NewEpsilonGreedy(0.1, 0.01, 0.99)
	learner := dqn.New(online, target, dqn.Config{Gamma: 0.99, TargetUpdateFrequency: 10}, policy)

	buf := replay.NewUniform(10)
	rng := rand.New(rand.NewSource(1))
	result, err := learner.Learn(buf, 0, rng)
	require.NoError(t, err)
	require.Equal(t, 0.0, result.Loss)
}

func TestLearnerLearnUnderfilledBufferIsNoop(t *testing.T) {
	online := network.NewMLP(widths(), 0.01, 1)
	target := network.NewMLP(widths(), 0.01, 1)
	policy := explore.NewEpsilonGreedy(0.1, 0.01, 0.99)
	learner := dqn.New(online, target, dqn.Config{Gamma: 0.99, TargetUpdateFrequency: 10}, policy)

	buf := replay.NewUniform(10)
	var mask [codec.ActionSpaceSize]bool
	mask[0] = true
	buf.Add(experience.Transition{ActionIndex: 0, Reward: 1, Done: true, LegalMask: mask})
	buf.Add(experience.Transition{ActionIndex: 0, Reward: 1, Done: true, LegalMask: mask})

	rng := rand.New(rand.NewSource(1))
	result, err := learner.Learn(buf, 4, rng)
	require.NoError(t, err)
	require.Equal(t, dqn.StepResult{}, result)
	require.Equal(t, 2, buf.Size())
}

// scriptedNet returns the same fixed row for every input and records the
// targets it was trained on, so target arithmetic can be asserted exactly.
type scriptedNet struct {
	row        []float64
	gotTargets [][]float64
}

func (f *scriptedNet) Forward(batch [][]float64) ([][]float64, error) {
	out := make([][]float64, len(batch))
	for i := range out {
		out[i] = append([]float64(nil), f.row...)
	}
	return out, nil
}

func (f *scriptedNet) TrainBatch(batch, targets [][]float64) (float64, float64, error) {
	f.gotTargets = targets
	return 0.1, 0.2, nil
}

func (f *scriptedNet) CopyWeightsTo(dst network.Trainable) error { return nil }
func (f *scriptedNet) Save() ([]byte, error)                     { return nil, nil }
func (f *scriptedNet) Load(data []byte) error                    { return nil }
func (f *scriptedNet) OutputSize() int                           { return codec.ActionSpaceSize }

func TestLearnMasksBootstrapToLegalNextActions(t *testing.T) {
	online := &scriptedNet{row: make([]float64, codec.ActionSpaceSize)}
	targetRow := make([]float64, codec.ActionSpaceSize)
	targetRow[0] = 5.0
	targetRow[1] = 100.0 // illegal in s'; must be ignored by the max
	targetRow[2] = 1.0
	targetRow[3] = -3.0
	target := &scriptedNet{row: targetRow}

	learner := dqn.New(online, target, dqn.Config{Gamma: 0.5, TargetUpdateFrequency: 100}, explore.NewEpsilonGreedy(0, 0, 1))

	var nextMask [codec.ActionSpaceSize]bool
	nextMask[0] = true
	nextMask[2] = true
	var mask [codec.ActionSpaceSize]bool
	mask[7] = true

	buf := replay.NewUniform(4)
	buf.Add(experience.Transition{
		ActionIndex:   7,
		Reward:        1.0,
		Done:          false,
		LegalMask:     mask,
		NextLegalMask: nextMask,
	})

	_, err := learner.Learn(buf, 1, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	require.Len(t, online.gotTargets, 1)

	// target = r + gamma * max over legal a' = 1.0 + 0.5*max(5.0, 1.0)
	require.InDelta(t, 3.5, online.gotTargets[0][7], 1e-12)
	for i, v := range online.gotTargets[0] {
		if i == 7 {
			continue
		}
		require.Zero(t, v, "only the taken action's entry may differ from the prediction")
	}
}

func TestLearnTerminalTargetIsImmediateReward(t *testing.T) {
	online := &scriptedNet{row: make([]float64, codec.ActionSpaceSize)}
	target := &scriptedNet{row: make([]float64, codec.ActionSpaceSize)}
	learner := dqn.New(online, target, dqn.Config{Gamma: 0.99, TargetUpdateFrequency: 100}, explore.NewEpsilonGreedy(0, 0, 1))

	var mask [codec.ActionSpaceSize]bool
	mask[3] = true
	buf := replay.NewUniform(4)
	buf.Add(experience.Transition{ActionIndex: 3, Reward: -1.0, Done: true, LegalMask: mask})

	_, err := learner.Learn(buf, 1, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	require.InDelta(t, -1.0, online.gotTargets[0][3], 1e-12)
}

func TestLearnDeterministicUnderFixedSeed(t *testing.T) {
	run := func() dqn.StepResult {
		online := network.NewMLP(widths(), 0.01, 5)
		target := network.NewMLP(widths(), 0.01, 5)
		learner := dqn.New(online, target, dqn.Config{Gamma: 0.99, TargetUpdateFrequency: 50}, explore.NewEpsilonGreedy(0.1, 0.01, 0.99))

		a := native.New()
		start := a.InitialState()
		legal := a.LegalMoves(start)
		next, err := a.ApplyMove(start, legal[0])
		require.NoError(t, err)

		buf := replay.NewUniform(64)
		tr := experience.Transition{
			FeaturesBefore: codec.EncodeState(start),
			ActionIndex:    codec.EncodeMove(legal[0]),
			Reward:         0.25,
			FeaturesAfter:  codec.EncodeState(next),
			Done:           false,
			LegalMask:      codec.LegalMask(legal),
			NextLegalMask:  codec.LegalMask(a.LegalMoves(next)),
		}
		for i := 0; i < 16; i++ {
			buf.Add(tr)
		}
		res, err := learner.Learn(buf, 8, rand.New(rand.NewSource(13)))
		require.NoError(t, err)
		return res
	}

	require.Equal(t, run(), run())
}
