package validator_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lox/chessrl/internal/validator"
)

// healthy returns metrics that trigger no issue, so each test can perturb
// exactly the signal under test.
func healthy(ts int64) validator.CycleMetrics {
	return validator.CycleMetrics{
		GradNorm:      1.0,
		Entropy:       2.0,
		MeanQ:         1.0,
		Epsilon:       0.5,
		AvgReward:     0.1,
		MeanPlies:     40,
		DrawRate:      0.3,
		StepLimitRate: 0.1,
		UniqueActions: 200,
		Timestamp:     time.Unix(ts, 0),
	}
}

func TestObserveSmoothsOverWindow(t *testing.T) {
	v := validator.New(validator.Config{WindowSize: 2})

	m := healthy(0)
	m.GradNorm = 2
	smoothed, issues := v.Observe(m)
	require.Equal(t, 2.0, smoothed.GradNorm)
	require.Empty(t, issues)

	m = healthy(1)
	m.GradNorm = 4
	smoothed, _ = v.Observe(m)
	require.Equal(t, 3.0, smoothed.GradNorm)
}

func TestExplodingGradientsIssueFiresAndAccumulatesCount(t *testing.T) {
	v := validator.New(validator.Config{WindowSize: 1})

	m := healthy(0)
	m.GradNorm = 50
	_, issues := v.Observe(m)
	require.Len(t, issues, 1)
	require.Equal(t, validator.ExplodingGradients, issues[0].Kind)
	require.Equal(t, validator.SeverityHigh, issues[0].Severity)
	require.Equal(t, 1, issues[0].Count)

	m = healthy(1)
	m.GradNorm = 60
	_, issues = v.Observe(m)
	require.Len(t, issues, 1)
	require.Equal(t, 2, issues[0].Count)
	require.Equal(t, time.Unix(0, 0), issues[0].FirstSeen)
	require.Equal(t, time.Unix(1, 0), issues[0].LastSeen)
}

func TestPolicyCollapseIssueFiresOnLowEntropy(t *testing.T) {
	v := validator.New(validator.Config{WindowSize: 1})
	m := healthy(0)
	m.Entropy = 0.01
	_, issues := v.Observe(m)
	require.Len(t, issues, 1)
	require.Equal(t, validator.PolicyCollapse, issues[0].Kind)
}

func TestValueOverestimationFiresOnLargeMeanQ(t *testing.T) {
	v := validator.New(validator.Config{WindowSize: 1})
	m := healthy(0)
	m.MeanQ = 250
	_, issues := v.Observe(m)
	require.Len(t, issues, 1)
	require.Equal(t, validator.ValueOverestimation, issues[0].Kind)
}

func TestExplorationInsufficientNeedsFullWindowAndFlatReward(t *testing.T) {
	v := validator.New(validator.Config{WindowSize: 2})

	m := healthy(0)
	m.Epsilon = 0.001
	m.AvgReward = 0
	_, issues := v.Observe(m)
	require.Empty(t, issues)

	m = healthy(1)
	m.Epsilon = 0.001
	m.AvgReward = 0
	_, issues = v.Observe(m)
	require.Len(t, issues, 1)
	require.Equal(t, validator.ExplorationInsufficient, issues[0].Kind)
}

func TestStepLimitDominatesFiresAboveHalf(t *testing.T) {
	v := validator.New(validator.Config{WindowSize: 1})
	m := healthy(0)
	m.StepLimitRate = 0.8
	_, issues := v.Observe(m)
	require.Len(t, issues, 1)
	require.Equal(t, validator.StepLimitDominates, issues[0].Kind)
}

func TestLowMoveDiversityRequiresFullWindow(t *testing.T) {
	v := validator.New(validator.Config{WindowSize: 2, DiversityThreshold: 100})

	m := healthy(0)
	m.UniqueActions = 1
	_, issues := v.Observe(m)
	require.Empty(t, issues)

	m = healthy(1)
	m.UniqueActions = 1
	_, issues = v.Observe(m)
	require.Len(t, issues, 1)
	require.Equal(t, validator.LowMoveDiversity, issues[0].Kind)
}

func TestIssuesReturnsEverythingObserved(t *testing.T) {
	v := validator.New(validator.Config{WindowSize: 1})

	m := healthy(0)
	m.GradNorm = 50
	v.Observe(m)

	m = healthy(1)
	m.Entropy = 0.01
	v.Observe(m)

	all := v.Issues()
	require.Len(t, all, 2)
}

func TestNoIssuesOnHealthyMetrics(t *testing.T) {
	v := validator.New(validator.Config{WindowSize: 1})
	_, issues := v.Observe(healthy(0))
	require.Empty(t, issues)
}
