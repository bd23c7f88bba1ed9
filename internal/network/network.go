// Package network defines the Trainable contract used by every learner and
// provides one concrete implementation: a dependency-free multilayer
// perceptron trained by plain backpropagation. The interface exists so a
// future backend swap (a real tensor library) never touches learner code.
package network

import "github.com/lox/chessrl/internal/chesserr"

// Trainable is the backend-agnostic value/policy network contract. A batch
// is always a slice of fixed-width feature vectors paired row-for-row with
// targets; forward passes and updates operate on whole batches so a future
// vectorized backend can replace MLP without learner code changing.
type Trainable interface {
	// Forward returns one vector of outputs per input row.
	Forward(batch [][]float64) ([][]float64, error)

	// TrainBatch performs one gradient step toward targets (same shape as
	// Forward's output) and returns the scalar loss and a gradient-norm
	// diagnostic: the output-layer surrogate, mean over the batch of
	// ||(2/N)(pred - target)||_2. Implementations must report the surrogate
	// rather than a full parameter-gradient norm — the training validator's
	// exploding/vanishing thresholds are calibrated to the surrogate's
	// magnitude.
	TrainBatch(batch [][]float64, targets [][]float64) (loss float64, gradNorm float64, err error)

	// CopyWeightsTo overwrites dst's parameters with this network's current
	// parameters. Used for target-network synchronization.
	CopyWeightsTo(dst Trainable) error

	// Save serializes the network's parameters.
	Save() ([]byte, error)

	// Load replaces the network's parameters from a Save blob.
	Load(data []byte) error

	// OutputSize reports the width of Forward's output rows.
	OutputSize() int
}

func mismatchErr(msg string) error {
	return chesserr.New(chesserr.LearnerError, msg)
}
