package network

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"math"
	"math/rand"
)

// layer holds one fully-connected layer's parameters and the activations
// cached from the last forward pass (needed for backprop without a second
// forward pass).
type layer struct {
	weights [][]float64 // [outDim][inDim]
	biases  []float64   // [outDim]

	lastInput  [][]float64 // batch x inDim, cached for TrainBatch
	lastPreAct [][]float64 // batch x outDim, pre-activation
	lastOutput [][]float64 // batch x outDim, post-activation
}

func newLayer(inDim, outDim int, rng *rand.Rand) *layer {
	l := &layer{
		weights: make([][]float64, outDim),
		biases:  make([]float64, outDim),
	}
	scale := math.Sqrt(2.0 / float64(inDim))
	for i := range l.weights {
		l.weights[i] = make([]float64, inDim)
		for j := range l.weights[i] {
			l.weights[i][j] = rng.NormFloat64() * scale
		}
	}
	return l
}

func relu(x float64) float64 {
	if x < 0 {
		return 0
	}
	return x
}

func reluGrad(x float64) float64 {
	if x < 0 {
		return 0
	}
	return 1
}

// forward computes the layer's output for a batch, caching intermediate
// values. activate=false skips the nonlinearity (used on the output layer).
func (l *layer) forward(batch [][]float64, activate bool) [][]float64 {
	out := make([][]float64, len(batch))
	pre := make([][]float64, len(batch))
	for b, row := range batch {
		outRow := make([]float64, len(l.weights))
		preRow := make([]float64, len(l.weights))
		for i, w := range l.weights {
			sum := l.biases[i]
			for j, x := range row {
				sum += w[j] * x
			}
			preRow[i] = sum
			if activate {
				outRow[i] = relu(sum)
			} else {
				outRow[i] = sum
			}
		}
		out[b] = outRow
		pre[b] = preRow
	}
	l.lastInput = batch
	l.lastPreAct = pre
	l.lastOutput = out
	return out
}

// backward consumes the gradient of the loss w.r.t. this layer's output,
// applies an SGD step with the given learning rate, and returns the
// gradient w.r.t. this layer's input for the previous layer to consume.
func (l *layer) backward(gradOut [][]float64, activated bool, lr float64) [][]float64 {
	batchSize := len(gradOut)
	inDim := len(l.weights[0])
	gradIn := make([][]float64, batchSize)
	for b := range gradIn {
		gradIn[b] = make([]float64, inDim)
	}

	weightGrad := make([][]float64, len(l.weights))
	biasGrad := make([]float64, len(l.weights))
	for i := range weightGrad {
		weightGrad[i] = make([]float64, inDim)
	}

	for b := 0; b < batchSize; b++ {
		for i := range l.weights {
			g := gradOut[b][i]
			if activated {
				g *= reluGrad(l.lastPreAct[b][i])
			}
			biasGrad[i] += g
			for j := 0; j < inDim; j++ {
				weightGrad[i][j] += g * l.lastInput[b][j]
				gradIn[b][j] += g * l.weights[i][j]
			}
		}
	}

	invBatch := 1.0 / float64(batchSize)
	for i := range l.weights {
		l.biases[i] -= lr * biasGrad[i] * invBatch
		for j := range l.weights[i] {
			l.weights[i][j] -= lr * weightGrad[i][j] * invBatch
		}
	}
	return gradIn
}

// MLP is a plain feed-forward network with ReLU hidden layers and a linear
// output layer, trained by minibatch gradient descent on mean squared error.
type MLP struct {
	layers       []*layer
	learningRate float64
	rng          *rand.Rand
}

var _ Trainable = (*MLP)(nil)

// NewMLP builds an MLP with the given layer widths, e.g. [839, 256, 128,
// 4096]. learningRate is the SGD step size and seed drives weight init.
func NewMLP(widths []int, learningRate float64, seed int64) *MLP {
	rng := rand.New(rand.NewSource(seed))
	m := &MLP{learningRate: learningRate, rng: rng}
	for i := 0; i+1 < len(widths); i++ {
		m.layers = append(m.layers, newLayer(widths[i], widths[i+1], rng))
	}
	return m
}

func (m *MLP) OutputSize() int {
	if len(m.layers) == 0 {
		return 0
	}
	return len(m.layers[len(m.layers)-1].weights)
}

func (m *MLP) Forward(batch [][]float64) ([][]float64, error) {
	if len(batch) == 0 {
		return nil, nil
	}
	cur := batch
	for i, l := range m.layers {
		cur = l.forward(cur, i != len(m.layers)-1)
	}
	return cur, nil
}

func (m *MLP) TrainBatch(batch [][]float64, targets [][]float64) (float64, float64, error) {
	if len(batch) != len(targets) {
		return 0, 0, mismatchErr(fmt.Sprintf("batch size %d does not match target size %d", len(batch), len(targets)))
	}
	if len(batch) == 0 {
		return 0, 0, nil
	}

	out, err := m.Forward(batch)
	if err != nil {
		return 0, 0, err
	}
	outDim := len(out[0])
	for _, t := range targets {
		if len(t) != outDim {
			return 0, 0, mismatchErr(fmt.Sprintf("target width %d does not match output width %d", len(t), outDim))
		}
	}

	// The reported gradient norm is the output-layer surrogate — the mean
	// over the batch of ||(2/N)(pred_i - target_i)||_2 — not a full
	// parameter-gradient norm. The training validator's explode/vanish
	// thresholds are calibrated against this surrogate's magnitude.
	loss := 0.0
	surrogateSum := 0.0
	grad := make([][]float64, len(batch))
	for b := range grad {
		grad[b] = make([]float64, outDim)
		rowSq := 0.0
		for i := range grad[b] {
			diff := out[b][i] - targets[b][i]
			loss += diff * diff
			g := 2 * diff / float64(outDim)
			grad[b][i] = g
			rowSq += g * g
		}
		surrogateSum += math.Sqrt(rowSq)
	}
	loss /= float64(len(batch) * outDim)
	gradNorm := surrogateSum / float64(len(batch))

	cur := grad
	for i := len(m.layers) - 1; i >= 0; i-- {
		activated := i != len(m.layers)-1
		cur = m.layers[i].backward(cur, activated, m.learningRate)
	}

	return loss, gradNorm, nil
}

func (m *MLP) CopyWeightsTo(dst Trainable) error {
	other, ok := dst.(*MLP)
	if !ok {
		return mismatchErr("CopyWeightsTo target is not an *MLP")
	}
	if len(other.layers) != len(m.layers) {
		return mismatchErr("CopyWeightsTo target has a different layer count")
	}
	for i, l := range m.layers {
		ol := other.layers[i]
		if len(ol.weights) != len(l.weights) || len(ol.weights[0]) != len(l.weights[0]) {
			return mismatchErr("CopyWeightsTo target has mismatched layer shape")
		}
		for r := range l.weights {
			copy(ol.weights[r], l.weights[r])
		}
		copy(ol.biases, l.biases)
	}
	return nil
}

// mlpSnapshot is the gob-serializable form of an MLP's parameters.
type mlpSnapshot struct {
	Weights [][][]float64
	Biases  [][]float64
}

func (m *MLP) Save() ([]byte, error) {
	snap := mlpSnapshot{
		Weights: make([][][]float64, len(m.layers)),
		Biases:  make([][]float64, len(m.layers)),
	}
	for i, l := range m.layers {
		snap.Weights[i] = l.weights
		snap.Biases[i] = l.biases
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snap); err != nil {
		return nil, mismatchErr("failed to encode network weights: " + err.Error())
	}
	return buf.Bytes(), nil
}

func (m *MLP) Load(data []byte) error {
	var snap mlpSnapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&snap); err != nil {
		return mismatchErr("failed to decode network weights: " + err.Error())
	}
	if len(snap.Weights) != len(m.layers) {
		return mismatchErr("decoded network has a different layer count")
	}
	for i, l := range m.layers {
		if len(snap.Weights[i]) != len(l.weights) {
			return mismatchErr("decoded layer has a different output width")
		}
		l.weights = snap.Weights[i]
		l.biases = snap.Biases[i]
	}
	return nil
}
