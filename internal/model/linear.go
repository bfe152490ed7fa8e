package model

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Linear is the linear probe: scores = features·W + b.
type Linear struct {
	inputSize  int
	numClasses int
	weight     *Param
	bias       *Param
}

// NewLinear constructs the classifier with uniform(-1/sqrt(in), 1/sqrt(in))
// initialization.
func NewLinear(inputSize, numClasses int, seed int64) (*Linear, error) {
	if inputSize <= 0 || numClasses <= 0 {
		return nil, fmt.Errorf("model: linear needs positive sizes, got in=%d classes=%d", inputSize, numClasses)
	}
	rng := rand.New(rand.NewSource(seed))
	bound := 1 / math.Sqrt(float64(inputSize))
	w := make([]float64, inputSize*numClasses)
	for i := range w {
		w[i] = (rng.Float64()*2 - 1) * bound
	}
	b := make([]float64, numClasses)
	for i := range b {
		b[i] = (rng.Float64()*2 - 1) * bound
	}
	return &Linear{
		inputSize:  inputSize,
		numClasses: numClasses,
		weight: &Param{
			Name:  "weight",
			Value: mat.NewDense(inputSize, numClasses, w),
			Grad:  mat.NewDense(inputSize, numClasses, nil),
		},
		bias: &Param{
			Name:  "bias",
			Value: mat.NewDense(1, numClasses, b),
			Grad:  mat.NewDense(1, numClasses, nil),
		},
	}, nil
}

// InputSize returns the expected feature width.
func (l *Linear) InputSize() int { return l.inputSize }

// NumClasses returns the number of output scores.
func (l *Linear) NumClasses() int { return l.numClasses }

// Forward returns one row of class scores per feature row.
func (l *Linear) Forward(features *mat.Dense) *mat.Dense {
	var scores mat.Dense
	scores.Mul(features, l.weight.Value)
	bias := l.bias.Value.RawRowView(0)
	scores.Apply(func(_, j int, v float64) float64 {
		return v + bias[j]
	}, &scores)
	return &scores
}

// Backward accumulates parameter gradients given dLoss/dScores.
func (l *Linear) Backward(features, gradScores *mat.Dense) {
	var gw mat.Dense
	gw.Mul(features.T(), gradScores)
	l.weight.Grad.Add(l.weight.Grad, &gw)

	rows, cols := gradScores.Dims()
	gb := l.bias.Grad.RawRowView(0)
	for i := 0; i < rows; i++ {
		row := gradScores.RawRowView(i)
		for j := 0; j < cols; j++ {
			gb[j] += row[j]
		}
	}
}

// ZeroGrad clears the gradient buffers.
func (l *Linear) ZeroGrad() {
	l.weight.Grad.Zero()
	l.bias.Grad.Zero()
}

// Params returns the trainable parameters in a stable order.
func (l *Linear) Params() []*Param {
	return []*Param{l.weight, l.bias}
}

// StateDict returns a copy of the parameters keyed by name.
func (l *Linear) StateDict() map[string]Tensor {
	out := make(map[string]Tensor, 2)
	for _, p := range l.Params() {
		out[p.Name] = TensorOf(p.Value)
	}
	return out
}

// LoadStateDict restores parameters saved by StateDict.
func (l *Linear) LoadStateDict(state map[string]Tensor) error {
	for _, p := range l.Params() {
		t, ok := state[p.Name]
		if !ok {
			return fmt.Errorf("model: state dict missing %q", p.Name)
		}
		r, c := p.Value.Dims()
		if t.Rows != r || t.Cols != c {
			return fmt.Errorf("model: %s shape %dx%d, checkpoint has %dx%d", p.Name, r, c, t.Rows, t.Cols)
		}
		d, err := t.Dense()
		if err != nil {
			return fmt.Errorf("model: %s: %w", p.Name, err)
		}
		p.Value.Copy(d)
	}
	return nil
}
