// Package model holds the trainable half of the probe: batches, the linear
// classifier, its loss and its optimizer.
package model

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Batch represents a minibatch of view tensors and labels.
//
// Views[v][i] is the flattened, channel-major tensor of example i in view v.
// Views holds one or two entries.
type Batch struct {
	Views  [][][]float32
	Labels []int
}

// Size returns the number of examples in the batch.
func (b Batch) Size() int {
	return len(b.Labels)
}

// BatchIterator yields the batches of one finite pass. Next returns io.EOF
// when the pass is exhausted.
type BatchIterator interface {
	Next(ctx context.Context) (Batch, error)
	Len() int
	Close()
}

// Classifier is the trainable function from features to class scores.
type Classifier interface {
	Forward(features *mat.Dense) *mat.Dense
	Backward(features, gradScores *mat.Dense)
	ZeroGrad()
	Params() []*Param
}

// Loss computes a scalar loss and its gradient with respect to scores.
type Loss interface {
	Compute(scores *mat.Dense, labels []int) (float64, *mat.Dense, error)
}

// Optimizer applies accumulated gradients to classifier parameters.
type Optimizer interface {
	ZeroGrad()
	Step()
	SetLR(lr float64)
	LR() float64
	StateDict() map[string]Tensor
	LoadStateDict(state map[string]Tensor) error
}

// Param is a named trainable matrix with its gradient buffer.
type Param struct {
	Name  string
	Value *mat.Dense
	Grad  *mat.Dense
}

// Tensor is a dense row-major matrix in a form gob can encode.
type Tensor struct {
	Rows int
	Cols int
	Data []float64
}

// TensorOf copies m into a Tensor.
func TensorOf(m mat.Matrix) Tensor {
	r, c := m.Dims()
	data := make([]float64, 0, r*c)
	row := make([]float64, c)
	for i := 0; i < r; i++ {
		mat.Row(row, i, m)
		data = append(data, row...)
	}
	return Tensor{Rows: r, Cols: c, Data: data}
}

// Dense returns a fresh *mat.Dense holding a copy of t.
func (t Tensor) Dense() (*mat.Dense, error) {
	if t.Rows <= 0 || t.Cols <= 0 || len(t.Data) != t.Rows*t.Cols {
		return nil, fmt.Errorf("model: malformed tensor %dx%d with %d values", t.Rows, t.Cols, len(t.Data))
	}
	return mat.NewDense(t.Rows, t.Cols, append([]float64(nil), t.Data...)), nil
}

// ToDense converts one view of a batch into a float64 matrix, one row per
// example. This is the only place where inputs change precision.
func ToDense(view [][]float32) (*mat.Dense, error) {
	if len(view) == 0 {
		return nil, fmt.Errorf("model: empty view")
	}
	cols := len(view[0])
	data := make([]float64, 0, len(view)*cols)
	for i, example := range view {
		if len(example) != cols {
			return nil, fmt.Errorf("model: example %d has %d values, want %d", i, len(example), cols)
		}
		for _, v := range example {
			data = append(data, float64(v))
		}
	}
	return mat.NewDense(len(view), cols, data), nil
}
