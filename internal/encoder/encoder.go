// Package encoder implements the frozen two-branch feature extractor the
// linear probe is trained on.
//
// Each branch is a stack of dense+ReLU layers. Branch a sees the first
// channel of an example (L, Y or R), branch b the remaining two. Parameters
// are loaded once and never updated.
package encoder

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

type layer struct {
	weight *mat.Dense
	bias   []float64
}

// Encoder is a frozen two-branch feature extractor.
type Encoder struct {
	arch     Arch
	inputs   [2]int
	branches [2][]layer
	epoch    int
}

// Init builds an encoder for the named model with He-normal random weights.
// inputA and inputB are the flattened widths of the two branch inputs.
func Init(model string, inputA, inputB int, seed int64) (*Encoder, error) {
	arch, err := ArchFor(model)
	if err != nil {
		return nil, err
	}
	if inputA <= 0 || inputB <= 0 {
		return nil, fmt.Errorf("encoder: input widths must be > 0 (got %d, %d)", inputA, inputB)
	}
	rng := rand.New(rand.NewSource(seed))
	e := &Encoder{arch: arch, inputs: [2]int{inputA, inputB}}
	for br := range e.branches {
		in := e.inputs[br]
		for _, out := range arch.Widths {
			std := math.Sqrt(2 / float64(in))
			w := make([]float64, in*out)
			for i := range w {
				w[i] = rng.NormFloat64() * std
			}
			e.branches[br] = append(e.branches[br], layer{
				weight: mat.NewDense(in, out, w),
				bias:   make([]float64, out),
			})
			in = out
		}
	}
	return e, nil
}

// Arch returns the encoder architecture.
func (e *Encoder) Arch() Arch { return e.arch }

// Epoch returns the pretraining epoch recorded in the checkpoint.
func (e *Encoder) Epoch() int { return e.epoch }

// InputWidths returns the flattened input widths of branch a and b.
func (e *Encoder) InputWidths() (int, int) { return e.inputs[0], e.inputs[1] }

// FeatureWidths returns the per-branch feature widths at layer.
func (e *Encoder) FeatureWidths(layer int) (int, int, error) {
	w, err := e.arch.Width(layer)
	if err != nil {
		return 0, 0, err
	}
	return w, w, nil
}

// Extract runs both branches up to the 1-based layer and returns their
// activations, one row per example.
//
// views holds either one matrix with all channels (split at the branch a
// input width) or one matrix per branch.
func (e *Encoder) Extract(views []*mat.Dense, layer int) (*mat.Dense, *mat.Dense, error) {
	if _, err := e.arch.Width(layer); err != nil {
		return nil, nil, err
	}
	var inputs [2]mat.Matrix
	switch len(views) {
	case 1:
		rows, cols := views[0].Dims()
		if cols != e.inputs[0]+e.inputs[1] {
			return nil, nil, fmt.Errorf("encoder: input width %d, want %d", cols, e.inputs[0]+e.inputs[1])
		}
		inputs[0] = views[0].Slice(0, rows, 0, e.inputs[0])
		inputs[1] = views[0].Slice(0, rows, e.inputs[0], cols)
	case 2:
		for br, v := range views {
			_, cols := v.Dims()
			if cols != e.inputs[br] {
				return nil, nil, fmt.Errorf("encoder: branch %d input width %d, want %d", br, cols, e.inputs[br])
			}
			inputs[br] = v
		}
		ra, _ := views[0].Dims()
		rb, _ := views[1].Dims()
		if ra != rb {
			return nil, nil, fmt.Errorf("encoder: view rows differ (%d vs %d)", ra, rb)
		}
	default:
		return nil, nil, fmt.Errorf("encoder: expected 1 or 2 views, got %d", len(views))
	}

	a := e.forward(0, inputs[0], layer)
	b := e.forward(1, inputs[1], layer)
	return a, b, nil
}

func (e *Encoder) forward(branch int, x mat.Matrix, depth int) *mat.Dense {
	h := x
	var out *mat.Dense
	for _, l := range e.branches[branch][:depth] {
		var z mat.Dense
		z.Mul(h, l.weight)
		bias := l.bias
		z.Apply(func(_, j int, v float64) float64 {
			return math.Max(0, v+bias[j])
		}, &z)
		out = &z
		h = out
	}
	return out
}
