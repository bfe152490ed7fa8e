package model

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// CrossEntropy is softmax cross-entropy averaged over the batch.
type CrossEntropy struct{}

// Compute returns the mean loss and dLoss/dScores.
func (CrossEntropy) Compute(scores *mat.Dense, labels []int) (float64, *mat.Dense, error) {
	rows, classes := scores.Dims()
	if rows != len(labels) {
		return 0, nil, fmt.Errorf("model: %d score rows for %d labels", rows, len(labels))
	}
	if rows == 0 {
		return 0, nil, fmt.Errorf("model: cross entropy of empty batch")
	}
	grad := mat.NewDense(rows, classes, nil)
	total := 0.0
	inv := 1 / float64(rows)
	for i := 0; i < rows; i++ {
		label := labels[i]
		if label < 0 || label >= classes {
			return 0, nil, fmt.Errorf("model: label %d out of range [0,%d)", label, classes)
		}
		probs := softmax(scores.RawRowView(i))
		p := probs[label]
		if math.IsNaN(p) {
			return 0, nil, fmt.Errorf("model: non-finite scores in row %d", i)
		}
		total += -math.Log(math.Max(p, 1e-12))

		probs[label] -= 1
		for j := range probs {
			probs[j] *= inv
		}
		grad.SetRow(i, probs)
	}
	return total * inv, grad, nil
}

func softmax(logits []float64) []float64 {
	maxLogit := logits[0]
	for _, v := range logits {
		if v > maxLogit {
			maxLogit = v
		}
	}
	sum := 0.0
	out := make([]float64, len(logits))
	for i, v := range logits {
		exp := math.Exp(v - maxLogit)
		out[i] = exp
		sum += exp
	}
	inv := 1.0 / sum
	for i := range out {
		out[i] *= inv
	}
	return out
}
