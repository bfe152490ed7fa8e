package metrics

import (
	"errors"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// ErrInvalidK is returned when a requested k is outside [1, classes].
var ErrInvalidK = errors.New("metrics: invalid top-k")

// TopK computes top-k accuracy, as a percentage in [0,100], for every
// requested k. scores has one row per example and one column per class.
//
// Classes are ranked by descending score; equal scores keep class index
// order, so results are reproducible for tied outputs.
func TopK(scores mat.Matrix, labels []int, ks ...int) ([]float64, error) {
	rows, classes := scores.Dims()
	for _, k := range ks {
		if k < 1 || k > classes {
			return nil, fmt.Errorf("%w: k=%d with %d classes", ErrInvalidK, k, classes)
		}
	}
	if rows != len(labels) {
		return nil, fmt.Errorf("metrics: %d score rows for %d labels", rows, len(labels))
	}
	if rows == 0 {
		return nil, errors.New("metrics: top-k of empty batch")
	}

	maxK := 0
	for _, k := range ks {
		if k > maxK {
			maxK = k
		}
	}

	hits := make([]int, len(ks))
	order := make([]int, classes)
	row := make([]float64, classes)
	for i := 0; i < rows; i++ {
		mat.Row(row, i, scores)
		for c := range order {
			order[c] = c
		}
		sort.SliceStable(order, func(a, b int) bool {
			return row[order[a]] > row[order[b]]
		})
		rank := -1
		for r := 0; r < maxK; r++ {
			if order[r] == labels[i] {
				rank = r
				break
			}
		}
		if rank < 0 {
			continue
		}
		for j, k := range ks {
			if rank < k {
				hits[j]++
			}
		}
	}

	out := make([]float64, len(ks))
	for j := range ks {
		out[j] = 100 * float64(hits[j]) / float64(rows)
	}
	return out, nil
}
