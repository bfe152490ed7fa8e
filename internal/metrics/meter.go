// Package metrics holds the per-pass bookkeeping used by the probe trainer:
// weighted running averages, top-k accuracy and throughput windows.
package metrics

import (
	"errors"
	"fmt"
)

// ErrDivisionUndefined is returned when the mean of an empty Meter is read.
var ErrDivisionUndefined = errors.New("metrics: mean of empty meter is undefined")

// Meter tracks a weighted running mean of a scalar measurement.
//
// The zero value is ready to use. A Meter belongs to a single pass and is
// not safe for concurrent use.
type Meter struct {
	// Val is the most recent value passed to Update.
	Val float64

	sum   float64
	comp  float64
	count int
}

// Update adds value with the given weight (usually the batch size).
// A zero weight only refreshes Val. Negative weights panic.
func (m *Meter) Update(value float64, weight int) {
	if weight < 0 {
		panic(fmt.Sprintf("metrics: negative meter weight %d", weight))
	}
	m.Val = value
	if weight == 0 {
		return
	}
	m.add(value * float64(weight))
	m.count += weight
}

// add performs Neumaier compensated summation.
func (m *Meter) add(x float64) {
	t := m.sum + x
	if abs(m.sum) >= abs(x) {
		m.comp += (m.sum - t) + x
	} else {
		m.comp += (x - t) + m.sum
	}
	m.sum = t
}

// Sum returns the weighted sum of all updates.
func (m *Meter) Sum() float64 {
	return m.sum + m.comp
}

// Count returns the total weight observed so far.
func (m *Meter) Count() int {
	return m.count
}

// Mean returns Sum()/Count(), or ErrDivisionUndefined when nothing was observed.
func (m *Meter) Mean() (float64, error) {
	if m.count == 0 {
		return 0, ErrDivisionUndefined
	}
	return m.Sum() / float64(m.count), nil
}

// Avg is Mean for callers that have already checked Count; it returns 0 on
// an empty meter.
func (m *Meter) Avg() float64 {
	mean, err := m.Mean()
	if err != nil {
		return 0
	}
	return mean
}

// Reset clears all state.
func (m *Meter) Reset() {
	*m = Meter{}
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
