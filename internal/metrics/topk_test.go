package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestTopKTwoClass(t *testing.T) {
	scores := mat.NewDense(2, 2, []float64{
		0.9, 0.1,
		0.2, 0.8,
	})

	acc, err := TopK(scores, []int{0, 1}, 1)
	require.NoError(t, err)
	assert.Equal(t, []float64{100}, acc)

	acc, err = TopK(scores, []int{1, 0}, 1)
	require.NoError(t, err)
	assert.Equal(t, []float64{0}, acc)
}

func TestTopKMultipleK(t *testing.T) {
	scores := mat.NewDense(4, 4, []float64{
		0.1, 0.2, 0.3, 0.4, // label 3 rank 0
		0.4, 0.3, 0.2, 0.1, // label 1 rank 1
		0.1, 0.4, 0.3, 0.2, // label 0 rank 3
		0.2, 0.1, 0.4, 0.3, // label 0 rank 2
	})
	acc, err := TopK(scores, []int{3, 1, 0, 0}, 1, 2, 3, 4)
	require.NoError(t, err)
	assert.Equal(t, []float64{25, 50, 75, 100}, acc)
}

func TestTopKTiesFollowClassIndex(t *testing.T) {
	scores := mat.NewDense(2, 3, []float64{
		0.5, 0.5, 0.5,
		0.5, 0.5, 0.5,
	})
	acc, err := TopK(scores, []int{0, 2}, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, []float64{50, 50}, acc)
}

func TestTopKInvalidK(t *testing.T) {
	scores := mat.NewDense(1, 3, []float64{0.1, 0.2, 0.7})
	_, err := TopK(scores, []int{2}, 1, 5)
	require.ErrorIs(t, err, ErrInvalidK)

	_, err = TopK(scores, []int{2}, 0)
	require.ErrorIs(t, err, ErrInvalidK)
}

func TestTopKLabelMismatch(t *testing.T) {
	scores := mat.NewDense(2, 3, nil)
	_, err := TopK(scores, []int{1}, 1)
	require.Error(t, err)
}
