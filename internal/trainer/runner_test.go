package trainer

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"cmc-probe/internal/metrics"
	"cmc-probe/internal/model"
)

type sliceIterator struct {
	batches []model.Batch
	pos     int
	closed  bool
}

func (s *sliceIterator) Next(ctx context.Context) (model.Batch, error) {
	if s.pos >= len(s.batches) {
		return model.Batch{}, io.EOF
	}
	b := s.batches[s.pos]
	s.pos++
	return b, nil
}

func (s *sliceIterator) Len() int { return len(s.batches) }
func (s *sliceIterator) Close() { s.closed = true }

// passThrough hands the first view straight to the classifier.
type passThrough struct{ err error }

func (p passThrough) Extract(views []*mat.Dense, _ int) (*mat.Dense, *mat.Dense, error) {
	if p.err != nil {
		return nil, nil, p.err
	}
	return views[0], nil, nil
}

// identity scores each example by its own features.
type identity struct{}

func (identity) Forward(features *mat.Dense) *mat.Dense { return mat.DenseCopyOf(features) }
func (identity) Backward(_, _ *mat.Dense) {}
func (identity) ZeroGrad() {}
func (identity) Params() []*model.Param { return nil }

// sizeLoss reports the batch size as the loss.
type sizeLoss struct{}

func (sizeLoss) Compute(scores *mat.Dense, labels []int) (float64, *mat.Dense, error) {
	r, c := scores.Dims()
	return float64(len(labels)), mat.NewDense(r, c, nil), nil
}

func oneView(rows ...[]float32) [][][]float32 {
	return [][][]float32{rows}
}

func linearBatches() []model.Batch {
	return []model.Batch{
		{Views: oneView([]float32{1, 0, 0, 0}, []float32{0, 1, 0, 0}), Labels: []int{0, 1}},
		{Views: oneView([]float32{0, 0, 1, 0}, []float32{0, 0, 0, 1}), Labels: []int{2, 3}},
		{Views: oneView([]float32{1, 1, 0, 0}), Labels: []int{4}},
	}
}

func newLinearRunner(t *testing.T) (*Runner, *model.Linear) {
	t.Helper()
	lin, err := model.NewLinear(4, 5, 1)
	require.NoError(t, err)
	return &Runner{
		Encoder:    passThrough{},
		Classifier: lin,
		Loss:       model.CrossEntropy{},
		Optimizer:  model.NewSGD(lin.Params(), model.SGDConfig{LR: 0.1, Momentum: 0.9}),
		Features:   model.FeatureFirst,
		Layer:      1,
		PrintFreq:  1,
	}, lin
}

func snapshot(params []*model.Param) []*mat.Dense {
	out := make([]*mat.Dense, len(params))
	for i, p := range params {
		out[i] = mat.DenseCopyOf(p.Value)
	}
	return out
}

func TestRunnerSummaryIsWeightedMean(t *testing.T) {
	r := &Runner{
		Encoder:    passThrough{},
		Classifier: identity{},
		Loss:       sizeLoss{},
		Features:   model.FeatureFirst,
		PrintFreq:  10,
	}
	it := &sliceIterator{batches: []model.Batch{
		{Views: oneView([]float32{5, 4, 3, 2, 1}, []float32{1, 5, 4, 3, 2}), Labels: []int{0, 1}},
		{Views: oneView([]float32{1, 2, 3, 4, 5}), Labels: []int{0}},
	}}

	sum, err := r.Run(context.Background(), Eval, 1, it)
	require.NoError(t, err)
	assert.Equal(t, Completed, r.State())
	assert.True(t, it.closed)
	assert.Equal(t, 2, sum.Batches)
	assert.Equal(t, 3, sum.Samples)
	assert.InDelta(t, 200.0/3, sum.Top1, 1e-9)
	assert.InDelta(t, 100.0, sum.Top5, 1e-9)
	assert.InDelta(t, 5.0/3, sum.Loss, 1e-9)
}

func TestEvalPassLeavesParametersUntouched(t *testing.T) {
	r, lin := newLinearRunner(t)
	before := snapshot(lin.Params())

	_, err := r.Run(context.Background(), Eval, 1, &sliceIterator{batches: linearBatches()})
	require.NoError(t, err)

	for i, p := range lin.Params() {
		assert.True(t, mat.Equal(before[i], p.Value), "param %s changed", p.Name)
	}
}

func TestTrainPassUpdatesParameters(t *testing.T) {
	r, lin := newLinearRunner(t)
	before := snapshot(lin.Params())

	_, err := r.Run(context.Background(), Train, 1, &sliceIterator{batches: linearBatches()})
	require.NoError(t, err)
	assert.False(t, mat.Equal(before[0], lin.Params()[0].Value))
}

func TestTrainPassNeedsOptimizer(t *testing.T) {
	r, _ := newLinearRunner(t)
	r.Optimizer = nil
	_, err := r.Run(context.Background(), Train, 1, &sliceIterator{batches: linearBatches()})
	require.Error(t, err)
	assert.Equal(t, Failed, r.State())
}

func TestReporterFailuresDoNotAbortPass(t *testing.T) {
	r, _ := newLinearRunner(t)
	calls := 0
	r.Reporter = ReporterFunc(func(p Progress) error {
		calls++
		switch calls {
		case 1:
			return errors.New("terminal gone")
		case 2:
			panic("reporter bug")
		}
		return nil
	})

	sum, err := r.Run(context.Background(), Train, 1, &sliceIterator{batches: linearBatches()})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 5, sum.Samples)
	assert.Equal(t, Completed, r.State())
}

func TestProgressCarriesRunningMeans(t *testing.T) {
	r, _ := newLinearRunner(t)
	r.PrintFreq = 2
	var reports []Progress
	r.Reporter = ReporterFunc(func(p Progress) error {
		reports = append(reports, p)
		return nil
	})

	_, err := r.Run(context.Background(), Eval, 3, &sliceIterator{batches: linearBatches()})
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, 0, reports[0].Batch)
	assert.Equal(t, 2, reports[1].Batch)
	assert.Equal(t, 3, reports[1].Batches)
	assert.Equal(t, 3, reports[1].Epoch)
	assert.Equal(t, Eval, reports[1].Mode)
	assert.Equal(t, reports[0].Loss, reports[0].AvgLoss)
}

func TestForwardErrorFailsPass(t *testing.T) {
	errBoom := errors.New("numerical error")
	r, _ := newLinearRunner(t)
	r.Encoder = passThrough{err: errBoom}

	it := &sliceIterator{batches: linearBatches()}
	_, err := r.Run(context.Background(), Train, 1, it)
	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, Failed, r.State())
	assert.Equal(t, 1, it.pos)
	assert.True(t, it.closed)
}

func TestBadLabelFailsPass(t *testing.T) {
	r, _ := newLinearRunner(t)
	it := &sliceIterator{batches: []model.Batch{
		{Views: oneView([]float32{1, 0, 0, 0}), Labels: []int{7}},
	}}
	_, err := r.Run(context.Background(), Eval, 1, it)
	require.Error(t, err)
	assert.Equal(t, Failed, r.State())
}

func TestCancelledContextFailsPass(t *testing.T) {
	r, _ := newLinearRunner(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	it := &sliceIterator{batches: linearBatches()}
	_, err := r.Run(ctx, Train, 1, it)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, Failed, r.State())
	assert.Equal(t, 0, it.pos)
}

func TestEmptyPassHasNoMean(t *testing.T) {
	r, _ := newLinearRunner(t)
	_, err := r.Run(context.Background(), Eval, 1, &sliceIterator{})
	require.ErrorIs(t, err, metrics.ErrDivisionUndefined)
}

func TestRunnerStartsIdle(t *testing.T) {
	var r Runner
	assert.Equal(t, Idle, r.State())
	assert.Equal(t, "idle", r.State().String())
	assert.Equal(t, "eval", Eval.String())
}
