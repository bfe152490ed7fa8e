// Package trainer drives linear-probe passes and the epoch loop around them.
package trainer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"gonum.org/v1/gonum/mat"

	"cmc-probe/internal/metrics"
	"cmc-probe/internal/model"
)

// Mode selects whether a pass updates the classifier.
type Mode int

const (
	Train Mode = iota
	Eval
)

func (m Mode) String() string {
	if m == Eval {
		return "eval"
	}
	return "train"
}

// State tracks the lifecycle of the current pass.
type State int32

const (
	Idle State = iota
	Running
	Completed
	Failed
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	default:
		return "idle"
	}
}

// FeatureExtractor is the frozen encoder. It must not be trained.
type FeatureExtractor interface {
	Extract(views []*mat.Dense, layer int) (*mat.Dense, *mat.Dense, error)
}

// Summary holds the weighted means of one pass.
type Summary struct {
	Loss     float64
	Top1     float64
	Top5     float64
	Batches  int
	Samples  int
	Duration time.Duration
}

// Runner executes a single pass over a batch iterator.
type Runner struct {
	Encoder    FeatureExtractor
	Classifier model.Classifier
	Loss       model.Loss
	// Optimizer is only used in Train mode.
	Optimizer model.Optimizer
	Features  model.FeatureMode
	Layer     int
	PrintFreq int

	Reporter    Reporter
	Instruments *metrics.Instruments
	Logger      *slog.Logger

	state atomic.Int32
}

// State reports the lifecycle state of the most recent pass.
func (r *Runner) State() State {
	return State(r.state.Load())
}

// Run consumes it to exhaustion and closes it. Any batch error ends the
// pass in the Failed state.
func (r *Runner) Run(ctx context.Context, mode Mode, epoch int, it model.BatchIterator) (Summary, error) {
	defer it.Close()
	r.state.Store(int32(Running))

	summary, err := r.run(ctx, mode, epoch, it)
	if err != nil {
		r.state.Store(int32(Failed))
		return Summary{}, err
	}
	r.state.Store(int32(Completed))
	return summary, nil
}

func (r *Runner) run(ctx context.Context, mode Mode, epoch int, it model.BatchIterator) (Summary, error) {
	if mode == Train && r.Optimizer == nil {
		return Summary{}, errors.New("trainer: train pass needs an optimizer")
	}
	printFreq := r.PrintFreq
	if printFreq <= 0 {
		printFreq = 10
	}

	var (
		losses, top1, top5  metrics.Meter
		batchTime, dataTime metrics.Meter
		window              metrics.Window
		samples, batches    int
	)
	total := it.Len()
	start := time.Now()

	for idx := 0; ; idx++ {
		if err := ctx.Err(); err != nil {
			return Summary{}, err
		}
		waitStart := time.Now()
		batch, err := it.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Summary{}, fmt.Errorf("%s epoch %d batch %d: %w", mode, epoch, idx, err)
		}
		dataWait := time.Since(waitStart)

		computeStart := time.Now()
		loss, acc, err := r.step(mode, batch)
		if err != nil {
			return Summary{}, fmt.Errorf("%s epoch %d batch %d: %w", mode, epoch, idx, err)
		}
		compute := time.Since(computeStart)

		n := batch.Size()
		samples += n
		batches++
		losses.Update(loss, n)
		top1.Update(acc[0], n)
		top5.Update(acc[1], n)
		batchTime.Update((dataWait + compute).Seconds(), 1)
		dataTime.Update(dataWait.Seconds(), 1)
		window.Record(n, dataWait, compute)
		r.Instruments.ObserveBatch(mode.String(), n, dataWait, compute)

		if idx%printFreq == 0 {
			snap := window.Snapshot()
			r.report(Progress{
				Mode:         mode,
				Epoch:        epoch,
				Batch:        idx,
				Batches:      total,
				BatchTime:    batchTime.Val,
				AvgBatchTime: batchTime.Avg(),
				DataTime:     dataTime.Val,
				AvgDataTime:  dataTime.Avg(),
				Loss:         losses.Val,
				AvgLoss:      losses.Avg(),
				Top1:         top1.Val,
				AvgTop1:      top1.Avg(),
				Top5:         top5.Val,
				AvgTop5:      top5.Avg(),
				ImagesPerSec: snap.ImagesPerSec,
				DataMS:       snap.AvgDataMS,
				ComputeMS:    snap.AvgComputeMS,
			})
		}
	}

	loss, err := losses.Mean()
	if err != nil {
		return Summary{}, fmt.Errorf("%s epoch %d: no batches: %w", mode, epoch, err)
	}
	acc1, _ := top1.Mean()
	acc5, _ := top5.Mean()
	return Summary{
		Loss:     loss,
		Top1:     acc1,
		Top5:     acc5,
		Batches:  batches,
		Samples:  samples,
		Duration: time.Since(start),
	}, nil
}

// step runs one batch and returns its mean loss and top-1/top-5 accuracy.
func (r *Runner) step(mode Mode, batch model.Batch) (float64, []float64, error) {
	if batch.Size() == 0 {
		return 0, nil, errors.New("empty batch")
	}
	views := make([]*mat.Dense, len(batch.Views))
	for v, view := range batch.Views {
		d, err := model.ToDense(view)
		if err != nil {
			return 0, nil, fmt.Errorf("view %d: %w", v, err)
		}
		views[v] = d
	}

	a, b, err := r.Encoder.Extract(views, r.Layer)
	if err != nil {
		return 0, nil, fmt.Errorf("extract: %w", err)
	}
	features, err := r.Features.Combine(a, b)
	if err != nil {
		return 0, nil, err
	}

	scores := r.Classifier.Forward(features)
	loss, grad, err := r.Loss.Compute(scores, batch.Labels)
	if err != nil {
		return 0, nil, fmt.Errorf("loss: %w", err)
	}
	acc, err := metrics.TopK(scores, batch.Labels, 1, 5)
	if err != nil {
		return 0, nil, err
	}

	if mode == Train {
		r.Optimizer.ZeroGrad()
		r.Classifier.Backward(features, grad)
		r.Optimizer.Step()
	}
	return loss, acc, nil
}

func (r *Runner) report(p Progress) {
	if r.Reporter == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			r.logger().Warn("progress reporter panicked", "panic", rec)
		}
	}()
	if err := r.Reporter.Report(p); err != nil {
		r.logger().Warn("progress report failed", "err", err)
	}
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}
