package trainer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"cmc-probe/internal/checkpoint"
	"cmc-probe/internal/dashboard"
	"cmc-probe/internal/model"
)

// PassRunner runs one pass over an iterator.
type PassRunner interface {
	Run(ctx context.Context, mode Mode, epoch int, it model.BatchIterator) (Summary, error)
}

// Source hands out one iterator per epoch.
type Source interface {
	Epoch(ctx context.Context, epoch int) model.BatchIterator
}

// Stateful is anything whose parameters can be checkpointed.
type Stateful interface {
	StateDict() map[string]model.Tensor
	LoadStateDict(state map[string]model.Tensor) error
}

// EpochResult is the outcome of one epoch.
type EpochResult struct {
	Epoch int
	LR    float64
	Train Summary
	Val   Summary
	// Best is set when this epoch improved the best validation accuracy.
	Best bool
}

// Result summarizes a finished run.
type Result struct {
	Best      float64
	BestEpoch int
	LastEpoch int
	Epochs    []EpochResult
}

// Loop alternates train and eval passes and owns checkpoint retention.
type Loop struct {
	Runner     PassRunner
	Train      Source
	Val        Source
	Classifier Stateful
	Optimizer  model.Optimizer
	Store      checkpoint.Store
	Sink       dashboard.Sink
	Schedule   StepSchedule

	Epochs   int
	SaveFreq int
	// BestKey is the store key of the best-so-far checkpoint.
	BestKey string
	Options map[string]string
	RunID   string
	Logger  *slog.Logger

	start     int
	best      float64
	bestEpoch int
}

// Best returns the best validation top-1 accuracy seen so far.
func (l *Loop) Best() float64 { return l.best }

// BestEpoch returns the epoch that reached Best, zero before any improvement.
func (l *Loop) BestEpoch() int { return l.bestEpoch }

// StartEpoch returns the first epoch Run will execute.
func (l *Loop) StartEpoch() int {
	if l.start < 1 {
		return 1
	}
	return l.start
}

// Resume restores classifier, optimizer and best accuracy from key. A
// missing or unreadable checkpoint wraps checkpoint.ErrCheckpointUnavailable
// and leaves the loop untouched.
func (l *Loop) Resume(key string) error {
	rec, err := l.Store.Load(key)
	if err != nil {
		return fmt.Errorf("resume from %s: %w", key, err)
	}
	if err := l.Classifier.LoadStateDict(rec.Classifier); err != nil {
		return fmt.Errorf("resume classifier: %w", err)
	}
	if err := l.Optimizer.LoadStateDict(rec.Optimizer); err != nil {
		return fmt.Errorf("resume optimizer: %w", err)
	}
	l.start = rec.Epoch + 1
	l.best = rec.BestAccuracy
	l.bestEpoch = rec.BestEpoch
	l.logger().Info("loaded checkpoint", "key", key, "epoch", rec.Epoch,
		"best_acc", rec.BestAccuracy, "best_epoch", rec.BestEpoch)
	return nil
}

// Run trains from StartEpoch through Epochs inclusive.
func (l *Loop) Run(ctx context.Context) (Result, error) {
	var res Result
	logger := l.logger()

	for epoch := l.StartEpoch(); epoch <= l.Epochs; epoch++ {
		lr := l.Schedule.LR(epoch)
		l.Optimizer.SetLR(lr)
		logger.Info("training", "epoch", epoch, "lr", lr)

		train, err := l.Runner.Run(ctx, Train, epoch, l.Train.Epoch(ctx, epoch))
		if err != nil {
			return res, fmt.Errorf("epoch %d: %w", epoch, err)
		}
		logger.Info("train pass done", "epoch", epoch, "acc1", train.Top1, "acc5", train.Top5,
			"loss", train.Loss, "duration", train.Duration.Round(time.Millisecond))

		val, err := l.Runner.Run(ctx, Eval, epoch, l.Val.Epoch(ctx, epoch))
		if err != nil {
			return res, fmt.Errorf("epoch %d: %w", epoch, err)
		}
		logger.Info("eval pass done", "epoch", epoch, "acc1", val.Top1, "acc5", val.Top5, "loss", val.Loss)

		l.logScalars(epoch, train, val)

		er := EpochResult{Epoch: epoch, LR: lr, Train: train, Val: val}
		if val.Top1 > l.best {
			l.best = val.Top1
			l.bestEpoch = epoch
			er.Best = true
			logger.Info("saving best model", "epoch", epoch, "acc1", val.Top1)
			if err := l.save(l.BestKey, epoch); err != nil {
				return res, err
			}
		}
		if l.SaveFreq > 0 && epoch%l.SaveFreq == 0 {
			logger.Info("saving checkpoint", "epoch", epoch)
			if err := l.save(checkpoint.EpochKey(epoch), epoch); err != nil {
				return res, err
			}
		}

		res.Epochs = append(res.Epochs, er)
		res.LastEpoch = epoch
	}

	res.Best = l.best
	res.BestEpoch = l.bestEpoch
	return res, nil
}

func (l *Loop) logScalars(epoch int, train, val Summary) {
	if l.Sink == nil {
		return
	}
	scalars := []struct {
		series string
		value  float64
	}{
		{"train_acc", train.Top1},
		{"train_acc5", train.Top5},
		{"train_loss", train.Loss},
		{"test_acc", val.Top1},
		{"test_acc5", val.Top5},
		{"test_loss", val.Loss},
	}
	for _, s := range scalars {
		if err := l.Sink.Log(s.series, s.value, epoch); err != nil {
			l.logger().Warn("dashboard write failed", "series", s.series, "epoch", epoch, "err", err)
		}
	}
}

func (l *Loop) save(key string, epoch int) error {
	rec := &checkpoint.Record{
		Epoch:        epoch,
		Classifier:   l.Classifier.StateDict(),
		Optimizer:    l.Optimizer.StateDict(),
		BestAccuracy: l.best,
		BestEpoch:    l.bestEpoch,
		Options:      l.Options,
		RunID:        l.RunID,
		SavedAt:      time.Now().UTC(),
	}
	if err := l.Store.Save(key, rec); err != nil {
		return fmt.Errorf("save checkpoint %s: %w", key, err)
	}
	return nil
}

func (l *Loop) logger() *slog.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return slog.Default()
}
