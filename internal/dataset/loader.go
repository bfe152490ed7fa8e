package dataset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"

	"golang.org/x/sync/errgroup"

	"cmc-probe/internal/model"
)

// LoadSplit reads all shards concurrently and returns their samples in
// shard order, preserving archive order within each shard.
func LoadSplit(ctx context.Context, shards []string, workers int) ([]Sample, error) {
	if len(shards) == 0 {
		return nil, errors.New("dataset: no shards")
	}
	if workers <= 0 {
		workers = 1
	}
	perShard := make([][]Sample, len(shards))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, path := range shards {
		i, path := i, path
		g.Go(func() error {
			samples, err := ReadShard(gctx, path)
			if err != nil {
				return err
			}
			perShard[i] = samples
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	var out []Sample
	for _, samples := range perShard {
		out = append(out, samples...)
	}
	return out, nil
}

// LoaderOptions configures a Loader.
type LoaderOptions struct {
	Samples    []Sample
	Transform  Transform
	BatchSize  int
	Workers    int
	NumClasses int
	// Shuffle reorders samples every epoch (training). Evaluation loaders
	// keep the stored order.
	Shuffle bool
	Seed    int64
	// Prefetch is the number of decoded batches buffered ahead of the consumer.
	Prefetch int
}

// Loader produces per-epoch batch iterators over an in-memory split.
type Loader struct {
	opts LoaderOptions
}

// NewLoader validates opts and returns a Loader.
func NewLoader(opts LoaderOptions) (*Loader, error) {
	if len(opts.Samples) == 0 {
		return nil, errors.New("dataset: loader has no samples")
	}
	if opts.BatchSize <= 0 {
		return nil, fmt.Errorf("dataset: batch size must be > 0 (got %d)", opts.BatchSize)
	}
	if opts.NumClasses > 0 {
		for _, s := range opts.Samples {
			if s.Label < 0 || s.Label >= opts.NumClasses {
				return nil, fmt.Errorf("dataset: sample %s label %d outside [0,%d)", s.Key, s.Label, opts.NumClasses)
			}
		}
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Prefetch <= 0 {
		opts.Prefetch = 2
	}
	return &Loader{opts: opts}, nil
}

// Len returns the number of batches per epoch.
func (l *Loader) Len() int {
	return (len(l.opts.Samples) + l.opts.BatchSize - 1) / l.opts.BatchSize
}

// NumSamples returns the number of samples per epoch.
func (l *Loader) NumSamples() int {
	return len(l.opts.Samples)
}

// Epoch starts decoding the given epoch in the background. The iterator
// must be closed to release the producer if it is not drained.
func (l *Loader) Epoch(ctx context.Context, epoch int) model.BatchIterator {
	ctx, cancel := context.WithCancel(ctx)
	batches := make(chan batchResult, l.opts.Prefetch)
	it := &Iterator{
		batches: batches,
		cancel:  cancel,
		total:   l.Len(),
	}
	go l.produce(ctx, epoch, batches)
	return it
}

func (l *Loader) order(epoch int) []int {
	n := len(l.opts.Samples)
	if l.opts.Shuffle {
		return rand.New(rand.NewSource(l.opts.Seed + int64(epoch))).Perm(n)
	}
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return idx
}

func (l *Loader) produce(ctx context.Context, epoch int, out chan<- batchResult) {
	defer close(out)
	order := l.order(epoch)
	for start := 0; start < len(order); start += l.opts.BatchSize {
		end := min(start+l.opts.BatchSize, len(order))
		batch, err := l.decode(ctx, epoch, order[start:end])
		select {
		case <-ctx.Done():
			return
		case out <- batchResult{batch: batch, err: err}:
		}
		if err != nil {
			return
		}
	}
}

// decode transforms the selected samples in parallel; slot i of the batch
// always holds indices[i], independent of worker scheduling.
func (l *Loader) decode(ctx context.Context, epoch int, indices []int) (model.Batch, error) {
	a := make([][]float32, len(indices))
	b := make([][]float32, len(indices))
	labels := make([]int, len(indices))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.opts.Workers)
	for slot, idx := range indices {
		slot, idx := slot, idx
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			sample := l.opts.Samples[idx]
			var rng *rand.Rand
			if l.opts.Transform.Augment {
				rng = rand.New(rand.NewSource(exampleSeed(l.opts.Seed, epoch, idx)))
			}
			views, err := l.opts.Transform.Apply(sample.Image, rng)
			if err != nil {
				return fmt.Errorf("sample %s: %w", sample.Key, err)
			}
			a[slot], b[slot] = views[0], views[1]
			labels[slot] = sample.Label
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return model.Batch{}, err
	}
	return model.Batch{Views: [][][]float32{a, b}, Labels: labels}, nil
}

func exampleSeed(seed int64, epoch, idx int) int64 {
	return seed*1_000_003 + int64(epoch)*7_919_777 + int64(idx)
}

type batchResult struct {
	batch model.Batch
	err   error
}

// Iterator yields the batches of one epoch.
type Iterator struct {
	batches <-chan batchResult
	cancel  context.CancelFunc
	total   int
}

// Next blocks for the next batch; it returns io.EOF once the epoch is done.
func (it *Iterator) Next(ctx context.Context) (model.Batch, error) {
	if err := ctx.Err(); err != nil {
		return model.Batch{}, err
	}
	select {
	case <-ctx.Done():
		return model.Batch{}, ctx.Err()
	case r, ok := <-it.batches:
		if !ok {
			return model.Batch{}, io.EOF
		}
		if r.err != nil {
			return model.Batch{}, r.err
		}
		return r.batch, nil
	}
}

// Len returns the number of batches in the epoch.
func (it *Iterator) Len() int {
	return it.total
}

// Close stops the background producer.
func (it *Iterator) Close() {
	it.cancel()
}
