package metrics

import "time"

// Window accumulates throughput and timing stats across multiple batches.
type Window struct {
	samples int
	data    time.Duration
	compute time.Duration
	batches int
}

// Record adds a new batch measurement to the window.
func (w *Window) Record(batchSize int, dataTime, computeTime time.Duration) {
	w.samples += batchSize
	w.data += dataTime
	w.compute += computeTime
	w.batches++
}

// Snapshot returns aggregated metrics and resets the window.
func (w *Window) Snapshot() Snapshot {
	snap := Snapshot{Batches: w.batches}
	total := w.data + w.compute
	if total > 0 {
		snap.ImagesPerSec = float64(w.samples) / total.Seconds()
	}
	if w.batches > 0 {
		snap.AvgDataMS = (w.data.Seconds() * 1000) / float64(w.batches)
		snap.AvgComputeMS = (w.compute.Seconds() * 1000) / float64(w.batches)
	}

	w.samples = 0
	w.data = 0
	w.compute = 0
	w.batches = 0
	return snap
}

// Snapshot represents loggable throughput metrics.
type Snapshot struct {
	Batches      int
	ImagesPerSec float64
	AvgDataMS    float64
	AvgComputeMS float64
}
