package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Instruments are the Prometheus collectors updated once per batch.
type Instruments struct {
	batches     *prometheus.CounterVec
	samples     *prometheus.CounterVec
	computeTime *prometheus.HistogramVec
	dataTime    *prometheus.HistogramVec
}

// NewInstruments registers the batch collectors on reg.
func NewInstruments(reg prometheus.Registerer) *Instruments {
	factory := promauto.With(reg)
	return &Instruments{
		batches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cmc_probe_batches_total",
			Help: "Batches processed by pass mode",
		}, []string{"mode"}),
		samples: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cmc_probe_samples_total",
			Help: "Examples processed by pass mode",
		}, []string{"mode"}),
		computeTime: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cmc_probe_batch_compute_seconds",
			Help:    "Time spent in conversion, feature extraction, forward and backward per batch",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
		}, []string{"mode"}),
		dataTime: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cmc_probe_batch_data_wait_seconds",
			Help:    "Time spent waiting for the next batch",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16),
		}, []string{"mode"}),
	}
}

// ObserveBatch records one processed batch. A nil receiver is a no-op.
func (in *Instruments) ObserveBatch(mode string, size int, data, compute time.Duration) {
	if in == nil {
		return
	}
	in.batches.WithLabelValues(mode).Inc()
	in.samples.WithLabelValues(mode).Add(float64(size))
	in.dataTime.WithLabelValues(mode).Observe(data.Seconds())
	in.computeTime.WithLabelValues(mode).Observe(compute.Seconds())
}
