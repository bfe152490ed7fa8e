package dashboard

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PromSink exposes the latest value and step of every series as gauges.
type PromSink struct {
	values *prometheus.GaugeVec
	steps  *prometheus.GaugeVec
}

// NewPromSink registers the sink gauges on reg.
func NewPromSink(reg prometheus.Registerer) *PromSink {
	factory := promauto.With(reg)
	return &PromSink{
		values: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cmc_probe_metric",
			Help: "Latest value of each epoch-level series",
		}, []string{"series"}),
		steps: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cmc_probe_metric_step",
			Help: "Step at which each series was last updated",
		}, []string{"series"}),
	}
}

// Log implements Sink.
func (s *PromSink) Log(series string, value float64, step int) error {
	s.values.WithLabelValues(series).Set(value)
	s.steps.WithLabelValues(series).Set(float64(step))
	return nil
}

// Close implements Sink.
func (s *PromSink) Close() error { return nil }
