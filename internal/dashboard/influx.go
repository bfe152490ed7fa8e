package dashboard

import (
	"errors"
	"log/slog"
	"strconv"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
)

const influxMeasurement = "linear_probe"

// InfluxConfig locates the InfluxDB bucket scalars are written to.
type InfluxConfig struct {
	URL    string `yaml:"url"`
	Token  string `yaml:"token"`
	Org    string `yaml:"org"`
	Bucket string `yaml:"bucket"`
}

// InfluxSink writes scalars through the non-blocking InfluxDB write API.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	tags     map[string]string
	now      func() time.Time
}

// NewInfluxSink connects to InfluxDB. tags are attached to every point
// (run id, model name, layer). Asynchronous write failures are logged.
func NewInfluxSink(cfg InfluxConfig, tags map[string]string, logger *slog.Logger) (*InfluxSink, error) {
	if cfg.URL == "" || cfg.Bucket == "" {
		return nil, errors.New("dashboard: influx url and bucket are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token,
		influxdb2.DefaultOptions().SetBatchSize(50).SetFlushInterval(2000))
	writeAPI := client.WriteAPI(cfg.Org, cfg.Bucket)
	errCh := writeAPI.Errors()
	go func() {
		for err := range errCh {
			logger.Warn("influx write failed", "error", err)
		}
	}()

	copied := make(map[string]string, len(tags))
	for k, v := range tags {
		copied[k] = v
	}
	return &InfluxSink{client: client, writeAPI: writeAPI, tags: copied, now: time.Now}, nil
}

// Log implements Sink. It only enqueues the point.
func (s *InfluxSink) Log(series string, value float64, step int) error {
	tags := make(map[string]string, len(s.tags)+1)
	for k, v := range s.tags {
		tags[k] = v
	}
	tags["series"] = series
	p := influxdb2.NewPoint(influxMeasurement, tags, map[string]interface{}{
		"value": value,
		"step":  step,
	}, s.now())
	s.writeAPI.WritePoint(p)
	return nil
}

// Close flushes pending points and closes the client.
func (s *InfluxSink) Close() error {
	s.writeAPI.Flush()
	s.client.Close()
	return nil
}

// Tags builds the standard point tags for a run.
func Tags(runID, modelName string, layer int) map[string]string {
	return map[string]string{
		"run_id": runID,
		"model":  modelName,
		"layer":  strconv.Itoa(layer),
	}
}
