package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cmc-probe/internal/checkpoint"
	"cmc-probe/internal/config"
	"cmc-probe/internal/dashboard"
	"cmc-probe/internal/dataset"
	"cmc-probe/internal/encoder"
	"cmc-probe/internal/metrics"
	"cmc-probe/internal/model"
	"cmc-probe/internal/trainer"
)

// probe is the frozen encoder plus the trainable classifier on top of it.
type probe struct {
	transform  dataset.Transform
	classifier *model.Linear
	optimizer  *model.SGD
	runner     *trainer.Runner
}

func buildProbe(cfg *config.Config, reg prometheus.Registerer, logger *slog.Logger) (*probe, error) {
	view, err := dataset.ParseView(cfg.View)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrConfiguration, err)
	}
	features, err := model.ParseFeatureMode(cfg.FeatVersion)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrConfiguration, err)
	}
	tf := dataset.Transform{Size: cfg.ImageSize, View: view}

	enc, err := encoder.Load(cfg.EncoderPath())
	if err != nil {
		return nil, fmt.Errorf("load encoder: %w", err)
	}
	if enc.Arch().Name != cfg.Model {
		logger.Warn("encoder architecture differs from config", "encoder", enc.Arch().Name, "model", cfg.Model)
	}
	ia, ib := enc.InputWidths()
	ta, tb := tf.Widths()
	if ia != ta || ib != tb {
		return nil, fmt.Errorf("%w: encoder expects inputs %d+%d, image size %d gives %d+%d",
			config.ErrConfiguration, ia, ib, cfg.ImageSize, ta, tb)
	}
	wa, wb, err := enc.FeatureWidths(cfg.Layer)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrConfiguration, err)
	}
	logger.Info("loaded encoder", "path", cfg.EncoderPath(), "arch", enc.Arch().Name, "epoch", enc.Epoch(),
		"layer", cfg.Layer, "feature_dim", features.Dim(wa, wb))

	classifier, err := model.NewLinear(features.Dim(wa, wb), cfg.NumClasses(), cfg.Seed)
	if err != nil {
		return nil, err
	}
	optimizer := model.NewSGD(classifier.Params(), model.SGDConfig{
		LR:          cfg.LearningRate,
		Momentum:    cfg.Momentum,
		WeightDecay: cfg.Decay(),
	})

	return &probe{
		transform:  tf,
		classifier: classifier,
		optimizer:  optimizer,
		runner: &trainer.Runner{
			Encoder:     enc,
			Classifier:  classifier,
			Loss:        model.CrossEntropy{},
			Optimizer:   optimizer,
			Features:    features,
			Layer:       cfg.Layer,
			PrintFreq:   cfg.PrintFreq,
			Reporter:    trainer.LogReporter{Logger: logger},
			Instruments: metrics.NewInstruments(reg),
			Logger:      logger,
		},
	}, nil
}

func openLoader(ctx context.Context, cfg *config.Config, tf dataset.Transform, split dataset.Split, train bool, logger *slog.Logger) (*dataset.Loader, error) {
	dir := dataset.SplitDir(cfg.DataFolder, cfg.Oracle, split)
	shards, err := dataset.DiscoverShards(dir)
	if err != nil {
		return nil, fmt.Errorf("discover %s shards: %w", split, err)
	}
	if len(shards) == 0 {
		return nil, fmt.Errorf("no shards under %s", dir)
	}
	samples, err := dataset.LoadSplit(ctx, shards, cfg.NumWorkers)
	if err != nil {
		return nil, err
	}
	tf.Augment = train
	loader, err := dataset.NewLoader(dataset.LoaderOptions{
		Samples:    samples,
		Transform:  tf,
		BatchSize:  cfg.BatchSize,
		Workers:    cfg.NumWorkers,
		NumClasses: cfg.NumClasses(),
		Shuffle:    train,
		Seed:       cfg.Seed,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("loaded split", "split", split, "dir", dir, "shards", len(shards),
		"samples", loader.NumSamples(), "batches", loader.Len())
	return loader, nil
}

func openStore(cfg *config.Config, logger *slog.Logger) (checkpoint.Store, error) {
	switch cfg.CheckpointBackend {
	case "badger":
		return checkpoint.OpenBadger(checkpoint.BadgerConfig{
			Path:   filepath.Join(cfg.SaveFolder(), "checkpoints.badger"),
			Logger: logger,
		})
	default:
		return checkpoint.NewFileStore(cfg.SaveFolder())
	}
}

// storeKey maps a user supplied checkpoint reference onto a store key. For
// the file backend an existing file, relative to the working directory,
// wins over a name inside the save folder.
func storeKey(cfg *config.Config, ref string) string {
	if cfg.CheckpointBackend == "badger" || filepath.IsAbs(ref) {
		return ref
	}
	if info, err := os.Stat(ref); err == nil && !info.IsDir() {
		if abs, err := filepath.Abs(ref); err == nil {
			return abs
		}
	}
	return ref
}

// withAvailableKeys appends the store's keys to a load failure.
func withAvailableKeys(store checkpoint.Store, err error) error {
	lister, ok := store.(checkpoint.Lister)
	if !ok {
		return err
	}
	keys, lerr := lister.Keys()
	if lerr != nil || len(keys) == 0 {
		return err
	}
	return fmt.Errorf("%w (available: %s)", err, strings.Join(keys, ", "))
}

// openSink always logs and exports to Prometheus; InfluxDB is added when
// configured and skipped with a warning when it cannot be reached.
func openSink(cfg *config.Config, runID string, reg prometheus.Registerer, logger *slog.Logger) dashboard.Sink {
	sinks := dashboard.Multi{
		dashboard.LogSink{Logger: logger},
		dashboard.NewPromSink(reg),
	}
	if cfg.Influx.URL != "" {
		influx, err := dashboard.NewInfluxSink(cfg.Influx, dashboard.Tags(runID, cfg.ModelName(), cfg.Layer), logger)
		if err != nil {
			logger.Warn("influx dashboard disabled", "err", err)
		} else {
			sinks = append(sinks, influx)
		}
	}
	return sinks
}

func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// serveMetrics exposes reg on addr until the returned function is called.
func serveMetrics(addr string, reg *prometheus.Registry, logger *slog.Logger) func() {
	if addr == "" {
		return func() {}
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server stopped", "addr", addr, "err", err)
		}
	}()
	logger.Info("serving metrics", "addr", addr)
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
