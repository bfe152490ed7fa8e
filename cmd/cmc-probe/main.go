package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"cmc-probe/internal/config"
)

// flagValues backs every config flag; only flags the user set are applied.
type flagValues struct {
	configPath string
	logLevel   string

	printFreq     int
	saveFreq      int
	batchSize     int
	numWorkers    int
	epochs        int
	learningRate  float64
	lrDecayEpochs string
	lrDecayRate   float64
	momentum      float64
	weightDecay   float64
	resume        string
	model         string
	modelPath     string
	layer         int
	dataset       string
	view          string
	oracle        string
	featVersion   string
	imageSize     int
	seed          int64
	dataFolder    string
	savePath      string
	backend       string
	influxURL     string
	metricsAddr   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	return buildRootCmd(&flagValues{})
}

func buildRootCmd(fv *flagValues) *cobra.Command {
	root := &cobra.Command{
		Use:           "cmc-probe",
		Short:         "Train and evaluate linear probes on frozen CMC encoder features",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging(fv.logLevel)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&fv.configPath, "config", "", "Path to YAML config")
	pf.StringVar(&fv.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	pf.IntVar(&fv.printFreq, "print-freq", 0, "Report progress every N batches")
	pf.IntVar(&fv.saveFreq, "save-freq", 0, "Write a periodic checkpoint every N epochs")
	pf.IntVar(&fv.batchSize, "batch-size", 0, "Batch size")
	pf.IntVar(&fv.numWorkers, "num-workers", 0, "Number of data loading workers")
	pf.IntVar(&fv.epochs, "epochs", 0, "Number of training epochs")
	pf.Float64Var(&fv.learningRate, "learning-rate", 0, "Base learning rate")
	pf.StringVar(&fv.lrDecayEpochs, "lr-decay-epochs", "", "Comma separated epochs where the learning rate decays")
	pf.Float64Var(&fv.lrDecayRate, "lr-decay-rate", 0, "Learning rate decay factor")
	pf.Float64Var(&fv.momentum, "momentum", 0, "SGD momentum")
	pf.Float64Var(&fv.weightDecay, "weight-decay", 0, "SGD weight decay")
	pf.StringVar(&fv.resume, "resume", "", "Checkpoint to resume from")
	pf.StringVar(&fv.model, "model", "", "Encoder architecture")
	pf.StringVar(&fv.modelPath, "model-path", "", "Pretrained encoder checkpoint")
	pf.IntVar(&fv.layer, "layer", 0, "Encoder layer to probe")
	pf.StringVar(&fv.dataset, "dataset", "", "Dataset (cifar, imagenet100, imagenet)")
	pf.StringVar(&fv.view, "view", "", "Color view (Lab, YCbCr, RGB)")
	pf.StringVar(&fv.oracle, "oracle", "", "Evaluation corruption oracle")
	pf.StringVar(&fv.featVersion, "feat-version", "", "Feature combination (L, LL, Lab)")
	pf.IntVar(&fv.imageSize, "image-size", 0, "Input image size")
	pf.Int64Var(&fv.seed, "seed", 0, "PRNG seed")
	pf.StringVar(&fv.dataFolder, "data-folder", "", "Dataset root")
	pf.StringVar(&fv.savePath, "save-path", "", "Checkpoint root")
	pf.StringVar(&fv.backend, "checkpoint-backend", "", "Checkpoint store (file, badger)")
	pf.StringVar(&fv.influxURL, "influx-url", "", "InfluxDB URL for the metric dashboard")
	pf.StringVar(&fv.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")

	root.AddCommand(newTrainCmd(fv), newEvaluateCmd(fv), newInitEncoderCmd(fv))
	return root
}

func setupLogging(level string) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		return fmt.Errorf("log level %q: %w", level, err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
	return nil
}

// readConfig loads the config file (or defaults) and applies set flags.
func readConfig(cmd *cobra.Command, fv *flagValues) (*config.Config, error) {
	cfg := config.Default()
	if fv.configPath != "" {
		loaded, err := config.Load(fv.configPath)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", config.ErrConfiguration, err)
		}
		cfg = loaded
	}
	cfg.ApplyOverrides(config.Overrides{
		PrintFreq:     ifChanged(cmd, "print-freq", &fv.printFreq),
		SaveFreq:      ifChanged(cmd, "save-freq", &fv.saveFreq),
		BatchSize:     ifChanged(cmd, "batch-size", &fv.batchSize),
		NumWorkers:    ifChanged(cmd, "num-workers", &fv.numWorkers),
		Epochs:        ifChanged(cmd, "epochs", &fv.epochs),
		LearningRate:  ifChanged(cmd, "learning-rate", &fv.learningRate),
		LRDecayEpochs: ifChanged(cmd, "lr-decay-epochs", &fv.lrDecayEpochs),
		LRDecayRate:   ifChanged(cmd, "lr-decay-rate", &fv.lrDecayRate),
		Momentum:      ifChanged(cmd, "momentum", &fv.momentum),
		WeightDecay:   ifChanged(cmd, "weight-decay", &fv.weightDecay),
		Resume:        ifChanged(cmd, "resume", &fv.resume),
		Model:         ifChanged(cmd, "model", &fv.model),
		ModelPath:     ifChanged(cmd, "model-path", &fv.modelPath),
		Layer:         ifChanged(cmd, "layer", &fv.layer),
		Dataset:       ifChanged(cmd, "dataset", &fv.dataset),
		View:          ifChanged(cmd, "view", &fv.view),
		Oracle:        ifChanged(cmd, "oracle", &fv.oracle),
		FeatVersion:   ifChanged(cmd, "feat-version", &fv.featVersion),
		ImageSize:     ifChanged(cmd, "image-size", &fv.imageSize),
		Seed:          ifChanged(cmd, "seed", &fv.seed),
		DataFolder:    ifChanged(cmd, "data-folder", &fv.dataFolder),
		SavePath:      ifChanged(cmd, "save-path", &fv.savePath),
		Backend:       ifChanged(cmd, "checkpoint-backend", &fv.backend),
		InfluxURL:     ifChanged(cmd, "influx-url", &fv.influxURL),
		MetricsAddr:   ifChanged(cmd, "metrics-addr", &fv.metricsAddr),
	})
	return cfg, nil
}

// loadConfig is readConfig followed by validation.
func loadConfig(cmd *cobra.Command, fv *flagValues) (*config.Config, error) {
	cfg, err := readConfig(cmd, fv)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func ifChanged[T any](cmd *cobra.Command, name string, v *T) *T {
	if cmd.Flags().Changed(name) {
		return v
	}
	return nil
}
