// Package config loads and validates linear-probe run configuration.
package config

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"cmc-probe/internal/dashboard"
	"cmc-probe/internal/encoder"
)

// ErrConfiguration marks a missing or invalid option. It is fatal and is
// reported before any data is touched.
var ErrConfiguration = errors.New("configuration error")

var validate = validator.New()

// Config captures the runtime knobs for a probe run.
type Config struct {
	PrintFreq int `yaml:"print_freq" validate:"gt=0"`
	SaveFreq  int `yaml:"save_freq" validate:"gt=0"`
	BatchSize int `yaml:"batch_size" validate:"gt=0"`
	// NumWorkers bounds concurrent shard reads and image decodes.
	NumWorkers int `yaml:"num_workers" validate:"gt=0"`
	Epochs     int `yaml:"epochs" validate:"gt=0"`

	LearningRate  float64  `yaml:"learning_rate" validate:"gt=0"`
	// LRDecayEpochs is a comma separated list of epoch boundaries.
	LRDecayEpochs string   `yaml:"lr_decay_epochs"`
	LRDecayRate   float64  `yaml:"lr_decay_rate" validate:"gt=0"`
	Momentum      float64  `yaml:"momentum" validate:"gte=0,lt=1"`
	// WeightDecay is nil until set; an unset decay names runs "decay_0".
	WeightDecay   *float64 `yaml:"weight_decay" validate:"omitempty,gte=0"`

	Resume string `yaml:"resume"`

	Model string `yaml:"model" validate:"required"`
	// ModelPath is the pretrained encoder checkpoint; "augment" in the path
	// is replaced by the view name.
	ModelPath   string `yaml:"model_path" validate:"required"`
	Layer       int    `yaml:"layer" validate:"gt=0"`
	Dataset     string `yaml:"dataset" validate:"oneof=imagenet100 imagenet cifar"`
	View        string `yaml:"view" validate:"oneof=Lab YCbCr RGB"`
	Oracle      string `yaml:"oracle" validate:"required"`
	FeatVersion string `yaml:"feat_version" validate:"oneof=L LL Lab"`
	ImageSize   int    `yaml:"image_size" validate:"gt=0"`
	Seed        int64  `yaml:"seed"`

	DataFolder string `yaml:"data_folder" validate:"required"`
	SavePath   string `yaml:"save_path" validate:"required"`

	CheckpointBackend string                 `yaml:"checkpoint_backend" validate:"oneof=file badger"`
	Influx            dashboard.InfluxConfig `yaml:"influx"`
	MetricsAddr       string                 `yaml:"metrics_addr"`
}

// Default returns the stock configuration; paths are left empty.
func Default() *Config {
	return &Config{
		PrintFreq:         10,
		SaveFreq:          5,
		BatchSize:         256,
		NumWorkers:        4,
		Epochs:            60,
		LearningRate:      0.1,
		LRDecayEpochs:     "30,40,50",
		LRDecayRate:       0.2,
		Momentum:          0.9,
		Model:             "alexnet",
		Layer:             6,
		Dataset:           "cifar",
		View:              "Lab",
		Oracle:            "original",
		FeatVersion:       "Lab",
		ImageSize:         32,
		Seed:              42,
		CheckpointBackend: "file",
	}
}

// Load reads a YAML config on top of the defaults. Unknown keys are errors.
// Validation is left to the caller so CLI overrides can be applied first.
func Load(path string) (*Config, error) {
	cfg := Default()
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Overrides captures CLI supplied values; nil fields are left untouched.
type Overrides struct {
	PrintFreq     *int
	SaveFreq      *int
	BatchSize     *int
	NumWorkers    *int
	Epochs        *int
	LearningRate  *float64
	LRDecayEpochs *string
	LRDecayRate   *float64
	Momentum      *float64
	WeightDecay   *float64
	Resume        *string
	Model         *string
	ModelPath     *string
	Layer         *int
	Dataset       *string
	View          *string
	Oracle        *string
	FeatVersion   *string
	ImageSize     *int
	Seed          *int64
	DataFolder    *string
	SavePath      *string
	Backend       *string
	InfluxURL     *string
	MetricsAddr   *string
}

// ApplyOverrides updates c using every non-nil override.
func (c *Config) ApplyOverrides(o Overrides) {
	set(&c.PrintFreq, o.PrintFreq)
	set(&c.SaveFreq, o.SaveFreq)
	set(&c.BatchSize, o.BatchSize)
	set(&c.NumWorkers, o.NumWorkers)
	set(&c.Epochs, o.Epochs)
	set(&c.LearningRate, o.LearningRate)
	set(&c.LRDecayEpochs, o.LRDecayEpochs)
	set(&c.LRDecayRate, o.LRDecayRate)
	set(&c.Momentum, o.Momentum)
	if o.WeightDecay != nil {
		wd := *o.WeightDecay
		c.WeightDecay = &wd
	}
	set(&c.Resume, o.Resume)
	set(&c.Model, o.Model)
	set(&c.ModelPath, o.ModelPath)
	set(&c.Layer, o.Layer)
	set(&c.Dataset, o.Dataset)
	set(&c.View, o.View)
	set(&c.Oracle, o.Oracle)
	set(&c.FeatVersion, o.FeatVersion)
	set(&c.ImageSize, o.ImageSize)
	set(&c.Seed, o.Seed)
	set(&c.DataFolder, o.DataFolder)
	set(&c.SavePath, o.SavePath)
	set(&c.CheckpointBackend, o.Backend)
	set(&c.Influx.URL, o.InfluxURL)
	set(&c.MetricsAddr, o.MetricsAddr)
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

// Validate verifies the config is runnable. Every failure wraps
// ErrConfiguration.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: config is nil", ErrConfiguration)
	}
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	if _, err := ParseDecayEpochs(c.LRDecayEpochs); err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	arch, err := encoder.ArchFor(c.Model)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	if _, err := arch.Width(c.Layer); err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	if c.Influx.URL != "" && c.Influx.Bucket == "" {
		return fmt.Errorf("%w: influx.bucket is required when influx.url is set", ErrConfiguration)
	}
	return nil
}

// ParseDecayEpochs parses "30,40,50" into an ordered list of epochs.
func ParseDecayEpochs(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("lr_decay_epochs: %w", err)
		}
		out = append(out, v)
	}
	return out, nil
}

// DecayEpochs returns the parsed decay boundaries.
func (c *Config) DecayEpochs() []int {
	epochs, _ := ParseDecayEpochs(c.LRDecayEpochs)
	return epochs
}

// EncoderPath returns the encoder checkpoint path for the configured view.
func (c *Config) EncoderPath() string {
	return strings.ReplaceAll(c.ModelPath, "augment", c.View)
}

// ModelName identifies the run; it is derived from the encoder's directory
// and the main hyperparameters.
func (c *Config) ModelName() string {
	dir := filepath.Base(filepath.Dir(c.EncoderPath()))
	return fmt.Sprintf("calibrated_%s_bsz_%d_lr_%s_decay_%s_%s",
		dir, c.BatchSize, formatFloat(c.LearningRate), c.decayName(), c.Oracle)
}

// Decay returns the SGD weight decay, zero when unset.
func (c *Config) Decay() float64 {
	if c.WeightDecay == nil {
		return 0
	}
	return *c.WeightDecay
}

func (c *Config) decayName() string {
	if c.WeightDecay == nil {
		return "0"
	}
	return formatFloat(*c.WeightDecay)
}

// SaveFolder is where this run's checkpoints are written.
func (c *Config) SaveFolder() string {
	return filepath.Join(c.SavePath, c.ModelName())
}

// NumClasses returns the label count of the configured dataset.
func (c *Config) NumClasses() int {
	switch c.Dataset {
	case "imagenet100":
		return 100
	case "imagenet":
		return 1000
	default:
		return 10
	}
}

// Options flattens the config for storage in checkpoints.
func (c *Config) Options() map[string]string {
	return map[string]string{
		"batch_size":      strconv.Itoa(c.BatchSize),
		"epochs":          strconv.Itoa(c.Epochs),
		"learning_rate":   formatFloat(c.LearningRate),
		"lr_decay_epochs": c.LRDecayEpochs,
		"lr_decay_rate":   formatFloat(c.LRDecayRate),
		"momentum":        formatFloat(c.Momentum),
		"weight_decay":    c.decayName(),
		"model":           c.Model,
		"model_path":      c.EncoderPath(),
		"layer":           strconv.Itoa(c.Layer),
		"dataset":         c.Dataset,
		"view":            c.View,
		"oracle":          c.Oracle,
		"feat_version":    c.FeatVersion,
		"image_size":      strconv.Itoa(c.ImageSize),
		"seed":            strconv.FormatInt(c.Seed, 10),
	}
}

// formatFloat renders v the way run names have always spelled floats:
// integral values keep a trailing ".0" and very small or large magnitudes
// switch to exponent form ("1e-05").
func formatFloat(v float64) string {
	switch {
	case math.IsNaN(v):
		return "nan"
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	}
	if abs := math.Abs(v); v != 0 && (abs < 1e-4 || abs >= 1e16) {
		return strconv.FormatFloat(v, 'e', -1, 64)
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
