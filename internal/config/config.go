// Package config holds the run configuration of the osborn driver.
//
// A Config replaces the paths and hyperparameters that a training script
// would otherwise keep as package-level constants. It can be read from a
// YAML file and then overridden from command-line flags:
//
//	cfg := config.Default()
//	if path != "" {
//	    cfg, err = config.Load(path)
//	}
//	cfg.TrainSteps = *steps
//	if err := cfg.Validate(); err != nil { ... }
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Profile layout constants.
const (
	// NZProfile is the number of z-points in a z-profile sample.
	NZProfile = 512
	// NFeatures is the number of profiles per z-profile sample.
	NFeatures = 2
)

// ErrInvalid is returned by Validate for an unusable configuration.
var ErrInvalid = errors.New("config: invalid configuration")

// Layout describes how the feature columns of a row are arranged.
//
// A row holds Channels*Width feature values followed by one label.
type Layout struct {
	Channels int `yaml:"channels"`
	Width    int `yaml:"width"`
}

// ScalarLayout is the {chi, eps, N2} table layout.
func ScalarLayout() Layout {
	return Layout{Channels: 1, Width: 3}
}

// ProfileLayout is the z-profile layout.
func ProfileLayout() Layout {
	return Layout{Channels: NFeatures, Width: NZProfile}
}

// Features returns the number of feature values per row.
func (l Layout) Features() int {
	return l.Channels * l.Width
}

// Config is the full configuration of a run.
type Config struct {
	TrainDataPath string `yaml:"train_data"`
	TestDataPath  string `yaml:"test_data"`
	ModelDir      string `yaml:"model_dir"`
	PlotDir       string `yaml:"plot_dir"`
	Layout        Layout `yaml:"layout"`

	// Columns optionally names the feature columns and the label, in file order.
	Columns []string `yaml:"columns"`

	SplitRatio float64 `yaml:"split_ratio"`
	Seed       int64   `yaml:"seed"`

	TrainSteps   int     `yaml:"train_steps"`
	BatchSize    int     `yaml:"batch_size"`
	LogEveryN    int     `yaml:"log_every_n"`
	LearningRate float32 `yaml:"learning_rate"`

	EvalPasses    int `yaml:"eval_passes"`
	PredictPasses int `yaml:"predict_passes"`

	// MergeTestData appends the whole prediction file to the held-out split
	// before it is evaluated and predicted.
	MergeTestData bool `yaml:"merge_test_data"`

	// TensorsToLog maps a log alias to a tensor name exposed by the estimator.
	TensorsToLog map[string]string `yaml:"tensors_to_log"`

	Model ModelConfig `yaml:"model"`
}

// ModelConfig sizes the convolutional regression network.
type ModelConfig struct {
	Filters1 int `yaml:"filters1"`
	Filters2 int `yaml:"filters2"`
	Kernel   int `yaml:"kernel"`
	Stride   int `yaml:"stride"`
	Hidden   int `yaml:"hidden"`
}

// ConvWidth returns the width left after both convolutions, or 0 if the
// input is too narrow for the kernel.
func (m ModelConfig) ConvWidth(width int) int {
	for range 2 {
		if width < m.Kernel {
			return 0
		}
		width = (width-m.Kernel)/m.Stride + 1
	}
	return width
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		TrainDataPath: "./data/training_data_normalized_features_chi_eps_N2.dat",
		TestDataPath:  "./data/prediction_data_normalized_features_chi_eps_N2.dat",
		ModelDir:      "./experiments/test/",
		PlotDir:       "./experiments/test/plots",
		Layout:        ScalarLayout(),
		SplitRatio:    0.85,
		Seed:          1234,
		TrainSteps:    1000,
		BatchSize:     100,
		LogEveryN:     50,
		LearningRate:  0.001,
		EvalPasses:    20,
		PredictPasses: 20,
		TensorsToLog:  map[string]string{},
		Model: ModelConfig{
			Filters1: 16,
			Filters2: 32,
			Kernel:   2,
			Stride:   1,
			Hidden:   64,
		},
	}
}

// Load reads a YAML file on top of Default. Unknown keys are rejected.
func Load(path string) (Config, error) {
	cfg := Default()

	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer func() {
		_ = f.Close()
	}()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if cfg.TensorsToLog == nil {
		cfg.TensorsToLog = map[string]string{}
	}
	return cfg, nil
}

// Validate checks the configuration for values the pipeline cannot run with.
func (c Config) Validate() error {
	switch {
	case c.TrainDataPath == "":
		return fmt.Errorf("%w: train_data is empty", ErrInvalid)
	case c.TestDataPath == "":
		return fmt.Errorf("%w: test_data is empty", ErrInvalid)
	case c.ModelDir == "":
		return fmt.Errorf("%w: model_dir is empty", ErrInvalid)
	case c.SplitRatio < 0 || c.SplitRatio > 1:
		return fmt.Errorf("%w: split_ratio %v outside [0, 1]", ErrInvalid, c.SplitRatio)
	case c.Layout.Channels <= 0 || c.Layout.Width <= 0:
		return fmt.Errorf("%w: layout %+v", ErrInvalid, c.Layout)
	case c.TrainSteps < 0:
		return fmt.Errorf("%w: train_steps %d", ErrInvalid, c.TrainSteps)
	case c.BatchSize <= 0:
		return fmt.Errorf("%w: batch_size %d", ErrInvalid, c.BatchSize)
	case c.LogEveryN <= 0:
		return fmt.Errorf("%w: log_every_n %d", ErrInvalid, c.LogEveryN)
	case c.LearningRate <= 0:
		return fmt.Errorf("%w: learning_rate %v", ErrInvalid, c.LearningRate)
	case c.EvalPasses <= 0 || c.PredictPasses <= 0:
		return fmt.Errorf("%w: passes must be positive (eval %d, predict %d)",
			ErrInvalid, c.EvalPasses, c.PredictPasses)
	case c.Model.Kernel <= 0 || c.Model.Stride <= 0:
		return fmt.Errorf("%w: kernel %d stride %d", ErrInvalid, c.Model.Kernel, c.Model.Stride)
	case c.Model.ConvWidth(c.Layout.Width) <= 0:
		return fmt.Errorf("%w: kernel %d stride %d leave no output for width %d",
			ErrInvalid, c.Model.Kernel, c.Model.Stride, c.Layout.Width)
	case c.Model.Filters1 <= 0 || c.Model.Filters2 <= 0 || c.Model.Hidden <= 0:
		return fmt.Errorf("%w: model sizes %+v", ErrInvalid, c.Model)
	}
	if len(c.Columns) != 0 && len(c.Columns) != c.Layout.Features()+1 {
		return fmt.Errorf("%w: %d column names for %d features plus label",
			ErrInvalid, len(c.Columns), c.Layout.Features())
	}
	return nil
}
