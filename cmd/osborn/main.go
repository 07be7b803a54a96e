// Package main provides the osborn command: train the mixing-efficiency
// regressor, evaluate it and plot its predictions.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os"

	"github.com/klauspost/cpuid/v2"

	"github.com/born-ml/osborn/internal/config"
	"github.com/born-ml/osborn/internal/dataset"
	"github.com/born-ml/osborn/internal/driver"
)

const version = "v0.1.0-dev"

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "version":
			fmt.Printf("osborn %s\n", version)
			return
		case "synth":
			if err := synth(os.Args[2:]); err != nil {
				fmt.Fprintf(os.Stderr, "osborn synth: %v\n", err)
				os.Exit(1)
			}
			return
		}
	}

	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		slog.Error("run failed", "err", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := newFlagSet()
	if err := fs.Parse(args); err != nil {
		return err
	}

	level := slog.LevelInfo
	if fs.Lookup("v").Value.(flag.Getter).Get().(bool) {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg := config.Default()
	if path := fs.Lookup("config").Value.String(); path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return err
		}
	}
	applyFlags(&cfg, fs)
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger.Info("osborn",
		"version", version,
		"cpu", cpuid.CPU.BrandName,
		"cores", cpuid.CPU.LogicalCores,
		"avx2", cpuid.CPU.Supports(cpuid.AVX2),
	)
	logger.Debug("configuration", "config", fmt.Sprintf("%+v", cfg))

	return driver.Run(cfg, os.Stdout, logger)
}

func newFlagSet() *flag.FlagSet {
	defaults := config.Default()
	fs := flag.NewFlagSet("osborn", flag.ContinueOnError)
	fs.String("config", "", "YAML run configuration (defaults are used when empty)")
	fs.String("train-data", "", "training data file, split into train and held-out parts")
	fs.String("test-data", "", "prediction data file")
	fs.String("model-dir", "", "checkpoint directory")
	fs.String("plot-dir", "", "directory for prediction plots")
	fs.Int("steps", defaults.TrainSteps, "training steps")
	fs.Int64("seed", defaults.Seed, "random seed")
	fs.Bool("v", false, "debug logging")
	return fs
}

// applyFlags copies the flags that were set on the command line into cfg,
// overriding values from the configuration file.
func applyFlags(cfg *config.Config, fs *flag.FlagSet) {
	fs.Visit(func(f *flag.Flag) {
		value := f.Value.(flag.Getter).Get()
		switch f.Name {
		case "train-data":
			cfg.TrainDataPath = value.(string)
		case "test-data":
			cfg.TestDataPath = value.(string)
		case "model-dir":
			cfg.ModelDir = value.(string)
		case "plot-dir":
			cfg.PlotDir = value.(string)
		case "steps":
			cfg.TrainSteps = value.(int)
		case "seed":
			cfg.Seed = value.(int64)
		}
	})
}

// synth writes a synthetic scalar-layout dataset for smoke runs.
func synth(args []string) error {
	fs := flag.NewFlagSet("osborn synth", flag.ContinueOnError)
	out := fs.String("o", "", "output file")
	n := fs.Int("n", 1000, "number of samples")
	seed := fs.Int64("seed", 1234, "random seed")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *out == "" {
		return errors.New("-o is required")
	}
	if *n <= 0 {
		return fmt.Errorf("-n must be positive, got %d", *n)
	}

	rng := rand.New(rand.NewSource(*seed)) //nolint:gosec // Intentional deterministic seed for reproducibility
	if err := dataset.Save(*out, dataset.Synthetic(*n, rng), 0); err != nil {
		return err
	}
	fmt.Printf("wrote %d samples to %s\n", *n, *out)
	return nil
}
