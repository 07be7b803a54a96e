// Package driver wires datasets, input functions and the estimator into
// the train / evaluate / predict sequence of a run.
package driver

import (
	"fmt"
	"log/slog"

	"github.com/born-ml/born/tensor"

	"github.com/born-ml/osborn/internal/dataset"
	"github.com/born-ml/osborn/internal/estimator"
	"github.com/born-ml/osborn/internal/inputs"
)

// Defaults of the wrappers.
const (
	DefaultBatchSize = 100
	DefaultLogEveryN = 50
	DefaultPasses    = 20
)

// TrainConfig configures Train. Zero BatchSize and LogEveryN take the
// defaults above.
type TrainConfig struct {
	// Steps is the exact number of optimizer steps. Zero trains nothing.
	Steps     int
	BatchSize int
	LogEveryN int
	// TensorsToLog maps log aliases to estimator tensor names.
	TensorsToLog map[string]string
	// Seed drives shuffling.
	Seed int64
	// Logger receives the tensor log. Nil means slog.Default().
	Logger *slog.Logger
}

// Train runs cfg.Steps optimizer steps over d, shuffled and repeated
// without end, logging cfg.TensorsToLog every cfg.LogEveryN steps. The
// trained model is left in the estimator's model directory.
func Train[B tensor.Backend](est *estimator.Estimator[B], d *dataset.Dataset, cfg TrainConfig) error {
	if cfg.BatchSize == 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.LogEveryN == 0 {
		cfg.LogEveryN = DefaultLogEveryN
	}

	input := inputs.FromDataset(d, inputs.Config{
		BatchSize: cfg.BatchSize,
		NumEpochs: 0,
		Shuffle:   true,
		Seed:      cfg.Seed,
	})
	hook := estimator.NewLoggingTensorHook(cfg.TensorsToLog, cfg.LogEveryN, cfg.Logger)

	if err := est.Train(input, cfg.Steps, hook); err != nil {
		return fmt.Errorf("train: %w", err)
	}
	return nil
}

// Evaluate runs the evaluation loop over passes unshuffled epochs of d.
func Evaluate[B tensor.Backend](est *estimator.Estimator[B], d *dataset.Dataset, passes int) (estimator.Metrics, error) {
	if passes <= 0 {
		passes = DefaultPasses
	}
	input := inputs.FromDataset(d, inputs.Config{NumEpochs: passes})

	m, err := est.Evaluate(input)
	if err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}
	return m, nil
}

// Predict runs inference over passes unshuffled epochs of d and returns
// the per-sample mean efficiency across passes. The result always has
// d.Len() entries.
func Predict[B tensor.Backend](est *estimator.Estimator[B], d *dataset.Dataset, passes int) ([]float64, error) {
	if passes <= 0 {
		passes = DefaultPasses
	}
	input := inputs.FromDataset(d, inputs.Config{NumEpochs: passes})

	preds, err := est.Predict(input)
	if err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}

	n := d.Len()
	if len(preds) != passes*n {
		return nil, fmt.Errorf("predict: got %d predictions, want %d passes x %d samples",
			len(preds), passes, n)
	}

	// preds is a passes x n grid in row-major order.
	mean := make([]float64, n)
	for pass := range passes {
		row := preds[pass*n : (pass+1)*n]
		for i, p := range row {
			mean[i] += p.Efficiency
		}
	}
	for i := range mean {
		mean[i] /= float64(passes)
	}
	return mean, nil
}
