package driver

import (
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"path/filepath"

	"github.com/born-ml/born/autodiff"
	"github.com/born-ml/born/backend/cpu"
	"github.com/born-ml/born/nn"

	"github.com/born-ml/osborn/internal/config"
	"github.com/born-ml/osborn/internal/dataset"
	"github.com/born-ml/osborn/internal/estimator"
	"github.com/born-ml/osborn/internal/metrics"
	"github.com/born-ml/osborn/internal/model"
	"github.com/born-ml/osborn/internal/plot"
)

// Plot file names written under Config.PlotDir.
const (
	EvalPlotFile = "eval_predictions.png"
	PredPlotFile = "pred_predictions.png"
)

// Run trains a model on the training file, evaluates it on the held-out
// split and on the test file, prints metrics and R² scores to out and
// writes the prediction plots. Both files are read before training starts.
// cfg must be valid.
func Run(cfg config.Config, out io.Writer, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	opts := dataset.Options{Layout: cfg.Layout, Columns: cfg.Columns}

	train, eval, err := dataset.LoadSplit(cfg.TrainDataPath, opts, cfg.SplitRatio)
	if err != nil {
		return err
	}
	logger.Info("loaded training data",
		"path", cfg.TrainDataPath, "train", train.Len(), "eval", eval.Len())

	test, err := dataset.Load(cfg.TestDataPath, opts)
	if err != nil {
		return err
	}
	logger.Info("loaded test data", "path", cfg.TestDataPath, "rows", test.Len())

	if cfg.MergeTestData {
		if eval, err = dataset.Append(eval, test); err != nil {
			return err
		}
		logger.Info("merged test data into held-out split", "eval", eval.Len())
	}

	backend := cpu.New()
	est, err := estimator.New(backend, modelFn(cfg), estimator.Config{
		ModelDir:     cfg.ModelDir,
		ModelName:    model.Name,
		LearningRate: cfg.LearningRate,
		Seed:         cfg.Seed,
		Logger:       logger,
	})
	if err != nil {
		return err
	}
	logger.Info("model", "name", model.Name, "global_step", est.GlobalStep(),
		"parameters", model.CountParameters(est.Model()))

	err = Train(est, train, TrainConfig{
		Steps:        cfg.TrainSteps,
		BatchSize:    cfg.BatchSize,
		LogEveryN:    cfg.LogEveryN,
		TensorsToLog: cfg.TensorsToLog,
		Seed:         cfg.Seed,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	evalMetrics, err := Evaluate(est, eval, cfg.EvalPasses)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, evalMetrics)

	testMetrics, err := Evaluate(est, test, cfg.EvalPasses)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, testMetrics)

	evalPred, err := Predict(est, eval, cfg.PredictPasses)
	if err != nil {
		return err
	}
	testPred, err := Predict(est, test, cfg.PredictPasses)
	if err != nil {
		return err
	}

	evalR2, err := metrics.R2Score(eval.LabelsFloat64(), evalPred)
	if err != nil {
		return fmt.Errorf("eval r2: %w", err)
	}
	predR2, err := metrics.R2Score(test.LabelsFloat64(), testPred)
	if err != nil {
		return fmt.Errorf("pred r2: %w", err)
	}
	fmt.Fprintln(out, estimator.Metrics{"Eval R2-Score": evalR2})
	fmt.Fprintln(out, estimator.Metrics{"Pred R2-Score": predR2})

	if cfg.PlotDir == "" {
		return nil
	}
	plots := []struct {
		file, title       string
		predicted, actual []float64
	}{
		{EvalPlotFile, "held-out split", evalPred, eval.LabelsFloat64()},
		{PredPlotFile, "prediction file", testPred, test.LabelsFloat64()},
	}
	for _, p := range plots {
		path := filepath.Join(cfg.PlotDir, p.file)
		if err := plot.Predictions(path, p.title, p.predicted, p.actual); err != nil {
			return err
		}
		logger.Info("wrote plot", "path", path)
	}
	return nil
}

type runBackend = *autodiff.Backend[*cpu.Backend]

func modelFn(cfg config.Config) estimator.ModelFn[runBackend] {
	return func(b runBackend, rng *rand.Rand) nn.Module[runBackend] {
		return model.New(b, cfg.Layout, cfg.Model, rng)
	}
}
