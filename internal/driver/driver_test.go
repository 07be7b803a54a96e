package driver

import (
	"bytes"
	"io"
	"log/slog"
	"math/rand"
	"path/filepath"
	"strings"
	"testing"

	"github.com/born-ml/born/backend/cpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/osborn/internal/config"
	"github.com/born-ml/osborn/internal/dataset"
	"github.com/born-ml/osborn/internal/estimator"
	"github.com/born-ml/osborn/internal/model"
)

var smallModel = config.ModelConfig{Filters1: 4, Filters2: 4, Kernel: 2, Stride: 1, Hidden: 8}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func synthetic(n int, seed int64) *dataset.Dataset {
	return dataset.Synthetic(n, rand.New(rand.NewSource(seed))) //nolint:gosec // Deterministic test data
}

func newEstimator(t *testing.T) *estimator.Estimator[*cpu.Backend] {
	t.Helper()
	cfg := config.Default()
	cfg.Model = smallModel
	est, err := estimator.New(cpu.New(), modelFn(cfg), estimator.Config{
		ModelDir:     t.TempDir(),
		ModelName:    model.Name,
		LearningRate: 0.01,
		Seed:         1234,
		Logger:       quietLogger(),
	})
	require.NoError(t, err)
	return est
}

func TestTrainRunsExactSteps(t *testing.T) {
	est := newEstimator(t)

	// 30 examples in batches of 100 would end an epoch every step; the
	// unbounded input keeps going.
	err := Train(est, synthetic(30, 1), TrainConfig{Steps: 12, Logger: quietLogger()})
	require.NoError(t, err)
	assert.Equal(t, int64(12), est.GlobalStep())
	assert.FileExists(t, est.CheckpointPath())
}

func TestTrainLogsTensors(t *testing.T) {
	var buf bytes.Buffer
	est := newEstimator(t)

	err := Train(est, synthetic(50, 2), TrainConfig{
		Steps:        60,
		BatchSize:    10,
		TensorsToLog: map[string]string{"mse": estimator.TensorLoss, "step": estimator.TensorGlobalStep},
		Logger:       slog.New(slog.NewTextHandler(&buf, nil)),
	})
	require.NoError(t, err)

	// Default interval of 50: steps 1 and 51.
	assert.Equal(t, 2, strings.Count(buf.String(), "msg=tensors"))
	assert.Contains(t, buf.String(), "mse=")
}

func TestTrainRejectsUnknownTensor(t *testing.T) {
	est := newEstimator(t)
	err := Train(est, synthetic(20, 3), TrainConfig{
		Steps:        5,
		TensorsToLog: map[string]string{"p": "probabilities"},
		Logger:       quietLogger(),
	})
	require.ErrorIs(t, err, estimator.ErrUnknownTensor)
}

func TestEvaluateReturnsMetrics(t *testing.T) {
	est := newEstimator(t)
	d := synthetic(25, 4)

	m, err := Evaluate(est, d, 0)
	require.NoError(t, err)
	for _, name := range []string{estimator.MetricLoss, estimator.MetricMAE, estimator.MetricRMSE, estimator.MetricGlobalStep} {
		assert.Contains(t, m, name)
	}

	// A frozen model gives the same loss over one pass and over many.
	one, err := Evaluate(est, d, 1)
	require.NoError(t, err)
	assert.InDelta(t, one[estimator.MetricLoss], m[estimator.MetricLoss], 1e-7)
}

func TestPredictLength(t *testing.T) {
	est := newEstimator(t)
	for _, tt := range []struct {
		n, passes int
	}{
		{1, 1},
		{7, 3},
		{130, 2}, // spans batch boundaries
		{40, 0},  // default passes
	} {
		d := synthetic(tt.n, int64(tt.n))
		got, err := Predict(est, d, tt.passes)
		require.NoError(t, err)
		assert.Len(t, got, tt.n)
	}
}

func TestPredictAveragesPasses(t *testing.T) {
	est := newEstimator(t)
	d := synthetic(9, 5)

	one, err := Predict(est, d, 1)
	require.NoError(t, err)
	many, err := Predict(est, d, 4)
	require.NoError(t, err)

	assert.InDeltaSlice(t, one, many, 1e-6)
}

func TestPredictEmptyDataset(t *testing.T) {
	est := newEstimator(t)
	empty := &dataset.Dataset{Layout: config.ScalarLayout()}
	_, err := Predict(est, empty, 2)
	require.Error(t, err)
}

func writeSynthetic(t *testing.T, path string, n int, seed int64) {
	t.Helper()
	require.NoError(t, dataset.Save(path, synthetic(n, seed), 0))
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.TrainDataPath = filepath.Join(dir, "train.dat")
	cfg.TestDataPath = filepath.Join(dir, "test.dat")
	cfg.ModelDir = filepath.Join(dir, "model")
	cfg.PlotDir = filepath.Join(dir, "plots")
	cfg.TrainSteps = 40
	cfg.BatchSize = 20
	cfg.EvalPasses = 2
	cfg.PredictPasses = 2
	cfg.Model = smallModel
	cfg.TensorsToLog = map[string]string{"loss": estimator.TensorLoss}
	require.NoError(t, cfg.Validate())

	writeSynthetic(t, cfg.TrainDataPath, 100, 1)
	writeSynthetic(t, cfg.TestDataPath, 30, 2)

	var out bytes.Buffer
	require.NoError(t, Run(cfg, &out, quietLogger()))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], `"loss": `)
	assert.Contains(t, lines[0], `"global_step": 40`)
	assert.Contains(t, lines[1], `"loss": `)
	assert.True(t, strings.HasPrefix(lines[2], `{"Eval R2-Score": `), lines[2])
	assert.True(t, strings.HasPrefix(lines[3], `{"Pred R2-Score": `), lines[3])

	assert.FileExists(t, filepath.Join(cfg.ModelDir, estimator.CheckpointFile))
	assert.FileExists(t, filepath.Join(cfg.PlotDir, EvalPlotFile))
	assert.FileExists(t, filepath.Join(cfg.PlotDir, PredPlotFile))
}

func TestRunMissingTrainFile(t *testing.T) {
	cfg := config.Default()
	cfg.TrainDataPath = filepath.Join(t.TempDir(), "missing.dat")
	cfg.ModelDir = t.TempDir()

	err := Run(cfg, io.Discard, quietLogger())
	require.Error(t, err)
}

func TestRunMissingTestFile(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.TrainDataPath = filepath.Join(dir, "train.dat")
	cfg.TestDataPath = filepath.Join(dir, "missing.dat")
	cfg.ModelDir = filepath.Join(dir, "model")
	cfg.PlotDir = ""
	cfg.TrainSteps = 2
	cfg.EvalPasses = 1
	cfg.Model = smallModel
	writeSynthetic(t, cfg.TrainDataPath, 40, 3)

	var out bytes.Buffer
	err := Run(cfg, &out, quietLogger())
	require.Error(t, err)
	// Both files are read before training.
	assert.Empty(t, out.String())
	assert.NoFileExists(t, filepath.Join(cfg.ModelDir, estimator.CheckpointFile))
}

func runConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.TrainDataPath = filepath.Join(dir, "train.dat")
	cfg.TestDataPath = filepath.Join(dir, "test.dat")
	cfg.ModelDir = filepath.Join(dir, "model")
	cfg.PlotDir = ""
	cfg.TrainSteps = 5
	cfg.BatchSize = 20
	cfg.EvalPasses = 1
	cfg.PredictPasses = 1
	cfg.Model = smallModel
	writeSynthetic(t, cfg.TrainDataPath, 100, 1)
	writeSynthetic(t, cfg.TestDataPath, 30, 2)
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestRunZeroStepsDoesNotTrain(t *testing.T) {
	cfg := runConfig(t)
	cfg.TrainSteps = 0
	require.NoError(t, cfg.Validate())

	var out bytes.Buffer
	require.NoError(t, Run(cfg, &out, quietLogger()))
	assert.Contains(t, out.String(), `"global_step": 0`)

	est, err := estimator.New(cpu.New(), modelFn(cfg), estimator.Config{
		ModelDir:  cfg.ModelDir,
		ModelName: model.Name,
		Logger:    quietLogger(),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), est.GlobalStep())
}

func TestTrainZeroSteps(t *testing.T) {
	est := newEstimator(t)
	require.NoError(t, Train(est, synthetic(30, 1), TrainConfig{Steps: 0, Logger: quietLogger()}))
	assert.Equal(t, int64(0), est.GlobalStep())
}

func TestRunMergeTestData(t *testing.T) {
	cfg := runConfig(t)
	cfg.PlotDir = filepath.Join(filepath.Dir(cfg.ModelDir), "plots")
	cfg.MergeTestData = true

	var out, logs bytes.Buffer
	require.NoError(t, Run(cfg, &out, slog.New(slog.NewTextHandler(&logs, nil))))

	// 15 held-out rows plus the 30 rows of the test file.
	assert.Contains(t, logs.String(), "examples=45 ")
	assert.Contains(t, logs.String(), "examples=30 ")
	assert.Len(t, strings.Split(strings.TrimSpace(out.String()), "\n"), 4)
	assert.FileExists(t, filepath.Join(cfg.PlotDir, EvalPlotFile))
}
