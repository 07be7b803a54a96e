// Package estimator runs training, evaluation and inference loops for a
// model on a Born backend.
//
// An Estimator owns the autodiff backend, the model built by a ModelFn,
// the Adam optimizer, the global step and the model directory. Training
// feeds batches from an input function, minimizes the mean squared error
// of the model's single output and writes a checkpoint to the model
// directory when it returns. Constructing an Estimator on a directory that
// already holds a checkpoint resumes from it.
//
// Example:
//
//	est, err := estimator.New(cpu.New(), fn, estimator.Config{ModelDir: "./run"})
//	err = est.Train(inputs.FromDataset(train, inputs.Config{BatchSize: 100, Shuffle: true}), 1000)
//	metrics, err := est.Evaluate(inputs.FromDataset(eval, inputs.Config{NumEpochs: 1}))
package estimator

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"os"

	"github.com/born-ml/born/autodiff"
	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/optim"
	"github.com/born-ml/born/tensor"
	"github.com/google/uuid"

	"github.com/born-ml/osborn/internal/inputs"
)

// Mode identifies the phase a model runs in.
type Mode int

// Modes.
const (
	ModeTrain Mode = iota
	ModeEval
	ModePredict
)

func (m Mode) String() string {
	switch m {
	case ModeTrain:
		return "train"
	case ModeEval:
		return "eval"
	case ModePredict:
		return "infer"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Names of the per-step values exposed to hooks.
const (
	TensorLoss            = "loss"
	TensorGlobalStep      = "global_step"
	TensorLearningRate    = "learning_rate"
	TensorPredictionsMean = "predictions_mean"
	TensorLabelsMean      = "labels_mean"
)

// Tensors lists every name a hook may request.
var Tensors = []string{
	TensorLoss,
	TensorGlobalStep,
	TensorLearningRate,
	TensorPredictionsMean,
	TensorLabelsMean,
}

// DefaultLogStepCountSteps is the default interval of the built-in loss log.
const DefaultLogStepCountSteps = 100

// ErrNoExamples is returned when evaluation or prediction sees no data.
var ErrNoExamples = errors.New("estimator: input produced no examples")

// ModelFn builds the model on the given backend. rng is seeded from
// Config.Seed and should drive any random initialization.
type ModelFn[B tensor.Backend] func(backend B, rng *rand.Rand) nn.Module[B]

// Config configures an Estimator.
type Config struct {
	// ModelDir holds the checkpoint. It is created if missing.
	ModelDir string
	// ModelName is recorded as the model type in checkpoints.
	ModelName string
	// LearningRate for Adam. Zero means 0.001.
	LearningRate float32
	// Seed for the model function's random source.
	Seed int64
	// LogStepCountSteps is the interval of the training loss log. Zero means DefaultLogStepCountSteps.
	LogStepCountSteps int
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Prediction is the model output for one example.
type Prediction struct {
	Efficiency float64
}

// Estimator trains, evaluates and runs a model.
type Estimator[B tensor.Backend] struct {
	cfg        Config
	backend    *autodiff.Backend[B]
	model      nn.Module[*autodiff.Backend[B]]
	optimizer  optim.Optimizer
	globalStep int64
	runID      string
	logger     *slog.Logger
}

// New builds the model with fn on an autodiff wrapper of base and restores
// the checkpoint in cfg.ModelDir when there is one.
func New[B tensor.Backend](base B, fn ModelFn[*autodiff.Backend[B]], cfg Config) (*Estimator[B], error) {
	if cfg.ModelDir == "" {
		return nil, errors.New("estimator: model dir is empty")
	}
	if cfg.ModelName == "" {
		cfg.ModelName = "model"
	}
	if cfg.LearningRate == 0 {
		cfg.LearningRate = 0.001
	}
	if cfg.LogStepCountSteps <= 0 {
		cfg.LogStepCountSteps = DefaultLogStepCountSteps
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(cfg.ModelDir, 0o750); err != nil {
		return nil, fmt.Errorf("estimator: create model dir: %w", err)
	}

	backend := autodiff.New(base)
	rng := rand.New(rand.NewSource(cfg.Seed)) //nolint:gosec // Intentional deterministic seed for reproducibility
	model := fn(backend, rng)

	e := &Estimator[B]{
		cfg:     cfg,
		backend: backend,
		model:   model,
		optimizer: optim.NewAdam(
			model.Parameters(),
			optim.AdamConfig{
				LR:    cfg.LearningRate,
				Betas: [2]float32{0.9, 0.999},
				Eps:   1e-8,
			},
			backend,
		),
		runID:  uuid.NewString(),
		logger: logger.With("model_dir", cfg.ModelDir),
	}

	if err := e.restore(); err != nil {
		return nil, err
	}
	return e, nil
}

// GlobalStep returns the number of optimizer steps taken, including those
// restored from a checkpoint.
func (e *Estimator[B]) GlobalStep() int64 {
	return e.globalStep
}

// ModelDir returns the checkpoint directory.
func (e *Estimator[B]) ModelDir() string {
	return e.cfg.ModelDir
}

// Model returns the underlying module.
func (e *Estimator[B]) Model() nn.Module[*autodiff.Backend[B]] {
	return e.model
}

// RunID identifies this estimator instance in the checkpoints it writes.
func (e *Estimator[B]) RunID() string {
	return e.runID
}

// Train runs steps optimizer steps on batches from input and then saves a
// checkpoint. It stops early, without error, if the input runs out.
func (e *Estimator[B]) Train(input inputs.Func, steps int, hooks ...Hook) error {
	if steps < 0 {
		return fmt.Errorf("estimator: negative step count %d", steps)
	}
	it, err := input()
	if err != nil {
		return fmt.Errorf("estimator: train input: %w", err)
	}
	for _, h := range hooks {
		if err := h.Begin(Tensors); err != nil {
			return err
		}
	}

	tape := e.backend.Tape()
	tape.Clear()
	tape.StartRecording()
	defer func() {
		tape.StopRecording()
		tape.Clear()
	}()

	e.logger.Info("training", "mode", ModeTrain, "steps", steps, "start_step", e.globalStep)

	loss := math.NaN()
	for i := range steps {
		batch, err := it.Next()
		if errors.Is(err, io.EOF) {
			e.logger.Info("input exhausted", "step", e.globalStep)
			break
		}
		if err != nil {
			return fmt.Errorf("estimator: train input: %w", err)
		}

		values, err := e.trainStep(batch)
		if err != nil {
			return err
		}
		e.globalStep++
		values[TensorGlobalStep] = float64(e.globalStep)
		loss = values[TensorLoss]

		for _, h := range hooks {
			h.AfterStep(ModeTrain, e.globalStep, values)
		}
		if i == 0 || e.globalStep%int64(e.cfg.LogStepCountSteps) == 0 {
			e.logger.Info("step", "step", e.globalStep, "loss", loss)
		}
	}

	e.logger.Info("loss for final step", "step", e.globalStep, "loss", loss)
	return e.save(loss)
}

// trainStep runs one forward/backward pass and one Adam update.
func (e *Estimator[B]) trainStep(batch *inputs.Batch) (map[string]float64, error) {
	e.optimizer.ZeroGrad()

	x, err := e.features(batch)
	if err != nil {
		return nil, err
	}
	pred := e.model.Forward(x)
	p := pred.Raw().AsFloat32()
	if len(p) != batch.Size {
		return nil, fmt.Errorf("estimator: model returned %d outputs for %d examples", len(p), batch.Size)
	}

	// d/dp mean((p-y)^2) = 2(p-y)/n, used as the seed of the backward pass.
	outputGrad, err := tensor.NewRaw(pred.Shape(), tensor.Float32, e.backend.Device())
	if err != nil {
		return nil, fmt.Errorf("estimator: allocate output gradient: %w", err)
	}
	g := outputGrad.AsFloat32()

	n := float64(batch.Size)
	var loss, predSum, labelSum float64
	for i, v := range p {
		d := float64(v) - float64(batch.Labels[i])
		loss += d * d
		g[i] = float32(2 * d / n)
		predSum += float64(v)
		labelSum += float64(batch.Labels[i])
	}
	loss /= n

	tape := e.backend.Tape()
	grads := tape.Backward(outputGrad, e.backend)
	e.optimizer.Step(grads)
	tape.Clear()

	return map[string]float64{
		TensorLoss:            loss,
		TensorLearningRate:    float64(e.optimizer.GetLR()),
		TensorPredictionsMean: predSum / n,
		TensorLabelsMean:      labelSum / n,
	}, nil
}

// Evaluate runs the model over every batch of input and returns aggregate
// metrics: loss (mean squared error per example), mae, rmse and global_step.
func (e *Estimator[B]) Evaluate(input inputs.Func) (Metrics, error) {
	it, err := input()
	if err != nil {
		return nil, fmt.Errorf("estimator: eval input: %w", err)
	}

	var sumSq, sumAbs float64
	count := 0
	err = e.inference(it, func(batch *inputs.Batch, out []float32) {
		for i, v := range out {
			d := float64(v) - float64(batch.Labels[i])
			sumSq += d * d
			sumAbs += math.Abs(d)
		}
		count += batch.Size
	})
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, ErrNoExamples
	}

	n := float64(count)
	m := Metrics{
		MetricLoss:       sumSq / n,
		MetricMAE:        sumAbs / n,
		MetricRMSE:       math.Sqrt(sumSq / n),
		MetricGlobalStep: float64(e.globalStep),
	}
	e.logger.Info("evaluation", "mode", ModeEval, "examples", count, "metrics", m.String())
	return m, nil
}

// Predict returns one prediction per example of input, in input order.
func (e *Estimator[B]) Predict(input inputs.Func) ([]Prediction, error) {
	it, err := input()
	if err != nil {
		return nil, fmt.Errorf("estimator: predict input: %w", err)
	}

	var preds []Prediction
	err = e.inference(it, func(_ *inputs.Batch, out []float32) {
		for _, v := range out {
			preds = append(preds, Prediction{Efficiency: float64(v)})
		}
	})
	if err != nil {
		return nil, err
	}
	if len(preds) == 0 {
		return nil, ErrNoExamples
	}
	e.logger.Debug("prediction", "mode", ModePredict, "examples", len(preds))
	return preds, nil
}

// inference runs forward passes without recording gradients.
func (e *Estimator[B]) inference(it *inputs.Iterator, visit func(*inputs.Batch, []float32)) error {
	tape := e.backend.Tape()
	wasRecording := tape.IsRecording()
	tape.StopRecording()
	defer func() {
		if wasRecording {
			tape.StartRecording()
		}
	}()

	for {
		batch, err := it.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("estimator: input: %w", err)
		}

		x, err := e.features(batch)
		if err != nil {
			return err
		}
		out := e.model.Forward(x).Raw().AsFloat32()
		if len(out) != batch.Size {
			return fmt.Errorf("estimator: model returned %d outputs for %d examples", len(out), batch.Size)
		}
		visit(batch, out)
	}
}

// features copies a batch into a [size, width] tensor on the backend.
func (e *Estimator[B]) features(batch *inputs.Batch) (*tensor.Tensor[float32, *autodiff.Backend[B]], error) {
	raw, err := tensor.NewRaw(tensor.Shape{batch.Size, batch.Width}, tensor.Float32, e.backend.Device())
	if err != nil {
		return nil, fmt.Errorf("estimator: allocate batch tensor: %w", err)
	}
	copy(raw.AsFloat32(), batch.Features)
	return tensor.New[float32](raw, e.backend), nil
}
