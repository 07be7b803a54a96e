package estimator

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/born-ml/born/nn"
)

// CheckpointFile is the checkpoint name inside the model directory.
const CheckpointFile = "model.born"

// Checkpoint metadata keys.
const (
	metaGlobalStep = "global_step"
	metaRunID      = "run_id"
	metaLoss       = "loss"
)

// CheckpointPath returns the checkpoint location for this estimator.
func (e *Estimator[B]) CheckpointPath() string {
	return filepath.Join(e.cfg.ModelDir, CheckpointFile)
}

// save writes the model and the global step to a temporary file and
// renames it over the checkpoint.
func (e *Estimator[B]) save(loss float64) error {
	path := e.CheckpointPath()
	tmp := path + ".tmp"

	metadata := map[string]string{
		metaGlobalStep: strconv.FormatInt(e.globalStep, 10),
		metaRunID:      e.runID,
		metaLoss:       strconv.FormatFloat(loss, 'g', -1, 64),
	}
	if err := nn.Save(e.model, tmp, e.cfg.ModelName, metadata); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("estimator: save checkpoint: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("estimator: save checkpoint: %w", err)
	}
	e.logger.Info("saved checkpoint", "path", path, "step", e.globalStep)
	return nil
}

// restore loads the checkpoint if the model directory has one.
func (e *Estimator[B]) restore() error {
	path := e.CheckpointPath()
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	header, err := nn.Load(path, e.backend, e.model)
	if err != nil {
		return fmt.Errorf("estimator: restore %s: %w", path, err)
	}
	if header.ModelType != e.cfg.ModelName {
		return fmt.Errorf("estimator: restore %s: checkpoint holds %q, want %q",
			path, header.ModelType, e.cfg.ModelName)
	}
	if s, ok := header.Metadata[metaGlobalStep]; ok {
		step, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("estimator: restore %s: bad global step %q: %w", path, s, err)
		}
		e.globalStep = step
	}
	e.logger.Info("restored checkpoint", "path", path, "step", e.globalStep,
		"from_run", header.Metadata[metaRunID])
	return nil
}
