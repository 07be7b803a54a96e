package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 0.85, cfg.SplitRatio)
	assert.Equal(t, int64(1234), cfg.Seed)
	assert.Equal(t, 1000, cfg.TrainSteps)
	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, 50, cfg.LogEveryN)
	assert.Equal(t, 20, cfg.EvalPasses)
	assert.Equal(t, 20, cfg.PredictPasses)
	assert.Equal(t, 3, cfg.Layout.Features())
	assert.False(t, cfg.MergeTestData)
}

func TestProfileLayout(t *testing.T) {
	l := ProfileLayout()
	assert.Equal(t, NFeatures*NZProfile, l.Features())
}

func TestConvWidth(t *testing.T) {
	tests := []struct {
		name  string
		model ModelConfig
		width int
		want  int
	}{
		{"scalar", ModelConfig{Kernel: 2, Stride: 1}, 3, 1},
		{"too narrow", ModelConfig{Kernel: 3, Stride: 1}, 3, 0},
		{"profile strided", ModelConfig{Kernel: 5, Stride: 2}, 512, 125},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.model.ConvWidth(tt.width))
		})
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty train path", func(c *Config) { c.TrainDataPath = "" }},
		{"empty test path", func(c *Config) { c.TestDataPath = "" }},
		{"empty model dir", func(c *Config) { c.ModelDir = "" }},
		{"ratio above one", func(c *Config) { c.SplitRatio = 1.5 }},
		{"negative ratio", func(c *Config) { c.SplitRatio = -0.1 }},
		{"zero batch", func(c *Config) { c.BatchSize = 0 }},
		{"zero log interval", func(c *Config) { c.LogEveryN = 0 }},
		{"zero passes", func(c *Config) { c.PredictPasses = 0 }},
		{"kernel too wide", func(c *Config) { c.Model.Kernel = 4 }},
		{"column count", func(c *Config) { c.Columns = []string{"chi", "eff"} }},
		{"no learning rate", func(c *Config) { c.LearningRate = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	content := `
train_data: train.dat
model_dir: out
train_steps: 10
merge_test_data: true
tensors_to_log:
  l: loss
model:
  hidden: 8
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "train.dat", cfg.TrainDataPath)
	assert.Equal(t, "out", cfg.ModelDir)
	assert.Equal(t, 10, cfg.TrainSteps)
	assert.True(t, cfg.MergeTestData)
	assert.Equal(t, map[string]string{"l": "loss"}, cfg.TensorsToLog)
	assert.Equal(t, 8, cfg.Model.Hidden)
	// Keys absent from the file keep their defaults.
	assert.Equal(t, 16, cfg.Model.Filters1)
	assert.Equal(t, 0.85, cfg.SplitRatio)
	require.NoError(t, cfg.Validate())
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte("trian_steps: 3\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}
