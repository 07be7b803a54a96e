package plot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPredictionsWritesImage(t *testing.T) {
	for _, ext := range []string{"png", "svg"} {
		t.Run(ext, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "plots", "eval."+ext)
			err := Predictions(path, "eval", []float64{0.1, 0.3, 0.2}, []float64{0.15, 0.25, 0.2})
			require.NoError(t, err)

			info, err := os.Stat(path)
			require.NoError(t, err)
			assert.Positive(t, info.Size())
		})
	}
}

func TestPredictionsRejectsBadInput(t *testing.T) {
	dir := t.TempDir()
	require.Error(t, Predictions(filepath.Join(dir, "a.png"), "", []float64{1}, []float64{1, 2}))
	require.Error(t, Predictions(filepath.Join(dir, "b.png"), "", nil, nil))
}
