// Package inputs implements input functions: callables that supply
// batches of features and labels to the estimator during a phase.
//
// An input function streams the dataset NumEpochs times (forever when
// NumEpochs is zero), optionally reshuffling each epoch, and cuts the
// stream into batches of BatchSize. Batches may straddle epoch boundaries;
// only the final batch of a finite stream can be short. Every example is
// therefore emitted exactly NumEpochs times.
package inputs

import (
	"errors"
	"fmt"
	"io"
	"math/rand"

	"github.com/born-ml/osborn/internal/dataset"
)

// DefaultBatchSize is used when Config.BatchSize is zero.
const DefaultBatchSize = 128

// ErrNoData is returned when an input function is built over an empty dataset.
var ErrNoData = errors.New("inputs: dataset has no samples")

// Config controls batching.
type Config struct {
	BatchSize int
	// NumEpochs is the number of passes over the data; zero repeats forever.
	NumEpochs int
	Shuffle   bool
	// Seed drives shuffling. Each call of the input function restarts from it.
	Seed int64
}

// Batch is a contiguous slice of examples.
type Batch struct {
	Features []float32 // row-major, Size x Width
	Labels   []float32
	Size     int
	Width    int
}

// Func is an input function. Each call returns a fresh iterator.
type Func func() (*Iterator, error)

// FromDataset builds an input function over d.
func FromDataset(d *dataset.Dataset, cfg Config) Func {
	return func() (*Iterator, error) {
		if d.Len() == 0 {
			return nil, ErrNoData
		}
		if cfg.BatchSize < 0 || cfg.NumEpochs < 0 {
			return nil, fmt.Errorf("inputs: invalid config %+v", cfg)
		}
		if cfg.BatchSize == 0 {
			cfg.BatchSize = DefaultBatchSize
		}
		it := &Iterator{
			data: d,
			cfg:  cfg,
			rng:  rand.New(rand.NewSource(cfg.Seed)), //nolint:gosec // Deterministic shuffling for reproducible runs
		}
		it.startEpoch()
		return it, nil
	}
}

// Iterator yields batches until the configured epochs are exhausted.
type Iterator struct {
	data  *dataset.Dataset
	cfg   Config
	rng   *rand.Rand
	order []int
	pos   int
	epoch int // epochs started so far
}

// Next returns the next batch, or io.EOF once every epoch has been emitted.
func (it *Iterator) Next() (*Batch, error) {
	width := it.data.Width()
	b := &Batch{
		Features: make([]float32, 0, it.cfg.BatchSize*width),
		Labels:   make([]float32, 0, it.cfg.BatchSize),
		Width:    width,
	}
	for b.Size < it.cfg.BatchSize {
		if it.pos == len(it.order) {
			if it.cfg.NumEpochs > 0 && it.epoch >= it.cfg.NumEpochs {
				break
			}
			it.startEpoch()
		}
		idx := it.order[it.pos]
		it.pos++

		b.Features = append(b.Features, it.data.Row(idx)...)
		b.Labels = append(b.Labels, it.data.Labels[idx])
		b.Size++
	}
	if b.Size == 0 {
		return nil, io.EOF
	}
	return b, nil
}

// Epoch returns the number of epochs started so far.
func (it *Iterator) Epoch() int {
	return it.epoch
}

func (it *Iterator) startEpoch() {
	n := it.data.Len()
	if it.order == nil {
		it.order = make([]int, n)
	}
	for i := range it.order {
		it.order[i] = i
	}
	if it.cfg.Shuffle {
		it.rng.Shuffle(n, func(i, j int) {
			it.order[i], it.order[j] = it.order[j], it.order[i]
		})
	}
	it.pos = 0
	it.epoch++
}
