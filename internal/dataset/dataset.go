// Package dataset loads the delimited feature/label files used for training.
//
// Each data row holds Layout.Features() feature values followed by one
// label (the mixing efficiency). Rows stay positionally aligned: row i of
// Features always belongs to Labels[i].
package dataset

import (
	"errors"
	"fmt"
	"math"

	"github.com/born-ml/osborn/internal/config"
)

// Sentinel errors.
var (
	// ErrEmpty is returned when a file contains no data rows.
	ErrEmpty = errors.New("dataset: no data rows")
	// ErrLayout is returned when a row or a dataset does not match the expected layout.
	ErrLayout = errors.New("dataset: layout mismatch")
	// ErrNonFinite is returned for NaN or infinite values in a row.
	ErrNonFinite = errors.New("dataset: non-finite value")
)

// DefaultColumns names the columns of the scalar layout.
var DefaultColumns = []string{"chi", "eps", "N2", "eff"}

// Dataset is an in-memory feature matrix with its label vector.
type Dataset struct {
	Layout   config.Layout
	Columns  []string
	Features []float32 // row-major, Len() x Layout.Features()
	Labels   []float32
}

// New builds a dataset from row-major features and labels.
func New(layout config.Layout, features, labels []float32) (*Dataset, error) {
	width := layout.Features()
	if width <= 0 {
		return nil, fmt.Errorf("%w: layout %+v", ErrLayout, layout)
	}
	if len(features) != len(labels)*width {
		return nil, fmt.Errorf("%w: %d feature values for %d labels of width %d",
			ErrLayout, len(features), len(labels), width)
	}
	return &Dataset{
		Layout:   layout,
		Columns:  defaultColumns(layout),
		Features: features,
		Labels:   labels,
	}, nil
}

// Len returns the number of samples.
func (d *Dataset) Len() int {
	return len(d.Labels)
}

// Width returns the number of feature values per sample.
func (d *Dataset) Width() int {
	return d.Layout.Features()
}

// Row returns the features of sample i. The slice aliases the dataset.
func (d *Dataset) Row(i int) []float32 {
	w := d.Width()
	return d.Features[i*w : (i+1)*w]
}

// LabelsFloat64 returns a float64 copy of the labels.
func (d *Dataset) LabelsFloat64() []float64 {
	out := make([]float64, len(d.Labels))
	for i, v := range d.Labels {
		out[i] = float64(v)
	}
	return out
}

// Subset returns a new dataset holding the given rows in the given order.
func (d *Dataset) Subset(indices []int) *Dataset {
	w := d.Width()
	out := &Dataset{
		Layout:   d.Layout,
		Columns:  d.Columns,
		Features: make([]float32, 0, len(indices)*w),
		Labels:   make([]float32, 0, len(indices)),
	}
	for _, i := range indices {
		out.Features = append(out.Features, d.Row(i)...)
		out.Labels = append(out.Labels, d.Labels[i])
	}
	return out
}

// Split partitions the dataset into train and eval parts.
//
// The first floor(ratio*Len()) rows go to train and the rest to eval, so
// the partition is deterministic and the parts are disjoint.
func (d *Dataset) Split(ratio float64) (train, eval *Dataset, err error) {
	if ratio < 0 || ratio > 1 || math.IsNaN(ratio) {
		return nil, nil, fmt.Errorf("dataset: split ratio %v outside [0, 1]", ratio)
	}
	n := d.Len()
	nTrain := int(math.Floor(ratio * float64(n)))

	trainIdx := make([]int, nTrain)
	for i := range trainIdx {
		trainIdx[i] = i
	}
	evalIdx := make([]int, n-nTrain)
	for i := range evalIdx {
		evalIdx[i] = nTrain + i
	}
	return d.Subset(trainIdx), d.Subset(evalIdx), nil
}

// Append concatenates two datasets with the same layout. Run uses it to
// fold the prediction file into the held-out split when
// Config.MergeTestData is set.
func Append(a, b *Dataset) (*Dataset, error) {
	if a.Layout != b.Layout {
		return nil, fmt.Errorf("%w: cannot append %+v to %+v", ErrLayout, b.Layout, a.Layout)
	}
	out := &Dataset{
		Layout:   a.Layout,
		Columns:  a.Columns,
		Features: make([]float32, 0, len(a.Features)+len(b.Features)),
		Labels:   make([]float32, 0, len(a.Labels)+len(b.Labels)),
	}
	out.Features = append(append(out.Features, a.Features...), b.Features...)
	out.Labels = append(append(out.Labels, a.Labels...), b.Labels...)
	return out, nil
}

func defaultColumns(layout config.Layout) []string {
	if layout == config.ScalarLayout() {
		return append([]string(nil), DefaultColumns...)
	}
	return nil
}
