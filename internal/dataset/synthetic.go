package dataset

import (
	"math/rand"

	"github.com/born-ml/osborn/internal/config"
)

// Synthetic generates n scalar-layout samples with normalized features.
//
// The label follows the Osborn-Cox style efficiency chi/(chi+2*eps),
// damped by stratification and perturbed by small Gaussian noise. It is
// meant for smoke runs and tests when no simulation output is at hand.
func Synthetic(n int, rng *rand.Rand) *Dataset {
	layout := config.ScalarLayout()
	d := &Dataset{
		Layout:   layout,
		Columns:  defaultColumns(layout),
		Features: make([]float32, 0, n*layout.Features()),
		Labels:   make([]float32, 0, n),
	}
	for range n {
		chi := rng.Float64()
		eps := 0.05 + 0.95*rng.Float64()
		n2 := rng.Float64()

		eff := chi / (chi + 2*eps) / (1 + 0.25*n2)
		eff += 0.01 * rng.NormFloat64()

		d.Features = append(d.Features, float32(chi), float32(eps), float32(n2))
		d.Labels = append(d.Labels, float32(eff))
	}
	return d
}
