package estimator

import (
	"sort"
	"strconv"
	"strings"
)

// Metric names returned by Evaluate.
const (
	MetricLoss       = "loss"
	MetricMAE        = "mae"
	MetricRMSE       = "rmse"
	MetricGlobalStep = "global_step"
)

// Metrics maps metric names to values.
type Metrics map[string]float64

// String formats the metrics as {name: value, ...} with sorted names.
func (m Metrics) String() string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteByte('{')
	for i, name := range names {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(strconv.Quote(name))
		b.WriteString(": ")
		b.WriteString(strconv.FormatFloat(m[name], 'g', -1, 64))
	}
	b.WriteByte('}')
	return b.String()
}
