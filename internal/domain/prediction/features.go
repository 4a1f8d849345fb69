package prediction

import (
	"math"

	"github.com/butp-hub/destination-predictor/internal/domain/course"
)

// Features is one student's assembled model input.
type Features struct {
	Categories course.Vector // after imputation, before clipping
	Strength   float64
	Values     []float64 // ordered per the model's feature columns
}

// AcademicStrength is the mean z-score over the categories that are known and
// whose baseline has a positive standard deviation. It is 0 when no category
// qualifies.
func AcademicStrength(v course.Vector, stats map[string]StrengthStat) float64 {
	var (
		sum float64
		n   int
	)
	for _, c := range course.Categories() {
		if !v.Known(c) {
			continue
		}
		st, ok := stats[c.String()]
		if !ok || math.IsNaN(st.Std) || st.Std <= 0 || math.IsNaN(st.Mean) {
			continue
		}
		sum += (v.Get(c) - st.Mean) / st.Std
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// Assemble orders the category values and strength per columns.
// Columns the model declares but the vector does not provide stay NaN.
func Assemble(v course.Vector, strength float64, columns []string) []float64 {
	named := v.Map()
	named[AcademicStrengthColumn] = strength

	out := make([]float64, len(columns))
	for i, col := range columns {
		val, ok := named[col]
		if !ok {
			val = math.NaN()
		}
		out[i] = val
	}
	return out
}

// ClipFeatures applies the published clip ranges in place.
func ClipFeatures(values []float64, columns []string, clips map[string]ClipRange) {
	if len(clips) == 0 {
		return
	}
	for i, col := range columns {
		if r, ok := clips[col]; ok && i < len(values) {
			values[i] = r.Apply(values[i])
		}
	}
}

// FillBatchMeans replaces each NaN with the mean of the known values of its
// column across the batch. A column with no known value stays NaN.
func FillBatchMeans(batch [][]float64) {
	if len(batch) == 0 {
		return
	}
	width := len(batch[0])
	for j := 0; j < width; j++ {
		var (
			sum float64
			n   int
		)
		for _, row := range batch {
			if j < len(row) && !math.IsNaN(row[j]) {
				sum += row[j]
				n++
			}
		}
		if n == 0 {
			continue
		}
		mean := sum / float64(n)
		for _, row := range batch {
			if j < len(row) && math.IsNaN(row[j]) {
				row[j] = mean
			}
		}
	}
}
