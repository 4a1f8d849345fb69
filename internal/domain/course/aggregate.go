package course

import (
	"math"
)

// Vector holds one value per category in feature order; NaN means unknown.
type Vector [NumCategories]float64

// UnknownVector returns a vector with every category unknown.
func UnknownVector() Vector {
	var v Vector
	for i := range v {
		v[i] = math.NaN()
	}
	return v
}

// Get returns the value of c, NaN if unknown or not in the closed set.
func (v Vector) Get(c Category) float64 {
	i := c.index()
	if i < 0 {
		return math.NaN()
	}
	return v[i]
}

// Known reports whether c has an observed or imputed value.
func (v Vector) Known(c Category) bool {
	return !math.IsNaN(v.Get(c))
}

// With returns a copy of v with c set to value.
func (v Vector) With(c Category, value float64) Vector {
	if i := c.index(); i >= 0 {
		v[i] = value
	}
	return v
}

// Map returns the vector keyed by feature name.
func (v Vector) Map() map[string]float64 {
	out := make(map[string]float64, NumCategories)
	for i, c := range categories {
		out[string(c)] = v[i]
	}
	return out
}

// Aggregate folds scores into credit-weighted category averages over the
// catalog's required courses. Scores outside [0,100] and courses whose category
// is not in the closed set are skipped. The major is informational only.
//
// Aggregate has no side effects and may be called any number of times with
// hypothetical score maps.
func Aggregate(scores map[string]float64, catalog *Catalog, major string) Vector {
	_ = major

	var num, den [NumCategories]float64
	for _, c := range catalog.courses {
		i := c.Category.index()
		if i < 0 {
			continue
		}
		g, ok := scores[c.Name]
		if !ok || math.IsNaN(g) || g < 0 || g > 100 {
			continue
		}
		num[i] += g * c.Credit
		den[i] += c.Credit
	}

	out := UnknownVector()
	for i := range out {
		if den[i] > 0 {
			out[i] = num[i] / den[i]
		}
	}
	return out
}

// Merge returns actual overlaid with plan; plan wins on conflicts.
func Merge(actual, plan map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(actual)+len(plan))
	for k, v := range actual {
		out[k] = v
	}
	for k, v := range plan {
		out[k] = v
	}
	return out
}
