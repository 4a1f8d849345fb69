package prediction

import (
	"math"
	"strconv"
)

const (
	probEpsilon        = 1e-12
	temperatureEpsilon = 1e-6
)

// Recalibrate applies prior adjustment and temperature scaling to proba and
// renormalises. Priors are looked up by the class labels of ClassOrder; a class
// without a prior gets a uniform one. The prior step is skipped when tau is 0
// or no priors are published.
func Recalibrate(proba []float64, p Params) []float64 {
	logits := make([]float64, len(proba))
	for i, v := range proba {
		logits[i] = math.Log(clip(v, probEpsilon, 1))
	}

	if len(p.Priors) > 0 && p.Tau != 0 {
		classes := p.ClassOrder
		uniform := 1 / float64(len(classes))
		for i := range logits {
			prior := uniform
			if i < len(classes) {
				if v, ok := p.Priors[strconv.Itoa(classes[i])]; ok {
					prior = v
				}
			}
			logits[i] -= p.Tau * math.Log(clip(prior, probEpsilon, 1))
		}
	}

	t := math.Max(p.Temperature, temperatureEpsilon)
	for i := range logits {
		logits[i] /= t
	}
	return softmax(logits)
}

func clip(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Min(math.Max(v, lo), hi)
}
