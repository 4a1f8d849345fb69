package prediction

import (
	"fmt"
	"math"

	"github.com/butp-hub/destination-predictor/internal/domain/shared"
)

// Scaler standardises a feature vector before classification.
type Scaler interface {
	Transform(x []float64) ([]float64, error)
}

// Classifier maps a scaled feature vector to class probabilities.
type Classifier interface {
	PredictProba(x []float64) ([]float64, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// STANDARD SCALER
// ══════════════════════════════════════════════════════════════════════════════

// StandardScaler subtracts the training mean and divides by the training scale.
type StandardScaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// Validate checks that the scaler covers n features.
func (s *StandardScaler) Validate(n int) error {
	if len(s.Mean) != n || len(s.Scale) != n {
		return shared.WrapError("artifacts", "Validate", shared.ErrConfiguration,
			"scaler dimensions do not match feature columns",
			fmt.Errorf("mean=%d scale=%d columns=%d", len(s.Mean), len(s.Scale), n))
	}
	return nil
}

// Transform returns (x - mean) / scale. A zero scale is treated as 1 and NaN
// inputs stay NaN.
func (s *StandardScaler) Transform(x []float64) ([]float64, error) {
	if len(x) != len(s.Mean) {
		return nil, shared.WrapError("classifier", "Transform", shared.ErrEvaluation,
			"feature vector length does not match model",
			fmt.Errorf("got %d, want %d", len(x), len(s.Mean)))
	}
	out := make([]float64, len(x))
	for i, v := range x {
		scale := s.Scale[i]
		if scale == 0 || math.IsNaN(scale) {
			scale = 1
		}
		out[i] = (v - s.Mean[i]) / scale
	}
	return out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SOFTMAX CLASSIFIER
// ══════════════════════════════════════════════════════════════════════════════

// SoftmaxClassifier is a multinomial linear model: one weight row and bias per class.
type SoftmaxClassifier struct {
	Weights [][]float64 `json:"weights"`
	Bias    []float64   `json:"bias"`
}

// Validate checks the class count and that every row covers n features.
func (c *SoftmaxClassifier) Validate(n int) error {
	if len(c.Weights) != NumClasses || len(c.Bias) != NumClasses {
		return shared.WrapError("artifacts", "Validate", shared.ErrConfiguration,
			"classifier must have exactly 3 classes",
			fmt.Errorf("weights=%d bias=%d", len(c.Weights), len(c.Bias)))
	}
	for k, row := range c.Weights {
		if len(row) != n {
			return shared.WrapError("artifacts", "Validate", shared.ErrConfiguration,
				"classifier dimensions do not match feature columns",
				fmt.Errorf("class %d has %d weights, want %d", k+1, len(row), n))
		}
	}
	return nil
}

// PredictProba returns softmax(W·x + b). A NaN input contributes nothing,
// which is the training mean in scaled space.
func (c *SoftmaxClassifier) PredictProba(x []float64) ([]float64, error) {
	logits := make([]float64, len(c.Weights))
	for k, row := range c.Weights {
		if len(row) != len(x) {
			return nil, shared.ErrFeatureLength
		}
		z := c.Bias[k]
		for j, v := range x {
			if math.IsNaN(v) {
				continue
			}
			z += row[j] * v
		}
		logits[k] = z
	}
	return softmax(logits), nil
}

// softmax normalises logits after shifting by their maximum.
func softmax(z []float64) []float64 {
	maxZ := math.Inf(-1)
	for _, v := range z {
		if v > maxZ {
			maxZ = v
		}
	}
	out := make([]float64, len(z))
	var sum float64
	for i, v := range z {
		out[i] = math.Exp(v - maxZ)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
