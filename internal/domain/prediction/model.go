package prediction

import (
	"fmt"

	"github.com/butp-hub/destination-predictor/internal/domain/course"
	"github.com/butp-hub/destination-predictor/internal/domain/shared"
)

// ClassifierOutput is a recalibrated distribution and its 1-indexed arg-max.
type ClassifierOutput struct {
	Probabilities [NumClasses]float64
	Class         int
}

// Model bundles the loaded artifacts. It is built once per process and never
// mutated, so one value is shared by every evaluation.
type Model struct {
	columns    []string
	scaler     Scaler
	classifier Classifier
	params     Params
}

// NewModel validates and bundles the artifacts.
func NewModel(columns []string, scaler Scaler, classifier Classifier, params Params) (*Model, error) {
	if len(columns) == 0 {
		return nil, shared.WrapError("artifacts", "Validate", shared.ErrConfiguration,
			"feature column list is empty", nil)
	}
	if scaler == nil || classifier == nil {
		return nil, shared.NewDomainError("artifacts", "Validate", shared.ErrConfiguration,
			"scaler and classifier are required")
	}
	if err := params.Validate(); err != nil {
		return nil, shared.WrapError("artifacts", "Validate", shared.ErrConfiguration,
			"invalid model params", err)
	}
	cols := make([]string, len(columns))
	copy(cols, columns)
	return &Model{columns: cols, scaler: scaler, classifier: classifier, params: params}, nil
}

// Columns returns the feature columns in model order.
func (m *Model) Columns() []string {
	out := make([]string, len(m.columns))
	copy(out, m.columns)
	return out
}

// Params returns the recalibration parameters.
func (m *Model) Params() Params {
	return m.params
}

// Predict scales, scores and recalibrates one feature vector.
func (m *Model) Predict(features []float64) (ClassifierOutput, error) {
	if len(features) != len(m.columns) {
		return ClassifierOutput{}, shared.WrapError("classifier", "Predict", shared.ErrEvaluation,
			"feature vector length does not match model",
			fmt.Errorf("got %d, want %d", len(features), len(m.columns)))
	}
	scaled, err := m.scaler.Transform(features)
	if err != nil {
		return ClassifierOutput{}, err
	}
	raw, err := m.classifier.PredictProba(scaled)
	if err != nil {
		return ClassifierOutput{}, err
	}
	if len(raw) != NumClasses {
		return ClassifierOutput{}, shared.WrapError("classifier", "PredictProba", shared.ErrEvaluation,
			"classifier must return exactly 3 probabilities", fmt.Errorf("got %d", len(raw)))
	}

	proba := Recalibrate(raw, m.params)
	var out ClassifierOutput
	best := 0
	for i, p := range proba {
		out.Probabilities[i] = p
		if p > proba[best] {
			best = i
		}
	}
	out.Class = best + 1
	return out, nil
}

// Features builds the model input for one student from a score map.
// The row is scored on its own, so batch-mean filling sees a batch of one.
func (m *Model) Features(scores map[string]float64, catalog *course.Catalog, major shared.Major) Features {
	v := course.Aggregate(scores, catalog, major.Code())
	v = course.Impute(v)
	strength := AcademicStrength(v, m.params.StatsFor(major.String()))

	values := Assemble(v, strength, m.columns)
	ClipFeatures(values, m.columns, m.params.ClipRanges)
	FillBatchMeans([][]float64{values})

	return Features{Categories: v, Strength: strength, Values: values}
}

// ══════════════════════════════════════════════════════════════════════════════
// SCORER
// ══════════════════════════════════════════════════════════════════════════════

// Scorer evaluates score maps of one programme against a Model.
type Scorer struct {
	model   *Model
	catalog *course.Catalog
	major   shared.Major
}

// Scorer binds the model to a catalog and major.
func (m *Model) Scorer(catalog *course.Catalog, major shared.Major) *Scorer {
	return &Scorer{model: m, catalog: catalog, major: major}
}

// Evaluate returns the features and prediction for scores.
func (s *Scorer) Evaluate(scores map[string]float64) (Features, ClassifierOutput, error) {
	f := s.model.Features(scores, s.catalog, s.major)
	out, err := s.model.Predict(f.Values)
	if err != nil {
		return f, ClassifierOutput{}, err
	}
	return f, out, nil
}

// PredictClass returns only the predicted class for scores.
func (s *Scorer) PredictClass(scores map[string]float64) (int, error) {
	_, out, err := s.Evaluate(scores)
	if err != nil {
		return 0, err
	}
	return out.Class, nil
}
