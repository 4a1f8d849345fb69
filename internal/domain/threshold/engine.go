package threshold

import (
	"fmt"
	"math"

	"github.com/butp-hub/destination-predictor/internal/domain/course"
	"github.com/butp-hub/destination-predictor/internal/domain/shared"
)

// Target-2 selection prefers a second interval starting strictly below this score.
const secondIntervalCutoff = 70

// Target-1 fallback sits this far above s2.
const fallbackStep = 10

// Bounds is the inclusive range of swept uniform scores.
type Bounds struct {
	Min int `json:"min_grade" yaml:"min_grade"`
	Max int `json:"max_grade" yaml:"max_grade"`
}

// DefaultBounds returns the 60..90 sweep.
func DefaultBounds() Bounds {
	return Bounds{Min: 60, Max: 90}
}

// Validate checks Min < Max within [0,100].
func (b Bounds) Validate() error {
	if b.Min < 0 || b.Max > 100 || b.Min >= b.Max {
		return shared.WrapError("threshold", "Validate", shared.ErrConfiguration,
			"min grade must be below max grade and both within [0,100]",
			fmt.Errorf("got [%d, %d]", b.Min, b.Max))
	}
	return nil
}

// Points returns the number of swept scores.
func (b Bounds) Points() int {
	return b.Max - b.Min + 1
}

// Predictor returns the predicted class for a full score map.
type Predictor interface {
	PredictClass(scores map[string]float64) (int, error)
}

// PredictorFunc adapts a function to Predictor.
type PredictorFunc func(scores map[string]float64) (int, error)

// PredictClass calls f.
func (f PredictorFunc) PredictClass(scores map[string]float64) (int, error) {
	return f(scores)
}

// Engine runs the uniform-threshold search for one catalog. It holds no
// per-student state and is safe for concurrent use.
type Engine struct {
	catalog *course.Catalog
	bounds  Bounds
}

// NewEngine creates an engine over catalog with the given sweep bounds.
func NewEngine(catalog *course.Catalog, bounds Bounds) (*Engine, error) {
	if catalog == nil {
		return nil, shared.NewDomainError("threshold", "NewEngine", shared.ErrConfiguration, "catalog is required")
	}
	if err := bounds.Validate(); err != nil {
		return nil, err
	}
	return &Engine{catalog: catalog, bounds: bounds}, nil
}

// Catalog returns the catalog the engine searches over.
func (e *Engine) Catalog() *course.Catalog {
	return e.catalog
}

// Bounds returns the sweep bounds.
func (e *Engine) Bounds() Bounds {
	return e.bounds
}

// Evaluate searches the minimum uniform scores for scores. The predictor is
// called exactly once per swept score, and never when no course is missing.
func (e *Engine) Evaluate(scores map[string]float64, p Predictor) (Result, error) {
	missing, credits := e.catalog.Missing(scores)
	if len(missing) == 0 {
		return noMissingCourses(), nil
	}

	names := make([]string, len(missing))
	for i, c := range missing {
		names[i] = c.Name
	}

	sweep, err := e.sweep(scores, names, p)
	if err != nil {
		return Result{}, err
	}

	res := e.resolve(sweep)
	res.UnknownCredits = credits
	res.MissingCourses = names
	res.Cost1 = e.cost(res.S1, credits)
	res.Cost2 = e.cost(res.S2, credits)
	res.Target1Scores = e.targetScores(names, res.S1)
	res.Target2Scores = e.targetScores(names, res.S2)
	return res, nil
}

// sweep hypothesises every missing course at each score and records the class.
func (e *Engine) sweep(scores map[string]float64, missing []string, p Predictor) (Sweep, error) {
	out := make(Sweep, 0, e.bounds.Points())
	plan := make(map[string]float64, len(missing))
	for s := e.bounds.Min; s <= e.bounds.Max; s++ {
		for _, name := range missing {
			plan[name] = float64(s)
		}
		class, err := p.PredictClass(course.Merge(scores, plan))
		if err != nil {
			return nil, shared.WrapError("threshold", "Sweep", shared.ErrEvaluation,
				fmt.Sprintf("prediction failed at uniform score %d", s), err)
		}
		out = append(out, Point{Score: s, Class: class})
	}
	return out, nil
}

// resolve extracts intervals and applies the selection policies.
func (e *Engine) resolve(sweep Sweep) Result {
	lo, hi := e.bounds.Min, e.bounds.Max

	r1 := ExtractIntervals(sweep, 1)
	r2 := ExtractIntervals(sweep, 2)

	res := Result{
		Ranges1:      r1,
		Ranges2:      r2,
		Multi1:       len(r1) >= 2,
		Multi2:       len(r2) >= 2,
		DominatedBy1: len(r1) == 1 && r1[0] == Interval{Lo: lo, Hi: hi},
	}

	rawS1 := hi
	if len(r1) > 0 {
		rawS1 = r1[0].Lo
	}
	rawS2 := lo
	if len(r2) > 0 {
		rawS2 = r2[0].Lo
	}

	s2, p2 := rawS2, PolicyFirstLeftOrSingle
	if rawS2 == lo && res.Multi2 {
		if second := r2[1].Lo; second < secondIntervalCutoff {
			s2, p2 = second, PolicyUseSecondLeftLt70
		} else {
			p2 = PolicyKeep60StableGe70
		}
	}

	s1, p1 := rawS1, PolicyFirstLeft
	if rawS1 >= hi {
		p1 = PolicyUnreachable
	}

	// With no class-1 interval at all s1 stays unreachable.
	if s1 <= s2 && len(r1) > 0 {
		s1, p1 = e.reconcile(sweep, r1, s2)
		if p1 == PolicyFallbackPlus10Cap90 {
			class, _ := sweep.ClassAt(s1)
			res.FallbackUnverified = class != 1
		}
	}

	res.S1, res.Policy1 = float64(s1), p1
	res.S2, res.Policy2 = float64(s2), p2
	return res
}

// reconcile moves s1 above s2. The fallback is not checked against the sweep.
func (e *Engine) reconcile(sweep Sweep, r1 Intervals, s2 int) (int, Policy) {
	widest, _ := r1.Widest()
	for s := max(s2+1, widest.Lo); s <= widest.Hi; s++ {
		if class, ok := sweep.ClassAt(s); ok && class == 1 {
			return s, PolicyAdjustInWidestInterval
		}
	}

	next, found := 0, false
	for _, r := range r1 {
		if r.Lo > s2 && (!found || r.Lo < next) {
			next, found = r.Lo, true
		}
	}
	if found {
		return next, PolicyUseNextIntervalLeft
	}

	return min(s2+fallbackStep, e.bounds.Max), PolicyFallbackPlus10Cap90
}

// cost is credits times the distance above the floor, NaN when unreachable.
func (e *Engine) cost(s, credits float64) float64 {
	if s >= float64(e.bounds.Max) {
		return math.NaN()
	}
	return credits * (s - float64(e.bounds.Min))
}

// targetScores assigns s to every missing course, empty when unreachable.
func (e *Engine) targetScores(missing []string, s float64) map[string]float64 {
	out := make(map[string]float64, len(missing))
	if s >= float64(e.bounds.Max) {
		return out
	}
	for _, name := range missing {
		out[name] = s
	}
	return out
}
