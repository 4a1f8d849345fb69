package threshold

import (
	"encoding/json"
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/butp-hub/destination-predictor/internal/domain/course"
	"github.com/butp-hub/destination-predictor/internal/domain/shared"
)

// segment assigns class to the uniform scores lo..hi.
type segment struct {
	lo, hi, class int
}

// scripted predicts from the uniform score hypothesised for probe.
// Scores outside every segment predict class 3.
type scripted struct {
	probe    string
	segments []segment
	calls    int
}

func (s *scripted) PredictClass(scores map[string]float64) (int, error) {
	s.calls++
	u := int(scores[s.probe])
	for _, seg := range s.segments {
		if u >= seg.lo && u <= seg.hi {
			return seg.class, nil
		}
	}
	return 3, nil
}

func testEngine(t *testing.T, b Bounds) *Engine {
	t.Helper()
	catalog, err := course.NewCatalog([]course.Course{
		{Name: "电路分析", Label: "专业基础", Credit: 4, Required: true},
		{Name: "信号与系统", Label: "专业基础", Credit: 6, Required: true},
		{Name: "通信原理", Label: "专业课", Credit: 4, Required: true},
	})
	require.NoError(t, err)
	e, err := NewEngine(catalog, b)
	require.NoError(t, err)
	return e
}

// taken leaves 信号与系统 and 通信原理 missing: 10 unknown credits.
var taken = map[string]float64{"电路分析": 77}

func evaluate(t *testing.T, segs ...segment) (Result, *scripted) {
	t.Helper()
	e := testEngine(t, DefaultBounds())
	p := &scripted{probe: "信号与系统", segments: segs}
	res, err := e.Evaluate(taken, p)
	require.NoError(t, err)
	return res, p
}

func TestExtractIntervals(t *testing.T) {
	var sweep Sweep
	for s := 60; s <= 90; s++ {
		class := 3
		if (s >= 66 && s <= 72) || s >= 76 {
			class = 1
		}
		sweep = append(sweep, Point{Score: s, Class: class})
	}

	r1 := ExtractIntervals(sweep, 1)
	assert.Equal(t, Intervals{{66, 72}, {76, 90}}, r1)
	assert.Equal(t, "[(66, 72), (76, 90)]", r1.String())

	r3 := ExtractIntervals(sweep, 3)
	assert.Equal(t, Intervals{{60, 65}, {73, 75}}, r3)

	assert.Empty(t, ExtractIntervals(sweep, 2))
	assert.Equal(t, "[]", Intervals(nil).String())
}

func TestEngine_IntervalsAndFlags(t *testing.T) {
	res, _ := evaluate(t, segment{66, 72, 1}, segment{76, 90, 1})

	assert.Equal(t, "[(66, 72), (76, 90)]", res.Ranges1.String())
	assert.True(t, res.Multi1)
	assert.False(t, res.DominatedBy1)
	assert.Equal(t, 66.0, res.S1)
	assert.Equal(t, PolicyFirstLeft, res.Policy1)
	assert.Equal(t, 60.0, res.S2, "class 2 never predicted, floor sentinel")
	assert.Equal(t, PolicyFirstLeftOrSingle, res.Policy2)
}

func TestEngine_NoMissingCourses(t *testing.T) {
	e := testEngine(t, DefaultBounds())
	p := &scripted{probe: "信号与系统"}

	res, err := e.Evaluate(map[string]float64{"电路分析": 80, "信号与系统": 70, "通信原理": 90}, p)
	require.NoError(t, err)

	assert.Zero(t, p.calls)
	assert.True(t, math.IsNaN(res.S1))
	assert.True(t, math.IsNaN(res.S2))
	assert.Zero(t, res.Cost1)
	assert.Zero(t, res.Cost2)
	assert.Zero(t, res.UnknownCredits)
	assert.Equal(t, PolicyNoMissingCourses, res.Policy1)
	assert.Equal(t, PolicyNoMissingCourses, res.Policy2)
	assert.False(t, res.Multi1 || res.Multi2 || res.DominatedBy1 || res.FallbackUnverified)
	assert.Equal(t, "[]", res.Ranges1.String())
	assert.Empty(t, res.MissingCourses)
	assert.True(t, res.Consistent())
}

func TestEngine_InvocationCount(t *testing.T) {
	_, p := evaluate(t, segment{70, 90, 1})
	assert.Equal(t, 31, p.calls)

	e := testEngine(t, Bounds{Min: 50, Max: 70})
	p = &scripted{probe: "信号与系统"}
	_, err := e.Evaluate(taken, p)
	require.NoError(t, err)
	assert.Equal(t, 21, p.calls)
}

func TestEngine_HypothesisCoversEveryMissingCourse(t *testing.T) {
	e := testEngine(t, DefaultBounds())
	var seen []map[string]float64
	_, err := e.Evaluate(taken, PredictorFunc(func(scores map[string]float64) (int, error) {
		seen = append(seen, scores)
		return 3, nil
	}))
	require.NoError(t, err)

	require.Len(t, seen, 31)
	for i, scores := range seen {
		assert.Equal(t, 77.0, scores["电路分析"], "recorded score kept")
		assert.Equal(t, float64(60+i), scores["信号与系统"])
		assert.Equal(t, float64(60+i), scores["通信原理"])
	}
	assert.NotContains(t, taken, "信号与系统", "input map untouched")
}

func TestEngine_Case1(t *testing.T) {
	t.Run("second interval below 70", func(t *testing.T) {
		res, _ := evaluate(t, segment{60, 60, 2}, segment{68, 72, 2}, segment{80, 90, 1})

		assert.Equal(t, Intervals{{60, 60}, {68, 72}}, res.Ranges2)
		assert.True(t, res.Multi2)
		assert.Equal(t, 68.0, res.S2)
		assert.Equal(t, PolicyUseSecondLeftLt70, res.Policy2)
		assert.Equal(t, 80.0, res.S1)
		assert.Equal(t, PolicyFirstLeft, res.Policy1)
	})

	t.Run("second interval at or above 70", func(t *testing.T) {
		res, _ := evaluate(t, segment{60, 60, 2}, segment{72, 80, 2}, segment{81, 90, 1})

		assert.Equal(t, Intervals{{60, 60}, {72, 80}}, res.Ranges2)
		assert.Equal(t, 60.0, res.S2)
		assert.Equal(t, PolicyKeep60StableGe70, res.Policy2)
		assert.Equal(t, 81.0, res.S1)
	})

	t.Run("single interval", func(t *testing.T) {
		res, _ := evaluate(t, segment{64, 70, 2}, segment{71, 90, 1})
		assert.Equal(t, 64.0, res.S2)
		assert.Equal(t, PolicyFirstLeftOrSingle, res.Policy2)
	})
}

func TestEngine_Costs(t *testing.T) {
	t.Run("reachable", func(t *testing.T) {
		res, _ := evaluate(t, segment{60, 74, 2}, segment{75, 90, 1})

		assert.Equal(t, 10.0, res.UnknownCredits)
		assert.Equal(t, 75.0, res.S1)
		assert.Equal(t, 150.0, res.Cost1)
		assert.Equal(t, 0.0, res.Cost2)
		assert.Equal(t, []string{"信号与系统", "通信原理"}, res.MissingCourses)
		assert.Equal(t, map[string]float64{"信号与系统": 75, "通信原理": 75}, res.Target1Scores)
		assert.Equal(t, map[string]float64{"信号与系统": 60, "通信原理": 60}, res.Target2Scores)
	})

	t.Run("unreachable", func(t *testing.T) {
		res, _ := evaluate(t, segment{60, 90, 2})

		assert.Equal(t, 90.0, res.S1)
		assert.Equal(t, PolicyUnreachable, res.Policy1)
		assert.True(t, math.IsNaN(res.Cost1))
		assert.Empty(t, res.Target1Scores)
		assert.Equal(t, 0.0, res.Cost2)
	})

	t.Run("class 1 only at the top score", func(t *testing.T) {
		res, _ := evaluate(t, segment{90, 90, 1})

		assert.Equal(t, 90.0, res.S1)
		assert.Equal(t, PolicyUnreachable, res.Policy1)
		assert.True(t, math.IsNaN(res.Cost1))
	})
}

func TestEngine_Case2(t *testing.T) {
	t.Run("dominated adjusts inside widest interval", func(t *testing.T) {
		res, _ := evaluate(t, segment{60, 90, 1})

		assert.True(t, res.DominatedBy1)
		assert.Equal(t, 60.0, res.S2)
		assert.Equal(t, 61.0, res.S1)
		assert.Equal(t, PolicyAdjustInWidestInterval, res.Policy1)
		assert.Equal(t, 10.0, res.Cost1)
		assert.True(t, res.Consistent())
	})

	t.Run("widest interval scan skips past s2", func(t *testing.T) {
		res, _ := evaluate(t, segment{60, 62, 1}, segment{63, 63, 2}, segment{64, 85, 1})

		assert.Equal(t, 63.0, res.S2)
		assert.Equal(t, 64.0, res.S1)
		assert.Equal(t, PolicyAdjustInWidestInterval, res.Policy1)
	})

	t.Run("next interval left", func(t *testing.T) {
		res, _ := evaluate(t, segment{60, 64, 1}, segment{65, 65, 2}, segment{70, 71, 1})

		assert.Equal(t, 65.0, res.S2)
		assert.Equal(t, 70.0, res.S1)
		assert.Equal(t, PolicyUseNextIntervalLeft, res.Policy1)
		assert.False(t, res.FallbackUnverified)
	})

	t.Run("fallback is not checked against the sweep", func(t *testing.T) {
		res, _ := evaluate(t, segment{60, 64, 1}, segment{65, 70, 2})

		assert.Equal(t, 65.0, res.S2)
		assert.Equal(t, 75.0, res.S1)
		assert.Equal(t, PolicyFallbackPlus10Cap90, res.Policy1)
		assert.True(t, res.FallbackUnverified, "class at 75 is 3")
	})

	t.Run("fallback capped at max grade", func(t *testing.T) {
		res, _ := evaluate(t, segment{60, 64, 1}, segment{85, 90, 2})

		assert.Equal(t, 85.0, res.S2)
		assert.Equal(t, 90.0, res.S1)
		assert.Equal(t, PolicyFallbackPlus10Cap90, res.Policy1)
		assert.True(t, math.IsNaN(res.Cost1))
		assert.Empty(t, res.Target1Scores)
	})

	t.Run("fallback leaves s1 not above s2", func(t *testing.T) {
		res, _ := evaluate(t, segment{60, 64, 1}, segment{90, 90, 2})

		assert.Equal(t, 90.0, res.S2)
		assert.Equal(t, 90.0, res.S1)
		assert.Equal(t, PolicyFallbackPlus10Cap90, res.Policy1)
		assert.True(t, res.FallbackUnverified)
		assert.False(t, res.Consistent())
	})

	t.Run("no class-1 interval keeps s1 unreachable", func(t *testing.T) {
		res, _ := evaluate(t, segment{90, 90, 2})

		assert.Equal(t, 90.0, res.S1)
		assert.Equal(t, 90.0, res.S2)
		assert.Equal(t, PolicyUnreachable, res.Policy1)
		assert.False(t, res.FallbackUnverified)
	})
}

func TestEngine_OrderingHoldsOutsideFallback(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	e := testEngine(t, DefaultBounds())

	for i := 0; i < 500; i++ {
		var segs []segment
		for s := 60; s <= 90; {
			n := 1 + rng.Intn(8)
			segs = append(segs, segment{s, s + n - 1, 1 + rng.Intn(3)})
			s += n
		}
		res, err := e.Evaluate(taken, &scripted{probe: "通信原理", segments: segs})
		require.NoError(t, err)

		if res.S1 > res.S2 {
			continue
		}
		bothUnreachable := len(res.Ranges1) == 0 && res.S1 == 90 && res.S2 == 90
		assert.True(t, res.FallbackUnverified || bothUnreachable,
			"s1=%v s2=%v policy=%s ranges1=%s", res.S1, res.S2, res.Policy1, res.Ranges1)
	}
}

func TestEngine_Idempotent(t *testing.T) {
	e := testEngine(t, DefaultBounds())
	segs := []segment{{60, 60, 2}, {68, 72, 2}, {73, 90, 1}}

	first, err := e.Evaluate(taken, &scripted{probe: "信号与系统", segments: segs})
	require.NoError(t, err)
	second, err := e.Evaluate(taken, &scripted{probe: "信号与系统", segments: segs})
	require.NoError(t, err)

	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestEngine_PredictorError(t *testing.T) {
	e := testEngine(t, DefaultBounds())
	boom := errors.New("boom")

	_, err := e.Evaluate(taken, PredictorFunc(func(map[string]float64) (int, error) {
		return 0, boom
	}))
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, err, shared.ErrEvaluation)
}

func TestNewEngine_Validation(t *testing.T) {
	catalog, err := course.NewCatalog([]course.Course{{Name: "A", Label: "英语", Credit: 1, Required: true}})
	require.NoError(t, err)

	for _, b := range []Bounds{{90, 60}, {60, 60}, {-1, 90}, {60, 101}} {
		_, err := NewEngine(catalog, b)
		assert.ErrorIs(t, err, shared.ErrConfiguration, "%+v", b)
	}
	_, err = NewEngine(nil, DefaultBounds())
	assert.ErrorIs(t, err, shared.ErrConfiguration)
}

func TestResult_JSON(t *testing.T) {
	res, _ := evaluate(t, segment{60, 90, 2})

	data, err := json.Marshal(res)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"cost_1":null`)
	assert.Contains(t, string(data), `"s_min_for_1_policy":"unreachable"`)

	var back Result
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, math.IsNaN(back.Cost1))
	assert.Equal(t, res.S1, back.S1)
	assert.Equal(t, res.Policy1, back.Policy1)
	assert.Equal(t, res.Ranges2, back.Ranges2)
}

func TestPolicyLabels(t *testing.T) {
	assert.Equal(t, "adjust_to_min_>s2_in_widest_interval", PolicyAdjustInWidestInterval.String())
	assert.Equal(t, "fallback_force_s2_plus_10_cap90", PolicyFallbackPlus10Cap90.String())

	for _, p := range Policies() {
		got, err := ParsePolicy(p.String())
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}
	_, err := ParsePolicy("nope")
	assert.Error(t, err)
}

func TestFingerprint(t *testing.T) {
	scores := map[string]float64{"A": 70, "B": 80}
	a := Fingerprint("v1", "物联网工程", "cat", DefaultBounds(), scores)
	b := Fingerprint("v1", "物联网工程", "cat", DefaultBounds(), map[string]float64{"B": 80, "A": 70})
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	assert.NotEqual(t, a, Fingerprint("v1", "物联网工程", "cat", DefaultBounds(), map[string]float64{"A": 70, "B": 81}))
	assert.NotEqual(t, a, Fingerprint("v2", "物联网工程", "cat", DefaultBounds(), scores))
	assert.NotEqual(t, a, Fingerprint("v1", "物联网工程", "cat", Bounds{50, 90}, scores))
	assert.NotEqual(t, a, Fingerprint("v1", "物联网工程", "other", DefaultBounds(), scores))
}
