package cohort

import (
	"math"
	"sort"

	"github.com/butp-hub/destination-predictor/internal/domain/shared"
	"github.com/butp-hub/destination-predictor/internal/domain/threshold"
)

// Violation is a student whose target-1 score is below the target-2 score.
type Violation struct {
	Position   int              `json:"position"` // 1-based input order, failed students included
	StudentID  shared.StudentID `json:"student_id"`
	Major      shared.Major     `json:"major"`
	S1         float64          `json:"s1"`
	S2         float64          `json:"s2"`
	Difference float64          `json:"difference"` // S2 - S1
}

// Audit scans rows in input order and reports every row with two valid
// minima where S1 < S2. Equal minima are not violations. Positions come from
// PredictionRow.Position, so they stay aligned with the input when earlier
// students failed. The rows are not modified.
func Audit(rows []PredictionRow) []Violation {
	var out []Violation
	for i, r := range rows {
		if math.IsNaN(r.Target1) || math.IsNaN(r.Target2) {
			continue
		}
		if r.Target1 < r.Target2 {
			pos := r.Position
			if pos == 0 {
				pos = i + 1
			}
			out = append(out, Violation{
				Position:   pos,
				StudentID:  r.StudentID,
				Major:      r.Major,
				S1:         r.Target1,
				S2:         r.Target2,
				Difference: r.Target2 - r.Target1,
			})
		}
	}
	return out
}

// PolicyStats summarises the search outcomes of one run.
type PolicyStats struct {
	Students     int                      `json:"students"`
	S1AtFloor    float64                  `json:"s1_at_floor"` // share of students with s1 == min grade
	S2AtFloor    float64                  `json:"s2_at_floor"`
	Dominated    float64                  `json:"dominated"`
	Multi1       float64                  `json:"multi_1"`
	Multi2       float64                  `json:"multi_2"`
	Unverified   int                      `json:"fallback_unverified"`
	Policy1Count map[threshold.Policy]int `json:"policy_1"`
	Policy2Count map[threshold.Policy]int `json:"policy_2"`
}

// Summarise computes PolicyStats over results with the given sweep floor.
func Summarise(results []threshold.Result, minGrade int) PolicyStats {
	st := PolicyStats{
		Students:     len(results),
		Policy1Count: make(map[threshold.Policy]int),
		Policy2Count: make(map[threshold.Policy]int),
	}
	if len(results) == 0 {
		return st
	}

	floor := float64(minGrade)
	var s1Floor, s2Floor, dom, m1, m2 int
	for _, r := range results {
		if r.S1 == floor {
			s1Floor++
		}
		if r.S2 == floor {
			s2Floor++
		}
		if r.DominatedBy1 {
			dom++
		}
		if r.Multi1 {
			m1++
		}
		if r.Multi2 {
			m2++
		}
		if r.FallbackUnverified {
			st.Unverified++
		}
		st.Policy1Count[r.Policy1]++
		st.Policy2Count[r.Policy2]++
	}

	n := float64(len(results))
	st.S1AtFloor = float64(s1Floor) / n
	st.S2AtFloor = float64(s2Floor) / n
	st.Dominated = float64(dom) / n
	st.Multi1 = float64(m1) / n
	st.Multi2 = float64(m2) / n
	return st
}

// PolicyCount is one histogram bucket.
type PolicyCount struct {
	Policy threshold.Policy
	Count  int
}

// Sorted returns the histogram ordered by descending count, then policy.
func Sorted(h map[threshold.Policy]int) []PolicyCount {
	out := make([]PolicyCount, 0, len(h))
	for p, c := range h {
		out = append(out, PolicyCount{Policy: p, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Policy < out[j].Policy
	})
	return out
}
