package threshold

import (
	"encoding/hex"
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Result is the outcome of one student's search. It is never mutated after
// Evaluate returns.
type Result struct {
	S1             float64 // NaN only when no course is missing
	S2             float64
	UnknownCredits float64
	Cost1          float64 // NaN when unreachable
	Cost2          float64
	Ranges1        Intervals
	Ranges2        Intervals
	Policy1        Policy
	Policy2        Policy
	Multi1         bool
	Multi2         bool
	DominatedBy1   bool
	// FallbackUnverified is set when the fallback s1 is not class 1 in the sweep.
	FallbackUnverified bool
	MissingCourses     []string
	Target1Scores      map[string]float64
	Target2Scores      map[string]float64
}

func noMissingCourses() Result {
	return Result{
		S1:             math.NaN(),
		S2:             math.NaN(),
		Ranges1:        Intervals{},
		Ranges2:        Intervals{},
		Policy1:        PolicyNoMissingCourses,
		Policy2:        PolicyNoMissingCourses,
		MissingCourses: []string{},
		Target1Scores:  map[string]float64{},
		Target2Scores:  map[string]float64{},
	}
}

// Consistent reports whether s1 > s2 holds or either minimum is NaN.
func (r Result) Consistent() bool {
	if math.IsNaN(r.S1) || math.IsNaN(r.S2) {
		return true
	}
	return r.S1 > r.S2
}

// resultJSON mirrors Result with NaN encoded as null.
type resultJSON struct {
	S1                 *float64           `json:"s_min_for_1"`
	S2                 *float64           `json:"s_min_for_2"`
	UnknownCredits     float64            `json:"unknown_credits"`
	Cost1              *float64           `json:"cost_1"`
	Cost2              *float64           `json:"cost_2"`
	Ranges1            Intervals          `json:"ranges_1"`
	Ranges2            Intervals          `json:"ranges_2"`
	Policy1            Policy             `json:"s_min_for_1_policy"`
	Policy2            Policy             `json:"s_min_for_2_policy"`
	Multi1             bool               `json:"multiple_intervals_1"`
	Multi2             bool               `json:"multiple_intervals_2"`
	DominatedBy1       bool               `json:"dominated_by_1"`
	FallbackUnverified bool               `json:"fallback_unverified"`
	MissingCourses     []string           `json:"missing_courses"`
	Target1Scores      map[string]float64 `json:"target1_scores"`
	Target2Scores      map[string]float64 `json:"target2_scores"`
}

func nullable(v float64) *float64 {
	if math.IsNaN(v) {
		return nil
	}
	return &v
}

func fromNullable(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}

// MarshalJSON encodes NaN minima and costs as null.
func (r Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(resultJSON{
		S1:                 nullable(r.S1),
		S2:                 nullable(r.S2),
		UnknownCredits:     r.UnknownCredits,
		Cost1:              nullable(r.Cost1),
		Cost2:              nullable(r.Cost2),
		Ranges1:            r.Ranges1,
		Ranges2:            r.Ranges2,
		Policy1:            r.Policy1,
		Policy2:            r.Policy2,
		Multi1:             r.Multi1,
		Multi2:             r.Multi2,
		DominatedBy1:       r.DominatedBy1,
		FallbackUnverified: r.FallbackUnverified,
		MissingCourses:     r.MissingCourses,
		Target1Scores:      r.Target1Scores,
		Target2Scores:      r.Target2Scores,
	})
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (r *Result) UnmarshalJSON(data []byte) error {
	var j resultJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	*r = Result{
		S1:                 fromNullable(j.S1),
		S2:                 fromNullable(j.S2),
		UnknownCredits:     j.UnknownCredits,
		Cost1:              fromNullable(j.Cost1),
		Cost2:              fromNullable(j.Cost2),
		Ranges1:            j.Ranges1,
		Ranges2:            j.Ranges2,
		Policy1:            j.Policy1,
		Policy2:            j.Policy2,
		Multi1:             j.Multi1,
		Multi2:             j.Multi2,
		DominatedBy1:       j.DominatedBy1,
		FallbackUnverified: j.FallbackUnverified,
		MissingCourses:     j.MissingCourses,
		Target1Scores:      j.Target1Scores,
		Target2Scores:      j.Target2Scores,
	}
	return nil
}

// Fingerprint identifies a search input: the model version, major, catalog
// digest, bounds and the full score map. Equal inputs always give equal
// fingerprints.
func Fingerprint(modelVersion, major, catalogDigest string, b Bounds, scores map[string]float64) string {
	names := make([]string, 0, len(scores))
	for name := range scores {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	sb.WriteString(modelVersion)
	sb.WriteByte(0)
	sb.WriteString(major)
	sb.WriteByte(0)
	sb.WriteString(catalogDigest)
	sb.WriteByte(0)
	sb.WriteString(strconv.Itoa(b.Min))
	sb.WriteByte(':')
	sb.WriteString(strconv.Itoa(b.Max))
	for _, name := range names {
		sb.WriteByte(0)
		sb.WriteString(name)
		sb.WriteByte('=')
		sb.WriteString(strconv.FormatFloat(scores[name], 'g', -1, 64))
	}

	sum := blake2b.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}
