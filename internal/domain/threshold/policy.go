// Package threshold searches, per student, the minimum uniform score that every
// missing required course would need for the predicted destination to reach
// class 1 and class 2.
package threshold

import (
	"fmt"
)

// Policy names the rule that selected a minimum score.
type Policy int

const (
	PolicyNoMissingCourses Policy = iota
	PolicyFirstLeftOrSingle
	PolicyUseSecondLeftLt70
	PolicyKeep60StableGe70
	PolicyFirstLeft
	PolicyAdjustInWidestInterval
	PolicyUseNextIntervalLeft
	PolicyFallbackPlus10Cap90
	PolicyUnreachable
)

var policyLabels = [...]string{
	PolicyNoMissingCourses:       "no_missing_courses",
	PolicyFirstLeftOrSingle:      "first_left_or_single",
	PolicyUseSecondLeftLt70:      "use_second_left_lt70",
	PolicyKeep60StableGe70:       "keep_60_stable_ge70",
	PolicyFirstLeft:              "first_left",
	PolicyAdjustInWidestInterval: "adjust_to_min_>s2_in_widest_interval",
	PolicyUseNextIntervalLeft:    "use_next_interval_left",
	PolicyFallbackPlus10Cap90:    "fallback_force_s2_plus_10_cap90",
	PolicyUnreachable:            "unreachable",
}

// Policies returns every policy in declaration order.
func Policies() []Policy {
	out := make([]Policy, len(policyLabels))
	for i := range policyLabels {
		out[i] = Policy(i)
	}
	return out
}

// String returns the policy label written to result sheets.
func (p Policy) String() string {
	if p < 0 || int(p) >= len(policyLabels) {
		return fmt.Sprintf("policy(%d)", int(p))
	}
	return policyLabels[p]
}

// ParsePolicy is the inverse of String.
func ParsePolicy(label string) (Policy, error) {
	for i, l := range policyLabels {
		if l == label {
			return Policy(i), nil
		}
	}
	return 0, fmt.Errorf("unknown policy label %q", label)
}

// MarshalText implements encoding.TextMarshaler.
func (p Policy) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Policy) UnmarshalText(b []byte) error {
	v, err := ParsePolicy(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}
