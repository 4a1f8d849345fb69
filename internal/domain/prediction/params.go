// Package prediction turns category averages into an ordered feature vector
// and scores it with the shipped classifier and probability recalibration.
package prediction

import (
	"encoding/json"
	"fmt"
	"math"
)

// GlobalStatsKey selects the baseline used when a major has no stats of its own.
const GlobalStatsKey = "_global_"

// AcademicStrengthColumn is the feature column of the derived strength scalar.
const AcademicStrengthColumn = "AcademicStrength"

// NumClasses is the size of the destination class set.
const NumClasses = 3

// StrengthStat is a category baseline mean and standard deviation.
// In JSON it is either a [mean, std] pair or an object.
type StrengthStat struct {
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
}

// UnmarshalJSON accepts both encodings.
func (s *StrengthStat) UnmarshalJSON(data []byte) error {
	var pair []*float64
	if err := json.Unmarshal(data, &pair); err == nil {
		if len(pair) != 2 {
			return fmt.Errorf("strength stat: want [mean, std], got %d values", len(pair))
		}
		s.Mean, s.Std = orNaN(pair[0]), orNaN(pair[1])
		return nil
	}
	var obj struct {
		Mean *float64 `json:"mean"`
		Std  *float64 `json:"std"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("strength stat: %w", err)
	}
	s.Mean, s.Std = orNaN(obj.Mean), orNaN(obj.Std)
	return nil
}

func orNaN(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}

// ClipRange bounds one feature column. A nil side is open.
type ClipRange struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

// Apply clips v. NaN passes through.
func (r ClipRange) Apply(v float64) float64 {
	if math.IsNaN(v) {
		return v
	}
	if r.Min != nil && v < *r.Min {
		v = *r.Min
	}
	if r.Max != nil && v > *r.Max {
		v = *r.Max
	}
	return v
}

// Params are the recalibration and feature parameters shipped with the model.
type Params struct {
	Priors        map[string]float64                 `json:"priors"`
	Tau           float64                            `json:"tau"`
	Temperature   float64                            `json:"temperature"`
	ClassOrder    []int                              `json:"class_order"`
	ClipRanges    map[string]ClipRange               `json:"clip_ranges"`
	StrengthStats map[string]map[string]StrengthStat `json:"strength_stats"`
}

// DefaultParams returns the parameters used for keys absent from the artifact.
func DefaultParams() Params {
	return Params{
		Tau:         0,
		Temperature: 1,
		ClassOrder:  []int{1, 2, 3},
	}
}

// Validate checks the parts of Params the engine relies on.
func (p Params) Validate() error {
	if len(p.ClassOrder) != NumClasses {
		return fmt.Errorf("class_order must list %d classes, got %d", NumClasses, len(p.ClassOrder))
	}
	if math.IsNaN(p.Tau) || math.IsNaN(p.Temperature) {
		return fmt.Errorf("tau and temperature must be numbers")
	}
	return nil
}

// StatsFor returns the strength baselines of major, falling back to the global set.
func (p Params) StatsFor(major string) map[string]StrengthStat {
	if s, ok := p.StrengthStats[major]; ok {
		return s
	}
	return p.StrengthStats[GlobalStatsKey]
}
