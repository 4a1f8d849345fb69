// Package cohort assembles per-student result rows and runs the post-hoc
// consistency audit and policy statistics over a whole cohort.
package cohort

import (
	"math"

	"github.com/butp-hub/destination-predictor/internal/domain/course"
	"github.com/butp-hub/destination-predictor/internal/domain/prediction"
	"github.com/butp-hub/destination-predictor/internal/domain/shared"
	"github.com/butp-hub/destination-predictor/internal/domain/threshold"
)

// PredictionRow is one line of the predictions sheet.
type PredictionRow struct {
	// Position is the 1-based place of the student in the evaluated input,
	// counting failed students too. Zero means the row's index is used.
	Position     int
	StudentID    shared.StudentID
	Major        shared.Major
	CoursesTaken int
	CatalogSize  int
	Categories   course.Vector
	Strength     float64
	Class        int
	Probs        [prediction.NumClasses]float64
	Target1      float64 // NaN when the search was skipped
	Target2      float64
	// CourseTargets holds, in catalog order, the target-1 score of each course
	// not yet taken; NaN for taken courses or when target 1 is unreachable.
	CourseTargets []float64
}

// UniformRow is one line of the uniform-thresholds sheet.
type UniformRow struct {
	StudentID shared.StudentID
	Major     shared.Major
	Result    threshold.Result
}

// MissingCourseRow is one missing course of one student with both target scores.
type MissingCourseRow struct {
	StudentID shared.StudentID
	Course    string
	Target1   float64
	Target2   float64
}

// FailedStudent records a student whose evaluation errored.
type FailedStudent struct {
	Position  int // 1-based place in the evaluated input
	StudentID shared.StudentID
	Major     shared.Major
	Err       error
}

// Evaluation is the complete outcome of one student.
type Evaluation struct {
	StudentID shared.StudentID
	Major     shared.Major
	Features  prediction.Features
	Output    prediction.ClassifierOutput
	Taken     int
	Search    *threshold.Result // nil when the search is disabled
	CacheHit  bool
}

// NewPredictionRow flattens ev against the catalog.
func NewPredictionRow(ev Evaluation, catalog *course.Catalog, scores map[string]float64) PredictionRow {
	row := PredictionRow{
		StudentID:    ev.StudentID,
		Major:        ev.Major,
		CoursesTaken: ev.Taken,
		CatalogSize:  catalog.Len(),
		Categories:   ev.Features.Categories,
		Strength:     ev.Features.Strength,
		Class:        ev.Output.Class,
		Probs:        ev.Output.Probabilities,
		Target1:      math.NaN(),
		Target2:      math.NaN(),
	}
	if ev.Search != nil {
		row.Target1 = ev.Search.S1
		row.Target2 = ev.Search.S2
	}

	names := catalog.Names()
	row.CourseTargets = make([]float64, len(names))
	for i, name := range names {
		row.CourseTargets[i] = math.NaN()
		if _, ok := scores[name]; ok || ev.Search == nil {
			continue
		}
		if v, ok := ev.Search.Target1Scores[name]; ok {
			row.CourseTargets[i] = v
		}
	}
	return row
}

// MissingCourseRows expands a search result into one row per missing course.
func MissingCourseRows(id shared.StudentID, res threshold.Result) []MissingCourseRow {
	out := make([]MissingCourseRow, 0, len(res.MissingCourses))
	for _, c := range res.MissingCourses {
		row := MissingCourseRow{StudentID: id, Course: c, Target1: math.NaN(), Target2: math.NaN()}
		if v, ok := res.Target1Scores[c]; ok {
			row.Target1 = v
		}
		if v, ok := res.Target2Scores[c]; ok {
			row.Target2 = v
		}
		out = append(out, row)
	}
	return out
}
