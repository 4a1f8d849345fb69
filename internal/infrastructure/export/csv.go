// Package export writes result sheets as CSV files.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/butp-hub/destination-predictor/internal/domain/cohort"
	"github.com/butp-hub/destination-predictor/internal/domain/course"
)

// Sheet file suffixes.
const (
	PredictionsSuffix    = "_Predictions.csv"
	UniformSuffix        = "_UniformThresholds.csv"
	MissingCoursesSuffix = "_MissingCoursesScores.csv"
	FailedSuffix         = "_FailedStudents.csv"
	AllSuffix            = "_All.csv"
)

// Sheets is the output of one major.
type Sheets struct {
	CourseNames []string
	Predictions []cohort.PredictionRow
	Uniform     []cohort.UniformRow // empty when the search is disabled
	Missing     []cohort.MissingCourseRow
	Failed      []cohort.FailedStudent
}

// WriteSheets writes the sheets of one major under dir with prefix and
// returns the written paths. The uniform, missing-course and failed-student
// sheets are skipped when empty.
func WriteSheets(dir, prefix string, s Sheets) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	var paths []string
	write := func(suffix string, fn func(io.Writer) error) error {
		path := filepath.Join(dir, prefix+suffix)
		if err := writeFile(path, fn); err != nil {
			return err
		}
		paths = append(paths, path)
		return nil
	}

	if err := write(PredictionsSuffix, func(w io.Writer) error {
		return WritePredictions(w, s.CourseNames, s.Predictions, false)
	}); err != nil {
		return paths, err
	}
	if len(s.Uniform) > 0 {
		if err := write(UniformSuffix, func(w io.Writer) error {
			return WriteUniform(w, s.Uniform)
		}); err != nil {
			return paths, err
		}
	}
	if len(s.Missing) > 0 {
		if err := write(MissingCoursesSuffix, func(w io.Writer) error {
			return WriteMissingCourses(w, s.Missing)
		}); err != nil {
			return paths, err
		}
	}
	if len(s.Failed) > 0 {
		if err := write(FailedSuffix, func(w io.Writer) error {
			return WriteFailed(w, s.Failed)
		}); err != nil {
			return paths, err
		}
	}
	return paths, nil
}

// WriteCombined writes the predictions of several majors into one file with a
// Major column. Course columns are the union of catalogs in first-seen order.
func WriteCombined(path string, majors []Sheets) error {
	var (
		names []string
		seen  = make(map[string]bool)
		rows  []cohort.PredictionRow
	)
	for _, s := range majors {
		for _, n := range s.CourseNames {
			if !seen[n] {
				seen[n] = true
				names = append(names, n)
			}
		}
	}
	for _, s := range majors {
		index := make(map[string]int, len(s.CourseNames))
		for i, n := range s.CourseNames {
			index[n] = i
		}
		for _, r := range s.Predictions {
			wide := make([]float64, len(names))
			for i, n := range names {
				wide[i] = math.NaN()
				if j, ok := index[n]; ok && j < len(r.CourseTargets) {
					wide[i] = r.CourseTargets[j]
				}
			}
			r.CourseTargets = wide
			rows = append(rows, r)
		}
	}
	return writeFile(path, func(w io.Writer) error {
		return WritePredictions(w, names, rows, true)
	})
}

func writeFile(path string, fn func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(path), err)
	}
	if err := fn(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return f.Close()
}

// WritePredictions writes the predictions sheet. withMajor adds a leading
// Major column for combined files.
func WritePredictions(w io.Writer, courseNames []string, rows []cohort.PredictionRow, withMajor bool) error {
	cw := csv.NewWriter(w)

	header := []string{"SNH", "major", "grade", "count"}
	if withMajor {
		header = append([]string{"Major"}, header...)
	}
	for _, c := range course.Categories() {
		header = append(header, "current_"+c.String())
	}
	header = append(header, "current_AcademicStrength", "current_pred",
		"current_prob1", "current_prob2", "current_prob3",
		"target1_min_required_score", "target2_min_required_score")
	header = append(header, courseNames...)
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, r := range rows {
		rec := make([]string, 0, len(header))
		if withMajor {
			rec = append(rec, r.Major.String())
		}
		rec = append(rec, r.StudentID.String(), r.Major.String(),
			strconv.Itoa(r.CoursesTaken), strconv.Itoa(r.CatalogSize))
		for _, v := range r.Categories {
			rec = append(rec, num(v))
		}
		rec = append(rec, num(r.Strength), strconv.Itoa(r.Class),
			num(r.Probs[0]), num(r.Probs[1]), num(r.Probs[2]),
			num(r.Target1), num(r.Target2))
		for i := range courseNames {
			v := math.NaN()
			if i < len(r.CourseTargets) {
				v = r.CourseTargets[i]
			}
			rec = append(rec, num(v))
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteUniform writes the uniform-thresholds sheet.
func WriteUniform(w io.Writer, rows []cohort.UniformRow) error {
	cw := csv.NewWriter(w)
	header := []string{"SNH", "Major", "s_min_for_1", "s_min_for_2", "UnknownCredits",
		"Cost_1", "Cost_2", "Ranges_1", "Ranges_2", "missing_courses",
		"target1_scores", "target2_scores", "s_min_for_1_policy", "s_min_for_2_policy",
		"MultipleIntervalsFlag_1", "MultipleIntervalsFlag_2", "DominatedBy1", "FallbackUnverified"}
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, r := range rows {
		res := r.Result
		missing, err := json.Marshal(res.MissingCourses)
		if err != nil {
			return err
		}
		t1, err := json.Marshal(res.Target1Scores)
		if err != nil {
			return err
		}
		t2, err := json.Marshal(res.Target2Scores)
		if err != nil {
			return err
		}
		rec := []string{
			r.StudentID.String(), r.Major.String(),
			num(res.S1), num(res.S2), num(res.UnknownCredits),
			num(res.Cost1), num(res.Cost2),
			res.Ranges1.String(), res.Ranges2.String(),
			string(missing), string(t1), string(t2),
			res.Policy1.String(), res.Policy2.String(),
			flag(res.Multi1), flag(res.Multi2), flag(res.DominatedBy1), flag(res.FallbackUnverified),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteMissingCourses writes one row per missing course and student.
func WriteMissingCourses(w io.Writer, rows []cohort.MissingCourseRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"SNH", "Course_Name", "target1_score", "target2_score"}); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write([]string{r.StudentID.String(), r.Course, num(r.Target1), num(r.Target2)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFailed writes the students whose evaluation errored with the error text.
func WriteFailed(w io.Writer, rows []cohort.FailedStudent) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Position", "SNH", "Major", "Error"}); err != nil {
		return err
	}
	for _, r := range rows {
		msg := ""
		if r.Err != nil {
			msg = r.Err.Error()
		}
		if err := cw.Write([]string{strconv.Itoa(r.Position), r.StudentID.String(), r.Major.String(), msg}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// num formats v; NaN is an empty cell.
func num(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func flag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
