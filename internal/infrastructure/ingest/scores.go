package ingest

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/butp-hub/destination-predictor/internal/domain/shared"
	"github.com/butp-hub/destination-predictor/internal/domain/student"
)

// ScoreStats counts the rows dropped while reading a score sheet.
type ScoreStats struct {
	Rows       int
	Kept       int
	Electives  int
	BadGrades  int
	Incomplete int
}

// LoadScores reads a score file into a cohort.
func LoadScores(path string, logger *slog.Logger) (*student.Cohort, ScoreStats, error) {
	t, err := openTable(path)
	if err != nil {
		return nil, ScoreStats{}, err
	}
	return buildCohort(t, logger)
}

// ReadScores reads a score sheet from r with the given delimiter.
func ReadScores(r io.Reader, comma rune, logger *slog.Logger) (*student.Cohort, ScoreStats, error) {
	t, err := readTable(r, comma)
	if err != nil {
		return nil, ScoreStats{}, shared.WrapError("ingest", "ReadScores", shared.ErrConfiguration,
			"cannot parse score sheet", err)
	}
	return buildCohort(t, logger)
}

func buildCohort(t *table, logger *slog.Logger) (*student.Cohort, ScoreStats, error) {
	if logger == nil {
		logger = slog.Default()
	}

	idCol := t.pick("SNH")
	if idCol < 0 {
		idCol = 0
	}
	majorCol := t.pick("Current_Major")
	if majorCol < 0 {
		majorCol = t.pick("Major")
	}
	nameCol := t.pick("Course_Name")
	if nameCol < 0 {
		return nil, ScoreStats{}, shared.WrapError("scores", "Load", shared.ErrConfiguration,
			"scores file is missing the course name column", fmt.Errorf("header %v", t.header))
	}
	gradeCol := t.pick("Grade")
	if gradeCol < 0 {
		gradeCol = t.pick("成绩")
	}
	if gradeCol < 0 {
		return nil, ScoreStats{}, shared.WrapError("scores", "Load", shared.ErrConfiguration,
			"scores file is missing the grade column", fmt.Errorf("header %v", t.header))
	}
	attrCol := t.pick("Course_Attribute")

	cohort := student.NewCohort()
	var st ScoreStats
	for _, row := range t.rows {
		st.Rows++

		sid, err := shared.NewStudentID(cell(row, idCol))
		name := cell(row, nameCol)
		raw := cell(row, gradeCol)
		if err != nil || name == "" || raw == "" {
			st.Incomplete++
			continue
		}
		if attrCol >= 0 && student.IsElective(cell(row, attrCol)) {
			st.Electives++
			continue
		}
		g, err := student.ParseGrade(raw)
		if err != nil {
			st.BadGrades++
			continue
		}

		cohort.Record(sid, shared.Major(cell(row, majorCol))).SetScore(name, g)
		st.Kept++
	}

	if cohort.Len() == 0 {
		return nil, st, shared.ErrNoStudents
	}

	logger.Info("scores loaded",
		"students", cohort.Len(),
		"rows", st.Rows,
		"kept", st.Kept,
		"electives", st.Electives,
		"bad_grades", st.BadGrades,
		"incomplete", st.Incomplete,
		"has_major", majorCol >= 0,
	)
	return cohort, st, nil
}
