package export

import (
	"bytes"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/butp-hub/destination-predictor/internal/domain/cohort"
	"github.com/butp-hub/destination-predictor/internal/domain/course"
	"github.com/butp-hub/destination-predictor/internal/domain/threshold"
)

func readCSV(t *testing.T, data []byte) [][]string {
	t.Helper()
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	require.NoError(t, err)
	return rows
}

func sampleRow() cohort.PredictionRow {
	nan := math.NaN()
	return cohort.PredictionRow{
		StudentID:     "2023001",
		Major:         "物联网工程",
		CoursesTaken:  1,
		CatalogSize:   2,
		Categories:    course.UnknownVector().With(course.CategoryEnglish, 85),
		Strength:      0.5,
		Class:         2,
		Probs:         [3]float64{0.25, 0.5, 0.25},
		Target1:       72,
		Target2:       64,
		CourseTargets: []float64{nan, 72},
	}
}

func TestWritePredictions(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WritePredictions(&buf, []string{"大学英语", "通信原理"}, []cohort.PredictionRow{sampleRow()}, false))

	rows := readCSV(t, buf.Bytes())
	require.Len(t, rows, 2)
	header, rec := rows[0], rows[1]
	require.Equal(t, len(header), len(rec))

	col := func(name string) string {
		for i, h := range header {
			if h == name {
				return rec[i]
			}
		}
		t.Fatalf("missing column %s", name)
		return ""
	}
	assert.Equal(t, "2023001", col("SNH"))
	assert.Equal(t, "85", col("current_english"))
	assert.Equal(t, "", col("current_major"))
	assert.Equal(t, "2", col("current_pred"))
	assert.Equal(t, "0.5", col("current_prob2"))
	assert.Equal(t, "72", col("target1_min_required_score"))
	assert.Equal(t, "", col("大学英语"))
	assert.Equal(t, "72", col("通信原理"))
}

func TestWriteUniform(t *testing.T) {
	res := threshold.Result{
		S1: 90, S2: 60, UnknownCredits: 10, Cost1: math.NaN(), Cost2: 0,
		Ranges1: threshold.Intervals{}, Ranges2: threshold.Intervals{{Lo: 60, Hi: 90}},
		Policy1: threshold.PolicyUnreachable, Policy2: threshold.PolicyFirstLeftOrSingle,
		MissingCourses: []string{"通信原理"},
		Target1Scores:  map[string]float64{},
		Target2Scores:  map[string]float64{"通信原理": 60},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteUniform(&buf, []cohort.UniformRow{{StudentID: "s", Major: "m", Result: res}}))

	rows := readCSV(t, buf.Bytes())
	require.Len(t, rows, 2)
	rec := rows[1]
	assert.Equal(t, []string{"s", "m", "90", "60", "10", "", "0", "[]", "[(60, 90)]",
		`["通信原理"]`, `{}`, `{"通信原理":60}`, "unreachable", "first_left_or_single",
		"0", "0", "0", "0"}, rec)
}

func TestWriteSheets_FailedStudents(t *testing.T) {
	dir := t.TempDir()
	s := Sheets{
		CourseNames: []string{"大学英语"},
		Predictions: []cohort.PredictionRow{sampleRow()},
		Failed: []cohort.FailedStudent{
			{Position: 1, StudentID: "2023000", Major: "物联网工程", Err: errors.New("classifier exploded")},
		},
	}

	paths, err := WriteSheets(dir, "iot", s)
	require.NoError(t, err)
	require.Len(t, paths, 2)
	assert.Equal(t, filepath.Join(dir, "iot"+FailedSuffix), paths[1])

	data, err := os.ReadFile(paths[1])
	require.NoError(t, err)
	rows := readCSV(t, data)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"Position", "SNH", "Major", "Error"}, rows[0])
	assert.Equal(t, []string{"1", "2023000", "物联网工程", "classifier exploded"}, rows[1])
}

func TestWriteSheetsAndCombined(t *testing.T) {
	dir := t.TempDir()
	s := Sheets{
		CourseNames: []string{"大学英语", "通信原理"},
		Predictions: []cohort.PredictionRow{sampleRow()},
		Missing:     []cohort.MissingCourseRow{{StudentID: "2023001", Course: "通信原理", Target1: 72, Target2: 64}},
	}

	paths, err := WriteSheets(dir, "iot", s)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "iot"+PredictionsSuffix),
		filepath.Join(dir, "iot"+MissingCoursesSuffix),
	}, paths)

	other := sampleRow()
	other.StudentID = "2023009"
	other.Major = "电子信息工程"
	other.CourseTargets = []float64{66}
	combined := filepath.Join(dir, "run"+AllSuffix)
	require.NoError(t, WriteCombined(combined, []Sheets{s, {CourseNames: []string{"信号与系统"}, Predictions: []cohort.PredictionRow{other}}}))

	data, err := os.ReadFile(combined)
	require.NoError(t, err)
	rows := readCSV(t, data)
	require.Len(t, rows, 3)
	header := rows[0]
	assert.Equal(t, "Major", header[0])
	assert.Equal(t, []string{"大学英语", "通信原理", "信号与系统"}, header[len(header)-3:])
	assert.Equal(t, []string{"", "", "66"}, rows[2][len(rows[2])-3:])
	assert.Equal(t, "电子信息工程", rows[2][0])
}
