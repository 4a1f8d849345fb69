package ingest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/butp-hub/destination-predictor/internal/domain/course"
	"github.com/butp-hub/destination-predictor/internal/domain/shared"
)

func TestReadCatalog_NamedColumns(t *testing.T) {
	data := "\ufeffCourse_Type,Course_Name,Credit,Course_Attribute\n" +
		"数学与自然科学,高等数学,5,必修\n" +
		"英语,大学英语,2,必修\n" +
		"公共课,电影赏析,1,任选课\n" +
		"专业课, 通信原理 ,3.5,专业必修\n"

	c, err := ReadCatalog(strings.NewReader(data), ',', nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"高等数学", "大学英语", "通信原理"}, c.Names())
	got, ok := c.Lookup("通信原理")
	require.True(t, ok)
	assert.Equal(t, course.CategoryMajor, got.Category)
	assert.Equal(t, 3.5, got.Credit)
}

func TestReadCatalog_PositionalFallback(t *testing.T) {
	data := "类型,编号,名称,学分值,a,b,c,d,性质\n" +
		"专业基础,X1,电路分析,4,,,,,必修\n" +
		"实践教学,X2,金工实习,2,,,,,选修\n"

	c, err := ReadCatalog(strings.NewReader(data), ',', nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"电路分析"}, c.Names())
}

func TestReadCatalog_Errors(t *testing.T) {
	_, err := ReadCatalog(strings.NewReader("a,b\n1,2\n"), ',', nil)
	assert.ErrorIs(t, err, shared.ErrConfiguration)

	_, err = ReadCatalog(strings.NewReader("Course_Type,Course_Name,Credit,Course_Attribute\n英语,大学英语,two,必修\n"), ',', nil)
	assert.ErrorIs(t, err, shared.ErrConfiguration)

	_, err = ReadCatalog(strings.NewReader("Course_Type,Course_Name,Credit,Course_Attribute\n英语,大学英语,2,选修\n"), ',', nil)
	assert.ErrorIs(t, err, shared.ErrCatalogEmpty)
}

func TestReadScores(t *testing.T) {
	data := "SNH\tCurrent_Major\tCourse_Name\tGrade\tCourse_Attribute\n" +
		"2023001\t物联网工程\t高等数学\t88\t必修\n" +
		"2023001\t物联网工程\t大学英语\t良\t必修\n" +
		"2023001\t物联网工程\t电影赏析\t95\t公共任选课\n" +
		"2023002\t电子信息工程\t高等数学\t105\t必修\n" +
		"2023002\t电子信息工程\t大学英语\t缓考\t必修\n" +
		"2023002\t电子信息工程\t通信原理\t及格\t必修\n" +
		"\t物联网工程\t高等数学\t70\t必修\n"

	cohort, st, err := ReadScores(strings.NewReader(data), '\t', nil)
	require.NoError(t, err)

	assert.Equal(t, ScoreStats{Rows: 7, Kept: 3, Electives: 1, BadGrades: 2, Incomplete: 1}, st)
	require.Equal(t, 2, cohort.Len())

	s1, ok := cohort.Get("2023001")
	require.True(t, ok)
	assert.Equal(t, map[string]float64{"高等数学": 88, "大学英语": 85}, s1.Scores)
	assert.Equal(t, shared.Major("物联网工程"), s1.Major)

	s2, _ := cohort.Get("2023002")
	assert.Equal(t, map[string]float64{"通信原理": 65}, s2.Scores)
}

func TestReadScores_NoMajorColumn(t *testing.T) {
	data := "学号,Course_Name,成绩\nA1,高等数学,90\n"
	cohort, _, err := ReadScores(strings.NewReader(data), ',', nil)
	require.NoError(t, err)

	assert.False(t, cohort.HasMajors())
	_, ok := cohort.Get("A1")
	assert.True(t, ok, "first column is the student id")
}

func TestReadScores_Errors(t *testing.T) {
	_, _, err := ReadScores(strings.NewReader("SNH,Grade\n1,90\n"), ',', nil)
	assert.ErrorIs(t, err, shared.ErrConfiguration)

	_, _, err = ReadScores(strings.NewReader("SNH,Course_Name,Grade\n1,A,abc\n"), ',', nil)
	assert.ErrorIs(t, err, shared.ErrNoStudents)
}

func TestLoadFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.tsv")
	require.NoError(t, os.WriteFile(path, []byte("Course_Type\tCourse_Name\tCredit\tCourse_Attribute\n英语\t大学英语\t2\t必修\n"), 0o644))

	c, err := LoadCatalog(path, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, c.Len())

	_, err = LoadCatalog(filepath.Join(dir, "missing.csv"), nil)
	assert.ErrorIs(t, err, shared.ErrConfiguration)

	_, _, err = LoadScores(filepath.Join(dir, "missing.csv"), nil)
	assert.ErrorIs(t, err, shared.ErrConfiguration)
}
