package student

import (
	"sort"
	"strconv"
	"strings"

	"github.com/butp-hub/destination-predictor/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECORD
// ══════════════════════════════════════════════════════════════════════════════

// Record is one student's graded courses.
type Record struct {
	ID     shared.StudentID
	Major  shared.Major
	Scores map[string]float64 // course name -> grade in [0,100]
}

// NewRecord creates an empty record.
func NewRecord(id shared.StudentID, major shared.Major) *Record {
	return &Record{
		ID:     id,
		Major:  major,
		Scores: make(map[string]float64),
	}
}

// SetScore records a grade; a later row for the same course overwrites an earlier one.
func (r *Record) SetScore(course string, g shared.Grade) {
	r.Scores[course] = g.Float64()
}

// Taken reports whether the student has a grade for course.
func (r *Record) Taken(course string) bool {
	_, ok := r.Scores[course]
	return ok
}

// CourseCount returns the number of graded courses.
func (r *Record) CourseCount() int {
	return len(r.Scores)
}

// ScoresCopy returns a copy of the score map that callers may mutate.
func (r *Record) ScoresCopy() map[string]float64 {
	out := make(map[string]float64, len(r.Scores))
	for k, v := range r.Scores {
		out[k] = v
	}
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// GRADES
// ══════════════════════════════════════════════════════════════════════════════

// letterGrades maps the five-level grading scale to numbers.
var letterGrades = map[string]float64{
	"优":   95,
	"良":   85,
	"中":   75,
	"及格":  65,
	"不及格": 40,
}

// ParseGrade converts a raw grade cell to a Grade.
func ParseGrade(raw string) (shared.Grade, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, shared.ErrInvalidGrade
	}
	if v, ok := letterGrades[s]; ok {
		return shared.Grade(v), nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, shared.ErrInvalidGrade
	}
	g := shared.Grade(v)
	if !g.IsValid() {
		return 0, shared.ErrGradeOutOfRange
	}
	return g, nil
}

// IsElective reports whether a course-attribute cell marks an elective row.
func IsElective(attribute string) bool {
	a := strings.TrimSpace(attribute)
	return strings.Contains(a, "任选课") || strings.EqualFold(a, "elective")
}

// ══════════════════════════════════════════════════════════════════════════════
// COHORT
// ══════════════════════════════════════════════════════════════════════════════

// Cohort is the set of students read from one score file, in first-seen order.
type Cohort struct {
	order   []shared.StudentID
	records map[shared.StudentID]*Record
}

// NewCohort creates an empty cohort.
func NewCohort() *Cohort {
	return &Cohort{records: make(map[shared.StudentID]*Record)}
}

// Record returns the record for id, creating it on first use.
// The first non-empty major seen for a student is kept.
func (c *Cohort) Record(id shared.StudentID, major shared.Major) *Record {
	r, ok := c.records[id]
	if !ok {
		r = NewRecord(id, major)
		c.records[id] = r
		c.order = append(c.order, id)
		return r
	}
	if r.Major == "" && major != "" {
		r.Major = major
	}
	return r
}

// Get returns the record for id.
func (c *Cohort) Get(id shared.StudentID) (*Record, bool) {
	r, ok := c.records[id]
	return r, ok
}

// Len returns the number of students.
func (c *Cohort) Len() int {
	return len(c.order)
}

// All returns every record in first-seen order.
func (c *Cohort) All() []*Record {
	out := make([]*Record, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.records[id])
	}
	return out
}

// HasMajors reports whether any record carries a major.
func (c *Cohort) HasMajors() bool {
	for _, r := range c.records {
		if r.Major != "" {
			return true
		}
	}
	return false
}

// ForMajor returns the records of major in first-seen order.
// The second return value is false when the selection fell back to every
// student because no record matched or the file had no major column.
func (c *Cohort) ForMajor(major shared.Major) ([]*Record, bool) {
	if !c.HasMajors() {
		return c.All(), false
	}
	var out []*Record
	for _, id := range c.order {
		r := c.records[id]
		if r.Major == major {
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return c.All(), false
	}
	return out, true
}

// Majors returns the distinct majors present, sorted.
func (c *Cohort) Majors() []shared.Major {
	seen := make(map[shared.Major]struct{})
	for _, r := range c.records {
		if r.Major != "" {
			seen[r.Major] = struct{}{}
		}
	}
	out := make([]shared.Major, 0, len(seen))
	for m := range seen {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
