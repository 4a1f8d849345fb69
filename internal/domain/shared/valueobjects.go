// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"fmt"
	"math"
	"regexp"
	"strings"
)

// ═══════════════════════════════════════════════════════════════════════════
// ID Value Objects
// ═══════════════════════════════════════════════════════════════════════════

// StudentID is the institution's student number (SNH column in the score sheets).
type StudentID string

// IsValid checks if the student ID is usable.
func (s StudentID) IsValid() bool {
	return strings.TrimSpace(string(s)) != ""
}

// String returns the string representation.
func (s StudentID) String() string {
	return string(s)
}

// NewStudentID creates a new StudentID with validation.
func NewStudentID(id string) (StudentID, error) {
	sid := StudentID(strings.TrimSpace(id))
	if !sid.IsValid() {
		return "", NewDomainError("shared", "NewStudentID", ErrEmptyValue, "student ID cannot be empty")
	}
	return sid, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Cohort Value Object
// ═══════════════════════════════════════════════════════════════════════════

// Cohort is the enrolment year of a student group, e.g. "2023".
type Cohort string

var cohortRegex = regexp.MustCompile(`^\d{4}$`)

// IsValid checks if the cohort format is valid.
func (c Cohort) IsValid() bool {
	return cohortRegex.MatchString(string(c))
}

// String returns the string representation.
func (c Cohort) String() string {
	return string(c)
}

// NewCohort creates a new Cohort with validation.
func NewCohort(value string) (Cohort, error) {
	c := Cohort(strings.TrimSpace(value))
	if !c.IsValid() {
		return "", NewDomainError("shared", "NewCohort", ErrInvalidFormat, "invalid cohort format, expected YYYY")
	}
	return c, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Major Value Object
// ═══════════════════════════════════════════════════════════════════════════

// Major is the display name of a degree programme as it appears in the score sheets.
type Major string

// Known majors and their short codes, used in output file names.
var majorCodes = map[Major]string{
	"物联网工程":   "iot",
	"电子商务及法律": "ecwl",
	"电信工程及管理": "tewm",
	"智能科学与技术": "ai",
	"电子信息工程":  "ee",
}

// Code returns the short code of the major, or "unknown".
func (m Major) Code() string {
	if code, ok := majorCodes[Major(strings.TrimSpace(string(m)))]; ok {
		return code
	}
	return "unknown"
}

// String returns the string representation.
func (m Major) String() string {
	return string(m)
}

// ═══════════════════════════════════════════════════════════════════════════
// Grade Value Object
// ═══════════════════════════════════════════════════════════════════════════

// Grade bounds accepted at ingestion.
const (
	MinGrade = 0.0
	MaxGrade = 100.0
)

// Grade is a course score on the 0-100 scale.
type Grade float64

// IsValid checks if the grade is finite and within [0,100].
func (g Grade) IsValid() bool {
	f := float64(g)
	return !math.IsNaN(f) && !math.IsInf(f, 0) && f >= MinGrade && f <= MaxGrade
}

// Float64 returns the underlying value.
func (g Grade) Float64() float64 {
	return float64(g)
}

// NewGrade creates a new Grade with validation.
func NewGrade(value float64) (Grade, error) {
	g := Grade(value)
	if !g.IsValid() {
		return 0, WrapError("shared", "NewGrade", ErrValueOutOfRange, "grade outside [0,100]", fmt.Errorf("got %v", value))
	}
	return g, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Pagination
// ═══════════════════════════════════════════════════════════════════════════

// Pagination holds paging parameters for list queries.
type Pagination struct {
	Page     int
	PageSize int
}

// Offset returns the row offset for SQL queries.
func (p Pagination) Offset() int {
	if p.Page <= 1 {
		return 0
	}
	return (p.Page - 1) * p.Limit()
}

// Limit returns the clamped page size.
func (p Pagination) Limit() int {
	switch {
	case p.PageSize <= 0:
		return 50
	case p.PageSize > 500:
		return 500
	default:
		return p.PageSize
	}
}

// NewPagination creates pagination parameters.
func NewPagination(page, pageSize int) Pagination {
	return Pagination{Page: page, PageSize: pageSize}
}
