// Package projections implements in-memory read models over prediction runs.
package projections

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/butp-hub/destination-predictor/internal/domain/cohort"
	"github.com/butp-hub/destination-predictor/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// RUN VIEW - Denormalized Read Model for Prediction Runs
// ══════════════════════════════════════════════════════════════════════════════

// RunView keeps completed runs in memory, indexed by run and by student.
// It implements cohort.RunRepository and serves the HTTP API when no database
// is configured.
type RunView struct {
	mu sync.RWMutex

	runs       map[string]*cohort.Run
	results    map[string]map[shared.StudentID]cohort.StudentResult
	violations map[string][]cohort.Violation

	// byStudent lists, per student, the runs that contain them, oldest first.
	byStudent map[shared.StudentID][]string

	lastUpdated time.Time
	version     int64
}

// NewRunView creates an empty view.
func NewRunView() *RunView {
	return &RunView{
		runs:       make(map[string]*cohort.Run),
		results:    make(map[string]map[shared.StudentID]cohort.StudentResult),
		violations: make(map[string][]cohort.Violation),
		byStudent:  make(map[shared.StudentID][]string),
	}
}

var _ cohort.RunRepository = (*RunView)(nil)

// SaveRun stores a copy of the run and its rows.
func (v *RunView) SaveRun(_ context.Context, run *cohort.Run, results []cohort.StudentResult, violations []cohort.Violation) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if _, exists := v.runs[run.ID]; exists {
		return shared.NewDomainError("run", "Save", shared.ErrAlreadyExists, "run already stored")
	}

	stored := *run
	v.runs[run.ID] = &stored

	byID := make(map[shared.StudentID]cohort.StudentResult, len(results))
	for _, r := range results {
		byID[r.StudentID] = r
		v.byStudent[r.StudentID] = append(v.byStudent[r.StudentID], run.ID)
	}
	v.results[run.ID] = byID
	v.violations[run.ID] = append([]cohort.Violation(nil), violations...)

	v.lastUpdated = time.Now()
	v.version++
	return nil
}

// GetRun returns a copy of the run.
func (v *RunView) GetRun(_ context.Context, id string) (*cohort.Run, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	run, ok := v.runs[id]
	if !ok {
		return nil, shared.ErrRunNotFound
	}
	out := *run
	return &out, nil
}

// GetStudentResult returns one student's result within a run.
func (v *RunView) GetStudentResult(_ context.Context, runID string, studentID shared.StudentID) (*cohort.StudentResult, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	byID, ok := v.results[runID]
	if !ok {
		return nil, shared.ErrRunNotFound
	}
	res, ok := byID[studentID]
	if !ok {
		return nil, shared.ErrStudentNotFound
	}
	return &res, nil
}

// ListViolations returns the run's violations ordered by position.
func (v *RunView) ListViolations(_ context.Context, runID string) ([]cohort.Violation, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if _, ok := v.runs[runID]; !ok {
		return nil, shared.ErrRunNotFound
	}
	out := append([]cohort.Violation(nil), v.violations[runID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

// RunsForStudent returns the IDs of runs containing the student, oldest first.
func (v *RunView) RunsForStudent(id shared.StudentID) []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return append([]string(nil), v.byStudent[id]...)
}

// Recent returns up to limit runs, newest first.
func (v *RunView) Recent(limit int) []cohort.Run {
	v.mu.RLock()
	defer v.mu.RUnlock()

	out := make([]cohort.Run, 0, len(v.runs))
	for _, r := range v.runs {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Version is incremented on every stored run.
func (v *RunView) Version() int64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.version
}

// LastUpdated returns when the last run was stored.
func (v *RunView) LastUpdated() time.Time {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.lastUpdated
}
