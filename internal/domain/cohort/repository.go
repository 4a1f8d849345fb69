package cohort

import (
	"context"
	"time"

	"github.com/butp-hub/destination-predictor/internal/domain/prediction"
	"github.com/butp-hub/destination-predictor/internal/domain/shared"
	"github.com/butp-hub/destination-predictor/internal/domain/threshold"
)

// ══════════════════════════════════════════════════════════════════════════════
// RUN RECORDS
// ══════════════════════════════════════════════════════════════════════════════

// Run is the stored summary of one cohort prediction run for one major.
type Run struct {
	ID           string           `json:"id"`
	Major        shared.Major     `json:"major"`
	ModelVersion string           `json:"model_version"`
	Bounds       threshold.Bounds `json:"bounds"`
	WithSearch   bool             `json:"with_uniform_inverse"`
	Students     int              `json:"students"`
	Evaluated    int              `json:"evaluated"`
	Failed       int              `json:"failed"`
	Violations   int              `json:"violations"`
	Stats        PolicyStats      `json:"stats"`
	StartedAt    time.Time        `json:"started_at"`
	CompletedAt  time.Time        `json:"completed_at"`
}

// Duration returns the wall time of the run.
func (r Run) Duration() time.Duration {
	if r.CompletedAt.IsZero() {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}

// StudentResult is the stored outcome of one student within a run.
// Error is non-empty for failed students; Search is nil when the search was
// disabled or the student failed.
type StudentResult struct {
	RunID     string                         `json:"run_id"`
	StudentID shared.StudentID               `json:"student_id"`
	Major     shared.Major                   `json:"major"`
	Class     int                            `json:"predicted_class"`
	Probs     [prediction.NumClasses]float64 `json:"probabilities"`
	Search    *threshold.Result              `json:"search,omitempty"`
	Error     string                         `json:"error,omitempty"`
}

// Failed reports whether the student errored.
func (s StudentResult) Failed() bool {
	return s.Error != ""
}

// ResultFromEvaluation converts a successful evaluation into a stored result.
func ResultFromEvaluation(runID string, ev Evaluation) StudentResult {
	return StudentResult{
		RunID:     runID,
		StudentID: ev.StudentID,
		Major:     ev.Major,
		Class:     ev.Output.Class,
		Probs:     ev.Output.Probabilities,
		Search:    ev.Search,
	}
}

// ResultFromFailure converts a failed student into a stored result.
func ResultFromFailure(runID string, f FailedStudent) StudentResult {
	msg := "unknown error"
	if f.Err != nil {
		msg = f.Err.Error()
	}
	return StudentResult{RunID: runID, StudentID: f.StudentID, Major: f.Major, Error: msg}
}

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACE
// Implementations live in infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// RunRepository stores completed runs.
type RunRepository interface {
	// SaveRun stores the run, its student results and its violations atomically.
	SaveRun(ctx context.Context, run *Run, results []StudentResult, violations []Violation) error

	// GetRun returns a run by ID.
	// Returns ErrRunNotFound if the run does not exist.
	GetRun(ctx context.Context, id string) (*Run, error)

	// GetStudentResult returns one student's result within a run.
	// Returns ErrStudentNotFound if the run has no such student.
	GetStudentResult(ctx context.Context, runID string, studentID shared.StudentID) (*StudentResult, error)

	// ListViolations returns the run's violations in processing order.
	ListViolations(ctx context.Context, runID string) ([]Violation, error)
}
