// Package query contains read operations (CQRS - Queries) over stored runs.
package query

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/butp-hub/destination-predictor/internal/domain/cohort"
	"github.com/butp-hub/destination-predictor/internal/domain/shared"
	"github.com/butp-hub/destination-predictor/internal/domain/threshold"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET RUN QUERY
// Returns the stored summary of one prediction run.
// ══════════════════════════════════════════════════════════════════════════════

// GetRunQuery contains the parameters of the query.
type GetRunQuery struct {
	RunID string

	// IncludeViolations attaches the audit findings of the run.
	IncludeViolations bool
}

// Validate checks the query.
func (q GetRunQuery) Validate() error {
	return validateRunID(q.RunID)
}

// PolicyCountDTO is one histogram bucket.
type PolicyCountDTO struct {
	Policy string `json:"policy"`
	Count  int    `json:"count"`
}

// RunDTO is the API view of a run.
type RunDTO struct {
	ID           string             `json:"id"`
	Major        string             `json:"major"`
	ModelVersion string             `json:"model_version"`
	MinGrade     int                `json:"min_grade"`
	MaxGrade     int                `json:"max_grade"`
	WithSearch   bool               `json:"with_uniform_inverse"`
	Students     int                `json:"students"`
	Evaluated    int                `json:"evaluated"`
	Failed       int                `json:"failed"`
	Violations   int                `json:"violations"`
	StartedAt    time.Time          `json:"started_at"`
	DurationMs   int64              `json:"duration_ms"`
	Stats        StatsDTO           `json:"stats"`
	Findings     []cohort.Violation `json:"findings,omitempty"`
}

// StatsDTO is the API view of cohort.PolicyStats.
type StatsDTO struct {
	S1AtFloor          float64          `json:"s1_at_floor"`
	S2AtFloor          float64          `json:"s2_at_floor"`
	Dominated          float64          `json:"dominated"`
	Multi1             float64          `json:"multi_1"`
	Multi2             float64          `json:"multi_2"`
	FallbackUnverified int              `json:"fallback_unverified"`
	Policy1            []PolicyCountDTO `json:"policy_1"`
	Policy2            []PolicyCountDTO `json:"policy_2"`
}

// GetRunHandler handles GetRunQuery.
type GetRunHandler struct {
	repo cohort.RunRepository
}

// NewGetRunHandler creates a new handler.
func NewGetRunHandler(repo cohort.RunRepository) *GetRunHandler {
	return &GetRunHandler{repo: repo}
}

// Handle executes the query.
func (h *GetRunHandler) Handle(ctx context.Context, q GetRunQuery) (*RunDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	run, err := h.repo.GetRun(ctx, q.RunID)
	if err != nil {
		return nil, err
	}

	dto := newRunDTO(run)
	if q.IncludeViolations {
		if dto.Findings, err = h.repo.ListViolations(ctx, q.RunID); err != nil {
			return nil, fmt.Errorf("failed to list violations: %w", err)
		}
	}
	return dto, nil
}

func newRunDTO(run *cohort.Run) *RunDTO {
	return &RunDTO{
		ID:           run.ID,
		Major:        run.Major.String(),
		ModelVersion: run.ModelVersion,
		MinGrade:     run.Bounds.Min,
		MaxGrade:     run.Bounds.Max,
		WithSearch:   run.WithSearch,
		Students:     run.Students,
		Evaluated:    run.Evaluated,
		Failed:       run.Failed,
		Violations:   run.Violations,
		StartedAt:    run.StartedAt,
		DurationMs:   run.Duration().Milliseconds(),
		Stats: StatsDTO{
			S1AtFloor:          run.Stats.S1AtFloor,
			S2AtFloor:          run.Stats.S2AtFloor,
			Dominated:          run.Stats.Dominated,
			Multi1:             run.Stats.Multi1,
			Multi2:             run.Stats.Multi2,
			FallbackUnverified: run.Stats.Unverified,
			Policy1:            histogram(run.Stats.Policy1Count),
			Policy2:            histogram(run.Stats.Policy2Count),
		},
	}
}

func histogram(h map[threshold.Policy]int) []PolicyCountDTO {
	sorted := cohort.Sorted(h)
	out := make([]PolicyCountDTO, len(sorted))
	for i, pc := range sorted {
		out[i] = PolicyCountDTO{Policy: pc.Policy.String(), Count: pc.Count}
	}
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// GET STUDENT RESULT QUERY
// Returns one student's stored prediction and search result within a run.
// ══════════════════════════════════════════════════════════════════════════════

// GetStudentResultQuery contains the parameters of the query.
type GetStudentResultQuery struct {
	RunID     string
	StudentID string
}

// Validate checks the query.
func (q GetStudentResultQuery) Validate() error {
	if err := validateRunID(q.RunID); err != nil {
		return err
	}
	if !shared.StudentID(q.StudentID).IsValid() {
		return shared.NewDomainError("query", "GetStudentResult", shared.ErrEmptyValue, "student id is required")
	}
	return nil
}

// StudentResultDTO is the API view of a stored student result.
type StudentResultDTO struct {
	RunID          string            `json:"run_id"`
	StudentID      string            `json:"student_id"`
	Major          string            `json:"major"`
	PredictedClass int               `json:"predicted_class"`
	Probabilities  []float64         `json:"probabilities"`
	Search         *threshold.Result `json:"search,omitempty"`
	Error          string            `json:"error,omitempty"`
}

// GetStudentResultHandler handles GetStudentResultQuery.
type GetStudentResultHandler struct {
	repo cohort.RunRepository
}

// NewGetStudentResultHandler creates a new handler.
func NewGetStudentResultHandler(repo cohort.RunRepository) *GetStudentResultHandler {
	return &GetStudentResultHandler{repo: repo}
}

// Handle executes the query.
func (h *GetStudentResultHandler) Handle(ctx context.Context, q GetStudentResultQuery) (*StudentResultDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	res, err := h.repo.GetStudentResult(ctx, q.RunID, shared.StudentID(q.StudentID))
	if err != nil {
		return nil, err
	}

	dto := &StudentResultDTO{
		RunID:          res.RunID,
		StudentID:      res.StudentID.String(),
		Major:          res.Major.String(),
		PredictedClass: res.Class,
		Search:         res.Search,
		Error:          res.Error,
	}
	if !res.Failed() {
		dto.Probabilities = make([]float64, len(res.Probs))
		for i, p := range res.Probs {
			if math.IsNaN(p) {
				p = 0
			}
			dto.Probabilities[i] = p
		}
	}
	return dto, nil
}

func validateRunID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return shared.WrapError("query", "Validate", shared.ErrInvalidInput, "run id must be a UUID", err)
	}
	return nil
}
