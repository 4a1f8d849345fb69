package http

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"time"

	"github.com/butp-hub/destination-predictor/internal/application/command"
	"github.com/butp-hub/destination-predictor/internal/application/query"
	"github.com/butp-hub/destination-predictor/internal/domain/cohort"
	"github.com/butp-hub/destination-predictor/internal/domain/course"
	"github.com/butp-hub/destination-predictor/internal/domain/shared"
	"github.com/butp-hub/destination-predictor/internal/domain/threshold"
	"github.com/butp-hub/destination-predictor/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleHealth returns detailed health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker == nil {
		writeJSON(w, r, http.StatusOK, map[string]any{
			"status": "healthy",
			"uptime": s.Uptime().String(),
		})
		return
	}

	status := s.deps.HealthChecker.Check(r.Context())
	httpStatus := http.StatusOK
	if !status.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}
	writeJSON(w, r, httpStatus, status)
}

// handleReady reports whether the critical checks pass.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		if status := s.deps.HealthChecker.Check(r.Context()); !status.Ready {
			writeJSON(w, r, http.StatusServiceUnavailable, map[string]any{"ready": false, "message": status.Message})
			return
		}
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"ready": true})
}

// handleLive is a liveness probe.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]any{"alive": true})
}

// ══════════════════════════════════════════════════════════════════════════════
// EVALUATE HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// CourseRequest is one catalog entry supplied inline with a request.
type CourseRequest struct {
	Name     string  `json:"name"`
	Category string  `json:"category"`
	Credit   float64 `json:"credit"`
}

// EvaluateRequest is the body of POST /api/v1/evaluate.
type EvaluateRequest struct {
	StudentID string             `json:"student_id"`
	Major     string             `json:"major"`
	Scores    map[string]float64 `json:"scores"`

	// Courses overrides the server catalog for this request.
	Courses []CourseRequest `json:"courses,omitempty"`

	MinGrade           *int  `json:"min_grade,omitempty"`
	MaxGrade           *int  `json:"max_grade,omitempty"`
	WithUniformInverse *bool `json:"with_uniform_inverse,omitempty"`
}

// EvaluateResponse is one student's prediction and search result.
// NaN values are encoded as null.
type EvaluateResponse struct {
	StudentID      string              `json:"student_id"`
	Major          string              `json:"major"`
	CoursesTaken   int                 `json:"courses_taken"`
	CatalogSize    int                 `json:"catalog_size"`
	PredictedClass int                 `json:"predicted_class"`
	Probabilities  []*float64          `json:"probabilities"`
	Categories     map[string]*float64 `json:"categories"`
	Strength       *float64            `json:"academic_strength"`
	Search         *threshold.Result   `json:"search,omitempty"`
	CacheHit       bool                `json:"cache_hit"`
	ModelVersion   string              `json:"model_version"`
}

// handleEvaluate predicts one student and runs the uniform-threshold search.
func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	if s.deps.Evaluator == nil {
		writeJSONError(w, r, http.StatusNotImplemented, "not_implemented", "Evaluation is disabled")
		return
	}

	var req EvaluateRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeJSONErrorWithDetails(w, r, http.StatusBadRequest, "invalid_body", "Request body is not valid JSON", err.Error())
		return
	}

	catalog := s.deps.Catalog
	if len(req.Courses) > 0 {
		var err error
		if catalog, err = catalogFromRequest(req.Courses); err != nil {
			s.writeDomainError(w, r, err)
			return
		}
	}
	if catalog == nil {
		writeJSONError(w, r, http.StatusBadRequest, "catalog_required", "No server catalog is loaded; send courses with the request")
		return
	}

	bounds := s.deps.Bounds
	if req.MinGrade != nil {
		bounds.Min = *req.MinGrade
	}
	if req.MaxGrade != nil {
		bounds.Max = *req.MaxGrade
	}
	withSearch := s.deps.WithSearch
	if req.WithUniformInverse != nil {
		withSearch = *req.WithUniformInverse
	}

	ev, err := s.deps.Evaluator.Handle(r.Context(), command.EvaluateStudentCommand{
		StudentID:  shared.StudentID(req.StudentID),
		Major:      shared.Major(req.Major),
		Scores:     req.Scores,
		Catalog:    catalog,
		Bounds:     bounds,
		WithSearch: withSearch,
	})
	// The search itself is not interruptible; a result that arrives after the
	// deadline is discarded.
	if ctxErr := contextExpired(r.Context()); ctxErr != nil {
		writeJSONErrorWithDetails(w, r, http.StatusGatewayTimeout, "timeout",
			"Evaluation did not finish within the request timeout", ctxErr.Error())
		return
	}
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	logger.FromContext(r.Context()).Debug("student evaluated",
		logger.StudentID(req.StudentID),
		logger.Class(ev.Output.Class),
		logger.Bool("cache_hit", ev.CacheHit),
	)

	writeJSONWithMeta(w, r, http.StatusOK, newEvaluateResponse(ev, catalog, s.deps.Evaluator.ModelVersion()),
		&ResponseMeta{ModelVersion: s.deps.Evaluator.ModelVersion()})
}

// contextExpired reports cancellation, or a deadline that has passed even if
// its timer has not fired yet.
func contextExpired(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d, ok := ctx.Deadline(); ok && !time.Now().Before(d) {
		return context.DeadlineExceeded
	}
	return nil
}

func catalogFromRequest(courses []CourseRequest) (*course.Catalog, error) {
	entries := make([]course.Course, len(courses))
	for i, c := range courses {
		entries[i] = course.Course{
			Name:     c.Name,
			Label:    c.Category,
			Category: course.CategoryFromLabel(c.Category),
			Credit:   c.Credit,
			Required: true,
		}
	}
	return course.NewCatalog(entries)
}

func newEvaluateResponse(ev cohort.Evaluation, catalog *course.Catalog, modelVersion string) EvaluateResponse {
	resp := EvaluateResponse{
		StudentID:      ev.StudentID.String(),
		Major:          ev.Major.String(),
		CoursesTaken:   ev.Taken,
		CatalogSize:    catalog.Len(),
		PredictedClass: ev.Output.Class,
		Probabilities:  make([]*float64, len(ev.Output.Probabilities)),
		Categories:     make(map[string]*float64),
		Strength:       nullable(ev.Features.Strength),
		Search:         ev.Search,
		CacheHit:       ev.CacheHit,
		ModelVersion:   modelVersion,
	}
	for i, p := range ev.Output.Probabilities {
		resp.Probabilities[i] = nullable(p)
	}
	for name, v := range ev.Features.Categories.Map() {
		resp.Categories[name] = nullable(v)
	}
	return resp
}

func nullable(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// ══════════════════════════════════════════════════════════════════════════════
// RUN HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleGetRun returns one stored run; ?violations=true attaches the findings.
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.deps.GetRun == nil {
		writeJSONError(w, r, http.StatusNotImplemented, "not_implemented", "Run persistence is disabled")
		return
	}

	dto, err := s.deps.GetRun.Handle(r.Context(), query.GetRunQuery{
		RunID:             r.PathValue("id"),
		IncludeViolations: getQueryParamBool(r, "violations"),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSONWithMeta(w, r, http.StatusOK, dto, &ResponseMeta{ModelVersion: dto.ModelVersion})
}

// handleGetStudentResult returns one student's stored result within a run.
func (s *Server) handleGetStudentResult(w http.ResponseWriter, r *http.Request) {
	if s.deps.GetStudentResult == nil {
		writeJSONError(w, r, http.StatusNotImplemented, "not_implemented", "Run persistence is disabled")
		return
	}

	dto, err := s.deps.GetStudentResult.Handle(r.Context(), query.GetStudentResultQuery{
		RunID:     r.PathValue("id"),
		StudentID: r.PathValue("sid"),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, dto)
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// writeDomainError maps domain error kinds onto HTTP status codes.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		status int
		code   string
	)
	switch {
	case shared.IsNotFound(err):
		status, code = http.StatusNotFound, "not_found"
	case shared.IsValidation(err), errors.Is(err, shared.ErrAlreadyExists):
		status, code = http.StatusBadRequest, "invalid_request"
	case shared.IsConfiguration(err):
		status, code = http.StatusBadRequest, "invalid_configuration"
	case errors.Is(err, shared.ErrEvaluation):
		status, code = http.StatusUnprocessableEntity, "evaluation_failed"
	case shared.IsExternalService(err):
		status, code = http.StatusServiceUnavailable, "service_unavailable"
	default:
		logger.FromContext(r.Context()).Error("request failed", logger.Err(err), logger.String("path", r.URL.Path))
		writeJSONError(w, r, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
		return
	}
	writeJSONErrorWithDetails(w, r, status, code, http.StatusText(status), err.Error())
}
