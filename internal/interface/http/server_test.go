package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/butp-hub/destination-predictor/internal/application/command"
	"github.com/butp-hub/destination-predictor/internal/application/query"
	"github.com/butp-hub/destination-predictor/internal/domain/cohort"
	"github.com/butp-hub/destination-predictor/internal/domain/course"
	"github.com/butp-hub/destination-predictor/internal/domain/prediction"
	"github.com/butp-hub/destination-predictor/internal/domain/threshold"
	"github.com/butp-hub/destination-predictor/internal/infrastructure/persistence/projections"
	"github.com/butp-hub/destination-predictor/internal/interface/http/handlers"
	"github.com/butp-hub/destination-predictor/pkg/logger"
)

// bandClassifier predicts class 1 when basic_major >= 75 and class 2 below.
type bandClassifier struct{}

func (bandClassifier) PredictProba(x []float64) ([]float64, error) {
	if x[1] >= 75 {
		return []float64{0.6, 0.2, 0.2}, nil
	}
	return []float64{0.2, 0.5, 0.3}, nil
}

type envelope struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	Error     *APIError       `json:"error"`
	RequestID string          `json:"request_id"`
}

func testServer(t *testing.T, mutate func(*Config, *Dependencies)) *Server {
	t.Helper()

	cols := []string{"english", "basic_major", "major", prediction.AcademicStrengthColumn}
	scaler := &prediction.StandardScaler{Mean: make([]float64, 4), Scale: []float64{1, 1, 1, 1}}
	model, err := prediction.NewModel(cols, scaler, bandClassifier{}, prediction.DefaultParams())
	require.NoError(t, err)

	catalog, err := course.NewCatalog([]course.Course{
		{Name: "大学英语", Label: "英语", Credit: 2, Required: true},
		{Name: "电路分析", Label: "专业基础", Credit: 4, Required: true},
		{Name: "信号与系统", Label: "专业课", Credit: 4, Required: true},
	})
	require.NoError(t, err)

	cfg := DefaultConfig()
	deps := Dependencies{
		Evaluator:  command.NewStudentEvaluator(model, "v1", nil, nil),
		Catalog:    catalog,
		Bounds:     threshold.DefaultBounds(),
		WithSearch: true,
		Logger:     logger.New(logger.Options{Output: &strings.Builder{}, Level: logger.LevelError}),
	}
	if mutate != nil {
		mutate(&cfg, &deps)
	}
	return NewServer(cfg, deps)
}

func do(t *testing.T, s *Server, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func TestEvaluate_Success(t *testing.T) {
	s := testServer(t, nil)

	rec, env := do(t, s, http.MethodPost, "/api/v1/evaluate",
		`{"student_id":"2021001","major":"物联网工程","scores":{"大学英语":80}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, env.Success)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, rec.Header().Get("X-Request-ID"), env.RequestID)

	var resp EvaluateResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.Equal(t, 2, resp.PredictedClass)
	assert.Equal(t, 1, resp.CoursesTaken)
	assert.Equal(t, 3, resp.CatalogSize)
	assert.Equal(t, "v1", resp.ModelVersion)
	assert.False(t, resp.CacheHit)
	require.NotNil(t, resp.Categories["english"])
	assert.Equal(t, 80.0, *resp.Categories["english"])

	require.NotNil(t, resp.Search)
	assert.Equal(t, 75.0, resp.Search.S1)
	assert.Equal(t, 60.0, resp.Search.S2)
	assert.Equal(t, threshold.PolicyFirstLeft, resp.Search.Policy1)
	assert.Equal(t, []string{"电路分析", "信号与系统"}, resp.Search.MissingCourses)
}

func TestEvaluate_RequestOverrides(t *testing.T) {
	s := testServer(t, func(_ *Config, d *Dependencies) { d.Catalog = nil })

	rec, env := do(t, s, http.MethodPost, "/api/v1/evaluate", `{
		"student_id":"2021001","major":"物联网工程","scores":{"大学英语":80},
		"courses":[{"name":"大学英语","category":"英语","credit":2},{"name":"电路分析","category":"专业基础","credit":4}],
		"with_uniform_inverse":false}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp EvaluateResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.Equal(t, 2, resp.CatalogSize)
	assert.Nil(t, resp.Search)
}

func TestEvaluate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"malformed", `{"student_id":`, http.StatusBadRequest, "invalid_body"},
		{"unknown field", `{"student":"x"}`, http.StatusBadRequest, "invalid_body"},
		{"missing id", `{"major":"物联网工程","scores":{}}`, http.StatusBadRequest, "invalid_request"},
		{"grade out of range", `{"student_id":"a","scores":{"大学英语":120}}`, http.StatusBadRequest, "invalid_request"},
		{"inverted bounds", `{"student_id":"a","scores":{},"min_grade":90,"max_grade":60}`, http.StatusBadRequest, "invalid_configuration"},
		{"empty inline catalog", `{"student_id":"a","scores":{},"courses":[{"name":"x","category":"英语","credit":0}]}`, http.StatusBadRequest, "invalid_request"},
	}

	s := testServer(t, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := do(t, s, http.MethodPost, "/api/v1/evaluate", tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.False(t, env.Success)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.code, env.Error.Code)
		})
	}
}

func TestEvaluate_Disabled(t *testing.T) {
	s := testServer(t, func(_ *Config, d *Dependencies) { d.Evaluator = nil })

	rec, _ := do(t, s, http.MethodPost, "/api/v1/evaluate", `{}`)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)

	rec, _ = do(t, s, http.MethodGet, "/api/v1/runs/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestRunEndpoints(t *testing.T) {
	view := projections.NewRunView()
	id := uuid.NewString()
	start := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	search := threshold.Result{S1: 72, S2: 60, Policy1: threshold.PolicyFirstLeft, Policy2: threshold.PolicyFirstLeftOrSingle}
	run := &cohort.Run{
		ID: id, Major: "物联网工程", ModelVersion: "v1", Bounds: threshold.DefaultBounds(), WithSearch: true,
		Students: 1, Evaluated: 1, Violations: 1,
		Stats:     cohort.Summarise([]threshold.Result{search}, 60),
		StartedAt: start, CompletedAt: start.Add(time.Second),
	}
	results := []cohort.StudentResult{{RunID: id, StudentID: "s1", Class: 2, Probs: [3]float64{0.2, 0.5, 0.3}, Search: &search}}
	violations := []cohort.Violation{{Position: 1, StudentID: "s9", S1: 60, S2: 65, Difference: 5}}
	require.NoError(t, view.SaveRun(context.Background(), run, results, violations))

	s := testServer(t, func(_ *Config, d *Dependencies) {
		d.GetRun = query.NewGetRunHandler(view)
		d.GetStudentResult = query.NewGetStudentResultHandler(view)
	})

	rec, env := do(t, s, http.MethodGet, "/api/v1/runs/"+id+"?violations=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var dto query.RunDTO
	require.NoError(t, json.Unmarshal(env.Data, &dto))
	assert.Equal(t, id, dto.ID)
	assert.Equal(t, int64(1000), dto.DurationMs)
	assert.Len(t, dto.Findings, 1)

	rec, env = do(t, s, http.MethodGet, "/api/v1/runs/"+id+"/students/s1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var sr query.StudentResultDTO
	require.NoError(t, json.Unmarshal(env.Data, &sr))
	assert.Equal(t, 2, sr.PredictedClass)
	require.NotNil(t, sr.Search)
	assert.Equal(t, 72.0, sr.Search.S1)

	rec, _ = do(t, s, http.MethodGet, "/api/v1/runs/"+id+"/students/nobody", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = do(t, s, http.MethodGet, "/api/v1/runs/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = do(t, s, http.MethodGet, "/api/v1/runs/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthAndReadiness(t *testing.T) {
	checker := handlers.NewCompositeHealthChecker("test")
	checker.AddCheck("model", handlers.NewModelCheck("v1"))
	checker.AddOptionalCheck("cache", func(context.Context) error { return errors.New("connection refused") })

	s := testServer(t, func(_ *Config, d *Dependencies) { d.HealthChecker = checker })

	rec, env := do(t, s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var status handlers.HealthStatus
	require.NoError(t, json.Unmarshal(env.Data, &status))
	assert.False(t, status.Healthy)
	assert.True(t, status.Ready)
	assert.Equal(t, "Some checks failed: cache", status.Message)

	rec, _ = do(t, s, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = do(t, s, http.MethodGet, "/live", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = do(t, s, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestEvaluate_RequestTimeout(t *testing.T) {
	s := testServer(t, func(c *Config, _ *Dependencies) { c.RequestTimeout = time.Nanosecond })

	rec, env := do(t, s, http.MethodPost, "/api/v1/evaluate",
		`{"student_id":"2021001","major":"物联网工程","scores":{"大学英语":80}}`)
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "timeout", env.Error.Code)
	assert.False(t, env.Success)
}

func TestRateLimit(t *testing.T) {
	s := testServer(t, func(c *Config, _ *Dependencies) { c.RateLimitPerMinute = 1 })
	defer s.limiters.Stop()

	rec, _ := do(t, s, http.MethodGet, "/live", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, env := do(t, s, http.MethodGet, "/live", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "rate_limit_exceeded", env.Error.Code)
}
