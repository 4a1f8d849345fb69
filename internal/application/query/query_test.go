package query

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/butp-hub/destination-predictor/internal/domain/cohort"
	"github.com/butp-hub/destination-predictor/internal/domain/shared"
	"github.com/butp-hub/destination-predictor/internal/domain/threshold"
	"github.com/butp-hub/destination-predictor/internal/infrastructure/persistence/projections"
)

func seededView(t *testing.T) (*projections.RunView, string) {
	t.Helper()
	view := projections.NewRunView()
	id := uuid.New().String()
	start := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)

	search := threshold.Result{S1: 72, S2: 60, Policy1: threshold.PolicyFirstLeft, Policy2: threshold.PolicyFirstLeftOrSingle}
	run := &cohort.Run{
		ID: id, Major: "物联网工程", ModelVersion: "abc", Bounds: threshold.DefaultBounds(), WithSearch: true,
		Students: 2, Evaluated: 1, Failed: 1, Violations: 1,
		Stats: cohort.Summarise([]threshold.Result{search}, 60),
		StartedAt: start, CompletedAt: start.Add(1500 * time.Millisecond),
	}
	results := []cohort.StudentResult{
		{RunID: id, StudentID: "s1", Class: 2, Probs: [3]float64{0.2, 0.5, 0.3}, Search: &search},
		{RunID: id, StudentID: "s2", Error: "classifier exploded"},
	}
	violations := []cohort.Violation{{Position: 1, StudentID: "s9", S1: 60, S2: 65, Difference: 5}}
	require.NoError(t, view.SaveRun(context.Background(), run, results, violations))
	return view, id
}

func TestGetRunHandler(t *testing.T) {
	view, id := seededView(t)
	h := NewGetRunHandler(view)

	dto, err := h.Handle(context.Background(), GetRunQuery{RunID: id, IncludeViolations: true})
	require.NoError(t, err)
	assert.Equal(t, "物联网工程", dto.Major)
	assert.Equal(t, int64(1500), dto.DurationMs)
	assert.Equal(t, 60, dto.MinGrade)
	require.Len(t, dto.Stats.Policy1, 1)
	assert.Equal(t, PolicyCountDTO{Policy: "first_left", Count: 1}, dto.Stats.Policy1[0])
	assert.Equal(t, 1.0, dto.Stats.S2AtFloor)
	require.Len(t, dto.Findings, 1)

	dto, err = h.Handle(context.Background(), GetRunQuery{RunID: id})
	require.NoError(t, err)
	assert.Empty(t, dto.Findings)

	_, err = h.Handle(context.Background(), GetRunQuery{RunID: "not-a-uuid"})
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	_, err = h.Handle(context.Background(), GetRunQuery{RunID: uuid.New().String()})
	assert.True(t, shared.IsNotFound(err))
}

func TestGetStudentResultHandler(t *testing.T) {
	view, id := seededView(t)
	h := NewGetStudentResultHandler(view)

	dto, err := h.Handle(context.Background(), GetStudentResultQuery{RunID: id, StudentID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, 2, dto.PredictedClass)
	assert.Equal(t, []float64{0.2, 0.5, 0.3}, dto.Probabilities)
	require.NotNil(t, dto.Search)
	assert.Equal(t, 72.0, dto.Search.S1)

	dto, err = h.Handle(context.Background(), GetStudentResultQuery{RunID: id, StudentID: "s2"})
	require.NoError(t, err)
	assert.Equal(t, "classifier exploded", dto.Error)
	assert.Nil(t, dto.Probabilities)

	_, err = h.Handle(context.Background(), GetStudentResultQuery{RunID: id, StudentID: " "})
	assert.ErrorIs(t, err, shared.ErrEmptyValue)

	_, err = h.Handle(context.Background(), GetStudentResultQuery{RunID: id, StudentID: "nobody"})
	assert.ErrorIs(t, err, shared.ErrNotFound)
}
