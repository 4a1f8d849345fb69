package projections

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/butp-hub/destination-predictor/internal/domain/cohort"
	"github.com/butp-hub/destination-predictor/internal/domain/shared"
	"github.com/butp-hub/destination-predictor/internal/domain/threshold"
)

func TestRunView(t *testing.T) {
	ctx := context.Background()
	v := NewRunView()
	start := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)

	run := &cohort.Run{ID: "r1", Major: "物联网工程", Bounds: threshold.DefaultBounds(), Students: 2, Evaluated: 1, Failed: 1,
		StartedAt: start, CompletedAt: start.Add(3 * time.Second)}
	search := threshold.Result{S1: 72, S2: 64}
	results := []cohort.StudentResult{
		{RunID: "r1", StudentID: "a", Class: 2, Search: &search},
		{RunID: "r1", StudentID: "b", Error: "boom"},
	}
	violations := []cohort.Violation{
		{Position: 5, StudentID: "z", S1: 60, S2: 70, Difference: 10},
		{Position: 2, StudentID: "y", S1: 61, S2: 62, Difference: 1},
	}
	require.NoError(t, v.SaveRun(ctx, run, results, violations))
	assert.Equal(t, int64(1), v.Version())
	assert.False(t, v.LastUpdated().IsZero())

	err := v.SaveRun(ctx, run, nil, nil)
	assert.True(t, errors.Is(err, shared.ErrAlreadyExists))

	got, err := v.GetRun(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, got.Duration())
	got.Students = 99
	again, _ := v.GetRun(ctx, "r1")
	assert.Equal(t, 2, again.Students, "returned runs are copies")

	res, err := v.GetStudentResult(ctx, "r1", "a")
	require.NoError(t, err)
	assert.Equal(t, 72.0, res.Search.S1)

	failed, err := v.GetStudentResult(ctx, "r1", "b")
	require.NoError(t, err)
	assert.True(t, failed.Failed())

	_, err = v.GetStudentResult(ctx, "r1", "nobody")
	assert.True(t, errors.Is(err, shared.ErrNotFound))
	_, err = v.GetRun(ctx, "missing")
	assert.True(t, shared.IsNotFound(err))

	list, err := v.ListViolations(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, 2, list[0].Position)

	assert.Equal(t, []string{"r1"}, v.RunsForStudent("a"))

	require.NoError(t, v.SaveRun(ctx, &cohort.Run{ID: "r2", StartedAt: start.Add(time.Hour)}, nil, nil))
	recent := v.Recent(1)
	require.Len(t, recent, 1)
	assert.Equal(t, "r2", recent[0].ID)
}
