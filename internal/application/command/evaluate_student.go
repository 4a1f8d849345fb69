// Package command contains write operations (CQRS - Commands): evaluating
// single students and whole cohorts.
package command

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/butp-hub/destination-predictor/internal/domain/cohort"
	"github.com/butp-hub/destination-predictor/internal/domain/course"
	"github.com/butp-hub/destination-predictor/internal/domain/prediction"
	"github.com/butp-hub/destination-predictor/internal/domain/shared"
	"github.com/butp-hub/destination-predictor/internal/domain/threshold"
	"github.com/butp-hub/destination-predictor/internal/infrastructure/metrics"
)

// ══════════════════════════════════════════════════════════════════════════════
// EVALUATE STUDENT COMMAND
// Predicts one student's class and runs the uniform-threshold search.
// ══════════════════════════════════════════════════════════════════════════════

// ResultCache memoises search results by input fingerprint.
// Get must return an error wrapping a miss sentinel when the key is absent;
// any error from Get is treated as a miss.
type ResultCache interface {
	Get(ctx context.Context, fingerprint string) (threshold.Result, error)
	Set(ctx context.Context, fingerprint string, res threshold.Result) error
}

// EvaluateStudentCommand contains the data needed to evaluate one student.
type EvaluateStudentCommand struct {
	StudentID  shared.StudentID
	Major      shared.Major
	Scores     map[string]float64
	Catalog    *course.Catalog
	Bounds     threshold.Bounds
	WithSearch bool
}

// Validate validates the command.
func (c EvaluateStudentCommand) Validate() error {
	if !c.StudentID.IsValid() {
		return shared.NewDomainError("student", "Evaluate", shared.ErrEmptyValue, "student id is required")
	}
	if c.Catalog == nil {
		return shared.NewDomainError("student", "Evaluate", shared.ErrConfiguration, "catalog is required")
	}
	for name, v := range c.Scores {
		if !shared.Grade(v).IsValid() {
			return shared.WrapError("student", "Evaluate", shared.ErrValueOutOfRange,
				"grade outside [0,100]", fmt.Errorf("%s=%v", name, v))
		}
	}
	return c.Bounds.Validate()
}

// StudentEvaluator evaluates students against one loaded model.
type StudentEvaluator struct {
	model        *prediction.Model
	modelVersion string
	cache        ResultCache
	logger       *slog.Logger
}

// NewStudentEvaluator creates an evaluator. cache may be nil.
func NewStudentEvaluator(model *prediction.Model, modelVersion string, cache ResultCache, logger *slog.Logger) *StudentEvaluator {
	if logger == nil {
		logger = slog.Default()
	}
	return &StudentEvaluator{
		model:        model,
		modelVersion: modelVersion,
		cache:        cache,
		logger:       logger,
	}
}

// ModelVersion returns the version of the loaded artifacts.
func (e *StudentEvaluator) ModelVersion() string {
	return e.modelVersion
}

// Handle evaluates a single student.
func (e *StudentEvaluator) Handle(ctx context.Context, cmd EvaluateStudentCommand) (cohort.Evaluation, error) {
	if err := cmd.Validate(); err != nil {
		return cohort.Evaluation{}, err
	}

	engine, err := threshold.NewEngine(cmd.Catalog, cmd.Bounds)
	if err != nil {
		return cohort.Evaluation{}, err
	}

	job := studentJob{
		id:     cmd.StudentID,
		major:  cmd.Major,
		scores: cmd.Scores,
		scorer: e.model.Scorer(cmd.Catalog, cmd.Major),
		engine: engine,
		search: cmd.WithSearch,
	}
	return e.evaluate(ctx, job)
}

// studentJob is one unit of work shared by single and cohort evaluation.
type studentJob struct {
	id     shared.StudentID
	major  shared.Major
	scores map[string]float64
	scorer *prediction.Scorer
	engine *threshold.Engine
	search bool
}

// evaluate runs one student; a panic is returned as ErrStudentPanicked.
func (e *StudentEvaluator) evaluate(ctx context.Context, job studentJob) (ev cohort.Evaluation, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", shared.ErrStudentPanicked, r)
		}
		metrics.StudentEvaluated(job.major.String(), err == nil, time.Since(start))
	}()

	feats, out, err := job.scorer.Evaluate(job.scores)
	if err != nil {
		return cohort.Evaluation{}, err
	}

	ev = cohort.Evaluation{
		StudentID: job.id,
		Major:     job.major,
		Features:  feats,
		Output:    out,
		Taken:     len(job.scores),
	}
	if !job.search {
		return ev, nil
	}

	res, hit, err := e.search(ctx, job)
	if err != nil {
		return cohort.Evaluation{}, err
	}
	ev.Search = &res
	ev.CacheHit = hit

	metrics.PolicySelected("1", res.Policy1.String())
	metrics.PolicySelected("2", res.Policy2.String())
	return ev, nil
}

func (e *StudentEvaluator) search(ctx context.Context, job studentJob) (threshold.Result, bool, error) {
	var key string
	if e.cache != nil {
		key = threshold.Fingerprint(e.modelVersion, job.major.String(), job.engine.Catalog().Digest(),
			job.engine.Bounds(), job.scores)
		res, err := e.cache.Get(ctx, key)
		if err == nil {
			return res, true, nil
		}
		if shared.IsExternalService(err) {
			e.logger.Warn("result cache lookup failed", "student_id", job.id, "error", err)
		}
	}

	res, err := job.engine.Evaluate(job.scores, job.scorer)
	if err != nil {
		return threshold.Result{}, false, err
	}

	if e.cache != nil {
		if err := e.cache.Set(ctx, key, res); err != nil {
			e.logger.Warn("result cache store failed", "student_id", job.id, "error", err)
		}
	}
	return res, false, nil
}
