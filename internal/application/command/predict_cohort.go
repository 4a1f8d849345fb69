package command

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/butp-hub/destination-predictor/internal/domain/cohort"
	"github.com/butp-hub/destination-predictor/internal/domain/course"
	"github.com/butp-hub/destination-predictor/internal/domain/prediction"
	"github.com/butp-hub/destination-predictor/internal/domain/shared"
	"github.com/butp-hub/destination-predictor/internal/domain/student"
	"github.com/butp-hub/destination-predictor/internal/domain/threshold"
)

// ══════════════════════════════════════════════════════════════════════════════
// PREDICT COHORT COMMAND
// Evaluates every student of one major, audits the result and stores the run.
// ══════════════════════════════════════════════════════════════════════════════

// PredictCohortCommand contains the data needed to evaluate a cohort.
type PredictCohortCommand struct {
	// Students is the ingested cohort.
	Students *student.Cohort

	// Catalog is the required-course plan of Major.
	Catalog *course.Catalog

	// Major selects the students to evaluate. Empty evaluates everyone with
	// their own recorded major.
	Major shared.Major

	Bounds threshold.Bounds

	// WithSearch enables the uniform inverse search.
	WithSearch bool

	// Persist stores the run when a repository is configured.
	Persist bool

	CorrelationID string
}

// Validate validates the command.
func (c PredictCohortCommand) Validate() error {
	if c.Students == nil || c.Students.Len() == 0 {
		return shared.ErrNoStudents
	}
	if c.Catalog == nil {
		return shared.NewDomainError("run", "Validate", shared.ErrConfiguration, "catalog is required")
	}
	return c.Bounds.Validate()
}

// PredictCohortResult is the complete outcome of one run, in processing order.
type PredictCohortResult struct {
	Run         cohort.Run
	Evaluations []cohort.Evaluation
	Rows        []cohort.PredictionRow
	Uniform     []cohort.UniformRow
	Missing     []cohort.MissingCourseRow
	Failed      []cohort.FailedStudent
	Violations  []cohort.Violation

	// FellBack is set when no student matched Major and everyone was evaluated.
	FellBack bool

	// Persisted is set when the run was stored.
	Persisted bool
}

// PredictCohortConfig contains configuration for the handler.
type PredictCohortConfig struct {
	// Concurrency is the number of students evaluated in parallel.
	Concurrency int

	// AuditEvents publishes one event per consistency violation.
	AuditEvents bool
}

// DefaultPredictCohortConfig returns sensible defaults.
func DefaultPredictCohortConfig() PredictCohortConfig {
	return PredictCohortConfig{Concurrency: 8, AuditEvents: true}
}

// PredictCohortHandler handles PredictCohortCommand.
type PredictCohortHandler struct {
	evaluator *StudentEvaluator
	repo      cohort.RunRepository
	publisher shared.EventPublisher
	logger    *slog.Logger
	config    PredictCohortConfig
}

// NewPredictCohortHandler creates a handler. repo and publisher may be nil.
func NewPredictCohortHandler(
	evaluator *StudentEvaluator,
	repo cohort.RunRepository,
	publisher shared.EventPublisher,
	logger *slog.Logger,
	config PredictCohortConfig,
) *PredictCohortHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Concurrency <= 0 {
		config.Concurrency = DefaultPredictCohortConfig().Concurrency
	}
	return &PredictCohortHandler{
		evaluator: evaluator,
		repo:      repo,
		publisher: publisher,
		logger:    logger,
		config:    config,
	}
}

// outcome is the slot of one student in processing order.
type outcome struct {
	ev  cohort.Evaluation
	err error
}

// Handle executes the command. Configuration errors abort before any student
// is evaluated; per-student errors are collected in Failed.
func (h *PredictCohortHandler) Handle(ctx context.Context, cmd PredictCohortCommand) (*PredictCohortResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	engine, err := threshold.NewEngine(cmd.Catalog, cmd.Bounds)
	if err != nil {
		return nil, err
	}

	records, fellBack := h.selectStudents(cmd)
	runID := uuid.New().String()
	started := time.Now()
	log := h.logger.With("run_id", runID, "major", cmd.Major.String())

	log.Info("starting cohort prediction",
		"students", len(records),
		"courses", cmd.Catalog.Len(),
		"with_uniform_inverse", cmd.WithSearch,
		"min_grade", cmd.Bounds.Min,
		"max_grade", cmd.Bounds.Max,
	)
	startedEvent := shared.NewRunStartedEvent(runID, cmd.Major.String(), len(records), cmd.Bounds.Min, cmd.Bounds.Max, cmd.WithSearch)
	startedEvent.BaseEvent = startedEvent.WithCorrelationID(cmd.CorrelationID)
	h.publish(startedEvent, runID)

	scorers := make(map[shared.Major]*prediction.Scorer)
	jobs := make([]studentJob, len(records))
	for i, rec := range records {
		major := cmd.Major
		if major == "" {
			major = rec.Major
		}
		sc, ok := scorers[major]
		if !ok {
			sc = h.evaluator.model.Scorer(cmd.Catalog, major)
			scorers[major] = sc
		}
		jobs[i] = studentJob{
			id:     rec.ID,
			major:  major,
			scores: rec.ScoresCopy(),
			scorer: sc,
			engine: engine,
			search: cmd.WithSearch,
		}
	}

	outcomes := make([]outcome, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.config.Concurrency)
	for i := range jobs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			ev, err := h.evaluator.evaluate(gctx, jobs[i])
			outcomes[i] = outcome{ev: ev, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := h.assemble(runID, cmd, jobs, outcomes)
	res.FellBack = fellBack

	if cmd.WithSearch {
		res.Violations = cohort.Audit(res.Rows)
		h.publishAudit(runID, cmd, res)
	}

	searches := make([]threshold.Result, 0, len(res.Evaluations))
	for _, ev := range res.Evaluations {
		if ev.Search != nil {
			searches = append(searches, *ev.Search)
		}
	}
	stats := cohort.Summarise(searches, cmd.Bounds.Min)

	res.Run = cohort.Run{
		ID:           runID,
		Major:        cmd.Major,
		ModelVersion: h.evaluator.modelVersion,
		Bounds:       cmd.Bounds,
		WithSearch:   cmd.WithSearch,
		Students:     len(jobs),
		Evaluated:    len(res.Evaluations),
		Failed:       len(res.Failed),
		Violations:   len(res.Violations),
		Stats:        stats,
		StartedAt:    started,
		CompletedAt:  time.Now(),
	}

	if cmd.WithSearch {
		h.logStats(log, stats)
	}
	if cmd.Persist {
		res.Persisted = h.persist(ctx, log, res)
	}

	completedEvent := shared.NewRunCompletedEvent(runID, cmd.Major.String(), res.Run.Evaluated, res.Run.Failed,
		res.Run.Violations, res.Run.Duration())
	completedEvent.BaseEvent = completedEvent.WithCorrelationID(cmd.CorrelationID)
	h.publish(completedEvent, runID)

	log.Info("cohort prediction completed",
		"evaluated", res.Run.Evaluated,
		"failed", res.Run.Failed,
		"violations", res.Run.Violations,
		"duration", res.Run.Duration(),
	)
	return res, nil
}

// selectStudents returns the records of cmd.Major, or everyone when Major is
// empty or matches nobody.
func (h *PredictCohortHandler) selectStudents(cmd PredictCohortCommand) ([]*student.Record, bool) {
	if cmd.Major == "" {
		return cmd.Students.All(), false
	}
	records, matched := cmd.Students.ForMajor(cmd.Major)
	if !matched {
		h.logger.Warn("no students matched major, evaluating all students",
			"major", cmd.Major.String(),
			"students", len(records),
			"has_major_column", cmd.Students.HasMajors(),
		)
	}
	return records, !matched
}

// assemble flattens outcomes into sheets in processing order.
func (h *PredictCohortHandler) assemble(runID string, cmd PredictCohortCommand, jobs []studentJob, outcomes []outcome) *PredictCohortResult {
	res := &PredictCohortResult{}
	for i, o := range outcomes {
		job := jobs[i]
		if o.err != nil {
			res.Failed = append(res.Failed, cohort.FailedStudent{Position: i + 1, StudentID: job.id, Major: job.major, Err: o.err})
			h.logger.Error("student evaluation failed", "run_id", runID, "student_id", job.id, "error", o.err)
			h.publish(shared.NewStudentFailedEvent(runID, job.id.String(), o.err), runID)
			continue
		}

		ev := o.ev
		res.Evaluations = append(res.Evaluations, ev)
		row := cohort.NewPredictionRow(ev, cmd.Catalog, job.scores)
		row.Position = i + 1
		res.Rows = append(res.Rows, row)

		s1, s2 := math.NaN(), math.NaN()
		p1, p2 := "", ""
		if ev.Search != nil {
			res.Uniform = append(res.Uniform, cohort.UniformRow{StudentID: ev.StudentID, Major: ev.Major, Result: *ev.Search})
			res.Missing = append(res.Missing, cohort.MissingCourseRows(ev.StudentID, *ev.Search)...)
			s1, s2 = ev.Search.S1, ev.Search.S2
			p1, p2 = ev.Search.Policy1.String(), ev.Search.Policy2.String()
		}
		h.publish(shared.NewStudentEvaluatedEvent(runID, ev.StudentID.String(), ev.Output.Class, s1, s2, p1, p2, ev.CacheHit), runID)
	}
	return res
}

func (h *PredictCohortHandler) publishAudit(runID string, cmd PredictCohortCommand, res *PredictCohortResult) {
	if h.config.AuditEvents {
		for _, v := range res.Violations {
			h.publish(shared.NewConsistencyViolationEvent(runID, v.Position, v.StudentID.String(), v.Major.String(), v.S1, v.S2), runID)
		}
	}
	h.publish(shared.NewCohortAuditedEvent(runID, cmd.Major.String(), len(res.Rows), len(res.Violations)), runID)
}

func (h *PredictCohortHandler) logStats(log *slog.Logger, st cohort.PolicyStats) {
	log.Info("threshold policy statistics",
		"students", st.Students,
		"s1_at_floor", st.S1AtFloor,
		"s2_at_floor", st.S2AtFloor,
		"dominated", st.Dominated,
		"multi_1", st.Multi1,
		"multi_2", st.Multi2,
		"fallback_unverified", st.Unverified,
	)
	for _, pc := range cohort.Sorted(st.Policy1Count) {
		log.Debug("policy histogram", "target", 1, "policy", pc.Policy.String(), "count", pc.Count)
	}
	for _, pc := range cohort.Sorted(st.Policy2Count) {
		log.Debug("policy histogram", "target", 2, "policy", pc.Policy.String(), "count", pc.Count)
	}
}

// persist stores the run; a failure is logged and leaves the run unstored.
func (h *PredictCohortHandler) persist(ctx context.Context, log *slog.Logger, res *PredictCohortResult) bool {
	if h.repo == nil {
		log.Warn("persistence requested but no repository configured", "error", shared.ErrPersistenceDisabled)
		return false
	}

	results := make([]cohort.StudentResult, 0, len(res.Evaluations)+len(res.Failed))
	for _, ev := range res.Evaluations {
		results = append(results, cohort.ResultFromEvaluation(res.Run.ID, ev))
	}
	for _, f := range res.Failed {
		results = append(results, cohort.ResultFromFailure(res.Run.ID, f))
	}

	if err := h.repo.SaveRun(ctx, &res.Run, results, res.Violations); err != nil {
		log.Error("failed to store run", "error", err)
		return false
	}
	return true
}

func (h *PredictCohortHandler) publish(event shared.Event, runID string) {
	if h.publisher == nil {
		return
	}
	if err := h.publisher.Publish(event); err != nil && !errors.Is(err, context.Canceled) {
		h.logger.Warn("failed to publish event", "run_id", runID, "event_type", event.EventType(), "error", err)
	}
}
