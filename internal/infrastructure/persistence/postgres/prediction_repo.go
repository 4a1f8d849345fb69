package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/jackc/pgx/v5"

	"github.com/butp-hub/destination-predictor/internal/domain/cohort"
	"github.com/butp-hub/destination-predictor/internal/domain/shared"
	"github.com/butp-hub/destination-predictor/internal/domain/threshold"
)

// ══════════════════════════════════════════════════════════════════════════════
// PREDICTION REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// PredictionRepository implements cohort.RunRepository for PostgreSQL.
type PredictionRepository struct {
	conn *Connection
}

// NewPredictionRepository creates a new PredictionRepository.
func NewPredictionRepository(conn *Connection) *PredictionRepository {
	return &PredictionRepository{conn: conn}
}

var _ cohort.RunRepository = (*PredictionRepository)(nil)

// SaveRun inserts the run, all student rows and all violations in one transaction.
func (r *PredictionRepository) SaveRun(ctx context.Context, run *cohort.Run, results []cohort.StudentResult, violations []cohort.Violation) error {
	stats, err := json.Marshal(run.Stats)
	if err != nil {
		return fmt.Errorf("failed to marshal run stats: %w", err)
	}

	return r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO prediction_runs (
				id, major, model_version, min_grade, max_grade, with_uniform_inverse,
				students, evaluated, failed, violations, stats, started_at, completed_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		`,
			run.ID, string(run.Major), run.ModelVersion, run.Bounds.Min, run.Bounds.Max, run.WithSearch,
			run.Students, run.Evaluated, run.Failed, run.Violations, stats, run.StartedAt, run.CompletedAt,
		)
		if err != nil {
			if IsUniqueViolation(err) {
				return shared.WrapError("run", "Save", shared.ErrAlreadyExists, "run already stored", err)
			}
			return fmt.Errorf("failed to insert run: %w", err)
		}

		batch := &pgx.Batch{}
		for _, res := range results {
			if err := queueStudentResult(batch, res); err != nil {
				return err
			}
		}
		for _, v := range violations {
			batch.Queue(`
				INSERT INTO consistency_violations (run_id, position, student_id, major, s1, s2, difference)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
			`, run.ID, v.Position, string(v.StudentID), string(v.Major), v.S1, v.S2, v.Difference)
		}
		if batch.Len() == 0 {
			return nil
		}

		br := tx.SendBatch(ctx, batch)
		for i := 0; i < batch.Len(); i++ {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				return fmt.Errorf("failed to insert run rows: %w", err)
			}
		}
		return br.Close()
	})
}

func queueStudentResult(batch *pgx.Batch, res cohort.StudentResult) error {
	var (
		payload []byte
		s1, s2  *float64
		errText *string
	)
	if res.Search != nil {
		var err error
		if payload, err = json.Marshal(res.Search); err != nil {
			return fmt.Errorf("failed to marshal result of %s: %w", res.StudentID, err)
		}
		s1, s2 = nullFloat(res.Search.S1), nullFloat(res.Search.S2)
	}
	if res.Error != "" {
		errText = &res.Error
	}

	batch.Queue(`
		INSERT INTO student_results (
			run_id, student_id, major, predicted_class, probabilities,
			s_min_for_1, s_min_for_2, result, error
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, res.RunID, string(res.StudentID), string(res.Major), res.Class, res.Probs[:], s1, s2, payload, errText)
	return nil
}

// GetRun returns a run by ID.
func (r *PredictionRepository) GetRun(ctx context.Context, id string) (*cohort.Run, error) {
	var (
		run   cohort.Run
		major string
		stats []byte
	)
	err := r.conn.QueryRow(ctx, `
		SELECT id, major, model_version, min_grade, max_grade, with_uniform_inverse,
			   students, evaluated, failed, violations, stats, started_at, completed_at
		FROM prediction_runs
		WHERE id = $1
	`, id).Scan(
		&run.ID, &major, &run.ModelVersion, &run.Bounds.Min, &run.Bounds.Max, &run.WithSearch,
		&run.Students, &run.Evaluated, &run.Failed, &run.Violations, &stats, &run.StartedAt, &run.CompletedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrRunNotFound
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	run.Major = shared.Major(major)
	if err := json.Unmarshal(stats, &run.Stats); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run stats: %w", err)
	}
	return &run, nil
}

// GetStudentResult returns one student's stored result.
func (r *PredictionRepository) GetStudentResult(ctx context.Context, runID string, studentID shared.StudentID) (*cohort.StudentResult, error) {
	var (
		res     cohort.StudentResult
		sid     string
		major   string
		probs   []float64
		payload []byte
		errText *string
	)
	err := r.conn.QueryRow(ctx, `
		SELECT run_id, student_id, major, predicted_class, probabilities, result, error
		FROM student_results
		WHERE run_id = $1 AND student_id = $2
	`, runID, string(studentID)).Scan(&res.RunID, &sid, &major, &res.Class, &probs, &payload, &errText)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrStudentNotFound
		}
		return nil, fmt.Errorf("failed to get student result: %w", err)
	}

	res.StudentID = shared.StudentID(sid)
	res.Major = shared.Major(major)
	copy(res.Probs[:], probs)
	if errText != nil {
		res.Error = *errText
	}
	if len(payload) > 0 {
		var search threshold.Result
		if err := json.Unmarshal(payload, &search); err != nil {
			return nil, fmt.Errorf("failed to unmarshal result of %s: %w", sid, err)
		}
		res.Search = &search
	}
	return &res, nil
}

// ListViolations returns the run's violations ordered by position.
func (r *PredictionRepository) ListViolations(ctx context.Context, runID string) ([]cohort.Violation, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT position, student_id, major, s1, s2, difference
		FROM consistency_violations
		WHERE run_id = $1
		ORDER BY position
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query violations: %w", err)
	}
	defer rows.Close()

	var out []cohort.Violation
	for rows.Next() {
		var v cohort.Violation
		var sid, major string
		if err := rows.Scan(&v.Position, &sid, &major, &v.S1, &v.S2, &v.Difference); err != nil {
			return nil, fmt.Errorf("failed to scan violation: %w", err)
		}
		v.StudentID = shared.StudentID(sid)
		v.Major = shared.Major(major)
		out = append(out, v)
	}
	return out, rows.Err()
}

func nullFloat(v float64) *float64 {
	if math.IsNaN(v) {
		return nil
	}
	return &v
}
