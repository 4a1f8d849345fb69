package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATOR
// ══════════════════════════════════════════════════════════════════════════════

// Migration is one versioned schema change.
type Migration struct {
	Version   int
	Name      string
	UpSQL     string
	DownSQL   string
	AppliedAt time.Time
	IsApplied bool
}

// Migrator applies embedded migrations and records them in schema_migrations.
type Migrator struct {
	conn       *Connection
	migrations []Migration
	tableName  string
}

// NewMigrator creates a migrator over the embedded migrations.
func NewMigrator(conn *Connection) *Migrator {
	return &Migrator{conn: conn, migrations: GetMigrations(), tableName: "schema_migrations"}
}

func (m *Migrator) ensureTable(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)
	`, m.tableName)

	if _, err := m.conn.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}
	return nil
}

func (m *Migrator) applied(ctx context.Context) (map[int]time.Time, error) {
	rows, err := m.conn.Query(ctx, fmt.Sprintf("SELECT version, applied_at FROM %s ORDER BY version", m.tableName))
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	out := make(map[int]time.Time)
	for rows.Next() {
		var version int
		var at time.Time
		if err := rows.Scan(&version, &at); err != nil {
			return nil, fmt.Errorf("failed to scan migration row: %w", err)
		}
		out[version] = at
	}
	return out, rows.Err()
}

// Migrate applies pending migrations in version order and returns how many ran.
func (m *Migrator) Migrate(ctx context.Context) (int, error) {
	if err := m.ensureTable(ctx); err != nil {
		return 0, err
	}
	done, err := m.applied(ctx)
	if err != nil {
		return 0, err
	}

	ran := 0
	for _, mig := range m.migrations {
		if _, ok := done[mig.Version]; ok {
			continue
		}
		err := m.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, mig.UpSQL); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, fmt.Sprintf("INSERT INTO %s (version, name) VALUES ($1, $2)", m.tableName),
				mig.Version, mig.Name)
			return err
		})
		if err != nil {
			return ran, fmt.Errorf("%w: version %d: %v", ErrMigrationFailed, mig.Version, err)
		}
		ran++
	}
	return ran, nil
}

// Rollback reverts the newest applied migration.
func (m *Migrator) Rollback(ctx context.Context) error {
	if err := m.ensureTable(ctx); err != nil {
		return err
	}
	done, err := m.applied(ctx)
	if err != nil {
		return err
	}

	last := 0
	for v := range done {
		last = max(last, v)
	}
	if last == 0 {
		return nil
	}

	for _, mig := range m.migrations {
		if mig.Version != last {
			continue
		}
		return m.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, mig.DownSQL); err != nil {
				return fmt.Errorf("failed to rollback migration %d: %w", last, err)
			}
			_, err := tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE version = $1", m.tableName), last)
			return err
		})
	}
	return fmt.Errorf("%w: unknown applied version %d", ErrMigrationFailed, last)
}

// Status lists every embedded migration with its applied state.
func (m *Migrator) Status(ctx context.Context) ([]Migration, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}
	done, err := m.applied(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]Migration, len(m.migrations))
	copy(out, m.migrations)
	for i := range out {
		if at, ok := done[out[i].Version]; ok {
			out[i].IsApplied = true
			out[i].AppliedAt = at
		}
	}
	return out, nil
}

// GetMigrations returns the embedded migrations in version order.
func GetMigrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_prediction_runs", UpSQL: migration001Up, DownSQL: migration001Down},
		{Version: 2, Name: "create_student_results", UpSQL: migration002Up, DownSQL: migration002Down},
		{Version: 3, Name: "create_consistency_violations", UpSQL: migration003Up, DownSQL: migration003Down},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: CREATE PREDICTION RUNS
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
CREATE TABLE IF NOT EXISTS prediction_runs (
    id UUID PRIMARY KEY,
    major TEXT NOT NULL,
    model_version VARCHAR(32) NOT NULL,
    min_grade SMALLINT NOT NULL,
    max_grade SMALLINT NOT NULL,
    with_uniform_inverse BOOLEAN NOT NULL DEFAULT TRUE,
    students INTEGER NOT NULL DEFAULT 0,
    evaluated INTEGER NOT NULL DEFAULT 0,
    failed INTEGER NOT NULL DEFAULT 0,
    violations INTEGER NOT NULL DEFAULT 0,
    stats JSONB NOT NULL DEFAULT '{}'::jsonb,
    started_at TIMESTAMP WITH TIME ZONE NOT NULL,
    completed_at TIMESTAMP WITH TIME ZONE NOT NULL,

    CONSTRAINT valid_grade_bounds CHECK (min_grade >= 0 AND max_grade <= 100 AND min_grade < max_grade),
    CONSTRAINT valid_counts CHECK (evaluated + failed <= students)
);

CREATE INDEX IF NOT EXISTS idx_prediction_runs_major ON prediction_runs(major);
CREATE INDEX IF NOT EXISTS idx_prediction_runs_started_at ON prediction_runs(started_at DESC);
`

const migration001Down = `
DROP TABLE IF EXISTS prediction_runs;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: CREATE STUDENT RESULTS
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
CREATE TABLE IF NOT EXISTS student_results (
    run_id UUID NOT NULL REFERENCES prediction_runs(id) ON DELETE CASCADE,
    student_id TEXT NOT NULL,
    major TEXT NOT NULL,
    predicted_class SMALLINT NOT NULL DEFAULT 0,
    probabilities DOUBLE PRECISION[] NOT NULL,
    s_min_for_1 DOUBLE PRECISION,
    s_min_for_2 DOUBLE PRECISION,
    result JSONB,
    error TEXT,

    PRIMARY KEY (run_id, student_id),
    CONSTRAINT valid_class CHECK (predicted_class BETWEEN 0 AND 3)
);

CREATE INDEX IF NOT EXISTS idx_student_results_student ON student_results(student_id);
CREATE INDEX IF NOT EXISTS idx_student_results_failed ON student_results(run_id) WHERE error IS NOT NULL;
`

const migration002Down = `
DROP TABLE IF EXISTS student_results;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: CREATE CONSISTENCY VIOLATIONS
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
CREATE TABLE IF NOT EXISTS consistency_violations (
    run_id UUID NOT NULL REFERENCES prediction_runs(id) ON DELETE CASCADE,
    position INTEGER NOT NULL,
    student_id TEXT NOT NULL,
    major TEXT NOT NULL,
    s1 DOUBLE PRECISION NOT NULL,
    s2 DOUBLE PRECISION NOT NULL,
    difference DOUBLE PRECISION NOT NULL,

    PRIMARY KEY (run_id, position),
    CONSTRAINT s1_below_s2 CHECK (s1 < s2)
);
`

const migration003Down = `
DROP TABLE IF EXISTS consistency_violations;
`
