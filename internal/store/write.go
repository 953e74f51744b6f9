package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/bissakov/qazcode-rpa-sub001/internal/expr"
	"github.com/bissakov/qazcode-rpa-sub001/internal/runlog"
	"github.com/bissakov/qazcode-rpa-sub001/internal/variables"
)

// ErrRunNotFound is returned when a run id has no row.
var ErrRunNotFound = errors.New("run not found")

// RunStatus is the stored outcome of a run.
type RunStatus string

const (
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusStopped   RunStatus = "stopped"
	StatusErrored   RunStatus = "errored"
)

// Run is one row of run history.
type Run struct {
	ID          string
	Project     string
	ProgramHash string
	Status      RunStatus
	Error       string
	StartedAt   time.Time

	// FinishedAt is zero while the run is still going.
	FinishedAt time.Time
	Steps      int
}

// Duration returns FinishedAt - StartedAt, or zero for unfinished runs.
func (r Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// BeginRun inserts a run in the running state.
// Uses ON CONFLICT(id) DO NOTHING for idempotency - a repeated BeginRun
// for the same id is silently ignored.
func (s *Store) BeginRun(ctx context.Context, run Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, project, program_hash, status, started_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		run.ID,
		run.Project,
		run.ProgramHash,
		string(StatusRunning),
		toMillis(run.StartedAt),
	)
	if err != nil {
		return fmt.Errorf("begin run: %w", err)
	}
	return nil
}

// FinishRun records the outcome of a run started with BeginRun.
func (s *Store) FinishRun(ctx context.Context, id string, status RunStatus, errMsg string, steps int, finishedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs
		SET status = ?, error = ?, steps = ?, finished_at = ?
		WHERE id = ?
	`,
		string(status),
		errMsg,
		steps,
		toMillis(finishedAt),
		id,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("finish run %s: %w", id, ErrRunNotFound)
	}
	return nil
}

// WriteLogEntries appends entries for a run in one transaction.
// Entries already stored under the same seq are left unchanged, so
// forwarding the same entry twice is harmless.
func (s *Store) WriteLogEntries(ctx context.Context, runID string, entries []runlog.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write log entries: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO log_entries
		(run_id, seq, elapsed_ns, timestamp, node_id, level, activity, message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, seq) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("write log entries: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		_, err := stmt.ExecContext(ctx,
			runID,
			int64(e.Seq),
			int64(e.Elapsed),
			e.Timestamp,
			e.NodeID,
			e.Level.String(),
			string(e.Activity),
			e.Message,
		)
		if err != nil {
			return fmt.Errorf("write log entry %d: %w", e.Seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write log entries: %w", err)
	}
	return nil
}

// WriteVariables stores the final values of one scope. Existing rows for
// the same (run, scope, name) are replaced.
func (s *Store) WriteVariables(ctx context.Context, runID string, scope variables.Scope, vars map[string]expr.Value) error {
	if len(vars) == 0 {
		return nil
	}

	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write variables: %w", err)
	}
	defer tx.Rollback()

	for _, name := range names {
		kind, value, err := marshalValue(vars[name])
		if err != nil {
			return fmt.Errorf("write variable %s: %w", name, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO run_variables (run_id, scope, name, kind, value)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(run_id, scope, name) DO UPDATE SET kind = excluded.kind, value = excluded.value
		`, runID, string(scope), name, kind, value)
		if err != nil {
			return fmt.Errorf("write variable %s: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write variables: %w", err)
	}
	return nil
}

// DeleteRun removes a run and, through ON DELETE CASCADE, its log entries
// and variables.
func (s *Store) DeleteRun(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delete run %s: %w", id, ErrRunNotFound)
	}
	return nil
}
