package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bissakov/qazcode-rpa-sub001/internal/expr"
	"github.com/bissakov/qazcode-rpa-sub001/internal/ir"
	"github.com/bissakov/qazcode-rpa-sub001/internal/queryir"
	"github.com/bissakov/qazcode-rpa-sub001/internal/querysql"
	"github.com/bissakov/qazcode-rpa-sub001/internal/runlog"
	"github.com/bissakov/qazcode-rpa-sub001/internal/variables"
)

// RunVariable is one stored final variable value.
type RunVariable struct {
	Scope variables.Scope `json:"scope"`
	Name  string          `json:"name"`
	Value expr.Value      `json:"value"`
}

// GetRun returns the run with the given id.
// Returns ErrRunNotFound if no such run exists.
func (s *Store) GetRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, project, program_hash, status, error, started_at, finished_at, steps
		FROM runs
		WHERE id = ?
	`, id)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("get run %s: %w", id, ErrRunNotFound)
	}
	if err != nil {
		return Run{}, fmt.Errorf("get run %s: %w", id, err)
	}
	return run, nil
}

// RunFilter narrows QueryRuns. Zero fields match every run.
type RunFilter struct {
	Project  string
	Statuses []RunStatus

	// Limit caps the number of runs returned; <= 0 returns every run.
	Limit int
}

// ListRuns returns the most recent runs first. limit <= 0 returns every
// run.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	return s.QueryRuns(ctx, RunFilter{Limit: limit})
}

// QueryRuns returns the runs matching f, most recent first.
// ORDER BY started_at DESC, id DESC for deterministic results when two
// runs start in the same millisecond.
func (s *Store) QueryRuns(ctx context.Context, f RunFilter) ([]Run, error) {
	var preds []queryir.Predicate
	if f.Project != "" {
		preds = append(preds, queryir.Equals{Field: "project", Value: ir.Str(f.Project)})
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			statuses[i] = string(st)
		}
		preds = append(preds, queryir.In{Field: "status", Values: queryir.Strs(statuses...)})
	}

	query, args, err := querysql.Compile(queryir.Select{
		From:    queryir.SourceRuns,
		Columns: runColumns,
		Filter:  queryir.AllOf(preds...),
		OrderBy: []queryir.Order{{Field: "started_at", Desc: true}, {Field: "id", Desc: true}},
		Limit:   max(f.Limit, 0),
	})
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("list runs: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

// runColumns is the column order scanRun expects.
var runColumns = []string{"id", "project", "program_hash", "status", "error", "started_at", "finished_at", "steps"}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var (
		run        Run
		status     string
		startedAt  int64
		finishedAt sql.NullInt64
	)
	err := row.Scan(
		&run.ID,
		&run.Project,
		&run.ProgramHash,
		&status,
		&run.Error,
		&startedAt,
		&finishedAt,
		&run.Steps,
	)
	if err != nil {
		return Run{}, err
	}
	run.Status = RunStatus(status)
	run.StartedAt = fromMillis(startedAt)
	if finishedAt.Valid {
		run.FinishedAt = fromMillis(finishedAt.Int64)
	}
	return run, nil
}

// LogFilter narrows QueryLogEntries. Zero fields match every entry.
type LogFilter struct {
	Levels     []runlog.Level
	Activities []runlog.Activity
	NodeID     string

	// Contains keeps entries whose message contains this text
	// (case-sensitive).
	Contains string
}

// predicates returns the filter's conditions for run runID.
func (f LogFilter) predicates(runID string) queryir.Predicate {
	preds := []queryir.Predicate{queryir.Equals{Field: "run_id", Value: ir.Str(runID)}}
	if len(f.Levels) > 0 {
		levels := make([]string, len(f.Levels))
		for i, l := range f.Levels {
			levels[i] = l.String()
		}
		preds = append(preds, queryir.In{Field: "level", Values: queryir.Strs(levels...)})
	}
	if len(f.Activities) > 0 {
		acts := make([]string, len(f.Activities))
		for i, a := range f.Activities {
			acts[i] = string(a)
		}
		preds = append(preds, queryir.In{Field: "activity", Values: queryir.Strs(acts...)})
	}
	if f.NodeID != "" {
		preds = append(preds, queryir.Equals{Field: "node_id", Value: ir.Str(f.NodeID)})
	}
	if f.Contains != "" {
		preds = append(preds, queryir.Contains{Field: "message", Substring: f.Contains})
	}
	return queryir.AllOf(preds...)
}

// ReadLogEntries returns a run's log entries in seq order. When levels
// is non-empty only entries at those levels are returned.
func (s *Store) ReadLogEntries(ctx context.Context, runID string, levels ...runlog.Level) ([]runlog.Entry, error) {
	return s.QueryLogEntries(ctx, runID, LogFilter{Levels: levels})
}

// QueryLogEntries returns the entries of run runID that match f, in seq
// order.
func (s *Store) QueryLogEntries(ctx context.Context, runID string, f LogFilter) ([]runlog.Entry, error) {
	query, args, err := querysql.Compile(queryir.Select{
		From:    queryir.SourceLogEntries,
		Columns: []string{"seq", "elapsed_ns", "timestamp", "node_id", "level", "activity", "message"},
		Filter:  f.predicates(runID),
		OrderBy: []queryir.Order{{Field: "seq"}},
	})
	if err != nil {
		return nil, fmt.Errorf("read log entries: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("read log entries: %w", err)
	}
	defer rows.Close()

	var entries []runlog.Entry
	for rows.Next() {
		var (
			e        runlog.Entry
			seq      int64
			elapsed  int64
			level    string
			activity string
		)
		if err := rows.Scan(&seq, &elapsed, &e.Timestamp, &e.NodeID, &level, &activity, &e.Message); err != nil {
			return nil, fmt.Errorf("read log entries: %w", err)
		}
		lvl, err := runlog.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("read log entry %d: %w", seq, err)
		}
		e.Seq = uint64(seq)
		e.Elapsed = time.Duration(elapsed)
		e.Level = lvl
		e.Activity = runlog.Activity(activity)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read log entries: %w", err)
	}
	return entries, nil
}

// ReadVariables returns a run's stored variables ordered by scope, name.
func (s *Store) ReadVariables(ctx context.Context, runID string) ([]RunVariable, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT scope, name, kind, value
		FROM run_variables
		WHERE run_id = ?
		ORDER BY scope ASC, name ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("read variables: %w", err)
	}
	defer rows.Close()

	var vars []RunVariable
	for rows.Next() {
		var scope, name, kind, data string
		if err := rows.Scan(&scope, &name, &kind, &data); err != nil {
			return nil, fmt.Errorf("read variables: %w", err)
		}
		v, err := unmarshalValue(kind, data)
		if err != nil {
			return nil, fmt.Errorf("read variable %s: %w", name, err)
		}
		vars = append(vars, RunVariable{Scope: variables.Scope(scope), Name: name, Value: v})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read variables: %w", err)
	}
	return vars, nil
}
