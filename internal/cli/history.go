package cli

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bissakov/qazcode-rpa-sub001/internal/runlog"
	"github.com/bissakov/qazcode-rpa-sub001/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Database string
	Limit    int
	Project  string
	Statuses []string
}

// RunSummary is one row of history output.
type RunSummary struct {
	ID          string          `json:"id"`
	Project     string          `json:"project"`
	Status      store.RunStatus `json:"status"`
	Error       string          `json:"error,omitempty"`
	StartedAt   string          `json:"started_at"`
	DurationMS  int64           `json:"duration_ms"`
	Steps       int             `json:"steps"`
	ProgramHash string          `json:"program_hash"`
}

func summarize(r store.Run) RunSummary {
	return RunSummary{
		ID:          r.ID,
		Project:     r.Project,
		Status:      r.Status,
		Error:       r.Error,
		StartedAt:   r.StartedAt.Format("2006-01-02T15:04:05.000Z07:00"),
		DurationMS:  r.Duration().Milliseconds(),
		Steps:       r.Steps,
		ProgramHash: r.ProgramHash,
	}
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded runs",
		Long: `List runs recorded with run --db, newest first.

Example:
  rpa history --db ./runs.db
  rpa history --db ./runs.db --limit 5 --format json
  rpa history --db ./runs.db --project demo --status errored`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum number of runs (0 = all)")
	cmd.Flags().StringVar(&opts.Project, "project", "", "only runs of this project")
	cmd.Flags().StringArrayVar(&opts.Statuses, "status", nil, "only runs with this status (running, completed, stopped, errored; repeatable)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	filter := store.RunFilter{Project: opts.Project, Limit: opts.Limit}
	for _, name := range opts.Statuses {
		status, err := parseRunStatus(name)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --status", err)
		}
		filter.Statuses = append(filter.Statuses, status)
	}

	st, err := openHistory(formatter, opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	runs, err := st.QueryRuns(cmd.Context(), filter)
	if err != nil {
		_ = formatter.Error(ErrCodeDatabase, err.Error(), nil)
		return &ExitError{Code: ExitCommandError, Message: "failed to list runs", Err: err, Reported: true}
	}

	summaries := make([]RunSummary, len(runs))
	for i, r := range runs {
		summaries[i] = summarize(r)
	}

	if formatter.Format == "json" {
		return formatter.Success(summaries)
	}

	if len(summaries) == 0 {
		fmt.Fprintln(formatter.Writer, "No runs recorded")
		return nil
	}
	tw := tabwriter.NewWriter(formatter.Writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN ID\tPROJECT\tSTATUS\tSTARTED\tDURATION\tSTEPS")
	for _, s := range summaries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%dms\t%d\n", s.ID, s.Project, s.Status, s.StartedAt, s.DurationMS, s.Steps)
	}
	return tw.Flush()
}

// LogsOptions holds flags for the logs command.
type LogsOptions struct {
	*RootOptions
	Database   string
	Levels     []string
	Activities []string
	Node       string
	Grep       string
	ShowVars   bool
}

// RunLogs is the JSON payload of logs.
type RunLogs struct {
	Run       RunSummary          `json:"run"`
	Entries   []runlog.Entry      `json:"entries"`
	Variables []store.RunVariable `json:"variables,omitempty"`
}

// NewLogsCommand creates the logs command.
func NewLogsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LogsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "logs <run-id>",
		Short: "Print the log of a recorded run",
		Long: `Print the log entries of a run recorded with run --db.

Example:
  rpa logs --db ./runs.db 0190a5c4-...
  rpa logs --db ./runs.db --level WARN --level ERROR 0190a5c4-...
  rpa logs --db ./runs.db --activity "TRY CATCH" --grep caught 0190a5c4-...`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogs(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringArrayVar(&opts.Levels, "level", nil, "only entries at this level (INFO, WARN, ERROR, DEBUG; repeatable)")
	cmd.Flags().StringArrayVar(&opts.Activities, "activity", nil, "only entries of this activity (e.g. LOG, \"SET VARIABLE\"; repeatable)")
	cmd.Flags().StringVar(&opts.Node, "node", "", "only entries recorded at this node id")
	cmd.Flags().StringVar(&opts.Grep, "grep", "", "only entries whose message contains this text")
	cmd.Flags().BoolVar(&opts.ShowVars, "vars", false, "also print the run's final variables")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runLogs(opts *LogsOptions, runID string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	filter := store.LogFilter{NodeID: opts.Node, Contains: opts.Grep}
	for _, name := range opts.Levels {
		l, err := runlog.ParseLevel(name)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --level", err)
		}
		filter.Levels = append(filter.Levels, l)
	}
	for _, a := range opts.Activities {
		filter.Activities = append(filter.Activities, runlog.Activity(strings.ToUpper(a)))
	}

	st, err := openHistory(formatter, opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := cmd.Context()
	run, err := st.GetRun(ctx, runID)
	if errors.Is(err, store.ErrRunNotFound) {
		_ = formatter.Error(ErrCodeNotFound, fmt.Sprintf("run %s not found", runID), nil)
		return &ExitError{Code: ExitCommandError, Message: "run not found", Err: err, Reported: true}
	}
	if err != nil {
		_ = formatter.Error(ErrCodeDatabase, err.Error(), nil)
		return &ExitError{Code: ExitCommandError, Message: "failed to read run", Err: err, Reported: true}
	}

	entries, err := st.QueryLogEntries(ctx, runID, filter)
	if err != nil {
		_ = formatter.Error(ErrCodeDatabase, err.Error(), nil)
		return &ExitError{Code: ExitCommandError, Message: "failed to read log", Err: err, Reported: true}
	}

	var vars []store.RunVariable
	if opts.ShowVars {
		vars, err = st.ReadVariables(ctx, runID)
		if err != nil {
			_ = formatter.Error(ErrCodeDatabase, err.Error(), nil)
			return &ExitError{Code: ExitCommandError, Message: "failed to read variables", Err: err, Reported: true}
		}
	}

	summary := summarize(run)

	if formatter.Format == "json" {
		if entries == nil {
			entries = []runlog.Entry{}
		}
		return formatter.Success(RunLogs{Run: summary, Entries: entries, Variables: vars})
	}

	fmt.Fprintf(formatter.Writer, "Run %s (%s) %s, %d steps\n", run.ID, run.Project, run.Status, run.Steps)
	for _, e := range entries {
		fmt.Fprintln(formatter.Writer, e.String())
	}
	for _, v := range vars {
		fmt.Fprintf(formatter.Writer, "  %-8s %s = %s\n", v.Scope, v.Name, v.Value.GoString())
	}
	return nil
}

// parseRunStatus accepts a stored status name in any case.
func parseRunStatus(name string) (store.RunStatus, error) {
	status := store.RunStatus(strings.ToLower(name))
	switch status {
	case store.StatusRunning, store.StatusCompleted, store.StatusStopped, store.StatusErrored:
		return status, nil
	}
	return "", fmt.Errorf("unknown run status %q", name)
}

func openHistory(formatter *OutputFormatter, path string) (*store.Store, error) {
	st, err := store.Open(path)
	if err != nil {
		_ = formatter.Error(ErrCodeDatabase, err.Error(), nil)
		return nil, &ExitError{Code: ExitCommandError, Message: "failed to open database", Err: err, Reported: true}
	}
	return st, nil
}
