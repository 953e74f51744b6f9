package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bissakov/qazcode-rpa-sub001/internal/engine"
	"github.com/bissakov/qazcode-rpa-sub001/internal/expr"
	"github.com/bissakov/qazcode-rpa-sub001/internal/ir"
	"github.com/bissakov/qazcode-rpa-sub001/internal/runlog"
	"github.com/bissakov/qazcode-rpa-sub001/internal/store"
	"github.com/bissakov/qazcode-rpa-sub001/internal/variables"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Config     string
	Vars       []string
	Powershell string
	Database   string
	MaxSteps   int
	MaxDepth   int
	NodeTrace  bool

	// RunIDs allows overriding the run id generator (for testing).
	// If nil, the engine uses UUIDv7Generator.
	RunIDs engine.RunIDGenerator
}

// RunOutput is the JSON payload of run.
type RunOutput struct {
	Project    string                `json:"project"`
	Status     store.RunStatus       `json:"status"`
	Error      string                `json:"error,omitempty"`
	Steps      int                   `json:"steps"`
	DurationMS int64                 `json:"duration_ms"`
	Globals    map[string]expr.Value `json:"globals"`
	Locals     map[string]expr.Value `json:"locals"`
	Counts     runlog.Counts         `json:"counts"`
	Entries    []runlog.Entry        `json:"entries"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <project-file>",
		Short: "Validate, compile and run a project",
		Long: `Validate, compile and run a project's main scenario.

Warnings, errors and debug entries are printed as the run produces them;
--verbose prints every entry. The final variables and a summary of the
log levels are printed when the run ends. Ctrl-C stops the run at the
next instruction boundary.

Example:
  rpa run project.rpa
  rpa run --var retries=3 --var name=alice --db ./runs.db project.yaml
  rpa run --config run.yaml --powershell pwsh project.cue`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProject(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Config, "config", "", "path to YAML run config")
	cmd.Flags().StringArrayVar(&opts.Vars, "var", nil, "override a Global variable (NAME=VALUE, repeatable)")
	cmd.Flags().StringVar(&opts.Powershell, "powershell", "", "PowerShell executable for RunPowershell activities")
	cmd.Flags().StringVar(&opts.Database, "db", "", "record the run in this SQLite database")
	cmd.Flags().IntVar(&opts.MaxSteps, "max-steps", 0, "stop with STEPS_EXCEEDED after this many instructions (0 = unlimited)")
	cmd.Flags().IntVar(&opts.MaxDepth, "max-call-depth", engine.DefaultMaxCallDepth, "maximum nested scenario calls")
	cmd.Flags().BoolVar(&opts.NodeTrace, "node-trace", false, "log a DEBUG entry for every executed node")

	return cmd
}

func runProject(opts *RunOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	logger := opts.logger()

	cfg, err := LoadRunConfig(opts.Config)
	if err != nil {
		_ = formatter.Error(ErrCodeConfig, err.Error(), nil)
		return &ExitError{Code: ExitCommandError, Message: "failed to load run config", Err: err, Reported: true}
	}
	applyRunFlags(&cfg, opts, cmd)
	if err := cfg.Validate(); err != nil {
		_ = formatter.Error(ErrCodeConfig, err.Error(), nil)
		return &ExitError{Code: ExitCommandError, Message: "invalid run settings", Err: err, Reported: true}
	}

	globals, err := collectGlobals(cfg.Globals, opts.Vars)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --var", err)
	}

	project, program, err := buildProgram(formatter, path)
	if err != nil {
		return err
	}

	var st *store.Store
	if cfg.Database != "" {
		logger.Debug("opening database", "path", cfg.Database)
		st, err = store.Open(cfg.Database)
		if err != nil {
			_ = formatter.Error(ErrCodeDatabase, err.Error(), nil)
			return &ExitError{Code: ExitCommandError, Message: "failed to open database", Err: err, Reported: true}
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Error("error closing database", "error", closeErr)
			}
		}()
	}

	engineOpts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithMaxCallDepth(cfg.MaxCallDepth),
		engine.WithMaxSteps(cfg.MaxSteps),
		engine.WithSnapshotInterval(cfg.SnapshotInterval),
		engine.WithDelaySlice(cfg.DelaySlice),
		engine.WithLogStorage(runlog.NewWithCapacity(cfg.LogCapacity)),
		engine.WithNodeTrace(cfg.NodeTrace),
	}
	if cfg.Powershell != "" {
		engineOpts = append(engineOpts, engine.WithRunner(engine.ExecRunner{Path: cfg.Powershell}))
	}
	if opts.RunIDs != nil {
		engineOpts = append(engineOpts, engine.WithRunIDGenerator(opts.RunIDs))
	}
	for _, g := range globals {
		engineOpts = append(engineOpts, engine.WithGlobal(g.name, g.value))
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	startedAt := time.Now()
	handle := engine.Spawn(ctx, program, project, engineOpts...)
	logger.Debug("run spawned", "run_id", handle.RunID(), "path", path)

	if st != nil {
		beginRun(st, handle.RunID(), project.Name, program, startedAt, logger)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, stopping run", "signal", sig, "run_id", handle.RunID())
			handle.Stop()
		case <-handle.Done():
		}
	}()

	entries := consumeEvents(handle, formatter)
	runErr := handle.Wait()
	finishedAt := time.Now()

	m := handle.Machine()
	status := runStatus(m.State())
	errMsg := ""
	if status == store.StatusErrored && runErr != nil {
		errMsg = runErr.Error()
	}

	if st != nil {
		recordRun(st, handle.RunID(), status, errMsg, m, entries, finishedAt, logger)
	}

	out := RunOutput{
		Project:    project.Name,
		Status:     status,
		Error:      errMsg,
		Steps:      m.Steps(),
		DurationMS: finishedAt.Sub(startedAt).Milliseconds(),
		Globals:    m.Globals(),
		Locals:     m.Locals(),
		Counts:     countLevels(entries),
		Entries:    visibleEntries(entries, opts.Verbose),
	}

	if formatter.Format == "json" {
		if err := formatter.SuccessWithRunID(handle.RunID(), out); err != nil {
			return err
		}
	} else {
		printRunSummary(formatter.Writer, handle.RunID(), out)
	}

	if status == store.StatusErrored {
		return &ExitError{Code: ExitFailure, Message: "run failed", Err: runErr, Reported: true}
	}
	return nil
}

// applyRunFlags overrides cfg with flags set on the command line.
func applyRunFlags(cfg *RunConfig, opts *RunOptions, cmd *cobra.Command) {
	flags := cmd.Flags()
	if flags.Changed("powershell") {
		cfg.Powershell = opts.Powershell
	}
	if flags.Changed("db") {
		cfg.Database = opts.Database
	}
	if flags.Changed("max-steps") {
		cfg.MaxSteps = opts.MaxSteps
	}
	if flags.Changed("max-call-depth") {
		cfg.MaxCallDepth = opts.MaxDepth
	}
	if flags.Changed("node-trace") {
		cfg.NodeTrace = opts.NodeTrace
	}
}

// consumeEvents reads the run's event stream until it closes. Entries are
// echoed in text mode as they arrive; all of them are returned.
func consumeEvents(handle *engine.Handle, formatter *OutputFormatter) []runlog.Entry {
	var entries []runlog.Entry
	for {
		ev, err := handle.Events().Next(context.Background())
		if err != nil {
			return entries
		}
		if ev.Type != engine.EventTypeLog || ev.Log == nil {
			continue
		}
		entries = append(entries, *ev.Log)
		if formatter.Format != "json" && (formatter.Verbose || ev.Log.Level != runlog.LevelInfo) {
			fmt.Fprintln(formatter.Writer, ev.Log.String())
		}
	}
}

// beginRun inserts the run row. A program that cannot be hashed is
// recorded without a hash.
func beginRun(st *store.Store, runID, projectName string, program *ir.Program, startedAt time.Time, logger *slog.Logger) {
	hash, err := ir.Hash(program)
	if err != nil {
		logger.Error("failed to hash program", "run_id", runID, "error", err)
	}
	err = st.BeginRun(context.Background(), store.Run{
		ID:          runID,
		Project:     projectName,
		ProgramHash: hash,
		StartedAt:   startedAt,
	})
	if err != nil {
		logger.Error("failed to record run start", "run_id", runID, "error", err)
	}
}

func recordRun(st *store.Store, runID string, status store.RunStatus, errMsg string, m *engine.Machine, entries []runlog.Entry, finishedAt time.Time, logger *slog.Logger) {
	ctx := context.Background()
	if err := st.WriteLogEntries(ctx, runID, entries); err != nil {
		logger.Error("failed to record log entries", "run_id", runID, "error", err)
	}
	if err := st.WriteVariables(ctx, runID, variables.ScopeGlobal, m.Globals()); err != nil {
		logger.Error("failed to record variables", "run_id", runID, "error", err)
	}
	if err := st.WriteVariables(ctx, runID, variables.ScopeScenario, m.Locals()); err != nil {
		logger.Error("failed to record variables", "run_id", runID, "error", err)
	}
	if err := st.FinishRun(ctx, runID, status, errMsg, m.Steps(), finishedAt); err != nil {
		logger.Error("failed to record run result", "run_id", runID, "error", err)
	}
}

func runStatus(s engine.State) store.RunStatus {
	switch s {
	case engine.StateCompleted:
		return store.StatusCompleted
	case engine.StateStopped:
		return store.StatusStopped
	case engine.StateErrored:
		return store.StatusErrored
	}
	return store.StatusRunning
}

func countLevels(entries []runlog.Entry) runlog.Counts {
	var c runlog.Counts
	for _, e := range entries {
		switch e.Level {
		case runlog.LevelInfo:
			c.Info++
		case runlog.LevelWarning:
			c.Warning++
		case runlog.LevelError:
			c.Error++
		case runlog.LevelDebug:
			c.Debug++
		}
	}
	return c
}

func visibleEntries(entries []runlog.Entry, verbose bool) []runlog.Entry {
	out := []runlog.Entry{}
	for _, e := range entries {
		if verbose || e.Level != runlog.LevelInfo {
			out = append(out, e)
		}
	}
	return out
}

func printRunSummary(w io.Writer, runID string, out RunOutput) {
	fmt.Fprintln(w)
	switch out.Status {
	case store.StatusCompleted:
		fmt.Fprintf(w, "✓ Run %s completed in %dms (%d steps)\n", runID, out.DurationMS, out.Steps)
	case store.StatusStopped:
		fmt.Fprintf(w, "■ Run %s stopped after %dms (%d steps)\n", runID, out.DurationMS, out.Steps)
	default:
		fmt.Fprintf(w, "✗ Run %s failed after %dms (%d steps)\n", runID, out.DurationMS, out.Steps)
		fmt.Fprintf(w, "  %s\n", out.Error)
	}

	fmt.Fprintln(w, "Variables:")
	printVars(w, variables.ScopeGlobal, out.Globals)
	printVars(w, variables.ScopeScenario, out.Locals)

	fmt.Fprintf(w, "Execution summary: %d info, %d warning(s), %d error(s)\n",
		out.Counts.Info, out.Counts.Warning, out.Counts.Error)
}

func printVars(w io.Writer, scope variables.Scope, vars map[string]expr.Value) {
	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-8s %s = %s\n", scope, name, vars[name].GoString())
	}
}

type globalOverride struct {
	name  string
	value expr.Value
}

// collectGlobals merges config globals and --var flags; flags win. The
// result is sorted by name.
func collectGlobals(fromConfig map[string]string, flags []string) ([]globalOverride, error) {
	merged := make(map[string]string, len(fromConfig)+len(flags))
	for name, raw := range fromConfig {
		merged[name] = raw
	}
	for _, f := range flags {
		name, raw, ok := strings.Cut(f, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("expected NAME=VALUE, got %q", f)
		}
		merged[name] = raw
	}

	out := make([]globalOverride, 0, len(merged))
	for name, raw := range merged {
		out = append(out, globalOverride{name: name, value: ParseVarValue(raw)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out, nil
}

// ParseVarValue reads a --var value as a constant expression ("3",
// "true", `"quoted"`), falling back to the raw text as a String.
func ParseVarValue(raw string) expr.Value {
	e, err := expr.Compile(raw)
	if err != nil {
		return expr.String(raw)
	}
	v, err := e.Eval(expr.MapResolver{})
	if err != nil || v.IsUndefined() {
		return expr.String(raw)
	}
	return v
}
