package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/bissakov/qazcode-rpa-sub001/internal/cli"
	"github.com/bissakov/qazcode-rpa-sub001/internal/compiler"
	"github.com/bissakov/qazcode-rpa-sub001/internal/engine"
	"github.com/bissakov/qazcode-rpa-sub001/internal/expr"
	"github.com/bissakov/qazcode-rpa-sub001/internal/graph"
	"github.com/bissakov/qazcode-rpa-sub001/internal/ir"
	"github.com/bissakov/qazcode-rpa-sub001/internal/runlog"
	"github.com/bissakov/qazcode-rpa-sub001/internal/testutil"
)

// ClockStep is how far the harness clock advances per reading.
const ClockStep = time.Millisecond

// Harness holds the deterministic helpers for one case run.
type Harness struct {
	clock  *testutil.StepClock
	runIDs *engine.FixedGenerator
	logger *slog.Logger
}

// Run executes a case and returns the result.
//
// Execution flow:
// 1. Load the project file
// 2. Validate and compile it
// 3. Execute the program with a step clock and a fixed run id
// 4. Check the expect clause and evaluate assertions
//
// The returned error covers failures before execution starts; a run that
// ends in a runtime error is reported through the result.
func Run(c *Case) (*Result, error) {
	return RunContext(context.Background(), c)
}

// RunContext is Run with a caller-supplied context. Cancelling ctx stops
// the run.
func RunContext(ctx context.Context, c *Case) (*Result, error) {
	project, err := cli.LoadProject(c.Project)
	if err != nil {
		return nil, fmt.Errorf("failed to load project: %w", err)
	}

	program, err := build(project)
	if err != nil {
		return nil, err
	}

	opts, err := caseOptions(c)
	if err != nil {
		return nil, err
	}

	h := &Harness{
		clock:  testutil.NewStepClock(ClockStep),
		runIDs: engine.NewFixedGenerator(c.RunID),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	return h.execute(ctx, c, program, project, opts), nil
}

// build validates and compiles project. Validation warnings are ignored.
func build(project *graph.Project) (*ir.Program, error) {
	if vr := compiler.Validate(project); vr.HasErrors() {
		msgs := make([]string, 0, len(vr.Errors()))
		for _, issue := range vr.Errors() {
			msgs = append(msgs, issue.Error())
		}
		return nil, fmt.Errorf("project failed validation: %s", strings.Join(msgs, "; "))
	}

	program, err := compiler.Compile(project)
	if err != nil {
		return nil, fmt.Errorf("failed to compile project: %w", err)
	}
	return program, nil
}

// caseOptions turns the case's run settings into engine options. Globals
// are applied in name order.
func caseOptions(c *Case) ([]engine.Option, error) {
	var opts []engine.Option
	if c.MaxSteps > 0 {
		opts = append(opts, engine.WithMaxSteps(c.MaxSteps))
	}
	if c.MaxCallDepth > 0 {
		opts = append(opts, engine.WithMaxCallDepth(c.MaxCallDepth))
	}
	if c.NodeTrace {
		opts = append(opts, engine.WithNodeTrace(true))
	}

	names := make([]string, 0, len(c.Globals))
	for name := range c.Globals {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		v, err := expr.FromAny(c.Globals[name])
		if err != nil {
			return nil, fmt.Errorf("global %s: %w", name, err)
		}
		opts = append(opts, engine.WithGlobal(name, v))
	}
	return opts, nil
}

func (h *Harness) execute(ctx context.Context, c *Case, program *ir.Program, project *graph.Project, opts []engine.Option) *Result {
	logs := runlog.NewWithCapacity(runlog.MaxEntries)
	opts = append([]engine.Option{
		engine.WithLogger(h.logger),
		engine.WithTimeSource(h.clock),
		engine.WithRunIDGenerator(h.runIDs),
		engine.WithLogStorage(logs),
	}, opts...)

	m := engine.New(program, project, opts...)
	runErr := m.Run(ctx)

	result := NewResult()
	result.RunID = m.RunID()
	result.Status = m.State().String()
	result.Steps = m.Steps()
	if runErr != nil && m.State() == engine.StateErrored {
		result.Error = runErr.Error()
	}
	result.AddTrace(logs.Entries()...)
	result.Globals = m.Globals()
	result.Locals = m.Locals()

	checkExpect(result, c.Expect)
	for _, msg := range EvaluateAssertions(result, c.Assertions) {
		result.AddError(msg)
	}
	return result
}

// checkExpect compares the run outcome against the case's expect clause.
func checkExpect(result *Result, expect Expect) {
	if result.Status != expect.Status {
		msg := fmt.Sprintf("expected status %s, got %s", expect.Status, result.Status)
		if result.Error != "" {
			msg += ": " + result.Error
		}
		result.AddError(msg)
	}
	if expect.Error != "" && !strings.Contains(result.Error, expect.Error) {
		result.AddError(fmt.Sprintf("expected error containing %q, got %q", expect.Error, result.Error))
	}
}
