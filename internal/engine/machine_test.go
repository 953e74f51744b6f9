package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bissakov/qazcode-rpa-sub001/internal/compiler"
	"github.com/bissakov/qazcode-rpa-sub001/internal/expr"
	"github.com/bissakov/qazcode-rpa-sub001/internal/graph"
	"github.com/bissakov/qazcode-rpa-sub001/internal/ir"
	"github.com/bissakov/qazcode-rpa-sub001/internal/runlog"
	"github.com/bissakov/qazcode-rpa-sub001/internal/stopcontrol"
	"github.com/bissakov/qazcode-rpa-sub001/internal/testutil"
	"github.com/bissakov/qazcode-rpa-sub001/internal/variables"
)

func mustCompile(t *testing.T, p *graph.Project) *ir.Program {
	t.Helper()
	prog, err := compiler.Compile(p)
	require.NoError(t, err)
	return prog
}

func newTestMachine(t *testing.T, p *graph.Project, opts ...Option) *Machine {
	t.Helper()
	base := []Option{
		WithRunIDGenerator(NewFixedGenerator("run-1")),
		WithTimeSource(testutil.NewStepClock(time.Millisecond)),
		WithLogStorage(runlog.NewWithCapacity(runlog.MaxEntries)),
	}
	return New(mustCompile(t, p), p, append(base, opts...)...)
}

func runProject(t *testing.T, p *graph.Project, opts ...Option) (*Machine, error) {
	t.Helper()
	m := newTestMachine(t, p, opts...)
	return m, m.Run(context.Background())
}

// messages returns the messages of entries with the given activity.
func messages(s *runlog.Storage, activity runlog.Activity) []string {
	out := []string{}
	for _, e := range s.Entries() {
		if e.Activity == activity {
			out = append(out, e.Message)
		}
	}
	return out
}

func TestMachine_SetThenLog(t *testing.T) {
	m, err := runProject(t, testutil.SetThenLog())
	require.NoError(t, err)

	assert.Equal(t, []string{"5"}, messages(m.Logs(), runlog.ActivityLog))
	assert.Equal(t, expr.Number(5), m.Locals()["x"])
	assert.Equal(t, StateCompleted, m.State())
	assert.Equal(t, "run-1", m.RunID())
}

func TestMachine_ScenarioLifecycleLines(t *testing.T) {
	m, err := runProject(t, testutil.SetThenLog())
	require.NoError(t, err)

	assert.Equal(t, []string{"Starting scenario: main"}, messages(m.Logs(), runlog.ActivityStart))
	assert.Equal(t, []string{"Ending scenario: main"}, messages(m.Logs(), runlog.ActivityEnd))
	assert.Equal(t, []string{"x = 5"}, messages(m.Logs(), runlog.ActivitySetVariable))
}

func TestMachine_CountedLoop(t *testing.T) {
	tests := []struct {
		name             string
		start, end, step int64
		want             []string
	}{
		{"ascending inclusive", 0, 3, 1, []string{"i=0", "i=1", "i=2", "i=3"}},
		{"bounds exclude start", 3, 0, 1, []string{}},
		{"descending", 3, 0, -1, []string{"i=3", "i=2", "i=1", "i=0"}},
		{"step two", 0, 5, 2, []string{"i=0", "i=2", "i=4"}},
		{"single iteration", 2, 2, 1, []string{"i=2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := runProject(t, testutil.CountedLoop(tt.start, tt.end, tt.step))
			require.NoError(t, err)
			assert.Equal(t, tt.want, messages(m.Logs(), runlog.ActivityLog))
		})
	}
}

func TestMachine_LoopStepZeroSkips(t *testing.T) {
	m, err := runProject(t, testutil.CountedLoop(0, 3, 0))
	require.NoError(t, err)

	assert.Empty(t, messages(m.Logs(), runlog.ActivityLog))
	assert.Contains(t, messages(m.Logs(), runlog.ActivityLoop), "Step is 0, loop skipped")
	assert.Equal(t, 1, m.Logs().Counts().Warning)
}

func TestMachine_LoopContinue(t *testing.T) {
	m, err := runProject(t, testutil.LoopContinue())
	require.NoError(t, err)

	assert.Equal(t, []string{"i=0", "i=1", "i=3"}, messages(m.Logs(), runlog.ActivityLog))
	assert.Equal(t, []string{"Continue to next iteration"}, messages(m.Logs(), runlog.ActivityContinue))
}

func TestMachine_TryCallCatchesAndCalls(t *testing.T) {
	m, err := runProject(t, testutil.TryCall())
	require.NoError(t, err)

	assert.Equal(t, []string{"caught: Division by zero", "n is 21"}, messages(m.Logs(), runlog.ActivityLog))
	assert.Equal(t, []string{"Error caught: Division by zero"}, messages(m.Logs(), runlog.ActivityTryCatch)[1:2])

	globals := m.Globals()
	assert.Equal(t, expr.String("Division by zero"), globals[LastErrorVar])
	assert.NotContains(t, globals, "n")
	assert.NotContains(t, globals, "result")
	assert.NotContains(t, globals, "out")

	locals := m.Locals()
	assert.Equal(t, expr.Number(42), locals["out"])
	assert.NotContains(t, locals, "n")
	assert.NotContains(t, locals, "result")

	assert.Empty(t, m.handlers)
	assert.Empty(t, m.frames)
}

func TestMachine_TryBranchesEndSeparately(t *testing.T) {
	t.Run("caught", func(t *testing.T) {
		m, err := runProject(t, testutil.TrySplitEnds())
		require.NoError(t, err)

		assert.Equal(t, StateCompleted, m.State())
		assert.Equal(t, []string{"caught: Division by zero"}, messages(m.Logs(), runlog.ActivityLog))
		assert.Equal(t, []string{"Ending scenario: main"}, messages(m.Logs(), runlog.ActivityEnd))
	})

	t.Run("no error", func(t *testing.T) {
		m, err := runProject(t, testutil.TrySplitEnds(), WithGlobal("zero", expr.Number(2)))
		require.NoError(t, err)

		assert.Equal(t, StateCompleted, m.State())
		assert.Empty(t, messages(m.Logs(), runlog.ActivityLog))
		assert.Equal(t, []string{"Expression evaluated to 0.5"}, messages(m.Logs(), runlog.ActivityEvaluate))
	})
}

func TestMachine_NestedTryPopsOnlyInnerHandler(t *testing.T) {
	s := testutil.NewScenario("main").
		Node("start", graph.Start{}).
		Node("outer", graph.TryCatch{}).
		Node("inner", graph.TryCatch{}).
		Node("bad1", graph.Evaluate{Expression: "1 / $zero"}).
		Node("c1", graph.Log{Message: "inner"}).
		Node("bad2", graph.Evaluate{Expression: "$missing + 1"}).
		Node("c2", graph.Log{Message: "outer: {$last_error}"}).
		Node("end", graph.End{}).
		Edge("start", "outer").
		Branch("outer", "inner", graph.BranchTry).
		Branch("outer", "c2", graph.BranchCatch).
		Edge("outer", "end").
		Branch("inner", "bad1", graph.BranchTry).
		Branch("inner", "c1", graph.BranchCatch).
		Edge("inner", "bad2").
		Build()
	p := testutil.WithGlobal(testutil.NewProject(s), "zero", expr.Number(0))

	m, err := runProject(t, p)
	require.NoError(t, err)

	assert.Equal(t, []string{"inner", "outer: Undefined variable: missing"}, messages(m.Logs(), runlog.ActivityLog))

	var caught []string
	for _, msg := range messages(m.Logs(), runlog.ActivityTryCatch) {
		if strings.HasPrefix(msg, "Error caught:") {
			caught = append(caught, msg)
		}
	}
	assert.Equal(t, []string{
		"Error caught: Division by zero",
		"Error caught: Undefined variable: missing",
	}, caught)
	assert.Empty(t, m.handlers)
}

func TestMachine_WhileBreakInTry(t *testing.T) {
	m, err := runProject(t, testutil.WhileBreakInTry())
	require.NoError(t, err)

	assert.Equal(t, expr.Number(2), m.Globals()["n"])
	assert.Equal(t, []string{"Breaking out of loop"}, messages(m.Logs(), runlog.ActivityBreak))
	assert.Empty(t, m.handlers, "break from a try branch pops its handler")
	assert.Empty(t, m.whileCounts)
}

func TestMachine_WhileCountsIterations(t *testing.T) {
	s := testutil.NewScenario("main").
		Node("start", graph.Start{}).
		Node("w", graph.While{Condition: "$n < 3"}).
		Node("inc", graph.SetVariable{Name: "n", Value: "$n + 1", IsGlobal: true}).
		Node("end", graph.End{}).
		Edge("start", "w").
		Branch("w", "inc", graph.BranchLoopBody).
		Edge("w", "end").
		Build()
	p := testutil.WithGlobal(testutil.NewProject(s), "n", expr.Number(0))

	m, err := runProject(t, p)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"Condition evaluated to: true",
		"Iteration 1: condition is true",
		"Condition evaluated to: true",
		"Iteration 2: condition is true",
		"Condition evaluated to: true",
		"Iteration 3: condition is true",
		"Condition evaluated to: false",
		"Completed 3 iterations",
	}, messages(m.Logs(), runlog.ActivityWhile))
	assert.Equal(t, expr.Number(3), m.Globals()["n"])
}

func TestMachine_LocalShadowsGlobal(t *testing.T) {
	s := testutil.NewScenario("main").
		Var("x", expr.Number(1)).
		Node("start", graph.Start{}).
		Node("log", graph.Log{Message: "@x"}).
		Node("end", graph.End{}).
		Chain("start", "log", "end").
		Build()
	p := testutil.WithGlobal(testutil.NewProject(s), "x", expr.Number(2))

	m, err := runProject(t, p)
	require.NoError(t, err)

	assert.Equal(t, []string{"1"}, messages(m.Logs(), runlog.ActivityLog))
	assert.Equal(t, expr.Number(2), m.Globals()["x"])
}

func TestMachine_WithGlobalOverride(t *testing.T) {
	p := testutil.WithGlobal(testutil.Linear(graph.Log{Message: "@x"}), "x", expr.Number(2))

	m, err := runProject(t, p, WithGlobal("x", expr.String("cli")))
	require.NoError(t, err)
	assert.Equal(t, []string{"cli"}, messages(m.Logs(), runlog.ActivityLog))
}

func TestMachine_CallIsolatesLocals(t *testing.T) {
	main := testutil.NewScenario("main").
		Var("x", expr.Number(1)).
		Node("start", graph.Start{}).
		Node("call", graph.CallScenario{ScenarioID: "helper"}).
		Node("log", graph.Log{Message: "x={$x}"}).
		Node("end", graph.End{}).
		Chain("start", "call", "log", "end").
		Build()
	helper := testutil.NewScenario("helper").
		Var("x", expr.Number(100)).
		Node("hs", graph.Start{}).
		Node("hlog", graph.Log{Message: "helper x={$x}"}).
		Node("hset", graph.SetVariable{Name: "y", Value: "$x + 1"}).
		Node("he", graph.End{}).
		Chain("hs", "hlog", "hset", "he").
		Build()
	p := testutil.NewProject(main, helper)

	m, err := runProject(t, p)
	require.NoError(t, err)

	assert.Equal(t, []string{"helper x=100", "x=1"}, messages(m.Logs(), runlog.ActivityLog))
	assert.NotContains(t, m.Locals(), "y")
	assert.NotContains(t, m.Globals(), "y")
	assert.Equal(t, []string{
		"Starting scenario: main",
		"Starting scenario: helper",
	}, messages(m.Logs(), runlog.ActivityStart))
	assert.Equal(t, []string{"Entering scenario: helper"}, messages(m.Logs(), runlog.ActivityCallScenario))
}

func TestMachine_InOutGlobalBinding(t *testing.T) {
	main := testutil.NewScenario("main").
		Node("start", graph.Start{}).
		Node("call", graph.CallScenario{ScenarioID: "inc", Parameters: []graph.Binding{{
			TargetVarName: "c",
			SourceVarName: "counter",
			Direction:     graph.DirectionInOut,
			SourceScope:   variables.ScopeGlobal,
		}}}).
		Node("end", graph.End{}).
		Chain("start", "call", "end").
		Build()
	inc := testutil.NewScenario("inc").
		Param("c", graph.DirectionInOut).
		Node("s", graph.Start{}).
		Node("set", graph.SetVariable{Name: "c", Value: "$c + 1"}).
		Node("e", graph.End{}).
		Chain("s", "set", "e").
		Build()
	p := testutil.WithGlobal(testutil.NewProject(main, inc), "counter", expr.Number(1))

	m, err := runProject(t, p)
	require.NoError(t, err)

	assert.Equal(t, expr.Number(2), m.Globals()["counter"])
	assert.NotContains(t, m.Locals(), "counter")
	assert.NotContains(t, m.Globals(), "c")
}

func TestMachine_OutBindingStartsUndefined(t *testing.T) {
	main := testutil.NewScenario("main").
		Var("out", expr.Number(7)).
		Node("start", graph.Start{}).
		Node("call", graph.CallScenario{ScenarioID: "noop", Parameters: []graph.Binding{
			{TargetVarName: "r", SourceVarName: "out", Direction: graph.DirectionOut},
		}}).
		Node("end", graph.End{}).
		Chain("start", "call", "end").
		Build()
	noop := testutil.NewScenario("noop").
		Param("r", graph.DirectionOut).
		Node("s", graph.Start{}).
		Node("e", graph.End{}).
		Chain("s", "e").
		Build()

	m, err := runProject(t, testutil.NewProject(main, noop))
	require.NoError(t, err)
	assert.True(t, m.Locals()["out"].IsUndefined())
}

func TestMachine_StackOverflow(t *testing.T) {
	p := testutil.WithGlobal(testutil.Recursive(), "g", expr.Number(7))

	m, err := runProject(t, p, WithMaxCallDepth(5))
	require.Error(t, err)

	assert.True(t, IsStackOverflow(err))
	assert.False(t, IsCatchable(err))
	assert.Equal(t, StateErrored, m.State())
	assert.Len(t, messages(m.Logs(), runlog.ActivityCallScenario), 5)

	globals := m.Globals()
	assert.Equal(t, expr.Number(7), globals["g"])
	assert.Equal(t, expr.String(""), globals[LastErrorVar])

	assert.Equal(t, []string{
		"Unhandled error: Maximum scenario call depth exceeded (5). No error handler connected.",
	}, messages(m.Logs(), runlog.ActivitySystem))
}

func TestMachine_StackOverflowDefaultDepth(t *testing.T) {
	_, err := runProject(t, testutil.Recursive())
	require.Error(t, err)
	assert.True(t, IsStackOverflow(err))

	var re *RuntimeError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "100", re.Details["max_call_depth"])
	assert.Equal(t, "again", re.ScenarioID)
}

func TestMachine_StackOverflowNotCaught(t *testing.T) {
	main := testutil.NewScenario("main").
		Node("start", graph.Start{}).
		Node("try", graph.TryCatch{}).
		Node("call", graph.CallScenario{ScenarioID: "again"}).
		Node("caught", graph.Log{Message: "caught"}).
		Node("end", graph.End{}).
		Edge("start", "try").
		Branch("try", "call", graph.BranchTry).
		Branch("try", "caught", graph.BranchCatch).
		Edge("try", "end").
		Build()
	p := testutil.Recursive()
	p.MainScenario = main

	m, err := runProject(t, p, WithMaxCallDepth(3))
	require.Error(t, err)
	assert.True(t, IsStackOverflow(err))
	assert.Empty(t, messages(m.Logs(), runlog.ActivityLog))
}

func TestMachine_ErrorEdgeOnCallUnwindsFrames(t *testing.T) {
	main := testutil.NewScenario("main").
		Node("start", graph.Start{}).
		Node("call", graph.CallScenario{ScenarioID: "helper"}).
		Node("errlog", graph.Log{Message: "failed: {$last_error}"}).
		Node("end", graph.End{}).
		Edge("start", "call").
		Edge("call", "end").
		Branch("call", "errlog", graph.BranchError).
		Edge("errlog", "end").
		Build()
	helper := testutil.NewScenario("helper").
		Node("hs", graph.Start{}).
		Node("bad", graph.Evaluate{Expression: "$nope"}).
		Node("he", graph.End{}).
		Chain("hs", "bad", "he").
		Build()

	m, err := runProject(t, testutil.NewProject(main, helper))
	require.NoError(t, err)

	assert.Equal(t, []string{"failed: Undefined variable: nope"}, messages(m.Logs(), runlog.ActivityLog))
	assert.Equal(t, []string{"Ending scenario: main"}, messages(m.Logs(), runlog.ActivityEnd))
	assert.Empty(t, m.frames)
	assert.Empty(t, m.handlers)
}

func TestMachine_UnhandledEvalError(t *testing.T) {
	m, err := runProject(t, testutil.Linear(graph.Evaluate{Expression: "1 / 0"}))
	require.Error(t, err)

	assert.True(t, IsEvalError(err))
	assert.True(t, IsCatchable(err))
	assert.True(t, expr.IsEvalError(err), "expression error stays reachable through Unwrap")

	var re *RuntimeError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "main", re.ScenarioID)
	assert.Equal(t, "n1", re.NodeID)
	assert.Equal(t, "EVAL_ERROR: Division by zero (scenario=main, node=n1)", re.Error())

	assert.Equal(t, StateErrored, m.State())
	assert.Equal(t, 1, m.Logs().Counts().Error)
}

func TestMachine_SetVariableTypeMismatch(t *testing.T) {
	_, err := runProject(t, testutil.Linear(graph.SetVariable{Name: "x", Value: `"abc"`, VarType: "Number"}))
	require.Error(t, err)
	assert.True(t, IsEvalError(err))
	assert.Contains(t, err.Error(), "Variable 'x' expects Number, got String")
}

func TestMachine_NonBooleanCondition(t *testing.T) {
	s := testutil.NewScenario("main").
		Node("start", graph.Start{}).
		Node("if", graph.IfCondition{Condition: "1 + 1"}).
		Node("end", graph.End{}).
		Edge("start", "if").
		Branch("if", "end", graph.BranchTrue).
		Branch("if", "end", graph.BranchFalse).
		Build()

	_, err := runProject(t, testutil.NewProject(s))
	require.Error(t, err)
	assert.True(t, IsEvalError(err))
	assert.Contains(t, err.Error(), "non-boolean")
}

func TestMachine_MaxSteps(t *testing.T) {
	s := testutil.NewScenario("main").
		Node("start", graph.Start{}).
		Node("w", graph.While{Condition: "true"}).
		Node("body", graph.Evaluate{Expression: "1"}).
		Node("end", graph.End{}).
		Edge("start", "w").
		Branch("w", "body", graph.BranchLoopBody).
		Edge("w", "end").
		Build()

	m, err := runProject(t, testutil.NewProject(s), WithMaxSteps(50))
	require.Error(t, err)
	assert.True(t, IsStepsExceeded(err))
	assert.False(t, IsCatchable(err))
	assert.Equal(t, 51, m.Steps())
}

func TestMachine_Powershell(t *testing.T) {
	t.Run("no runner warns and continues", func(t *testing.T) {
		m, err := runProject(t, testutil.Linear(graph.RunPowershell{Code: "Get-Date"}))
		require.NoError(t, err)
		assert.Equal(t, []string{"No PowerShell runner configured, script skipped"},
			messages(m.Logs(), runlog.ActivityRunPowershell))
		assert.Equal(t, 1, m.Logs().Counts().Warning)
	})

	t.Run("runner output is logged", func(t *testing.T) {
		var got string
		runner := RunnerFunc(func(_ context.Context, code string) (string, error) {
			got = code
			return "ok", nil
		})
		m, err := runProject(t, testutil.Linear(graph.RunPowershell{Code: "Write-Output ok"}), WithRunner(runner))
		require.NoError(t, err)
		assert.Equal(t, "Write-Output ok", got)
		assert.Equal(t, []string{"Running PowerShell script", "ok"}, messages(m.Logs(), runlog.ActivityRunPowershell))
	})

	t.Run("failure is an activity error", func(t *testing.T) {
		runner := RunnerFunc(func(context.Context, string) (string, error) {
			return "", errors.New("exit status 1")
		})
		_, err := runProject(t, testutil.Linear(graph.RunPowershell{Code: "exit 1"}), WithRunner(runner))
		require.Error(t, err)
		assert.True(t, IsActivityError(err))
		assert.True(t, IsCatchable(err))
	})

	t.Run("failure follows the error edge", func(t *testing.T) {
		s := testutil.NewScenario("main").
			Node("start", graph.Start{}).
			Node("ps", graph.RunPowershell{Code: "exit 1"}).
			Node("onerr", graph.Log{Message: "{$last_error}"}).
			Node("end", graph.End{}).
			Edge("start", "ps").
			Edge("ps", "end").
			Branch("ps", "onerr", graph.BranchError).
			Edge("onerr", "end").
			Build()
		runner := RunnerFunc(func(context.Context, string) (string, error) {
			return "", errors.New("exit status 1")
		})
		m, err := runProject(t, testutil.NewProject(s), WithRunner(runner))
		require.NoError(t, err)
		assert.Equal(t, []string{"PowerShell failed: exit status 1"}, messages(m.Logs(), runlog.ActivityLog))
	})
}

func TestMachine_NodeTrace(t *testing.T) {
	m, err := runProject(t, testutil.SetThenLog(), WithNodeTrace(true))
	require.NoError(t, err)

	trace := messages(m.Logs(), runlog.ActivityExecution)
	require.Len(t, trace, 4)
	assert.Contains(t, trace[0], "(start)")
	assert.Equal(t, 4, m.Logs().Counts().Debug)
}

func TestMachine_EntriesCarryNodeAndTime(t *testing.T) {
	m, err := runProject(t, testutil.SetThenLog())
	require.NoError(t, err)

	entries := m.Logs().Entries()
	require.NotEmpty(t, entries)
	for i, e := range entries {
		assert.Equal(t, uint64(i+1), e.Seq)
		assert.Regexp(t, `^\[\d{2}:\d{2}\.\d{3}\]$`, e.Timestamp)
		if i > 0 {
			assert.Greater(t, e.Elapsed, entries[i-1].Elapsed)
		}
	}
	for _, e := range entries {
		if e.Activity == runlog.ActivityLog {
			assert.Equal(t, "n2", e.NodeID)
		}
	}
}

func TestMachine_RunTwice(t *testing.T) {
	m, err := runProject(t, testutil.SetThenLog())
	require.NoError(t, err)
	assert.ErrorIs(t, m.Run(context.Background()), ErrAlreadyRan)
}

func TestMachine_StoppedBeforeStart(t *testing.T) {
	m := newTestMachine(t, testutil.SetThenLog())
	m.Stop()

	err := m.Run(context.Background())
	assert.ErrorIs(t, err, ErrStopped)
	assert.Equal(t, StateStopped, m.State())
	assert.Empty(t, messages(m.Logs(), runlog.ActivityLog))
	assert.Equal(t, []string{"Execution stopped by user"}, messages(m.Logs(), runlog.ActivitySystem))
}

func TestMachine_CancelledContextStops(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	p := testutil.Linear(graph.Delay{Milliseconds: 10_000})
	m := New(mustCompile(t, p), p, WithDelaySlice(5*time.Millisecond))

	start := time.Now()
	err := m.Run(ctx)
	assert.ErrorIs(t, err, ErrStopped)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.True(t, m.StopControl().IsStopped())
}

func TestMachine_SharedStopControl(t *testing.T) {
	p := testutil.Linear(graph.Delay{Milliseconds: 10_000})
	sc := stopcontrol.New()
	m := New(mustCompile(t, p), p, WithStopControl(sc), WithDelaySlice(time.Second))

	go func() {
		time.Sleep(20 * time.Millisecond)
		sc.Clone().RequestStop()
	}()

	start := time.Now()
	err := m.Run(context.Background())
	assert.ErrorIs(t, err, ErrStopped)
	assert.Less(t, time.Since(start), 900*time.Millisecond, "a direct stop wakes the current slice")
}
