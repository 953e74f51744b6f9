package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/bissakov/qazcode-rpa-sub001/internal/expr"
	"github.com/bissakov/qazcode-rpa-sub001/internal/graph"
	"github.com/bissakov/qazcode-rpa-sub001/internal/ir"
	"github.com/bissakov/qazcode-rpa-sub001/internal/runlog"
	"github.com/bissakov/qazcode-rpa-sub001/internal/variables"
)

// exec runs one instruction and returns the address of the next one.
func (m *Machine) exec(ctx context.Context, ins ir.Instruction) (int, error) {
	next := m.ip + 1

	switch x := ins.(type) {
	case ir.DebugMarker:
		m.node = x.NodeID
		if m.nodeTrace {
			m.record(runlog.LevelDebug, runlog.ActivityExecution,
				fmt.Sprintf("Executing node: %s (%s)", x.Description, x.NodeID))
		}
		return next, nil

	case ir.Start:
		m.record(runlog.LevelInfo, runlog.ActivityStart, "Starting scenario: "+m.scenarioName(x.ScenarioID))
		return next, nil

	case ir.End:
		m.record(runlog.LevelInfo, runlog.ActivityEnd, "Ending scenario: "+m.scenarioName(x.ScenarioID))
		if len(m.frames) == 0 {
			m.done = true
			return next, nil
		}
		return m.ret(), nil

	case ir.Log:
		v, err := m.eval(x.Message)
		if err != nil {
			return next, err
		}
		m.record(x.Level, runlog.ActivityLog, v.String())
		return next, nil

	case ir.Delay:
		m.record(runlog.LevelInfo, runlog.ActivityDelay, fmt.Sprintf("Waiting for %d ms", x.Milliseconds))
		return next, m.sleep(ctx, time.Duration(x.Milliseconds)*time.Millisecond)

	case ir.SetVar:
		return next, m.setVar(x)

	case ir.Evaluate:
		v, err := m.eval(x.Expr)
		if err != nil {
			return next, err
		}
		m.record(runlog.LevelInfo, runlog.ActivityEvaluate, "Expression evaluated to "+v.String())
		return next, nil

	case ir.Jump:
		return x.Target, nil

	case ir.JumpIf:
		ok, err := m.condition(x.Cond, runlog.ActivityIfCondition)
		if err != nil {
			return next, err
		}
		if ok {
			return x.Target, nil
		}
		return next, nil

	case ir.JumpIfNot:
		ok, err := m.condition(x.Cond, runlog.ActivityIfCondition)
		if err != nil {
			return next, err
		}
		if !ok {
			return x.Target, nil
		}
		return next, nil

	case ir.LoopInit:
		m.locals().Define(x.Index, expr.Number(float64(x.Start)))
		return next, nil

	case ir.LoopLog:
		m.record(runlog.LevelInfo, runlog.ActivityLoop,
			fmt.Sprintf("Starting loop: from %d to %d step %d", x.Start, x.End, x.Step))
		return next, nil

	case ir.LoopCheck:
		if x.Step == 0 {
			m.record(runlog.LevelWarning, runlog.ActivityLoop, "Step is 0, loop skipped")
			return x.EndTarget, nil
		}
		current, err := m.loopIndex(x.Index)
		if err != nil {
			return next, err
		}
		if (x.Step > 0 && current <= x.End) || (x.Step < 0 && current >= x.End) {
			return x.BodyTarget, nil
		}
		return x.EndTarget, nil

	case ir.LoopNext:
		current, err := m.loopIndex(x.Index)
		if err != nil {
			return next, err
		}
		m.locals().Define(x.Index, expr.Number(float64(current+x.Step)))
		return x.CheckTarget, nil

	case ir.LoopBreak:
		m.record(runlog.LevelInfo, runlog.ActivityBreak, "Breaking out of loop")
		m.clearWhile(x.EndTarget)
		return x.EndTarget, nil

	case ir.LoopContinue:
		m.record(runlog.LevelInfo, runlog.ActivityContinue, "Continue to next iteration")
		return x.CheckTarget, nil

	case ir.WhileCheck:
		key := whileKey{depth: len(m.frames), addr: m.ip}
		ok, err := m.condition(x.Cond, runlog.ActivityWhile)
		if err != nil {
			delete(m.whileCounts, key)
			return next, err
		}
		if ok {
			m.whileCounts[key]++
			m.record(runlog.LevelInfo, runlog.ActivityWhile,
				fmt.Sprintf("Iteration %d: condition is true", m.whileCounts[key]))
			return x.BodyTarget, nil
		}
		n := m.whileCounts[key]
		delete(m.whileCounts, key)
		m.record(runlog.LevelInfo, runlog.ActivityWhile, fmt.Sprintf("Completed %d iterations", n))
		return x.EndTarget, nil

	case ir.PushErrorHandler:
		m.handlers = append(m.handlers, Handler{CatchTarget: x.CatchTarget, Depth: len(m.frames)})
		m.record(runlog.LevelInfo, runlog.ActivityTryCatch, "Entering try block")
		return next, nil

	case ir.PopErrorHandler:
		if n := len(m.handlers); n > 0 {
			m.handlers = m.handlers[:n-1]
		}
		m.record(runlog.LevelInfo, runlog.ActivityTryCatch, "Try block completed successfully")
		return next, nil

	case ir.CallScenario:
		return m.call(x, next)

	case ir.RunPowershell:
		return next, m.runPowershell(ctx, x)
	}

	return next, &RuntimeError{
		Code:    ErrCodeInvalidProgram,
		Message: fmt.Sprintf("unknown instruction %T", ins),
	}
}

func (m *Machine) eval(e *expr.Expression) (expr.Value, error) {
	v, err := e.Eval(m.resolver())
	if err != nil {
		return v, &RuntimeError{Code: ErrCodeEval, Message: err.Error(), Err: err}
	}
	return v, nil
}

// condition evaluates a branch or loop condition, which must be Boolean.
func (m *Machine) condition(e *expr.Expression, activity runlog.Activity) (bool, error) {
	v, err := m.eval(e)
	if err != nil {
		return false, err
	}
	b, ok := v.Boolean()
	if !ok {
		return false, &RuntimeError{
			Code:    ErrCodeEval,
			Message: fmt.Sprintf("Condition evaluated to non-boolean value: %#v", v),
		}
	}
	m.record(runlog.LevelInfo, activity, fmt.Sprintf("Condition evaluated to: %t", b))
	return b, nil
}

func (m *Machine) setVar(x ir.SetVar) error {
	v, err := m.eval(x.Value)
	if err != nil {
		return err
	}
	if x.Type != expr.KindUndefined && v.Kind() != x.Type {
		return &RuntimeError{
			Code:    ErrCodeEval,
			Message: fmt.Sprintf("Variable '%s' expects %s, got %s", x.Name, x.Type, v.Kind()),
		}
	}

	if x.Scope == variables.ScopeGlobal {
		m.global.Define(x.Name, v)
	} else {
		m.locals().Define(x.Name, v)
	}
	m.record(runlog.LevelInfo, runlog.ActivitySetVariable, fmt.Sprintf("%s = %s", x.Name, v.String()))
	return nil
}

func (m *Machine) loopIndex(name string) (int64, error) {
	v, err := m.resolver().Resolve(name)
	if err != nil {
		return 0, &RuntimeError{Code: ErrCodeEval, Message: fmt.Sprintf("Loop index '%s' not found", name), Err: err}
	}
	n, ok := v.Num()
	if !ok {
		return 0, &RuntimeError{
			Code:    ErrCodeEval,
			Message: fmt.Sprintf("Loop index '%s' has wrong type: expected Number, got %s", name, v.Kind()),
		}
	}
	return int64(n), nil
}

// clearWhile resets the iteration counter of the While that a Break
// leaves.
func (m *Machine) clearWhile(end int) {
	depth := len(m.frames)
	for k := range m.whileCounts {
		if k.depth != depth {
			continue
		}
		if wc, ok := m.program.Instructions[k.addr].(ir.WhileCheck); ok && wc.EndTarget == end {
			delete(m.whileCounts, k)
		}
	}
}

// call pushes a frame for x and returns the callee's start address.
func (m *Machine) call(x ir.CallScenario, next int) (int, error) {
	if len(m.frames) >= m.maxCallDepth {
		return next, NewStackOverflowError(m.scenarioID(), m.maxCallDepth)
	}

	callee, ok := m.project.Scenario(x.ScenarioID)
	start, found := m.program.ScenarioStart[x.ScenarioID]
	if !ok || !found {
		return next, &RuntimeError{
			Code:    ErrCodeInvalidProgram,
			Message: fmt.Sprintf("Scenario with ID %s not found", x.ScenarioID),
		}
	}

	m.record(runlog.LevelInfo, runlog.ActivityCallScenario, "Entering scenario: "+m.scenarioName(x.ScenarioID))

	locals := variables.New(variables.ScopeScenario)
	for _, d := range callee.Variables {
		if d.Scope != variables.ScopeGlobal {
			locals.Define(d.Name, d.Value)
		}
	}
	for _, p := range callee.Parameters {
		if !locals.Has(p.VarName) {
			locals.Create(p.VarName)
		}
	}

	caller := m.locals()
	for _, b := range x.Parameters {
		if !b.Direction.CopiesIn() {
			locals.Create(b.TargetVarName)
			continue
		}
		if v, ok := m.bindingSource(b, caller); ok {
			locals.Define(b.TargetVarName, v)
		} else {
			locals.Create(b.TargetVarName)
		}
	}

	m.frames = append(m.frames, Frame{
		ReturnAddress: next,
		Locals:        locals,
		ScenarioID:    x.ScenarioID,
		NodeID:        m.node,
		Bindings:      x.Parameters,
	})
	m.logger.Debug("call", "run_id", m.runID, "scenario", x.ScenarioID, "depth", len(m.frames))
	return start, nil
}

// bindingSource reads the caller side of an In or InOut binding: Global
// only when the binding pins Global, local-then-Global otherwise.
func (m *Machine) bindingSource(b graph.Binding, caller *variables.Store) (expr.Value, bool) {
	if b.SourceScope == variables.ScopeGlobal {
		return m.global.Get(b.SourceVarName)
	}
	v, err := variables.Chain(caller, m.global).Resolve(b.SourceVarName)
	return v, err == nil
}

func (m *Machine) runPowershell(ctx context.Context, x ir.RunPowershell) error {
	if m.runner == nil {
		m.record(runlog.LevelWarning, runlog.ActivityRunPowershell, "No PowerShell runner configured, script skipped")
		return nil
	}

	m.record(runlog.LevelInfo, runlog.ActivityRunPowershell, "Running PowerShell script")
	out, err := m.runner.RunPowershell(ctx, x.Code)
	if err != nil {
		if m.interrupted(ctx) {
			return ErrStopped
		}
		return &RuntimeError{
			Code:    ErrCodeActivity,
			Message: fmt.Sprintf("PowerShell failed: %v", err),
			Err:     err,
		}
	}
	if out != "" {
		m.record(runlog.LevelInfo, runlog.ActivityRunPowershell, out)
	}
	return nil
}
