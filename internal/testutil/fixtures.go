package testutil

import (
	"github.com/bissakov/qazcode-rpa-sub001/internal/expr"
	"github.com/bissakov/qazcode-rpa-sub001/internal/graph"
)

// SetThenLog is start → x = 5 (Number) → log "@x" → end.
func SetThenLog() *graph.Project {
	return Linear(
		graph.SetVariable{Name: "x", Value: "5", VarType: "Number"},
		graph.Log{Message: "@x"},
	)
}

// CountedLoop is a loop over i from start to end by step whose body logs
// "i={$i}".
func CountedLoop(start, end, step int64) *graph.Project {
	s := NewScenario("main").
		Node("start", graph.Start{}).
		Node("loop", graph.Loop{Start: start, End: end, Step: step, Index: "i"}).
		Node("log", graph.Log{Message: "i={$i}"}).
		Node("end", graph.End{}).
		Edge("start", "loop").
		Branch("loop", "log", graph.BranchLoopBody).
		Edge("loop", "end").
		Build()
	return NewProject(s)
}

// LoopContinue loops i over 0..3 and skips the log when i is 2.
func LoopContinue() *graph.Project {
	s := NewScenario("main").
		Node("start", graph.Start{}).
		Node("loop", graph.Loop{Start: 0, End: 3, Step: 1, Index: "i"}).
		Node("check", graph.IfCondition{Condition: "$i == 2"}).
		Node("skip", graph.Continue{}).
		Node("log", graph.Log{Message: "i={$i}"}).
		Node("end", graph.End{}).
		Edge("start", "loop").
		Branch("loop", "check", graph.BranchLoopBody).
		Branch("check", "skip", graph.BranchTrue).
		Branch("check", "log", graph.BranchFalse).
		Edge("loop", "end").
		Build()
	return NewProject(s)
}

// TryCall divides by $zero inside a TryCatch, logs the caught error, then
// calls helper with n=x (In) and out=result (Out). helper logs n and sets
// result = n * 2.
func TryCall() *graph.Project {
	main := NewScenario("main").
		Node("start", graph.Start{}).
		Node("try", graph.TryCatch{}).
		Node("calc", graph.Evaluate{Expression: "1 / $zero"}).
		Node("warn", graph.Log{Level: "Warning", Message: "caught: {$last_error}"}).
		Node("call", graph.CallScenario{ScenarioID: "helper", Parameters: []graph.Binding{
			{TargetVarName: "n", SourceVarName: "x", Direction: graph.DirectionIn},
			{TargetVarName: "result", SourceVarName: "out", Direction: graph.DirectionOut},
		}}).
		Node("end", graph.End{}).
		Edge("start", "try").
		Branch("try", "calc", graph.BranchTry).
		Branch("try", "warn", graph.BranchCatch).
		Edge("try", "call").
		Edge("call", "end").
		Build()

	helper := NewScenario("helper").
		Param("n", graph.DirectionIn).
		Param("result", graph.DirectionOut).
		Node("hs", graph.Start{}).
		Node("hlog", graph.Log{Message: "n is {$n}"}).
		Node("hset", graph.SetVariable{Name: "result", Value: "$n * 2"}).
		Node("he", graph.End{}).
		Chain("hs", "hlog", "hset", "he").
		Build()

	p := NewProject(main, helper)
	WithGlobal(p, "zero", expr.Number(0))
	WithGlobal(p, "x", expr.Number(21))
	return p
}

// TrySplitEnds divides 1 by $zero in the try branch and logs the caught
// error in the catch branch. Each branch ends at its own End and the
// TryCatch has no Default successor.
func TrySplitEnds() *graph.Project {
	s := NewScenario("main").
		Node("start", graph.Start{}).
		Node("tc", graph.TryCatch{}).
		Node("calc", graph.Evaluate{Expression: "1 / $zero"}).
		Node("endTry", graph.End{}).
		Node("warn", graph.Log{Level: "Warning", Message: "caught: {$last_error}"}).
		Node("endCatch", graph.End{}).
		Edge("start", "tc").
		Branch("tc", "calc", graph.BranchTry).
		Edge("calc", "endTry").
		Branch("tc", "warn", graph.BranchCatch).
		Edge("warn", "endCatch").
		Build()
	return WithGlobal(NewProject(s), "zero", expr.Number(0))
}

// LoopEnteredMidBody is an If whose true branch runs a loop over b1 → b2
// and whose false branch jumps straight to b2.
func LoopEnteredMidBody() *graph.Project {
	s := NewScenario("main").
		Node("start", graph.Start{}).
		Node("if", graph.IfCondition{Condition: "false"}).
		Node("loop", graph.Loop{Start: 0, End: 1, Step: 1, Index: "i"}).
		Node("b1", graph.Log{Message: "b1 {$i}"}).
		Node("b2", graph.Log{Message: "b2 {$i}"}).
		Node("end", graph.End{}).
		Edge("start", "if").
		Branch("if", "loop", graph.BranchTrue).
		Branch("if", "b2", graph.BranchFalse).
		Branch("loop", "b1", graph.BranchLoopBody).
		Edge("b1", "b2").
		Edge("b2", "loop").
		Edge("loop", "end").
		Build()
	return NewProject(s)
}

// WhileBreakInTry increments global n inside a TryCatch nested in a While
// and breaks out of the loop from the try branch when n reaches 2.
func WhileBreakInTry() *graph.Project {
	s := NewScenario("main").
		Node("start", graph.Start{}).
		Node("w", graph.While{Condition: "$n < 3"}).
		Node("t", graph.TryCatch{}).
		Node("inc", graph.SetVariable{Name: "n", Value: "$n + 1", IsGlobal: true}).
		Node("chk", graph.IfCondition{Condition: "$n == 2"}).
		Node("brk", graph.Break{}).
		Node("end", graph.End{}).
		Edge("start", "w").
		Branch("w", "t", graph.BranchLoopBody).
		Branch("t", "inc", graph.BranchTry).
		Edge("inc", "chk").
		Branch("chk", "brk", graph.BranchTrue).
		Edge("w", "end").
		Build()
	return WithGlobal(NewProject(s), "n", expr.Number(0))
}

// Recursive calls itself through scenario "again" until depth runs out.
func Recursive() *graph.Project {
	main := NewScenario("main").
		Node("start", graph.Start{}).
		Node("call", graph.CallScenario{ScenarioID: "again"}).
		Node("end", graph.End{}).
		Chain("start", "call", "end").
		Build()
	again := NewScenario("again").
		Node("s", graph.Start{}).
		Node("call", graph.CallScenario{ScenarioID: "again"}).
		Node("e", graph.End{}).
		Chain("s", "call", "e").
		Build()
	return NewProject(main, again)
}
