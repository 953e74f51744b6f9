package ir

import (
	"github.com/bissakov/qazcode-rpa-sub001/internal/expr"
	"github.com/bissakov/qazcode-rpa-sub001/internal/graph"
	"github.com/bissakov/qazcode-rpa-sub001/internal/runlog"
	"github.com/bissakov/qazcode-rpa-sub001/internal/variables"
)

// Opcode is the mnemonic of an instruction, used by the disassembler and
// the canonical encoding.
type Opcode string

const (
	OpStart            Opcode = "START"
	OpEnd              Opcode = "END"
	OpLog              Opcode = "LOG"
	OpDelay            Opcode = "DELAY"
	OpSetVar           Opcode = "SET_VAR"
	OpEvaluate         Opcode = "EVALUATE"
	OpJump             Opcode = "JUMP"
	OpJumpIf           Opcode = "JUMP_IF"
	OpJumpIfNot        Opcode = "JUMP_IF_NOT"
	OpLoopInit         Opcode = "LOOP_INIT"
	OpLoopLog          Opcode = "LOOP_LOG"
	OpLoopCheck        Opcode = "LOOP_CHECK"
	OpLoopNext         Opcode = "LOOP_NEXT"
	OpLoopBreak        Opcode = "LOOP_BREAK"
	OpLoopContinue     Opcode = "LOOP_CONTINUE"
	OpWhileCheck       Opcode = "WHILE_CHECK"
	OpPushErrorHandler Opcode = "PUSH_HANDLER"
	OpPopErrorHandler  Opcode = "POP_HANDLER"
	OpCallScenario     Opcode = "CALL"
	OpRunPowershell    Opcode = "POWERSHELL"
	OpDebugMarker      Opcode = "MARKER"
)

// Instruction is the closed set of VM operations. Implementations are value
// types; switch on the concrete type.
type Instruction interface {
	Op() Opcode
	isInstruction()
}

// Start enters a scenario.
type Start struct{ ScenarioID string }

// End leaves a scenario; the outermost End completes the run.
type End struct{ ScenarioID string }

// Log evaluates Message and appends it to the run log.
type Log struct {
	Level   runlog.Level
	Message *expr.Expression
}

// Delay suspends the run for Milliseconds.
type Delay struct{ Milliseconds int64 }

// SetVar evaluates Value and defines Name in the store selected by Scope.
// Type is KindUndefined when any kind is accepted.
type SetVar struct {
	Name  string
	Scope variables.Scope
	Type  expr.Kind
	Value *expr.Expression
}

// Evaluate evaluates Expr and logs the result.
type Evaluate struct{ Expr *expr.Expression }

// Jump moves the instruction pointer unconditionally.
type Jump struct{ Target int }

// JumpIf jumps when Cond is true.
type JumpIf struct {
	Cond   *expr.Expression
	Target int
}

// JumpIfNot jumps when Cond is false.
type JumpIfNot struct {
	Cond   *expr.Expression
	Target int
}

// LoopInit defines Index = Start in the local store.
type LoopInit struct {
	Index string
	Start int64
}

// LoopLog announces a counted loop.
type LoopLog struct {
	Index            string
	Start, End, Step int64
}

// LoopCheck enters the body while Index has not passed End (inclusive),
// otherwise jumps to EndTarget. Step 0 skips the loop with a warning.
type LoopCheck struct {
	Index                 string
	Start, End, Step      int64
	BodyTarget, EndTarget int
}

// LoopNext adds Step to Index and jumps back to CheckTarget.
type LoopNext struct {
	Index       string
	Step        int64
	CheckTarget int
}

// LoopBreak leaves the innermost loop.
type LoopBreak struct{ EndTarget int }

// LoopContinue jumps to the increment or re-check point of the innermost
// loop.
type LoopContinue struct{ CheckTarget int }

// WhileCheck enters the body while Cond holds.
type WhileCheck struct {
	Cond                  *expr.Expression
	BodyTarget, EndTarget int
}

// PushErrorHandler installs a handler at the current call depth.
type PushErrorHandler struct{ CatchTarget int }

// PopErrorHandler removes the innermost handler.
type PopErrorHandler struct{}

// CallScenario invokes ScenarioID with parameter bindings.
type CallScenario struct {
	ScenarioID string
	Parameters []graph.Binding
}

// RunPowershell passes Code to the configured runner.
type RunPowershell struct{ Code string }

// DebugMarker records which graph node the following instructions came
// from. It has no effect beyond updating the current node.
type DebugMarker struct {
	NodeID      string
	Description string
}

func (Start) Op() Opcode            { return OpStart }
func (End) Op() Opcode              { return OpEnd }
func (Log) Op() Opcode              { return OpLog }
func (Delay) Op() Opcode            { return OpDelay }
func (SetVar) Op() Opcode           { return OpSetVar }
func (Evaluate) Op() Opcode         { return OpEvaluate }
func (Jump) Op() Opcode             { return OpJump }
func (JumpIf) Op() Opcode           { return OpJumpIf }
func (JumpIfNot) Op() Opcode        { return OpJumpIfNot }
func (LoopInit) Op() Opcode         { return OpLoopInit }
func (LoopLog) Op() Opcode          { return OpLoopLog }
func (LoopCheck) Op() Opcode        { return OpLoopCheck }
func (LoopNext) Op() Opcode         { return OpLoopNext }
func (LoopBreak) Op() Opcode        { return OpLoopBreak }
func (LoopContinue) Op() Opcode     { return OpLoopContinue }
func (WhileCheck) Op() Opcode       { return OpWhileCheck }
func (PushErrorHandler) Op() Opcode { return OpPushErrorHandler }
func (PopErrorHandler) Op() Opcode  { return OpPopErrorHandler }
func (CallScenario) Op() Opcode     { return OpCallScenario }
func (RunPowershell) Op() Opcode    { return OpRunPowershell }
func (DebugMarker) Op() Opcode      { return OpDebugMarker }

func (Start) isInstruction()            {}
func (End) isInstruction()              {}
func (Log) isInstruction()              {}
func (Delay) isInstruction()            {}
func (SetVar) isInstruction()           {}
func (Evaluate) isInstruction()         {}
func (Jump) isInstruction()             {}
func (JumpIf) isInstruction()           {}
func (JumpIfNot) isInstruction()        {}
func (LoopInit) isInstruction()         {}
func (LoopLog) isInstruction()          {}
func (LoopCheck) isInstruction()        {}
func (LoopNext) isInstruction()         {}
func (LoopBreak) isInstruction()        {}
func (LoopContinue) isInstruction()     {}
func (WhileCheck) isInstruction()       {}
func (PushErrorHandler) isInstruction() {}
func (PopErrorHandler) isInstruction()  {}
func (CallScenario) isInstruction()     {}
func (RunPowershell) isInstruction()    {}
func (DebugMarker) isInstruction()      {}
