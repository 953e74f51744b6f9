package ir

import (
	"fmt"
	"sort"
	"strings"

	"github.com/bissakov/qazcode-rpa-sub001/internal/expr"
	"github.com/bissakov/qazcode-rpa-sub001/internal/graph"
)

// Disassemble renders p as a text listing, one instruction per line.
func Disassemble(p *Program) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "; program v%s, %d instructions, entry %04d\n", Version, len(p.Instructions), p.EntryPoint)

	ids := make([]string, 0, len(p.ScenarioStart))
	for id := range p.ScenarioStart {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return p.ScenarioStart[ids[i]] < p.ScenarioStart[ids[j]] })
	for _, id := range ids {
		fmt.Fprintf(&sb, "; scenario %s @%04d\n", id, p.ScenarioStart[id])
	}
	if len(p.RecursiveScenarios) > 0 {
		fmt.Fprintf(&sb, "; recursive %s\n", strings.Join(p.RecursiveScenarios, ", "))
	}

	for addr, ins := range p.Instructions {
		fmt.Fprintf(&sb, "%04d  %s\n", addr, Format(ins))
	}
	return sb.String()
}

// Format renders one instruction.
func Format(ins Instruction) string {
	switch x := ins.(type) {
	case Start:
		return "START " + x.ScenarioID
	case End:
		return "END " + x.ScenarioID
	case Log:
		return fmt.Sprintf("LOG %s %s", x.Level, src(x.Message))
	case Delay:
		return fmt.Sprintf("DELAY %dms", x.Milliseconds)
	case SetVar:
		name := x.Name
		if x.Type != expr.KindUndefined {
			name += ":" + x.Type.String()
		}
		return fmt.Sprintf("SET_VAR %s %s = %s", x.Scope, name, src(x.Value))
	case Evaluate:
		return "EVALUATE " + src(x.Expr)
	case Jump:
		return fmt.Sprintf("JUMP -> %04d", x.Target)
	case JumpIf:
		return fmt.Sprintf("JUMP_IF %s -> %04d", src(x.Cond), x.Target)
	case JumpIfNot:
		return fmt.Sprintf("JUMP_IF_NOT %s -> %04d", src(x.Cond), x.Target)
	case LoopInit:
		return fmt.Sprintf("LOOP_INIT %s = %d", x.Index, x.Start)
	case LoopLog:
		return fmt.Sprintf("LOOP_LOG %s from %d to %d step %d", x.Index, x.Start, x.End, x.Step)
	case LoopCheck:
		return fmt.Sprintf("LOOP_CHECK %s to %d step %d body %04d end %04d", x.Index, x.End, x.Step, x.BodyTarget, x.EndTarget)
	case LoopNext:
		return fmt.Sprintf("LOOP_NEXT %s += %d -> %04d", x.Index, x.Step, x.CheckTarget)
	case LoopBreak:
		return fmt.Sprintf("LOOP_BREAK -> %04d", x.EndTarget)
	case LoopContinue:
		return fmt.Sprintf("LOOP_CONTINUE -> %04d", x.CheckTarget)
	case WhileCheck:
		return fmt.Sprintf("WHILE_CHECK %s body %04d end %04d", src(x.Cond), x.BodyTarget, x.EndTarget)
	case PushErrorHandler:
		return fmt.Sprintf("PUSH_HANDLER catch %04d", x.CatchTarget)
	case PopErrorHandler:
		return "POP_HANDLER"
	case CallScenario:
		return fmt.Sprintf("CALL %s [%s]", x.ScenarioID, formatBindings(x.Parameters))
	case RunPowershell:
		return fmt.Sprintf("POWERSHELL %q", x.Code)
	case DebugMarker:
		return fmt.Sprintf("MARKER %s %q", x.NodeID, x.Description)
	}
	return fmt.Sprintf("<%T>", ins)
}

func src(e *expr.Expression) string {
	if e == nil {
		return `""`
	}
	return fmt.Sprintf("%q", e.Source)
}

func formatBindings(bs []graph.Binding) string {
	parts := make([]string, len(bs))
	for i, b := range bs {
		s := fmt.Sprintf("%s=%s %s", b.TargetVarName, b.SourceVarName, b.Direction)
		if b.SourceScope != "" {
			s += " " + string(b.SourceScope)
		}
		parts[i] = s
	}
	return strings.Join(parts, ", ")
}
