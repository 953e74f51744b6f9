package ir

import (
	"fmt"
	"sort"

	"github.com/bissakov/qazcode-rpa-sub001/internal/expr"
)

// ToCanonical encodes p as RFC 8785 canonical JSON.
func ToCanonical(p *Program) ([]byte, error) {
	doc, err := programObject(p)
	if err != nil {
		return nil, err
	}
	return MarshalCanonical(doc)
}

func programObject(p *Program) (Object, error) {
	instructions := make(Array, len(p.Instructions))
	for i, ins := range p.Instructions {
		obj, err := instructionObject(ins)
		if err != nil {
			return nil, fmt.Errorf("instruction %d: %w", i, err)
		}
		instructions[i] = obj
	}

	starts := make(Object, len(p.ScenarioStart))
	for id, addr := range p.ScenarioStart {
		starts[id] = Int(addr)
	}

	calls := make(Object, len(p.CallGraph))
	for id, callees := range p.CallGraph {
		calls[id] = strArray(callees)
	}

	recursive := append([]string(nil), p.RecursiveScenarios...)
	sort.Strings(recursive)

	return Object{
		"version":             Str(Version),
		"entry_point":         Int(p.EntryPoint),
		"instructions":        instructions,
		"scenario_start":      starts,
		"call_graph":          calls,
		"recursive_scenarios": strArray(recursive),
	}, nil
}

func strArray(ss []string) Array {
	out := make(Array, len(ss))
	for i, s := range ss {
		out[i] = Str(s)
	}
	return out
}

func exprStr(e *expr.Expression) Str {
	if e == nil {
		return ""
	}
	return Str(e.Source)
}

func instructionObject(ins Instruction) (Object, error) {
	if ins == nil {
		return nil, fmt.Errorf("nil instruction")
	}
	obj := Object{"op": Str(ins.Op())}
	switch x := ins.(type) {
	case Start:
		obj["scenario_id"] = Str(x.ScenarioID)
	case End:
		obj["scenario_id"] = Str(x.ScenarioID)
	case Log:
		obj["level"] = Str(x.Level.String())
		obj["message"] = exprStr(x.Message)
	case Delay:
		obj["milliseconds"] = Int(x.Milliseconds)
	case SetVar:
		obj["name"] = Str(x.Name)
		obj["scope"] = Str(x.Scope)
		typ := "Any"
		if x.Type != expr.KindUndefined {
			typ = x.Type.String()
		}
		obj["type"] = Str(typ)
		obj["value"] = exprStr(x.Value)
	case Evaluate:
		obj["expr"] = exprStr(x.Expr)
	case Jump:
		obj["target"] = Int(x.Target)
	case JumpIf:
		obj["cond"] = exprStr(x.Cond)
		obj["target"] = Int(x.Target)
	case JumpIfNot:
		obj["cond"] = exprStr(x.Cond)
		obj["target"] = Int(x.Target)
	case LoopInit:
		obj["index"] = Str(x.Index)
		obj["start"] = Int(x.Start)
	case LoopLog:
		obj["index"] = Str(x.Index)
		obj["start"] = Int(x.Start)
		obj["end"] = Int(x.End)
		obj["step"] = Int(x.Step)
	case LoopCheck:
		obj["index"] = Str(x.Index)
		obj["start"] = Int(x.Start)
		obj["end"] = Int(x.End)
		obj["step"] = Int(x.Step)
		obj["body_target"] = Int(x.BodyTarget)
		obj["end_target"] = Int(x.EndTarget)
	case LoopNext:
		obj["index"] = Str(x.Index)
		obj["step"] = Int(x.Step)
		obj["check_target"] = Int(x.CheckTarget)
	case LoopBreak:
		obj["end_target"] = Int(x.EndTarget)
	case LoopContinue:
		obj["check_target"] = Int(x.CheckTarget)
	case WhileCheck:
		obj["cond"] = exprStr(x.Cond)
		obj["body_target"] = Int(x.BodyTarget)
		obj["end_target"] = Int(x.EndTarget)
	case PushErrorHandler:
		obj["catch_target"] = Int(x.CatchTarget)
	case PopErrorHandler:
	case CallScenario:
		obj["scenario_id"] = Str(x.ScenarioID)
		params := make(Array, len(x.Parameters))
		for i, b := range x.Parameters {
			params[i] = Object{
				"target":       Str(b.TargetVarName),
				"source":       Str(b.SourceVarName),
				"direction":    Str(b.Direction),
				"source_scope": Str(b.SourceScope),
			}
		}
		obj["parameters"] = params
	case RunPowershell:
		obj["code"] = Str(x.Code)
	case DebugMarker:
		obj["node_id"] = Str(x.NodeID)
		obj["description"] = Str(x.Description)
	default:
		return nil, fmt.Errorf("unsupported instruction %T", ins)
	}
	return obj, nil
}
