package ir

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bissakov/qazcode-rpa-sub001/internal/expr"
	"github.com/bissakov/qazcode-rpa-sub001/internal/graph"
	"github.com/bissakov/qazcode-rpa-sub001/internal/runlog"
	"github.com/bissakov/qazcode-rpa-sub001/internal/variables"
)

func sampleProgram() *Program {
	return &Program{
		Instructions: []Instruction{
			DebugMarker{NodeID: "s", Description: "Start"},
			Start{ScenarioID: "main"},
			SetVar{Name: "x", Scope: variables.ScopeScenario, Type: expr.KindNumber, Value: expr.MustCompile("5")},
			JumpIfNot{Cond: expr.MustCompile("$x > 3"), Target: 5},
			Log{Level: runlog.LevelInfo, Message: expr.MustCompile("@x")},
			CallScenario{ScenarioID: "helper", Parameters: []graph.Binding{
				{TargetVarName: "n", SourceVarName: "x", Direction: graph.DirectionIn},
			}},
			End{ScenarioID: "main"},
			Start{ScenarioID: "helper"},
			End{ScenarioID: "helper"},
		},
		EntryPoint:    1,
		ScenarioStart: map[string]int{"main": 1, "helper": 7},
		CallGraph:     map[string][]string{"main": {"helper"}},
	}
}

func TestProgramVerify(t *testing.T) {
	p := sampleProgram()
	require.NoError(t, p.Verify())

	p.Instructions[3] = JumpIfNot{Cond: expr.MustCompile("true"), Target: 99}
	err := p.Verify()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}

func TestProgramVerify_StartMismatch(t *testing.T) {
	p := sampleProgram()
	p.ScenarioStart["helper"] = 8
	assert.Error(t, p.Verify())
}

func TestProgramVerify_UnknownCallee(t *testing.T) {
	p := sampleProgram()
	delete(p.ScenarioStart, "helper")
	assert.ErrorContains(t, p.Verify(), "unknown scenario helper")
}

func TestRetarget(t *testing.T) {
	ins, err := Retarget(LoopCheck{Index: "i", BodyTarget: Unresolved, EndTarget: Unresolved}, FieldEnd, 12)
	require.NoError(t, err)
	assert.Equal(t, 12, ins.(LoopCheck).EndTarget)
	assert.Equal(t, Unresolved, ins.(LoopCheck).BodyTarget)

	_, err = Retarget(Start{}, FieldTarget, 1)
	assert.Error(t, err)

	_, err = Retarget(Jump{}, FieldCatch, 1)
	assert.Error(t, err)
}

func TestTargets(t *testing.T) {
	assert.Equal(t, []TargetRef{{FieldBody, 3}, {FieldEnd, 9}}, Targets(WhileCheck{BodyTarget: 3, EndTarget: 9}))
	assert.Nil(t, Targets(Log{}))
}

func TestHashDeterministic(t *testing.T) {
	h1, err := Hash(sampleProgram())
	require.NoError(t, err)
	h2, err := Hash(sampleProgram())
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
}

func TestHashChangesWithProgram(t *testing.T) {
	p := sampleProgram()
	h1 := MustHash(p)
	p.Instructions[2] = SetVar{Name: "x", Scope: variables.ScopeScenario, Type: expr.KindNumber, Value: expr.MustCompile("6")}
	assert.NotEqual(t, h1, MustHash(p))
}

func TestHashRejectsNilInstruction(t *testing.T) {
	_, err := Hash(&Program{Instructions: []Instruction{nil}})
	assert.ErrorContains(t, err, "instruction 0: nil instruction")
}

func TestToCanonicalShape(t *testing.T) {
	p := &Program{
		Instructions:  []Instruction{Start{ScenarioID: "m"}, End{ScenarioID: "m"}},
		ScenarioStart: map[string]int{"m": 0},
	}
	data, err := ToCanonical(p)
	require.NoError(t, err)
	assert.Equal(t,
		`{"call_graph":{},"entry_point":0,"instructions":[{"op":"START","scenario_id":"m"},{"op":"END","scenario_id":"m"}],"recursive_scenarios":[],"scenario_start":{"m":0},"version":"1"}`,
		string(data))
}

func TestDisassemble(t *testing.T) {
	out := Disassemble(sampleProgram())
	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")

	assert.Equal(t, "; program v1, 9 instructions, entry 0001", lines[0])
	assert.Equal(t, "; scenario main @0001", lines[1])
	assert.Equal(t, "; scenario helper @0007", lines[2])
	assert.Equal(t, `0000  MARKER s "Start"`, lines[3])
	assert.Equal(t, `0002  SET_VAR Scenario x:Number = "5"`, lines[5])
	assert.Equal(t, `0003  JUMP_IF_NOT "$x > 3" -> 0005`, lines[6])
	assert.Equal(t, `0004  LOG INFO "@x"`, lines[7])
	assert.Equal(t, `0005  CALL helper [n=x In]`, lines[8])
}

func TestIsRecursive(t *testing.T) {
	p := &Program{RecursiveScenarios: []string{"a", "c"}}
	assert.True(t, p.IsRecursive("c"))
	assert.False(t, p.IsRecursive("b"))
}
