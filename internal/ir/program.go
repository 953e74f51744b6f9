package ir

import (
	"fmt"
	"sort"
)

// Program is a compiled project.
type Program struct {
	Instructions []Instruction

	// EntryPoint is the address of the main scenario's Start.
	EntryPoint int

	// ScenarioStart maps scenario id to the address where the scenario
	// begins: its Start, or the debug marker immediately before it.
	ScenarioStart map[string]int

	// CallGraph maps each scenario id to the distinct scenario ids it
	// calls, in first-call order.
	CallGraph map[string][]string

	// RecursiveScenarios lists, sorted, scenarios that can reach
	// themselves through calls.
	RecursiveScenarios []string
}

// Len returns the number of instructions.
func (p *Program) Len() int { return len(p.Instructions) }

// At returns the instruction at addr.
func (p *Program) At(addr int) (Instruction, bool) {
	if addr < 0 || addr >= len(p.Instructions) {
		return nil, false
	}
	return p.Instructions[addr], true
}

// IsRecursive reports whether id is in RecursiveScenarios.
func (p *Program) IsRecursive(id string) bool {
	i := sort.SearchStrings(p.RecursiveScenarios, id)
	return i < len(p.RecursiveScenarios) && p.RecursiveScenarios[i] == id
}

// Verify checks that the entry point, every scenario start and every
// target slot address a real instruction, and that each scenario start
// reaches a Start for that scenario.
func (p *Program) Verify() error {
	n := len(p.Instructions)
	if p.EntryPoint < 0 || p.EntryPoint >= n {
		return fmt.Errorf("entry point %d out of range [0,%d)", p.EntryPoint, n)
	}
	for id, addr := range p.ScenarioStart {
		ins, ok := p.At(addr)
		if !ok {
			return fmt.Errorf("scenario %s: start %d out of range", id, addr)
		}
		if _, ok := ins.(DebugMarker); ok {
			if next, ok := p.At(addr + 1); ok {
				ins = next
			}
		}
		if s, ok := ins.(Start); !ok || s.ScenarioID != id {
			return fmt.Errorf("scenario %s: address %d is %s, not its Start", id, addr, ins.Op())
		}
	}
	for addr, ins := range p.Instructions {
		for _, t := range Targets(ins) {
			if t.Addr < 0 || t.Addr >= n {
				return fmt.Errorf("%04d %s: %s target %d out of range", addr, ins.Op(), t.Field, t.Addr)
			}
		}
		if call, ok := ins.(CallScenario); ok {
			if _, ok := p.ScenarioStart[call.ScenarioID]; !ok {
				return fmt.Errorf("%04d CALL: unknown scenario %s", addr, call.ScenarioID)
			}
		}
	}
	return nil
}
