// Package testutil holds helpers shared by tests: graph builders and a
// deterministic clock.
package testutil

import (
	"fmt"

	"github.com/bissakov/qazcode-rpa-sub001/internal/expr"
	"github.com/bissakov/qazcode-rpa-sub001/internal/graph"
	"github.com/bissakov/qazcode-rpa-sub001/internal/variables"
)

// ScenarioBuilder assembles a graph.Scenario fluently:
//
//	s := testutil.NewScenario("main").
//		Node("start", graph.Start{}).
//		Node("log", graph.Log{Message: "hi"}).
//		Node("end", graph.End{}).
//		Chain("start", "log", "end").
//		Build()
//
// Connection ids are generated in insertion order (c1, c2, ...).
type ScenarioBuilder struct {
	s graph.Scenario
}

// NewScenario starts a scenario whose name equals its id.
func NewScenario(id string) *ScenarioBuilder {
	return &ScenarioBuilder{s: graph.Scenario{ID: id, Name: id}}
}

// Named overrides the scenario name.
func (b *ScenarioBuilder) Named(name string) *ScenarioBuilder {
	b.s.Name = name
	return b
}

// Node adds a node.
func (b *ScenarioBuilder) Node(id string, a graph.Activity) *ScenarioBuilder {
	b.s.Nodes = append(b.s.Nodes, graph.Node{ID: id, Activity: a})
	return b
}

// Edge adds a Default connection.
func (b *ScenarioBuilder) Edge(from, to string) *ScenarioBuilder {
	return b.Branch(from, to, graph.BranchDefault)
}

// Branch adds a connection with the given branch type.
func (b *ScenarioBuilder) Branch(from, to string, branch graph.BranchType) *ScenarioBuilder {
	b.s.Connections = append(b.s.Connections, graph.Connection{
		ID:         fmt.Sprintf("c%d", len(b.s.Connections)+1),
		FromNode:   from,
		ToNode:     to,
		BranchType: branch,
	})
	return b
}

// Chain connects consecutive ids with Default edges.
func (b *ScenarioBuilder) Chain(ids ...string) *ScenarioBuilder {
	for i := 1; i < len(ids); i++ {
		b.Edge(ids[i-1], ids[i])
	}
	return b
}

// Param declares a scenario parameter.
func (b *ScenarioBuilder) Param(name string, dir graph.Direction) *ScenarioBuilder {
	b.s.Parameters = append(b.s.Parameters, graph.Parameter{VarName: name, Direction: dir})
	return b
}

// Var declares a scenario variable.
func (b *ScenarioBuilder) Var(name string, v expr.Value) *ScenarioBuilder {
	b.s.Variables = append(b.s.Variables, graph.VariableDecl{Name: name, Value: v})
	return b
}

// Build returns the scenario.
func (b *ScenarioBuilder) Build() graph.Scenario {
	return b.s
}

// NewProject wraps scenarios into a project named "test". The first
// scenario is the main one.
func NewProject(main graph.Scenario, others ...graph.Scenario) *graph.Project {
	return &graph.Project{Name: "test", MainScenario: main, Scenarios: others}
}

// WithGlobal adds a Global variable declaration to p and returns p.
func WithGlobal(p *graph.Project, name string, v expr.Value) *graph.Project {
	p.Variables = append(p.Variables, graph.VariableDecl{Name: name, Value: v, Scope: variables.ScopeGlobal})
	return p
}

// Linear returns a main scenario start → activities... → end, with nodes
// named n1, n2, ... in order.
func Linear(activities ...graph.Activity) *graph.Project {
	b := NewScenario("main").Node("start", graph.Start{})
	ids := []string{"start"}
	for i, a := range activities {
		id := fmt.Sprintf("n%d", i+1)
		b.Node(id, a)
		ids = append(ids, id)
	}
	b.Node("end", graph.End{})
	ids = append(ids, "end")
	return NewProject(b.Chain(ids...).Build())
}
