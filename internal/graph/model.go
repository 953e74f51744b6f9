// Package graph defines the workflow graph model: projects, scenarios,
// nodes, activities and connections.
//
// A Project is what the editor (or a project file) hands to the compiler.
// The model is plain data; it has no behavior beyond lookups. Loading from
// generic maps lives in decode.go, struct-level checks in check.go.
package graph

import (
	"github.com/bissakov/qazcode-rpa-sub001/internal/expr"
	"github.com/bissakov/qazcode-rpa-sub001/internal/variables"
)

// BranchType labels the outgoing edge of a node.
type BranchType string

const (
	BranchDefault  BranchType = "Default"
	BranchTrue     BranchType = "TrueBranch"
	BranchFalse    BranchType = "FalseBranch"
	BranchLoopBody BranchType = "LoopBody"
	BranchError    BranchType = "ErrorBranch"
	BranchTry      BranchType = "TryBranch"
	BranchCatch    BranchType = "CatchBranch"
)

// Direction is the data flow of a scenario parameter or call binding.
type Direction string

const (
	DirectionIn    Direction = "In"
	DirectionOut   Direction = "Out"
	DirectionInOut Direction = "InOut"
)

// CopiesIn reports whether the caller's value is passed to the callee.
func (d Direction) CopiesIn() bool { return d == DirectionIn || d == DirectionInOut }

// CopiesOut reports whether the callee's value is copied back on return.
func (d Direction) CopiesOut() bool { return d == DirectionOut || d == DirectionInOut }

// Project is a named set of scenarios with one entry scenario.
type Project struct {
	Name         string     `json:"name" validate:"required"`
	MainScenario Scenario   `json:"main_scenario"`
	Scenarios    []Scenario `json:"scenarios" validate:"dive"`
	Variables    Variables  `json:"variables" validate:"dive"`
}

// Scenario is one directed graph of nodes.
type Scenario struct {
	ID          string       `json:"id" validate:"required"`
	Name        string       `json:"name"`
	Nodes       []Node       `json:"nodes" validate:"dive"`
	Connections []Connection `json:"connections" validate:"dive"`
	Parameters  []Parameter  `json:"parameters" validate:"dive"`
	Variables   Variables    `json:"variables" validate:"dive"`
}

// Node is a graph vertex carrying one activity. Layout fields in project
// files are accepted and dropped.
type Node struct {
	ID       string   `json:"id" validate:"required"`
	Activity Activity `json:"activity" validate:"required"`
}

// Connection is a directed, labelled edge.
type Connection struct {
	ID         string     `json:"id"`
	FromNode   string     `json:"from_node" validate:"required"`
	ToNode     string     `json:"to_node" validate:"required"`
	BranchType BranchType `json:"branch_type" validate:"omitempty,oneof=Default TrueBranch FalseBranch LoopBody ErrorBranch TryBranch CatchBranch"`
}

// Parameter declares a scenario input or output.
type Parameter struct {
	VarName   string    `json:"var_name" validate:"required"`
	Direction Direction `json:"direction" validate:"required,oneof=In Out InOut"`
}

// Binding maps a caller variable to a callee parameter.
type Binding struct {
	TargetVarName string    `json:"target_var_name" validate:"required"`
	SourceVarName string    `json:"source_var_name" validate:"required"`
	Direction     Direction `json:"direction" validate:"required,oneof=In Out InOut"`

	// SourceScope is empty when the caller did not pin a scope.
	SourceScope variables.Scope `json:"source_scope,omitempty" validate:"omitempty,oneof=Global Scenario"`
}

// VariableDecl is an initial variable value.
type VariableDecl struct {
	Name  string          `json:"name" validate:"required"`
	Value expr.Value      `json:"value"`
	Scope variables.Scope `json:"scope,omitempty" validate:"omitempty,oneof=Global Scenario"`
}

// Variables is an ordered list of declarations.
type Variables []VariableDecl

// Scenario returns the scenario with id, including the main scenario.
func (p *Project) Scenario(id string) (*Scenario, bool) {
	if p.MainScenario.ID == id {
		return &p.MainScenario, true
	}
	for i := range p.Scenarios {
		if p.Scenarios[i].ID == id {
			return &p.Scenarios[i], true
		}
	}
	return nil, false
}

// AllScenarios returns the main scenario followed by the others in
// declared order.
func (p *Project) AllScenarios() []*Scenario {
	out := make([]*Scenario, 0, len(p.Scenarios)+1)
	out = append(out, &p.MainScenario)
	for i := range p.Scenarios {
		out = append(out, &p.Scenarios[i])
	}
	return out
}

// Node returns the node with id.
func (s *Scenario) Node(id string) (*Node, bool) {
	for i := range s.Nodes {
		if s.Nodes[i].ID == id {
			return &s.Nodes[i], true
		}
	}
	return nil, false
}

// Outgoing returns connections leaving id, in declared order.
func (s *Scenario) Outgoing(id string) []Connection {
	var out []Connection
	for _, c := range s.Connections {
		if c.FromNode == id {
			out = append(out, c)
		}
	}
	return out
}

// Successor returns the target of the first connection leaving id with the
// given branch type.
func (s *Scenario) Successor(id string, branch BranchType) (string, bool) {
	for _, c := range s.Connections {
		if c.FromNode == id && c.Branch() == branch {
			return c.ToNode, true
		}
	}
	return "", false
}

// StartNode returns the first Start node.
func (s *Scenario) StartNode() (*Node, bool) {
	for i := range s.Nodes {
		if _, ok := s.Nodes[i].Activity.(Start); ok {
			return &s.Nodes[i], true
		}
	}
	return nil, false
}

// Branch returns the branch type, treating empty as Default.
func (c Connection) Branch() BranchType {
	if c.BranchType == "" {
		return BranchDefault
	}
	return c.BranchType
}
