package compiler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/bissakov/qazcode-rpa-sub001/internal/expr"
	"github.com/bissakov/qazcode-rpa-sub001/internal/graph"
	"github.com/bissakov/qazcode-rpa-sub001/internal/variables"
)

// Validation error codes (E001-E299). Errors block compilation in the CLI.
const (
	// Structure (E001-E009)
	ErrMissingStartNode   = "E001" // scenario has no Start node
	ErrMissingEndNode     = "E002" // scenario has no End node
	ErrDeadEndPath        = "E003" // node reachable from Start cannot reach End
	ErrBrokenConnection   = "E004" // connection references a missing node
	ErrMisplacedErrorEdge = "E005" // ErrorBranch on an activity without error output

	// Control flow (E101-E109)
	ErrLoopStepZero      = "E101" // loop step is 0
	ErrScenarioNotFound  = "E103" // CallScenario target does not exist
	ErrInvalidCondition  = "E104" // If/While condition does not parse
	ErrInvalidExpression = "E105" // other expression or message does not parse
	ErrLoopBodyEntry     = "E106" // edge enters a loop body from outside it

	// Data flow (E201-E209)
	ErrEmptyVariableName   = "E201" // SetVariable name or loop index is empty
	ErrInvalidVariableName = "E202" // name is not an identifier
)

// Validation warning codes (W001-W099). Warnings never block a run.
const (
	WarnIfMissingTrue     = "W001" // If has no TrueBranch
	WarnIfMissingFalse    = "W002" // If has no FalseBranch
	WarnTryMissingTry     = "W003" // TryCatch has no TryBranch
	WarnTryMissingCatch   = "W004" // TryCatch has no CatchBranch
	WarnUseBeforeDefine   = "W005" // variable may be read before it is set
	WarnRecursiveScenario = "W006" // scenario can call itself
	WarnLoopNoBody        = "W007" // Loop or While without LoopBody
	WarnLoopNeverRuns     = "W008" // loop bounds exclude the start value
)

// Level is the severity of a validation issue.
type Level string

const (
	LevelError   Level = "error"
	LevelWarning Level = "warning"
)

// ValidationIssue is one finding of Validate.
type ValidationIssue struct {
	Level      Level  `json:"level"`
	Code       string `json:"code"`
	ScenarioID string `json:"scenario_id,omitempty"`
	NodeID     string `json:"node_id,omitempty"`
	Message    string `json:"message"`
}

// Error implements the error interface.
func (i ValidationIssue) Error() string {
	if i.NodeID != "" {
		return fmt.Sprintf("[%s] %s (node %s)", i.Code, i.Message, i.NodeID)
	}
	return fmt.Sprintf("[%s] %s", i.Code, i.Message)
}

// ValidationResult collects every issue of a project plus, per scenario,
// the sorted ids of the nodes reachable from its Start.
type ValidationResult struct {
	Issues    []ValidationIssue   `json:"issues"`
	Reachable map[string][]string `json:"reachable"`
}

// HasErrors reports whether any issue has error level.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors()) > 0
}

// Errors returns the error-level issues.
func (r *ValidationResult) Errors() []ValidationIssue { return r.filter(LevelError) }

// Warnings returns the warning-level issues.
func (r *ValidationResult) Warnings() []ValidationIssue { return r.filter(LevelWarning) }

func (r *ValidationResult) filter(level Level) []ValidationIssue {
	var out []ValidationIssue
	for _, i := range r.Issues {
		if i.Level == level {
			out = append(out, i)
		}
	}
	return out
}

// Validate checks a project graph without compiling it.
// Returns all issues found (does not fail-fast).
//
// Per scenario it checks, in order:
//  1. Start and End presence. Without them the structural checks are skipped.
//  2. Connection integrity, dead-end paths and branch coverage.
//  3. Loop parameters, conditions, expressions and scenario references of
//     reachable nodes, then edges entering a loop body from outside.
//  4. Variable names and use before definition along reachable paths.
//
// Recursive calls across the project are reported last.
func Validate(p *graph.Project) *ValidationResult {
	res := &ValidationResult{Reachable: make(map[string][]string)}
	for _, s := range p.AllScenarios() {
		v := &scenarioValidator{project: p, scenario: s}
		res.Issues = append(res.Issues, v.validate()...)
		res.Reachable[s.ID] = sortedKeys(v.reachable)
	}
	for _, w := range AnalyzeRecursion(CallGraph(p)) {
		res.Issues = append(res.Issues, ValidationIssue{
			Level:   LevelWarning,
			Code:    WarnRecursiveScenario,
			Message: w.Message,
		})
	}
	return res
}

type scenarioValidator struct {
	project   *graph.Project
	scenario  *graph.Scenario
	reachable map[string]bool
	issues    []ValidationIssue
}

func (v *scenarioValidator) errorf(nodeID, code, format string, args ...any) {
	v.add(LevelError, nodeID, code, format, args...)
}

func (v *scenarioValidator) warnf(nodeID, code, format string, args ...any) {
	v.add(LevelWarning, nodeID, code, format, args...)
}

func (v *scenarioValidator) add(level Level, nodeID, code, format string, args ...any) {
	v.issues = append(v.issues, ValidationIssue{
		Level:      level,
		Code:       code,
		ScenarioID: v.scenario.ID,
		NodeID:     nodeID,
		Message:    fmt.Sprintf(format, args...),
	})
}

func (v *scenarioValidator) validate() []ValidationIssue {
	v.reachable = v.forward(v.startIDs())
	for id := range v.reachable {
		if _, ok := v.scenario.Node(id); !ok {
			delete(v.reachable, id)
		}
	}

	if v.checkStartEnd() {
		v.checkConnections()
		v.checkDeadEnds()
		v.checkBranchCoverage()
	}
	v.checkControlFlow()
	v.checkLoopEntries()
	v.checkDataFlow()
	return v.issues
}

func (v *scenarioValidator) startIDs() []string {
	if start, ok := v.scenario.StartNode(); ok {
		return []string{start.ID}
	}
	return nil
}

// checkStartEnd reports E001/E002 and returns true when both exist.
func (v *scenarioValidator) checkStartEnd() bool {
	ok := true
	if _, found := v.scenario.StartNode(); !found {
		v.errorf("", ErrMissingStartNode, "Scenario '%s' is missing a Start node", v.scenario.Name)
		ok = false
	}
	if len(v.endIDs()) == 0 {
		v.errorf("", ErrMissingEndNode, "Scenario '%s' is missing an End node", v.scenario.Name)
		ok = false
	}
	return ok
}

func (v *scenarioValidator) endIDs() []string {
	var ids []string
	for _, n := range v.scenario.Nodes {
		if _, ok := n.Activity.(graph.End); ok {
			ids = append(ids, n.ID)
		}
	}
	return ids
}

func (v *scenarioValidator) checkConnections() {
	for _, c := range v.scenario.Connections {
		if _, ok := v.scenario.Node(c.FromNode); !ok {
			v.errorf("", ErrBrokenConnection, "Connection references non-existent source node %s", c.FromNode)
		}
		if _, ok := v.scenario.Node(c.ToNode); !ok {
			v.errorf("", ErrBrokenConnection, "Connection references non-existent target node %s", c.ToNode)
		}
		if c.Branch() != graph.BranchError {
			continue
		}
		if n, ok := v.scenario.Node(c.FromNode); ok && n.Activity != nil && !graph.CanHaveErrorOutput(n.Activity) {
			v.errorf(n.ID, ErrMisplacedErrorEdge, "%s node (%s) cannot have an error branch", n.Activity.Kind(), n.ID)
		}
	}
}

// checkDeadEnds reports nodes reachable from Start that cannot reach any
// End. Loop bodies and TryCatch branches are exempt: a path that stops
// inside them continues at the loop header or after the TryCatch.
func (v *scenarioValidator) checkDeadEnds() {
	toEnd := v.backward(v.endIDs())
	nested := v.nestedBodies()
	for _, id := range sortedKeys(v.reachable) {
		if toEnd[id] || nested[id] {
			continue
		}
		n, ok := v.scenario.Node(id)
		if !ok || n.Activity == nil {
			continue
		}
		if _, isEnd := n.Activity.(graph.End); isEnd {
			continue
		}
		v.errorf(id, ErrDeadEndPath,
			"Node '%s' (%s) is reachable from Start but doesn't lead to End", n.Activity.Describe(), id)
	}
}

func (v *scenarioValidator) checkBranchCoverage() {
	connected := make(map[string]bool)
	for _, c := range v.scenario.Connections {
		connected[c.FromNode] = true
		connected[c.ToNode] = true
	}
	for _, n := range v.scenario.Nodes {
		if !connected[n.ID] {
			continue
		}
		switch n.Activity.(type) {
		case graph.IfCondition:
			if !v.has(n.ID, graph.BranchTrue) {
				v.warnf(n.ID, WarnIfMissingTrue, "If node (%s) is missing True branch connection", n.ID)
			}
			if !v.has(n.ID, graph.BranchFalse) {
				v.warnf(n.ID, WarnIfMissingFalse, "If node (%s) is missing False branch connection", n.ID)
			}
		case graph.TryCatch:
			if !v.has(n.ID, graph.BranchTry) {
				v.warnf(n.ID, WarnTryMissingTry, "Try-Catch node (%s) is missing Try branch connection", n.ID)
			}
			if !v.has(n.ID, graph.BranchCatch) {
				v.warnf(n.ID, WarnTryMissingCatch, "Try-Catch node (%s) is missing Catch branch connection", n.ID)
			}
		case graph.Loop, graph.While:
			if !v.has(n.ID, graph.BranchLoopBody) {
				v.warnf(n.ID, WarnLoopNoBody, "Loop node (%s) has no body connection, loop will be skipped", n.ID)
			}
		}
	}
}

func (v *scenarioValidator) checkControlFlow() {
	for _, n := range v.reachableNodes() {
		switch a := n.Activity.(type) {
		case graph.Loop:
			switch {
			case a.Step == 0:
				v.errorf(n.ID, ErrLoopStepZero,
					"Loop node (%s) has step = 0, which would cause infinite loop", n.ID)
			case a.Step > 0 && a.Start > a.End, a.Step < 0 && a.Start < a.End:
				v.warnf(n.ID, WarnLoopNeverRuns,
					"Loop node (%s) never runs: start (%d), end (%d), step (%d)", n.ID, a.Start, a.End, a.Step)
			}
		case graph.IfCondition:
			v.checkCondition(n.ID, a.Condition)
		case graph.While:
			v.checkCondition(n.ID, a.Condition)
		case graph.Evaluate:
			if _, err := expr.Compile(a.Expression); err != nil {
				v.errorf(n.ID, ErrInvalidExpression, "Invalid expression '%s': %v", a.Expression, err)
			}
		case graph.Log:
			if _, err := expr.CompileTemplate(a.Message); err != nil {
				v.errorf(n.ID, ErrInvalidExpression, "Invalid message '%s': %v", a.Message, err)
			}
		case graph.SetVariable:
			if _, err := setValue(a); err != nil {
				v.errorf(n.ID, ErrInvalidExpression, "Invalid value '%s' for '%s': %v", a.Value, a.Name, err)
			}
		case graph.CallScenario:
			if _, ok := v.project.Scenario(a.ScenarioID); !ok {
				v.errorf(n.ID, ErrScenarioNotFound,
					"CallScenario node (%s) references non-existent scenario %s", n.ID, a.ScenarioID)
			}
		}
	}
}

// checkLoopEntries reports edges that enter a loop body anywhere but
// through the loop's own LoopBody edge. End nodes may be shared.
func (v *scenarioValidator) checkLoopEntries() {
	for _, n := range v.reachableNodes() {
		switch n.Activity.(type) {
		case graph.Loop, graph.While:
		default:
			continue
		}
		start, ok := v.scenario.Successor(n.ID, graph.BranchLoopBody)
		if !ok {
			continue
		}
		body := v.bodyFrom(n.ID, start)
		for _, c := range v.scenario.Connections {
			if !body[c.ToNode] || body[c.FromNode] || !v.reachable[c.FromNode] {
				continue
			}
			if c.FromNode == n.ID && c.Branch() == graph.BranchLoopBody {
				continue
			}
			if target, ok := v.scenario.Node(c.ToNode); ok {
				if _, isEnd := target.Activity.(graph.End); isEnd {
					continue
				}
			}
			v.errorf(c.FromNode, ErrLoopBodyEntry,
				"Connection from %s enters the body of loop node (%s) at %s", c.FromNode, n.ID, c.ToNode)
		}
	}
}

func (v *scenarioValidator) checkCondition(nodeID, cond string) {
	if strings.TrimSpace(cond) == "" {
		v.errorf(nodeID, ErrInvalidCondition, "Invalid condition '%s': Condition is empty", cond)
		return
	}
	if _, err := expr.Compile(cond); err != nil {
		v.errorf(nodeID, ErrInvalidCondition, "Invalid condition '%s': %v", cond, err)
	}
}

// setValue parses a SetVariable value the way the compiler does: String
// variables accept template text, everything else must be an expression.
func setValue(a graph.SetVariable) (*expr.Expression, error) {
	if kind, err := expr.ParseKind(a.VarType); err == nil && kind == expr.KindString {
		return expr.CompileTemplate(a.Value)
	}
	return expr.Compile(a.Value)
}

func (v *scenarioValidator) checkDataFlow() {
	for _, n := range v.reachableNodes() {
		var name, what string
		switch a := n.Activity.(type) {
		case graph.SetVariable:
			name, what = a.Name, "Variable name"
		case graph.Loop:
			name, what = a.Index, "Loop index variable name"
		default:
			continue
		}
		switch {
		case name == "":
			v.errorf(n.ID, ErrEmptyVariableName, "%s is empty in node (%s)", what, n.ID)
		case !expr.IsValidName(name):
			v.errorf(n.ID, ErrInvalidVariableName, "%s '%s' is not a valid identifier in node (%s)", what, name, n.ID)
		}
	}
	v.checkUseBeforeDefine()
}

// checkUseBeforeDefine walks reachable nodes depth-first from Start,
// tracking names defined so far. A name read before any definition on the
// walk is reported once, in order of first use.
func (v *scenarioValidator) checkUseBeforeDefine() {
	defined := map[string]bool{"last_error": true}
	for _, d := range v.project.Variables {
		defined[d.Name] = true
	}
	for _, s := range v.project.AllScenarios() {
		for _, d := range s.Variables {
			if d.Scope == variables.ScopeGlobal {
				defined[d.Name] = true
			}
		}
	}
	for _, d := range v.scenario.Variables {
		defined[d.Name] = true
	}
	for _, p := range v.scenario.Parameters {
		defined[p.VarName] = true
	}

	reported := make(map[string]bool)
	use := func(nodeID string, names []string) {
		for _, name := range names {
			if defined[name] || reported[name] {
				continue
			}
			reported[name] = true
			v.warnf(nodeID, WarnUseBeforeDefine, "Variable '%s' may be used before being defined", name)
		}
	}

	visited := make(map[string]bool)
	var walk func(id string)
	walk = func(id string) {
		if visited[id] {
			return
		}
		visited[id] = true
		n, ok := v.scenario.Node(id)
		if !ok {
			return
		}

		switch a := n.Activity.(type) {
		case graph.SetVariable:
			if e, err := setValue(a); err == nil {
				use(id, e.Variables())
			}
			defined[a.Name] = true
		case graph.Log:
			if e, err := expr.CompileTemplate(a.Message); err == nil {
				use(id, e.Variables())
			}
		case graph.Evaluate:
			if e, err := expr.Compile(a.Expression); err == nil {
				use(id, e.Variables())
			}
		case graph.IfCondition:
			if e, err := expr.Compile(a.Condition); err == nil {
				use(id, e.Variables())
			}
		case graph.While:
			if e, err := expr.Compile(a.Condition); err == nil {
				use(id, e.Variables())
			}
		case graph.Loop:
			defined[a.Index] = true
		case graph.CallScenario:
			for _, b := range a.Parameters {
				if b.Direction.CopiesIn() {
					use(id, []string{b.SourceVarName})
				}
			}
			for _, b := range a.Parameters {
				if b.Direction.CopiesOut() {
					defined[b.SourceVarName] = true
				}
			}
		}

		for _, c := range v.scenario.Outgoing(id) {
			walk(c.ToNode)
		}
	}
	for _, id := range v.startIDs() {
		walk(id)
	}
}

func (v *scenarioValidator) has(id string, branch graph.BranchType) bool {
	_, ok := v.scenario.Successor(id, branch)
	return ok
}

// reachableNodes returns reachable nodes in declared order.
func (v *scenarioValidator) reachableNodes() []*graph.Node {
	var out []*graph.Node
	for i := range v.scenario.Nodes {
		if v.reachable[v.scenario.Nodes[i].ID] {
			out = append(out, &v.scenario.Nodes[i])
		}
	}
	return out
}

// forward returns every node reachable from roots along any edge.
func (v *scenarioValidator) forward(roots []string) map[string]bool {
	return v.closure(roots, func(c graph.Connection) (string, string) { return c.FromNode, c.ToNode })
}

// backward returns every node from which one of roots is reachable.
func (v *scenarioValidator) backward(roots []string) map[string]bool {
	return v.closure(roots, func(c graph.Connection) (string, string) { return c.ToNode, c.FromNode })
}

func (v *scenarioValidator) closure(roots []string, edge func(graph.Connection) (from, to string)) map[string]bool {
	seen := make(map[string]bool)
	stack := append([]string(nil), roots...)
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[id] {
			continue
		}
		seen[id] = true
		for _, c := range v.scenario.Connections {
			if from, to := edge(c); from == id && !seen[to] {
				stack = append(stack, to)
			}
		}
	}
	return seen
}

// nestedBodies returns the nodes reachable from a LoopBody, TryBranch or
// CatchBranch edge without passing back through the owning node.
func (v *scenarioValidator) nestedBodies() map[string]bool {
	out := make(map[string]bool)
	for _, n := range v.scenario.Nodes {
		for _, c := range v.scenario.Outgoing(n.ID) {
			switch c.Branch() {
			case graph.BranchLoopBody, graph.BranchTry, graph.BranchCatch:
			default:
				continue
			}
			for id := range v.bodyFrom(n.ID, c.ToNode) {
				out[id] = true
			}
		}
	}
	return out
}

// bodyFrom returns the nodes reachable from start without passing
// through owner.
func (v *scenarioValidator) bodyFrom(owner, start string) map[string]bool {
	seen := map[string]bool{owner: true}
	body := make(map[string]bool)
	stack := []string{start}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[id] {
			continue
		}
		seen[id] = true
		body[id] = true
		for _, next := range v.scenario.Outgoing(id) {
			stack = append(stack, next.ToNode)
		}
	}
	return body
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
