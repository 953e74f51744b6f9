package compiler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/bissakov/qazcode-rpa-sub001/internal/graph"
)

// CycleWarning describes a set of scenarios that can call themselves.
//
// Recursion is a warning, not an error: a recursive scenario with a
// terminating condition is legal and is bounded at run time by the
// maximum call depth.
type CycleWarning struct {
	Path    []string `json:"path"`    // Call path: ["a", "b", "a"]
	Message string   `json:"message"` // Human-readable description
}

// callGraph maps scenario id → distinct scenario ids it calls.
type callGraph map[string][]string

// CallGraph returns, for every scenario in p, the distinct scenarios it
// calls in first-call order. Scenarios that call nothing map to an empty,
// non-nil slice. Calls to unknown scenarios are kept; the compiler
// reports them separately.
func CallGraph(p *graph.Project) map[string][]string {
	g := make(map[string][]string)
	for _, s := range p.AllScenarios() {
		seen := make(map[string]bool)
		callees := []string{}
		for _, n := range s.Nodes {
			call, ok := n.Activity.(graph.CallScenario)
			if !ok || seen[call.ScenarioID] {
				continue
			}
			seen[call.ScenarioID] = true
			callees = append(callees, call.ScenarioID)
		}
		g[s.ID] = callees
	}
	return g
}

// AnalyzeRecursion reports every strongly connected component of the call
// graph that forms a cycle: SCCs with more than one scenario, or a single
// scenario that calls itself.
//
// Warnings are ordered by the smallest scenario id they contain so the
// output is stable.
func AnalyzeRecursion(g map[string][]string) []CycleWarning {
	cg := callGraph(g)
	var warnings []CycleWarning
	for _, scc := range tarjanSCC(cg) {
		if len(scc) > 1 || hasSelfLoop(scc[0], cg) {
			warnings = append(warnings, cycleSCCToWarning(scc, cg))
		}
	}
	sort.Slice(warnings, func(i, j int) bool {
		return minString(warnings[i].Path) < minString(warnings[j].Path)
	})
	return warnings
}

// RecursiveScenarios returns, sorted, every scenario that sits on a call
// cycle.
func RecursiveScenarios(g map[string][]string) []string {
	cg := callGraph(g)
	out := []string{}
	for _, scc := range tarjanSCC(cg) {
		if len(scc) > 1 || hasSelfLoop(scc[0], cg) {
			out = append(out, scc...)
		}
	}
	sort.Strings(out)
	return out
}

// hasSelfLoop checks if a node has an edge to itself.
func hasSelfLoop(node string, g callGraph) bool {
	for _, neighbor := range g[node] {
		if neighbor == node {
			return true
		}
	}
	return false
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
// Roots are visited in sorted order so the result does not depend on map
// iteration.
func tarjanSCC(g callGraph) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range g[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		// v is a root: pop its component.
		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sort.Strings(scc)
			sccs = append(sccs, scc)
		}
	}

	roots := make([]string, 0, len(g))
	for node := range g {
		roots = append(roots, node)
	}
	sort.Strings(roots)
	for _, node := range roots {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}

	return sccs
}

func cycleSCCToWarning(scc []string, g callGraph) CycleWarning {
	if len(scc) == 1 {
		id := scc[0]
		return CycleWarning{
			Path:    []string{id, id},
			Message: fmt.Sprintf("Recursive scenario call detected: %s -> %s", id, id),
		}
	}
	path := reconstructCyclePath(scc, g)
	return CycleWarning{
		Path:    path,
		Message: fmt.Sprintf("Recursive scenario call detected: %s", strings.Join(path, " -> ")),
	}
}

// reconstructCyclePath walks call edges inside the SCC from its smallest
// member until it returns to it.
func reconstructCyclePath(scc []string, g callGraph) []string {
	members := make(map[string]bool, len(scc))
	for _, node := range scc {
		members[node] = true
	}

	start := scc[0]
	current := start
	path := []string{current}
	visited := make(map[string]bool)

	for {
		visited[current] = true

		var next string
		for _, neighbor := range g[current] {
			if members[neighbor] && (!visited[neighbor] || neighbor == start) {
				next = neighbor
				break
			}
		}
		if next == "" {
			break
		}

		path = append(path, next)
		if next == start {
			break
		}
		current = next
	}

	return path
}

func minString(ss []string) string {
	if len(ss) == 0 {
		return ""
	}
	m := ss[0]
	for _, s := range ss[1:] {
		if s < m {
			m = s
		}
	}
	return m
}
