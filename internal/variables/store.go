// Package variables holds named runtime values for a workflow run.
//
// A run composes two live stores: the Global store, shared by every
// scenario, and the active local store (main scenario locals, or the locals
// of the innermost call frame). Chain resolves local first, then Global.
package variables

import (
	"fmt"
	"sort"

	"github.com/bissakov/qazcode-rpa-sub001/internal/expr"
)

// Scope says which store a variable lives in.
type Scope string

const (
	// ScopeGlobal variables are visible to every scenario in the run.
	ScopeGlobal Scope = "Global"

	// ScopeScenario variables live in the local store of one scenario
	// invocation and never leak to callers.
	ScopeScenario Scope = "Scenario"
)

// ParseScope maps a serialized scope name to a Scope.
// Empty defaults to ScopeScenario.
func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case ScopeGlobal:
		return ScopeGlobal, nil
	case ScopeScenario, "":
		return ScopeScenario, nil
	case "global":
		return ScopeGlobal, nil
	case "scenario", "Local", "local":
		return ScopeScenario, nil
	default:
		return "", fmt.Errorf("invalid scope %q: must be Global or Scenario", s)
	}
}

// Variable is one named slot.
type Variable struct {
	Value expr.Value
	Scope Scope
}

// Store maps names to variables. It is not safe for concurrent use; the VM
// owns its stores and hands out Snapshots to observers.
type Store struct {
	scope Scope
	vars  map[string]*Variable
}

// New returns an empty store whose variables carry scope.
func New(scope Scope) *Store {
	return &Store{scope: scope, vars: make(map[string]*Variable)}
}

// Scope returns the scope assigned to variables created in s.
func (s *Store) Scope() Scope { return s.scope }

// Create adds name with an Undefined value. An existing value is reset.
func (s *Store) Create(name string) {
	s.vars[name] = &Variable{Value: expr.Undefined(), Scope: s.scope}
}

// Set stores v under an existing name. It reports false, and stores
// nothing, when name was never created.
func (s *Store) Set(name string, v expr.Value) bool {
	slot, ok := s.vars[name]
	if !ok {
		return false
	}
	slot.Value = v
	return true
}

// Define creates name if needed and stores v.
func (s *Store) Define(name string, v expr.Value) {
	if slot, ok := s.vars[name]; ok {
		slot.Value = v
		return
	}
	s.vars[name] = &Variable{Value: v, Scope: s.scope}
}

// Get returns the value of name.
func (s *Store) Get(name string) (expr.Value, bool) {
	slot, ok := s.vars[name]
	if !ok {
		return expr.Undefined(), false
	}
	return slot.Value, true
}

// Lookup returns the full variable record.
func (s *Store) Lookup(name string) (Variable, bool) {
	slot, ok := s.vars[name]
	if !ok {
		return Variable{}, false
	}
	return *slot, true
}

// Has reports whether name exists.
func (s *Store) Has(name string) bool {
	_, ok := s.vars[name]
	return ok
}

// Remove deletes name. Removing a missing name is a no-op.
func (s *Store) Remove(name string) {
	delete(s.vars, name)
}

// Len returns the number of variables.
func (s *Store) Len() int { return len(s.vars) }

// Names returns all variable names in sorted order.
func (s *Store) Names() []string {
	names := make([]string, 0, len(s.vars))
	for name := range s.vars {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshot copies the current values into a fresh map.
func (s *Store) Snapshot() map[string]expr.Value {
	out := make(map[string]expr.Value, len(s.vars))
	for name, slot := range s.vars {
		out[name] = slot.Value
	}
	return out
}

// Clone returns an independent copy of s.
func (s *Store) Clone() *Store {
	c := New(s.scope)
	for name, slot := range s.vars {
		cp := *slot
		c.vars[name] = &cp
	}
	return c
}

// Resolve implements expr.Resolver for a single store.
func (s *Store) Resolve(name string) (expr.Value, error) {
	if v, ok := s.Get(name); ok {
		return v, nil
	}
	return expr.Undefined(), undefinedVariable(name)
}

func undefinedVariable(name string) error {
	return expr.NewEvalError("Undefined variable: " + name)
}
