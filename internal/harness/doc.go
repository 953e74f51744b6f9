// Package harness runs conformance cases against compiled RPA projects.
//
// A case names a project file, seeds Global variables, and asserts on the
// run log and the final variable stores. The project goes through the same
// pipeline the CLI uses: load, validate, compile, execute.
//
// # Case Format
//
// Cases are YAML files:
//
//	name: total_doubles_count
//	description: "SetVariable reads a project Global"
//	project: ../projects/total.yaml
//	run_id: case-total
//	globals:
//	  count: 4
//	expect:
//	  status: completed
//	assertions:
//	  - type: log_contains
//	    level: WARN
//	    activity: LOG
//	    message: "total is 8"
//	  - type: final_var
//	    scope: Scenario
//	    name: total
//	    value: 8
//
// The project path is resolved relative to the case file.
//
// # Assertion Types
//
//   - log_contains: an entry matches every given field
//   - log_order: messages appear in the given order, not necessarily adjacent
//   - log_count: exactly N entries match the given fields
//   - final_var: a variable holds the given value after the run
//
// # Deterministic Runs
//
// Every case runs with a fixed run id and a step clock that advances one
// millisecond per reading, so traces are stable enough for golden files
// under testdata/golden.
package harness
