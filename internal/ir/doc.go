// Package ir defines the flat instruction program produced by the compiler
// and executed by the engine.
//
// A Program is a slice of Instructions addressed by index. Control flow is
// expressed only through absolute jump targets; there are no labels at run
// time. Every expression operand keeps its source text so a program can be
// disassembled and content-hashed.
//
// Key constraints:
//   - Every target field is < len(Instructions) (see Program.Verify)
//   - Programs are immutable once compiled
//   - Canonical encoding has no floats; loop bounds and delays are int64
package ir
