// Package queryir is a small query representation for the run history
// database.
//
// Hosts describe what they want from the runs and log_entries tables with
// Select and a tree of Predicates; a backend (package querysql) turns that
// into parameterized SQL. Keeping the filter as data lets the CLI build it
// from flags without touching SQL text.
//
// SEALED INTERFACES:
//
// Query and Predicate are sealed with marker methods, so backends can
// switch over every type:
//
//	switch p := pred.(type) {
//	case Equals:
//	case In:
//	case Contains:
//	case And:
//	}
//
// LITERALS:
//
// Values are ir.CanonValue (Str, Int, Bool). There are no floats and no
// NULLs in a filter.
//
// FIELDS:
//
// Every source and field must appear in the schema known to this package.
// Validate rejects anything else, which is what lets a backend splice
// field names into SQL text.
package queryir
