package queryir

import "github.com/bissakov/qazcode-rpa-sub001/internal/ir"

// Query is an abstract read over one history source.
//
// This is a sealed interface - only types in this package implement it.
type Query interface {
	queryNode()
}

// Predicate is a filter condition.
//
// This is a sealed interface - only types in this package implement it.
//
// Predicate types:
//   - Equals: field = literal
//   - In: field is one of several literals
//   - Contains: field contains a substring
//   - And: all predicates must be true
type Predicate interface {
	predicateNode()
}

// Select reads Columns from From, keeps the rows matching Filter and
// returns them in OrderBy order.
//
// Example:
//
//	Select{
//	  From:    SourceLogEntries,
//	  Columns: []string{"seq", "level", "message"},
//	  Filter: And{Predicates: []Predicate{
//	    Equals{Field: "run_id", Value: ir.Str("r1")},
//	    In{Field: "level", Values: []ir.CanonValue{ir.Str("WARN"), ir.Str("ERROR")}},
//	  }},
//	  OrderBy: []Order{{Field: "seq"}},
//	}
//
// Translates to:
//
//	SELECT seq, level, message FROM log_entries
//	WHERE run_id = ? AND level IN (?, ?)
//	ORDER BY seq ASC
type Select struct {
	From    Source
	Columns []string  // empty = every column of the source, in schema order
	Filter  Predicate // nil = no filter
	OrderBy []Order   // the source's key is appended as a tiebreaker
	Limit   int       // 0 = no limit
}

func (Select) queryNode() {}

// Order is one ORDER BY term.
type Order struct {
	Field string
	Desc  bool
}

// Equals matches rows where Field equals Value.
type Equals struct {
	Field string
	Value ir.CanonValue
}

func (Equals) predicateNode() {}

// In matches rows where Field equals any of Values.
// An empty Values list matches nothing and is rejected by Validate.
type In struct {
	Field  string
	Values []ir.CanonValue
}

func (In) predicateNode() {}

// Contains matches rows where the text in Field contains Substring.
// Matching is case-sensitive.
type Contains struct {
	Field     string
	Substring string
}

func (Contains) predicateNode() {}

// And matches rows satisfying every predicate (empty = always true).
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// AllOf builds an And from the non-nil predicates. It returns nil when
// none are left and the predicate itself when only one is.
func AllOf(preds ...Predicate) Predicate {
	kept := make([]Predicate, 0, len(preds))
	for _, p := range preds {
		if p != nil {
			kept = append(kept, p)
		}
	}
	switch len(kept) {
	case 0:
		return nil
	case 1:
		return kept[0]
	}
	return And{Predicates: kept}
}

// Strs converts strings to literal values, for In.
func Strs(values ...string) []ir.CanonValue {
	out := make([]ir.CanonValue, len(values))
	for i, v := range values {
		out[i] = ir.Str(v)
	}
	return out
}
