package queryir

import (
	"fmt"

	"github.com/bissakov/qazcode-rpa-sub001/internal/ir"
)

// ValidationResult lists the problems found in a query.
type ValidationResult struct {
	// Valid is true when Errors is empty.
	Valid bool

	Errors []string
}

// Err returns the first problem as an error, or nil.
func (r ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	return fmt.Errorf("invalid query: %s", r.Errors[0])
}

// Validate checks a query against Schema.
//
// Rules:
//  1. The source must be known
//  2. Columns, ORDER BY fields and predicate fields must exist in it
//  3. Literals must be Str, Int or Bool
//  4. In needs at least one value
//  5. Limit must not be negative
//
// Validate is a pure function with no side effects.
func Validate(query Query) ValidationResult {
	v := &validator{errors: []string{}}
	v.validateQuery(query)

	return ValidationResult{
		Valid:  len(v.errors) == 0,
		Errors: v.errors,
	}
}

type validator struct {
	table  Table
	errors []string
}

func (v *validator) addError(format string, args ...any) {
	v.errors = append(v.errors, fmt.Sprintf(format, args...))
}

func (v *validator) validateQuery(q Query) {
	switch query := q.(type) {
	case Select:
		v.validateSelect(query)
	case *Select:
		if query == nil {
			v.addError("nil query")
			return
		}
		v.validateSelect(*query)
	case nil:
		v.addError("nil query")
	default:
		v.addError("unknown query type %T", q)
	}
}

func (v *validator) validateSelect(sel Select) {
	table, ok := Schema[sel.From]
	if !ok {
		v.addError("unknown source %q", sel.From)
		return
	}
	v.table = table

	for _, c := range sel.Columns {
		v.checkField("column", c)
	}
	for _, o := range sel.OrderBy {
		v.checkField("order field", o.Field)
	}
	if sel.Limit < 0 {
		v.addError("negative limit %d", sel.Limit)
	}
	v.validatePredicate(sel.Filter)
}

func (v *validator) checkField(what, field string) {
	if !v.table.HasColumn(field) {
		v.addError("unknown %s %q", what, field)
	}
}

func (v *validator) validatePredicate(p Predicate) {
	switch pred := p.(type) {
	case nil:
	case Equals:
		v.checkField("field", pred.Field)
		v.checkLiteral(pred.Field, pred.Value)
	case In:
		v.checkField("field", pred.Field)
		if len(pred.Values) == 0 {
			v.addError("field %q: IN needs at least one value", pred.Field)
		}
		for _, val := range pred.Values {
			v.checkLiteral(pred.Field, val)
		}
	case Contains:
		v.checkField("field", pred.Field)
	case And:
		for _, sub := range pred.Predicates {
			v.validatePredicate(sub)
		}
	default:
		v.addError("unknown predicate type %T", p)
	}
}

func (v *validator) checkLiteral(field string, val ir.CanonValue) {
	switch val.(type) {
	case ir.Str, ir.Int, ir.Bool:
	case nil:
		v.addError("field %q compared to NULL", field)
	default:
		v.addError("field %q: unsupported literal %T", field, val)
	}
}
