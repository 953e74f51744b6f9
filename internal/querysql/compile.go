// Package querysql compiles queryir queries to parameterized SQLite.
package querysql

import (
	"fmt"
	"strings"

	"github.com/bissakov/qazcode-rpa-sub001/internal/ir"
	"github.com/bissakov/qazcode-rpa-sub001/internal/queryir"
)

// Compile converts a query to parameterized SQL.
// Returns (sql, params, error).
//
// CRITICAL: values are never interpolated; every literal becomes a ?
// placeholder. Field names are spliced in only after queryir.Validate has
// checked them against the schema.
//
// Every query ends with the source key as a tiebreaker, so results are
// deterministic even when the requested order has ties.
func Compile(q queryir.Query) (string, []any, error) {
	if err := queryir.Validate(q).Err(); err != nil {
		return "", nil, err
	}

	switch query := q.(type) {
	case queryir.Select:
		return compileSelect(query)
	case *queryir.Select:
		return compileSelect(*query)
	}
	return "", nil, fmt.Errorf("unsupported query type: %T", q)
}

func compileSelect(q queryir.Select) (string, []any, error) {
	table := queryir.Schema[q.From]

	columns := q.Columns
	if len(columns) == 0 {
		columns = table.Columns
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM %s", strings.Join(columns, ", "), q.From)

	var params []any
	if q.Filter != nil {
		where, whereParams, err := compilePredicate(q.Filter)
		if err != nil {
			return "", nil, fmt.Errorf("compile filter: %w", err)
		}
		sb.WriteString(" WHERE " + where)
		params = whereParams
	}

	sb.WriteString(" ORDER BY " + orderClause(q.OrderBy, table.Key))

	if q.Limit > 0 {
		sb.WriteString(" LIMIT ?")
		params = append(params, q.Limit)
	}
	return sb.String(), params, nil
}

// orderClause joins the requested terms with the key terms that are not
// already present.
func orderClause(requested, key []queryir.Order) string {
	seen := make(map[string]bool, len(requested))
	parts := make([]string, 0, len(requested)+len(key))
	add := func(o queryir.Order) {
		if seen[o.Field] {
			return
		}
		seen[o.Field] = true
		dir := "ASC"
		if o.Desc {
			dir = "DESC"
		}
		parts = append(parts, o.Field+" "+dir)
	}
	for _, o := range requested {
		add(o)
	}
	for _, o := range key {
		add(o)
	}
	return strings.Join(parts, ", ")
}

// compilePredicate compiles a predicate to a WHERE fragment.
// Returns (sql, params, error).
func compilePredicate(p queryir.Predicate) (string, []any, error) {
	switch pred := p.(type) {
	case queryir.Equals:
		param, err := literal(pred.Value)
		if err != nil {
			return "", nil, err
		}
		return pred.Field + " = ?", []any{param}, nil

	case queryir.In:
		marks := make([]string, len(pred.Values))
		params := make([]any, len(pred.Values))
		for i, v := range pred.Values {
			param, err := literal(v)
			if err != nil {
				return "", nil, err
			}
			marks[i] = "?"
			params[i] = param
		}
		return fmt.Sprintf("%s IN (%s)", pred.Field, strings.Join(marks, ", ")), params, nil

	case queryir.Contains:
		// Case-sensitive substring match.
		return fmt.Sprintf("instr(%s, ?) > 0", pred.Field), []any{pred.Substring}, nil

	case queryir.And:
		if len(pred.Predicates) == 0 {
			return "1 = 1", nil, nil
		}
		parts := make([]string, 0, len(pred.Predicates))
		var params []any
		for _, sub := range pred.Predicates {
			sql, subParams, err := compilePredicate(sub)
			if err != nil {
				return "", nil, err
			}
			if and, ok := sub.(queryir.And); ok && len(and.Predicates) > 1 {
				sql = "(" + sql + ")"
			}
			parts = append(parts, sql)
			params = append(params, subParams...)
		}
		return strings.Join(parts, " AND "), params, nil
	}
	return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
}

// literal converts a canonical value to a SQL parameter.
func literal(v ir.CanonValue) (any, error) {
	switch val := v.(type) {
	case ir.Str:
		return string(val), nil
	case ir.Int:
		return int64(val), nil
	case ir.Bool:
		return bool(val), nil
	}
	return nil, fmt.Errorf("unsupported literal type for SQL parameter: %T", v)
}
