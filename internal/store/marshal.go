package store

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/bissakov/qazcode-rpa-sub001/internal/expr"
)

// marshalValue converts a Value to its kind name and JSON TEXT.
// NaN and infinities are stored as JSON strings, so the kind column is
// needed to read them back as Numbers.
func marshalValue(v expr.Value) (kind, value string, err error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", "", fmt.Errorf("marshal value: %w", err)
	}
	return v.Kind().String(), string(data), nil
}

// unmarshalValue is the inverse of marshalValue.
func unmarshalValue(kind, data string) (expr.Value, error) {
	if kind == expr.KindUndefined.String() {
		return expr.Undefined(), nil
	}
	k, err := expr.ParseKind(kind)
	if err != nil {
		return expr.Undefined(), fmt.Errorf("unmarshal value: %w", err)
	}

	var raw any
	if err := json.Unmarshal([]byte(data), &raw); err != nil {
		return expr.Undefined(), fmt.Errorf("unmarshal value: %w", err)
	}

	if s, ok := raw.(string); ok && k == expr.KindNumber {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return expr.Undefined(), fmt.Errorf("unmarshal value: %w", err)
		}
		return expr.Number(f), nil
	}

	v, err := expr.FromAny(raw)
	if err != nil {
		return expr.Undefined(), fmt.Errorf("unmarshal value: %w", err)
	}
	if v.Kind() != k {
		return expr.Undefined(), fmt.Errorf("unmarshal value: stored kind %s, decoded %s", k, v.Kind())
	}
	return v, nil
}

// toMillis and fromMillis store wall time as unix milliseconds.
func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
