package expr

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Kind identifies the variant held by a Value.
type Kind int

const (
	KindUndefined Kind = iota
	KindNumber
	KindBoolean
	KindString
)

// String returns the kind name used in messages and variable type checks.
func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "Number"
	case KindBoolean:
		return "Boolean"
	case KindString:
		return "String"
	default:
		return "Undefined"
	}
}

// ParseKind maps a variable type name (Number, Boolean, String) to a Kind.
// The empty string maps to KindUndefined, meaning "any".
func ParseKind(name string) (Kind, error) {
	switch name {
	case "":
		return KindUndefined, nil
	case "Number", "number":
		return KindNumber, nil
	case "Boolean", "boolean", "Bool", "bool":
		return KindBoolean, nil
	case "String", "string":
		return KindString, nil
	}
	return KindUndefined, fmt.Errorf("unknown variable type %q", name)
}

// Value is an immutable tagged union of the four runtime value kinds.
// The zero Value is Undefined.
type Value struct {
	kind Kind
	num  float64
	b    bool
	str  string
}

// Number returns a Number value.
func Number(n float64) Value { return Value{kind: KindNumber, num: n} }

// Bool returns a Boolean value.
func Bool(b bool) Value { return Value{kind: KindBoolean, b: b} }

// String returns a String value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Undefined returns the Undefined value.
func Undefined() Value { return Value{} }

// Kind reports which variant v holds.
func (v Value) Kind() Kind { return v.kind }

// IsUndefined reports whether v is Undefined.
func (v Value) IsUndefined() bool { return v.kind == KindUndefined }

// Num returns the raw number and whether v is a Number. No coercion.
func (v Value) Num() (float64, bool) { return v.num, v.kind == KindNumber }

// Boolean returns the raw boolean and whether v is a Boolean. No coercion.
func (v Value) Boolean() (bool, bool) { return v.b, v.kind == KindBoolean }

// Str returns the raw string and whether v is a String. No coercion.
func (v Value) Str() (string, bool) { return v.str, v.kind == KindString }

// ToNumber applies the arithmetic coercion: Numbers pass through, Booleans
// become 1 or 0, everything else fails.
func (v Value) ToNumber() (float64, error) {
	switch v.kind {
	case KindNumber:
		return v.num, nil
	case KindBoolean:
		if v.b {
			return 1, nil
		}
		return 0, nil
	}
	return 0, evalErrorf("Expected number, got %s", v.kind)
}

// ToBool requires a Boolean. Logical operators never coerce.
func (v Value) ToBool() (bool, error) {
	if v.kind == KindBoolean {
		return v.b, nil
	}
	return false, evalErrorf("Expected boolean, got %s", v.kind)
}

// Equal reports strict equality: same kind and same payload.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNumber:
		return v.num == o.num
	case KindBoolean:
		return v.b == o.b
	case KindString:
		return v.str == o.str
	}
	return true
}

// String renders v for display and interpolation. Integral numbers are
// printed without a decimal point.
func (v Value) String() string {
	switch v.kind {
	case KindNumber:
		return formatNumber(v.num)
	case KindBoolean:
		return strconv.FormatBool(v.b)
	case KindString:
		return v.str
	}
	return "undefined"
}

// GoString is used by %#v and in debug descriptions.
func (v Value) GoString() string {
	switch v.kind {
	case KindString:
		return fmt.Sprintf("String(%q)", v.str)
	case KindUndefined:
		return "Undefined"
	}
	return fmt.Sprintf("%s(%s)", v.kind, v.String())
}

func formatNumber(n float64) string {
	switch {
	case math.IsNaN(n):
		return "NaN"
	case math.IsInf(n, 1):
		return "inf"
	case math.IsInf(n, -1):
		return "-inf"
	}
	return strconv.FormatFloat(n, 'f', -1, 64)
}

// MarshalJSON encodes Numbers, Booleans and Strings as their JSON
// counterparts and Undefined as null.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNumber:
		if math.IsNaN(v.num) || math.IsInf(v.num, 0) {
			return json.Marshal(formatNumber(v.num))
		}
		return json.Marshal(v.num)
	case KindBoolean:
		return json.Marshal(v.b)
	case KindString:
		return json.Marshal(v.str)
	}
	return []byte("null"), nil
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	val, err := FromAny(raw)
	if err != nil {
		return err
	}
	*v = val
	return nil
}

// FromAny converts a decoded JSON/YAML/CUE scalar into a Value.
func FromAny(raw any) (Value, error) {
	switch x := raw.(type) {
	case nil:
		return Undefined(), nil
	case Value:
		return x, nil
	case bool:
		return Bool(x), nil
	case string:
		return String(x), nil
	case float64:
		return Number(x), nil
	case float32:
		return Number(float64(x)), nil
	case int:
		return Number(float64(x)), nil
	case int64:
		return Number(float64(x)), nil
	case int32:
		return Number(float64(x)), nil
	case uint64:
		return Number(float64(x)), nil
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return Undefined(), fmt.Errorf("invalid number %q: %w", x, err)
		}
		return Number(f), nil
	}
	return Undefined(), fmt.Errorf("unsupported value type %T", raw)
}
