package graph

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"

	"github.com/mitchellh/mapstructure"

	"github.com/bissakov/qazcode-rpa-sub001/internal/expr"
)

var (
	activityType  = reflect.TypeOf((*Activity)(nil)).Elem()
	valueType     = reflect.TypeOf(expr.Value{})
	variablesType = reflect.TypeOf(Variables(nil))
)

// activityDecoders is filled in init: its entries reach DecodeActivity
// through the mapstructure hook, which reads the table.
var activityDecoders map[ActivityKind]func(any) (Activity, error)

func init() {
	activityDecoders = map[ActivityKind]func(any) (Activity, error){
		KindStart:         decodeAs[Start],
		KindEnd:           decodeAs[End],
		KindLog:           decodeAs[Log],
		KindDelay:         decodeAs[Delay],
		KindSetVariable:   decodeAs[SetVariable],
		KindEvaluate:      decodeAs[Evaluate],
		KindIfCondition:   decodeAs[IfCondition],
		KindLoop:          decodeAs[Loop],
		KindWhile:         decodeAs[While],
		KindContinue:      decodeAs[Continue],
		KindBreak:         decodeAs[Break],
		KindCallScenario:  decodeAs[CallScenario],
		KindRunPowershell: decodeAs[RunPowershell],
		KindNote:          decodeAs[Note],
		KindTryCatch:      decodeAs[TryCatch],
	}
}

// Decode converts a generic document (decoded JSON, YAML or CUE) into a
// Project. Both a bare project and the {"project": {...}} wrapper are
// accepted. Missing branch types become Default.
func Decode(raw any) (*Project, error) {
	doc, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("project document must be an object, got %T", raw)
	}
	if inner, ok := doc["project"].(map[string]any); ok {
		doc = inner
	}

	var p Project
	if err := decodeInto(doc, &p); err != nil {
		return nil, fmt.Errorf("decode project: %w", err)
	}
	for _, s := range p.AllScenarios() {
		for i := range s.Connections {
			if s.Connections[i].BranchType == "" {
				s.Connections[i].BranchType = BranchDefault
			}
		}
	}
	return &p, nil
}

// DecodeActivity converts one activity in any supported form:
//
//	{"type": "Log", "level": "Info", "message": "hi"}
//	{"Log": {"level": "Info", "message": "hi"}}
//	"TryCatch"
func DecodeActivity(data any) (Activity, error) {
	var (
		kind string
		body any
	)
	switch x := data.(type) {
	case Activity:
		return x, nil
	case string:
		kind = x
	case map[string]any:
		if t, ok := x["type"].(string); ok {
			kind, body = t, x
			break
		}
		if len(x) != 1 {
			return nil, fmt.Errorf("activity must have a \"type\" field or a single variant key")
		}
		for k, v := range x {
			kind, body = k, v
		}
	default:
		return nil, fmt.Errorf("unsupported activity encoding %T", data)
	}

	dec, ok := activityDecoders[ActivityKind(kind)]
	if !ok {
		return nil, fmt.Errorf("unknown activity type %q", kind)
	}
	a, err := dec(body)
	if err != nil {
		return nil, fmt.Errorf("activity %s: %w", kind, err)
	}
	return a, nil
}

func decodeAs[T Activity](body any) (Activity, error) {
	var a T
	if body != nil {
		if err := decodeInto(body, &a); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func decodeInto(input, target any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  target,
		TagName: "json",
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			activityHook,
			valueHook,
			variablesHook,
			scalarToStringHook,
		),
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}
	return decoder.Decode(input)
}

func activityHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to != activityType || data == nil {
		return data, nil
	}
	return DecodeActivity(data)
}

// valueHook accepts plain scalars and the single-key tagged form
// {"Number": 5}.
func valueHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to != valueType {
		return data, nil
	}
	if m, ok := data.(map[string]any); ok && len(m) == 1 {
		for k, v := range m {
			if kind, err := expr.ParseKind(k); err == nil && kind != expr.KindUndefined {
				data = v
			}
		}
	}
	if s, ok := data.(string); ok && s == "Undefined" {
		return expr.Undefined(), nil
	}
	return expr.FromAny(data)
}

// variablesHook normalizes the three declaration layouts into a list of
// {name, value, scope} maps:
//
//	[{"name": "x", "value": 1}]
//	{"x": 1}
//	{"values": {"x": {"value": 1, "scope": "Global"}}}
func variablesHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to != variablesType || data == nil {
		return data, nil
	}
	m, ok := data.(map[string]any)
	if !ok {
		return data, nil
	}

	records := false
	if inner, ok := m["values"].(map[string]any); ok && len(m) == 1 {
		m = inner
		records = true
	}

	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]any, 0, len(names))
	for _, name := range names {
		decl := map[string]any{"name": name}
		if rec, ok := m[name].(map[string]any); ok && records {
			decl["value"] = rec["value"]
			if scope, ok := rec["scope"]; ok {
				decl["scope"] = scope
			}
		} else {
			decl["value"] = m[name]
		}
		out = append(out, decl)
	}
	return out, nil
}

// scalarToStringHook keeps literal text for string fields. Weak decoding
// alone would turn true into "1".
func scalarToStringHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to.Kind() != reflect.String {
		return data, nil
	}
	switch x := data.(type) {
	case bool:
		return strconv.FormatBool(x), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(x), nil
	}
	return data, nil
}
