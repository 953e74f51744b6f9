package graph

import (
	"encoding/json"
	"fmt"
)

// ActivityKind names an activity variant. The names match the keys used in
// project files.
type ActivityKind string

const (
	KindStart         ActivityKind = "Start"
	KindEnd           ActivityKind = "End"
	KindLog           ActivityKind = "Log"
	KindDelay         ActivityKind = "Delay"
	KindSetVariable   ActivityKind = "SetVariable"
	KindEvaluate      ActivityKind = "Evaluate"
	KindIfCondition   ActivityKind = "IfCondition"
	KindLoop          ActivityKind = "Loop"
	KindWhile         ActivityKind = "While"
	KindContinue      ActivityKind = "Continue"
	KindBreak         ActivityKind = "Break"
	KindCallScenario  ActivityKind = "CallScenario"
	KindRunPowershell ActivityKind = "RunPowershell"
	KindNote          ActivityKind = "Note"
	KindTryCatch      ActivityKind = "TryCatch"
)

// Activity is the closed set of node behaviors. Every implementation is a
// value type declared in this file; switch on the concrete type.
type Activity interface {
	Kind() ActivityKind

	// Describe is a one-line human summary used in debug markers.
	Describe() string

	isActivity()
}

// Start marks a scenario entry point.
type Start struct {
	ScenarioID string `json:"scenario_id"`
}

// End marks a scenario exit.
type End struct {
	ScenarioID string `json:"scenario_id"`
}

// Log writes a message. Message is an expression, or template text when it
// does not parse as one.
type Log struct {
	Level   string `json:"level" validate:"omitempty,oneof=Info Warning Error Debug"`
	Message string `json:"message"`
}

// Delay suspends the run.
type Delay struct {
	Milliseconds int64 `json:"milliseconds" validate:"gte=0"`
}

// SetVariable evaluates Value and stores it under Name.
type SetVariable struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	VarType  string `json:"var_type" validate:"omitempty,oneof=String Boolean Number"`
	IsGlobal bool   `json:"is_global"`
}

// Evaluate evaluates an expression for its logged result.
type Evaluate struct {
	Expression string `json:"expression"`
}

// IfCondition branches on a Boolean condition.
type IfCondition struct {
	Condition string `json:"condition"`
}

// Loop counts Index from Start to End inclusive by Step.
type Loop struct {
	Start int64  `json:"start"`
	End   int64  `json:"end"`
	Step  int64  `json:"step"`
	Index string `json:"index"`
}

// While repeats its body while Condition holds.
type While struct {
	Condition string `json:"condition"`
}

// Continue jumps to the next iteration of the innermost loop.
type Continue struct{}

// Break leaves the innermost loop.
type Break struct{}

// CallScenario invokes another scenario with parameter bindings.
type CallScenario struct {
	ScenarioID string    `json:"scenario_id" validate:"required"`
	Parameters []Binding `json:"parameters" validate:"dive"`
}

// RunPowershell hands a script to the configured runner.
type RunPowershell struct {
	Code string `json:"code"`
}

// Note is an editor annotation. It never executes.
type Note struct {
	Text   string  `json:"text"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// TryCatch routes errors raised on its try branch to its catch branch.
type TryCatch struct{}

func (Start) Kind() ActivityKind         { return KindStart }
func (End) Kind() ActivityKind           { return KindEnd }
func (Log) Kind() ActivityKind           { return KindLog }
func (Delay) Kind() ActivityKind         { return KindDelay }
func (SetVariable) Kind() ActivityKind   { return KindSetVariable }
func (Evaluate) Kind() ActivityKind      { return KindEvaluate }
func (IfCondition) Kind() ActivityKind   { return KindIfCondition }
func (Loop) Kind() ActivityKind          { return KindLoop }
func (While) Kind() ActivityKind         { return KindWhile }
func (Continue) Kind() ActivityKind      { return KindContinue }
func (Break) Kind() ActivityKind         { return KindBreak }
func (CallScenario) Kind() ActivityKind  { return KindCallScenario }
func (RunPowershell) Kind() ActivityKind { return KindRunPowershell }
func (Note) Kind() ActivityKind          { return KindNote }
func (TryCatch) Kind() ActivityKind      { return KindTryCatch }

func (Start) isActivity()         {}
func (End) isActivity()           {}
func (Log) isActivity()           {}
func (Delay) isActivity()         {}
func (SetVariable) isActivity()   {}
func (Evaluate) isActivity()      {}
func (IfCondition) isActivity()   {}
func (Loop) isActivity()          {}
func (While) isActivity()         {}
func (Continue) isActivity()      {}
func (Break) isActivity()         {}
func (CallScenario) isActivity()  {}
func (RunPowershell) isActivity() {}
func (Note) isActivity()          {}
func (TryCatch) isActivity()      {}

func (a Start) Describe() string { return "Start" }
func (a End) Describe() string   { return "End" }

func (a Log) Describe() string {
	return fmt.Sprintf("Log %s: %s", a.LevelName(), a.Message)
}

func (a Delay) Describe() string { return fmt.Sprintf("Delay %d ms", a.Milliseconds) }

func (a SetVariable) Describe() string {
	scope := "local"
	if a.IsGlobal {
		scope = "global"
	}
	if a.VarType == "" {
		return fmt.Sprintf("Set %s %s = %s", scope, a.Name, a.Value)
	}
	return fmt.Sprintf("Set %s %s: %s = %s", scope, a.Name, a.VarType, a.Value)
}

func (a Evaluate) Describe() string    { return "Evaluate " + a.Expression }
func (a IfCondition) Describe() string { return "If " + a.Condition }

func (a Loop) Describe() string {
	return fmt.Sprintf("Loop %s from %d to %d step %d", a.Index, a.Start, a.End, a.Step)
}

func (a While) Describe() string    { return "While " + a.Condition }
func (a Continue) Describe() string { return "Continue" }
func (a Break) Describe() string    { return "Break" }

func (a CallScenario) Describe() string { return "Call " + a.ScenarioID }

func (a RunPowershell) Describe() string {
	return fmt.Sprintf("RunPowershell (%d bytes)", len(a.Code))
}

func (a Note) Describe() string     { return "Note" }
func (a TryCatch) Describe() string { return "TryCatch" }

// LevelName returns the log level, defaulting to Info.
func (a Log) LevelName() string {
	if a.Level == "" {
		return "Info"
	}
	return a.Level
}

// CanHaveErrorOutput reports whether a can carry an ErrorBranch edge.
func CanHaveErrorOutput(a Activity) bool {
	switch a.(type) {
	case CallScenario, RunPowershell:
		return true
	}
	return false
}

// MarshalJSON writes the activity in tagged form: {"type":"Log",...}.
// Unit variants become {"type":"Break"}.
func (n Node) MarshalJSON() ([]byte, error) {
	type wire struct {
		ID       string         `json:"id"`
		Activity map[string]any `json:"activity"`
	}
	body, err := activityFields(n.Activity)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wire{ID: n.ID, Activity: body})
}

func activityFields(a Activity) (map[string]any, error) {
	if a == nil {
		return nil, fmt.Errorf("node has no activity")
	}
	raw, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	fields := map[string]any{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	fields["type"] = string(a.Kind())
	return fields, nil
}
