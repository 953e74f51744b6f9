package ir

import "fmt"

// Field names a jump-target slot inside an instruction.
type Field string

const (
	FieldTarget Field = "target"
	FieldBody   Field = "body"
	FieldEnd    Field = "end"
	FieldCheck  Field = "check"
	FieldCatch  Field = "catch"
)

// Unresolved is the placeholder stored in a target slot until the
// compiler patches it.
const Unresolved = -1

// TargetRef is one target slot and its current address.
type TargetRef struct {
	Field Field
	Addr  int
}

// Targets returns every target slot of ins.
func Targets(ins Instruction) []TargetRef {
	switch x := ins.(type) {
	case Jump:
		return []TargetRef{{FieldTarget, x.Target}}
	case JumpIf:
		return []TargetRef{{FieldTarget, x.Target}}
	case JumpIfNot:
		return []TargetRef{{FieldTarget, x.Target}}
	case LoopCheck:
		return []TargetRef{{FieldBody, x.BodyTarget}, {FieldEnd, x.EndTarget}}
	case LoopNext:
		return []TargetRef{{FieldCheck, x.CheckTarget}}
	case LoopBreak:
		return []TargetRef{{FieldEnd, x.EndTarget}}
	case LoopContinue:
		return []TargetRef{{FieldCheck, x.CheckTarget}}
	case WhileCheck:
		return []TargetRef{{FieldBody, x.BodyTarget}, {FieldEnd, x.EndTarget}}
	case PushErrorHandler:
		return []TargetRef{{FieldCatch, x.CatchTarget}}
	}
	return nil
}

// Retarget returns a copy of ins with the given slot set to addr.
func Retarget(ins Instruction, field Field, addr int) (Instruction, error) {
	switch x := ins.(type) {
	case Jump:
		if field == FieldTarget {
			x.Target = addr
			return x, nil
		}
	case JumpIf:
		if field == FieldTarget {
			x.Target = addr
			return x, nil
		}
	case JumpIfNot:
		if field == FieldTarget {
			x.Target = addr
			return x, nil
		}
	case LoopCheck:
		switch field {
		case FieldBody:
			x.BodyTarget = addr
			return x, nil
		case FieldEnd:
			x.EndTarget = addr
			return x, nil
		}
	case LoopNext:
		if field == FieldCheck {
			x.CheckTarget = addr
			return x, nil
		}
	case LoopBreak:
		if field == FieldEnd {
			x.EndTarget = addr
			return x, nil
		}
	case LoopContinue:
		if field == FieldCheck {
			x.CheckTarget = addr
			return x, nil
		}
	case WhileCheck:
		switch field {
		case FieldBody:
			x.BodyTarget = addr
			return x, nil
		case FieldEnd:
			x.EndTarget = addr
			return x, nil
		}
	case PushErrorHandler:
		if field == FieldCatch {
			x.CatchTarget = addr
			return x, nil
		}
	}
	return nil, fmt.Errorf("%s has no %s target", ins.Op(), field)
}
