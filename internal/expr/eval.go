package expr

import (
	"math"
	"strings"
)

// epsilon is the smallest divisor magnitude accepted by / and %.
const epsilon = 2.220446049250313e-16

// Eval evaluates n against r. Evaluation never mutates variables.
func Eval(n Node, r Resolver) (Value, error) {
	switch x := n.(type) {
	case Const:
		return x.Value, nil
	case Load:
		if r == nil {
			return Undefined(), evalErrorf("Undefined variable: %s", x.Name)
		}
		return r.Resolve(x.Name)
	case Unary:
		return evalUnary(x, r)
	case Binary:
		return evalBinary(x, r)
	case Interpolated:
		var sb strings.Builder
		for _, seg := range x.Segments {
			if seg.Expr == nil {
				sb.WriteString(seg.Literal)
				continue
			}
			v, err := Eval(seg.Expr, r)
			if err != nil {
				return Undefined(), err
			}
			sb.WriteString(v.String())
		}
		return String(sb.String()), nil
	case nil:
		return Undefined(), evalErrorf("Empty expression")
	}
	return Undefined(), evalErrorf("Unsupported expression node %T", n)
}

func evalUnary(u Unary, r Resolver) (Value, error) {
	v, err := Eval(u.Operand, r)
	if err != nil {
		return Undefined(), err
	}
	switch u.Op {
	case OpNot:
		b, err := v.ToBool()
		if err != nil {
			return Undefined(), evalErrorf("Operator '!' expects boolean, got %s", v.Kind())
		}
		return Bool(!b), nil
	case OpNeg:
		f, err := v.ToNumber()
		if err != nil {
			return Undefined(), evalErrorf("Operator '-' expects number, got %s", v.Kind())
		}
		return Number(-f), nil
	}
	return Undefined(), evalErrorf("Unsupported unary operator")
}

func evalBinary(b Binary, r Resolver) (Value, error) {
	if b.Op == OpAnd || b.Op == OpOr {
		return evalLogical(b, r)
	}

	left, err := Eval(b.Left, r)
	if err != nil {
		return Undefined(), err
	}
	right, err := Eval(b.Right, r)
	if err != nil {
		return Undefined(), err
	}

	switch b.Op {
	case OpAdd:
		return add(left, right)
	case OpEq, OpNe:
		if left.Kind() != right.Kind() {
			return Undefined(), evalErrorf("Type mismatch in '%s'", b.Op)
		}
		eq := left.Equal(right)
		if b.Op == OpNe {
			eq = !eq
		}
		return Bool(eq), nil
	}

	l, err := left.ToNumber()
	if err != nil {
		return Undefined(), evalErrorf("Operator '%s' expects number, got %s", b.Op, left.Kind())
	}
	rt, err := right.ToNumber()
	if err != nil {
		return Undefined(), evalErrorf("Operator '%s' expects number, got %s", b.Op, right.Kind())
	}

	switch b.Op {
	case OpSub:
		return Number(l - rt), nil
	case OpMul:
		return Number(l * rt), nil
	case OpDiv:
		if math.Abs(rt) < epsilon {
			return Undefined(), evalErrorf("Division by zero")
		}
		return Number(l / rt), nil
	case OpMod:
		if math.Abs(rt) < epsilon {
			return Undefined(), evalErrorf("Division by zero")
		}
		return Number(math.Mod(l, rt)), nil
	case OpGt:
		return Bool(l > rt), nil
	case OpGe:
		return Bool(l >= rt), nil
	case OpLt:
		return Bool(l < rt), nil
	case OpLe:
		return Bool(l <= rt), nil
	}
	return Undefined(), evalErrorf("Unsupported operator '%s'", b.Op)
}

// add concatenates when the left side is a String and adds otherwise.
func add(left, right Value) (Value, error) {
	switch left.Kind() {
	case KindString:
		s, _ := left.Str()
		return String(s + right.String()), nil
	case KindNumber:
		l, _ := left.Num()
		if right.Kind() == KindString || right.Kind() == KindUndefined {
			return Undefined(), evalErrorf("Cannot add %s to Number", right.Kind())
		}
		rt, err := right.ToNumber()
		if err != nil {
			return Undefined(), err
		}
		return Number(l + rt), nil
	}
	return Undefined(), evalErrorf("Operator '+' is not defined for %s", left.Kind())
}

func evalLogical(b Binary, r Resolver) (Value, error) {
	left, err := Eval(b.Left, r)
	if err != nil {
		return Undefined(), err
	}
	l, err := left.ToBool()
	if err != nil {
		return Undefined(), evalErrorf("Operator '%s' expects boolean, got %s", b.Op, left.Kind())
	}
	if b.Op == OpAnd && !l {
		return Bool(false), nil
	}
	if b.Op == OpOr && l {
		return Bool(true), nil
	}
	right, err := Eval(b.Right, r)
	if err != nil {
		return Undefined(), err
	}
	rt, err := right.ToBool()
	if err != nil {
		return Undefined(), evalErrorf("Operator '%s' expects boolean, got %s", b.Op, right.Kind())
	}
	return Bool(rt), nil
}
