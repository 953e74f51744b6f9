package expr

import (
	"fmt"
	"strings"
)

// Node is a parsed expression. The set of implementations is closed.
type Node interface {
	node()
	fmt.Stringer
}

// BinaryOp enumerates the infix operators.
type BinaryOp int

const (
	OpAdd BinaryOp = iota + 1
	OpSub
	OpMul
	OpDiv
	OpMod
	OpEq
	OpNe
	OpGt
	OpGe
	OpLt
	OpLe
	OpAnd
	OpOr
)

var binaryOpText = map[BinaryOp]string{
	OpAdd: "+", OpSub: "-", OpMul: "*", OpDiv: "/", OpMod: "%",
	OpEq: "==", OpNe: "!=", OpGt: ">", OpGe: ">=", OpLt: "<", OpLe: "<=",
	OpAnd: "&&", OpOr: "||",
}

func (op BinaryOp) String() string { return binaryOpText[op] }

// UnaryOp enumerates the prefix operators. Unary plus is dropped by the parser.
type UnaryOp int

const (
	OpNot UnaryOp = iota + 1
	OpNeg
)

func (op UnaryOp) String() string {
	if op == OpNot {
		return "!"
	}
	return "-"
}

// Const is a literal value.
type Const struct{ Value Value }

// Load reads a variable through the Resolver.
type Load struct{ Name string }

// Binary applies Op to Left and Right.
type Binary struct {
	Op          BinaryOp
	Left, Right Node
}

// Unary applies Op to Operand.
type Unary struct {
	Op      UnaryOp
	Operand Node
}

// Segment is one piece of an interpolated string: either Literal text or an
// embedded Expr.
type Segment struct {
	Literal string
	Expr    Node
}

// Interpolated concatenates its rendered segments into a String.
type Interpolated struct{ Segments []Segment }

func (Const) node()        {}
func (Load) node()         {}
func (Binary) node()       {}
func (Unary) node()        {}
func (Interpolated) node() {}

func (c Const) String() string {
	if s, ok := c.Value.Str(); ok {
		return fmt.Sprintf("%q", s)
	}
	return c.Value.String()
}

func (l Load) String() string { return "$" + l.Name }

func (b Binary) String() string {
	return fmt.Sprintf("(%s %s %s)", b.Left, b.Op, b.Right)
}

func (u Unary) String() string { return fmt.Sprintf("%s%s", u.Op, u.Operand) }

func (in Interpolated) String() string {
	var sb strings.Builder
	sb.WriteByte('"')
	for _, seg := range in.Segments {
		if seg.Expr != nil {
			sb.WriteByte('{')
			sb.WriteString(seg.Expr.String())
			sb.WriteByte('}')
			continue
		}
		lit := strings.ReplaceAll(seg.Literal, "{", "{{")
		sb.WriteString(strings.ReplaceAll(lit, "}", "}}"))
	}
	sb.WriteByte('"')
	return sb.String()
}

// Variables returns the distinct variable names referenced by n, in first
// occurrence order.
func Variables(n Node) []string {
	seen := map[string]bool{}
	var out []string
	var walk func(Node)
	walk = func(n Node) {
		switch x := n.(type) {
		case Load:
			if !seen[x.Name] {
				seen[x.Name] = true
				out = append(out, x.Name)
			}
		case Binary:
			walk(x.Left)
			walk(x.Right)
		case Unary:
			walk(x.Operand)
		case Interpolated:
			for _, seg := range x.Segments {
				if seg.Expr != nil {
					walk(seg.Expr)
				}
			}
		}
	}
	walk(n)
	return out
}
