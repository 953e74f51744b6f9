package expr

import "fmt"

// TokenType enumerates lexical token kinds.
type TokenType int

const (
	TokNumber TokenType = iota + 1
	TokString
	TokBoolean
	TokVariable
	TokPlus
	TokMinus
	TokStar
	TokSlash
	TokPercent
	TokLParen
	TokRParen
	TokEq
	TokNe
	TokGt
	TokGe
	TokLt
	TokLe
	TokAnd
	TokOr
	TokNot
)

var tokenNames = map[TokenType]string{
	TokNumber:   "number",
	TokString:   "string",
	TokBoolean:  "boolean",
	TokVariable: "variable",
	TokPlus:     "'+'",
	TokMinus:    "'-'",
	TokStar:     "'*'",
	TokSlash:    "'/'",
	TokPercent:  "'%'",
	TokLParen:   "'('",
	TokRParen:   "')'",
	TokEq:       "'=='",
	TokNe:       "'!='",
	TokGt:       "'>'",
	TokGe:       "'>='",
	TokLt:       "'<'",
	TokLe:       "'<='",
	TokAnd:      "'&&'",
	TokOr:       "'||'",
	TokNot:      "'!'",
}

func (t TokenType) String() string {
	if s, ok := tokenNames[t]; ok {
		return s
	}
	return fmt.Sprintf("token(%d)", int(t))
}

// Token is one lexical unit. Only the field matching Type is meaningful.
type Token struct {
	Type TokenType
	Pos  int
	Num  float64
	Bool bool
	Text string // string literal body or variable name
}

func (t Token) String() string {
	switch t.Type {
	case TokNumber:
		return formatNumber(t.Num)
	case TokString:
		return fmt.Sprintf("%q", t.Text)
	case TokBoolean:
		return fmt.Sprintf("%t", t.Bool)
	case TokVariable:
		return "$" + t.Text
	}
	return t.Type.String()
}
