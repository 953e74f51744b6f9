package expr

import (
	"strconv"
	"unicode"
)

// Sigils that introduce a variable reference.
const (
	SigilDollar = '$'
	SigilAt     = '@'
)

type lexer struct {
	input []rune
	pos   int
}

// Tokenize splits src into tokens. It fails on the first character that
// cannot start a token.
func Tokenize(src string) ([]Token, error) {
	lx := &lexer{input: []rune(src)}
	var tokens []Token
	for {
		tok, ok, err := lx.next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return tokens, nil
		}
		tokens = append(tokens, tok)
	}
}

func (lx *lexer) peek() (rune, bool) {
	if lx.pos < len(lx.input) {
		return lx.input[lx.pos], true
	}
	return 0, false
}

func (lx *lexer) peekIs(r rune) bool {
	c, ok := lx.peek()
	return ok && c == r
}

func (lx *lexer) next() (Token, bool, error) {
	for lx.pos < len(lx.input) && unicode.IsSpace(lx.input[lx.pos]) {
		lx.pos++
	}
	ch, ok := lx.peek()
	if !ok {
		return Token{}, false, nil
	}
	start := lx.pos

	simple := func(t TokenType) (Token, bool, error) {
		lx.pos++
		return Token{Type: t, Pos: start}, true, nil
	}
	double := func(second rune, both, single TokenType) (Token, bool, error) {
		lx.pos++
		if lx.peekIs(second) {
			lx.pos++
			return Token{Type: both, Pos: start}, true, nil
		}
		return Token{Type: single, Pos: start}, true, nil
	}

	switch {
	case ch == SigilDollar || ch == SigilAt:
		name, err := lx.readVariable()
		if err != nil {
			return Token{}, false, err
		}
		return Token{Type: TokVariable, Pos: start, Text: name}, true, nil
	case ch == '"':
		s, err := lx.readString()
		if err != nil {
			return Token{}, false, err
		}
		return Token{Type: TokString, Pos: start, Text: s}, true, nil
	case ch == '\'':
		return Token{}, false, lexErrorf(start, "Single-quoted strings are not allowed. Use double quotes.")
	case ch == '+':
		return simple(TokPlus)
	case ch == '-':
		return simple(TokMinus)
	case ch == '*':
		return simple(TokStar)
	case ch == '/':
		return simple(TokSlash)
	case ch == '%':
		return simple(TokPercent)
	case ch == '(':
		return simple(TokLParen)
	case ch == ')':
		return simple(TokRParen)
	case ch == '!':
		return double('=', TokNe, TokNot)
	case ch == '>':
		return double('=', TokGe, TokGt)
	case ch == '<':
		return double('=', TokLe, TokLt)
	case ch == '=':
		lx.pos++
		if lx.peekIs('=') {
			lx.pos++
			return Token{Type: TokEq, Pos: start}, true, nil
		}
		return Token{}, false, lexErrorf(start, "Invalid operator '=', use '==' for equality")
	case ch == '&':
		lx.pos++
		if lx.peekIs('&') {
			lx.pos++
			return Token{Type: TokAnd, Pos: start}, true, nil
		}
		return Token{}, false, lexErrorf(start, "Invalid operator '&', use '&&' for logical AND")
	case ch == '|':
		lx.pos++
		if lx.peekIs('|') {
			lx.pos++
			return Token{Type: TokOr, Pos: start}, true, nil
		}
		return Token{}, false, lexErrorf(start, "Invalid operator '|', use '||' for logical OR")
	case ch >= '0' && ch <= '9' || ch == '.':
		n, err := lx.readNumber()
		if err != nil {
			return Token{}, false, err
		}
		return Token{Type: TokNumber, Pos: start, Num: n}, true, nil
	case unicode.IsLetter(ch) || ch == '_':
		ident := lx.readIdent()
		switch ident {
		case "true":
			return Token{Type: TokBoolean, Pos: start, Bool: true}, true, nil
		case "false":
			return Token{Type: TokBoolean, Pos: start, Bool: false}, true, nil
		case "AND":
			return Token{Type: TokAnd, Pos: start}, true, nil
		case "OR":
			return Token{Type: TokOr, Pos: start}, true, nil
		case "NOT":
			return Token{Type: TokNot, Pos: start}, true, nil
		}
		return Token{}, false, lexErrorf(start, "Unknown identifier: %s", ident)
	}
	return Token{}, false, lexErrorf(start, "Unexpected character: %c", ch)
}

func (lx *lexer) readNumber() (float64, error) {
	start := lx.pos
	for lx.pos < len(lx.input) {
		c := lx.input[lx.pos]
		if (c >= '0' && c <= '9') || c == '.' {
			lx.pos++
			continue
		}
		break
	}
	text := string(lx.input[start:lx.pos])
	n, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, lexErrorf(start, "Invalid number: %s", text)
	}
	return n, nil
}

func (lx *lexer) readIdent() string {
	start := lx.pos
	for lx.pos < len(lx.input) && isNameRune(lx.input[lx.pos]) {
		lx.pos++
	}
	return string(lx.input[start:lx.pos])
}

func (lx *lexer) readVariable() (string, error) {
	sigil := lx.input[lx.pos]
	lx.pos++
	c, ok := lx.peek()
	if !ok || !(unicode.IsLetter(c) || c == '_') {
		return "", lexErrorf(lx.pos-1, "Invalid variable name after '%c'", sigil)
	}
	return lx.readIdent(), nil
}

// readString consumes a double-quoted literal. There are no backslash
// escapes; braces are handled later by the interpolation parser.
func (lx *lexer) readString() (string, error) {
	start := lx.pos
	lx.pos++
	bodyStart := lx.pos
	for lx.pos < len(lx.input) {
		if lx.input[lx.pos] == '"' {
			s := string(lx.input[bodyStart:lx.pos])
			lx.pos++
			return s, nil
		}
		lx.pos++
	}
	return "", lexErrorf(start, "Unterminated string")
}

func isNameRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

// IsValidName reports whether name can be referenced as $name.
func IsValidName(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		if i == 0 && !(unicode.IsLetter(r) || r == '_') {
			return false
		}
		if !isNameRune(r) {
			return false
		}
	}
	return true
}
