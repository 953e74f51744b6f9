package expr

import "strings"

type parser struct {
	tokens []Token
	pos    int
	srcLen int
}

// Parse tokenizes and parses src into an AST.
func Parse(src string) (Node, error) {
	if strings.TrimSpace(src) == "" {
		return nil, parseErrorf(0, "Empty expression")
	}
	tokens, err := Tokenize(src)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, parseErrorf(0, "Empty expression")
	}
	p := &parser{tokens: tokens, srcLen: len([]rune(src))}
	n, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if tok, ok := p.current(); ok {
		return nil, parseErrorf(tok.Pos, "Unexpected token: %s", tok)
	}
	return n, nil
}

// ParseTemplate parses bare text as if it were the body of an interpolated
// string: literal text with {expr} segments and {{ }} escapes. Text without
// braces yields a String constant.
func ParseTemplate(text string) (Node, error) {
	return parseInterpolation(text, 0)
}

func (p *parser) current() (Token, bool) {
	if p.pos < len(p.tokens) {
		return p.tokens[p.pos], true
	}
	return Token{}, false
}

func (p *parser) match(types ...TokenType) (Token, bool) {
	tok, ok := p.current()
	if !ok {
		return Token{}, false
	}
	for _, t := range types {
		if tok.Type == t {
			p.pos++
			return tok, true
		}
	}
	return Token{}, false
}

func (p *parser) parseOr() (Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for {
		if _, ok := p.match(TokOr); !ok {
			return left, nil
		}
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = Binary{Op: OpOr, Left: left, Right: right}
	}
}

func (p *parser) parseAnd() (Node, error) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for {
		if _, ok := p.match(TokAnd); !ok {
			return left, nil
		}
		right, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		left = Binary{Op: OpAnd, Left: left, Right: right}
	}
}

var comparisonOps = map[TokenType]BinaryOp{
	TokEq: OpEq, TokNe: OpNe, TokGt: OpGt, TokGe: OpGe, TokLt: OpLt, TokLe: OpLe,
}

// parseComparison allows a single comparison; "a < b < c" leaves a trailing
// token and fails in Parse.
func (p *parser) parseComparison() (Node, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	tok, ok := p.match(TokEq, TokNe, TokGt, TokGe, TokLt, TokLe)
	if !ok {
		return left, nil
	}
	right, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	return Binary{Op: comparisonOps[tok.Type], Left: left, Right: right}, nil
}

func (p *parser) parseAdditive() (Node, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for {
		tok, ok := p.match(TokPlus, TokMinus)
		if !ok {
			return left, nil
		}
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		op := OpAdd
		if tok.Type == TokMinus {
			op = OpSub
		}
		left = Binary{Op: op, Left: left, Right: right}
	}
}

func (p *parser) parseMultiplicative() (Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		tok, ok := p.match(TokStar, TokSlash, TokPercent)
		if !ok {
			return left, nil
		}
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		var op BinaryOp
		switch tok.Type {
		case TokStar:
			op = OpMul
		case TokSlash:
			op = OpDiv
		default:
			op = OpMod
		}
		left = Binary{Op: op, Left: left, Right: right}
	}
}

func (p *parser) parseUnary() (Node, error) {
	tok, ok := p.match(TokNot, TokMinus, TokPlus)
	if !ok {
		return p.parsePrimary()
	}
	operand, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	switch tok.Type {
	case TokNot:
		return Unary{Op: OpNot, Operand: operand}, nil
	case TokMinus:
		return Unary{Op: OpNeg, Operand: operand}, nil
	}
	return operand, nil
}

func (p *parser) parsePrimary() (Node, error) {
	tok, ok := p.current()
	if !ok {
		return nil, parseErrorf(p.srcLen, "Unexpected end of expression")
	}
	p.pos++
	switch tok.Type {
	case TokNumber:
		return Const{Value: Number(tok.Num)}, nil
	case TokBoolean:
		return Const{Value: Bool(tok.Bool)}, nil
	case TokString:
		if !strings.ContainsAny(tok.Text, "{}") {
			return Const{Value: String(tok.Text)}, nil
		}
		return parseInterpolation(tok.Text, tok.Pos+1)
	case TokVariable:
		return Load{Name: tok.Text}, nil
	case TokLParen:
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if _, ok := p.match(TokRParen); !ok {
			if next, more := p.current(); more {
				return nil, parseErrorf(next.Pos, "Expected ')', found %s", next)
			}
			return nil, parseErrorf(p.srcLen, "Expected ')', found end of expression")
		}
		return inner, nil
	}
	return nil, parseErrorf(tok.Pos, "Unexpected token: %s", tok)
}

// parseInterpolation splits raw into literal and expression segments. offset
// is added to reported positions so errors point into the enclosing source.
func parseInterpolation(raw string, offset int) (Node, error) {
	chars := []rune(raw)
	var segments []Segment
	var literal strings.Builder

	flush := func() {
		if literal.Len() > 0 {
			segments = append(segments, Segment{Literal: literal.String()})
			literal.Reset()
		}
	}

	for i := 0; i < len(chars); {
		switch chars[i] {
		case '{':
			if i+1 < len(chars) && chars[i+1] == '{' {
				literal.WriteRune('{')
				i += 2
				continue
			}
			flush()
			open := i
			i++
			start := i
			depth := 1
			for i < len(chars) {
				if chars[i] == '{' {
					depth++
				} else if chars[i] == '}' {
					depth--
					if depth == 0 {
						break
					}
				}
				i++
			}
			if depth != 0 {
				return nil, parseErrorf(offset+open, "Unclosed brace in interpolated string")
			}
			body := string(chars[start:i])
			if strings.TrimSpace(body) == "" {
				return nil, parseErrorf(offset+open, "Empty expression in interpolated string")
			}
			n, err := Parse(body)
			if err != nil {
				return nil, err
			}
			segments = append(segments, Segment{Expr: n})
			i++
		case '}':
			if i+1 < len(chars) && chars[i+1] == '}' {
				literal.WriteRune('}')
				i += 2
				continue
			}
			return nil, parseErrorf(offset+i, "Unmatched closing brace in interpolated string")
		default:
			literal.WriteRune(chars[i])
			i++
		}
	}
	flush()

	if len(segments) == 0 {
		return Const{Value: String("")}, nil
	}
	if len(segments) == 1 && segments[0].Expr == nil {
		return Const{Value: String(segments[0].Literal)}, nil
	}
	return Interpolated{Segments: segments}, nil
}
