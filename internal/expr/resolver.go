package expr

// Resolver supplies variable values during evaluation.
type Resolver interface {
	Resolve(name string) (Value, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(name string) (Value, error)

// Resolve calls f(name).
func (f ResolverFunc) Resolve(name string) (Value, error) { return f(name) }

// MapResolver resolves names from a plain map. Missing names fail with
// "Undefined variable: <name>".
type MapResolver map[string]Value

// Resolve implements Resolver.
func (m MapResolver) Resolve(name string) (Value, error) {
	if v, ok := m[name]; ok {
		return v, nil
	}
	return Undefined(), evalErrorf("Undefined variable: %s", name)
}

// Expression pairs parsed source with its AST. Instructions carry
// Expressions so programs can be disassembled and hashed by source text.
type Expression struct {
	Source string
	Root   Node
}

// Compile parses src as an expression.
func Compile(src string) (*Expression, error) {
	root, err := Parse(src)
	if err != nil {
		return nil, err
	}
	return &Expression{Source: src, Root: root}, nil
}

// CompileTemplate parses src as an expression, falling back to template
// text when src is not a valid expression. The expression error is returned
// when both fail.
func CompileTemplate(src string) (*Expression, error) {
	root, err := Parse(src)
	if err == nil {
		return &Expression{Source: src, Root: root}, nil
	}
	tmpl, terr := ParseTemplate(src)
	if terr != nil {
		return nil, err
	}
	return &Expression{Source: src, Root: tmpl}, nil
}

// MustCompile is Compile for tests and static expressions. It panics on error.
func MustCompile(src string) *Expression {
	e, err := Compile(src)
	if err != nil {
		panic(err)
	}
	return e
}

// Eval evaluates the expression against r.
func (e *Expression) Eval(r Resolver) (Value, error) {
	return Eval(e.Root, r)
}

// Variables returns the variable names the expression reads.
func (e *Expression) Variables() []string {
	return Variables(e.Root)
}

func (e *Expression) String() string { return e.Source }
