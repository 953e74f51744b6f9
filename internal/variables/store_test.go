package variables

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bissakov/qazcode-rpa-sub001/internal/expr"
)

func TestStore_SetMissingIsNoop(t *testing.T) {
	s := New(ScopeScenario)

	assert.False(t, s.Set("x", expr.Number(1)))
	assert.False(t, s.Has("x"))
	assert.Equal(t, 0, s.Len())
}

func TestStore_CreateResetsValue(t *testing.T) {
	s := New(ScopeScenario)
	s.Create("x")
	require.True(t, s.Set("x", expr.Number(5)))

	v, ok := s.Get("x")
	require.True(t, ok)
	assert.Equal(t, expr.Number(5), v)

	s.Create("x")
	v, ok = s.Get("x")
	require.True(t, ok)
	assert.True(t, v.IsUndefined())
}

func TestStore_Define(t *testing.T) {
	s := New(ScopeGlobal)
	s.Define("a", expr.String("hi"))
	s.Define("a", expr.String("there"))

	v, _ := s.Get("a")
	assert.Equal(t, expr.String("there"), v)

	rec, ok := s.Lookup("a")
	require.True(t, ok)
	assert.Equal(t, ScopeGlobal, rec.Scope)
}

func TestStore_NamesSorted(t *testing.T) {
	s := New(ScopeScenario)
	for _, n := range []string{"zeta", "alpha", "mid"} {
		s.Create(n)
	}
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, s.Names())

	s.Remove("mid")
	s.Remove("missing")
	assert.Equal(t, []string{"alpha", "zeta"}, s.Names())
}

func TestStore_CloneIsIndependent(t *testing.T) {
	s := New(ScopeScenario)
	s.Define("x", expr.Number(1))

	c := s.Clone()
	c.Set("x", expr.Number(2))
	c.Define("y", expr.Bool(true))

	v, _ := s.Get("x")
	assert.Equal(t, expr.Number(1), v)
	assert.False(t, s.Has("y"))
}

func TestStore_SnapshotIsCopy(t *testing.T) {
	s := New(ScopeScenario)
	s.Define("x", expr.Number(1))

	snap := s.Snapshot()
	snap["x"] = expr.Number(99)

	v, _ := s.Get("x")
	assert.Equal(t, expr.Number(1), v)
}

func TestChain_LocalShadowsGlobal(t *testing.T) {
	global := New(ScopeGlobal)
	local := New(ScopeScenario)
	global.Define("x", expr.Number(1))
	global.Define("g", expr.String("global"))
	local.Define("x", expr.Number(2))

	r := Chain(local, global)

	v, err := r.Resolve("x")
	require.NoError(t, err)
	assert.Equal(t, expr.Number(2), v)

	v, err = r.Resolve("g")
	require.NoError(t, err)
	assert.Equal(t, expr.String("global"), v)

	_, err = r.Resolve("nope")
	require.Error(t, err)
	assert.True(t, expr.IsEvalError(err))
	assert.Equal(t, "Undefined variable: nope", err.Error())
}

func TestChain_EvaluatesExpressions(t *testing.T) {
	global := New(ScopeGlobal)
	local := New(ScopeScenario)
	global.Define("limit", expr.Number(10))
	local.Define("i", expr.Number(4))

	e := expr.MustCompile("$i < $limit")
	v, err := e.Eval(Chain(local, global))
	require.NoError(t, err)
	assert.Equal(t, expr.Bool(true), v)
}

func TestOwner(t *testing.T) {
	global := New(ScopeGlobal)
	local := New(ScopeScenario)
	global.Create("g")
	local.Create("l")

	assert.Same(t, local, Owner("l", local, global))
	assert.Same(t, global, Owner("g", local, global))
	assert.Nil(t, Owner("none", local, global))
	assert.Same(t, global, Owner("g", nil, global))
}

func TestParseScope(t *testing.T) {
	s, err := ParseScope("")
	require.NoError(t, err)
	assert.Equal(t, ScopeScenario, s)

	s, err = ParseScope("Global")
	require.NoError(t, err)
	assert.Equal(t, ScopeGlobal, s)

	_, err = ParseScope("Planet")
	assert.Error(t, err)
}
