package queryir

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bissakov/qazcode-rpa-sub001/internal/ir"
)

func TestAllOf(t *testing.T) {
	eq := Equals{Field: "status", Value: ir.Str("completed")}
	c := Contains{Field: "message", Substring: "x"}

	assert.Nil(t, AllOf())
	assert.Nil(t, AllOf(nil, nil))
	assert.Equal(t, eq, AllOf(nil, eq))
	assert.Equal(t, And{Predicates: []Predicate{eq, c}}, AllOf(eq, nil, c))
}

func TestStrs(t *testing.T) {
	assert.Equal(t, []ir.CanonValue{ir.Str("a"), ir.Str("b")}, Strs("a", "b"))
	assert.Empty(t, Strs())
}

func TestSchema_Tables(t *testing.T) {
	runs := Schema[SourceRuns]
	assert.True(t, runs.HasColumn("status"))
	assert.False(t, runs.HasColumn("message"))
	assert.Equal(t, []Order{{Field: "id"}}, runs.Key)

	logs := Schema[SourceLogEntries]
	assert.True(t, logs.HasColumn("message"))
	assert.Equal(t, []Order{{Field: "run_id"}, {Field: "seq"}}, logs.Key)
}

func TestSealedTypes(t *testing.T) {
	var q Query = Select{From: SourceRuns}
	_, ok := q.(Select)
	assert.True(t, ok)

	preds := []Predicate{Equals{}, In{}, Contains{}, And{}}
	assert.Len(t, preds, 4)
}
