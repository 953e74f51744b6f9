package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuotaEnforcer_WithinLimit(t *testing.T) {
	q := NewQuotaEnforcer(10)

	for i := 0; i < 10; i++ {
		assert.NoError(t, q.Check(), "step %d should be allowed", i+1)
	}
	assert.Equal(t, 10, q.Current())
	assert.Equal(t, 10, q.MaxSteps())
}

func TestQuotaEnforcer_ExceedsLimit(t *testing.T) {
	q := NewQuotaEnforcer(5)
	for i := 0; i < 5; i++ {
		require.NoError(t, q.Check())
	}

	err := q.Check()
	require.Error(t, err)
	assert.True(t, IsStepsExceeded(err))
	assert.Contains(t, err.Error(), "6 > 5")

	var re *RuntimeError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "6", re.Details["steps"])
	assert.Equal(t, "5", re.Details["max_steps"])
}

func TestQuotaEnforcer_ZeroIsUnlimited(t *testing.T) {
	q := NewQuotaEnforcer(0)
	for i := 0; i < 10_000; i++ {
		require.NoError(t, q.Check())
	}
}

func TestQuotaEnforcer_Reset(t *testing.T) {
	q := NewQuotaEnforcer(2)
	require.NoError(t, q.Check())
	require.NoError(t, q.Check())
	q.Reset()

	assert.Equal(t, 0, q.Current())
	assert.NoError(t, q.Check())
}
