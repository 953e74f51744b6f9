package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStepClock_StartsAtEpoch(t *testing.T) {
	clock := NewStepClock(10 * time.Millisecond)
	assert.Equal(t, Epoch, clock.Now())
	assert.Equal(t, Epoch.Add(10*time.Millisecond), clock.Now())
	assert.Equal(t, Epoch.Add(20*time.Millisecond), clock.Now())
}

func TestStepClock_ZeroStepIsFrozen(t *testing.T) {
	clock := NewStepClock(0)
	assert.Equal(t, clock.Now(), clock.Now())
}

func TestStepClock_AdvanceAndReset(t *testing.T) {
	clock := NewStepClock(time.Millisecond)
	clock.Advance(time.Second)
	assert.Equal(t, Epoch.Add(time.Second), clock.Now())

	clock.Reset()
	assert.Equal(t, Epoch, clock.Now())
}

func TestStepClock_ThreadSafe(t *testing.T) {
	clock := NewStepClock(time.Millisecond)
	const numGoroutines = 50
	const callsPerGoroutine = 20

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[time.Time]bool)
	)
	wg.Add(numGoroutines)
	for range numGoroutines {
		go func() {
			defer wg.Done()
			for range callsPerGoroutine {
				now := clock.Now()
				mu.Lock()
				assert.False(t, seen[now], "duplicate instant %v", now)
				seen[now] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, numGoroutines*callsPerGoroutine)
}
