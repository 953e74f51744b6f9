package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bissakov/qazcode-rpa-sub001/internal/expr"
	"github.com/bissakov/qazcode-rpa-sub001/internal/graph"
	"github.com/bissakov/qazcode-rpa-sub001/internal/testutil"
)

// collect reads events until the queue is closed.
func collect(t *testing.T, q *EventQueue) []Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var out []Event
	for {
		e, err := q.Next(ctx)
		if err == ErrQueueClosed {
			return out
		}
		require.NoError(t, err)
		out = append(out, e)
	}
}

func TestSpawn_EventStream(t *testing.T) {
	p := testutil.SetThenLog()
	h := Spawn(context.Background(), mustCompile(t, p), p,
		WithRunIDGenerator(NewFixedGenerator("run-42")),
		WithTimeSource(testutil.NewStepClock(time.Millisecond)))

	events := collect(t, h.Events())
	require.NoError(t, h.Wait())
	assert.Equal(t, "run-42", h.RunID())

	require.NotEmpty(t, events)
	for i := 1; i < len(events); i++ {
		assert.Greater(t, events[i].Seq, events[i-1].Seq, "event seq strictly increases")
	}

	last := events[len(events)-1]
	require.Equal(t, EventTypeCompleted, last.Type)
	assert.False(t, last.Completed.Stopped)

	final := events[len(events)-2]
	require.Equal(t, EventTypeSnapshot, final.Type, "a final snapshot precedes completion")
	assert.Equal(t, expr.Number(5), final.Snapshot.ScenarioVars["x"])
	assert.Equal(t, expr.String(""), final.Snapshot.GlobalVars[LastErrorVar])

	var logs []string
	for _, e := range events {
		if e.Type == EventTypeLog {
			logs = append(logs, e.Log.Message)
		}
	}
	assert.Contains(t, logs, "5")
	assert.Contains(t, logs, "Starting scenario: main")
}

func TestSpawn_SnapshotsAreThrottled(t *testing.T) {
	p := testutil.CountedLoop(0, 50, 1)
	// Every Now call advances 1ms; with a 1h interval only the first and
	// final snapshots are emitted.
	h := Spawn(context.Background(), mustCompile(t, p), p,
		WithTimeSource(testutil.NewStepClock(time.Millisecond)),
		WithSnapshotInterval(time.Hour))

	events := collect(t, h.Events())
	require.NoError(t, h.Wait())

	snapshots := 0
	for _, e := range events {
		if e.Type == EventTypeSnapshot {
			snapshots++
		}
	}
	assert.Equal(t, 2, snapshots)
}

func TestSpawn_ErrorEvent(t *testing.T) {
	p := testutil.Linear(graph.Evaluate{Expression: "$missing"})
	h := Spawn(context.Background(), mustCompile(t, p), p)

	events := collect(t, h.Events())
	err := h.Wait()
	require.Error(t, err)
	assert.True(t, IsEvalError(err))

	last := events[len(events)-1]
	require.Equal(t, EventTypeError, last.Type)
	assert.Equal(t, "Undefined variable: missing", last.Error.Message)
}

func TestSpawn_StopDuringLongDelay(t *testing.T) {
	p := testutil.Linear(graph.Delay{Milliseconds: 10_000}, graph.Log{Message: "after"})
	slice := 20 * time.Millisecond
	h := Spawn(context.Background(), mustCompile(t, p), p, WithDelaySlice(slice))

	require.Eventually(t, func() bool {
		return h.Machine().State() == StateSuspended
	}, 2*time.Second, time.Millisecond)

	start := time.Now()
	h.Stop()
	err := h.Wait()
	stoppedIn := time.Since(start)

	assert.ErrorIs(t, err, ErrStopped)
	assert.Less(t, stoppedIn, 5*slice, "stop is observed within a polling slice, not after the delay")
	assert.Equal(t, StateStopped, h.Machine().State())

	events := collect(t, h.Events())
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	require.Equal(t, EventTypeCompleted, last.Type)
	assert.True(t, last.Completed.Stopped)

	for _, e := range events {
		if e.Type == EventTypeLog {
			assert.NotEqual(t, "after", e.Log.Message)
		}
	}
}

func TestSpawn_DoneClosesAfterRun(t *testing.T) {
	p := testutil.SetThenLog()
	h := Spawn(context.Background(), mustCompile(t, p), p)

	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("run did not finish")
	}
	assert.True(t, h.Events().Closed())
	assert.NoError(t, h.Wait())
}
