package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bissakov/qazcode-rpa-sub001/internal/runlog"
)

func logEvent(msg string) Event {
	return Event{Type: EventTypeLog, Log: &runlog.Entry{Message: msg}}
}

func TestEventQueue_FIFO(t *testing.T) {
	q := NewEventQueue()

	for _, msg := range []string{"A", "B", "C"} {
		require.True(t, q.Enqueue(logEvent(msg)))
	}
	assert.Equal(t, 3, q.Len())

	for _, want := range []string{"A", "B", "C"} {
		e, ok := q.TryDequeue()
		require.True(t, ok)
		assert.Equal(t, want, e.Log.Message)
	}

	_, ok := q.TryDequeue()
	assert.False(t, ok, "dequeue from empty queue should return false")
}

func TestEventQueue_EnqueueAfterClose(t *testing.T) {
	q := NewEventQueue()
	q.Close()
	q.Close() // idempotent

	assert.False(t, q.Enqueue(logEvent("late")))
	assert.True(t, q.Closed())
}

func TestEventQueue_NextDrainsThenReportsClosed(t *testing.T) {
	q := NewEventQueue()
	q.Enqueue(logEvent("A"))
	q.Close()

	e, err := q.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "A", e.Log.Message)

	_, err = q.Next(context.Background())
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestEventQueue_NextBlocksUntilAvailable(t *testing.T) {
	q := NewEventQueue()

	go func() {
		time.Sleep(20 * time.Millisecond)
		q.Enqueue(logEvent("late"))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	e, err := q.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "late", e.Log.Message)
}

func TestEventQueue_NextHonorsContext(t *testing.T) {
	q := NewEventQueue()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := q.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEventQueue_ConcurrentProducers(t *testing.T) {
	q := NewEventQueue()
	const producers, each = 8, 100

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < each; i++ {
				q.Enqueue(logEvent("x"))
			}
		}()
	}
	wg.Wait()

	assert.Len(t, q.Drain(), producers*each)
	assert.Equal(t, 0, q.Len())
}

func TestEventType_String(t *testing.T) {
	assert.Equal(t, "snapshot", EventTypeSnapshot.String())
	assert.Equal(t, "log", EventTypeLog.String())
	assert.Equal(t, "completed", EventTypeCompleted.String())
	assert.Equal(t, "error", EventTypeError.String())
	assert.Equal(t, "unknown", EventType(0).String())
}
