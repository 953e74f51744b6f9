package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bissakov/qazcode-rpa-sub001/internal/runlog"
)

func runIDs(runs []Run) []string {
	ids := make([]string, len(runs))
	for i, r := range runs {
		ids[i] = r.ID
	}
	return ids
}

func TestQueryRuns_Filters(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.BeginRun(ctx, Run{ID: "a", Project: "demo", StartedAt: t0}))
	require.NoError(t, s.BeginRun(ctx, Run{ID: "b", Project: "other", StartedAt: t0.Add(time.Second)}))
	require.NoError(t, s.BeginRun(ctx, Run{ID: "c", Project: "demo", StartedAt: t0.Add(2 * time.Second)}))
	require.NoError(t, s.FinishRun(ctx, "a", StatusCompleted, "", 3, t0.Add(time.Second)))
	require.NoError(t, s.FinishRun(ctx, "b", StatusErrored, "boom", 1, t0.Add(2*time.Second)))

	runs, err := s.QueryRuns(ctx, RunFilter{Project: "demo"})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a"}, runIDs(runs))

	runs, err = s.QueryRuns(ctx, RunFilter{Statuses: []RunStatus{StatusErrored, StatusRunning}})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b"}, runIDs(runs))

	runs, err = s.QueryRuns(ctx, RunFilter{Project: "demo", Statuses: []RunStatus{StatusCompleted}})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "a", runs[0].ID)
	assert.Equal(t, 3, runs[0].Steps)

	runs, err = s.QueryRuns(ctx, RunFilter{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b"}, runIDs(runs))

	runs, err = s.QueryRuns(ctx, RunFilter{Project: "nobody"})
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestQueryLogEntries_Filters(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	beginTestRun(t, s, "run-1", t0)
	beginTestRun(t, s, "run-2", t0.Add(time.Second))

	require.NoError(t, s.WriteLogEntries(ctx, "run-1", []runlog.Entry{
		{Seq: 1, NodeID: "s", Level: runlog.LevelInfo, Activity: runlog.ActivityStart, Message: "Starting scenario: Main"},
		{Seq: 2, NodeID: "w", Level: runlog.LevelWarning, Activity: runlog.ActivityLog, Message: "total is 6"},
		{Seq: 3, NodeID: "w", Level: runlog.LevelInfo, Activity: runlog.ActivityLog, Message: "Total is 7"},
		{Seq: 4, NodeID: "e", Level: runlog.LevelInfo, Activity: runlog.ActivityEnd, Message: "Ending scenario: Main"},
	}))
	require.NoError(t, s.WriteLogEntries(ctx, "run-2", []runlog.Entry{
		{Seq: 1, NodeID: "w", Level: runlog.LevelWarning, Activity: runlog.ActivityLog, Message: "total is 8"},
	}))

	seqs := func(entries []runlog.Entry) []uint64 {
		out := make([]uint64, len(entries))
		for i, e := range entries {
			out[i] = e.Seq
		}
		return out
	}

	tests := []struct {
		name   string
		filter LogFilter
		want   []uint64
	}{
		{"no filter", LogFilter{}, []uint64{1, 2, 3, 4}},
		{"activity", LogFilter{Activities: []runlog.Activity{runlog.ActivityLog}}, []uint64{2, 3}},
		{"activities", LogFilter{Activities: []runlog.Activity{runlog.ActivityStart, runlog.ActivityEnd}}, []uint64{1, 4}},
		{"node", LogFilter{NodeID: "w"}, []uint64{2, 3}},
		{"contains is case-sensitive", LogFilter{Contains: "total"}, []uint64{2}},
		{"combined", LogFilter{Levels: []runlog.Level{runlog.LevelInfo}, NodeID: "w"}, []uint64{3}},
		{"no match", LogFilter{Contains: "%"}, []uint64{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := s.QueryLogEntries(ctx, "run-1", tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, seqs(entries))
		})
	}
}
