package metrics

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"ai-trip-planner/internal/database"
	"ai-trip-planner/internal/shared"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "metrics.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(db.SQL)
}

func TestStoreDailyUsage(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Date(2026, 10, 17, 15, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	ok := shared.AgentMeta{
		AgentName: "ItineraryPlanner",
		Usage:     shared.TokenUsage{PromptTokens: 100, CompletionTokens: 900, Model: "gemini-1.5-flash"},
		Latency:   1500 * time.Millisecond,
		Attempts:  1,
		Succeeded: true,
	}
	failed := shared.AgentMeta{AgentName: "ItineraryPlanner", Attempts: 3}

	require.NoError(t, s.RecordMeta(ctx, ok))
	require.NoError(t, s.RecordMeta(ctx, ok))
	require.NoError(t, s.RecordMeta(ctx, failed))
	require.NoError(t, s.RecordMeta(ctx, shared.AgentMeta{AgentName: "noop"}))

	old := MapMeta(ok)
	old.Timestamp = now.AddDate(0, 0, -2)
	require.NoError(t, s.Record(ctx, old))

	usage, err := s.GetDailyUsage(ctx, 7)
	require.NoError(t, err)
	require.Len(t, usage, 2)

	assert.Equal(t, DailyUsage{Date: "2026-10-17", TotalPrompt: 200, TotalCompletion: 1800, TotalExecution: 3, Failures: 1}, usage[0])
	assert.Equal(t, "2026-10-15", usage[1].Date)
	assert.Equal(t, 1, usage[1].TotalExecution)
}

func TestStoreCleanup(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Date(2026, 10, 17, 15, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	for _, age := range []int{0, 10, 40, 90} {
		require.NoError(t, s.Record(ctx, ExecutionMetric{AgentName: "a", Attempts: 1, Timestamp: now.AddDate(0, 0, -age)}))
	}

	removed, err := s.Cleanup(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	removed, err = s.Cleanup(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(0), removed)
}

func TestGetSysHealth(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.bin"), make([]byte, 2048), 0o644))

	h := GetSysHealth(dir)
	assert.Equal(t, "2.0 KiB", h.DataDiskSize)
	assert.Positive(t, h.Goroutines)
	assert.NotEmpty(t, h.Sys)
}
