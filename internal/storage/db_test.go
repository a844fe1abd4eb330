package storage

import (
	"context"
	"errors"
	"path/filepath"
	"review-proxy/internal/cache"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *HistoryDB {
	t.Helper()
	h, err := Open(filepath.Join(t.TempDir(), "history.db"), 24*time.Hour, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })
	return h
}

func TestRecordAndRecent(t *testing.T) {
	h := openTestDB(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, h.Record(ctx, RefreshRecord{Key: "place-1", StartedAt: base, DurationMs: 120, Success: true, Items: 3}))
	require.NoError(t, h.Record(ctx, RefreshRecord{Key: "place-2", StartedAt: base.Add(time.Minute), DurationMs: 80, Success: false, Error: "503"}))
	require.NoError(t, h.Record(ctx, RefreshRecord{Key: "place-1", StartedAt: base.Add(2 * time.Minute), DurationMs: 90, Success: true, Items: 4}))

	all, err := h.Recent(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, 4, all[0].Items)
	assert.Equal(t, "place-2", all[1].Key)
	assert.False(t, all[1].Success)
	assert.Equal(t, "503", all[1].Error)
	assert.True(t, all[2].StartedAt.Equal(base))

	onlyOne, err := h.Recent(ctx, "place-1", 1)
	require.NoError(t, err)
	require.Len(t, onlyOne, 1)
	assert.Equal(t, "place-1", onlyOne[0].Key)
	assert.Empty(t, onlyOne[0].Error)
}

func TestCleanupRemovesOldRecords(t *testing.T) {
	h := openTestDB(t)
	ctx := context.Background()
	now := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	require.NoError(t, h.Record(ctx, RefreshRecord{Key: "old", StartedAt: now.Add(-48 * time.Hour), Success: true}))
	require.NoError(t, h.Record(ctx, RefreshRecord{Key: "new", StartedAt: now.Add(-time.Hour), Success: true}))

	n, err := h.Cleanup(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	records, err := h.Recent(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "new", records[0].Key)
}

func TestRefreshHookRecordsEvents(t *testing.T) {
	h := openTestDB(t)
	hook := RefreshHook[string](h)
	started := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	hook(cache.RefreshEvent[string]{
		Key:      "place-1",
		Started:  started,
		Duration: 250 * time.Millisecond,
		Entry:    &cache.CacheEntry[string]{Key: "place-1", Items: []string{"a", "b"}, FetchedAt: started},
	})
	hook(cache.RefreshEvent[string]{
		Key:      "place-1",
		Started:  started.Add(time.Second),
		Duration: time.Second,
		Err:      errors.New("timeout"),
	})

	records, err := h.Recent(context.Background(), "place-1", 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.False(t, records[0].Success)
	assert.Equal(t, "timeout", records[0].Error)
	assert.True(t, records[1].Success)
	assert.Equal(t, 2, records[1].Items)
	assert.Equal(t, int64(250), records[1].DurationMs)
}
