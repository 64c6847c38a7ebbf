package archive

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/chatbridge/internal/records"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(":memory:", nil)
	require.NoError(t, err)
	require.NoError(t, store.Migrate())
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_IdempotentOnDuplicateChatAndMessageID(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	msg := records.Message{ChatID: "chat-1", MessageID: 42, Direction: records.DirectionIn, Content: "hello", Timestamp: 100}

	res, err := store.Store(ctx, msg)
	require.NoError(t, err)
	require.True(t, res.Stored)

	res2, err := store.Store(ctx, msg)
	require.NoError(t, err)
	require.False(t, res2.Stored)

	stats, err := store.Stats(ctx, "chat-1")
	require.NoError(t, err)
	require.EqualValues(t, 1, stats.Count)
}

func TestStore_RecentOrdersOldestFirst(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for i, ts := range []float64{300, 100, 200} {
		_, err := store.Store(ctx, records.Message{ChatID: "chat-1", MessageID: i + 1, Content: "m", Timestamp: ts})
		require.NoError(t, err)
	}

	recent, err := store.Recent(ctx, "chat-1", 10)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	require.Equal(t, float64(100), recent[0].Timestamp)
	require.Equal(t, float64(200), recent[1].Timestamp)
	require.Equal(t, float64(300), recent[2].Timestamp)
}

func TestStore_SearchMatchesKeywordWithinChat(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	_, err := store.Store(ctx, records.Message{ChatID: "chat-1", MessageID: 1, Content: "deploy the frontend", Timestamp: 10})
	require.NoError(t, err)
	_, err = store.Store(ctx, records.Message{ChatID: "chat-1", MessageID: 2, Content: "unrelated message", Timestamp: 20})
	require.NoError(t, err)
	_, err = store.Store(ctx, records.Message{ChatID: "chat-2", MessageID: 1, Content: "deploy the backend", Timestamp: 30})
	require.NoError(t, err)

	results, err := store.Search(ctx, "chat-1", "deploy", 10, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "deploy the frontend", results[0].Content)
}

func TestStore_StatsBreaksDownByDirection(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	_, err := store.Store(ctx, records.Message{ChatID: "chat-1", MessageID: 1, Direction: records.DirectionIn, Content: "a", Timestamp: 1})
	require.NoError(t, err)
	_, err = store.Store(ctx, records.Message{ChatID: "chat-1", MessageID: 2, Direction: records.DirectionOut, Content: "b", Timestamp: 2})
	require.NoError(t, err)

	stats, err := store.Stats(ctx, "chat-1")
	require.NoError(t, err)
	require.EqualValues(t, 2, stats.Count)
	require.EqualValues(t, 1, stats.InCount)
	require.EqualValues(t, 1, stats.OutCount)
}
