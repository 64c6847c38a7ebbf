package deadletter_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/chatbridge/internal/deadletter"
	"github.com/nextlevelbuilder/chatbridge/internal/kvstore"
	"github.com/nextlevelbuilder/chatbridge/internal/records"
)

type fakeSender struct {
	fail bool
	sent []string
}

func (f *fakeSender) SendMessage(ctx context.Context, chatID string, replyTo int, text string) error {
	if f.fail {
		return errors.New("transport unavailable")
	}
	f.sent = append(f.sent, text)
	return nil
}

func newTestClient(t *testing.T) *kvstore.Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return kvstore.NewFromRedis(rdb, kvstore.NamespaceTest)
}

func TestStore_PersistTruncatesOversizeText(t *testing.T) {
	client := newTestClient(t)
	store := deadletter.New(client)
	ctx := context.Background()

	huge := strings.Repeat("y", records.MaxContentChars+1000)
	require.NoError(t, store.Persist(ctx, records.DeadLetter{ChatID: "chat-1", Text: huge, CreatedAt: 1}))

	count, err := store.Count(ctx, "chat-1")
	require.NoError(t, err)
	require.Equal(t, 1, count)

	letters, err := records.NewDeadLetterCollection(client).Query().Filter("ChatID", "chat-1").All(ctx)
	require.NoError(t, err)
	require.Len(t, letters, 1)
	require.Len(t, letters[0].Text, records.MaxContentChars)
}

func TestStore_ReplaySuccessDeletesRecord(t *testing.T) {
	store := deadletter.New(newTestClient(t))
	ctx := context.Background()

	require.NoError(t, store.Persist(ctx, records.DeadLetter{ChatID: "chat-1", Text: "hello", CreatedAt: 1}))

	sender := &fakeSender{}
	require.NoError(t, store.Replay(ctx, sender))

	require.Equal(t, []string{"hello"}, sender.sent)
	count, err := store.Count(ctx, "chat-1")
	require.NoError(t, err)
	require.Equal(t, 0, count)
}

func TestStore_ReplayFailureIncrementsAttemptsAndKeepsRecord(t *testing.T) {
	store := deadletter.New(newTestClient(t))
	ctx := context.Background()

	require.NoError(t, store.Persist(ctx, records.DeadLetter{ChatID: "chat-1", Text: "hello", CreatedAt: 1}))

	sender := &fakeSender{fail: true}
	require.NoError(t, store.Replay(ctx, sender))

	count, err := store.Count(ctx, "chat-1")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}
