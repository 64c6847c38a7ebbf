package sessionregistry_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/chatbridge/internal/kvstore"
	"github.com/nextlevelbuilder/chatbridge/internal/records"
	"github.com/nextlevelbuilder/chatbridge/internal/sessionregistry"
)

func newTestClient(t *testing.T) *kvstore.Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return kvstore.NewFromRedis(rdb, kvstore.NamespaceTest)
}

func TestResolve_SpawnsNewSessionWhenNoneExists(t *testing.T) {
	reg := sessionregistry.New(newTestClient(t), sessionregistry.HeuristicClassifier{}, time.Minute)

	s, err := reg.Resolve(context.Background(), "proj", "chat-1", "Tom", "fix the login bug", 1000)
	require.NoError(t, err)
	require.Equal(t, records.StatusActive, s.Status)
	require.NotEmpty(t, s.BranchName)
	require.Equal(t, records.ClassificationBug, s.ClassificationType)
}

func TestResolve_ResumesWithinSilenceWindow(t *testing.T) {
	reg := sessionregistry.New(newTestClient(t), sessionregistry.HeuristicClassifier{}, 10*time.Second)
	ctx := context.Background()

	first, err := reg.Resolve(ctx, "proj", "chat-1", "Tom", "hello", 1000)
	require.NoError(t, err)

	second, err := reg.Resolve(ctx, "proj", "chat-1", "Tom", "follow up", 1005)
	require.NoError(t, err)

	require.Equal(t, first.SessionID, second.SessionID)
	require.Equal(t, float64(1005), second.LastActivity)
}

func TestResolve_SpawnsNewSessionAfterSilenceWindowExpires(t *testing.T) {
	reg := sessionregistry.New(newTestClient(t), sessionregistry.HeuristicClassifier{}, 10*time.Second)
	ctx := context.Background()

	first, err := reg.Resolve(ctx, "proj", "chat-1", "Tom", "hello", 1000)
	require.NoError(t, err)

	second, err := reg.Resolve(ctx, "proj", "chat-1", "Tom", "new topic", 1050)
	require.NoError(t, err)

	require.NotEqual(t, first.SessionID, second.SessionID)
}

func TestTransition_StatusChangePreservesNonKeyFields(t *testing.T) {
	reg := sessionregistry.New(newTestClient(t), sessionregistry.HeuristicClassifier{}, time.Minute)
	ctx := context.Background()

	s, err := reg.Resolve(ctx, "proj", "chat-1", "Tom", "hello", 1000)
	require.NoError(t, err)
	s.ToolCallCount = 3

	require.NoError(t, reg.Transition(ctx, s, records.StatusCompleted))

	active, err := reg.ListActive(ctx)
	require.NoError(t, err)
	require.Empty(t, active)
	require.Equal(t, records.StatusCompleted, s.Status)
	require.Equal(t, 3, s.ToolCallCount)
}
