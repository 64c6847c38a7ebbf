package kvstore_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPublishSubscribe_DeliversPayload(t *testing.T) {
	client := newTestClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	var mu sync.Mutex
	var received []string

	require.NoError(t, client.Subscribe(ctx, "events", func(payload []byte) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, string(payload))
	}))

	// miniredis's pubsub delivery is asynchronous; give the subscriber
	// goroutine a moment to register before publishing.
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, client.Publish(ctx, "events", map[string]string{"kind": "ping"}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, time.Second, 10*time.Millisecond)
}
