package kvstore

import (
	"context"
	"encoding/json"
	"log/slog"
)

// subscriberQueueSize bounds how many pending payloads a slow subscriber
// may accumulate before the oldest is dropped. A slow consumer must never
// block a Publish call.
const subscriberQueueSize = 256

// Handler processes one published payload.
type Handler func(payload []byte)

// Publish serializes value and fans it out to every subscriber of channel.
func (c *Client) Publish(ctx context.Context, channel string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.rdb.Publish(ctx, c.namespace+":"+channel, data).Err()
}

// Subscribe registers handler on channel. The handler runs in its own
// goroutine reading from a bounded queue fed by a Redis subscription
// opened for this call; if the handler falls behind, the oldest queued payload is
// dropped with a warning rather than blocking the publisher.
func (c *Client) Subscribe(ctx context.Context, channel string, handler Handler) error {
	sub := c.rdb.Subscribe(ctx, c.namespace+":"+channel)
	queue := make(chan []byte, subscriberQueueSize)

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					close(queue)
					return
				}
				select {
				case queue <- []byte(msg.Payload):
				default:
					// Queue full: drop the oldest pending payload to make
					// room, never block the Redis delivery goroutine.
					select {
					case <-queue:
					default:
					}
					slog.Warn("kvstore.subscriber.queue_full", "channel", channel)
					queue <- []byte(msg.Payload)
				}
			}
		}
	}()

	go func() {
		for payload := range queue {
			handler(payload)
		}
	}()

	return nil
}
