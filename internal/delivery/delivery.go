// Package delivery implements at-least-once message delivery to a
// transport: paragraph-boundary chunking, bounded retries with backoff,
// and dead-letter persistence once retries are exhausted.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/nextlevelbuilder/chatbridge/internal/bus"
	"github.com/nextlevelbuilder/chatbridge/internal/records"
)

// Sender is the transport capability delivery needs.
type Sender interface {
	SendMessage(ctx context.Context, chatID string, replyTo int, text string) (string, error)
}

// DeadLetterPersister is the narrow capability delivery needs from the
// dead-letter store.
type DeadLetterPersister interface {
	Persist(ctx context.Context, letter records.DeadLetter) error
}

// Subsystem delivers outbound messages with bounded retries, falling
// back to the dead-letter store once retries are exhausted.
type Subsystem struct {
	sender        Sender
	deadLetters   DeadLetterPersister
	maxChunkChars int
	retryMax      int
	baseBackoff   time.Duration
	limiter       *rate.Limiter
	now           func() float64
}

// New builds a Subsystem. sendRate throttles outbound transport calls
// overall (a send every sendRate, burst 1); baseBackoff is doubled on
// each retry attempt, capped at 30s.
func New(sender Sender, deadLetters DeadLetterPersister, maxChunkChars, retryMax int, baseBackoff, sendRate time.Duration) *Subsystem {
	if maxChunkChars <= 0 {
		maxChunkChars = 4096
	}
	if retryMax <= 0 {
		retryMax = 3
	}
	if baseBackoff <= 0 {
		baseBackoff = 500 * time.Millisecond
	}
	if sendRate <= 0 {
		sendRate = 50 * time.Millisecond
	}
	return &Subsystem{
		sender:        sender,
		deadLetters:   deadLetters,
		maxChunkChars: maxChunkChars,
		retryMax:      retryMax,
		baseBackoff:   baseBackoff,
		limiter:       rate.NewLimiter(rate.Every(sendRate), 1),
		now:           func() float64 { return float64(time.Now().UnixNano()) / 1e9 },
	}
}

const maxBackoff = 30 * time.Second

func backoffFor(base time.Duration, attempt int) time.Duration {
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d > maxBackoff {
			return maxBackoff
		}
	}
	return d
}

// Deliver chunks text and attempts delivery of every chunk, each sharing
// the same reply_to. On exhausted retries for a chunk, a dead letter is
// persisted and delivery continues with the next chunk — the caller
// always sees success, since the bridge has handed off responsibility
// for that chunk to the dead-letter store.
func (s *Subsystem) Deliver(ctx context.Context, msg bus.OutboundMessage) error {
	chunks := Chunk(msg.Text, s.maxChunkChars)
	for _, chunk := range chunks {
		if err := s.deliverChunk(ctx, msg.ChatID, msg.ReplyTo, chunk); err != nil {
			return err
		}
	}
	return nil
}

func (s *Subsystem) deliverChunk(ctx context.Context, chatID string, replyTo int, text string) error {
	var lastErr error
	for attempt := 0; attempt <= s.retryMax; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoffFor(s.baseBackoff, attempt-1)):
			case <-ctx.Done():
				return fmt.Errorf("delivery: backoff wait: %w", ctx.Err())
			}
		}
		if err := s.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("delivery: send throttle: %w", err)
		}

		_, err := s.sender.SendMessage(ctx, chatID, replyTo, text)
		if err == nil {
			return nil
		}
		lastErr = err

		var permErr *bus.PermanentError
		if errors.As(err, &permErr) {
			break
		}
	}

	slog.Warn("delivery.retries_exhausted", "chat_id", chatID, "error", lastErr)
	if err := s.deadLetters.Persist(ctx, records.DeadLetter{
		ChatID:    chatID,
		ReplyTo:   replyTo,
		Text:      text,
		CreatedAt: s.now(),
	}); err != nil {
		return fmt.Errorf("delivery: persist dead letter: %w", err)
	}
	return nil
}
