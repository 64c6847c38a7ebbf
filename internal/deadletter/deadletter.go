// Package deadletter persists outbound messages that exhausted delivery
// retries, and replays them in insertion order once the transport is
// healthy again.
package deadletter

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nextlevelbuilder/chatbridge/internal/kvstore"
	"github.com/nextlevelbuilder/chatbridge/internal/records"
)

// Sender is the narrow capability the replayer needs from the transport
// or delivery subsystem — a small capability struct rather than a full
// delivery subsystem reference.
type Sender interface {
	SendMessage(ctx context.Context, chatID string, replyTo int, text string) error
}

// Store is a thin repository over the DeadLetter record type.
type Store struct {
	col *kvstore.Collection[records.DeadLetter]
}

// New binds a dead-letter store to client.
func New(client *kvstore.Client) *Store {
	return &Store{col: records.NewDeadLetterCollection(client)}
}

// Persist writes a new dead letter, truncating oversize text.
func (s *Store) Persist(ctx context.Context, letter records.DeadLetter) error {
	letter.TruncateText()
	return s.col.Create(ctx, &letter)
}

// transportLimit mirrors delivery's default chunk size; replay truncates
// a schema-drifted dead letter to this limit minus the "..." suffix.
const transportLimit = 4096

// Replay iterates every pending dead letter in insertion order (by
// created_at) and attempts delivery via sender. On success the record is
// deleted in the same pass; on failure its attempts counter is bumped and
// it is kept for the next replay.
func (s *Store) Replay(ctx context.Context, sender Sender) error {
	letters, err := s.col.Query().Range(0, float64(1)<<62).All(ctx)
	if err != nil {
		return fmt.Errorf("deadletter: list pending: %w", err)
	}

	for _, letter := range letters {
		text := letter.Text
		if len(text) > transportLimit {
			text = text[:transportLimit-3] + "..."
		}
		if err := sender.SendMessage(ctx, letter.ChatID, letter.ReplyTo, text); err != nil {
			letter.Attempts++
			if err := s.col.Save(ctx, letter); err != nil {
				slog.Warn("deadletter.replay.save_failed", "letter_id", letter.LetterID, "error", err)
			}
			continue
		}
		if err := s.col.Delete(ctx, letter); err != nil {
			slog.Warn("deadletter.replay.delete_failed", "letter_id", letter.LetterID, "error", err)
		}
	}
	return nil
}

// Count returns the number of currently pending dead letters for chatID.
func (s *Store) Count(ctx context.Context, chatID string) (int, error) {
	letters, err := s.col.Query().Filter("ChatID", chatID).All(ctx)
	if err != nil {
		return 0, fmt.Errorf("deadletter: count: %w", err)
	}
	return len(letters), nil
}
