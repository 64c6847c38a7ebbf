// Package bus defines the message-passing types shared by the ingest
// handler, enrichment stage, job queue, and delivery subsystem.
package bus

import "context"

// InboundEvent is a raw message delivered by a Transport, before the
// ingest handler extracts a Job from it.
type InboundEvent struct {
	ChatID    string
	MessageID int
	Sender    string
	Text      string
	HasMedia  bool
	ReplyToID int
	Timestamp float64
}

// URLSet partitions the URLs found in a message's text.
type URLSet struct {
	YouTube []string
	Other   []string
}

// Job is the fully-formed descriptor the ingest handler hands to the job
// queue. It carries only scalars, references, and id lists — no
// downloaded bytes and no network calls, per the ingest handler's
// contract.
type Job struct {
	ChatID      string
	MessageID   int
	Sender      string
	Text        string
	HasMedia    bool
	ReplyToID   int
	URLs        URLSet
	Timestamp   float64
	EnrichedAt  float64 // stamped by the processor before enrichment runs; nothing reads it, and jobs do not survive a restart
}

// EnrichedJob is a Job plus the text produced by the enrichment stage.
type EnrichedJob struct {
	Job
	EnrichedText string
}

// OutboundMessage is handed to the delivery subsystem for at-least-once
// delivery to the originating chat.
type OutboundMessage struct {
	ChatID  string
	ReplyTo int
	Text    string
}

// Transport is the minimal chat-channel client the bridge depends on.
// Implementations wrap a concrete chat platform SDK (see
// internal/transport).
type Transport interface {
	SendMessage(ctx context.Context, chatID string, replyTo int, text string) (string, error)
	GetMessages(ctx context.Context, chatID string, ids []int) ([]InboundEvent, error)
	OnMessage(handler func(InboundEvent))
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
}

// TransientError marks a transport failure worth retrying.
type TransientError struct{ Err error }

func (e *TransientError) Error() string { return "transient transport error: " + e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError marks a transport failure that retries cannot fix.
type PermanentError struct{ Err error }

func (e *PermanentError) Error() string { return "permanent transport error: " + e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }
