// Package ingest implements the fast-path handler that turns a raw
// transport event into a job descriptor and hands it to the job queue,
// without ever blocking on network calls or invoking the agent directly.
package ingest

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/nextlevelbuilder/chatbridge/internal/bus"
)

var urlPattern = regexp.MustCompile(`https?://\S+`)
var youtubePattern = regexp.MustCompile(`(?:youtube\.com/watch|youtu\.be/)`)

// Enqueuer accepts a fully-formed job without blocking. The job queue
// satisfies this with a buffered channel.
type Enqueuer interface {
	Enqueue(job bus.Job) error
}

// Handler extracts, sanitizes, and enqueues inbound events. It holds no
// buffer of its own — every call is synchronous and non-blocking because
// Enqueue itself never blocks.
type Handler struct {
	mentionPattern *regexp.Regexp
	enqueue        Enqueuer
}

// New builds a Handler that strips mentions of any of botHandles before
// enqueueing jobs via enqueue.
func New(botHandles []string, enqueue Enqueuer) *Handler {
	var h Handler
	h.enqueue = enqueue
	if len(botHandles) > 0 {
		escaped := make([]string, len(botHandles))
		for i, handle := range botHandles {
			escaped[i] = regexp.QuoteMeta("@" + strings.TrimPrefix(handle, "@"))
		}
		h.mentionPattern = regexp.MustCompile(strings.Join(escaped, "|"))
	}
	return &h
}

// HandleEvent implements the ingest handler's contract: extract, strip
// mentions, detect URLs, build the job, enqueue it. Any failure is
// logged and the event dropped — the handler never invokes the agent
// directly and never returns an error to the transport.
func (h *Handler) HandleEvent(ev bus.InboundEvent) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("ingest.handle_event.panic", "recovered", r, "chat_id", ev.ChatID)
		}
	}()

	text := ev.Text
	if h.mentionPattern != nil {
		text = strings.TrimSpace(h.mentionPattern.ReplaceAllString(text, ""))
	}

	job := bus.Job{
		ChatID:    ev.ChatID,
		MessageID: ev.MessageID,
		Sender:    ev.Sender,
		Text:      text,
		HasMedia:  ev.HasMedia,
		ReplyToID: ev.ReplyToID,
		URLs:      partitionURLs(text),
		Timestamp: ev.Timestamp,
	}

	if err := h.enqueue.Enqueue(job); err != nil {
		slog.Error("ingest.enqueue_failed", "chat_id", ev.ChatID, "message_id", ev.MessageID, "error", err)
	}
}

// partitionURLs splits every URL found in text into YouTube and other
// buckets.
func partitionURLs(text string) bus.URLSet {
	var set bus.URLSet
	for _, url := range urlPattern.FindAllString(text, -1) {
		if youtubePattern.MatchString(url) {
			set.YouTube = append(set.YouTube, url)
		} else {
			set.Other = append(set.Other, url)
		}
	}
	return set
}
