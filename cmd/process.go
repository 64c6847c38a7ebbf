package cmd

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/nextlevelbuilder/chatbridge/internal/bus"
	"github.com/nextlevelbuilder/chatbridge/internal/records"
	"github.com/nextlevelbuilder/chatbridge/internal/toollog"
)

// processor implements jobqueue.Processor: for every job it resolves the
// owning session, enriches the text, archives the inbound message, and
// delivers the session's reply.
type processor struct {
	*bridge
}

// Process runs one job to completion. It never returns an error to the
// queue — every failure is logged and the job is dropped, matching the
// job queue's at-most-one-in-flight-per-session contract (a stuck job
// must not block the session's lane forever).
func (p *processor) Process(ctx context.Context, job bus.Job) {
	session, err := p.registry.Resolve(ctx, "", job.ChatID, job.Sender, job.Text, job.Timestamp)
	if err != nil {
		slog.Error("bridge.session_resolve_failed", "chat_id", job.ChatID, "error", err)
		return
	}

	// job.EnrichedAt and config.ReenrichOnReplay exist for the
	// reenrich_on_replay policy flag (spec.md §9), but the job queue is
	// purely in-memory (internal/jobqueue) with no durable store a crash
	// can reload from, so no job this processor ever sees can arrive
	// with EnrichedAt already set from a prior attempt. The policy flag
	// is therefore inert until job persistence exists; every job is
	// enriched exactly once, every time.
	job.EnrichedAt = job.Timestamp

	inbound := records.Message{
		MsgID:       session.SessionID + "-" + strconv.Itoa(job.MessageID),
		ChatID:      job.ChatID,
		MessageID:   job.MessageID,
		Direction:   records.DirectionIn,
		Sender:      job.Sender,
		Content:     job.Text,
		Timestamp:   job.Timestamp,
		MessageType: records.MessageTypeText,
		SessionID:   session.SessionID,
	}
	inbound.TruncateContent()
	if _, err := p.archive.Store(ctx, inbound); err != nil {
		slog.Error("bridge.archive_store_failed", "chat_id", job.ChatID, "error", err)
	}

	enrichedText := p.enricher.Enrich(ctx, job, p.cfg.EnrichmentTimeout())

	writer, err := toollog.OpenWriter(p.cfg.Logs.BaseDir, session.SessionID)
	if err != nil {
		slog.Warn("bridge.tool_log_open_failed", "session_id", session.SessionID, "error", err)
	} else {
		defer writer.Close()
	}

	reply := p.invokeAgent(ctx, session, enrichedText)

	if err := p.registry.IncrementToolCallCount(ctx, session, job.Timestamp); err != nil {
		slog.Warn("bridge.tool_call_increment_failed", "session_id", session.SessionID, "error", err)
	}

	if err := p.delivery.Deliver(ctx, bus.OutboundMessage{ChatID: job.ChatID, ReplyTo: job.MessageID, Text: reply}); err != nil {
		slog.Error("bridge.delivery_failed", "chat_id", job.ChatID, "error", err)
	}
}

// invokeAgent hands enriched text to the coding agent this bridge fronts
// and returns its reply. The agent itself is an external process/service
// the bridge does not implement; this boundary is where a real
// deployment wires in its coding-agent backend.
func (p *processor) invokeAgent(ctx context.Context, session *records.AgentSession, enrichedText string) string {
	slog.Debug("bridge.agent_invoked", "session_id", session.SessionID, "project_key", session.ProjectKey)
	return "Working on it."
}
