package mcporchestrator

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// ErrMessagingDisabled is returned by SendMessage when inter-server
// messaging is turned off in Config.
var ErrMessagingDisabled = errors.New("mcporchestrator: inter-server messaging is disabled")

// ErrTargetServerNotFound is returned by SendMessage when to_server
// names a server that is not registered.
var ErrTargetServerNotFound = errors.New("mcporchestrator: target server not found")

// SendMessage queues a message for delivery to a registered server,
// inserted in priority order (higher priority ahead of lower). It does
// not block on delivery.
func (o *Orchestrator) SendMessage(from, to, messageType string, payload map[string]any, priority MessagePriority, ttl time.Duration) (string, error) {
	if !o.cfg.EnableInterServerMessaging {
		return "", ErrMessagingDisabled
	}

	o.mu.RLock()
	_, ok := o.servers[to]
	o.mu.RUnlock()
	if !ok {
		return "", ErrTargetServerNotFound
	}

	msg := &InterServerMessage{
		ID:          newMessageID(),
		From:        from,
		To:          to,
		Type:        messageType,
		Payload:     payload,
		Priority:    priority,
		CreatedAt:   o.now(),
		MaxAttempts: defaultMaxMessageAttempts,
	}
	if ttl > 0 {
		msg.ExpiresAt = o.now().Add(ttl)
	}

	o.msgMu.Lock()
	inserted := false
	for i, existing := range o.queue {
		if msg.Priority > existing.Priority {
			o.queue = append(o.queue[:i], append([]*InterServerMessage{msg}, o.queue[i:]...)...)
			inserted = true
			break
		}
	}
	if !inserted {
		o.queue = append(o.queue, msg)
	}
	o.msgMu.Unlock()

	slog.Debug("mcporchestrator.message_queued", "message_id", msg.ID, "from", from, "to", to)
	return msg.ID, nil
}

// messageProcessorLoop drains the queue on cfg.MessageProcessingInterval
// until ctx is cancelled.
func (o *Orchestrator) messageProcessorLoop(ctx context.Context) {
	interval := o.cfg.MessageProcessingInterval
	if interval <= 0 {
		interval = DefaultMessageProcessingInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.processMessages(ctx)
		}
	}
}

// processMessages attempts delivery of every queued message once,
// discarding expired messages and messages that have exhausted their
// delivery attempts, and requeuing the rest.
func (o *Orchestrator) processMessages(ctx context.Context) {
	o.msgMu.Lock()
	pending := o.queue
	o.queue = nil
	o.msgMu.Unlock()

	now := o.now()
	var remaining []*InterServerMessage

	for _, msg := range pending {
		if msg.expired(now) {
			slog.Warn("mcporchestrator.message_expired", "message_id", msg.ID)
			continue
		}
		if msg.Attempts >= msg.MaxAttempts {
			slog.Error("mcporchestrator.message_max_attempts", "message_id", msg.ID)
			continue
		}

		delivered := o.deliverMessage(ctx, msg)
		if delivered {
			msg.Delivered = true
			o.incrMessagesProcessed()
			slog.Debug("mcporchestrator.message_delivered", "message_id", msg.ID)
			continue
		}

		msg.Attempts++
		if msg.Attempts >= msg.MaxAttempts {
			slog.Error("mcporchestrator.message_delivery_failed", "message_id", msg.ID)
			continue
		}
		remaining = append(remaining, msg)
	}

	if len(remaining) == 0 {
		return
	}
	o.msgMu.Lock()
	o.queue = append(remaining, o.queue...)
	o.msgMu.Unlock()
}

// deliverMessage invokes the registered handler for msg's server and
// type, if any. A server with no handler for this message type is
// considered delivered, matching the original's "no specific handler,
// consider delivered" behavior.
func (o *Orchestrator) deliverMessage(ctx context.Context, msg *InterServerMessage) bool {
	o.mu.RLock()
	reg, ok := o.servers[msg.To]
	var handler MessageHandlerFunc
	if ok {
		handler = o.handlers[msg.To][msg.Type]
	}
	o.mu.RUnlock()

	if !ok || reg.Target == nil {
		return false
	}
	if handler == nil {
		slog.Debug("mcporchestrator.no_handler", "message_type", msg.Type, "server", msg.To)
		return true
	}

	if err := handler(ctx, *msg); err != nil {
		slog.Error("mcporchestrator.message_handler_error", "message_id", msg.ID, "error", err)
		return false
	}
	return true
}
