// Package transport adapts concrete chat-platform SDKs to the
// bus.Transport interface the bridge depends on.
package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/mymmrac/telego"

	"github.com/nextlevelbuilder/chatbridge/internal/bus"
)

// TelegramConfig configures the Telegram bot-API transport.
type TelegramConfig struct {
	Token string
	Proxy string
}

// Telegram implements bus.Transport over the Telegram Bot API using long
// polling, adapted from the teacher's channels/telegram package.
type Telegram struct {
	bot    *telego.Bot
	cfg    TelegramConfig
	cancel context.CancelFunc
	done   chan struct{}

	handlerMu sync.RWMutex
	handler   func(bus.InboundEvent)

	seenMu sync.Mutex
	seen   map[string]bus.InboundEvent // "chatID:messageID" -> event, for reply-chain lookups
}

// NewTelegram builds a Telegram transport from cfg. It does not connect
// until Connect is called.
func NewTelegram(cfg TelegramConfig) (*Telegram, error) {
	var opts []telego.BotOption
	if cfg.Proxy != "" {
		proxyURL, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, fmt.Errorf("transport: invalid proxy url %q: %w", cfg.Proxy, err)
		}
		opts = append(opts, telego.WithHTTPClient(&http.Client{
			Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)},
		}))
	}

	bot, err := telego.NewBot(cfg.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("transport: create telegram bot: %w", err)
	}

	return &Telegram{
		bot:  bot,
		cfg:  cfg,
		seen: make(map[string]bus.InboundEvent),
	}, nil
}

// OnMessage registers the callback invoked for every inbound message.
// Must be called before Connect.
func (t *Telegram) OnMessage(handler func(bus.InboundEvent)) {
	t.handlerMu.Lock()
	t.handler = handler
	t.handlerMu.Unlock()
}

// Connect starts long polling for updates.
func (t *Telegram) Connect(ctx context.Context) error {
	pollCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.done = make(chan struct{})

	updates, err := t.bot.UpdatesViaLongPolling(pollCtx, &telego.GetUpdatesParams{
		Timeout:        30,
		AllowedUpdates: []string{"message"},
	})
	if err != nil {
		cancel()
		return &bus.TransientError{Err: fmt.Errorf("transport: start long polling: %w", err)}
	}

	slog.Info("transport.telegram.connected", "username", t.bot.Username())

	go func() {
		defer close(t.done)
		for {
			select {
			case <-pollCtx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				if update.Message != nil {
					t.dispatch(update.Message)
				}
			}
		}
	}()
	return nil
}

// Disconnect stops long polling and waits for the polling goroutine to exit.
func (t *Telegram) Disconnect(ctx context.Context) error {
	if t.cancel != nil {
		t.cancel()
	}
	if t.done != nil {
		select {
		case <-t.done:
		case <-time.After(10 * time.Second):
			slog.Warn("transport.telegram.stop_timeout")
		case <-ctx.Done():
		}
	}
	return nil
}

func (t *Telegram) dispatch(msg *telego.Message) {
	ev := bus.InboundEvent{
		ChatID:    strconv.FormatInt(msg.Chat.ID, 10),
		MessageID: msg.MessageID,
		Sender:    senderName(msg),
		Text:      messageText(msg),
		HasMedia:  hasMedia(msg),
		Timestamp: float64(msg.Date),
	}
	if msg.ReplyToMessage != nil {
		ev.ReplyToID = msg.ReplyToMessage.MessageID
	}

	t.seenMu.Lock()
	t.seen[seenKey(ev.ChatID, ev.MessageID)] = ev
	t.seenMu.Unlock()

	t.handlerMu.RLock()
	handler := t.handler
	t.handlerMu.RUnlock()
	if handler != nil {
		handler(ev)
	}
}

func seenKey(chatID string, messageID int) string {
	return chatID + ":" + strconv.Itoa(messageID)
}

func senderName(msg *telego.Message) string {
	if msg.From == nil {
		return ""
	}
	if msg.From.Username != "" {
		return msg.From.Username
	}
	return msg.From.FirstName
}

func messageText(msg *telego.Message) string {
	if msg.Text != "" {
		return msg.Text
	}
	return msg.Caption
}

func hasMedia(msg *telego.Message) bool {
	return len(msg.Photo) > 0 || msg.Video != nil || msg.Voice != nil ||
		msg.Audio != nil || msg.Document != nil
}

// SendMessage sends text to chatID, optionally as a reply to replyTo.
// Telegram's 4096-character message limit is enforced by the delivery
// subsystem's chunking, not here.
func (t *Telegram) SendMessage(ctx context.Context, chatID string, replyTo int, text string) (string, error) {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return "", &bus.PermanentError{Err: fmt.Errorf("transport: invalid chat id %q: %w", chatID, err)}
	}

	params := &telego.SendMessageParams{
		ChatID: telego.ChatID{ID: id},
		Text:   text,
	}
	if replyTo != 0 {
		params.ReplyParameters = &telego.ReplyParameters{MessageID: replyTo}
	}

	msg, err := t.bot.SendMessage(ctx, params)
	if err != nil {
		return "", classifySendError(err)
	}
	return strconv.Itoa(msg.MessageID), nil
}

// classifySendError maps a telego send failure to a TransientError for
// the delivery subsystem's retry logic. The bot-API client surfaces
// rate limits and network failures the same way it surfaces permanent
// rejections (chat not found, bot blocked), so every failure is treated
// as retryable here; a chat that keeps rejecting sends is caught by the
// delivery subsystem's bounded retry count and lands in the dead-letter
// store instead of retrying forever.
func classifySendError(err error) error {
	return &bus.TransientError{Err: err}
}

// GetMessages looks up previously seen inbound messages by id, for
// reply-chain traversal. Only messages received since this process
// started are available; Telegram's Bot API has no general
// getMessages-by-id endpoint.
func (t *Telegram) GetMessages(ctx context.Context, chatID string, ids []int) ([]bus.InboundEvent, error) {
	t.seenMu.Lock()
	defer t.seenMu.Unlock()

	out := make([]bus.InboundEvent, 0, len(ids))
	for _, id := range ids {
		if ev, ok := t.seen[seenKey(chatID, id)]; ok {
			out = append(out, ev)
		}
	}
	return out, nil
}
