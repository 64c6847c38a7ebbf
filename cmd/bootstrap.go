package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nextlevelbuilder/chatbridge/internal/archive"
	"github.com/nextlevelbuilder/chatbridge/internal/bus"
	"github.com/nextlevelbuilder/chatbridge/internal/config"
	"github.com/nextlevelbuilder/chatbridge/internal/deadletter"
	"github.com/nextlevelbuilder/chatbridge/internal/delivery"
	"github.com/nextlevelbuilder/chatbridge/internal/enrichment"
	"github.com/nextlevelbuilder/chatbridge/internal/ingest"
	"github.com/nextlevelbuilder/chatbridge/internal/jobqueue"
	"github.com/nextlevelbuilder/chatbridge/internal/kvstore"
	"github.com/nextlevelbuilder/chatbridge/internal/sessionregistry"
	"github.com/nextlevelbuilder/chatbridge/internal/transport"
	"github.com/nextlevelbuilder/chatbridge/internal/watchdog"
)

// bridge holds every wired component of a running bridge instance.
type bridge struct {
	cfg *config.Config

	kv       *kvstore.Client
	archive  *archive.Store
	deadLetters *deadletter.Store

	transport *transport.Telegram
	registry  *sessionregistry.Registry
	enricher  *enrichment.Stage
	delivery  *delivery.Subsystem
	queue     *jobqueue.Queue
	ingest    *ingest.Handler
	watchdog  *watchdog.Watchdog
}

func setupLogging() {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))
}

// bootstrap loads config and wires every component, but does not start
// any background loop or connect to the transport.
func bootstrap() (*bridge, error) {
	setupLogging()

	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	kv := kvstore.NewFromRedis(rdb, kvstore.Namespace(cfg.KVNamespace))

	archiveStore, err := archive.Open(cfg.Archive.Path, kv)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	if err := archiveStore.Migrate(); err != nil {
		return nil, fmt.Errorf("migrate archive: %w", err)
	}

	deadLetters := deadletter.New(kv)

	tg, err := transport.NewTelegram(transport.TelegramConfig{Token: cfg.Telegram.Token, Proxy: cfg.Telegram.Proxy})
	if err != nil {
		return nil, fmt.Errorf("create telegram transport: %w", err)
	}

	classifier := sessionregistry.HeuristicClassifier{}
	registry := sessionregistry.New(kv, classifier, cfg.SilenceThreshold())

	enricher := enrichment.New(nil, nil, nil, replyChainFetcher{tg}, cfg.EnrichmentTimeout())

	deliverySub := delivery.New(tg, deadLetters, cfg.MaxChunkChars, cfg.DeliveryRetryMax, cfg.DeliveryBaseBackoff(), cfg.DeliverySendRate())

	wd := watchdog.New(registry, alerter{deliverySub}, watchdog.Config{
		Interval:          cfg.WatchdogInterval(),
		SilenceThreshold:  cfg.SilenceThreshold(),
		DurationThreshold: cfg.DurationThreshold(),
		LoopThreshold:     cfg.LoopThreshold,
		CascadeThreshold:  cfg.ErrorCascadeThreshold,
		CascadeWindow:     cfg.ErrorCascadeWindow,
		AlertCooldown:     cfg.AlertCooldown(),
		LogBaseDir:        cfg.Logs.BaseDir,
	})

	b := &bridge{
		cfg:         cfg,
		kv:          kv,
		archive:     archiveStore,
		deadLetters: deadLetters,
		transport:   tg,
		registry:    registry,
		enricher:    enricher,
		delivery:    deliverySub,
		watchdog:    wd,
	}

	proc := &processor{bridge: b}
	b.queue = jobqueue.New(cfg.WorkerConcurrency, proc, 30*time.Second)
	b.ingest = ingest.New(cfg.Telegram.BotHandles, b.queue)

	return b, nil
}

// replyChainFetcher adapts bus.Transport.GetMessages to the enrichment
// stage's narrower ReplyChainFetcher capability, walking parent links
// one at a time up to maxDepth.
type replyChainFetcher struct {
	t *transport.Telegram
}

func (f replyChainFetcher) FetchChain(ctx context.Context, chatID string, replyToID int, maxDepth int) ([]bus.InboundEvent, error) {
	var chain []bus.InboundEvent
	nextID := replyToID
	for i := 0; i < maxDepth && nextID != 0; i++ {
		events, err := f.t.GetMessages(ctx, chatID, []int{nextID})
		if err != nil || len(events) == 0 {
			break
		}
		ev := events[0]
		chain = append(chain, ev)
		nextID = ev.ReplyToID
	}
	return chain, nil
}

// alerter adapts the delivery subsystem to the watchdog's narrow
// Alerter capability, so the watchdog never holds a full delivery
// subsystem reference.
type alerter struct {
	d *delivery.Subsystem
}

func (a alerter) SendAlert(ctx context.Context, chatID, text string) error {
	return a.d.Deliver(ctx, bus.OutboundMessage{ChatID: chatID, Text: text})
}

// deadLetterSender adapts the transport to the dead-letter store's
// narrow Sender capability (error-only, no returned message id).
type deadLetterSender struct {
	t *transport.Telegram
}

func (d deadLetterSender) SendMessage(ctx context.Context, chatID string, replyTo int, text string) error {
	_, err := d.t.SendMessage(ctx, chatID, replyTo, text)
	return err
}
