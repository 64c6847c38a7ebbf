package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/chatbridge/internal/bus"
)

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the bridge: ingest, enrich, dispatch, and deliver",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBridge()
		},
	}
}

func runBridge() error {
	b, err := bootstrap()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := replayDeadLettersAtStartup(ctx, b); err != nil {
		slog.Warn("bridge.dead_letter_replay_failed", "error", err)
	}

	b.transport.OnMessage(func(ev bus.InboundEvent) {
		b.ingest.HandleEvent(ev)
	})
	if err := b.transport.Connect(ctx); err != nil {
		return err
	}

	go b.watchdog.Run(ctx)

	<-ctx.Done()
	slog.Info("bridge.shutting_down")

	_ = b.transport.Disconnect(context.Background())
	b.queue.Shutdown()
	_ = b.archive.Close()
	_ = b.kv.Close()
	return nil
}

// replayDeadLettersAtStartup replays any dead letters persisted before a
// previous process exit, per the dead-letter store's single-replayer-
// goroutine-at-startup contract.
func replayDeadLettersAtStartup(ctx context.Context, b *bridge) error {
	return b.deadLetters.Replay(ctx, deadLetterSender{b.transport})
}
