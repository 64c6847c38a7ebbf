package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

func replayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "replay",
		Short: "Replay persisted dead letters through the transport",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := bootstrap()
			if err != nil {
				return err
			}
			defer func() {
				_ = b.archive.Close()
				_ = b.kv.Close()
			}()

			ctx := context.Background()
			if err := b.transport.Connect(ctx); err != nil {
				return fmt.Errorf("connect transport: %w", err)
			}
			defer b.transport.Disconnect(ctx)

			if err := replayDeadLettersAtStartup(ctx, b); err != nil {
				return fmt.Errorf("replay dead letters: %w", err)
			}
			slog.Info("bridge.replay_complete")
			return nil
		},
	}
}
