package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/chatbridge/internal/archive"
	"github.com/nextlevelbuilder/chatbridge/internal/config"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the SQLite archive schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging()

			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			store, err := archive.Open(cfg.Archive.Path, nil)
			if err != nil {
				return fmt.Errorf("open archive: %w", err)
			}
			defer store.Close()

			if err := store.Migrate(); err != nil {
				return fmt.Errorf("migrate archive: %w", err)
			}
			slog.Info("archive.migrated", "path", cfg.Archive.Path)
			return nil
		},
	}
}
