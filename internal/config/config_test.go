package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/chatbridge/internal/config"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	require.Equal(t, 8, cfg.WorkerConcurrency)
	require.Equal(t, config.ReenrichSkip, cfg.ReenrichOnReplay)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("worker_concurrency: 16\nmax_chunk_chars: 2048\n"), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, 16, cfg.WorkerConcurrency)
	require.Equal(t, 2048, cfg.MaxChunkChars)
	require.Equal(t, 3, cfg.DeliveryRetryMax, "unset fields keep their default value")
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("redis:\n  addr: file-value:6379\n"), 0o644))

	t.Setenv("BRIDGE_REDIS_ADDR", "env-value:6379")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, "env-value:6379", cfg.Redis.Addr)
}
