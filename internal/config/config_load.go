package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Default returns a Config with the defaults enumerated in the
// configuration reference.
func Default() *Config {
	return &Config{
		WorkerConcurrency: 8,

		EnrichmentTimeoutSeconds: 120,

		MaxChunkChars:             4096,
		DeliveryRetryMax:          3,
		DeliveryBaseBackoffMillis: 500,
		DeliverySendRateMillis:    50,

		WatchdogIntervalSeconds:  300,
		SilenceThresholdSeconds:  600,
		DurationThresholdSeconds: 7200,
		LoopThreshold:            5,
		ErrorCascadeThreshold:    5,
		ErrorCascadeWindow:       20,
		AlertCooldownSeconds:     1800,

		MCPHealthCheckIntervalSeconds: 30,
		MCPEnableInterServerMessaging: true,
		MCPEnableLoadBalancing:        true,

		KVNamespace:      "prod",
		ReenrichOnReplay: ReenrichSkip,

		Redis:   RedisConfig{Addr: "localhost:6379"},
		Archive: ArchiveConfig{Path: "archive.db"},
		Logs:    LogsConfig{BaseDir: "logs"},
	}
}

// Load reads config from a YAML file, then overlays environment
// variables for secrets. A local .env file, if present, is loaded into
// the process environment first via godotenv — the same dev-time
// secret-loading pattern as the rest of the pack.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays secret environment variables onto the
// config. Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envStr("BRIDGE_REDIS_ADDR", &c.Redis.Addr)
	envStr("BRIDGE_REDIS_PASSWORD", &c.Redis.Password)
	envStr("BRIDGE_ARCHIVE_PATH", &c.Archive.Path)
	envStr("BRIDGE_TELEGRAM_TOKEN", &c.Telegram.Token)
	envStr("BRIDGE_TELEGRAM_PROXY", &c.Telegram.Proxy)
}
