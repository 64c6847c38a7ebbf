// Package config holds the bridge's runtime configuration: tunables for
// every §4 component plus transport credentials and storage paths.
package config

import "time"

// ReenrichPolicy names what a worker does with a job resumed after a crash
// before its enrichment completed. The job queue keeps jobs only in
// memory, so no job is ever resumed and no code path reads this setting.
type ReenrichPolicy string

const (
	ReenrichSkip  ReenrichPolicy = "skip"
	ReenrichRetry ReenrichPolicy = "retry"
)

// Config is the bridge's full runtime configuration.
type Config struct {
	WorkerConcurrency int `yaml:"worker_concurrency"`

	EnrichmentTimeoutSeconds int `yaml:"enrichment_timeout_seconds"`

	MaxChunkChars     int `yaml:"max_chunk_chars"`
	DeliveryRetryMax  int `yaml:"delivery_retry_max"`
	DeliveryBaseBackoffMillis int `yaml:"delivery_base_backoff_millis"`
	DeliverySendRateMillis    int `yaml:"delivery_send_rate_millis"`

	WatchdogIntervalSeconds  int `yaml:"watchdog_interval_seconds"`
	SilenceThresholdSeconds  int `yaml:"silence_threshold_seconds"`
	DurationThresholdSeconds int `yaml:"duration_threshold_seconds"`
	LoopThreshold            int `yaml:"loop_threshold"`
	ErrorCascadeThreshold    int `yaml:"error_cascade_threshold"`
	ErrorCascadeWindow       int `yaml:"error_cascade_window"`
	AlertCooldownSeconds     int `yaml:"alert_cooldown_seconds"`

	MCPHealthCheckIntervalSeconds int  `yaml:"mcp_health_check_interval_seconds"`
	MCPEnableInterServerMessaging bool `yaml:"mcp_enable_inter_server_messaging"`
	MCPEnableLoadBalancing        bool `yaml:"mcp_enable_load_balancing"`

	KVNamespace    string `yaml:"kv_namespace"`
	ReenrichOnReplay ReenrichPolicy `yaml:"reenrich_on_replay"`

	Redis    RedisConfig    `yaml:"redis"`
	Archive  ArchiveConfig  `yaml:"archive"`
	Logs     LogsConfig     `yaml:"logs"`
	Telegram TelegramConfig `yaml:"telegram"`
}

// RedisConfig points at the KV store's backing Redis instance.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// ArchiveConfig points at the SQLite message archive.
type ArchiveConfig struct {
	Path string `yaml:"path"`
}

// LogsConfig points at the log root; per-session tool-use logs live under
// <base_dir>/sessions/<session_id>/.
type LogsConfig struct {
	BaseDir string `yaml:"base_dir"`
}

// TelegramConfig holds the Telegram bot-API transport's credentials.
type TelegramConfig struct {
	Token string `yaml:"token"`
	Proxy string `yaml:"proxy"`
	BotHandles []string `yaml:"bot_handles"`
}

// EnrichmentTimeout converts the configured second count to a Duration.
func (c *Config) EnrichmentTimeout() time.Duration {
	return time.Duration(c.EnrichmentTimeoutSeconds) * time.Second
}

func (c *Config) WatchdogInterval() time.Duration {
	return time.Duration(c.WatchdogIntervalSeconds) * time.Second
}

func (c *Config) SilenceThreshold() time.Duration {
	return time.Duration(c.SilenceThresholdSeconds) * time.Second
}

func (c *Config) DurationThreshold() time.Duration {
	return time.Duration(c.DurationThresholdSeconds) * time.Second
}

func (c *Config) AlertCooldown() time.Duration {
	return time.Duration(c.AlertCooldownSeconds) * time.Second
}

func (c *Config) MCPHealthCheckInterval() time.Duration {
	return time.Duration(c.MCPHealthCheckIntervalSeconds) * time.Second
}

func (c *Config) DeliveryBaseBackoff() time.Duration {
	return time.Duration(c.DeliveryBaseBackoffMillis) * time.Millisecond
}

func (c *Config) DeliverySendRate() time.Duration {
	return time.Duration(c.DeliverySendRateMillis) * time.Millisecond
}
