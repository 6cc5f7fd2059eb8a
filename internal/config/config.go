// Package config loads deployment configuration for plunkd: queue worker
// pool sizing, batch defaults, cache TTLs, HTTP client timeouts, and the
// OTel exporter endpoint. Precedence is defaults < YAML file < environment,
// mirroring the layering internal/log.FromEnv applies to logging alone.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/driaug/plunk/internal/log"
	"github.com/driaug/plunk/internal/perr"
	"github.com/driaug/plunk/internal/tracing"
)

// Config is the full set of deployment knobs for a plunkd process.
type Config struct {
	Log Log `yaml:"log"`

	// QueueWorkers is the size of the delayed-job worker pool.
	// Default: runtime.NumCPU()*2.
	QueueWorkers int `yaml:"queue_workers"`

	// QueuePollInterval is how often idle workers re-check the ready heap.
	QueuePollInterval time.Duration `yaml:"queue_poll_interval"`

	// CampaignBatchSize is the default recipients-per-batch for campaign
	// sends.
	CampaignBatchSize int `yaml:"campaign_batch_size"`

	// CampaignFanoutConcurrency bounds parallel sends within one batch.
	CampaignFanoutConcurrency int `yaml:"campaign_fanout_concurrency"`

	// WorkflowCacheTTL is the enabled-workflow lookup cache lifetime.
	WorkflowCacheTTL time.Duration `yaml:"workflow_cache_ttl"`

	// ActivityStatsCacheTTL is the activity-stats cache lifetime.
	ActivityStatsCacheTTL time.Duration `yaml:"activity_stats_cache_ttl"`

	// RedisAddr, when non-empty, backs internal/cache with Redis; empty
	// falls back to the in-memory TTL map.
	RedisAddr string `yaml:"redis_addr"`

	// HTTPTimeout bounds outbound webhook/provider calls.
	HTTPTimeout time.Duration `yaml:"http_timeout"`

	// StorePath is the sqlite database file path.
	StorePath string `yaml:"store_path"`

	Tracing tracing.Config `yaml:"-"`
}

// Log mirrors internal/log.Config in YAML-friendly form.
type Log struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	AddSource bool   `yaml:"add_source"`
}

// Default returns a Config tuned for sane standalone operation with no
// external config file.
func Default() Config {
	return Config{
		Log: Log{
			Level:  "info",
			Format: "json",
		},
		QueueWorkers:              0, // 0 => runtime.NumCPU()*2, resolved by the caller
		QueuePollInterval:         250 * time.Millisecond,
		CampaignBatchSize:         500,
		CampaignFanoutConcurrency: 20,
		WorkflowCacheTTL:          5 * time.Minute,
		ActivityStatsCacheTTL:     300 * time.Second,
		HTTPTimeout:               30 * time.Second,
		StorePath:                 "plunkd.db",
		Tracing:                   tracing.DefaultConfig(),
	}
}

// Load builds a Config by applying, in order: defaults, an optional YAML
// file at path (skipped if path is empty or the file doesn't exist), then
// environment variable overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, &perr.ConfigError{Key: "path", Reason: "failed to read config file", Cause: err}
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, &perr.ConfigError{Key: "path", Reason: "failed to parse YAML config", Cause: err}
		}
	}

	applyEnv(&cfg)

	if cfg.QueueWorkers < 0 {
		return cfg, &perr.ConfigError{Key: "queue_workers", Reason: "must be >= 0"}
	}
	if cfg.CampaignBatchSize <= 0 {
		return cfg, &perr.ConfigError{Key: "campaign_batch_size", Reason: "must be > 0"}
	}

	return cfg, nil
}

func applyEnv(cfg *Config) {
	logCfg := log.FromEnv()
	cfg.Log.Level = logCfg.Level
	cfg.Log.Format = string(logCfg.Format)
	cfg.Log.AddSource = logCfg.AddSource

	if v := os.Getenv("PLUNK_QUEUE_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.QueueWorkers = n
		}
	}
	if v := os.Getenv("PLUNK_CAMPAIGN_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.CampaignBatchSize = n
		}
	}
	if v := os.Getenv("PLUNK_REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("PLUNK_STORE_PATH"); v != "" {
		cfg.StorePath = v
	}
	if v := os.Getenv("PLUNK_HTTP_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.HTTPTimeout = d
		}
	}
	if v := os.Getenv("PLUNK_TRACING_ENABLED"); v == "true" || v == "1" {
		cfg.Tracing.Enabled = true
	}
	if v := os.Getenv("PLUNK_OTEL_ENDPOINT"); v != "" {
		cfg.Tracing.Enabled = true
		cfg.Tracing.Exporters = []tracing.ExporterConfig{{Type: "otlp", Endpoint: v}}
	}
}

// ToLogConfig converts the Log section into an internal/log.Config.
func (c Config) ToLogConfig() *log.Config {
	return &log.Config{
		Level:     c.Log.Level,
		Format:    log.Format(c.Log.Format),
		Output:    os.Stderr,
		AddSource: c.Log.AddSource,
	}
}

// ResolvedQueueWorkers returns QueueWorkers, substituting the
// runtime.NumCPU()*2 default when unset.
func (c Config) ResolvedQueueWorkers(numCPU int) int {
	if c.QueueWorkers > 0 {
		return c.QueueWorkers
	}
	return numCPU * 2
}

// Validate re-checks invariants after a manual mutation (e.g. in tests).
func (c Config) Validate() error {
	if c.CampaignFanoutConcurrency <= 0 {
		return fmt.Errorf("campaign_fanout_concurrency must be > 0")
	}
	return nil
}
