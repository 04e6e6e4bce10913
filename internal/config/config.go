// Package config loads and validates harvester configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Crawler   CrawlerConfig   `mapstructure:"crawler"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Render    RenderConfig    `mapstructure:"render"`
	DB        DBConfig        `mapstructure:"db"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Publish   PublishConfig   `mapstructure:"publish"`
	AI        AIConfig        `mapstructure:"ai"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls the ops HTTP server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// CrawlerConfig governs politeness defaults applied when a host has no
// DomainPolicy row.
type CrawlerConfig struct {
	UserAgent        string `mapstructure:"user_agent"`
	Contact          string `mapstructure:"contact"`
	PerHostMax       int    `mapstructure:"per_host_max"`
	MinIntervalMs    int    `mapstructure:"min_interval_ms"`
	MaxPageBytes     int64  `mapstructure:"max_page_bytes"`
	RobotsCacheHours int    `mapstructure:"robots_cache_hours"`
}

// HTTPConfig configures HTTP client timeout and retry behavior.
type HTTPConfig struct {
	TimeoutSeconds   int `mapstructure:"timeout_seconds"`
	MaxRetries       int `mapstructure:"max_retries"`
	BackoffInitialMs int `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int `mapstructure:"backoff_max_ms"`
}

// SchedulerConfig controls the crawl loop.
type SchedulerConfig struct {
	TickSpec   string `mapstructure:"tick_spec"`
	Workers    int    `mapstructure:"workers"`
	ClaimLimit int    `mapstructure:"claim_limit"`
}

// RenderConfig configures the optional headless rendering step.
type RenderConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	NavTimeoutSec int  `mapstructure:"nav_timeout_seconds"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// ArchiveConfig selects the raw page archive backend.
type ArchiveConfig struct {
	Provider  string `mapstructure:"provider"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// PublishConfig selects the crawl outcome event backend.
type PublishConfig struct {
	Provider  string `mapstructure:"provider"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// AIConfig configures the optional LLM extraction fallback.
type AIConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HARVESTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("crawler.user_agent", "joblens-harvester/1.0")
	v.SetDefault("crawler.contact", "crawl@joblens.example")
	v.SetDefault("crawler.per_host_max", 1)
	v.SetDefault("crawler.min_interval_ms", 2000)
	v.SetDefault("crawler.max_page_bytes", 2<<20)
	v.SetDefault("crawler.robots_cache_hours", 12)
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("http.max_retries", 2)
	v.SetDefault("http.backoff_initial_ms", 2000)
	v.SetDefault("http.backoff_max_ms", 10000)
	v.SetDefault("scheduler.tick_spec", "@every 5m")
	v.SetDefault("scheduler.workers", 4)
	v.SetDefault("scheduler.claim_limit", 20)
	v.SetDefault("render.enabled", false)
	v.SetDefault("render.nav_timeout_seconds", 25)
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("archive.provider", "noop")
	v.SetDefault("archive.prefix", "pages")
	v.SetDefault("publish.provider", "noop")
	v.SetDefault("ai.enabled", false)
	v.SetDefault("ai.model", "gemini-1.5-flash")
	v.SetDefault("logging.development", false)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Crawler.UserAgent == "" {
		return fmt.Errorf("crawler.user_agent must be set")
	}
	if c.Crawler.Contact == "" {
		return fmt.Errorf("crawler.contact must be set")
	}
	if c.Crawler.MinIntervalMs <= 0 {
		return fmt.Errorf("crawler.min_interval_ms must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.Scheduler.Workers <= 0 {
		return fmt.Errorf("scheduler.workers must be > 0")
	}
	if c.Archive.Provider == "gcs" && c.Archive.GCSBucket == "" {
		return fmt.Errorf("archive.gcs_bucket must be set when archive.provider is gcs")
	}
	if c.Publish.Provider == "pubsub" && (c.Publish.ProjectID == "" || c.Publish.TopicName == "") {
		return fmt.Errorf("publish.project_id and publish.topic_name must be set when publish.provider is pubsub")
	}
	if c.AI.Enabled && c.AI.APIKey == "" {
		return fmt.Errorf("ai.api_key must be set when ai is enabled")
	}
	return nil
}

// HTTPTimeout converts the configured timeout to a duration.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// RobotsTTL converts the robots cache window to a duration.
func (c Config) RobotsTTL() time.Duration {
	return time.Duration(c.Crawler.RobotsCacheHours) * time.Hour
}
