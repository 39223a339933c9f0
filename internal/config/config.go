// Package config loads and validates service configuration via Viper.
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
	Capture   CaptureConfig   `mapstructure:"capture"`
	Analyzer  AnalyzerConfig  `mapstructure:"analyzer"`
	Email     EmailConfig     `mapstructure:"email"`
	Storage   StorageConfig   `mapstructure:"storage"`
	DB        DBConfig        `mapstructure:"db"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// CaptureConfig points at the external screenshot service.
type CaptureConfig struct {
	APIKey string `mapstructure:"api_key"`
	Origin string `mapstructure:"origin"`
}

// AnalyzerConfig configures the content analyzer endpoint.
type AnalyzerConfig struct {
	APIKey         string `mapstructure:"api_key"`
	Model          string `mapstructure:"model"`
	BaseURL        string `mapstructure:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// EmailConfig configures the notification dispatcher.
type EmailConfig struct {
	APIKey    string `mapstructure:"api_key"`
	FromEmail string `mapstructure:"from_email"`
}

// StorageConfig selects and configures the snapshot blob backend.
type StorageConfig struct {
	Provider  string `mapstructure:"provider"` // "gcs" or "memory"
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// DBConfig controls access to the relational database. An empty DSN selects
// the in-memory stores.
type DBConfig struct {
	DSN                string `mapstructure:"dsn"`
	MaxOpenConns       int    `mapstructure:"max_open_conns"`
	MinConns           int    `mapstructure:"min_conns"`
	ConnLifetimeMinute int    `mapstructure:"conn_lifetime_minutes"`
}

// QueueConfig selects and configures the workflow-start queue.
type QueueConfig struct {
	Provider     string `mapstructure:"provider"` // "pubsub" or "memory"
	ProjectID    string `mapstructure:"project_id"`
	TopicID      string `mapstructure:"topic_id"`
	Subscription string `mapstructure:"subscription"`
}

// SchedulerConfig governs batch paging and inter-page delays.
type SchedulerConfig struct {
	PageSize         int `mapstructure:"page_size"`
	BaseDelaySeconds int `mapstructure:"base_delay_seconds"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("WAYBACK")
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
	v.SetDefault("analyzer.model", "gpt-4o-mini")
	v.SetDefault("analyzer.base_url", "https://api.openai.com/v1")
	v.SetDefault("analyzer.timeout_seconds", 120)
	v.SetDefault("storage.provider", "memory")
	v.SetDefault("storage.prefix", "")
	v.SetDefault("db.max_open_conns", 8)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("db.conn_lifetime_minutes", 30)
	v.SetDefault("queue.provider", "memory")
	v.SetDefault("scheduler.page_size", 10)
	v.SetDefault("scheduler.base_delay_seconds", 30)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	switch c.Storage.Provider {
	case "memory":
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set when storage.provider is gcs")
		}
	default:
		return fmt.Errorf("storage.provider must be gcs or memory")
	}
	switch c.Queue.Provider {
	case "memory":
	case "pubsub":
		if c.Queue.ProjectID == "" || c.Queue.TopicID == "" || c.Queue.Subscription == "" {
			return fmt.Errorf("queue.project_id, queue.topic_id and queue.subscription must be set when queue.provider is pubsub")
		}
	default:
		return fmt.Errorf("queue.provider must be pubsub or memory")
	}
	if c.Scheduler.PageSize <= 0 {
		return fmt.Errorf("scheduler.page_size must be > 0")
	}
	if c.Scheduler.BaseDelaySeconds < 0 {
		return fmt.Errorf("scheduler.base_delay_seconds must be >= 0")
	}
	return nil
}

// AnalyzerTimeout converts the analyzer timeout config into a duration.
func (c Config) AnalyzerTimeout() time.Duration {
	return time.Duration(c.Analyzer.TimeoutSeconds) * time.Second
}

// SchedulerBaseDelay converts the scheduler delay config into a duration.
func (c Config) SchedulerBaseDelay() time.Duration {
	return time.Duration(c.Scheduler.BaseDelaySeconds) * time.Second
}
