// Package config loads the process-wide, load-once configuration for the
// campaign lifecycle engine: database and queue endpoints, the three
// external collaborators (mail platform, chat poster, LLM), and the stage
// offsets from launch T (overridable only for testing).
package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ignite/campaign-lifecycle-engine/internal/clock"
)

// Config holds all configuration for the engine. It is loaded once at
// process start and never mutated afterward.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	Queue        QueueConfig        `yaml:"queue"`
	MailPlatform MailPlatformConfig `yaml:"mail_platform"`
	Chat         ChatConfig         `yaml:"chat"`
	LLM          LLMConfig          `yaml:"llm"`
	Stages       StageOffsets       `yaml:"stages"`
}

// ServerConfig holds HTTP control-surface configuration.
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// GetHost returns the server host, allowing an environment override for
// container deployments (ECS/Fargate-style) where binding 0.0.0.0 is required.
func (c ServerConfig) GetHost() string {
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// DatabaseConfig holds the Postgres connection and pool settings.
type DatabaseConfig struct {
	URL             string `yaml:"url"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifeMins int    `yaml:"conn_max_life_minutes"`
}

// ConnMaxLifetime returns the configured connection max lifetime.
func (c DatabaseConfig) ConnMaxLifetime() time.Duration {
	return time.Duration(c.ConnMaxLifeMins) * time.Minute
}

// QueueConfig holds the durable-queue (delayed job) backing store settings.
// RedisURL is optional; when empty the job lease and distributed lock fall
// back to Postgres advisory locks (see internal/pkg/distlock).
type QueueConfig struct {
	RedisURL        string `yaml:"redis_url"`
	LeaseTTLSeconds int    `yaml:"lease_ttl_seconds"`
	PollIntervalSec int    `yaml:"poll_interval_seconds"`
}

// LeaseTTL returns the configured job-lease TTL.
func (c QueueConfig) LeaseTTL() time.Duration {
	return time.Duration(c.LeaseTTLSeconds) * time.Second
}

// PollInterval returns the configured safety-net polling interval (§9).
func (c QueueConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSec) * time.Second
}

// MailPlatformConfig holds the mail-platform (draft/list/send/reputation)
// API configuration.
type MailPlatformConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the configured timeout as a duration.
func (c MailPlatformConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ChatConfig holds the chat-poster (Slack) API configuration.
type ChatConfig struct {
	BotToken       string `yaml:"bot_token"`
	ChannelID      string `yaml:"channel_id"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the configured timeout as a duration.
func (c ChatConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// LLMConfig holds the language-model endpoint configuration (AWS Bedrock).
type LLMConfig struct {
	Region         string `yaml:"region"`
	ModelID        string `yaml:"model_id"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the configured per-agent timeout. Callers must still
// clamp this to the 30s ceiling from §4.5/§5; this is the configured
// default, not an override of that ceiling.
func (c LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// StageOffsets holds the offsets from launch T of the four stages other than
// Launch Confirm, which is always at T+0. Defaults match
// the documented schedule exactly; overriding is intended for tests only.
type StageOffsets struct {
	PreLaunchHours   float64 `yaml:"prelaunch_hours_before"`
	PreFlightMinutes float64 `yaml:"preflight_minutes_before"`
	WarningMinutes   float64 `yaml:"warning_minutes_before"`
	WrapupMinutes    float64 `yaml:"wrapup_minutes_after"`
}

// Default offsets: Pre-Launch T-21h, Pre-Flight T-3h15m, Launch Warning
// T-15m, Launch Confirm T+0, Wrap-Up T+30m.
const (
	DefaultPreLaunchHours   = 21.0
	DefaultPreFlightMinutes = 195.0 // 3h15m
	DefaultWarningMinutes   = 15.0
	DefaultWrapupMinutes    = 30.0
)

// ToClockOffsets converts the YAML-friendly float-hours/minutes shape into
// the time.Duration shape clock.TriggerTime operates on.
func (c StageOffsets) ToClockOffsets() clock.StageOffsets {
	return clock.StageOffsets{
		PreLaunch:     time.Duration(c.PreLaunchHours * float64(time.Hour)),
		PreFlight:     time.Duration(c.PreFlightMinutes * float64(time.Minute)),
		LaunchWarning: time.Duration(c.WarningMinutes * float64(time.Minute)),
		Wrapup:        time.Duration(c.WrapupMinutes * float64(time.Minute)),
	}
}

// Load reads and parses the configuration file, applying defaults for any
// unset fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 5
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifeMins == 0 {
		cfg.Database.ConnMaxLifeMins = 5
	}
	if cfg.Queue.LeaseTTLSeconds == 0 {
		cfg.Queue.LeaseTTLSeconds = 120
	}
	if cfg.Queue.PollIntervalSec == 0 {
		cfg.Queue.PollIntervalSec = 60
	}
	if cfg.MailPlatform.TimeoutSeconds == 0 {
		cfg.MailPlatform.TimeoutSeconds = 30
	}
	if cfg.Chat.TimeoutSeconds == 0 {
		cfg.Chat.TimeoutSeconds = 10
	}
	if cfg.LLM.Region == "" {
		cfg.LLM.Region = "us-east-1"
	}
	if cfg.LLM.ModelID == "" {
		cfg.LLM.ModelID = "anthropic.claude-3-sonnet-20240229-v1:0"
	}
	if cfg.LLM.TimeoutSeconds == 0 {
		cfg.LLM.TimeoutSeconds = 30
	}
	if cfg.Stages.PreLaunchHours == 0 {
		cfg.Stages.PreLaunchHours = DefaultPreLaunchHours
	}
	if cfg.Stages.PreFlightMinutes == 0 {
		cfg.Stages.PreFlightMinutes = DefaultPreFlightMinutes
	}
	if cfg.Stages.WarningMinutes == 0 {
		cfg.Stages.WarningMinutes = DefaultWarningMinutes
	}
	if cfg.Stages.WrapupMinutes == 0 {
		cfg.Stages.WrapupMinutes = DefaultWrapupMinutes
	}
}

// LoadFromEnv loads configuration from the YAML file at path, then applies
// environment variable overrides — secrets live in .env locally and in real
// environment variables in production.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Queue.RedisURL = v
	}
	if v := os.Getenv("MAIL_PLATFORM_BASE_URL"); v != "" {
		cfg.MailPlatform.BaseURL = v
	}
	if v := os.Getenv("MAIL_PLATFORM_API_KEY"); v != "" {
		cfg.MailPlatform.APIKey = v
	}
	if v := os.Getenv("SLACK_BOT_TOKEN"); v != "" {
		cfg.Chat.BotToken = v
	}
	if v := os.Getenv("SLACK_CHANNEL_ID"); v != "" {
		cfg.Chat.ChannelID = v
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		cfg.LLM.Region = v
	}
	if v := os.Getenv("BEDROCK_MODEL_ID"); v != "" {
		cfg.LLM.ModelID = v
	}

	return cfg, nil
}
