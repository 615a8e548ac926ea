package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"time"

	"go.uber.org/zap"
)

// Config is the top-level configuration structure.
type Config struct {
	Server   ServerConfig   `json:"server"`
	Database DatabaseConfig `json:"database"`
	Settings SettingsConfig `json:"settings"`
	Notify   NotifyConfig   `json:"notify"`
}

type ServerConfig struct {
	Port        int    `json:"port"`
	LogLevel    string `json:"log_level"`
	SessionIdle string `json:"session_idle"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `json:"postgres"`
	Redis    RedisConfig    `json:"redis"`
}

type PostgresConfig struct {
	DSN        string `json:"dsn"`
	Migrations string `json:"migrations"`
}

type RedisConfig struct {
	URL      string `json:"url"`
	CacheTTL string `json:"cache_ttl"`
}

// SettingsConfig selects where the settings page reads and writes.
// An empty RemoteURL means the in-process settings service is used.
type SettingsConfig struct {
	RemoteURL string `json:"remote_url"`
}

type NotifyConfig struct {
	Slack   SlackNotifyConfig   `json:"slack"`
	Discord DiscordNotifyConfig `json:"discord"`
}

type SlackNotifyConfig struct {
	Enabled    bool   `json:"enabled"`
	WebhookURL string `json:"webhook_url"`
}

type DiscordNotifyConfig struct {
	Enabled   bool   `json:"enabled"`
	BotToken  string `json:"bot_token"`
	ChannelID string `json:"channel_id"`
}

// SessionIdleTimeout parses Server.SessionIdle, defaulting to 30 minutes.
func (c *Config) SessionIdleTimeout() time.Duration {
	return parseDuration(c.Server.SessionIdle, 30*time.Minute)
}

// CacheTTL parses Database.Redis.CacheTTL, defaulting to 5 minutes.
func (c *Config) CacheTTL() time.Duration {
	return parseDuration(c.Database.Redis.CacheTTL, 5*time.Minute)
}

// ListenPort returns the configured port, or 3001 when unset.
func (c *Config) ListenPort() int {
	if c.Server.Port == 0 {
		return 3001
	}
	return c.Server.Port
}

// NewLogger builds the development logger at Server.LogLevel. An empty level
// keeps the development default of debug.
func (c *Config) NewLogger() (*zap.Logger, error) {
	zc := zap.NewDevelopmentConfig()
	if c.Server.LogLevel != "" {
		level, err := zap.ParseAtomicLevel(c.Server.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
		zc.Level = level
	}
	return zc.Build()
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// envVarRe matches ${VAR} and ${VAR:default} patterns.
var envVarRe = regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

// Load reads a JSON config file and substitutes environment variable references.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes raw JSON config after environment substitution.
func Parse(data []byte) (*Config, error) {
	// Substitute ${VAR} and ${VAR:default} with environment values.
	resolved := envVarRe.ReplaceAllStringFunc(string(data), func(match string) string {
		parts := envVarRe.FindStringSubmatch(match)
		name := parts[1]
		defaultVal := parts[2]
		if v := os.Getenv(name); v != "" {
			return v
		}
		return defaultVal
	})

	var cfg Config
	if err := json.Unmarshal([]byte(resolved), &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
