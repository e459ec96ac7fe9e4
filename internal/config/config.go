// Package config provides YAML-based configuration loading for Atelier.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level Atelier configuration, loaded from atelier.yaml.
// Secrets and deployment knobs can be overridden from the environment
// (see applyEnv), so a config file is optional.
type Config struct {
	Discord    DiscordConfig    `yaml:"discord"`
	Stability  StabilityConfig  `yaml:"stability"`
	Limits     LimitsConfig     `yaml:"limits"`
	Database   DatabaseConfig   `yaml:"database"`
	Dashboard  DashboardConfig  `yaml:"dashboard"`
	Digest     DigestConfig     `yaml:"digest"`
	Moderation ModerationConfig `yaml:"moderation"`
}

// DiscordConfig holds bot credentials and command registration scope.
type DiscordConfig struct {
	Token string `yaml:"token"`
	// GuildID scopes slash-command registration to one guild for instant
	// propagation during development. Empty registers globally.
	GuildID string `yaml:"guild_id"`
}

// StabilityConfig holds Stability AI API settings.
type StabilityConfig struct {
	APIKey       string `yaml:"api_key"`
	BaseURL      string `yaml:"base_url"`
	DefaultModel string `yaml:"default_model"`
	TimeoutSec   int    `yaml:"timeout_sec"`
}

// LimitsConfig holds the request guards.
type LimitsConfig struct {
	MaxConcurrent   int `yaml:"max_concurrent"`
	UserCooldownSec int `yaml:"user_cooldown_sec"`
}

// DatabaseConfig selects the usage-log backend. The default is a local
// SQLite file; mysql is supported for shared deployments.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Path     string `yaml:"path"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
}

// DashboardConfig controls the read-only usage dashboard.
type DashboardConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// DigestConfig controls the scheduled usage digest post.
type DigestConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Schedule  string `yaml:"schedule"` // 5-field cron expression
	ChannelID string `yaml:"channel_id"`
}

// ModerationConfig holds the prompt keyword blocklist. Empty by default;
// operators populate it per deployment.
type ModerationConfig struct {
	BannedKeywords []string `yaml:"banned_keywords"`
}

// Load reads a YAML config file from path and returns a validated Config.
// A missing file is not an error — defaults plus environment overrides
// are enough to run.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Parse(nil)
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse: %w", err)
		}
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv overlays environment variables onto the config. The names match
// the deployment contract of the original bot, so an existing .env keeps
// working unchanged.
func (c *Config) applyEnv() {
	if v := os.Getenv("DISCORD_TOKEN"); v != "" {
		c.Discord.Token = v
	}
	if v := os.Getenv("GUILD_ID"); v != "" {
		c.Discord.GuildID = v
	}
	if v := os.Getenv("STABILITY_API_KEY"); v != "" {
		c.Stability.APIKey = v
	}
	if v := os.Getenv("STABILITY_MODEL"); v != "" {
		c.Stability.DefaultModel = v
	}
	if v := os.Getenv("MAX_CONCURRENT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Limits.MaxConcurrent = n
		}
	}
	if v := os.Getenv("USER_COOLDOWN"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Limits.UserCooldownSec = n
		}
	}
	if v := os.Getenv("USAGE_DB_PATH"); v != "" {
		c.Database.Path = v
	}
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Stability.BaseURL == "" {
		c.Stability.BaseURL = "https://api.stability.ai"
	}
	if c.Stability.DefaultModel == "" {
		c.Stability.DefaultModel = "stable-diffusion-xl-1024-v1-0"
	}
	if c.Stability.TimeoutSec == 0 {
		c.Stability.TimeoutSec = 180
	}
	if c.Limits.MaxConcurrent == 0 {
		c.Limits.MaxConcurrent = 2
	}
	if c.Limits.UserCooldownSec == 0 {
		c.Limits.UserCooldownSec = 10
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Path == "" {
		c.Database.Path = "usage.db"
	}
	if c.Database.Host == "" {
		c.Database.Host = "127.0.0.1"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 3306
	}
	if c.Database.Database == "" {
		c.Database.Database = "atelier"
	}
	if c.Dashboard.Port == 0 {
		c.Dashboard.Port = 8080
	}
	if c.Digest.Schedule == "" {
		c.Digest.Schedule = "0 9 * * *"
	}
}

// validate checks structural consistency. Credentials are deliberately not
// checked here — db and usage subcommands run without them. Serve-time
// credential checks live in ValidateCredentials.
func (c *Config) validate() error {
	var errs []string
	if c.Database.Driver != "sqlite" && c.Database.Driver != "mysql" {
		errs = append(errs, fmt.Sprintf("database.driver must be sqlite or mysql, got %q", c.Database.Driver))
	}
	if c.Limits.MaxConcurrent < 1 {
		errs = append(errs, "limits.max_concurrent must be at least 1")
	}
	if c.Limits.UserCooldownSec < 0 {
		errs = append(errs, "limits.user_cooldown_sec must not be negative")
	}
	if c.Stability.TimeoutSec < 1 {
		errs = append(errs, "stability.timeout_sec must be at least 1")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// ValidateCredentials checks that the bot can actually start: a missing
// Discord token or Stability API key is the only fatal startup condition.
func (c *Config) ValidateCredentials() error {
	var missing []string
	if c.Discord.Token == "" {
		missing = append(missing, "DISCORD_TOKEN")
	}
	if c.Stability.APIKey == "" {
		missing = append(missing, "STABILITY_API_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("config: %s must be set (environment or config file)", strings.Join(missing, " and "))
	}
	return nil
}
