package config

import (
	"errors"
	"fmt"
	"time"
	_ "time/tzdata"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all configuration values for the bot
type Config struct {
	// Discord
	DiscordToken string `env:"DISCORD_BOT_TOKEN"`
	GuildID      string `env:"DISCORD_GUILD_ID"`

	// Database
	DatabasePath string `env:"DATABASE_PATH" envDefault:"./data/bot.db"`

	// Cache tier, disabled when RedisURL is empty
	RedisURL       string `env:"REDIS_URL"`
	CacheKeyPrefix string `env:"CACHE_KEY_PREFIX" envDefault:"lineupbot:"`

	// Daily reset
	ResetTime     string `env:"RESET_TIME" envDefault:"04:00"`
	ResetTimezone string `env:"RESET_TIMEZONE" envDefault:"UTC"`
	// Channel that receives the daily reset notice; empty disables it
	ResetChannelID string `env:"RESET_CHANNEL_ID"`

	// I/O
	StoreTimeout time.Duration `env:"STORE_TIMEOUT" envDefault:"5s"`
	CacheTimeout time.Duration `env:"CACHE_TIMEOUT" envDefault:"1s"`
	ReadRetries  uint          `env:"READ_RETRIES" envDefault:"2"`

	// Logging
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks required fields and value formats
func (c *Config) Validate() error {
	if c.DiscordToken == "" {
		return errors.New("DISCORD_BOT_TOKEN is required")
	}
	if c.DatabasePath == "" {
		return errors.New("DATABASE_PATH must not be empty")
	}
	if _, err := time.Parse("15:04", c.ResetTime); err != nil {
		return fmt.Errorf("invalid RESET_TIME %q, expected HH:MM", c.ResetTime)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.StoreTimeout < 0 {
		return errors.New("STORE_TIMEOUT must not be negative")
	}
	if c.CacheTimeout < 0 {
		return errors.New("CACHE_TIMEOUT must not be negative")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid LOG_LEVEL %q", c.LogLevel)
	}
	return nil
}

// Location resolves ResetTimezone
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.ResetTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid RESET_TIMEZONE %q: %w", c.ResetTimezone, err)
	}
	return loc, nil
}
