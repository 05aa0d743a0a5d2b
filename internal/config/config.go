package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds process configuration
type Config struct {
	AppEnv   string // APP_ENV
	LogLevel string // LOG_LEVEL

	Redis struct {
		Addr     string // REDIS_ADDR
		Password string // REDIS_PASSWORD
		DB       int    // REDIS_DB
	}

	Discord struct {
		Token         string // DISCORD_TOKEN
		ApplicationID string // APPLICATION_ID
		GuildID       string // GUILD_ID, registers commands to one guild during development

		AnnounceChannelID string        // ANNOUNCE_CHANNEL_ID, empty disables announcements
		ConfirmTimeout    time.Duration // CONFIRM_TIMEOUT
	}

	HTTPAddr string // HTTP_ADDR, empty disables the HTTP server

	GraceWindow      time.Duration // GRACE_WINDOW
	DebounceInterval time.Duration // DEBOUNCE_INTERVAL
	PollInterval     time.Duration // POLL_INTERVAL
}

// Load reads .env when present, then the environment
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:   getEnv("APP_ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		HTTPAddr: getEnv("HTTP_ADDR", ":8090"),
	}

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")

	db, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("config: invalid REDIS_DB: %w", err)
	}
	cfg.Redis.DB = db

	cfg.Discord.Token = getEnv("DISCORD_TOKEN", "")
	cfg.Discord.ApplicationID = getEnv("APPLICATION_ID", "")
	cfg.Discord.GuildID = getEnv("GUILD_ID", "")
	cfg.Discord.AnnounceChannelID = getEnv("ANNOUNCE_CHANNEL_ID", "")

	if cfg.GraceWindow, err = getDuration("GRACE_WINDOW", "15s"); err != nil {
		return nil, err
	}
	if cfg.DebounceInterval, err = getDuration("DEBOUNCE_INTERVAL", "500ms"); err != nil {
		return nil, err
	}
	if cfg.PollInterval, err = getDuration("POLL_INTERVAL", "5s"); err != nil {
		return nil, err
	}
	if cfg.Discord.ConfirmTimeout, err = getDuration("CONFIRM_TIMEOUT", "1m"); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks settings needed by every command
func (c *Config) Validate() error {
	if c.Redis.Addr == "" {
		return fmt.Errorf("config: REDIS_ADDR is required")
	}
	if c.GraceWindow <= 0 {
		return fmt.Errorf("config: GRACE_WINDOW must be positive")
	}
	if c.DebounceInterval <= 0 {
		return fmt.Errorf("config: DEBOUNCE_INTERVAL must be positive")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("config: POLL_INTERVAL must be positive")
	}
	return nil
}

// ValidateDiscord checks the settings needed to run the bot
func (c *Config) ValidateDiscord() error {
	if c.Discord.Token == "" {
		return fmt.Errorf("config: DISCORD_TOKEN is required")
	}
	return nil
}

func getDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(getEnv(key, def))
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s: %w", key, err)
	}
	return d, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
