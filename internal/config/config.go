// Package config handles application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
)

// Storage backends.
const (
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Config holds the application configuration.
type Config struct {
	TelegramBotToken string    `env:"TELEGRAM_BOT_TOKEN" env-required:"true" env-description:"Telegram Bot API token"`
	DatabasePath     string    `env:"DATABASE_PATH" env-default:"./data/bot.db" env-description:"SQLite database file"`
	StorageBackend   string    `env:"STORAGE_BACKEND" env-default:"sqlite" env-description:"rule store: sqlite or memory"`
	LogLevel         string    `env:"LOG_LEVEL" env-default:"info" env-description:"debug, info, warn or error"`
	AllowedUsers     UserIDs   `env:"ALLOWED_USERS" env-description:"comma separated Telegram user ids allowed to manage rules"`
	PagerDuty        PagerDuty `env-prefix:"PAGERDUTY_"`
}

// PagerDuty configures the on-call lookup used by escalation actions.
type PagerDuty struct {
	Token   string `env:"TOKEN" env-description:"PagerDuty REST API token, escalation is disabled without it"`
	BaseURL string `env:"BASE_URL" env-default:"https://api.pagerduty.com" env-description:"PagerDuty REST API endpoint"`
}

// Enabled reports whether an API token is configured.
func (p PagerDuty) Enabled() bool {
	return p.Token != ""
}

// UserIDs is a comma separated list of Telegram user ids.
type UserIDs []int64

// SetValue parses the list, skipping blank entries.
func (u *UserIDs) SetValue(raw string) error {
	var ids UserIDs
	for _, s := range strings.Split(raw, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		uid, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid user ID %q in ALLOWED_USERS: %w", s, err)
		}
		ids = append(ids, uid)
	}
	*u = ids
	return nil
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Describe returns the list of supported environment variables.
func Describe() string {
	text, err := cleanenv.GetDescription(&Config{}, nil)
	if err != nil {
		return ""
	}
	return text
}

func (c *Config) validate() error {
	if c.TelegramBotToken == "" {
		return errors.New("TELEGRAM_BOT_TOKEN is required")
	}
	if !slices.Contains([]string{BackendSQLite, BackendMemory}, c.StorageBackend) {
		return fmt.Errorf("STORAGE_BACKEND must be %s or %s, got %q", BackendSQLite, BackendMemory, c.StorageBackend)
	}
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, c.LogLevel) {
		return fmt.Errorf("LOG_LEVEL must be debug, info, warn or error, got %q", c.LogLevel)
	}
	if c.StorageBackend == BackendSQLite && c.DatabasePath == "" {
		return errors.New("DATABASE_PATH is required for the sqlite backend")
	}
	return nil
}

// IsUserAllowed checks whether a user ID is in the allow list.
// Returns true if the allow list is empty (all users permitted).
func (c *Config) IsUserAllowed(userID int64) bool {
	if len(c.AllowedUsers) == 0 {
		return true
	}
	return slices.Contains(c.AllowedUsers, userID)
}
