// Package config loads LeadPipe runtime configuration: process settings from the
// environment (optionally seeded by a .env file) and the business profile from YAML.
package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/BTreeMap/LeadPipe/internal/util"
	"github.com/joho/godotenv"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for LeadPipe state data
	DefaultStateDir = "/var/lib/leadpipe"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "leadpipe.db"
	// DefaultWhatsAppDBFileName is the default whatsmeow device store filename
	DefaultWhatsAppDBFileName = "whatsmeow.db"
	// DefaultFollowUpSchedule runs the follow-up cycle hourly
	DefaultFollowUpSchedule = "@every 1h"
	// DefaultAPIAddr is the admin API listen address
	DefaultAPIAddr = ":8080"
)

// Transport names.
const (
	TransportTelegram = "telegram"
	TransportWhatsApp = "whatsapp"
	TransportTwilio   = "twilio"
)

// Config holds process configuration.
type Config struct {
	StateDir         string
	DatabaseURL      string
	Transport        string
	TelegramToken    string
	WhatsAppDSN      string
	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFromNumber string
	TwilioWebhookURL string
	OpenAIKey        string
	OpenAIModel      string
	OwnerID          string
	APIAddr          string
	LogLevel         string
	ProfilePath      string
	FollowUpSchedule string
	FollowUpEnabled  bool
	GenAIDebug       bool
}

// Load reads .env when present, then the environment.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("config.Load: no .env file loaded", "error", err)
	} else {
		slog.Debug("config.Load: .env file loaded")
	}
	return FromEnv()
}

// FromEnv builds a Config from environment variables and fills derived defaults.
func FromEnv() Config {
	c := Config{
		StateDir:         util.StringEnv("LEADPIPE_STATE_DIR", DefaultStateDir),
		DatabaseURL:      util.StringEnv("DATABASE_URL", ""),
		Transport:        strings.ToLower(util.StringEnv("LEADPIPE_TRANSPORT", TransportTelegram)),
		TelegramToken:    util.StringEnv("TELEGRAM_BOT_TOKEN", ""),
		WhatsAppDSN:      util.StringEnv("WHATSAPP_DB_DSN", ""),
		TwilioAccountSID: util.StringEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:  util.StringEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioFromNumber: util.StringEnv("TWILIO_FROM_NUMBER", ""),
		TwilioWebhookURL: util.StringEnv("TWILIO_WEBHOOK_URL", ""),
		OpenAIKey:        util.StringEnv("OPENAI_API_KEY", ""),
		OpenAIModel:      util.StringEnv("OPENAI_MODEL", ""),
		OwnerID:          util.StringEnv("OWNER_ID", ""),
		APIAddr:          util.StringEnv("API_ADDR", DefaultAPIAddr),
		LogLevel:         util.StringEnv("LOG_LEVEL", "info"),
		ProfilePath:      util.StringEnv("LEADPIPE_PROFILE", ""),
		FollowUpSchedule: util.StringEnv("FOLLOWUP_SCHEDULE", DefaultFollowUpSchedule),
		FollowUpEnabled:  util.ParseBoolEnv("FOLLOWUP_ENABLED", true),
		GenAIDebug:       util.ParseBoolEnv("GENAI_DEBUG", false),
	}
	c.ApplyDefaults()

	slog.Debug("config.FromEnv: environment loaded",
		"state_dir", c.StateDir,
		"database_url_set", c.DatabaseURL != "",
		"transport", c.Transport,
		"telegram_token_set", c.TelegramToken != "",
		"openai_key_set", c.OpenAIKey != "",
		"owner_id_set", c.OwnerID != "",
		"api_addr", c.APIAddr,
		"followup_schedule", c.FollowUpSchedule,
		"followup_enabled", c.FollowUpEnabled)
	return c
}

// ApplyDefaults derives database locations from the state directory when unset.
func (c *Config) ApplyDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = filepath.Join(c.StateDir, DefaultDBFileName)
	}
	if c.WhatsAppDSN == "" {
		c.WhatsAppDSN = DefaultWhatsAppDSN(c.StateDir)
	}
}

// DefaultWhatsAppDSN is the SQLite device store DSN inside stateDir.
func DefaultWhatsAppDSN(stateDir string) string {
	return "file:" + filepath.Join(stateDir, DefaultWhatsAppDBFileName) + "?_foreign_keys=on"
}

// WithStateDir moves the state directory, rebasing database paths that were derived from it.
func (c Config) WithStateDir(dir string) Config {
	if dir == "" || dir == c.StateDir {
		return c
	}
	if c.DatabaseURL == filepath.Join(c.StateDir, DefaultDBFileName) {
		c.DatabaseURL = ""
	}
	if c.WhatsAppDSN == DefaultWhatsAppDSN(c.StateDir) {
		c.WhatsAppDSN = ""
	}
	c.StateDir = dir
	c.ApplyDefaults()
	return c
}

// Validate checks the settings the selected transport requires.
func (c Config) Validate() error {
	switch c.Transport {
	case TransportTelegram:
		if c.TelegramToken == "" {
			return fmt.Errorf("TELEGRAM_BOT_TOKEN is required for the telegram transport")
		}
	case TransportWhatsApp:
		if c.WhatsAppDSN == "" {
			return fmt.Errorf("WHATSAPP_DB_DSN is required for the whatsapp transport")
		}
	case TransportTwilio:
		if c.TwilioAccountSID == "" || c.TwilioAuthToken == "" || c.TwilioFromNumber == "" {
			return fmt.Errorf("TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_FROM_NUMBER are required for the twilio transport")
		}
	default:
		return fmt.Errorf("unknown transport %q (want telegram, whatsapp or twilio)", c.Transport)
	}
	if c.OwnerID == "" {
		slog.Warn("Config.Validate: OWNER_ID not set, owner alerts and /stats are disabled")
	}
	return nil
}

// ParseLogLevel maps debug|info|warn|error to a slog level, defaulting to info.
func ParseLogLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
