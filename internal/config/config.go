package config

import (
	"fmt"
	"time"
	_ "time/tzdata" // POSTER_TIMEZONE must resolve on hosts without zoneinfo

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Config holds all configuration for the application
type Config struct {
	// File paths
	DBPath       string
	ListingsCSV  string
	ImagePath    string
	TipImagePath string

	// Credentials
	OpenAIKey   string
	BotToken    string
	ChatID      string
	APIKey      string
	OpenAIModel string

	// Remote endpoints
	OpenAIBaseURL string
	TelegramURL   string
	SourceKind    string
	SourceURL     string

	// Server settings
	ServerHost string
	ServerPort int

	// Scheduling
	TestMode      bool
	Window        string
	TimeZone      string
	TipSchedule   string
	Cooldown      time.Duration
	TestCooldown  time.Duration
	Interval      time.Duration
	RecoveryDelay time.Duration
	Retention     time.Duration

	// Availability checks
	Phrases  []string
	ProbeRPS float64

	// Log settings
	LogLevel zerolog.Level
}

// LoadDotEnv reads a .env file from the working directory when present.
// Variables already set in the process environment win.
func LoadDotEnv() {
	_ = godotenv.Load()
}

// DefaultConfig returns an initial configuration with hardcoded defaults
// overridden by environment variables.
func DefaultConfig() *Config {
	logLevel, _ := zerolog.ParseLevel(DefaultLogLevel)

	return &Config{
		DBPath:        GetEnvString("POSTER_DB_PATH", DefaultDBPath),
		ListingsCSV:   GetEnvString("POSTER_CSV_PATH", DefaultListingsCSV),
		ImagePath:     GetEnvString("POSTER_IMAGE", DefaultImagePath),
		TipImagePath:  GetEnvString("POSTER_TIP_IMAGE", DefaultTipImagePath),
		OpenAIKey:     GetEnvString("OPENAI_API_KEY", ""),
		OpenAIModel:   GetEnvString("OPENAI_MODEL", DefaultOpenAIModel),
		OpenAIBaseURL: GetEnvString("OPENAI_BASE_URL", DefaultOpenAIBaseURL),
		BotToken:      GetEnvString("TG_BOT_TOKEN", ""),
		ChatID:        GetEnvString("TG_CHAT_ID", ""),
		TelegramURL:   GetEnvString("TG_API_URL", DefaultTelegramURL),
		APIKey:        GetEnvString("POSTER_API_KEY", ""),
		SourceKind:    GetEnvString("POSTER_SOURCE_KIND", DefaultSourceKind),
		SourceURL:     GetEnvString("POSTER_SOURCE_URL", DefaultSourceURL),
		ServerHost:    GetEnvString("POSTER_HOST", DefaultServerHost),
		ServerPort:    GetEnvInt("POSTER_PORT", DefaultServerPort),
		TestMode:      GetEnvBool("TG_TEST_MODE", false),
		Window:        GetEnvString("POSTER_WINDOW", DefaultWindow),
		TimeZone:      GetEnvString("POSTER_TIMEZONE", DefaultTimeZone),
		TipSchedule:   GetEnvString("POSTER_TIP_SCHEDULE", DefaultTipSchedule),
		Cooldown:      GetEnvDuration("POSTER_COOLDOWN", DefaultCooldown),
		TestCooldown:  GetEnvDuration("POSTER_TEST_COOLDOWN", DefaultTestCooldown),
		Interval:      GetEnvDuration("POSTER_INTERVAL", DefaultInterval),
		RecoveryDelay: GetEnvDuration("POSTER_RECOVERY_DELAY", DefaultRecoveryDelay),
		Retention:     GetEnvDuration("POSTER_RETENTION", DefaultRetention),
		Phrases:       GetEnvList("POSTER_PHRASES", nil),
		ProbeRPS:      GetEnvFloat("POSTER_PROBE_RPS", DefaultProbeRPS),
		LogLevel:      GetEnvLogLevel("POSTER_LOG_LEVEL", logLevel),
	}
}

// EffectiveCooldown is the minimum gap between two posts for the current mode.
func (c *Config) EffectiveCooldown() time.Duration {
	if c.TestMode {
		return c.TestCooldown
	}
	return c.Cooldown
}

// Location resolves the reference time zone of the posting window.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid time zone %q", c.TimeZone)
	}
	return loc, nil
}

// ValidatePosting fails when credentials required by the posting loop are absent
// or when scalar settings are out of range.
func (c *Config) ValidatePosting() error {
	var missing []string
	if c.OpenAIKey == "" {
		missing = append(missing, "OPENAI_API_KEY")
	}
	if c.BotToken == "" {
		missing = append(missing, "TG_BOT_TOKEN")
	}
	if c.ChatID == "" {
		missing = append(missing, "TG_CHAT_ID")
	}
	if len(missing) > 0 {
		return errors.Newf("missing required environment variables: %v", missing)
	}
	if c.Interval <= 0 {
		return errors.Newf("polling interval must be positive, got %s", c.Interval)
	}
	if c.Cooldown < 0 || c.TestCooldown < 0 {
		return errors.New("cooldown must not be negative")
	}
	if c.Retention <= 0 {
		return errors.Newf("retention must be positive, got %s", c.Retention)
	}
	return nil
}

// ListenAddr returns the formatted listen address for the HTTP server.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.ServerHost, c.ServerPort)
}
