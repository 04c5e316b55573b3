package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"appealbot/internal/locales"
	"appealbot/internal/mailer"
	"appealbot/internal/quota"
)

// Storage drivers selectable with STORAGE_DRIVER
const (
	DriverSQLite     = "sqlite"
	DriverClickHouse = "clickhouse"
	DriverMongo      = "mongo"
	DriverMemory     = "memory"
)

// Config holds the application configuration
type Config struct {
	TelegramToken string

	// Bot mode configuration
	WebhookMode bool   // If true, use webhook mode; if false, use polling mode
	WebhookURL  string // URL for webhook (required if WebhookMode is true)
	Port        string

	StorageDriver string
	SQLitePath    string

	// ClickHouse configuration
	ClickHouseHost     string
	ClickHousePort     int
	ClickHouseDatabase string
	ClickHouseUser     string
	ClickHousePassword string
	ClickHouseUseTLS   bool

	MongoURI      string
	MongoDatabase string

	// SMTP relay
	SMTPHost        string
	SMTPPort        int
	AppealRecipient string
	SMTPTimeout     time.Duration

	RateLimitQuota  int
	RateLimitWindow time.Duration
	UsageRetention  time.Duration // 0 keeps the usage log forever

	TelegramRPS     int
	DefaultLanguage string

	SentryDSN string
	AppEnv    string
	Version   string
	Debug     bool
	LogLevel  string
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() (*Config, error) {
	config := &Config{}

	// Telegram Bot Token (required)
	config.TelegramToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	if config.TelegramToken == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}

	// Bot mode configuration
	config.WebhookMode = os.Getenv("WEBHOOK_MODE") == "true"
	if config.WebhookMode {
		config.WebhookURL = os.Getenv("WEBHOOK_URL")
		if config.WebhookURL == "" {
			return nil, fmt.Errorf("WEBHOOK_URL is required when WEBHOOK_MODE is true")
		}
	}
	config.Port = getEnv("PORT", "8080")

	if err := config.loadStorage(); err != nil {
		return nil, err
	}

	var err error
	config.SMTPHost = getEnv("SMTP_HOST", mailer.DefaultHost)
	if config.SMTPPort, err = getInt("SMTP_PORT", mailer.DefaultPort); err != nil {
		return nil, err
	}
	config.AppealRecipient = getEnv("APPEAL_RECIPIENT", mailer.DefaultRecipient)
	if config.SMTPTimeout, err = getDuration("SMTP_TIMEOUT", mailer.DefaultTimeout); err != nil {
		return nil, err
	}

	if config.RateLimitQuota, err = getInt("RATE_LIMIT_QUOTA", quota.DefaultQuota); err != nil {
		return nil, err
	}
	if config.RateLimitQuota <= 0 {
		return nil, fmt.Errorf("RATE_LIMIT_QUOTA must be positive, got %d", config.RateLimitQuota)
	}
	if config.RateLimitWindow, err = getDuration("RATE_LIMIT_WINDOW", quota.DefaultWindow); err != nil {
		return nil, err
	}
	if config.RateLimitWindow <= 0 {
		return nil, fmt.Errorf("RATE_LIMIT_WINDOW must be positive, got %s", config.RateLimitWindow)
	}
	if config.UsageRetention, err = getDuration("USAGE_RETENTION", 0); err != nil {
		return nil, err
	}
	// Pruning inside the window would reset users' limits
	if config.UsageRetention > 0 && config.UsageRetention < config.RateLimitWindow {
		config.UsageRetention = config.RateLimitWindow
	}

	if config.TelegramRPS, err = getInt("TELEGRAM_RPS", 25); err != nil {
		return nil, err
	}
	config.DefaultLanguage = getEnv("DEFAULT_LANGUAGE", locales.DefaultLanguage)

	config.SentryDSN = os.Getenv("SENTRY_DSN")
	config.AppEnv = getEnv("APP_ENV", "development")
	config.Version = os.Getenv("VERSION")
	config.Debug = os.Getenv("DEBUG") == "true"
	config.LogLevel = strings.ToLower(os.Getenv("LOG_LEVEL"))

	return config, nil
}

func (c *Config) loadStorage() error {
	c.StorageDriver = strings.ToLower(getEnv("STORAGE_DRIVER", DriverSQLite))
	// Use Mock DB overrides the driver
	if os.Getenv("USE_MOCK_DB") == "true" {
		c.StorageDriver = DriverMemory
	}

	switch c.StorageDriver {
	case DriverMemory:
	case DriverSQLite:
		c.SQLitePath = getEnv("SQLITE_PATH", "config.db")
	case DriverClickHouse:
		c.ClickHouseHost = os.Getenv("CLICKHOUSE_HOST")
		if c.ClickHouseHost == "" {
			return fmt.Errorf("CLICKHOUSE_HOST is required when STORAGE_DRIVER is clickhouse")
		}

		port, err := getInt("CLICKHOUSE_PORT", 9000) // Default ClickHouse native port
		if err != nil {
			return err
		}
		c.ClickHousePort = port
		c.ClickHouseDatabase = getEnv("CLICKHOUSE_DATABASE", "default")
		c.ClickHouseUser = getEnv("CLICKHOUSE_USER", "default")
		c.ClickHousePassword = os.Getenv("CLICKHOUSE_PASSWORD")
		c.ClickHouseUseTLS = os.Getenv("CLICKHOUSE_USE_TLS") == "true"
	case DriverMongo:
		c.MongoURI = os.Getenv("MONGODB_URI")
		if c.MongoURI == "" {
			return fmt.Errorf("MONGODB_URI is required when STORAGE_DRIVER is mongo")
		}
		c.MongoDatabase = getEnv("MONGODB_DATABASE", "appealbot")
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q (want sqlite, clickhouse, mongo or memory)", c.StorageDriver)
	}
	return nil
}

// getEnv retrieves environment variable or returns default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, nil
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, nil
}
