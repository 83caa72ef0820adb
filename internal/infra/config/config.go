package config

import (
	"fmt"
	"os"
	"strconv"
	"strings" // For LogLevel normalization
	"time"

	"bookkeeper_bot/internal/domain/settings"

	"github.com/joho/godotenv"
)

// AppConfig holds all configuration for the application
type AppConfig struct {
	TelegramToken    string
	AdminTelegramIDs []int64
	DatabasePath     string // SQLite file, used when DatabaseURL is empty
	DatabaseURL      string // PostgreSQL DSN
	LogLevel         string
	Environment      string
	KVCacheEnabled   bool

	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string

	AMQPURL      string
	AMQPExchange string

	// Seeds for the option table before the first administrator change.
	CurrencySymbol   string
	MaxRecords       int
	MaxReportItems   int
	ScheduleTimezone string
}

// Load reads configuration from environment variables and .env file (if present).
func Load() (*AppConfig, error) {
	// Attempt to load .env file. Errors are ignored if the file doesn't exist.
	// godotenv.Load will not override existing env variables.
	_ = godotenv.Load()

	cfg := &AppConfig{}
	var err error

	cfg.TelegramToken = os.Getenv("TELEGRAM_TOKEN")
	if cfg.TelegramToken == "" {
		return nil, fmt.Errorf("TELEGRAM_TOKEN is not set")
	}

	adminIDsStr := os.Getenv("ADMIN_TELEGRAM_IDS")
	if adminIDsStr == "" {
		return nil, fmt.Errorf("ADMIN_TELEGRAM_IDS is not set")
	}
	cfg.AdminTelegramIDs, err = parseIDList(adminIDsStr)
	if err != nil {
		return nil, fmt.Errorf("invalid ADMIN_TELEGRAM_IDS: %w", err)
	}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.DatabasePath = os.Getenv("DATABASE_PATH")
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = "data/bookkeeper.db"
	}

	cfg.LogLevel = strings.ToLower(os.Getenv("LOG_LEVEL"))
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info" // Default log level
	}

	cfg.Environment = strings.ToLower(os.Getenv("ENVIRONMENT"))
	if cfg.Environment == "" {
		cfg.Environment = "development" // Default environment
	}

	cfg.KVCacheEnabled = true
	if v := os.Getenv("KV_CACHE_ENABLED"); v != "" {
		cfg.KVCacheEnabled, err = strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid KV_CACHE_ENABLED: %w", err)
		}
	}

	cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	cfg.OpenAIBaseURL = os.Getenv("OPENAI_BASE_URL")
	cfg.OpenAIModel = os.Getenv("OPENAI_MODEL")
	if cfg.OpenAIModel == "" {
		cfg.OpenAIModel = "gpt-4o-mini"
	}

	cfg.AMQPURL = os.Getenv("AMQP_URL")
	cfg.AMQPExchange = os.Getenv("AMQP_EXCHANGE")
	if cfg.AMQPExchange == "" {
		cfg.AMQPExchange = "bookkeeper.events"
	}

	defaults := settings.Defaults()
	cfg.CurrencySymbol = os.Getenv("BOOKKEEPER_CURRENCY_SYMBOL")
	if cfg.CurrencySymbol == "" {
		cfg.CurrencySymbol = defaults.CurrencySymbol
	}
	if cfg.MaxRecords, err = intEnv("BOOKKEEPER_MAX_RECORDS", defaults.MaxRecords); err != nil {
		return nil, err
	}
	if cfg.MaxReportItems, err = intEnv("BOOKKEEPER_MAX_REPORT_ITEMS", defaults.MaxReportItems); err != nil {
		return nil, err
	}
	cfg.ScheduleTimezone = strings.TrimSpace(os.Getenv("BOOKKEEPER_TIMEZONE"))
	if cfg.ScheduleTimezone != "" {
		if _, err := time.LoadLocation(cfg.ScheduleTimezone); err != nil {
			return nil, fmt.Errorf("invalid BOOKKEEPER_TIMEZONE: %w", err)
		}
	}

	return cfg, nil
}

// Settings returns the default option table with the configured seeds applied.
func (c *AppConfig) Settings() settings.Settings {
	s := settings.Defaults()
	s.CurrencySymbol = c.CurrencySymbol
	s.MaxRecords = c.MaxRecords
	s.MaxReportItems = c.MaxReportItems
	s.ScheduleTimezone = c.ScheduleTimezone
	return s.Normalized()
}

// IsAdmin reports whether the Telegram user id is a configured administrator.
func (c *AppConfig) IsAdmin(telegramID int64) bool {
	for _, id := range c.AdminTelegramIDs {
		if id == telegramID {
			return true
		}
	}
	return false
}

func parseIDList(raw string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no ids in %q", raw)
	}
	return ids, nil
}

func intEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
