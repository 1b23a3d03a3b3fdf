package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig holds all configuration for the application
type AppConfig struct {
	DatabaseURL string
	HTTPAddr    string
	APIKey      string // Empty disables API key auth on the HTTP API
	LogLevel    string
	Environment string
	Location    *time.Location // Calendar used to decide what "today" is

	TelegramToken     string // Empty disables the staff bot
	AdminTelegramID   int64
	ManagerTelegramID int64 // Receives a message for every recorded payment when set

	WhatsAppAPIURL  string
	WhatsAppAPIKey  string
	WhatsAppTimeout time.Duration

	SMTPHost     string // Empty logs e-mails instead of sending them
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
	SMTPTimeout  time.Duration

	AMQPURL      string // Empty disables domain events
	AMQPExchange string

	CronSpecReconcile string
	CronSpecReminders string
}

// Load reads configuration from environment variables and .env file (if present).
func Load() (*AppConfig, error) {
	// godotenv.Load will not override existing env variables.
	_ = godotenv.Load()

	cfg := &AppConfig{}
	var err error

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}

	cfg.HTTPAddr = getEnv("HTTP_ADDR", ":8080")
	cfg.APIKey = os.Getenv("API_KEY")
	cfg.LogLevel = strings.ToLower(getEnv("LOG_LEVEL", "info"))
	cfg.Environment = strings.ToLower(getEnv("ENVIRONMENT", "development"))

	tz := getEnv("TIMEZONE", "UTC")
	cfg.Location, err = time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", tz, err)
	}

	cfg.TelegramToken = os.Getenv("TELEGRAM_TOKEN")
	if cfg.AdminTelegramID, err = getInt64("ADMIN_TELEGRAM_ID"); err != nil {
		return nil, err
	}
	if cfg.TelegramToken != "" && cfg.AdminTelegramID == 0 {
		return nil, fmt.Errorf("ADMIN_TELEGRAM_ID is required when TELEGRAM_TOKEN is set")
	}
	if cfg.ManagerTelegramID, err = getInt64("MANAGER_TELEGRAM_ID"); err != nil {
		return nil, err
	}

	cfg.WhatsAppAPIURL = os.Getenv("WHATSAPP_API_URL")
	cfg.WhatsAppAPIKey = os.Getenv("WHATSAPP_API_KEY")
	cfg.WhatsAppTimeout, err = time.ParseDuration(getEnv("WHATSAPP_TIMEOUT", "10s"))
	if err != nil {
		return nil, fmt.Errorf("invalid WHATSAPP_TIMEOUT: %w", err)
	}

	cfg.SMTPHost = os.Getenv("SMTP_HOST")
	cfg.SMTPPort, err = strconv.Atoi(getEnv("SMTP_PORT", "587"))
	if err != nil {
		return nil, fmt.Errorf("invalid SMTP_PORT: %w", err)
	}
	cfg.SMTPUsername = os.Getenv("SMTP_USERNAME")
	cfg.SMTPPassword = os.Getenv("SMTP_PASSWORD")
	cfg.SMTPFrom = getEnv("SMTP_FROM", cfg.SMTPUsername)
	cfg.SMTPTimeout, err = time.ParseDuration(getEnv("SMTP_TIMEOUT", "15s"))
	if err != nil {
		return nil, fmt.Errorf("invalid SMTP_TIMEOUT: %w", err)
	}

	cfg.AMQPURL = os.Getenv("AMQP_URL")
	cfg.AMQPExchange = getEnv("AMQP_EXCHANGE", "billing.events")

	cfg.CronSpecReconcile = getEnv("CRON_SPEC_RECONCILE", "5 0 * * *") // Default: 00:05 daily
	cfg.CronSpecReminders = getEnv("CRON_SPEC_REMINDERS", "*/5 * * * *") // Default: every 5 minutes

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt64(key string) (int64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}
