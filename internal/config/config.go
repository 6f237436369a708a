package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shahariarshuvo/nesco-helper/internal/logger"
)

type Config struct {
	TelegramToken string
	Timezone      string
	DB            DBConfig
	AI            AIConfig
	Scraper       ScraperConfig
	Cache         CacheConfig
	Reminder      ReminderConfig
	Server        ServerConfig
	Logger        LoggerConfig
}

type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
}

// AIConfig controls the OpenRouter-backed reply pipeline. FreeModel is
// attempted once when the primary model answers with a payment-required
// status; everything else falls back to the deterministic composer.
type AIConfig struct {
	Enabled   bool
	APIKey    string
	Model     string
	FreeModel string
	BaseURL   string
	Referer   string
	Title     string
	Timeout   time.Duration
}

type ScraperConfig struct {
	PanelURL          string
	BalanceInputIndex int
	Timeout           time.Duration
}

type CacheConfig struct {
	Backend   string // "memory" or "redis"
	RedisAddr string
	TTL       time.Duration
}

type ReminderConfig struct {
	Enabled bool
	At      string // "HH:MM" local time
}

type ServerConfig struct {
	Port string
}

type LoggerConfig struct {
	Level      logger.LogLevel
	OutputPath string
	Format     string
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return strings.ToLower(value) == "true"
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func parseLogLevel(level string) logger.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return logger.LevelDebug
	case "info":
		return logger.LevelInfo
	case "warn", "warning":
		return logger.LevelWarn
	case "error":
		return logger.LevelError
	default:
		return logger.LevelInfo
	}
}

func Load() (*Config, error) {
	cfg := &Config{
		TelegramToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		Timezone:      getEnvOrDefault("TIMEZONE", "Asia/Dhaka"),
		DB: DBConfig{
			Host:     getEnvOrDefault("DB_HOST", "localhost"),
			Port:     getEnvOrDefault("DB_PORT", "5432"),
			User:     getEnvOrDefault("DB_USER", "postgres"),
			Password: getEnvOrDefault("DB_PASSWORD", "postgres"),
			DBName:   getEnvOrDefault("DB_NAME", "nesco_helper"),
		},
		AI: AIConfig{
			Enabled:   getEnvBool("AI_AGENT_ENABLED", false),
			APIKey:    os.Getenv("AI_AGENT_KEY"),
			Model:     getEnvOrDefault("AI_AGENT_MODEL", "tngtech/deepseek-r1t2-chimera:free"),
			FreeModel: getEnvOrDefault("AI_AGENT_FREE_MODEL", "tngtech/deepseek-r1t2-chimera:free"),
			BaseURL:   getEnvOrDefault("AI_AGENT_OPENROUTER_URL", "https://openrouter.ai/api/v1"),
			Referer:   getEnvOrDefault("AI_AGENT_OPENROUTER_REFERER", "http://localhost"),
			Title:     getEnvOrDefault("AI_AGENT_OPENROUTER_TITLE", "NESCO Helper Bot"),
			Timeout:   time.Duration(getEnvInt("AI_AGENT_TIMEOUT", 40)) * time.Second,
		},
		Scraper: ScraperConfig{
			PanelURL:          getEnvOrDefault("NESCO_PANEL_URL", "https://customer.nesco.gov.bd/pre/panel"),
			BalanceInputIndex: getEnvInt("NESCO_BALANCE_INPUT_INDEX", 14),
			Timeout:           time.Duration(getEnvInt("NESCO_TIMEOUT", 15)) * time.Second,
		},
		Cache: CacheConfig{
			Backend:   getEnvOrDefault("NLP_CACHE_BACKEND", "memory"),
			RedisAddr: getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
			TTL:       time.Duration(getEnvInt("NLP_CACHE_TTL", 60)) * time.Second,
		},
		Reminder: ReminderConfig{
			Enabled: getEnvBool("ENABLE_INTERNAL_SCHEDULER", true),
			At:      getEnvOrDefault("DAILY_REMINDER_TIME", "20:00"),
		},
		Server: ServerConfig{
			Port: getEnvOrDefault("PORT", "5000"),
		},
		Logger: LoggerConfig{
			Level:      parseLogLevel(getEnvOrDefault("LOG_LEVEL", "info")),
			OutputPath: getEnvOrDefault("LOG_OUTPUT", "logs/app.log"),
			Format:     getEnvOrDefault("LOG_FORMAT", "json"),
		},
	}

	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", cfg.Timezone, err)
	}

	return cfg, nil
}

// Location resolves the configured timezone. Load has already validated it.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
