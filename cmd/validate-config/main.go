package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/shahariarshuvo/nesco-helper/internal/config"
)

func main() {
	fmt.Println("🔍 Validating configuration...")

	if err := godotenv.Load(); err != nil {
		fmt.Printf("⚠️  .env file not found: %v\n", err)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("❌ Configuration is invalid:\n%v\n", err)
		os.Exit(1)
	}

	fmt.Println("✅ Configuration is valid!")
	fmt.Printf("📋 Details:\n")
	fmt.Printf("  - Telegram Token: %s\n", maskToken(cfg.TelegramToken))
	fmt.Printf("  - AI Agent Enabled: %v\n", cfg.AI.Enabled)
	fmt.Printf("  - AI Agent Key: %s\n", maskToken(cfg.AI.APIKey))
	fmt.Printf("  - AI Model: %s\n", cfg.AI.Model)
	fmt.Printf("  - AI Free Model: %s\n", cfg.AI.FreeModel)
	fmt.Printf("  - Timezone: %s\n", cfg.Timezone)
	fmt.Printf("  - Daily Reminder: %s (enabled: %v)\n", cfg.Reminder.At, cfg.Reminder.Enabled)
	fmt.Printf("  - NLP Cache: %s (ttl: %s)\n", cfg.Cache.Backend, cfg.Cache.TTL)
	fmt.Printf("  - Panel URL: %s\n", cfg.Scraper.PanelURL)
	fmt.Printf("  - DB Host: %s\n", cfg.DB.Host)
	fmt.Printf("  - DB Port: %s\n", cfg.DB.Port)
	fmt.Printf("  - DB User: %s\n", cfg.DB.User)
	fmt.Printf("  - DB Name: %s\n", cfg.DB.DBName)
	fmt.Printf("  - HTTP Port: %s\n", cfg.Server.Port)
	fmt.Printf("  - Log Level: %v\n", cfg.Logger.Level)
	fmt.Printf("  - Log Output: %s\n", cfg.Logger.OutputPath)
	fmt.Printf("  - Log Format: %s\n", cfg.Logger.Format)
}

func maskToken(token string) string {
	if token == "" {
		return "<not set>"
	}
	if len(token) <= 8 {
		return "***"
	}
	return token[:4] + "..." + token[len(token)-4:]
}
