package main

import (
	"context"
	"log"
	"os"
	"sync"

	"github.com/joho/godotenv"
	"github.com/shahariarshuvo/nesco-helper/internal/bot"
	"github.com/shahariarshuvo/nesco-helper/internal/config"
	"github.com/shahariarshuvo/nesco-helper/internal/database"
	"github.com/shahariarshuvo/nesco-helper/internal/logger"
	"github.com/shahariarshuvo/nesco-helper/internal/reminder"
	"github.com/shahariarshuvo/nesco-helper/internal/replycache"
	"github.com/shahariarshuvo/nesco-helper/internal/scraper"
	"github.com/shahariarshuvo/nesco-helper/internal/server"
	"github.com/shahariarshuvo/nesco-helper/internal/services"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := logger.InitWithConfig(logger.Config{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	}); err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	logger.Info("Starting NESCO Helper Bot")

	db, err := database.NewPostgresDB(cfg.DB)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	logger.Info("Database connection established and migrations completed")

	var cache replycache.Cache
	if cfg.Cache.Backend == "redis" {
		redisCache, err := replycache.NewRedis(cfg.Cache.RedisAddr)
		if err != nil {
			logger.Fatalf("Failed to connect to Redis: %v", err)
		}
		cache = redisCache
	} else {
		cache = replycache.NewMemory()
	}

	// Initialize services
	source := scraper.NewNescoClient(cfg.Scraper)
	userService := services.NewUserService(db)
	meterService := services.NewMeterService(db, source)
	balanceService := services.NewBalanceService(db, source)
	usageService := services.NewUsageService(db, cfg.Location())
	aiService := services.NewAIService(cfg.AI, cache, cfg.Cache.TTL)
	logger.Info("Services initialized successfully")

	telegramBot, err := bot.NewBot(cfg.TelegramToken, userService, meterService, balanceService, usageService, aiService)
	if err != nil {
		logger.Fatalf("Failed to create bot: %v", err)
	}

	reminderService, err := reminder.New(telegramBot.API(), userService, balanceService, cfg.Location(), cfg.Reminder.At)
	if err != nil {
		logger.Fatalf("Failed to create reminder service: %v", err)
	}

	httpServer := server.New(userService, meterService, balanceService, usageService, aiService, reminderService)

	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := telegramBot.Start(ctx); err != nil {
			logger.Errorf("Bot stopped with error: %v", err)
			os.Exit(1)
		}
	}()

	if cfg.Reminder.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reminderService.Start(ctx)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := httpServer.Run(":" + cfg.Server.Port); err != nil {
			logger.Errorf("HTTP server stopped with error: %v", err)
			os.Exit(1)
		}
	}()

	logger.Info("NESCO Helper Bot is running")
	wg.Wait()
}
