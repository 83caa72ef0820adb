package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bookkeeper_bot/internal/app"
	"bookkeeper_bot/internal/domain/expense"
	"bookkeeper_bot/internal/domain/kv"
	"bookkeeper_bot/internal/infra/cache"
	"bookkeeper_bot/internal/infra/config"
	idb "bookkeeper_bot/internal/infra/database"
	"bookkeeper_bot/internal/infra/events"
	"bookkeeper_bot/internal/infra/llm"
	"bookkeeper_bot/internal/infra/logger"
	"bookkeeper_bot/internal/infra/scheduler"
	"bookkeeper_bot/internal/infra/telegram"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

func main() {
	fmt.Println("Bookkeeper Bot starting...")

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Could not load application configuration: %v\n", err)
		os.Exit(1)
	}
	logger.Init(cfg)
	mainLogger := logger.Component("main")

	mainLogger.WithFields(logrus.Fields{
		"log_level":   cfg.LogLevel,
		"environment": cfg.Environment,
		"admins":      len(cfg.AdminTelegramIDs),
	}).Info("Configuration loaded")

	appCtx, cancelApp := context.WithCancel(context.Background())
	defer cancelApp()

	// Initialize Database Connection
	db, dialect, err := idb.Open(cfg.DatabaseURL, cfg.DatabasePath)
	if err != nil {
		mainLogger.WithError(err).Fatal("Could not open database")
	}
	defer db.Close()
	mainLogger.WithField("dialect", dialect).Info("Database ready, migrations applied")

	var store kv.Store = idb.NewKVRepository(db, dialect)
	if cfg.KVCacheEnabled {
		cached, err := cache.NewCachedStore(store, logger.Component("kv_cache"))
		if err != nil {
			mainLogger.WithError(err).Fatal("Could not create KV cache")
		}
		defer cached.Close()
		store = cached
	}

	var publisher expense.EventPublisher
	if cfg.AMQPURL != "" {
		amqpPublisher, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange, logger.Component("events"))
		if err != nil {
			mainLogger.WithError(err).Fatal("Could not connect to AMQP broker")
		}
		defer amqpPublisher.Close()
		publisher = amqpPublisher
		mainLogger.WithField("exchange", cfg.AMQPExchange).Info("Expense events enabled")
	}

	settingsStore, err := app.NewSettingsStore(appCtx, store, cfg.Settings(), logger.Component("settings"))
	if err != nil {
		mainLogger.WithError(err).Fatal("Could not load settings")
	}
	clock := app.NewClock(func() string { return settingsStore.Get().ScheduleTimezone }, logger.Component("clock"))
	records := app.NewRecordStore(store, func() int { return settingsStore.Get().MaxRecords }, publisher, logger.Component("records"))

	cronScheduler := scheduler.NewCronScheduler(logger.Component("scheduler"))

	// Initialize Telegram Bot
	telegramLogger := logger.Component("telegram")
	pref := telebot.Settings{
		Token:  cfg.TelegramToken,
		Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
		OnError: func(err error, c telebot.Context) { // Global error handler
			entry := telegramLogger.WithError(err)
			if c != nil && c.Sender() != nil && c.Chat() != nil {
				entry = entry.WithFields(logrus.Fields{"sender_id": c.Sender().ID, "chat_id": c.Chat().ID})
			}
			entry.Error("Telebot error")
		},
	}
	bot, err := telebot.NewBot(pref)
	if err != nil {
		mainLogger.WithError(err).Fatal("Could not create Telegram bot")
	}

	synchronizer := app.NewScheduleSynchronizer(
		cronScheduler,
		store,
		settingsStore,
		records,
		clock,
		telegram.NewTelebotAdapter(bot),
		logger.Component("schedule"),
	)
	service := app.NewBookkeeperService(records, settingsStore, synchronizer, clock, logger.Component("bookkeeper"))

	// Register Handlers
	telegram.RegisterBotCommands(appCtx, bot, telegram.NewBookCommands(service, telegramLogger), cfg.IsAdmin, telegramLogger)

	var extractor telegram.ExpenseExtractor
	if cfg.OpenAIAPIKey != "" {
		extractor = llm.NewOpenAIExtractor(llm.Config{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.OpenAIModel,
		}, service, logger.Component("llm"))
	} else {
		mainLogger.Warn("OPENAI_API_KEY not set, automatic extraction disabled")
	}
	telegram.RegisterMessageHandler(appCtx, bot, service, extractor, cfg.IsAdmin, telegramLogger)

	if err := synchronizer.Sync(appCtx); err != nil {
		mainLogger.WithError(err).Error("Initial schedule sync failed")
	}
	cronScheduler.Start()

	mainLogger.Info("Application setup complete. Bot and Scheduler are starting...")

	// Start bot in a goroutine so it doesn't block graceful shutdown handling
	go bot.Start()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	mainLogger.Info("Shutting down application...")
	bot.Stop()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := synchronizer.Teardown(shutdownCtx); err != nil {
		mainLogger.WithError(err).Warn("Failed to remove scheduled jobs")
	}
	cronScheduler.Stop()
	cancelApp()
	mainLogger.Info("Application shut down gracefully.")
}
