package main

import (
	"fmt"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"homematch/server/config"
	"homematch/server/internal/api"
	"homematch/server/internal/calculator"
	"homematch/server/internal/database"
	"homematch/server/internal/models"
	"homematch/server/internal/offers"
	"homematch/server/internal/processor"
	"homematch/server/internal/queue"
	"homematch/server/internal/scheduler"
	"homematch/server/internal/telegram"
	"homematch/server/internal/workflow"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	if err := config.LoadPolicyConfig(); err != nil {
		logger.WithError(err).Fatal("Failed to load calculator policy")
	}

	logger.Infof("Using database at: %s", cfg.Database.Path)
	db, err := database.NewDatabase(cfg.Database.Path)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize database")
	}
	defer db.Close()

	logger.Info("Running database migrations...")
	if err := db.RunMigrations(); err != nil {
		logger.WithError(err).Fatal("Failed to run database migrations")
	}

	gormDB, err := gorm.Open(sqlite.Open(cfg.Database.Path), &gorm.Config{})
	if err != nil {
		logger.WithError(err).Fatal("Failed to open gorm connection")
	}
	store := database.NewStore(gormDB, logger)

	calc := calculator.New(config.GetPolicy())

	decisionQueue := queue.NewDecisionQueue(cfg.DecisionProcessing.QueueSize, logger)
	offerService := offers.NewService(store, decisionQueue, logger)

	manager := workflow.NewManager(store, workflow.Collaborators{
		Offers:       store,
		Applications: store,
		Documents:    store,
		Payments:     store,
	}, logger)
	if err := manager.Restore(store); err != nil {
		logger.WithError(err).Fatal("Failed to restore workflows")
	}

	telegramService := telegram.NewService(logger)
	if cfg.Telegram.IsEnabled {
		telegramService.UpdateConfig(&models.TelegramConfig{
			IsEnabled: true,
			BotToken:  cfg.Telegram.BotToken,
			ChatID:    cfg.Telegram.ChatID,
		})
	} else if stored, err := db.GetTelegramConfig(); err == nil && stored != nil {
		telegramService.UpdateConfig(stored)
	}

	decisionProcessor := processor.NewDecisionProcessor(gormDB, decisionQueue, manager, store, cfg, logger)
	decisionProcessor.SetNotifier(telegramService)
	decisionProcessor.Start()

	decisionQueue.Start()
	defer decisionQueue.Close()

	sweeper := scheduler.NewScheduler(manager, offerService, decisionQueue,
		time.Duration(cfg.Scheduler.SweepInterval)*time.Second, logger)
	sweeper.Start()
	defer sweeper.Stop()

	router := gin.Default()
	router.Use(cors.Default())

	handler := api.NewHandler(db, calc, offerService, manager, telegramService, logger)
	api.SetupRoutes(router, handler)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	logger.Infof("Starting server on %s", addr)
	if err := router.Run(addr); err != nil {
		logger.WithError(err).Fatal("Server failed to start")
	}
}
