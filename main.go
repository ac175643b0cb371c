package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"teamdesk/config"
	"teamdesk/middleware"
	"teamdesk/models"
	"teamdesk/notify"
	"teamdesk/realtime"
	"teamdesk/routes"
	"teamdesk/services"
	"teamdesk/utils"
	"teamdesk/worker"
)

func main() {
	// Load configuration
	if err := config.LoadConfig(); err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	cfg := config.AppConfig
	utils.SetupLogger(cfg.LogLevel, cfg.IsProduction())
	logger := utils.Component("main")

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.SentryDSN,
			Environment: cfg.Environment,
		}); err != nil {
			logger.WithError(err).Warn("Sentry initialization failed")
		}
		defer sentry.Flush(2 * time.Second)
	}

	// Initialize database connection
	if err := config.ConnectDB(); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	if cfg.AdminEmail != "" && cfg.AdminPassword != "" {
		hash, err := services.HashPassword(cfg.AdminPassword)
		if err != nil {
			logger.Fatalf("Failed to hash bootstrap admin password: %v", err)
		}
		if err := models.EnsureBootstrapAdmin(config.DB, cfg.AdminEmail, "Administrator", hash); err != nil {
			logger.Fatalf("Failed to create bootstrap admin: %v", err)
		}
	}

	hub := realtime.NewHub()
	mailer := utils.NewMailer(cfg.SMTP)
	notifier := notify.New(config.DB, hub, mailer, utils.Component("notify"))

	tasks := services.NewTaskStore(config.DB)
	svc := routes.Services{
		Users:          services.NewUserDirectory(config.DB),
		Teams:          services.NewTeamRegistry(config.DB),
		Tasks:          tasks,
		Messages:       services.NewMessageStore(config.DB, notifier),
		Activity:       services.NewActivityAggregator(config.DB, utils.Component("activity")),
		Hub:            hub,
		FeedDisplayCap: cfg.FeedDisplayCap,
		LoginLimiter:   middleware.LoginRateLimiter(cfg, middleware.RateLimitStorage(cfg.Redis)),
	}

	// Create Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "TeamDesk",
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	})
	app.Use(middleware.CORS(middleware.DefaultCORSConfig(cfg.CORSOrigins...)))

	// Start the deadline worker
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	deadlineWorker := worker.NewDeadlineWorker(tasks, cfg.DeadlineCheckInterval, utils.Component("deadline_worker"))
	go deadlineWorker.Start(ctx)

	// Setup routes
	routes.SetupRoutes(app, config.DB, svc)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		logger.Info("Shutting down server...")
		cancel()
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			logger.WithError(err).Error("Server shutdown failed")
		}
	}()

	// Start server
	logger.Infof("🚀 Server starting on port %s", cfg.ServerPort)
	if err := app.Listen(":" + cfg.ServerPort); err != nil {
		logger.Fatalf("Failed to start server: %v", err)
	}
}
