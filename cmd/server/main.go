package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ikkim/marketplace-admin/config"
	"github.com/ikkim/marketplace-admin/internal/app/controller"
	"github.com/ikkim/marketplace-admin/internal/app/repository"
	"github.com/ikkim/marketplace-admin/internal/app/service"
	"github.com/ikkim/marketplace-admin/internal/db"
	"github.com/ikkim/marketplace-admin/internal/metrics"
	"github.com/ikkim/marketplace-admin/internal/middleware"
	"github.com/ikkim/marketplace-admin/internal/router"
	"github.com/ikkim/marketplace-admin/internal/scheduler"
	"github.com/ikkim/marketplace-admin/internal/storage"
	"github.com/ikkim/marketplace-admin/internal/websocket"
	"github.com/ikkim/marketplace-admin/pkg/logger"
	"github.com/ikkim/marketplace-admin/pkg/redis"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", err)
	}

	// Initialize logger
	logLevel := "info"
	logFormat := "json"
	if cfg.Server.Environment == "development" {
		logLevel = "debug"
		logFormat = "console"
	}
	logger.Initialize(logger.Config{
		Level:       logLevel,
		Format:      logFormat,
		EnableColor: true,
	})

	logger.Info("Starting marketplace admin server", map[string]interface{}{
		"environment": cfg.Server.Environment,
		"port":        cfg.Server.Port,
		"log_level":   logLevel,
	})

	// Initialize database
	if err := db.Initialize(&cfg.Database); err != nil {
		logger.Fatal("Failed to initialize database", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("Failed to close database connection", err)
		}
	}()

	// Run migrations
	if err := db.Migrate(); err != nil {
		logger.Fatal("Failed to run migrations", err)
	}

	// Redis is optional: without it the scheduler runs unlocked
	var locker scheduler.Locker
	if err := redis.Init(&cfg.Redis); err != nil {
		logger.Warn("Redis unavailable, scheduled jobs run without a distributed lock", map[string]interface{}{
			"error": err.Error(),
		})
	} else {
		defer redis.Close()
		locker = redis.NewLocker(redis.GetClient(), "marketplace-admin")
	}

	// Metrics and realtime notifications
	m := metrics.New(nil)
	hub := websocket.NewHub()
	go hub.Run()
	defer hub.Stop()

	// Initialize repositories
	credentialRepo := repository.NewCredentialRepository(db.GetDB())
	businessRepo := repository.NewBusinessRepository(db.GetDB())

	// Initialize services
	verificationService := service.NewVerificationService(credentialRepo, businessRepo, service.VerificationConfig{
		PageSize:      cfg.Verification.PageSize,
		AllowRedecide: cfg.Verification.AllowRedecide,
		Hub:           hub,
		Metrics:       m,
	})

	documentStorage := storage.NewS3Storage(
		cfg.S3.Region,
		cfg.S3.Bucket,
		cfg.S3.AccessKeyID,
		cfg.S3.SecretAccessKey,
		cfg.S3.BaseURL,
		cfg.S3.PresignTTL,
	)

	// Scheduler
	if cfg.Verification.SchedulerOn {
		verificationScheduler := scheduler.NewVerificationScheduler(
			verificationService,
			credentialRepo,
			businessRepo,
			locker,
			m,
			scheduler.Options{
				ReconcileSpec:  cfg.Verification.ReconcileSpec,
				ExpiryScanSpec: cfg.Verification.ExpiryScanSpec,
				ReconcileBatch: cfg.Verification.ReconcileBatch,
			},
		)
		if err := verificationScheduler.Start(); err != nil {
			logger.Fatal("Failed to start verification scheduler", err)
		}
		defer verificationScheduler.Stop()
	}

	// Initialize controllers
	verificationController := controller.NewVerificationController(
		verificationService,
		documentStorage,
		hub,
		cfg.CORS.AllowedOrigins,
	)

	// Initialize middleware
	authMiddleware := middleware.NewAuthMiddleware(cfg.JWT.Secret)

	// Setup router
	r := router.NewRouter(verificationController, authMiddleware, cfg)
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r.Setup(),
	}

	// Start server in a goroutine
	go func() {
		logger.Info("Server started successfully", map[string]interface{}{
			"address": srv.Addr,
			"pid":     os.Getpid(),
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server gracefully...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", err)
	}
	logger.Info("Server stopped successfully")
}
