// cmd/server/main.go
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

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
	"golang.org/x/time/rate"

	"github.com/javajoker/wavhaven-backend/internal/cache"
	"github.com/javajoker/wavhaven-backend/internal/config"
	"github.com/javajoker/wavhaven-backend/internal/database"
	"github.com/javajoker/wavhaven-backend/internal/i18n"
	"github.com/javajoker/wavhaven-backend/internal/metrics"
	"github.com/javajoker/wavhaven-backend/internal/middleware"
	"github.com/javajoker/wavhaven-backend/internal/router"
	"github.com/javajoker/wavhaven-backend/internal/services"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	configureLogging(cfg)

	// Initialize database
	db, err := database.Initialize(cfg.Database)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize database")
	}

	// Run database migrations
	if err := database.RunMigrations(db); err != nil {
		logrus.WithError(err).Fatal("Failed to run migrations")
	}
	if err := database.SeedInitialData(db, cfg.Auth.BootstrapAdminID); err != nil {
		logrus.WithError(err).Fatal("Failed to seed initial data")
	}

	// Initialize i18n
	if err := i18n.Initialize(cfg.I18n.DefaultLocale); err != nil {
		logrus.WithError(err).Fatal("Failed to initialize i18n")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var redisClient *redis.Client
	var checkoutLimiter cache.Limiter
	if cfg.Redis.Enabled() {
		redisClient, err = cache.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			logrus.WithError(err).Fatal("Failed to connect to redis")
		}
		checkoutLimiter = cache.NewRedisLimiter(redisClient, "checkout", cfg.RateLimit.CheckoutAttempts, cfg.CheckoutWindow())
	} else {
		logrus.Warn("Redis not configured, using in-process checkout limiter")
		checkoutLimiter = cache.NewLocalLimiter(cfg.RateLimit.CheckoutAttempts, cfg.CheckoutWindow())
	}

	storage, err := services.NewStorageService(cfg.AWS)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize storage")
	}

	svc := services.NewRegistry(db, cfg, services.Backends{
		Payments: services.NewStripeProcessor(cfg.Payment),
		Storage:  storage,
		Mailer:   services.NewSMTPMailer(cfg.Email),
		Limiter:  checkoutLimiter,
		Metrics:  m,
	})

	// Set Gin mode
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ipLimiter := middleware.NewRateLimiter(rate.Limit(cfg.RateLimit.RequestsPerSec), cfg.RateLimit.Burst)
	go ipLimiter.Run(ctx)

	r := router.Initialize(cfg, svc, router.Options{
		DB:          db,
		Metrics:     m,
		Gatherer:    registry,
		RateLimiter: ipLimiter,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logrus.WithField("port", cfg.Server.Port).Info("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Fatal("Failed to start server")
		}
	}()

	<-ctx.Done()
	logrus.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err = srv.Shutdown(shutdownCtx)
	// Let queued emails finish before the process exits.
	svc.Notifications.Wait()
	err = multierr.Append(err, database.Close(db))
	if redisClient != nil {
		err = multierr.Append(err, redisClient.Close())
	}
	if err != nil {
		logrus.WithError(err).Error("Unclean shutdown")
		os.Exit(1)
	}

	logrus.Info("Server exited")
}

func configureLogging(cfg *config.Config) {
	if cfg.IsProduction() {
		logrus.SetFormatter(&logrus.JSONFormatter{})
		logrus.SetLevel(logrus.InfoLevel)
		return
	}
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logrus.SetLevel(logrus.DebugLevel)
}
