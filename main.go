package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	gormlogger "gorm.io/gorm/logger"

	"gullin-backend/config"
	"gullin-backend/database"
	"gullin-backend/events"
	"gullin-backend/geo"
	"gullin-backend/handlers"
	"gullin-backend/identity"
	"gullin-backend/middleware"
	"gullin-backend/notify"
	"gullin-backend/services"
	"gullin-backend/session"
	"gullin-backend/utils"
)

func main() {
	envErr := godotenv.Load()

	cfg := config.Load()
	logger := utils.InitLogger(cfg.Environment, cfg.LogLevel, cfg.LogFormat)
	defer utils.SyncLogger()
	if envErr != nil {
		logger.Info("no .env file found, using process environment")
	}

	warnings, err := config.ValidateConfig(cfg)
	if err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}
	for _, w := range warnings {
		logger.Warn(w)
	}

	if err := utils.InitializeEncryption(cfg.EncryptionKey); err != nil {
		logger.Fatal("failed to initialize encryption", zap.Error(err))
	}
	if err := utils.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		logger.Fatal("invalid trusted proxies", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gormLevel := gormlogger.Warn
	if !cfg.IsProduction() {
		gormLevel = gormlogger.Info
	}
	db, err := database.Initialize(cfg.DatabaseURL, gormLevel)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}

	redisClient, err := database.ConnectRedis(ctx, cfg.RedisURL)
	if err != nil {
		logger.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer redisClient.Close()

	var (
		mailer notify.Mailer    = notify.LogMailer{}
		sms    notify.SMSSender = notify.LogSMS{}
	)
	if cfg.Notification.AWSEnabled {
		awsCfg, err := notify.LoadAWSConfig(ctx, cfg.Notification.AWSRegion)
		if err != nil {
			logger.Fatal("failed to load AWS configuration", zap.Error(err))
		}
		mailer = notify.NewSESMailer(awsCfg, cfg.Notification.EmailSendFrom)
		sms = notify.NewSNSSender(awsCfg, "Gullin")
	}
	notifier, err := notify.New(mailer, sms, cfg.Notification)
	if err != nil {
		logger.Fatal("failed to initialize notifier", zap.Error(err))
	}

	var locator geo.Locator = geo.NoopLocator{}
	if cfg.GeoIPDBPath != "" {
		mm, err := geo.OpenMaxMind(cfg.GeoIPDBPath)
		if err != nil {
			logger.Warn("geoip database unavailable, locations will be reported as unknown", zap.Error(err))
		} else {
			defer mm.Close()
			locator = mm
		}
	}

	var publisher events.Publisher = events.NoopPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.Kafka)
	}
	defer publisher.Close()

	tokens := utils.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, cfg.Auth.RefreshWindow)
	svc := services.New(services.Deps{
		DB:       db,
		Config:   cfg,
		Logger:   logger,
		Tokens:   tokens,
		Sessions: session.NewRedisStore(redisClient, cfg.Auth.PendingLoginTTL),
		Notifier: notifier,
		Provider: identity.NewClient(cfg.Identity),
		Geo:      locator,
		Events:   publisher,
	})

	go svc.Poller.Start(ctx, cfg.Identity.PollInterval)

	h := handlers.NewHandlers(svc, cfg, logger)
	auth := middleware.NewAuthenticator(tokens, svc.Accounts, cfg.Auth.CookieName, logger)
	limiter := middleware.NewRateLimiter(ctx, rate.Limit(10), 50)

	router := h.Router(auth)
	router.Use(middleware.RequestLogger(logger), limiter.Middleware)
	handler := middleware.CORS(cfg.AllowedOrigins)(router)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("server starting",
			zap.String("port", cfg.Port),
			zap.String("environment", cfg.Environment),
			zap.Duration("poll_interval", cfg.Identity.PollInterval))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
