// Package main runs the event planner HTTP API with the live RSVP feed and graceful shutdown.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/eventplanner/backend/config"
	"github.com/eventplanner/backend/internal/admin"
	"github.com/eventplanner/backend/internal/auth"
	"github.com/eventplanner/backend/internal/chat"
	"github.com/eventplanner/backend/internal/events"
	"github.com/eventplanner/backend/internal/guests"
	"github.com/eventplanner/backend/internal/invitations"
	"github.com/eventplanner/backend/internal/mailer"
	"github.com/eventplanner/backend/internal/middleware"
	"github.com/eventplanner/backend/internal/notify"
	"github.com/eventplanner/backend/internal/organizations"
	"github.com/eventplanner/backend/internal/realtime"
	"github.com/eventplanner/backend/internal/validation"
	"github.com/eventplanner/backend/internal/worker"
	"github.com/eventplanner/backend/pkg/database"
	"github.com/eventplanner/backend/pkg/queue"
	"github.com/eventplanner/backend/pkg/redis"
	"github.com/eventplanner/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}
	if err := validation.RegisterBindings(); err != nil {
		logger.Fatal("register validators", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), cfg.Database.MaxConns, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool, logger); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	// Redis is optional: without it the server limits in memory, fans out
	// locally and delivers email inline.
	var rdb *goredis.Client
	if cfg.Redis.Addr != "" {
		rdb, err = redis.NewClient(ctx, redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB}, logger)
		if err != nil {
			logger.Warn("redis disabled", zap.Error(err))
			rdb = nil
		} else {
			defer rdb.Close()
		}
	}

	var covers events.CoverStorage
	if cfg.AWS.UploadsBucket != "" {
		s3Client, err := storage.NewS3(ctx, storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			Bucket:               cfg.AWS.UploadsBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}, logger)
		if err != nil {
			logger.Warn("cover uploads disabled", zap.Error(err))
		} else {
			covers = s3Client
		}
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours, cfg.JWT.ResetMinutes)

	var pub realtime.Publisher
	var sub realtime.Subscriber
	if rdb != nil {
		ps := realtime.NewRedisPubSub(rdb, logger)
		pub, sub = ps, ps
	}
	hub := realtime.NewHub(logger, pub, sub)

	var limiter middleware.Limiter
	switch {
	case !cfg.RateLimit.Enabled:
	case cfg.RateLimit.UseRedis && rdb != nil:
		limiter = middleware.NewRedisLimiter(rdb)
	default:
		mem := middleware.NewMemoryLimiter(time.Minute)
		defer mem.Stop()
		limiter = mem
	}

	// Email: queued for cmd/worker when Redis is up, otherwise sent from this process.
	emailLogs := notify.NewRepository(pool)
	var enqueuer notify.Enqueuer
	if rdb != nil {
		enqueuer = queue.NewQueue(rdb, logger)
	} else {
		sender, err := newSender(ctx, cfg, logger)
		if err != nil {
			logger.Fatal("mailer", zap.Error(err))
		}
		enqueuer = worker.NewEmailProcessor(nil, sender, emailLogs, logger)
	}
	notifier := notify.NewNotifier(enqueuer, emailLogs, notify.Options{
		AppName:      cfg.Email.FromName,
		FrontendURL:  cfg.App.FrontendURL,
		ResetMinutes: cfg.JWT.ResetMinutes,
	}, logger)

	userRepo := auth.NewRepository(pool)
	orgRepo := organizations.NewRepository(pool)
	invitationRepo := invitations.NewRepository(pool)
	eventRepo := events.NewRepository(pool)
	guestRepo := guests.NewRepository(pool)

	h := handlers{
		auth: auth.NewHandler(userRepo, invitationRepo, jwtService, notifier, auth.Options{
			FrontendURL:         cfg.App.FrontendURL,
			AllowAdminBootstrap: cfg.App.AllowAdminBootstrap,
		}, logger),
		invitations:   invitations.NewHandler(invitationRepo, userRepo, orgRepo, jwtService, logger),
		organizations: organizations.NewHandler(orgRepo, userRepo, notifier, logger),
		events:        events.NewHandler(eventRepo, userRepo, orgRepo, guestRepo, covers, cfg.App.Location(), logger),
		guests: guests.NewHandler(guestRepo, eventRepo, userRepo, notifier, hub,
			realtime.NewUpgrader(cfg.Server.AllowedOrigins()), cfg.App.FrontendURL, logger),
		chat: chat.NewHandler(chat.NewClient(chat.ClientConfig{
			URL:         cfg.Chat.URL,
			APIKey:      cfg.Chat.APIKey,
			Model:       cfg.Chat.Model,
			Temperature: cfg.Chat.Temperature,
			MaxTokens:   cfg.Chat.MaxTokens,
			Timeout:     cfg.Chat.Timeout,
		}), chat.NewRepository(pool), logger),
		admin:     admin.NewHandler(admin.NewRepository(pool), orgRepo, logger),
		emailLogs: notify.NewHandler(emailLogs, logger),
	}

	router, err := newRouter(routerDeps{
		handlers: h,
		jwt:      jwtService,
		limiter:  limiter,
		origins:  cfg.Server.AllowedOrigins(),
		proxies:  cfg.Server.Proxies(),
		health:   healthCheck(pool, rdb),
		logger:   logger,
	})
	if err != nil {
		logger.Fatal("router", zap.Error(err))
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port), zap.Bool("redis", rdb != nil))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newSender(ctx context.Context, cfg *config.Config, logger *zap.Logger) (mailer.Sender, error) {
	if !cfg.Email.SESEnabled() {
		return mailer.NewLog(logger), nil
	}
	return mailer.NewSES(ctx, mailer.SESConfig{
		Region:           cfg.Email.SESRegion,
		AccessKeyID:      cfg.AWS.AccessKeyID,
		SecretAccessKey:  cfg.AWS.SecretAccessKey,
		FromAddress:      cfg.Email.FromAddress,
		FromName:         cfg.Email.FromName,
		ConfigurationSet: cfg.Email.ConfigurationSet,
	}, logger)
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
