// Package main runs the background worker: email delivery and expired-invitation cleanup.
package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/eventplanner/backend/config"
	"github.com/eventplanner/backend/internal/invitations"
	"github.com/eventplanner/backend/internal/mailer"
	"github.com/eventplanner/backend/internal/notify"
	"github.com/eventplanner/backend/internal/worker"
	"github.com/eventplanner/backend/pkg/database"
	"github.com/eventplanner/backend/pkg/queue"
	"github.com/eventplanner/backend/pkg/redis"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), cfg.Database.MaxConns, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := redis.NewClient(ctx, redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB}, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var sender mailer.Sender = mailer.NewLog(logger)
	if cfg.Email.SESEnabled() {
		sender, err = mailer.NewSES(ctx, mailer.SESConfig{
			Region:           cfg.Email.SESRegion,
			AccessKeyID:      cfg.AWS.AccessKeyID,
			SecretAccessKey:  cfg.AWS.SecretAccessKey,
			FromAddress:      cfg.Email.FromAddress,
			FromName:         cfg.Email.FromName,
			ConfigurationSet: cfg.Email.ConfigurationSet,
		}, logger)
		if err != nil {
			logger.Fatal("mailer", zap.Error(err))
		}
	} else {
		logger.Warn("EMAIL_PROVIDER is log; emails are logged, not sent")
	}

	jobQueue := queue.NewQueue(rdb, logger)
	processor := worker.NewEmailProcessor(jobQueue, sender, notify.NewRepository(pool), logger)
	sweeper := worker.NewInvitationSweeper(invitations.NewRepository(pool), logger)

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		processor.Run(workerCtx)
	}()
	go func() {
		defer wg.Done()
		sweeper.Run(workerCtx)
	}()
	logger.Info("worker started", zap.String("email_provider", cfg.Email.Provider))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	wg.Wait()
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
