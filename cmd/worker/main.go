// Package main runs the background worker: notification delivery and the
// waitlist reconciler.
package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/seatline/backend/config"
	"github.com/seatline/backend/internal/auth"
	"github.com/seatline/backend/internal/events"
	"github.com/seatline/backend/internal/notifications"
	"github.com/seatline/backend/internal/observability"
	"github.com/seatline/backend/internal/participants"
	"github.com/seatline/backend/internal/realtime"
	"github.com/seatline/backend/pkg/database"
	"github.com/seatline/backend/pkg/queue"
	"github.com/seatline/backend/pkg/redis"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), database.PoolOptions{MaxConns: 5}, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := redis.NewClient(ctx, redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB}, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	jobQueue := queue.NewQueue(rdb.Client, logger, queue.WithMaxRetries(cfg.Worker.MaxRetries))

	var mailer notifications.Mailer
	if cfg.Email.SMTPHost != "" {
		mailer = notifications.NewSMTPMailer(notifications.SMTPConfig{
			Host:        cfg.Email.SMTPHost,
			Port:        cfg.Email.SMTPPort,
			Username:    cfg.Email.SMTPUser,
			Password:    cfg.Email.SMTPPass,
			FromAddress: cfg.Email.FromAddress,
			FromName:    cfg.Email.FromName,
			Timeout:     time.Duration(cfg.Email.SMTPTimeoutSec) * time.Second,
		})
	} else {
		logger.Info("SMTP_HOST not set, notifications are logged only")
		mailer = notifications.NewLogMailer(logger)
	}

	processor := notifications.NewProcessor(
		jobQueue,
		auth.NewRepository(pool),
		events.NewRepository(pool),
		notifications.NewRepository(pool),
		mailer,
		time.Duration(cfg.Worker.RetryBackoffSec)*time.Second,
		logger,
	)

	// Reconciler promotions reach seat watchers on the API instances through Redis.
	participantStore := participants.NewPostgresStore(pool)
	seatBridge := realtime.NewRedisPubSub(rdb.Client, logger)
	notifier := participants.Notifiers{
		notifications.NewQueueNotifier(jobQueue),
		realtime.NewFeed(realtime.NewHub(logger, seatBridge, nil), participantStore),
	}
	engine := participants.NewService(participantStore, notifier, logger,
		participants.WithRetryPolicy(participants.NewRetryPolicy(cfg.Registration.RetryAttempts, cfg.Registration.RetryBackoff())),
		participants.WithPromotionAttempts(cfg.Registration.PromotionAttempts),
		participants.WithNotifyTimeout(cfg.Registration.NotifyTimeout()),
		participants.WithMetrics(observability.NewMetricsRecorder(logger)),
	)

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		processor.Run(workerCtx)
	}()

	if interval := cfg.Worker.ReconcileInterval(); interval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reconcile(workerCtx, engine, interval, logger)
		}()
	} else {
		logger.Info("reconciler disabled")
	}
	logger.Info("worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	wg.Wait()
	engine.Wait()
	logger.Info("worker stopped")
}

// reconcile periodically promotes waiting participants into seats that were
// freed without a completed promotion.
func reconcile(ctx context.Context, engine *participants.Service, interval time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := engine.Reconcile(ctx); err != nil && ctx.Err() == nil {
				logger.Error("reconcile", zap.Error(err))
			}
		}
	}
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
