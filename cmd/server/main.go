// Package main runs the event registration HTTP server with graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/seatline/backend/config"
	"github.com/seatline/backend/internal/auth"
	"github.com/seatline/backend/internal/events"
	"github.com/seatline/backend/internal/middleware"
	"github.com/seatline/backend/internal/models"
	"github.com/seatline/backend/internal/notifications"
	"github.com/seatline/backend/internal/observability"
	"github.com/seatline/backend/internal/participants"
	"github.com/seatline/backend/internal/realtime"
	"github.com/seatline/backend/internal/roster"
	"github.com/seatline/backend/pkg/database"
	"github.com/seatline/backend/pkg/queue"
	"github.com/seatline/backend/pkg/redis"
	"github.com/seatline/backend/pkg/response"
	"github.com/seatline/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), database.PoolOptions{}, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool, logger); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB}, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var exporter *roster.Exporter
	s3Cfg := storage.S3Config{
		Region:               cfg.AWS.Region,
		AccessKeyID:          cfg.AWS.AccessKeyID,
		SecretAccessKey:      cfg.AWS.SecretAccessKey,
		ExportsBucket:        cfg.AWS.ExportsBucket,
		PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
	}
	if s3Cfg.Enabled() {
		s3Client, err := storage.NewS3(ctx, s3Cfg, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		} else {
			exporter = roster.NewExporter(roster.NewRepository(pool), s3Client, s3Client.PresignExpire())
		}
	} else {
		logger.Info("roster export disabled (AWS_S3_EXPORTS_BUCKET not set)")
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	jobQueue := queue.NewQueue(rdb.Client, logger, queue.WithMaxRetries(cfg.Worker.MaxRetries))

	// Registration engine; every transition is queued for email and pushed to seat watchers.
	participantStore := participants.NewPostgresStore(pool)
	seatBridge := realtime.NewRedisPubSub(rdb.Client, logger)
	hub := realtime.NewHub(logger, seatBridge, seatBridge)
	defer hub.Close()
	notifier := participants.Notifiers{
		notifications.NewQueueNotifier(jobQueue),
		realtime.NewFeed(hub, participantStore),
	}
	engine := participants.NewService(participantStore, notifier, logger,
		participants.WithRetryPolicy(participants.NewRetryPolicy(cfg.Registration.RetryAttempts, cfg.Registration.RetryBackoff())),
		participants.WithPromotionAttempts(cfg.Registration.PromotionAttempts),
		participants.WithNotifyTimeout(cfg.Registration.NotifyTimeout()),
		participants.WithMetrics(observability.NewMetricsRecorder(logger)),
	)

	userRepo := auth.NewRepository(pool)
	authHandler := auth.NewHandler(userRepo, logger)

	eventRepo := events.NewRepository(pool)
	eventHandler := events.NewHandler(eventRepo, engine, logger)
	participantHandler := participants.NewHandler(engine, userRepo, logger)
	rosterHandler := roster.NewHandler(exporter, eventRepo, logger)
	notificationHandler := notifications.NewHandler(notifications.NewRepository(pool))

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) {
		if err := pool.Ping(c.Request.Context()); err != nil || !rdb.Healthy(c.Request.Context()) {
			response.ServiceUnavailable(c, "dependencies unavailable")
			return
		}
		response.OK(c, gin.H{"status": "ok"})
	})

	// Live seat feed (token in query)
	router.GET("/ws/seats", realtime.ServeWs(hub, participantStore, jwtService.Validate, logger))

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		api.GET("/auth/me", authHandler.Me)

		// Events
		api.GET("/events", eventHandler.List)
		api.POST("/events", middleware.RequireRole(models.RoleAdmin), eventHandler.Create)
		api.GET("/events/:id", eventHandler.GetByID)
		api.GET("/events/:id/notifications", middleware.RequireRole(models.RoleAdmin), notificationHandler.ListByEvent)
		api.POST("/events/:id/participants/export", middleware.RequireRole(models.RoleAdmin), rosterHandler.Export)

		// Participants
		api.POST("/events/:id/register", participantHandler.Register)
		api.GET("/events/:id/participants", participantHandler.ListByEvent)
		api.GET("/participants/:id", participantHandler.Get)
		api.POST("/participants/:id/cancel", participantHandler.Cancel)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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
	engine.Wait()
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
