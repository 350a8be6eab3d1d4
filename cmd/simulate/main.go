// Package main runs a concurrent registration and cancellation burst against
// an embedded SQLite store and reports the final seat accounting.
package main

import (
	"context"
	"errors"
	"flag"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/seatline/backend/internal/models"
	"github.com/seatline/backend/internal/participants"
)

type countingNotifier struct {
	sent [4]atomic.Int64
}

func (n *countingNotifier) Notify(_ context.Context, notice models.Notice) error {
	switch notice.Kind {
	case models.NotificationConfirmation:
		n.sent[0].Add(1)
	case models.NotificationWaiting:
		n.sent[1].Add(1)
	case models.NotificationPromotion:
		n.sent[2].Add(1)
	case models.NotificationCancellation:
		n.sent[3].Add(1)
	}
	return nil
}

func main() {
	seats := flag.Int("seats", 10, "event capacity")
	users := flag.Int("users", 50, "concurrent registrants")
	cancelRatio := flag.Float64("cancel", 0.3, "fraction of registrants that cancel afterwards")
	dbPath := flag.String("db", "", "SQLite file (default: temporary file)")
	flag.Parse()

	logger := newLogger()
	defer logger.Sync()

	path := *dbPath
	if path == "" {
		dir, err := os.MkdirTemp("", "seatline-sim")
		if err != nil {
			logger.Fatal("temp dir", zap.Error(err))
		}
		defer os.RemoveAll(dir)
		path = filepath.Join(dir, "seats.db")
	}

	store, err := participants.NewSQLiteStore(path)
	if err != nil {
		logger.Fatal("open store", zap.Error(err))
	}
	defer store.Close()

	ctx := context.Background()
	event := &models.Event{Title: "Simulated event", Date: time.Now().Add(24 * time.Hour), TotalSeats: *seats}
	if err := store.CreateEvent(ctx, event); err != nil {
		logger.Fatal("create event", zap.Error(err))
	}

	notifier := &countingNotifier{}
	engine := participants.NewService(store, notifier, logger.Named("engine"))

	start := time.Now()
	registered := make([]*models.Participant, *users)
	var wg sync.WaitGroup
	for i := 0; i < *users; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := engine.Register(ctx, uuid.New(), event.ID)
			if err != nil {
				logger.Error("register", zap.Int("user", i), zap.Error(err))
				return
			}
			registered[i] = p
		}(i)
	}
	wg.Wait()

	var cancelled atomic.Int64
	for _, p := range registered {
		if p == nil || rand.Float64() >= *cancelRatio {
			continue
		}
		wg.Add(1)
		go func(p *models.Participant) {
			defer wg.Done()
			_, err := engine.Cancel(ctx, p.ID, participants.Actor{UserID: p.UserID, Role: models.RoleUser})
			if err != nil && !errors.Is(err, participants.ErrAlreadyCancelled) {
				logger.Error("cancel", zap.String("participant_id", p.ID.String()), zap.Error(err))
				return
			}
			cancelled.Add(1)
		}(p)
	}
	wg.Wait()
	engine.Wait()

	summary, err := engine.Summary(ctx, event.ID)
	if err != nil {
		logger.Fatal("summary", zap.Error(err))
	}
	logger.Info("simulation finished",
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("capacity", summary.Capacity),
		zap.Int("confirmed", summary.Confirmed),
		zap.Int("waiting", summary.Waiting),
		zap.Int("cancelled", summary.Cancelled),
		zap.Int64("cancel_requests", cancelled.Load()),
		zap.Int64("confirmation_notices", notifier.sent[0].Load()),
		zap.Int64("waiting_notices", notifier.sent[1].Load()),
		zap.Int64("promotion_notices", notifier.sent[2].Load()),
		zap.Int64("cancellation_notices", notifier.sent[3].Load()),
	)

	if summary.Confirmed > summary.Capacity {
		logger.Error("capacity exceeded")
		os.Exit(1)
	}
	if summary.Waiting > 0 && summary.Available() > 0 {
		logger.Error("free seats left while participants are waiting")
		os.Exit(1)
	}
}

func newLogger() *zap.Logger {
	config := zap.NewDevelopmentConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
