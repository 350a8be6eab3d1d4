package notifications

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/seatline/backend/internal/models"
	"github.com/seatline/backend/pkg/queue"
)

// JobSource is the queue side the worker consumes.
type JobSource interface {
	Dequeue(ctx context.Context) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) (deadLettered bool, err error)
}

// UserLookup resolves notification recipients.
type UserLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// EventLookup resolves the event a notice is about.
type EventLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error)
}

// LogStore records delivery attempts.
type LogStore interface {
	Create(ctx context.Context, l *models.NotificationLog) error
	MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
}

// Processor delivers queued participant notifications.
type Processor struct {
	jobs    JobSource
	users   UserLookup
	events  EventLookup
	logs    LogStore
	mailer  Mailer
	backoff time.Duration
	logger  *zap.Logger
}

// NewProcessor creates a notification processor. backoff is the pause after a failed job.
func NewProcessor(jobs JobSource, users UserLookup, events EventLookup, logs LogStore, mailer Mailer, backoff time.Duration, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		jobs:    jobs,
		users:   users,
		events:  events,
		logs:    logs,
		mailer:  mailer,
		backoff: backoff,
		logger:  logger,
	}
}

// Process executes one notification job.
func (p *Processor) Process(ctx context.Context, job *queue.Job) error {
	payload, err := job.Notification()
	if err != nil {
		return err
	}
	user, err := p.users.GetByID(ctx, payload.UserID)
	if err != nil {
		return fmt.Errorf("load recipient %s: %w", payload.UserID, err)
	}
	event, err := p.events.GetByID(ctx, payload.EventID)
	if err != nil {
		return fmt.Errorf("load event %s: %w", payload.EventID, err)
	}
	kind := models.NotificationKind(payload.Kind)
	msg, err := Render(kind, user, event)
	if err != nil {
		return err
	}

	participantID := payload.ParticipantID
	entry := &models.NotificationLog{
		EventID:        payload.EventID,
		ParticipantID:  &participantID,
		Kind:           kind,
		RecipientEmail: msg.To,
		Subject:        msg.Subject,
	}
	logged := true
	if err := p.logs.Create(ctx, entry); err != nil {
		logged = false
		p.logger.Warn("notification log insert failed", zap.String("job_id", job.ID), zap.Error(err))
	}

	if sendErr := p.mailer.Send(ctx, msg); sendErr != nil {
		if logged {
			if err := p.logs.MarkFailed(ctx, entry.ID, sendErr.Error()); err != nil {
				p.logger.Warn("notification log update failed", zap.Error(err))
			}
		}
		return fmt.Errorf("send %s notice: %w", kind, sendErr)
	}
	if logged {
		if err := p.logs.MarkSent(ctx, entry.ID, time.Now().UTC()); err != nil {
			p.logger.Warn("notification log update failed", zap.Error(err))
		}
	}
	p.logger.Info("notification sent",
		zap.String("kind", string(kind)),
		zap.String("participant_id", payload.ParticipantID.String()),
		zap.String("to", msg.To),
	)
	return nil
}

// ProcessNext dequeues and handles at most one job. It reports whether a job
// was taken. A failed job is re-queued or dead-lettered.
func (p *Processor) ProcessNext(ctx context.Context) (bool, error) {
	job, err := p.jobs.Dequeue(ctx)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}
	p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
	procErr := p.Process(ctx, job)
	if procErr == nil {
		return true, nil
	}
	p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(procErr))
	dead, err := p.jobs.Retry(ctx, job)
	if err != nil {
		return true, fmt.Errorf("retry enqueue: %w", err)
	}
	if dead {
		p.logger.Warn("notification dead-lettered", zap.String("job_id", job.ID))
	}
	return true, procErr
}

// Run starts the worker loop until ctx is done.
func (p *Processor) Run(ctx context.Context) {
	p.logger.Info("notification worker started")
	for {
		if ctx.Err() != nil {
			p.logger.Info("notification worker stopping")
			return
		}
		_, err := p.ProcessNext(ctx)
		if err == nil || errors.Is(err, context.Canceled) {
			continue
		}
		select {
		case <-ctx.Done():
		case <-time.After(p.backoff):
		}
	}
}
