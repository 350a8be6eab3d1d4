package notifications

import (
	"context"

	"github.com/seatline/backend/internal/models"
	"github.com/seatline/backend/pkg/queue"
)

// Enqueuer accepts notification jobs.
type Enqueuer interface {
	EnqueueNotification(ctx context.Context, payload queue.NotificationPayload) error
}

// QueueNotifier hands participant notices to the worker through the job queue.
type QueueNotifier struct {
	queue Enqueuer
}

// NewQueueNotifier creates a notifier backed by q.
func NewQueueNotifier(q Enqueuer) *QueueNotifier {
	return &QueueNotifier{queue: q}
}

// Notify implements participants.Notifier.
func (n *QueueNotifier) Notify(ctx context.Context, notice models.Notice) error {
	return n.queue.EnqueueNotification(ctx, queue.NotificationPayload{
		Kind:          string(notice.Kind),
		ParticipantID: notice.ParticipantID,
		UserID:        notice.UserID,
		EventID:       notice.EventID,
		OccurredAt:    notice.OccurredAt,
	})
}
