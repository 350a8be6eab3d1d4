package notifications

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/seatline/backend/internal/models"
)

// Repository handles notification_logs persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a notification log repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a pending log row and fills its id.
func (r *Repository) Create(ctx context.Context, l *models.NotificationLog) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	if l.Status == "" {
		l.Status = models.NotificationLogPending
	}
	const q = `INSERT INTO notification_logs (id, event_id, participant_id, kind, recipient_email, subject, status)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7)
		RETURNING created_at`
	err := r.pool.QueryRow(ctx, q, l.ID, l.EventID, l.ParticipantID, string(l.Kind), l.RecipientEmail, l.Subject, l.Status).
		Scan(&l.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert notification log: %w", err)
	}
	return nil
}

// MarkSent records a successful delivery.
func (r *Repository) MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE notification_logs SET status = $1, sent_at = $2, error_message = NULL WHERE id = $3`,
		models.NotificationLogSent, at, id)
	return err
}

// MarkFailed records a failed delivery attempt.
func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	_, err := r.pool.Exec(ctx, `UPDATE notification_logs SET status = $1, error_message = $2 WHERE id = $3`,
		models.NotificationLogFailed, reason, id)
	return err
}

// ListByEvent returns notification logs for an event, newest first.
func (r *Repository) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]models.NotificationLog, error) {
	const q = `SELECT id, event_id, participant_id, kind, recipient_email, subject, status, sent_at, error_message, created_at
		FROM notification_logs
		WHERE event_id = $1
		ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, q, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.NotificationLog
	for rows.Next() {
		var l models.NotificationLog
		var subject, errMsg *string
		if err := rows.Scan(&l.ID, &l.EventID, &l.ParticipantID, &l.Kind, &l.RecipientEmail, &subject, &l.Status, &l.SentAt, &errMsg, &l.CreatedAt); err != nil {
			return nil, err
		}
		if subject != nil {
			l.Subject = *subject
		}
		if errMsg != nil {
			l.ErrorMessage = *errMsg
		}
		list = append(list, l)
	}
	return list, rows.Err()
}
