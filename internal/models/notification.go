package models

import (
	"time"

	"github.com/google/uuid"
)

// NotificationKind identifies which participant transition a notice reports.
type NotificationKind string

const (
	NotificationConfirmation NotificationKind = "confirmation"
	NotificationWaiting      NotificationKind = "waiting"
	NotificationPromotion    NotificationKind = "promotion"
	NotificationCancellation NotificationKind = "cancellation"
)

// Notice is emitted by the registration engine after a transaction commits.
type Notice struct {
	Kind          NotificationKind `json:"kind"`
	ParticipantID uuid.UUID        `json:"participant_id"`
	UserID        uuid.UUID        `json:"user_id"`
	EventID       uuid.UUID        `json:"event_id"`
	OccurredAt    time.Time        `json:"occurred_at"`
}

// NotificationLog status values.
const (
	NotificationLogPending = "pending"
	NotificationLogSent    = "sent"
	NotificationLogFailed  = "failed"
)

// NotificationLog records one delivery attempt of a participant notice.
type NotificationLog struct {
	ID             uuid.UUID        `json:"id"`
	EventID        uuid.UUID        `json:"event_id"`
	ParticipantID  *uuid.UUID       `json:"participant_id,omitempty"`
	Kind           NotificationKind `json:"kind"`
	RecipientEmail string           `json:"recipient_email"`
	Subject        string           `json:"subject,omitempty"`
	Status         string           `json:"status"`
	SentAt         *time.Time       `json:"sent_at,omitempty"`
	ErrorMessage   string           `json:"error_message,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
}
