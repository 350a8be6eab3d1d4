package models

import (
	"time"

	"github.com/google/uuid"
)

// ParticipantStatus is the lifecycle state of a participant.
type ParticipantStatus string

const (
	StatusConfirmed ParticipantStatus = "CONFIRMED"
	StatusWaiting   ParticipantStatus = "WAITING"
	StatusCancelled ParticipantStatus = "CANCELLED"
)

// Valid reports whether s is one of the known statuses.
func (s ParticipantStatus) Valid() bool {
	switch s {
	case StatusConfirmed, StatusWaiting, StatusCancelled:
		return true
	}
	return false
}

// Participant is a user's registration for an event (unique per user+event).
type Participant struct {
	ID           uuid.UUID         `json:"id"`
	UserID       uuid.UUID         `json:"user_id"`
	EventID      uuid.UUID         `json:"event_id"`
	Status       ParticipantStatus `json:"status"`
	RegisteredAt time.Time         `json:"registered_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}
