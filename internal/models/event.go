package models

import (
	"time"

	"github.com/google/uuid"
)

// Event is a scheduled event with a fixed number of seats.
type Event struct {
	ID          uuid.UUID `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Date        time.Time `json:"date"`
	TotalSeats  int       `json:"total_seats"`
	CreatedBy   uuid.UUID `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// SeatSummary is the seat accounting of one event at a point in time.
type SeatSummary struct {
	EventID   uuid.UUID `json:"event_id"`
	Capacity  int       `json:"capacity"`
	Confirmed int       `json:"confirmed"`
	Waiting   int       `json:"waiting"`
	Cancelled int       `json:"cancelled"`
}

// Available returns the number of free seats; never negative.
func (s SeatSummary) Available() int {
	if free := s.Capacity - s.Confirmed; free > 0 {
		return free
	}
	return 0
}
