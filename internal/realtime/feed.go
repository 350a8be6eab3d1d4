package realtime

import (
	"context"
	"fmt"

	"github.com/seatline/backend/internal/models"
)

// Feed pushes the current seat accounting of an event to its watchers
// whenever a participant notice is dispatched.
type Feed struct {
	hub   *Hub
	seats SeatCounter
}

// NewFeed creates a seat feed.
func NewFeed(hub *Hub, seats SeatCounter) *Feed {
	return &Feed{hub: hub, seats: seats}
}

// Notify implements participants.Notifier.
func (f *Feed) Notify(ctx context.Context, notice models.Notice) error {
	summary, err := f.seats.SeatSummary(ctx, notice.EventID)
	if err != nil {
		return fmt.Errorf("seat feed summary: %w", err)
	}
	view := newSeatView(summary)
	view.Cause = notice.Kind
	if err := f.hub.Publish(notice.EventID, EventSeatsUpdated, view); err != nil {
		return fmt.Errorf("seat feed publish: %w", err)
	}
	return nil
}
