package participants

import (
	"context"

	"github.com/google/uuid"

	"github.com/seatline/backend/internal/models"
)

// Store is the participant persistence contract the engine runs against.
//
// All seat-affecting mutations go through InTx. Implementations must make
// Tx.LockEvent exclusive per event until the transaction ends, so that the
// confirmed-count read and the insert or promotion that depends on it cannot
// interleave with another transaction for the same event.
type Store interface {
	// InTx runs fn inside one transaction. A non-nil error from fn rolls back.
	InTx(ctx context.Context, fn func(tx Tx) error) error

	Get(ctx context.Context, id uuid.UUID) (*models.Participant, error)
	ListByEvent(ctx context.Context, eventID uuid.UUID) ([]models.Participant, error)
	SeatSummary(ctx context.Context, eventID uuid.UUID) (*models.SeatSummary, error)
	// EventsAwaitingPromotion returns events that have a free seat and at
	// least one WAITING participant.
	EventsAwaitingPromotion(ctx context.Context) ([]uuid.UUID, error)
}

// Tx is the set of operations available inside a Store transaction.
type Tx interface {
	// LockEvent returns the event and holds its lock until commit or rollback.
	LockEvent(ctx context.Context, eventID uuid.UUID) (*models.Event, error)
	GetByUserAndEvent(ctx context.Context, userID, eventID uuid.UUID) (*models.Participant, error)
	// LockParticipant returns the participant and holds its row lock.
	LockParticipant(ctx context.Context, id uuid.UUID) (*models.Participant, error)
	CountByStatus(ctx context.Context, eventID uuid.UUID, status models.ParticipantStatus) (int, error)
	// Insert fails with ErrAlreadyRegistered when (user, event) already exists.
	Insert(ctx context.Context, p *models.Participant) error
	// TransitionStatus moves id from one status to another and reports
	// whether the row was still in the from status.
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to models.ParticipantStatus) (bool, error)
	// EarliestWaiting returns the first WAITING participant of the event in
	// insertion order, or ErrParticipantNotFound.
	EarliestWaiting(ctx context.Context, eventID uuid.UUID) (*models.Participant, error)
}
