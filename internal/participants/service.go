package participants

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/seatline/backend/internal/models"
	"github.com/seatline/backend/internal/observability"
)

// Notifier hands a committed participant transition to the notification gateway.
type Notifier interface {
	Notify(ctx context.Context, n models.Notice) error
}

// Notifiers fans a notice out to several notifiers. Every notifier is tried;
// the failures are joined.
type Notifiers []Notifier

// Notify implements Notifier.
func (ns Notifiers) Notify(ctx context.Context, n models.Notice) error {
	var errs []error
	for _, notifier := range ns {
		if err := notifier.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Actor is the authenticated caller as supplied by the identity layer.
type Actor struct {
	UserID uuid.UUID
	Role   models.Role
}

// SystemActor is used by internal jobs (reconciler, simulator).
var SystemActor = Actor{Role: models.RoleAdmin}

func (a Actor) canManage(p *models.Participant) bool {
	return a.Role == models.RoleAdmin || a.UserID == p.UserID
}

// Option configures a Service.
type Option func(*Service)

// WithRetryPolicy sets the policy for transient store conflicts.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(s *Service) { s.retry = p }
}

// WithPromotionAttempts bounds promotion tries per freed seat (first try included).
func WithPromotionAttempts(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.promotionAttempts = n
		}
	}
}

// WithNotifyTimeout bounds a single notification hand-off.
func WithNotifyTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.notifyTimeout = d
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m observability.Recorder) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithClock overrides the registration timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service is the registration and cancellation engine.
type Service struct {
	store             Store
	notifier          Notifier
	metrics           observability.Recorder
	logger            *zap.Logger
	retry             RetryPolicy
	promotionAttempts int
	notifyTimeout     time.Duration
	now               func() time.Time

	inflight sync.WaitGroup
}

// NewService creates the engine. notifier may be nil to disable notices.
func NewService(store Store, notifier Notifier, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		store:             store,
		notifier:          notifier,
		metrics:           observability.NoopMetrics{},
		logger:            logger,
		retry:             DefaultRetry,
		promotionAttempts: 2,
		notifyTimeout:     10 * time.Second,
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates a participant for (userID, eventID): CONFIRMED while the
// event has a free seat, WAITING otherwise. The duplicate check, seat count
// and insert run in one transaction holding the event lock.
func (s *Service) Register(ctx context.Context, userID, eventID uuid.UUID) (*models.Participant, error) {
	var created *models.Participant
	err := s.retry.Do(ctx, func() error {
		created = nil
		return s.store.InTx(ctx, func(tx Tx) error {
			existing, err := tx.GetByUserAndEvent(ctx, userID, eventID)
			switch {
			case err == nil && existing != nil:
				return ErrAlreadyRegistered
			case err != nil && !errors.Is(err, ErrParticipantNotFound):
				return err
			}

			event, err := tx.LockEvent(ctx, eventID)
			if err != nil {
				return err
			}
			confirmed, err := tx.CountByStatus(ctx, eventID, models.StatusConfirmed)
			if err != nil {
				return err
			}

			status := models.StatusWaiting
			if confirmed < event.TotalSeats {
				status = models.StatusConfirmed
			}
			now := s.now().UTC()
			p := &models.Participant{
				ID:           uuid.New(),
				UserID:       userID,
				EventID:      eventID,
				Status:       status,
				RegisteredAt: now,
				UpdatedAt:    now,
			}
			if err := tx.Insert(ctx, p); err != nil {
				return err
			}
			created = p
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordRegistration(ctx, created.Status)
	s.logger.Info("participant registered",
		zap.String("participant_id", created.ID.String()),
		zap.String("event_id", eventID.String()),
		zap.String("status", string(created.Status)),
	)
	kind := models.NotificationConfirmation
	if created.Status == models.StatusWaiting {
		kind = models.NotificationWaiting
	}
	s.dispatch(kind, created)
	return created, nil
}

// Cancel marks the participant CANCELLED. When the participant held a
// confirmed seat, the earliest waiting participant is promoted afterwards;
// promotion problems are logged and never fail the cancellation.
func (s *Service) Cancel(ctx context.Context, participantID uuid.UUID, actor Actor) (*models.Participant, error) {
	var (
		cancelled *models.Participant
		prior     models.ParticipantStatus
	)
	err := s.retry.Do(ctx, func() error {
		return s.store.InTx(ctx, func(tx Tx) error {
			p, err := tx.LockParticipant(ctx, participantID)
			if err != nil {
				return err
			}
			if !actor.canManage(p) {
				return ErrUnauthorized
			}
			if p.Status == models.StatusCancelled {
				return ErrAlreadyCancelled
			}
			ok, err := tx.TransitionStatus(ctx, p.ID, p.Status, models.StatusCancelled)
			if err != nil {
				return err
			}
			if !ok {
				// The row moved under us; a retry re-reads it.
				return ErrTransientConflict
			}
			prior = p.Status
			p.Status = models.StatusCancelled
			p.UpdatedAt = s.now().UTC()
			cancelled = p
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordCancellation(ctx, prior)
	s.logger.Info("participant cancelled",
		zap.String("participant_id", cancelled.ID.String()),
		zap.String("event_id", cancelled.EventID.String()),
		zap.String("prior_status", string(prior)),
	)
	s.dispatch(models.NotificationCancellation, cancelled)

	if prior == models.StatusConfirmed {
		// The cancellation is committed; a caller going away must not stop
		// the freed seat from being handed on.
		promoCtx := context.WithoutCancel(ctx)
		if _, err := s.promoteNext(promoCtx, cancelled.EventID); err != nil {
			s.logger.Warn("promotion after cancellation failed",
				zap.String("event_id", cancelled.EventID.String()),
				zap.Error(err),
			)
		}
	}
	return cancelled, nil
}

// PromoteWaiting fills every free seat of the event from its waiting list,
// in registration order, and returns the promoted participants.
func (s *Service) PromoteWaiting(ctx context.Context, eventID uuid.UUID) ([]models.Participant, error) {
	var promoted []models.Participant
	for {
		p, err := s.promoteNext(ctx, eventID)
		if err != nil {
			return promoted, err
		}
		if p == nil {
			return promoted, nil
		}
		promoted = append(promoted, *p)
	}
}

// Reconcile promotes waiting participants for every event that has a free
// seat. It repairs seats left free when a process stopped between a
// cancellation commit and its promotion step.
func (s *Service) Reconcile(ctx context.Context) (int, error) {
	eventIDs, err := s.store.EventsAwaitingPromotion(ctx)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, id := range eventIDs {
		promoted, err := s.PromoteWaiting(ctx, id)
		total += len(promoted)
		if err != nil {
			return total, err
		}
	}
	if total > 0 {
		s.logger.Info("reconciler promoted waiting participants", zap.Int("count", total))
	}
	return total, nil
}

// promoteNext promotes at most one waiting participant. A candidate that was
// changed concurrently is retried up to promotionAttempts, then given up on.
func (s *Service) promoteNext(ctx context.Context, eventID uuid.UUID) (*models.Participant, error) {
	for attempt := 1; attempt <= s.promotionAttempts; attempt++ {
		var promoted *models.Participant
		err := s.retry.Do(ctx, func() error {
			promoted = nil
			return s.store.InTx(ctx, func(tx Tx) error {
				event, err := tx.LockEvent(ctx, eventID)
				if err != nil {
					return err
				}
				confirmed, err := tx.CountByStatus(ctx, eventID, models.StatusConfirmed)
				if err != nil {
					return err
				}
				if confirmed >= event.TotalSeats {
					return nil
				}
				next, err := tx.EarliestWaiting(ctx, eventID)
				if errors.Is(err, ErrParticipantNotFound) {
					return nil
				}
				if err != nil {
					return err
				}
				ok, err := tx.TransitionStatus(ctx, next.ID, models.StatusWaiting, models.StatusConfirmed)
				if err != nil {
					return err
				}
				if !ok {
					return errPromotionConflict
				}
				next.Status = models.StatusConfirmed
				next.UpdatedAt = s.now().UTC()
				promoted = next
				return nil
			})
		})
		if errors.Is(err, errPromotionConflict) {
			s.metrics.RecordPromotionConflict(ctx)
			s.logger.Debug("promotion candidate changed, retrying",
				zap.String("event_id", eventID.String()),
				zap.Int("attempt", attempt),
			)
			continue
		}
		if err != nil {
			return nil, err
		}
		if promoted != nil {
			s.metrics.RecordPromotion(ctx)
			s.logger.Info("waiting participant promoted",
				zap.String("participant_id", promoted.ID.String()),
				zap.String("event_id", eventID.String()),
			)
			s.dispatch(models.NotificationPromotion, promoted)
		}
		return promoted, nil
	}
	return nil, nil
}

// Get returns a participant the actor may see.
func (s *Service) Get(ctx context.Context, id uuid.UUID, actor Actor) (*models.Participant, error) {
	p, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.canManage(p) {
		return nil, ErrUnauthorized
	}
	return p, nil
}

// ListByEvent returns all participants of an event in registration order.
func (s *Service) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]models.Participant, error) {
	return s.store.ListByEvent(ctx, eventID)
}

// Summary returns the seat accounting for an event.
func (s *Service) Summary(ctx context.Context, eventID uuid.UUID) (*models.SeatSummary, error) {
	return s.store.SeatSummary(ctx, eventID)
}

// Wait blocks until every dispatched notice has been handed off or timed out.
func (s *Service) Wait() {
	s.inflight.Wait()
}

// dispatch hands the notice to the notifier off the caller's path.
func (s *Service) dispatch(kind models.NotificationKind, p *models.Participant) {
	if s.notifier == nil {
		return
	}
	n := models.Notice{
		Kind:          kind,
		ParticipantID: p.ID,
		UserID:        p.UserID,
		EventID:       p.EventID,
		OccurredAt:    s.now().UTC(),
	}
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.notifyTimeout)
		defer cancel()
		if err := s.notifier.Notify(ctx, n); err != nil {
			s.metrics.RecordNotificationFailure(ctx, n.Kind)
			s.logger.Warn(ErrNotificationFailed.Error(),
				zap.String("kind", string(n.Kind)),
				zap.String("participant_id", n.ParticipantID.String()),
				zap.Error(err),
			)
		}
	}()
}
