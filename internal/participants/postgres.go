package participants

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/seatline/backend/internal/models"
)

const participantColumns = `id, user_id, event_id, status, registered_at, updated_at`

// PostgresStore implements Store on PostgreSQL. Transactions run at READ
// COMMITTED; the per-event serialization comes from SELECT ... FOR UPDATE on
// the events row, so events never block each other.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a participant store on the given pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// InTx implements Store.
func (s *PostgresStore) InTx(ctx context.Context, fn func(tx Tx) error) (err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", translatePgError(err))
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", translatePgError(err))
	}
	return nil
}

// Get implements Store.
func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*models.Participant, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+participantColumns+` FROM participants WHERE id = $1`, id)
	return scanParticipant(row)
}

// ListByEvent implements Store.
func (s *PostgresStore) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]models.Participant, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+participantColumns+` FROM participants
		WHERE event_id = $1 ORDER BY seq ASC`, eventID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()
	var list []models.Participant
	for rows.Next() {
		var p models.Participant
		if err := rows.Scan(&p.ID, &p.UserID, &p.EventID, &p.Status, &p.RegisteredAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

// SeatSummary implements Store.
func (s *PostgresStore) SeatSummary(ctx context.Context, eventID uuid.UUID) (*models.SeatSummary, error) {
	const q = `SELECT e.total_seats,
		COUNT(p.id) FILTER (WHERE p.status = 'CONFIRMED'),
		COUNT(p.id) FILTER (WHERE p.status = 'WAITING'),
		COUNT(p.id) FILTER (WHERE p.status = 'CANCELLED')
		FROM events e LEFT JOIN participants p ON p.event_id = e.id
		WHERE e.id = $1
		GROUP BY e.id`
	sum := models.SeatSummary{EventID: eventID}
	err := s.pool.QueryRow(ctx, q, eventID).Scan(&sum.Capacity, &sum.Confirmed, &sum.Waiting, &sum.Cancelled)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("seat summary: %w", err)
	}
	return &sum, nil
}

// EventsAwaitingPromotion implements Store.
func (s *PostgresStore) EventsAwaitingPromotion(ctx context.Context) ([]uuid.UUID, error) {
	const q = `SELECT e.id FROM events e
		WHERE EXISTS (SELECT 1 FROM participants w WHERE w.event_id = e.id AND w.status = 'WAITING')
		AND (SELECT COUNT(*) FROM participants c WHERE c.event_id = e.id AND c.status = 'CONFIRMED') < e.total_seats`
	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("events awaiting promotion: %w", err)
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) LockEvent(ctx context.Context, eventID uuid.UUID) (*models.Event, error) {
	const q = `SELECT id, title, description, date, total_seats, created_by, created_at, updated_at
		FROM events WHERE id = $1 FOR UPDATE`
	var e models.Event
	err := t.tx.QueryRow(ctx, q, eventID).Scan(&e.ID, &e.Title, &e.Description, &e.Date, &e.TotalSeats, &e.CreatedBy, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("lock event row: %w", translatePgError(err))
	}
	return &e, nil
}

func (t *pgTx) GetByUserAndEvent(ctx context.Context, userID, eventID uuid.UUID) (*models.Participant, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+participantColumns+` FROM participants
		WHERE user_id = $1 AND event_id = $2`, userID, eventID)
	return scanParticipant(row)
}

func (t *pgTx) LockParticipant(ctx context.Context, id uuid.UUID) (*models.Participant, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+participantColumns+` FROM participants WHERE id = $1 FOR UPDATE`, id)
	return scanParticipant(row)
}

func (t *pgTx) CountByStatus(ctx context.Context, eventID uuid.UUID, status models.ParticipantStatus) (int, error) {
	var n int
	err := t.tx.QueryRow(ctx, `SELECT COUNT(*) FROM participants WHERE event_id = $1 AND status = $2`,
		eventID, string(status)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count participants: %w", translatePgError(err))
	}
	return n, nil
}

func (t *pgTx) Insert(ctx context.Context, p *models.Participant) error {
	const q = `INSERT INTO participants (id, user_id, event_id, status, registered_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := t.tx.Exec(ctx, q, p.ID, p.UserID, p.EventID, string(p.Status), p.RegisteredAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert participant: %w", translatePgError(err))
	}
	return nil
}

func (t *pgTx) TransitionStatus(ctx context.Context, id uuid.UUID, from, to models.ParticipantStatus) (bool, error) {
	tag, err := t.tx.Exec(ctx, `UPDATE participants SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3`, string(to), id, string(from))
	if err != nil {
		return false, fmt.Errorf("update participant status: %w", translatePgError(err))
	}
	return tag.RowsAffected() == 1, nil
}

func (t *pgTx) EarliestWaiting(ctx context.Context, eventID uuid.UUID) (*models.Participant, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+participantColumns+` FROM participants
		WHERE event_id = $1 AND status = 'WAITING'
		ORDER BY seq ASC
		LIMIT 1
		FOR UPDATE`, eventID)
	return scanParticipant(row)
}

func scanParticipant(row pgx.Row) (*models.Participant, error) {
	var p models.Participant
	err := row.Scan(&p.ID, &p.UserID, &p.EventID, &p.Status, &p.RegisteredAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrParticipantNotFound
		}
		return nil, fmt.Errorf("scan participant: %w", translatePgError(err))
	}
	return &p, nil
}

// translatePgError maps PostgreSQL error codes onto the engine's taxonomy.
func translatePgError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "23505": // unique_violation
		return ErrAlreadyRegistered
	case "40001", "40P01", "55P03": // serialization_failure, deadlock_detected, lock_not_available
		return fmt.Errorf("%w: %s", ErrTransientConflict, pgErr.Message)
	}
	return err
}
