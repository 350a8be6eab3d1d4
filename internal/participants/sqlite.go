package participants

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/seatline/backend/internal/models"
)

// SQLiteStore persists events and participants to an embedded SQLite file.
// It backs single-process deployments, the simulator and the engine tests.
//
// The pool is limited to one connection: a transaction owns the database
// until it ends, which gives LockEvent its exclusivity. Code running inside
// InTx must only use the Tx it was given.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// ErrStoreClosed is returned by a SQLiteStore after Close.
var ErrStoreClosed = errors.New("participant store closed")

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS events (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	date INTEGER NOT NULL,
	total_seats INTEGER NOT NULL,
	created_by TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS participants (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	user_id TEXT NOT NULL,
	event_id TEXT NOT NULL REFERENCES events(id),
	status TEXT NOT NULL CHECK (status IN ('CONFIRMED', 'WAITING', 'CANCELLED')),
	registered_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	UNIQUE (user_id, event_id)
);
CREATE INDEX IF NOT EXISTS idx_participants_event_seq
	ON participants(event_id, status, seq);
`

// NewSQLiteStore opens (creating if needed) the database at path.
// Use ":memory:" for a throwaway store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *SQLiteStore) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

// CreateEvent inserts an event. ID and timestamps are filled when zero.
func (s *SQLiteStore) CreateEvent(ctx context.Context, e *models.Event) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	now := time.Now().UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now
	_, err := s.db.ExecContext(ctx, `INSERT INTO events (id, title, description, date, total_seats, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID.String(), e.Title, e.Description, e.Date.UnixNano(), e.TotalSeats, e.CreatedBy.String(),
		e.CreatedAt.UnixNano(), e.UpdatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// InTx implements Store.
func (s *SQLiteStore) InTx(ctx context.Context, fn func(tx Tx) error) (err error) {
	if err := s.checkOpen(); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", translateSQLiteError(err))
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(&sqliteTx{tx: tx}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", translateSQLiteError(err))
	}
	return nil
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, id uuid.UUID) (*models.Participant, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+participantColumns+` FROM participants WHERE id = ?`, id.String())
	return scanSQLiteParticipant(row)
}

// ListByEvent implements Store.
func (s *SQLiteStore) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]models.Participant, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+participantColumns+` FROM participants
		WHERE event_id = ? ORDER BY seq ASC`, eventID.String())
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()
	var list []models.Participant
	for rows.Next() {
		p, err := scanSQLiteParticipant(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *p)
	}
	return list, rows.Err()
}

// SeatSummary implements Store.
func (s *SQLiteStore) SeatSummary(ctx context.Context, eventID uuid.UUID) (*models.SeatSummary, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	const q = `SELECT e.total_seats,
		COALESCE(SUM(CASE WHEN p.status = 'CONFIRMED' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN p.status = 'WAITING' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN p.status = 'CANCELLED' THEN 1 ELSE 0 END), 0)
		FROM events e LEFT JOIN participants p ON p.event_id = e.id
		WHERE e.id = ?
		GROUP BY e.id`
	sum := models.SeatSummary{EventID: eventID}
	err := s.db.QueryRowContext(ctx, q, eventID.String()).Scan(&sum.Capacity, &sum.Confirmed, &sum.Waiting, &sum.Cancelled)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("seat summary: %w", err)
	}
	return &sum, nil
}

// EventsAwaitingPromotion implements Store.
func (s *SQLiteStore) EventsAwaitingPromotion(ctx context.Context) ([]uuid.UUID, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	const q = `SELECT e.id FROM events e
		WHERE EXISTS (SELECT 1 FROM participants w WHERE w.event_id = e.id AND w.status = 'WAITING')
		AND (SELECT COUNT(*) FROM participants c WHERE c.event_id = e.id AND c.status = 'CONFIRMED') < e.total_seats`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("events awaiting promotion: %w", err)
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("parse event id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) LockEvent(ctx context.Context, eventID uuid.UUID) (*models.Event, error) {
	var (
		e                          models.Event
		id, createdBy              string
		date, createdAt, updatedAt int64
	)
	err := t.tx.QueryRowContext(ctx, `SELECT id, title, description, date, total_seats, created_by, created_at, updated_at
		FROM events WHERE id = ?`, eventID.String()).
		Scan(&id, &e.Title, &e.Description, &date, &e.TotalSeats, &createdBy, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("read event row: %w", translateSQLiteError(err))
	}
	e.ID, _ = uuid.Parse(id)
	e.CreatedBy, _ = uuid.Parse(createdBy)
	e.Date = time.Unix(0, date).UTC()
	e.CreatedAt = time.Unix(0, createdAt).UTC()
	e.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return &e, nil
}

func (t *sqliteTx) GetByUserAndEvent(ctx context.Context, userID, eventID uuid.UUID) (*models.Participant, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+participantColumns+` FROM participants
		WHERE user_id = ? AND event_id = ?`, userID.String(), eventID.String())
	return scanSQLiteParticipant(row)
}

func (t *sqliteTx) LockParticipant(ctx context.Context, id uuid.UUID) (*models.Participant, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+participantColumns+` FROM participants WHERE id = ?`, id.String())
	return scanSQLiteParticipant(row)
}

func (t *sqliteTx) CountByStatus(ctx context.Context, eventID uuid.UUID, status models.ParticipantStatus) (int, error) {
	var n int
	err := t.tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM participants WHERE event_id = ? AND status = ?`,
		eventID.String(), string(status)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count participants: %w", translateSQLiteError(err))
	}
	return n, nil
}

func (t *sqliteTx) Insert(ctx context.Context, p *models.Participant) error {
	_, err := t.tx.ExecContext(ctx, `INSERT INTO participants (id, user_id, event_id, status, registered_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID.String(), p.UserID.String(), p.EventID.String(), string(p.Status),
		p.RegisteredAt.UnixNano(), p.UpdatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("insert participant: %w", translateSQLiteError(err))
	}
	return nil
}

func (t *sqliteTx) TransitionStatus(ctx context.Context, id uuid.UUID, from, to models.ParticipantStatus) (bool, error) {
	res, err := t.tx.ExecContext(ctx, `UPDATE participants SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?`, string(to), time.Now().UTC().UnixNano(), id.String(), string(from))
	if err != nil {
		return false, fmt.Errorf("update participant status: %w", translateSQLiteError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (t *sqliteTx) EarliestWaiting(ctx context.Context, eventID uuid.UUID) (*models.Participant, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+participantColumns+` FROM participants
		WHERE event_id = ? AND status = 'WAITING'
		ORDER BY seq ASC
		LIMIT 1`, eventID.String())
	return scanSQLiteParticipant(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteParticipant(row rowScanner) (*models.Participant, error) {
	var (
		p                           models.Participant
		id, userID, eventID, status string
		registeredAt, updatedAt     int64
	)
	if err := row.Scan(&id, &userID, &eventID, &status, &registeredAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrParticipantNotFound
		}
		return nil, fmt.Errorf("scan participant: %w", translateSQLiteError(err))
	}
	var err error
	if p.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse participant id: %w", err)
	}
	if p.UserID, err = uuid.Parse(userID); err != nil {
		return nil, fmt.Errorf("parse user id: %w", err)
	}
	if p.EventID, err = uuid.Parse(eventID); err != nil {
		return nil, fmt.Errorf("parse event id: %w", err)
	}
	p.Status = models.ParticipantStatus(status)
	p.RegisteredAt = time.Unix(0, registeredAt).UTC()
	p.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return &p, nil
}

func translateSQLiteError(err error) error {
	var sqlErr *sqlite.Error
	if !errors.As(err, &sqlErr) {
		return err
	}
	switch code := sqlErr.Code(); {
	case code == sqlite3.SQLITE_CONSTRAINT_UNIQUE:
		return ErrAlreadyRegistered
	case code&0xff == sqlite3.SQLITE_BUSY, code&0xff == sqlite3.SQLITE_LOCKED:
		return fmt.Errorf("%w: %s", ErrTransientConflict, sqlErr.Error())
	}
	return err
}
