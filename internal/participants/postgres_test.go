package participants

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seatline/backend/pkg/database"
)

func TestTranslatePgError(t *testing.T) {
	plain := errors.New("connection reset")
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"unique violation", &pgconn.PgError{Code: "23505"}, ErrAlreadyRegistered},
		{"serialization failure", &pgconn.PgError{Code: "40001"}, ErrTransientConflict},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, ErrTransientConflict},
		{"lock not available", &pgconn.PgError{Code: "55P03"}, ErrTransientConflict},
		{"wrapped deadlock", fmt.Errorf("lock event: %w", &pgconn.PgError{Code: "40P01"}), ErrTransientConflict},
		{"wrapped unique violation", fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"}), ErrAlreadyRegistered},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, translatePgError(tt.err), tt.want)
		})
	}

	t.Run("other codes pass through", func(t *testing.T) {
		err := &pgconn.PgError{Code: "23503"} // foreign_key_violation
		got := translatePgError(err)
		assert.Same(t, err, got)
		assert.NotErrorIs(t, got, ErrTransientConflict)
		assert.NotErrorIs(t, got, ErrAlreadyRegistered)
	})

	t.Run("non-postgres errors pass through", func(t *testing.T) {
		assert.Same(t, plain, translatePgError(plain))
	})
}

// newPostgresTestStore connects to DATABASE_URL and applies the migrations.
// Tests using it are skipped when no database is configured.
func newPostgresTestStore(t *testing.T) (*PostgresStore, *pgxpool.Pool) {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pool, err := database.NewPostgresPool(ctx, dsn, database.PoolOptions{MaxConns: 20}, nil)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, database.Migrate(ctx, pool, nil))
	return NewPostgresStore(pool), pool
}

func newPostgresTestEvent(t *testing.T, pool *pgxpool.Pool, seats int) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := pool.Exec(context.Background(),
		`INSERT INTO events (id, title, date, total_seats, created_by) VALUES ($1, $2, $3, $4, $5)`,
		id, "Go meetup", time.Date(2026, 4, 1, 18, 0, 0, 0, time.UTC), seats, uuid.New())
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), `DELETE FROM events WHERE id = $1`, id)
	})
	return id
}

func TestPostgresStore_ConcurrentNeverOverbooks(t *testing.T) {
	store, pool := newPostgresTestStore(t)
	assertConcurrentNeverOverbooks(t, store, newPostgresTestEvent(t, pool, 10))
}

func TestPostgresStore_ConcurrentCancelPromotesOnce(t *testing.T) {
	store, pool := newPostgresTestStore(t)
	assertConcurrentCancelPromotesOnce(t, store, newPostgresTestEvent(t, pool, 5))
}

func TestPostgresStore_DuplicateRegistration(t *testing.T) {
	store, pool := newPostgresTestStore(t)
	eventID := newPostgresTestEvent(t, pool, 1)
	svc := newTestService(store, nil)
	ctx := context.Background()
	userID := uuid.New()

	_, err := svc.Register(ctx, userID, eventID)
	require.NoError(t, err)
	_, err = svc.Register(ctx, userID, eventID)
	assert.ErrorIs(t, err, ErrAlreadyRegistered)

	_, err = store.SeatSummary(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrEventNotFound)
}
