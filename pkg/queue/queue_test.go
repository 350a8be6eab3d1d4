package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T, opts ...Option) (*Queue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	opts = append([]Option{WithBlockTimeout(100 * time.Millisecond)}, opts...)
	return NewQueue(client, nil, opts...), mr
}

func TestEnqueueDequeue_Notification(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	payload := NotificationPayload{
		Kind:          "promotion",
		ParticipantID: uuid.New(),
		UserID:        uuid.New(),
		EventID:       uuid.New(),
		OccurredAt:    time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	require.NoError(t, q.EnqueueNotification(ctx, payload))

	n, err := q.Len(ctx, QueueNotifications)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	job, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, JobTypeNotification, job.Type)
	assert.Zero(t, job.Attempt)

	got, err := job.Notification()
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestDequeue_EmptyReturnsNil(t *testing.T) {
	q, _ := newTestQueue(t)

	job, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestDequeue_SkipsGarbage(t *testing.T) {
	q, mr := newTestQueue(t)
	_, err := mr.RPush(QueueNotifications, "{not json")
	require.NoError(t, err)

	job, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestRetry_MovesToDLQAfterLimit(t *testing.T) {
	q, _ := newTestQueue(t, WithMaxRetries(2))
	ctx := context.Background()
	require.NoError(t, q.EnqueueNotification(ctx, NotificationPayload{Kind: "confirmation"}))

	job, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)

	dead, err := q.Retry(ctx, job)
	require.NoError(t, err)
	assert.False(t, dead)

	job, err = q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, 1, job.Attempt)

	dead, err = q.Retry(ctx, job)
	require.NoError(t, err)
	assert.True(t, dead)

	n, err := q.Len(ctx, QueueDLQ)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, err = q.Len(ctx, QueueNotifications)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestJobNotification_WrongType(t *testing.T) {
	job := &Job{Type: "other"}
	_, err := job.Notification()
	assert.ErrorContains(t, err, "unexpected job type")
}
