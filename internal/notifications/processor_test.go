package notifications

import (
	"bytes"
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seatline/backend/internal/models"
	"github.com/seatline/backend/pkg/queue"
)

type userMap map[uuid.UUID]*models.User

func (m userMap) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	if u, ok := m[id]; ok {
		return u, nil
	}
	return nil, errors.New("user not found")
}

type eventMap map[uuid.UUID]*models.Event

func (m eventMap) GetByID(_ context.Context, id uuid.UUID) (*models.Event, error) {
	if e, ok := m[id]; ok {
		return e, nil
	}
	return nil, errors.New("event not found")
}

type memoryLogs struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*models.NotificationLog
}

func newMemoryLogs() *memoryLogs {
	return &memoryLogs{entries: map[uuid.UUID]*models.NotificationLog{}}
}

func (m *memoryLogs) Create(_ context.Context, l *models.NotificationLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l.ID = uuid.New()
	l.Status = models.NotificationLogPending
	m.entries[l.ID] = l
	return nil
}

func (m *memoryLogs) MarkSent(_ context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[id].Status = models.NotificationLogSent
	m.entries[id].SentAt = &at
	return nil
}

func (m *memoryLogs) MarkFailed(_ context.Context, id uuid.UUID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[id].Status = models.NotificationLogFailed
	m.entries[id].ErrorMessage = reason
	return nil
}

func (m *memoryLogs) byStatus(status string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, l := range m.entries {
		if l.Status == status {
			n++
		}
	}
	return n
}

type captureMailer struct {
	mu   sync.Mutex
	sent []Message
	err  error
}

func (c *captureMailer) Send(_ context.Context, msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, msg)
	return nil
}

type fixture struct {
	queue  *queue.Queue
	users  userMap
	events eventMap
	logs   *memoryLogs
	mailer *captureMailer
	proc   *Processor
	user   *models.User
	event  *models.Event
}

func newFixture(t *testing.T, maxRetries int) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := &fixture{
		queue:  queue.NewQueue(client, nil, queue.WithMaxRetries(maxRetries), queue.WithBlockTimeout(100*time.Millisecond)),
		users:  userMap{},
		events: eventMap{},
		logs:   newMemoryLogs(),
		mailer: &captureMailer{},
		user:   &models.User{ID: uuid.New(), Email: "grace@example.com", FullName: "Grace"},
		event:  &models.Event{ID: uuid.New(), Title: "Go meetup", Date: time.Date(2026, 4, 1, 18, 0, 0, 0, time.UTC)},
	}
	f.users[f.user.ID] = f.user
	f.events[f.event.ID] = f.event
	f.proc = NewProcessor(f.queue, f.users, f.events, f.logs, f.mailer, time.Millisecond, nil)
	return f
}

func (f *fixture) notify(t *testing.T, kind models.NotificationKind) {
	t.Helper()
	n := NewQueueNotifier(f.queue)
	require.NoError(t, n.Notify(context.Background(), models.Notice{
		Kind:          kind,
		ParticipantID: uuid.New(),
		UserID:        f.user.ID,
		EventID:       f.event.ID,
		OccurredAt:    time.Now().UTC(),
	}))
}

func TestProcessor_DeliversPromotion(t *testing.T) {
	f := newFixture(t, 3)
	f.notify(t, models.NotificationPromotion)

	took, err := f.proc.ProcessNext(context.Background())
	require.NoError(t, err)
	assert.True(t, took)

	require.Len(t, f.mailer.sent, 1)
	msg := f.mailer.sent[0]
	assert.Equal(t, "grace@example.com", msg.To)
	assert.Equal(t, "Promotion to Confirmed Participant", msg.Subject)
	assert.Contains(t, msg.TextBody, "Hello Grace")
	assert.Contains(t, msg.TextBody, `"Go meetup"`)
	assert.Equal(t, 1, f.logs.byStatus(models.NotificationLogSent))
}

func TestProcessor_EmptyQueue(t *testing.T) {
	f := newFixture(t, 3)

	took, err := f.proc.ProcessNext(context.Background())
	require.NoError(t, err)
	assert.False(t, took)
}

func TestProcessor_FailureRetriesThenDeadLetters(t *testing.T) {
	f := newFixture(t, 2)
	f.mailer.err = errors.New("relay refused")
	f.notify(t, models.NotificationConfirmation)
	ctx := context.Background()

	_, err := f.proc.ProcessNext(ctx)
	assert.ErrorContains(t, err, "relay refused")
	n, err := f.queue.Len(ctx, queue.QueueNotifications)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = f.proc.ProcessNext(ctx)
	assert.Error(t, err)
	n, err = f.queue.Len(ctx, queue.QueueDLQ)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	assert.Equal(t, 2, f.logs.byStatus(models.NotificationLogFailed))
}

func TestProcessor_UnknownRecipient(t *testing.T) {
	f := newFixture(t, 3)
	delete(f.users, f.user.ID)
	f.notify(t, models.NotificationWaiting)

	_, err := f.proc.ProcessNext(context.Background())
	assert.ErrorContains(t, err, "load recipient")
	assert.Empty(t, f.mailer.sent)
}

func TestProcessor_RunStopsOnCancel(t *testing.T) {
	f := newFixture(t, 3)
	f.notify(t, models.NotificationCancellation)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.proc.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		f.mailer.mu.Lock()
		defer f.mailer.mu.Unlock()
		return len(f.mailer.sent) == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestRender_AllKinds(t *testing.T) {
	user := &models.User{Email: "ada@example.com"}
	event := &models.Event{Title: "<Go> & friends", Date: time.Date(2026, 4, 1, 18, 0, 0, 0, time.UTC)}

	subjects := map[models.NotificationKind]string{
		models.NotificationConfirmation: "Event Confirmation",
		models.NotificationWaiting:      "Added to Waiting List",
		models.NotificationPromotion:    "Promotion to Confirmed Participant",
		models.NotificationCancellation: "Registration Cancelled",
	}
	for kind, subject := range subjects {
		msg, err := Render(kind, user, event)
		require.NoError(t, err, kind)
		assert.Equal(t, subject, msg.Subject)
		assert.Contains(t, msg.TextBody, "Hello ada@example.com")
		assert.Contains(t, msg.HTMLBody, "&lt;Go&gt; &amp; friends")
		assert.NotContains(t, msg.HTMLBody, "<Go>")
	}

	_, err := Render("reminder", user, event)
	assert.Error(t, err)
}

func TestSMTPMailer_Message(t *testing.T) {
	m := NewSMTPMailer(SMTPConfig{Host: "smtp.example.com", Port: 2525, FromAddress: "noreply@example.com", FromName: "Seatline"})
	mm, err := m.message(Message{To: "ada@example.com", Subject: "Event Confirmation", TextBody: "plain", HTMLBody: "<p>rich</p>"}, time.Now())
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = mm.WriteTo(&buf)
	require.NoError(t, err)
	raw := buf.String()
	assert.Contains(t, raw, "noreply@example.com")
	assert.Contains(t, raw, "Seatline")
	assert.Contains(t, raw, "ada@example.com")
	assert.Contains(t, raw, "Event Confirmation")
	assert.Contains(t, raw, "multipart/alternative")
	assert.Contains(t, raw, "plain")
	assert.Contains(t, raw, "<p>rich</p>")

	_, err = m.message(Message{To: "not an address"}, time.Now())
	assert.Error(t, err)
}

func TestSMTPMailer_StalledRelayHonoursContext(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	var (
		mu    sync.Mutex
		conns []net.Conn
	)
	t.Cleanup(func() {
		_ = ln.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			_ = c.Close()
		}
	})
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			// Accept and never greet.
			mu.Lock()
			conns = append(conns, conn)
			mu.Unlock()
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	m := NewSMTPMailer(SMTPConfig{Host: "127.0.0.1", Port: addr.Port, FromAddress: "noreply@example.com", Timeout: time.Minute})
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	err = m.Send(ctx, Message{To: "ada@example.com", Subject: "s", TextBody: "t", HTMLBody: "h"})
	assert.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}
