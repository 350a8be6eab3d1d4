package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/seatline/backend/internal/auth"
	"github.com/seatline/backend/internal/models"
	"github.com/seatline/backend/internal/participants"
)

// Feed event names.
const (
	EventSeats        = "seats"
	EventSeatsUpdated = "seats_updated"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browsers cannot set headers on the upgrade; the token query param authenticates.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WSMessage is the WebSocket message envelope.
type WSMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// TokenValidator validates a bearer token.
type TokenValidator func(token string) (*auth.Claims, error)

// Client is a single WebSocket connection watching one event.
type Client struct {
	ID      string
	EventID uuid.UUID
	UserID  uuid.UUID
	hub     *Hub
	conn    *websocket.Conn
	send    chan WSMessage
	logger  *zap.Logger
}

// ServeWs handles GET /ws/seats?event_id=&token=. The client first receives a
// "seats" snapshot, then a "seats_updated" message after every change.
func ServeWs(hub *Hub, seats SeatCounter, validate TokenValidator, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		eventIDStr := c.Query("event_id")
		token := c.Query("token")
		if eventIDStr == "" || token == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "event_id and token required"})
			return
		}
		eventID, err := uuid.Parse(eventIDStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event_id"})
			return
		}
		claims, err := validate(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		// Existence check before the upgrade so unknown events get a plain 404.
		snapshot, err := seats.SeatSummary(c.Request.Context(), eventID)
		if err != nil {
			if errors.Is(err, participants.ErrEventNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "event not found"})
				return
			}
			logger.Error("seat snapshot", zap.String("event_id", eventID.String()), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		client := &Client{
			ID:      uuid.New().String(),
			EventID: eventID,
			UserID:  claims.UserID,
			hub:     hub,
			conn:    conn,
			send:    make(chan WSMessage, 64),
			logger:  logger,
		}
		// Register before reading the snapshot sent to the client: any
		// transition committed after the read is published to this client.
		hub.Register(client)
		if fresh, err := seats.SeatSummary(c.Request.Context(), eventID); err == nil {
			snapshot = fresh
		} else {
			logger.Warn("seat snapshot refresh", zap.String("event_id", eventID.String()), zap.Error(err))
		}
		data, _ := json.Marshal(newSeatView(snapshot))
		client.send <- WSMessage{Event: EventSeats, Data: data}

		go client.writePump()
		client.readPump()
	}
}

// readPump only keeps the connection alive; the feed is read-only.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(PingInterval * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SeatCounter reports the seat accounting of an event.
type SeatCounter interface {
	SeatSummary(ctx context.Context, eventID uuid.UUID) (*models.SeatSummary, error)
}

// SeatView is the payload pushed to watchers.
type SeatView struct {
	models.SeatSummary
	Available int                     `json:"available"`
	Cause     models.NotificationKind `json:"cause,omitempty"`
}

func newSeatView(s *models.SeatSummary) SeatView {
	return SeatView{SeatSummary: *s, Available: s.Available()}
}
