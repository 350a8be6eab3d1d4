package events

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/seatline/backend/internal/auth"
	"github.com/seatline/backend/internal/models"
	"github.com/seatline/backend/internal/participants"
	"github.com/seatline/backend/pkg/response"
)

// Store is the event persistence the handler needs.
type Store interface {
	Create(ctx context.Context, e *models.Event) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error)
	List(ctx context.Context) ([]models.Event, error)
}

// SeatCounter reports seat accounting for an event.
type SeatCounter interface {
	Summary(ctx context.Context, eventID uuid.UUID) (*models.SeatSummary, error)
}

// CreateRequest is the body for POST /events.
type CreateRequest struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
	Date        string `json:"date" binding:"required"`
	TotalSeats  int    `json:"total_seats" binding:"required,gt=0"`
}

// EventDetail is the GET /events/:id payload.
type EventDetail struct {
	models.Event
	Seats     *models.SeatSummary `json:"seats"`
	Available int                 `json:"available"`
}

// Handler handles event HTTP endpoints.
type Handler struct {
	store  Store
	seats  SeatCounter
	logger *zap.Logger
}

// NewHandler creates an event handler.
func NewHandler(store Store, seats SeatCounter, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, seats: seats, logger: logger}
}

// Create handles POST /events (admin only).
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	date, err := time.Parse(time.RFC3339, req.Date)
	if err != nil {
		response.BadRequest(c, "invalid date")
		return
	}
	claims, ok := auth.ClaimsFrom(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return
	}

	e := &models.Event{
		Title:       req.Title,
		Description: req.Description,
		Date:        date.UTC(),
		TotalSeats:  req.TotalSeats,
		CreatedBy:   claims.UserID,
	}
	if err := h.store.Create(c.Request.Context(), e); err != nil {
		h.logger.Error("create event failed", zap.Error(err))
		response.Internal(c, "failed to create event")
		return
	}
	h.logger.Info("event created", zap.String("event_id", e.ID.String()), zap.Int("total_seats", e.TotalSeats))
	response.Created(c, e)
}

// List handles GET /events.
func (h *Handler) List(c *gin.Context) {
	list, err := h.store.List(c.Request.Context())
	if err != nil {
		h.logger.Error("list events failed", zap.Error(err))
		response.Internal(c, "failed to list events")
		return
	}
	if list == nil {
		list = []models.Event{}
	}
	response.OK(c, list)
}

// GetByID handles GET /events/:id with the current seat accounting.
func (h *Handler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	e, err := h.store.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, participants.ErrEventNotFound) {
			response.NotFound(c, "event not found")
			return
		}
		response.Internal(c, "failed to load event")
		return
	}
	sum, err := h.seats.Summary(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("seat summary failed", zap.String("event_id", id.String()), zap.Error(err))
		response.Internal(c, "failed to load seat summary")
		return
	}
	response.OK(c, EventDetail{Event: *e, Seats: sum, Available: sum.Available()})
}
