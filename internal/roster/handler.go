package roster

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/seatline/backend/internal/models"
	"github.com/seatline/backend/internal/participants"
	"github.com/seatline/backend/pkg/response"
)

// EventLookup confirms the event exists before exporting.
type EventLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error)
}

// Handler handles roster export endpoints.
type Handler struct {
	exporter *Exporter
	events   EventLookup
	logger   *zap.Logger
}

// NewHandler creates a roster handler. A nil exporter answers 503.
func NewHandler(exporter *Exporter, events EventLookup, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{exporter: exporter, events: events, logger: logger}
}

// Export handles POST /events/:id/participants/export (admin only).
func (h *Handler) Export(c *gin.Context) {
	if h.exporter == nil {
		response.ServiceUnavailable(c, "roster export is not configured")
		return
	}
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	if _, err := h.events.GetByID(c.Request.Context(), eventID); err != nil {
		if errors.Is(err, participants.ErrEventNotFound) {
			response.NotFound(c, "event not found")
			return
		}
		response.Internal(c, "failed to load event")
		return
	}
	out, err := h.exporter.Export(c.Request.Context(), eventID)
	if err != nil {
		h.logger.Error("roster export failed", zap.String("event_id", eventID.String()), zap.Error(err))
		response.Internal(c, "failed to export roster")
		return
	}
	h.logger.Info("roster exported", zap.String("event_id", eventID.String()), zap.String("key", out.Key), zap.Int("rows", out.Rows))
	response.Created(c, out)
}
