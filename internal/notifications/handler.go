package notifications

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/seatline/backend/internal/models"
	"github.com/seatline/backend/pkg/response"
)

// LogLister reads notification logs.
type LogLister interface {
	ListByEvent(ctx context.Context, eventID uuid.UUID) ([]models.NotificationLog, error)
}

// Handler handles notification log HTTP endpoints.
type Handler struct {
	logs LogLister
}

// NewHandler creates a notification logs handler.
func NewHandler(logs LogLister) *Handler {
	return &Handler{logs: logs}
}

// ListByEvent handles GET /events/:id/notifications. Mount behind RequireRole(admin).
func (h *Handler) ListByEvent(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	logs, err := h.logs.ListByEvent(c.Request.Context(), eventID)
	if err != nil {
		response.Internal(c, "failed to load notification logs")
		return
	}
	if logs == nil {
		logs = []models.NotificationLog{}
	}
	response.OK(c, logs)
}
