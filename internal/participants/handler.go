package participants

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/seatline/backend/internal/auth"
	"github.com/seatline/backend/internal/models"
	"github.com/seatline/backend/pkg/response"
)

// Handler handles participant HTTP endpoints.
type Handler struct {
	svc    *Service
	users  auth.UserStore
	logger *zap.Logger
}

// NewHandler creates a participant handler. users may be nil when no user
// directory is available.
func NewHandler(svc *Service, users auth.UserStore, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, users: users, logger: logger}
}

func actorFrom(c *gin.Context) (Actor, *auth.Claims, bool) {
	claims, ok := auth.ClaimsFrom(c)
	if !ok {
		return Actor{}, nil, false
	}
	return Actor{UserID: claims.UserID, Role: claims.Role}, claims, true
}

// writeError maps engine errors onto HTTP responses.
func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrEventNotFound):
		response.NotFound(c, "event not found")
	case errors.Is(err, ErrParticipantNotFound):
		response.NotFound(c, "participant not found")
	case errors.Is(err, ErrAlreadyRegistered):
		response.Conflict(c, err.Error())
	case errors.Is(err, ErrAlreadyCancelled):
		response.Conflict(c, err.Error())
	case errors.Is(err, ErrUnauthorized):
		response.Forbidden(c, err.Error())
	case errors.Is(err, ErrTransientConflict):
		response.Busy(c, "registration is busy, try again", time.Second)
	default:
		h.logger.Error("participant request failed", zap.String("path", c.FullPath()), zap.Error(err))
		response.Internal(c, "internal error")
	}
}

// Register handles POST /events/:id/register for the calling user.
func (h *Handler) Register(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	actor, claims, ok := actorFrom(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return
	}
	if h.users != nil {
		if _, err := h.users.Upsert(c.Request.Context(), claims); err != nil {
			h.logger.Warn("user upsert failed", zap.String("user_id", actor.UserID.String()), zap.Error(err))
		}
	}
	p, err := h.svc.Register(c.Request.Context(), actor.UserID, eventID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Created(c, p)
}

// Cancel handles POST /participants/:id/cancel (owner or admin).
func (h *Handler) Cancel(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid participant id")
		return
	}
	actor, _, ok := actorFrom(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return
	}
	p, err := h.svc.Cancel(c.Request.Context(), id, actor)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, p)
}

// Get handles GET /participants/:id (owner or admin).
func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid participant id")
		return
	}
	actor, _, ok := actorFrom(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return
	}
	p, err := h.svc.Get(c.Request.Context(), id, actor)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, p)
}

// ListByEvent handles GET /events/:id/participants.
func (h *Handler) ListByEvent(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	list, err := h.svc.ListByEvent(c.Request.Context(), eventID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if list == nil {
		list = []models.Participant{}
	}
	response.OK(c, list)
}
