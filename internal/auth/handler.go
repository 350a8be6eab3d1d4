package auth

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/seatline/backend/internal/models"
	"github.com/seatline/backend/pkg/response"
)

// ContextClaims is the gin context key holding the validated *Claims.
const ContextClaims = "auth_claims"

// UserStore records identities seen in validated tokens.
type UserStore interface {
	Upsert(ctx context.Context, claims *Claims) (*models.User, error)
}

// ClaimsFrom returns the claims the JWT middleware stored on the request.
func ClaimsFrom(c *gin.Context) (*Claims, bool) {
	v, ok := c.Get(ContextClaims)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*Claims)
	return claims, ok && claims != nil
}

// Handler handles auth HTTP endpoints.
type Handler struct {
	users  UserStore
	logger *zap.Logger
}

// NewHandler creates an auth handler.
func NewHandler(users UserStore, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{users: users, logger: logger}
}

// Me handles GET /auth/me: records the caller and returns the stored profile.
func (h *Handler) Me(c *gin.Context) {
	claims, ok := ClaimsFrom(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return
	}
	user, err := h.users.Upsert(c.Request.Context(), claims)
	if err != nil {
		h.logger.Error("upsert user failed", zap.String("user_id", claims.UserID.String()), zap.Error(err))
		response.Internal(c, "failed to load user")
		return
	}
	response.OK(c, user)
}
