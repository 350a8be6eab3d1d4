package participants

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seatline/backend/internal/auth"
	"github.com/seatline/backend/internal/models"
)

type recordingUsers struct {
	mu   sync.Mutex
	seen []uuid.UUID
}

func (r *recordingUsers) Upsert(_ context.Context, claims *auth.Claims) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, claims.UserID)
	return &models.User{ID: claims.UserID, Email: claims.Email, Role: claims.Role}, nil
}

type httpEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

type handlerFixture struct {
	router  *gin.Engine
	eventID uuid.UUID
	users   *recordingUsers
}

// The test router trusts X-Test-User / X-Test-Role in place of a JWT.
func newHandlerFixture(t *testing.T, seats int) *handlerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := newTestStore(t)
	eventID := newTestEvent(t, store, seats)
	users := &recordingUsers{}
	h := NewHandler(newTestService(store, nil), users, nil)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		id, err := uuid.Parse(c.GetHeader("X-Test-User"))
		if err != nil {
			return
		}
		c.Set(auth.ContextClaims, &auth.Claims{UserID: id, Email: "u@example.com", Role: models.Role(c.GetHeader("X-Test-Role"))})
	})
	r.POST("/events/:id/register", h.Register)
	r.GET("/events/:id/participants", h.ListByEvent)
	r.POST("/participants/:id/cancel", h.Cancel)
	r.GET("/participants/:id", h.Get)
	return &handlerFixture{router: r, eventID: eventID, users: users}
}

func (f *handlerFixture) do(t *testing.T, method, path string, user uuid.UUID, role models.Role) (int, httpEnvelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if user != uuid.Nil {
		req.Header.Set("X-Test-User", user.String())
		req.Header.Set("X-Test-Role", string(role))
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	var env httpEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func (f *handlerFixture) register(t *testing.T, user uuid.UUID) models.Participant {
	t.Helper()
	code, env := f.do(t, http.MethodPost, "/events/"+f.eventID.String()+"/register", user, models.RoleUser)
	require.Equal(t, http.StatusCreated, code, env.Error)
	var p models.Participant
	require.NoError(t, json.Unmarshal(env.Data, &p))
	return p
}

func TestHandler_RegisterAndCancelFlow(t *testing.T) {
	f := newHandlerFixture(t, 1)
	alice, bob := uuid.New(), uuid.New()

	a := f.register(t, alice)
	assert.Equal(t, models.StatusConfirmed, a.Status)
	b := f.register(t, bob)
	assert.Equal(t, models.StatusWaiting, b.Status)
	assert.ElementsMatch(t, []uuid.UUID{alice, bob}, f.users.seen)

	code, _ := f.do(t, http.MethodPost, "/events/"+f.eventID.String()+"/register", alice, models.RoleUser)
	assert.Equal(t, http.StatusConflict, code)

	code, _ = f.do(t, http.MethodPost, "/participants/"+a.ID.String()+"/cancel", bob, models.RoleUser)
	assert.Equal(t, http.StatusForbidden, code)

	code, env := f.do(t, http.MethodPost, "/participants/"+a.ID.String()+"/cancel", alice, models.RoleUser)
	require.Equal(t, http.StatusOK, code, env.Error)

	code, _ = f.do(t, http.MethodPost, "/participants/"+a.ID.String()+"/cancel", alice, models.RoleUser)
	assert.Equal(t, http.StatusConflict, code)

	code, env = f.do(t, http.MethodGet, "/participants/"+b.ID.String(), bob, models.RoleUser)
	require.Equal(t, http.StatusOK, code)
	var promoted models.Participant
	require.NoError(t, json.Unmarshal(env.Data, &promoted))
	assert.Equal(t, models.StatusConfirmed, promoted.Status)

	code, env = f.do(t, http.MethodGet, "/events/"+f.eventID.String()+"/participants", uuid.New(), models.RoleAdmin)
	require.Equal(t, http.StatusOK, code)
	var list []models.Participant
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list, 2)
	assert.Equal(t, a.ID, list[0].ID)
}

func TestHandler_Errors(t *testing.T) {
	f := newHandlerFixture(t, 1)
	user := uuid.New()

	code, _ := f.do(t, http.MethodPost, "/events/"+uuid.NewString()+"/register", user, models.RoleUser)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = f.do(t, http.MethodPost, "/events/nope/register", user, models.RoleUser)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = f.do(t, http.MethodPost, "/participants/"+uuid.NewString()+"/cancel", user, models.RoleAdmin)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = f.do(t, http.MethodPost, "/events/"+f.eventID.String()+"/register", uuid.Nil, "")
	assert.Equal(t, http.StatusUnauthorized, code)
}
