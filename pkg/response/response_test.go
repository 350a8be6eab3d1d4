package response

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func serve(h gin.HandlerFunc) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/", h)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	return w
}

func TestEnvelope(t *testing.T) {
	w := serve(func(c *gin.Context) { OK(c, gin.H{"n": 1}) })
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"data":{"n":1}}`, w.Body.String())

	w = serve(func(c *gin.Context) { Conflict(c, "already registered") })
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.JSONEq(t, `{"success":false,"error":"already registered"}`, w.Body.String())
}

func TestBusy_RetryAfter(t *testing.T) {
	w := serve(func(c *gin.Context) { Busy(c, "busy", 1500*time.Millisecond) })
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "2", w.Header().Get("Retry-After"))

	w = serve(func(c *gin.Context) { Busy(c, "busy", 0) })
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
}
