package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invoice-extractor/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRequestIDGenerated(t *testing.T) {
	router := gin.New()
	router.Use(RequestID())
	var fromCtx string
	router.GET("/", func(c *gin.Context) {
		fromCtx = logger.RequestID(c.Request.Context())
		c.String(http.StatusOK, GetRequestID(c))
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	id := w.Header().Get(RequestIDHeader)
	assert.Len(t, id, 36)
	assert.Equal(t, id, w.Body.String())
	assert.Equal(t, id, fromCtx)
}

func TestRequestIDPropagated(t *testing.T) {
	router := gin.New()
	router.Use(RequestID())
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, strings.Repeat("x", 500))
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Len(t, w.Header().Get(RequestIDHeader), 36)
}

func TestRecovery(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))

	router := gin.New()
	router.Use(RequestID(), Recovery(log))
	router.GET("/panic", func(c *gin.Context) { panic("test panic") })
	router.GET("/normal", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"message": "ok"}) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Internal server error", body["error"])
	assert.Equal(t, w.Header().Get(RequestIDHeader), body["request_id"])
	assert.Contains(t, buf.String(), "test panic")

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/normal", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))

	router := gin.New()
	router.Use(RequestID(), RequestLogger(log))
	router.GET("/missing", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing?page=2", nil))

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "WARN", rec["level"])
	assert.Equal(t, float64(http.StatusNotFound), rec["status"])
	assert.Equal(t, "/missing", rec["path"])
	assert.Equal(t, "page=2", rec["query"])
	assert.Equal(t, w.Header().Get(RequestIDHeader), rec["request_id"])
}
