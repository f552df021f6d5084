package logger

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/tenantbill/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func captureGlobal(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	t.Cleanup(restore)
	return logs
}

func newTestEngine(cfg MiddlewareConfig, handler gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinMiddleware(cfg))
	r.Use(func(c *gin.Context) {
		c.Request = c.Request.WithContext(obscontext.WithTeamID(c.Request.Context(), "77"))
	})
	r.POST("/api/invoices/:id/pay", handler)
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func TestGinMiddlewareLogsBillingFields(t *testing.T) {
	logs := captureGlobal(t)
	r := newTestEngine(MiddlewareConfig{}, func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodPost, "/api/invoices/555/pay", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, "req-42", rec.Header().Get("X-Request-Id"))
	entries := logs.FilterMessage("http_request").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)

	fields := entries[0].ContextMap()
	assert.Equal(t, "555", fields["invoice_id"])
	assert.Equal(t, "pay", fields["operation"])
	assert.Equal(t, "77", fields["team_id"])
	assert.Equal(t, "req-42", fields["request_id"])
	assert.Equal(t, "/api/invoices/:id/pay", fields["route"])
}

func TestGinMiddlewareLevels(t *testing.T) {
	classify := func(err error) (string, string) { return err.Error(), "code" }

	t.Run("conflict stays at info with error fields", func(t *testing.T) {
		logs := captureGlobal(t)
		r := newTestEngine(MiddlewareConfig{ErrorClassifier: classify}, func(c *gin.Context) {
			_ = c.Error(errors.New("conflict"))
			c.Status(http.StatusConflict)
		})
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/invoices/1/pay", nil))

		entries := logs.FilterMessage("http_request").All()
		require.Len(t, entries, 1)
		assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
		assert.Equal(t, "conflict", entries[0].ContextMap()["error_type"])
	})

	t.Run("server error", func(t *testing.T) {
		logs := captureGlobal(t)
		r := newTestEngine(MiddlewareConfig{ErrorClassifier: classify}, func(c *gin.Context) {
			_ = c.Error(errors.New("internal_error"))
			c.Status(http.StatusInternalServerError)
		})
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/invoices/1/pay", nil))

		require.Len(t, logs.All(), 1)
		assert.Equal(t, zapcore.ErrorLevel, logs.All()[0].Level)
	})

	t.Run("slow request is a warning", func(t *testing.T) {
		logs := captureGlobal(t)
		r := newTestEngine(MiddlewareConfig{SlowThreshold: time.Millisecond}, func(c *gin.Context) {
			time.Sleep(5 * time.Millisecond)
			c.Status(http.StatusOK)
		})
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/invoices/1/pay", nil))

		require.Len(t, logs.All(), 1)
		assert.Equal(t, zapcore.WarnLevel, logs.All()[0].Level)
		assert.Equal(t, true, logs.All()[0].ContextMap()["slow"])
	})

	t.Run("health check is debug", func(t *testing.T) {
		logs := captureGlobal(t)
		r := newTestEngine(MiddlewareConfig{}, func(c *gin.Context) { c.Status(http.StatusOK) })
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

		require.Len(t, logs.All(), 1)
		assert.Equal(t, zapcore.DebugLevel, logs.All()[0].Level)
	})
}
