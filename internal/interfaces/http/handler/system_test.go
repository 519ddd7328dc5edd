package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/erp/reconciliation/internal/interfaces/http/dto"
	"github.com/erp/reconciliation/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingerFunc func() error

func (f pingerFunc) Ping() error { return f() }

func TestNewSystemHandler(t *testing.T) {
	h := NewSystemHandler("", nil)
	assert.False(t, h.startTime.IsZero())
	assert.Equal(t, "dev", h.version)
}

func TestSystemHandler_GetSystemInfo(t *testing.T) {
	h := NewSystemHandler("1.4.0", nil)
	c, w := newTestContext()

	h.GetSystemInfo(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	data := resp.Data.(map[string]any)
	assert.Equal(t, ServiceName, data["name"])
	assert.Equal(t, "1.4.0", data["version"])
	assert.NotEmpty(t, data["go_version"])
	assert.NotEmpty(t, data["uptime"])
}

func TestSystemHandler_Ping(t *testing.T) {
	h := NewSystemHandler("test", nil)
	c, w := newTestContext()

	h.Ping(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data := resp.Data.(map[string]any)
	assert.Equal(t, "pong", data["message"])
	assert.NotEmpty(t, data["timestamp"])
}

func TestSystemHandler_Health(t *testing.T) {
	tests := []struct {
		name     string
		db       Pinger
		status   int
		health   string
		database string
	}{
		{"no database", nil, http.StatusOK, "healthy", "not_configured"},
		{"database up", pingerFunc(func() error { return nil }), http.StatusOK, "healthy", "connected"},
		{"database down", pingerFunc(func() error { return errors.New("dial tcp: refused") }), http.StatusServiceUnavailable, "unhealthy", "disconnected"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewSystemHandler("test", tt.db)
			c, w := newTestContext()

			h.Health(c)

			assert.Equal(t, tt.status, w.Code)
			var resp HealthResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.health, resp.Status)
			assert.Equal(t, tt.database, resp.Database)
			assert.Equal(t, ServiceName, resp.Service)
		})
	}
}

func TestNotFound(t *testing.T) {
	s := newAPIServer(t)

	w := s.do(t, http.MethodGet, "/api/v1/nowhere", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
	resp, _ := decode(t, w)
	assert.Equal(t, dto.ErrCodeNotFound, resp.Error.Code)
	assert.NotEmpty(t, resp.Error.RequestID)
}

func TestSystemRoutes(t *testing.T) {
	s := newAPIServer(t)

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/health", nil).Code)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/v1/system/ping", nil).Code)

	routes := NewSystemHandler("test", nil).Routes().Routes()
	assert.Contains(t, routes, router.Route{Method: http.MethodGet, Path: "/system/info"})
}

func TestReconciliationRoutes(t *testing.T) {
	routes := (&ReconciliationHandler{}).Routes().Routes()
	for _, want := range []struct{ method, path string }{
		{http.MethodPost, "/reconciliation/suggestions"},
		{http.MethodPost, "/reconciliation/suggestions/batch"},
		{http.MethodGet, "/reconciliation/links"},
		{http.MethodPost, "/reconciliation/links"},
		{http.MethodPost, "/reconciliation/links/:id/void"},
		{http.MethodPost, "/reconciliation/feedback"},
		{http.MethodPost, "/reconciliation/feedback/export"},
		{http.MethodPut, "/reconciliation/documents"},
	} {
		assert.Contains(t, routes, router.Route{Method: want.method, Path: want.path})
	}
	assert.Len(t, (&APMatchHandler{}).Routes().Routes(), 6)
	assert.Len(t, (&AliasHandler{}).Routes().Routes(), 3)
}

func TestTenantHeaderIsValidated(t *testing.T) {
	s := newAPIServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/aliases", nil)
	req.Header.Set("X-Tenant-ID", "not-a-uuid")
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

var _ gin.HandlerFunc = NotFound
