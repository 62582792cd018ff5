package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	apperrors "github.com/3leaps/lakemap/internal/errors"
	"github.com/3leaps/lakemap/internal/observability"
	"github.com/3leaps/lakemap/internal/server/handlers"
	"github.com/3leaps/lakemap/pkg/backend"
	"github.com/3leaps/lakemap/pkg/backend/backendtest"
	"github.com/3leaps/lakemap/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServer_RoutingErrorsUseEnvelope(t *testing.T) {
	srv := New("127.0.0.1", 0)
	assert.Equal(t, 0, srv.Port())

	tests := []struct {
		method, path string
		status       int
		code         string
	}{
		{http.MethodGet, "/api/v1/nowhere", http.StatusNotFound, apperrors.CodeNotFound},
		{http.MethodDelete, "/health", http.StatusMethodNotAllowed, apperrors.CodeMethodNotAllowed},
		{http.MethodPost, "/version", http.StatusMethodNotAllowed, apperrors.CodeMethodNotAllowed},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
		require.Equal(t, tt.status, rec.Code, tt.path)

		var body apperrors.HTTPErrorResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, tt.code, body.Error.Code, tt.path)
	}
}

func TestServer_ProbeRoutes(t *testing.T) {
	handlers.InitHealthManager("test")
	h := New("127.0.0.1", 0).Handler()

	for _, path := range []string{"/health", "/health/live", "/health/ready", "/health/startup", "/version"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestServer_APIMountedOnlyWhenConfigured(t *testing.T) {
	srv := New("127.0.0.1", 0)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/connections", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	store := session.NewMemoryStore(time.Minute, nil)
	defer func() { _ = store.Close() }()
	api := handlers.NewAPI(store, handlers.APIConfig{
		Open: func(context.Context, backend.Target) (backend.StorageBackend, error) {
			return backendtest.New(), nil
		},
	})
	srv = New("127.0.0.1", 0, WithAPI(api))

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/connections", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestServer_HTTPMetrics(t *testing.T) {
	m := observability.InitMetrics()
	defer observability.ResetMetrics()
	srv := New("127.0.0.1", 0, WithMetrics(m))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/version", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `lakemap_http_requests_total{method="GET",route="/version",status="200"} 1`)
}

func TestServer_ShutdownBeforeStart(t *testing.T) {
	srv := New("127.0.0.1", 0, WithTimeouts(Timeouts{Shutdown: time.Second}))
	assert.NoError(t, srv.Shutdown(context.Background()))
	assert.Equal(t, "127.0.0.1:0", srv.Addr())
}

func TestServer_Profiler(t *testing.T) {
	rec := httptest.NewRecorder()
	New("127.0.0.1", 0).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	New("127.0.0.1", 0, WithProfiler()).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
