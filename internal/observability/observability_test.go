package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zapcore.Level
		wantErr bool
	}{
		{"", zapcore.InfoLevel, false},
		{"debug", zapcore.DebugLevel, false},
		{"WARN", zapcore.WarnLevel, false},
		{"error", zapcore.ErrorLevel, false},
		{"loud", zapcore.InfoLevel, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInitServerLogger(t *testing.T) {
	orig := ServerLogger
	defer func() { ServerLogger = orig }()

	require.NoError(t, InitServerLogger("lakemap", "debug", "structured"))
	assert.True(t, ServerLogger.Core().Enabled(zapcore.DebugLevel))

	require.NoError(t, InitServerLogger("lakemap", "warn", "CONSOLE"))
	assert.False(t, ServerLogger.Core().Enabled(zapcore.InfoLevel))

	assert.Error(t, InitServerLogger("lakemap", "info", "xml"))
	assert.Error(t, InitServerLogger("lakemap", "chatty", ""))
}

func TestInitCLILogger(t *testing.T) {
	orig := CLILogger
	defer func() { CLILogger = orig }()

	InitCLILogger("lakemap", false)
	assert.False(t, CLILogger.Core().Enabled(zapcore.DebugLevel))

	InitCLILogger("lakemap", true)
	assert.True(t, CLILogger.Core().Enabled(zapcore.DebugLevel))
}

func TestInitMetrics(t *testing.T) {
	defer ResetMetrics()

	m := InitMetrics()
	require.NotNil(t, m)
	assert.Same(t, m, CurrentMetrics())
	assert.NotNil(t, m.Backend)
	assert.NotNil(t, m.Tree)
	assert.NotNil(t, m.HTTP)

	ResetMetrics()
	assert.Nil(t, CurrentMetrics())
}

func TestHTTPMetrics_Middleware(t *testing.T) {
	defer ResetMetrics()
	m := InitMetrics()

	r := chi.NewRouter()
	r.Use(m.HTTP.Middleware)
	r.Get("/items/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	for _, id := range []string{"a", "b", "c"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/items/"+id, nil))
		assert.Equal(t, http.StatusTeapot, rec.Code)
	}

	assert.Equal(t, float64(3), testutil.ToFloat64(m.HTTP.requests.WithLabelValues("GET", "/items/{id}", "418")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "lakemap_http_requests_total"))
}

func TestHTTPMetrics_NilPassesThrough(t *testing.T) {
	var m *HTTPMetrics
	called := false
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.True(t, called)
}
