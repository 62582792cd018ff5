// Package middleware provides the HTTP middleware chain used by the API
// server.
package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	apperrors "github.com/3leaps/lakemap/internal/errors"
	"github.com/3leaps/lakemap/internal/observability"
	"github.com/fulmenhq/gofulmen/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// ErrorResponse is the body written for recovered panics.
type ErrorResponse = apperrors.HTTPErrorResponse

// RequestID propagates the caller's X-Request-ID or assigns a new one, and
// stores it in the request context for error envelopes and logs.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(apperrors.ContextWithRequestID(r.Context(), id)))
	})
}

// Recovery turns a panic in next into a 500 INTERNAL_ERROR envelope.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			requestID := apperrors.RequestIDFromContext(r.Context())
			observability.ServerLogger.Error("Recovered from panic",
				zap.Any("panic", rec),
				zap.String("request_id", requestID),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.ByteString("stack", debug.Stack()))

			envelope := errors.NewErrorEnvelope(apperrors.CodeInternal, fmt.Sprintf("panic: %v", rec))
			if requestID != "" {
				envelope = envelope.WithCorrelationID(requestID)
			}
			writeErrorResponse(w, envelope, http.StatusInternalServerError)
		}()
		next.ServeHTTP(w, r)
	})
}

// ErrorHandler is Recovery under the name the router wiring uses.
func ErrorHandler(next http.Handler) http.Handler {
	return Recovery(next)
}

// Logger logs one line per request at debug level, and at warn for 5xx.
func Logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", sw.status),
			zap.String("request_id", apperrors.RequestIDFromContext(r.Context())),
		}
		if sw.status >= http.StatusInternalServerError {
			observability.ServerLogger.Warn("Request failed", fields...)
			return
		}
		observability.ServerLogger.Debug("Request served", fields...)
	})
}

// writeErrorResponse renders a gofulmen envelope in the API error shape.
func writeErrorResponse(w http.ResponseWriter, envelope *errors.ErrorEnvelope, status int) {
	body := ErrorResponse{Error: apperrors.HTTPError{
		Code:      envelope.Code,
		Message:   envelope.Message,
		RequestID: envelope.CorrelationID,
	}}
	if len(envelope.Context) > 0 {
		body.Error.Details = envelope.Context
	}
	apperrors.WriteJSON(w, status, body)
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
