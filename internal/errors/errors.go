// Package errors defines the HTTP error envelope and the typed application
// errors handlers return.
package errors

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/3leaps/lakemap/pkg/backend"
)

// Error codes carried in HTTP error envelopes.
const (
	CodeBadRequest         = "BAD_REQUEST"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeNotFound           = "NOT_FOUND"
	CodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeInternal           = "INTERNAL_ERROR"
)

// HTTPErrorResponse is the JSON body of every non-2xx API response.
type HTTPErrorResponse struct {
	Error HTTPError `json:"error"`
}

// HTTPError is the payload of HTTPErrorResponse.
type HTTPError struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	RequestID string         `json:"request_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// AppError is an error with an HTTP status and a stable code.
type AppError struct {
	Status  int
	Code    string
	Message string
	Details map[string]any
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetails returns e with details attached.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	e.Details = details
	return e
}

func NewBadRequest(message string) *AppError {
	return &AppError{Status: http.StatusBadRequest, Code: CodeBadRequest, Message: message}
}

func NewNotFound(message string) *AppError {
	return &AppError{Status: http.StatusNotFound, Code: CodeNotFound, Message: message}
}

func NewMethodNotAllowed(message string) *AppError {
	return &AppError{Status: http.StatusMethodNotAllowed, Code: CodeMethodNotAllowed, Message: message}
}

func NewUnauthorized(message string, err error) *AppError {
	return &AppError{Status: http.StatusUnauthorized, Code: CodeUnauthorized, Message: message, Err: err}
}

// NewExternalServiceError reports an unavailable dependency.
func NewExternalServiceError(message string) *AppError {
	return &AppError{Status: http.StatusServiceUnavailable, Code: CodeServiceUnavailable, Message: message}
}

// WrapInternal wraps err as a 500. The request id in ctx, if any, is kept
// in the details so logs and responses can be correlated.
func WrapInternal(ctx context.Context, err error, message string) *AppError {
	e := &AppError{Status: http.StatusInternalServerError, Code: CodeInternal, Message: message, Err: err}
	if id := RequestIDFromContext(ctx); id != "" {
		e.Details = map[string]any{"request_id": id}
	}
	return e
}

// FromBackend maps a storage error onto the API contract: credential
// failures are 401, a missing container or prefix is 404, everything else
// is a 503 the client may retry.
func FromBackend(message string, err error) *AppError {
	switch backend.Classify(err) {
	case backend.KindAuth:
		return &AppError{Status: http.StatusUnauthorized, Code: CodeUnauthorized, Message: message, Err: err}
	case backend.KindNotFound:
		return &AppError{Status: http.StatusNotFound, Code: CodeNotFound, Message: message, Err: err}
	default:
		return &AppError{Status: http.StatusServiceUnavailable, Code: CodeServiceUnavailable, Message: message, Err: err}
	}
}

// RespondWithError writes err as an HTTPErrorResponse. Errors that are not
// an *AppError are reported as 500 without leaking their text.
func RespondWithError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		appErr = WrapInternal(r.Context(), err, "internal server error")
	}

	body := HTTPErrorResponse{Error: HTTPError{
		Code:      appErr.Code,
		Message:   appErr.Message,
		RequestID: RequestIDFromContext(r.Context()),
		Details:   appErr.Details,
	}}
	if appErr.Status < http.StatusInternalServerError && appErr.Err != nil {
		body.Error.Message = appErr.Error()
	}

	WriteJSON(w, appErr.Status, body)
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type requestIDKey struct{}

// ContextWithRequestID stores a request id in ctx.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the request id stored in ctx, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
