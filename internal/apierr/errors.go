package apierr

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/onnwee/graph-physics/internal/logger"
	"github.com/onnwee/graph-physics/internal/physics"
)

// ErrorCode represents a structured error code
type ErrorCode string

// Error code constants organized by category
const (
	// SESSION_ - Simulation session lifecycle errors
	ErrSessionNotFound ErrorCode = "SESSION_NOT_FOUND"
	ErrSessionLimit    ErrorCode = "SESSION_LIMIT"
	ErrSessionTooLarge ErrorCode = "SESSION_TOO_LARGE"

	// PHYSICS_ - Engine input errors
	ErrPhysicsInvalidNodes  ErrorCode = "PHYSICS_INVALID_NODES"
	ErrPhysicsInvalidEdges  ErrorCode = "PHYSICS_INVALID_EDGES"
	ErrPhysicsInvalidParams ErrorCode = "PHYSICS_INVALID_PARAMS"

	// SYSTEM_ - System and server errors
	ErrSystemInternal    ErrorCode = "SYSTEM_INTERNAL"
	ErrSystemUnavailable ErrorCode = "SYSTEM_UNAVAILABLE"
	ErrSystemTimeout     ErrorCode = "SYSTEM_TIMEOUT"

	// VALIDATION_ - Request validation errors
	ErrValidationInvalidJSON  ErrorCode = "VALIDATION_INVALID_JSON"
	ErrValidationMissingField ErrorCode = "VALIDATION_MISSING_FIELD"
	ErrValidationInvalidValue ErrorCode = "VALIDATION_INVALID_VALUE"
	ErrValidationTooLarge     ErrorCode = "VALIDATION_BODY_TOO_LARGE"

	// RESOURCE_ - Resource errors
	ErrResourceNotFound ErrorCode = "RESOURCE_NOT_FOUND"

	// RATE_LIMIT_ - Rate limiting errors
	ErrRateLimitGlobal ErrorCode = "RATE_LIMIT_GLOBAL"
	ErrRateLimitIP     ErrorCode = "RATE_LIMIT_IP"
)

// Error represents a structured API error
type Error struct {
	Code      ErrorCode      `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	status    int
}

// ErrorResponse is the top-level error response wrapper
type ErrorResponse struct {
	Error *Error `json:"error"`
}

// New creates a new API error
func New(code ErrorCode, message string, status int) *Error {
	return &Error{
		Code:    code,
		Message: message,
		status:  status,
	}
}

// WithDetails adds details to the error
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// WithRequestID adds a request ID to the error
func (e *Error) WithRequestID(requestID string) *Error {
	e.RequestID = requestID
	return e
}

func (e *Error) Error() string {
	return string(e.Code) + ": " + e.Message
}

// Status returns the HTTP status code
func (e *Error) Status() int {
	return e.status
}

// WriteError writes a structured error response to the HTTP response writer
func WriteError(w http.ResponseWriter, err *Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.Status())
	if encErr := json.NewEncoder(w).Encode(ErrorResponse{Error: err}); encErr != nil {
		logger.Warn("failed to write error response", "code", err.Code, "error", encErr)
	}
}

// SessionNotFound is returned for unknown or expired session ids.
func SessionNotFound(id string) *Error {
	return New(ErrSessionNotFound, "Session not found", http.StatusNotFound).
		WithDetails(map[string]any{"session_id": id})
}

// SessionLimit is returned when the server already hosts its maximum number of sessions.
func SessionLimit(max int) *Error {
	return New(ErrSessionLimit, "Too many active sessions", http.StatusServiceUnavailable).
		WithDetails(map[string]any{"max_sessions": max})
}

// SessionTooLarge is returned when a node set exceeds the per-session cap.
func SessionTooLarge(got, max int) *Error {
	return New(ErrSessionTooLarge, "Node set exceeds the per-session limit", http.StatusRequestEntityTooLarge).
		WithDetails(map[string]any{"nodes": got, "max_nodes": max})
}

// PhysicsInvalid converts an engine validation error into a 400 response.
// Errors that are not validation errors become SYSTEM_INTERNAL.
func PhysicsInvalid(err error) *Error {
	var ve *physics.ValidationError
	if !errors.As(err, &ve) {
		return SystemInternal("")
	}
	code := ErrPhysicsInvalidNodes
	if ve.Kind == "edge" {
		code = ErrPhysicsInvalidEdges
	}
	details := map[string]any{"reason": ve.Reason}
	if ve.Index >= 0 {
		details["index"] = ve.Index
	}
	if ve.Field != "" {
		details["field"] = ve.Field
	}
	return New(code, ve.Error(), http.StatusBadRequest).WithDetails(details)
}

// PhysicsInvalidParams reports an unusable tuning parameter.
func PhysicsInvalidParams(field, message string) *Error {
	return New(ErrPhysicsInvalidParams, message, http.StatusBadRequest).
		WithDetails(map[string]any{"field": field})
}

// SystemInternal creates an internal server error
func SystemInternal(message string) *Error {
	if message == "" {
		message = "Internal server error"
	}
	return New(ErrSystemInternal, message, http.StatusInternalServerError)
}

// SystemUnavailable creates a service unavailable error
func SystemUnavailable(message string) *Error {
	if message == "" {
		message = "Service unavailable"
	}
	return New(ErrSystemUnavailable, message, http.StatusServiceUnavailable)
}

// SystemTimeout creates a system timeout error
func SystemTimeout(message string) *Error {
	if message == "" {
		message = "Request timeout"
	}
	return New(ErrSystemTimeout, message, http.StatusRequestTimeout)
}

// ValidationInvalidJSON creates an invalid JSON error
func ValidationInvalidJSON() *Error {
	return New(ErrValidationInvalidJSON, "Invalid JSON request body", http.StatusBadRequest)
}

// ValidationMissingField creates a missing field error
func ValidationMissingField(field string) *Error {
	return New(ErrValidationMissingField, "Missing required field: "+field, http.StatusBadRequest).
		WithDetails(map[string]any{"field": field})
}

// ValidationInvalidValue creates an invalid value error
func ValidationInvalidValue(field string, message string) *Error {
	if message == "" {
		message = "Invalid value for field: " + field
	}
	return New(ErrValidationInvalidValue, message, http.StatusBadRequest).
		WithDetails(map[string]any{"field": field})
}

// ValidationTooLarge reports a request body over the size limit.
func ValidationTooLarge(limit int64) *Error {
	return New(ErrValidationTooLarge, "Request body too large", http.StatusRequestEntityTooLarge).
		WithDetails(map[string]any{"max_bytes": limit})
}

// ResourceNotFound creates a resource not found error
func ResourceNotFound(resourceType string) *Error {
	return New(ErrResourceNotFound, resourceType+" not found", http.StatusNotFound).
		WithDetails(map[string]any{"resource_type": resourceType})
}

// RateLimitGlobal creates a global rate limit error
func RateLimitGlobal() *Error {
	return New(ErrRateLimitGlobal, "Rate limit exceeded - too many requests globally", http.StatusTooManyRequests)
}

// RateLimitIP creates an IP rate limit error
func RateLimitIP() *Error {
	return New(ErrRateLimitIP, "Rate limit exceeded - too many requests from your IP", http.StatusTooManyRequests)
}

// GetRequestID extracts the request ID from the context
func GetRequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(logger.RequestIDKey).(string); ok {
		return reqID
	}
	return ""
}

// WriteErrorWithContext writes a structured error response with request ID from context
func WriteErrorWithContext(w http.ResponseWriter, r *http.Request, err *Error) {
	if reqID := GetRequestID(r.Context()); reqID != "" {
		err = err.WithRequestID(reqID)
	}
	WriteError(w, err)
}
