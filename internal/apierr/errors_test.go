package apierr

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/onnwee/graph-physics/internal/logger"
	"github.com/onnwee/graph-physics/internal/physics"
)

func TestNew(t *testing.T) {
	err := New(ErrSessionNotFound, "gone", http.StatusNotFound)
	if err.Code != ErrSessionNotFound {
		t.Errorf("expected code %s, got %s", ErrSessionNotFound, err.Code)
	}
	if err.Status() != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, err.Status())
	}
	if err.Error() != "SESSION_NOT_FOUND: gone" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, SessionLimit(4).WithRequestID("req-123"))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q", ct)
	}

	var resp ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error.Code != ErrSessionLimit || resp.Error.RequestID != "req-123" {
		t.Errorf("response = %+v", resp.Error)
	}
	if resp.Error.Details["max_sessions"] != float64(4) {
		t.Errorf("details = %v", resp.Error.Details)
	}
}

func TestWriteErrorWithContext(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r = r.WithContext(context.WithValue(r.Context(), logger.RequestIDKey, "ctx-req"))
	w := httptest.NewRecorder()

	WriteErrorWithContext(w, r, SessionNotFound("abc"))

	var resp ErrorResponse
	_ = json.NewDecoder(w.Body).Decode(&resp)
	if resp.Error.RequestID != "ctx-req" {
		t.Errorf("request id = %q", resp.Error.RequestID)
	}
	if resp.Error.Details["session_id"] != "abc" {
		t.Errorf("details = %v", resp.Error.Details)
	}
}

func TestPhysicsInvalid(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode ErrorCode
		status   int
		field    string
	}{
		{
			name:     "node field",
			err:      &physics.ValidationError{Kind: "node", Index: 2, Field: "mass", Reason: "is negative"},
			wantCode: ErrPhysicsInvalidNodes,
			status:   http.StatusBadRequest,
			field:    "mass",
		},
		{
			name:     "edge field",
			err:      &physics.ValidationError{Kind: "edge", Index: 0, Field: "weight", Reason: "is not finite"},
			wantCode: ErrPhysicsInvalidEdges,
			status:   http.StatusBadRequest,
			field:    "weight",
		},
		{
			name:     "wrapped",
			err:      fmt.Errorf("set nodes: %w", &physics.ValidationError{Kind: "node", Index: -1, Reason: "malformed JSON"}),
			wantCode: ErrPhysicsInvalidNodes,
			status:   http.StatusBadRequest,
		},
		{
			name:     "not a validation error",
			err:      fmt.Errorf("boom"),
			wantCode: ErrSystemInternal,
			status:   http.StatusInternalServerError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PhysicsInvalid(tt.err)
			if got.Code != tt.wantCode || got.Status() != tt.status {
				t.Errorf("got %s/%d, want %s/%d", got.Code, got.Status(), tt.wantCode, tt.status)
			}
			if tt.field != "" && got.Details["field"] != tt.field {
				t.Errorf("details = %v", got.Details)
			}
			if tt.field == "" && got.Details != nil {
				if _, ok := got.Details["index"]; ok {
					t.Errorf("payload-level error should not carry an index: %v", got.Details)
				}
			}
		})
	}
}

func TestHelperStatuses(t *testing.T) {
	tests := []struct {
		err    *Error
		status int
		code   ErrorCode
	}{
		{SessionTooLarge(10, 5), http.StatusRequestEntityTooLarge, ErrSessionTooLarge},
		{PhysicsInvalidParams("theta", "theta must be finite"), http.StatusBadRequest, ErrPhysicsInvalidParams},
		{SystemInternal(""), http.StatusInternalServerError, ErrSystemInternal},
		{SystemUnavailable(""), http.StatusServiceUnavailable, ErrSystemUnavailable},
		{SystemTimeout(""), http.StatusRequestTimeout, ErrSystemTimeout},
		{ValidationInvalidJSON(), http.StatusBadRequest, ErrValidationInvalidJSON},
		{ValidationMissingField("dt"), http.StatusBadRequest, ErrValidationMissingField},
		{ValidationInvalidValue("fps", ""), http.StatusBadRequest, ErrValidationInvalidValue},
		{ValidationTooLarge(1024), http.StatusRequestEntityTooLarge, ErrValidationTooLarge},
		{ResourceNotFound("route"), http.StatusNotFound, ErrResourceNotFound},
		{RateLimitGlobal(), http.StatusTooManyRequests, ErrRateLimitGlobal},
		{RateLimitIP(), http.StatusTooManyRequests, ErrRateLimitIP},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			if tt.err.Status() != tt.status || tt.err.Code != tt.code {
				t.Errorf("got %s/%d", tt.err.Code, tt.err.Status())
			}
			if tt.err.Message == "" {
				t.Error("empty message")
			}
		})
	}
}
