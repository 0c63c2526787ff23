package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/onnwee/graph-physics/internal/logger"
)

func TestRequestIDMiddleware(t *testing.T) {
	var ctxID string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctxID, _ = r.Context().Value(logger.RequestIDKey).(string)
	})

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	RequestID(handler).ServeHTTP(w, req)

	headerID := w.Header().Get(RequestIDHeader)
	if headerID == "" || headerID != ctxID {
		t.Fatalf("header ID %q, context ID %q", headerID, ctxID)
	}
	if _, err := uuid.Parse(headerID); err != nil {
		t.Errorf("request ID %q is not a UUID: %v", headerID, err)
	}
}

func TestRequestIDMiddleware_Existing(t *testing.T) {
	tests := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{"client id kept", "client-123", true},
		{"oversized id replaced", strings.Repeat("x", 200), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
			req := httptest.NewRequest("GET", "/test", nil)
			req.Header.Set(RequestIDHeader, tt.incoming)
			w := httptest.NewRecorder()
			RequestID(handler).ServeHTTP(w, req)

			got := w.Header().Get(RequestIDHeader)
			if (got == tt.incoming) != tt.keep {
				t.Errorf("request ID = %q", got)
			}
		})
	}
}
