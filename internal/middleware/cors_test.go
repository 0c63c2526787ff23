package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCORS(t *testing.T) {
	handler := CORS(DefaultCORSConfig([]string{"https://app.example.com", "*.example.org"}))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

	tests := []struct {
		name        string
		method      string
		origin      string
		preflight   bool
		wantStatus  int
		wantAllowed bool
	}{
		{"allowed origin", "GET", "https://app.example.com", false, http.StatusOK, true},
		{"wildcard subdomain", "GET", "https://viz.example.org", false, http.StatusOK, true},
		{"blocked origin", "GET", "https://evil.test", false, http.StatusOK, false},
		{"no origin", "GET", "", false, http.StatusOK, false},
		{"preflight", "OPTIONS", "https://app.example.com", true, http.StatusNoContent, true},
		{"bare options reaches handler", "OPTIONS", "https://app.example.com", false, http.StatusOK, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/sessions", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if tt.preflight {
				req.Header.Set("Access-Control-Request-Method", "POST")
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			allowed := w.Header().Get("Access-Control-Allow-Origin") == tt.origin && tt.origin != ""
			if allowed != tt.wantAllowed {
				t.Errorf("allow origin = %q", w.Header().Get("Access-Control-Allow-Origin"))
			}
			if tt.preflight && !strings.Contains(w.Header().Get("Access-Control-Allow-Headers"), "If-None-Match") {
				t.Errorf("allow headers = %q", w.Header().Get("Access-Control-Allow-Headers"))
			}
			if !tt.preflight && !strings.Contains(w.Header().Get("Access-Control-Expose-Headers"), "X-Session-Version") {
				t.Errorf("expose headers = %q", w.Header().Get("Access-Control-Expose-Headers"))
			}
		})
	}
}

func TestIsOriginAllowed(t *testing.T) {
	tests := []struct {
		origin  string
		allowed []string
		want    bool
	}{
		{"http://localhost:5173", []string{"http://localhost:5173"}, true},
		{"http://anything", []string{"*"}, true},
		{"https://a.example.com", []string{"*.example.com"}, true},
		{"https://example.com.evil", []string{"*.example.com"}, false},
		{"http://localhost:8080", []string{"http://localhost:5173"}, false},
		{"http://localhost:5173", nil, false},
	}
	for _, tt := range tests {
		if got := isOriginAllowed(tt.origin, tt.allowed); got != tt.want {
			t.Errorf("isOriginAllowed(%q, %v) = %v, want %v", tt.origin, tt.allowed, got, tt.want)
		}
	}
}

func TestDefaultCORSConfig(t *testing.T) {
	cfg := DefaultCORSConfig(nil)
	if len(cfg.AllowedOrigins) == 0 {
		t.Fatal("no default origins")
	}
	if cfg.AllowCredentials {
		t.Error("credentials enabled by default")
	}
}
