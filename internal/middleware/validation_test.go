package middleware

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestBodyLimit(t *testing.T) {
	var readErr error
	handler := BodyLimit(16)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, readErr = io.ReadAll(r.Body)
	}))

	tests := []struct {
		name    string
		method  string
		body    string
		tooLong bool
	}{
		{"small post", "POST", `{"dt":0.1}`, false},
		{"large post", "POST", strings.Repeat("a", 64), true},
		{"large put", "PUT", strings.Repeat("a", 64), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			readErr = nil
			req := httptest.NewRequest(tt.method, "/api/sessions", strings.NewReader(tt.body))
			handler.ServeHTTP(httptest.NewRecorder(), req)

			var maxErr *http.MaxBytesError
			if got := errors.As(readErr, &maxErr); got != tt.tooLong {
				t.Errorf("MaxBytesError = %v, want %v (err %v)", got, tt.tooLong, readErr)
			}
		})
	}
}

func TestBodyLimitDefault(t *testing.T) {
	var n int
	handler := BodyLimit(0)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read: %v", err)
		}
		n = len(data)
	}))
	body := strings.Repeat("a", 1<<20)
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/", strings.NewReader(body)))
	if n != len(body) {
		t.Errorf("read %d bytes", n)
	}
}

func TestRequireJSON(t *testing.T) {
	handler := RequireJSON(okHandler())

	tests := []struct {
		name        string
		method      string
		contentType string
		body        string
		want        int
	}{
		{"json", "POST", "application/json", `{}`, http.StatusOK},
		{"json with charset", "PUT", "application/json; charset=utf-8", `{}`, http.StatusOK},
		{"no content type", "POST", "", `{}`, http.StatusOK},
		{"form", "POST", "application/x-www-form-urlencoded", "a=b", http.StatusBadRequest},
		{"get ignored", "GET", "text/plain", "", http.StatusOK},
		{"empty body", "POST", "text/plain", "", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body io.Reader
			if tt.body != "" {
				body = strings.NewReader(tt.body)
			}
			req := httptest.NewRequest(tt.method, "/api/sessions", body)
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}
