package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestETag(t *testing.T) {
	body := `{"sessions":[]}`
	handler := ETag(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "/api/sessions", nil))
	if rr.Code != http.StatusOK || rr.Body.String() != body {
		t.Fatalf("got %d %q", rr.Code, rr.Body.String())
	}
	etag := rr.Header().Get("ETag")
	if etag == "" {
		t.Fatal("expected ETag header to be set")
	}
	if cc := rr.Header().Get("Cache-Control"); cc != "private, max-age=5, stale-while-revalidate=30" {
		t.Errorf("Cache-Control = %q", cc)
	}

	tests := []struct {
		name   string
		match  string
		status int
	}{
		{"matching etag", etag, http.StatusNotModified},
		{"stale etag", `"deadbeef"`, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/sessions", nil)
			req.Header.Set("If-None-Match", tt.match)
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			if rr.Code != tt.status {
				t.Errorf("status = %d, want %d", rr.Code, tt.status)
			}
			if tt.status == http.StatusNotModified && rr.Body.Len() != 0 {
				t.Errorf("304 carried a body: %q", rr.Body.String())
			}
		})
	}
}

func TestETagPassThrough(t *testing.T) {
	tests := []struct {
		name    string
		method  string
		handler http.HandlerFunc
		status  int
	}{
		{"post", "POST", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusCreated)
		}, http.StatusCreated},
		{"handler etag", "GET", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("ETag", `"s-3"`)
			w.Write([]byte("x"))
		}, http.StatusOK},
		{"error", "GET", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			ETag(tt.handler).ServeHTTP(rr, httptest.NewRequest(tt.method, "/x", nil))
			if rr.Code != tt.status {
				t.Errorf("status = %d, want %d", rr.Code, tt.status)
			}
			if rr.Header().Get("Cache-Control") != "" {
				t.Error("Cache-Control set on pass-through response")
			}
		})
	}
}
