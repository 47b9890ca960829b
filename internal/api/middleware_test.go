package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAuthMiddleware(t *testing.T) {
	h := AuthMiddleware("secret", quietLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		header string
		value  string
		want   int
	}{
		{"bearer", "Authorization", "Bearer secret", http.StatusNoContent},
		{"api key header", "X-API-Key", "secret", http.StatusNoContent},
		{"wrong bearer", "Authorization", "Bearer nope", http.StatusUnauthorized},
		{"basic scheme", "Authorization", "Basic secret", http.StatusUnauthorized},
		{"wrong api key", "X-API-Key", "nope", http.StatusUnauthorized},
		{"none", "", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, w.Code)
			}
		})
	}
}

func TestAuthMiddleware_EmptyKeyRejectsEverything(t *testing.T) {
	h := AuthMiddleware("", quietLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer ")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestRequestLogger_RecordsStatus(t *testing.T) {
	var got *statusWriter
	h := RequestLogger(quietLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = w.(*statusWriter)
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("tea"))
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if got.status != http.StatusTeapot || got.bytes != 3 {
		t.Errorf("expected status 418 and 3 bytes, got %d and %d", got.status, got.bytes)
	}
	if w.Code != http.StatusTeapot {
		t.Errorf("expected response code 418, got %d", w.Code)
	}
}
