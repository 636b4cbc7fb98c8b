package middleware

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// readAll reports 413 when the body limit trips while reading.
func readAll(w http.ResponseWriter, r *http.Request) {
	if _, err := io.ReadAll(r.Body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			return
		}
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func TestMaxBody(t *testing.T) {
	handler := MaxBody(64)(http.HandlerFunc(readAll))

	tests := []struct {
		name    string
		method  string
		size    int
		chunked bool
		want    int
	}{
		{"post under limit", http.MethodPost, 10, false, http.StatusOK},
		{"post at limit", http.MethodPost, 64, false, http.StatusOK},
		{"post declared over limit", http.MethodPost, 65, false, http.StatusRequestEntityTooLarge},
		{"chunked over limit", http.MethodPost, 200, true, http.StatusRequestEntityTooLarge},
		{"delete with large body", http.MethodDelete, 200, false, http.StatusRequestEntityTooLarge},
		{"get without body", http.MethodGet, 0, false, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body io.Reader
			if tt.size > 0 {
				body = strings.NewReader(strings.Repeat("x", tt.size))
			}
			req := httptest.NewRequest(tt.method, "/v1/outcomes", body)
			if tt.chunked {
				req.ContentLength = -1
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, w.Code)
			}
		})
	}
}

func TestMaxBody_EarlyRejectionIsJSON(t *testing.T) {
	called := false
	handler := MaxBody(8)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/predict", strings.NewReader(`{"input":"too long"}`))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if called {
		t.Error("handler should not run for a declared oversized body")
	}
	var body ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("expected JSON body: %v", err)
	}
	if !strings.Contains(body.Error, "8 bytes") {
		t.Errorf("unexpected error %q", body.Error)
	}
}

func TestMaxBody_DefaultLimit(t *testing.T) {
	handler := MaxBody(0)(http.HandlerFunc(readAll))

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("x", DefaultMaxBodyBytes+1)))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413 above the default limit, got %d", w.Code)
	}
}
