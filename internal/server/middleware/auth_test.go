package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAuth(t *testing.T) {
	config := &AuthConfig{Enabled: true, User: "admin", Password: "secret"}
	handler := Auth(config, "/health", "/debug/*")(okHandler())

	tests := []struct {
		name       string
		path       string
		user, pass string
		basic      bool
		want       int
	}{
		{"valid credentials", "/v1/models", "admin", "secret", true, http.StatusOK},
		{"wrong password", "/v1/models", "admin", "wrong", true, http.StatusUnauthorized},
		{"wrong user", "/v1/models", "root", "secret", true, http.StatusUnauthorized},
		{"no credentials", "/v1/models", "", "", false, http.StatusUnauthorized},
		{"excluded exact path", "/health", "", "", false, http.StatusOK},
		{"exact exclusion is not a prefix", "/healthz", "", "", false, http.StatusUnauthorized},
		{"excluded prefix", "/debug/status", "", "", false, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.basic {
				req.SetBasicAuth(tt.user, tt.pass)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, w.Code)
			}
			if tt.want == http.StatusUnauthorized {
				if w.Header().Get("WWW-Authenticate") != `Basic realm="quorum"` {
					t.Errorf("unexpected challenge: %q", w.Header().Get("WWW-Authenticate"))
				}
				var body ErrorResponse
				if err := json.NewDecoder(w.Body).Decode(&body); err != nil || body.Error != "unauthorized" {
					t.Errorf("expected JSON error body, got %v (%v)", body, err)
				}
			}
		})
	}
}

func TestAuth_DisabledAndUpdate(t *testing.T) {
	config := &AuthConfig{}
	handler := Auth(config)(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/models", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("disabled auth: expected 200, got %d", w.Code)
	}

	// Reload turns auth on for the already built chain
	config.Update(true, "admin", "secret")

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/models", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("after update: expected 401, got %d", w.Code)
	}
}
