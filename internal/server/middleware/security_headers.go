package middleware

import "net/http"

// SecurityHeaders sets response headers for a JSON-only API.
func SecurityHeaders() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			h.Set("Referrer-Policy", "no-referrer")
			// predictions and analyses change with every outcome
			h.Set("Cache-Control", "no-store")
			next.ServeHTTP(w, r)
		})
	}
}
