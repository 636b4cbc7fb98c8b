package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/haskel/quorum/internal/metrics"
)

type responseWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (rw *responseWriter) WriteHeader(status int) {
	rw.status = status
	rw.ResponseWriter.WriteHeader(status)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.size += n
	return n, err
}

// route is the matched mux pattern, set on the request once routing ran.
// Unmatched requests share one label so metric cardinality stays bounded.
func route(r *http.Request) string {
	if r.Pattern == "" {
		return "unmatched"
	}
	return r.Pattern
}

// Logging logs each request and records it in the HTTP metrics.
// Health probes are logged at debug level.
func Logging(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &responseWriter{
				ResponseWriter: w,
				status:         http.StatusOK,
			}

			next.ServeHTTP(rw, r)

			duration := time.Since(start)
			pattern := route(r)

			metrics.HTTPRequests.WithLabelValues(pattern, r.Method, strconv.Itoa(rw.status)).Inc()
			metrics.HTTPDuration.WithLabelValues(pattern).Observe(duration.Seconds())

			level := slog.LevelInfo
			if r.URL.Path == "/health" || r.URL.Path == "/ready" {
				level = slog.LevelDebug
			}

			logger.Log(r.Context(), level, "request",
				"method", r.Method,
				"path", r.URL.Path,
				"route", pattern,
				"status", rw.status,
				"size", rw.size,
				"duration", duration,
				"remote", r.RemoteAddr,
				"request_id", GetRequestID(r.Context()),
			)
		})
	}
}
