package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/haskel/quorum/internal/metrics"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestChain_FirstIsOutermost(t *testing.T) {
	var order []string
	tag := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "handler")
	})

	Chain(handler, tag("outer"), tag("inner")).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if strings.Join(order, ",") != "outer,inner,handler" {
		t.Errorf("unexpected order %v", order)
	}
}

func TestRequestID_OversizedReplaced(t *testing.T) {
	var seen string
	handler := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, strings.Repeat("x", 200))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if len(seen) != 36 {
		t.Errorf("oversized id should be replaced by a uuid, got %q", seen)
	}
}

func TestLogging_RecordsRouteAndMetrics(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/tests/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	handler := Logging(logger)(mux)

	counter := metrics.HTTPRequests.WithLabelValues("GET /v1/tests/{id}", http.MethodGet, "404")
	before := testutil.ToFloat64(counter)

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/tests/t-42", nil))

	if got := testutil.ToFloat64(counter) - before; got != 1 {
		t.Errorf("expected one counted request, got %v", got)
	}

	out := buf.String()
	for _, want := range []string{"method=GET", "path=/v1/tests/t-42", `route="GET /v1/tests/{id}"`, "status=404"} {
		if !strings.Contains(out, want) {
			t.Errorf("log missing %s: %s", want, out)
		}
	}
}

func TestLogging_HealthProbesAtDebug(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	handler := Logging(logger)(okHandler())

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	if buf.Len() != 0 {
		t.Errorf("health probe should not log at info: %s", buf.String())
	}

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	if !strings.Contains(buf.String(), "route=unmatched") {
		t.Errorf("expected unmatched route label: %s", buf.String())
	}
}

func TestRecovery(t *testing.T) {
	handler := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("predictor registry corrupted")
	}), RequestID(), Recovery(testLogger()))

	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	req.Header.Set(RequestIDHeader, "req-7")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	var body ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("expected JSON body: %v", err)
	}
	if body.RequestID != "req-7" || body.Error != "internal server error" {
		t.Errorf("unexpected body %+v", body)
	}
}

func TestRecovery_ReraisesAbort(t *testing.T) {
	handler := Recovery(testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	defer func() {
		if recover() != http.ErrAbortHandler {
			t.Error("expected ErrAbortHandler to propagate")
		}
	}()
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
}

func TestResponseWriter_TracksStatusAndSize(t *testing.T) {
	rw := &responseWriter{ResponseWriter: httptest.NewRecorder(), status: http.StatusOK}

	rw.WriteHeader(http.StatusCreated)
	_, _ = rw.Write([]byte("created"))

	if rw.status != http.StatusCreated || rw.size != 7 {
		t.Errorf("got status %d size %d", rw.status, rw.size)
	}
}
