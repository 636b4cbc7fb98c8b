package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/haskel/quorum/internal/config"
	"github.com/haskel/quorum/internal/engine"
	"github.com/haskel/quorum/internal/ensemble"
	"github.com/haskel/quorum/internal/experiment"
	"github.com/haskel/quorum/internal/monitor"
	"github.com/haskel/quorum/internal/prediction"
	"github.com/haskel/quorum/internal/predictor"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testEngine(t *testing.T, predictors ...engine.Predictor) *engine.Engine {
	t.Helper()

	if len(predictors) == 0 {
		predictors = []engine.Predictor{
			{
				Entry: ensemble.Entry{PredictorID: "fixed", PredictorType: "constant", Weight: 1, Enabled: true},
				Model: predictor.NewConstant(10.0, 0.9),
			},
			{
				Entry: ensemble.Entry{PredictorID: "average", PredictorType: "moving_average", Weight: 1, Enabled: true},
				Model: predictor.NewMovingAverage(0.5),
			},
		}
	}

	eng, err := engine.New(engine.Config{Ensemble: ensemble.DefaultConfig()}, predictors, engine.WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	return eng
}

func testServer(t *testing.T) *Server {
	cfg := config.Default()
	cfg.Persistence.Backend = "memory"

	srv := New(cfg, testEngine(t), testLogger(), "0.1.0-test")
	srv.MarkReady()
	return srv
}

type mockMonitor struct {
	name string
	data any
}

func (m *mockMonitor) Name() string {
	return m.name
}

func (m *mockMonitor) Collect() (any, error) {
	return m.data, nil
}

// do sends a request through the full middleware chain.
func do(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return v
}

var testContext = prediction.NewContext("u1", "forecast", 9, prediction.WorkloadLow)

func TestHandleInfo(t *testing.T) {
	srv := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()

	srv.handleInfo(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	resp := decode[InfoResponse](t, w)
	if resp.Name != "quorum" {
		t.Errorf("expected name quorum, got %s", resp.Name)
	}
	if resp.Version != "0.1.0-test" {
		t.Errorf("expected version 0.1.0-test, got %s", resp.Version)
	}
}

func TestHandleInfo_NotFound(t *testing.T) {
	srv := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/unknown", nil)
	w := httptest.NewRecorder()

	srv.handleInfo(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", w.Code)
	}
}

func TestHandleHealth(t *testing.T) {
	srv := testServer(t)

	w := do(t, srv, http.MethodGet, "/health", nil)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
	if resp := decode[HealthResponse](t, w); resp.Status != "ok" {
		t.Errorf("expected status ok, got %s", resp.Status)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected a request id header")
	}
}

func TestHandleReady(t *testing.T) {
	cfg := config.Default()
	srv := New(cfg, testEngine(t), testLogger(), "test")

	w := do(t, srv, http.MethodGet, "/ready", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503 before MarkReady, got %d", w.Code)
	}

	srv.MarkReady()

	w = do(t, srv, http.MethodGet, "/ready", nil)
	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
	if resp := decode[ReadyResponse](t, w); !resp.Ready {
		t.Error("expected ready=true")
	}
}

func TestHandleStatus(t *testing.T) {
	srv := testServer(t)

	sampler := monitor.NewSampler([]monitor.Monitor{
		&mockMonitor{name: "process", data: &monitor.ProcessState{PID: 42, CPUPercent: 5}},
	}, time.Second, testLogger())
	sampler.Collect()
	srv.SetComponents(&Components{Sampler: sampler})

	w := do(t, srv, http.MethodGet, "/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	resp := decode[StatusResponse](t, w)
	if resp.Models != 2 {
		t.Errorf("expected 2 models, got %d", resp.Models)
	}
	if resp.Resources == nil || resp.Resources.Process.PID != 42 {
		t.Errorf("expected sampled resources, got %+v", resp.Resources)
	}
	if resp.Scheduler != nil {
		t.Error("expected no scheduler stats without a scheduler")
	}
}

func TestHandlePredict(t *testing.T) {
	srv := testServer(t)

	w := do(t, srv, http.MethodPost, "/v1/predict", engine.Request{Input: 1.0, Context: testContext})
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	resp := decode[engine.Response](t, w)
	if resp.Prediction == nil || resp.Prediction.ID == "" {
		t.Fatal("expected a prediction with an id")
	}
	if resp.Prediction.Value != 10.0 {
		t.Errorf("expected value 10, got %v", resp.Prediction.Value)
	}
	if resp.Confidence == nil {
		t.Error("expected a confidence score")
	}
}

func TestHandlePredict_Errors(t *testing.T) {
	srv := testServer(t)

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"invalid body", "{", http.StatusBadRequest},
		{"missing task type", `{"context":{"user_id":"u1"}}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/predict", bytes.NewBufferString(tt.body))
			w := httptest.NewRecorder()
			srv.Handler().ServeHTTP(w, req)

			if w.Code != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, w.Code)
			}
			if resp := decode[ErrorResponse](t, w); resp.Error == "" || resp.RequestID == "" {
				t.Errorf("expected error and request id, got %+v", resp)
			}
		})
	}
}

func TestHandlePredict_NoViableModels(t *testing.T) {
	eng := testEngine(t, engine.Predictor{
		Entry: ensemble.Entry{PredictorID: "average", PredictorType: "moving_average", Weight: 1, Enabled: true},
		Model: predictor.NewMovingAverage(0.5),
	})
	srv := New(config.Default(), eng, testLogger(), "test")

	w := do(t, srv, http.MethodPost, "/v1/predict", engine.Request{Context: testContext})
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected status 422, got %d", w.Code)
	}
}

func TestHandleOutcome(t *testing.T) {
	srv := testServer(t)

	w := do(t, srv, http.MethodPost, "/v1/predict", engine.Request{Context: testContext})
	pred := decode[engine.Response](t, w)

	w = do(t, srv, http.MethodPost, "/v1/outcomes", OutcomeRequest{PredictionID: pred.Prediction.ID, Actual: 12.0})
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	report := decode[engine.OutcomeReport](t, w)
	if report.PredictionID != pred.Prediction.ID {
		t.Errorf("expected report for %s, got %s", pred.Prediction.ID, report.PredictionID)
	}
	if report.Accuracy <= 0 || report.Accuracy >= 1 {
		t.Errorf("unexpected accuracy %f", report.Accuracy)
	}

	// recorded once
	w = do(t, srv, http.MethodPost, "/v1/outcomes", OutcomeRequest{PredictionID: pred.Prediction.ID, Actual: 12.0})
	if w.Code != http.StatusNotFound {
		t.Errorf("expected status 404 on second outcome, got %d", w.Code)
	}

	w = do(t, srv, http.MethodPost, "/v1/outcomes", OutcomeRequest{Actual: 1.0})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 without prediction id, got %d", w.Code)
	}

	w = do(t, srv, http.MethodGet, "/v1/calibration", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if cal := decode[CalibrationResponse](t, w); cal.LedgerSize != 1 {
		t.Errorf("expected ledger size 1, got %d", cal.LedgerSize)
	}
}

func TestHandleModels(t *testing.T) {
	srv := testServer(t)

	w := do(t, srv, http.MethodGet, "/v1/models", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	models := decode[[]engine.ModelInfo](t, w)
	if len(models) != 2 {
		t.Fatalf("expected 2 models, got %d", len(models))
	}
	if models[0].Entry.PredictorID != "average" {
		t.Errorf("expected models sorted by id, got %s first", models[0].Entry.PredictorID)
	}
}

func TestHandleTick(t *testing.T) {
	srv := testServer(t)

	w := do(t, srv, http.MethodPost, "/v1/tick", nil)
	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
}

func testConfig(id string) experiment.TestConfig {
	control := ensemble.DefaultConfig()
	control.Entries = []ensemble.Entry{{PredictorID: "fixed", Weight: 1, Enabled: true}}

	now := time.Now()
	return experiment.TestConfig{
		ID:        id,
		Name:      "baseline only",
		StartDate: now.Add(-time.Hour),
		EndDate:   now.Add(time.Hour),
		Variants: []experiment.Variant{
			{ID: "control", Name: "control", Config: control, IsControl: true},
		},
		TrafficSplit: map[string]float64{"control": 100},
	}
}

func TestTestsLifecycle(t *testing.T) {
	srv := testServer(t)

	w := do(t, srv, http.MethodPost, "/v1/tests", testConfig("t1"))
	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", w.Code, w.Body.String())
	}

	w = do(t, srv, http.MethodPost, "/v1/tests", testConfig("t1"))
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 for duplicate test, got %d", w.Code)
	}

	w = do(t, srv, http.MethodGet, "/v1/tests?active=true", nil)
	if tests := decode[[]experiment.TestConfig](t, w); len(tests) != 1 {
		t.Errorf("expected 1 active test, got %d", len(tests))
	}

	w = do(t, srv, http.MethodGet, "/v1/tests/t1", nil)
	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	w = do(t, srv, http.MethodGet, "/v1/tests/missing", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", w.Code)
	}

	w = do(t, srv, http.MethodPost, "/v1/tests/t1/predict", TestPredictRequest{UserID: "u1", Context: testContext})
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if res := decode[experiment.Result](t, w); res.VariantID != "control" {
		t.Errorf("expected control variant, got %s", res.VariantID)
	}

	w = do(t, srv, http.MethodPost, "/v1/tests/t1/outcomes", TestOutcomeRequest{UserID: "u1", Actual: 10.0})
	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	w = do(t, srv, http.MethodPost, "/v1/tests/t1/outcomes", TestOutcomeRequest{UserID: "stranger", Actual: 10.0})
	if w.Code != http.StatusNotFound {
		t.Errorf("expected status 404 for a user without results, got %d", w.Code)
	}

	w = do(t, srv, http.MethodGet, "/v1/tests/t1/results", nil)
	if results := decode[[]experiment.Result](t, w); len(results) != 1 || !results[0].HasOutcome {
		t.Errorf("expected one result with an outcome, got %+v", results)
	}

	w = do(t, srv, http.MethodGet, "/v1/tests/t1/analysis", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if analysis := decode[experiment.Analysis](t, w); analysis.TestID != "t1" {
		t.Errorf("expected analysis of t1, got %s", analysis.TestID)
	}

	w = do(t, srv, http.MethodPost, "/v1/tests/t1/stop", nil)
	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	w = do(t, srv, http.MethodPost, "/v1/tests/t1/predict", TestPredictRequest{UserID: "u1", Context: testContext})
	if w.Code != http.StatusConflict {
		t.Errorf("expected status 409 after stop, got %d", w.Code)
	}
}

func TestCreateTest_Invalid(t *testing.T) {
	srv := testServer(t)

	cfg := testConfig("bad")
	cfg.TrafficSplit = map[string]float64{"control": 60}

	w := do(t, srv, http.MethodPost, "/v1/tests", cfg)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{prediction.NotFoundError("test", "x"), http.StatusNotFound},
		{prediction.NewValidationError(prediction.RuleInvalidField, "bad"), http.StatusBadRequest},
		{&prediction.InactiveTestError{TestID: "t"}, http.StatusConflict},
		{&prediction.NoViableModelsError{}, http.StatusUnprocessableEntity},
		{fmt.Errorf("wrapped: %w", &prediction.NoViableModelsError{}), http.StatusUnprocessableEntity},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.status {
			t.Errorf("%v: expected %d, got %d", tt.err, tt.status, got)
		}
	}
}
