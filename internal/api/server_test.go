package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/amsteele/satellite-conjunction-risk/internal/conjunction"
	"github.com/amsteele/satellite-conjunction-risk/internal/stream"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

var started = time.Date(2024, 4, 10, 12, 0, 0, 0, time.UTC)

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestReadyzFollowsPhase(t *testing.T) {
	tracker := NewTracker("run-1", started)
	h := NewServer(":0", testLogger(), tracker, stream.DefaultConfig(), "").Handler()

	if rec := get(t, h, "/readyz"); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz before start = %d, want 503", rec.Code)
	}

	tracker.SetPhase(PhaseDetecting)
	if rec := get(t, h, "/readyz"); rec.Code != http.StatusOK {
		t.Fatalf("readyz while detecting = %d, want 200", rec.Code)
	}
	if rec := get(t, h, "/healthz"); rec.Code != http.StatusOK {
		t.Fatalf("healthz = %d, want 200", rec.Code)
	}
}

func TestRunStatus(t *testing.T) {
	tracker := NewTracker("run-1", started)
	tracker.SetPhase(PhaseDetecting)
	tracker.Attach(func() conjunction.Progress {
		return conjunction.Progress{Running: true, TimestepsTotal: 10, TimestepsDone: 4, Events: 7, Chunks: 1}
	})
	h := NewServer(":0", testLogger(), tracker, stream.DefaultConfig(), "").Handler()

	rec := get(t, h, "/api/v1/run")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var got map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := map[string]any{
		"run_id":          "run-1",
		"phase":           "detecting",
		"started_at":      "2024-04-10T12:00:00Z",
		"running":         true,
		"timesteps_total": float64(10),
		"timesteps_done":  float64(4),
		"events":          float64(7),
		"chunks":          float64(1),
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %v, want %v", k, got[k], v)
		}
	}
	if _, ok := got["error"]; ok {
		t.Errorf("error present on a healthy run: %v", got["error"])
	}
}

func TestRunStatusFailed(t *testing.T) {
	tracker := NewTracker("run-2", started)
	tracker.Fail(errors.New("disk full"))

	st := tracker.Status()
	if st.Phase != PhaseFailed || st.Error != "disk full" {
		t.Fatalf("status = %+v", st)
	}
	if !tracker.Ready() {
		t.Error("failed run should report ready")
	}
}

func TestUnknownRouteNotFound(t *testing.T) {
	h := NewServer(":0", testLogger(), NewTracker("run-1", started), stream.DefaultConfig(), "").Handler()
	if rec := get(t, h, "/api/v1/propagate"); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestLoggingMiddlewareProbeLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	h := loggingMiddleware(logger, false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	get(t, h, "/healthz")
	if buf.Len() != 0 {
		t.Errorf("probe logged at info: %s", buf.String())
	}

	get(t, h, "/api/v1/run")
	line := buf.String()
	if !strings.Contains(line, `"path":"/api/v1/run"`) || !strings.Contains(line, `"status":"418"`) {
		t.Errorf("request log = %s", line)
	}
}

func TestRunStreamEndsWhenRunDone(t *testing.T) {
	tracker := NewTracker("run-1", started)
	tracker.SetPhase(PhaseDone)
	h := NewServer(":0", testLogger(), tracker, stream.DefaultConfig(), "").Handler()

	rec := get(t, h, "/api/v1/run/stream")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `data: {"type":"final","state":{"run_id":"run-1","phase":"done"`) {
		t.Errorf("stream body = %q", body)
	}
}

func TestRunStatusRequiresToken(t *testing.T) {
	h := NewServer(":0", testLogger(), NewTracker("run-1", started), stream.DefaultConfig(), "s3cret").Handler()

	if rec := get(t, h, "/api/v1/run"); rec.Code != http.StatusUnauthorized {
		t.Errorf("run without token = %d, want 401", rec.Code)
	}
	if rec := get(t, h, "/healthz"); rec.Code != http.StatusOK {
		t.Errorf("healthz = %d, want 200", rec.Code)
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/run", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("run with token = %d, want 200", rec.Code)
	}
}
