package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNormalizeRoute(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		// Known exact routes.
		{"/healthz", "/healthz"},
		{"/readyz", "/readyz"},
		{"/metrics", "/metrics"},
		{"/api/v1/run", "/api/v1/run"},

		// Unknown/bot paths collapse to "other".
		{"/", "other"},
		{"/wp-admin", "other"},
		{"/robots.txt", "other"},
		{"/api/v1/run/extra", "other"},
		{"/api/v2/run", "other"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got := normalizeRoute(tt.path)
			if got != tt.want {
				t.Errorf("normalizeRoute(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

// TestHandlerExposesEngineMetrics verifies the detection counters are
// registered and served.
func TestHandlerExposesEngineMetrics(t *testing.T) {
	IncTimestepsProcessed()
	AddEventsDetected(3)
	IncChunksFlushed()
	AddSamplesDropped("invalid", 2)

	w := httptest.NewRecorder()
	Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := w.Body.String()
	for _, name := range []string{
		"conjunct_timesteps_processed_total",
		"conjunct_events_detected_total",
		"conjunct_chunks_flushed_total",
		`conjunct_samples_dropped_total{reason="invalid"}`,
	} {
		if !strings.Contains(body, name) {
			t.Errorf("metrics output missing %s", name)
		}
	}
}
