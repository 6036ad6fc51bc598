package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conjunct_http_requests_total",
			Help: "Total number of HTTP requests to the status server.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "conjunct_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	propagationDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "conjunct_propagation_duration_seconds",
			Help:    "Time to propagate the catalog over the full time grid.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		},
	)

	propagationSamplesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conjunct_propagation_samples_total",
			Help: "Trajectory samples produced, by outcome.",
		},
		[]string{"outcome"},
	)

	samplesDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conjunct_samples_dropped_total",
			Help: "Trajectory samples removed before detection, by reason.",
		},
		[]string{"reason"},
	)

	timestepsProcessedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "conjunct_timesteps_processed_total",
			Help: "Timesteps joined and handed to the event sink.",
		},
	)

	eventsDetectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "conjunct_events_detected_total",
			Help: "Conjunction events detected.",
		},
	)

	chunksFlushedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "conjunct_chunks_flushed_total",
			Help: "Event chunks persisted.",
		},
	)

	sinkBufferEvents = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "conjunct_sink_buffer_events",
			Help: "Events buffered in the sink awaiting the next flush.",
		},
	)

	joinDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "conjunct_join_duration_seconds",
			Help:    "Per-timestep spatial join duration in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		},
	)

	pairsSummarized = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "conjunct_pairs_summarized",
			Help: "Distinct object pairs in the most recent summary.",
		},
	)

	streamsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "conjunct_progress_streams_active",
			Help: "Open progress event streams.",
		},
	)

	streamMessagesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "conjunct_progress_stream_messages_total",
			Help: "Progress messages sent to stream clients.",
		},
	)

	streamErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conjunct_progress_stream_errors_total",
			Help: "Progress stream errors, by reason.",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(httpDurationSeconds)
	prometheus.MustRegister(propagationDurationSeconds)
	prometheus.MustRegister(propagationSamplesTotal)
	prometheus.MustRegister(samplesDroppedTotal)
	prometheus.MustRegister(timestepsProcessedTotal)
	prometheus.MustRegister(eventsDetectedTotal)
	prometheus.MustRegister(chunksFlushedTotal)
	prometheus.MustRegister(sinkBufferEvents)
	prometheus.MustRegister(joinDurationSeconds)
	prometheus.MustRegister(pairsSummarized)
	prometheus.MustRegister(streamsActive)
	prometheus.MustRegister(streamMessagesTotal)
	prometheus.MustRegister(streamErrorsTotal)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordPropagation records one catalog propagation over the time grid.
func RecordPropagation(d time.Duration, valid, failed int) {
	propagationDurationSeconds.Observe(d.Seconds())
	propagationSamplesTotal.WithLabelValues("valid").Add(float64(valid))
	propagationSamplesTotal.WithLabelValues("error").Add(float64(failed))
}

// AddSamplesDropped counts samples removed by the sample filter.
func AddSamplesDropped(reason string, n int) {
	if n > 0 {
		samplesDroppedTotal.WithLabelValues(reason).Add(float64(n))
	}
}

// IncTimestepsProcessed counts one timestep delivered to the sink.
func IncTimestepsProcessed() {
	timestepsProcessedTotal.Inc()
}

// AddEventsDetected counts detected events.
func AddEventsDetected(n int) {
	eventsDetectedTotal.Add(float64(n))
}

// IncChunksFlushed counts one persisted chunk.
func IncChunksFlushed() {
	chunksFlushedTotal.Inc()
}

// SetSinkBufferEvents publishes the current sink buffer size.
func SetSinkBufferEvents(n int) {
	sinkBufferEvents.Set(float64(n))
}

// ObserveJoinDuration records one timestep join.
func ObserveJoinDuration(d time.Duration) {
	joinDurationSeconds.Observe(d.Seconds())
}

// SetPairsSummarized publishes the pair count of the latest aggregation.
func SetPairsSummarized(n int) {
	pairsSummarized.Set(float64(n))
}

// IncStreamsActive increments the open progress stream gauge.
func IncStreamsActive() {
	streamsActive.Inc()
}

// DecStreamsActive decrements the open progress stream gauge.
func DecStreamsActive() {
	streamsActive.Dec()
}

// IncStreamMessages counts one progress message sent.
func IncStreamMessages() {
	streamMessagesTotal.Inc()
}

// IncStreamErrors counts a progress stream error.
func IncStreamErrors(reason string) {
	streamErrorsTotal.WithLabelValues(reason).Inc()
}

// knownRoutes are the status server paths recorded with their own label.
var knownRoutes = map[string]bool{
	"/healthz":           true,
	"/readyz":            true,
	"/metrics":           true,
	"/api/v1/run":        true,
	"/api/v1/run/stream": true,
}

// normalizeRoute collapses unknown paths into one label to bound cardinality.
func normalizeRoute(path string) string {
	if knownRoutes[path] {
		return path
	}
	return "other"
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		code := strconv.Itoa(rw.statusCode)
		route := normalizeRoute(r.URL.Path)

		httpRequestsTotal.WithLabelValues(route, r.Method, code).Inc()
		httpDurationSeconds.WithLabelValues(route, r.Method).Observe(duration)
	})
}
