package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/amsteele/satellite-conjunction-risk/internal/auth"
	"github.com/amsteele/satellite-conjunction-risk/internal/health"
	"github.com/amsteele/satellite-conjunction-risk/internal/httputil"
	"github.com/amsteele/satellite-conjunction-risk/internal/metrics"
	"github.com/amsteele/satellite-conjunction-risk/internal/stream"
)

// Server is the optional status server exposed while a pipeline runs.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a status server reporting on tracker.
// A non-empty token guards the run endpoints.
func NewServer(addr string, logger *slog.Logger, tracker *Tracker, streamCfg stream.Config, token string) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", health.Healthz)
	mux.HandleFunc("GET /readyz", health.Readyz(tracker.Ready))
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /api/v1/run", runStatusHandler(logger, tracker))
	mux.HandleFunc("GET /api/v1/run/stream", stream.NewHandler(tracker, streamCfg, logger).HandleProgress)

	// Build middleware chain: metrics -> logging -> auth -> mux.
	var handler http.Handler = mux
	handler = auth.Middleware(token)(handler)
	handler = loggingMiddleware(logger, streamCfg.TrustProxy)(handler)
	handler = metrics.Middleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		logger: logger,
	}
}

// Handler returns the fully wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown stops the server, waiting for in-flight requests until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func runStatusHandler(logger *slog.Logger, tracker *Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := httputil.WriteJSON(w, http.StatusOK, tracker.Status()); err != nil {
			logger.Warn("encode run status", "component", "api", "error", err)
		}
	}
}

// probePath returns true for health/readiness probe paths that should not log at INFO.
func probePath(path string) bool {
	return path == "/healthz" || path == "/readyz"
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

// Flush keeps progress streams working through the middleware.
func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

func loggingMiddleware(logger *slog.Logger, trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(sr, r)

			level := slog.LevelInfo
			if probePath(r.URL.Path) {
				level = slog.LevelDebug
			}

			logger.Log(r.Context(), level, "request",
				"component", "api",
				"method", r.Method,
				"path", r.URL.Path,
				"status", strconv.Itoa(sr.statusCode),
				"duration_ms", time.Since(start).Milliseconds(),
				"remote_ip", httputil.ClientIP(r, trustProxy),
			)
		})
	}
}
