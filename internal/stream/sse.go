// Package stream serves run progress as Server-Sent Events. Clients connect
// via GET /api/v1/run/stream and receive a progress message whenever the run
// state changes, ending with a final message once the run is over.
//
// SSE message format:
//
//	data: {"type":"progress","state":{...}}\n\n
//	data: {"type":"final","state":{...}}\n\n
//
// Keep-alive comments (:\n\n) are sent every KeepaliveInterval while the
// state is unchanged.
package stream

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"time"

	"github.com/amsteele/satellite-conjunction-risk/internal/httputil"
	"github.com/amsteele/satellite-conjunction-risk/internal/metrics"
)

// Source reports the state of a run.
type Source interface {
	// Snapshot returns the current state and whether the run has finished.
	Snapshot() (state any, final bool)
}

// Config holds streaming limits.
type Config struct {
	MaxConcurrentPerIP int           // Max concurrent streams per IP.
	Interval           time.Duration // How often the source is polled.
	KeepaliveInterval  time.Duration
	TrustProxy         bool // Key the per-IP limit on X-Forwarded-For.
}

// DefaultConfig returns the limits used when none are configured.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentPerIP: 10,
		Interval:           time.Second,
		KeepaliveInterval:  30 * time.Second,
	}
}

// Handler manages SSE progress connections.
type Handler struct {
	source  Source
	config  Config
	limiter *streamLimiter
	logger  *slog.Logger
}

// NewHandler creates a progress stream handler over source.
func NewHandler(source Source, config Config, logger *slog.Logger) *Handler {
	return &Handler{
		source:  source,
		config:  config,
		limiter: newStreamLimiter(config.MaxConcurrentPerIP),
		logger:  logger,
	}
}

// HandleProgress serves the SSE progress stream.
func (h *Handler) HandleProgress(w http.ResponseWriter, r *http.Request) {
	ip := httputil.ClientIP(r, h.config.TrustProxy)
	if !h.limiter.acquire(ip) {
		metrics.IncStreamErrors("rate_limit")
		h.logger.Warn("stream rate limit exceeded",
			"component", "stream",
			"remote_ip", ip,
			"current_count", h.limiter.count(ip),
		)
		w.Header().Set("Retry-After", "30")
		httputil.WriteError(w, http.StatusTooManyRequests, "too many concurrent streams")
		return
	}

	metrics.IncStreamsActive()
	startTime := time.Now()
	h.logger.Info("stream connected", "component", "stream", "remote_ip", ip, "user_agent", r.Header.Get("User-Agent"))

	defer func() {
		h.limiter.release(ip)
		metrics.DecStreamsActive()
		h.logger.Info("stream disconnected",
			"component", "stream",
			"remote_ip", ip,
			"duration_seconds", int(time.Since(startTime).Seconds()),
		)
	}()

	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.WriteError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering.
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Clear the server's default WriteTimeout for this connection.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Debug("could not clear write deadline", "error", err)
	}

	c := &client{w: w, flusher: flusher, rc: rc, logger: h.logger}

	// Jittered retry interval (3-7s) spreads reconnects after a restart.
	fmt.Fprintf(w, "retry: %d\n\n", 3000+rand.Intn(4000))
	flusher.Flush()

	var last []byte
	// send writes the current snapshot if it changed since the last message.
	send := func() (sent, done bool) {
		state, final := h.source.Snapshot()
		msg := progressMessage{Type: "progress", State: state}
		if final {
			msg.Type = "final"
		}
		data, err := json.Marshal(msg)
		if err != nil {
			metrics.IncStreamErrors("marshal_error")
			h.logger.Warn("stream marshal error", "remote_ip", ip, "error", err)
			return false, false
		}
		if bytes.Equal(data, last) {
			return false, false
		}
		if err := c.sendData(data); err != nil {
			metrics.IncStreamErrors("send_error")
			h.logger.Warn("stream send error", "remote_ip", ip, "error", err)
			return false, true
		}
		last = data
		return true, final
	}

	if _, done := send(); done {
		return
	}

	ticker := time.NewTicker(h.config.Interval)
	defer ticker.Stop()
	keepaliveTicker := time.NewTicker(h.config.KeepaliveInterval)
	defer keepaliveTicker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			sent, done := send()
			if done {
				return
			}
			if sent {
				keepaliveTicker.Reset(h.config.KeepaliveInterval)
			}

		case <-keepaliveTicker.C:
			if err := c.sendKeepalive(); err != nil {
				metrics.IncStreamErrors("send_error")
				h.logger.Warn("stream keepalive error", "remote_ip", ip, "error", err)
				return
			}
		}
	}
}

type progressMessage struct {
	Type  string `json:"type"`
	State any    `json:"state"`
}
