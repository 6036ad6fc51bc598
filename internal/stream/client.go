package stream

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/amsteele/satellite-conjunction-risk/internal/metrics"
)

const writeTimeout = 30 * time.Second

// client manages a single SSE connection's write operations.
type client struct {
	w       http.ResponseWriter
	flusher http.Flusher
	rc      *http.ResponseController
	logger  *slog.Logger

	messagesSent int64
}

// sendData sends data as one SSE "data:" message.
func (c *client) sendData(data []byte) error {
	// Extend write deadline before each write to prevent timeout on long-lived connections.
	if err := c.rc.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		c.logger.Debug("could not set write deadline", "error", err)
	}

	if _, err := fmt.Fprintf(c.w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("write: %w", err)
	}

	c.flusher.Flush()
	c.messagesSent++
	metrics.IncStreamMessages()
	return nil
}

// sendKeepalive sends an SSE comment line to keep the connection alive.
func (c *client) sendKeepalive() error {
	if err := c.rc.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		c.logger.Debug("could not set write deadline", "error", err)
	}

	if _, err := fmt.Fprint(c.w, ":\n\n"); err != nil {
		return fmt.Errorf("keepalive write: %w", err)
	}

	c.flusher.Flush()
	return nil
}
