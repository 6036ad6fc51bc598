package conjunction

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/amsteele/satellite-conjunction-risk/internal/metrics"
)

// ChunkID names one persisted batch of events. Numbered chunks are written
// every FlushEvery timesteps; the chunk written at the end of a complete pass
// is marked Final.
type ChunkID struct {
	Seq   int
	Final bool
}

// String returns the chunk label used in file names: "3" or "FINAL".
func (c ChunkID) String() string {
	if c.Final {
		return "FINAL"
	}
	return strconv.Itoa(c.Seq)
}

// Less orders numbered chunks by sequence, with the final chunk last.
func (c ChunkID) Less(o ChunkID) bool {
	if c.Final != o.Final {
		return o.Final
	}
	return c.Seq < o.Seq
}

// ChunkWriter persists an immutable batch of events under id.
type ChunkWriter interface {
	WriteChunk(ctx context.Context, id ChunkID, events []Event) error
}

// Sink buffers events and flushes them as chunks on a timestep cadence.
// It is owned by a single goroutine; timesteps must be added in pass order
// for chunk contents to be reproducible.
type Sink struct {
	w          ChunkWriter
	flushEvery int
	logger     *slog.Logger

	buf       []Event
	processed int
	nextSeq   int
	written   []ChunkID
	events    int
}

// NewSink creates a Sink that flushes to w after every flushEvery timesteps.
func NewSink(w ChunkWriter, flushEvery int, logger *slog.Logger) *Sink {
	if flushEvery < 1 {
		flushEvery = 1
	}
	return &Sink{
		w:          w,
		flushEvery: flushEvery,
		logger:     logger,
		nextSeq:    1,
	}
}

// Add records the events of one processed timestep and flushes a numbered
// chunk when the cadence is reached and the buffer is non-empty.
func (s *Sink) Add(ctx context.Context, events []Event) error {
	s.buf = append(s.buf, events...)
	s.events += len(events)
	s.processed++
	metrics.SetSinkBufferEvents(len(s.buf))

	if s.processed%s.flushEvery != 0 || len(s.buf) == 0 {
		return nil
	}
	if err := s.flush(ctx, ChunkID{Seq: s.nextSeq}); err != nil {
		return err
	}
	s.nextSeq++
	return nil
}

// Close writes any remaining events as the final chunk. Nothing is written
// when the buffer is empty.
func (s *Sink) Close(ctx context.Context) error {
	if len(s.buf) == 0 {
		return nil
	}
	return s.flush(ctx, ChunkID{Final: true})
}

// Abort writes any remaining events as the next numbered chunk. It is used
// when a pass stops early.
func (s *Sink) Abort(ctx context.Context) error {
	if len(s.buf) == 0 {
		return nil
	}
	if err := s.flush(ctx, ChunkID{Seq: s.nextSeq}); err != nil {
		return err
	}
	s.nextSeq++
	return nil
}

// flush persists the buffer. On failure the buffer is kept intact.
func (s *Sink) flush(ctx context.Context, id ChunkID) error {
	if err := s.w.WriteChunk(ctx, id, s.buf); err != nil {
		return &FlushError{Chunk: id, Err: err}
	}

	s.logger.Info("event chunk flushed",
		"chunk", id.String(),
		"events", len(s.buf),
		"timesteps_processed", s.processed,
	)
	metrics.IncChunksFlushed()

	s.written = append(s.written, id)
	s.buf = nil
	metrics.SetSinkBufferEvents(0)
	return nil
}

// Chunks returns the ids of all chunks written so far, in write order.
func (s *Sink) Chunks() []ChunkID {
	return append([]ChunkID(nil), s.written...)
}

// Buffered returns the number of events not yet persisted.
func (s *Sink) Buffered() int {
	return len(s.buf)
}

// Processed returns the number of timesteps added.
func (s *Sink) Processed() int {
	return s.processed
}

// Events returns the number of events added.
func (s *Sink) Events() int {
	return s.events
}
