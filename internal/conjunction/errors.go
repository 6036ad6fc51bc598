package conjunction

import (
	"fmt"
	"strings"
)

// SchemaError reports trajectory input that lacks required columns.
type SchemaError struct {
	Missing []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("trajectory input missing columns: %s", strings.Join(e.Missing, ", "))
}

// ConfigError reports an invalid detection configuration.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid detection config: %s %s", e.Field, e.Reason)
}

// FlushError reports a chunk that could not be persisted. The buffered events
// remain with the sink; the run is aborted.
type FlushError struct {
	Chunk ChunkID
	Err   error
}

func (e *FlushError) Error() string {
	return fmt.Sprintf("flushing event chunk %s: %v", e.Chunk, e.Err)
}

func (e *FlushError) Unwrap() error {
	return e.Err
}
