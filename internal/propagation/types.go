package propagation

import (
	"math"
	"time"

	"github.com/amsteele/satellite-conjunction-risk/internal/transform"
)

// Propagation error codes written to trajectory samples. Zero means the
// sample is valid.
const (
	CodeOK         = 0
	CodeNonFinite  = 1 // NaN/Inf or implausible radius
	CodeInitFailed = 2 // element set rejected by the propagator
	CodeDecayed    = 6 // position below the Earth's surface
)

// PropConfig holds propagation configuration.
type PropConfig struct {
	Workers int             // Worker pool size (default: runtime.NumCPU())
	Frame   transform.Frame // Output frame (default: teme)
}

// TimeGrid returns floor(hours*60/stepMinutes)+1 instants starting at start,
// stepMinutes apart, in UTC. Instants are truncated to whole seconds, the
// resolution of the propagator.
func TimeGrid(start time.Time, hours, stepMinutes float64) []time.Time {
	if hours < 0 || stepMinutes <= 0 {
		return nil
	}
	n := int(math.Floor(hours*60/stepMinutes)) + 1
	step := time.Duration(stepMinutes * float64(time.Minute))

	start = start.UTC().Truncate(time.Second)
	grid := make([]time.Time, n)
	for i := range grid {
		grid[i] = start.Add(time.Duration(i) * step).Truncate(time.Second)
	}
	return grid
}
