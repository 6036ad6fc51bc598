package conjunction

import (
	"math"
	"sort"
	"time"
)

// NoObject marks a sample whose object id was absent in the source record.
const NoObject int64 = math.MinInt64

// Trajectory column names as produced by the propagator.
const (
	ColTime      = "time"
	ColObjectID  = "object_id"
	ColX         = "x_km"
	ColY         = "y_km"
	ColZ         = "z_km"
	ColAltitude  = "altitude_km"
	ColErrorCode = "propagation_error_code"
)

// RequiredColumns lists the trajectory fields the engine cannot run without.
var RequiredColumns = []string{ColTime, ColObjectID, ColX, ColY, ColZ, ColAltitude, ColErrorCode}

// Sample is one object's position at one instant.
// Missing values are represented by a zero Time, NoObject, or NaN coordinates.
type Sample struct {
	Time       time.Time
	ObjectID   int64
	Position   [3]float64 // km
	AltitudeKm float64
	ErrorCode  int // 0 = valid propagation
}

// Valid reports whether the propagator flagged this sample as usable.
func (s Sample) Valid() bool {
	return s.ErrorCode == 0
}

// complete reports whether every field needed for pairing is present.
func (s Sample) complete() bool {
	if s.Time.IsZero() || s.ObjectID == NoObject {
		return false
	}
	for _, v := range s.Position {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return !math.IsNaN(s.AltitudeKm) && !math.IsInf(s.AltitudeKm, 0)
}

// CheckSchema returns a *SchemaError if any of RequiredColumns is absent
// from columns.
func CheckSchema(columns []string) error {
	have := make(map[string]bool, len(columns))
	for _, c := range columns {
		have[c] = true
	}
	var missing []string
	for _, c := range RequiredColumns {
		if !have[c] {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return &SchemaError{Missing: missing}
	}
	return nil
}
