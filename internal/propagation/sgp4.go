package propagation

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/amsteele/satellite-conjunction-risk/internal/transform"
)

// SGP4 library choice: github.com/joshuaferrara/go-satellite
//
// Pure Go (no CGO) with explicit TEME output.
//
// Note: Propagate() takes Satellite by value so SGP4 error codes are not visible
// to the caller. We detect propagation failures by checking output for NaN/Inf
// and unreasonable position magnitudes.

// Error reports a failed propagation with the code recorded in the sample.
type Error struct {
	NORADID int
	Code    int
	Reason  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("sgp4 propagation failed for NORAD %d (code %d): %s", e.NORADID, e.Code, e.Reason)
}

// ErrorCode returns the propagation code carried by err, CodeOK for nil and
// CodeNonFinite for any other error.
func ErrorCode(err error) int {
	if err == nil {
		return CodeOK
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code
	}
	return CodeNonFinite
}

// SGP4Propagator wraps the go-satellite library for a single satellite.
type SGP4Propagator struct {
	sat     satellite.Satellite
	noradID int
}

// NewSGP4Propagator creates an SGP4 propagator from TLE lines.
// Returns an error if the TLE cannot be parsed or the SGP4 model fails to initialize.
//
// Pre-validates TLE format before passing to the library, because go-satellite
// calls log.Fatal on malformed input (which would kill the process).
func NewSGP4Propagator(line1, line2 string, noradID int) (*SGP4Propagator, error) {
	if err := validateTLELines(line1, line2); err != nil {
		return nil, &Error{NORADID: noradID, Code: CodeInitFailed, Reason: "invalid TLE: " + err.Error()}
	}

	sat := satellite.TLEToSat(line1, line2, satellite.GravityWGS84)
	if sat.Error != 0 {
		return nil, &Error{NORADID: noradID, Code: CodeInitFailed, Reason: fmt.Sprintf("init code=%d %s", sat.Error, sat.ErrorStr)}
	}
	return &SGP4Propagator{sat: sat, noradID: noradID}, nil
}

// validateTLELines performs basic format validation on TLE lines.
// This prevents passing garbage to go-satellite which calls log.Fatal on parse errors.
func validateTLELines(line1, line2 string) error {
	line1 = strings.TrimSpace(line1)
	line2 = strings.TrimSpace(line2)

	if len(line1) != 69 {
		return fmt.Errorf("line1 length %d, expected 69", len(line1))
	}
	if len(line2) != 69 {
		return fmt.Errorf("line2 length %d, expected 69", len(line2))
	}
	if line1[0] != '1' {
		return fmt.Errorf("line1 must start with '1', got '%c'", line1[0])
	}
	if line2[0] != '2' {
		return fmt.Errorf("line2 must start with '2', got '%c'", line2[0])
	}
	return nil
}

// Propagate computes the satellite state at t (whole seconds, UTC) in the
// TEME frame (km, km/s).
func (p *SGP4Propagator) Propagate(t time.Time) (transform.PositionTEME, error) {
	t = t.UTC()
	pos, vel := satellite.Propagate(p.sat, t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second())

	for _, v := range []float64{pos.X, pos.Y, pos.Z, vel.X, vel.Y, vel.Z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return transform.PositionTEME{}, &Error{NORADID: p.noradID, Code: CodeNonFinite, Reason: "output is NaN/Inf"}
		}
	}

	mag := transform.Radius([3]float64{pos.X, pos.Y, pos.Z})
	if mag < transform.EarthRadiusKm {
		return transform.PositionTEME{}, &Error{NORADID: p.noradID, Code: CodeDecayed, Reason: fmt.Sprintf("radius %.1f km is below the surface", mag)}
	}
	if mag > 50000.0 {
		return transform.PositionTEME{}, &Error{NORADID: p.noradID, Code: CodeNonFinite, Reason: fmt.Sprintf("unreasonable position magnitude %.1f km", mag)}
	}

	return transform.PositionTEME{
		X:  pos.X,
		Y:  pos.Y,
		Z:  pos.Z,
		VX: vel.X,
		VY: vel.Y,
		VZ: vel.Z,
	}, nil
}
