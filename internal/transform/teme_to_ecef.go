// Package transform provides coordinate frame helpers for propagated positions.
//
// SGP4 produces positions in TEME (True Equator Mean Equinox). Close-approach
// distances are frame invariant under the Earth rotation, so the pipeline can
// run in TEME directly; ECEF output is available for trajectory files consumed
// by Earth-fixed tooling.
//
// Method: Vallado-style rotation using GMST only (TEME -> PEF ~ ECEF). Polar
// motion and the equation of the equinoxes are ignored, an error of ~50 m.
//
// Reference: Vallado, "Fundamentals of Astrodynamics and Applications", Ch. 3.
package transform

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// EarthRadiusKm is the WGS-84 equatorial radius.
const EarthRadiusKm = 6378.137

// PositionTEME represents a satellite position and velocity in the TEME frame.
type PositionTEME struct {
	X, Y, Z    float64 // km
	VX, VY, VZ float64 // km/s
}

// PositionECEF represents a satellite position and velocity in the ECEF frame.
type PositionECEF struct {
	X, Y, Z    float64 // km
	VX, VY, VZ float64 // km/s
}

// Frame names the coordinate frame of produced positions.
type Frame string

const (
	FrameTEME Frame = "teme"
	FrameECEF Frame = "ecef"
)

// ParseFrame accepts "teme" or "ecef" in any case.
func ParseFrame(s string) (Frame, error) {
	switch f := Frame(strings.ToLower(strings.TrimSpace(s))); f {
	case FrameTEME, FrameECEF:
		return f, nil
	default:
		return "", fmt.Errorf("unknown frame %q (want teme or ecef)", s)
	}
}

// TEMEToECEF transforms a TEME position/velocity to ECEF at the given UTC time.
func TEMEToECEF(teme PositionTEME, t time.Time) PositionECEF {
	return TEMEToECEFWithGMST(teme, GMST(t))
}

// TEMEToECEFWithGMST transforms TEME to ECEF using a precomputed GMST angle (radians).
// Useful when propagating many objects to the same time.
//
// Position transform: r_ECEF = R3(θ) * r_TEME
// Velocity transform: v_ECEF = R3(θ) * v_TEME - ω × r_ECEF
func TEMEToECEFWithGMST(teme PositionTEME, gmst float64) PositionECEF {
	cosG := math.Cos(gmst)
	sinG := math.Sin(gmst)

	x := teme.X*cosG + teme.Y*sinG
	y := -teme.X*sinG + teme.Y*cosG

	// ω × r_ECEF = [-ω*y, ω*x, 0]
	vx := teme.VX*cosG + teme.VY*sinG + OmegaEarth*y
	vy := -teme.VX*sinG + teme.VY*cosG - OmegaEarth*x

	return PositionECEF{X: x, Y: y, Z: teme.Z, VX: vx, VY: vy, VZ: teme.VZ}
}

// Radius returns the geocentric distance of r in km.
func Radius(r [3]float64) float64 {
	return math.Sqrt(r[0]*r[0] + r[1]*r[1] + r[2]*r[2])
}

// AltitudeKm returns the height of r above a spherical Earth of equatorial
// radius. The value is the same in TEME and ECEF.
func AltitudeKm(r [3]float64) float64 {
	return Radius(r) - EarthRadiusKm
}

// ValidateECEF checks that an ECEF position is physically reasonable for an
// Earth-orbiting satellite: finite and between 6200 km and 50000 km from the
// geocenter.
func ValidateECEF(pos PositionECEF) bool {
	r := [3]float64{pos.X, pos.Y, pos.Z}
	for _, v := range r {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	mag := Radius(r)
	return mag >= 6200.0 && mag <= 50000.0
}
