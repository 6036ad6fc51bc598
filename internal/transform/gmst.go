package transform

import (
	"math"
	"time"
)

const (
	// j2000 is the Julian Date of the J2000.0 epoch.
	j2000 = 2451545.0

	// OmegaEarth is Earth's rotation rate in rad/s.
	OmegaEarth = 7.292115146706979e-5

	secondsPerDay = 86400.0
)

// JulianDate converts t to a Julian Date (Meeus calendar algorithm, valid for
// Gregorian dates).
func JulianDate(t time.Time) float64 {
	t = t.UTC()
	y, m := float64(t.Year()), float64(t.Month())
	if m <= 2 {
		y--
		m += 12
	}
	a := math.Floor(y / 100)
	b := 2 - a + math.Floor(a/4)

	dayFrac := (float64(t.Hour()) +
		float64(t.Minute())/60 +
		(float64(t.Second())+float64(t.Nanosecond())/1e9)/3600) / 24

	return math.Floor(365.25*(y+4716)) + math.Floor(30.6001*(m+1)) + float64(t.Day()) + b - 1524.5 + dayFrac
}

// GMST returns Greenwich Mean Sidereal Time in radians, in [0, 2π), using the
// IAU-82 polynomial in Julian centuries of UT1 since J2000 (UT1 ~ UTC).
func GMST(t time.Time) float64 {
	tu := (JulianDate(t) - j2000) / 36525.0

	// 876600h expressed in seconds of time.
	sec := 67310.54841 +
		(876600*3600+8640184.812866)*tu +
		0.093104*tu*tu -
		6.2e-6*tu*tu*tu

	sec = math.Mod(sec, secondsPerDay)
	if sec < 0 {
		sec += secondsPerDay
	}
	return sec / secondsPerDay * 2 * math.Pi
}

// GMSTGrid returns GMST for every instant of a time grid. The angle depends
// only on the instant, so one grid serves every object propagated over it.
func GMSTGrid(times []time.Time) []float64 {
	out := make([]float64, len(times))
	for i, t := range times {
		out[i] = GMST(t)
	}
	return out
}
