package tle

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"
)

// Parse reads 3-line NORAD TLE text (name, line 1, line 2) from r. Malformed
// entries are skipped with a warning; a triplet whose data lines do not start
// with "1 " and "2 " resynchronizes one line further down.
func Parse(r io.Reader, logger *slog.Logger) ([]TLEEntry, error) {
	scanner := bufio.NewScanner(r)
	var lines []string
	for scanner.Scan() {
		if line := strings.TrimRight(scanner.Text(), "\r\n "); line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading TLE data: %w", err)
	}

	var entries []TLEEntry
	for i := 0; i+2 < len(lines); {
		name, line1, line2 := lines[i], lines[i+1], lines[i+2]
		if !strings.HasPrefix(line1, "1 ") || !strings.HasPrefix(line2, "2 ") {
			logger.Warn("skipping malformed TLE entry", "line_index", i, "name", name)
			i++
			continue
		}
		i += 3

		e, err := parseEntry(name, line1, line2)
		if err != nil {
			logger.Warn("skipping TLE entry", "name", strings.TrimSpace(name), "error", err)
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// parseEntry decodes one triplet whose line prefixes are already checked.
func parseEntry(name, line1, line2 string) (TLEEntry, error) {
	if len(line1) < 32 {
		return TLEEntry{}, fmt.Errorf("line1 too short: %d chars", len(line1))
	}
	noradStr := strings.TrimSpace(line1[2:7])
	noradID, err := strconv.Atoi(noradStr)
	if err != nil {
		return TLEEntry{}, fmt.Errorf("invalid NORAD id %q: %w", noradStr, err)
	}
	epoch, err := parseEpoch(strings.TrimSpace(line1[18:32]))
	if err != nil {
		return TLEEntry{}, err
	}
	orbit, err := parseOrbit(line2)
	if err != nil {
		return TLEEntry{}, fmt.Errorf("norad %d: %w", noradID, err)
	}

	return TLEEntry{
		NORADID: noradID,
		Name:    strings.TrimSpace(name),
		Epoch:   epoch,
		Line1:   line1,
		Line2:   line2,
		Orbit:   orbit,
	}, nil
}

// parseOrbit reads inclination, eccentricity and mean motion from line 2 and
// derives the semi-major axis and altitudes.
func parseOrbit(line2 string) (Orbit, error) {
	if len(line2) < 63 {
		return Orbit{}, fmt.Errorf("line2 too short: %d chars", len(line2))
	}

	incl, err := strconv.ParseFloat(strings.TrimSpace(line2[8:16]), 64)
	if err != nil {
		return Orbit{}, fmt.Errorf("invalid inclination: %w", err)
	}
	// Eccentricity is written with an implied leading decimal point.
	ecc, err := strconv.ParseFloat("0."+strings.TrimSpace(line2[26:33]), 64)
	if err != nil {
		return Orbit{}, fmt.Errorf("invalid eccentricity: %w", err)
	}
	revDay, err := strconv.ParseFloat(strings.TrimSpace(line2[52:63]), 64)
	if err != nil {
		return Orbit{}, fmt.Errorf("invalid mean motion: %w", err)
	}
	if revDay <= 0 {
		return Orbit{}, fmt.Errorf("non-positive mean motion %v", revDay)
	}

	n := revDay * 2 * math.Pi / 86400 // rad/s
	a := math.Cbrt(MuEarthKm3S2 / (n * n))

	return Orbit{
		InclinationDeg:   incl,
		Eccentricity:     ecc,
		MeanMotionRevDay: revDay,
		SemiMajorAxisKm:  a,
		MeanAltKm:        a - EarthRadiusKm,
		PerigeeAltKm:     a*(1-ecc) - EarthRadiusKm,
		ApogeeAltKm:      a*(1+ecc) - EarthRadiusKm,
	}, nil
}

// parseEpoch converts a TLE epoch in YYDDD.DDDDDDDD form to UTC. Years 57-99
// are 19xx, 00-56 are 20xx; the day of year is 1-based.
func parseEpoch(s string) (time.Time, error) {
	if len(s) < 5 {
		return time.Time{}, fmt.Errorf("epoch string too short: %q", s)
	}

	year, err := strconv.Atoi(s[:2])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid epoch year %q: %w", s[:2], err)
	}
	if year >= 57 {
		year += 1900
	} else {
		year += 2000
	}

	day, err := strconv.ParseFloat(s[2:], 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid epoch day %q: %w", s[2:], err)
	}
	return time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration((day - 1) * float64(24*time.Hour))), nil
}
