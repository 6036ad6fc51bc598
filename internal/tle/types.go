package tle

import (
	"time"
)

// Physical constants used to derive orbit metadata.
const (
	MuEarthKm3S2  = 398600.4418
	EarthRadiusKm = 6378.137
)

// TLEEntry represents a single satellite's two-line element set.
type TLEEntry struct {
	NORADID int
	Name    string
	Epoch   time.Time
	Line1   string
	Line2   string
	Orbit   Orbit
}

// Orbit holds the mean elements read from line 2 and the altitudes derived
// from them.
type Orbit struct {
	InclinationDeg   float64
	Eccentricity     float64
	MeanMotionRevDay float64
	SemiMajorAxisKm  float64
	MeanAltKm        float64
	PerigeeAltKm     float64
	ApogeeAltKm      float64
}

// EpochRange represents the minimum and maximum epoch times in a dataset.
type EpochRange struct {
	Min time.Time
	Max time.Time
}

// Catalog is a loaded set of element sets, indexed by NORAD id.
type Catalog struct {
	Source     string
	LoadedAt   time.Time
	EpochRange EpochRange
	Entries    []TLEEntry

	byID map[int]int
}

// NewCatalog indexes entries. When an id appears more than once the entry
// with the latest epoch wins and earlier ones are dropped.
func NewCatalog(source string, entries []TLEEntry, loadedAt time.Time) *Catalog {
	c := &Catalog{Source: source, LoadedAt: loadedAt, byID: make(map[int]int, len(entries))}
	for _, e := range entries {
		if i, ok := c.byID[e.NORADID]; ok {
			if e.Epoch.After(c.Entries[i].Epoch) {
				c.Entries[i] = e
			}
			continue
		}
		c.byID[e.NORADID] = len(c.Entries)
		c.Entries = append(c.Entries, e)
	}

	for i, e := range c.Entries {
		if i == 0 || e.Epoch.Before(c.EpochRange.Min) {
			c.EpochRange.Min = e.Epoch
		}
		if i == 0 || e.Epoch.After(c.EpochRange.Max) {
			c.EpochRange.Max = e.Epoch
		}
	}
	return c
}

// Len returns the number of distinct objects.
func (c *Catalog) Len() int {
	return len(c.Entries)
}

// Lookup returns the entry for a NORAD id.
func (c *Catalog) Lookup(id int) (TLEEntry, bool) {
	i, ok := c.byID[id]
	if !ok {
		return TLEEntry{}, false
	}
	return c.Entries[i], true
}

// Name returns the object name for id, or "" if unknown.
func (c *Catalog) Name(id int64) string {
	e, ok := c.Lookup(int(id))
	if !ok {
		return ""
	}
	return e.Name
}

// AltitudeRange returns the lowest perigee and highest apogee altitude of
// the catalog in km.
func (c *Catalog) AltitudeRange() (perigeeKm, apogeeKm float64) {
	for i, e := range c.Entries {
		if i == 0 || e.Orbit.PerigeeAltKm < perigeeKm {
			perigeeKm = e.Orbit.PerigeeAltKm
		}
		if i == 0 || e.Orbit.ApogeeAltKm > apogeeKm {
			apogeeKm = e.Orbit.ApogeeAltKm
		}
	}
	return perigeeKm, apogeeKm
}
