package conjunction

// FilterStats counts the samples removed by Filter, by reason.
type FilterStats struct {
	Input        int
	Incomplete   int
	Invalid      int
	AboveCeiling int
	Kept         int
}

// Filter restricts samples to complete, (optionally) validly propagated
// samples at or below the configured altitude ceiling. The input slice is not
// modified.
func Filter(samples []Sample, cfg Config) ([]Sample, FilterStats) {
	stats := FilterStats{Input: len(samples)}
	kept := make([]Sample, 0, len(samples))

	for _, s := range samples {
		switch {
		case !s.complete():
			stats.Incomplete++
		case cfg.RequireValid && !s.Valid():
			stats.Invalid++
		case s.AltitudeKm > cfg.LEOBoundKm:
			stats.AboveCeiling++
		default:
			kept = append(kept, s)
		}
	}

	stats.Kept = len(kept)
	return kept, stats
}
