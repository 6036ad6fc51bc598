package conjunction

import "runtime"

// Config holds the detection parameters for one pass.
type Config struct {
	ThresholdKm  float64 // maximum qualifying separation
	AltBinKm     float64 // altitude band width; must be >= ThresholdKm
	LEOBoundKm   float64 // samples above this altitude are excluded
	RequireValid bool    // drop samples with a non-zero propagation error code
	FlushEvery   int     // timesteps per persisted chunk
	Workers      int     // timestep join workers (default: runtime.NumCPU())
}

// DefaultConfig returns the parameters used by the reference pipeline.
func DefaultConfig() Config {
	return Config{
		ThresholdKm:  5,
		AltBinKm:     50,
		LEOBoundKm:   2000,
		RequireValid: true,
		FlushEvery:   10,
		Workers:      runtime.NumCPU(),
	}
}

// Validate checks the configuration. A band narrower than the threshold would
// let pairs two or more bands apart go undetected, so it is rejected rather
// than silently under-detecting.
func (c Config) Validate() error {
	if !(c.ThresholdKm > 0) {
		return &ConfigError{Field: "threshold_km", Reason: "must be positive"}
	}
	if !(c.AltBinKm > 0) {
		return &ConfigError{Field: "alt_bin_km", Reason: "must be positive"}
	}
	if c.AltBinKm < c.ThresholdKm {
		return &ConfigError{Field: "alt_bin_km", Reason: "must be >= threshold_km"}
	}
	if c.FlushEvery < 1 {
		return &ConfigError{Field: "flush_every", Reason: "must be at least 1"}
	}
	if c.Workers < 0 {
		return &ConfigError{Field: "workers", Reason: "must not be negative"}
	}
	return nil
}

func (c Config) workers() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return runtime.NumCPU()
}
