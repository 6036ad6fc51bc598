// Package config loads the pipeline configuration from an optional YAML file
// and CONJUNCT_-prefixed environment variables.
package config

import (
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/amsteele/satellite-conjunction-risk/internal/conjunction"
	"github.com/amsteele/satellite-conjunction-risk/internal/records"
	"github.com/amsteele/satellite-conjunction-risk/internal/stream"
	"github.com/amsteele/satellite-conjunction-risk/internal/transform"
)

// EnvPrefix prefixes every environment override, e.g.
// CONJUNCT_DETECTION_THRESHOLD_KM.
const EnvPrefix = "CONJUNCT"

// Config represents the complete pipeline configuration.
type Config struct {
	Catalog     CatalogConfig     `mapstructure:"catalog" yaml:"catalog"`
	Propagation PropagationConfig `mapstructure:"propagation" yaml:"propagation"`
	Detection   DetectionConfig   `mapstructure:"detection" yaml:"detection"`
	Output      OutputConfig      `mapstructure:"output" yaml:"output"`
	Status      StatusConfig      `mapstructure:"status" yaml:"status"`
	Logging     LoggingConfig     `mapstructure:"logging" yaml:"logging"`
}

// CatalogConfig selects the element sets to propagate.
type CatalogConfig struct {
	Source     string   `mapstructure:"source" yaml:"source"` // URL or local TLE file
	ExtraURLs  []string `mapstructure:"extra_urls" yaml:"extra_urls"`
	SavePath   string   `mapstructure:"save_path" yaml:"save_path"`
	SampleN    int      `mapstructure:"sample_n" yaml:"sample_n"` // 0 = whole catalog
	SampleSeed int64    `mapstructure:"sample_seed" yaml:"sample_seed"`
}

// PropagationConfig describes the time grid.
type PropagationConfig struct {
	Start       string  `mapstructure:"start" yaml:"start"` // RFC3339; empty = current hour
	Hours       float64 `mapstructure:"hours" yaml:"hours"`
	StepMinutes float64 `mapstructure:"step_minutes" yaml:"step_minutes"`
	Workers     int     `mapstructure:"workers" yaml:"workers"`
	Frame       string  `mapstructure:"frame" yaml:"frame"`
}

// DetectionConfig holds the conjunction engine parameters.
type DetectionConfig struct {
	ThresholdKm             float64 `mapstructure:"threshold_km" yaml:"threshold_km"`
	AltBinKm                float64 `mapstructure:"alt_bin_km" yaml:"alt_bin_km"`
	LEOBoundKm              float64 `mapstructure:"leo_bound_km" yaml:"leo_bound_km"`
	RequireValidPropagation bool    `mapstructure:"require_valid_propagation" yaml:"require_valid_propagation"`
	FlushEvery              int     `mapstructure:"flush_every" yaml:"flush_every"`
	Workers                 int     `mapstructure:"workers" yaml:"workers"`
}

// OutputConfig controls where run artifacts are written. Empty paths are
// derived from the run parameters under Dir.
type OutputConfig struct {
	Dir          string `mapstructure:"dir" yaml:"dir"`
	Format       string `mapstructure:"format" yaml:"format"`
	TrajPath     string `mapstructure:"traj_path" yaml:"traj_path"`
	EventsPath   string `mapstructure:"events_path" yaml:"events_path"`
	SummaryPath  string `mapstructure:"summary_path" yaml:"summary_path"`
	ManifestPath string `mapstructure:"manifest_path" yaml:"manifest_path"`
	KeepChunks   bool   `mapstructure:"keep_chunks" yaml:"keep_chunks"`
}

// StatusConfig configures the optional HTTP status server.
type StatusConfig struct {
	Addr            string `mapstructure:"addr" yaml:"addr"` // empty disables the server
	TrustProxy      bool   `mapstructure:"trust_proxy" yaml:"trust_proxy"`
	MaxStreamsPerIP int    `mapstructure:"max_streams_per_ip" yaml:"max_streams_per_ip"`
	Token           string `mapstructure:"token" yaml:"-"` // bearer token for /api/v1/run*; empty = open
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Load reads configuration from path (optional) and environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// setDefaults mirrors the reference pipeline run.
func setDefaults(v *viper.Viper) {
	v.SetDefault("catalog.source", "https://celestrak.org/NORAD/elements/gp.php?GROUP=active&FORMAT=tle")
	v.SetDefault("catalog.extra_urls", []string{})
	v.SetDefault("catalog.save_path", "data/catalog.tle")
	v.SetDefault("catalog.sample_n", 0)
	v.SetDefault("catalog.sample_seed", 42)

	v.SetDefault("propagation.start", "")
	v.SetDefault("propagation.hours", 48.0)
	v.SetDefault("propagation.step_minutes", 1.0)
	v.SetDefault("propagation.workers", 0)
	v.SetDefault("propagation.frame", string(transform.FrameTEME))

	v.SetDefault("detection.threshold_km", 5.0)
	v.SetDefault("detection.alt_bin_km", 50.0)
	v.SetDefault("detection.leo_bound_km", 2000.0)
	v.SetDefault("detection.require_valid_propagation", true)
	v.SetDefault("detection.flush_every", 10)
	v.SetDefault("detection.workers", 0)

	v.SetDefault("output.dir", "data")
	v.SetDefault("output.format", "csv")
	v.SetDefault("output.traj_path", "")
	v.SetDefault("output.events_path", "")
	v.SetDefault("output.summary_path", "")
	v.SetDefault("output.manifest_path", "data/latest_run.txt")
	v.SetDefault("output.keep_chunks", false)

	v.SetDefault("status.addr", "")
	v.SetDefault("status.trust_proxy", false)
	v.SetDefault("status.max_streams_per_ip", 10)
	v.SetDefault("status.token", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks that all configuration values are valid.
func (c *Config) Validate() error {
	if c.Catalog.Source == "" {
		return fmt.Errorf("catalog.source is required")
	}
	if c.Catalog.SampleN < 0 {
		return fmt.Errorf("catalog.sample_n must not be negative")
	}

	if _, err := c.StartTime(time.Now()); err != nil {
		return err
	}
	if c.Propagation.Hours < 0 {
		return fmt.Errorf("propagation.hours must not be negative")
	}
	if c.Propagation.StepMinutes <= 0 {
		return fmt.Errorf("propagation.step_minutes must be positive")
	}
	if c.Propagation.Workers < 0 {
		return fmt.Errorf("propagation.workers must not be negative")
	}
	if _, err := transform.ParseFrame(c.Propagation.Frame); err != nil {
		return fmt.Errorf("propagation.frame: %w", err)
	}

	if err := c.Engine().Validate(); err != nil {
		return err
	}

	if _, err := records.FormatByName(c.Output.Format); err != nil {
		return fmt.Errorf("output.format: %w", err)
	}
	if c.Output.ManifestPath == "" {
		return fmt.Errorf("output.manifest_path is required")
	}

	if c.Status.MaxStreamsPerIP < 1 {
		return fmt.Errorf("status.max_streams_per_ip must be at least 1")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}

// Engine returns the detection parameters as an engine configuration.
// Zero workers selects runtime.NumCPU().
func (c *Config) Engine() conjunction.Config {
	workers := c.Detection.Workers
	if workers == 0 {
		workers = runtime.NumCPU()
	}
	return conjunction.Config{
		ThresholdKm:  c.Detection.ThresholdKm,
		AltBinKm:     c.Detection.AltBinKm,
		LEOBoundKm:   c.Detection.LEOBoundKm,
		RequireValid: c.Detection.RequireValidPropagation,
		FlushEvery:   c.Detection.FlushEvery,
		Workers:      workers,
	}
}

// Stream returns the progress stream limits of the status server.
func (c *Config) Stream() stream.Config {
	cfg := stream.DefaultConfig()
	cfg.MaxConcurrentPerIP = c.Status.MaxStreamsPerIP
	cfg.TrustProxy = c.Status.TrustProxy
	return cfg
}

// StartTime returns the configured grid start, or the start of the current
// UTC hour when none is set.
func (c *Config) StartTime(now time.Time) (time.Time, error) {
	if c.Propagation.Start == "" {
		return now.UTC().Truncate(time.Hour), nil
	}
	t, err := time.Parse(time.RFC3339, c.Propagation.Start)
	if err != nil {
		return time.Time{}, fmt.Errorf("propagation.start: %w", err)
	}
	return t.UTC(), nil
}

// Paths are the resolved artifact locations of a run.
type Paths struct {
	Trajectories string
	Events       string
	Summary      string
	Manifest     string
}

// Paths resolves output locations, deriving unset ones from the run
// parameters: trajectories_48h_1min.csv, events_48h_1min_thr5.csv and
// pair_summary_thr5_48h_1min.csv.
func (c *Config) Paths() (Paths, error) {
	f, err := records.FormatByName(c.Output.Format)
	if err != nil {
		return Paths{}, err
	}
	ext := f.Ext()
	span := fmt.Sprintf("%gh_%gmin", c.Propagation.Hours, c.Propagation.StepMinutes)
	thr := fmt.Sprintf("thr%g", c.Detection.ThresholdKm)

	p := Paths{
		Trajectories: c.Output.TrajPath,
		Events:       c.Output.EventsPath,
		Summary:      c.Output.SummaryPath,
		Manifest:     c.Output.ManifestPath,
	}
	if p.Trajectories == "" {
		p.Trajectories = filepath.Join(c.Output.Dir, "trajectories_"+span+ext)
	}
	if p.Events == "" {
		p.Events = filepath.Join(c.Output.Dir, "events_"+span+"_"+thr+ext)
	}
	if p.Summary == "" {
		p.Summary = filepath.Join(c.Output.Dir, "pair_summary_"+thr+"_"+span+ext)
	}
	return p, nil
}

// WriteYAML renders the configuration as YAML.
func (c *Config) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return enc.Close()
}
