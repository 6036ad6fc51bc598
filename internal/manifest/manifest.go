// Package manifest records where a pipeline run wrote its outputs and with
// which parameters, as a small key=value file that later tooling reads back.
package manifest

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/amsteele/satellite-conjunction-risk/internal/fsutil"
)

// Run status values.
const (
	StatusOK        = "ok"
	StatusNoEvents  = "no_events"
	StatusCancelled = "cancelled"
)

// Manifest describes one run.
type Manifest struct {
	RunID        string
	Status       string
	TrajPath     string
	EventsPath   string
	CatalogPath  string
	SummaryPath  string
	Hours        float64
	StepMinutes  float64
	ThresholdKm  float64
	AltBinKm     float64
	LEOBoundKm   float64
	FlushEvery   int
	RequireValid bool
	Pairs        int
	Events       int
}

// NewRunID returns a fresh random run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// Entry is one key=value line.
type Entry struct {
	Key   string
	Value string
}

// Entries returns the manifest as ordered key=value pairs.
func (m *Manifest) Entries() []Entry {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	return []Entry{
		{"run_id", m.RunID},
		{"status", m.Status},
		{"traj_path", m.TrajPath},
		{"events_path", m.EventsPath},
		{"catalog_path", m.CatalogPath},
		{"pair_summary_path", m.SummaryPath},
		{"hours", f(m.Hours)},
		{"step_minutes", f(m.StepMinutes)},
		{"threshold_km", f(m.ThresholdKm)},
		{"alt_bin_km", f(m.AltBinKm)},
		{"leo_bound_km", f(m.LEOBoundKm)},
		{"flush_every", strconv.Itoa(m.FlushEvery)},
		{"require_valid_propagation", strconv.FormatBool(m.RequireValid)},
		{"n_pairs", strconv.Itoa(m.Pairs)},
		{"n_events", strconv.Itoa(m.Events)},
	}
}

// Encode renders entries one per line.
func Encode(entries []Entry) ([]byte, error) {
	var buf bytes.Buffer
	for _, e := range entries {
		if e.Key == "" || strings.ContainsAny(e.Key, "=\n") || strings.HasPrefix(e.Key, "#") {
			return nil, fmt.Errorf("invalid manifest key %q", e.Key)
		}
		if strings.Contains(e.Value, "\n") {
			return nil, fmt.Errorf("manifest value for %s contains a newline", e.Key)
		}
		fmt.Fprintf(&buf, "%s=%s\n", e.Key, e.Value)
	}
	return buf.Bytes(), nil
}

// Write atomically replaces path with the encoded manifest.
func Write(path string, m *Manifest) error {
	data, err := Encode(m.Entries())
	if err != nil {
		return err
	}
	return fsutil.WriteFile(path, data)
}

// Read parses a key=value file. Blank lines and lines starting with '#' are
// skipped; keys and values are trimmed. Later keys override earlier ones.
func Read(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening manifest: %w", err)
	}
	defer f.Close()

	out := make(map[string]string)
	sc := bufio.NewScanner(f)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		k, v, ok := strings.Cut(text, "=")
		if !ok {
			return nil, fmt.Errorf("%s line %d: expected key=value", path, line)
		}
		out[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	return out, nil
}

// Load reads path and decodes the known keys into a Manifest. Unknown keys
// are ignored and missing keys keep their zero value.
func Load(path string) (*Manifest, error) {
	kv, err := Read(path)
	if err != nil {
		return nil, err
	}

	m := &Manifest{
		RunID:       kv["run_id"],
		Status:      kv["status"],
		TrajPath:    kv["traj_path"],
		EventsPath:  kv["events_path"],
		CatalogPath: kv["catalog_path"],
		SummaryPath: kv["pair_summary_path"],
	}

	floats := []struct {
		key string
		dst *float64
	}{
		{"hours", &m.Hours},
		{"step_minutes", &m.StepMinutes},
		{"threshold_km", &m.ThresholdKm},
		{"alt_bin_km", &m.AltBinKm},
		{"leo_bound_km", &m.LEOBoundKm},
	}
	for _, fl := range floats {
		v, ok := kv[fl.key]
		if !ok {
			continue
		}
		if *fl.dst, err = strconv.ParseFloat(v, 64); err != nil {
			return nil, fmt.Errorf("manifest %s: %w", fl.key, err)
		}
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"flush_every", &m.FlushEvery},
		{"n_pairs", &m.Pairs},
		{"n_events", &m.Events},
	}
	for _, in := range ints {
		v, ok := kv[in.key]
		if !ok {
			continue
		}
		if *in.dst, err = strconv.Atoi(v); err != nil {
			return nil, fmt.Errorf("manifest %s: %w", in.key, err)
		}
	}

	if v, ok := kv["require_valid_propagation"]; ok {
		if m.RequireValid, err = strconv.ParseBool(v); err != nil {
			return nil, fmt.Errorf("manifest require_valid_propagation: %w", err)
		}
	}
	return m, nil
}
