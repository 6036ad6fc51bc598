// Package records reads and writes the columnar files exchanged between the
// pipeline stages: trajectory samples, event chunks and pair summaries.
//
// Two on-disk formats are supported and selected by file extension: CSV with a
// header row, and single-table SQLite databases.
package records

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/amsteele/satellite-conjunction-risk/internal/conjunction"
)

// Format encodes one kind of record file.
type Format interface {
	Name() string
	Ext() string

	WriteTrajectories(ctx context.Context, path string, samples []conjunction.Sample) error
	ReadTrajectories(ctx context.Context, path string) ([]conjunction.Sample, error)

	WriteEvents(ctx context.Context, path string, events []conjunction.Event) error
	ReadEvents(ctx context.Context, path string) ([]conjunction.Event, error)

	WriteSummary(ctx context.Context, path string, pairs []conjunction.PairSummary) error
	ReadSummary(ctx context.Context, path string) ([]conjunction.PairSummary, error)
}

var (
	// CSV is the comma-separated format (".csv").
	CSV Format = csvFormat{}
	// SQLite is the single-table SQLite format (".db").
	SQLite Format = sqliteFormat{}
)

// FormatFor returns the format matching the extension of path.
func FormatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return CSV, nil
	case ".db", ".sqlite", ".sqlite3":
		return SQLite, nil
	default:
		return nil, fmt.Errorf("unsupported record file extension %q (want .csv or .db)", filepath.Ext(path))
	}
}

// FormatByName returns the format registered under name ("csv" or "sqlite").
func FormatByName(name string) (Format, error) {
	switch strings.ToLower(name) {
	case "csv":
		return CSV, nil
	case "sqlite", "db":
		return SQLite, nil
	default:
		return nil, fmt.Errorf("unknown record format %q (want csv or sqlite)", name)
	}
}

// ReadTrajectories reads samples from path using the format for its extension.
func ReadTrajectories(ctx context.Context, path string) ([]conjunction.Sample, error) {
	f, err := FormatFor(path)
	if err != nil {
		return nil, err
	}
	return f.ReadTrajectories(ctx, path)
}

// WriteTrajectories writes samples to path using the format for its extension.
func WriteTrajectories(ctx context.Context, path string, samples []conjunction.Sample) error {
	f, err := FormatFor(path)
	if err != nil {
		return err
	}
	return f.WriteTrajectories(ctx, path, samples)
}

// WriteSummary writes pairs to path using the format for its extension.
func WriteSummary(ctx context.Context, path string, pairs []conjunction.PairSummary) error {
	f, err := FormatFor(path)
	if err != nil {
		return err
	}
	return f.WriteSummary(ctx, path, pairs)
}

// ReadSummary reads pairs from path using the format for its extension.
func ReadSummary(ctx context.Context, path string) ([]conjunction.PairSummary, error) {
	f, err := FormatFor(path)
	if err != nil {
		return nil, err
	}
	return f.ReadSummary(ctx, path)
}

// Cell encoding shared by the formats.

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: %w", s, err)
	}
	return t.UTC(), nil
}

func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func parseFloat(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "nan") {
		return math.NaN(), nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q: %w", s, err)
	}
	return v, nil
}

func formatObject(id int64) string {
	if id == conjunction.NoObject {
		return ""
	}
	return strconv.FormatInt(id, 10)
}

func parseObject(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return conjunction.NoObject, nil
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid object id %q: %w", s, err)
	}
	return id, nil
}

// missingErrorCode marks a sample whose propagation status was not recorded.
const missingErrorCode = -1

func parseErrorCode(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return missingErrorCode, nil
	}
	code, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid propagation error code %q: %w", s, err)
	}
	return code, nil
}
