package records

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/amsteele/satellite-conjunction-risk/internal/conjunction"
	"github.com/amsteele/satellite-conjunction-risk/internal/fsutil"
)

// ctxCheckEvery is how many rows are processed between context checks.
const ctxCheckEvery = 4096

type csvFormat struct{}

func (csvFormat) Name() string { return "csv" }
func (csvFormat) Ext() string  { return ".csv" }

// writeCSV writes header and n rows to path atomically; row returns the
// fields of row i.
func writeCSV(ctx context.Context, path string, header []string, n int, row func(i int) []string) error {
	return fsutil.Write(path, func(tmp string) error {
		f, err := os.Create(tmp)
		if err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
		defer f.Close()

		bw := bufio.NewWriterSize(f, 64*1024)
		w := csv.NewWriter(bw)
		if err := w.Write(header); err != nil {
			return err
		}
		for i := 0; i < n; i++ {
			if i%ctxCheckEvery == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
			if err := w.Write(row(i)); err != nil {
				return fmt.Errorf("writing %s row %d: %w", path, i+1, err)
			}
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
		if err := bw.Flush(); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
		if err := f.Sync(); err != nil {
			return fmt.Errorf("syncing %s: %w", path, err)
		}
		return f.Close()
	})
}

// readCSV reads path and calls fn for each data row with a column lookup
// built from the header. check validates the header before any row is read.
func readCSV(ctx context.Context, path string, check func(header []string) error, fn func(line int, get func(col string) string) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(bufio.NewReaderSize(f, 64*1024))
	r.ReuseRecord = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		if err := check(nil); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading %s header: %w", path, err)
	}
	cols := make(map[string]int, len(header))
	names := make([]string, len(header))
	for i, h := range header {
		names[i] = h
		cols[h] = i
	}
	if err := check(names); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	var record []string
	get := func(col string) string {
		i, ok := cols[col]
		if !ok || i >= len(record) {
			return ""
		}
		return record[i]
	}

	for line := 2; ; line++ {
		if line%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		record, err = r.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		if err := fn(line, get); err != nil {
			return fmt.Errorf("%s line %d: %w", path, line, err)
		}
	}
}

// requireColumns returns a header check for a fixed column set.
func requireColumns(want []string) func([]string) error {
	return func(header []string) error {
		have := make(map[string]bool, len(header))
		for _, h := range header {
			have[h] = true
		}
		var missing []string
		for _, c := range want {
			if !have[c] {
				missing = append(missing, c)
			}
		}
		if len(missing) > 0 {
			return fmt.Errorf("missing columns %v", missing)
		}
		return nil
	}
}

func (csvFormat) WriteTrajectories(ctx context.Context, path string, samples []conjunction.Sample) error {
	return writeCSV(ctx, path, conjunction.RequiredColumns, len(samples), func(i int) []string {
		s := samples[i]
		return []string{
			formatTime(s.Time),
			formatObject(s.ObjectID),
			formatFloat(s.Position[0]),
			formatFloat(s.Position[1]),
			formatFloat(s.Position[2]),
			formatFloat(s.AltitudeKm),
			strconv.Itoa(s.ErrorCode),
		}
	})
}

func (csvFormat) ReadTrajectories(ctx context.Context, path string) ([]conjunction.Sample, error) {
	var samples []conjunction.Sample
	err := readCSV(ctx, path, conjunction.CheckSchema, func(_ int, get func(string) string) error {
		s, err := parseSample(get)
		if err != nil {
			return err
		}
		samples = append(samples, s)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return samples, nil
}

// parseSample decodes one trajectory row. Empty cells become missing values
// for the sample filter rather than errors.
func parseSample(get func(string) string) (conjunction.Sample, error) {
	var s conjunction.Sample
	var err error

	if s.Time, err = parseTime(get(conjunction.ColTime)); err != nil {
		return s, err
	}
	if s.ObjectID, err = parseObject(get(conjunction.ColObjectID)); err != nil {
		return s, err
	}
	for i, col := range []string{conjunction.ColX, conjunction.ColY, conjunction.ColZ} {
		if s.Position[i], err = parseFloat(get(col)); err != nil {
			return s, err
		}
	}
	if s.AltitudeKm, err = parseFloat(get(conjunction.ColAltitude)); err != nil {
		return s, err
	}
	if s.ErrorCode, err = parseErrorCode(get(conjunction.ColErrorCode)); err != nil {
		return s, err
	}
	return s, nil
}

func (csvFormat) WriteEvents(ctx context.Context, path string, events []conjunction.Event) error {
	return writeCSV(ctx, path, conjunction.EventColumns, len(events), func(i int) []string {
		ev := events[i]
		return []string{
			formatTime(ev.Time),
			strconv.FormatInt(ev.ObjectA, 10),
			strconv.FormatInt(ev.ObjectB, 10),
			formatFloat(ev.DistanceKm),
			formatFloat(ev.BinID),
		}
	})
}

func (csvFormat) ReadEvents(ctx context.Context, path string) ([]conjunction.Event, error) {
	var events []conjunction.Event
	err := readCSV(ctx, path, requireColumns(conjunction.EventColumns), func(_ int, get func(string) string) error {
		var ev conjunction.Event
		var err error
		if ev.Time, err = parseTime(get("time")); err != nil {
			return err
		}
		if ev.ObjectA, err = strconv.ParseInt(get("object_id_a"), 10, 64); err != nil {
			return fmt.Errorf("invalid object_id_a: %w", err)
		}
		if ev.ObjectB, err = strconv.ParseInt(get("object_id_b"), 10, 64); err != nil {
			return fmt.Errorf("invalid object_id_b: %w", err)
		}
		if ev.DistanceKm, err = strconv.ParseFloat(get("distance_km"), 64); err != nil {
			return fmt.Errorf("invalid distance_km: %w", err)
		}
		if ev.BinID, err = strconv.ParseFloat(get("bin_id"), 64); err != nil {
			return fmt.Errorf("invalid bin_id: %w", err)
		}
		events = append(events, ev)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (csvFormat) WriteSummary(ctx context.Context, path string, pairs []conjunction.PairSummary) error {
	return writeCSV(ctx, path, conjunction.SummaryColumns, len(pairs), func(i int) []string {
		p := pairs[i]
		return []string{
			strconv.FormatInt(p.ObjectA, 10),
			strconv.FormatInt(p.ObjectB, 10),
			strconv.Itoa(p.Detections),
			formatFloat(p.MinDistanceKm),
			formatTime(p.FirstTime),
			formatTime(p.LastTime),
			formatFloat(p.DurationMinutes),
		}
	})
}

func (csvFormat) ReadSummary(ctx context.Context, path string) ([]conjunction.PairSummary, error) {
	var pairs []conjunction.PairSummary
	err := readCSV(ctx, path, requireColumns(conjunction.SummaryColumns), func(_ int, get func(string) string) error {
		var p conjunction.PairSummary
		var err error
		if p.ObjectA, err = strconv.ParseInt(get("object_id_a"), 10, 64); err != nil {
			return fmt.Errorf("invalid object_id_a: %w", err)
		}
		if p.ObjectB, err = strconv.ParseInt(get("object_id_b"), 10, 64); err != nil {
			return fmt.Errorf("invalid object_id_b: %w", err)
		}
		if p.Detections, err = strconv.Atoi(get("n_detections")); err != nil {
			return fmt.Errorf("invalid n_detections: %w", err)
		}
		if p.MinDistanceKm, err = strconv.ParseFloat(get("min_distance_km"), 64); err != nil {
			return fmt.Errorf("invalid min_distance_km: %w", err)
		}
		if p.FirstTime, err = parseTime(get("first_time")); err != nil {
			return err
		}
		if p.LastTime, err = parseTime(get("last_time")); err != nil {
			return err
		}
		if p.DurationMinutes, err = strconv.ParseFloat(get("duration_minutes"), 64); err != nil {
			return fmt.Errorf("invalid duration_minutes: %w", err)
		}
		pairs = append(pairs, p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pairs, nil
}
