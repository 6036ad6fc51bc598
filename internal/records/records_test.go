package records

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amsteele/satellite-conjunction-risk/internal/conjunction"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func testSamples() []conjunction.Sample {
	return []conjunction.Sample{
		{Time: t0, ObjectID: 25544, Position: [3]float64{6778.1, 0, 0.25}, AltitudeKm: 400.0, ErrorCode: 0},
		{Time: t0, ObjectID: 43013, Position: [3]float64{math.NaN(), math.NaN(), math.NaN()}, AltitudeKm: math.NaN(), ErrorCode: 6},
		{Time: t0.Add(time.Minute), ObjectID: conjunction.NoObject, Position: [3]float64{1, 2, 3}, AltitudeKm: 10, ErrorCode: 0},
	}
}

func testEvents() []conjunction.Event {
	return []conjunction.Event{
		{Time: t0, ObjectA: 10, ObjectB: 20, DistanceKm: 3.0, BinID: 350},
		{Time: t0.Add(5 * time.Minute), ObjectA: 10, ObjectB: 20, DistanceKm: 1.5, BinID: 400},
	}
}

var nanEqual = cmpopts.EquateNaNs()

func TestFormatFor(t *testing.T) {
	tests := []struct {
		path string
		want string
		err  bool
	}{
		{"out/traj.csv", "csv", false},
		{"out/traj.CSV", "csv", false},
		{"out/traj.db", "sqlite", false},
		{"out/traj.sqlite3", "sqlite", false},
		{"out/traj.parquet", "", true},
		{"out/traj", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			f, err := FormatFor(tt.path)
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, f.Name())
		})
	}
}

func TestTrajectoryRoundTrip(t *testing.T) {
	for _, f := range []Format{CSV, SQLite} {
		t.Run(f.Name(), func(t *testing.T) {
			ctx := context.Background()
			path := filepath.Join(t.TempDir(), "traj"+f.Ext())
			in := testSamples()

			require.NoError(t, f.WriteTrajectories(ctx, path, in))
			out, err := f.ReadTrajectories(ctx, path)
			require.NoError(t, err)

			if diff := cmp.Diff(in, out, nanEqual); diff != "" {
				t.Errorf("trajectories mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestReadTrajectoriesMissingColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "traj.csv")
	data := "time,object_id,x_km,y_km,z_km\n2024-01-01T00:00:00Z,1,1,2,3\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	_, err := ReadTrajectories(context.Background(), path)
	var se *conjunction.SchemaError
	require.True(t, errors.As(err, &se), "got %v, want SchemaError", err)
	assert.Equal(t, []string{"altitude_km", "propagation_error_code"}, se.Missing)
}

func TestReadTrajectoriesSQLiteMissingTable(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "events.db")
	require.NoError(t, SQLite.WriteEvents(ctx, path, testEvents()))

	_, err := SQLite.ReadTrajectories(ctx, path)
	var se *conjunction.SchemaError
	require.True(t, errors.As(err, &se), "got %v, want SchemaError", err)
	assert.Len(t, se.Missing, len(conjunction.RequiredColumns))
}

func TestReadTrajectoriesEmptyCellsAreMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "traj.csv")
	data := "time,object_id,x_km,y_km,z_km,altitude_km,propagation_error_code\n" +
		"2024-01-01T00:00:00Z,7,,2,3,400,\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	samples, err := ReadTrajectories(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.True(t, math.IsNaN(samples[0].Position[0]))
	assert.Equal(t, missingErrorCode, samples[0].ErrorCode)
	assert.False(t, samples[0].Valid())
}

func TestReadMissingFile(t *testing.T) {
	dir := t.TempDir()
	_, err := CSV.ReadEvents(context.Background(), filepath.Join(dir, "nope.csv"))
	assert.Error(t, err)

	_, err = SQLite.ReadEvents(context.Background(), filepath.Join(dir, "nope.db"))
	assert.Error(t, err)
	_, statErr := os.Stat(filepath.Join(dir, "nope.db"))
	assert.True(t, os.IsNotExist(statErr), "reading must not create the database")
}

func TestSummaryRoundTrip(t *testing.T) {
	pairs := []conjunction.PairSummary{
		{ObjectA: 10, ObjectB: 20, Detections: 2, MinDistanceKm: 1.5, FirstTime: t0, LastTime: t0.Add(5 * time.Minute), DurationMinutes: 5},
		{ObjectA: 3, ObjectB: 9, Detections: 1, MinDistanceKm: 4.25, FirstTime: t0, LastTime: t0, DurationMinutes: 0},
	}
	for _, f := range []Format{CSV, SQLite} {
		t.Run(f.Name(), func(t *testing.T) {
			ctx := context.Background()
			path := filepath.Join(t.TempDir(), "summary"+f.Ext())
			require.NoError(t, f.WriteSummary(ctx, path, pairs))

			got, err := f.ReadSummary(ctx, path)
			require.NoError(t, err)
			if diff := cmp.Diff(pairs, got); diff != "" {
				t.Errorf("summary mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestWriteLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "events.csv")
	require.NoError(t, CSV.WriteEvents(context.Background(), path, testEvents()))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "events.csv", entries[0].Name())
}

func TestCancelledWriteKeepsPrevious(t *testing.T) {
	for _, f := range []Format{CSV, SQLite} {
		t.Run(f.Name(), func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, "trajectories"+f.Ext())
			require.NoError(t, f.WriteTrajectories(context.Background(), path, testSamples()[:1]))

			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			err := f.WriteTrajectories(ctx, path, testSamples())
			require.ErrorIs(t, err, context.Canceled)

			got, err := f.ReadTrajectories(context.Background(), path)
			require.NoError(t, err)
			assert.Len(t, got, 1)

			entries, err := os.ReadDir(dir)
			require.NoError(t, err)
			require.Len(t, entries, 1, "temp file should be removed")
			assert.Equal(t, filepath.Base(path), entries[0].Name())
		})
	}
}
