package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testManifest() *Manifest {
	return &Manifest{
		RunID:        "4b1f7b0e-8a35-4d39-9d3c-2f1f5b0c6a11",
		Status:       StatusOK,
		TrajPath:     "data/traj_48h_1min.csv",
		EventsPath:   "data/events_48h_1min.csv",
		CatalogPath:  "data/active.tle",
		SummaryPath:  "data/pair_summary_48h_1min.csv",
		Hours:        48,
		StepMinutes:  1,
		ThresholdKm:  5,
		AltBinKm:     50,
		LEOBoundKm:   2000,
		FlushEvery:   10,
		RequireValid: true,
		Pairs:        12,
		Events:       40,
	}
}

func TestWriteLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "latest_run.txt")
	want := testManifest()
	require.NoError(t, Write(path, want))

	got, err := Load(path)
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("manifest mismatch (-want +got):\n%s", diff)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file left behind")
}

func TestWriteKeyOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "latest_run.txt")
	require.NoError(t, Write(path, testManifest()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	want := "run_id=4b1f7b0e-8a35-4d39-9d3c-2f1f5b0c6a11\n" +
		"status=ok\n" +
		"traj_path=data/traj_48h_1min.csv\n" +
		"events_path=data/events_48h_1min.csv\n" +
		"catalog_path=data/active.tle\n" +
		"pair_summary_path=data/pair_summary_48h_1min.csv\n" +
		"hours=48\n" +
		"step_minutes=1\n" +
		"threshold_km=5\n" +
		"alt_bin_km=50\n" +
		"leo_bound_km=2000\n" +
		"flush_every=10\n" +
		"require_valid_propagation=true\n" +
		"n_pairs=12\n" +
		"n_events=40\n"
	assert.Equal(t, want, string(data))
}

func TestWriteReplacesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "latest_run.txt")
	require.NoError(t, Write(path, testManifest()))

	m := testManifest()
	m.Status = StatusCancelled
	m.Pairs = 0
	require.NoError(t, Write(path, m))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)
	assert.Zero(t, got.Pairs)
}

func TestReadSkipsCommentsAndBlanks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "latest_run.txt")
	data := "# written by hand\n\n  traj_path = data/traj.csv  \n#hours=1\nhours=6\n\nthreshold_km=2.5\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	kv, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"traj_path":    "data/traj.csv",
		"hours":        "6",
		"threshold_km": "2.5",
	}, kv)

	m, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 6.0, m.Hours)
	assert.Equal(t, 2.5, m.ThresholdKm)
	assert.Empty(t, m.RunID)
}

func TestReadRejectsMalformedLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "latest_run.txt")
	require.NoError(t, os.WriteFile(path, []byte("hours=6\nnot a pair\n"), 0o644))

	_, err := Read(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestLoadRejectsBadNumber(t *testing.T) {
	path := filepath.Join(t.TempDir(), "latest_run.txt")
	require.NoError(t, os.WriteFile(path, []byte("flush_every=ten\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEncodeRejectsBadEntries(t *testing.T) {
	_, err := Encode([]Entry{{Key: "a=b", Value: "1"}})
	assert.Error(t, err)
	_, err = Encode([]Entry{{Key: "path", Value: "x\ny"}})
	assert.Error(t, err)
}

func TestNewRunID(t *testing.T) {
	a, b := NewRunID(), NewRunID()
	assert.NotEqual(t, a, b)
	_, err := uuid.Parse(a)
	assert.NoError(t, err)
}
