package records

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"os"

	_ "modernc.org/sqlite"

	"github.com/amsteele/satellite-conjunction-risk/internal/conjunction"
	"github.com/amsteele/satellite-conjunction-risk/internal/fsutil"
)

const (
	trajectoryTable = "trajectories"
	eventTable      = "events"
	summaryTable    = "pair_summary"
)

var schemas = map[string]string{
	trajectoryTable: `CREATE TABLE trajectories (
		time                   TEXT,
		object_id              INTEGER,
		x_km                   REAL,
		y_km                   REAL,
		z_km                   REAL,
		altitude_km            REAL,
		propagation_error_code INTEGER
	)`,
	eventTable: `CREATE TABLE events (
		time        TEXT NOT NULL,
		object_id_a INTEGER NOT NULL,
		object_id_b INTEGER NOT NULL,
		distance_km REAL NOT NULL,
		bin_id      REAL NOT NULL
	)`,
	summaryTable: `CREATE TABLE pair_summary (
		object_id_a      INTEGER NOT NULL,
		object_id_b      INTEGER NOT NULL,
		n_detections     INTEGER NOT NULL,
		min_distance_km  REAL NOT NULL,
		first_time       TEXT NOT NULL,
		last_time        TEXT NOT NULL,
		duration_minutes REAL NOT NULL
	)`,
}

type sqliteFormat struct{}

func (sqliteFormat) Name() string { return "sqlite" }
func (sqliteFormat) Ext() string  { return ".db" }

func openDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

// writeTable creates a fresh single-table database at path and inserts n rows.
func writeTable(ctx context.Context, path, table string, columns int, n int, row func(i int) []any) error {
	return fsutil.Write(path, func(tmp string) error {
		db, err := openDB(tmp)
		if err != nil {
			return err
		}
		defer db.Close()

		if _, err := db.ExecContext(ctx, `PRAGMA journal_mode=OFF`); err != nil {
			return fmt.Errorf("failed to set journal mode: %w", err)
		}
		if _, err := db.ExecContext(ctx, schemas[table]); err != nil {
			return fmt.Errorf("failed to create table %s: %w", table, err)
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer tx.Rollback() //nolint:errcheck

		stmt, err := tx.PrepareContext(ctx, insertSQL(table, columns))
		if err != nil {
			return fmt.Errorf("failed to prepare insert: %w", err)
		}
		defer stmt.Close()

		for i := 0; i < n; i++ {
			if _, err := stmt.ExecContext(ctx, row(i)...); err != nil {
				return fmt.Errorf("failed to insert %s row %d: %w", table, i+1, err)
			}
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit %s: %w", table, err)
		}
		return db.Close()
	})
}

func insertSQL(table string, columns int) string {
	q := "INSERT INTO " + table + " VALUES ("
	for i := 0; i < columns; i++ {
		if i > 0 {
			q += ","
		}
		q += "?"
	}
	return q + ")"
}

// tableColumns returns the column names of table, or nil if it does not exist.
func tableColumns(ctx context.Context, db *sql.DB, table string) ([]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT name FROM pragma_table_info(?)`, table)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect table %s: %w", table, err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		cols = append(cols, name)
	}
	return cols, rows.Err()
}

// openExisting opens path for reading, failing if the file does not exist
// rather than letting the driver create an empty database.
func openExisting(path string) (*sql.DB, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	return openDB(path)
}

func nullFloat(v float64) any {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}

func nullObject(id int64) any {
	if id == conjunction.NoObject {
		return nil
	}
	return id
}

func nullTime(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func floatOrNaN(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}

func (sqliteFormat) WriteTrajectories(ctx context.Context, path string, samples []conjunction.Sample) error {
	return writeTable(ctx, path, trajectoryTable, 7, len(samples), func(i int) []any {
		s := samples[i]
		return []any{
			nullTime(formatTime(s.Time)),
			nullObject(s.ObjectID),
			nullFloat(s.Position[0]),
			nullFloat(s.Position[1]),
			nullFloat(s.Position[2]),
			nullFloat(s.AltitudeKm),
			s.ErrorCode,
		}
	})
}

func (sqliteFormat) ReadTrajectories(ctx context.Context, path string) ([]conjunction.Sample, error) {
	db, err := openExisting(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	cols, err := tableColumns(ctx, db, trajectoryTable)
	if err != nil {
		return nil, err
	}
	if err := conjunction.CheckSchema(cols); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	rows, err := db.QueryContext(ctx, `SELECT time, object_id, x_km, y_km, z_km, altitude_km, propagation_error_code
		FROM trajectories ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("failed to query trajectories: %w", err)
	}
	defer rows.Close()

	var samples []conjunction.Sample
	for rows.Next() {
		var (
			ts          sql.NullString
			id, code    sql.NullInt64
			x, y, z, al sql.NullFloat64
		)
		if err := rows.Scan(&ts, &id, &x, &y, &z, &al, &code); err != nil {
			return nil, fmt.Errorf("failed to scan trajectory row: %w", err)
		}

		s := conjunction.Sample{
			ObjectID:   conjunction.NoObject,
			Position:   [3]float64{floatOrNaN(x), floatOrNaN(y), floatOrNaN(z)},
			AltitudeKm: floatOrNaN(al),
			ErrorCode:  missingErrorCode,
		}
		if ts.Valid {
			if s.Time, err = parseTime(ts.String); err != nil {
				return nil, err
			}
		}
		if id.Valid {
			s.ObjectID = id.Int64
		}
		if code.Valid {
			s.ErrorCode = int(code.Int64)
		}
		samples = append(samples, s)
	}
	return samples, rows.Err()
}

func (sqliteFormat) WriteEvents(ctx context.Context, path string, events []conjunction.Event) error {
	return writeTable(ctx, path, eventTable, 5, len(events), func(i int) []any {
		ev := events[i]
		return []any{formatTime(ev.Time), ev.ObjectA, ev.ObjectB, ev.DistanceKm, ev.BinID}
	})
}

func (sqliteFormat) ReadEvents(ctx context.Context, path string) ([]conjunction.Event, error) {
	db, err := openExisting(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, `SELECT time, object_id_a, object_id_b, distance_km, bin_id
		FROM events ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []conjunction.Event
	for rows.Next() {
		var ev conjunction.Event
		var ts string
		if err := rows.Scan(&ts, &ev.ObjectA, &ev.ObjectB, &ev.DistanceKm, &ev.BinID); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		if ev.Time, err = parseTime(ts); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func (sqliteFormat) WriteSummary(ctx context.Context, path string, pairs []conjunction.PairSummary) error {
	return writeTable(ctx, path, summaryTable, 7, len(pairs), func(i int) []any {
		p := pairs[i]
		return []any{
			p.ObjectA, p.ObjectB, p.Detections, p.MinDistanceKm,
			formatTime(p.FirstTime), formatTime(p.LastTime), p.DurationMinutes,
		}
	})
}

func (sqliteFormat) ReadSummary(ctx context.Context, path string) ([]conjunction.PairSummary, error) {
	db, err := openExisting(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, `SELECT object_id_a, object_id_b, n_detections, min_distance_km,
		first_time, last_time, duration_minutes FROM pair_summary ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("failed to query pair summary: %w", err)
	}
	defer rows.Close()

	var pairs []conjunction.PairSummary
	for rows.Next() {
		var p conjunction.PairSummary
		var first, last string
		if err := rows.Scan(&p.ObjectA, &p.ObjectB, &p.Detections, &p.MinDistanceKm, &first, &last, &p.DurationMinutes); err != nil {
			return nil, fmt.Errorf("failed to scan pair summary row: %w", err)
		}
		if p.FirstTime, err = parseTime(first); err != nil {
			return nil, err
		}
		if p.LastTime, err = parseTime(last); err != nil {
			return nil, err
		}
		pairs = append(pairs, p)
	}
	return pairs, rows.Err()
}
