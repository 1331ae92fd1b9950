package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DBFileName is the default name of the SQLite database.
const DBFileName = "counts.db"

const (
	metaSchemaVersion  = "schema_version"
	metaStartedAt      = "started_at"
	metaLastEventTime  = "last_event_time"
	metaMeanInterval   = "mean_interval_ms"
	metaIntervalSample = "interval_sample_count"
)

// SQLiteBackend stores the snapshot in a SQLite database.
type SQLiteBackend struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// OpenSQLite opens or creates the database at path and runs migrations.
func OpenSQLite(path string) (*SQLiteBackend, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := MigrateDB(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	return &SQLiteBackend{db: db, path: path, now: time.Now}, nil
}

// Path returns the database file path.
func (b *SQLiteBackend) Path() string { return b.path }

// DB exposes the underlying handle for status queries.
func (b *SQLiteBackend) DB() *sql.DB { return b.db }

// Close closes the database connection.
func (b *SQLiteBackend) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

// Load reads the snapshot. An empty database yields a fresh snapshot.
func (b *SQLiteBackend) Load() (*Snapshot, error) {
	meta, err := b.loadMeta()
	if err != nil {
		return nil, err
	}

	raw, ok := meta[metaStartedAt]
	if !ok {
		return NewSnapshot(b.now()), nil
	}

	snap := NewSnapshot(b.now())
	if snap.StartedAt, err = time.Parse(time.RFC3339Nano, raw); err != nil {
		return nil, fmt.Errorf("parse %s: %w", metaStartedAt, err)
	}
	if v, ok := meta[metaSchemaVersion]; ok {
		version, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", metaSchemaVersion, err)
		}
		if version > CurrentSchemaVersion {
			return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
		}
	}
	if v, ok := meta[metaLastEventTime]; ok {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", metaLastEventTime, err)
		}
		snap.LastEventTime = &t
	}
	if v, ok := meta[metaMeanInterval]; ok {
		if snap.MeanIntervalMs, err = strconv.ParseFloat(v, 64); err != nil {
			return nil, fmt.Errorf("parse %s: %w", metaMeanInterval, err)
		}
	}
	if v, ok := meta[metaIntervalSample]; ok {
		if snap.IntervalSampleCount, err = strconv.Atoi(v); err != nil {
			return nil, fmt.Errorf("parse %s: %w", metaIntervalSample, err)
		}
	}

	if err := b.loadCounts("SELECT label, count FROM lifetime_counts", snap.LifetimeCounts); err != nil {
		return nil, fmt.Errorf("load lifetime counts: %w", err)
	}
	if err := b.loadCounts("SELECT label, count FROM combo_counts", snap.ModifierComboCounts); err != nil {
		return nil, fmt.Errorf("load combo counts: %w", err)
	}

	rows, err := b.db.Query("SELECT day, label, count FROM daily_counts")
	if err != nil {
		return nil, fmt.Errorf("load daily counts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var day, label string
		var count int
		if err := rows.Scan(&day, &label, &count); err != nil {
			return nil, fmt.Errorf("scan daily count: %w", err)
		}
		if snap.DailyCounts[day] == nil {
			snap.DailyCounts[day] = make(map[string]int)
		}
		snap.DailyCounts[day][label] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate daily counts: %w", err)
	}

	snap.normalize()
	return snap, nil
}

func (b *SQLiteBackend) loadMeta() (map[string]string, error) {
	rows, err := b.db.Query("SELECT key, value FROM meta")
	if err != nil {
		return nil, fmt.Errorf("load meta: %w", err)
	}
	defer rows.Close()

	meta := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan meta: %w", err)
		}
		meta[k] = v
	}
	return meta, rows.Err()
}

func (b *SQLiteBackend) loadCounts(query string, dst map[string]int) error {
	rows, err := b.db.Query(query)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var label string
		var count int
		if err := rows.Scan(&label, &count); err != nil {
			return err
		}
		dst[label] = count
	}
	return rows.Err()
}

// Save replaces every stored row with the contents of snap in a single
// transaction.
func (b *SQLiteBackend) Save(snap *Snapshot) (err error) {
	tx, err := b.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	for _, table := range []string{"meta", "lifetime_counts", "daily_counts", "combo_counts"} {
		if _, err = tx.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	meta := map[string]string{
		metaSchemaVersion:  strconv.Itoa(CurrentSchemaVersion),
		metaStartedAt:      snap.StartedAt.Format(time.RFC3339Nano),
		metaMeanInterval:   strconv.FormatFloat(snap.MeanIntervalMs, 'g', -1, 64),
		metaIntervalSample: strconv.Itoa(snap.IntervalSampleCount),
	}
	if snap.LastEventTime != nil {
		meta[metaLastEventTime] = snap.LastEventTime.Format(time.RFC3339Nano)
	}
	for k, v := range meta {
		if _, err = tx.Exec("INSERT INTO meta (key, value) VALUES (?, ?)", k, v); err != nil {
			return fmt.Errorf("insert meta %s: %w", k, err)
		}
	}

	if err = insertCounts(tx, "INSERT INTO lifetime_counts (label, count) VALUES (?, ?)", snap.LifetimeCounts); err != nil {
		return fmt.Errorf("insert lifetime counts: %w", err)
	}
	if err = insertCounts(tx, "INSERT INTO combo_counts (label, count) VALUES (?, ?)", snap.ModifierComboCounts); err != nil {
		return fmt.Errorf("insert combo counts: %w", err)
	}

	stmt, err := tx.Prepare("INSERT INTO daily_counts (day, label, count) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("prepare daily insert: %w", err)
	}
	defer stmt.Close()
	for day, counts := range snap.DailyCounts {
		for label, count := range counts {
			if _, err = stmt.Exec(day, label, count); err != nil {
				return fmt.Errorf("insert daily count %s/%s: %w", day, label, err)
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

func insertCounts(tx *sql.Tx, query string, counts map[string]int) error {
	stmt, err := tx.Prepare(query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for label, count := range counts {
		if _, err := stmt.Exec(label, count); err != nil {
			return err
		}
	}
	return nil
}
