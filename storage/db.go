package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/mordilloSan/go_logger/logger"
)

const (
	defaultDBPath = "fsbrowse.db"
	busyTimeoutMS = 5000
	schemaTimeout = 30 * time.Second
)

// Open creates (or reuses) a SQLite database and ensures the schema exists.
func Open(path string) (*sql.DB, error) {
	if path == "" {
		path = defaultDBPath
	}
	// Readers stay unblocked while a snapshot streams in. The contents can be
	// rebuilt from the filesystem at any time, hence synchronous=OFF.
	dsn := fmt.Sprintf("%s?_busy_timeout=%d&_foreign_keys=on&_journal_mode=WAL&_synchronous=OFF&_auto_vacuum=INCREMENTAL", path, busyTimeoutMS)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), schemaTimeout)
	defer cancel()

	if mode, err := GetJournalMode(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open %s: %w", path, err)
	} else if mode != "wal" {
		logger.Warnf("SQLite database %s runs in %s mode, not WAL", path, mode)
	}
	if err := initSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return db, nil
}

// OpenVerified opens path like Open and runs an integrity check on files that
// already existed. A corrupted file is deleted together with its WAL and SHM
// files and recreated empty. existed reports whether usable data was kept.
func OpenVerified(path string) (db *sql.DB, existed bool, err error) {
	if path == "" {
		path = defaultDBPath
	}
	_, statErr := os.Stat(path)
	existed = statErr == nil
	if existed {
		logger.Infof("Found snapshot database %s; verifying", path)
	} else {
		logger.Infof("Creating snapshot database %s", path)
	}

	db, err = Open(path)
	if !existed {
		return db, false, err
	}

	// A file SQLite cannot even open counts as corrupt too.
	checkErr := err
	if checkErr == nil {
		if checkErr = CheckIntegrity(db); checkErr == nil {
			logger.Infof("Snapshot database integrity ok")
			return db, true, nil
		}
		if err := db.Close(); err != nil {
			logger.Warnf("Closing corrupt database: %v", err)
		}
	}

	logger.Warnf("Snapshot database %s is corrupt (%v); recreating it", path, checkErr)
	for _, suffix := range []string{"", "-wal", "-shm"} {
		if err := os.Remove(path + suffix); err != nil && !os.IsNotExist(err) {
			return nil, false, fmt.Errorf("remove corrupt database: %w", err)
		}
	}
	db, err = Open(path)
	return db, false, err
}

// CheckIntegrity runs PRAGMA integrity_check and reports anything but "ok".
func CheckIntegrity(db *sql.DB) error {
	var result string
	if err := db.QueryRow(`PRAGMA integrity_check;`).Scan(&result); err != nil {
		return fmt.Errorf("integrity check query failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}
	return nil
}

// GetJournalMode returns the SQLite journal mode for the provided database.
func GetJournalMode(ctx context.Context, db *sql.DB) (string, error) {
	ctx, err := usable(ctx, db)
	if err != nil {
		return "", err
	}
	var mode string
	if err := db.QueryRowContext(ctx, `PRAGMA journal_mode;`).Scan(&mode); err != nil {
		return "", err
	}
	return mode, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS snapshots (
		id TEXT PRIMARY KEY,
		root_path TEXT NOT NULL,
		mode TEXT NOT NULL,
		depth INTEGER NOT NULL DEFAULT 0,
		num_dirs INTEGER NOT NULL DEFAULT 0,
		num_files INTEGER NOT NULL DEFAULT 0,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL DEFAULT (strftime('%s','now'))
	);`,
	`CREATE TABLE IF NOT EXISTS entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		snapshot_id TEXT NOT NULL REFERENCES snapshots(id) ON DELETE CASCADE,
		path TEXT NOT NULL,
		parent_path TEXT NOT NULL,
		depth INTEGER NOT NULL DEFAULT 0,
		name TEXT NOT NULL,
		is_dir INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		modified_at TEXT NOT NULL,
		identity_high INTEGER NOT NULL DEFAULT 0,
		identity_low INTEGER NOT NULL DEFAULT 0
	);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_entries_path ON entries(snapshot_id, path);`,
	`CREATE INDEX IF NOT EXISTS idx_entries_parent ON entries(snapshot_id, parent_path);`,
}

// Columns added after the first schema; older files are upgraded in place.
var addedColumns = []struct{ table, column, definition string }{
	{"snapshots", "strict", "INTEGER NOT NULL DEFAULT 0"},
	{"snapshots", "skipped", "INTEGER NOT NULL DEFAULT 0"},
}

func initSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	for _, c := range addedColumns {
		if err := ensureColumn(ctx, db, c.table, c.column, c.definition); err != nil {
			return fmt.Errorf("add %s.%s: %w", c.table, c.column, err)
		}
	}
	return nil
}

func ensureColumn(ctx context.Context, db *sql.DB, table, column, definition string) error {
	var n int
	if err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ? COLLATE NOCASE;`,
		table, column,
	).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	_, err := db.ExecContext(ctx, fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s %s;`, table, column, definition))
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func ensureContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

// ReleaseSQLiteMemory asks SQLite to drop cached pages after a large write.
// Failures are logged, never returned.
func ReleaseSQLiteMemory(ctx context.Context, db *sql.DB) error {
	ctx = ensureContext(ctx)
	for _, pragma := range []string{`PRAGMA shrink_memory;`, `PRAGMA optimize;`} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			logger.Warnf("SQLite %s failed: %v", pragma, err)
		}
	}
	return nil
}
