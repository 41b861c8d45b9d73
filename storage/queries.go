package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/mordilloSan/go_logger/logger"

	"github.com/mordilloSan/fsbrowse/browsing"
)

// Store answers read queries about stored snapshots.
type Store struct {
	db     *sql.DB
	dbPath string
}

var ErrSnapshotNotFound = errors.New("snapshot not found")

// NewStore opens dbPath and owns the resulting handle.
func NewStore(dbPath string) (*Store, error) {
	db, err := Open(dbPath)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, dbPath: dbPath}, nil
}

// NewStoreWithDB wraps a handle owned by someone else. dbPath is only used to
// report file sizes.
func NewStoreWithDB(db *sql.DB, dbPath string) *Store {
	return &Store{db: db, dbPath: dbPath}
}

// Close closes the handle; only for stores created by NewStore.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) DB() *sql.DB {
	return s.db
}

// SnapshotInfo describes one stored walk.
type SnapshotInfo struct {
	ID        string        `json:"id"`
	RootPath  string        `json:"root_path"`
	Mode      string        `json:"mode"`
	Depth     uint          `json:"depth"`
	Strict    bool          `json:"strict"`
	NumDirs   int64         `json:"num_dirs"`
	NumFiles  int64         `json:"num_files"`
	Skipped   int64         `json:"skipped"`
	Duration  time.Duration `json:"duration_ns"`
	CreatedAt time.Time     `json:"created_at"`
}

const snapshotColumns = `id, root_path, mode, depth, strict, num_dirs, num_files, skipped, duration_ms, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(r rowScanner) (SnapshotInfo, error) {
	var (
		info       SnapshotInfo
		strict     int
		durationMS int64
		created    int64
	)
	if err := r.Scan(&info.ID, &info.RootPath, &info.Mode, &info.Depth, &strict,
		&info.NumDirs, &info.NumFiles, &info.Skipped, &durationMS, &created); err != nil {
		return SnapshotInfo{}, err
	}
	info.Strict = strict != 0
	info.Duration = time.Duration(durationMS) * time.Millisecond
	info.CreatedAt = time.Unix(created, 0)
	return info, nil
}

// LatestSnapshotID returns the ID of the most recent snapshot.
// sql.ErrNoRows means none has been taken yet.
func (s *Store) LatestSnapshotID(ctx context.Context) (string, error) {
	ctx = ensureContext(ctx)

	var id string
	err := s.db.QueryRowContext(ctx, `
        SELECT id
        FROM snapshots
        ORDER BY created_at DESC, rowid DESC
        LIMIT 1
    `).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

// GetSnapshot returns the summary of one snapshot.
func (s *Store) GetSnapshot(ctx context.Context, id string) (SnapshotInfo, error) {
	ctx = ensureContext(ctx)

	info, err := scanSnapshot(s.db.QueryRowContext(ctx,
		`SELECT `+snapshotColumns+` FROM snapshots WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return SnapshotInfo{}, fmt.Errorf("%w: %s", ErrSnapshotNotFound, id)
		}
		return SnapshotInfo{}, fmt.Errorf("snapshot query failed: %w", err)
	}
	return info, nil
}

// ListSnapshots returns the newest snapshots first.
func (s *Store) ListSnapshots(ctx context.Context, limit int) ([]SnapshotInfo, error) {
	ctx = ensureContext(ctx)
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
        SELECT `+snapshotColumns+`
        FROM snapshots
        ORDER BY created_at DESC, rowid DESC
        LIMIT ?
    `, limit)
	if err != nil {
		return nil, fmt.Errorf("list snapshots failed: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			logger.Warnf("rows close (snapshots): %v", cerr)
		}
	}()

	results := []SnapshotInfo{}
	for rows.Next() {
		info, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		results = append(results, info)
	}
	return results, rows.Err()
}

// SnapshotTree rebuilds the stored listing of a snapshot, shaped exactly like
// the live listing it was taken from. An empty id selects the latest snapshot.
func (s *Store) SnapshotTree(ctx context.Context, id string) ([]browsing.Entry, error) {
	ctx = ensureContext(ctx)

	if id == "" {
		latest, err := s.LatestSnapshotID(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, ErrSnapshotNotFound
			}
			return nil, fmt.Errorf("failed to get latest snapshot: %w", err)
		}
		id = latest
	}

	info, err := s.GetSnapshot(ctx, id)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
        SELECT path, parent_path, name, is_dir, created_at, modified_at, identity_high, identity_low
        FROM entries
        WHERE snapshot_id = ?
        ORDER BY id
    `, id)
	if err != nil {
		return nil, fmt.Errorf("tree query failed: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			logger.Warnf("rows close (tree): %v", cerr)
		}
	}()

	byParent := make(map[string][]browsing.Entry)
	for rows.Next() {
		var (
			e      browsing.Entry
			parent string
			isDir  int
		)
		if err := rows.Scan(&e.Path, &parent, &e.Name, &isDir, &e.CreatedAt, &e.ModifiedAt, &e.IdentityHigh, &e.IdentityLow); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		e.IsDir = isDir != 0
		if e.IsDir {
			e.Children = []browsing.Entry{}
		}
		byParent[parent] = append(byParent[parent], e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return assembleTree(byParent, info.RootPath), nil
}

// assembleTree links grouped rows below root. Every group slice is complete
// before addresses into it are taken.
func assembleTree(byParent map[string][]browsing.Entry, root string) []browsing.Entry {
	top := byParent[root]
	if top == nil {
		top = []browsing.Entry{}
	}

	stack := make([]*browsing.Entry, 0, len(top))
	for i := range top {
		if top[i].IsDir {
			stack = append(stack, &top[i])
		}
	}
	for len(stack) > 0 {
		e := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		children, ok := byParent[e.Path]
		if !ok {
			continue
		}
		e.Children = children
		for i := range children {
			if children[i].IsDir {
				stack = append(stack, &children[i])
			}
		}
	}
	return top
}

// Stats summarizes the snapshot database and its files on disk.
type Stats struct {
	TotalSnapshots   int       `json:"total_snapshots"`
	TotalEntries     int64     `json:"total_entries"`
	LastSnapshotTime time.Time `json:"last_snapshot_time"`
	DatabaseSize     int64     `json:"database_size"`
	WALSize          int64     `json:"wal_size"`
	SHMSize          int64     `json:"shm_size"`
	TotalOnDisk      int64     `json:"total_on_disk"`
}

func (s *Store) GetStats(ctx context.Context) (*Stats, error) {
	ctx = ensureContext(ctx)

	var (
		stats      Stats
		lastCreate sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `
        SELECT
            COUNT(*),
            COALESCE(SUM(num_files + num_dirs), 0),
            MAX(created_at)
        FROM snapshots
    `).Scan(&stats.TotalSnapshots, &stats.TotalEntries, &lastCreate)
	if err != nil {
		return nil, err
	}
	if lastCreate.Valid {
		stats.LastSnapshotTime = time.Unix(lastCreate.Int64, 0)
	}

	if s.dbPath != "" {
		for suffix, dst := range map[string]*int64{
			"":     &stats.DatabaseSize,
			"-wal": &stats.WALSize,
			"-shm": &stats.SHMSize,
		} {
			if fi, err := os.Stat(s.dbPath + suffix); err == nil {
				*dst = fi.Size()
				stats.TotalOnDisk += *dst
			}
		}
	}

	return &stats, nil
}
