package storage

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/mordilloSan/fsbrowse/browsing"
	"github.com/mordilloSan/fsbrowse/browsing/testhelpers"
)

func setupTestDB(t *testing.T) (context.Context, *sql.DB, string) {
	t.Helper()
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	db, err := Open(dbPath)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() {
		if cerr := db.Close(); cerr != nil {
			t.Fatalf("close db: %v", cerr)
		}
	})

	return ctx, db, dbPath
}

func insertTestSnapshot(t *testing.T, db *sql.DB, id string, created int64, entries int) {
	t.Helper()
	if _, err := db.Exec(`
		INSERT INTO snapshots (id, root_path, mode, depth, num_dirs, num_files, created_at)
		VALUES (?, '/', 'flat', 0, 0, ?, ?);
	`, id, entries, created); err != nil {
		t.Fatalf("insert snapshot %s: %v", id, err)
	}
}

// paths flattens an Entry tree into sorted paths, marking directories with a
// trailing "/" and listing expanded children after their parent.
func paths(entries []browsing.Entry) []string {
	var out []string
	stack := append([]browsing.Entry(nil), entries...)
	for len(stack) > 0 {
		e := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		p := e.Path
		if e.IsDir {
			p += "/"
		}
		out = append(out, p)
		stack = append(stack, e.Children...)
	}
	sort.Strings(out)
	return out
}

func TestOpenUsesWAL(t *testing.T) {
	ctx, db, _ := setupTestDB(t)

	mode, err := GetJournalMode(ctx, db)
	if err != nil {
		t.Fatalf("journal mode: %v", err)
	}
	if !strings.EqualFold(mode, "wal") {
		t.Fatalf("journal mode = %s, want wal", mode)
	}
}

func TestOpenVerifiedKeepsHealthyFile(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "healthy.db")
	db, existed, err := OpenVerified(dbPath)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if existed {
		t.Fatalf("fresh database reported as existing")
	}
	insertTestSnapshot(t, db, "keep", 1, 3)
	_ = db.Close()

	db, existed, err = OpenVerified(dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = db.Close() }()
	if !existed {
		t.Fatalf("second open should find the database")
	}
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM snapshots`).Scan(&n); err != nil || n != 1 {
		t.Fatalf("snapshots after reopen = %d, err = %v", n, err)
	}
}

func TestOpenVerifiedRecreatesGarbage(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "garbage.db")
	junk := []byte(strings.Repeat("definitely not sqlite ", 200))
	if err := os.WriteFile(dbPath, junk, 0o644); err != nil {
		t.Fatalf("write junk: %v", err)
	}

	db, existed, err := OpenVerified(dbPath)
	if err != nil {
		t.Fatalf("OpenVerified: %v", err)
	}
	defer func() { _ = db.Close() }()
	if existed {
		t.Fatalf("a recreated database must not report kept data")
	}
	if err := CheckIntegrity(db); err != nil {
		t.Fatalf("recreated database: %v", err)
	}
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM snapshots`).Scan(&n); err != nil || n != 0 {
		t.Fatalf("snapshots = %d, err = %v", n, err)
	}
}

func TestEnsureColumnIsIdempotent(t *testing.T) {
	ctx, db, _ := setupTestDB(t)

	for i := 0; i < 2; i++ {
		if err := ensureColumn(ctx, db, "snapshots", "note", "TEXT NOT NULL DEFAULT ''"); err != nil {
			t.Fatalf("ensure column (pass %d): %v", i, err)
		}
	}
	if err := initSchema(ctx, db); err != nil {
		t.Fatalf("re-running schema init: %v", err)
	}
}

func TestExportMatchesLiveListing(t *testing.T) {
	mock := testhelpers.NewMockFileSystem(t)
	mock.CreateStandardTestStructure()
	mock.CreateChain("chain", 4)

	browser := browsing.New(browsing.Options{})

	tests := []struct {
		name string
		mode browsing.Mode
	}{
		{name: "flat", mode: browsing.Flat()},
		{name: "bounded 1", mode: browsing.Bounded(1)},
		{name: "bounded 2", mode: browsing.Bounded(2)},
		{name: "recursive", mode: browsing.Recursive()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, db, dbPath := setupTestDB(t)
			store := NewStoreWithDB(db, dbPath)

			live, err := browser.Walk(mock.Root, tt.mode)
			if err != nil {
				t.Fatalf("live walk: %v", err)
			}

			info, err := Export(ctx, db, browser.Normalizer(), mock.Root, tt.mode, ExportOptions{Workers: 2})
			if err != nil {
				t.Fatalf("export: %v", err)
			}

			stored, err := store.SnapshotTree(ctx, info.ID)
			if err != nil {
				t.Fatalf("snapshot tree: %v", err)
			}

			want, got := paths(live), paths(stored)
			if strings.Join(want, "\n") != strings.Join(got, "\n") {
				t.Fatalf("stored tree differs from live walk\nwant:\n%s\ngot:\n%s",
					strings.Join(want, "\n"), strings.Join(got, "\n"))
			}

			var dirs int64
			for _, p := range got {
				if strings.HasSuffix(p, "/") {
					dirs++
				}
			}
			if info.NumDirs != dirs || info.NumFiles != int64(len(got))-dirs {
				t.Errorf("counts = %d dirs / %d files, want %d / %d",
					info.NumDirs, info.NumFiles, dirs, int64(len(got))-dirs)
			}
			if info.Mode != modeName(tt.mode) {
				t.Errorf("mode = %s, want %s", info.Mode, modeName(tt.mode))
			}
		})
	}
}

func TestExportPreservesEntryFields(t *testing.T) {
	ctx, db, dbPath := setupTestDB(t)
	mock := testhelpers.NewMockFileSystem(t)
	mock.CreateFile("f.txt", "hello")
	mock.CreateDir("b")

	browser := browsing.New(browsing.Options{})
	info, err := Export(ctx, db, browser.Normalizer(), mock.Root, browsing.Flat(), ExportOptions{})
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	stored, err := NewStoreWithDB(db, dbPath).SnapshotTree(ctx, info.ID)
	if err != nil {
		t.Fatalf("snapshot tree: %v", err)
	}
	if len(stored) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(stored))
	}

	for _, e := range stored {
		live, err := browser.Lookup(e.Path)
		if err != nil {
			t.Fatalf("lookup %s: %v", e.Path, err)
		}
		if e.Name != live.Name || e.IsDir != live.IsDir || e.ModifiedAt != live.ModifiedAt ||
			e.CreatedAt != live.CreatedAt || e.Identity() != live.Identity() {
			t.Errorf("stored %+v differs from lookup %+v", e, live)
		}
		if e.IsDir && e.Children == nil {
			t.Errorf("%s: directory must have non-nil children", e.Path)
		}
		if !e.IsDir && e.Children != nil {
			t.Errorf("%s: file must have nil children", e.Path)
		}
	}
}

func TestExportSkipsUnreadable(t *testing.T) {
	ctx, db, dbPath := setupTestDB(t)
	mock := testhelpers.NewMockFileSystem(t)
	mock.CreateFile("root/ok.txt", "x")
	mock.CreateSymlink("missing-target", "root/dangling")

	info, err := Export(ctx, db, nil, mock.Path("root"), browsing.Recursive(), ExportOptions{})
	if err != nil {
		t.Fatalf("lenient export: %v", err)
	}
	if info.Skipped != 1 {
		t.Errorf("skipped = %d, want 1", info.Skipped)
	}

	stored, err := NewStoreWithDB(db, dbPath).SnapshotTree(ctx, info.ID)
	if err != nil {
		t.Fatalf("snapshot tree: %v", err)
	}
	if len(stored) != 1 || stored[0].Name != "ok.txt" {
		t.Fatalf("expected only ok.txt, got %v", paths(stored))
	}

	_, err = Export(ctx, db, nil, mock.Path("root"), browsing.Recursive(), ExportOptions{Strict: true})
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("strict export error = %v, want not-exist", err)
	}

	list, err := NewStoreWithDB(db, dbPath).ListSnapshots(ctx, 10)
	if err != nil {
		t.Fatalf("list snapshots: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("failed export must not leave a snapshot, have %d", len(list))
	}
}

func TestExportRootErrors(t *testing.T) {
	ctx, db, dbPath := setupTestDB(t)
	mock := testhelpers.NewMockFileSystem(t)
	mock.CreateFile("file.txt", "x")

	if _, err := Export(ctx, db, nil, mock.Path("missing"), browsing.Flat(), ExportOptions{}); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("missing root error = %v", err)
	}
	if _, err := Export(ctx, db, nil, mock.Path("file.txt"), browsing.Flat(), ExportOptions{}); err == nil {
		t.Errorf("expected error for non-directory root")
	}
	if _, err := Export(ctx, db, nil, mock.Root, browsing.Mode{Recursive: true, Depth: 2}, ExportOptions{}); !errors.Is(err, browsing.ErrConflictingMode) {
		t.Errorf("conflicting mode error = %v", err)
	}

	stats, err := NewStoreWithDB(db, dbPath).GetStats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalSnapshots != 0 {
		t.Errorf("total snapshots = %d, want 0", stats.TotalSnapshots)
	}
}

func TestExportCancelled(t *testing.T) {
	_, db, dbPath := setupTestDB(t)
	mock := testhelpers.NewMockFileSystem(t)
	mock.CreateStandardTestStructure()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := Export(ctx, db, nil, mock.Root, browsing.Recursive(), ExportOptions{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	list, err := NewStoreWithDB(db, dbPath).ListSnapshots(context.Background(), 0)
	if err != nil {
		t.Fatalf("list snapshots: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("cancelled export left %d snapshots", len(list))
	}
}

func TestSnapshotTreeNotFound(t *testing.T) {
	ctx, db, dbPath := setupTestDB(t)
	store := NewStoreWithDB(db, dbPath)

	if _, err := store.SnapshotTree(ctx, "does-not-exist"); !errors.Is(err, ErrSnapshotNotFound) {
		t.Errorf("unknown id error = %v", err)
	}
	if _, err := store.SnapshotTree(ctx, ""); !errors.Is(err, ErrSnapshotNotFound) {
		t.Errorf("latest on empty db error = %v", err)
	}
}

func TestListSnapshotsNewestFirst(t *testing.T) {
	ctx, db, dbPath := setupTestDB(t)
	now := time.Now().Unix()
	insertTestSnapshot(t, db, "old", now-20, 1)
	insertTestSnapshot(t, db, "mid", now-10, 2)
	insertTestSnapshot(t, db, "new", now, 3)

	store := NewStoreWithDB(db, dbPath)
	list, err := store.ListSnapshots(ctx, 2)
	if err != nil {
		t.Fatalf("list snapshots: %v", err)
	}
	if len(list) != 2 || list[0].ID != "new" || list[1].ID != "mid" {
		t.Fatalf("unexpected order: %+v", list)
	}

	latest, err := store.LatestSnapshotID(ctx)
	if err != nil || latest != "new" {
		t.Fatalf("latest = %q, %v", latest, err)
	}

	stats, err := store.GetStats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalSnapshots != 3 || stats.TotalEntries != 6 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.TotalOnDisk == 0 {
		t.Errorf("unexpected on-disk sizes: %+v", stats)
	}
}

func TestStreamingWriterBatches(t *testing.T) {
	ctx, db, _ := setupTestDB(t)
	insertTestSnapshot(t, db, "s1", time.Now().Unix(), 0)

	var progressCalls int
	sw := NewStreamingWriterWithProgress(ctx, db, "s1", 8, func(files, dirs int64, last string) {
		progressCalls++
	})

	total := batchSize + 25
	for i := 0; i < total; i++ {
		row := Row{
			Path:       filepath.Join("/r", "f"+strconv.Itoa(i)),
			ParentPath: "/r",
			Name:       "f",
			IsDir:      i%10 == 0,
			CreatedAt:  "1970-01-01 00:00:00 +00:00",
			ModifiedAt: "1970-01-01 00:00:00 +00:00",
		}
		if err := sw.Write(row); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}
	if err := sw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	files, dirs := sw.Counts()
	if files+dirs != int64(total) || dirs != int64((total+9)/10) {
		t.Errorf("counts = %d files, %d dirs", files, dirs)
	}
	if progressCalls != total {
		t.Errorf("progress calls = %d, want %d", progressCalls, total)
	}

	var stored int
	if err := db.QueryRow(`SELECT COUNT(*) FROM entries WHERE snapshot_id = 's1'`).Scan(&stored); err != nil {
		t.Fatalf("count: %v", err)
	}
	if stored != total {
		t.Fatalf("stored %d rows, want %d", stored, total)
	}
}

func TestStreamingWriterStopsOnCancel(t *testing.T) {
	_, db, _ := setupTestDB(t)
	insertTestSnapshot(t, db, "s1", time.Now().Unix(), 0)

	ctx, cancel := context.WithCancel(context.Background())
	sw := NewStreamingWriter(ctx, db, "s1", 1)
	cancel()

	// Writes keep succeeding only until the writer notices the cancellation.
	var err error
	for i := 0; err == nil && i < 10000; i++ {
		err = sw.Write(Row{Path: "/r/x", ParentPath: "/r", Name: "x"})
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("write after cancel = %v, want context.Canceled", err)
	}
	if err := sw.Close(); !errors.Is(err, context.Canceled) {
		t.Fatalf("close after cancel = %v, want context.Canceled", err)
	}
}

// Close right after cancel lets the writer see a closed channel and a done
// context in the same select; the result must not depend on which it picks.
func TestStreamingWriterCloseAfterCancelIsStable(t *testing.T) {
	_, db, _ := setupTestDB(t)
	insertTestSnapshot(t, db, "s1", time.Now().Unix(), 0)

	for i := 0; i < 200; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		sw := NewStreamingWriter(ctx, db, "s1", 1)
		cancel()
		if err := sw.Close(); !errors.Is(err, context.Canceled) {
			t.Fatalf("run %d: close after cancel = %v, want context.Canceled", i, err)
		}
	}

	// Without a cancel, Close still flushes normally.
	sw := NewStreamingWriter(context.Background(), db, "s1", 1)
	if err := sw.Write(Row{Path: "/r/y", ParentPath: "/r", Name: "y"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := sw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestDeleteSubtree(t *testing.T) {
	ctx, db, _ := setupTestDB(t)
	insertTestSnapshot(t, db, "s1", time.Now().Unix(), 0)

	sw := NewStreamingWriter(ctx, db, "s1", 0)
	for _, p := range []string{"/r/a", "/r/a/x", "/r/a/x/y", "/r/ab", "/r/A/z"} {
		if err := sw.Write(Row{Path: p, ParentPath: filepath.Dir(p), Name: filepath.Base(p)}); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := sw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if err := deleteSubtree(ctx, db, "s1", filepath.FromSlash("/r/a")); err != nil {
		t.Fatalf("delete subtree: %v", err)
	}

	rows, err := db.Query(`SELECT path FROM entries WHERE snapshot_id = 's1' ORDER BY path`)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	defer rows.Close()
	var left []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			t.Fatalf("scan: %v", err)
		}
		left = append(left, p)
	}
	if strings.Join(left, ",") != "/r/A/z,/r/ab" {
		t.Fatalf("remaining = %v", left)
	}
}
