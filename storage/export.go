package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/charlievieth/fastwalk"
	"github.com/google/uuid"
	"github.com/mordilloSan/go_logger/logger"

	"github.com/mordilloSan/fsbrowse/browsing"
	"github.com/mordilloSan/fsbrowse/browsing/metadata"
)

// ExportOptions tunes a snapshot export. The zero value is lenient and uses
// fastwalk's default worker count.
type ExportOptions struct {
	Strict     bool
	Workers    int
	BufferSize int
	Progress   ProgressCallback
}

// Export walks root with the listing semantics of mode and stores every
// entry as a new snapshot. Per-entry failures are skipped unless opts.Strict
// is set; a root that cannot be listed fails the export and leaves no
// snapshot behind.
func Export(ctx context.Context, db *sql.DB, normalizer *metadata.Normalizer, root string, mode browsing.Mode, opts ExportOptions) (SnapshotInfo, error) {
	ctx, err := usable(ctx, db)
	if err != nil {
		return SnapshotInfo{}, err
	}
	if err := mode.Validate(); err != nil {
		return SnapshotInfo{}, err
	}
	if normalizer == nil {
		normalizer = metadata.NewNormalizer()
	}

	root = filepath.Clean(root)
	rootInfo, err := os.Stat(root)
	if err != nil {
		return SnapshotInfo{}, err
	}
	if !rootInfo.IsDir() {
		return SnapshotInfo{}, &fs.PathError{Op: "readdir", Path: root, Err: syscall.ENOTDIR}
	}

	start := time.Now()
	info := SnapshotInfo{
		ID:        uuid.NewString(),
		RootPath:  root,
		Mode:      modeName(mode),
		Depth:     mode.Depth,
		Strict:    opts.Strict,
		CreatedAt: start.Truncate(time.Second),
	}
	if _, err := db.ExecContext(ctx, `
		INSERT INTO snapshots (id, root_path, mode, depth, strict, created_at)
		VALUES (?, ?, ?, ?, ?, ?);
	`, info.ID, info.RootPath, info.Mode, info.Depth, boolToInt(info.Strict), info.CreatedAt.Unix()); err != nil {
		return SnapshotInfo{}, fmt.Errorf("create snapshot: %w", err)
	}

	writer := NewStreamingWriterWithProgress(ctx, db, info.ID, opts.BufferSize, opts.Progress)
	var (
		skipped  atomic.Int64
		mu       sync.Mutex
		failures []string
	)

	conf := fastwalk.Config{Follow: false, NumWorkers: opts.Workers}
	walkErr := fastwalk.Walk(&conf, root, func(path string, d fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		if rel == "." {
			// The root itself is not part of the listing, but failing to
			// read it fails the export.
			return err
		}
		if err != nil {
			if opts.Strict {
				return err
			}
			logger.Debugf("snapshot %s: omitting unreadable %s: %v", info.ID, path, err)
			mu.Lock()
			failures = append(failures, path)
			mu.Unlock()
			skipped.Add(1)
			return nil
		}

		level := uint(strings.Count(rel, string(filepath.Separator)))
		if level > 0 && !mode.Expands(level-1) {
			return skipIfDir(d)
		}

		stat, err := os.Stat(path)
		if err != nil {
			if opts.Strict {
				return err
			}
			logger.Debugf("snapshot %s: omitting %s: %v", info.ID, path, err)
			skipped.Add(1)
			return skipIfDir(d)
		}

		meta := normalizer.Normalize(path, stat)
		if err := writer.Write(Row{
			Path:         path,
			ParentPath:   filepath.Dir(path),
			Depth:        int(level),
			Name:         d.Name(),
			IsDir:        meta.IsDir,
			CreatedAt:    meta.CreatedAt,
			ModifiedAt:   meta.ModifiedAt,
			IdentityHigh: meta.IdentityHigh,
			IdentityLow:  meta.IdentityLow,
		}); err != nil {
			return err
		}

		if d.IsDir() && !mode.Expands(level) {
			return fs.SkipDir
		}
		return nil
	})

	closeErr := writer.Close()
	if err := errors.Join(walkErr, closeErr); err != nil {
		discardSnapshot(db, info.ID)
		return SnapshotInfo{}, err
	}

	// Directories whose listing failed were already stored when fastwalk
	// reached them; drop them so the snapshot matches a live listing.
	for _, p := range failures {
		if err := deleteSubtree(ctx, db, info.ID, p); err != nil {
			discardSnapshot(db, info.ID)
			return SnapshotInfo{}, err
		}
	}

	info.Skipped = skipped.Load()
	info.Duration = time.Since(start).Truncate(time.Millisecond)
	if err := finalizeSnapshot(ctx, db, &info); err != nil {
		discardSnapshot(db, info.ID)
		return SnapshotInfo{}, err
	}
	return info, nil
}

func skipIfDir(d fs.DirEntry) error {
	if d.IsDir() {
		return fs.SkipDir
	}
	return nil
}

func modeName(m browsing.Mode) string {
	switch {
	case m.Recursive:
		return "recursive"
	case m.Depth > 0:
		return "bounded"
	default:
		return "flat"
	}
}

func deleteSubtree(ctx context.Context, db *sql.DB, snapshotID, path string) error {
	prefix := path + string(filepath.Separator)
	// substr/length count characters on both sides; LIKE would fold case.
	_, err := db.ExecContext(ctx, `
		DELETE FROM entries
		WHERE snapshot_id = ? AND (path = ? OR substr(path, 1, length(?)) = ?);
	`, snapshotID, path, prefix, prefix)
	return err
}

func finalizeSnapshot(ctx context.Context, db *sql.DB, info *SnapshotInfo) error {
	var dirs, total int64
	if err := db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(is_dir), 0), COUNT(*)
		FROM entries WHERE snapshot_id = ?;
	`, info.ID).Scan(&dirs, &total); err != nil {
		return fmt.Errorf("count snapshot entries: %w", err)
	}
	info.NumDirs = dirs
	info.NumFiles = total - dirs

	_, err := db.ExecContext(ctx, `
		UPDATE snapshots
		SET num_dirs = ?, num_files = ?, duration_ms = ?, skipped = ?
		WHERE id = ?;
	`, info.NumDirs, info.NumFiles, info.Duration.Milliseconds(), info.Skipped, info.ID)
	if err != nil {
		return fmt.Errorf("finalize snapshot: %w", err)
	}
	return nil
}

// discardSnapshot runs on a fresh context so a cancelled export still
// cleans up after itself.
func discardSnapshot(db *sql.DB, id string) {
	ctx, cancel := context.WithTimeout(context.Background(), schemaTimeout)
	defer cancel()
	if _, err := db.ExecContext(ctx, `DELETE FROM snapshots WHERE id = ?;`, id); err != nil {
		logger.Warnf("Failed to discard snapshot %s: %v", id, err)
	}
}
