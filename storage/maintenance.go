package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mordilloSan/go_logger/logger"
)

// WALCheckpointStats reports the result of PRAGMA wal_checkpoint.
type WALCheckpointStats struct {
	Busy         int
	Log          int
	Checkpointed int
	Duration     time.Duration
}

// WALCheckpointTruncate copies the WAL back into the main file and truncates
// it. A daemon that only ever appends would otherwise grow the -wal file
// without bound.
func WALCheckpointTruncate(ctx context.Context, db *sql.DB) (WALCheckpointStats, error) {
	ctx, err := usable(ctx, db)
	if err != nil {
		return WALCheckpointStats{}, err
	}

	start := time.Now()
	var stats WALCheckpointStats
	err = db.QueryRowContext(ctx, `PRAGMA wal_checkpoint(TRUNCATE);`).Scan(&stats.Busy, &stats.Log, &stats.Checkpointed)
	stats.Duration = time.Since(start).Truncate(time.Millisecond)
	if err != nil {
		return WALCheckpointStats{}, err
	}
	return stats, nil
}

type VacuumStats struct {
	Duration time.Duration
}

// Vacuum rewrites the whole file. It holds an exclusive lock for the
// duration, so readers wait.
func Vacuum(ctx context.Context, db *sql.DB) (VacuumStats, error) {
	ctx, err := usable(ctx, db)
	if err != nil {
		return VacuumStats{}, err
	}

	start := time.Now()
	if _, err := db.ExecContext(ctx, `VACUUM;`); err != nil {
		return VacuumStats{}, err
	}
	return VacuumStats{Duration: time.Since(start).Truncate(time.Millisecond)}, nil
}

type PruneStats struct {
	DeletedSnapshots int           `json:"deleted_snapshots"`
	DeletedEntries   int64         `json:"deleted_entries"`
	Duration         time.Duration `json:"duration_ns"`
}

// PruneOldSnapshots keeps the keepLatest newest snapshots and deletes the
// rest; their entries go with them through the foreign key cascade.
// keepLatest <= 0 disables pruning.
func PruneOldSnapshots(ctx context.Context, db *sql.DB, keepLatest int) (PruneStats, error) {
	ctx, err := usable(ctx, db)
	if err != nil {
		return PruneStats{}, err
	}
	if keepLatest <= 0 {
		return PruneStats{}, nil
	}

	start := time.Now()
	var stats PruneStats

	const victims = `
		SELECT id FROM snapshots
		ORDER BY created_at DESC, rowid DESC
		LIMIT -1 OFFSET ?`

	err = db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(num_files + num_dirs), 0)
		FROM snapshots
		WHERE id IN (`+victims+`);
	`, keepLatest).Scan(&stats.DeletedEntries)
	if err != nil {
		return PruneStats{}, fmt.Errorf("count entries to delete: %w", err)
	}

	res, err := db.ExecContext(ctx, `
		DELETE FROM snapshots
		WHERE id IN (`+victims+`);
	`, keepLatest)
	if err != nil {
		return PruneStats{}, fmt.Errorf("delete old snapshots: %w", err)
	}

	deleted, err := res.RowsAffected()
	if err != nil {
		return PruneStats{}, fmt.Errorf("rows affected: %w", err)
	}
	stats.DeletedSnapshots = int(deleted)
	stats.Duration = time.Since(start).Truncate(time.Millisecond)

	if deleted > 0 {
		if _, err := db.ExecContext(ctx, `PRAGMA incremental_vacuum;`); err != nil {
			logger.Warnf("incremental_vacuum after prune: %v", err)
		}
	}

	return stats, nil
}

var errNilDB = errors.New("db is nil")

// usable fills in a missing context and rejects a nil handle.
func usable(ctx context.Context, db *sql.DB) (context.Context, error) {
	if db == nil {
		return nil, errNilDB
	}
	return ensureContext(ctx), nil
}
