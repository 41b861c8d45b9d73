package storage

import (
	"context"
	"database/sql"
	"strings"
	"sync/atomic"
	"time"
)

const (
	batchSize     = 500
	flushInterval = 1 * time.Second
)

// Row is one stored entry of a snapshot. Times are kept in their rendered
// form so a stored tree reads exactly like a live listing did.
type Row struct {
	Path         string
	ParentPath   string
	Depth        int
	Name         string
	IsDir        bool
	CreatedAt    string
	ModifiedAt   string
	IdentityHigh uint32
	IdentityLow  uint32
}

// ProgressCallback is called after each row is accepted with cumulative counts.
type ProgressCallback func(filesWritten, dirsWritten int64, lastPath string)

// StreamingWriter accepts rows via a channel and writes them in batches from
// a single goroutine. Write is safe for concurrent use.
type StreamingWriter struct {
	db         *sql.DB
	snapshotID string
	progress   ProgressCallback

	rows    chan Row
	done    chan error
	ctx     context.Context
	stop    context.CancelFunc
	failure atomic.Pointer[error]

	pending []Row
	files   int64
	dirs    int64
}

// NewStreamingWriter creates a writer that batches rows for snapshotID.
func NewStreamingWriter(ctx context.Context, db *sql.DB, snapshotID string, bufferSize int) *StreamingWriter {
	return NewStreamingWriterWithProgress(ctx, db, snapshotID, bufferSize, nil)
}

// NewStreamingWriterWithProgress is NewStreamingWriter with a progress callback,
// invoked from the writer goroutine.
func NewStreamingWriterWithProgress(ctx context.Context, db *sql.DB, snapshotID string, bufferSize int, progress ProgressCallback) *StreamingWriter {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	ctx, stop := context.WithCancel(ensureContext(ctx))
	sw := &StreamingWriter{
		db:         db,
		snapshotID: snapshotID,
		progress:   progress,
		rows:       make(chan Row, bufferSize),
		done:       make(chan error, 1),
		ctx:        ctx,
		stop:       stop,
		pending:    make([]Row, 0, batchSize),
	}
	go sw.run()
	return sw
}

// Write queues a row. It fails once the writer has stopped.
func (sw *StreamingWriter) Write(row Row) error {
	select {
	case sw.rows <- row:
		return nil
	case <-sw.ctx.Done():
		if errp := sw.failure.Load(); errp != nil {
			return *errp
		}
		return sw.ctx.Err()
	}
}

// Close flushes pending rows and waits for the writer goroutine.
func (sw *StreamingWriter) Close() error {
	close(sw.rows)
	return <-sw.done
}

func (sw *StreamingWriter) SnapshotID() string {
	return sw.snapshotID
}

// Counts returns the rows written so far. Only valid after Close.
func (sw *StreamingWriter) Counts() (files, dirs int64) {
	return sw.files, sw.dirs
}

func (sw *StreamingWriter) run() {
	err := sw.loop()
	if err != nil {
		sw.failure.Store(&err)
	}
	sw.done <- err
	sw.stop()
}

func (sw *StreamingWriter) loop() error {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		select {
		case row, ok := <-sw.rows:
			if !ok {
				// Close racing a cancel: the cancel wins either way.
				if err := sw.ctx.Err(); err != nil {
					return err
				}
				return sw.flush()
			}
			sw.accept(row)
			if len(sw.pending) >= batchSize {
				if err := sw.flush(); err != nil {
					return err
				}
			}
		case <-ticker.C:
			if err := sw.flush(); err != nil {
				return err
			}
		case <-sw.ctx.Done():
			return sw.ctx.Err()
		}
	}
}

func (sw *StreamingWriter) accept(row Row) {
	if row.IsDir {
		sw.dirs++
	} else {
		sw.files++
	}
	if sw.progress != nil {
		sw.progress(sw.files, sw.dirs, row.Path)
	}
	sw.pending = append(sw.pending, row)
}

// flush commits the pending rows in one transaction.
func (sw *StreamingWriter) flush() error {
	if len(sw.pending) == 0 {
		return nil
	}
	tx, err := sw.db.BeginTx(sw.ctx, nil)
	if err != nil {
		return err
	}
	if err := insertRowsBatch(sw.ctx, tx, sw.snapshotID, sw.pending); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	clear(sw.pending)
	sw.pending = sw.pending[:0]
	return nil
}

const entryColumns = 10

func insertRowsBatch(ctx context.Context, tx *sql.Tx, snapshotID string, batch []Row) error {
	if len(batch) == 0 {
		return nil
	}

	placeholder := "(" + strings.TrimSuffix(strings.Repeat("?, ", entryColumns), ", ") + ")"
	values := strings.TrimSuffix(strings.Repeat(placeholder+",", len(batch)), ",")
	query := `
		INSERT INTO entries (
			snapshot_id, path, parent_path, depth, name, is_dir,
			created_at, modified_at, identity_high, identity_low
		) VALUES ` + values + `
		ON CONFLICT(snapshot_id, path) DO UPDATE SET
			name = excluded.name,
			is_dir = excluded.is_dir,
			created_at = excluded.created_at,
			modified_at = excluded.modified_at,
			identity_high = excluded.identity_high,
			identity_low = excluded.identity_low;`

	args := make([]any, 0, len(batch)*entryColumns)
	for _, row := range batch {
		args = append(args,
			snapshotID, row.Path, row.ParentPath, row.Depth, row.Name, boolToInt(row.IsDir),
			row.CreatedAt, row.ModifiedAt, int64(row.IdentityHigh), int64(row.IdentityLow),
		)
	}

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}
