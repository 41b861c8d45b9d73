package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mordilloSan/go_logger/logger"

	"github.com/mordilloSan/fsbrowse/browsing"
	"github.com/mordilloSan/fsbrowse/internal/metrics"
	"github.com/mordilloSan/fsbrowse/storage"
)

const (
	defaultSocketPath = "/var/run/fsbrowse.sock"
	defaultDBPath     = "/tmp/fsbrowse.db"
)

// DaemonConfig controls the long-running server.
type DaemonConfig struct {
	DBPath        string
	SocketPath    string // "" disables the unix socket once defaults are applied
	ListenAddr    string
	Strict        bool
	Parallel      bool
	Workers       int
	KeepSnapshots int
}

func (c DaemonConfig) withDefaults() DaemonConfig {
	switch c.SocketPath {
	case "-":
		c.SocketPath = ""
	case "":
		c.SocketPath = defaultSocketPath
	}
	if c.DBPath == "" {
		c.DBPath = defaultDBPath
	}
	return c
}

type daemon struct {
	cfg     DaemonConfig
	db      *sql.DB
	store   *storage.Store
	browser *browsing.Browser
	servers []*http.Server

	// running guards snapshot and vacuum jobs; only one runs at a time.
	running atomic.Bool
	// jobCtx outlives requests; Close cancels it and waits on jobs before
	// the database goes away.
	jobCtx   context.Context
	stopJobs context.CancelFunc
	jobs     sync.WaitGroup

	usedSystemdSock bool
}

func NewDaemon(cfg DaemonConfig) (*daemon, error) {
	cfg = cfg.withDefaults()
	if cfg.Workers < 0 {
		return nil, fmt.Errorf("workers must not be negative")
	}

	db, existed, err := storage.OpenVerified(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if mode, err := storage.GetJournalMode(ctx, db); err != nil {
		logger.Warnf("Unknown journal mode for %s: %v", cfg.DBPath, err)
	} else {
		logger.Infof("Snapshot database %s open (journal=%s)", cfg.DBPath, strings.ToUpper(mode))
	}

	d := newDaemon(cfg, db)
	if existed {
		d.logLatestSnapshot(ctx)
	}
	return d, nil
}

func newDaemon(cfg DaemonConfig, db *sql.DB) *daemon {
	jobCtx, stopJobs := context.WithCancel(context.Background())
	return &daemon{
		cfg:      cfg,
		db:       db,
		store:    storage.NewStoreWithDB(db, cfg.DBPath),
		browser:  newBrowser(cfg),
		jobCtx:   jobCtx,
		stopJobs: stopJobs,
	}
}

func newBrowser(cfg DaemonConfig) *browsing.Browser {
	return browsing.New(browsing.Options{
		Strict:   cfg.Strict,
		Parallel: cfg.Parallel,
		Workers:  cfg.Workers,
	})
}

func (d *daemon) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	d.shutdownServers(ctx)

	d.stopJobs()
	d.jobs.Wait()

	if d.db != nil {
		if err := d.db.Close(); err != nil {
			logger.Warnf("Closing database: %v", err)
		}
	}
	// A socket inherited from systemd belongs to systemd.
	if d.cfg.SocketPath != "" && !d.usedSystemdSock {
		if err := os.Remove(d.cfg.SocketPath); err != nil && !os.IsNotExist(err) {
			logger.Warnf("Removing socket %s: %v", d.cfg.SocketPath, err)
		}
	}
	logger.Infof("Daemon stopped")
}

// Run serves the API and blocks until ctx is cancelled or a listener fails.
func (d *daemon) Run(ctx context.Context) error {
	ls, err := d.listeners()
	if err != nil {
		return err
	}
	return d.serve(ctx, d.routes(), ls)
}

func (d *daemon) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/openapi.json", serveOpenapi)
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/status", d.handleStatus)

	mux.HandleFunc("/entry", d.handleEntry)
	mux.HandleFunc("/list", d.handleList)
	mux.HandleFunc("/list/bounded", d.handleListBounded)
	mux.HandleFunc("/list/recursive", d.handleListRecursive)
	mux.HandleFunc("/read", d.handleRead)
	mux.HandleFunc("/open", d.handleOpen)
	mux.HandleFunc("/rename", d.handleRename)
	mux.HandleFunc("/dir", d.handleDir)
	mux.HandleFunc("/file", d.handleFile)

	mux.HandleFunc("/snapshot", d.handleSnapshot)
	mux.HandleFunc("/snapshots", d.handleSnapshots)
	mux.HandleFunc("/snapshots/tree", d.handleSnapshotTree)
	mux.HandleFunc("/vacuum", d.handleVacuum)

	return metrics.Middleware(mux)
}

// startJob runs fn in the background unless another job is running.
// fn's context is cancelled by Close.
func (d *daemon) startJob(fn func(ctx context.Context)) bool {
	if !d.running.CompareAndSwap(false, true) {
		return false
	}
	d.jobs.Add(1)
	go func() {
		defer d.jobs.Done()
		defer d.running.Store(false)
		fn(d.jobCtx)
	}()
	return true
}

// runSnapshot stores one walk of root and then does the housekeeping that
// keeps the database small. Shared by the daemon and -snapshot-mode.
func runSnapshot(ctx context.Context, db *sql.DB, b *browsing.Browser, cfg DaemonConfig, root string, mode browsing.Mode) (storage.SnapshotInfo, error) {
	logger.Infof("Snapshot of %s started (mode=%s strict=%t)", root, mode, b.Strict())
	start := time.Now()

	info, err := storage.Export(ctx, db, b.Normalizer(), root, mode, storage.ExportOptions{
		Strict:  b.Strict(),
		Workers: cfg.Workers,
	})
	metrics.RecordSnapshot(time.Since(start), info.NumDirs+info.NumFiles, err)
	if err != nil {
		return storage.SnapshotInfo{}, fmt.Errorf("snapshot of %s: %w", root, err)
	}
	logger.Infof("Snapshot %s stored: %d dirs, %d files, %d skipped in %v",
		info.ID, info.NumDirs, info.NumFiles, info.Skipped, info.Duration)

	if cfg.KeepSnapshots > 0 {
		if ps, err := storage.PruneOldSnapshots(ctx, db, cfg.KeepSnapshots); err != nil {
			logger.Warnf("Pruning snapshots: %v", err)
		} else if ps.DeletedSnapshots > 0 {
			logger.Infof("Pruned %d snapshots (%d entries)", ps.DeletedSnapshots, ps.DeletedEntries)
		}
	}
	checkpoint(ctx, db, "snapshot")
	_ = storage.ReleaseSQLiteMemory(ctx, db)
	return info, nil
}

func checkpoint(ctx context.Context, db *sql.DB, after string) {
	stats, err := storage.WALCheckpointTruncate(ctx, db)
	if err != nil {
		logger.Warnf("WAL checkpoint after %s: %v", after, err)
		return
	}
	logger.Debugf("WAL checkpoint after %s: %v (busy=%d log=%d checkpointed=%d)",
		after, stats.Duration, stats.Busy, stats.Log, stats.Checkpointed)
}

// RunSnapshotMode takes a single snapshot without starting the server.
func RunSnapshotMode(cfg DaemonConfig, root string, mode browsing.Mode) error {
	cfg = cfg.withDefaults()
	logger.Infof("One-shot snapshot of %s into %s", root, cfg.DBPath)

	db, _, err := storage.OpenVerified(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() { _ = db.Close() }()

	_, err = runSnapshot(context.Background(), db, newBrowser(cfg), cfg, root, mode)
	return err
}

func (d *daemon) logLatestSnapshot(ctx context.Context) {
	snaps, err := d.store.ListSnapshots(ctx, 1)
	switch {
	case err != nil:
		logger.Warnf("Reading latest snapshot: %v", err)
	case len(snaps) == 0:
		logger.Infof("No snapshots stored yet")
	default:
		s := snaps[0]
		logger.Infof("Latest snapshot %s of %s (%s) taken %s",
			s.ID, s.RootPath, s.Mode, s.CreatedAt.UTC().Format(time.RFC3339))
	}
}
