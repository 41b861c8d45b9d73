package cmd

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/mordilloSan/go_logger/logger"

	"github.com/mordilloSan/fsbrowse/browsing"
	"github.com/mordilloSan/fsbrowse/internal/metrics"
	"github.com/mordilloSan/fsbrowse/internal/version"
	"github.com/mordilloSan/fsbrowse/storage"
)

func (d *daemon) handleEntry(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	path, ok := requirePath(w, r, "path")
	if !ok {
		return
	}
	start := time.Now()
	entry, err := d.browser.Lookup(path)
	metrics.RecordOperation("lookup", time.Since(start), err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, entry)
}

func (d *daemon) handleList(w http.ResponseWriter, r *http.Request) {
	d.serveListing(w, r, "list", d.browser.List)
}

func (d *daemon) handleListRecursive(w http.ResponseWriter, r *http.Request) {
	d.serveListing(w, r, "list_recursive", d.browser.ListRecursive)
}

func (d *daemon) handleListBounded(w http.ResponseWriter, r *http.Request) {
	depth, err := queryUint(r.URL.Query().Get("depth"), 0)
	if err != nil {
		writeErrorStatus(w, http.StatusBadRequest, fmt.Sprintf("invalid depth: %v", err))
		return
	}
	d.serveListing(w, r, "list_bounded", func(path string) ([]browsing.Entry, error) {
		return d.browser.ListBounded(path, depth)
	})
}

func (d *daemon) serveListing(w http.ResponseWriter, r *http.Request, op string, list func(string) ([]browsing.Entry, error)) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	path, ok := requirePath(w, r, "path")
	if !ok {
		return
	}
	start := time.Now()
	entries, err := list(path)
	metrics.RecordOperation(op, time.Since(start), err)
	if err != nil {
		writeError(w, err)
		return
	}
	metrics.RecordEntries(op, countEntries(entries))
	writeJSON(w, entries)
}

func countEntries(entries []browsing.Entry) int {
	n := 0
	stack := [][]browsing.Entry{entries}
	for len(stack) > 0 {
		level := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n += len(level)
		for i := range level {
			if len(level[i].Children) > 0 {
				stack = append(stack, level[i].Children)
			}
		}
	}
	return n
}

func (d *daemon) handleRead(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	path, ok := requirePath(w, r, "path")
	if !ok {
		return
	}
	start := time.Now()
	text, err := d.browser.ReadFile(path)
	metrics.RecordOperation("read_file", time.Since(start), err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, text)
}

func (d *daemon) handleOpen(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	path, ok := requirePath(w, r, "path")
	if !ok {
		return
	}
	d.mutate(w, "open", func() error { return d.browser.Open(path) })
}

func (d *daemon) handleRename(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	from, ok := requirePath(w, r, "from")
	if !ok {
		return
	}
	to, ok := requirePath(w, r, "to")
	if !ok {
		return
	}
	d.mutate(w, "rename", func() error { return d.browser.Rename(from, to) })
}

func (d *daemon) handleDir(w http.ResponseWriter, r *http.Request) {
	path, ok := requirePath(w, r, "path")
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodPost:
		d.mutate(w, "create_dir", func() error { return d.browser.CreateDir(path) })
	case http.MethodDelete:
		d.mutate(w, "remove_dir", func() error { return d.browser.RemoveDir(path) })
	default:
		http.Error(w, "use POST or DELETE", http.StatusMethodNotAllowed)
	}
}

func (d *daemon) handleFile(w http.ResponseWriter, r *http.Request) {
	path, ok := requirePath(w, r, "path")
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodPost:
		d.mutate(w, "create_file", func() error { return d.browser.CreateFile(path) })
	case http.MethodDelete:
		d.mutate(w, "remove_file", func() error { return d.browser.RemoveFile(path) })
	default:
		http.Error(w, "use POST or DELETE", http.StatusMethodNotAllowed)
	}
}

// mutate runs a side-effecting operation and reports {"status":"ok"} on success.
func (d *daemon) mutate(w http.ResponseWriter, op string, fn func() error) {
	start := time.Now()
	err := fn()
	metrics.RecordOperation(op, time.Since(start), err)
	if err != nil {
		logger.Debugf("%s failed: %v", op, err)
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

func (d *daemon) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	path, ok := requirePath(w, r, "path")
	if !ok {
		return
	}
	q := r.URL.Query()
	depth, err := queryUint(q.Get("depth"), 0)
	if err != nil {
		writeErrorStatus(w, http.StatusBadRequest, fmt.Sprintf("invalid depth: %v", err))
		return
	}
	mode, err := browsing.ParseMode(q.Get("mode"), depth)
	if err != nil {
		writeError(w, err)
		return
	}
	root, err := d.browser.Lookup(path)
	if err != nil {
		writeError(w, err)
		return
	}
	if !root.IsDir {
		writeErrorStatus(w, http.StatusBadRequest, "path is not a directory")
		return
	}

	started := d.startJob(func(ctx context.Context) {
		if _, err := runSnapshot(ctx, d.db, d.browser, d.cfg, path, mode); err != nil {
			logger.Errorf("snapshot of %s failed: %v", path, err)
		}
	})
	if !started {
		writeErrorStatus(w, http.StatusConflict, "another job is already running")
		return
	}

	writeJSONStatus(w, http.StatusAccepted, map[string]string{
		"status": "running",
		"path":   path,
		"mode":   mode.String(),
	})
}

func (d *daemon) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	limit := queryInt(r.URL.Query().Get("limit"), 100, 1)
	snaps, err := d.store.ListSnapshots(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, snaps)
}

func (d *daemon) handleSnapshotTree(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	tree, err := d.store.SnapshotTree(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, tree)
}

func (d *daemon) handleVacuum(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	started := d.startJob(func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, 1*time.Hour)
		defer cancel()

		checkpoint(ctx, d.db, "vacuum start")
		vs, err := storage.Vacuum(ctx, d.db)
		if err != nil {
			logger.Errorf("Vacuum failed: %v", err)
			return
		}
		logger.Infof("Vacuum finished in %v", vs.Duration)
		checkpoint(ctx, d.db, "vacuum")
		_ = storage.ReleaseSQLiteMemory(ctx, d.db)
	})
	if !started {
		writeErrorStatus(w, http.StatusConflict, "another job is already running")
		return
	}

	writeJSONStatus(w, http.StatusAccepted, map[string]string{"status": "running"})
}

type statusResponse struct {
	Status   string                `json:"status"`
	Version  version.Info          `json:"version"`
	Strict   bool                  `json:"strict"`
	Parallel bool                  `json:"parallel"`
	Latest   *storage.SnapshotInfo `json:"latest_snapshot,omitempty"`

	TotalSnapshots int   `json:"total_snapshots"`
	TotalEntries   int64 `json:"total_entries"`
	DatabaseSize   int64 `json:"database_size"`
	WALSize        int64 `json:"wal_size"`
	SHMSize        int64 `json:"shm_size"`
	TotalOnDisk    int64 `json:"total_on_disk"`

	RSSBytes            int64  `json:"rss_bytes"`
	GoAllocBytes        uint64 `json:"go_alloc_bytes"`
	GoHeapInuseBytes    uint64 `json:"go_heap_inuse_bytes"`
	GoHeapIdleBytes     uint64 `json:"go_heap_idle_bytes"`
	GoHeapReleasedBytes uint64 `json:"go_heap_released_bytes"`
	GoSysBytes          uint64 `json:"go_sys_bytes"`
	GoNumGC             uint32 `json:"go_num_gc"`
	Goroutines          int    `json:"goroutines"`
	Warning             string `json:"warning,omitempty"`
}

func (d *daemon) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	running := d.running.Load()

	resp := statusResponse{
		Status:   "idle",
		Version:  version.Get(),
		Strict:   d.browser.Strict(),
		Parallel: d.cfg.Parallel,
	}
	if running {
		resp.Status = "running"
	}

	addWarning := func(msg string) {
		if resp.Warning == "" {
			resp.Warning = msg
		} else {
			resp.Warning += "; " + msg
		}
	}

	// A running job holds write locks; database errors then degrade to
	// warnings instead of failing the request.
	snaps, err := d.store.ListSnapshots(ctx, 1)
	switch {
	case err != nil && running:
		addWarning(fmt.Sprintf("latest snapshot unavailable: %v", err))
	case err != nil:
		writeErrorStatus(w, http.StatusInternalServerError, fmt.Sprintf("error loading status: %v", err))
		return
	case len(snaps) > 0:
		resp.Latest = &snaps[0]
	}

	stats, err := d.store.GetStats(ctx)
	switch {
	case err != nil && running:
		addWarning(fmt.Sprintf("stats unavailable: %v", err))
	case err != nil:
		writeErrorStatus(w, http.StatusInternalServerError, fmt.Sprintf("error loading stats: %v", err))
		return
	default:
		resp.TotalSnapshots = stats.TotalSnapshots
		resp.TotalEntries = stats.TotalEntries
		resp.DatabaseSize = stats.DatabaseSize
		resp.WALSize = stats.WALSize
		resp.SHMSize = stats.SHMSize
		resp.TotalOnDisk = stats.TotalOnDisk
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	resp.GoAllocBytes = ms.Alloc
	resp.GoHeapInuseBytes = ms.HeapInuse
	resp.GoHeapIdleBytes = ms.HeapIdle
	resp.GoHeapReleasedBytes = ms.HeapReleased
	resp.GoSysBytes = ms.Sys
	resp.GoNumGC = ms.NumGC
	resp.Goroutines = runtime.NumGoroutine()

	if rss, err := procSelfRSSBytes(); err != nil {
		if runtime.GOOS == "linux" {
			addWarning(fmt.Sprintf("rss unavailable: %v", err))
		}
	} else {
		resp.RSSBytes = rss
	}

	writeJSON(w, resp)
}

// procSelfRSSBytes reads VmRSS from /proc; it fails off Linux.
func procSelfRSSBytes() (int64, error) {
	b, err := os.ReadFile("/proc/self/status")
	if err != nil {
		return 0, err
	}
	sc := bufio.NewScanner(bytes.NewReader(b))
	for sc.Scan() {
		value, found := strings.CutPrefix(sc.Text(), "VmRSS:")
		if !found {
			continue
		}
		// "VmRSS:\t  12345 kB"
		fields := strings.Fields(value)
		if len(fields) < 1 {
			return 0, fmt.Errorf("unexpected VmRSS format: %q", sc.Text())
		}
		kb, err := strconv.ParseInt(fields[0], 10, 64)
		if err != nil {
			return 0, err
		}
		return kb * 1024, nil
	}
	if err := sc.Err(); err != nil {
		return 0, err
	}
	return 0, fmt.Errorf("VmRSS not found")
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorStatus maps operation errors onto HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, storage.ErrSnapshotNotFound):
		return http.StatusNotFound
	}
	if kind, ok := browsing.KindOf(err); ok && kind == browsing.KindOther {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	writeErrorStatus(w, errorStatus(err), err.Error())
}

func writeErrorStatus(w http.ResponseWriter, status int, msg string) {
	writeJSONStatus(w, status, map[string]string{"error": msg})
}

func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		http.Error(w, "use "+method, http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// requirePath reads a non-empty path-valued query parameter.
func requirePath(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	v := r.URL.Query().Get(name)
	if strings.TrimSpace(v) == "" {
		writeErrorStatus(w, http.StatusBadRequest, name+" parameter is required")
		return "", false
	}
	return v, true
}

// queryInt parses an integer query parameter with default and minimum value.
func queryInt(q string, def int, min int) int {
	if q == "" {
		return def
	}
	v, err := strconv.Atoi(q)
	if err != nil || v < min {
		return def
	}
	return v
}

func queryUint(q string, def uint) (uint, error) {
	if q == "" {
		return def, nil
	}
	v, err := strconv.ParseUint(q, 10, 0)
	if err != nil {
		return 0, err
	}
	return uint(v), nil
}
