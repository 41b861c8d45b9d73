package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mordilloSan/go_logger/logger"

	"github.com/mordilloSan/fsbrowse/browsing"
	"github.com/mordilloSan/fsbrowse/cmd"
	"github.com/mordilloSan/fsbrowse/internal/config"
	"github.com/mordilloSan/fsbrowse/internal/version"
)

func main() {
	// Flags can still fix whatever the environment got wrong.
	env, err := config.LoadOrDefault()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v; using defaults\n", err)
	}

	var (
		snapshotMode  = flag.Bool("snapshot-mode", false, "Take one snapshot of -path and exit")
		snapshotPath  = flag.String("path", "", "Directory to snapshot (snapshot mode)")
		modeName      = flag.String("mode", "flat", "Snapshot traversal: flat, bounded or recursive")
		depth         = flag.Uint("depth", 0, "Extra levels for -mode bounded")
		dbPath        = flag.String("db-path", "", "SQLite database path (overrides FSBROWSE_DB_PATH)")
		socketPath    = flag.String("socket-path", "", "Unix socket path; \"-\" disables it (overrides FSBROWSE_SOCKET_PATH)")
		listenAddr    = flag.String("listen", "", "Optional TCP address, e.g. :8080 (overrides FSBROWSE_LISTEN)")
		strict        = flag.Bool("strict", env.Strict, "Fail walks on the first unreadable entry instead of omitting it")
		parallel      = flag.Bool("parallel", env.Parallel, "Expand directories of one tree level concurrently")
		workers       = flag.Int("workers", env.Workers, "Walker concurrency; 0 picks a CPU-based default")
		keepSnapshots = flag.Int("keep-snapshots", env.KeepSnapshots, "Snapshots to retain; 0 keeps all")
		verbose       = flag.Bool("verbose", env.Verbose, "Enable verbose logging")
		showVersion   = flag.Bool("version", false, "Print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	logger.Init("production", *verbose)

	cfg := cmd.DaemonConfig{
		DBPath:        coalesce(*dbPath, env.DBPath),
		SocketPath:    coalesce(*socketPath, env.SocketPath),
		ListenAddr:    coalesce(*listenAddr, env.Listen),
		Strict:        *strict,
		Parallel:      *parallel,
		Workers:       *workers,
		KeepSnapshots: *keepSnapshots,
	}

	if *snapshotMode {
		if *snapshotPath == "" {
			logger.Errorf("Error: -path flag is required with -snapshot-mode")
			flag.Usage()
			os.Exit(1)
		}
		mode, err := browsing.ParseMode(*modeName, *depth)
		if err != nil {
			logger.Fatalf("Invalid -mode: %v", err)
		}
		if err := cmd.RunSnapshotMode(cfg, *snapshotPath, mode); err != nil {
			logger.Fatalf("Snapshot failed: %v", err)
		}
		return
	}

	d, err := cmd.NewDaemon(cfg)
	if err != nil {
		logger.Fatalf("Failed to start daemon: %v", err)
	}
	defer d.Close()

	listenDisplay := cfg.ListenAddr
	if listenDisplay == "" {
		listenDisplay = "disabled"
	}
	logger.Infof("Daemon initialized %s db=%s socket=%s listen=%s strict=%t parallel=%t workers=%d keep=%d",
		version.String(), cfg.DBPath, cfg.SocketPath, listenDisplay, cfg.Strict, cfg.Parallel, cfg.Workers, cfg.KeepSnapshots)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	errCh := make(chan error, 1)
	go func() {
		errCh <- d.Run(ctx)
	}()

	select {
	case sig := <-sigCh:
		logger.Infof("Received signal %v, initiating graceful shutdown...", sig)
		cancel()
		<-errCh
	case err := <-errCh:
		if err != nil {
			logger.Fatalf("Daemon exited with error: %v", err)
		}
	}

	logger.Infof("Shutdown complete")
}

func coalesce(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
