package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/mordilloSan/go_logger/logger"
)

const (
	readTimeout  = 30 * time.Second
	writeTimeout = 60 * time.Second
)

// boundListener pairs a listener with the URL it is announced under.
type boundListener struct {
	net.Listener
	url string
}

// listeners opens the unix socket and the optional TCP address. Whatever was
// opened is closed again when a later one fails.
func (d *daemon) listeners() ([]boundListener, error) {
	var out []boundListener
	fail := func(err error) ([]boundListener, error) {
		for _, l := range out {
			_ = l.Close()
		}
		return nil, err
	}

	if d.cfg.SocketPath != "" {
		l, activated, err := unixListener(d.cfg.SocketPath)
		if err != nil {
			return fail(err)
		}
		d.usedSystemdSock = activated
		url := "unix://" + d.cfg.SocketPath
		if activated {
			url += " (socket-activated)"
		}
		out = append(out, boundListener{Listener: l, url: url})
	}

	if d.cfg.ListenAddr != "" {
		l, err := net.Listen("tcp", d.cfg.ListenAddr)
		if err != nil {
			return fail(fmt.Errorf("listen on %s: %w", d.cfg.ListenAddr, err))
		}
		out = append(out, boundListener{Listener: l, url: "http://" + l.Addr().String()})
	}

	if len(out) == 0 {
		return nil, errors.New("no listeners configured")
	}
	return out, nil
}

// unixListener prefers a socket handed over by systemd and otherwise binds
// path itself, replacing a stale socket file.
func unixListener(path string) (l net.Listener, activated bool, err error) {
	if l := inheritedListener(); l != nil {
		return l, true, nil
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, false, fmt.Errorf("remove stale socket: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, false, fmt.Errorf("create socket directory: %w", err)
	}
	l, err = net.Listen("unix", path)
	if err != nil {
		return nil, false, fmt.Errorf("listen on %s: %w", path, err)
	}
	// Clients run as other users.
	if err := os.Chmod(path, 0o666); err != nil {
		_ = l.Close()
		return nil, false, fmt.Errorf("chmod socket: %w", err)
	}
	return l, false, nil
}

// inheritedListener implements the sd_listen_fds protocol for exactly one
// descriptor. It returns nil when the process was not socket-activated.
func inheritedListener() net.Listener {
	if os.Getenv("LISTEN_PID") != strconv.Itoa(os.Getpid()) {
		return nil
	}
	if n, err := strconv.Atoi(os.Getenv("LISTEN_FDS")); err != nil || n != 1 {
		return nil
	}
	defer func() {
		_ = os.Unsetenv("LISTEN_PID")
		_ = os.Unsetenv("LISTEN_FDS")
	}()

	const firstFD = 3
	f := os.NewFile(firstFD, "LISTEN_FD_3")
	if f == nil {
		return nil
	}
	l, err := net.FileListener(f)
	// FileListener dups the descriptor.
	_ = f.Close()
	if err != nil {
		logger.Warnf("Ignoring inherited socket: %v", err)
		return nil
	}
	return l
}

// serve runs one http.Server per listener until ctx ends or any of them
// stops with an error.
func (d *daemon) serve(ctx context.Context, handler http.Handler, ls []boundListener) error {
	errCh := make(chan error, len(ls))
	for _, l := range ls {
		srv := &http.Server{
			Handler:      handler,
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
		}
		d.servers = append(d.servers, srv)
		logger.Infof("Serving API on %s", l.url)
		go func(l net.Listener) {
			errCh <- srv.Serve(l)
		}(l.Listener)
	}

	var err error
	select {
	case <-ctx.Done():
	case err = <-errCh:
	}
	d.shutdownServers(context.Background())
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (d *daemon) shutdownServers(ctx context.Context) {
	for _, srv := range d.servers {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Warnf("Server shutdown: %v", err)
		}
	}
}
