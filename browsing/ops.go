package browsing

import (
	"io/fs"
	"os"
	"os/exec"
	"syscall"

	"github.com/mordilloSan/go_logger/logger"
)

// Open hands path to the platform's default-handler launcher and returns
// once the launcher has started. The path is not checked for existence.
func (b *Browser) Open(path string) error {
	name, args, err := b.normalizer.Launcher()
	if err != nil {
		return ioError(err)
	}
	cmd := exec.Command(name, append(args, path)...)
	if err := cmd.Start(); err != nil {
		return ioError(err)
	}
	go func() {
		if err := cmd.Wait(); err != nil {
			logger.Debugf("launcher %s exited for %s: %v", name, path, err)
		}
	}()
	return nil
}

func (b *Browser) Rename(from, to string) error {
	return ioError(os.Rename(from, to))
}

// RemoveDir removes an empty directory.
func (b *Browser) RemoveDir(path string) error {
	info, err := os.Lstat(path)
	if err != nil {
		return ioError(err)
	}
	if !info.IsDir() {
		return ioError(&fs.PathError{Op: "remove", Path: path, Err: syscall.ENOTDIR})
	}
	return ioError(os.Remove(path))
}

// RemoveFile removes a single file; directories are refused.
func (b *Browser) RemoveFile(path string) error {
	info, err := os.Lstat(path)
	if err != nil {
		return ioError(err)
	}
	if info.IsDir() {
		return ioError(&fs.PathError{Op: "remove", Path: path, Err: syscall.EISDIR})
	}
	return ioError(os.Remove(path))
}

// CreateDir creates one directory level; missing parents are an error.
func (b *Browser) CreateDir(path string) error {
	return ioError(os.Mkdir(path, 0o777))
}

// CreateFile creates an empty file, truncating any existing one.
func (b *Browser) CreateFile(path string) error {
	return ioError(os.WriteFile(path, nil, 0o666))
}
