package metadata

import (
	"errors"
	"io/fs"
	"time"
)

// ErrNoLauncher is returned when the platform has no default-handler launcher.
var ErrNoLauncher = errors.New("no default launcher for this platform")

var (
	unixEpoch    = time.Date(1970, time.January, 1, 0, 0, 0, 0, time.UTC)
	windowsEpoch = time.Date(1601, time.January, 1, 0, 0, 0, 0, time.UTC)
)

// PlatformInfo isolates everything that differs between operating systems:
// where timestamps are counted from, how the file identity is read and which
// command opens a path with its registered default application.
type PlatformInfo interface {
	// CreationEpochOrigin is the instant that raw seconds are counted from.
	CreationEpochOrigin() time.Time
	// FileTimes returns creation and modification seconds since the origin.
	// created is 0 when the filesystem does not record a birth time.
	FileTimes(path string, info fs.FileInfo) (created, modified int64)
	// FileIdentity returns the inode / file index, or 0 when unavailable.
	FileIdentity(path string, info fs.FileInfo) uint64
	// DefaultLauncherCommand returns the program and leading arguments used
	// to open a path; the path itself is appended by the caller.
	DefaultLauncherCommand() (name string, args []string, err error)
}

// Current returns the PlatformInfo compiled for this build.
func Current() PlatformInfo {
	return current
}
