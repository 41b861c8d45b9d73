package metadata

import (
	"io/fs"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

var current PlatformInfo = linuxPlatform{}

type linuxPlatform struct{}

func (linuxPlatform) CreationEpochOrigin() time.Time { return unixEpoch }

// FileTimes reads the birth time through statx; kernels or filesystems
// without STATX_BTIME report 0.
func (linuxPlatform) FileTimes(path string, info fs.FileInfo) (int64, int64) {
	var created int64
	var stx unix.Statx_t
	err := unix.Statx(unix.AT_FDCWD, path, unix.AT_STATX_SYNC_AS_STAT, unix.STATX_BTIME, &stx)
	if err == nil && stx.Mask&unix.STATX_BTIME != 0 {
		created = stx.Btime.Sec
	}
	return created, info.ModTime().Unix()
}

func (linuxPlatform) FileIdentity(_ string, info fs.FileInfo) uint64 {
	return inodeOf(info)
}

func (linuxPlatform) DefaultLauncherCommand() (string, []string, error) {
	return "xdg-open", nil, nil
}

func inodeOf(info fs.FileInfo) uint64 {
	if info == nil {
		return 0
	}
	if stat, ok := info.Sys().(*syscall.Stat_t); ok {
		return uint64(stat.Ino)
	}
	return 0
}
