package metadata

import (
	"io/fs"
	"syscall"
	"time"
)

var current PlatformInfo = darwinPlatform{}

type darwinPlatform struct{}

func (darwinPlatform) CreationEpochOrigin() time.Time { return unixEpoch }

func (darwinPlatform) FileTimes(_ string, info fs.FileInfo) (int64, int64) {
	var created int64
	if stat, ok := info.Sys().(*syscall.Stat_t); ok {
		created = stat.Birthtimespec.Sec
	}
	return created, info.ModTime().Unix()
}

func (darwinPlatform) FileIdentity(_ string, info fs.FileInfo) uint64 {
	if stat, ok := info.Sys().(*syscall.Stat_t); ok {
		return stat.Ino
	}
	return 0
}

func (darwinPlatform) DefaultLauncherCommand() (string, []string, error) {
	return "open", nil, nil
}
