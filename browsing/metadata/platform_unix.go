//go:build unix && !linux && !darwin

package metadata

import (
	"io/fs"
	"syscall"
	"time"
)

var current PlatformInfo = unixPlatform{}

// unixPlatform covers the BSDs and Solarises; birth time is not read there.
type unixPlatform struct{}

func (unixPlatform) CreationEpochOrigin() time.Time { return unixEpoch }

func (unixPlatform) FileTimes(_ string, info fs.FileInfo) (int64, int64) {
	return 0, info.ModTime().Unix()
}

func (unixPlatform) FileIdentity(_ string, info fs.FileInfo) uint64 {
	if stat, ok := info.Sys().(*syscall.Stat_t); ok {
		return uint64(stat.Ino)
	}
	return 0
}

func (unixPlatform) DefaultLauncherCommand() (string, []string, error) {
	return "xdg-open", nil, nil
}
