//go:build !unix && !windows

package metadata

import (
	"io/fs"
	"time"
)

var current PlatformInfo = genericPlatform{}

// genericPlatform is used where no file identity or launcher exists (plan9, wasm).
type genericPlatform struct{}

func (genericPlatform) CreationEpochOrigin() time.Time { return unixEpoch }

func (genericPlatform) FileTimes(_ string, info fs.FileInfo) (int64, int64) {
	return 0, info.ModTime().Unix()
}

func (genericPlatform) FileIdentity(string, fs.FileInfo) uint64 { return 0 }

func (genericPlatform) DefaultLauncherCommand() (string, []string, error) {
	return "", nil, ErrNoLauncher
}
