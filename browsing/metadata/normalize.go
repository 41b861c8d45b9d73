package metadata

import (
	"io/fs"
	"time"
)

// TimeLayout renders instants like "2023-05-19 12:10:37 +09:00".
const TimeLayout = "2006-01-02 15:04:05 -07:00"

// Metadata is the normalized view of one filesystem object.
type Metadata struct {
	IsDir        bool
	CreatedAt    string
	ModifiedAt   string
	IdentityHigh uint32
	IdentityLow  uint32
}

// Identity reassembles the 64-bit file identity.
func (m Metadata) Identity() uint64 {
	return JoinIdentity(m.IdentityHigh, m.IdentityLow)
}

// Normalizer converts raw stat results into Metadata.
type Normalizer struct {
	Platform PlatformInfo
	Location *time.Location // nil means time.Local
}

// NewNormalizer returns a Normalizer for the running platform in local time.
func NewNormalizer() *Normalizer {
	return &Normalizer{Platform: Current(), Location: time.Local}
}

// Normalize never fails; info must come from a symlink-following stat of path.
func (n *Normalizer) Normalize(path string, info fs.FileInfo) Metadata {
	platform := n.platform()
	origin := platform.CreationEpochOrigin()
	created, modified := platform.FileTimes(path, info)
	high, low := SplitIdentity(platform.FileIdentity(path, info))

	return Metadata{
		IsDir:        info.IsDir(),
		CreatedAt:    Render(origin, created, n.Location),
		ModifiedAt:   Render(origin, modified, n.Location),
		IdentityHigh: high,
		IdentityLow:  low,
	}
}

// Launcher returns the default-handler command of the configured platform.
func (n *Normalizer) Launcher() (name string, args []string, err error) {
	return n.platform().DefaultLauncherCommand()
}

func (n *Normalizer) platform() PlatformInfo {
	if n.Platform == nil {
		return Current()
	}
	return n.Platform
}

// Render formats origin+seconds in loc using TimeLayout.
func Render(origin time.Time, seconds int64, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	// time.Duration overflows for offsets from 1601, so go through Unix seconds.
	return time.Unix(origin.Unix()+seconds, 0).In(loc).Format(TimeLayout)
}

// SplitIdentity splits a 64-bit identity into the halves carried on the wire.
func SplitIdentity(id uint64) (high, low uint32) {
	h := id >> 32
	return uint32(h), uint32(id - h<<32)
}

// JoinIdentity is the inverse of SplitIdentity.
func JoinIdentity(high, low uint32) uint64 {
	return uint64(high)<<32 | uint64(low)
}
