package metadata

import (
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var renderedPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2} [+-]\d{2}:\d{2}$`)

// fakePlatform returns fixed values so normalization can be checked exactly.
type fakePlatform struct {
	origin   time.Time
	created  int64
	modified int64
	identity uint64
}

func (f fakePlatform) CreationEpochOrigin() time.Time { return f.origin }
func (f fakePlatform) FileTimes(string, fs.FileInfo) (int64, int64) {
	return f.created, f.modified
}
func (f fakePlatform) FileIdentity(string, fs.FileInfo) uint64 { return f.identity }
func (f fakePlatform) DefaultLauncherCommand() (string, []string, error) {
	return "true", nil, nil
}

func TestSplitIdentityRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		id   uint64
		high uint32
		low  uint32
	}{
		{name: "zero", id: 0, high: 0, low: 0},
		{name: "low only", id: 0xDEADBEEF, high: 0, low: 0xDEADBEEF},
		{name: "high only", id: 0x1_0000_0000, high: 1, low: 0},
		{name: "both halves", id: 0x0123_4567_89AB_CDEF, high: 0x01234567, low: 0x89ABCDEF},
		{name: "max", id: ^uint64(0), high: ^uint32(0), low: ^uint32(0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			high, low := SplitIdentity(tt.id)
			assert.Equal(t, tt.high, high)
			assert.Equal(t, tt.low, low)
			assert.Equal(t, tt.id, JoinIdentity(high, low))
		})
	}
}

func TestRenderUsesOriginAndLocation(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*60*60)

	assert.Equal(t, "1970-01-01 09:00:00 +09:00", Render(unixEpoch, 0, tokyo))
	assert.Equal(t, "2023-05-19 12:10:37 +09:00", Render(unixEpoch, 1684465837, tokyo))
	assert.Equal(t, "1601-01-01 00:00:00 +00:00", Render(windowsEpoch, 0, time.UTC))

	// 1970-01-01 counted from 1601 does not fit in a time.Duration.
	assert.Equal(t, "1970-01-01 00:00:00 +00:00", Render(windowsEpoch, 11644473600, time.UTC))

	west := time.FixedZone("W", -(3*60*60 + 30*60))
	assert.Equal(t, "1969-12-31 20:30:00 -03:30", Render(unixEpoch, 0, west))
}

func TestRenderNilLocationFallsBackToLocal(t *testing.T) {
	assert.Regexp(t, renderedPattern, Render(unixEpoch, 1700000000, nil))
}

func TestNormalizeWithPlatform(t *testing.T) {
	dir := t.TempDir()
	info, err := os.Stat(dir)
	require.NoError(t, err)

	n := &Normalizer{
		Platform: fakePlatform{
			origin:   unixEpoch,
			created:  0,
			modified: 1684465837,
			identity: 0x0000_0002_0000_0007,
		},
		Location: time.UTC,
	}

	m := n.Normalize(dir, info)
	assert.True(t, m.IsDir)
	assert.Equal(t, "1970-01-01 00:00:00 +00:00", m.CreatedAt)
	assert.Equal(t, "2023-05-19 03:10:37 +00:00", m.ModifiedAt)
	assert.Equal(t, uint32(2), m.IdentityHigh)
	assert.Equal(t, uint32(7), m.IdentityLow)
	assert.Equal(t, uint64(0x0000_0002_0000_0007), m.Identity())
}

func TestNormalizeRealFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	info, err := os.Stat(path)
	require.NoError(t, err)

	n := NewNormalizer()
	m := n.Normalize(path, info)

	assert.False(t, m.IsDir)
	assert.Regexp(t, renderedPattern, m.CreatedAt)
	assert.Regexp(t, renderedPattern, m.ModifiedAt)
	assert.Equal(t, Current().FileIdentity(path, info), m.Identity())

	origin := Current().CreationEpochOrigin()
	_, modified := Current().FileTimes(path, info)
	assert.Equal(t, info.ModTime().Unix(), origin.Unix()+modified)
}

func TestCurrentPlatformLauncher(t *testing.T) {
	name, _, err := Current().DefaultLauncherCommand()
	if err != nil {
		assert.ErrorIs(t, err, ErrNoLauncher)
		return
	}
	assert.NotEmpty(t, name)
}
