package version

import (
	"runtime"
	"strings"
	"testing"
)

func TestGetPrefersLinkerValues(t *testing.T) {
	oldVersion, oldCommit, oldDate := Version, Commit, Date
	t.Cleanup(func() { Version, Commit, Date = oldVersion, oldCommit, oldDate })

	Version, Commit, Date = " v1.2.3 ", "abc123", "2025-01-01T00:00:00Z"
	info := Get()
	if info.Version != "v1.2.3" || info.Commit != "abc123" || info.Date != "2025-01-01T00:00:00Z" {
		t.Fatalf("Get() = %+v", info)
	}
	if info.GoVersion != runtime.Version() {
		t.Fatalf("GoVersion = %q, want %q", info.GoVersion, runtime.Version())
	}

	s := String()
	if !strings.HasPrefix(s, "fsbrowse v1.2.3 (commit abc123, built 2025-01-01T00:00:00Z") {
		t.Fatalf("String() = %q", s)
	}
}

func TestShortCommit(t *testing.T) {
	if got := shortCommit("0123456789abcdef"); got != "0123456789ab" {
		t.Fatalf("shortCommit = %q", got)
	}
	if got := shortCommit("abc"); got != "abc" {
		t.Fatalf("shortCommit = %q", got)
	}
}
