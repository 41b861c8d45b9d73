package browsing

import (
	"io/fs"
	"sort"
	"testing"
	"time"

	"github.com/mordilloSan/fsbrowse/browsing/metadata"
)

// browsers returns a sequential and a parallel Browser so each walk test
// covers both expansion strategies.
func browsers(strict bool) map[string]*Browser {
	return map[string]*Browser{
		"sequential": New(Options{Strict: strict}),
		"parallel":   New(Options{Strict: strict, Parallel: true, Workers: 3}),
	}
}

func names(entries []Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Name)
	}
	sort.Strings(out)
	return out
}

func byName(t *testing.T, entries []Entry, name string) Entry {
	t.Helper()
	for _, e := range entries {
		if e.Name == name {
			return e
		}
	}
	t.Fatalf("entry %q not found in %v", name, names(entries))
	return Entry{}
}

// levels counts how many levels of entries a tree holds.
func levels(entries []Entry) int {
	if len(entries) == 0 {
		return 0
	}
	deepest := 0
	for _, e := range entries {
		deepest = max(deepest, levels(e.Children))
	}
	return deepest + 1
}

// flatten returns every path in the tree, sorted.
func flatten(entries []Entry) []string {
	var out []string
	stack := append([]Entry(nil), entries...)
	for len(stack) > 0 {
		e := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		out = append(out, e.Path)
		stack = append(stack, e.Children...)
	}
	sort.Strings(out)
	return out
}

func checkChildrenInvariant(t *testing.T, entries []Entry) {
	t.Helper()
	for _, e := range entries {
		if e.IsDir != (e.Children != nil) {
			t.Fatalf("%s: is_dir=%v but children nil=%v", e.Path, e.IsDir, e.Children == nil)
		}
		checkChildrenInvariant(t, e.Children)
	}
}

type stubPlatform struct {
	launcher string
	args     []string
	err      error
}

func (s stubPlatform) CreationEpochOrigin() time.Time {
	return time.Unix(0, 0).UTC()
}

func (s stubPlatform) FileTimes(_ string, info fs.FileInfo) (int64, int64) {
	return 0, info.ModTime().Unix()
}

func (s stubPlatform) FileIdentity(string, fs.FileInfo) uint64 { return 0x0000_0001_0000_0002 }

func (s stubPlatform) DefaultLauncherCommand() (string, []string, error) {
	return s.launcher, s.args, s.err
}

func stubBrowser(p stubPlatform) *Browser {
	return New(Options{Normalizer: &metadata.Normalizer{Platform: p, Location: time.UTC}})
}
