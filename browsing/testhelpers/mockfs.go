// Package testhelpers builds throwaway directory trees for tests.
package testhelpers

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"testing"
)

// MockFileSystem is a temporary directory tree rooted at Root. It is removed
// automatically when the test ends.
type MockFileSystem struct {
	Root string
	t    testing.TB
}

// NewMockFileSystem creates an empty tree in a test-scoped temp directory.
func NewMockFileSystem(t testing.TB) *MockFileSystem {
	t.Helper()
	return &MockFileSystem{Root: t.TempDir(), t: t}
}

// Path returns the absolute path of rel inside the tree.
func (m *MockFileSystem) Path(rel string) string {
	return filepath.Join(m.Root, filepath.FromSlash(rel))
}

// CreateDir creates a directory and any missing parents.
func (m *MockFileSystem) CreateDir(rel string) {
	m.t.Helper()
	if err := os.MkdirAll(m.Path(rel), 0o755); err != nil {
		m.t.Fatalf("Failed to create directory %s: %v", rel, err)
	}
}

// CreateFile writes content to rel, creating parent directories.
func (m *MockFileSystem) CreateFile(rel, content string) {
	m.t.Helper()
	full := m.Path(rel)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		m.t.Fatalf("Failed to create parent dir for %s: %v", rel, err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		m.t.Fatalf("Failed to create file %s: %v", rel, err)
	}
}

// CreateBytes writes raw bytes to rel.
func (m *MockFileSystem) CreateBytes(rel string, data []byte) {
	m.t.Helper()
	m.CreateFile(rel, "")
	if err := os.WriteFile(m.Path(rel), data, 0o644); err != nil {
		m.t.Fatalf("Failed to write %s: %v", rel, err)
	}
}

// CreateSymlink links linkRel to target. A relative target is resolved
// inside the tree; an absolute one is used as is.
func (m *MockFileSystem) CreateSymlink(target, linkRel string) {
	m.t.Helper()
	if !filepath.IsAbs(target) {
		target = m.Path(target)
	}
	full := m.Path(linkRel)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		m.t.Fatalf("Failed to create parent dir for symlink %s: %v", linkRel, err)
	}
	if err := os.Symlink(target, full); err != nil {
		m.t.Skipf("symlinks unavailable: %v", err)
	}
}

// CreateHardlink adds a second name for an existing file.
func (m *MockFileSystem) CreateHardlink(targetRel, linkRel string) {
	m.t.Helper()
	if err := os.Link(m.Path(targetRel), m.Path(linkRel)); err != nil {
		m.t.Fatalf("Failed to create hardlink %s -> %s: %v", linkRel, targetRel, err)
	}
}

// CreateUnreadableDir creates a directory whose contents cannot be listed.
// The test is skipped where permissions do not restrict the current user.
func (m *MockFileSystem) CreateUnreadableDir(rel string) {
	m.t.Helper()
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		m.t.Skip("permission bits do not restrict this user")
	}
	m.CreateDir(rel)
	full := m.Path(rel)
	if err := os.Chmod(full, 0); err != nil {
		m.t.Fatalf("Failed to chmod %s: %v", rel, err)
	}
	m.t.Cleanup(func() { _ = os.Chmod(full, 0o755) })
}

// CreateChain creates dirs d0/d1/.../d{n-1} below rel, each holding one file
// named leaf.txt, and returns the chain's top directory.
func (m *MockFileSystem) CreateChain(rel string, n int) string {
	m.t.Helper()
	cur := rel
	for i := 0; i < n; i++ {
		cur = filepath.Join(cur, "d"+strconv.Itoa(i))
		m.CreateFile(filepath.Join(cur, "leaf.txt"), "leaf")
	}
	return m.Path(rel)
}

// CreateStandardTestStructure lays out a small mixed tree:
//
//	documents/{readme.txt,notes.txt}
//	documents/archive/old.txt
//	documents/archive/2023/{jan.txt,feb.txt}
//	photos/image1.jpg
//	empty/
//	.hidden_file
func (m *MockFileSystem) CreateStandardTestStructure() {
	m.CreateFile("documents/readme.txt", "This is a readme file")
	m.CreateFile("documents/notes.txt", "These are notes")
	m.CreateFile("documents/archive/old.txt", "Old document")
	m.CreateFile("documents/archive/2023/jan.txt", "January data")
	m.CreateFile("documents/archive/2023/feb.txt", "February data")
	m.CreateFile("photos/image1.jpg", "JPEG data")
	m.CreateDir("empty")
	m.CreateFile(".hidden_file", "secret content")
}
