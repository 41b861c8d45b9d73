package browsing

import (
	"os"
	"path/filepath"

	"github.com/mordilloSan/fsbrowse/browsing/metadata"
)

// Entry is the normalized representation of one file or directory.
// Children is nil for non-directories and non-nil (possibly empty) for
// directories, so JSON distinguishes null from [].
type Entry struct {
	Path         string  `json:"path"`
	Name         string  `json:"name"`
	IsDir        bool    `json:"is_dir"`
	CreatedAt    string  `json:"created_at"`
	ModifiedAt   string  `json:"modified_at"`
	IdentityHigh uint32  `json:"identity_high"`
	IdentityLow  uint32  `json:"identity_low"`
	Children     []Entry `json:"children"`
}

// Identity returns the platform file identity (inode or file index).
func (e Entry) Identity() uint64 {
	return metadata.JoinIdentity(e.IdentityHigh, e.IdentityLow)
}

func newEntry(path, name string, meta metadata.Metadata) Entry {
	e := Entry{
		Path:         path,
		Name:         name,
		IsDir:        meta.IsDir,
		CreatedAt:    meta.CreatedAt,
		ModifiedAt:   meta.ModifiedAt,
		IdentityHigh: meta.IdentityHigh,
		IdentityLow:  meta.IdentityLow,
	}
	if meta.IsDir {
		e.Children = []Entry{}
	}
	return e
}

// childPath appends name to dir without cleaning dir, so walked paths keep
// whatever prefix the caller passed in ("./a/" lists "./a/f.txt").
func childPath(dir, name string) string {
	if dir == "" || os.IsPathSeparator(dir[len(dir)-1]) {
		return dir + name
	}
	return dir + string(filepath.Separator) + name
}

// baseName returns the final path component, or "" for roots and dot paths.
func baseName(p string) string {
	cleaned := filepath.Clean(p)
	base := filepath.Base(cleaned)
	switch base {
	case ".", "..", string(filepath.Separator):
		return ""
	}
	if cleaned == filepath.VolumeName(cleaned) {
		return ""
	}
	return base
}
