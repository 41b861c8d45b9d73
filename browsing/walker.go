package browsing

import (
	"io/fs"
	"os"
	"sync"

	"github.com/mordilloSan/go_logger/logger"
	"github.com/sourcegraph/conc/pool"
)

// frame is a directory whose children still have to be listed. owner points
// into the parent's Children slice, which is never resized after creation.
type frame struct {
	path  string
	mode  Mode
	owner *Entry
}

// failedDirs records child directories whose listing failed in lenient mode.
type failedDirs struct {
	mu sync.Mutex
	m  map[*Entry]struct{}
}

func (f *failedDirs) add(e *Entry) {
	f.mu.Lock()
	if f.m == nil {
		f.m = make(map[*Entry]struct{})
	}
	f.m[e] = struct{}{}
	f.mu.Unlock()
}

// List returns the immediate children of path.
func (b *Browser) List(path string) ([]Entry, error) {
	return b.ReadDirOption(path, false, 0)
}

// ListBounded returns the children of path plus depth further levels.
func (b *Browser) ListBounded(path string, depth uint) ([]Entry, error) {
	return b.ReadDirOption(path, false, depth)
}

// ListRecursive returns the whole subtree below path.
func (b *Browser) ListRecursive(path string) ([]Entry, error) {
	return b.ReadDirOption(path, true, 0)
}

// ReadDirOption is the primitive behind the List variants. Supplying both
// recursive and a non-zero depth fails with ErrConflictingMode.
func (b *Browser) ReadDirOption(path string, recursive bool, depth uint) ([]Entry, error) {
	return b.Walk(path, Mode{Recursive: recursive, Depth: depth})
}

// Walk lists path according to mode. Only a failure to list path itself
// fails the call; unreadable descendants are omitted unless the Browser is
// strict. Entries keep the order the OS returns them in.
func (b *Browser) Walk(path string, mode Mode) ([]Entry, error) {
	if err := mode.Validate(); err != nil {
		return nil, err
	}

	entries, pending, err := b.readLevel(path, mode)
	if err != nil {
		return nil, err
	}

	var failed failedDirs
	if b.parallel {
		err = b.expandParallel(pending, &failed)
	} else {
		err = b.expandSequential(pending, &failed)
	}
	if err != nil {
		return nil, err
	}

	if len(failed.m) > 0 {
		entries = prune(entries, failed.m)
	}
	return entries, nil
}

// expandSequential is a depth-first walk driven by an explicit stack.
func (b *Browser) expandSequential(stack []frame, failed *failedDirs) error {
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		children, more, err := b.readLevel(f.path, f.mode)
		if err != nil {
			if b.strict {
				return err
			}
			logger.Debugf("omitting unreadable directory %s: %v", f.path, err)
			failed.add(f.owner)
			continue
		}
		f.owner.Children = children
		stack = append(stack, more...)
	}
	return nil
}

// expandParallel lists one tree level at a time with a bounded worker pool.
func (b *Browser) expandParallel(level []frame, failed *failedDirs) error {
	for len(level) > 0 {
		var (
			mu   sync.Mutex
			next []frame
		)
		p := pool.New().WithErrors().WithFirstError().WithMaxGoroutines(b.workers)
		for _, f := range level {
			p.Go(func() error {
				children, more, err := b.readLevel(f.path, f.mode)
				if err != nil {
					if b.strict {
						return err
					}
					logger.Debugf("omitting unreadable directory %s: %v", f.path, err)
					failed.add(f.owner)
					return nil
				}
				f.owner.Children = children

				mu.Lock()
				next = append(next, more...)
				mu.Unlock()
				return nil
			})
		}
		if err := p.Wait(); err != nil {
			return err
		}
		level = next
	}
	return nil
}

// readLevel lists one directory and returns its entries plus a frame for
// every child directory that mode wants expanded.
func (b *Browser) readLevel(path string, mode Mode) ([]Entry, []frame, error) {
	dir, err := os.Open(path)
	if err != nil {
		return nil, nil, ioError(err)
	}
	defer func() { _ = dir.Close() }()

	// File.ReadDir keeps directory order; os.ReadDir would sort by name.
	dirents, err := dir.ReadDir(-1)
	if err != nil {
		return nil, nil, ioError(err)
	}

	entries := make([]Entry, 0, len(dirents))
	symlinks := make([]bool, 0, len(dirents))
	for _, de := range dirents {
		p := childPath(path, de.Name())
		info, err := os.Stat(p)
		if err != nil {
			if b.strict {
				return nil, nil, ioError(err)
			}
			logger.Debugf("omitting %s: %v", p, err)
			continue
		}
		meta := b.normalizer.Normalize(p, info)
		entries = append(entries, newEntry(p, de.Name(), meta))
		symlinks = append(symlinks, de.Type()&fs.ModeSymlink != 0)
	}

	childMode, ok := mode.descend()
	if !ok {
		return entries, nil, nil
	}

	var pending []frame
	for i := range entries {
		// Symlinked directories are classified by their target but not entered.
		if !entries[i].IsDir || symlinks[i] {
			continue
		}
		pending = append(pending, frame{path: entries[i].Path, mode: childMode, owner: &entries[i]})
	}
	return entries, pending, nil
}

// prune drops the failed directories from the tree rooted at entries.
func prune(entries []Entry, failed map[*Entry]struct{}) []Entry {
	entries = compact(entries, failed)
	stack := []*[]Entry{}
	for i := range entries {
		if entries[i].IsDir {
			stack = append(stack, &entries[i].Children)
		}
	}
	for len(stack) > 0 {
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		*s = compact(*s, failed)
		for i := range *s {
			if (*s)[i].IsDir {
				stack = append(stack, &(*s)[i].Children)
			}
		}
	}
	return entries
}

// compact removes failed entries in place, checking each address before
// anything is moved over it.
func compact(s []Entry, failed map[*Entry]struct{}) []Entry {
	kept := s[:0]
	for i := range s {
		if _, bad := failed[&s[i]]; bad {
			continue
		}
		kept = append(kept, s[i])
	}
	return kept
}
