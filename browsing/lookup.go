package browsing

import "os"

// Lookup returns the Entry for path without listing its children. Unlike a
// walk, an unreadable path fails the call.
func (b *Browser) Lookup(path string) (Entry, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Entry{}, ioError(err)
	}
	return newEntry(path, baseName(path), b.normalizer.Normalize(path, info)), nil
}
