package browsing

import (
	"fmt"
	"strings"
)

// Mode selects how far a walk descends below the listed directory.
// Recursive and a non-zero Depth are mutually exclusive.
type Mode struct {
	Recursive bool
	Depth     uint
}

// Flat lists immediate children only.
func Flat() Mode { return Mode{} }

// Bounded lists immediate children plus n further levels.
func Bounded(n uint) Mode { return Mode{Depth: n} }

// Recursive lists the whole subtree.
func Recursive() Mode { return Mode{Recursive: true} }

// ParseMode accepts "flat", "bounded" and "recursive" (case-insensitive).
func ParseMode(name string, depth uint) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "flat":
		return Flat(), nil
	case "bounded":
		return Bounded(depth), nil
	case "recursive":
		return Recursive(), nil
	default:
		return Mode{}, &Error{Kind: KindOther, Msg: fmt.Sprintf("unknown traversal mode %q", name)}
	}
}

func (m Mode) String() string {
	switch {
	case m.Recursive && m.Depth > 0:
		return fmt.Sprintf("invalid(recursive,%d)", m.Depth)
	case m.Recursive:
		return "recursive"
	case m.Depth > 0:
		return fmt.Sprintf("bounded(%d)", m.Depth)
	default:
		return "flat"
	}
}

// Validate rejects the meaningless recursive+depth combination.
func (m Mode) Validate() error {
	if m.Recursive && m.Depth > 0 {
		return ErrConflictingMode
	}
	return nil
}

// Expands reports whether a directory found at level (0 = immediate child of
// the walk root) gets its own children listed.
func (m Mode) Expands(level uint) bool {
	return m.Recursive || level < m.Depth
}

// descend returns the mode used for a child directory's listing.
func (m Mode) descend() (Mode, bool) {
	switch {
	case m.Recursive:
		return m, true
	case m.Depth == 0:
		return m, false
	default:
		return Mode{Depth: m.Depth - 1}, true
	}
}
