package browsing

import (
	"runtime"

	"github.com/mordilloSan/fsbrowse/browsing/metadata"
)

// Options configures a Browser. The zero value is a lenient, sequential
// browser for the running platform.
type Options struct {
	// Strict aborts a walk on the first unreadable child instead of omitting it.
	Strict bool
	// Parallel expands the directories of one tree level concurrently.
	Parallel bool
	// Workers bounds Parallel fan-out; 0 picks a CPU-based default.
	Workers int
	// Normalizer overrides platform and time zone handling.
	Normalizer *metadata.Normalizer
}

// Browser implements the browsing operations. It holds no mutable state and
// is safe for concurrent use.
type Browser struct {
	normalizer *metadata.Normalizer
	strict     bool
	parallel   bool
	workers    int
}

// New returns a Browser configured by opts.
func New(opts Options) *Browser {
	n := opts.Normalizer
	if n == nil {
		n = metadata.NewNormalizer()
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = min(max(runtime.NumCPU()*2, 4), 32)
	}
	return &Browser{
		normalizer: n,
		strict:     opts.Strict,
		parallel:   opts.Parallel,
		workers:    workers,
	}
}

// Normalizer exposes the metadata normalizer used by this Browser.
func (b *Browser) Normalizer() *metadata.Normalizer {
	return b.normalizer
}

// Strict reports whether unreadable children abort walks.
func (b *Browser) Strict() bool {
	return b.strict
}
