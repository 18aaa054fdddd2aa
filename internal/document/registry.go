package document

import (
	"fmt"
	"sort"
	"sync"

	"github.com/a3tai/mcp-pdf-engine/internal/engine"
)

// Preflight validates a file path before it is handed to the native engine.
type Preflight func(path string) error

// Registry keeps at most one open Handle per document path. Handles are
// opened lazily on first use and stay open until closed explicitly, so
// repeated tool calls against the same file share one serialized handle
// while calls against different files proceed in parallel.
type Registry struct {
	eng       engine.Engine
	opts      Options
	preflight Preflight

	mu      sync.Mutex
	entries map[string]*registryEntry
}

// registryEntry opens one path at most once. The registry lock only guards
// the map; preflight and the native open run under the entry's once, so a
// slow open of one path never blocks lookups of other paths.
type registryEntry struct {
	once sync.Once
	h    *Handle
	err  error
}

// NewRegistry creates an empty registry. preflight may be nil.
func NewRegistry(eng engine.Engine, opts Options, preflight Preflight) *Registry {
	return &Registry{
		eng:       eng,
		opts:      opts,
		preflight: preflight,
		entries:   make(map[string]*registryEntry),
	}
}

// Get returns the open handle for path, opening the document on first use.
// A failed open is not cached; the next Get retries.
func (r *Registry) Get(path string) (*Handle, error) {
	if path == "" {
		return nil, fmt.Errorf("document path cannot be empty")
	}

	r.mu.Lock()
	e, ok := r.entries[path]
	if !ok {
		e = &registryEntry{}
		r.entries[path] = e
	}
	r.mu.Unlock()

	e.once.Do(func() {
		if r.preflight != nil {
			if err := r.preflight(path); err != nil {
				e.err = fmt.Errorf("preflight check failed: %w", err)
				return
			}
		}
		e.h, e.err = Open(r.eng, path, r.opts)
	})

	if e.err != nil {
		r.mu.Lock()
		if r.entries[path] == e {
			delete(r.entries, path)
		}
		r.mu.Unlock()
		return nil, e.err
	}
	return e.h, nil
}

// Close releases the handle for path, if one is open.
func (r *Registry) Close(path string) error {
	r.mu.Lock()
	e, ok := r.entries[path]
	delete(r.entries, path)
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("document %s is not open", path)
	}
	// Wait out any in-flight open before releasing the handle.
	e.once.Do(func() { e.err = fmt.Errorf("document %s is not open", path) })
	if e.h == nil {
		return e.err
	}
	return e.h.Close()
}

// Paths lists the currently open document paths in sorted order.
func (r *Registry) Paths() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	paths := make([]string, 0, len(r.entries))
	for p := range r.entries {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// CloseAll releases every open handle, returning the first error seen.
func (r *Registry) CloseAll() error {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*registryEntry)
	r.mu.Unlock()

	var firstErr error
	for path, e := range entries {
		e.once.Do(func() { e.err = fmt.Errorf("document %s is not open", path) })
		if e.h == nil {
			continue
		}
		if err := e.h.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
