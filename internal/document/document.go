// Package document exposes one loaded PDF document as a safely shareable
// handle. The native engine's document object is mutable and not safe for
// concurrent use, so every page operation goes through the handle's lock; the
// engine.Document reference never leaves that lock scope. Handles for
// different documents are fully independent and proceed in parallel.
package document

import (
	"errors"
	"fmt"
	"sync"

	"github.com/a3tai/mcp-pdf-engine/internal/engine"
	"github.com/a3tai/mcp-pdf-engine/internal/ocr"
)

// ErrClosed is returned by operations on a handle that has been closed.
var ErrClosed = errors.New("document: handle is closed")

// Options configures per-handle behavior. The zero value renders plain,
// keeps markup annotations editable and has no OCR provider.
type Options struct {
	// RenderMode is the default post-processing mode for RenderPage calls
	// that do not select one explicitly.
	RenderMode Mode

	// FlattenMarkup bakes each markup annotation into static page content
	// immediately after creation. Irreversible per annotation.
	FlattenMarkup bool

	// OCR is the provider used by OCRPage. OCRPage fails if nil.
	OCR ocr.Engine
}

// Handle owns exclusive, serialized access to one loaded document. Create it
// with Open and release it with Close.
type Handle struct {
	mu     sync.Mutex
	doc    engine.Document
	closed bool

	path      string
	pageCount int
	opts      Options
}

// Open loads the document at path through the given engine and wraps it in a
// handle. The page count is fixed here; the underlying file cannot gain or
// lose pages through this interface.
func Open(eng engine.Engine, path string, opts Options) (*Handle, error) {
	doc, err := eng.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening document %s: %w", path, err)
	}

	return &Handle{
		doc:       doc,
		path:      path,
		pageCount: doc.PageCount(),
		opts:      opts,
	}, nil
}

// Path returns the file path the document was loaded from.
func (h *Handle) Path() string { return h.path }

// PageCount reports the number of pages, fixed at load time.
func (h *Handle) PageCount() int { return h.pageCount }

// validPage reports whether pageIndex addresses an existing page. Operations
// must check this before touching the native layer; an out-of-range index
// handed to the engine is undefined behavior down there.
func (h *Handle) validPage(pageIndex int) bool {
	return pageIndex >= 0 && pageIndex < h.pageCount
}

// SaveAs writes the document, including annotations created through this
// handle, to a new file.
func (h *Handle) SaveAs(path string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrClosed
	}
	if err := h.doc.SaveAs(path); err != nil {
		return fmt.Errorf("saving document to %s: %w", path, err)
	}
	return nil
}

// Close releases the underlying native document. Close is idempotent;
// operations after Close return ErrClosed.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true
	if err := h.doc.Close(); err != nil {
		return fmt.Errorf("closing document %s: %w", h.path, err)
	}
	return nil
}
