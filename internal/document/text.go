package document

import (
	"fmt"

	"github.com/a3tai/mcp-pdf-engine/internal/engine"
)

// PageText returns the full extractable text of a page. An out-of-range
// index or a page without text yields the empty string, never an error.
func (h *Handle) PageText(pageIndex int) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return "", ErrClosed
	}
	if !h.validPage(pageIndex) {
		return "", nil
	}

	text, err := h.doc.PageText(pageIndex)
	if err != nil {
		return "", fmt.Errorf("text access error on page %d: %w", pageIndex, err)
	}
	return text, nil
}

// TextSegments returns the engine's granular text-run segmentation with each
// run's bounds, in native reading order. An out-of-range index yields an
// empty slice.
func (h *Handle) TextSegments(pageIndex int) ([]engine.TextSegment, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrClosed
	}
	if !h.validPage(pageIndex) {
		return nil, nil
	}

	segments, err := h.doc.TextSegments(pageIndex)
	if err != nil {
		return nil, fmt.Errorf("text access error on page %d: %w", pageIndex, err)
	}
	return segments, nil
}

// Search runs the engine's forward case-insensitive text search over the
// page and returns each occurrence's exact bounds in page coordinate units;
// a match spanning several text runs carries one rectangle per run. An empty
// term, an out-of-range index or no matches all yield an empty slice, never
// an error.
func (h *Handle) Search(pageIndex int, term string) ([]engine.Rect, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrClosed
	}
	if term == "" || !h.validPage(pageIndex) {
		return nil, nil
	}

	matches, err := h.doc.Search(pageIndex, term)
	if err != nil {
		return nil, fmt.Errorf("text access error on page %d: %w", pageIndex, err)
	}
	return matches, nil
}
