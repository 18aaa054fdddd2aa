package document

import (
	"context"
	"fmt"
	"math"

	"github.com/a3tai/mcp-pdf-engine/internal/imaging"
	"github.com/a3tai/mcp-pdf-engine/internal/ocr"
)

// OCRPage rasterizes a page and routes it through the configured OCR
// provider. Higher scales (2.0 and up) noticeably improve recognition
// accuracy; that is a recommendation, not an enforced minimum.
//
// The engine's BGRA buffer is converted to the RGBA order the image encoder
// expects before hand-off. The document lock is held for the whole call, so
// OCR serializes with every other operation on the same handle; the
// provider's deadline keeps a hung subprocess from blocking it forever.
func (h *Handle) OCRPage(ctx context.Context, pageIndex int, scale float64) (string, error) {
	if h.opts.OCR == nil {
		return "", fmt.Errorf("no OCR provider configured")
	}
	if scale <= 0 {
		return "", fmt.Errorf("scale must be positive, got %v", scale)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return "", ErrClosed
	}
	if !h.validPage(pageIndex) {
		return "", fmt.Errorf("page index %d out of range (document has %d pages)", pageIndex, h.pageCount)
	}

	pageW, pageH, err := h.doc.PageSize(pageIndex)
	if err != nil {
		return "", fmt.Errorf("reading size of page %d: %w", pageIndex, err)
	}

	width := int(math.Round(pageW * scale))
	height := int(math.Round(pageH * scale))

	rendered, err := h.doc.RenderPage(pageIndex, width, height, true)
	if err != nil {
		return "", fmt.Errorf("rendering page %d for OCR: %w", pageIndex, err)
	}

	imaging.SwapRedBlue(rendered.Pixels)

	return h.opts.OCR.Recognize(ctx, ocr.Image{
		Width:  rendered.Width,
		Height: rendered.Height,
		Pixels: rendered.Pixels,
	})
}
