package document

import (
	"fmt"
	"strings"

	"github.com/a3tai/mcp-pdf-engine/internal/engine"
	"github.com/a3tai/mcp-pdf-engine/internal/imaging"
)

// Color is a markup annotation's stroke color. Markup is always drawn at
// full opacity.
type Color struct {
	R, G, B uint8
}

// ParseSubtype maps a caller-supplied subtype name to a markup kind.
// Matching is case-insensitive; anything that is not underline or strikeout
// falls back to highlight.
func ParseSubtype(s string) engine.MarkupSubtype {
	switch strings.ToLower(s) {
	case "underline":
		return engine.MarkupUnderline
	case "strikeout":
		return engine.MarkupStrikeout
	default:
		return engine.MarkupHighlight
	}
}

// CreateMarkup creates one markup annotation on a page: the union of the
// input rectangles becomes the annotation's outer bounds and each input
// rectangle becomes one attachment quad. The whole call is all-or-nothing;
// any failure while configuring the annotation removes it again so no
// half-configured annotation is reachable from subsequent reads.
//
// When the handle's flatten policy is enabled the annotation is baked into
// static page content immediately after creation.
func (h *Handle) CreateMarkup(pageIndex int, rects []engine.Rect, subtype string, color Color) error {
	if len(rects) == 0 {
		return fmt.Errorf("markup requires at least one rectangle")
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrClosed
	}
	if !h.validPage(pageIndex) {
		return fmt.Errorf("page index %d out of range (document has %d pages)", pageIndex, h.pageCount)
	}

	union := imaging.Union(rects)

	// The new annotation lands at the end of the page's annotation list;
	// remember that position for rollback.
	annotIndex, err := h.doc.AnnotationCount(pageIndex)
	if err != nil {
		return fmt.Errorf("reading annotations of page %d: %w", pageIndex, err)
	}

	ann, err := h.doc.CreateAnnotation(pageIndex, ParseSubtype(subtype))
	if err != nil {
		return fmt.Errorf("creating %s annotation: %w", ParseSubtype(subtype), err)
	}

	rollback := func() {
		_ = ann.Close()
		_ = h.doc.RemoveAnnotation(pageIndex, annotIndex)
	}

	if err := ann.SetStrokeColor(color.R, color.G, color.B, 255); err != nil {
		rollback()
		return fmt.Errorf("setting markup color: %w", err)
	}

	for _, r := range rects {
		if err := ann.AppendAttachmentPoints(engine.QuadFromRect(r)); err != nil {
			rollback()
			return fmt.Errorf("attaching markup region: %w", err)
		}
	}

	if err := ann.SetBounds(union); err != nil {
		rollback()
		return fmt.Errorf("setting markup bounds: %w", err)
	}

	if err := ann.Close(); err != nil {
		_ = h.doc.RemoveAnnotation(pageIndex, annotIndex)
		return fmt.Errorf("finalizing markup annotation: %w", err)
	}

	if h.opts.FlattenMarkup {
		if err := h.doc.FlattenPage(pageIndex); err != nil {
			_ = h.doc.RemoveAnnotation(pageIndex, annotIndex)
			return fmt.Errorf("flattening page %d: %w", pageIndex, err)
		}
	}

	return nil
}
